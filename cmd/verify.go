package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/andresmejia3/veriface/internal/biometric"
	"github.com/andresmejia3/veriface/internal/types"
	"github.com/andresmejia3/veriface/internal/worker"
	"github.com/spf13/cobra"
)

type verifyOptions struct {
	File         string
	Image        string
	Hint         string
	NoAttendance bool
}

var verifyOpts verifyOptions

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Identify who a face belongs to, or confirm a claimed identity",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runVerify(cmd.Context(), verifyOpts)
	},
}

func init() {
	verifyCmd.Flags().StringVarP(&verifyOpts.File, "file", "f", "", "Query descriptor JSON file ('-' for stdin)")
	verifyCmd.Flags().StringVarP(&verifyOpts.Image, "image", "i", "", "Photo to embed; the largest face is used")
	verifyCmd.Flags().StringVar(&verifyOpts.Hint, "as", "", "Claimed identity key (1:1 confirmation)")
	verifyCmd.Flags().BoolVar(&verifyOpts.NoAttendance, "no-attendance", false, "Do not log attendance for a match")
	verifyCmd.MarkFlagsMutuallyExclusive("file", "image")
	verifyCmd.MarkFlagsOneRequired("file", "image")
	rootCmd.AddCommand(verifyCmd)
}

func runVerify(ctx context.Context, opts verifyOptions) error {
	hint := types.IdentityKey(opts.Hint)
	record := !opts.NoAttendance

	var (
		res  *biometric.MatchResult
		pool *worker.Pool
		err  error
	)
	if opts.File != "" {
		capture, readErr := readCapture(opts.File)
		if readErr != nil {
			return fail("Failed to read descriptor", readErr, nil)
		}
		if len(capture.Set) != 1 {
			err := biometric.InvalidInput("expected one query descriptor, got %d", len(capture.Set))
			return fail("Invalid query", err, nil)
		}
		svc, svcErr := newService(nil, record)
		if svcErr != nil {
			return fail("Failed to initialize matcher", svcErr, nil)
		}
		fmt.Fprintln(os.Stderr, "🗄️  Searching identities...")
		res, err = svc.MatchIdentity(ctx, capture.First(), hint)
	} else {
		images, readErr := readImages([]string{opts.Image})
		if readErr != nil {
			return fail("Failed to read image", readErr, nil)
		}
		var startErr error
		if pool, startErr = startEmbedder(ctx); startErr != nil {
			return fail("Failed to start AI worker", startErr, nil)
		}
		defer pool.Close()
		svc, svcErr := newService(pool, record)
		if svcErr != nil {
			return fail("Failed to initialize matcher", svcErr, nil)
		}
		fmt.Fprintln(os.Stderr, "🔍 Analyzing face...")
		res, err = svc.VerifyImage(ctx, images[0], hint)
	}

	if err != nil {
		switch biometric.CodeOf(err) {
		case biometric.CodeNoMatch:
			fmt.Println("❌ No match found.")
		case biometric.CodeAmbiguousMatch:
			fmt.Println("⚠️  Two identities are too close to tell apart. Please recapture.")
		}
		return fail("Verification failed", err, pool.Crashed())
	}

	fmt.Printf("✅ Found Match: %s (score %.3f)\n", res.Identity, res.Score)
	if res.RunnerUp != "" {
		fmt.Printf("   runner-up: %s (%.3f)\n", res.RunnerUp, res.RunnerUpScore)
	}
	fmt.Printf("   attempt %s, %d candidates, profile %s\n", res.AttemptID, res.Candidates, res.Profile)
	return nil
}
