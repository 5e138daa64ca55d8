package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/andresmejia3/veriface/internal/types"
	"github.com/spf13/cobra"
)

type enrollOptions struct {
	File   string
	Images []string
	DryRun bool
}

var enrollOpts enrollOptions

var enrollCmd = &cobra.Command{
	Use:   "enroll <identity_key>",
	Short: "Register (or re-register) an identity from several face captures",
	Long: `Validates a batch of captures for one person and, if accepted, replaces
whatever was stored for that key. Captures come from a descriptor JSON file
(--file) or are computed from photos (--images).`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runEnroll(cmd.Context(), types.IdentityKey(args[0]), enrollOpts)
	},
}

func init() {
	enrollCmd.Flags().StringVarP(&enrollOpts.File, "file", "f", "", "Descriptor JSON file ('-' for stdin)")
	enrollCmd.Flags().StringSliceVarP(&enrollOpts.Images, "images", "i", nil, "Photos to embed, one face each")
	enrollCmd.Flags().BoolVar(&enrollOpts.DryRun, "dry-run", false, "Validate only, do not store")
	enrollCmd.MarkFlagsMutuallyExclusive("file", "images")
	enrollCmd.MarkFlagsOneRequired("file", "images")
	rootCmd.AddCommand(enrollCmd)
}

func runEnroll(ctx context.Context, key types.IdentityKey, opts enrollOptions) error {
	if opts.DryRun && len(opts.Images) > 0 {
		err := errors.New("--dry-run needs --file")
		return fail("Invalid flags", err, nil)
	}

	if opts.File != "" {
		capture, err := readCapture(opts.File)
		if err != nil {
			return fail("Failed to read descriptors", err, nil)
		}
		svc, err := newService(nil, false)
		if err != nil {
			return fail("Failed to initialize matcher", err, nil)
		}

		var set types.DescriptorSet
		if opts.DryRun {
			set, err = svc.ValidateEnrollment(ctx, key, capture)
		} else {
			set, err = svc.Enroll(ctx, key, capture)
		}
		if err != nil {
			return fail("Enrollment rejected", err, nil)
		}
		reportEnrolled(key, set, opts.DryRun)
		return nil
	}

	images, err := readImages(opts.Images)
	if err != nil {
		return fail("Failed to read images", err, nil)
	}
	pool, err := startEmbedder(ctx)
	if err != nil {
		return fail("Failed to start AI worker", err, nil)
	}
	defer pool.Close()

	svc, err := newService(pool, false)
	if err != nil {
		return fail("Failed to initialize matcher", err, nil)
	}
	fmt.Fprintln(os.Stderr, "🔍 Analyzing faces...")
	set, err := svc.EnrollImages(ctx, key, images)
	if err != nil {
		return fail("Enrollment rejected", err, pool.Crashed())
	}
	reportEnrolled(key, set, false)
	return nil
}

func reportEnrolled(key types.IdentityKey, set types.DescriptorSet, dryRun bool) {
	if dryRun {
		fmt.Printf("✅ %d captures for '%s' would be accepted\n", len(set), key)
		return
	}
	fmt.Printf("✅ Identity '%s' enrolled with %d captures\n", key, len(set))
}
