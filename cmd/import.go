package cmd

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/andresmejia3/veriface/internal/biometric"
	"github.com/andresmejia3/veriface/internal/types"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

// maxImportLine bounds one JSONL record.
const maxImportLine = 16 << 20

var importCmd = &cobra.Command{
	Use:   "import <file.jsonl>",
	Short: "Bulk-enroll identities from a JSON Lines file",
	Long: `Each line is {"key": "...", "descriptors": [[...], ...]}. Lines that fail
validation are reported and skipped; a store failure stops the import.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runImport(cmd.Context(), args[0])
	},
}

func init() {
	rootCmd.AddCommand(importCmd)
}

type importRecord struct {
	Key         types.IdentityKey `json:"key"`
	Descriptors types.Capture     `json:"descriptors"`
}

type importFailure struct {
	Line int
	Key  types.IdentityKey
	Err  error
}

type importStats struct {
	Enrolled int
	Failures []importFailure
}

type enrollFunc func(ctx context.Context, key types.IdentityKey, capture types.Capture) (types.DescriptorSet, error)

func runImport(ctx context.Context, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fail("Failed to open import file", err, nil)
	}
	defer f.Close()

	lines, err := readLines(f)
	if err != nil {
		return fail("Failed to read import file", err, nil)
	}

	svc, err := newService(nil, false)
	if err != nil {
		return fail("Failed to initialize matcher", err, nil)
	}

	bar := progressbar.NewOptions(len(lines),
		progressbar.OptionSetDescription("📥 Enrolling"),
		progressbar.OptionSetWriter(os.Stderr), // Write bar to Stderr
		progressbar.OptionShowCount(),
	)
	stats, err := importLines(ctx, lines, svc.Enroll, func() { _ = bar.Add(1) })
	_ = bar.Finish()
	fmt.Fprintln(os.Stderr)

	for _, fl := range stats.Failures {
		fmt.Fprintf(os.Stderr, "⚠️  line %d (%s): %v\n", fl.Line, fl.Key, fl.Err)
	}
	if err != nil {
		return fail("Import aborted", err, nil)
	}
	fmt.Printf("✅ Imported %d identities, %d rejected\n", stats.Enrolled, len(stats.Failures))
	return nil
}

func readLines(r io.Reader) ([][]byte, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxImportLine)
	var lines [][]byte
	for sc.Scan() {
		lines = append(lines, append([]byte(nil), sc.Bytes()...))
	}
	return lines, sc.Err()
}

// importLines enrolls one record per line. Decision failures are collected;
// dependency failures and cancellation stop the run.
func importLines(ctx context.Context, lines [][]byte, enroll enrollFunc, progress func()) (importStats, error) {
	var stats importStats
	for i, line := range lines {
		if progress != nil {
			progress()
		}
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		var rec importRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			stats.Failures = append(stats.Failures, importFailure{Line: i + 1, Err: biometric.InvalidInput("malformed record: %v", err)})
			continue
		}
		if rec.Key == "" {
			stats.Failures = append(stats.Failures, importFailure{Line: i + 1, Err: biometric.InvalidInput("missing key")})
			continue
		}

		_, err := enroll(ctx, rec.Key, rec.Descriptors)
		switch {
		case err == nil:
			stats.Enrolled++
		case errors.Is(err, biometric.ErrDependencyUnavailable), errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return stats, fmt.Errorf("line %d (%s): %w", i+1, rec.Key, err)
		default:
			stats.Failures = append(stats.Failures, importFailure{Line: i + 1, Key: rec.Key, Err: err})
		}
	}
	return stats, nil
}
