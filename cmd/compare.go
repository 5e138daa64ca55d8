package cmd

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/andresmejia3/veriface/internal/biometric"
	"github.com/andresmejia3/veriface/internal/types"
	"github.com/spf13/cobra"
)

var compareCmd = &cobra.Command{
	Use:         "compare <a.json> <b.json>",
	Short:       "Print every metric's similarity and distance for two descriptors",
	Args:        cobra.ExactArgs(2),
	Annotations: map[string]string{noStore: "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		a, err := readCapture(args[0])
		if err != nil {
			return fail("Failed to read descriptor", err, nil)
		}
		b, err := readCapture(args[1])
		if err != nil {
			return fail("Failed to read descriptor", err, nil)
		}
		return writeComparison(os.Stdout, a.First(), b.First())
	},
}

func init() {
	rootCmd.AddCommand(compareCmd)
}

func writeComparison(out io.Writer, a, b types.Descriptor) error {
	if len(a) == 0 || len(a) != len(b) {
		return biometric.InvalidInput("descriptors must be non-empty and equal length (got %d and %d)", len(a), len(b))
	}

	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "METRIC\tSIMILARITY\tDISTANCE")
	fmt.Fprintln(w, "------\t----------\t--------")
	for _, m := range biometric.AllMetrics() {
		fmt.Fprintf(w, "%s\t%.4f\t%.4f\n", m.Name(), m.Similarity(a, b), m.Distance(a, b))
	}
	return w.Flush()
}
