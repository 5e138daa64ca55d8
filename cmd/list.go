package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/andresmejia3/veriface/internal/types"
	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List all enrolled identities",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runList(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(listCmd)
}

func runList(ctx context.Context) error {
	identities, err := DB.ListIdentities(ctx)
	if err != nil {
		return fail("Failed to list identities", err, nil)
	}
	writeIdentities(os.Stdout, identities)
	return nil
}

func writeIdentities(out io.Writer, identities []types.IdentitySummary) {
	if len(identities) == 0 {
		fmt.Fprintln(out, "No identities enrolled.")
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "KEY\tSAMPLES\tDIMS\tCREATED\tUPDATED")
	fmt.Fprintln(w, "---\t-------\t----\t-------\t-------")

	for _, id := range identities {
		fmt.Fprintf(w, "%s\t%d\t%d\t%s\t%s\n", id.Key, id.Samples, id.Dimensions,
			id.CreatedAt.Local().Format("2006-01-02 15:04"),
			id.UpdatedAt.Local().Format("2006-01-02 15:04"))
	}
	w.Flush()
}
