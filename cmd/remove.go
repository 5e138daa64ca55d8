package cmd

import (
	"fmt"

	"github.com/andresmejia3/veriface/internal/types"
	"github.com/spf13/cobra"
)

var removeCmd = &cobra.Command{
	Use:   "remove <identity_key>",
	Short: "Delete an identity, its descriptors and its attendance history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		key := types.IdentityKey(args[0])

		found, err := DB.DeleteIdentity(cmd.Context(), key)
		if err != nil {
			return fail("Failed to remove identity", err, nil)
		}
		if !found {
			fmt.Printf("❌ No identity '%s' enrolled\n", key)
			return nil
		}
		fmt.Printf("✅ Identity '%s' removed\n", key)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(removeCmd)
}
