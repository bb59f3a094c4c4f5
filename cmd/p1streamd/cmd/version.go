package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/p1stream/p1stream-go/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the p1streamd version",
	RunE: func(cmd *cobra.Command, _ []string) error {
		_, err := fmt.Fprintln(cmd.OutOrStdout(), version.Short())
		return err
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
