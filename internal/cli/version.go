package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Long:  `Print the version, commit hash, and build date of nbf.`,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "nbf version %s\n", appVersion)
			fmt.Fprintf(cmd.OutOrStdout(), "  Commit ID:  %s\n", commit)
			fmt.Fprintf(cmd.OutOrStdout(), "  Build Date: %s\n", date)
		},
	}
}
