package cli

import (
	"github.com/spf13/cobra"
)

// Root returns the studyhall command tree.
func Root() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "studyhall",
		Short:         "studyhall runs the shared study-timer server",
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
	cmd.AddCommand(server())
	return cmd
}
