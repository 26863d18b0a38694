package command

import (
	"github.com/Jbbrack03/Code-Server-Mobile-sub001/internal/version"
	"github.com/spf13/cobra"
)

func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "relay",
		Short:         "Mobile terminal relay",
		Version:       version.FullVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(
		newServeCmd(),
		newCredentialCmd(),
		newWatchCmd(),
	)

	return cmd
}
