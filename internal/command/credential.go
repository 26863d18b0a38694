package command

import (
	"fmt"
	"github.com/Jbbrack03/Code-Server-Mobile-sub001/internal/config"
	"github.com/Jbbrack03/Code-Server-Mobile-sub001/internal/credential"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	credentialStoreDir string
	revealCredential   bool
)

func newCredentialCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "credential",
		Short: "Manage the API key mobile clients authenticate with",
	}

	cmd.PersistentFlags().StringVar(&credentialStoreDir, "credential-dir", config.DefaultCredentialDir(),
		"directory holding the API key")

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the fingerprint of the current API key",
		RunE:  showCredential,
	}
	showCmd.Flags().BoolVar(&revealCredential, "reveal", false, "print the API key itself")

	rotateCmd := &cobra.Command{
		Use:   "rotate",
		Short: "Replace the API key with a freshly generated one",
		Long: "Replace the API key with a freshly generated one. A running relay keeps " +
			"accepting the old key until it's restarted.",
		RunE: rotateCredential,
	}

	cmd.AddCommand(showCmd, rotateCmd)

	return cmd
}

func showCredential(cmd *cobra.Command, args []string) error {
	authority := credential.NewAuthority(credential.NewFileStore(credentialStoreDir), zap.NewNop())

	if err := authority.Load(); err != nil {
		return err
	}

	if revealCredential {
		fmt.Fprintln(cmd.OutOrStdout(), authority.Secret())

		return nil
	}

	fmt.Fprintf(cmd.OutOrStdout(), "fingerprint: %s\n", credential.Fingerprint(authority.Secret()))

	return nil
}

func rotateCredential(cmd *cobra.Command, args []string) error {
	authority := credential.NewAuthority(credential.NewFileStore(credentialStoreDir), zap.NewNop())

	secret, err := authority.Rotate()
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), secret)

	return nil
}
