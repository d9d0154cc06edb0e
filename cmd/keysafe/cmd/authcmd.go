package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jmcleod/keysafe/auth"
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Change how the private key is protected",
}

var authEnableCmd = &cobra.Command{
	Use:   "enable VARIANT",
	Short: "Protect the private key with passphrase, keychain or fido2",
	Long: `Re-wraps the private key under a new authenticator. The current one must
approve first; it is revoked once the new wrap is in place.`,
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"passphrase", "keychain", "fido2"},
	RunE: func(cmd *cobra.Command, args []string) error {
		variant, err := auth.ParseVariant(args[0])
		if err != nil {
			return err
		}
		m, err := openVault(cmd)
		if err != nil {
			return err
		}
		defer m.Close()
		if err := m.EnableAuth(cmd.Context(), variant); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s Private key now protected by %s\n", success("✓"), variant)
		return nil
	},
}

var authDisableCmd = &cobra.Command{
	Use:   "disable",
	Short: "Store the private key without an authenticator",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		m, err := openVault(cmd)
		if err != nil {
			return err
		}
		defer m.Close()
		if err := m.DisableAuth(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s Authentication disabled\n", success("✓"))
		return nil
	},
}

func init() {
	authCmd.AddCommand(authEnableCmd, authDisableCmd)
	rootCmd.AddCommand(authCmd)
}
