package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jmcleod/keysafe/auth"
	"github.com/jmcleod/keysafe/vault"
)

var (
	flagInitAuth   = string(auth.VariantNone)
	flagDestroyYes bool
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a new vault",
	Long: `Generates a key pair and an empty vault in the vault directory. With
--auth the private key is wrapped under a passphrase, the OS keychain or a
FIDO2 token.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		variant, err := auth.ParseVariant(flagInitAuth)
		if err != nil {
			return err
		}
		m, err := openVault(cmd)
		if err != nil {
			return err
		}
		defer m.Close()
		res, err := m.Init(cmd.Context(), vault.InitOptions{Variant: variant})
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s Vault created in %s\n", success("✓"), m.Dir())
		fmt.Fprintf(out, "  id:          %s\n", res.VaultID)
		fmt.Fprintf(out, "  fingerprint: %s\n", res.Fingerprint)
		fmt.Fprintf(out, "  auth:        %s\n", res.Variant)
		return nil
	},
}

var destroyCmd = &cobra.Command{
	Use:   "destroy",
	Short: "Delete the vault, its keys and its journal",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if !flagDestroyYes {
			if flagSilent {
				return errors.New("refusing to destroy without --yes")
			}
			if !confirm(cmd.InOrStdin(), cmd.ErrOrStderr(), "Destroy the vault and every secret in it?") {
				return exitError{1}
			}
		}
		m, err := openVault(cmd)
		if err != nil {
			return err
		}
		defer m.Close()
		if err := m.Destroy(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s Vault destroyed\n", success("✓"))
		return nil
	},
}

func init() {
	initCmd.Flags().StringVar(&flagInitAuth, "auth", string(auth.VariantNone), "none, passphrase, keychain or fido2")
	destroyCmd.Flags().BoolVarP(&flagDestroyYes, "yes", "y", false, "do not ask for confirmation")
	rootCmd.AddCommand(initCmd, destroyCmd)
}
