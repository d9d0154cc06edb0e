package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jmcleod/keysafe/auth"
	"github.com/jmcleod/keysafe/internal/util"
	"github.com/jmcleod/keysafe/vault"
)

var (
	flagIncludePrivate bool
	flagImportForce    bool
	flagImportMode     string
)

func resetBundleFlags() {
	flagIncludePrivate, flagImportForce, flagImportMode = false, false, ""
}

// bundlePassphrase reads the passphrase that seals or opens a bundle's
// private key, preferring $KEYSAFE_EXPORT_PASSPHRASE.
func bundlePassphrase(cmd *cobra.Command, confirm bool) ([]byte, error) {
	src := auth.NewTerminalSource(envExportPassphrase)
	src.Out = cmd.ErrOrStderr()
	return src.Passphrase(cmd.Context(), auth.Prompt{
		Message: "Bundle passphrase: ",
		Confirm: confirm,
		Silent:  flagSilent,
	})
}

var exportCmd = &cobra.Command{
	Use:   "export FILE",
	Short: "Write a backup bundle of the vault",
	Long: `Writes the sealed vault and public key to FILE. With --include-private the
private key is added, sealed under a separate bundle passphrase.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := vault.ExportOptions{IncludePrivate: flagIncludePrivate}
		if flagIncludePrivate {
			pass, err := bundlePassphrase(cmd, true)
			if err != nil {
				return err
			}
			defer util.WipeBytes(pass)
			opts.Passphrase = pass
		}
		m, err := openVault(cmd)
		if err != nil {
			return err
		}
		defer m.Close()
		b, err := m.Export(cmd.Context(), opts)
		if err != nil {
			return err
		}
		data, err := b.Marshal()
		if err != nil {
			return err
		}
		if err := util.WriteFileAtomic(args[0], data, nil); err != nil {
			return fmt.Errorf("writing bundle: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s Exported %d secrets to %s\n", success("✓"), len(b.Vault.Entries), args[0])
		if !b.HasPrivateKey() {
			fmt.Fprintf(cmd.OutOrStdout(), "%s\n", muted("public key only; restoring needs the private key"))
		}
		return nil
	},
}

var importCmd = &cobra.Command{
	Use:   "import FILE",
	Short: "Restore or merge a backup bundle",
	Long: `Restores the bundle in FILE into an empty vault directory. Over an existing
vault, --force replaces it and --mode skip|overwrite merges entries sealed to
the same key.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		mode, err := vault.ParseMergeMode(flagImportMode)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("reading bundle: %w", err)
		}
		b, err := vault.ParseBundle(data)
		if err != nil {
			return err
		}
		opts := vault.ImportOptions{Force: flagImportForce, Mode: mode}
		if b.HasPrivateKey() && mode == "" {
			pass, err := bundlePassphrase(cmd, false)
			if err != nil {
				return err
			}
			defer util.WipeBytes(pass)
			opts.Passphrase = pass
		}
		m, err := openVault(cmd)
		if err != nil {
			return err
		}
		defer m.Close()
		res, err := m.Import(cmd.Context(), data, opts)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if res.Replaced {
			fmt.Fprintf(out, "%s Restored %d secrets\n", success("✓"), res.Imported)
			return nil
		}
		fmt.Fprintf(out, "%s Imported %d, overwrote %d, skipped %d\n", success("✓"), res.Imported, res.Overwritten, res.Skipped)
		return nil
	},
}

func init() {
	exportCmd.Flags().BoolVar(&flagIncludePrivate, "include-private", false, "include the private key, sealed under a bundle passphrase")
	importCmd.Flags().BoolVar(&flagImportForce, "force", false, "replace an existing vault")
	importCmd.Flags().StringVar(&flagImportMode, "mode", "", "merge into an existing vault: skip or overwrite")
	rootCmd.AddCommand(exportCmd, importCmd)
}
