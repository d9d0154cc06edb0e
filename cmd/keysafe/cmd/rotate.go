package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var flagRotateYes bool

var rotateCmd = &cobra.Command{
	Use:   "rotate",
	Short: "Replace the key pair and re-encrypt every secret",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if !flagRotateYes {
			if flagSilent {
				return errors.New("refusing to rotate without --yes")
			}
			if !confirm(cmd.InOrStdin(), cmd.ErrOrStderr(), "Generate a new key pair and re-encrypt every secret?") {
				return exitError{1}
			}
		}
		m, err := openVault(cmd)
		if err != nil {
			return err
		}
		defer m.Close()
		res, err := m.Rotate(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s Re-encrypted %d of %d secrets\n", success("✓"), res.Reencrypted, res.Total)
		fmt.Fprintf(cmd.OutOrStdout(), "  fingerprint: %s\n", res.Fingerprint)
		return nil
	},
}

func init() {
	rotateCmd.Flags().BoolVarP(&flagRotateYes, "yes", "y", false, "do not ask for confirmation")
	rootCmd.AddCommand(rotateCmd)
}
