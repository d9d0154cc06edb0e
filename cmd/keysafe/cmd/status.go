package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the vault state without prompting",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		m, err := openVault(cmd)
		if err != nil {
			return err
		}
		defer m.Close()
		st, err := m.Status(cmd.Context())
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if !st.Initialized {
			fmt.Fprintf(out, "No vault in %s\n", st.Dir)
			fmt.Fprintf(out, "%s Run %s to create one\n", info("→"), warning("keysafe init"))
			return nil
		}
		fmt.Fprintf(out, "Vault:       %s\n", st.Dir)
		fmt.Fprintf(out, "ID:          %s\n", st.VaultID)
		fmt.Fprintf(out, "Auth:        %s\n", st.AuthVariant)
		fmt.Fprintf(out, "Private key: %s\n", st.KeyLocation)
		fmt.Fprintf(out, "Fingerprint: %s\n", st.Fingerprint)
		fmt.Fprintf(out, "Secrets:     %d\n", st.EntryCount)
		fmt.Fprintf(out, "Generation:  %d\n", st.Generation)
		fmt.Fprintf(out, "Created:     %s\n", st.CreatedAt.Local().Format(time.RFC1123))
		fmt.Fprintf(out, "Updated:     %s\n", st.UpdatedAt.Local().Format(time.RFC1123))
		for _, p := range st.Permissions {
			fmt.Fprintf(out, "%s %s has mode %04o, expected %04o\n", warning("!"), p.Path, p.Mode.Perm(), p.Want)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
