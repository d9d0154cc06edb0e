package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/atotto/clipboard"
	"github.com/spf13/cobra"

	"github.com/jmcleod/keysafe/auth"
)

var (
	flagOverwrite bool
	flagDeleteYes bool
	flagClip      bool
)

func resetSecretFlags() {
	flagOverwrite = false
	flagDeleteYes = false
	flagClip = false
}

var addCmd = &cobra.Command{
	Use:   "add NAME [VALUE]",
	Short: "Store a secret",
	Long: `Stores VALUE under NAME. When VALUE is omitted it is read from the
terminal without echo, or as one line from standard input.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		var value []byte
		if len(args) == 2 {
			value = []byte(args[1])
		} else {
			if flagSilent {
				return errors.New("VALUE is required in silent mode")
			}
			src := auth.NewTerminalSource("")
			src.Out = cmd.ErrOrStderr()
			v, err := src.Passphrase(cmd.Context(), auth.Prompt{Message: fmt.Sprintf("Value for %s: ", name)})
			if err != nil {
				return err
			}
			value = v
		}
		m, err := openVault(cmd)
		if err != nil {
			return err
		}
		defer m.Close()
		if err := m.Add(cmd.Context(), name, value, flagOverwrite); err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "%s Stored %s\n", success("✓"), name)
		return nil
	},
}

var getCmd = &cobra.Command{
	Use:   "get NAME",
	Short: "Write a secret's value to standard output",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := openVault(cmd)
		if err != nil {
			return err
		}
		defer m.Close()
		return m.Reveal(cmd.Context(), args[0], func(value []byte) error {
			if flagClip {
				if err := clipboard.WriteAll(string(value)); err != nil {
					return fmt.Errorf("copying to clipboard: %w", err)
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "%s %s copied to the clipboard\n", success("✓"), args[0])
				return nil
			}
			_, err := cmd.OutOrStdout().Write(value)
			return err
		})
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List secret names",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		m, err := openVault(cmd)
		if err != nil {
			return err
		}
		defer m.Close()
		names, err := m.List(cmd.Context())
		if err != nil {
			return err
		}
		for _, n := range names {
			fmt.Fprintln(cmd.OutOrStdout(), n)
		}
		return nil
	},
}

var searchCmd = &cobra.Command{
	Use:   "search QUERY",
	Short: "List secret names containing QUERY, ignoring case",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := openVault(cmd)
		if err != nil {
			return err
		}
		defer m.Close()
		names, err := m.Search(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		for _, n := range names {
			fmt.Fprintln(cmd.OutOrStdout(), n)
		}
		return nil
	},
}

var infoCmd = &cobra.Command{
	Use:   "info NAME",
	Short: "Show when NAME was stored and its size, without decrypting it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := openVault(cmd)
		if err != nil {
			return err
		}
		defer m.Close()
		e, err := m.Info(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Name:    %s\n", e.Name)
		fmt.Fprintf(out, "Size:    %d bytes\n", e.Size)
		fmt.Fprintf(out, "Created: %s\n", e.CreatedAt.Local().Format(time.RFC1123))
		fmt.Fprintf(out, "Updated: %s\n", e.UpdatedAt.Local().Format(time.RFC1123))
		return nil
	},
}

var existsCmd = &cobra.Command{
	Use:   "exists NAME",
	Short: "Exit 0 when NAME is stored and 1 when it is not",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := openVault(cmd)
		if err != nil {
			return err
		}
		defer m.Close()
		ok, err := m.Exists(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if !ok {
			return exitError{1}
		}
		return nil
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete NAME",
	Short: "Remove a secret",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		if !flagDeleteYes {
			if flagSilent {
				return errors.New("refusing to delete without --yes")
			}
			if !confirm(cmd.InOrStdin(), cmd.ErrOrStderr(), fmt.Sprintf("Delete %s?", name)) {
				return exitError{1}
			}
		}
		m, err := openVault(cmd)
		if err != nil {
			return err
		}
		defer m.Close()
		if err := m.Delete(cmd.Context(), name); err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "%s Deleted %s\n", success("✓"), name)
		return nil
	},
}

func init() {
	getCmd.Flags().BoolVarP(&flagClip, "clip", "c", false, "copy the value to the clipboard instead of printing it")
	addCmd.Flags().BoolVar(&flagOverwrite, "overwrite", false, "replace an existing value")
	deleteCmd.Flags().BoolVarP(&flagDeleteYes, "yes", "y", false, "do not ask for confirmation")
	rootCmd.AddCommand(addCmd, getCmd, infoCmd, listCmd, searchCmd, existsCmd, deleteCmd)
}
