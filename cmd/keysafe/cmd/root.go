package cmd

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/jmcleod/keysafe/auth"
	"github.com/jmcleod/keysafe/internal/logging"
	"github.com/jmcleod/keysafe/internal/settings"
	"github.com/jmcleod/keysafe/vault"
)

// Version is set at build time with -ldflags "-X ...cmd.Version=...".
var Version = "dev"

// Environment variables read instead of prompting.
const (
	envPassphrase       = "KEYSAFE_PASSPHRASE"
	envExportPassphrase = "KEYSAFE_EXPORT_PASSPHRASE"
)

var (
	flagDir      string
	flagConfig   string
	flagLogLevel string
	flagSilent   bool

	cfg      settings.Settings
	logger   = slog.Default()
	closeLog = func() error { return nil }
)

var rootCmd = &cobra.Command{
	Use:   "keysafe",
	Short: "keysafe keeps secrets encrypted on this machine",
	Long: `A local secrets vault. Values are sealed to an RSA key pair whose private
half can be guarded by a passphrase, the OS keychain or a FIDO2 token.`,
	SilenceUsage:       true,
	SilenceErrors:      true,
	PersistentPreRunE:  setup,
	PersistentPostRunE: func(*cobra.Command, []string) error { return closeLog() },
}

// Execute runs the command line and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(report(os.Stderr, err))
	}
}

func init() {
	f := rootCmd.PersistentFlags()
	f.StringVar(&flagDir, "dir", "", "vault directory (overrides settings)")
	f.StringVar(&flagConfig, "config", "", "settings file (default $KEYSAFE_CONFIG or the user config dir)")
	f.StringVar(&flagLogLevel, "log-level", "", "debug, info, warn or error")
	f.BoolVar(&flagSilent, "silent", false, "never prompt; fail when approval needs input")
}

func setup(cmd *cobra.Command, _ []string) error {
	path := flagConfig
	if path == "" {
		p, err := settings.Path()
		if err != nil {
			return err
		}
		path = p
	}
	s, err := settings.Load(path)
	if err != nil {
		return err
	}
	if flagDir != "" {
		s.VaultDir = flagDir
	}
	if flagLogLevel != "" {
		s.LogLevel = flagLogLevel
	}
	l, closeFn, err := logging.New(s, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	cfg, logger, closeLog = s, l, closeFn
	return nil
}

func backends() []auth.Authenticator {
	return []auth.Authenticator{
		auth.Passphrase{Source: auth.NewTerminalSource(envPassphrase)},
		auth.Keychain{},
		auth.FIDO2{Locator: auth.NewDefaultTokenLocator()},
	}
}

// openVault builds a manager from the loaded settings. Callers close it.
func openVault(cmd *cobra.Command) (*vault.Manager, error) {
	return vault.New(cfg.VaultDir,
		vault.WithLogger(logger),
		vault.WithBackends(backends()...),
		vault.WithAuthTimeout(cfg.AuthTimeout),
		vault.WithProofTTL(cfg.ProofTTL),
		vault.WithBatchWindow(cfg.BatchWindow),
		vault.WithLockTimeout(cfg.LockTimeout),
		vault.WithSilent(flagSilent),
		vault.WithEnrollOptions(cfg.EnrollOptions()),
		vault.WithObserver(newApprovalSpinner(cmd.ErrOrStderr(), flagSilent).observe),
	)
}

// exitError ends the command with a status code and no message.
type exitError struct{ code int }

func (e exitError) Error() string { return fmt.Sprintf("exit status %d", e.code) }

// Exit statuses by error category. 1 is left for generic failures and
// negative answers such as "exists" finding nothing.
var exitCodes = []struct {
	category error
	code     int
}{
	{vault.ErrConfiguration, 2},
	{vault.ErrAuthentication, 3},
	{vault.ErrValidation, 4},
	{vault.ErrCrypto, 5},
	{vault.ErrStorage, 6},
	{vault.ErrConflict, 7},
}

// report prints err and returns the exit status for it.
func report(w io.Writer, err error) int {
	var ee exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	fmt.Fprintf(w, "%s %s\n", failure("✗"), err)
	for _, c := range exitCodes {
		if errors.Is(err, c.category) {
			return c.code
		}
	}
	return 1
}

// resetGlobalState restores flag variables between in-process runs.
func resetGlobalState() {
	flagDir, flagConfig, flagLogLevel, flagSilent = "", "", "", false
	resetSecretFlags()
	resetBundleFlags()
	resetLogFlags()
	flagRotateYes = false
	flagInitAuth = string(auth.VariantNone)
	flagDestroyYes = false
}
