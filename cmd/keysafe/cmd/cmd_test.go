package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcleod/keysafe/internal/settings"
	"github.com/jmcleod/keysafe/storage"
	"github.com/jmcleod/keysafe/vault"
)

func TestMain(m *testing.M) {
	color.NoColor = true
	os.Exit(m.Run())
}

type result struct {
	stdout, stderr string
	err            error
}

// run executes the command line in-process against an isolated settings
// file.
func run(t *testing.T, stdin string, args ...string) result {
	t.Helper()
	resetGlobalState()
	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return result{stdout: out.String(), stderr: errOut.String(), err: err}
}

func isolate(t *testing.T) string {
	t.Helper()
	base := t.TempDir()
	t.Setenv(settings.EnvConfig, filepath.Join(base, "settings.toml"))
	t.Setenv(settings.EnvHome, "")
	t.Setenv(settings.EnvLogLevel, "")
	t.Setenv(settings.EnvAuthTimeout, "")
	t.Setenv(envPassphrase, "")
	t.Setenv(envExportPassphrase, "")
	return filepath.Join(base, "vault")
}

func TestSecretLifecycle(t *testing.T) {
	dir := isolate(t)

	r := run(t, "", "--dir", dir, "init")
	require.NoError(t, r.err, r.stderr)
	assert.Contains(t, r.stdout, "Vault created")

	require.NoError(t, run(t, "", "--dir", dir, "add", "API_KEY", "s3cret").err)
	require.NoError(t, run(t, "", "--dir", dir, "add", "DB_PASSWORD", "hunter2").err)

	r = run(t, "", "--dir", dir, "add", "API_KEY", "again")
	assert.ErrorIs(t, r.err, vault.ErrEntryExists)
	require.NoError(t, run(t, "", "--dir", dir, "add", "--overwrite", "API_KEY", "rotated").err)

	r = run(t, "", "--dir", dir, "get", "API_KEY")
	require.NoError(t, r.err)
	assert.Equal(t, "rotated", r.stdout, "values are written raw")

	r = run(t, "", "--dir", dir, "list")
	require.NoError(t, r.err)
	assert.Equal(t, "API_KEY\nDB_PASSWORD\n", r.stdout)

	r = run(t, "", "--dir", dir, "search", "pass")
	require.NoError(t, r.err)
	assert.Equal(t, "DB_PASSWORD\n", r.stdout)

	assert.NoError(t, run(t, "", "--dir", dir, "exists", "API_KEY").err)
	assert.Equal(t, exitError{1}, run(t, "", "--dir", dir, "exists", "MISSING").err)
	assert.Equal(t, exitError{1}, run(t, "", "--dir", dir, "exists", "not a name").err)

	r = run(t, "", "--dir", dir, "info", "API_KEY")
	require.NoError(t, r.err)
	assert.Contains(t, r.stdout, "Name:    API_KEY")
	assert.Contains(t, r.stdout, "Size:    7 bytes")
	assert.NotContains(t, r.stdout, "rotated")
	assert.ErrorIs(t, run(t, "", "--dir", dir, "info", "MISSING").err, vault.ErrEntryNotFound)

	// A declined confirmation leaves the secret alone.
	assert.Equal(t, exitError{1}, run(t, "n\n", "--dir", dir, "delete", "API_KEY").err)
	require.NoError(t, run(t, "y\n", "--dir", dir, "delete", "API_KEY").err)
	assert.Equal(t, exitError{1}, run(t, "", "--dir", dir, "exists", "API_KEY").err)

	r = run(t, "", "--dir", dir, "status")
	require.NoError(t, r.err)
	assert.Contains(t, r.stdout, "Secrets:     1")
	assert.Contains(t, r.stdout, "Auth:        none")

	r = run(t, "", "--dir", dir, "log", "--verify")
	require.NoError(t, r.err)
	assert.Contains(t, r.stdout, "Result: VALID")

	r = run(t, "", "--dir", dir, "log", "--limit", "1")
	require.NoError(t, r.err)
	assert.Contains(t, r.stdout, "delete")
	assert.Equal(t, 1, strings.Count(r.stdout, "\n"))
}

func TestSilentRefusesPrompts(t *testing.T) {
	dir := isolate(t)
	require.NoError(t, run(t, "", "--dir", dir, "init").err)
	require.NoError(t, run(t, "", "--dir", dir, "add", "A", "alpha").err)

	assert.Error(t, run(t, "", "--dir", dir, "--silent", "delete", "A").err)
	assert.Error(t, run(t, "", "--dir", dir, "--silent", "add", "B").err)
	assert.Error(t, run(t, "", "--dir", dir, "--silent", "rotate").err)
	require.NoError(t, run(t, "", "--dir", dir, "--silent", "delete", "--yes", "A").err)
}

func TestStatusBeforeInit(t *testing.T) {
	dir := isolate(t)
	r := run(t, "", "--dir", dir, "status")
	require.NoError(t, r.err)
	assert.Contains(t, r.stdout, "No vault in")
	assert.NoDirExists(t, dir)

	r = run(t, "", "--dir", dir, "list")
	assert.ErrorIs(t, r.err, vault.ErrNotInitialized)
}

func TestRotateCommand(t *testing.T) {
	dir := isolate(t)
	require.NoError(t, run(t, "", "--dir", dir, "init").err)
	require.NoError(t, run(t, "", "--dir", dir, "add", "A", "alpha").err)

	r := run(t, "", "--dir", dir, "rotate", "--yes")
	require.NoError(t, r.err)
	assert.Contains(t, r.stdout, "Re-encrypted 1 of 1 secrets")

	r = run(t, "", "--dir", dir, "get", "A")
	require.NoError(t, r.err)
	assert.Equal(t, "alpha", r.stdout)
}

func TestPassphraseFromEnvironment(t *testing.T) {
	dir := isolate(t)
	t.Setenv(envPassphrase, "correct horse battery")

	require.NoError(t, run(t, "", "--dir", dir, "init", "--auth", "passphrase").err)
	require.NoError(t, run(t, "", "--dir", dir, "--silent", "add", "A", "alpha").err)
	r := run(t, "", "--dir", dir, "--silent", "get", "A")
	require.NoError(t, r.err)
	assert.Equal(t, "alpha", r.stdout)

	t.Setenv(envPassphrase, "wrong passphrase")
	r = run(t, "", "--dir", dir, "--silent", "get", "A")
	assert.ErrorIs(t, r.err, vault.ErrAuthenticationFailed)

	r = run(t, "", "--dir", dir, "init", "--auth", "carrier-pigeon")
	assert.Error(t, r.err)
}

func TestExportImport(t *testing.T) {
	src := isolate(t)
	require.NoError(t, run(t, "", "--dir", src, "init").err)
	require.NoError(t, run(t, "", "--dir", src, "add", "A", "alpha").err)

	bundle := filepath.Join(t.TempDir(), "backup.json")
	t.Setenv(envExportPassphrase, "bundle passphrase")
	r := run(t, "", "--dir", src, "export", "--include-private", bundle)
	require.NoError(t, r.err, r.stderr)
	info, err := os.Stat(bundle)
	require.NoError(t, err)
	if os.PathSeparator == '/' {
		assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
	}

	dst := filepath.Join(t.TempDir(), "restored")
	r = run(t, "", "--dir", dst, "import", bundle)
	require.NoError(t, r.err, r.stderr)
	assert.Contains(t, r.stdout, "Restored 1 secrets")

	r = run(t, "", "--dir", dst, "get", "A")
	require.NoError(t, r.err)
	assert.Equal(t, "alpha", r.stdout)

	// Importing again over the restored vault needs --force or --mode.
	r = run(t, "", "--dir", dst, "import", bundle)
	assert.ErrorIs(t, r.err, vault.ErrImportConflict)
	r = run(t, "", "--dir", dst, "import", "--mode", "skip", bundle)
	require.NoError(t, r.err)
	assert.Contains(t, r.stdout, "skipped 1")

	assert.Error(t, run(t, "", "--dir", dst, "import", "--mode", "replace", bundle).err)
}

func TestConfigShow(t *testing.T) {
	dir := isolate(t)
	r := run(t, "", "--dir", dir, "--log-level", "debug", "config", "show")
	require.NoError(t, r.err)
	assert.Contains(t, r.stdout, `log_level = "debug"`)
	assert.Contains(t, r.stdout, dir)

	require.NoError(t, run(t, "", "config", "init").err)
	assert.FileExists(t, os.Getenv(settings.EnvConfig))
	assert.Error(t, run(t, "", "config", "init").err)
}

func TestReportExitCodes(t *testing.T) {
	tests := []struct {
		err  error
		code int
	}{
		{exitError{1}, 1},
		{vault.ErrNotInitialized, 1},
		{run(t, "", "--dir", isolate(t), "list").err, 2},
		{os.ErrPermission, 1},
	}
	for _, tt := range tests {
		var buf bytes.Buffer
		assert.Equal(t, tt.code, report(&buf, tt.err), "%v", tt.err)
	}

	var buf bytes.Buffer
	report(&buf, exitError{3})
	assert.Empty(t, buf.String(), "exit errors print nothing")
}

func TestConfirm(t *testing.T) {
	var w bytes.Buffer
	assert.True(t, confirm(strings.NewReader("y\n"), &w, "Go?"))
	assert.True(t, confirm(strings.NewReader("YES"), &w, "Go?"))
	assert.False(t, confirm(strings.NewReader("\n"), &w, "Go?"))
	assert.False(t, confirm(strings.NewReader(""), &w, "Go?"))
	assert.Contains(t, w.String(), "Go? [y/N]: ")
}

func TestPrintChainReport(t *testing.T) {
	var buf bytes.Buffer
	printChainReport(&buf, "/vault", storage.VerifyChain(nil))
	assert.Contains(t, buf.String(), "[PASS] empty_chain")
	assert.Contains(t, buf.String(), "Result: VALID")

	broken := storage.ChainReport{
		EventCount: 2,
		Checks: []storage.ChainCheck{
			{Name: "genesis_anchor", Status: storage.CheckPass},
			{Name: "chain_continuity", Status: storage.CheckFail, Detail: "event 1 mismatched"},
			{Name: "monotonic_timestamps", Status: storage.CheckWarn, Detail: "event 1 earlier"},
		},
	}
	buf.Reset()
	printChainReport(&buf, "/vault", broken)
	out := buf.String()
	assert.Contains(t, out, "[FAIL] chain_continuity: event 1 mismatched")
	assert.Contains(t, out, "[WARN] monotonic_timestamps")
	assert.Contains(t, out, "Result: INVALID (1 error(s), 1 warning(s))")
}
