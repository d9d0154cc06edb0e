package settings

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "settings.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0600))
	return path
}

func TestLoadMissingFileGivesDefaults(t *testing.T) {
	t.Setenv(EnvHome, "")
	t.Setenv(EnvLogLevel, "")
	t.Setenv(EnvAuthTimeout, "")

	s, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	want := Default()
	assert.Equal(t, want, s)
	assert.Equal(t, 60*time.Second, s.AuthTimeout)
	assert.Equal(t, 2*time.Second, s.LockTimeout)
}

func TestLoadFile(t *testing.T) {
	t.Setenv(EnvHome, "")
	t.Setenv(EnvLogLevel, "")
	t.Setenv(EnvAuthTimeout, "")

	path := writeFile(t, `
vault_dir = "/srv/vault"
auth_timeout = "30s"
batch_window = "5m"
log_level = "debug"
log_format = "json"
kdf_profile = "moderate"

[keychain]
service = "work"

[fido2]
rp_id = "example.org"
`)
	s, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/srv/vault", s.VaultDir)
	assert.Equal(t, 30*time.Second, s.AuthTimeout)
	assert.Equal(t, 5*time.Minute, s.BatchWindow)
	assert.Equal(t, "json", s.LogFormat)
	// Unset keys keep their defaults.
	assert.Equal(t, 2*time.Minute, s.ProofTTL)

	opts := s.EnrollOptions()
	assert.Equal(t, "work", opts.KeychainService)
	assert.Equal(t, "example.org", opts.RPID)
	assert.Equal(t, uint32(3), opts.KDF.Time)
}

func TestEnvironmentOverrides(t *testing.T) {
	path := writeFile(t, `vault_dir = "/from/file"`)
	t.Setenv(EnvHome, "/from/env")
	t.Setenv(EnvLogLevel, "warn")
	t.Setenv(EnvAuthTimeout, "5s")

	s, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/from/env", s.VaultDir)
	assert.Equal(t, "warn", s.LogLevel)
	assert.Equal(t, 5*time.Second, s.AuthTimeout)

	t.Setenv(EnvAuthTimeout, "soon")
	_, err = Load(path)
	assert.ErrorContains(t, err, EnvAuthTimeout)
}

func TestLoadRejectsBadFiles(t *testing.T) {
	t.Setenv(EnvHome, "")
	t.Setenv(EnvLogLevel, "")
	t.Setenv(EnvAuthTimeout, "")

	tests := map[string]string{
		"unknown key":      `vault_dirr = "/x"`,
		"bad duration":     `auth_timeout = "sometime"`,
		"window too long":  `batch_window = "1h"`,
		"bad level":        `log_level = "chatty"`,
		"bad format":       `log_format = "xml"`,
		"unknown profile":  `kdf_profile = "paranoid"`,
		"not toml":         `vault_dir = `,
		"negative timeout": `auth_timeout = "-1s"`,
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeFile(t, body))
			assert.Error(t, err)
		})
	}
}

func TestExpandHome(t *testing.T) {
	t.Setenv(EnvHome, "")
	t.Setenv(EnvLogLevel, "")
	t.Setenv(EnvAuthTimeout, "")
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	s, err := Load(writeFile(t, `vault_dir = "~/secrets"`))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "secrets"), s.VaultDir)
}

func TestSaveRoundTrip(t *testing.T) {
	t.Setenv(EnvHome, "")
	t.Setenv(EnvLogLevel, "")
	t.Setenv(EnvAuthTimeout, "")

	path := filepath.Join(t.TempDir(), "nested", "settings.toml")
	s := Default()
	s.VaultDir = "/srv/vault"
	s.BatchWindow = 90 * time.Second
	s.FIDO2.Origin = "https://example.org"
	require.NoError(t, Save(path, s))

	info, err := os.Stat(path)
	require.NoError(t, err)
	if os.PathSeparator == '/' {
		assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
	}

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, s, loaded)
}

func TestPathHonoursEnvironment(t *testing.T) {
	t.Setenv(EnvConfig, "/etc/keysafe.toml")
	p, err := Path()
	require.NoError(t, err)
	assert.Equal(t, "/etc/keysafe.toml", p)
}
