// Package settings loads the user's keysafe configuration from a TOML file
// and the environment.
package settings

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/jmcleod/keysafe/auth"
	"github.com/jmcleod/keysafe/internal/util"
)

// Environment variables consulted by Load.
const (
	EnvConfig      = "KEYSAFE_CONFIG"
	EnvHome        = "KEYSAFE_HOME"
	EnvLogLevel    = "KEYSAFE_LOG_LEVEL"
	EnvAuthTimeout = "KEYSAFE_AUTH_TIMEOUT"
)

type Keychain struct {
	Service string `toml:"service,omitempty"`
}

type FIDO2 struct {
	RPID   string `toml:"rp_id,omitempty"`
	RPName string `toml:"rp_name,omitempty"`
	Origin string `toml:"origin,omitempty"`
}

// Settings is the on-disk configuration. Durations are written as strings
// such as "60s".
type Settings struct {
	VaultDir    string        `toml:"vault_dir"`
	AuthTimeout time.Duration `toml:"auth_timeout"`
	ProofTTL    time.Duration `toml:"proof_ttl"`
	BatchWindow time.Duration `toml:"batch_window"`
	LockTimeout time.Duration `toml:"lock_timeout"`
	LogLevel    string        `toml:"log_level"`
	LogFormat   string        `toml:"log_format"`
	LogFile     string        `toml:"log_file,omitempty"`
	KDFProfile  string        `toml:"kdf_profile"`
	Keychain    Keychain      `toml:"keychain"`
	FIDO2       FIDO2         `toml:"fido2"`
}

// Default returns the settings used when no file exists.
func Default() Settings {
	dir := ".keysafe"
	if home, err := os.UserHomeDir(); err == nil {
		dir = filepath.Join(home, ".keysafe")
	}
	return Settings{
		VaultDir:    dir,
		AuthTimeout: 60 * time.Second,
		ProofTTL:    2 * time.Minute,
		LockTimeout: 2 * time.Second,
		LogLevel:    "info",
		LogFormat:   "text",
		KDFProfile:  "interactive",
	}
}

// Path returns $KEYSAFE_CONFIG, or settings.toml under the user config
// directory.
func Path() (string, error) {
	if p := os.Getenv(EnvConfig); p != "" {
		return p, nil
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locating config directory: %w", err)
	}
	return filepath.Join(dir, "keysafe", "settings.toml"), nil
}

// Load reads path over the defaults and applies environment overrides. A
// missing file is not an error. Unknown keys are, so typos do not go
// unnoticed.
func Load(path string) (Settings, error) {
	s := Default()
	md, err := toml.DecodeFile(path, &s)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return Settings{}, fmt.Errorf("reading %s: %w", path, err)
	default:
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, len(undecoded))
			for i, k := range undecoded {
				keys[i] = k.String()
			}
			return Settings{}, fmt.Errorf("%s: unknown settings: %s", path, strings.Join(keys, ", "))
		}
	}
	if err := s.applyEnv(); err != nil {
		return Settings{}, err
	}
	s.VaultDir = expandHome(s.VaultDir)
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

func (s *Settings) applyEnv() error {
	if v := os.Getenv(EnvHome); v != "" {
		s.VaultDir = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		s.LogLevel = v
	}
	if v := os.Getenv(EnvAuthTimeout); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvAuthTimeout, err)
		}
		s.AuthTimeout = d
	}
	return nil
}

func expandHome(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~"))
}

// Validate checks ranges and enumerations.
func (s Settings) Validate() error {
	if s.VaultDir == "" {
		return errors.New("vault_dir must be set")
	}
	if s.AuthTimeout <= 0 {
		return errors.New("auth_timeout must be positive")
	}
	if s.ProofTTL < 0 || s.LockTimeout < 0 {
		return errors.New("proof_ttl and lock_timeout cannot be negative")
	}
	if s.BatchWindow < 0 || s.BatchWindow > auth.MaxBatchWindow {
		return fmt.Errorf("batch_window must be between 0 and %s", auth.MaxBatchWindow)
	}
	switch strings.ToLower(s.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log_level %q", s.LogLevel)
	}
	switch s.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log_format %q", s.LogFormat)
	}
	if _, err := util.Argon2idProfile(s.KDFProfile); err != nil {
		return err
	}
	return nil
}

// EnrollOptions converts the authenticator settings for a new enrollment.
func (s Settings) EnrollOptions() auth.EnrollOptions {
	kdf, err := util.Argon2idProfile(s.KDFProfile)
	if err != nil {
		kdf = util.DefaultArgon2idParams()
	}
	return auth.EnrollOptions{
		KDF:             kdf,
		KeychainService: s.Keychain.Service,
		RPID:            s.FIDO2.RPID,
		RPName:          s.FIDO2.RPName,
		Origin:          s.FIDO2.Origin,
	}
}

// Save writes s to path, creating the parent directory.
func Save(path string, s Settings) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	if err := Encode(f, s); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Encode writes s as TOML.
func Encode(w io.Writer, s Settings) error {
	return toml.NewEncoder(w).Encode(s)
}
