package auth

import (
	"encoding/json"
	"fmt"

	"github.com/go-webauthn/webauthn/webauthn"

	icrypto "github.com/jmcleod/keysafe/internal/crypto"
	"github.com/jmcleod/keysafe/internal/util"
)

// Variant names an authenticator kind.
type Variant string

const (
	VariantNone       Variant = "none"
	VariantPassphrase Variant = "passphrase"
	VariantKeychain   Variant = "keychain"
	VariantFIDO2      Variant = "fido2"
)

const keyWrapVersion = 1

// ParseVariant accepts the canonical names plus a few aliases used on the command line.
func ParseVariant(s string) (Variant, error) {
	switch s {
	case "none", "":
		return VariantNone, nil
	case "passphrase", "password":
		return VariantPassphrase, nil
	case "keychain", "biometric", "os":
		return VariantKeychain, nil
	case "fido2", "yubikey", "hardware":
		return VariantFIDO2, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedVariant, s)
	}
}

func (v Variant) String() string {
	return string(v)
}

// Config records which authenticator guards the private key and the
// parameters needed to re-derive its KEK. It holds no secrets.
type Config struct {
	Variant    Variant           `json:"variant"`
	KeyID      string            `json:"key_id,omitempty"`
	Passphrase *PassphraseConfig `json:"passphrase,omitempty"`
	Keychain   *KeychainConfig   `json:"keychain,omitempty"`
	FIDO2      *FIDO2Config      `json:"fido2,omitempty"`
}

type PassphraseConfig struct {
	Salt []byte              `json:"salt"`
	KDF  util.Argon2idParams `json:"kdf"`
}

type KeychainConfig struct {
	Service string `json:"service"`
	Account string `json:"account"`
}

type FIDO2Config struct {
	RPID       string              `json:"rp_id"`
	RPName     string              `json:"rp_name"`
	Origin     string              `json:"origin"`
	UserID     []byte              `json:"user_id"`
	Credential webauthn.Credential `json:"credential"`
	HMACSalt   []byte              `json:"hmac_salt"`
}

// NoneConfig is the configuration of an unprotected vault.
func NoneConfig() Config {
	return Config{Variant: VariantNone}
}

// Protected reports whether the private key is wrapped under a KEK.
func (c Config) Protected() bool {
	return c.Variant != VariantNone
}

// AAD is the associated data the private key wrapping is bound to.
func (c Config) AAD() []byte {
	return icrypto.AADKeyWrap(c.KeyID, string(c.Variant), keyWrapVersion)
}

// Validate checks the variant parameters are present and well-formed.
func (c Config) Validate() error {
	switch c.Variant {
	case VariantNone:
		return nil
	case VariantPassphrase:
		if c.Passphrase == nil || len(c.Passphrase.Salt) < 16 {
			return fmt.Errorf("%w: passphrase salt missing", ErrInvalidConfig)
		}
		if err := c.Passphrase.KDF.Validate(); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
	case VariantKeychain:
		if c.Keychain == nil || c.Keychain.Service == "" || c.Keychain.Account == "" {
			return fmt.Errorf("%w: keychain item missing", ErrInvalidConfig)
		}
	case VariantFIDO2:
		f := c.FIDO2
		if f == nil || f.RPID == "" || f.Origin == "" || len(f.UserID) == 0 || len(f.Credential.ID) == 0 || len(f.HMACSalt) != 32 {
			return fmt.Errorf("%w: fido2 credential incomplete", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedVariant, c.Variant)
	}
	if c.KeyID == "" {
		return fmt.Errorf("%w: key id missing", ErrInvalidConfig)
	}
	return nil
}

// Equal reports whether two configurations describe the same gate.
func (c Config) Equal(o Config) bool {
	a, errA := json.Marshal(c)
	b, errB := json.Marshal(o)
	return errA == nil && errB == nil && string(a) == string(b)
}

// Location describes where the material that unlocks the private key lives.
func (c Config) Location() string {
	switch c.Variant {
	case VariantPassphrase:
		return "file, wrapped with a passphrase-derived key"
	case VariantKeychain:
		return "file, wrapped with a key held in the OS keychain"
	case VariantFIDO2:
		return "file, wrapped with a key derived on a FIDO2 authenticator"
	default:
		return "file, unwrapped"
	}
}
