package icrypto

import (
	"fmt"

	"github.com/jmcleod/keysafe/internal/util"
)

const (
	fido2KEKInfo = "keysafe:fido2-kek:v1"
	minSaltLen   = 16
)

// DerivePassphraseKEK stretches a passphrase into a 32-byte key-encryption key.
// The passphrase is NFKD-normalized first so equivalent Unicode input yields the same key.
func DerivePassphraseKEK(passphrase, salt []byte, params util.Argon2idParams) ([]byte, error) {
	if len(passphrase) == 0 {
		return nil, fmt.Errorf("passphrase must not be empty")
	}
	normalized := util.NormalizeBytes(passphrase)
	kek, err := util.DeriveArgon2idKey(normalized, salt, params)
	if len(normalized) > 0 && &normalized[0] != &passphrase[0] {
		util.WipeBytes(normalized)
	}
	if err != nil {
		return nil, fmt.Errorf("deriving passphrase KEK: %w", err)
	}
	return kek, nil
}

// DeriveFIDO2KEK expands an authenticator hmac-secret output into a KEK bound
// to the credential that produced it.
func DeriveFIDO2KEK(hmacSecret, credentialID []byte) ([]byte, error) {
	if len(hmacSecret) < 32 {
		return nil, fmt.Errorf("hmac-secret output too short: %d bytes", len(hmacSecret))
	}
	return util.HKDF(hmacSecret, credentialID, []byte(fido2KEKInfo))
}

// NewSalt returns a random salt suitable for DerivePassphraseKEK.
func NewSalt() ([]byte, error) {
	return util.RandomBytes(2 * minSaltLen)
}
