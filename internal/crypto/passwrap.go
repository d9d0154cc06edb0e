package icrypto

import (
	"fmt"

	"github.com/jmcleod/keysafe/internal/util"
)

// PassphraseWrap holds data sealed under a passphrase-derived key.
type PassphraseWrap struct {
	Ver        int                 `json:"ver"`
	KDF        util.Argon2idParams `json:"kdf"`
	Salt       []byte              `json:"salt"`
	Nonce      []byte              `json:"nonce"`
	Ciphertext []byte              `json:"ciphertext"`
}

// SealWithPassphrase derives a fresh key from passphrase and a new salt, then
// seals plaintext with AES-256-GCM.
func SealWithPassphrase(passphrase, plaintext, aad []byte, params util.Argon2idParams) (*PassphraseWrap, error) {
	if len(passphrase) == 0 {
		return nil, fmt.Errorf("passphrase must not be empty")
	}
	salt, err := NewSalt()
	if err != nil {
		return nil, err
	}

	wrapKey, err := DerivePassphraseKEK(passphrase, salt, params)
	if err != nil {
		return nil, err
	}
	defer util.WipeBytes(wrapKey)

	sealed, err := util.EncryptAESWithAAD(plaintext, wrapKey, aad)
	if err != nil {
		return nil, err
	}

	return &PassphraseWrap{
		Ver:        1,
		KDF:        params,
		Salt:       salt,
		Nonce:      sealed[:util.GCMNonceSize],
		Ciphertext: sealed[util.GCMNonceSize:],
	}, nil
}

// OpenWithPassphrase reverses SealWithPassphrase.
func OpenWithPassphrase(passphrase []byte, wrap *PassphraseWrap, aad []byte) ([]byte, error) {
	if wrap == nil || wrap.Ver != 1 {
		return nil, fmt.Errorf("unsupported passphrase wrap")
	}
	if len(passphrase) == 0 {
		return nil, fmt.Errorf("passphrase must not be empty")
	}

	wrapKey, err := DerivePassphraseKEK(passphrase, wrap.Salt, wrap.KDF)
	if err != nil {
		return nil, err
	}
	defer util.WipeBytes(wrapKey)

	// Reconstruct nonce || ciphertext without mutating wrap fields.
	full := make([]byte, len(wrap.Nonce)+len(wrap.Ciphertext))
	copy(full, wrap.Nonce)
	copy(full[len(wrap.Nonce):], wrap.Ciphertext)

	return util.DecryptAESWithAAD(full, wrapKey, aad)
}
