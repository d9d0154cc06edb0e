package storage

import (
	stdcrypto "crypto"
	"crypto/rsa"
	"time"

	"github.com/jmcleod/keysafe/crypto"
	icrypto "github.com/jmcleod/keysafe/internal/crypto"
)

const entryAADVersion = 1

// Entry is one sealed secret. The embedded Sealed fields are stored inline.
type Entry struct {
	crypto.Sealed
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SealEntry encrypts value for name in vaultID. The ciphertext is bound to
// both so it cannot be replayed under another name or vault.
func SealEntry(pub *rsa.PublicKey, vaultID, name string, value []byte) (*crypto.Sealed, error) {
	return crypto.HybridEncrypt(pub, value, crypto.WithAAD(icrypto.AADEntry(vaultID, name, entryAADVersion)))
}

// OpenEntry decrypts e, which must have been sealed for name in vaultID.
func OpenEntry(dec stdcrypto.Decrypter, vaultID, name string, e *Entry) ([]byte, error) {
	return crypto.HybridDecrypt(dec, &e.Sealed, crypto.WithAAD(icrypto.AADEntry(vaultID, name, entryAADVersion)))
}

func (e *Entry) clone() *Entry {
	if e == nil {
		return nil
	}
	return &Entry{
		Sealed:    *e.Sealed.Clone(),
		CreatedAt: e.CreatedAt,
		UpdatedAt: e.UpdatedAt,
	}
}
