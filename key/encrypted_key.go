package key

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jmcleod/keysafe/internal/util"
)

// ErrWrongKey is returned when an EncryptedKey is opened with a key other than the one that sealed it.
var ErrWrongKey = errors.New("encrypted key sealed by a different key")

// EncryptedKey is key material sealed under a KEK, as stored in the
// private_key file when an authenticator guards it.
type EncryptedKey interface {
	ID() string
	// EncryptedBy names the KEK that sealed the material.
	EncryptedBy() string
	Type() Type
	// Open returns the plaintext key material. The caller owns and must wipe it.
	Open(Decrypter) ([]byte, error)
	// Rotate re-seals the material from d's KEK to e's in place.
	Rotate(d Decrypter, e Encrypter) error
}

type encryptedKey struct {
	KeyID   string `json:"key_id"`
	KEKID   string `json:"kek_id"`
	KeyType Type   `json:"type"`
	Bytes   []byte `json:"ciphertext"`
}

func (ek *encryptedKey) ID() string          { return ek.KeyID }
func (ek *encryptedKey) Type() Type          { return ek.KeyType }
func (ek *encryptedKey) EncryptedBy() string { return ek.KEKID }

func (ek *encryptedKey) Open(d Decrypter) ([]byte, error) {
	if ek.KEKID != d.ID() {
		return nil, fmt.Errorf("%w: expected %s but got %s", ErrWrongKey, ek.KEKID, d.ID())
	}
	return d.Decrypt(ek.Bytes)
}

func (ek *encryptedKey) Rotate(d Decrypter, e Encrypter) error {
	plain, err := ek.Open(d)
	if err != nil {
		return fmt.Errorf("decrypting key for rotation: %w", err)
	}
	defer util.WipeBytes(plain)

	sealed, err := e.Encrypt(plain)
	if err != nil {
		return fmt.Errorf("encrypting key for rotation: %w", err)
	}
	ek.KEKID = e.ID()
	ek.Bytes = sealed
	return nil
}

// Seal encrypts plaintext key material of the given type under e.
func Seal(e Encrypter, id string, keyType Type, plaintext []byte) (EncryptedKey, error) {
	sealed, err := e.Encrypt(plaintext)
	if err != nil {
		return nil, fmt.Errorf("encrypting key: %w", err)
	}
	return &encryptedKey{KeyID: id, KEKID: e.ID(), KeyType: keyType, Bytes: sealed}, nil
}

// UnmarshalEncryptedKey deserializes an EncryptedKey from JSON.
func UnmarshalEncryptedKey(message json.RawMessage) (EncryptedKey, error) {
	ek := &encryptedKey{}
	if err := json.Unmarshal(message, ek); err != nil {
		return nil, fmt.Errorf("unmarshaling encrypted key JSON: %w", err)
	}
	if ek.KeyID == "" || ek.KEKID == "" || len(ek.Bytes) == 0 {
		return nil, errors.New("unmarshaling encrypted key JSON: missing fields")
	}
	return ek, nil
}
