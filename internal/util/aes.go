package util

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"
)

const (
	AESKeySize   = 32
	GCMNonceSize = 12
	GCMTagSize   = 16
)

// EncryptAESWithAAD seals plainText with AES-256-GCM and returns nonce || ciphertext || tag.
func EncryptAESWithAAD(plainText, rawKey, aad []byte) ([]byte, error) {
	gcm, err := newGCM(rawKey)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err = io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("generating nonce: %w", err)
	}

	return gcm.Seal(nonce, nonce, plainText, aad), nil
}

// DecryptAESWithAAD opens the nonce || ciphertext || tag layout produced by EncryptAESWithAAD.
func DecryptAESWithAAD(cipherText, rawKey, aad []byte) ([]byte, error) {
	gcm, err := newGCM(rawKey)
	if err != nil {
		return nil, err
	}

	if len(cipherText) < gcm.NonceSize()+gcm.Overhead() {
		return nil, fmt.Errorf("ciphertext shorter than nonce and tag")
	}

	nonce, cipherText := cipherText[:gcm.NonceSize()], cipherText[gcm.NonceSize():]

	plainText, err := gcm.Open(nil, nonce, cipherText, aad)
	if err != nil {
		return nil, fmt.Errorf("decrypting ciphertext: %w", err)
	}

	return plainText, nil
}

// SealAESGCM is EncryptAESWithAAD with the nonce, ciphertext and tag returned separately.
func SealAESGCM(plainText, rawKey, aad []byte) (nonce, cipherText, tag []byte, err error) {
	sealed, err := EncryptAESWithAAD(plainText, rawKey, aad)
	if err != nil {
		return nil, nil, nil, err
	}
	body := sealed[GCMNonceSize:]
	split := len(body) - GCMTagSize
	return sealed[:GCMNonceSize], body[:split], body[split:], nil
}

// OpenAESGCM reverses SealAESGCM. The inputs are not modified.
func OpenAESGCM(nonce, cipherText, tag, rawKey, aad []byte) ([]byte, error) {
	if len(nonce) != GCMNonceSize {
		return nil, fmt.Errorf("invalid nonce size: got %d, want %d", len(nonce), GCMNonceSize)
	}
	if len(tag) != GCMTagSize {
		return nil, fmt.Errorf("invalid tag size: got %d, want %d", len(tag), GCMTagSize)
	}

	full := make([]byte, 0, len(nonce)+len(cipherText)+len(tag))
	full = append(full, nonce...)
	full = append(full, cipherText...)
	full = append(full, tag...)

	return DecryptAESWithAAD(full, rawKey, aad)
}

func NewAESKey() ([]byte, error) {
	rawKey := make([]byte, AESKeySize)
	if _, err := rand.Read(rawKey); err != nil {
		return nil, fmt.Errorf("generating AES key: %w", err)
	}
	return rawKey, nil
}

func newGCM(rawKey []byte) (cipher.AEAD, error) {
	if len(rawKey) != AESKeySize {
		return nil, fmt.Errorf("invalid AES key size: got %d, want %d", len(rawKey), AESKeySize)
	}

	block, err := aes.NewCipher(rawKey)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("creating GCM: %w", err)
	}
	return gcm, nil
}
