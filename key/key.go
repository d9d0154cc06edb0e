package key

import (
	"errors"
	"fmt"

	"github.com/awnumar/memguard"

	"github.com/jmcleod/keysafe/internal/util"
)

// ErrKeyDestroyed is returned when a destroyed Key is used.
var ErrKeyDestroyed = errors.New("key destroyed")

// Encrypter can encrypt data and identify itself.
type Encrypter interface {
	ID() string
	Encrypt([]byte) ([]byte, error)
}

// Decrypter can decrypt data and identify itself.
type Decrypter interface {
	ID() string
	Decrypt([]byte) ([]byte, error)
}

// Key is a symmetric key-encryption key. Its bytes live in a memguard
// enclave and are only exposed for the duration of one Encrypt or Decrypt.
type Key interface {
	Type() Type
	Destroy()
	Encrypter
	Decrypter
}

type key struct {
	keyID   string
	keyType Type
	aad     []byte
	enclave *memguard.Enclave
}

func (k *key) ID() string {
	return k.keyID
}

func (k *key) Type() Type {
	return k.keyType
}

func (k *key) Encrypt(plainText []byte) ([]byte, error) {
	buf, err := k.open()
	if err != nil {
		return nil, err
	}
	defer buf.Destroy()
	return util.EncryptAESWithAAD(plainText, buf.Bytes(), k.aad)
}

func (k *key) Decrypt(cipherText []byte) ([]byte, error) {
	buf, err := k.open()
	if err != nil {
		return nil, err
	}
	defer buf.Destroy()
	return util.DecryptAESWithAAD(cipherText, buf.Bytes(), k.aad)
}

func (k *key) Destroy() {
	k.enclave = nil
}

func (k *key) open() (*memguard.LockedBuffer, error) {
	if k.enclave == nil {
		return nil, ErrKeyDestroyed
	}
	buf, err := k.enclave.Open()
	if err != nil {
		return nil, fmt.Errorf("opening key enclave: %w", err)
	}
	return buf, nil
}

// NewKEK takes ownership of raw, which must be 32 bytes, moving it into an
// enclave and wiping the caller's slice. Every Encrypt and Decrypt binds aad.
func NewKEK(id string, raw, aad []byte) (Key, error) {
	if len(raw) != util.AESKeySize {
		util.WipeBytes(raw)
		return nil, fmt.Errorf("invalid KEK size: got %d, want %d", len(raw), util.AESKeySize)
	}
	return &key{
		keyID:   id,
		keyType: KEK,
		aad:     util.CopyBytes(aad),
		enclave: memguard.NewEnclave(raw),
	}, nil
}

// NewKEKFromEnclave builds a Key around an existing enclave without copying it out.
func NewKEKFromEnclave(id string, enclave *memguard.Enclave, aad []byte) (Key, error) {
	if enclave == nil || enclave.Size() != util.AESKeySize {
		return nil, fmt.Errorf("invalid KEK enclave")
	}
	return &key{
		keyID:   id,
		keyType: KEK,
		aad:     util.CopyBytes(aad),
		enclave: enclave,
	}, nil
}
