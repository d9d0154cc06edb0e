package crypto

import (
	stdcrypto "crypto"
	"crypto/rsa"
	"fmt"

	"github.com/jmcleod/keysafe/internal/util"
)

// Sealed is one hybrid-encrypted value: an AES-256-GCM ciphertext and tag
// plus the per-value AES key wrapped to the vault's RSA public key.
type Sealed struct {
	WrappedKey []byte `json:"wrapped_key"`
	Nonce      []byte `json:"nonce"`
	Ciphertext []byte `json:"ciphertext"`
	Tag        []byte `json:"tag"`
}

// SealOption is a functional option for HybridEncrypt and HybridDecrypt.
type SealOption func(*sealOptions)

type sealOptions struct {
	aad []byte
}

// WithAAD binds additional authenticated data to the GCM layer. The same AAD
// must be supplied to HybridDecrypt.
func WithAAD(aad []byte) SealOption {
	return func(o *sealOptions) {
		o.aad = aad
	}
}

// HybridEncrypt seals plaintext under a fresh AES-256 key and nonce, then
// wraps that key with RSA-OAEP-SHA256. Two calls never share key material.
func HybridEncrypt(pub *rsa.PublicKey, plaintext []byte, opts ...SealOption) (*Sealed, error) {
	if pub == nil {
		return nil, fmt.Errorf("%w: nil public key", ErrInvalidKey)
	}
	var o sealOptions
	for _, opt := range opts {
		opt(&o)
	}

	dataKey, err := util.NewAESKey()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCryptoFailure, err)
	}
	defer util.WipeBytes(dataKey)

	nonce, ciphertext, tag, err := util.SealAESGCM(plaintext, dataKey, o.aad)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCryptoFailure, err)
	}

	wrapped, err := util.EncryptOAEP(pub, dataKey, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCryptoFailure, err)
	}

	return &Sealed{
		WrappedKey: wrapped,
		Nonce:      nonce,
		Ciphertext: ciphertext,
		Tag:        tag,
	}, nil
}

// HybridDecrypt unwraps the data key with priv and opens the GCM ciphertext.
// Every failure, including a key that does not belong to this value, is
// reported as ErrDecryptionFailure.
func HybridDecrypt(priv stdcrypto.Decrypter, sealed *Sealed, opts ...SealOption) ([]byte, error) {
	if priv == nil || sealed == nil {
		return nil, ErrDecryptionFailure
	}
	var o sealOptions
	for _, opt := range opts {
		opt(&o)
	}

	dataKey, err := util.DecryptOAEP(priv, sealed.WrappedKey, nil)
	if err != nil {
		return nil, ErrDecryptionFailure
	}
	defer util.WipeBytes(dataKey)

	plaintext, err := util.OpenAESGCM(sealed.Nonce, sealed.Ciphertext, sealed.Tag, dataKey, o.aad)
	if err != nil {
		return nil, ErrDecryptionFailure
	}
	return plaintext, nil
}

// Clone returns a deep copy of s.
func (s *Sealed) Clone() *Sealed {
	if s == nil {
		return nil
	}
	return &Sealed{
		WrappedKey: util.CopyBytes(s.WrappedKey),
		Nonce:      util.CopyBytes(s.Nonce),
		Ciphertext: util.CopyBytes(s.Ciphertext),
		Tag:        util.CopyBytes(s.Tag),
	}
}

// Validate checks field sizes without attempting decryption.
func (s *Sealed) Validate() error {
	switch {
	case len(s.WrappedKey) < util.RSAKeyBits/8:
		return fmt.Errorf("wrapped key has %d bytes", len(s.WrappedKey))
	case len(s.Nonce) != util.GCMNonceSize:
		return fmt.Errorf("nonce has %d bytes", len(s.Nonce))
	case len(s.Tag) != util.GCMTagSize:
		return fmt.Errorf("tag has %d bytes", len(s.Tag))
	}
	return nil
}
