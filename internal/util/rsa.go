package util

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"fmt"
)

const RSAKeyBits = 2048

func GenerateRSAKey() (*rsa.PrivateKey, error) {
	priv, err := rsa.GenerateKey(rand.Reader, RSAKeyBits)
	if err != nil {
		return nil, fmt.Errorf("generating RSA key: %w", err)
	}
	return priv, nil
}

// EncryptOAEP wraps msg to pub with RSA-OAEP-SHA256.
func EncryptOAEP(pub *rsa.PublicKey, msg, label []byte) ([]byte, error) {
	ct, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, pub, msg, label)
	if err != nil {
		return nil, fmt.Errorf("rsa-oaep encrypt: %w", err)
	}
	return ct, nil
}

// DecryptOAEP unwraps an RSA-OAEP-SHA256 ciphertext through any crypto.Decrypter,
// so hardware-held keys work the same as in-memory ones.
func DecryptOAEP(d crypto.Decrypter, ct, label []byte) ([]byte, error) {
	pt, err := d.Decrypt(rand.Reader, ct, &rsa.OAEPOptions{Hash: crypto.SHA256, Label: label})
	if err != nil {
		return nil, fmt.Errorf("rsa-oaep decrypt: %w", err)
	}
	return pt, nil
}

// WipeRSAKey best-effort zeroes the private components of k.
func WipeRSAKey(k *rsa.PrivateKey) {
	if k == nil {
		return
	}
	if k.D != nil {
		k.D.SetInt64(0)
	}
	for _, p := range k.Primes {
		p.SetInt64(0)
	}
	if k.Precomputed.Dp != nil {
		k.Precomputed.Dp.SetInt64(0)
	}
	if k.Precomputed.Dq != nil {
		k.Precomputed.Dq.SetInt64(0)
	}
	if k.Precomputed.Qinv != nil {
		k.Precomputed.Qinv.SetInt64(0)
	}
}
