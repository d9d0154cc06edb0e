// Package crypto is the cipher engine: RSA-2048 keypairs and hybrid
// RSA-OAEP / AES-256-GCM sealing of individual values. It performs no I/O.
package crypto

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"

	"github.com/jmcleod/keysafe/internal/util"
)

const (
	pemTypePublic     = "PUBLIC KEY"
	pemTypePrivate    = "PRIVATE KEY"
	pemTypeRSAPrivate = "RSA PRIVATE KEY"
	minModulusBits    = util.RSAKeyBits
)

// Keypair is the vault's asymmetric keypair. Private may be nil when only the
// public half has been loaded.
type Keypair struct {
	Public  *rsa.PublicKey
	Private *rsa.PrivateKey
}

// GenerateKeypair creates a fresh RSA-2048 keypair from the system random source.
func GenerateKeypair() (*Keypair, error) {
	priv, err := util.GenerateRSAKey()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCryptoFailure, err)
	}
	return &Keypair{Public: &priv.PublicKey, Private: priv}, nil
}

// Fingerprint returns the hex SHA-256 of the public key's PKIX encoding.
func (kp *Keypair) Fingerprint() string {
	fp, _ := Fingerprint(kp.Public)
	return fp
}

// Destroy wipes the private half. The keypair must not be used afterwards.
func (kp *Keypair) Destroy() {
	if kp == nil {
		return
	}
	util.WipeRSAKey(kp.Private)
	kp.Private = nil
}

// Fingerprint returns the hex SHA-256 of pub's PKIX DER encoding.
func Fingerprint(pub *rsa.PublicKey) (string, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return util.SHA256Hex(der), nil
}

// MarshalPublicKey encodes pub as a PKIX "PUBLIC KEY" PEM block.
func MarshalPublicKey(pub *rsa.PublicKey) ([]byte, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: pemTypePublic, Bytes: der}), nil
}

// ParsePublicKey decodes a PKIX PEM public key and checks it is RSA-2048 or larger.
func ParsePublicKey(data []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(data)
	if block == nil || block.Type != pemTypePublic {
		return nil, fmt.Errorf("%w: no public key PEM block", ErrInvalidKey)
	}
	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	pub, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%w: public key is not RSA", ErrInvalidKey)
	}
	if pub.N.BitLen() < minModulusBits {
		return nil, fmt.Errorf("%w: RSA modulus too small", ErrInvalidKey)
	}
	return pub, nil
}

// MarshalPrivateKeyDER returns the PKCS#8 DER encoding of priv. Callers own
// the returned slice and should wipe it.
func MarshalPrivateKeyDER(priv *rsa.PrivateKey) ([]byte, error) {
	der, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return der, nil
}

// MarshalPrivateKey encodes priv as a PKCS#8 "PRIVATE KEY" PEM block.
func MarshalPrivateKey(priv *rsa.PrivateKey) ([]byte, error) {
	der, err := MarshalPrivateKeyDER(priv)
	if err != nil {
		return nil, err
	}
	defer util.WipeBytes(der)
	return pem.EncodeToMemory(&pem.Block{Type: pemTypePrivate, Bytes: der}), nil
}

// ParsePrivateKey decodes a PEM private key. PKCS#8 is the native format;
// PKCS#1 "RSA PRIVATE KEY" blocks written by older tools are accepted too.
func ParsePrivateKey(data []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("%w: no private key PEM block", ErrInvalidKey)
	}
	defer util.WipeBytes(block.Bytes)

	switch block.Type {
	case pemTypePrivate:
		return ParsePrivateKeyDER(block.Bytes)
	case pemTypeRSAPrivate:
		priv, err := x509.ParsePKCS1PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
		}
		return priv, nil
	default:
		return nil, fmt.Errorf("%w: unexpected PEM block %q", ErrInvalidKey, block.Type)
	}
}

// ParsePrivateKeyDER decodes PKCS#8 DER into an RSA private key.
func ParsePrivateKeyDER(der []byte) (*rsa.PrivateKey, error) {
	parsed, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	priv, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("%w: private key is not RSA", ErrInvalidKey)
	}
	return priv, nil
}

// IsPEM reports whether data starts with a PEM armor line.
func IsPEM(data []byte) bool {
	block, _ := pem.Decode(data)
	return block != nil
}
