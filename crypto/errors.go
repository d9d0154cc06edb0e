package crypto

import "errors"

var (
	// ErrCryptoFailure indicates a primitive failed, typically the random source or key generation.
	ErrCryptoFailure = errors.New("cryptographic operation failed")
	// ErrDecryptionFailure indicates a ciphertext failed authentication: tampered data,
	// mismatched associated data, or the wrong private key.
	ErrDecryptionFailure = errors.New("decryption failed")
	// ErrInvalidKey indicates key material that could not be parsed or is not RSA-2048.
	ErrInvalidKey = errors.New("invalid key material")
)
