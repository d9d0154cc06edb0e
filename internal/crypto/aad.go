package icrypto

import (
	"encoding/binary"
)

const (
	aadEntry   = "ENTRY"
	aadKeyWrap = "KEYWRAP"
	aadBundle  = "BUNDLE"
)

// AADEntry binds an entry's ciphertext to its vault and name so it cannot be
// moved under another name or into another vault.
func AADEntry(vaultID, name string, ver int) []byte {
	return buildAAD(aadEntry, vaultID, name, ver)
}

// AADKeyWrap binds a wrapped private key to the KEK identity and gate variant it was sealed under.
func AADKeyWrap(keyID, variant string, ver int) []byte {
	return buildAAD(aadKeyWrap, keyID, variant, ver)
}

// AADBundle binds a passphrase-sealed private key to the exported vault.
func AADBundle(vaultID, fingerprint string, ver int) []byte {
	return buildAAD(aadBundle, vaultID, fingerprint, ver)
}

// LengthPrefixed encodes each part behind a four-byte big-endian length so
// adjacent parts can never run together.
func LengthPrefixed(parts ...string) []byte {
	var res []byte
	for _, p := range parts {
		res = appendLenPrefix(res, []byte(p))
	}
	return res
}

func buildAAD(parts ...any) []byte {
	var res []byte
	for _, p := range parts {
		switch v := p.(type) {
		case string:
			res = appendLenPrefix(res, []byte(v))
		case []byte:
			res = appendLenPrefix(res, v)
		case uint64:
			b := make([]byte, 8)
			binary.BigEndian.PutUint64(b, v)
			res = append(res, b...)
		case int:
			b := make([]byte, 4)
			binary.BigEndian.PutUint32(b, uint32(v))
			res = append(res, b...)
		}
	}
	return res
}

func appendLenPrefix(b, data []byte) []byte {
	l := make([]byte, 4)
	binary.BigEndian.PutUint32(l, uint32(len(data)))
	b = append(b, l...)
	b = append(b, data...)
	return b
}
