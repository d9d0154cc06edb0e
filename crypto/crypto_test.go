package crypto

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestKeypair(t *testing.T) *Keypair {
	t.Helper()
	kp, err := GenerateKeypair()
	require.NoError(t, err)
	t.Cleanup(kp.Destroy)
	return kp
}

func TestHybrid_RoundTrip(t *testing.T) {
	kp := newTestKeypair(t)

	cases := map[string][]byte{
		"empty":   {},
		"ascii":   []byte("sk-test-1234567890"),
		"unicode": []byte("pässwörd 🔑 密码"),
		"binary":  {0x00, 0xff, 0x10, 0x00},
		"large":   bytes.Repeat([]byte("x"), 1<<20),
	}
	for name, plaintext := range cases {
		t.Run(name, func(t *testing.T) {
			sealed, err := HybridEncrypt(kp.Public, plaintext)
			require.NoError(t, err)
			require.NoError(t, sealed.Validate())

			got, err := HybridDecrypt(kp.Private, sealed)
			require.NoError(t, err)
			assert.True(t, bytes.Equal(plaintext, got))
		})
	}
}

func TestHybrid_FreshKeyAndNoncePerCall(t *testing.T) {
	kp := newTestKeypair(t)

	a, err := HybridEncrypt(kp.Public, []byte("same"))
	require.NoError(t, err)
	b, err := HybridEncrypt(kp.Public, []byte("same"))
	require.NoError(t, err)

	assert.NotEqual(t, a.WrappedKey, b.WrappedKey)
	assert.NotEqual(t, a.Nonce, b.Nonce)
	assert.NotEqual(t, a.Ciphertext, b.Ciphertext)
}

func TestHybrid_TamperDetection(t *testing.T) {
	kp := newTestKeypair(t)
	sealed, err := HybridEncrypt(kp.Public, []byte("secret value"), WithAAD([]byte("API_KEY")))
	require.NoError(t, err)

	mutations := map[string]func(s *Sealed){
		"wrapped_key": func(s *Sealed) { s.WrappedKey[10] ^= 0x01 },
		"nonce":       func(s *Sealed) { s.Nonce[0] ^= 0x01 },
		"ciphertext":  func(s *Sealed) { s.Ciphertext[0] ^= 0x01 },
		"tag":         func(s *Sealed) { s.Tag[15] ^= 0x01 },
	}
	for field, mutate := range mutations {
		t.Run(field, func(t *testing.T) {
			c := sealed.Clone()
			mutate(c)
			_, err := HybridDecrypt(kp.Private, c, WithAAD([]byte("API_KEY")))
			require.ErrorIs(t, err, ErrDecryptionFailure)
		})
	}

	t.Run("aad", func(t *testing.T) {
		_, err := HybridDecrypt(kp.Private, sealed, WithAAD([]byte("OTHER")))
		require.ErrorIs(t, err, ErrDecryptionFailure)
	})

	t.Run("untouched", func(t *testing.T) {
		got, err := HybridDecrypt(kp.Private, sealed, WithAAD([]byte("API_KEY")))
		require.NoError(t, err)
		assert.Equal(t, "secret value", string(got))
	})
}

func TestHybrid_WrongPrivateKey(t *testing.T) {
	kp := newTestKeypair(t)
	other := newTestKeypair(t)

	sealed, err := HybridEncrypt(kp.Public, []byte("value"))
	require.NoError(t, err)

	_, err = HybridDecrypt(other.Private, sealed)
	require.ErrorIs(t, err, ErrDecryptionFailure)
}

func TestHybrid_NilInputs(t *testing.T) {
	_, err := HybridEncrypt(nil, []byte("x"))
	require.ErrorIs(t, err, ErrInvalidKey)

	kp := newTestKeypair(t)
	_, err = HybridDecrypt(kp.Private, nil)
	require.ErrorIs(t, err, ErrDecryptionFailure)
}

func TestKeys_PEMRoundTrip(t *testing.T) {
	kp := newTestKeypair(t)

	pubPEM, err := MarshalPublicKey(kp.Public)
	require.NoError(t, err)
	assert.Contains(t, string(pubPEM), "BEGIN PUBLIC KEY")

	pub, err := ParsePublicKey(pubPEM)
	require.NoError(t, err)
	assert.Equal(t, 0, pub.N.Cmp(kp.Public.N))

	privPEM, err := MarshalPrivateKey(kp.Private)
	require.NoError(t, err)
	assert.True(t, IsPEM(privPEM))

	priv, err := ParsePrivateKey(privPEM)
	require.NoError(t, err)
	assert.Equal(t, 0, priv.D.Cmp(kp.Private.D))

	fp1, err := Fingerprint(kp.Public)
	require.NoError(t, err)
	assert.Equal(t, fp1, kp.Fingerprint())
	assert.Len(t, fp1, 64)
}

func TestKeys_ParseRejectsGarbage(t *testing.T) {
	_, err := ParsePublicKey([]byte("not pem"))
	require.ErrorIs(t, err, ErrInvalidKey)

	_, err = ParsePrivateKey([]byte("-----BEGIN CERTIFICATE-----\nAAAA\n-----END CERTIFICATE-----\n"))
	require.ErrorIs(t, err, ErrInvalidKey)

	assert.False(t, IsPEM([]byte(`{"ver":1}`)))
}

func TestKeypair_Destroy(t *testing.T) {
	kp, err := GenerateKeypair()
	require.NoError(t, err)
	priv := kp.Private

	kp.Destroy()
	assert.Nil(t, kp.Private)
	assert.Equal(t, 0, priv.D.Sign())
	assert.NotNil(t, kp.Public)
}
