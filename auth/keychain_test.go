package auth

import (
	"testing"

	"github.com/99designs/keyring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func arrayOpener(ring keyring.Keyring) KeyringOpener {
	return func(string) (keyring.Keyring, error) { return ring, nil }
}

func TestKeychainEnrollApproveRevoke(t *testing.T) {
	ring := keyring.NewArrayKeyring(nil)
	a := Keychain{Open: arrayOpener(ring)}

	cfg, proof, err := a.Enroll(t.Context(), EnrollRequest{VaultID: "vault-1"})
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	assert.Equal(t, DefaultKeychainService, cfg.Keychain.Service)

	keys, err := ring.Keys()
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.Equal(t, "vault-vault-1/"+cfg.KeyID, keys[0])

	again, err := a.Approve(t.Context(), Request{Config: cfg})
	require.NoError(t, err)
	roundTrip(t, proof, again)

	require.NoError(t, a.Revoke(t.Context(), cfg))
	_, err = a.Approve(t.Context(), Request{Config: cfg})
	assert.ErrorIs(t, err, ErrAuthenticationFailed)

	// Revoking twice is harmless.
	require.NoError(t, a.Revoke(t.Context(), cfg))
}

func TestKeychainUnavailable(t *testing.T) {
	a := Keychain{Open: func(string) (keyring.Keyring, error) { return nil, keyring.ErrNoAvailImpl }}
	_, _, err := a.Enroll(t.Context(), EnrollRequest{VaultID: "v"})
	assert.ErrorIs(t, err, ErrNoAuthenticatorFound)
}

func TestKeychainMalformedItem(t *testing.T) {
	ring := keyring.NewArrayKeyring([]keyring.Item{{Key: "acct", Data: []byte("short")}})
	a := Keychain{Open: arrayOpener(ring)}
	cfg := Config{Variant: VariantKeychain, KeyID: "k", Keychain: &KeychainConfig{Service: "s", Account: "acct"}}
	_, err := a.Approve(t.Context(), Request{Config: cfg})
	assert.ErrorIs(t, err, ErrAuthenticationFailed)
}
