package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jmcleod/keysafe/internal/util"
)

// fastKDF keeps Argon2id cheap in tests.
var fastKDF = util.Argon2idParams{Time: 1, MemoryKiB: 8 * 1024, Parallelism: 1, KeyLen: 32}

func passphraseConfig(t *testing.T) Config {
	t.Helper()
	salt, err := util.RandomBytes(32)
	require.NoError(t, err)
	return Config{
		Variant:    VariantPassphrase,
		KeyID:      "key-1",
		Passphrase: &PassphraseConfig{Salt: salt, KDF: fastKDF},
	}
}

func staticPassphrase(pw string) PassphraseSource {
	return PassphraseFunc(func(context.Context, Prompt) ([]byte, error) {
		return []byte(pw), nil
	})
}

// fakeAuth runs fn as a passphrase backend.
type fakeAuth struct {
	fn func(ctx context.Context, req Request) (*Proof, error)
}

func (fakeAuth) Variant() Variant { return VariantPassphrase }

func (f fakeAuth) Approve(ctx context.Context, req Request) (*Proof, error) {
	return f.fn(ctx, req)
}

func approvedProof(req Request) (*Proof, error) {
	kek, err := util.NewAESKey()
	if err != nil {
		return nil, err
	}
	return newProof(req.Config, kek), nil
}

// roundTrip checks two proofs carry the same KEK.
func roundTrip(t *testing.T, a, b *Proof) {
	t.Helper()
	ka, err := a.KEK()
	require.NoError(t, err)
	kb, err := b.KEK()
	require.NoError(t, err)
	ct, err := ka.Encrypt([]byte("round trip"))
	require.NoError(t, err)
	pt, err := kb.Decrypt(ct)
	require.NoError(t, err)
	require.Equal(t, "round trip", string(pt))
}
