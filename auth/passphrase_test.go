package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPassphraseDeterministicKEK(t *testing.T) {
	a := Passphrase{Source: staticPassphrase("correct horse")}
	cfg := passphraseConfig(t)

	p1, err := a.Approve(t.Context(), Request{Config: cfg})
	require.NoError(t, err)
	p2, err := a.Approve(t.Context(), Request{Config: cfg})
	require.NoError(t, err)
	roundTrip(t, p1, p2)
}

func TestPassphraseWrongPassphraseYieldsDifferentKEK(t *testing.T) {
	cfg := passphraseConfig(t)
	good, err := Passphrase{Source: staticPassphrase("correct horse")}.Approve(t.Context(), Request{Config: cfg})
	require.NoError(t, err)
	bad, err := Passphrase{Source: staticPassphrase("wrong horse")}.Approve(t.Context(), Request{Config: cfg})
	require.NoError(t, err)

	kg, err := good.KEK()
	require.NoError(t, err)
	kb, err := bad.KEK()
	require.NoError(t, err)
	ct, err := kg.Encrypt([]byte("x"))
	require.NoError(t, err)
	_, err = kb.Decrypt(ct)
	assert.Error(t, err)
}

func TestPassphraseEmptyIsCancel(t *testing.T) {
	src := PassphraseFunc(func(context.Context, Prompt) ([]byte, error) { return nil, ErrCancelled })
	_, err := Passphrase{Source: src}.Approve(t.Context(), Request{Config: passphraseConfig(t)})
	assert.ErrorIs(t, err, ErrCancelled)
}

func TestPassphraseEnroll(t *testing.T) {
	var prompts []Prompt
	src := PassphraseFunc(func(_ context.Context, p Prompt) ([]byte, error) {
		prompts = append(prompts, p)
		return []byte("correct horse"), nil
	})
	a := Passphrase{Source: src}

	cfg, proof, err := a.Enroll(t.Context(), EnrollRequest{VaultID: "v", Options: EnrollOptions{KDF: fastKDF}})
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	require.Len(t, prompts, 1)
	assert.True(t, prompts[0].Confirm)

	again, err := a.Approve(t.Context(), Request{Config: cfg})
	require.NoError(t, err)
	roundTrip(t, proof, again)
}

func TestPassphraseEnrollRejectsShort(t *testing.T) {
	_, _, err := Passphrase{Source: staticPassphrase("short")}.Enroll(t.Context(), EnrollRequest{Options: EnrollOptions{KDF: fastKDF}})
	assert.ErrorIs(t, err, ErrWeakPassphrase)
}
