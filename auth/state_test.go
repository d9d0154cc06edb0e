package auth

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidTransitions(t *testing.T) {
	terminal := []State{StateApproved, StateDenied, StateTimedOut, StateCancelled}

	assert.True(t, validTransition(StateIdle, StatePrompted))
	assert.False(t, validTransition(StateIdle, StateApproved))
	for _, s := range terminal {
		assert.True(t, validTransition(StatePrompted, s), s.String())
		assert.False(t, validTransition(s, StatePrompted), s.String())
		assert.True(t, s.Terminal())
	}
	assert.False(t, StatePrompted.Terminal())
}

func TestAttemptNotifiesObservers(t *testing.T) {
	var seen []Transition
	a := &attempt{operation: "get", variant: VariantPassphrase, observers: []Observer{
		func(tr Transition) { seen = append(seen, tr) },
	}}
	require.NoError(t, a.transition(StatePrompted, nil))
	require.NoError(t, a.transition(StateDenied, ErrAuthenticationFailed))
	require.Error(t, a.transition(StateApproved, nil))

	require.Len(t, seen, 2)
	assert.Equal(t, StateIdle, seen[0].From)
	assert.Equal(t, StatePrompted, seen[0].To)
	assert.Equal(t, StateDenied, seen[1].To)
	assert.ErrorIs(t, seen[1].Err, ErrAuthenticationFailed)
}

func TestStateFor(t *testing.T) {
	assert.Equal(t, StateApproved, stateFor(nil))
	assert.Equal(t, StateCancelled, stateFor(ErrCancelled))
	assert.Equal(t, StateTimedOut, stateFor(ErrTimedOut))
	assert.Equal(t, StateDenied, stateFor(ErrAuthenticationFailed))
	assert.Equal(t, StateDenied, stateFor(ErrNoAuthenticatorFound))
	assert.Equal(t, StateDenied, stateFor(errors.New("boom")))
}

func TestParseVariant(t *testing.T) {
	for in, want := range map[string]Variant{
		"none": VariantNone, "passphrase": VariantPassphrase, "password": VariantPassphrase,
		"keychain": VariantKeychain, "biometric": VariantKeychain, "fido2": VariantFIDO2, "yubikey": VariantFIDO2,
	} {
		got, err := ParseVariant(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseVariant("retina")
	assert.ErrorIs(t, err, ErrUnsupportedVariant)
}

func TestConfigValidate(t *testing.T) {
	cfg := passphraseConfig(t)
	require.NoError(t, cfg.Validate())
	require.NoError(t, NoneConfig().Validate())

	bad := cfg
	bad.KeyID = ""
	assert.ErrorIs(t, bad.Validate(), ErrInvalidConfig)

	bad = cfg
	bad.Passphrase = &PassphraseConfig{Salt: []byte("short"), KDF: fastKDF}
	assert.ErrorIs(t, bad.Validate(), ErrInvalidConfig)

	assert.ErrorIs(t, Config{Variant: VariantKeychain, KeyID: "k"}.Validate(), ErrInvalidConfig)
	assert.ErrorIs(t, Config{Variant: VariantFIDO2, KeyID: "k"}.Validate(), ErrInvalidConfig)
	assert.ErrorIs(t, Config{Variant: "retina", KeyID: "k"}.Validate(), ErrUnsupportedVariant)

	assert.True(t, cfg.Equal(cfg))
	assert.False(t, cfg.Equal(NoneConfig()))
}
