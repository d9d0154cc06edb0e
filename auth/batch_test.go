package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBatchWindowBounds(t *testing.T) {
	g := NewGate(NewRegistry())
	_, err := NewBatch(g, 0)
	assert.Error(t, err)
	_, err = NewBatch(g, MaxBatchWindow+time.Second)
	assert.Error(t, err)
	_, err = NewBatch(g, MaxBatchWindow)
	assert.NoError(t, err)
}

func TestBatchReusesApprovalWithinWindow(t *testing.T) {
	calls := 0
	g := NewGate(NewRegistry(fakeAuth{fn: func(_ context.Context, req Request) (*Proof, error) {
		calls++
		return approvedProof(req)
	}}))
	b, err := NewBatch(g, time.Minute)
	require.NoError(t, err)
	defer b.Close()

	now := time.Now()
	b.now = func() time.Time { return now }
	cfg := passphraseConfig(t)

	first, err := b.Approve(t.Context(), Request{Operation: "get", Config: cfg})
	require.NoError(t, err)
	first.Destroy()

	second, err := b.Approve(t.Context(), Request{Operation: "get", Config: cfg})
	require.NoError(t, err)
	third, err := b.Approve(t.Context(), Request{Operation: "get", Config: cfg})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	roundTrip(t, second, third)

	// Destroying a handed-out proof leaves the cache usable.
	second.Destroy()
	_, err = b.Approve(t.Context(), Request{Operation: "get", Config: cfg})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)

	now = now.Add(2 * time.Minute)
	_, err = b.Approve(t.Context(), Request{Operation: "get", Config: cfg})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestBatchDoesNotCrossConfigs(t *testing.T) {
	calls := 0
	g := NewGate(NewRegistry(fakeAuth{fn: func(_ context.Context, req Request) (*Proof, error) {
		calls++
		return approvedProof(req)
	}}))
	b, err := NewBatch(g, time.Minute)
	require.NoError(t, err)
	defer b.Close()

	cfg := passphraseConfig(t)
	other := cfg
	other.KeyID = "key-2"

	_, err = b.Approve(t.Context(), Request{Config: cfg})
	require.NoError(t, err)
	_, err = b.Approve(t.Context(), Request{Config: other})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestBatchDoesNotCacheFailures(t *testing.T) {
	calls := 0
	g := NewGate(NewRegistry(fakeAuth{fn: func(context.Context, Request) (*Proof, error) {
		calls++
		return nil, ErrAuthenticationFailed
	}}))
	b, err := NewBatch(g, time.Minute)
	require.NoError(t, err)

	for range 2 {
		_, err = b.Approve(t.Context(), Request{Config: passphraseConfig(t)})
		assert.ErrorIs(t, err, ErrAuthenticationFailed)
	}
	assert.Equal(t, 2, calls)
}
