// Package auth proves user presence before the private key is unwrapped.
//
// Each Authenticator backend turns a successful prompt into a Proof
// carrying the key-encryption key for one Config. The Gate runs backends
// through the attempt state machine, enforces a timeout and allows one
// attempt at a time. Nothing is cached unless a caller opts into a Batch.
package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmcleod/keysafe/internal/util"
)

// Request describes one operation that needs approval.
type Request struct {
	Operation string
	Config    Config
	// Silent suppresses interactive text prompts. Backends that cannot
	// work without one fail instead of printing.
	Silent bool
}

// EnrollRequest describes a new authenticator being attached to a vault.
type EnrollRequest struct {
	VaultID string
	Silent  bool
	Options EnrollOptions
}

// EnrollOptions carries per-variant enrollment settings.
type EnrollOptions struct {
	KDF             util.Argon2idParams
	KeychainService string
	RPID            string
	RPName          string
	Origin          string
}

// Authenticator proves presence for one variant.
type Authenticator interface {
	Variant() Variant
	Approve(ctx context.Context, req Request) (*Proof, error)
}

// Enroller sets up a fresh Config for its variant and returns a proof for it.
type Enroller interface {
	Enroll(ctx context.Context, req EnrollRequest) (Config, *Proof, error)
}

// Revoker removes any external state created by Enroll.
type Revoker interface {
	Revoke(ctx context.Context, cfg Config) error
}

// Approver is satisfied by Gate and Batch.
type Approver interface {
	Approve(ctx context.Context, req Request) (*Proof, error)
}

// Registry maps variants to backends.
type Registry struct {
	backends map[Variant]Authenticator
}

// NewRegistry registers the given backends. The None backend is always present.
func NewRegistry(backends ...Authenticator) *Registry {
	r := &Registry{backends: map[Variant]Authenticator{VariantNone: None{}}}
	for _, b := range backends {
		r.backends[b.Variant()] = b
	}
	return r
}

// Get returns the backend for v.
func (r *Registry) Get(v Variant) (Authenticator, error) {
	b, ok := r.backends[v]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedVariant, v)
	}
	return b, nil
}

// Enroller returns the enroller for v.
func (r *Registry) Enroller(v Variant) (Enroller, error) {
	b, err := r.Get(v)
	if err != nil {
		return nil, err
	}
	e, ok := b.(Enroller)
	if !ok {
		return nil, fmt.Errorf("%w: %s cannot be enrolled", ErrUnsupportedVariant, v)
	}
	return e, nil
}

// Revoke asks the backend for cfg to drop its external state, if it keeps any.
func (r *Registry) Revoke(ctx context.Context, cfg Config) error {
	b, err := r.Get(cfg.Variant)
	if err != nil {
		return err
	}
	if rv, ok := b.(Revoker); ok {
		return rv.Revoke(ctx, cfg)
	}
	return nil
}

func isErr(err, target error) bool {
	return errors.Is(err, target)
}
