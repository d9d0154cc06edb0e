package auth

import (
	"fmt"
	"time"

	"github.com/awnumar/memguard"

	"github.com/jmcleod/keysafe/internal/util"
	"github.com/jmcleod/keysafe/key"
)

// Proof is the result of an approved authentication. It carries the KEK
// that unwraps the private key and is valid for one operation until it
// expires. Destroy it once the operation completes.
type Proof struct {
	Variant   Variant
	KeyID     string
	Operation string
	IssuedAt  time.Time
	ExpiresAt time.Time

	aad []byte
	kek *memguard.Enclave
}

// newProof takes ownership of kek, wiping the caller's slice. A nil kek is
// only valid for VariantNone.
func newProof(cfg Config, kek []byte) *Proof {
	p := &Proof{
		Variant: cfg.Variant,
		KeyID:   cfg.KeyID,
		aad:     cfg.AAD(),
	}
	if len(kek) > 0 {
		p.kek = memguard.NewEnclave(kek)
	}
	return p
}

// KEK returns the key-encryption key as a key.Key bound to the wrapping AAD.
func (p *Proof) KEK() (key.Key, error) {
	if p == nil || p.kek == nil {
		return nil, ErrAuthenticationRequired
	}
	return key.NewKEKFromEnclave(p.KeyID, p.kek, p.aad)
}

// Check verifies the proof belongs to cfg and is still fresh.
func (p *Proof) Check(cfg Config, now time.Time) error {
	if p == nil {
		return ErrAuthenticationRequired
	}
	if p.Variant != cfg.Variant || p.KeyID != cfg.KeyID {
		return fmt.Errorf("%w: proof issued for a different authenticator", ErrAuthenticationFailed)
	}
	if !p.ExpiresAt.IsZero() && now.After(p.ExpiresAt) {
		return fmt.Errorf("%w: proof expired", ErrAuthenticationFailed)
	}
	if cfg.Protected() && p.kek == nil {
		return fmt.Errorf("%w: proof destroyed", ErrAuthenticationFailed)
	}
	return nil
}

// Destroy drops the KEK. Safe to call more than once and on nil.
func (p *Proof) Destroy() {
	if p == nil {
		return
	}
	p.kek = nil
}

func (p *Proof) clone() (*Proof, error) {
	c := *p
	if p.kek == nil {
		return &c, nil
	}
	buf, err := p.kek.Open()
	if err != nil {
		return nil, fmt.Errorf("opening proof enclave: %w", err)
	}
	defer buf.Destroy()
	c.kek = memguard.NewEnclave(util.CopyBytes(buf.Bytes()))
	c.aad = util.CopyBytes(p.aad)
	return &c, nil
}
