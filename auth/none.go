package auth

import "context"

// None approves everything without prompting.
type None struct{}

func (None) Variant() Variant { return VariantNone }

func (None) Approve(_ context.Context, req Request) (*Proof, error) {
	return newProof(req.Config, nil), nil
}

func (None) Enroll(_ context.Context, _ EnrollRequest) (Config, *Proof, error) {
	cfg := NoneConfig()
	return cfg, newProof(cfg, nil), nil
}
