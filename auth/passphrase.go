package auth

import (
	"context"
	"fmt"

	icrypto "github.com/jmcleod/keysafe/internal/crypto"
	"github.com/jmcleod/keysafe/internal/util"
	"github.com/jmcleod/keysafe/internal/uuid"
)

// MinPassphraseLength applies to newly enrolled passphrases only.
const MinPassphraseLength = 8

// Passphrase derives the KEK from a user passphrase with Argon2id. A wrong
// passphrase is not detected here: it yields a KEK that fails to open the
// wrapped key, exactly as corrupted wrapping material does.
type Passphrase struct {
	Source PassphraseSource
}

func (Passphrase) Variant() Variant { return VariantPassphrase }

func (a Passphrase) Approve(ctx context.Context, req Request) (*Proof, error) {
	cfg := req.Config.Passphrase
	if cfg == nil {
		return nil, fmt.Errorf("%w: passphrase parameters missing", ErrAuthenticationFailed)
	}
	pw, err := a.Source.Passphrase(ctx, Prompt{
		Message: fmt.Sprintf("Passphrase to %s: ", describe(req.Operation)),
		Silent:  req.Silent,
	})
	if err != nil {
		return nil, err
	}
	defer util.WipeBytes(pw)
	kek, err := icrypto.DerivePassphraseKEK(pw, cfg.Salt, cfg.KDF)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuthenticationFailed, err)
	}
	return newProof(req.Config, kek), nil
}

func (a Passphrase) Enroll(ctx context.Context, req EnrollRequest) (Config, *Proof, error) {
	params := req.Options.KDF
	if params == (util.Argon2idParams{}) {
		params = util.DefaultArgon2idParams()
	}
	if err := params.Validate(); err != nil {
		return Config{}, nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	pw, err := a.Source.Passphrase(ctx, Prompt{
		Message: "New passphrase: ",
		Confirm: true,
		Silent:  req.Silent,
	})
	if err != nil {
		return Config{}, nil, err
	}
	defer util.WipeBytes(pw)
	if len([]rune(string(pw))) < MinPassphraseLength {
		return Config{}, nil, ErrWeakPassphrase
	}
	salt, err := icrypto.NewSalt()
	if err != nil {
		return Config{}, nil, err
	}
	cfg := Config{
		Variant:    VariantPassphrase,
		KeyID:      uuid.New(),
		Passphrase: &PassphraseConfig{Salt: salt, KDF: params},
	}
	kek, err := icrypto.DerivePassphraseKEK(pw, salt, params)
	if err != nil {
		return Config{}, nil, err
	}
	return cfg, newProof(cfg, kek), nil
}

func describe(op string) string {
	switch op {
	case "":
		return "unlock the vault"
	case "get":
		return "read a secret"
	case "add":
		return "store a secret"
	default:
		return op
	}
}
