package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"

	icrypto "github.com/jmcleod/keysafe/internal/crypto"
	"github.com/jmcleod/keysafe/internal/util"
	"github.com/jmcleod/keysafe/internal/uuid"
)

const (
	DefaultRPID   = "keysafe.local"
	DefaultRPName = "keysafe"
)

// FIDO2 derives the KEK from the hmac-secret extension of a hardware token.
// Every assertion is checked with WebAuthn login validation before the
// secret is trusted.
type FIDO2 struct {
	Locator TokenLocator
}

func (FIDO2) Variant() Variant { return VariantFIDO2 }

// webauthnUser adapts a vault to the webauthn.User interface.
type webauthnUser struct {
	id          []byte
	name        string
	credentials []webauthn.Credential
}

func (u *webauthnUser) WebAuthnID() []byte                         { return u.id }
func (u *webauthnUser) WebAuthnName() string                       { return u.name }
func (u *webauthnUser) WebAuthnDisplayName() string                { return u.name }
func (u *webauthnUser) WebAuthnCredentials() []webauthn.Credential { return u.credentials }

func (f FIDO2) Approve(ctx context.Context, req Request) (*Proof, error) {
	cfg := req.Config.FIDO2
	if cfg == nil {
		return nil, fmt.Errorf("%w: fido2 parameters missing", ErrAuthenticationFailed)
	}
	tokens, err := f.tokens(ctx)
	if err != nil {
		return nil, err
	}
	secret, err := f.assert(ctx, tokens, cfg)
	if err != nil {
		return nil, err
	}
	defer util.WipeBytes(secret)
	kek, err := icrypto.DeriveFIDO2KEK(secret, cfg.Credential.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuthenticationFailed, err)
	}
	return newProof(req.Config, kek), nil
}

func (f FIDO2) Enroll(ctx context.Context, req EnrollRequest) (Config, *Proof, error) {
	tokens, err := f.tokens(ctx)
	if err != nil {
		return Config{}, nil, err
	}
	fc := &FIDO2Config{
		RPID:   withDefault(req.Options.RPID, DefaultRPID),
		RPName: withDefault(req.Options.RPName, DefaultRPName),
		UserID: []byte(req.VaultID),
	}
	fc.Origin = withDefault(req.Options.Origin, "https://"+fc.RPID)
	if len(fc.UserID) == 0 {
		fc.UserID = []byte(uuid.New())
	}

	wa, err := relyingParty(fc)
	if err != nil {
		return Config{}, nil, err
	}
	user := &webauthnUser{id: fc.UserID, name: fc.RPName}
	_, session, err := wa.BeginRegistration(user,
		webauthn.WithExtensions(protocol.AuthenticationExtensions{"hmacCreateSecret": true}),
	)
	if err != nil {
		return Config{}, nil, fmt.Errorf("beginning registration: %w", err)
	}

	// Registration goes to the first token; the user touches the one they want.
	token := tokens[0]
	raw, err := token.MakeCredential(ctx, TokenRegistration{
		RPID:      fc.RPID,
		RPName:    fc.RPName,
		Origin:    fc.Origin,
		Challenge: session.Challenge,
		UserID:    fc.UserID,
		UserName:  user.name,
	})
	if err != nil {
		return Config{}, nil, tokenError(err)
	}
	parsed, err := protocol.ParseCredentialCreationResponseBytes(raw)
	if err != nil {
		return Config{}, nil, fmt.Errorf("%w: parsing registration: %v", ErrAuthenticationFailed, err)
	}
	cred, err := wa.CreateCredential(user, *session, parsed)
	if err != nil {
		return Config{}, nil, fmt.Errorf("%w: validating registration: %v", ErrAuthenticationFailed, err)
	}
	fc.Credential = *cred
	if fc.HMACSalt, err = util.RandomBytes(32); err != nil {
		return Config{}, nil, err
	}

	cfg := Config{Variant: VariantFIDO2, KeyID: uuid.New(), FIDO2: fc}
	secret, err := f.assert(ctx, []Token{token}, fc)
	if err != nil {
		return Config{}, nil, err
	}
	defer util.WipeBytes(secret)
	kek, err := icrypto.DeriveFIDO2KEK(secret, fc.Credential.ID)
	if err != nil {
		return Config{}, nil, fmt.Errorf("%w: %v", ErrAuthenticationFailed, err)
	}
	return cfg, newProof(cfg, kek), nil
}

// assert tries each token in turn until one holds the credential.
func (f FIDO2) assert(ctx context.Context, tokens []Token, cfg *FIDO2Config) ([]byte, error) {
	wa, err := relyingParty(cfg)
	if err != nil {
		return nil, err
	}
	user := &webauthnUser{id: cfg.UserID, name: cfg.RPName, credentials: []webauthn.Credential{cfg.Credential}}
	_, session, err := wa.BeginLogin(user)
	if err != nil {
		return nil, fmt.Errorf("%w: beginning login: %v", ErrAuthenticationFailed, err)
	}

	for _, token := range tokens {
		res, err := token.GetAssertion(ctx, TokenAssertion{
			RPID:          cfg.RPID,
			Origin:        cfg.Origin,
			Challenge:     session.Challenge,
			CredentialIDs: session.AllowedCredentialIDs,
			HMACSalt:      cfg.HMACSalt,
		})
		if errors.Is(err, ErrCredentialNotFound) {
			continue
		}
		if err != nil {
			return nil, tokenError(err)
		}
		parsed, err := protocol.ParseCredentialRequestResponseBytes(res.Response)
		if err != nil {
			util.WipeBytes(res.HMACSecret)
			return nil, fmt.Errorf("%w: parsing assertion: %v", ErrAuthenticationFailed, err)
		}
		if _, err := wa.ValidateLogin(user, *session, parsed); err != nil {
			util.WipeBytes(res.HMACSecret)
			return nil, fmt.Errorf("%w: validating assertion: %v", ErrAuthenticationFailed, err)
		}
		return res.HMACSecret, nil
	}
	return nil, fmt.Errorf("%w: registered credential not present on any token", ErrNoAuthenticatorFound)
}

func (f FIDO2) tokens(ctx context.Context) ([]Token, error) {
	locator := f.Locator
	if locator == nil {
		locator = NewDefaultTokenLocator()
	}
	tokens, err := locator.Tokens(ctx)
	if err != nil {
		if errors.Is(err, ErrNoAuthenticatorFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrNoAuthenticatorFound, err)
	}
	if len(tokens) == 0 {
		return nil, ErrNoAuthenticatorFound
	}
	return tokens, nil
}

func relyingParty(cfg *FIDO2Config) (*webauthn.WebAuthn, error) {
	wa, err := webauthn.New(&webauthn.Config{
		RPID:          cfg.RPID,
		RPDisplayName: withDefault(cfg.RPName, DefaultRPName),
		RPOrigins:     []string{cfg.Origin},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return wa, nil
}

func tokenError(err error) error {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, ErrCancelled):
		return ErrCancelled
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, ErrTimedOut):
		return ErrTimedOut
	case errors.Is(err, ErrNoAuthenticatorFound):
		return err
	case errors.Is(err, ErrAuthenticationFailed):
		return err
	default:
		return fmt.Errorf("%w: %v", ErrAuthenticationFailed, err)
	}
}

func withDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
