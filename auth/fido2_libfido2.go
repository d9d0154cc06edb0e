//go:build libfido2

package auth

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/go-webauthn/webauthn/protocol"
	libfido2 "github.com/keys-pub/go-libfido2"
)

// NewDefaultTokenLocator enumerates USB tokens through libfido2.
func NewDefaultTokenLocator() TokenLocator {
	return &libfido2Locator{}
}

type libfido2Locator struct{}

func (l *libfido2Locator) Tokens(_ context.Context) ([]Token, error) {
	locs, err := libfido2.DeviceLocations()
	if err != nil {
		return nil, fmt.Errorf("%w: enumerating devices: %v", ErrNoAuthenticatorFound, err)
	}
	var tokens []Token
	for _, loc := range locs {
		dev, err := libfido2.NewDevice(loc.Path)
		if err != nil {
			continue
		}
		tokens = append(tokens, &libfido2Token{dev: dev})
	}
	if len(tokens) == 0 {
		return nil, ErrNoAuthenticatorFound
	}
	return tokens, nil
}

type libfido2Token struct {
	dev *libfido2.Device
}

func (t *libfido2Token) MakeCredential(ctx context.Context, req TokenRegistration) ([]byte, error) {
	clientData, err := ClientDataJSON(protocol.CreateCeremony, req.Challenge, req.Origin)
	if err != nil {
		return nil, err
	}
	cdh := sha256.Sum256(clientData)
	att, err := runDevice(ctx, func() (*libfido2.Attestation, error) {
		return t.dev.MakeCredential(cdh[:],
			libfido2.RelyingParty{ID: req.RPID, Name: req.RPName},
			libfido2.User{ID: req.UserID, Name: req.UserName},
			libfido2.ES256, "",
			&libfido2.MakeCredentialOpts{
				Extensions: []libfido2.Extension{libfido2.HMACSecretExtension},
				RK:         libfido2.False,
			})
	})
	if err != nil {
		return nil, err
	}
	var authData []byte
	if err := cbor.Unmarshal(att.AuthData, &authData); err != nil {
		return nil, fmt.Errorf("decoding authenticator data: %w", err)
	}
	return AttestationResponseJSON(att.CredentialID, clientData, authData)
}

func (t *libfido2Token) GetAssertion(ctx context.Context, req TokenAssertion) (*TokenAssertionResult, error) {
	clientData, err := ClientDataJSON(protocol.AssertCeremony, req.Challenge, req.Origin)
	if err != nil {
		return nil, err
	}
	cdh := sha256.Sum256(clientData)
	a, err := runDevice(ctx, func() (*libfido2.Assertion, error) {
		return t.dev.Assertion(req.RPID, cdh[:], req.CredentialIDs, "", &libfido2.AssertionOpts{
			Extensions: []libfido2.Extension{libfido2.HMACSecretExtension},
			HMACSalt:   req.HMACSalt,
			UP:         libfido2.True,
		})
	})
	if err != nil {
		if errors.Is(err, libfido2.ErrNoCredentials) {
			return nil, ErrCredentialNotFound
		}
		return nil, err
	}
	var authData []byte
	if err := cbor.Unmarshal(a.AuthDataCBOR, &authData); err != nil {
		return nil, fmt.Errorf("decoding authenticator data: %w", err)
	}
	resp, err := AssertionResponseJSON(a.CredentialID, clientData, authData, a.Sig, nil)
	if err != nil {
		return nil, err
	}
	return &TokenAssertionResult{Response: resp, HMACSecret: a.HMACSecret}, nil
}

// runDevice waits for a blocking libfido2 call while honoring ctx. The
// device call itself cannot be interrupted; its result is dropped.
func runDevice[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	go func() {
		v, err := fn()
		ch <- result{v, err}
	}()
	select {
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	case r := <-ch:
		return r.v, r.err
	}
}
