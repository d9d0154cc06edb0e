package auth

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/go-webauthn/webauthn/protocol"
)

// TokenRegistration asks a token to create a credential.
type TokenRegistration struct {
	RPID      string
	RPName    string
	Origin    string
	Challenge string
	UserID    []byte
	UserName  string
}

// TokenAssertion asks a token to sign a challenge and evaluate the
// hmac-secret extension for HMACSalt.
type TokenAssertion struct {
	RPID          string
	Origin        string
	Challenge     string
	CredentialIDs [][]byte
	HMACSalt      []byte
}

// TokenAssertionResult holds the WebAuthn assertion JSON plus the
// hmac-secret output.
type TokenAssertionResult struct {
	Response   []byte
	HMACSecret []byte
}

// Token is one FIDO2 authenticator. Responses are WebAuthn JSON so they
// can be validated the same way a browser response would be.
type Token interface {
	MakeCredential(ctx context.Context, req TokenRegistration) ([]byte, error)
	GetAssertion(ctx context.Context, req TokenAssertion) (*TokenAssertionResult, error)
}

// TokenLocator enumerates attached tokens.
type TokenLocator interface {
	Tokens(ctx context.Context) ([]Token, error)
}

// TokenLocatorFunc adapts a function to TokenLocator.
type TokenLocatorFunc func(ctx context.Context) ([]Token, error)

func (f TokenLocatorFunc) Tokens(ctx context.Context) ([]Token, error) {
	return f(ctx)
}

// ClientDataJSON builds the collected client data for a ceremony.
func ClientDataJSON(ceremony protocol.CeremonyType, challenge, origin string) ([]byte, error) {
	return json.Marshal(protocol.CollectedClientData{
		Type:      ceremony,
		Challenge: challenge,
		Origin:    origin,
	})
}

// AttestationResponseJSON wraps raw authenticator data in a "none"
// attestation and encodes it as a registration response.
func AttestationResponseJSON(credentialID, clientDataJSON, authData []byte) ([]byte, error) {
	em, err := cbor.CTAP2EncOptions().EncMode()
	if err != nil {
		return nil, err
	}
	attObj, err := em.Marshal(map[string]any{
		"fmt":      "none",
		"attStmt":  map[string]any{},
		"authData": authData,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding attestation object: %w", err)
	}
	resp := protocol.CredentialCreationResponse{
		PublicKeyCredential: publicKeyCredential(credentialID),
		AttestationResponse: protocol.AuthenticatorAttestationResponse{
			AuthenticatorResponse: protocol.AuthenticatorResponse{ClientDataJSON: clientDataJSON},
			AttestationObject:     attObj,
		},
	}
	return json.Marshal(resp)
}

// AssertionResponseJSON encodes an assertion response.
func AssertionResponseJSON(credentialID, clientDataJSON, authData, signature, userHandle []byte) ([]byte, error) {
	resp := protocol.CredentialAssertionResponse{
		PublicKeyCredential: publicKeyCredential(credentialID),
		AssertionResponse: protocol.AuthenticatorAssertionResponse{
			AuthenticatorResponse: protocol.AuthenticatorResponse{ClientDataJSON: clientDataJSON},
			AuthenticatorData:     authData,
			Signature:             signature,
			UserHandle:            userHandle,
		},
	}
	return json.Marshal(resp)
}

func publicKeyCredential(id []byte) protocol.PublicKeyCredential {
	return protocol.PublicKeyCredential{
		Credential: protocol.Credential{
			ID:   base64.RawURLEncoding.EncodeToString(id),
			Type: string(protocol.PublicKeyCredentialType),
		},
		RawID:                   id,
		AuthenticatorAttachment: string(protocol.CrossPlatform),
	}
}
