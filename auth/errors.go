package auth

import "errors"

var (
	// ErrAuthenticationRequired indicates an operation needed a proof and none was supplied.
	ErrAuthenticationRequired = errors.New("authentication required")
	// ErrAuthenticationFailed indicates the user or device failed to prove possession.
	// A wrong passphrase and corrupted wrapping material both surface as this error.
	ErrAuthenticationFailed = errors.New("authentication failed")
	// ErrCancelled indicates the user dismissed the prompt or the caller cancelled the context.
	ErrCancelled = errors.New("authentication cancelled")
	// ErrTimedOut indicates no answer arrived before the authentication deadline.
	ErrTimedOut = errors.New("authentication timed out")
	// ErrNoAuthenticatorFound indicates the configured authenticator is not reachable.
	ErrNoAuthenticatorFound = errors.New("no authenticator found")
	// ErrAuthInProgress indicates another authentication attempt has not resolved yet.
	ErrAuthInProgress = errors.New("authentication already in progress")
	// ErrUnsupportedVariant indicates no backend is registered for the requested variant.
	ErrUnsupportedVariant = errors.New("unsupported authenticator variant")
	// ErrPassphraseMismatch indicates the confirmation passphrase differed from the first entry.
	ErrPassphraseMismatch = errors.New("passphrases do not match")
	// ErrWeakPassphrase indicates a new passphrase shorter than MinPassphraseLength.
	ErrWeakPassphrase = errors.New("passphrase too short")
	// ErrInvalidConfig indicates authenticator configuration that is missing or malformed.
	ErrInvalidConfig = errors.New("invalid authenticator configuration")
	// ErrCredentialNotFound is returned by a Token that does not hold any of the requested credentials.
	ErrCredentialNotFound = errors.New("credential not found on token")
)
