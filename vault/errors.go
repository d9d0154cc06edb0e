package vault

import (
	"context"
	"errors"

	"github.com/jmcleod/keysafe/auth"
	"github.com/jmcleod/keysafe/crypto"
	"github.com/jmcleod/keysafe/keystore"
	"github.com/jmcleod/keysafe/storage"
)

// Category groups error kinds for callers that only branch on the broad
// class of failure.
type Category int

const (
	CategoryConfiguration Category = iota + 1
	CategoryAuthentication
	CategoryValidation
	CategoryCrypto
	CategoryStorage
	CategoryConflict
)

func (c Category) Error() string {
	switch c {
	case CategoryConfiguration:
		return "configuration error"
	case CategoryAuthentication:
		return "authentication error"
	case CategoryValidation:
		return "validation error"
	case CategoryCrypto:
		return "crypto error"
	case CategoryStorage:
		return "storage error"
	case CategoryConflict:
		return "conflict"
	default:
		return "unknown error"
	}
}

// Kind identifies one failure the Manager reports.
type Kind int

const (
	KindNotInitialized Kind = iota + 1
	KindAlreadyInitialized
	KindUnsupportedVariant
	KindInvalidConfig
	KindAuthenticationRequired
	KindAuthenticationFailed
	KindCancelled
	KindTimedOut
	KindNoAuthenticatorFound
	KindAuthInProgress
	KindInvalidName
	KindValueTooLarge
	KindMalformedBundle
	KindWeakPassphrase
	KindPassphraseMismatch
	KindCryptoFailure
	KindDecryptionFailure
	KindStorageFailure
	KindVaultCorrupted
	KindVaultBusy
	KindEntryExists
	KindEntryNotFound
	KindImportConflict
	KindRotationConflict
)

var kindInfo = map[Kind]struct {
	msg      string
	category Category
}{
	KindNotInitialized:         {"vault not initialized", CategoryConfiguration},
	KindAlreadyInitialized:     {"vault already initialized", CategoryConfiguration},
	KindUnsupportedVariant:     {"unsupported authenticator", CategoryConfiguration},
	KindInvalidConfig:          {"invalid authenticator configuration", CategoryConfiguration},
	KindAuthenticationRequired: {"authentication required", CategoryAuthentication},
	KindAuthenticationFailed:   {"authentication failed", CategoryAuthentication},
	KindCancelled:              {"authentication cancelled", CategoryAuthentication},
	KindTimedOut:               {"authentication timed out", CategoryAuthentication},
	KindNoAuthenticatorFound:   {"no authenticator found", CategoryAuthentication},
	KindAuthInProgress:         {"authentication already in progress", CategoryAuthentication},
	KindInvalidName:            {"invalid entry name", CategoryValidation},
	KindValueTooLarge:          {"value too large", CategoryValidation},
	KindMalformedBundle:        {"malformed bundle", CategoryValidation},
	KindWeakPassphrase:         {"passphrase too short", CategoryValidation},
	KindPassphraseMismatch:     {"passphrases do not match", CategoryValidation},
	KindCryptoFailure:          {"cryptographic failure", CategoryCrypto},
	KindDecryptionFailure:      {"decryption failed", CategoryCrypto},
	KindStorageFailure:         {"storage failure", CategoryStorage},
	KindVaultCorrupted:         {"vault corrupted", CategoryStorage},
	KindVaultBusy:              {"vault busy", CategoryStorage},
	KindEntryExists:            {"entry already exists", CategoryConflict},
	KindEntryNotFound:          {"entry not found", CategoryConflict},
	KindImportConflict:         {"vault already initialized; import needs force", CategoryConflict},
	KindRotationConflict:       {"key rotation conflict", CategoryConflict},
}

func (k Kind) Error() string {
	if info, ok := kindInfo[k]; ok {
		return info.msg
	}
	return "unknown error"
}

// Category returns the class k belongs to.
func (k Kind) Category() Category {
	return kindInfo[k].category
}

// Sentinels for errors.Is. Each matches any *Error of that kind.
var (
	ErrConfiguration  error = CategoryConfiguration
	ErrAuthentication error = CategoryAuthentication
	ErrValidation     error = CategoryValidation
	ErrCrypto         error = CategoryCrypto
	ErrStorage        error = CategoryStorage
	ErrConflict       error = CategoryConflict

	ErrNotInitialized         error = KindNotInitialized
	ErrAlreadyInitialized     error = KindAlreadyInitialized
	ErrUnsupportedVariant     error = KindUnsupportedVariant
	ErrInvalidConfig          error = KindInvalidConfig
	ErrAuthenticationRequired error = KindAuthenticationRequired
	ErrAuthenticationFailed   error = KindAuthenticationFailed
	ErrCancelled              error = KindCancelled
	ErrTimedOut               error = KindTimedOut
	ErrNoAuthenticatorFound   error = KindNoAuthenticatorFound
	ErrAuthInProgress         error = KindAuthInProgress
	ErrInvalidName            error = KindInvalidName
	ErrValueTooLarge          error = KindValueTooLarge
	ErrMalformedBundle        error = KindMalformedBundle
	ErrWeakPassphrase         error = KindWeakPassphrase
	ErrPassphraseMismatch     error = KindPassphraseMismatch
	ErrCryptoFailure          error = KindCryptoFailure
	ErrDecryptionFailure      error = KindDecryptionFailure
	ErrStorageFailure         error = KindStorageFailure
	ErrVaultCorrupted         error = KindVaultCorrupted
	ErrVaultBusy              error = KindVaultBusy
	ErrEntryExists            error = KindEntryExists
	ErrEntryNotFound          error = KindEntryNotFound
	ErrImportConflict         error = KindImportConflict
	ErrRotationConflict       error = KindRotationConflict
)

// Error is returned by every Manager operation. Its message names the kind
// and, where relevant, the entry; it never contains paths or secret values.
// Unwrap exposes the internal cause.
type Error struct {
	Kind Kind
	Name string

	cause error
}

func (e *Error) Error() string {
	if e.Name != "" {
		return e.Kind.Error() + ": " + e.Name
	}
	return e.Kind.Error()
}

func (e *Error) Unwrap() error { return e.cause }

// Is matches the error's kind and its category.
func (e *Error) Is(target error) bool {
	switch t := target.(type) {
	case Kind:
		return e.Kind == t
	case Category:
		return e.Kind.Category() == t
	}
	return false
}

// classification order matters: specific causes are listed before the
// generic failures they are often wrapped in.
var classification = []struct {
	err  error
	kind Kind
}{
	{auth.ErrAuthenticationRequired, KindAuthenticationRequired},
	{auth.ErrAuthenticationFailed, KindAuthenticationFailed},
	{auth.ErrCancelled, KindCancelled},
	{auth.ErrTimedOut, KindTimedOut},
	{context.Canceled, KindCancelled},
	{context.DeadlineExceeded, KindTimedOut},
	{auth.ErrNoAuthenticatorFound, KindNoAuthenticatorFound},
	{auth.ErrAuthInProgress, KindAuthInProgress},
	{auth.ErrUnsupportedVariant, KindUnsupportedVariant},
	{auth.ErrInvalidConfig, KindInvalidConfig},
	{auth.ErrWeakPassphrase, KindWeakPassphrase},
	{auth.ErrPassphraseMismatch, KindPassphraseMismatch},
	{errMalformedBundle, KindMalformedBundle},
	{errImportConflict, KindImportConflict},
	{keystore.ErrAlreadyInitialized, KindAlreadyInitialized},
	{keystore.ErrNotInitialized, KindNotInitialized},
	{keystore.ErrKeyMismatch, KindRotationConflict},
	{keystore.ErrRotationClosed, KindRotationConflict},
	{keystore.ErrKeyCorrupted, KindVaultCorrupted},
	{storage.ErrVaultNotFound, KindNotInitialized},
	{storage.ErrRollbackDetected, KindVaultCorrupted},
	{storage.ErrVaultCorrupted, KindVaultCorrupted},
	{storage.ErrEntryExists, KindEntryExists},
	{storage.ErrEntryNotFound, KindEntryNotFound},
	{storage.ErrInvalidName, KindInvalidName},
	{storage.ErrValueTooLarge, KindValueTooLarge},
	{storage.ErrVaultBusy, KindVaultBusy},
	{crypto.ErrDecryptionFailure, KindDecryptionFailure},
	{crypto.ErrCryptoFailure, KindCryptoFailure},
	{crypto.ErrInvalidKey, KindCryptoFailure},
	{keystore.ErrStorageFailure, KindStorageFailure},
	{storage.ErrStorageFailure, KindStorageFailure},
}

var (
	errMalformedBundle = errors.New("malformed bundle")
	errImportConflict  = errors.New("import conflict")
)

// classify maps an internal error onto the public taxonomy. Unknown causes
// are reported as storage failures since they come from I/O.
func classify(err error, name string) error {
	if err == nil {
		return nil
	}
	var ve *Error
	if errors.As(err, &ve) {
		return err
	}
	kind := KindStorageFailure
	for _, c := range classification {
		if errors.Is(err, c.err) {
			kind = c.kind
			break
		}
	}
	return &Error{Kind: kind, Name: name, cause: err}
}

// KindOf returns the kind of a Manager error, or zero for other errors.
func KindOf(err error) Kind {
	var ve *Error
	if errors.As(err, &ve) {
		return ve.Kind
	}
	return 0
}
