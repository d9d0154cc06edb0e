package storage

import "fmt"

const (
	MaxNameLength = 100
	MaxValueSize  = 1 << 20
)

// ValidationError describes input rejected before any cryptographic work.
type ValidationError struct {
	Msg string
	Err error
}

func (e *ValidationError) Error() string { return e.Msg }
func (e *ValidationError) Unwrap() error { return e.Err }

func validationErrorf(sentinel error, format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...), Err: sentinel}
}

// ValidateName accepts 1 to MaxNameLength ASCII letters, digits,
// underscores and hyphens.
func ValidateName(name string) error {
	if name == "" {
		return validationErrorf(ErrInvalidName, "name must not be empty")
	}
	if len(name) > MaxNameLength {
		return validationErrorf(ErrInvalidName, "name exceeds maximum length of %d", MaxNameLength)
	}
	for _, r := range name {
		if !validNameRune(r) {
			return validationErrorf(ErrInvalidName, "name may only contain letters, digits, '_' and '-'")
		}
	}
	return nil
}

// ValidateValue rejects values larger than MaxValueSize. Empty values are allowed.
func ValidateValue(value []byte) error {
	if len(value) > MaxValueSize {
		return validationErrorf(ErrValueTooLarge, "value exceeds maximum size of %d bytes", MaxValueSize)
	}
	return nil
}

func validNameRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	case r == '_' || r == '-':
		return true
	default:
		return false
	}
}
