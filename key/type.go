// Package key provides wrapped key material: key-encryption keys held in
// memguard enclaves, keys sealed under them, JSON serialization and
// rotation from one KEK to another.
package key

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Type represents the key type.
type Type int

const (
	KEK        Type = 0
	RSAPrivate Type = 1
)

// ErrUnknownType is returned when an unrecognized key type is encountered.
var ErrUnknownType = errors.New("unknown key type")

func (t Type) String() string {
	switch t {
	case KEK:
		return "KEK"
	case RSAPrivate:
		return "RSAPrivate"
	default:
		return "Unknown"
	}
}

func (t *Type) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("unmarshaling key type: %w", err)
	}

	switch s {
	case "KEK":
		*t = KEK
	case "RSAPrivate":
		*t = RSAPrivate
	default:
		return ErrUnknownType
	}

	return nil
}

func (t Type) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}
