package util

import (
	"fmt"

	"golang.org/x/crypto/argon2"
)

// Upper bounds for stored parameters. Anything above them comes from a
// damaged or crafted file and would stall key derivation.
const (
	MaxArgon2idTime        = 10
	MaxArgon2idParallelism = 64
)

type Argon2idParams struct {
	Time        uint32 `json:"time" toml:"time"`
	MemoryKiB   uint32 `json:"memory" toml:"memory"`
	Parallelism uint8  `json:"parallelism" toml:"parallelism"`
	KeyLen      uint32 `json:"key_len" toml:"key_len"`
}

func DefaultArgon2idParams() Argon2idParams {
	return Argon2idParams{
		Time:        1,
		MemoryKiB:   64 * 1024,
		Parallelism: 4,
		KeyLen:      32,
	}
}

// Argon2idProfile returns named parameter sets. "interactive" is the default.
func Argon2idProfile(name string) (Argon2idParams, error) {
	switch name {
	case "", "interactive":
		return DefaultArgon2idParams(), nil
	case "moderate":
		return Argon2idParams{Time: 3, MemoryKiB: 256 * 1024, Parallelism: 4, KeyLen: 32}, nil
	case "sensitive":
		return Argon2idParams{Time: 4, MemoryKiB: 1024 * 1024, Parallelism: 4, KeyLen: 32}, nil
	default:
		return Argon2idParams{}, fmt.Errorf("unknown argon2id profile %q", name)
	}
}

// Validate rejects parameter sets that are too weak or would exhaust memory.
func (p Argon2idParams) Validate() error {
	if p.KeyLen != 32 {
		return fmt.Errorf("argon2id key length must be 32 bytes")
	}
	if p.Time == 0 || p.Parallelism == 0 {
		return fmt.Errorf("argon2id time and parallelism must be non-zero")
	}
	if p.Time > MaxArgon2idTime {
		return fmt.Errorf("argon2id time %d exceeds %d", p.Time, MaxArgon2idTime)
	}
	if p.Parallelism > MaxArgon2idParallelism {
		return fmt.Errorf("argon2id parallelism %d exceeds %d", p.Parallelism, MaxArgon2idParallelism)
	}
	if p.MemoryKiB < 8*1024 || p.MemoryKiB > 4*1024*1024 {
		return fmt.Errorf("argon2id memory %d KiB out of range", p.MemoryKiB)
	}
	return nil
}

func DeriveArgon2idKey(passphrase, salt []byte, params Argon2idParams) ([]byte, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if len(salt) < 16 {
		return nil, fmt.Errorf("argon2id salt must be at least 16 bytes")
	}
	key := argon2.IDKey(passphrase, salt, params.Time, params.MemoryKiB, params.Parallelism, params.KeyLen)
	return key, nil
}
