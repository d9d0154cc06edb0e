package storage

import (
	stdcrypto "crypto"
	"crypto/rsa"
	"fmt"
	"path"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/jmcleod/keysafe/crypto"
	icrypto "github.com/jmcleod/keysafe/internal/crypto"
	"github.com/jmcleod/keysafe/internal/util"
	"github.com/jmcleod/keysafe/internal/uuid"
)

const (
	Format  = "keysafe-vault"
	Version = 1
)

// Vault is the secrets document. Entries are sealed to the key with
// KeyFingerprint; the header checksum covers every field except entry
// contents, so a damaged entry never hides the others.
type Vault struct {
	Format         string            `json:"format"`
	Version        int               `json:"version"`
	ID             string            `json:"vault_id"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
	Generation     uint64            `json:"generation"`
	KeyFingerprint string            `json:"key_fingerprint"`
	AuthVariant    string            `json:"auth_variant"`
	Entries        map[string]*Entry `json:"entries"`
	Checksum       string            `json:"header_checksum"`
}

// NewVault returns an empty vault sealed to the key with fingerprint.
func NewVault(fingerprint, authVariant string, now time.Time) *Vault {
	now = now.UTC()
	return &Vault{
		Format:         Format,
		Version:        Version,
		ID:             uuid.New(),
		CreatedAt:      now,
		UpdatedAt:      now,
		KeyFingerprint: fingerprint,
		AuthVariant:    authVariant,
		Entries:        map[string]*Entry{},
	}
}

// Clone returns a deep copy.
func (v *Vault) Clone() *Vault {
	c := *v
	c.Entries = make(map[string]*Entry, len(v.Entries))
	for name, e := range v.Entries {
		c.Entries[name] = e.clone()
	}
	return &c
}

// Put seals value under name. An existing entry is replaced only when
// overwrite is set; its creation time is kept. The name and size are
// checked before any encryption happens.
func (v *Vault) Put(pub *rsa.PublicKey, name string, value []byte, overwrite bool, now time.Time) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	if err := ValidateValue(value); err != nil {
		return err
	}
	existing, ok := v.Entries[name]
	if ok && !overwrite {
		return fmt.Errorf("%w: %s", ErrEntryExists, name)
	}
	sealed, err := SealEntry(pub, v.ID, name, value)
	if err != nil {
		return err
	}
	now = now.UTC()
	e := &Entry{Sealed: *sealed, CreatedAt: now, UpdatedAt: now}
	if ok {
		e.CreatedAt = existing.CreatedAt
	}
	if v.Entries == nil {
		v.Entries = map[string]*Entry{}
	}
	v.Entries[name] = e
	return nil
}

// Get decrypts the value stored under name.
func (v *Vault) Get(dec stdcrypto.Decrypter, name string) ([]byte, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	e, ok := v.Entries[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrEntryNotFound, name)
	}
	return OpenEntry(dec, v.ID, name, e)
}

// Delete removes name.
func (v *Vault) Delete(name string) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	if _, ok := v.Entries[name]; !ok {
		return fmt.Errorf("%w: %s", ErrEntryNotFound, name)
	}
	delete(v.Entries, name)
	return nil
}

// Has reports whether name exists. Invalid names never exist.
func (v *Vault) Has(name string) bool {
	_, ok := v.Entries[name]
	return ok
}

// Names returns entry names in sorted order.
func (v *Vault) Names() []string {
	names := make([]string, 0, len(v.Entries))
	for name := range v.Entries {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Search returns sorted names matching pattern. A pattern containing glob
// metacharacters is matched as a glob; anything else is a case-insensitive
// substring match.
func (v *Vault) Search(pattern string) ([]string, error) {
	glob := strings.ContainsAny(pattern, "*?[")
	if glob {
		if _, err := path.Match(pattern, ""); err != nil {
			return nil, validationErrorf(ErrInvalidName, "invalid search pattern")
		}
	}
	needle := strings.ToLower(pattern)
	var out []string
	for _, name := range v.Names() {
		if glob {
			if ok, _ := path.Match(pattern, name); ok {
				out = append(out, name)
			}
			continue
		}
		if strings.Contains(strings.ToLower(name), needle) {
			out = append(out, name)
		}
	}
	return out, nil
}

// Reencrypt returns a copy of v with every entry decrypted by dec and
// sealed to pub. v itself is never modified; if any entry fails the whole
// operation fails and no copy is returned.
func (v *Vault) Reencrypt(dec stdcrypto.Decrypter, pub *rsa.PublicKey, now time.Time) (*Vault, error) {
	fp, err := crypto.Fingerprint(pub)
	if err != nil {
		return nil, err
	}
	out := v.Clone()
	out.KeyFingerprint = fp
	for _, name := range v.Names() {
		plain, err := v.Get(dec, name)
		if err != nil {
			return nil, fmt.Errorf("re-encrypting %s: %w", name, err)
		}
		sealed, err := SealEntry(pub, out.ID, name, plain)
		util.WipeBytes(plain)
		if err != nil {
			return nil, fmt.Errorf("re-encrypting %s: %w", name, err)
		}
		out.Entries[name].Sealed = *sealed
		out.Entries[name].UpdatedAt = now.UTC()
	}
	return out, nil
}

// Touch advances the generation and modification time ahead of a save.
func (v *Vault) Touch(now time.Time) {
	v.Generation++
	v.UpdatedAt = now.UTC()
}

// ComputeChecksum hashes the header fields and the sorted entry names, each
// length-prefixed.
func (v *Vault) ComputeChecksum() string {
	parts := []string{
		v.Format,
		strconv.Itoa(v.Version),
		v.ID,
		v.CreatedAt.UTC().Format(time.RFC3339Nano),
		v.UpdatedAt.UTC().Format(time.RFC3339Nano),
		strconv.FormatUint(v.Generation, 10),
		v.KeyFingerprint,
		v.AuthVariant,
	}
	parts = append(parts, v.Names()...)
	return util.SHA256Hex(icrypto.LengthPrefixed(parts...))
}

// Seal records the current header checksum.
func (v *Vault) Seal() {
	v.Checksum = v.ComputeChecksum()
}

// Verify checks the format, version, checksum and entry shapes.
func (v *Vault) Verify() error {
	if v.Format != Format {
		return fmt.Errorf("%w: unknown format", ErrVaultCorrupted)
	}
	if v.Version != Version {
		return fmt.Errorf("%w: unsupported version %d", ErrVaultCorrupted, v.Version)
	}
	if v.ID == "" || v.KeyFingerprint == "" {
		return fmt.Errorf("%w: header incomplete", ErrVaultCorrupted)
	}
	if v.Checksum != v.ComputeChecksum() {
		return fmt.Errorf("%w: header checksum mismatch", ErrVaultCorrupted)
	}
	for name, e := range v.Entries {
		if ValidateName(name) != nil || e == nil {
			return fmt.Errorf("%w: malformed entry", ErrVaultCorrupted)
		}
	}
	return nil
}

// CheckEntry reports whether the stored shape of name is plausible without
// decrypting it. A damaged entry is a decryption failure for that entry
// alone; the rest of the vault stays readable.
func (v *Vault) CheckEntry(name string) error {
	e, ok := v.Entries[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrEntryNotFound, name)
	}
	if err := e.Validate(); err != nil {
		return fmt.Errorf("%w: %s: %v", crypto.ErrDecryptionFailure, name, err)
	}
	return nil
}
