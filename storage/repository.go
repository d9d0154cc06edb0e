// Package storage holds the vault document model and the contract for
// persisting it. Entries are sealed individually with the cipher engine;
// the document itself is plain JSON guarded by a header checksum.
package storage

import (
	"errors"
	"time"

	"github.com/jmcleod/keysafe/crypto"
)

var (
	ErrVaultNotFound  = errors.New("vault not found")
	ErrVaultCorrupted = errors.New("vault corrupted")
	ErrEntryExists    = errors.New("entry already exists")
	ErrEntryNotFound  = errors.New("entry not found")
	ErrInvalidName    = errors.New("invalid entry name")
	ErrValueTooLarge  = errors.New("value too large")
	ErrVaultBusy      = errors.New("vault busy")
	ErrStorageFailure = errors.New("vault storage failure")
	// ErrRollbackDetected is returned when a vault generation is older than one already seen.
	ErrRollbackDetected = errors.New("rollback detected: vault generation is older than last seen")
	// ErrDecryptionFailure is the cipher engine's error, re-exported for callers of Vault.Get.
	ErrDecryptionFailure = crypto.ErrDecryptionFailure
)

// Repository loads and saves the vault document. Save must be atomic: a
// reader sees either the previous or the new document, never a mix.
type Repository interface {
	Load() (*Vault, error)
	Save(v *Vault) error
	Exists() bool
	Remove() error
}

// Event is one audit journal record. It never carries secret values.
type Event struct {
	ID      string    `json:"id"`
	Action  string    `json:"action"`
	Name    string    `json:"name,omitempty"`
	Outcome string    `json:"outcome"`
	Detail  string    `json:"detail,omitempty"`
	At      time.Time `json:"at"`
	// PrevHash links the event to its predecessor; see ChainHash.
	PrevHash string `json:"prev_hash"`
}

// Journal records audit events and the highest vault generation seen.
// Opening one for writing excludes every other writer.
type Journal interface {
	Append(ev Event) error
	Events(limit int) ([]Event, error)
	MaxGeneration(vaultID string) uint64
	SetMaxGeneration(vaultID string, gen uint64) error
	// ResetGeneration forgets the mark for vaultID, for restoring a backup.
	ResetGeneration(vaultID string) error
	Close() error
}
