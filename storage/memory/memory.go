// Package memory provides a thread-safe in-memory implementation of storage.Repository.
package memory

import (
	"sync"

	"github.com/jmcleod/keysafe/storage"
)

// Repository keeps the vault document in memory. Suitable for tests and
// for callers that manage persistence themselves.
type Repository struct {
	mu    sync.RWMutex
	vault *storage.Vault
	saves int

	// FailSave, when set, is returned by every Save without storing anything.
	FailSave error
}

var _ storage.Repository = (*Repository)(nil)

// NewRepository creates a new empty in-memory Repository.
func NewRepository() *Repository {
	return &Repository{}
}

func (r *Repository) Load() (*storage.Vault, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.vault == nil {
		return nil, storage.ErrVaultNotFound
	}
	v := r.vault.Clone()
	if err := v.Verify(); err != nil {
		return nil, err
	}
	return v, nil
}

func (r *Repository) Save(v *storage.Vault) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailSave != nil {
		return r.FailSave
	}
	v.Seal()
	r.vault = v.Clone()
	r.saves++
	return nil
}

func (r *Repository) Exists() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.vault != nil
}

func (r *Repository) Remove() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.vault = nil
	return nil
}

// Saves reports how many saves succeeded.
func (r *Repository) Saves() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.saves
}
