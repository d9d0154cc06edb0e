// Package file stores the vault document as a single JSON file, replaced
// atomically on every save.
package file

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/jmcleod/keysafe/internal/util"
	"github.com/jmcleod/keysafe/storage"
)

// FileName is the vault document inside the vault directory.
const FileName = "secrets.json"

// Repository implements storage.Repository on the local filesystem.
type Repository struct {
	dir          string
	beforeRename util.BeforeRenameHook
}

var _ storage.Repository = (*Repository)(nil)

type Option func(*Repository)

// WithBeforeRename runs hook after the new document is durable and before
// it replaces the old one. Returning an error aborts the save.
func WithBeforeRename(hook util.BeforeRenameHook) Option {
	return func(r *Repository) {
		r.beforeRename = hook
	}
}

// NewRepository returns a repository for the vault in dir.
func NewRepository(dir string, opts ...Option) *Repository {
	r := &Repository{dir: dir}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Path returns the location of the vault document.
func (r *Repository) Path() string {
	return filepath.Join(r.dir, FileName)
}

func (r *Repository) Exists() bool {
	return util.FileExists(r.Path())
}

func (r *Repository) Load() (*storage.Vault, error) {
	data, err := os.ReadFile(r.Path())
	if errors.Is(err, os.ErrNotExist) {
		return nil, storage.ErrVaultNotFound
	}
	if err != nil {
		return nil, storageError("reading vault", err)
	}
	var v storage.Vault
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("%w: unreadable document", storage.ErrVaultCorrupted)
	}
	if err := v.Verify(); err != nil {
		return nil, err
	}
	if v.Entries == nil {
		v.Entries = map[string]*storage.Entry{}
	}
	return &v, nil
}

// Save seals the header checksum and atomically replaces the document.
func (r *Repository) Save(v *storage.Vault) error {
	v.Seal()
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding vault: %w", err)
	}
	if err := util.EnsureDir(r.dir); err != nil {
		return storageError("creating vault directory", err)
	}
	if err := util.WriteFileAtomic(r.Path(), data, r.beforeRename); err != nil {
		return storageError("writing vault", err)
	}
	return nil
}

// Remove overwrites and deletes the document.
func (r *Repository) Remove() error {
	if err := util.SecureRemove(r.Path()); err != nil {
		return storageError("removing vault", err)
	}
	return nil
}

func storageError(op string, err error) error {
	var pe *fs.PathError
	if errors.As(err, &pe) {
		err = pe.Err
	}
	var le *os.LinkError
	if errors.As(err, &le) {
		err = le.Err
	}
	return fmt.Errorf("%w: %s: %w", storage.ErrStorageFailure, op, err)
}
