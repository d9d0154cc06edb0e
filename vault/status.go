package vault

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/jmcleod/keysafe/auth"
	"github.com/jmcleod/keysafe/storage"
	bboltstore "github.com/jmcleod/keysafe/storage/bbolt"
	filestore "github.com/jmcleod/keysafe/storage/file"
)

// Status describes a vault without decrypting anything.
type Status struct {
	Initialized bool
	Dir         string
	VaultID     string
	AuthVariant auth.Variant
	// KeyLocation says where the private key lives: a plain file, a file
	// wrapped under a passphrase, the OS keychain or a hardware token.
	KeyLocation string
	EntryCount  int
	Fingerprint string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	Generation  uint64
	// Permissions lists vault files readable by other users.
	Permissions []PermissionIssue
}

// PermissionIssue is one file or directory with a mode looser than Want.
type PermissionIssue struct {
	Path string
	Mode fs.FileMode
	Want fs.FileMode
}

// Status reports the vault state. It takes no lock and never prompts; an
// uninitialized directory is not an error.
func (m *Manager) Status(ctx context.Context) (*Status, error) {
	if err := ctx.Err(); err != nil {
		return nil, m.fail("status", "", err)
	}
	st := &Status{Dir: m.dir}
	if !m.initialized() {
		return st, nil
	}
	st.Initialized = true

	cfg, err := m.keys.Config()
	if err != nil {
		return nil, m.fail("status", "", err)
	}
	st.AuthVariant = cfg.Variant
	st.KeyLocation = cfg.Location()

	v, err := m.repo.Load()
	if err != nil {
		return nil, m.fail("status", "", err)
	}
	st.VaultID = v.ID
	st.EntryCount = len(v.Entries)
	st.Fingerprint = v.KeyFingerprint
	st.CreatedAt = v.CreatedAt
	st.UpdatedAt = v.UpdatedAt
	st.Generation = v.Generation
	st.Permissions = m.auditPermissions()
	return st, nil
}

// auditPermissions checks the directory is private to the owner and every
// vault file is too. Windows has no comparable mode bits.
func (m *Manager) auditPermissions() []PermissionIssue {
	if runtime.GOOS == "windows" {
		return nil
	}
	var issues []PermissionIssue
	check := func(path string, want fs.FileMode) {
		info, err := os.Stat(path)
		if err != nil {
			return
		}
		if mode := info.Mode().Perm(); mode&^want != 0 {
			issues = append(issues, PermissionIssue{Path: path, Mode: mode, Want: want})
		}
	}
	check(m.dir, 0o700)
	files := append(m.keys.Files(),
		filepath.Join(m.dir, filestore.FileName),
		filepath.Join(m.dir, bboltstore.FileName),
	)
	for _, f := range files {
		check(f, 0o600)
	}
	return issues
}

// AuditLog returns up to limit journal events, oldest first. A limit of
// zero or less returns everything.
func (m *Manager) AuditLog(ctx context.Context, limit int) ([]storage.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, m.fail("log", "", err)
	}
	if !m.initialized() {
		return nil, m.fail("log", "", storage.ErrVaultNotFound)
	}
	if _, err := os.Stat(m.journalPath()); errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	j, err := bboltstore.OpenReadOnly(m.journalPath(), m.lockTimeout)
	if err != nil {
		return nil, m.fail("log", "", err)
	}
	defer j.Close()
	events, err := j.Events(limit)
	if err != nil {
		return nil, m.fail("log", "", err)
	}
	return events, nil
}

// VerifyAuditLog reads the whole journal and checks its hash chain.
func (m *Manager) VerifyAuditLog(ctx context.Context) (storage.ChainReport, error) {
	events, err := m.AuditLog(ctx, 0)
	if err != nil {
		return storage.ChainReport{}, err
	}
	return storage.VerifyChain(events), nil
}
