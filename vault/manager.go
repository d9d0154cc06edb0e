// Package vault is the entry point for callers. Manager ties the
// authenticator gate, the key store, the vault document and the journal
// together and reports every failure through one error taxonomy.
//
// The filesystem is the only state: each operation loads what it needs,
// and writers hold the journal lock from load to save.
package vault

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/jmcleod/keysafe/auth"
	"github.com/jmcleod/keysafe/internal/util"
	"github.com/jmcleod/keysafe/internal/uuid"
	"github.com/jmcleod/keysafe/keystore"
	"github.com/jmcleod/keysafe/storage"
	bboltstore "github.com/jmcleod/keysafe/storage/bbolt"
	filestore "github.com/jmcleod/keysafe/storage/file"
)

// Manager runs vault operations against one directory.
type Manager struct {
	dir         string
	keys        *keystore.Store
	repo        storage.Repository
	gate        *auth.Gate
	approver    auth.Approver
	batch       *auth.Batch
	logger      *slog.Logger
	now         func() time.Time
	lockTimeout time.Duration
	silent      bool
	enroll      auth.EnrollOptions

	backends    []auth.Authenticator
	observers   []auth.Observer
	authTimeout time.Duration
	proofTTL    time.Duration
	batchWindow time.Duration
}

// New returns a Manager for the vault in dir. Nothing is read until an
// operation runs.
func New(dir string, opts ...Option) (*Manager, error) {
	m := &Manager{
		dir:         dir,
		logger:      slog.Default(),
		now:         time.Now,
		lockTimeout: DefaultLockTimeout,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.repo == nil {
		m.repo = filestore.NewRepository(dir)
	}
	m.keys = keystore.New(dir, keystore.WithLogger(m.logger), keystore.WithClock(m.now))

	gateOpts := []auth.GateOption{
		auth.WithTimeout(m.authTimeout),
		auth.WithProofTTL(m.proofTTL),
		auth.WithLogger(m.logger),
		auth.WithClock(m.now),
	}
	for _, fn := range m.observers {
		gateOpts = append(gateOpts, auth.WithObserver(fn))
	}
	m.gate = auth.NewGate(auth.NewRegistry(m.backends...), gateOpts...)
	m.approver = m.gate
	if m.batchWindow > 0 {
		b, err := auth.NewBatch(m.gate, m.batchWindow)
		if err != nil {
			return nil, classify(fmt.Errorf("%w: %v", auth.ErrInvalidConfig, err), "")
		}
		m.batch = b
		m.approver = b
	}
	return m, nil
}

// Dir returns the vault directory.
func (m *Manager) Dir() string {
	return m.dir
}

// Close drops any batched approval.
func (m *Manager) Close() {
	if m.batch != nil {
		m.batch.Close()
	}
}

func (m *Manager) initialized() bool {
	return m.keys.Exists() || m.repo.Exists()
}

// fail converts err for callers and logs the cause, which may name paths,
// at debug level only.
func (m *Manager) fail(op, name string, err error) error {
	if err == nil {
		return nil
	}
	out := classify(err, name)
	m.logger.Debug("vault operation failed", "operation", op, "kind", KindOf(out).Error(), "cause", err)
	return out
}

func (m *Manager) journalPath() string {
	return filepath.Join(m.dir, bboltstore.FileName)
}

// write runs fn holding the journal lock and records the outcome. It
// refuses to run against a directory that holds no vault unless fresh is
// set.
func (m *Manager) write(ctx context.Context, action, name string, fresh bool, fn func(j storage.Journal) error) error {
	if err := ctx.Err(); err != nil {
		return m.fail(action, name, err)
	}
	if !fresh && !m.initialized() {
		return m.fail(action, name, storage.ErrVaultNotFound)
	}
	if err := util.EnsureDir(m.dir); err != nil {
		return m.fail(action, name, storageError("creating vault directory", err))
	}
	j, err := bboltstore.Open(m.journalPath(), m.lockTimeout)
	if err != nil {
		return m.fail(action, name, err)
	}
	err = fn(j)
	m.record(j, action, name, err)
	if cerr := j.Close(); cerr != nil {
		m.logger.Warn("failed to close journal", "error", cerr)
	}
	return m.fail(action, name, err)
}

// load reads the vault under the lock, finishing any interrupted key
// replacement and rejecting documents older than the journal has seen.
func (m *Manager) load(j storage.Journal) (*storage.Vault, error) {
	v, err := m.repo.Load()
	if err != nil {
		return nil, err
	}
	if _, err := m.keys.Recover(v.KeyFingerprint); err != nil {
		return nil, err
	}
	if seen := j.MaxGeneration(v.ID); v.Generation < seen {
		return nil, fmt.Errorf("%w: %w", storage.ErrVaultCorrupted, storage.ErrRollbackDetected)
	}
	fp, err := m.keys.Fingerprint()
	if err != nil {
		return nil, err
	}
	if fp != v.KeyFingerprint {
		return nil, fmt.Errorf("%w: vault is sealed to a different key", storage.ErrVaultCorrupted)
	}
	return v, nil
}

// save persists v and moves the journal mark.
func (m *Manager) save(j storage.Journal, v *storage.Vault) error {
	if err := m.persist(v); err != nil {
		return err
	}
	return j.SetMaxGeneration(v.ID, v.Generation)
}

// persist bumps the generation and writes v after checking it.
func (m *Manager) persist(v *storage.Vault) error {
	v.Touch(m.now())
	v.Seal()
	if err := v.Verify(); err != nil {
		return err
	}
	return m.repo.Save(v)
}

func (m *Manager) record(j storage.Journal, action, name string, err error) {
	ev := storage.Event{
		ID:      uuid.New(),
		Action:  action,
		Name:    name,
		Outcome: "ok",
		At:      m.now().UTC(),
	}
	if err != nil {
		ev.Outcome = "error"
		ev.Detail = KindOf(classify(err, "")).Error()
	}
	if aerr := j.Append(ev); aerr != nil {
		m.logger.Warn("failed to append audit event", "action", action, "error", aerr)
	}
}

// authenticate asks the gate to approve op against the live key
// configuration.
func (m *Manager) authenticate(ctx context.Context, op string) (*auth.Proof, error) {
	cfg, err := m.keys.Config()
	if err != nil {
		return nil, err
	}
	return m.approver.Approve(ctx, auth.Request{Operation: op, Config: cfg, Silent: m.silent})
}

// storageError wraps an I/O failure without the path it names.
func storageError(op string, err error) error {
	var pe *fs.PathError
	if errors.As(err, &pe) {
		err = pe.Err
	}
	return fmt.Errorf("%w: %s: %v", storage.ErrStorageFailure, op, err)
}

func (m *Manager) kdf() util.Argon2idParams {
	if m.enroll.KDF == (util.Argon2idParams{}) {
		return util.DefaultArgon2idParams()
	}
	return m.enroll.KDF
}
