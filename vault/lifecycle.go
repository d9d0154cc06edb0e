package vault

import (
	"context"
	"errors"
	"os"

	"github.com/jmcleod/keysafe/auth"
	"github.com/jmcleod/keysafe/keystore"
	"github.com/jmcleod/keysafe/storage"
)

// InitOptions selects the authenticator a new vault starts with.
type InitOptions struct {
	// Variant defaults to auth.VariantNone.
	Variant auth.Variant
}

// InitResult describes a freshly created vault.
type InitResult struct {
	VaultID     string
	Fingerprint string
	Variant     auth.Variant
}

// Init creates the keypair and an empty vault. When opts names a protected
// variant it is enrolled first and the private key is sealed under it.
func (m *Manager) Init(ctx context.Context, opts InitOptions) (*InitResult, error) {
	if m.initialized() {
		return nil, m.fail("init", "", keystore.ErrAlreadyInitialized)
	}
	variant := opts.Variant
	if variant == "" {
		variant = auth.VariantNone
	}

	var res *InitResult
	err := m.write(ctx, "init", "", true, func(j storage.Journal) error {
		// Another writer may have initialized the directory while we waited.
		if m.initialized() {
			return keystore.ErrAlreadyInitialized
		}
		v := storage.NewVault("", string(variant), m.now())

		cfg, proof := auth.NoneConfig(), (*auth.Proof)(nil)
		if variant != auth.VariantNone {
			var err error
			cfg, proof, err = m.gate.Enroll(ctx, variant, auth.EnrollRequest{
				VaultID: v.ID,
				Silent:  m.silent,
				Options: m.enroll,
			})
			if err != nil {
				return err
			}
			defer proof.Destroy()
		}

		kp, err := m.keys.Initialize(cfg, proof)
		if err != nil {
			m.revoke(ctx, cfg)
			return err
		}
		fp := kp.Fingerprint()
		kp.Destroy()

		v.KeyFingerprint = fp
		if err := m.save(j, v); err != nil {
			if derr := m.keys.Destroy(); derr != nil {
				m.logger.Warn("failed to remove keys after init failure", "error", derr)
			}
			m.revoke(ctx, cfg)
			return err
		}
		res = &InitResult{VaultID: v.ID, Fingerprint: fp, Variant: cfg.Variant}
		m.logger.Info("vault initialized", "vault_id", v.ID, "auth", cfg.Variant)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// Destroy removes the vault, its keys, any external authenticator state
// and the journal. Asking the user to confirm is the caller's job.
func (m *Manager) Destroy(ctx context.Context) error {
	var cfg auth.Config
	err := m.write(ctx, "destroy", "", false, func(j storage.Journal) error {
		c, err := m.keys.Config()
		if err == nil {
			cfg = c
		}
		if err := m.keys.Destroy(); err != nil {
			return err
		}
		if err := m.repo.Remove(); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return err
	}
	if cfg.Protected() {
		m.revoke(ctx, cfg)
	}
	// The journal is only closed once write returns.
	if err := os.Remove(m.journalPath()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return m.fail("destroy", "", storageError("removing journal", err))
	}
	m.Close()
	m.logger.Info("vault destroyed")
	return nil
}

// revoke drops external state for cfg, logging instead of failing since the
// caller is already reporting a more relevant outcome.
func (m *Manager) revoke(ctx context.Context, cfg auth.Config) {
	if !cfg.Protected() {
		return
	}
	if err := m.gate.Registry().Revoke(ctx, cfg); err != nil {
		m.logger.Warn("failed to revoke authenticator", "variant", cfg.Variant, "error", err)
	}
}
