package vault

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmcleod/keysafe/auth"
	"github.com/jmcleod/keysafe/crypto"
	icrypto "github.com/jmcleod/keysafe/internal/crypto"
	"github.com/jmcleod/keysafe/internal/util"
	"github.com/jmcleod/keysafe/keystore"
	"github.com/jmcleod/keysafe/storage"
)

const (
	BundleFormat  = "keysafe-bundle"
	BundleVersion = 1
)

// Bundle is a portable copy of a vault. Entries stay sealed to the vault
// key; the private key, when included, is sealed under an export
// passphrase whatever authenticator guards it locally.
type Bundle struct {
	Format     string                  `json:"format"`
	Version    int                     `json:"version"`
	ExportedAt time.Time               `json:"exported_at"`
	Vault      *storage.Vault          `json:"vault"`
	PublicKey  string                  `json:"public_key"`
	PrivateKey *icrypto.PassphraseWrap `json:"private_key,omitempty"`
	Checksum   string                  `json:"checksum"`
}

// Marshal encodes the bundle as indented JSON.
func (b *Bundle) Marshal() ([]byte, error) {
	return json.MarshalIndent(b, "", "  ")
}

// HasPrivateKey reports whether the bundle can restore a vault on its own.
func (b *Bundle) HasPrivateKey() bool {
	return b.PrivateKey != nil
}

func (b *Bundle) computeChecksum() (string, error) {
	c := *b
	c.Checksum = ""
	data, err := json.Marshal(&c)
	if err != nil {
		return "", err
	}
	return util.SHA256Hex(data), nil
}

// ParseBundle decodes and checks a bundle: format, checksum, the vault
// header and that the public key is the one the entries are sealed to.
func ParseBundle(data []byte) (*Bundle, error) {
	var b Bundle
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("%w: %v", errMalformedBundle, err)
	}
	if b.Format != BundleFormat || b.Version != BundleVersion {
		return nil, fmt.Errorf("%w: unsupported format", errMalformedBundle)
	}
	if b.Vault == nil {
		return nil, fmt.Errorf("%w: no vault", errMalformedBundle)
	}
	sum, err := b.computeChecksum()
	if err != nil || sum != b.Checksum {
		return nil, fmt.Errorf("%w: checksum mismatch", errMalformedBundle)
	}
	if b.Vault.Entries == nil {
		b.Vault.Entries = map[string]*storage.Entry{}
	}
	if err := b.Vault.Verify(); err != nil {
		return nil, fmt.Errorf("%w: %v", errMalformedBundle, err)
	}
	for _, name := range b.Vault.Names() {
		if err := b.Vault.CheckEntry(name); err != nil {
			return nil, fmt.Errorf("%w: %v", errMalformedBundle, err)
		}
	}
	pub, err := crypto.ParsePublicKey([]byte(b.PublicKey))
	if err != nil {
		return nil, fmt.Errorf("%w: public key: %v", errMalformedBundle, err)
	}
	if fp, err := crypto.Fingerprint(pub); err != nil || fp != b.Vault.KeyFingerprint {
		return nil, fmt.Errorf("%w: public key does not match vault", errMalformedBundle)
	}
	return &b, nil
}

// ExportOptions controls what Export includes.
type ExportOptions struct {
	// IncludePrivate adds the private key sealed under Passphrase. It
	// requires authentication.
	IncludePrivate bool
	Passphrase     []byte
}

// Export returns a bundle of the vault. Only including the private key
// needs authentication.
func (m *Manager) Export(ctx context.Context, opts ExportOptions) (*Bundle, error) {
	if opts.IncludePrivate && len(opts.Passphrase) < auth.MinPassphraseLength {
		return nil, m.fail("export", "", auth.ErrWeakPassphrase)
	}
	var b *Bundle
	err := m.write(ctx, "export", "", false, func(j storage.Journal) error {
		v, err := m.load(j)
		if err != nil {
			return err
		}
		pub, err := m.keys.PublicKeyPEM()
		if err != nil {
			return err
		}
		out := &Bundle{
			Format:     BundleFormat,
			Version:    BundleVersion,
			ExportedAt: m.now().UTC(),
			Vault:      v,
			PublicKey:  string(pub),
		}
		if opts.IncludePrivate {
			proof, err := m.authenticate(ctx, "export")
			if err != nil {
				return err
			}
			pemBytes, err := m.keys.ExportPrivateKey(proof)
			proof.Destroy()
			if err != nil {
				return err
			}
			aad := icrypto.AADBundle(v.ID, v.KeyFingerprint, BundleVersion)
			wrap, err := icrypto.SealWithPassphrase(opts.Passphrase, pemBytes, aad, m.kdf())
			util.WipeBytes(pemBytes)
			if err != nil {
				return fmt.Errorf("%w: sealing private key: %v", crypto.ErrCryptoFailure, err)
			}
			out.PrivateKey = wrap
		}
		sum, err := out.computeChecksum()
		if err != nil {
			return err
		}
		out.Checksum = sum
		b = out
		return nil
	})
	if err != nil {
		return nil, err
	}
	return b, nil
}

// MergeMode decides what a merging import does with names already stored.
type MergeMode string

const (
	MergeSkip      MergeMode = "skip"
	MergeOverwrite MergeMode = "overwrite"
)

// ParseMergeMode accepts "", "skip" and "overwrite".
func ParseMergeMode(s string) (MergeMode, error) {
	switch MergeMode(s) {
	case "", MergeSkip, MergeOverwrite:
		return MergeMode(s), nil
	default:
		return "", &Error{Kind: KindMalformedBundle, cause: fmt.Errorf("unknown merge mode %q", s)}
	}
}

// ImportOptions controls how a bundle meets an existing vault.
type ImportOptions struct {
	// Force replaces an initialized vault and its keys with the bundle.
	Force bool
	// Mode merges the bundle's entries into the live vault. It is only
	// allowed when the bundle is sealed to the live key.
	Mode MergeMode
	// Passphrase opens the bundle's private key.
	Passphrase []byte
}

// ImportResult counts what an import changed.
type ImportResult struct {
	Replaced    bool
	Imported    int
	Overwritten int
	Skipped     int
}

// Import restores or merges a bundle. Into an empty directory it restores
// the vault and keys, unprotected. Over an initialized vault it fails with
// ErrImportConflict unless opts.Force or opts.Mode is set.
func (m *Manager) Import(ctx context.Context, data []byte, opts ImportOptions) (*ImportResult, error) {
	b, err := ParseBundle(data)
	if err != nil {
		return nil, m.fail("import", "", err)
	}
	if _, err := ParseMergeMode(string(opts.Mode)); err != nil {
		return nil, err
	}
	res := &ImportResult{}
	err = m.write(ctx, "import", "", true, func(j storage.Journal) error {
		switch {
		case !m.initialized():
			return m.restore(ctx, j, b, opts.Passphrase, false, res)
		case opts.Force:
			return m.restore(ctx, j, b, opts.Passphrase, true, res)
		case opts.Mode != "":
			return m.merge(ctx, j, b, opts.Mode, res)
		default:
			return errImportConflict
		}
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// restore replaces the vault with the bundle. A bundle private key is
// staged, the vault saved, and the key promoted last; over a live vault the
// key is sealed under the authenticator already in force.
func (m *Manager) restore(ctx context.Context, j storage.Journal, b *Bundle, passphrase []byte, live bool, res *ImportResult) error {
	incoming := b.Vault.Clone()
	res.Replaced = true
	res.Imported = len(incoming.Entries)

	if !b.HasPrivateKey() {
		if !live {
			return fmt.Errorf("%w: bundle carries no private key", errMalformedBundle)
		}
		fp, err := m.keys.Fingerprint()
		if err != nil {
			return err
		}
		if fp != incoming.KeyFingerprint {
			return fmt.Errorf("%w: bundle is sealed to another key and carries no private key", errImportConflict)
		}
		cfg, err := m.keys.Config()
		if err != nil {
			return err
		}
		incoming.AuthVariant = string(cfg.Variant)
		return m.replaceVault(j, incoming)
	}

	if len(passphrase) == 0 {
		return fmt.Errorf("%w: bundle passphrase needed", auth.ErrAuthenticationRequired)
	}
	aad := icrypto.AADBundle(incoming.ID, incoming.KeyFingerprint, BundleVersion)
	pemBytes, err := icrypto.OpenWithPassphrase(passphrase, b.PrivateKey, aad)
	if err != nil {
		return fmt.Errorf("%w: bundle passphrase", auth.ErrAuthenticationFailed)
	}
	priv, err := crypto.ParsePrivateKey(pemBytes)
	util.WipeBytes(pemBytes)
	if err != nil {
		return fmt.Errorf("%w: private key: %v", errMalformedBundle, err)
	}
	if fp, err := crypto.Fingerprint(&priv.PublicKey); err != nil || fp != incoming.KeyFingerprint {
		util.WipeRSAKey(priv)
		return fmt.Errorf("%w: private key does not match vault", errMalformedBundle)
	}

	cfg, proof := auth.NoneConfig(), (*auth.Proof)(nil)
	if live {
		current, err := m.keys.Config()
		if err != nil {
			util.WipeRSAKey(priv)
			return err
		}
		if current.Protected() {
			proof, err = m.authenticate(ctx, "import")
			if err != nil {
				util.WipeRSAKey(priv)
				return err
			}
			defer proof.Destroy()
			cfg = current
		}
	}

	staged, err := m.keys.Stage(priv, cfg, proof)
	if err != nil {
		util.WipeRSAKey(priv)
		return err
	}
	incoming.AuthVariant = string(cfg.Variant)
	if err := m.replaceVault(j, incoming); err != nil {
		staged.Abort()
		return err
	}
	return staged.Commit()
}

// replaceVault saves v as the vault. A restored backup may be older than
// the journal's mark for its ID, so the mark is reset first.
func (m *Manager) replaceVault(j storage.Journal, v *storage.Vault) error {
	if err := j.ResetGeneration(v.ID); err != nil {
		return err
	}
	return m.save(j, v)
}

// merge copies the bundle's entries into the live vault. Entries from the
// same vault are copied sealed; entries from another vault are bound to
// its ID and have to be opened and sealed again, which needs approval.
func (m *Manager) merge(ctx context.Context, j storage.Journal, b *Bundle, mode MergeMode, res *ImportResult) error {
	v, err := m.load(j)
	if err != nil {
		return err
	}
	if b.Vault.KeyFingerprint != v.KeyFingerprint {
		return fmt.Errorf("%w: bundle is sealed to another key", errImportConflict)
	}

	var priv *keystore.PrivateKey
	if b.Vault.ID != v.ID {
		proof, err := m.authenticate(ctx, "import")
		if err != nil {
			return err
		}
		priv, err = m.keys.UnwrapPrivateKey(proof)
		proof.Destroy()
		if err != nil {
			return err
		}
		defer priv.Destroy()
	}

	for _, name := range b.Vault.Names() {
		exists := v.Has(name)
		if exists && mode == MergeSkip {
			res.Skipped++
			continue
		}
		if priv == nil {
			v.Entries[name] = b.Vault.Entries[name]
		} else {
			plaintext, err := b.Vault.Get(priv.Decrypter(), name)
			if err != nil {
				return err
			}
			err = v.Put(priv.Public(), name, plaintext, true, m.now())
			util.WipeBytes(plaintext)
			if err != nil {
				return err
			}
		}
		if exists {
			res.Overwritten++
		} else {
			res.Imported++
		}
	}
	if res.Imported+res.Overwritten == 0 {
		return nil
	}
	return m.save(j, v)
}
