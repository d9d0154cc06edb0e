package keystore

import (
	"errors"
	"fmt"
	"os"

	"github.com/jmcleod/keysafe/auth"
	"github.com/jmcleod/keysafe/crypto"
	"github.com/jmcleod/keysafe/internal/util"
)

// Rotation is a staged key replacement. The new keypair is written next to
// the live one and only promoted by Commit, after the caller has persisted
// data re-encrypted under it. Abort discards the staged keys.
type Rotation struct {
	Old *PrivateKey
	New *crypto.Keypair

	store  *Store
	config *auth.Config // written to the mirror on Commit when set
	done   bool
}

// Rotate unwraps the live key with proof, generates a replacement and stages
// it under the same authenticator configuration.
func (s *Store) Rotate(proof *auth.Proof) (*Rotation, error) {
	cfg, err := s.Config()
	if err != nil {
		return nil, err
	}
	old, err := s.UnwrapPrivateKey(proof)
	if err != nil {
		return nil, err
	}
	kp, err := crypto.GenerateKeypair()
	if err != nil {
		old.Destroy()
		return nil, err
	}
	s.discardStaged()
	if err := s.writeKeys(stagedSuffix, kp, cfg, proof); err != nil {
		old.Destroy()
		kp.Destroy()
		s.discardStaged()
		return nil, err
	}
	s.logger.Debug("rotation staged", "old", old.Fingerprint(), "new", kp.Fingerprint())
	return &Rotation{Old: old, New: kp, store: s}, nil
}

// Commit destroys the old private key and promotes the staged pair.
func (r *Rotation) Commit() error {
	if r.done {
		return ErrRotationClosed
	}
	r.done = true
	defer r.wipe()
	if err := util.Overwrite(r.store.path(PrivateKeyFile)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return storageError("destroying old private key", err)
	}
	if err := r.store.promote(); err != nil {
		return err
	}
	if r.config != nil {
		if err := r.store.writeMirror(*r.config); err != nil {
			return err
		}
	}
	r.store.logger.Info("keypair replaced", "fingerprint", r.New.Fingerprint())
	return nil
}

// Abort discards the staged pair and leaves the live keys untouched.
func (r *Rotation) Abort() {
	if r.done {
		return
	}
	r.done = true
	r.wipe()
	r.store.discardStaged()
}

func (r *Rotation) wipe() {
	r.Old.Destroy()
	r.New.Destroy()
}

func (s *Store) promote() error {
	stagedPriv := s.path(PrivateKeyFile + stagedSuffix)
	if util.FileExists(stagedPriv) {
		if err := os.Rename(stagedPriv, s.path(PrivateKeyFile)); err != nil {
			return storageError("promoting private key", err)
		}
	}
	if err := os.Rename(s.path(PublicKeyFile+stagedSuffix), s.path(PublicKeyFile)); err != nil {
		return storageError("promoting public key", err)
	}
	util.SyncDir(s.dir)
	return nil
}

func (s *Store) discardStaged() {
	if err := util.SecureRemove(s.path(PrivateKeyFile + stagedSuffix)); err != nil {
		s.logger.Warn("failed to remove staged private key", "error", err)
	}
	_ = os.Remove(s.path(PublicKeyFile + stagedSuffix))
}

// Recover finishes or discards a rotation interrupted before Commit
// completed. vaultFingerprint is the key fingerprint recorded in the vault;
// the staged keys are promoted when it matches them and dropped when it
// matches the live keys. It reports whether anything was staged.
func (s *Store) Recover(vaultFingerprint string) (bool, error) {
	stagedPub := s.path(PublicKeyFile + stagedSuffix)
	if !util.FileExists(stagedPub) {
		if util.FileExists(s.path(PrivateKeyFile + stagedSuffix)) {
			s.discardStaged()
			return true, nil
		}
		return false, nil
	}
	pub, err := s.loadPublicKey(stagedPub)
	if err != nil {
		s.discardStaged()
		return true, nil
	}
	staged, err := crypto.Fingerprint(pub)
	if err != nil {
		s.discardStaged()
		return true, nil
	}
	live, liveErr := s.Fingerprint()

	switch {
	case vaultFingerprint == "":
		s.discardStaged()
	case vaultFingerprint == staged:
		if util.FileExists(s.path(PrivateKeyFile + stagedSuffix)) {
			if err := util.Overwrite(s.path(PrivateKeyFile)); err != nil && !errors.Is(err, os.ErrNotExist) {
				return true, storageError("destroying old private key", err)
			}
		}
		if err := s.promote(); err != nil {
			return true, err
		}
		s.logger.Warn("completed interrupted key rotation", "fingerprint", staged)
	case liveErr == nil && vaultFingerprint == live:
		s.discardStaged()
		s.logger.Warn("discarded interrupted key rotation")
	default:
		return true, fmt.Errorf("%w: staged rotation cannot be reconciled", ErrKeyMismatch)
	}
	return true, nil
}
