package keystore

import (
	"crypto/rsa"
	"os"

	"github.com/jmcleod/keysafe/auth"
	"github.com/jmcleod/keysafe/crypto"
	"github.com/jmcleod/keysafe/internal/util"
)

// PublicKeyPEM returns the stored public key file as-is.
func (s *Store) PublicKeyPEM() ([]byte, error) {
	if _, err := s.LoadPublicKey(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.path(PublicKeyFile))
	if err != nil {
		return nil, storageError("reading public key", err)
	}
	return data, nil
}

// ExportPrivateKey returns the private key as unencrypted PKCS#8 PEM. The
// caller is responsible for protecting and wiping it.
func (s *Store) ExportPrivateKey(proof *auth.Proof) ([]byte, error) {
	priv, err := s.UnwrapPrivateKey(proof)
	if err != nil {
		return nil, err
	}
	defer priv.Destroy()
	return crypto.MarshalPrivateKey(priv.key)
}

// Install replaces the stored keys with priv, sealed under cfg.
func (s *Store) Install(priv *rsa.PrivateKey, cfg auth.Config, proof *auth.Proof) error {
	r, err := s.Stage(priv, cfg, proof)
	if err != nil {
		return err
	}
	return r.Commit()
}

// Stage writes priv, sealed under cfg, next to the live keys. Import uses
// it to save the restored vault before the keys are promoted, so a crash
// in between is finished by Recover like an interrupted rotation.
func (s *Store) Stage(priv *rsa.PrivateKey, cfg auth.Config, proof *auth.Proof) (*Rotation, error) {
	if err := util.EnsureDir(s.dir); err != nil {
		return nil, storageError("creating key directory", err)
	}
	kp := &crypto.Keypair{Public: &priv.PublicKey, Private: priv}
	s.discardStaged()
	if err := s.writeKeys(stagedSuffix, kp, cfg, proof); err != nil {
		s.discardStaged()
		return nil, err
	}
	return &Rotation{New: kp, store: s, config: &cfg}, nil
}

// Destroy securely removes every key file, staged files included.
func (s *Store) Destroy() error {
	s.discardStaged()
	for _, name := range []string{PrivateKeyFile, PublicKeyFile, ConfigFile} {
		if err := util.SecureRemove(s.path(name)); err != nil {
			return storageError("removing key file", err)
		}
	}
	return nil
}
