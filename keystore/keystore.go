// Package keystore persists the vault keypair. The public key is stored as
// PEM. The private key is stored as PEM when no authenticator is configured
// and otherwise as a JSON document sealed under the authenticator's KEK.
package keystore

import (
	stdcrypto "crypto"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/jmcleod/keysafe/auth"
	"github.com/jmcleod/keysafe/crypto"
	"github.com/jmcleod/keysafe/internal/util"
	"github.com/jmcleod/keysafe/key"
)

const (
	PublicKeyFile  = "public_key.pem"
	PrivateKeyFile = "private_key"
	ConfigFile     = "config.json"
	stagedSuffix   = ".next"

	documentVersion = 1
)

// Store reads and writes the key files in one directory.
type Store struct {
	dir    string
	logger *slog.Logger
	now    func() time.Time
}

type Option func(*Store)

func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

func New(dir string, opts ...Option) *Store {
	s := &Store{dir: dir, logger: slog.Default(), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Dir returns the directory the store manages.
func (s *Store) Dir() string {
	return s.dir
}

// Exists reports whether either key file is present.
func (s *Store) Exists() bool {
	return util.FileExists(s.path(PublicKeyFile)) || util.FileExists(s.path(PrivateKeyFile))
}

// Files lists the key files the store owns, for permission audits.
func (s *Store) Files() []string {
	return []string{s.path(PublicKeyFile), s.path(PrivateKeyFile), s.path(ConfigFile)}
}

// document is the on-disk form of a wrapped private key.
type document struct {
	Ver    int             `json:"ver"`
	Config auth.Config     `json:"config"`
	Key    json.RawMessage `json:"key"`
}

// PrivateKey is an unwrapped private key. Destroy it when done.
type PrivateKey struct {
	key         *rsa.PrivateKey
	fingerprint string
}

func newPrivateKey(k *rsa.PrivateKey) (*PrivateKey, error) {
	fp, err := crypto.Fingerprint(&k.PublicKey)
	if err != nil {
		return nil, err
	}
	return &PrivateKey{key: k, fingerprint: fp}, nil
}

func (k *PrivateKey) Decrypter() stdcrypto.Decrypter {
	return k.key
}

func (k *PrivateKey) Public() *rsa.PublicKey {
	return &k.key.PublicKey
}

func (k *PrivateKey) Fingerprint() string {
	return k.fingerprint
}

// Destroy wipes the key material.
func (k *PrivateKey) Destroy() {
	if k == nil || k.key == nil {
		return
	}
	util.WipeRSAKey(k.key)
	k.key = nil
}

// Initialize generates a keypair and writes it under cfg. It refuses to
// overwrite existing keys. proof must come from enrolling cfg unless cfg is
// unprotected.
func (s *Store) Initialize(cfg auth.Config, proof *auth.Proof) (*crypto.Keypair, error) {
	if s.Exists() {
		return nil, ErrAlreadyInitialized
	}
	if err := util.EnsureDir(s.dir); err != nil {
		return nil, storageError("creating key directory", err)
	}
	kp, err := crypto.GenerateKeypair()
	if err != nil {
		return nil, err
	}
	if err := s.writeKeys("", kp, cfg, proof); err != nil {
		kp.Destroy()
		return nil, err
	}
	s.logger.Info("keypair initialized", "fingerprint", kp.Fingerprint(), "auth", cfg.Variant)
	return kp, nil
}

// LoadPublicKey reads the public key. It never needs authentication.
func (s *Store) LoadPublicKey() (*rsa.PublicKey, error) {
	return s.loadPublicKey(s.path(PublicKeyFile))
}

func (s *Store) loadPublicKey(path string) (*rsa.PublicKey, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotInitialized
	}
	if err != nil {
		return nil, storageError("reading public key", err)
	}
	pub, err := crypto.ParsePublicKey(data)
	if err != nil {
		return nil, fmt.Errorf("%w: public key", ErrKeyCorrupted)
	}
	return pub, nil
}

// Fingerprint returns the fingerprint of the live public key.
func (s *Store) Fingerprint() (string, error) {
	pub, err := s.LoadPublicKey()
	if err != nil {
		return "", err
	}
	return crypto.Fingerprint(pub)
}

// Config returns the authenticator configuration the private key is sealed
// under. The copy embedded in the private key file is authoritative; the
// mirror in config.json is used only when that file cannot be parsed.
func (s *Store) Config() (auth.Config, error) {
	data, err := s.readPrivate(s.path(PrivateKeyFile))
	if err != nil {
		return auth.Config{}, err
	}
	if crypto.IsPEM(data) {
		return auth.NoneConfig(), nil
	}
	var doc document
	if err := json.Unmarshal(data, &doc); err == nil && doc.Config.Variant != "" {
		return doc.Config, nil
	}
	return s.readMirror()
}

// UnwrapPrivateKey returns the private key. A protected key needs a proof for
// its configuration. Any failure to open the sealed key, whether from a wrong
// KEK or damaged bytes, is reported as auth.ErrAuthenticationFailed.
func (s *Store) UnwrapPrivateKey(proof *auth.Proof) (*PrivateKey, error) {
	return s.unwrap(s.path(PrivateKeyFile), proof)
}

// Verify checks proof opens the private key and discards the result.
func (s *Store) Verify(proof *auth.Proof) error {
	k, err := s.UnwrapPrivateKey(proof)
	if err != nil {
		return err
	}
	k.Destroy()
	return nil
}

func (s *Store) unwrap(path string, proof *auth.Proof) (*PrivateKey, error) {
	data, err := s.readPrivate(path)
	if err != nil {
		return nil, err
	}
	if crypto.IsPEM(data) {
		priv, err := crypto.ParsePrivateKey(data)
		util.WipeBytes(data)
		if err != nil {
			return nil, fmt.Errorf("%w: private key", ErrKeyCorrupted)
		}
		return newPrivateKey(priv)
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil || doc.Ver != documentVersion {
		if proof == nil {
			return nil, auth.ErrAuthenticationRequired
		}
		return nil, auth.ErrAuthenticationFailed
	}
	if proof == nil {
		return nil, auth.ErrAuthenticationRequired
	}
	if err := proof.Check(doc.Config, s.now()); err != nil {
		return nil, err
	}
	ek, err := key.UnmarshalEncryptedKey(doc.Key)
	if err != nil {
		return nil, auth.ErrAuthenticationFailed
	}
	kek, err := proof.KEK()
	if err != nil {
		return nil, err
	}
	defer kek.Destroy()

	der, err := ek.Open(kek)
	if err != nil {
		return nil, auth.ErrAuthenticationFailed
	}
	priv, err := crypto.ParsePrivateKeyDER(der)
	util.WipeBytes(der)
	if err != nil {
		return nil, auth.ErrAuthenticationFailed
	}
	return newPrivateKey(priv)
}

// sealPrivate encodes priv for storage under cfg.
func (s *Store) sealPrivate(priv *rsa.PrivateKey, cfg auth.Config, proof *auth.Proof) ([]byte, error) {
	if !cfg.Protected() {
		return crypto.MarshalPrivateKey(priv)
	}
	if err := proof.Check(cfg, s.now()); err != nil {
		return nil, err
	}
	kek, err := proof.KEK()
	if err != nil {
		return nil, err
	}
	defer kek.Destroy()

	der, err := crypto.MarshalPrivateKeyDER(priv)
	if err != nil {
		return nil, err
	}
	defer util.WipeBytes(der)
	fp, err := crypto.Fingerprint(&priv.PublicKey)
	if err != nil {
		return nil, err
	}
	ek, err := key.Seal(kek, fp, key.RSAPrivate, der)
	if err != nil {
		return nil, fmt.Errorf("%w: sealing private key: %v", crypto.ErrCryptoFailure, err)
	}
	return encodeDocument(cfg, ek)
}

func encodeDocument(cfg auth.Config, ek key.EncryptedKey) ([]byte, error) {
	raw, err := json.Marshal(ek)
	if err != nil {
		return nil, err
	}
	return json.MarshalIndent(document{Ver: documentVersion, Config: cfg, Key: raw}, "", "  ")
}

// writeKeys writes both halves. suffix selects live ("") or staged files.
// The private half is written first so a public key never exists without it.
func (s *Store) writeKeys(suffix string, kp *crypto.Keypair, cfg auth.Config, proof *auth.Proof) error {
	priv, err := s.sealPrivate(kp.Private, cfg, proof)
	if err != nil {
		return err
	}
	defer util.WipeBytes(priv)
	pub, err := crypto.MarshalPublicKey(kp.Public)
	if err != nil {
		return err
	}
	if err := util.WriteFileAtomic(s.path(PrivateKeyFile+suffix), priv, nil); err != nil {
		return storageError("writing private key", err)
	}
	if err := util.WriteFileAtomic(s.path(PublicKeyFile+suffix), pub, nil); err != nil {
		_ = util.SecureRemove(s.path(PrivateKeyFile + suffix))
		return storageError("writing public key", err)
	}
	if suffix == "" {
		return s.writeMirror(cfg)
	}
	return nil
}

func (s *Store) readPrivate(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotInitialized
	}
	if err != nil {
		return nil, storageError("reading private key", err)
	}
	return data, nil
}

func (s *Store) writeMirror(cfg auth.Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	if err := util.WriteFileAtomic(s.path(ConfigFile), data, nil); err != nil {
		return storageError("writing auth config", err)
	}
	return nil
}

func (s *Store) readMirror() (auth.Config, error) {
	data, err := os.ReadFile(s.path(ConfigFile))
	if err != nil {
		return auth.Config{}, fmt.Errorf("%w: auth config unreadable", ErrKeyCorrupted)
	}
	var cfg auth.Config
	if err := json.Unmarshal(data, &cfg); err != nil || cfg.Variant == "" {
		return auth.Config{}, fmt.Errorf("%w: auth config unreadable", ErrKeyCorrupted)
	}
	return cfg, nil
}

func (s *Store) path(name string) string {
	return filepath.Join(s.dir, name)
}
