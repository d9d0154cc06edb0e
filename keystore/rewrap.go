package keystore

import (
	"encoding/json"
	"fmt"

	"github.com/jmcleod/keysafe/auth"
	"github.com/jmcleod/keysafe/internal/util"
	"github.com/jmcleod/keysafe/key"
)

// Rewrap moves the private key from its current authenticator to next.
// oldProof proves the current configuration; nextProof comes from enrolling
// next and is ignored when next is unprotected. The keypair is unchanged.
func (s *Store) Rewrap(oldProof *auth.Proof, next auth.Config, nextProof *auth.Proof) error {
	current, err := s.Config()
	if err != nil {
		return err
	}
	var data []byte
	if current.Protected() && next.Protected() {
		data, err = s.rotateWrapping(oldProof, next, nextProof)
	} else {
		data, err = s.resealPrivate(oldProof, next, nextProof)
	}
	if err != nil {
		return err
	}
	defer util.WipeBytes(data)
	if err := util.WriteFileAtomic(s.path(PrivateKeyFile), data, nil); err != nil {
		return storageError("writing private key", err)
	}
	if err := s.writeMirror(next); err != nil {
		return err
	}
	s.logger.Info("private key rewrapped", "from", current.Variant, "to", next.Variant)
	return nil
}

// rotateWrapping re-encrypts the sealed key from one KEK to another without
// parsing the key itself.
func (s *Store) rotateWrapping(oldProof *auth.Proof, next auth.Config, nextProof *auth.Proof) ([]byte, error) {
	// Unwrapping first gives the same errors as any other operation.
	if err := s.Verify(oldProof); err != nil {
		return nil, err
	}
	if err := nextProof.Check(next, s.now()); err != nil {
		return nil, err
	}
	data, err := s.readPrivate(s.path(PrivateKeyFile))
	if err != nil {
		return nil, err
	}
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, auth.ErrAuthenticationFailed
	}
	ek, err := key.UnmarshalEncryptedKey(doc.Key)
	if err != nil {
		return nil, auth.ErrAuthenticationFailed
	}
	oldKEK, err := oldProof.KEK()
	if err != nil {
		return nil, err
	}
	defer oldKEK.Destroy()
	newKEK, err := nextProof.KEK()
	if err != nil {
		return nil, err
	}
	defer newKEK.Destroy()
	if err := ek.Rotate(oldKEK, newKEK); err != nil {
		return nil, fmt.Errorf("rewrapping private key: %w", err)
	}
	return encodeDocument(next, ek)
}

func (s *Store) resealPrivate(oldProof *auth.Proof, next auth.Config, nextProof *auth.Proof) ([]byte, error) {
	priv, err := s.UnwrapPrivateKey(oldProof)
	if err != nil {
		return nil, err
	}
	defer priv.Destroy()
	return s.sealPrivate(priv.key, next, nextProof)
}
