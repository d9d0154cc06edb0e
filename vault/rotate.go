package vault

import (
	"context"

	"github.com/jmcleod/keysafe/storage"
)

// RotateResult reports what a rotation re-encrypted.
type RotateResult struct {
	Total       int
	Reencrypted int
	Fingerprint string
}

// Rotate replaces the keypair and re-encrypts every entry under the new
// one. The new keys are staged, the re-encrypted vault is saved, and only
// then are the staged keys promoted. Any failure before the save leaves
// the vault and key files exactly as they were.
func (m *Manager) Rotate(ctx context.Context) (*RotateResult, error) {
	var res *RotateResult
	err := m.write(ctx, "rotate", "", false, func(j storage.Journal) error {
		v, err := m.load(j)
		if err != nil {
			return err
		}
		proof, err := m.authenticate(ctx, "rotate")
		if err != nil {
			return err
		}
		rot, err := m.keys.Rotate(proof)
		proof.Destroy()
		if err != nil {
			return err
		}

		next, err := v.Reencrypt(rot.Old.Decrypter(), rot.New.Public, m.now())
		if err != nil {
			rot.Abort()
			return err
		}
		next.KeyFingerprint = rot.New.Fingerprint()
		if err := ctx.Err(); err != nil {
			rot.Abort()
			return err
		}
		if err := m.persist(next); err != nil {
			rot.Abort()
			return err
		}

		fp := rot.New.Fingerprint()
		if err := rot.Commit(); err != nil {
			// The vault is already sealed to the staged key; the next
			// writer's Recover promotes it.
			m.logger.Warn("rotation saved but keys not promoted", "error", err)
			return err
		}
		if err := j.SetMaxGeneration(next.ID, next.Generation); err != nil {
			return err
		}
		res = &RotateResult{Total: len(v.Entries), Reencrypted: len(next.Entries), Fingerprint: fp}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}
