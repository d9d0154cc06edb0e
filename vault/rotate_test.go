package vault

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcleod/keysafe/auth"
	"github.com/jmcleod/keysafe/crypto"
	"github.com/jmcleod/keysafe/keystore"
	"github.com/jmcleod/keysafe/storage"
	filestore "github.com/jmcleod/keysafe/storage/file"
	"github.com/jmcleod/keysafe/storage/memory"
)

func TestRotate(t *testing.T) {
	for _, variant := range []auth.Variant{auth.VariantNone, auth.VariantPassphrase} {
		t.Run(string(variant), func(t *testing.T) {
			tv := newTestVault(t)
			first := tv.init(t, variant)
			values := map[string]string{"A": "alpha", "B": "beta", "C": ""}
			for n, v := range values {
				tv.add(t, n, v)
			}

			// Keep the old key to prove it no longer opens anything.
			oldPriv, err := tv.keys.UnwrapPrivateKey(approveLive(t, tv))
			require.NoError(t, err)
			defer oldPriv.Destroy()

			res, err := tv.Rotate(t.Context())
			require.NoError(t, err)
			assert.Equal(t, 3, res.Total)
			assert.Equal(t, 3, res.Reencrypted)
			assert.NotEqual(t, first.Fingerprint, res.Fingerprint)

			for n, v := range values {
				assert.Equal(t, v, tv.get(t, n))
			}

			v, err := filestore.NewRepository(tv.dir).Load()
			require.NoError(t, err)
			assert.Equal(t, res.Fingerprint, v.KeyFingerprint)
			for n := range values {
				_, err := v.Get(oldPriv.Decrypter(), n)
				assert.ErrorIs(t, err, crypto.ErrDecryptionFailure)
			}

			st, err := tv.Status(t.Context())
			require.NoError(t, err)
			assert.Equal(t, variant, st.AuthVariant)
			assertNoStaged(t, tv.dir)
		})
	}
}

// approveLive gets a proof for the vault's current configuration.
func approveLive(t *testing.T, tv *testVault) *auth.Proof {
	t.Helper()
	proof, err := tv.authenticate(t.Context(), "test")
	require.NoError(t, err)
	t.Cleanup(proof.Destroy)
	return proof
}

func assertNoStaged(t *testing.T, dir string) {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(dir, "*.next"))
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestRotateFailureLeavesFilesIdentical(t *testing.T) {
	tv := newTestVault(t)
	tv.init(t, auth.VariantNone)
	tv.add(t, "A", "alpha")
	tv.add(t, "B", "beta")
	tv.rewriteVault(t, func(v *storage.Vault) {
		v.Entries["B"].Ciphertext[0] ^= 0x01
	})
	before := snapshot(t, tv.dir)

	_, err := tv.Rotate(t.Context())
	assert.ErrorIs(t, err, ErrDecryptionFailure)

	assert.Equal(t, before, snapshot(t, tv.dir))
	assertNoStaged(t, tv.dir)
	assert.Equal(t, "alpha", tv.get(t, "A"))
}

func TestRotateSaveFailureLeavesKeys(t *testing.T) {
	repo := memory.NewRepository()
	tv := newTestVault(t, WithRepository(repo))
	tv.init(t, auth.VariantNone)
	tv.add(t, "A", "alpha")
	before := snapshot(t, tv.dir)

	repo.FailSave = errors.New("disk full")
	_, err := tv.Rotate(t.Context())
	assert.ErrorIs(t, err, ErrStorageFailure)
	assert.Equal(t, before, snapshot(t, tv.dir))

	repo.FailSave = nil
	assert.Equal(t, "alpha", tv.get(t, "A"))
}

func TestRotateNeedsApproval(t *testing.T) {
	tv := newTestVault(t)
	tv.init(t, auth.VariantPassphrase)
	tv.add(t, "A", "alpha")
	before := snapshot(t, tv.dir)

	tv.passphrase = "wrong passphrase"
	_, err := tv.Rotate(t.Context())
	assert.ErrorIs(t, err, ErrAuthenticationFailed)
	assert.Equal(t, before, snapshot(t, tv.dir))
}

func TestInterruptedRotationIsFinished(t *testing.T) {
	tv := newTestVault(t)
	tv.init(t, auth.VariantNone)
	tv.add(t, "A", "alpha")

	// Stage a rotation and save the re-encrypted vault, then stop before
	// the keys are promoted.
	rot, err := tv.keys.Rotate(approveLive(t, tv))
	require.NoError(t, err)
	repo := filestore.NewRepository(tv.dir)
	v, err := repo.Load()
	require.NoError(t, err)
	next, err := v.Reencrypt(rot.Old.Decrypter(), rot.New.Public, v.UpdatedAt)
	require.NoError(t, err)
	next.KeyFingerprint = rot.New.Fingerprint()
	next.Touch(next.UpdatedAt)
	require.NoError(t, repo.Save(next))

	assert.FileExists(t, filepath.Join(tv.dir, keystore.PublicKeyFile+".next"))
	assert.Equal(t, "alpha", tv.get(t, "A"))
	assertNoStaged(t, tv.dir)

	fp, err := tv.keys.Fingerprint()
	require.NoError(t, err)
	assert.Equal(t, next.KeyFingerprint, fp)
}
