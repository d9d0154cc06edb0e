package vault

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcleod/keysafe/auth"
)

const exportPassphrase = "export passphrase"

func exportBundle(t *testing.T, tv *testVault, includePrivate bool) []byte {
	t.Helper()
	opts := ExportOptions{IncludePrivate: includePrivate}
	if includePrivate {
		opts.Passphrase = []byte(exportPassphrase)
	}
	b, err := tv.Export(t.Context(), opts)
	require.NoError(t, err)
	data, err := b.Marshal()
	require.NoError(t, err)
	return data
}

func TestExportImportIntoEmptyDirectory(t *testing.T) {
	for _, variant := range []auth.Variant{auth.VariantNone, auth.VariantPassphrase} {
		t.Run(string(variant), func(t *testing.T) {
			src := newTestVault(t)
			src.init(t, variant)
			src.add(t, "A", "alpha")
			src.add(t, "B", "beta")
			data := exportBundle(t, src, true)

			dst := newTestVault(t)
			res, err := dst.Import(t.Context(), data, ImportOptions{Passphrase: []byte(exportPassphrase)})
			require.NoError(t, err)
			assert.True(t, res.Replaced)
			assert.Equal(t, 2, res.Imported)

			assert.Equal(t, "alpha", dst.get(t, "A"))
			assert.Equal(t, "beta", dst.get(t, "B"))
			st, err := dst.Status(t.Context())
			require.NoError(t, err)
			assert.Equal(t, auth.VariantNone, st.AuthVariant, "restored keys start unprotected")
			assertNoStaged(t, dst.dir)
		})
	}
}

func TestExportRequiresPassphraseForPrivateKey(t *testing.T) {
	tv := newTestVault(t)
	tv.init(t, auth.VariantNone)
	_, err := tv.Export(t.Context(), ExportOptions{IncludePrivate: true, Passphrase: []byte("short")})
	assert.ErrorIs(t, err, ErrWeakPassphrase)
}

func TestExportPublicOnlyNeedsNoApproval(t *testing.T) {
	tv := newTestVault(t)
	tv.init(t, auth.VariantPassphrase)
	tv.add(t, "A", "alpha")
	base := tv.approvals.Load()

	data := exportBundle(t, tv, false)
	assert.Equal(t, base, tv.approvals.Load())

	b, err := ParseBundle(data)
	require.NoError(t, err)
	assert.False(t, b.HasPrivateKey())

	// Without a private key the bundle cannot restore a vault.
	dst := newTestVault(t)
	_, err = dst.Import(t.Context(), data, ImportOptions{})
	assert.ErrorIs(t, err, ErrMalformedBundle)
}

func TestImportWrongPassphrase(t *testing.T) {
	src := newTestVault(t)
	src.init(t, auth.VariantNone)
	src.add(t, "A", "alpha")
	data := exportBundle(t, src, true)

	dst := newTestVault(t)
	_, err := dst.Import(t.Context(), data, ImportOptions{Passphrase: []byte("not the passphrase")})
	assert.ErrorIs(t, err, ErrAuthenticationFailed)
	assert.False(t, dst.initialized())

	_, err = dst.Import(t.Context(), data, ImportOptions{})
	assert.ErrorIs(t, err, ErrAuthenticationRequired)
}

func TestImportTamperedBundle(t *testing.T) {
	src := newTestVault(t)
	src.init(t, auth.VariantNone)
	src.add(t, "A", "alpha")
	data := exportBundle(t, src, true)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	doc["exported_at"] = "2001-01-01T00:00:00Z"
	tampered, err := json.Marshal(doc)
	require.NoError(t, err)

	dst := newTestVault(t)
	_, err = dst.Import(t.Context(), tampered, ImportOptions{Passphrase: []byte(exportPassphrase)})
	assert.ErrorIs(t, err, ErrMalformedBundle)
	assert.ErrorIs(t, err, ErrValidation)

	_, err = dst.Import(t.Context(), []byte("not json"), ImportOptions{})
	assert.ErrorIs(t, err, ErrMalformedBundle)
}

func TestImportOverInitializedVault(t *testing.T) {
	src := newTestVault(t)
	src.init(t, auth.VariantNone)
	src.add(t, "FROM_BACKUP", "old")
	data := exportBundle(t, src, true)

	dst := newTestVault(t)
	dst.init(t, auth.VariantPassphrase)
	dst.add(t, "LOCAL", "local")
	before := snapshot(t, dst.dir)

	_, err := dst.Import(t.Context(), data, ImportOptions{Passphrase: []byte(exportPassphrase)})
	assert.ErrorIs(t, err, ErrImportConflict)
	assert.ErrorIs(t, err, ErrConflict)
	assert.Equal(t, before, snapshot(t, dst.dir))

	// Merging needs the bundle to be sealed to the live key.
	_, err = dst.Import(t.Context(), data, ImportOptions{Mode: MergeSkip})
	assert.ErrorIs(t, err, ErrImportConflict)

	res, err := dst.Import(t.Context(), data, ImportOptions{Force: true, Passphrase: []byte(exportPassphrase)})
	require.NoError(t, err)
	assert.True(t, res.Replaced)

	assert.Equal(t, "old", dst.get(t, "FROM_BACKUP"))
	exists, err := dst.Exists(t.Context(), "LOCAL")
	require.NoError(t, err)
	assert.False(t, exists)

	// The imported key is sealed under the authenticator already in force.
	st, err := dst.Status(t.Context())
	require.NoError(t, err)
	assert.Equal(t, auth.VariantPassphrase, st.AuthVariant)
}

func TestImportMergeFromSameVault(t *testing.T) {
	tv := newTestVault(t)
	tv.init(t, auth.VariantNone)
	tv.add(t, "A", "alpha")
	tv.add(t, "B", "beta")
	data := exportBundle(t, tv, false)

	require.NoError(t, tv.Delete(t.Context(), "A"))
	require.NoError(t, tv.Add(t.Context(), "B", []byte("beta-2"), true))

	res, err := tv.Import(t.Context(), data, ImportOptions{Mode: MergeSkip})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Imported)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, "alpha", tv.get(t, "A"))
	assert.Equal(t, "beta-2", tv.get(t, "B"))

	res, err = tv.Import(t.Context(), data, ImportOptions{Mode: MergeOverwrite})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Overwritten)
	assert.Equal(t, "beta", tv.get(t, "B"))
}

func TestImportRestoresOlderBackupOfSameVault(t *testing.T) {
	tv := newTestVault(t)
	tv.init(t, auth.VariantNone)
	tv.add(t, "A", "alpha")
	data := exportBundle(t, tv, false)
	tv.add(t, "B", "beta")
	tv.add(t, "C", "gamma")

	// The backup's generation is behind the journal; restoring it on
	// purpose must not be mistaken for a rollback.
	_, err := tv.Import(t.Context(), data, ImportOptions{Force: true})
	require.NoError(t, err)
	names, err := tv.List(t.Context())
	require.NoError(t, err)
	assert.Equal(t, []string{"A"}, names)
	tv.add(t, "D", "delta")
}

func TestParseMergeMode(t *testing.T) {
	for _, s := range []string{"", "skip", "overwrite"} {
		_, err := ParseMergeMode(s)
		assert.NoError(t, err, s)
	}
	_, err := ParseMergeMode("replace")
	assert.Error(t, err)
}
