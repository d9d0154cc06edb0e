package vault

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/99designs/keyring"
	"github.com/stretchr/testify/require"

	"github.com/jmcleod/keysafe/auth"
	"github.com/jmcleod/keysafe/internal/util"
	"github.com/jmcleod/keysafe/storage"
	filestore "github.com/jmcleod/keysafe/storage/file"
)

var fastKDF = util.Argon2idParams{Time: 1, MemoryKiB: 8 * 1024, Parallelism: 1, KeyLen: 32}

const testPassphrase = "correct horse battery"

// countingPassphrase is a passphrase backend that records how often it
// was asked to approve.
type countingPassphrase struct {
	auth.Passphrase
	approvals *atomic.Int32
}

func (c countingPassphrase) Approve(ctx context.Context, req auth.Request) (*auth.Proof, error) {
	c.approvals.Add(1)
	return c.Passphrase.Approve(ctx, req)
}

func passphraseFrom(pw *string) auth.PassphraseSource {
	return auth.PassphraseFunc(func(context.Context, auth.Prompt) ([]byte, error) {
		return []byte(*pw), nil
	})
}

type testVault struct {
	*Manager
	dir       string
	approvals *atomic.Int32
	// passphrase is what the backend answers with; tests may change it.
	passphrase string
	ring       keyring.Keyring
}

func newTestVault(t *testing.T, opts ...Option) *testVault {
	t.Helper()
	tv := &testVault{
		dir:        filepath.Join(t.TempDir(), "vault"),
		approvals:  &atomic.Int32{},
		passphrase: testPassphrase,
		ring:       keyring.NewArrayKeyring(nil),
	}
	backends := []auth.Authenticator{
		countingPassphrase{Passphrase: auth.Passphrase{Source: passphraseFrom(&tv.passphrase)}, approvals: tv.approvals},
		auth.Keychain{Open: func(string) (keyring.Keyring, error) { return tv.ring, nil }},
	}
	base := []Option{
		WithBackends(backends...),
		WithEnrollOptions(auth.EnrollOptions{KDF: fastKDF}),
		WithSilent(true),
	}
	m, err := New(tv.dir, append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(m.Close)
	tv.Manager = m
	return tv
}

func (tv *testVault) init(t *testing.T, variant auth.Variant) *InitResult {
	t.Helper()
	res, err := tv.Init(t.Context(), InitOptions{Variant: variant})
	require.NoError(t, err)
	return res
}

func (tv *testVault) add(t *testing.T, name, value string) {
	t.Helper()
	require.NoError(t, tv.Add(t.Context(), name, []byte(value), false))
}

func (tv *testVault) get(t *testing.T, name string) string {
	t.Helper()
	buf, err := tv.Get(t.Context(), name)
	require.NoError(t, err)
	defer buf.Destroy()
	return string(buf.Bytes())
}

// rewriteVault edits the stored document in place, as an attacker or a bad
// disk would, keeping the header checksum valid.
func (tv *testVault) rewriteVault(t *testing.T, fn func(v *storage.Vault)) {
	t.Helper()
	repo := filestore.NewRepository(tv.dir)
	v, err := repo.Load()
	require.NoError(t, err)
	fn(v)
	require.NoError(t, repo.Save(v))
}

// snapshot reads every file in dir except the journal, which records
// failed attempts too.
func snapshot(t *testing.T, dir string) map[string][]byte {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	out := map[string][]byte{}
	for _, e := range entries {
		if e.IsDir() || e.Name() == "journal.db" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		require.NoError(t, err)
		out[e.Name()] = data
	}
	return out
}
