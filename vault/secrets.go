package vault

import (
	"context"
	"fmt"
	"time"

	"github.com/awnumar/memguard"

	"github.com/jmcleod/keysafe/storage"
)

// Add seals value under name. Without overwrite an existing entry is an
// ErrEntryExists. The name and size are checked before anything prompts or
// encrypts; the caller's value slice is left untouched.
func (m *Manager) Add(ctx context.Context, name string, value []byte, overwrite bool) error {
	if err := storage.ValidateName(name); err != nil {
		return m.fail("add", name, err)
	}
	if err := storage.ValidateValue(value); err != nil {
		return m.fail("add", name, err)
	}
	return m.write(ctx, "add", name, false, func(j storage.Journal) error {
		v, err := m.load(j)
		if err != nil {
			return err
		}
		if v.Has(name) && !overwrite {
			return fmt.Errorf("%w: %s", storage.ErrEntryExists, name)
		}
		proof, err := m.authenticate(ctx, "add")
		if err != nil {
			return err
		}
		err = m.keys.Verify(proof)
		proof.Destroy()
		if err != nil {
			return err
		}
		pub, err := m.keys.LoadPublicKey()
		if err != nil {
			return err
		}
		if err := v.Put(pub, name, value, overwrite, m.now()); err != nil {
			return err
		}
		return m.save(j, v)
	})
}

// Get decrypts name into a locked buffer owned by the caller, who must
// Destroy it.
func (m *Manager) Get(ctx context.Context, name string) (*memguard.LockedBuffer, error) {
	if err := storage.ValidateName(name); err != nil {
		return nil, m.fail("get", name, err)
	}
	var buf *memguard.LockedBuffer
	err := m.write(ctx, "get", name, false, func(j storage.Journal) error {
		v, err := m.load(j)
		if err != nil {
			return err
		}
		if err := v.CheckEntry(name); err != nil {
			return err
		}
		proof, err := m.authenticate(ctx, "get")
		if err != nil {
			return err
		}
		priv, err := m.keys.UnwrapPrivateKey(proof)
		proof.Destroy()
		if err != nil {
			return err
		}
		defer priv.Destroy()

		plaintext, err := v.Get(priv.Decrypter(), name)
		if err != nil {
			return err
		}
		// NewBufferFromBytes wipes plaintext.
		buf = memguard.NewBufferFromBytes(plaintext)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return buf, nil
}

// Reveal passes the plaintext of name to fn and wipes it when fn returns.
// fn must not retain the slice.
func (m *Manager) Reveal(ctx context.Context, name string, fn func(value []byte) error) error {
	buf, err := m.Get(ctx, name)
	if err != nil {
		return err
	}
	defer buf.Destroy()
	return fn(buf.Bytes())
}

// List returns the sorted entry names. It takes no lock and never prompts.
func (m *Manager) List(ctx context.Context) ([]string, error) {
	v, err := m.read(ctx, "list")
	if err != nil {
		return nil, err
	}
	return v.Names(), nil
}

// Exists reports whether name is stored. It never prompts, and a name that
// could never be stored is simply absent.
func (m *Manager) Exists(ctx context.Context, name string) (bool, error) {
	v, err := m.read(ctx, "exists")
	if err != nil {
		return false, err
	}
	return v.Has(name), nil
}

// EntryInfo is the metadata kept beside a sealed value.
type EntryInfo struct {
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
	// Size is the ciphertext length, which equals the plaintext length.
	Size int
}

// Info returns the metadata of name without decrypting it. Like List it
// takes no lock and never prompts.
func (m *Manager) Info(ctx context.Context, name string) (EntryInfo, error) {
	if err := storage.ValidateName(name); err != nil {
		return EntryInfo{}, m.fail("info", name, err)
	}
	v, err := m.read(ctx, "info")
	if err != nil {
		return EntryInfo{}, err
	}
	e, ok := v.Entries[name]
	if !ok {
		return EntryInfo{}, m.fail("info", name, storage.ErrEntryNotFound)
	}
	return EntryInfo{
		Name:      name,
		CreatedAt: e.CreatedAt,
		UpdatedAt: e.UpdatedAt,
		Size:      len(e.Ciphertext),
	}, nil
}

// Search returns the names matching query: a glob when it contains glob
// metacharacters, otherwise a case-insensitive substring.
func (m *Manager) Search(ctx context.Context, query string) ([]string, error) {
	v, err := m.read(ctx, "search")
	if err != nil {
		return nil, err
	}
	names, err := v.Search(query)
	if err != nil {
		return nil, m.fail("search", "", err)
	}
	return names, nil
}

// Delete removes name. It does not authenticate; asking the user to
// confirm is the caller's job.
func (m *Manager) Delete(ctx context.Context, name string) error {
	if err := storage.ValidateName(name); err != nil {
		return m.fail("delete", name, err)
	}
	return m.write(ctx, "delete", name, false, func(j storage.Journal) error {
		v, err := m.load(j)
		if err != nil {
			return err
		}
		if err := v.Delete(name); err != nil {
			return err
		}
		return m.save(j, v)
	})
}

// read loads the vault without the journal lock for the read-only
// operations. The atomic rename in Save means it sees a whole document.
func (m *Manager) read(ctx context.Context, op string) (*storage.Vault, error) {
	if err := ctx.Err(); err != nil {
		return nil, m.fail(op, "", err)
	}
	v, err := m.repo.Load()
	if err != nil {
		return nil, m.fail(op, "", err)
	}
	return v, nil
}
