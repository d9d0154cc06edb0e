// Package bbolt provides the BBolt-backed vault journal: the audit log, the
// generation high-water mark, and the writer lock that comes with holding
// the database open.
package bbolt

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.etcd.io/bbolt"

	"github.com/jmcleod/keysafe/internal/uuid"
	"github.com/jmcleod/keysafe/storage"
)

// FileName is the journal inside the vault directory.
const FileName = "journal.db"

var (
	auditBucket      = []byte("audit")
	generationBucket = []byte("__generation")
)

// Store implements storage.Journal. Opening it read-write takes an
// exclusive file lock, so a second writer fails instead of interleaving.
type Store struct {
	db       *bbolt.DB
	readOnly bool

	mu          sync.RWMutex
	generations map[string]uint64
}

var _ storage.Journal = (*Store)(nil)

// Open opens the journal at path for writing, waiting up to timeout for
// another writer to finish. A zero timeout fails immediately if the
// journal is held.
func Open(path string, timeout time.Duration) (*Store, error) {
	return open(path, &bbolt.Options{Timeout: lockTimeout(timeout)}, false)
}

// OpenReadOnly opens the journal for reading under a shared lock.
func OpenReadOnly(path string, timeout time.Duration) (*Store, error) {
	return open(path, &bbolt.Options{Timeout: lockTimeout(timeout), ReadOnly: true}, true)
}

func lockTimeout(d time.Duration) time.Duration {
	// bbolt treats zero as "wait forever".
	if d <= 0 {
		return time.Millisecond
	}
	return d
}

func open(path string, options *bbolt.Options, readOnly bool) (*Store, error) {
	db, err := bbolt.Open(path, 0600, options)
	if errors.Is(err, bbolt.ErrTimeout) {
		return nil, storage.ErrVaultBusy
	}
	if err != nil {
		return nil, fmt.Errorf("%w: opening journal: %v", storage.ErrStorageFailure, err)
	}
	s := &Store{db: db, readOnly: readOnly, generations: make(map[string]uint64)}
	if err := s.loadGenerations(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the database and its lock.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) loadGenerations() error {
	load := func(tx *bbolt.Tx) error {
		b := tx.Bucket(generationBucket)
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			if len(v) == 8 {
				s.generations[string(k)] = binary.BigEndian.Uint64(v)
			}
			return nil
		})
	}
	if s.readOnly {
		return s.db.View(load)
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(generationBucket); err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists(auditBucket); err != nil {
			return err
		}
		return load(tx)
	})
}

// Append records ev under the next sequence number, chained to the event
// before it. ID and At are filled in when empty.
func (s *Store) Append(ev storage.Event) error {
	if ev.ID == "" {
		ev.ID = uuid.New()
	}
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(auditBucket)
		if err != nil {
			return err
		}
		ev.PrevHash = storage.GenesisHash
		if k, v := b.Cursor().Last(); k != nil {
			var last storage.Event
			if err := json.Unmarshal(v, &last); err != nil {
				return fmt.Errorf("%w: audit record unreadable", storage.ErrStorageFailure)
			}
			ev.PrevHash = storage.ChainHash(last)
		}
		data, err := json.Marshal(ev)
		if err != nil {
			return err
		}
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		var key [8]byte
		binary.BigEndian.PutUint64(key[:], seq)
		return b.Put(key[:], data)
	})
}

// Events returns up to limit of the most recent events, oldest first. A
// non-positive limit returns everything.
func (s *Store) Events(limit int) ([]storage.Event, error) {
	var out []storage.Event
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(auditBucket)
		if b == nil {
			return nil
		}
		c := b.Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			if limit > 0 && len(out) >= limit {
				break
			}
			var ev storage.Event
			if err := json.Unmarshal(v, &ev); err != nil {
				return fmt.Errorf("%w: audit record unreadable", storage.ErrStorageFailure)
			}
			out = append(out, ev)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// MaxGeneration returns the highest generation recorded for vaultID.
func (s *Store) MaxGeneration(vaultID string) uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generations[vaultID]
}

// SetMaxGeneration persists gen for vaultID. Going backwards is refused.
func (s *Store) SetMaxGeneration(vaultID string, gen uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if gen < s.generations[vaultID] {
		return storage.ErrRollbackDetected
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(generationBucket)
		if err != nil {
			return err
		}
		var buf [8]byte
		binary.BigEndian.PutUint64(buf[:], gen)
		return b.Put([]byte(vaultID), buf[:])
	})
	if err != nil {
		return err
	}

	s.generations[vaultID] = gen
	return nil
}

// ResetGeneration forgets the high-water mark for vaultID. Used when a
// vault is replaced wholesale by import or re-initialization.
func (s *Store) ResetGeneration(vaultID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(generationBucket)
		if err != nil {
			return err
		}
		return b.Delete([]byte(vaultID))
	})
	if err != nil {
		return err
	}
	delete(s.generations, vaultID)
	return nil
}
