package cache

import (
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Entry represents a cached upstream payload
type Entry struct {
	Value      []byte
	InsertedAt time.Time
	TTL        time.Duration
}

// expired reports whether the entry is past its time to live
func (e *Entry) expired(now time.Time) bool {
	return now.After(e.InsertedAt.Add(e.TTL))
}

// Persister writes the store's durable snapshot and reads it back.
// Write must be atomic from an external reader's point of view and Remove
// must succeed when no durable state exists.
type Persister interface {
	Write(snapshot map[string][]byte) error
	Read() (map[string][]byte, error)
	Remove() error
}

// NewStore returns a store restored from the persister's durable snapshot.
// A missing snapshot yields an empty store. A corrupt or unreadable snapshot
// also yields an empty, fully usable store; the read failure is returned
// alongside so the caller can log it, it is never fatal.
// Restored entries are treated as freshly inserted: per-entry expiry is not
// preserved across restarts, so every restored entry gets a full TTL window
// starting at load time.
func NewStore(p Persister, defaultTTL time.Duration) (*Store, error) {
	s := &Store{
		data: make(map[string]*Entry),
		p:    p,
		m:    &sync.Mutex{},
		now:  time.Now,
	}

	restored, err := p.Read()
	if err != nil {
		return s, errors.Wrap(err, "failed to restore cache snapshot")
	}
	loadedAt := s.now()
	for key, value := range restored {
		s.data[key] = &Entry{
			Value:      value,
			InsertedAt: loadedAt,
			TTL:        defaultTTL,
		}
	}

	return s, nil
}

// Store is an in-memory mapping from cache key to entry with per-entry
// expiry. Every mutation is written through to the persister so the durable
// state never lags the in-memory state.
type Store struct {
	data map[string]*Entry
	p    Persister
	m    *sync.Mutex
	now  func() time.Time
}

// Get returns the value cached under key.
// Expired entries are treated as absent and removed on lookup.
func (s *Store) Get(key string) ([]byte, bool) {
	s.m.Lock()
	defer s.m.Unlock()

	e, ok := s.data[key]
	if !ok {
		return nil, false
	}
	if e.expired(s.now()) {
		delete(s.data, key)
		return nil, false
	}

	return e.Value, true
}

// Set caches value under key, overwriting any existing entry, and writes the
// updated snapshot through to the persister. When the durable write fails the
// in-memory entry remains set and the write failure is returned, in-memory
// correctness matters more than durability for a proxy cache.
func (s *Store) Set(key string, value []byte, ttl time.Duration) error {
	s.m.Lock()
	defer s.m.Unlock()

	s.data[key] = &Entry{
		Value:      value,
		InsertedAt: s.now(),
		TTL:        ttl,
	}

	if err := s.p.Write(s.snapshotLocked()); err != nil {
		return errors.Wrap(err, "failed to persist cache snapshot")
	}

	return nil
}

// Clear removes all entries and deletes the durable snapshot.
// Clearing an empty store is a no-op that still succeeds.
func (s *Store) Clear() error {
	s.m.Lock()
	defer s.m.Unlock()

	s.data = make(map[string]*Entry)
	if err := s.p.Remove(); err != nil {
		return errors.Wrap(err, "failed to remove cache snapshot")
	}

	log.Debug("cache cleared")
	return nil
}

// Len returns the number of live entries
func (s *Store) Len() int {
	s.m.Lock()
	defer s.m.Unlock()

	n := 0
	now := s.now()
	for _, e := range s.data {
		if !e.expired(now) {
			n++
		}
	}
	return n
}

// Snapshot returns a copy of the current key to value mapping.
// Expiry metadata is flattened away, the snapshot holds values only.
func (s *Store) Snapshot() map[string][]byte {
	s.m.Lock()
	defer s.m.Unlock()

	return s.snapshotLocked()
}

// snapshotLocked builds the durable view. Caller must hold the store lock.
func (s *Store) snapshotLocked() map[string][]byte {
	snapshot := make(map[string][]byte, len(s.data))
	now := s.now()
	for key, e := range s.data {
		if e.expired(now) {
			continue
		}
		snapshot[key] = e.Value
	}
	return snapshot
}
