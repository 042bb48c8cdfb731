// Package cache holds parsed datasets in process memory, keyed by content fingerprint.
package cache

import (
	"container/list"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/you/alarmchain/internal/dataset"
)

// ErrNotFound is returned for fingerprints that were never stored or were evicted.
// Callers must surface it as "re-upload required", not as an empty result.
var ErrNotFound = errors.New("dataset not found")

// LoadFunc parses a dataset on a cache miss
type LoadFunc func() (*dataset.Dataset, error)

// Store maps fingerprints to immutable datasets.
//
// Thread Safety:
//
//	Store is safe for concurrent use. Datasets are published with a single
//	map insert under the write lock, so readers see a complete dataset or
//	ErrNotFound. Concurrent loads of the same fingerprint share one parse.
type Store struct {
	mu         sync.RWMutex
	entries    map[string]*list.Element
	lru        *list.List // front = most recently used
	maxEntries int        // 0 = unbounded
	flight     singleflight.Group
	onEvict    func(key string)
}

// Option configures a Store
type Option func(*Store)

// WithMaxEntries bounds the store; the least recently used dataset is evicted first
func WithMaxEntries(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxEntries = n
		}
	}
}

// WithEvictionHook is called (outside the lock) for every evicted key
func WithEvictionHook(fn func(key string)) Option {
	return func(s *Store) {
		s.onEvict = fn
	}
}

// NewStore creates an empty store
func NewStore(opts ...Option) *Store {
	s := &Store{
		entries: make(map[string]*list.Element),
		lru:     list.New(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Put publishes ds under its fingerprint, replacing any previous entry
func (s *Store) Put(ds *dataset.Dataset) {
	evicted := s.put(ds)
	s.notifyEvicted(evicted)
}

func (s *Store) put(ds *dataset.Dataset) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if el, ok := s.entries[ds.Fingerprint]; ok {
		el.Value = ds
		s.lru.MoveToFront(el)
		return nil
	}
	s.entries[ds.Fingerprint] = s.lru.PushFront(ds)

	var evicted []string
	for s.maxEntries > 0 && s.lru.Len() > s.maxEntries {
		oldest := s.lru.Back()
		old := oldest.Value.(*dataset.Dataset)
		s.lru.Remove(oldest)
		delete(s.entries, old.Fingerprint)
		evicted = append(evicted, old.Fingerprint)
	}
	return evicted
}

// Get returns the dataset for fingerprint or ErrNotFound
func (s *Store) Get(fingerprint string) (*dataset.Dataset, error) {
	if s.maxEntries == 0 {
		// Unbounded stores never reorder, a read lock is enough
		s.mu.RLock()
		el, ok := s.entries[fingerprint]
		s.mu.RUnlock()
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, fingerprint)
		}
		return el.Value.(*dataset.Dataset), nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	el, ok := s.entries[fingerprint]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, fingerprint)
	}
	s.lru.MoveToFront(el)
	return el.Value.(*dataset.Dataset), nil
}

// GetOrLoad returns the cached dataset for fingerprint, or runs load once
// (per fingerprint, across concurrent callers) and publishes the result.
// hit reports whether the dataset was already cached. Load errors are not cached.
func (s *Store) GetOrLoad(fingerprint string, load LoadFunc) (ds *dataset.Dataset, hit bool, err error) {
	if ds, err := s.Get(fingerprint); err == nil {
		return ds, true, nil
	}

	v, err, _ := s.flight.Do(fingerprint, func() (interface{}, error) {
		// Another flight may have published between our miss and now
		if ds, err := s.Get(fingerprint); err == nil {
			return ds, nil
		}
		ds, err := load()
		if err != nil {
			return nil, err
		}
		if ds.Fingerprint != fingerprint {
			return nil, fmt.Errorf("loaded dataset fingerprint %s does not match key %s", ds.Fingerprint, fingerprint)
		}
		s.Put(ds)
		return ds, nil
	})
	if err != nil {
		return nil, false, err
	}
	return v.(*dataset.Dataset), false, nil
}

// Len returns the number of cached datasets
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Keys returns cached fingerprints, most recently used first
func (s *Store) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, s.lru.Len())
	for el := s.lru.Front(); el != nil; el = el.Next() {
		keys = append(keys, el.Value.(*dataset.Dataset).Fingerprint)
	}
	return keys
}

func (s *Store) notifyEvicted(keys []string) {
	if s.onEvict == nil {
		return
	}
	for _, k := range keys {
		s.onEvict(k)
	}
}
