package pagestore

import (
	"context"
	"strings"

	"github.com/hupe1980/oodb/internal/cache"
	"github.com/hupe1980/oodb/resource"
)

// CachingStore keeps recently read blobs in an LRU cache. Blobs are treated
// as immutable once written; Put and Delete through the wrapper keep the
// cache consistent.
type CachingStore struct {
	inner Store
	cache *cache.LRU[string, []byte]
	skip  []string
}

// CachingOption configures a CachingStore.
type CachingOption func(*CachingStore)

// WithUncachedPrefix excludes names with prefix from caching, e.g. mutable
// pointers such as CURRENT.
func WithUncachedPrefix(prefix string) CachingOption {
	return func(s *CachingStore) { s.skip = append(s.skip, prefix) }
}

// NewCachingStore wraps inner with a cache of capacityBytes. Memory is
// charged to rc if non-nil.
func NewCachingStore(inner Store, capacityBytes int64, rc *resource.Controller, opts ...CachingOption) *CachingStore {
	s := &CachingStore{
		inner: inner,
		cache: cache.NewLRU[string, []byte](capacityBytes, func(b []byte) int64 { return int64(len(b)) }, rc),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *CachingStore) cacheable(name string) bool {
	for _, p := range s.skip {
		if strings.HasPrefix(name, p) {
			return false
		}
	}
	return true
}

// Get implements Store. The returned slice must not be modified.
func (s *CachingStore) Get(ctx context.Context, name string) ([]byte, error) {
	if !s.cacheable(name) {
		return s.inner.Get(ctx, name)
	}
	if data, ok := s.cache.Get(name); ok {
		return data, nil
	}
	data, err := s.inner.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	s.cache.Set(name, data)
	return data, nil
}

// Put implements Store.
func (s *CachingStore) Put(ctx context.Context, name string, data []byte) error {
	s.cache.Remove(name)
	return s.inner.Put(ctx, name, data)
}

// Delete implements Store.
func (s *CachingStore) Delete(ctx context.Context, name string) error {
	s.cache.Remove(name)
	return s.inner.Delete(ctx, name)
}

// List implements Store.
func (s *CachingStore) List(ctx context.Context, prefix string) ([]string, error) {
	return s.inner.List(ctx, prefix)
}

// Stats returns cache hits and misses.
func (s *CachingStore) Stats() (hits, misses int64) {
	return s.cache.Stats()
}
