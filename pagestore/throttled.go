package pagestore

import (
	"context"

	"github.com/hupe1980/oodb/resource"
)

// ThrottledStore bounds IO concurrency and bandwidth of an inner store.
type ThrottledStore struct {
	inner Store
	rc    *resource.Controller
}

// NewThrottledStore wraps inner with the limits of rc.
func NewThrottledStore(inner Store, rc *resource.Controller) *ThrottledStore {
	return &ThrottledStore{inner: inner, rc: rc}
}

// Get implements Store. Reads are charged after the fact, since the size is
// only known once the blob arrived.
func (s *ThrottledStore) Get(ctx context.Context, name string) ([]byte, error) {
	if err := s.rc.AcquireIO(ctx, 0); err != nil {
		return nil, err
	}
	defer s.rc.ReleaseIO()

	data, err := s.inner.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	if err := s.rc.WaitIO(ctx, len(data)); err != nil {
		return nil, err
	}
	return data, nil
}

// Put implements Store.
func (s *ThrottledStore) Put(ctx context.Context, name string, data []byte) error {
	if err := s.rc.AcquireIO(ctx, len(data)); err != nil {
		return err
	}
	defer s.rc.ReleaseIO()
	return s.inner.Put(ctx, name, data)
}

// Delete implements Store.
func (s *ThrottledStore) Delete(ctx context.Context, name string) error {
	if err := s.rc.AcquireIO(ctx, 0); err != nil {
		return err
	}
	defer s.rc.ReleaseIO()
	return s.inner.Delete(ctx, name)
}

// List implements Store.
func (s *ThrottledStore) List(ctx context.Context, prefix string) ([]string, error) {
	if err := s.rc.AcquireIO(ctx, 0); err != nil {
		return nil, err
	}
	defer s.rc.ReleaseIO()
	return s.inner.List(ctx, prefix)
}
