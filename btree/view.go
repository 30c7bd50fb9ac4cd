package btree

import (
	"context"
)

// View is an immutable version of a tree.
type View[K, V any] struct {
	t    *Tree[K, V]
	meta Meta
}

// Meta returns the state the view was taken at.
func (v *View[K, V]) Meta() Meta { return v.meta }

// Len returns the number of entries.
func (v *View[K, V]) Len() int { return int(v.meta.Count) }

// Search returns the value of key.
func (v *View[K, V]) Search(ctx context.Context, key K) (V, error) {
	return v.t.search(ctx, v.meta.Root, key)
}

// SearchAll returns every value of key.
func (v *View[K, V]) SearchAll(ctx context.Context, key K) ([]V, error) {
	return v.t.searchAll(ctx, v.meta.Root, key)
}

// Iterator returns a cursor over all entries.
func (v *View[K, V]) Iterator(ctx context.Context, order Order) *Cursor[K, V] {
	return v.Range(ctx, nil, nil, order)
}

// Range returns a cursor over the entries with from <= key <= to. A nil
// bound is open.
func (v *View[K, V]) Range(ctx context.Context, from, to *K, order Order) *Cursor[K, V] {
	return &Cursor[K, V]{
		ctx:   ctx,
		t:     v.t,
		root:  v.meta.Root,
		order: order,
		lo:    from,
		hi:    to,
	}
}
