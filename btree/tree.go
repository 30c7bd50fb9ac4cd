package btree

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sort"
	"sync"

	"github.com/hupe1980/oodb/internal/cache"
	"github.com/hupe1980/oodb/serial"
)

// Meta is the persistent state of a tree. Callers store it alongside their
// own commit record and pass it back to Open.
type Meta struct {
	Root   PageID `json:"root"`
	NextID PageID `json:"next_id"`
	Count  uint64 `json:"count"`
	Height int    `json:"height"`
}

// Tree is a copy-on-write B+tree.
type Tree[K, V any] struct {
	opts   options
	cmp    func(a, b K) int
	codec  nodeCodec[K, V]
	store  Persister
	logger *slog.Logger

	mu        sync.RWMutex // serializes writers, guards meta
	meta      Meta
	committed Meta
	gen       uint64
	sealed    bool

	dmu   sync.RWMutex // guards dirty
	dirty map[PageID]*node[K, V]
	clean *cache.LRU[PageID, *node[K, V]]

	retired     []PageID // superseded by the working version
	unpublished []PageID // flushed but not yet published
	garbage     []PageID // unreachable from the committed version
}

// New creates an empty tree.
func New[K, V any](p Persister, keys serial.Serializer[K], values serial.Serializer[V], cmp func(a, b K) int, opts ...Option) (*Tree[K, V], error) {
	return Open(p, keys, values, cmp, Meta{}, opts...)
}

// Open attaches to a tree previously described by meta.
func Open[K, V any](p Persister, keys serial.Serializer[K], values serial.Serializer[V], cmp func(a, b K) int, meta Meta, opts ...Option) (*Tree[K, V], error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.degree < MinDegree || o.degree > MaxDegree {
		return nil, fmt.Errorf("%w: %d", ErrInvalidDegree, o.degree)
	}
	if o.policy != SingleValue && o.policy != MultiValue {
		return nil, fmt.Errorf("btree: unknown policy %d", o.policy)
	}
	if o.cacheSize <= 0 {
		o.cacheSize = DefaultNodeCacheSize
	}
	if meta.NextID <= meta.Root {
		meta.NextID = meta.Root + 1
	}

	logger := o.logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	t := &Tree[K, V]{
		opts:      o,
		cmp:       cmp,
		codec:     nodeCodec[K, V]{keys: keys, values: values, policy: o.policy},
		store:     p,
		logger:    logger,
		meta:      meta,
		committed: meta,
		gen:       1,
		dirty:     make(map[PageID]*node[K, V]),
	}

	full := &node[K, V]{leaf: true, keys: make([]K, o.degree-1)}
	capacity := int64(o.cacheSize) * int64(t.codec.encodedSize(full))
	t.clean = cache.NewLRU[PageID, *node[K, V]](capacity, func(n *node[K, V]) int64 {
		return int64(t.codec.encodedSize(n))
	}, o.rc)

	return t, nil
}

// Degree returns the configured order.
func (t *Tree[K, V]) Degree() int { return t.opts.degree }

// Policy returns the value policy.
func (t *Tree[K, V]) Policy() Policy { return t.opts.policy }

// Meta returns the working state.
func (t *Tree[K, V]) Meta() Meta {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.meta
}

// CommittedMeta returns the state of the last Publish.
func (t *Tree[K, V]) CommittedMeta() Meta {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.committed
}

// Len returns the number of entries in the working version.
func (t *Tree[K, V]) Len() int {
	return int(t.Meta().Count)
}

// Search returns the value of key in the working version.
func (t *Tree[K, V]) Search(ctx context.Context, key K) (V, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.search(ctx, t.meta.Root, key)
}

// SearchAll returns every value of key in the working version.
func (t *Tree[K, V]) SearchAll(ctx context.Context, key K) ([]V, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.searchAll(ctx, t.meta.Root, key)
}

// Snapshot returns an immutable view of the working version. Later writes
// copy the nodes the view references instead of modifying them.
func (t *Tree[K, V]) Snapshot() *View[K, V] {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.seal()
	return &View[K, V]{t: t, meta: t.meta}
}

// Committed returns an immutable view of the last published version.
func (t *Tree[K, V]) Committed() *View[K, V] {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return &View[K, V]{t: t, meta: t.committed}
}

// Iterator returns a cursor over a snapshot of the working version.
func (t *Tree[K, V]) Iterator(ctx context.Context, order Order) *Cursor[K, V] {
	return t.Snapshot().Iterator(ctx, order)
}

// Range returns a cursor over keys in [from, to] of a snapshot of the
// working version. A nil bound is open.
func (t *Tree[K, V]) Range(ctx context.Context, from, to *K, order Order) *Cursor[K, V] {
	return t.Snapshot().Range(ctx, from, to, order)
}

// Check verifies the structure of the working version.
func (t *Tree[K, V]) Check(ctx context.Context) error {
	return t.Snapshot().Check(ctx)
}

func (t *Tree[K, V]) seal() {
	t.dmu.RLock()
	n := len(t.dirty)
	t.dmu.RUnlock()
	if n > 0 {
		t.sealed = true
	}
}

// Insert adds key with value to the working version.
func (t *Tree[K, V]) Insert(ctx context.Context, key K, value V) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.meta.Root == InvalidPage {
		t.beginWrite()
		leaf := t.newNode(true)
		leaf.keys = []K{key}
		leaf.values = [][]V{{value}}
		t.meta.Root = leaf.id
		t.meta.Height = 1
		t.meta.Count = 1
		return nil
	}

	path, err := t.descend(ctx, t.meta.Root, key)
	if err != nil {
		return err
	}

	last := path[len(path)-1]
	pos := last.i
	found := pos < len(last.n.keys) && t.cmp(last.n.keys[pos], key) == 0

	if found && t.opts.policy == SingleValue && t.opts.dup == Reject {
		return ErrDuplicateKey
	}
	if found && t.opts.policy == MultiValue && len(last.n.values[pos]) >= MaxValuesPerKey {
		return ErrTooManyValues
	}

	t.beginWrite()
	leaf := t.writable(last.n)

	switch {
	case found && t.opts.policy == SingleValue:
		leaf.values[pos] = []V{value}
	case found:
		leaf.values[pos] = leaf.appendValue(leaf.values[pos], value)
		t.meta.Count++
	default:
		leaf.keys = slices.Insert(leaf.keys, pos, key)
		leaf.values = slices.Insert(leaf.values, pos, []V{value})
		t.meta.Count++
	}

	left, right, sep := t.split(leaf)
	for lvl := len(path) - 2; lvl >= 0; lvl-- {
		fr := path[lvl]
		if right == nil && fr.n.children[fr.i] == left.id {
			return nil
		}
		parent := t.writable(fr.n)
		parent.children[fr.i] = left.id
		if right != nil {
			parent.keys = slices.Insert(parent.keys, fr.i, sep)
			parent.children = slices.Insert(parent.children, fr.i+1, right.id)
		}
		left, right, sep = t.split(parent)
	}

	if right != nil {
		root := t.newNode(false)
		root.keys = []K{sep}
		root.children = []PageID{left.id, right.id}
		left = root
		t.meta.Height++
	}
	t.meta.Root = left.id
	return nil
}

// Delete removes key and all its values from the working version. It
// reports whether the key existed. Nodes left empty are unlinked; underfull
// nodes are not merged.
func (t *Tree[K, V]) Delete(ctx context.Context, key K) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.meta.Root == InvalidPage {
		return false, nil
	}

	path, err := t.descend(ctx, t.meta.Root, key)
	if err != nil {
		return false, err
	}

	last := path[len(path)-1]
	pos := last.i
	if pos >= len(last.n.keys) || t.cmp(last.n.keys[pos], key) != 0 {
		return false, nil
	}

	t.beginWrite()
	leaf := t.writable(last.n)
	t.meta.Count -= uint64(len(leaf.values[pos]))
	leaf.keys = slices.Delete(leaf.keys, pos, pos+1)
	leaf.values = slices.Delete(leaf.values, pos, pos+1)

	cur := leaf
	empty := len(leaf.keys) == 0
	for lvl := len(path) - 2; lvl >= 0; lvl-- {
		fr := path[lvl]
		if !empty && fr.n.children[fr.i] == cur.id {
			return true, nil
		}
		parent := t.writable(fr.n)
		if empty {
			t.discard(cur)
			parent.children = slices.Delete(parent.children, fr.i, fr.i+1)
			switch {
			case fr.i < len(parent.keys):
				parent.keys = slices.Delete(parent.keys, fr.i, fr.i+1)
			case len(parent.keys) > 0:
				parent.keys = slices.Delete(parent.keys, fr.i-1, fr.i)
			}
			empty = len(parent.children) == 0
		} else {
			parent.children[fr.i] = cur.id
		}
		cur = parent
	}

	if empty {
		t.discard(cur)
		t.meta.Root = InvalidPage
		t.meta.Height = 0
		return true, nil
	}

	t.meta.Root = cur.id
	for !cur.leaf && len(cur.children) == 1 {
		child, err := t.load(ctx, cur.children[0])
		if err != nil {
			return true, err
		}
		t.discard(cur)
		cur = child
		t.meta.Root = cur.id
		t.meta.Height--
	}
	return true, nil
}

// Flush saves every dirty page through the persister. On error the dirty
// set is kept so Flush can be retried.
func (t *Tree[K, V]) Flush(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.dmu.RLock()
	ids := slices.Sorted(maps.Keys(t.dirty))
	t.dmu.RUnlock()

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return err
		}
		t.dmu.RLock()
		n := t.dirty[id]
		t.dmu.RUnlock()

		data, err := t.codec.encode(n)
		if err != nil {
			return fmt.Errorf("btree: encode page %d: %w", id, err)
		}
		if err := t.store.SavePage(ctx, id, data); err != nil {
			return fmt.Errorf("btree: save page %d: %w", id, err)
		}

		t.clean.Set(id, n)
		t.dmu.Lock()
		delete(t.dirty, id)
		t.dmu.Unlock()
		t.unpublished = append(t.unpublished, id)
	}

	if len(ids) > 0 {
		t.logger.Debug("btree flushed", "pages", len(ids), "root", t.meta.Root, "count", t.meta.Count)
	}
	return nil
}

// Publish makes the flushed working version the committed one.
func (t *Tree[K, V]) Publish() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.dmu.RLock()
	n := len(t.dirty)
	t.dmu.RUnlock()
	if n > 0 {
		return fmt.Errorf("%w: %d dirty pages", ErrUnflushed, n)
	}

	t.committed = t.meta
	t.garbage = append(t.garbage, t.retired...)
	t.retired = nil
	t.unpublished = nil
	return nil
}

// Rollback discards the working version and returns to the last committed
// one. Snapshots taken since the last Flush become unusable.
func (t *Tree[K, V]) Rollback() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.dmu.Lock()
	clear(t.dirty)
	t.dmu.Unlock()

	// Flushed pages of the abandoned version are orphans.
	for _, id := range t.unpublished {
		t.clean.Remove(id)
	}
	t.garbage = append(t.garbage, t.unpublished...)
	t.unpublished = nil
	t.retired = nil

	// Page ids are never reused, even across a rollback.
	next := t.meta.NextID
	t.meta = t.committed
	t.meta.NextID = max(next, t.committed.NextID)
	t.gen++
	t.sealed = false
}

// Garbage drains the ids of pages no longer reachable from the committed
// version.
func (t *Tree[K, V]) Garbage() []PageID {
	t.mu.Lock()
	defer t.mu.Unlock()
	g := t.garbage
	t.garbage = nil
	return g
}

// Retired returns the pages of the committed version that the working
// version no longer references. They become garbage on Publish.
func (t *Tree[K, V]) Retired() []PageID {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return slices.Clone(t.retired)
}

// Dirty returns the number of pages waiting for Flush.
func (t *Tree[K, V]) Dirty() int {
	t.dmu.RLock()
	defer t.dmu.RUnlock()
	return len(t.dirty)
}

// CacheStats returns node cache hits and misses.
func (t *Tree[K, V]) CacheStats() (hits, misses int64) {
	return t.clean.Stats()
}

type frame[K, V any] struct {
	n *node[K, V]
	i int
}

// descend records the path to the leaf that holds or would hold key. The
// leaf frame index is the lower bound of key.
func (t *Tree[K, V]) descend(ctx context.Context, root PageID, key K) ([]frame[K, V], error) {
	path := make([]frame[K, V], 0, t.meta.Height)
	id := root
	for {
		n, err := t.load(ctx, id)
		if err != nil {
			return nil, err
		}
		i := t.lowerBound(n.keys, key)
		path = append(path, frame[K, V]{n: n, i: i})
		if n.leaf {
			return path, nil
		}
		id = n.children[i]
	}
}

func (t *Tree[K, V]) lowerBound(keys []K, key K) int {
	return sort.Search(len(keys), func(i int) bool { return t.cmp(keys[i], key) >= 0 })
}

func (t *Tree[K, V]) upperBound(keys []K, key K) int {
	return sort.Search(len(keys), func(i int) bool { return t.cmp(keys[i], key) > 0 })
}

func (t *Tree[K, V]) searchAll(ctx context.Context, root PageID, key K) ([]V, error) {
	id := root
	for id != InvalidPage {
		n, err := t.load(ctx, id)
		if err != nil {
			return nil, err
		}
		i := t.lowerBound(n.keys, key)
		if n.leaf {
			if i < len(n.keys) && t.cmp(n.keys[i], key) == 0 {
				return slices.Clone(n.values[i]), nil
			}
			break
		}
		id = n.children[i]
	}
	return nil, ErrNotFound
}

func (t *Tree[K, V]) search(ctx context.Context, root PageID, key K) (V, error) {
	vals, err := t.searchAll(ctx, root, key)
	if err != nil {
		var zero V
		return zero, err
	}
	return vals[0], nil
}

// load returns the node for id from the dirty set, the clean cache or the
// persister.
func (t *Tree[K, V]) load(ctx context.Context, id PageID) (*node[K, V], error) {
	t.dmu.RLock()
	n, ok := t.dirty[id]
	t.dmu.RUnlock()
	if ok {
		return n, nil
	}
	if n, ok := t.clean.Get(id); ok {
		return n, nil
	}

	data, err := t.store.LoadPage(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("btree: load page %d: %w", id, err)
	}
	n, err = t.codec.decode(id, data)
	if err != nil {
		t.logger.Error("btree corrupt page", "page", id, "error", err)
		return nil, err
	}
	t.clean.Set(id, n)
	return n, nil
}

// beginWrite starts a new node generation if a snapshot may reference
// dirty nodes, so they are copied instead of modified.
func (t *Tree[K, V]) beginWrite() {
	if t.sealed {
		t.gen++
		t.sealed = false
	}
}

func (t *Tree[K, V]) newNode(leaf bool) *node[K, V] {
	n := &node[K, V]{id: t.meta.NextID, gen: t.gen, leaf: leaf}
	t.meta.NextID++
	t.dmu.Lock()
	t.dirty[n.id] = n
	t.dmu.Unlock()
	return n
}

// writable returns n itself if it was created in the current generation,
// otherwise a dirty copy under a new page id.
func (t *Tree[K, V]) writable(n *node[K, V]) *node[K, V] {
	if n.gen == t.gen && t.isDirty(n.id) {
		return n
	}
	c := n.clone()
	c.id = t.meta.NextID
	c.gen = t.gen
	t.meta.NextID++

	t.dmu.Lock()
	t.dirty[c.id] = c
	t.dmu.Unlock()
	t.retired = append(t.retired, n.id)
	return c
}

// discard drops a node that is no longer referenced by the working version.
func (t *Tree[K, V]) discard(n *node[K, V]) {
	if n.gen == t.gen && t.isDirty(n.id) {
		t.dmu.Lock()
		delete(t.dirty, n.id)
		t.dmu.Unlock()
		return
	}
	t.retired = append(t.retired, n.id)
}

func (t *Tree[K, V]) isDirty(id PageID) bool {
	t.dmu.RLock()
	defer t.dmu.RUnlock()
	_, ok := t.dirty[id]
	return ok
}

// split divides an overfull node at its median. It returns the left part
// (n itself), the new right sibling and the separator, or a nil sibling if
// n is within bounds.
func (t *Tree[K, V]) split(n *node[K, V]) (*node[K, V], *node[K, V], K) {
	var sep K
	if n.leaf {
		if len(n.keys) <= t.opts.degree-1 {
			return n, nil, sep
		}
		m := (len(n.keys) - 1) / 2
		right := t.newNode(true)
		right.keys = slices.Clone(n.keys[m+1:])
		right.values = slices.Clone(n.values[m+1:])
		right.owned = n.owned
		sep = n.keys[m]
		n.keys = slices.Clip(n.keys[:m+1])
		n.values = slices.Clip(n.values[:m+1])
		return n, right, sep
	}

	if len(n.children) <= t.opts.degree {
		return n, nil, sep
	}
	m := len(n.keys) / 2
	right := t.newNode(false)
	right.keys = slices.Clone(n.keys[m+1:])
	right.children = slices.Clone(n.children[m+1:])
	sep = n.keys[m]
	n.keys = slices.Clip(n.keys[:m])
	n.children = slices.Clip(n.children[:m+1])
	return n, right, sep
}
