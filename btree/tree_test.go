package btree

import (
	"cmp"
	"context"
	"math/rand/v2"
	"slices"
	"testing"

	"github.com/hupe1980/oodb/serial"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newIntTree(t *testing.T, p Persister, opts ...Option) *Tree[int64, int64] {
	t.Helper()
	tr, err := New[int64, int64](p, serial.Int64{}, serial.Int64{}, cmp.Compare[int64], opts...)
	require.NoError(t, err)
	return tr
}

func collect[K, V any](t *testing.T, c *Cursor[K, V]) []K {
	t.Helper()
	var keys []K
	for k := range c.All() {
		keys = append(keys, k)
	}
	require.NoError(t, c.Err())
	return keys
}

func TestSearchReturnsLatestInsert(t *testing.T) {
	ctx := context.Background()
	tr := newIntTree(t, NewMemoryPersister(), WithDegree(3))

	rng := rand.New(rand.NewPCG(1, 2))
	want := make(map[int64]int64)
	for i := range 2000 {
		k := rng.Int64N(300)
		require.NoError(t, tr.Insert(ctx, k, int64(i)))
		want[k] = int64(i)
	}

	for k, v := range want {
		got, err := tr.Search(ctx, k)
		require.NoError(t, err)
		assert.Equal(t, v, got, "key %d", k)
	}
	assert.Equal(t, len(want), tr.Len())
	require.NoError(t, tr.Check(ctx))
}

func TestSearchEmptyTree(t *testing.T) {
	tr := newIntTree(t, NewMemoryPersister())

	_, err := tr.Search(context.Background(), 1)
	assert.ErrorIs(t, err, ErrNotFound)

	c := tr.Iterator(context.Background(), Ascending)
	assert.False(t, c.Next())
	assert.NoError(t, c.Err())
}

func TestIteratorOrder(t *testing.T) {
	ctx := context.Background()
	tr := newIntTree(t, NewMemoryPersister(), WithDegree(3))

	for _, k := range []int64{5, 1, 3, 2, 4} {
		require.NoError(t, tr.Insert(ctx, k, k*10))
	}

	assert.Equal(t, []int64{1, 2, 3, 4, 5}, collect(t, tr.Iterator(ctx, Ascending)))
	assert.Equal(t, []int64{5, 4, 3, 2, 1}, collect(t, tr.Iterator(ctx, Descending)))
}

func TestSplitGrowsAtRoot(t *testing.T) {
	ctx := context.Background()
	tr := newIntTree(t, NewMemoryPersister(), WithDegree(3))

	require.NoError(t, tr.Insert(ctx, 1, 1))
	require.NoError(t, tr.Insert(ctx, 2, 2))
	assert.Equal(t, 1, tr.Meta().Height)

	require.NoError(t, tr.Insert(ctx, 3, 3))
	assert.Equal(t, 2, tr.Meta().Height, "third key overflows a degree-3 leaf")

	for k := int64(4); k <= 100; k++ {
		require.NoError(t, tr.Insert(ctx, k, k))
	}
	require.NoError(t, tr.Check(ctx))
	assert.Greater(t, tr.Meta().Height, 3)
}

func TestRandomOrderMatchesSorted(t *testing.T) {
	ctx := context.Background()
	for _, degree := range []int{3, 4, 5, 16, 64} {
		tr := newIntTree(t, NewMemoryPersister(), WithDegree(degree))
		keys := rand.New(rand.NewPCG(uint64(degree), 7)).Perm(500)
		for _, k := range keys {
			require.NoError(t, tr.Insert(ctx, int64(k), int64(k)))
		}
		require.NoError(t, tr.Check(ctx), "degree %d", degree)

		got := collect(t, tr.Iterator(ctx, Ascending))
		require.Len(t, got, 500)
		assert.True(t, slices.IsSorted(got), "degree %d", degree)

		desc := collect(t, tr.Iterator(ctx, Descending))
		slices.Reverse(desc)
		assert.Equal(t, got, desc)
	}
}

func TestRange(t *testing.T) {
	ctx := context.Background()
	tr := newIntTree(t, NewMemoryPersister(), WithDegree(4))
	for k := int64(0); k < 100; k += 2 {
		require.NoError(t, tr.Insert(ctx, k, k))
	}

	from, to := int64(11), int64(21)
	assert.Equal(t, []int64{12, 14, 16, 18, 20}, collect(t, tr.Range(ctx, &from, &to, Ascending)))
	assert.Equal(t, []int64{20, 18, 16, 14, 12}, collect(t, tr.Range(ctx, &from, &to, Descending)))

	lo := int64(94)
	assert.Equal(t, []int64{94, 96, 98}, collect(t, tr.Range(ctx, &lo, nil, Ascending)))
	hi := int64(3)
	assert.Equal(t, []int64{2, 0}, collect(t, tr.Range(ctx, nil, &hi, Descending)))

	past := int64(1000)
	assert.Empty(t, collect(t, tr.Range(ctx, &past, nil, Ascending)))
	neg := int64(-1)
	assert.Empty(t, collect(t, tr.Range(ctx, nil, &neg, Descending)))
}

func TestDuplicateKeyPolicy(t *testing.T) {
	ctx := context.Background()

	tr := newIntTree(t, NewMemoryPersister(), WithDuplicateKeyPolicy(Reject))
	require.NoError(t, tr.Insert(ctx, 1, 10))
	assert.ErrorIs(t, tr.Insert(ctx, 1, 20), ErrDuplicateKey)

	v, err := tr.Search(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(10), v)

	over := newIntTree(t, NewMemoryPersister())
	require.NoError(t, over.Insert(ctx, 1, 10))
	require.NoError(t, over.Insert(ctx, 1, 20))
	v, err = over.Search(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(20), v)
	assert.Equal(t, 1, over.Len())
}

func TestMultiValue(t *testing.T) {
	ctx := context.Background()
	tr := newIntTree(t, NewMemoryPersister(), WithPolicy(MultiValue), WithDegree(3))

	for i := int64(0); i < 5; i++ {
		require.NoError(t, tr.Insert(ctx, 7, i))
		require.NoError(t, tr.Insert(ctx, i, i))
	}

	vals, err := tr.SearchAll(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, []int64{0, 1, 2, 3, 4}, vals)
	assert.Equal(t, 10, tr.Len())

	var pairs [][2]int64
	for k, v := range tr.Iterator(ctx, Descending).All() {
		pairs = append(pairs, [2]int64{k, v})
	}
	assert.Equal(t, [][2]int64{{7, 4}, {7, 3}, {7, 2}, {7, 1}, {7, 0}, {4, 4}, {3, 3}, {2, 2}, {1, 1}, {0, 0}}, pairs)
	require.NoError(t, tr.Check(ctx))
}

func TestMultiValueLimit(t *testing.T) {
	ctx := context.Background()
	p := NewMemoryPersister()
	tr := newIntTree(t, p, WithPolicy(MultiValue), WithDegree(3))

	for i := range int64(MaxValuesPerKey) {
		require.NoError(t, tr.Insert(ctx, 7, i))
	}
	require.ErrorIs(t, tr.Insert(ctx, 7, -1), ErrTooManyValues)
	require.NoError(t, tr.Insert(ctx, 8, 0), "other keys are not affected")

	require.NoError(t, tr.Flush(ctx))
	require.NoError(t, tr.Publish())

	reopened, err := Open[int64, int64](p, serial.Int64{}, serial.Int64{}, cmp.Compare[int64], tr.CommittedMeta(), WithPolicy(MultiValue), WithDegree(3))
	require.NoError(t, err)
	vals, err := reopened.SearchAll(ctx, 7)
	require.NoError(t, err)
	require.Len(t, vals, MaxValuesPerKey)
	assert.Equal(t, int64(MaxValuesPerKey-1), vals[len(vals)-1])
}

func TestMultiValueAppendKeepsSnapshots(t *testing.T) {
	ctx := context.Background()
	tr := newIntTree(t, NewMemoryPersister(), WithPolicy(MultiValue), WithDegree(3))

	require.NoError(t, tr.Insert(ctx, 7, 0))
	require.NoError(t, tr.Insert(ctx, 7, 1))
	require.NoError(t, tr.Flush(ctx))
	require.NoError(t, tr.Publish())

	first := tr.Snapshot()
	require.NoError(t, tr.Insert(ctx, 7, 2))
	second := tr.Snapshot()
	for i := int64(3); i < 100; i++ {
		require.NoError(t, tr.Insert(ctx, 7, i))
	}

	vals, err := first.SearchAll(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, []int64{0, 1}, vals)

	vals, err = second.SearchAll(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, []int64{0, 1, 2}, vals)

	vals, err = tr.SearchAll(ctx, 7)
	require.NoError(t, err)
	require.Len(t, vals, 100)
	for i, v := range vals {
		assert.Equal(t, int64(i), v)
	}
	require.NoError(t, tr.Check(ctx))
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	tr := newIntTree(t, NewMemoryPersister(), WithDegree(3))

	for k := int64(0); k < 200; k++ {
		require.NoError(t, tr.Insert(ctx, k, k))
	}

	ok, err := tr.Delete(ctx, 1000)
	require.NoError(t, err)
	assert.False(t, ok)

	for k := int64(0); k < 200; k += 3 {
		ok, err := tr.Delete(ctx, k)
		require.NoError(t, err)
		assert.True(t, ok)
	}
	require.NoError(t, tr.Check(ctx))

	for k := int64(0); k < 200; k++ {
		_, err := tr.Search(ctx, k)
		if k%3 == 0 {
			assert.ErrorIs(t, err, ErrNotFound)
		} else {
			assert.NoError(t, err)
		}
	}

	for k := int64(0); k < 200; k++ {
		_, err := tr.Delete(ctx, k)
		require.NoError(t, err)
	}
	assert.Equal(t, Meta{Root: InvalidPage, NextID: tr.Meta().NextID}, tr.Meta())
	require.NoError(t, tr.Check(ctx))

	require.NoError(t, tr.Insert(ctx, 5, 5))
	v, err := tr.Search(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, int64(5), v)
}

func TestSnapshotIsolation(t *testing.T) {
	ctx := context.Background()
	tr := newIntTree(t, NewMemoryPersister(), WithDegree(3))
	for k := int64(0); k < 50; k++ {
		require.NoError(t, tr.Insert(ctx, k, k))
	}

	c := tr.Iterator(ctx, Ascending)
	require.True(t, c.Next())
	assert.Equal(t, int64(0), c.Key())

	for k := int64(50); k < 100; k++ {
		require.NoError(t, tr.Insert(ctx, k, k))
	}
	for k := int64(0); k < 50; k += 2 {
		_, err := tr.Delete(ctx, k)
		require.NoError(t, err)
	}

	n := 1
	for c.Next() {
		assert.Equal(t, int64(n), c.Key())
		n++
	}
	require.NoError(t, c.Err())
	assert.Equal(t, 50, n, "cursor keeps reading the version it started on")
	assert.Equal(t, 75, tr.Len())
	require.NoError(t, tr.Check(ctx))
}

func TestFlushPublishReopen(t *testing.T) {
	ctx := context.Background()
	p := NewMemoryPersister()
	tr := newIntTree(t, p, WithDegree(4))

	for k := int64(0); k < 100; k++ {
		require.NoError(t, tr.Insert(ctx, k, -k))
	}
	assert.ErrorIs(t, tr.Publish(), ErrUnflushed)

	require.NoError(t, tr.Flush(ctx))
	require.NoError(t, tr.Publish())
	assert.Zero(t, tr.Dirty())

	meta := tr.CommittedMeta()
	reopened, err := Open[int64, int64](p, serial.Int64{}, serial.Int64{}, cmp.Compare[int64], meta, WithDegree(4))
	require.NoError(t, err)

	for k := int64(0); k < 100; k++ {
		v, err := reopened.Search(ctx, k)
		require.NoError(t, err)
		assert.Equal(t, -k, v)
	}
	require.NoError(t, reopened.Check(ctx))
}

func TestRollback(t *testing.T) {
	ctx := context.Background()
	p := NewMemoryPersister()
	tr := newIntTree(t, p, WithDegree(3))

	for k := int64(0); k < 20; k++ {
		require.NoError(t, tr.Insert(ctx, k, k))
	}
	require.NoError(t, tr.Flush(ctx))
	require.NoError(t, tr.Publish())
	committed := tr.CommittedMeta()

	for k := int64(20); k < 40; k++ {
		require.NoError(t, tr.Insert(ctx, k, k))
	}
	_, err := tr.Delete(ctx, 3)
	require.NoError(t, err)
	require.NoError(t, tr.Flush(ctx))

	tr.Rollback()
	assert.Equal(t, committed.Root, tr.Meta().Root)
	assert.Equal(t, 20, tr.Len())
	assert.GreaterOrEqual(t, tr.Meta().NextID, committed.NextID)

	_, err = tr.Search(ctx, 3)
	require.NoError(t, err)
	_, err = tr.Search(ctx, 25)
	assert.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, tr.Check(ctx))

	assert.NotEmpty(t, tr.Garbage(), "flushed pages of the abandoned version are orphans")
}

func TestGarbageAfterPublish(t *testing.T) {
	ctx := context.Background()
	p := NewMemoryPersister()
	tr := newIntTree(t, p, WithDegree(3))

	// 31 sequential keys leave a single key in the rightmost leaf, so the
	// next append does not split.
	for k := int64(0); k < 31; k++ {
		require.NoError(t, tr.Insert(ctx, k, k))
	}
	require.NoError(t, tr.Flush(ctx))
	require.NoError(t, tr.Publish())
	assert.Empty(t, tr.Garbage())
	before := p.Len()
	height := tr.Meta().Height

	require.NoError(t, tr.Insert(ctx, 100, 100))
	require.NoError(t, tr.Flush(ctx))
	retired := tr.Retired()
	assert.Len(t, retired, height)
	require.NoError(t, tr.Publish())
	assert.Empty(t, tr.Retired())

	garbage := tr.Garbage()
	assert.Len(t, garbage, height, "one superseded page per level")
	assert.ElementsMatch(t, retired, garbage)
	for _, id := range garbage {
		require.NoError(t, p.DeletePage(ctx, id))
	}
	assert.Equal(t, before, p.Len())

	reopened, err := Open[int64, int64](p, serial.Int64{}, serial.Int64{}, cmp.Compare[int64], tr.CommittedMeta(), WithDegree(3))
	require.NoError(t, err)
	require.NoError(t, reopened.Check(ctx))
}

func TestInvalidDegree(t *testing.T) {
	_, err := New[int64, int64](NewMemoryPersister(), serial.Int64{}, serial.Int64{}, cmp.Compare[int64], WithDegree(2))
	assert.ErrorIs(t, err, ErrInvalidDegree)
}

func TestCompositeKeys(t *testing.T) {
	ctx := context.Background()
	type key = serial.Pair[uint32, uint64]
	tr, err := New[key, struct{}](NewMemoryPersister(),
		serial.PairOf[uint32, uint64](serial.Uint32{}, serial.Uint64{}),
		serial.Empty{},
		serial.ComparePair(cmp.Compare[uint32], cmp.Compare[uint64]),
		WithDegree(4))
	require.NoError(t, err)

	for class := uint32(1); class <= 3; class++ {
		for oid := uint64(10); oid > 0; oid-- {
			require.NoError(t, tr.Insert(ctx, key{First: class, Second: oid}, struct{}{}))
		}
	}

	from, to := key{First: 2, Second: 0}, key{First: 2, Second: ^uint64(0)}
	got := collect(t, tr.Range(ctx, &from, &to, Ascending))
	require.Len(t, got, 10)
	for i, k := range got {
		assert.Equal(t, uint32(2), k.First)
		assert.Equal(t, uint64(i+1), k.Second)
	}
}
