package query

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/oodb/btree"
	"github.com/hupe1980/oodb/engine"
	"github.com/hupe1980/oodb/meta"
	"github.com/hupe1980/oodb/model"
	"github.com/hupe1980/oodb/observability"
)

type Animal struct {
	Name string
	Age  int
}

type Dog struct {
	Animal
	Breed string
}

type Cat struct {
	Animal
	Indoor bool
}

type sliceCursor struct {
	oids   []model.OID
	i      int
	closed bool
	err    error
}

func (c *sliceCursor) Next() bool {
	if c.err != nil || c.i >= len(c.oids) {
		return false
	}
	c.i++
	return true
}

func (c *sliceCursor) OID() model.OID { return c.oids[c.i-1] }
func (c *sliceCursor) Err() error     { return c.err }
func (c *sliceCursor) Close() error   { c.closed = true; return nil }

// fakeStorage keeps class extents and objects in memory.
type fakeStorage struct {
	extents map[model.ClassID][]model.OID
	objects map[model.OID]any
	cursors []*sliceCursor
	loads   int
	failOn  model.OID
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{extents: make(map[model.ClassID][]model.OID), objects: make(map[model.OID]any)}
}

func (s *fakeStorage) put(class model.ClassID, oid model.OID, obj any) {
	s.extents[class] = append(s.extents[class], oid)
	slices.Sort(s.extents[class])
	s.objects[oid] = obj
}

func (s *fakeStorage) Extent(_ context.Context, class model.ClassID, order btree.Order) Cursor {
	oids := slices.Clone(s.extents[class])
	if order == btree.Descending {
		slices.Reverse(oids)
	}
	c := &sliceCursor{oids: oids}
	s.cursors = append(s.cursors, c)
	return c
}

func (s *fakeStorage) Load(_ context.Context, oid model.OID) (any, error) {
	s.loads++
	if oid == s.failOn {
		return nil, errors.New("disk on fire")
	}
	obj, ok := s.objects[oid]
	if !ok {
		return nil, engine.ErrNotFound
	}
	return obj, nil
}

type fakeOverlay struct {
	staged  map[model.ClassID][]model.OID
	deleted map[model.OID]bool
}

func (o *fakeOverlay) Staged(class model.ClassID) []model.OID { return o.staged[class] }
func (o *fakeOverlay) Deleted(oid model.OID) bool             { return o.deleted[oid] }

type fixture struct {
	registry *meta.Registry
	storage  *fakeStorage
	animal   *meta.ClassInfo
	dog      *meta.ClassInfo
	cat      *meta.ClassInfo
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{registry: meta.NewRegistry(nil), storage: newFakeStorage()}
	var err error
	f.animal, err = f.registry.ClassInfoOf(&Animal{})
	require.NoError(t, err)
	f.dog, err = f.registry.ClassInfoOf(&Dog{})
	require.NoError(t, err)
	f.cat, err = f.registry.ClassInfoOf(&Cat{})
	require.NoError(t, err)

	f.storage.put(f.animal.ID, 1, &Animal{Name: "generic", Age: 1})
	f.storage.put(f.dog.ID, 2, &Dog{Animal: Animal{Name: "rex", Age: 5}, Breed: "collie"})
	f.storage.put(f.cat.ID, 3, &Cat{Animal: Animal{Name: "tom", Age: 4}})
	f.storage.put(f.dog.ID, 4, &Dog{Animal: Animal{Name: "fido", Age: 2}})
	f.storage.put(f.cat.ID, 5, &Cat{Animal: Animal{Name: "kitty", Age: 7}, Indoor: true})
	return f
}

func drain(t *testing.T, it *Iterator) []model.OID {
	t.Helper()
	var out []model.OID
	for it.Next() {
		out = append(out, it.OID())
	}
	require.NoError(t, it.Err())
	return out
}

func TestSingleClassExecutor(t *testing.T) {
	f := newFixture(t)
	q := &Query{Class: f.dog}
	exec := NewSingleClassExecutor(f.storage, q)
	assert.Same(t, q, exec.Query())
	assert.Same(t, f.storage, exec.StorageEngine())

	it, err := exec.Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []model.OID{2, 4}, drain(t, it))

	// Not resumable after exhaustion.
	assert.False(t, it.Next())

	exec.SetClassInfo(f.cat)
	it, err = exec.Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []model.OID{3, 5}, drain(t, it))
}

func TestSingleClassExecutorNoClass(t *testing.T) {
	_, err := NewSingleClassExecutor(newFakeStorage(), &Query{}).Execute(context.Background())
	assert.ErrorIs(t, err, ErrNoClass)
	_, err = NewMultiClassExecutor(newFakeStorage(), nil, &Query{}).Execute(context.Background())
	assert.ErrorIs(t, err, ErrNoClass)
}

func TestMultiClassUnion(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name    string
		q       Query
		want    []model.OID
		ordered bool
	}{
		{"ordered", Query{Polymorphic: true, Ordered: true}, []model.OID{1, 2, 3, 4, 5}, true},
		{"descending", Query{Polymorphic: true, Ordered: true, Order: btree.Descending}, []model.OID{5, 4, 3, 2, 1}, true},
		{"concatenated", Query{Polymorphic: true}, []model.OID{1, 2, 4, 3, 5}, false},
		{"not polymorphic", Query{}, []model.OID{1}, true},
		{"limit", Query{Polymorphic: true, Ordered: true, Limit: 3}, []model.OID{1, 2, 3}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := tt.q
			q.Class = f.animal
			it, err := NewMultiClassExecutor(f.storage, f.registry, &q).Execute(context.Background())
			require.NoError(t, err)
			got := drain(t, it)
			if tt.ordered {
				assert.Equal(t, tt.want, got)
			} else {
				assert.ElementsMatch(t, tt.want, got)
			}
		})
	}
}

func TestExhaustedIteratorHasNoCurrent(t *testing.T) {
	f := newFixture(t)

	for _, q := range []Query{
		{Class: f.animal, Polymorphic: true, Ordered: true},
		{Class: f.animal, Polymorphic: true},
	} {
		it, err := NewMultiClassExecutor(f.storage, f.registry, &q).Execute(context.Background())
		require.NoError(t, err)
		for it.Next() {
		}
		require.NoError(t, it.Err())
		assert.Equal(t, model.InvalidOID, it.OID())
		assert.Nil(t, it.Object())
	}

	merge := &mergeSource{}
	assert.Equal(t, model.InvalidOID, merge.OID())
	assert.False(t, merge.Next())
	assert.Equal(t, model.InvalidOID, merge.OID())
	assert.Nil(t, merge.Object())

	concat := &concatSource{}
	assert.False(t, concat.Next())
	assert.Equal(t, model.InvalidOID, concat.OID())
	assert.Nil(t, concat.Object())
}

func TestMultiClassTwoSubclassesNoDuplicates(t *testing.T) {
	f := newFixture(t)
	// The same OID listed in two extents is reported once.
	f.storage.extents[f.cat.ID] = append(f.storage.extents[f.cat.ID], 4)
	slices.Sort(f.storage.extents[f.cat.ID])

	exec := NewMultiClassExecutor(f.storage, f.registry, &Query{Class: f.animal, Polymorphic: true})
	assert.Equal(t, []*meta.ClassInfo{f.animal, f.dog, f.cat}, exec.Classes())

	it, err := exec.Execute(context.Background())
	require.NoError(t, err)
	got := drain(t, it)
	assert.ElementsMatch(t, []model.OID{1, 2, 3, 4, 5}, got)
	assert.Len(t, got, 5)
}

func TestPredicate(t *testing.T) {
	f := newFixture(t)
	q := &Query{
		Class:       f.animal,
		Polymorphic: true,
		Ordered:     true,
		Where: PredicateFunc(func(obj any) bool {
			switch a := obj.(type) {
			case *Dog:
				return a.Age > 3
			case *Cat:
				return a.Age > 3
			}
			return false
		}),
	}
	it, err := NewMultiClassExecutor(f.storage, f.registry, q).Execute(context.Background())
	require.NoError(t, err)
	objs, err := Collect(it)
	require.NoError(t, err)
	require.Len(t, objs, 3)
	assert.Equal(t, "rex", objs[0].(*Dog).Name)
	assert.Equal(t, "tom", objs[1].(*Cat).Name)
	assert.Equal(t, "kitty", objs[2].(*Cat).Name)
}

func TestLazyLoading(t *testing.T) {
	f := newFixture(t)
	it, err := NewMultiClassExecutor(f.storage, f.registry, &Query{Class: f.animal, Polymorphic: true, Ordered: true}).Execute(context.Background())
	require.NoError(t, err)
	assert.Zero(t, f.storage.loads)

	require.True(t, it.Next())
	assert.LessOrEqual(t, f.storage.loads, 3)

	require.NoError(t, it.Close())
	for _, c := range f.storage.cursors {
		assert.True(t, c.closed)
	}
}

func TestOverlay(t *testing.T) {
	f := newFixture(t)
	f.storage.objects[7] = &Dog{Animal: Animal{Name: "new"}}
	f.storage.objects[9] = &Dog{Animal: Animal{Name: "newer"}}
	ov := &fakeOverlay{
		staged:  map[model.ClassID][]model.OID{f.dog.ID: {7, 9}},
		deleted: map[model.OID]bool{2: true},
	}

	it, err := NewSingleClassExecutor(f.storage, &Query{Class: f.dog}, WithOverlay(ov)).Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []model.OID{4, 7, 9}, drain(t, it))

	it, err = NewSingleClassExecutor(f.storage, &Query{Class: f.dog, Order: btree.Descending}, WithOverlay(ov)).Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []model.OID{9, 7, 4}, drain(t, it))
}

func TestMissingObjectsAreSkipped(t *testing.T) {
	f := newFixture(t)
	delete(f.storage.objects, 2)

	it, err := NewSingleClassExecutor(f.storage, &Query{Class: f.dog}).Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []model.OID{4}, drain(t, it))
}

func TestFaultTerminatesSequence(t *testing.T) {
	f := newFixture(t)
	f.storage.failOn = 4

	it, err := NewMultiClassExecutor(f.storage, f.registry, &Query{Class: f.animal, Polymorphic: true, Ordered: true}).Execute(context.Background())
	require.NoError(t, err)
	var got []model.OID
	for it.Next() {
		got = append(got, it.OID())
	}
	assert.Error(t, it.Err())
	assert.Equal(t, []model.OID{1, 2}, got)
}

func TestCursorFault(t *testing.T) {
	f := newFixture(t)
	storage := &faultyExtent{fakeStorage: f.storage}

	it, err := NewSingleClassExecutor(storage, &Query{Class: f.dog}).Execute(context.Background())
	require.NoError(t, err)
	assert.False(t, it.Next())
	assert.ErrorIs(t, it.Err(), btree.ErrStructuralIntegrity)
}

type faultyExtent struct {
	*fakeStorage
}

func (s *faultyExtent) Extent(context.Context, model.ClassID, btree.Order) Cursor {
	return &sliceCursor{err: btree.ErrStructuralIntegrity}
}

func TestCanceledContext(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	it, err := NewSingleClassExecutor(f.storage, &Query{Class: f.dog}).Execute(ctx)
	require.NoError(t, err)
	require.True(t, it.Next())
	cancel()
	assert.False(t, it.Next())
	assert.ErrorIs(t, it.Err(), context.Canceled)
}

func TestStartAndEndActions(t *testing.T) {
	f := newFixture(t)
	rec := &observability.Recorder{}
	var starts, ends int
	var last Stats
	hooks := Hooks{
		Start: func(context.Context, *Query) { starts++ },
		End:   func(_ context.Context, _ *Query, s Stats) { ends++; last = s },
	}

	exec := NewMultiClassExecutor(f.storage, f.registry, &Query{Class: f.animal, Polymorphic: true}, WithObserver(rec), WithHooks(hooks))
	it, err := exec.Execute(context.Background())
	require.NoError(t, err)
	drain(t, it)
	require.NoError(t, it.Close())

	// Nested per-class executors do not fire their own actions.
	assert.Equal(t, 1, starts)
	assert.Equal(t, 1, ends)
	assert.Equal(t, []observability.EventType{observability.EventQueryStart, observability.EventQueryEnd}, rec.Types())
	assert.Equal(t, 3, last.Classes)
	assert.Equal(t, 5, last.Results)

	rec.Reset()
	exec.SetExecuteStartAndEndOfQueryAction(false)
	it, err = exec.Execute(context.Background())
	require.NoError(t, err)
	drain(t, it)
	assert.Empty(t, rec.Types())
	assert.Equal(t, 1, starts)
}

func TestAll(t *testing.T) {
	f := newFixture(t)
	it, err := NewSingleClassExecutor(f.storage, &Query{Class: f.cat}).Execute(context.Background())
	require.NoError(t, err)

	var names []string
	for _, obj := range it.All() {
		names = append(names, obj.(*Cat).Name)
		break
	}
	assert.Equal(t, []string{"tom"}, names)
	assert.False(t, it.Next())
}
