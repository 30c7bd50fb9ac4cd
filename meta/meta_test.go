package meta

import (
	"fmt"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/hupe1980/oodb/codec"
	"github.com/hupe1980/oodb/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type Address struct {
	City string
}

type Person struct {
	Name     string
	Age      int
	Tags     []string
	Born     time.Time
	Home     *Address
	Friends  []*Person
	Nick     string `odb:"nickname"`
	scratch  int
	Password string `odb:"-"`
}

type Animal struct {
	Name string
}

type Dog struct {
	Animal
	Breed string
}

type Puppy struct {
	Dog
	Toy string
}

type Cat struct {
	Animal
	Indoor bool
}

type Empty struct{}

type Described struct {
	Title  string
	Pages  int
	Hidden string
}

func (Described) ClassSchema() Schema {
	return Schema{Name: "book", Attributes: []SchemaField{{Name: "title", Field: "Title"}, {Name: "Pages"}}}
}

func oids(m map[any]model.OID) OIDResolver {
	return func(obj any) model.OID { return m[obj] }
}

func TestClassInfoFromStruct(t *testing.T) {
	r := NewRegistry(nil)

	ci, err := r.ClassInfoOf(&Person{})
	require.NoError(t, err)
	assert.Equal(t, reflect.TypeOf(Person{}), ci.Type)

	var names []string
	for _, a := range ci.Attributes() {
		names = append(names, a.Name)
	}
	assert.Equal(t, []string{"Name", "Age", "Tags", "Born", "Home", "Friends", "nickname"}, names)

	home, ok := ci.AttributeByName("Home")
	require.True(t, ok)
	assert.Equal(t, KindReference, home.Kind)
	assert.Equal(t, reflect.TypeOf(Address{}), home.RefType)

	friends, _ := ci.AttributeByName("Friends")
	assert.Equal(t, KindReferenceSlice, friends.Kind)
	born, _ := ci.AttributeByName("Born")
	assert.Equal(t, KindTime, born.Kind)
	tags, _ := ci.AttributeByName("Tags")
	assert.Equal(t, KindComposite, tags.Kind)

	again, err := r.ClassInfo(reflect.TypeOf(Person{}))
	require.NoError(t, err)
	assert.Same(t, ci, again)
}

func TestDualAttributeMaps(t *testing.T) {
	r := NewRegistry(nil)
	ci, err := r.ClassInfoOf(&Person{})
	require.NoError(t, err)

	byID, byName := ci.AttributesByID(), ci.AttributesByName()
	assert.Len(t, byID, ci.NumAttributes())
	assert.Len(t, byName, ci.NumAttributes())
	for _, a := range ci.Attributes() {
		assert.Same(t, a, byID[a.ID])
		assert.Same(t, a, byName[a.Name])
	}

	// Manual additions keep both maps in step.
	manual := NewClassInfo(9, "manual", nil, nil)
	for i := 1; i <= 5; i++ {
		require.NoError(t, manual.AddAttribute(&ClassAttributeInfo{ID: model.AttributeID(i), Name: fmt.Sprintf("a%d", i), Kind: KindInt}))
		assert.Len(t, manual.AttributesByID(), i)
		assert.Len(t, manual.AttributesByName(), i)
	}

	err = manual.AddAttribute(&ClassAttributeInfo{ID: 3, Name: "other"})
	assert.ErrorIs(t, err, ErrDuplicateAttribute)
	err = manual.AddAttribute(&ClassAttributeInfo{ID: 77, Name: "a1"})
	assert.ErrorIs(t, err, ErrDuplicateAttribute)
	assert.Len(t, manual.AttributesByID(), 5)
	assert.Len(t, manual.AttributesByName(), 5)

	a, ok := manual.AttributeByID(4)
	require.True(t, ok)
	b, ok := manual.AttributeByName("a4")
	require.True(t, ok)
	assert.Same(t, a, b)
}

func TestEmptyClass(t *testing.T) {
	r := NewRegistry(nil)
	ci, err := r.ClassInfoOf(Empty{})
	require.NoError(t, err)
	assert.Zero(t, ci.NumAttributes())
	assert.Empty(t, ci.AttributesByID())
	assert.Empty(t, ci.AttributesByName())
}

func TestNotStruct(t *testing.T) {
	r := NewRegistry(nil)
	for _, v := range []any{1, "x", []int{}, struct{ A int }{}, time.Time{}, nil} {
		_, err := r.ClassInfoOf(v)
		assert.ErrorIs(t, err, ErrNotStruct, "%T", v)
	}
}

func TestSubclasses(t *testing.T) {
	r := NewRegistry(nil)
	animal, err := r.ClassInfoOf(&Animal{})
	require.NoError(t, err)
	puppy, err := r.ClassInfoOf(&Puppy{})
	require.NoError(t, err)
	cat, err := r.ClassInfoOf(&Cat{})
	require.NoError(t, err)
	dog, ok := r.ByID(puppy.Super.ID)
	require.True(t, ok)

	assert.Same(t, animal, dog.Super)
	assert.Equal(t, []*ClassInfo{dog, puppy, cat}, r.Subclasses(animal))
	assert.Equal(t, []*ClassInfo{puppy}, r.Subclasses(dog))
	assert.Empty(t, r.Subclasses(cat))

	var names []string
	for _, a := range puppy.Attributes() {
		names = append(names, a.Name)
	}
	assert.Equal(t, []string{"Name", "Breed", "Toy"}, names, "inherited attributes come first")

	p := &Puppy{Dog: Dog{Animal: Animal{Name: "rex"}, Breed: "pug"}, Toy: "ball"}
	info, err := Snapshot(puppy, p, nil)
	require.NoError(t, err)
	assert.Equal(t, NativeObjectInfo{Kind: KindString, Value: "rex"}, info.Values[0])
}

func TestDescriber(t *testing.T) {
	r := NewRegistry(nil)
	ci, err := r.ClassInfoOf(&Described{})
	require.NoError(t, err)
	assert.Equal(t, "book", ci.Name)
	assert.Equal(t, 2, ci.NumAttributes())
	_, ok := ci.AttributeByName("title")
	assert.True(t, ok)
	_, ok = ci.AttributeByName("Hidden")
	assert.False(t, ok)
}

type badSchema struct{ A int }

func (badSchema) ClassSchema() Schema {
	return Schema{Attributes: []SchemaField{{Name: "B"}}}
}

func TestDescriberUnknownField(t *testing.T) {
	_, err := NewRegistry(nil).ClassInfoOf(badSchema{})
	assert.ErrorIs(t, err, ErrUnknownField)
}

func TestConcurrentIntrospection(t *testing.T) {
	r := NewRegistry(nil)
	var wg sync.WaitGroup
	results := make([]*ClassInfo, 16)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ci, err := r.ClassInfoOf(&Dog{})
			assert.NoError(t, err)
			results[i] = ci
		}()
	}
	wg.Wait()
	for _, ci := range results {
		assert.Same(t, results[0], ci)
	}
	assert.Len(t, r.Classes(), 2)
}

func TestCatalogStableIDs(t *testing.T) {
	cat := NewMemoryCatalog(nil, 1)
	id, attrs, err := cat.Bind(Definition{Name: "P", Attributes: []AttributeDefinition{{"a", KindInt}, {"b", KindString}}})
	require.NoError(t, err)
	assert.Equal(t, model.ClassID(1), id)
	assert.Equal(t, []model.AttributeID{1, 2}, attrs)

	// Drop b, add c: c gets a fresh id, b is retired.
	restored := NewMemoryCatalog(cat.Classes(), cat.NextClassID())
	id2, attrs2, err := restored.Bind(Definition{Name: "P", Attributes: []AttributeDefinition{{"c", KindBool}, {"a", KindInt}}})
	require.NoError(t, err)
	assert.Equal(t, id, id2)
	assert.Equal(t, []model.AttributeID{3, 1}, attrs2)

	classes := restored.Classes()
	require.Len(t, classes, 1)
	assert.True(t, classes[0].Attributes[1].Retired)

	_, _, err = restored.Bind(Definition{Name: "P", Attributes: []AttributeDefinition{{"a", KindString}}})
	assert.ErrorIs(t, err, ErrKindChanged)

	next, _, err := restored.Bind(Definition{Name: "Q"})
	require.NoError(t, err)
	assert.Equal(t, model.ClassID(2), next)
}

func TestClassInfoFromCatalog(t *testing.T) {
	r := NewRegistry(nil)
	_, err := r.ClassInfoOf(&Dog{})
	require.NoError(t, err)

	cat := r.catalog.(*MemoryCatalog)
	infos, err := ClassInfoFromCatalog(cat.Classes())
	require.NoError(t, err)
	require.Len(t, infos, 2)

	for _, ci := range infos {
		if ci.Super != nil {
			assert.Equal(t, []string{"Name", "Breed"}, []string{ci.Attributes()[0].Name, ci.Attributes()[1].Name})
			assert.Nil(t, ci.Type)
		}
	}
}

func TestHasChanged(t *testing.T) {
	r := NewRegistry(nil)
	ci, err := r.ClassInfoOf(&Person{})
	require.NoError(t, err)

	born := time.Date(1990, 1, 2, 3, 4, 5, 0, time.UTC)
	p := &Person{Name: "ada", Age: 36, Tags: []string{"x"}, Born: born}
	a, err := Snapshot(ci, p, nil)
	require.NoError(t, err)
	b, err := Snapshot(ci, p, nil)
	require.NoError(t, err)

	var d ChangeDetector
	assert.False(t, d.HasChanged(a, b))
	assert.Equal(t, 0, d.NbChanges())

	p.Age = 37
	c, err := Snapshot(ci, p, nil)
	require.NoError(t, err)
	assert.True(t, d.HasChanged(a, c))
	assert.Equal(t, 1, d.NbChanges())
	assert.Equal(t, "Age", d.Changes()[0].Attribute.Name)

	// Snapshot is a deep copy.
	p.Tags[0] = "y"
	p.Born = born.In(time.FixedZone("x", 3600))
	e, err := Snapshot(ci, p, nil)
	require.NoError(t, err)
	assert.True(t, d.HasChanged(c, e))
	assert.Equal(t, 1, d.NbChanges(), "same instant in another zone is unchanged")

	d.Clear()
	assert.Equal(t, 0, d.NbChanges())

	// Reused detector starts fresh.
	assert.False(t, d.HasChanged(e, e))
	assert.Equal(t, 0, d.NbChanges())
}

func TestHasChangedReferences(t *testing.T) {
	r := NewRegistry(nil)
	ci, err := r.ClassInfoOf(&Person{})
	require.NoError(t, err)

	home1, home2 := &Address{City: "a"}, &Address{City: "a"}
	known := map[any]model.OID{home1: 10, home2: 11}
	p := &Person{Home: home1}

	a, err := Snapshot(ci, p, oids(known))
	require.NoError(t, err)

	// Mutating the referenced object is not a change of p.
	home1.City = "b"
	b, err := Snapshot(ci, p, oids(known))
	require.NoError(t, err)
	var d ChangeDetector
	assert.False(t, d.HasChanged(a, b))

	p.Home = home2
	c, err := Snapshot(ci, p, oids(known))
	require.NoError(t, err)
	assert.True(t, d.HasChanged(a, c))
	assert.Equal(t, 1, d.NbChanges())

	p.Home = nil
	n, err := Snapshot(ci, p, oids(known))
	require.NoError(t, err)
	assert.True(t, d.HasChanged(c, n))
	assert.Equal(t, NullObjectInfo{}, d.Changes()[0].New)
}

func TestEnrichWithOID(t *testing.T) {
	r := NewRegistry(nil)
	ci, err := r.ClassInfoOf(&Person{})
	require.NoError(t, err)

	friend := &Person{Name: "bob"}
	p := &Person{Name: "ada", Friends: []*Person{friend}}
	known := map[any]model.OID{}

	info, err := Snapshot(ci, p, oids(known))
	require.NoError(t, err)
	assert.False(t, info.OID.IsValid())

	err = EnrichWithOID(info, p, oids(known))
	assert.ErrorIs(t, err, ErrNoOID)

	known[p], known[friend] = 1, 2
	require.NoError(t, EnrichWithOID(info, p, oids(known)))
	assert.Equal(t, model.OID(1), info.OID)
	assert.Equal(t, []model.OID{2}, info.References())
}

func TestEncodeDecodeApply(t *testing.T) {
	r := NewRegistry(nil)
	ci, err := r.ClassInfoOf(&Person{})
	require.NoError(t, err)

	home := &Address{City: "paris"}
	friend := &Person{Name: "bob"}
	known := map[any]model.OID{home: 5, friend: 6}
	p := &Person{
		Name: "ada", Age: 36, Tags: []string{"a", "b"},
		Born: time.Date(1815, 12, 10, 0, 0, 0, 0, time.UTC),
		Home: home, Friends: []*Person{friend, nil}, Nick: "countess",
	}
	info, err := Snapshot(ci, p, oids(known))
	require.NoError(t, err)

	for _, c := range []codec.Codec{codec.JSON{}, codec.GoJSON{}} {
		t.Run(c.Name(), func(t *testing.T) {
			data, err := Encode(info, c)
			require.NoError(t, err)

			decoded, err := Decode(ci, 1, data, c)
			require.NoError(t, err)
			assert.Equal(t, model.OID(1), decoded.OID)

			var d ChangeDetector
			assert.False(t, d.HasChanged(info, decoded), "changes: %v", d.Changes())

			loaded := map[model.OID]any{5: home, 6: friend}
			var out Person
			err = Apply(decoded, &out, func(ref ObjectReference, _ *ClassAttributeInfo) (any, error) {
				return loaded[ref.OID], nil
			})
			require.NoError(t, err)
			assert.Equal(t, "ada", out.Name)
			assert.Equal(t, 36, out.Age)
			assert.Equal(t, []string{"a", "b"}, out.Tags)
			assert.True(t, p.Born.Equal(out.Born))
			assert.Same(t, home, out.Home)
			assert.Equal(t, []*Person{friend, nil}, out.Friends)
			assert.Equal(t, "countess", out.Nick)
		})
	}
}

func TestEncodeUnresolvedReference(t *testing.T) {
	r := NewRegistry(nil)
	ci, err := r.ClassInfoOf(&Person{})
	require.NoError(t, err)

	info, err := Snapshot(ci, &Person{Home: &Address{}}, nil)
	require.NoError(t, err)
	_, err = Encode(info, nil)
	assert.ErrorIs(t, err, ErrUnresolvedReference)
}

func TestDecodeSchemaEvolution(t *testing.T) {
	old := NewClassInfo(1, "P", nil, nil)
	require.NoError(t, old.AddAttribute(&ClassAttributeInfo{ID: 1, Name: "a", Kind: KindInt, Type: reflect.TypeOf(0)}))
	require.NoError(t, old.AddAttribute(&ClassAttributeInfo{ID: 2, Name: "b", Kind: KindString, Type: reflect.TypeOf("")}))
	data, err := Encode(&NonNativeObjectInfo{Class: old, Values: []AbstractObjectInfo{
		NativeObjectInfo{Kind: KindInt, Value: 7},
		NativeObjectInfo{Kind: KindString, Value: "gone"},
	}}, nil)
	require.NoError(t, err)

	cur := NewClassInfo(1, "P", nil, nil)
	require.NoError(t, cur.AddAttribute(&ClassAttributeInfo{ID: 3, Name: "c", Kind: KindBool, Type: reflect.TypeOf(false)}))
	require.NoError(t, cur.AddAttribute(&ClassAttributeInfo{ID: 1, Name: "a", Kind: KindInt, Type: reflect.TypeOf(0)}))

	info, err := Decode(cur, 1, data, nil)
	require.NoError(t, err)
	assert.Equal(t, NullObjectInfo{}, info.Values[0])
	assert.Equal(t, NativeObjectInfo{Kind: KindInt, Value: 7}, info.Values[1])

	other := NewClassInfo(2, "Q", nil, nil)
	_, err = Decode(other, 1, data, nil)
	assert.ErrorIs(t, err, ErrClassMismatch)
}

func TestApplyTypeMismatch(t *testing.T) {
	r := NewRegistry(nil)
	ci, err := r.ClassInfoOf(&Person{})
	require.NoError(t, err)
	info, err := Snapshot(ci, &Person{}, nil)
	require.NoError(t, err)

	assert.ErrorIs(t, Apply(info, &Dog{}, nil), ErrTypeMismatch)
	_, err = Snapshot(ci, Person{}, nil)
	assert.ErrorIs(t, err, ErrTypeMismatch)
}

func TestKindNames(t *testing.T) {
	for k := KindBool; k <= KindComposite; k++ {
		parsed, err := ParseKind(k.String())
		require.NoError(t, err)
		assert.Equal(t, k, parsed)
	}
	_, err := ParseKind("invalid")
	assert.Error(t, err)
}
