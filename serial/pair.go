package serial

// Pair is a composite key of two fixed-size parts, ordered by First then
// Second.
type Pair[A, B any] struct {
	First  A
	Second B
}

// PairOf combines two serializers; the encoding is First followed by Second.
func PairOf[A, B any](a Serializer[A], b Serializer[B]) Serializer[Pair[A, B]] {
	return pairSerializer[A, B]{a: a, b: b}
}

type pairSerializer[A, B any] struct {
	a Serializer[A]
	b Serializer[B]
}

func (p pairSerializer[A, B]) name() string {
	return "pair(" + typeName(p.a) + "," + typeName(p.b) + ")"
}

func (p pairSerializer[A, B]) Size() int { return p.a.Size() + p.b.Size() }

func (p pairSerializer[A, B]) Serialize(buf []byte, off int, v Pair[A, B]) error {
	if err := checkRoom(p.name(), buf, off, p.Size()); err != nil {
		return err
	}
	if err := p.a.Serialize(buf, off, v.First); err != nil {
		return err
	}
	return p.b.Serialize(buf, off+p.a.Size(), v.Second)
}

func (p pairSerializer[A, B]) Deserialize(buf []byte) (Pair[A, B], error) {
	var out Pair[A, B]
	if err := checkExact(p.name(), buf, p.Size()); err != nil {
		return out, err
	}
	first, err := p.a.Deserialize(buf[:p.a.Size()])
	if err != nil {
		return out, err
	}
	second, err := p.b.Deserialize(buf[p.a.Size():])
	if err != nil {
		return out, err
	}
	out.First, out.Second = first, second
	return out, nil
}

// ComparePair builds a lexicographic comparator for Pair keys.
func ComparePair[A, B any](ca func(a, b A) int, cb func(a, b B) int) func(x, y Pair[A, B]) int {
	return func(x, y Pair[A, B]) int {
		if c := ca(x.First, y.First); c != 0 {
			return c
		}
		return cb(x.Second, y.Second)
	}
}
