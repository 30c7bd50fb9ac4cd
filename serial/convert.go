package serial

// Map adapts a serializer of T to a named type U with the same
// representation, e.g. Map[uint64, model.OID](Uint64{}).
func Map[T, U any](inner Serializer[T], to func(T) U, from func(U) T) Serializer[U] {
	return mapped[T, U]{inner: inner, to: to, from: from}
}

type mapped[T, U any] struct {
	inner Serializer[T]
	to    func(T) U
	from  func(U) T
}

func (m mapped[T, U]) name() string { return typeName(m.inner) }

func (m mapped[T, U]) Size() int { return m.inner.Size() }

func (m mapped[T, U]) Serialize(buf []byte, off int, v U) error {
	return m.inner.Serialize(buf, off, m.from(v))
}

func (m mapped[T, U]) Deserialize(buf []byte) (U, error) {
	v, err := m.inner.Deserialize(buf)
	if err != nil {
		var zero U
		return zero, err
	}
	return m.to(v), nil
}
