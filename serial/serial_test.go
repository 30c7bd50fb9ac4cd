package serial

import (
	"cmp"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInt32RoundTrip(t *testing.T) {
	s := Int32{}
	for _, v := range []int32{0, 1, -1, 42, math.MaxInt32, math.MinInt32} {
		buf := make([]byte, 10)
		require.NoError(t, s.Serialize(buf, 3, v))

		got, err := DeserializeAt[int32](s, buf, 3)
		require.NoError(t, err)
		assert.Equal(t, v, got)
	}
}

func TestDeserializeWrongLength(t *testing.T) {
	tests := []struct {
		name string
		fn   func() error
	}{
		{"int32 short", func() error { _, err := Int32{}.Deserialize(make([]byte, 3)); return err }},
		{"int32 long", func() error { _, err := Int32{}.Deserialize(make([]byte, 5)); return err }},
		{"uint64 empty", func() error { _, err := Uint64{}.Deserialize(nil); return err }},
		{"int64 long", func() error { _, err := Int64{}.Deserialize(make([]byte, 9)); return err }},
		{"empty non-empty", func() error { _, err := Empty{}.Deserialize([]byte{1}); return err }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.fn()
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrFormat))

			var fe *FormatError
			assert.True(t, errors.As(err, &fe))
		})
	}
}

func TestSerializeNoRoom(t *testing.T) {
	err := Uint64{}.Serialize(make([]byte, 8), 1, 7)
	assert.ErrorIs(t, err, ErrFormat)

	_, err = DeserializeAt[uint32](Uint32{}, make([]byte, 4), 2)
	assert.ErrorIs(t, err, ErrFormat)
}

func TestPair(t *testing.T) {
	s := PairOf[uint32, uint64](Uint32{}, Uint64{})
	assert.Equal(t, 12, s.Size())

	in := Pair[uint32, uint64]{First: 7, Second: 1 << 40}
	buf, err := Encode(s, in)
	require.NoError(t, err)
	require.Len(t, buf, 12)

	out, err := s.Deserialize(buf)
	require.NoError(t, err)
	assert.Equal(t, in, out)

	_, err = s.Deserialize(buf[:11])
	assert.ErrorIs(t, err, ErrFormat)

	c := ComparePair(cmp.Compare[uint32], cmp.Compare[uint64])
	assert.Negative(t, c(Pair[uint32, uint64]{1, 9}, Pair[uint32, uint64]{2, 0}))
	assert.Positive(t, c(Pair[uint32, uint64]{2, 1}, Pair[uint32, uint64]{2, 0}))
	assert.Zero(t, c(in, out))
}

func TestMap(t *testing.T) {
	type id uint64
	s := Map[uint64, id](Uint64{}, func(v uint64) id { return id(v) }, func(v id) uint64 { return uint64(v) })

	buf, err := Encode(s, id(99))
	require.NoError(t, err)

	got, err := s.Deserialize(buf)
	require.NoError(t, err)
	assert.Equal(t, id(99), got)

	_, err = s.Deserialize(buf[:4])
	assert.ErrorIs(t, err, ErrFormat)
}
