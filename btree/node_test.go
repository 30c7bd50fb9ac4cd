package btree

import (
	"cmp"
	"context"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"testing"

	"github.com/hupe1980/oodb/serial"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCodec(policy Policy) nodeCodec[int64, int64] {
	return nodeCodec[int64, int64]{keys: serial.Int64{}, values: serial.Int64{}, policy: policy}
}

func TestNodeCodec(t *testing.T) {
	c := testCodec(SingleValue)

	leaf := &node[int64, int64]{id: 7, leaf: true, keys: []int64{1, 2, 3}, values: [][]int64{{10}, {20}, {30}}}
	data, err := c.encode(leaf)
	require.NoError(t, err)
	assert.Len(t, data, headerSize+trailerSize+3*16)

	got, err := c.decode(7, data)
	require.NoError(t, err)
	assert.True(t, got.leaf)
	assert.Equal(t, leaf.keys, got.keys)
	assert.Equal(t, leaf.values, got.values)

	internal := &node[int64, int64]{id: 9, keys: []int64{5}, children: []PageID{2, 3}}
	data, err = c.encode(internal)
	require.NoError(t, err)

	got, err = c.decode(9, data)
	require.NoError(t, err)
	assert.False(t, got.leaf)
	assert.Equal(t, internal.children, got.children)
}

func reseal(data []byte) []byte {
	end := len(data) - trailerSize
	binary.LittleEndian.PutUint32(data[end:], crc32.ChecksumIEEE(data[:end]))
	return data
}

func TestNodeCodecCorruption(t *testing.T) {
	c := testCodec(SingleValue)
	leaf := &node[int64, int64]{id: 3, leaf: true, keys: []int64{1, 2}, values: [][]int64{{1}, {2}}}

	encode := func() []byte {
		data, err := c.encode(leaf)
		require.NoError(t, err)
		return data
	}

	tests := []struct {
		name  string
		id    PageID
		page  func() []byte
		codec nodeCodec[int64, int64]
	}{
		{"short", 3, func() []byte { return []byte{1, 2, 3} }, c},
		{"bit flip", 3, func() []byte { d := encode(); d[20] ^= 0xff; return d }, c},
		{"wrong id", 4, encode, c},
		{"wrong policy", 3, encode, testCodec(MultiValue)},
		{"key count too large", 3, func() []byte {
			d := encode()
			binary.LittleEndian.PutUint16(d[6:], 5)
			return reseal(d)
		}, c},
		{"key count too small", 3, func() []byte {
			d := encode()
			binary.LittleEndian.PutUint16(d[6:], 1)
			return reseal(d)
		}, c},
		{"unknown kind", 3, func() []byte { d := encode(); d[4] = 9; return reseal(d) }, c},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.codec.decode(tt.id, tt.page())
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrStructuralIntegrity)

			var ce *CorruptNodeError
			require.True(t, errors.As(err, &ce))
			assert.Equal(t, tt.id, ce.Page)
		})
	}
}

func TestCorruptPageSurfacesOnRead(t *testing.T) {
	ctx := context.Background()
	p := NewMemoryPersister()
	tr := newIntTree(t, p, WithDegree(3))

	for k := int64(0); k < 10; k++ {
		require.NoError(t, tr.Insert(ctx, k, k))
	}
	require.NoError(t, tr.Flush(ctx))
	require.NoError(t, tr.Publish())
	meta := tr.CommittedMeta()

	p.Corrupt(meta.Root, []byte("garbage that is not a page"))

	fresh, err := Open[int64, int64](p, serial.Int64{}, serial.Int64{}, cmp.Compare[int64], meta, WithDegree(3))
	require.NoError(t, err)

	_, err = fresh.Search(ctx, 1)
	assert.ErrorIs(t, err, ErrStructuralIntegrity)

	c := fresh.Iterator(ctx, Ascending)
	assert.False(t, c.Next())
	assert.ErrorIs(t, c.Err(), ErrStructuralIntegrity)

	assert.ErrorIs(t, fresh.Check(ctx), ErrStructuralIntegrity)
}

func TestMissingPage(t *testing.T) {
	ctx := context.Background()
	p := NewMemoryPersister()
	tr, err := Open[int64, int64](p, serial.Int64{}, serial.Int64{}, cmp.Compare[int64], Meta{Root: 42, Count: 1, Height: 1})
	require.NoError(t, err)

	_, err = tr.Search(ctx, 1)
	assert.ErrorIs(t, err, ErrPageNotFound)
}
