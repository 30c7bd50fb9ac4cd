package btree

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"math"
	"slices"

	"github.com/hupe1980/oodb/serial"
)

// Page layout (little-endian):
//
//	0  magic   uint32
//	4  kind    uint8   (1 leaf, 2 internal)
//	5  policy  uint8
//	6  count   uint16  (number of keys)
//	8  id      uint64
//	16 cells
//	-4 crc32   uint32  over everything before it
//
// Leaf cells are key|value (SingleValue) or key|n uint16|n*value
// (MultiValue). Internal cells are count keys followed by count+1 child ids.
const (
	pageMagic   uint32 = 0x4f425431 // "OBT1"
	headerSize         = 16
	trailerSize        = 4

	kindLeaf     uint8 = 1
	kindInternal uint8 = 2
)

// MaxValuesPerKey bounds the values a MultiValue key can hold.
const MaxValuesPerKey = math.MaxUint16

type node[K, V any] struct {
	id       PageID
	gen      uint64
	leaf     bool
	keys     []K
	values   [][]V    // leaf only, one slice per key
	children []PageID // internal only

	// owned holds the first elements of value arrays allocated while the
	// node was dirty. Other arrays may be shared with older versions.
	owned map[*V]struct{}
}

// appendValue appends v to vals without writing into an array a published
// version can see.
func (n *node[K, V]) appendValue(vals []V, v V) []V {
	if len(vals) > 0 {
		if _, ok := n.owned[&vals[0]]; ok {
			out := append(vals, v)
			if &out[0] != &vals[0] {
				delete(n.owned, &vals[0])
				n.owned[&out[0]] = struct{}{}
			}
			return out
		}
	}
	out := append(slices.Clip(vals), v)
	if n.owned == nil {
		n.owned = make(map[*V]struct{})
	}
	n.owned[&out[0]] = struct{}{}
	return out
}

func (n *node[K, V]) clone() *node[K, V] {
	c := &node[K, V]{
		leaf: n.leaf,
		keys: slices.Clone(n.keys),
	}
	if n.leaf {
		c.values = slices.Clone(n.values)
	} else {
		c.children = slices.Clone(n.children)
	}
	return c
}

type nodeCodec[K, V any] struct {
	keys   serial.Serializer[K]
	values serial.Serializer[V]
	policy Policy
}

func (c nodeCodec[K, V]) encodedSize(n *node[K, V]) int {
	ks, vs := c.keys.Size(), c.values.Size()
	size := headerSize + trailerSize
	if !n.leaf {
		return size + len(n.keys)*ks + len(n.children)*8
	}
	if c.policy == SingleValue {
		return size + len(n.keys)*(ks+vs)
	}
	for _, vals := range n.values {
		size += ks + 2 + len(vals)*vs
	}
	return size
}

func (c nodeCodec[K, V]) encode(n *node[K, V]) ([]byte, error) {
	buf := make([]byte, c.encodedSize(n))

	binary.LittleEndian.PutUint32(buf[0:], pageMagic)
	if n.leaf {
		buf[4] = kindLeaf
	} else {
		buf[4] = kindInternal
	}
	buf[5] = byte(c.policy)
	binary.LittleEndian.PutUint16(buf[6:], uint16(len(n.keys)))
	binary.LittleEndian.PutUint64(buf[8:], uint64(n.id))

	off := headerSize
	ks, vs := c.keys.Size(), c.values.Size()

	if n.leaf {
		for i, k := range n.keys {
			if err := c.keys.Serialize(buf, off, k); err != nil {
				return nil, err
			}
			off += ks
			vals := n.values[i]
			if c.policy == MultiValue {
				if len(vals) > MaxValuesPerKey {
					return nil, fmt.Errorf("%w: %d values under one key", ErrTooManyValues, len(vals))
				}
				binary.LittleEndian.PutUint16(buf[off:], uint16(len(vals)))
				off += 2
			}
			for _, v := range vals {
				if err := c.values.Serialize(buf, off, v); err != nil {
					return nil, err
				}
				off += vs
			}
		}
	} else {
		for _, k := range n.keys {
			if err := c.keys.Serialize(buf, off, k); err != nil {
				return nil, err
			}
			off += ks
		}
		for _, child := range n.children {
			binary.LittleEndian.PutUint64(buf[off:], uint64(child))
			off += 8
		}
	}

	binary.LittleEndian.PutUint32(buf[off:], crc32.ChecksumIEEE(buf[:off]))
	return buf, nil
}

func (c nodeCodec[K, V]) decode(id PageID, data []byte) (*node[K, V], error) {
	if len(data) < headerSize+trailerSize {
		return nil, corrupt(id, "short page (%d bytes)", len(data))
	}

	bodyEnd := len(data) - trailerSize
	if got, want := crc32.ChecksumIEEE(data[:bodyEnd]), binary.LittleEndian.Uint32(data[bodyEnd:]); got != want {
		return nil, corrupt(id, "checksum mismatch (got %08x, want %08x)", got, want)
	}
	if magic := binary.LittleEndian.Uint32(data[0:]); magic != pageMagic {
		return nil, corrupt(id, "bad magic %08x", magic)
	}
	if Policy(data[5]) != c.policy {
		return nil, corrupt(id, "policy %d does not match tree policy %s", data[5], c.policy)
	}
	if pid := PageID(binary.LittleEndian.Uint64(data[8:])); pid != id {
		return nil, corrupt(id, "page header names node %d", pid)
	}

	count := int(binary.LittleEndian.Uint16(data[6:]))
	n := &node[K, V]{id: id, keys: make([]K, 0, count)}
	ks, vs := c.keys.Size(), c.values.Size()
	off := headerSize

	readKey := func() error {
		if off+ks > bodyEnd {
			return corrupt(id, "key count %d exceeds page size", count)
		}
		k, err := c.keys.Deserialize(data[off : off+ks])
		if err != nil {
			return &CorruptNodeError{Page: id, Reason: "key", Err: err}
		}
		n.keys = append(n.keys, k)
		off += ks
		return nil
	}

	switch data[4] {
	case kindLeaf:
		n.leaf = true
		n.values = make([][]V, 0, count)
		for range count {
			if err := readKey(); err != nil {
				return nil, err
			}
			nv := 1
			if c.policy == MultiValue {
				if off+2 > bodyEnd {
					return nil, corrupt(id, "truncated value count")
				}
				nv = int(binary.LittleEndian.Uint16(data[off:]))
				off += 2
				if nv == 0 {
					return nil, corrupt(id, "key without values")
				}
			}
			if off+nv*vs > bodyEnd {
				return nil, corrupt(id, "values exceed page size")
			}
			vals := make([]V, nv)
			for j := range vals {
				v, err := c.values.Deserialize(data[off : off+vs])
				if err != nil {
					return nil, &CorruptNodeError{Page: id, Reason: "value", Err: err}
				}
				vals[j] = v
				off += vs
			}
			n.values = append(n.values, vals)
		}
	case kindInternal:
		for range count {
			if err := readKey(); err != nil {
				return nil, err
			}
		}
		if off+(count+1)*8 > bodyEnd {
			return nil, corrupt(id, "separator count %d does not match children", count)
		}
		n.children = make([]PageID, count+1)
		for i := range n.children {
			n.children[i] = PageID(binary.LittleEndian.Uint64(data[off:]))
			if n.children[i] == InvalidPage {
				return nil, corrupt(id, "child %d is the invalid page", i)
			}
			off += 8
		}
	default:
		return nil, corrupt(id, "unknown node kind %d", data[4])
	}

	if off != bodyEnd {
		return nil, corrupt(id, "%d trailing bytes", bodyEnd-off)
	}
	return n, nil
}
