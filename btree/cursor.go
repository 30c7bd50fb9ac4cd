package btree

import (
	"context"
	"iter"
)

// Order is the direction of a cursor.
type Order uint8

const (
	// Ascending yields keys from smallest to largest.
	Ascending Order = iota
	// Descending yields keys from largest to smallest.
	Descending
)

func (o Order) String() string {
	if o == Descending {
		return "desc"
	}
	return "asc"
}

// Cursor lazily walks a view in key order. Multi-value keys yield one
// entry per value. A cursor is not safe for concurrent use and cannot be
// restarted once exhausted.
type Cursor[K, V any] struct {
	ctx   context.Context
	t     *Tree[K, V]
	root  PageID
	order Order
	lo    *K
	hi    *K

	stack   []frame[K, V]
	vi      int
	started bool
	done    bool
	err     error

	key K
	val V
}

// Next advances to the next entry and reports whether one exists.
func (c *Cursor[K, V]) Next() bool {
	if c.done {
		return false
	}
	if err := c.ctx.Err(); err != nil {
		return c.fail(err)
	}

	var ok bool
	if !c.started {
		c.started = true
		ok = c.seek()
	} else {
		ok = c.advance()
	}
	if !ok {
		return c.finish()
	}

	top := c.stack[len(c.stack)-1]
	key := top.n.keys[top.i]
	if c.order == Ascending && c.hi != nil && c.t.cmp(key, *c.hi) > 0 {
		return c.finish()
	}
	if c.order == Descending && c.lo != nil && c.t.cmp(key, *c.lo) < 0 {
		return c.finish()
	}

	c.key = key
	c.val = top.n.values[top.i][c.vi]
	return true
}

// Key returns the key of the current entry.
func (c *Cursor[K, V]) Key() K { return c.key }

// Value returns the value of the current entry.
func (c *Cursor[K, V]) Value() V { return c.val }

// Err returns the fault that ended the iteration, if any.
func (c *Cursor[K, V]) Err() error { return c.err }

// Close releases the cursor. It is safe to call Close more than once.
func (c *Cursor[K, V]) Close() error {
	c.finish()
	return nil
}

// All adapts the cursor to a range-over-func sequence. The cursor is closed
// when the sequence ends; check Err afterwards.
func (c *Cursor[K, V]) All() iter.Seq2[K, V] {
	return func(yield func(K, V) bool) {
		defer c.Close()
		for c.Next() {
			if !yield(c.key, c.val) {
				return
			}
		}
	}
}

func (c *Cursor[K, V]) fail(err error) bool {
	c.err = err
	return c.finish()
}

func (c *Cursor[K, V]) finish() bool {
	c.done = true
	c.stack = nil
	return false
}

// seek positions the cursor on the first entry in iteration order.
func (c *Cursor[K, V]) seek() bool {
	if c.root == InvalidPage {
		return false
	}

	id := c.root
	for {
		n, err := c.t.load(c.ctx, id)
		if err != nil {
			return c.fail(err)
		}

		var i int
		switch {
		case c.order == Ascending && c.lo != nil:
			i = c.t.lowerBound(n.keys, *c.lo)
		case c.order == Ascending:
			i = 0
		case c.hi != nil && n.leaf:
			i = c.t.upperBound(n.keys, *c.hi) - 1
		case c.hi != nil:
			i = c.t.lowerBound(n.keys, *c.hi)
		case n.leaf:
			i = len(n.keys) - 1
		default:
			i = len(n.children) - 1
		}

		c.stack = append(c.stack, frame[K, V]{n: n, i: i})
		if n.leaf {
			break
		}
		id = n.children[i]
	}

	top := &c.stack[len(c.stack)-1]
	if c.order == Ascending {
		if top.i >= len(top.n.keys) {
			return c.nextLeaf()
		}
		c.vi = 0
		return true
	}
	if top.i < 0 {
		return c.prevLeaf()
	}
	c.vi = len(top.n.values[top.i]) - 1
	return true
}

func (c *Cursor[K, V]) advance() bool {
	top := &c.stack[len(c.stack)-1]
	if c.order == Ascending {
		if c.vi+1 < len(top.n.values[top.i]) {
			c.vi++
			return true
		}
		top.i++
		c.vi = 0
		if top.i < len(top.n.keys) {
			return true
		}
		return c.nextLeaf()
	}

	if c.vi > 0 {
		c.vi--
		return true
	}
	top.i--
	if top.i >= 0 {
		c.vi = len(top.n.values[top.i]) - 1
		return true
	}
	return c.prevLeaf()
}

// nextLeaf moves to the first entry of the following leaf.
func (c *Cursor[K, V]) nextLeaf() bool {
	c.stack = c.stack[:len(c.stack)-1]
	for len(c.stack) > 0 {
		top := &c.stack[len(c.stack)-1]
		top.i++
		if top.i >= len(top.n.children) {
			c.stack = c.stack[:len(c.stack)-1]
			continue
		}
		id := top.n.children[top.i]
		for {
			n, err := c.t.load(c.ctx, id)
			if err != nil {
				return c.fail(err)
			}
			c.stack = append(c.stack, frame[K, V]{n: n, i: 0})
			if n.leaf {
				break
			}
			id = n.children[0]
		}
		if len(c.stack[len(c.stack)-1].n.keys) == 0 {
			return c.nextLeaf()
		}
		c.vi = 0
		return true
	}
	return false
}

// prevLeaf moves to the last entry of the preceding leaf.
func (c *Cursor[K, V]) prevLeaf() bool {
	c.stack = c.stack[:len(c.stack)-1]
	for len(c.stack) > 0 {
		top := &c.stack[len(c.stack)-1]
		top.i--
		if top.i < 0 {
			c.stack = c.stack[:len(c.stack)-1]
			continue
		}
		id := top.n.children[top.i]
		for {
			n, err := c.t.load(c.ctx, id)
			if err != nil {
				return c.fail(err)
			}
			last := len(n.children) - 1
			if n.leaf {
				last = len(n.keys) - 1
			}
			c.stack = append(c.stack, frame[K, V]{n: n, i: last})
			if n.leaf {
				break
			}
			id = n.children[last]
		}
		leaf := c.stack[len(c.stack)-1]
		if leaf.i < 0 {
			return c.prevLeaf()
		}
		c.vi = len(leaf.n.values[leaf.i]) - 1
		return true
	}
	return false
}
