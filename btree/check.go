package btree

import (
	"context"
)

// Check walks the whole view and verifies ordering, separator bounds,
// node fan-out, uniform leaf depth and the entry count. Any violation is
// reported as a *CorruptNodeError.
func (v *View[K, V]) Check(ctx context.Context) error {
	if v.meta.Root == InvalidPage {
		if v.meta.Count != 0 || v.meta.Height != 0 {
			return corrupt(InvalidPage, "empty tree reports count %d height %d", v.meta.Count, v.meta.Height)
		}
		return nil
	}

	c := checker[K, V]{t: v.t, height: v.meta.Height}
	if err := c.walk(ctx, v.meta.Root, nil, nil, 1, true); err != nil {
		return err
	}
	if c.count != v.meta.Count {
		return corrupt(v.meta.Root, "tree holds %d entries, meta reports %d", c.count, v.meta.Count)
	}
	return nil
}

type checker[K, V any] struct {
	t      *Tree[K, V]
	height int
	count  uint64
}

// walk checks the subtree at id, whose keys must lie in (lo, hi].
func (c *checker[K, V]) walk(ctx context.Context, id PageID, lo, hi *K, depth int, root bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	n, err := c.t.load(ctx, id)
	if err != nil {
		return err
	}

	for i, k := range n.keys {
		if i > 0 && c.t.cmp(n.keys[i-1], k) >= 0 {
			return corrupt(id, "keys out of order at %d", i)
		}
		if lo != nil && c.t.cmp(k, *lo) <= 0 {
			return corrupt(id, "key %d below lower separator", i)
		}
		if hi != nil && c.t.cmp(k, *hi) > 0 {
			return corrupt(id, "key %d above upper separator", i)
		}
	}

	if n.leaf {
		if depth != c.height {
			return corrupt(id, "leaf at depth %d, tree height %d", depth, c.height)
		}
		if len(n.keys) == 0 {
			return corrupt(id, "empty leaf")
		}
		if len(n.keys) > c.t.opts.degree-1 {
			return corrupt(id, "leaf holds %d keys, limit %d", len(n.keys), c.t.opts.degree-1)
		}
		if len(n.values) != len(n.keys) {
			return corrupt(id, "%d keys but %d value lists", len(n.keys), len(n.values))
		}
		for _, vals := range n.values {
			if len(vals) == 0 || (c.t.opts.policy == SingleValue && len(vals) != 1) {
				return corrupt(id, "key with %d values", len(vals))
			}
			c.count += uint64(len(vals))
		}
		return nil
	}

	if len(n.children) != len(n.keys)+1 {
		return corrupt(id, "%d separators for %d children", len(n.keys), len(n.children))
	}
	if len(n.children) > c.t.opts.degree {
		return corrupt(id, "%d children, limit %d", len(n.children), c.t.opts.degree)
	}
	if root && len(n.children) < 2 {
		return corrupt(id, "internal root with a single child")
	}

	for i, child := range n.children {
		childLo, childHi := lo, hi
		if i > 0 {
			childLo = &n.keys[i-1]
		}
		if i < len(n.keys) {
			childHi = &n.keys[i]
		}
		if err := c.walk(ctx, child, childLo, childHi, depth+1, false); err != nil {
			return err
		}
	}
	return nil
}
