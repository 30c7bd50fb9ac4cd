package pagestore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/hupe1980/oodb/btree"
)

// Pager stores the pages of one B-tree under a name prefix.
type Pager struct {
	store  Store
	prefix string
}

// NewPager creates a Pager writing pages as prefix + 16 hex digits.
func NewPager(store Store, prefix string) *Pager {
	return &Pager{store: store, prefix: prefix}
}

// PageName returns the blob name of a page.
func (p *Pager) PageName(id btree.PageID) string {
	return fmt.Sprintf("%s%016x", p.prefix, uint64(id))
}

// LoadPage implements btree.Persister.
func (p *Pager) LoadPage(ctx context.Context, id btree.PageID) ([]byte, error) {
	data, err := p.store.Get(ctx, p.PageName(id))
	if errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("%w: %d", btree.ErrPageNotFound, id)
	}
	return data, err
}

// SavePage implements btree.Persister.
func (p *Pager) SavePage(ctx context.Context, id btree.PageID, data []byte) error {
	return p.store.Put(ctx, p.PageName(id), data)
}

// DeletePage implements btree.PageDeleter.
func (p *Pager) DeletePage(ctx context.Context, id btree.PageID) error {
	return p.store.Delete(ctx, p.PageName(id))
}

// Pages lists the ids of all stored pages.
func (p *Pager) Pages(ctx context.Context) ([]btree.PageID, error) {
	names, err := p.store.List(ctx, p.prefix)
	if err != nil {
		return nil, err
	}
	ids := make([]btree.PageID, 0, len(names))
	for _, name := range names {
		v, err := strconv.ParseUint(strings.TrimPrefix(name, p.prefix), 16, 64)
		if err != nil {
			continue
		}
		ids = append(ids, btree.PageID(v))
	}
	return ids, nil
}

var (
	_ btree.Persister   = (*Pager)(nil)
	_ btree.PageDeleter = (*Pager)(nil)
)
