package index

import (
	"context"
	"fmt"

	"github.com/eringen/pubindex/entry"
	"github.com/eringen/pubindex/store"
)

// PageOptions selects a page of a list.
type PageOptions struct {
	List       string // one of the List* constants, default ListEntries
	SortBy     string // "date" (default) or "id"
	Order      string // "desc" (default) or "asc"
	PageNumber int    // 1-based, clamped into range
	PageSize   int    // clamped into [1, MaxPageSize]
}

// Pagination describes where a page sits in its list.
type Pagination struct {
	Current  int  `json:"current"`
	Total    int  `json:"total"`
	Count    int  `json:"count"`
	PageSize int  `json:"pageSize"`
	Previous *int `json:"previous"`
	Next     *int `json:"next"`
}

// Adjacent holds the neighbours of an entry in ascending date order.
// Previous is older, Next is newer.
type Adjacent struct {
	Previous string `json:"previous,omitempty"`
	Next     string `json:"next,omitempty"`
	Rank     int64  `json:"rank"`
	Found    bool   `json:"found"`
}

// place moves id into list with score dateStamp and out of every other list.
// An empty list removes it everywhere.
func place(ctx context.Context, tx store.Ops, blogID, id, list string, dateStamp int64) error {
	for _, l := range lists {
		if l == list {
			continue
		}
		if err := tx.ZRem(ctx, listKey(blogID, l), id); err != nil {
			return err
		}
	}
	if list == "" {
		return nil
	}
	return tx.ZAdd(ctx, listKey(blogID, list), id, dateStamp)
}

// Upsert places id in the chronological list at dateStamp.
func (e *Engine) Upsert(ctx context.Context, blogID, id string, dateStamp int64) error {
	if err := checkBlog(blogID); err != nil {
		return err
	}
	e.runs.touch(blogID, id)
	err := e.store.Update(ctx, func(tx store.Ops) error {
		return place(ctx, tx, blogID, id, ListEntries, dateStamp)
	})
	if err != nil {
		return fmt.Errorf("pubindex: upsert %s: %w", id, err)
	}
	return nil
}

// Remove takes id out of every list.
func (e *Engine) Remove(ctx context.Context, blogID, id string) error {
	if err := checkBlog(blogID); err != nil {
		return err
	}
	e.runs.touch(blogID, id)
	err := e.store.Update(ctx, func(tx store.Ops) error {
		return place(ctx, tx, blogID, id, "", 0)
	})
	if err != nil {
		return fmt.Errorf("pubindex: remove %s: %w", id, err)
	}
	return nil
}

func (e *Engine) clampSize(size int) int {
	if size <= 0 {
		return e.cfg.PageSize
	}
	if size > e.cfg.MaxPageSize {
		return e.cfg.MaxPageSize
	}
	return size
}

func order(sortBy, dir string) store.Order {
	asc := dir == "asc"
	if sortBy == "id" {
		if asc {
			return store.ByMember
		}
		return store.ByMemberDesc
	}
	if asc {
		return store.ByScore
	}
	return store.ByScoreDesc
}

// Page returns the ids of one page of a list.
func (e *Engine) Page(ctx context.Context, blogID string, opts PageOptions) ([]string, Pagination, error) {
	if err := checkBlog(blogID); err != nil {
		return nil, Pagination{}, err
	}
	list := opts.List
	if list == "" {
		list = ListEntries
	}
	if !validList(list) {
		return nil, Pagination{}, ErrUnknownList
	}
	key := listKey(blogID, list)
	count, err := e.store.ZCard(ctx, key)
	if err != nil {
		return nil, Pagination{}, fmt.Errorf("pubindex: page: %w", err)
	}
	if count == 0 {
		healed, err := e.healLists(ctx, blogID)
		if err != nil {
			return nil, Pagination{}, err
		}
		if healed {
			if count, err = e.store.ZCard(ctx, key); err != nil {
				return nil, Pagination{}, fmt.Errorf("pubindex: page: %w", err)
			}
		}
	}

	size := e.clampSize(opts.PageSize)
	total := int((count + int64(size) - 1) / int64(size))
	if total < 1 {
		total = 1
	}
	current := opts.PageNumber
	if current < 1 {
		current = 1
	}
	if current > total {
		current = total
	}
	p := Pagination{Current: current, Total: total, Count: int(count), PageSize: size}
	if current > 1 {
		prev := current - 1
		p.Previous = &prev
	}
	if current < total {
		next := current + 1
		p.Next = &next
	}

	members, err := e.store.ZRange(ctx, key, store.Range{
		Order:  order(opts.SortBy, opts.Order),
		Offset: (current - 1) * size,
		Limit:  size,
	})
	if err != nil {
		return nil, Pagination{}, fmt.Errorf("pubindex: page: %w", err)
	}
	ids := make([]string, len(members))
	for i, m := range members {
		ids[i] = m.Member
	}
	return ids, p, nil
}

// GetPage returns the entries of one page of a list.
func (e *Engine) GetPage(ctx context.Context, blogID string, opts PageOptions) ([]entry.Entry, Pagination, error) {
	ids, p, err := e.Page(ctx, blogID, opts)
	if err != nil {
		return nil, p, err
	}
	entries, err := e.cache.GetEntries(ctx, blogID, ids)
	if err != nil {
		return nil, p, fmt.Errorf("pubindex: page entries: %w", err)
	}
	return entries, p, nil
}

// AdjacentTo finds the entries on either side of id in the chronological list.
func (e *Engine) AdjacentTo(ctx context.Context, blogID, id string) (Adjacent, error) {
	if err := checkBlog(blogID); err != nil {
		return Adjacent{}, err
	}
	key := listKey(blogID, ListEntries)
	rank, ok, err := e.store.ZRank(ctx, key, id)
	if err != nil {
		return Adjacent{}, fmt.Errorf("pubindex: adjacent: %w", err)
	}
	if !ok {
		return Adjacent{}, nil
	}
	adj := Adjacent{Rank: rank, Found: true}
	start := rank - 1
	if start < 0 {
		start = 0
	}
	around, err := e.store.ZRange(ctx, key, store.Range{Order: store.ByScore, Offset: int(start), Limit: 3})
	if err != nil {
		return Adjacent{}, fmt.Errorf("pubindex: adjacent: %w", err)
	}
	for i, m := range around {
		switch pos := start + int64(i); {
		case pos == rank-1:
			adj.Previous = m.Member
		case pos == rank+1:
			adj.Next = m.Member
		}
	}
	return adj, nil
}

// healLists rebuilds the lists when all of them are empty but the blog has
// entries, which only happens when the index was lost.
func (e *Engine) healLists(ctx context.Context, blogID string) (bool, error) {
	for _, l := range lists {
		n, err := e.store.ZCard(ctx, listKey(blogID, l))
		if err != nil {
			return false, err
		}
		if n > 0 {
			return false, nil
		}
	}
	some, err := e.entries.Scan(ctx, blogID, "", 1)
	if err != nil {
		return false, err
	}
	if len(some) == 0 {
		return false, nil
	}
	SelfHeals.WithLabelValues("lists").Inc()
	e.log.WarnCtx(ctx, "lists missing, rebuilding", "blog", blogID)
	if err := e.Rebuild(ctx, blogID); err != nil {
		return false, err
	}
	return true, nil
}

// GetEntry returns the entry with id through the entry cache.
func (e *Engine) GetEntry(ctx context.Context, blogID, id string) (*entry.Entry, error) {
	list, err := e.cache.GetEntries(ctx, blogID, []string{id})
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}
	return &list[0], nil
}

// GetEntries returns the entries for ids through the entry cache, in the
// order given. Unknown ids are skipped.
func (e *Engine) GetEntries(ctx context.Context, blogID string, ids []string) ([]entry.Entry, error) {
	if err := checkBlog(blogID); err != nil {
		return nil, err
	}
	return e.cache.GetEntries(ctx, blogID, ids)
}
