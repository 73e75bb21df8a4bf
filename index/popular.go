package index

import (
	"context"
	"fmt"

	"github.com/eringen/pubindex/store"
)

// TagCount is one row of the popularity ranking.
type TagCount struct {
	Tag   string `json:"tag"`
	Label string `json:"label"`
	Slug  string `json:"slug"`
	Count int    `json:"count"`
}

// Popular ranks the blog's tags by member count, most used first. Ties are
// broken alphabetically by tag.
func (e *Engine) Popular(ctx context.Context, blogID string, w Window) ([]TagCount, error) {
	if err := checkBlog(blogID); err != nil {
		return nil, err
	}
	if err := e.healPopular(ctx, blogID); err != nil {
		return nil, fmt.Errorf("pubindex: popular: %w", err)
	}
	r := e.window(w)
	r.Order = store.ByCount
	members, err := e.store.ZRange(ctx, popularKey(blogID), r)
	if err != nil {
		return nil, fmt.Errorf("pubindex: popular: %w", err)
	}
	names, err := e.store.HGetAll(ctx, tagNamesKey(blogID))
	if err != nil {
		return nil, fmt.Errorf("pubindex: popular: %w", err)
	}
	out := make([]TagCount, 0, len(members))
	for _, m := range members {
		label := names[m.Member]
		if label == "" {
			label = m.Member
		}
		out = append(out, TagCount{Tag: m.Member, Label: label, Slug: Slugify(m.Member), Count: int(m.Score)})
	}
	return out, nil
}

// healPopular rebuilds the ranking when it is missing. With the tag sets
// gone too, every tag is rebuilt unless the blog has none to lose.
func (e *Engine) healPopular(ctx context.Context, blogID string) error {
	n, err := e.store.ZCard(ctx, popularKey(blogID))
	if err != nil || n > 0 {
		return err
	}
	known, err := e.store.SCard(ctx, tagsKey(blogID))
	if err != nil {
		return err
	}
	if known > 0 {
		SelfHeals.WithLabelValues("popular").Inc()
		return e.HydratePopular(ctx, blogID)
	}
	lost, err := e.tagsLost(ctx, blogID)
	if err != nil || !lost {
		return err
	}
	SelfHeals.WithLabelValues("tags").Inc()
	return e.HydrateTags(ctx, blogID)
}

// tagsLost reports whether a blog whose tag set is empty should have tags.
// The hydration marker alone cannot tell, as it outlives the keys it vouches
// for: leftover per-tag sets or reverse maps, or any tagged entry, decide.
func (e *Engine) tagsLost(ctx context.Context, blogID string) (bool, error) {
	_, hydrated, err := e.store.HGet(ctx, metaKey(blogID), markTags)
	if err != nil || !hydrated {
		return err == nil, err
	}
	for _, prefix := range []string{blogPrefix(blogID) + "tag:", blogPrefix(blogID) + "entry:"} {
		keys, err := e.store.Keys(ctx, prefix)
		if err != nil || len(keys) > 0 {
			return len(keys) > 0, err
		}
	}
	after := ""
	for {
		chunk, err := e.entries.Scan(ctx, blogID, after, e.cfg.HydrateChunk)
		if err != nil {
			return false, err
		}
		for i := range chunk {
			if _, tags := normalizeTags(chunk[i].Tags); len(tags) > 0 && e.indexable(&chunk[i]) {
				return true, nil
			}
		}
		if len(chunk) < e.cfg.HydrateChunk {
			return false, nil
		}
		after = chunk[len(chunk)-1].ID
	}
}
