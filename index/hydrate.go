package index

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/eringen/pubindex/entry"
	"github.com/eringen/pubindex/store"
)

// scratchTag accumulates one tag's members under a scratch key until it is
// swapped over the live tag set.
type scratchTag struct {
	key    string
	label  string
	oldest int64
}

type scratchTags map[string]*scratchTag

func (s scratchTags) add(ctx context.Context, tx store.Ops, blogID string, en *entry.Entry, only string) error {
	labels, order := normalizeTags(en.Tags)
	for _, t := range order {
		if only != "" && t != only {
			continue
		}
		st := s[t]
		if st == nil {
			st = &scratchTag{key: scratchKey(blogID), label: labels[t], oldest: en.DateStamp}
			s[t] = st
		} else if en.DateStamp < st.oldest {
			st.label, st.oldest = labels[t], en.DateStamp
		}
		if err := tx.ZAdd(ctx, st.key, en.ID, en.DateStamp); err != nil {
			return err
		}
		if err := tx.SAdd(ctx, entryTagsKey(blogID, en.ID), t); err != nil {
			return err
		}
	}
	return nil
}

func (s scratchTags) sorted() []string {
	tags := make([]string, 0, len(s))
	for t := range s {
		tags = append(tags, t)
	}
	sort.Strings(tags)
	return tags
}

func (e *Engine) discard(ctx context.Context, keys ...string) {
	if err := e.store.Del(ctx, keys...); err != nil {
		e.log.WarnCtx(ctx, "scratch cleanup failed", "err", err)
	}
}

// replay reindexes the entries written while run was in flight. Their index
// changes may have landed between the scan and the swap and been replaced.
func (e *Engine) replay(ctx context.Context, blogID string, run *hydrationRun) {
	for _, id := range e.runs.end(blogID, run) {
		if err := e.reindex(ctx, blogID, id); err != nil {
			e.log.ErrorCtx(ctx, "replay after hydration failed", "blog", blogID, "id", id, "err", err)
		}
	}
}

func (s scratchTags) keys() []string {
	out := make([]string, 0, len(s))
	for _, st := range s {
		out = append(out, st.key)
	}
	return out
}

// scan feeds every authoritative entry of the blog to fn, one store
// transaction per chunk.
func (e *Engine) scan(ctx context.Context, blogID string, fn func(tx store.Ops, en *entry.Entry) error) error {
	after := ""
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		chunk, err := e.entries.Scan(ctx, blogID, after, e.cfg.HydrateChunk)
		if err != nil {
			return fmt.Errorf("scan entries: %w", err)
		}
		if len(chunk) == 0 {
			return nil
		}
		err = e.store.Update(ctx, func(tx store.Ops) error {
			for i := range chunk {
				if err := fn(tx, &chunk[i]); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return err
		}
		if len(chunk) < e.cfg.HydrateChunk {
			return nil
		}
		after = chunk[len(chunk)-1].ID
	}
}

// indexable reports whether en should appear in the chronological list and
// tag sets.
func (e *Engine) indexable(en *entry.Entry) bool {
	return en.Visible() && !e.IsAggregateSource(en.Path)
}

func observe(kind string, start time.Time, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	HydrationCount.WithLabelValues(kind, result).Inc()
	HydrationDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
}

// HydrateTags rebuilds every tag set, the reverse maps and the popularity
// ranking from the authoritative entries. Each tag is swapped in atomically;
// a tag that fails is logged and skipped.
func (e *Engine) HydrateTags(ctx context.Context, blogID string) (err error) {
	if err := checkBlog(blogID); err != nil {
		return err
	}
	defer func(start time.Time) { observe("tags", start, err) }(time.Now())
	defer e.replay(ctx, blogID, e.runs.begin(blogID))

	scratch := scratchTags{}
	err = e.scan(ctx, blogID, func(tx store.Ops, en *entry.Entry) error {
		if err := tx.Del(ctx, entryTagsKey(blogID, en.ID)); err != nil {
			return err
		}
		if !e.indexable(en) {
			return nil
		}
		return scratch.add(ctx, tx, blogID, en, "")
	})
	if err != nil {
		e.discard(ctx, scratch.keys()...)
		return fmt.Errorf("pubindex: hydrate tags: %w", err)
	}
	if err = e.commitTags(ctx, blogID, scratch); err != nil {
		return fmt.Errorf("pubindex: hydrate tags: %w", err)
	}
	if err = e.HydratePopular(ctx, blogID); err != nil {
		return err
	}
	return e.mark(ctx, blogID, markTags)
}

// commitTags swaps every scratch tag over its live set and prunes tags that
// no longer have members.
func (e *Engine) commitTags(ctx context.Context, blogID string, scratch scratchTags) error {
	names, err := e.store.HGetAll(ctx, tagNamesKey(blogID))
	if err != nil {
		e.discard(ctx, scratch.keys()...)
		return err
	}
	for _, t := range scratch.sorted() {
		st := scratch[t]
		err := e.store.Update(ctx, func(tx store.Ops) error {
			if err := tx.Rename(ctx, st.key, tagKey(blogID, t)); err != nil {
				return err
			}
			if err := tx.SAdd(ctx, tagsKey(blogID), t); err != nil {
				return err
			}
			if _, ok := names[t]; !ok {
				if err := tx.HSet(ctx, tagNamesKey(blogID), t, st.label); err != nil {
					return err
				}
			}
			if slug := Slugify(t); slug != "" {
				if _, err := tx.HSetNX(ctx, tagSlugsKey(blogID), slug, t); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			HydrationTagFailures.Inc()
			e.log.ErrorCtx(ctx, "tag hydration failed", "blog", blogID, "tag", t, "err", err)
			e.discard(ctx, st.key)
		}
	}

	known, err := e.store.SMembers(ctx, tagsKey(blogID))
	if err != nil {
		return err
	}
	for _, t := range known {
		if _, ok := scratch[t]; ok {
			continue
		}
		if err := e.store.Update(ctx, func(tx store.Ops) error {
			return pruneTag(ctx, tx, blogID, t)
		}); err != nil {
			return err
		}
	}
	return nil
}

// HydrateTagPage rebuilds the member set of a single tag.
func (e *Engine) HydrateTagPage(ctx context.Context, blogID, tag string) (err error) {
	if err := checkBlog(blogID); err != nil {
		return err
	}
	norm := NormalizeTag(tag)
	if norm == "" {
		return nil
	}
	defer func(start time.Time) { observe("tag", start, err) }(time.Now())
	defer e.replay(ctx, blogID, e.runs.begin(blogID))

	scratch := scratchTags{}
	err = e.scan(ctx, blogID, func(tx store.Ops, en *entry.Entry) error {
		if err := tx.SRem(ctx, entryTagsKey(blogID, en.ID), norm); err != nil {
			return err
		}
		if !e.indexable(en) {
			return nil
		}
		return scratch.add(ctx, tx, blogID, en, norm)
	})
	if err != nil {
		e.discard(ctx, scratch.keys()...)
		return fmt.Errorf("pubindex: hydrate tag %q: %w", norm, err)
	}

	st, ok := scratch[norm]
	err = e.store.Update(ctx, func(tx store.Ops) error {
		if !ok {
			return pruneTag(ctx, tx, blogID, norm)
		}
		popularLive, err := popularExists(ctx, tx, blogID)
		if err != nil {
			return err
		}
		if err := tx.Rename(ctx, st.key, tagKey(blogID, norm)); err != nil {
			return err
		}
		if err := tx.SAdd(ctx, tagsKey(blogID), norm); err != nil {
			return err
		}
		if _, err := tx.HSetNX(ctx, tagNamesKey(blogID), norm, st.label); err != nil {
			return err
		}
		if slug := Slugify(norm); slug != "" {
			if _, err := tx.HSetNX(ctx, tagSlugsKey(blogID), slug, norm); err != nil {
				return err
			}
		}
		return recount(ctx, tx, blogID, norm, popularLive)
	})
	if err != nil {
		if ok {
			e.discard(ctx, st.key)
		}
		return fmt.Errorf("pubindex: hydrate tag %q: %w", norm, err)
	}
	return nil
}

// HydratePopular rebuilds the popularity ranking from the current tag sets.
func (e *Engine) HydratePopular(ctx context.Context, blogID string) (err error) {
	if err := checkBlog(blogID); err != nil {
		return err
	}
	defer func(start time.Time) { observe("popular", start, err) }(time.Now())

	key := scratchKey(blogID)
	err = e.store.Update(ctx, func(tx store.Ops) error {
		tags, err := tx.SMembers(ctx, tagsKey(blogID))
		if err != nil {
			return err
		}
		for _, t := range tags {
			n, err := tx.ZCard(ctx, tagKey(blogID, t))
			if err != nil {
				return err
			}
			if n == 0 {
				if err := pruneTag(ctx, tx, blogID, t); err != nil {
					return err
				}
				continue
			}
			if err := tx.ZAdd(ctx, key, t, n); err != nil {
				return err
			}
		}
		return tx.Rename(ctx, key, popularKey(blogID))
	})
	if err != nil {
		return fmt.Errorf("pubindex: hydrate popular: %w", err)
	}
	return nil
}

// Rebuild re-derives every list, tag set, reverse map and the popularity
// ranking of a blog from its authoritative entries. It fails only if the
// entries cannot be read or the scratch space cannot be written.
func (e *Engine) Rebuild(ctx context.Context, blogID string) (err error) {
	if err := checkBlog(blogID); err != nil {
		return err
	}
	defer func(start time.Time) { observe("rebuild", start, err) }(time.Now())
	defer e.replay(ctx, blogID, e.runs.begin(blogID))

	listScratch := make(map[string]string, len(lists))
	for _, l := range lists {
		listScratch[l] = scratchKey(blogID)
	}
	scratch := scratchTags{}
	err = e.scan(ctx, blogID, func(tx store.Ops, en *entry.Entry) error {
		if err := tx.Del(ctx, entryTagsKey(blogID, en.ID)); err != nil {
			return err
		}
		l := listFor(en)
		if !en.Deleted && e.IsAggregateSource(en.Path) {
			return nil
		}
		if err := tx.ZAdd(ctx, listScratch[l], en.ID, en.DateStamp); err != nil {
			return err
		}
		if l != ListEntries {
			return nil
		}
		return scratch.add(ctx, tx, blogID, en, "")
	})
	if err != nil {
		keys := scratch.keys()
		for _, k := range listScratch {
			keys = append(keys, k)
		}
		e.discard(ctx, keys...)
		return fmt.Errorf("pubindex: rebuild %s: %w", blogID, err)
	}

	err = e.store.Update(ctx, func(tx store.Ops) error {
		for _, l := range lists {
			if err := tx.Rename(ctx, listScratch[l], listKey(blogID, l)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("pubindex: rebuild %s lists: %w", blogID, err)
	}
	if err = e.commitTags(ctx, blogID, scratch); err != nil {
		return fmt.Errorf("pubindex: rebuild %s tags: %w", blogID, err)
	}
	if err = e.HydratePopular(ctx, blogID); err != nil {
		return err
	}
	e.cache.Purge()
	if err = e.mark(ctx, blogID, markLists); err != nil {
		return err
	}
	if err = e.mark(ctx, blogID, markTags); err != nil {
		return err
	}
	e.log.InfoCtx(ctx, "rebuilt blog index", "blog", blogID, "tags", len(scratch))
	return nil
}

func (e *Engine) mark(ctx context.Context, blogID, marker string) error {
	return e.store.HSet(ctx, metaKey(blogID), marker, strconv.FormatInt(e.nowMillis(), 10))
}
