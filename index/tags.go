package index

import (
	"context"
	"fmt"
	"sort"

	"github.com/eringen/pubindex/store"
)

// Window is a limit/offset slice of a ranking or tag listing.
type Window struct {
	Limit  int
	Offset int
}

func (e *Engine) window(w Window) store.Range {
	r := store.Range{Limit: e.clampSize(w.Limit), Offset: w.Offset}
	if r.Offset < 0 {
		r.Offset = 0
	}
	return r
}

// TagEntry sets the tag membership of id to exactly tags. Stale memberships
// are removed, and labels, slugs and popularity follow in the same
// transaction. Calling it twice with the same tags changes nothing.
func (e *Engine) TagEntry(ctx context.Context, blogID, id string, tags []string, dateStamp int64) error {
	if err := checkBlog(blogID); err != nil {
		return err
	}
	e.runs.touch(blogID, id)
	var stale []string
	err := e.store.Update(ctx, func(tx store.Ops) error {
		var err error
		stale, err = tagEntry(ctx, tx, blogID, id, tags, dateStamp)
		return err
	})
	if err != nil {
		return fmt.Errorf("pubindex: tag %s: %w", id, err)
	}
	e.healTags(ctx, blogID, stale)
	return nil
}

// tagEntry applies the membership change inside tx. It returns tags whose
// per-tag set had gone missing; those need hydrating instead of a single
// insert, which would leave them partial.
func tagEntry(ctx context.Context, tx store.Ops, blogID, id string, tags []string, dateStamp int64) ([]string, error) {
	labels, want := normalizeTags(tags)
	old, err := tx.SMembers(ctx, entryTagsKey(blogID, id))
	if err != nil {
		return nil, err
	}
	popularLive, err := popularExists(ctx, tx, blogID)
	if err != nil {
		return nil, err
	}

	for _, t := range old {
		if _, keep := labels[t]; keep {
			continue
		}
		if err := tx.ZRem(ctx, tagKey(blogID, t), id); err != nil {
			return nil, err
		}
		if err := tx.SRem(ctx, entryTagsKey(blogID, id), t); err != nil {
			return nil, err
		}
		if err := recount(ctx, tx, blogID, t, popularLive); err != nil {
			return nil, err
		}
	}

	var stale []string
	for _, t := range want {
		known, err := tx.SIsMember(ctx, tagsKey(blogID), t)
		if err != nil {
			return nil, err
		}
		n, err := tx.ZCard(ctx, tagKey(blogID, t))
		if err != nil {
			return nil, err
		}
		if known && n == 0 {
			stale = append(stale, t)
		}
		if err := tx.ZAdd(ctx, tagKey(blogID, t), id, dateStamp); err != nil {
			return nil, err
		}
		if err := tx.SAdd(ctx, entryTagsKey(blogID, id), t); err != nil {
			return nil, err
		}
		if err := tx.SAdd(ctx, tagsKey(blogID), t); err != nil {
			return nil, err
		}
		if _, err := tx.HSetNX(ctx, tagNamesKey(blogID), t, labels[t]); err != nil {
			return nil, err
		}
		if slug := Slugify(t); slug != "" {
			if _, err := tx.HSetNX(ctx, tagSlugsKey(blogID), slug, t); err != nil {
				return nil, err
			}
		}
		if err := recount(ctx, tx, blogID, t, popularLive); err != nil {
			return nil, err
		}
	}
	return stale, nil
}

// popularExists reports whether the popularity ranking is present. A blog
// without any tags has nothing to lose, so its ranking counts as present.
func popularExists(ctx context.Context, tx store.Ops, blogID string) (bool, error) {
	n, err := tx.ZCard(ctx, popularKey(blogID))
	if err != nil || n > 0 {
		return n > 0, err
	}
	known, err := tx.SCard(ctx, tagsKey(blogID))
	return known == 0, err
}

// recount refreshes the popularity score of tag and prunes it once empty.
func recount(ctx context.Context, tx store.Ops, blogID, tag string, popularLive bool) error {
	n, err := tx.ZCard(ctx, tagKey(blogID, tag))
	if err != nil {
		return err
	}
	if n == 0 {
		return pruneTag(ctx, tx, blogID, tag)
	}
	if !popularLive {
		return nil
	}
	return tx.ZAdd(ctx, popularKey(blogID), tag, n)
}

func pruneTag(ctx context.Context, tx store.Ops, blogID, tag string) error {
	if err := tx.Del(ctx, tagKey(blogID, tag)); err != nil {
		return err
	}
	if err := tx.SRem(ctx, tagsKey(blogID), tag); err != nil {
		return err
	}
	if err := tx.ZRem(ctx, popularKey(blogID), tag); err != nil {
		return err
	}
	if err := tx.HDel(ctx, tagNamesKey(blogID), tag); err != nil {
		return err
	}
	slug := Slugify(tag)
	if owner, ok, err := tx.HGet(ctx, tagSlugsKey(blogID), slug); err != nil {
		return err
	} else if ok && owner == tag {
		return tx.HDel(ctx, tagSlugsKey(blogID), slug)
	}
	return nil
}

func (e *Engine) healTags(ctx context.Context, blogID string, tags []string) {
	for _, t := range tags {
		SelfHeals.WithLabelValues("tag").Inc()
		if err := e.HydrateTagPage(ctx, blogID, t); err != nil {
			e.log.ErrorCtx(ctx, "tag hydration failed", "blog", blogID, "tag", t, "err", err)
		}
	}
}

// resolveTag maps a tag name in any casing, or its slug, to the normalized tag.
func (e *Engine) resolveTag(ctx context.Context, blogID, tag string) (string, bool, error) {
	n := NormalizeTag(tag)
	if n == "" {
		return "", false, nil
	}
	known, err := e.store.SIsMember(ctx, tagsKey(blogID), n)
	if err != nil || known {
		return n, known, err
	}
	owner, ok, err := e.store.HGet(ctx, tagSlugsKey(blogID), Slugify(tag))
	if err != nil || !ok {
		return n, false, err
	}
	return owner, true, nil
}

// TaggedPage returns the ids tagged with tag, newest first, together with the
// tag's display label and its total member count. tag may be given in any
// casing or as its slug.
func (e *Engine) TaggedPage(ctx context.Context, blogID, tag string, w Window) ([]string, string, int, error) {
	if err := checkBlog(blogID); err != nil {
		return nil, "", 0, err
	}
	norm, known, err := e.resolveTag(ctx, blogID, tag)
	if err != nil {
		return nil, "", 0, fmt.Errorf("pubindex: tagged page: %w", err)
	}
	if !known {
		return []string{}, tag, 0, nil
	}
	key := tagKey(blogID, norm)
	total, err := e.store.ZCard(ctx, key)
	if err != nil {
		return nil, "", 0, fmt.Errorf("pubindex: tagged page: %w", err)
	}
	if total == 0 {
		e.healTags(ctx, blogID, []string{norm})
		if total, err = e.store.ZCard(ctx, key); err != nil {
			return nil, "", 0, fmt.Errorf("pubindex: tagged page: %w", err)
		}
	}
	label, ok, err := e.store.HGet(ctx, tagNamesKey(blogID), norm)
	if err != nil {
		return nil, "", 0, fmt.Errorf("pubindex: tagged page: %w", err)
	}
	if !ok {
		label = norm
	}
	r := e.window(w)
	r.Order = store.ByScoreDesc
	members, err := e.store.ZRange(ctx, key, r)
	if err != nil {
		return nil, "", 0, fmt.Errorf("pubindex: tagged page: %w", err)
	}
	ids := make([]string, len(members))
	for i, m := range members {
		ids[i] = m.Member
	}
	return ids, label, int(total), nil
}

// EntryTags returns the normalized tags recorded for id.
func (e *Engine) EntryTags(ctx context.Context, blogID, id string) ([]string, error) {
	if err := checkBlog(blogID); err != nil {
		return nil, err
	}
	tags, err := e.store.SMembers(ctx, entryTagsKey(blogID, id))
	if err != nil {
		return nil, err
	}
	sort.Strings(tags)
	return tags, nil
}
