package index

import (
	"context"
	"fmt"

	"github.com/eringen/pubindex/entry"
	"github.com/eringen/pubindex/store"
)

// Write handles a file written at path by a storage provider: the file is
// built, its identity resolved and every index brought up to date. Files
// inside an aggregated group re-derive the group's entry instead.
func (e *Engine) Write(ctx context.Context, blogID, path string, content []byte) error {
	if err := checkBlog(blogID); err != nil {
		return err
	}
	p, err := CleanPath(path)
	if err != nil {
		return err
	}
	ctx = WithLogArgs(ctx, "blog", blogID, "path", p)
	if err := e.store.SAdd(ctx, blogsKey, blogID); err != nil {
		return fmt.Errorf("pubindex: write %s: %w", p, err)
	}

	if g := e.FindAggregateGroup(p); g != nil {
		if err := e.dropSource(ctx, blogID, p); err != nil {
			return err
		}
		return e.syncGroup(ctx, blogID, g)
	}

	built, err := e.builder.Build(ctx, blogID, p, content)
	if err != nil {
		return fmt.Errorf("pubindex: build %s: %w", p, err)
	}
	if built == nil {
		// no longer an entry, e.g. renamed to an unsupported extension
		return e.dropSource(ctx, blogID, p)
	}
	built.Path = p
	built.Fingerprint = entry.Fingerprint(content)
	id, err := e.save(ctx, blogID, built, false)
	if err != nil {
		return err
	}
	e.log.InfoCtx(ctx, "entry indexed", "id", id.ID, "outcome", id.Outcome)
	return e.reindex(ctx, blogID, id.ID)
}

// Delete handles the removal of path by a storage provider.
func (e *Engine) Delete(ctx context.Context, blogID, path string) error {
	if err := checkBlog(blogID); err != nil {
		return err
	}
	p, err := CleanPath(path)
	if err != nil {
		return err
	}
	ctx = WithLogArgs(ctx, "blog", blogID, "path", p)
	if g := e.FindAggregateGroup(p); g != nil {
		if p != g.Dir {
			if err := e.dropSource(ctx, blogID, p); err != nil {
				return err
			}
		}
		return e.syncGroup(ctx, blogID, g)
	}
	return e.OnRemove(ctx, blogID, p)
}

// dropSource removes a live entry at p without leaving a tombstone.
func (e *Engine) dropSource(ctx context.Context, blogID, p string) error {
	id, err := e.remove(ctx, blogID, p, false)
	if err != nil || id == "" {
		return err
	}
	return e.reindex(ctx, blogID, id)
}

// reindex brings the lists and tag sets in line with the stored entry id.
// It reads the entry afresh under the entry lock so that concurrent writes
// converge on the latest version.
func (e *Engine) reindex(ctx context.Context, blogID, id string) error {
	stale, err := e.reindexLocked(ctx, blogID, id)
	if err != nil {
		return fmt.Errorf("pubindex: reindex %s: %w", id, err)
	}
	e.cache.Invalidate(blogID, id)
	e.healTags(ctx, blogID, stale)
	return nil
}

func (e *Engine) reindexLocked(ctx context.Context, blogID, id string) ([]string, error) {
	unlock := e.locks.Lock(entryLockKey(blogID, id))
	defer unlock()
	e.runs.touch(blogID, id)

	en, err := e.entries.GetEntryByID(ctx, blogID, id)
	if err != nil {
		return nil, err
	}
	var (
		list  string
		tags  []string
		stamp int64
	)
	if en != nil {
		stamp = en.DateStamp
		list = listFor(en)
		if !en.Deleted && e.IsAggregateSource(en.Path) {
			list = ""
		}
		if list == ListEntries {
			tags = en.Tags
		}
	}
	var stale []string
	err = e.store.Update(ctx, func(tx store.Ops) error {
		if err := place(ctx, tx, blogID, id, list, stamp); err != nil {
			return err
		}
		var err error
		stale, err = tagEntry(ctx, tx, blogID, id, tags, stamp)
		return err
	})
	return stale, err
}
