package index

import (
	"context"
	"fmt"
	"math"
	"time"
)

// Blogs returns every blog the engine has seen a write for.
func (e *Engine) Blogs(ctx context.Context) ([]string, error) {
	return e.store.SMembers(ctx, blogsKey)
}

// PublishDue moves scheduled entries whose date has passed into the
// chronological list and returns how many moved.
func (e *Engine) PublishDue(ctx context.Context, blogID string) (int, error) {
	if err := checkBlog(blogID); err != nil {
		return 0, err
	}
	due, err := e.store.ZRangeByScore(ctx, listKey(blogID, ListScheduled), math.MinInt64, e.nowMillis(), 0)
	if err != nil {
		return 0, fmt.Errorf("pubindex: publish due: %w", err)
	}
	published := 0
	for _, m := range due {
		en, err := e.entries.GetEntryByID(ctx, blogID, m.Member)
		if err != nil {
			return published, fmt.Errorf("pubindex: publish %s: %w", m.Member, err)
		}
		if en != nil && en.Scheduled {
			en.Scheduled = false
			if err := e.entries.PutEntry(ctx, blogID, *en); err != nil {
				return published, fmt.Errorf("pubindex: publish %s: %w", m.Member, err)
			}
		}
		if err := e.reindex(ctx, blogID, m.Member); err != nil {
			return published, err
		}
		published++
	}
	if published > 0 {
		e.log.InfoCtx(ctx, "published scheduled entries", "blog", blogID, "count", published)
	}
	return published, nil
}

// StartMaintenance prunes expired rename tombstones and publishes due
// entries every interval (default one minute). Call the returned function
// to stop it.
func (e *Engine) StartMaintenance(interval time.Duration) (stop func()) {
	if interval <= 0 {
		interval = time.Minute
	}
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				e.maintain(ctx)
			}
		}
	}()
	return cancel
}

func (e *Engine) maintain(ctx context.Context) {
	if n, err := e.store.PruneTombstones(ctx, e.nowMillis()); err != nil {
		e.log.ErrorCtx(ctx, "tombstone prune failed", "err", err)
	} else if n > 0 {
		e.log.DebugCtx(ctx, "pruned tombstones", "count", n)
	}
	blogs, err := e.Blogs(ctx)
	if err != nil {
		e.log.ErrorCtx(ctx, "list blogs failed", "err", err)
		return
	}
	for _, b := range blogs {
		if _, err := e.PublishDue(ctx, b); err != nil {
			e.log.ErrorCtx(ctx, "publish due failed", "blog", b, "err", err)
		}
	}
}
