package index

import (
	"context"
	"fmt"
	"strconv"

	"github.com/eringen/pubindex/entry"
	"github.com/eringen/pubindex/store"
)

// Outcome records how an identity was resolved.
type Outcome string

const (
	Rewritten Outcome = "rewritten" // same path, existing identity
	Renamed   Outcome = "renamed"   // matched a recent removal by content
	Minted    Outcome = "minted"    // new identity
)

// Identity is the id and dateStamp a written file resolves to.
type Identity struct {
	ID        string
	DateStamp int64
	Outcome   Outcome
}

type identityRequest struct {
	blogID      string
	path        string
	fingerprint string
	explicit    int64 // dateStamp given by the file itself, 0 if none
	aggregate   bool
}

// identityStrategy resolves an identity or passes (ok=false) to the next one.
type identityStrategy func(ctx context.Context, e *Engine, req identityRequest) (Identity, bool, error)

var identityChain = []identityStrategy{
	samePath,
	tombstone,
	mint,
}

func stampOr(explicit, preserved int64) int64 {
	if explicit != 0 {
		return explicit
	}
	return preserved
}

func samePath(ctx context.Context, e *Engine, req identityRequest) (Identity, bool, error) {
	existing, err := e.entries.GetEntry(ctx, req.blogID, req.path)
	if err != nil || existing == nil {
		return Identity{}, false, err
	}
	return Identity{ID: existing.ID, DateStamp: stampOr(req.explicit, existing.DateStamp), Outcome: Rewritten}, true, nil
}

// tombstone claims the identity of a recently removed entry with identical
// content. Aggregates never do: their logical unit changed.
func tombstone(ctx context.Context, e *Engine, req identityRequest) (Identity, bool, error) {
	if req.aggregate || req.fingerprint == "" {
		return Identity{}, false, nil
	}
	t, err := e.store.TakeTombstone(ctx, req.blogID, req.fingerprint, e.nowMillis())
	if err != nil || t == nil {
		return Identity{}, false, err
	}
	// the id may have been reused by a new file at the old path meanwhile
	holder, err := e.entries.GetEntryByID(ctx, req.blogID, t.ID)
	if err != nil {
		return Identity{}, false, err
	}
	if holder != nil && !holder.Deleted {
		e.log.DebugCtx(ctx, "tombstone identity taken, minting", "blog", req.blogID, "id", t.ID, "path", req.path)
		return Identity{}, false, nil
	}
	return Identity{ID: t.ID, DateStamp: stampOr(req.explicit, t.DateStamp), Outcome: Renamed}, true, nil
}

// mint derives a new id from the path. An id still held by a live entry
// under another path gets a numeric suffix; a deleted holder is replaced.
func mint(ctx context.Context, e *Engine, req identityRequest) (Identity, bool, error) {
	id := req.path
	for n := 2; ; n++ {
		holder, err := e.entries.GetEntryByID(ctx, req.blogID, id)
		if err != nil {
			return Identity{}, false, err
		}
		if holder == nil || holder.Deleted {
			break
		}
		id = req.path + "~" + strconv.Itoa(n)
	}
	return Identity{ID: id, DateStamp: stampOr(req.explicit, e.nowMillis()), Outcome: Minted}, true, nil
}

func (e *Engine) resolve(ctx context.Context, req identityRequest) (Identity, error) {
	for _, strategy := range identityChain {
		id, ok, err := strategy(ctx, e, req)
		if err != nil {
			return Identity{}, err
		}
		if ok {
			IdentityResolutions.WithLabelValues(string(id.Outcome)).Inc()
			return id, nil
		}
	}
	// mint always succeeds
	panic("pubindex: identity chain exhausted")
}

// OnWrite resolves the identity of a file written at path with the given
// content fingerprint. dateStamp is the file's explicit publication date, or
// zero. A tombstone matched here is consumed.
func (e *Engine) OnWrite(ctx context.Context, blogID, path, fingerprint string, dateStamp int64) (Identity, error) {
	if err := checkBlog(blogID); err != nil {
		return Identity{}, err
	}
	p, err := CleanPath(path)
	if err != nil {
		return Identity{}, err
	}
	unlock := e.locks.Lock(blogLockKey(blogID))
	defer unlock()
	id, err := e.resolve(ctx, identityRequest{blogID: blogID, path: p, fingerprint: fingerprint, explicit: dateStamp})
	if err != nil {
		return Identity{}, fmt.Errorf("pubindex: resolve %s: %w", p, err)
	}
	return id, nil
}

// OnRemove handles the removal of path: the live entry there, if any, gets a
// tombstone so a rename can reclaim it, is marked deleted and leaves every
// index. Removing a path without an entry is a no-op.
func (e *Engine) OnRemove(ctx context.Context, blogID, path string) error {
	if err := checkBlog(blogID); err != nil {
		return err
	}
	p, err := CleanPath(path)
	if err != nil {
		return err
	}
	id, err := e.remove(ctx, blogID, p, true)
	if err != nil || id == "" {
		return err
	}
	return e.reindex(ctx, blogID, id)
}

// remove marks the live entry at path deleted and returns its id.
func (e *Engine) remove(ctx context.Context, blogID, path string, keepTombstone bool) (string, error) {
	unlock := e.locks.Lock(blogLockKey(blogID))
	defer unlock()

	existing, err := e.entries.GetEntry(ctx, blogID, path)
	if err != nil {
		return "", fmt.Errorf("pubindex: remove %s: %w", path, err)
	}
	if existing == nil {
		return "", nil
	}
	if keepTombstone && !existing.Aggregate() && existing.Fingerprint != "" {
		err := e.store.PutTombstone(ctx, blogID, store.Tombstone{
			Fingerprint: existing.Fingerprint,
			ID:          existing.ID,
			Path:        existing.Path,
			DateStamp:   existing.DateStamp,
			ExpiresAt:   e.now().Add(e.cfg.RenameWindow).UnixMilli(),
		})
		if err != nil {
			return "", fmt.Errorf("pubindex: tombstone %s: %w", path, err)
		}
	}
	if err := e.entries.MarkDeleted(ctx, blogID, existing.ID); err != nil {
		return "", fmt.Errorf("pubindex: remove %s: %w", path, err)
	}
	e.cache.Invalidate(blogID, existing.ID)
	e.log.DebugCtx(ctx, "entry removed", "blog", blogID, "id", existing.ID, "path", path)
	return existing.ID, nil
}

// save resolves the identity of built and persists it. built.Path must be
// clean; built.DateStamp is treated as an explicit date.
func (e *Engine) save(ctx context.Context, blogID string, built *entry.Entry, aggregate bool) (Identity, error) {
	unlock := e.locks.Lock(blogLockKey(blogID))
	defer unlock()

	id, err := e.resolve(ctx, identityRequest{
		blogID:      blogID,
		path:        built.Path,
		fingerprint: built.Fingerprint,
		explicit:    built.DateStamp,
		aggregate:   aggregate,
	})
	if err != nil {
		return Identity{}, fmt.Errorf("pubindex: resolve %s: %w", built.Path, err)
	}
	built.ID = id.ID
	built.DateStamp = id.DateStamp
	built.Updated = e.nowMillis()
	built.Deleted = false
	built.Scheduled = built.DateStamp > built.Updated
	if err := e.entries.PutEntry(ctx, blogID, *built); err != nil {
		return Identity{}, fmt.Errorf("pubindex: save %s: %w", built.Path, err)
	}
	e.cache.Invalidate(blogID, id.ID)
	e.log.DebugCtx(ctx, "identity resolved", "blog", blogID, "path", built.Path, "id", id.ID, "outcome", id.Outcome)
	return id, nil
}
