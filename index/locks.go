package index

import (
	"sort"
	"sync"

	"github.com/puzpuzpuz/xsync/v3"
)

// keyedMutex hands out one mutex per key and forgets keys nobody holds.
type keyedMutex struct {
	locks *xsync.MapOf[string, *refMutex]
}

type refMutex struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: xsync.NewMapOf[string, *refMutex]()}
}

// Lock blocks until key is held and returns the matching unlock.
func (k *keyedMutex) Lock(key string) (unlock func()) {
	m, _ := k.locks.Compute(key, func(old *refMutex, loaded bool) (*refMutex, bool) {
		if !loaded {
			old = &refMutex{}
		}
		old.refs++
		return old, false
	})
	m.mu.Lock()
	return func() {
		m.mu.Unlock()
		k.locks.Compute(key, func(old *refMutex, loaded bool) (*refMutex, bool) {
			old.refs--
			return old, old.refs == 0
		})
	}
}

// Size reports how many keys are currently tracked.
func (k *keyedMutex) Size() int {
	return k.locks.Size()
}

func blogLockKey(blogID string) string { return "blog\x00" + blogID }

func entryLockKey(blogID, id string) string { return "entry\x00" + blogID + "\x00" + id }

// runTracker records the entries reindexed while a hydration of their blog
// is in flight. Such a write may land between the hydration's scan and its
// swap, so the hydration replays them once it has committed.
type runTracker struct {
	mu   sync.Mutex
	runs map[string]map[*hydrationRun]struct{}
}

type hydrationRun struct {
	ids map[string]struct{}
}

func newRunTracker() *runTracker {
	return &runTracker{runs: make(map[string]map[*hydrationRun]struct{})}
}

func (r *runTracker) begin(blogID string) *hydrationRun {
	run := &hydrationRun{ids: make(map[string]struct{})}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.runs[blogID] == nil {
		r.runs[blogID] = make(map[*hydrationRun]struct{})
	}
	r.runs[blogID][run] = struct{}{}
	return run
}

// touch marks id as written in every hydration of blogID now in flight.
func (r *runTracker) touch(blogID, id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for run := range r.runs[blogID] {
		run.ids[id] = struct{}{}
	}
}

// end retires run and returns the ids written while it was in flight, sorted.
func (r *runTracker) end(blogID string, run *hydrationRun) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.runs[blogID], run)
	if len(r.runs[blogID]) == 0 {
		delete(r.runs, blogID)
	}
	ids := make([]string, 0, len(run.ids))
	for id := range run.ids {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
