// Package index maintains the ordered views over a blog's entries:
// chronological lists, tag membership, tag popularity, pagination and
// adjacency. It keeps identities stable across renames, folds aggregated
// directories into single entries and rebuilds any derived structure from
// the authoritative entries when it goes missing.
package index

import (
	"errors"
	"log/slog"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/eringen/pubindex/entry"
	"github.com/eringen/pubindex/store"
)

var (
	ErrInvalidBlog = errors.New("pubindex: invalid blog id")
	ErrInvalidPath = errors.New("pubindex: invalid path")
	ErrUnknownList = errors.New("pubindex: unknown list")
	ErrNoFiles     = errors.New("pubindex: no file tree configured")
)

// Engine is the content index engine. It is safe for concurrent use.
type Engine struct {
	store   *store.Store
	entries entry.Repository
	builder entry.Builder
	cfg     Config
	log     Logger
	locks   *keyedMutex
	runs    *runTracker
	cache   *entryCache
	now     func() time.Time
}

// New creates an Engine over st. Entries are kept in st unless
// WithRepository says otherwise; b turns files into entries.
func New(st *store.Store, b entry.Builder, opts ...Option) *Engine {
	e := &Engine{
		store:   st,
		entries: st,
		builder: b,
		locks:   newKeyedMutex(),
		runs:    newRunTracker(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.cfg.setDefaults()
	if e.log == nil {
		e.log = NewDefaultLogger(slog.LevelInfo)
	}
	e.cache = newEntryCache(e.entries, e.cfg)
	return e
}

// Config returns the effective configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

// Entries returns the authoritative entry repository.
func (e *Engine) Entries() entry.Repository {
	return e.entries
}

func (e *Engine) nowMillis() int64 {
	return e.now().UnixMilli()
}

var blogIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]{0,127}$`)

// ValidBlogID reports whether id can name a blog.
func ValidBlogID(id string) bool {
	return blogIDPattern.MatchString(id)
}

func checkBlog(blogID string) error {
	if !ValidBlogID(blogID) {
		return ErrInvalidBlog
	}
	return nil
}

// CleanPath returns p as an absolute slash-separated path.
func CleanPath(p string) (string, error) {
	p = strings.ReplaceAll(strings.TrimSpace(p), "\\", "/")
	if p == "" || strings.ContainsRune(p, 0) {
		return "", ErrInvalidPath
	}
	for _, part := range strings.Split(p, "/") {
		if part == ".." {
			return "", ErrInvalidPath
		}
	}
	p = path.Clean("/" + p)
	if p == "/" {
		return "", ErrInvalidPath
	}
	return p, nil
}
