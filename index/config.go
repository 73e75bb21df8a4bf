package index

import (
	"io/fs"
	"time"

	"github.com/eringen/pubindex/entry"
)

// Config holds the engine tunables. Zero values are replaced with defaults.
type Config struct {
	RenameWindow    time.Duration // how long a removed entry can be claimed by a rename (default 5m)
	PageSize        int           // default page size (default 10)
	MaxPageSize     int           // page size ceiling (default 500)
	AggregateCap    int           // max files in an aggregated group (default 50)
	AggregateSuffix string        // directory suffix marking a group (default "+")
	HydrateChunk    int           // entries read per hydration step (default 200)
	EntryCacheSize  int           // entries kept in memory (default 1024)
	EntryCacheTTL   time.Duration // entry cache lifetime (default 5m)

	// Files returns the file tree of a blog. It is needed to build
	// aggregated groups; without it writes inside a group are rejected.
	Files func(blogID string) (fs.FS, error)
}

func (c *Config) setDefaults() {
	if c.RenameWindow == 0 {
		c.RenameWindow = 5 * time.Minute
	}
	if c.PageSize == 0 {
		c.PageSize = 10
	}
	if c.MaxPageSize == 0 {
		c.MaxPageSize = 500
	}
	if c.PageSize > c.MaxPageSize {
		c.PageSize = c.MaxPageSize
	}
	if c.AggregateCap == 0 {
		c.AggregateCap = 50
	}
	if c.AggregateSuffix == "" {
		c.AggregateSuffix = "+"
	}
	if c.HydrateChunk == 0 {
		c.HydrateChunk = 200
	}
	if c.EntryCacheSize == 0 {
		c.EntryCacheSize = 1024
	}
	if c.EntryCacheTTL == 0 {
		c.EntryCacheTTL = 5 * time.Minute
	}
}

// Option configures an Engine.
type Option func(*Engine)

// WithConfig replaces the engine configuration.
func WithConfig(cfg Config) Option {
	return func(e *Engine) {
		e.cfg = cfg
	}
}

// WithLogger sets the engine logger.
func WithLogger(l Logger) Option {
	return func(e *Engine) {
		e.log = l
	}
}

// WithRepository reads and writes entries through r instead of the index store.
func WithRepository(r entry.Repository) Option {
	return func(e *Engine) {
		e.entries = r
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}
