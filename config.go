package pubindex

import (
	"strconv"
	"time"

	"github.com/eringen/pubindex/entry"
	"github.com/eringen/pubindex/index"
	"github.com/eringen/pubindex/store"
)

// Config holds all configuration for a pubindex server.
type Config struct {
	Name        string // Site name used in feeds (default "Blog")
	Description string // Feed description
	SiteURL     string // Canonical URL (default "http://localhost:3000")

	Addr         string // Listen address (default ":3000")
	DatabasePath string // SQLite path (default "data/index.db")
	BlogsRoot    string // Directory holding one folder per blog (default "blogs")
	APIToken     string // Bearer token for mutating routes; empty disables auth

	RenameWindow   time.Duration // Rename grace window (default 5min)
	PageSize       int           // Default page size (default 10)
	MaxPageSize    int           // Page size ceiling (default 500)
	AggregateCap   int           // Max files per aggregated group (default 50)
	HydrateChunk   int           // Entries per hydration step (default 200)
	EntryCacheSize int           // Cached entries (default 1024)

	MetricsEnabled      bool          // Serve /metrics and record HTTP metrics
	RebuildLimit        int           // Rebuilds per blog per window (default 3)
	RebuildWindow       time.Duration // Rebuild rate window (default 1min)
	MaintenanceInterval time.Duration // Tombstone pruning and scheduled publishing (default 1min)
}

func (c *Config) setDefaults() {
	if c.Name == "" {
		c.Name = "Blog"
	}
	if c.SiteURL == "" {
		c.SiteURL = "http://localhost:3000"
	}
	if c.Addr == "" {
		c.Addr = ":3000"
	}
	if c.DatabasePath == "" {
		c.DatabasePath = "data/index.db"
	}
	if c.BlogsRoot == "" {
		c.BlogsRoot = "blogs"
	}
	if c.RebuildLimit == 0 {
		c.RebuildLimit = 3
	}
	if c.RebuildWindow == 0 {
		c.RebuildWindow = time.Minute
	}
	if c.MaintenanceInterval == 0 {
		c.MaintenanceInterval = time.Minute
	}
}

// engineConfig maps the server settings onto the engine tunables. Zero
// values fall through to the engine defaults.
func (c Config) engineConfig() index.Config {
	return index.Config{
		RenameWindow:   c.RenameWindow,
		PageSize:       c.PageSize,
		MaxPageSize:    c.MaxPageSize,
		AggregateCap:   c.AggregateCap,
		HydrateChunk:   c.HydrateChunk,
		EntryCacheSize: c.EntryCacheSize,
	}
}

// ConfigFromEnv reads a Config from PUBINDEX_* environment variables.
// Malformed numbers and durations are ignored.
func ConfigFromEnv() Config {
	return Config{
		Name:                EnvOr("PUBINDEX_NAME", ""),
		Description:         EnvOr("PUBINDEX_DESCRIPTION", ""),
		SiteURL:             EnvOr("PUBINDEX_SITE_URL", ""),
		Addr:                EnvOr("PUBINDEX_ADDR", ""),
		DatabasePath:        EnvOr("PUBINDEX_DB", ""),
		BlogsRoot:           EnvOr("PUBINDEX_BLOGS_ROOT", ""),
		APIToken:            EnvOr("PUBINDEX_API_TOKEN", ""),
		RenameWindow:        envDuration("PUBINDEX_RENAME_WINDOW"),
		PageSize:            envInt("PUBINDEX_PAGE_SIZE"),
		MaxPageSize:         envInt("PUBINDEX_MAX_PAGE_SIZE"),
		AggregateCap:        envInt("PUBINDEX_AGGREGATE_CAP"),
		HydrateChunk:        envInt("PUBINDEX_HYDRATE_CHUNK"),
		EntryCacheSize:      envInt("PUBINDEX_ENTRY_CACHE_SIZE"),
		MetricsEnabled:      EnvOr("PUBINDEX_METRICS", "true") == "true",
		RebuildLimit:        envInt("PUBINDEX_REBUILD_LIMIT"),
		RebuildWindow:       envDuration("PUBINDEX_REBUILD_WINDOW"),
		MaintenanceInterval: envDuration("PUBINDEX_MAINTENANCE_INTERVAL"),
	}
}

func envInt(key string) int {
	n, _ := strconv.Atoi(EnvOr(key, "0"))
	return n
}

func envDuration(key string) time.Duration {
	d, _ := time.ParseDuration(EnvOr(key, "0s"))
	return d
}

// Option configures additional App behavior.
type Option func(*App)

// WithStore uses an already opened index store instead of DatabasePath.
func WithStore(s *store.Store) Option {
	return func(a *App) {
		a.Store = s
	}
}

// WithBuilder replaces the default file builder.
func WithBuilder(b entry.Builder) Option {
	return func(a *App) {
		a.builder = b
	}
}

// WithLogger sets the logger handed to the engine.
func WithLogger(l index.Logger) Option {
	return func(a *App) {
		a.logger = l
	}
}

// WithCustomRoutes registers additional routes on the Echo instance.
// The callback runs after the built-in routes are set up.
func WithCustomRoutes(fn func(*App)) Option {
	return func(a *App) {
		a.customRoutes = append(a.customRoutes, fn)
	}
}
