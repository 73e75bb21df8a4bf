// Package pubindex serves the content index engine over HTTP. Blog files
// are pushed with PUT and DELETE, and the chronological lists, tag pages,
// popularity ranking, feeds and sitemaps are read back as JSON and XML.
package pubindex

import (
	"fmt"
	"io/fs"
	"log"
	"net/http"
	"os"
	"path/filepath"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/eringen/pubindex/build"
	"github.com/eringen/pubindex/entry"
	"github.com/eringen/pubindex/index"
	"github.com/eringen/pubindex/store"
)

// App is the central pubindex application. It wires together the store,
// engine, handlers and middleware.
type App struct {
	Config Config
	Echo   *echo.Echo
	Store  *store.Store
	Engine *index.Engine

	builder         entry.Builder
	logger          index.Logger
	registry        *prometheus.Registry
	rebuildLimiter  *RebuildLimiter
	customRoutes    []func(*App)
	ownsStore       bool
	ready           bool
	stopMaintenance func()
}

// New creates a new App with the given configuration.
func New(cfg Config, opts ...Option) *App {
	cfg.setDefaults()

	a := &App{
		Config:   cfg,
		Echo:     echo.New(),
		registry: prometheus.NewRegistry(),
	}
	a.Echo.HideBanner = true

	for _, opt := range opts {
		opt(a)
	}
	if a.builder == nil {
		a.builder = build.New()
	}
	return a
}

// Setup opens the store, creates the engine and registers middleware and
// routes. Start calls it; tests call it directly and drive a.Echo.
func (a *App) Setup() error {
	if a.ready {
		return nil
	}
	if a.Store == nil {
		st, err := store.Open(a.Config.DatabasePath)
		if err != nil {
			return fmt.Errorf("pubindex: init store: %w", err)
		}
		a.Store = st
		a.ownsStore = true
	}

	engineCfg := a.Config.engineConfig()
	engineCfg.Files = a.blogFiles
	opts := []index.Option{index.WithConfig(engineCfg)}
	if a.logger != nil {
		opts = append(opts, index.WithLogger(a.logger))
	}
	a.Engine = index.New(a.Store, a.builder, opts...)

	a.rebuildLimiter = NewRebuildLimiter(a.Config.RebuildLimit, a.Config.RebuildWindow)

	if a.Config.MetricsEnabled {
		for _, c := range index.Collectors() {
			if err := a.registry.Register(c); err != nil {
				return fmt.Errorf("pubindex: register metrics: %w", err)
			}
		}
	}

	a.setupMiddleware()
	a.setupRoutes()
	for _, fn := range a.customRoutes {
		fn(a)
	}
	a.ready = true
	return nil
}

// Start sets the app up, starts background maintenance and serves HTTP.
func (a *App) Start() error {
	if err := a.Setup(); err != nil {
		return err
	}
	a.stopMaintenance = a.Engine.StartMaintenance(a.Config.MaintenanceInterval)

	if err := a.Echo.Start(a.Config.Addr); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// blogDir returns the directory holding the files of blogID.
func (a *App) blogDir(blogID string) string {
	return filepath.Join(a.Config.BlogsRoot, blogID)
}

func (a *App) blogFiles(blogID string) (fs.FS, error) {
	if !index.ValidBlogID(blogID) {
		return nil, index.ErrInvalidBlog
	}
	return os.DirFS(a.blogDir(blogID)), nil
}

func (a *App) setupRoutes() {
	e := a.Echo

	if a.Config.MetricsEnabled {
		e.GET("/metrics", a.metricsHandler())
	}

	blogs := e.Group("/blogs/:blog")
	blogs.GET("/entries", a.handleEntries)
	blogs.GET("/entry", a.handleEntry)
	blogs.GET("/adjacent", a.handleAdjacent)
	blogs.GET("/tags/popular", a.handlePopular)
	blogs.GET("/tags/:tag", a.handleTag)
	blogs.GET("/feed.xml", a.handleFeed)
	blogs.GET("/sitemap.xml", a.handleSitemap)

	auth := a.authMiddleware()
	blogs.POST("/rebuild", a.handleRebuild, auth)
	blogs.PUT("/files", a.handlePutFile, auth)
	blogs.DELETE("/files", a.handleDeleteFile, auth)
}

// Close cleans up resources. Call this when the app is shutting down.
func (a *App) Close() error {
	if a.stopMaintenance != nil {
		a.stopMaintenance()
	}
	if a.rebuildLimiter != nil {
		a.rebuildLimiter.Stop()
	}
	if a.Store != nil && a.ownsStore {
		return a.Store.Close()
	}
	return nil
}

// EnvOr returns the value of the environment variable key, or fallback if empty.
func EnvOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// MustEnv returns the value of the environment variable key, or fatally exits if empty.
func MustEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		log.Fatalf("pubindex: required environment variable %s is not set", key)
	}
	return v
}
