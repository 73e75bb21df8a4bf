// Package watcher feeds a local blog folder into the index engine: an
// initial walk writes every file, then filesystem events are relayed as
// writes and deletes.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/eringen/pubindex/index"
)

// Sink receives file changes. *index.Engine implements it.
type Sink interface {
	Write(ctx context.Context, blogID, path string, content []byte) error
	Delete(ctx context.Context, blogID, path string) error
}

var _ Sink = (*index.Engine)(nil)

// Folder mirrors one directory into one blog.
type Folder struct {
	blog   string
	root   string
	sink   Sink
	logger index.Logger

	mu    sync.Mutex
	known map[string]struct{} // entry paths written so far
}

// New creates a Folder for blogID rooted at dir.
func New(sink Sink, blogID, dir string, logger index.Logger) *Folder {
	if logger == nil {
		logger = index.NewDefaultLogger(slog.LevelInfo)
	}
	return &Folder{
		blog:   blogID,
		root:   dir,
		sink:   sink,
		logger: logger,
		known:  make(map[string]struct{}),
	}
}

func hidden(name string) bool {
	return strings.HasPrefix(name, ".")
}

// entryPath turns a filesystem path below the root into an entry path.
func (f *Folder) entryPath(name string) (string, bool) {
	rel, err := filepath.Rel(f.root, name)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", false
	}
	rel = filepath.ToSlash(rel)
	for _, seg := range strings.Split(rel, "/") {
		if hidden(seg) {
			return "", false
		}
	}
	return "/" + rel, true
}

func (f *Folder) write(ctx context.Context, name string) error {
	p, ok := f.entryPath(name)
	if !ok {
		return nil
	}
	content, err := os.ReadFile(name)
	if err != nil {
		return fmt.Errorf("watcher: read %s: %w", p, err)
	}
	if err := f.sink.Write(ctx, f.blog, p, content); err != nil {
		return fmt.Errorf("watcher: write %s: %w", p, err)
	}
	f.mu.Lock()
	f.known[p] = struct{}{}
	f.mu.Unlock()
	return nil
}

func (f *Folder) delete(ctx context.Context, p string) error {
	f.mu.Lock()
	delete(f.known, p)
	f.mu.Unlock()
	if err := f.sink.Delete(ctx, f.blog, p); err != nil {
		return fmt.Errorf("watcher: delete %s: %w", p, err)
	}
	return nil
}

// under returns the known entry paths at p or below it, sorted.
func (f *Folder) under(p string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for k := range f.known {
		if k == p || strings.HasPrefix(k, p+"/") {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

// walk calls fn for every regular file below dir, skipping hidden names.
func (f *Folder) walk(dir string, fn func(name string) error) error {
	return filepath.WalkDir(dir, func(name string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if name != f.root && hidden(d.Name()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		return fn(name)
	})
}

// Sync writes every file of the folder and deletes entries whose files
// were seen before but are gone now. It returns the number of files
// written.
func (f *Folder) Sync(ctx context.Context) (int, error) {
	seen := make(map[string]struct{})
	var n int
	err := f.walk(f.root, func(name string) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := f.write(ctx, name); err != nil {
			return err
		}
		if p, ok := f.entryPath(name); ok {
			seen[p] = struct{}{}
		}
		n++
		return nil
	})
	if err != nil {
		return n, err
	}
	for _, p := range f.under("") {
		if _, ok := seen[p]; ok {
			continue
		}
		if err := f.delete(ctx, p); err != nil {
			return n, err
		}
	}
	f.logger.InfoCtx(ctx, "folder synced", "blog", f.blog, "files", n)
	return n, nil
}

// Watch syncs the folder and then relays changes until ctx is done.
func (f *Folder) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watcher: create: %w", err)
	}
	defer w.Close()

	if err := f.addDirs(w, f.root); err != nil {
		return fmt.Errorf("watcher: add directories: %w", err)
	}
	if _, err := f.Sync(ctx); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			f.handleEvent(ctx, w, ev)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			f.logger.ErrorCtx(ctx, "watch error", "blog", f.blog, "err", err)
		}
	}
}

// addDirs watches dir and every directory below it.
func (f *Folder) addDirs(w *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(name string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if name != f.root && hidden(d.Name()) {
			return filepath.SkipDir
		}
		return w.Add(name)
	})
}

func (f *Folder) handleEvent(ctx context.Context, w *fsnotify.Watcher, ev fsnotify.Event) {
	p, ok := f.entryPath(ev.Name)
	if !ok {
		return
	}

	switch {
	case ev.Has(fsnotify.Create), ev.Has(fsnotify.Write):
		info, err := os.Stat(ev.Name)
		if err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				f.logger.WarnCtx(ctx, "stat failed", "path", p, "err", err)
			}
			return
		}
		if info.IsDir() {
			// Files may land before the watch is in place.
			if w != nil {
				if err := f.addDirs(w, ev.Name); err != nil {
					f.logger.WarnCtx(ctx, "watch directory failed", "path", p, "err", err)
				}
			}
			if err := f.walk(ev.Name, func(name string) error { return f.write(ctx, name) }); err != nil {
				f.logger.ErrorCtx(ctx, "directory sync failed", "path", p, "err", err)
			}
			return
		}
		if !info.Mode().IsRegular() {
			return
		}
		if err := f.write(ctx, ev.Name); err != nil {
			f.logger.ErrorCtx(ctx, "write failed", "err", err)
			return
		}
		f.logger.DebugCtx(ctx, "file written", "blog", f.blog, "path", p)

	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		// A rename arrives as a remove here and a create for the new name.
		for _, k := range f.under(p) {
			if err := f.delete(ctx, k); err != nil {
				f.logger.ErrorCtx(ctx, "delete failed", "err", err)
				continue
			}
			f.logger.DebugCtx(ctx, "file deleted", "blog", f.blog, "path", k)
		}
	}
}
