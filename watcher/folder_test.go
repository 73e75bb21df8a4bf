package watcher

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/require"

	"github.com/eringen/pubindex/index"
)

type recordingSink struct {
	mu      sync.Mutex
	files   map[string]string
	deleted []string
}

func newRecordingSink() *recordingSink {
	return &recordingSink{files: make(map[string]string)}
}

func (s *recordingSink) Write(_ context.Context, _ string, p string, content []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[p] = string(content)
	return nil
}

func (s *recordingSink) Delete(_ context.Context, _ string, p string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.files, p)
	s.deleted = append(s.deleted, p)
	return nil
}

func (s *recordingSink) has(p string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.files[p]
	return ok
}

func writeFile(t *testing.T, name, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(name), 0o755))
	require.NoError(t, os.WriteFile(name, []byte(content), 0o644))
}

func setupTestFolder(t *testing.T) (*Folder, *recordingSink, string) {
	t.Helper()
	dir := t.TempDir()
	sink := newRecordingSink()
	return New(sink, "b1", dir, index.NewWriterLogger(io.Discard, slog.LevelDebug)), sink, dir
}

func TestSync(t *testing.T) {
	f, sink, dir := setupTestFolder(t)
	writeFile(t, filepath.Join(dir, "a.md"), "a")
	writeFile(t, filepath.Join(dir, "trip+", "01.md"), "day one")
	writeFile(t, filepath.Join(dir, ".git", "HEAD"), "ref")
	writeFile(t, filepath.Join(dir, ".hidden.md"), "x")

	n, err := f.Sync(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.Equal(t, map[string]string{"/a.md": "a", "/trip+/01.md": "day one"}, sink.files)

	require.NoError(t, os.Remove(filepath.Join(dir, "a.md")))
	n, err = f.Sync(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, []string{"/a.md"}, sink.deleted)
}

func TestHandleEvent(t *testing.T) {
	f, sink, dir := setupTestFolder(t)
	ctx := context.Background()

	name := filepath.Join(dir, "post.md")
	writeFile(t, name, "v1")
	f.handleEvent(ctx, nil, fsnotify.Event{Name: name, Op: fsnotify.Create})
	require.Equal(t, "v1", sink.files["/post.md"])

	writeFile(t, name, "v2")
	f.handleEvent(ctx, nil, fsnotify.Event{Name: name, Op: fsnotify.Write})
	require.Equal(t, "v2", sink.files["/post.md"])

	require.NoError(t, os.Remove(name))
	f.handleEvent(ctx, nil, fsnotify.Event{Name: name, Op: fsnotify.Remove})
	require.False(t, sink.has("/post.md"))

	// removing an unknown file is ignored
	f.handleEvent(ctx, nil, fsnotify.Event{Name: filepath.Join(dir, "other.md"), Op: fsnotify.Remove})
	require.Equal(t, []string{"/post.md"}, sink.deleted)

	f.handleEvent(ctx, nil, fsnotify.Event{Name: filepath.Join(dir, ".swp"), Op: fsnotify.Create})
	require.Empty(t, sink.files)
}

func TestHandleEventDirectory(t *testing.T) {
	f, sink, dir := setupTestFolder(t)
	ctx := context.Background()

	group := filepath.Join(dir, "trip+")
	writeFile(t, filepath.Join(group, "01.md"), "one")
	writeFile(t, filepath.Join(group, "02.md"), "two")
	writeFile(t, filepath.Join(dir, "trip.md"), "sibling")
	f.handleEvent(ctx, nil, fsnotify.Event{Name: filepath.Join(dir, "trip.md"), Op: fsnotify.Create})

	// a directory created with files already in it
	f.handleEvent(ctx, nil, fsnotify.Event{Name: group, Op: fsnotify.Create})
	require.True(t, sink.has("/trip+/01.md"))
	require.True(t, sink.has("/trip+/02.md"))

	require.NoError(t, os.RemoveAll(group))
	f.handleEvent(ctx, nil, fsnotify.Event{Name: group, Op: fsnotify.Remove})
	require.Equal(t, []string{"/trip+/01.md", "/trip+/02.md"}, sink.deleted)
	require.True(t, sink.has("/trip.md"))
}

func TestWatch(t *testing.T) {
	f, sink, dir := setupTestFolder(t)
	writeFile(t, filepath.Join(dir, "old.md"), "old")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.Watch(ctx) }()

	require.Eventually(t, func() bool { return sink.has("/old.md") }, 5*time.Second, 10*time.Millisecond)

	writeFile(t, filepath.Join(dir, "new.md"), "new")
	require.Eventually(t, func() bool { return sink.has("/new.md") }, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, os.Remove(filepath.Join(dir, "old.md")))
	require.Eventually(t, func() bool { return !sink.has("/old.md") }, 5*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}
