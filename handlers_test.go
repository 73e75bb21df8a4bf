package pubindex

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"

	"github.com/eringen/pubindex/index"
)

const testToken = "secret"

func setupTestApp(t *testing.T, cfg Config) *App {
	t.Helper()
	dir := t.TempDir()
	cfg.DatabasePath = filepath.Join(dir, "index.db")
	cfg.BlogsRoot = filepath.Join(dir, "blogs")
	cfg.APIToken = testToken
	a := New(cfg, WithLogger(index.NewWriterLogger(io.Discard, slog.LevelDebug)))
	require.NoError(t, a.Setup())
	t.Cleanup(func() { a.Close() })
	return a
}

func (a *App) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if method != http.MethodGet {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+testToken)
	}
	rec := httptest.NewRecorder()
	a.Echo.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestPutFileIndexesEntry(t *testing.T) {
	a := setupTestApp(t, Config{})

	rec := a.do(t, http.MethodPut, "/blogs/b1/files?path=/2024-01-01-hello.md", "Tags: Go\n\nHello there.")
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())
	_, err := os.Stat(filepath.Join(a.Config.BlogsRoot, "b1", "2024-01-01-hello.md"))
	require.NoError(t, err)

	rec = a.do(t, http.MethodGet, "/blogs/b1/entries", "")
	require.Equal(t, http.StatusOK, rec.Code)
	page := decode[pageResponse](t, rec)
	require.Equal(t, 1, page.Pagination.Count)
	require.Len(t, page.Entries, 1)
	require.Equal(t, "/2024-01-01-hello.md", page.Entries[0].ID)
	require.Equal(t, "Hello", page.Entries[0].Title)
	require.Equal(t, "Hello there.", page.Entries[0].Summary)

	rec = a.do(t, http.MethodGet, "/blogs/b1/tags/popular", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, []index.TagCount{{Tag: "go", Label: "Go", Slug: "go", Count: 1}}, decode[[]index.TagCount](t, rec))

	rec = a.do(t, http.MethodGet, "/blogs/b1/tags/GO", "")
	require.Equal(t, http.StatusOK, rec.Code)
	tag := decode[tagResponse](t, rec)
	require.Equal(t, "Go", tag.Label)
	require.Equal(t, 1, tag.Total)
	require.Len(t, tag.Entries, 1)

	rec = a.do(t, http.MethodGet, "/blogs/b1/entry?id=/2024-01-01-hello.md", "")
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestDeleteFileRemovesEntry(t *testing.T) {
	a := setupTestApp(t, Config{})
	require.Equal(t, http.StatusNoContent, a.do(t, http.MethodPut, "/blogs/b1/files?path=/a.md", "a").Code)
	require.Equal(t, http.StatusNoContent, a.do(t, http.MethodDelete, "/blogs/b1/files?path=/a.md", "").Code)

	page := decode[pageResponse](t, a.do(t, http.MethodGet, "/blogs/b1/entries", ""))
	require.Empty(t, page.Entries)
	page = decode[pageResponse](t, a.do(t, http.MethodGet, "/blogs/b1/entries?list=deleted", ""))
	require.Len(t, page.Entries, 1)

	// deleting a missing file is not an error
	require.Equal(t, http.StatusNoContent, a.do(t, http.MethodDelete, "/blogs/b1/files?path=/a.md", "").Code)
}

func TestAggregatedUploads(t *testing.T) {
	a := setupTestApp(t, Config{})
	require.Equal(t, http.StatusNoContent, a.do(t, http.MethodPut, "/blogs/b1/files?path=/trip%2B/01.md", "Title: Trip\n\nDay one.").Code)
	require.Equal(t, http.StatusNoContent, a.do(t, http.MethodPut, "/blogs/b1/files?path=/trip%2B/02.md", "Day two.").Code)

	page := decode[pageResponse](t, a.do(t, http.MethodGet, "/blogs/b1/entries", ""))
	require.Len(t, page.Entries, 1)
	require.Equal(t, "/trip", page.Entries[0].ID)
	require.Equal(t, "Trip", page.Entries[0].Title)
	require.Equal(t, []string{"/trip+/01.md", "/trip+/02.md"}, page.Entries[0].Metadata.Strings("sources"))
}

func TestDeleteDirectoryRemovesEveryEntry(t *testing.T) {
	a := setupTestApp(t, Config{})
	for _, p := range []string{"/trip%2B/01.md", "/trip%2B/02.md", "/notes/a.md", "/notes/deep/b.md", "/keep.md"} {
		require.Equal(t, http.StatusNoContent, a.do(t, http.MethodPut, "/blogs/b1/files?path="+p, "Body of "+p).Code)
	}
	require.Len(t, decode[pageResponse](t, a.do(t, http.MethodGet, "/blogs/b1/entries", "")).Entries, 4)

	rec := a.do(t, http.MethodDelete, "/blogs/b1/files?path=/trip%2B", "")
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())
	rec = a.do(t, http.MethodDelete, "/blogs/b1/files?path=/notes", "")
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	for _, dir := range []string{"trip+", "notes"} {
		_, err := os.Stat(filepath.Join(a.Config.BlogsRoot, "b1", dir))
		require.ErrorIs(t, err, os.ErrNotExist)
	}
	page := decode[pageResponse](t, a.do(t, http.MethodGet, "/blogs/b1/entries", ""))
	require.Len(t, page.Entries, 1)
	require.Equal(t, "/keep.md", page.Entries[0].ID)
}

func TestMutatingRoutesRequireToken(t *testing.T) {
	a := setupTestApp(t, Config{})
	req := httptest.NewRequest(http.MethodPut, "/blogs/b1/files?path=/a.md", strings.NewReader("a"))
	req.Header.Set(echo.HeaderAuthorization, "Bearer wrong")
	rec := httptest.NewRecorder()
	a.Echo.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = a.do(t, http.MethodGet, "/blogs/b1/entries", "")
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestBadInput(t *testing.T) {
	a := setupTestApp(t, Config{})
	tests := []struct {
		method string
		target string
		code   int
	}{
		{http.MethodPut, "/blogs/b1/files?path=../escape.md", http.StatusBadRequest},
		{http.MethodPut, "/blogs/b1/files?path=/", http.StatusBadRequest},
		{http.MethodPut, "/blogs/-bad/files?path=/a.md", http.StatusBadRequest},
		{http.MethodGet, "/blogs/b1/entries?list=bogus", http.StatusBadRequest},
		{http.MethodGet, "/blogs/b1/entries?page=x", http.StatusBadRequest},
		{http.MethodGet, "/blogs/b1/entries?sort=title", http.StatusBadRequest},
		{http.MethodGet, "/blogs/b1/adjacent", http.StatusBadRequest},
		{http.MethodGet, "/blogs/b1/adjacent?id=/missing.md", http.StatusNotFound},
		{http.MethodGet, "/blogs/b1/entry?id=/missing.md", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.target, func(t *testing.T) {
			require.Equal(t, tt.code, a.do(t, tt.method, tt.target, "x").Code)
		})
	}
}

func TestRebuildIsRateLimited(t *testing.T) {
	a := setupTestApp(t, Config{RebuildLimit: 1})
	require.Equal(t, http.StatusNoContent, a.do(t, http.MethodPost, "/blogs/b1/rebuild", "").Code)
	require.Equal(t, http.StatusTooManyRequests, a.do(t, http.MethodPost, "/blogs/b1/rebuild", "").Code)
	require.Equal(t, http.StatusNoContent, a.do(t, http.MethodPost, "/blogs/b2/rebuild", "").Code)
}

func TestFeedAndSitemap(t *testing.T) {
	a := setupTestApp(t, Config{Name: "Test Blog"})
	a.do(t, http.MethodPut, "/blogs/b1/files?path=/2024-01-01-hello.md", "Tags: Go\n\nHello there.")
	a.do(t, http.MethodPut, "/blogs/b1/files?path=/pages/about.md", "About me.")

	rec := a.do(t, http.MethodGet, "/blogs/b1/feed.xml", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	require.Contains(t, body, "<title>Test Blog</title>")
	require.Contains(t, body, "<link>http://localhost:3000/b1/2024-01-01-hello/</link>")
	require.Contains(t, body, "<pubDate>Mon, 01 Jan 2024 00:00:00 +0000</pubDate>")
	require.Contains(t, body, "<category>Go</category>")
	require.NotContains(t, body, "about")

	rec = a.do(t, http.MethodGet, "/blogs/b1/sitemap.xml", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body = rec.Body.String()
	require.Contains(t, body, "<loc>http://localhost:3000/b1/</loc>")
	require.Contains(t, body, "<loc>http://localhost:3000/b1/2024-01-01-hello/</loc>")
	require.Contains(t, body, "<loc>http://localhost:3000/b1/pages/about/</loc>")
}

func TestMetricsEndpoint(t *testing.T) {
	a := setupTestApp(t, Config{MetricsEnabled: true})
	a.do(t, http.MethodPut, "/blogs/b1/files?path=/a.md", "a")

	rec := a.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "pubindex_identity_resolutions")
	require.Contains(t, rec.Body.String(), "pubindex_http_requests_total")
}

func TestBuildURL(t *testing.T) {
	tests := []struct {
		base, want string
		segs       []string
	}{
		{"http://x.test", "http://x.test/b1/", []string{"b1"}},
		{"http://x.test/sub/", "http://x.test/sub/b1/post/", []string{"b1", "/post"}},
		{"http://x.test", "http://x.test", nil},
	}
	for _, tt := range tests {
		if got := BuildURL(tt.base, tt.segs...); got != tt.want {
			t.Errorf("BuildURL(%q, %v) = %q, want %q", tt.base, tt.segs, got, tt.want)
		}
	}
	if got := EntryURL("http://x.test", "b1", "/a.md~2"); got != "http://x.test/b1/a.md~2/" {
		t.Errorf("EntryURL suffixed = %q", got)
	}
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("PUBINDEX_ADDR", ":9999")
	t.Setenv("PUBINDEX_PAGE_SIZE", "25")
	t.Setenv("PUBINDEX_RENAME_WINDOW", "90s")
	t.Setenv("PUBINDEX_METRICS", "false")
	cfg := ConfigFromEnv()
	require.Equal(t, ":9999", cfg.Addr)
	require.Equal(t, 25, cfg.PageSize)
	require.Equal(t, "1m30s", cfg.RenameWindow.String())
	require.False(t, cfg.MetricsEnabled)
}
