package mcp

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/require"

	"github.com/eringen/pubindex/build"
	"github.com/eringen/pubindex/index"
	"github.com/eringen/pubindex/store"
)

func setupTestEngine(t *testing.T) *index.Engine {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	eng := index.New(st, build.New())
	ctx := context.Background()
	require.NoError(t, eng.Write(ctx, "b1", "/2024-01-01-first.md", []byte("Tags: Go, SQL\n\nFirst.")))
	require.NoError(t, eng.Write(ctx, "b1", "/2024-02-01-second.md", []byte("Tags: Go\n\nSecond.")))
	return eng
}

func call[T any](t *testing.T, h func(context.Context, mcp.CallToolRequest, T) (*mcp.CallToolResult, error), args T) *mcp.CallToolResult {
	t.Helper()
	res, err := h(context.Background(), mcp.CallToolRequest{}, args)
	require.NoError(t, err)
	require.NotNil(t, res)
	require.NotEmpty(t, res.Content)
	return res
}

func text(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	tc, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok, "content is %T", res.Content[0])
	return tc.Text
}

func TestNewServer(t *testing.T) {
	require.NotNil(t, NewServer(setupTestEngine(t), "test"))
}

func TestGetPageHandler(t *testing.T) {
	h := getPageHandler(setupTestEngine(t))

	res := call(t, h, GetPageRequest{Blog: "b1"})
	require.False(t, res.IsError, text(t, res))
	var page GetPageResponse
	require.NoError(t, json.Unmarshal([]byte(text(t, res)), &page))
	require.Equal(t, 2, page.Pagination.Count)
	require.Equal(t, "/2024-02-01-second.md", page.Entries[0].ID)

	res = call(t, h, GetPageRequest{Blog: "b1", Order: "asc", Size: 1})
	require.NoError(t, json.Unmarshal([]byte(text(t, res)), &page))
	require.Len(t, page.Entries, 1)
	require.Equal(t, "/2024-01-01-first.md", page.Entries[0].ID)
	require.Equal(t, 2, page.Pagination.Total)
}

func TestAdjacentHandler(t *testing.T) {
	h := adjacentHandler(setupTestEngine(t))

	res := call(t, h, AdjacentRequest{Blog: "b1", ID: "/2024-01-01-first.md"})
	require.False(t, res.IsError, text(t, res))
	var adj index.Adjacent
	require.NoError(t, json.Unmarshal([]byte(text(t, res)), &adj))
	require.Equal(t, "/2024-02-01-second.md", adj.Next)
	require.Empty(t, adj.Previous)

	require.True(t, call(t, h, AdjacentRequest{Blog: "b1", ID: "/nope.md"}).IsError)
}

func TestTaggedPageAndPopularHandlers(t *testing.T) {
	eng := setupTestEngine(t)

	res := call(t, taggedPageHandler(eng), TaggedPageRequest{Blog: "b1", Tag: "go"})
	require.False(t, res.IsError, text(t, res))
	var tagged TaggedPageResponse
	require.NoError(t, json.Unmarshal([]byte(text(t, res)), &tagged))
	require.Equal(t, "Go", tagged.Label)
	require.Equal(t, 2, tagged.Total)
	require.Len(t, tagged.Entries, 2)

	res = call(t, popularHandler(eng), PopularRequest{Blog: "b1", Limit: 1})
	var tags []index.TagCount
	require.NoError(t, json.Unmarshal([]byte(text(t, res)), &tags))
	require.Equal(t, []index.TagCount{{Tag: "go", Label: "Go", Slug: "go", Count: 2}}, tags)
}

func TestRebuildHandler(t *testing.T) {
	res := call(t, rebuildHandler(setupTestEngine(t)), RebuildRequest{Blog: "b1"})
	require.False(t, res.IsError, text(t, res))
	require.Equal(t, "rebuilt b1", text(t, res))
}

func TestHandlerValidation(t *testing.T) {
	eng := setupTestEngine(t)
	require.True(t, call(t, getPageHandler(eng), GetPageRequest{}).IsError)
	require.True(t, call(t, getPageHandler(eng), GetPageRequest{Blog: "-bad"}).IsError)
	require.True(t, call(t, getPageHandler(eng), GetPageRequest{Blog: "b1", List: "bogus"}).IsError)
	require.True(t, call(t, adjacentHandler(eng), AdjacentRequest{Blog: "b1"}).IsError)
	require.True(t, call(t, taggedPageHandler(eng), TaggedPageRequest{Blog: "b1"}).IsError)
	require.True(t, call(t, popularHandler(eng), PopularRequest{}).IsError)
	require.True(t, call(t, rebuildHandler(eng), RebuildRequest{}).IsError)
}
