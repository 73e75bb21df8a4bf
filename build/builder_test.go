package build

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/eringen/pubindex/entry"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))))
	return buf.Bytes()
}

func TestBuildMarkdownWithHeader(t *testing.T) {
	b := New()
	content := "Title: Hello World\nTags: Go, Web\nDate: 2024-03-01\nCategory: notes\n\n# Ignored heading\n\nFirst paragraph\ncontinues here.\n\nSecond."
	e, err := b.Build(context.Background(), "blog", "/posts/hello.md", []byte(content))
	require.NoError(t, err)
	require.NotNil(t, e)

	require.Equal(t, "Hello World", e.Title)
	require.Equal(t, []string{"Go", "Web"}, e.Tags)
	require.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC).UnixMilli(), e.DateStamp)
	require.Equal(t, "First paragraph continues here.", e.Summary)
	require.Contains(t, e.HTML, "<h1>Ignored heading</h1>")
	require.Contains(t, e.HTML, "<p>Second.</p>")
	category, _ := e.Metadata.String("category")
	require.Equal(t, "notes", category)
	require.NotContains(t, e.Metadata, "tags")
	require.False(t, e.Draft)
	require.False(t, e.Page)
}

func TestBuildTitleFallbacks(t *testing.T) {
	b := New()
	e, err := b.Build(context.Background(), "blog", "/a.md", []byte("# From Heading\n\nbody"))
	require.NoError(t, err)
	require.Equal(t, "From Heading", e.Title)

	e, err = b.Build(context.Background(), "blog", "/2024-01-02-my_first-post.txt", []byte("just text"))
	require.NoError(t, err)
	require.Equal(t, "My first post", e.Title)
	require.Equal(t, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC).UnixMilli(), e.DateStamp)
}

func TestBuildPathConventions(t *testing.T) {
	b := New()
	e, err := b.Build(context.Background(), "blog", "/[travel]/drafts/trip.md", []byte("Tags: japan\n\nbody"))
	require.NoError(t, err)
	require.Equal(t, []string{"japan", "travel"}, e.Tags)
	require.True(t, e.Draft)

	e, err = b.Build(context.Background(), "blog", "/pages/about.md", []byte("about"))
	require.NoError(t, err)
	require.True(t, e.Page)

	e, err = b.Build(context.Background(), "blog", "/x.md", []byte("Draft: yes\nPage: true\n\nbody"))
	require.NoError(t, err)
	require.True(t, e.Draft)
	require.True(t, e.Page)
}

func TestBuildExplicitDateWinsOverFilename(t *testing.T) {
	e, err := New().Build(context.Background(), "blog", "/2020-01-01-x.md", []byte("Date: 1700000000000\n\nbody"))
	require.NoError(t, err)
	require.Equal(t, int64(1700000000000), e.DateStamp)

	_, err = New().Build(context.Background(), "blog", "/x.md", []byte("Date: someday\n\nbody"))
	require.ErrorContains(t, err, "unrecognized date")
}

func TestBuildHTML(t *testing.T) {
	e, err := New().Build(context.Background(), "blog", "/imported.html",
		[]byte("<html><body><h1>Imported</h1><p>Some <strong>bold</strong> text.</p></body></html>"))
	require.NoError(t, err)
	require.Equal(t, "Imported", e.Title)
	require.Contains(t, e.HTML, "<strong>bold</strong>")
	require.Equal(t, "Some **bold** text.", e.Summary)
}

func TestBuildImage(t *testing.T) {
	e, err := New().Build(context.Background(), "blog", "/photos/sunset-beach.png", pngBytes(t, 1600, 900))
	require.NoError(t, err)
	require.Equal(t, "Sunset beach", e.Title)
	require.Equal(t, entry.Number(800), e.Metadata["width"])
	require.Equal(t, entry.Number(450), e.Metadata["height"])
	require.Equal(t, entry.String("png"), e.Metadata["format"])
	require.Contains(t, e.HTML, `width="800" height="450" alt="Sunset beach" src="/photos/sunset-beach.png"`)

	_, err = New().Build(context.Background(), "blog", "/broken.png", []byte("not an image"))
	require.Error(t, err)
}

func TestBuildUnknownTypeIsNotAnEntry(t *testing.T) {
	e, err := New().Build(context.Background(), "blog", "/notes.pdf", []byte("%PDF"))
	require.NoError(t, err)
	require.Nil(t, e)
}

func TestBuildAggregate(t *testing.T) {
	members := []entry.Member{
		{Path: "/album+/01-intro.md", Content: []byte("Title: Summer\nTags: photos\n\nWe went to the sea.")},
		{Path: "/album+/02-beach.png", Content: pngBytes(t, 400, 300)},
		{Path: "/album+/03-notes.txt", Content: []byte("Tags: travel\n\nMore notes.")},
		{Path: "/album+/04-raw.cr2", Content: []byte("raw")},
	}
	e, err := New().BuildAggregate(context.Background(), "blog", "/album", members)
	require.NoError(t, err)
	require.NotNil(t, e)
	require.Equal(t, "Summer", e.Title)
	require.Equal(t, []string{"photos", "travel"}, e.Tags)
	require.Equal(t, "We went to the sea.", e.Summary)

	intro := strings.Index(e.HTML, "We went to the sea.")
	img := strings.Index(e.HTML, `src="/album+/02-beach.png"`)
	notes := strings.Index(e.HTML, "More notes.")
	require.True(t, intro >= 0 && img > intro && notes > img, e.HTML)

	e, err = New().BuildAggregate(context.Background(), "blog", "/empty", []entry.Member{{Path: "/empty+/x.bin"}})
	require.NoError(t, err)
	require.Nil(t, e)
}

func TestParseHeader(t *testing.T) {
	meta, body := parseHeader("---\ntitle: Fenced\n\ntags: a\n---\nbody")
	title, _ := meta.String("title")
	require.Equal(t, "Fenced", title)
	require.Equal(t, "body", body)

	meta, body = parseHeader("no header here\nTitle: late")
	require.Empty(t, meta)
	require.Equal(t, "no header here\nTitle: late", body)

	meta, body = parseHeader("\ufeffTitle: BOM\r\n\r\nbody\r\n")
	title, _ = meta.String("title")
	require.Equal(t, "BOM", title)
	require.Equal(t, "body\n", body)
}

func TestHumanize(t *testing.T) {
	require.Equal(t, "Hello world", humanize("hello-world.md"))
	require.Equal(t, "Ünïcode title", humanize("2023-05-06-ünïcode_title.txt"))
	require.Equal(t, "", humanize(".md"))
}
