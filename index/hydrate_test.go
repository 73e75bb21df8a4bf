package index

import (
	"context"
	"fmt"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"

	"github.com/eringen/pubindex/entry"
)

func seedTagged(h *harness) {
	h.write("/1.md", "Date: 1\nTags: go, web")
	h.write("/2.md", "Date: 2\nTags: go")
	h.write("/3.md", "Date: 3\nTags: go, rust, web")
	h.write("/4.md", "Date: 4\nTags: Rust")
	h.write("/draft.md", "Draft: yes\nTags: go")
}

func TestPopularHealsAfterOutOfBandDeletion(t *testing.T) {
	h := setupTestEngine(t, Config{})
	seedTagged(h)

	before, err := h.Popular(h.ctx, blog, Window{})
	require.NoError(t, err)
	require.Equal(t, []string{"go", "rust", "web"}, tagNames(before))
	require.Equal(t, []int{3, 2, 2}, tagCounts(before))

	require.NoError(t, h.st.Del(h.ctx, popularKey(blog)))
	after, err := h.Popular(h.ctx, blog, Window{})
	require.NoError(t, err)
	require.Equal(t, before, after)

	// writes while the ranking is missing do not leave it partial
	require.NoError(t, h.st.Del(h.ctx, popularKey(blog)))
	h.write("/5.md", "Date: 5\nTags: zig")
	after, err = h.Popular(h.ctx, blog, Window{})
	require.NoError(t, err)
	require.Equal(t, []string{"go", "rust", "web", "zig"}, tagNames(after))
}

func TestTagPageHealsAfterOutOfBandDeletion(t *testing.T) {
	h := setupTestEngine(t, Config{})
	seedTagged(h)

	before, _, _, err := h.TaggedPage(h.ctx, blog, "go", Window{})
	require.NoError(t, err)
	require.Equal(t, []string{"/3.md", "/2.md", "/1.md"}, before)

	require.NoError(t, h.st.Del(h.ctx, tagKey(blog, "go")))
	after, label, total, err := h.TaggedPage(h.ctx, blog, "go", Window{})
	require.NoError(t, err)
	require.Equal(t, before, after)
	require.Equal(t, "go", label)
	require.Equal(t, 3, total)

	// a write into an evicted tag rebuilds it instead of leaving one member
	require.NoError(t, h.st.Del(h.ctx, tagKey(blog, "web")))
	h.write("/6.md", "Date: 6\nTags: web")
	ids, _, _, err := h.TaggedPage(h.ctx, blog, "web", Window{})
	require.NoError(t, err)
	require.Equal(t, []string{"/6.md", "/3.md", "/1.md"}, ids)
}

func TestHydrateTagsIsIdempotent(t *testing.T) {
	h := setupTestEngine(t, Config{HydrateChunk: 2})
	seedTagged(h)

	before, err := h.Popular(h.ctx, blog, Window{})
	require.NoError(t, err)
	require.NoError(t, h.HydrateTags(h.ctx, blog))
	require.NoError(t, h.HydrateTags(h.ctx, blog))
	after, err := h.Popular(h.ctx, blog, Window{})
	require.NoError(t, err)
	require.Equal(t, before, after)

	tags, err := h.EntryTags(h.ctx, blog, "/3.md")
	require.NoError(t, err)
	require.Equal(t, []string{"go", "rust", "web"}, tags)

	tags, err = h.EntryTags(h.ctx, blog, "/draft.md")
	require.NoError(t, err)
	require.Empty(t, tags)

	scratch, err := h.st.Keys(h.ctx, scratchPrefix(blog))
	require.NoError(t, err)
	require.Empty(t, scratch)
}

func TestRebuildAfterIndexLoss(t *testing.T) {
	h := setupTestEngine(t, Config{HydrateChunk: 3})
	seedTagged(h)
	h.write("/about.md", "Page: yes")
	h.remove("/2.md")

	page, _ := h.page(PageOptions{})
	drafts, _ := h.page(PageOptions{List: ListDrafts})
	popular, err := h.Popular(h.ctx, blog, Window{})
	require.NoError(t, err)

	keys, err := h.st.Keys(h.ctx, blogPrefix(blog))
	require.NoError(t, err)
	require.NotEmpty(t, keys)
	require.NoError(t, h.st.Del(h.ctx, keys...))

	// reads notice the missing lists and rebuild everything
	healed, _ := h.page(PageOptions{})
	require.Equal(t, page, healed)
	healedDrafts, _ := h.page(PageOptions{List: ListDrafts})
	require.Equal(t, drafts, healedDrafts)
	healedPopular, err := h.Popular(h.ctx, blog, Window{})
	require.NoError(t, err)
	require.Equal(t, popular, healedPopular)

	deleted, _ := h.page(PageOptions{List: ListDeleted})
	require.Equal(t, []string{"/2.md"}, deleted)
	pages, _ := h.page(PageOptions{List: ListPages})
	require.Equal(t, []string{"/about.md"}, pages)

	// explicit rebuild over an intact index changes nothing
	require.NoError(t, h.Rebuild(h.ctx, blog))
	again, _ := h.page(PageOptions{})
	require.Equal(t, page, again)
}

func TestHydrateTagPageDropsEmptyTag(t *testing.T) {
	h := setupTestEngine(t, Config{})
	require.NoError(t, h.TagEntry(h.ctx, blog, "/ghost.md", []string{"ghost"}, 1))

	// no authoritative entry carries the tag
	require.NoError(t, h.HydrateTagPage(h.ctx, blog, "ghost"))
	known, err := h.st.SIsMember(h.ctx, tagsKey(blog), "ghost")
	require.NoError(t, err)
	require.False(t, known)
}

func TestPopularHealsWhenTagsEvictedAfterHydration(t *testing.T) {
	tests := []struct {
		name  string
		evict func(h *harness) []string
	}{
		{"ranking and tag set", func(h *harness) []string {
			return []string{popularKey(blog), tagsKey(blog)}
		}},
		{"every tag key", func(h *harness) []string {
			keys := []string{popularKey(blog), tagsKey(blog), entryTagsKey(blog, "/1.md")}
			return append(keys, tagKey(blog, "go"))
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := setupTestEngine(t, Config{})
			h.write("/1.md", "Date: 1\nTags: go")
			require.NoError(t, h.Rebuild(h.ctx, blog))

			require.NoError(t, h.st.Del(h.ctx, tt.evict(h)...))
			popular, err := h.Popular(h.ctx, blog, Window{})
			require.NoError(t, err)
			require.Equal(t, []string{"go"}, tagNames(popular))
			require.Equal(t, []int{1}, tagCounts(popular))
		})
	}
}

func TestPopularStaysEmptyWithoutTags(t *testing.T) {
	h := setupTestEngine(t, Config{})
	h.write("/1.md", "Date: 1")
	h.write("/draft.md", "Draft: yes\nTags: go")
	require.NoError(t, h.Rebuild(h.ctx, blog))

	popular, err := h.Popular(h.ctx, blog, Window{})
	require.NoError(t, err)
	require.Empty(t, popular)
}

// midScanWriter runs fn once, after the first scanned chunk has been read
// and before the hydration stages it.
type midScanWriter struct {
	entry.Repository
	fn func()
}

func (r *midScanWriter) Scan(ctx context.Context, blogID, after string, limit int) ([]entry.Entry, error) {
	chunk, err := r.Repository.Scan(ctx, blogID, after, limit)
	if fn := r.fn; fn != nil {
		r.fn = nil
		fn()
	}
	return chunk, err
}

func TestWriteDuringHydrationIsKept(t *testing.T) {
	tests := []struct {
		name     string
		hydrate  func(h *harness) error
		rewrite  string
		want     map[string][]string
		wantTags []string
	}{
		{
			name:     "hydrate tags",
			hydrate:  func(h *harness) error { return h.HydrateTags(h.ctx, blog) },
			rewrite:  "Date: 2\nTags: go, rust",
			want:     map[string][]string{"go": {"/2.md", "/1.md"}, "rust": {"/2.md"}},
			wantTags: []string{"go", "rust"},
		},
		{
			name:     "rebuild",
			hydrate:  func(h *harness) error { return h.Rebuild(h.ctx, blog) },
			rewrite:  "Date: 2\nTags: go, rust",
			want:     map[string][]string{"go": {"/2.md", "/1.md"}, "rust": {"/2.md"}},
			wantTags: []string{"go", "rust"},
		},
		{
			name:     "hydrate one tag",
			hydrate:  func(h *harness) error { return h.HydrateTagPage(h.ctx, blog, "go") },
			rewrite:  "Date: 2\nTags: rust",
			want:     map[string][]string{"go": {"/1.md"}, "rust": {"/2.md"}},
			wantTags: []string{"rust"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &midScanWriter{}
			h := setupTestEngine(t, Config{}, WithRepository(repo))
			repo.Repository = h.st
			h.write("/1.md", "Date: 1\nTags: go")
			h.write("/2.md", "Date: 2\nTags: go")

			repo.fn = func() { h.write("/2.md", tt.rewrite) }
			require.NoError(t, tt.hydrate(h))
			require.Nil(t, repo.fn)

			for tag, want := range tt.want {
				ids, _, total, err := h.TaggedPage(h.ctx, blog, tag, Window{})
				require.NoError(t, err)
				require.Equal(t, want, ids, tag)
				require.Equal(t, len(want), total, tag)
			}
			tags, err := h.EntryTags(h.ctx, blog, "/2.md")
			require.NoError(t, err)
			require.Equal(t, tt.wantTags, tags)

			popular, err := h.Popular(h.ctx, blog, Window{})
			require.NoError(t, err)
			counts := make(map[string]int, len(popular))
			for _, p := range popular {
				counts[p.Tag] = p.Count
			}
			want := make(map[string]int, len(tt.want))
			for tag, ids := range tt.want {
				want[tag] = len(ids)
			}
			require.Equal(t, want, counts)
		})
	}
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

func TestHydrateTagsSkipsFailingTag(t *testing.T) {
	h := setupTestEngine(t, Config{})
	seedTagged(h)
	require.NoError(t, h.st.ZRem(h.ctx, tagKey(blog, "go"), "/1.md"))

	// refuse the swap of a single tag
	_, err := h.st.DB().Exec(fmt.Sprintf(`
CREATE TRIGGER refuse_rust BEFORE UPDATE OF key ON zsets
WHEN NEW.key = '%s'
BEGIN SELECT RAISE(ABORT, 'swap refused'); END`, tagKey(blog, "rust")))
	require.NoError(t, err)

	failures := counterValue(t, HydrationTagFailures)
	require.NoError(t, h.HydrateTags(h.ctx, blog))
	require.Equal(t, failures+1, counterValue(t, HydrationTagFailures))

	// other tags are still swapped in
	ids, _, _, err := h.TaggedPage(h.ctx, blog, "go", Window{})
	require.NoError(t, err)
	require.Equal(t, []string{"/3.md", "/2.md", "/1.md"}, ids)

	// the failed tag keeps its live set and leaves no scratch behind
	ids, _, _, err = h.TaggedPage(h.ctx, blog, "rust", Window{})
	require.NoError(t, err)
	require.Equal(t, []string{"/4.md", "/3.md"}, ids)
	known, err := h.st.SIsMember(h.ctx, tagsKey(blog), "rust")
	require.NoError(t, err)
	require.True(t, known)
	scratch, err := h.st.Keys(h.ctx, scratchPrefix(blog))
	require.NoError(t, err)
	require.Empty(t, scratch)
}
