package index

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/eringen/pubindex/entry"
)

// Group is a directory whose files make up one entry.
type Group struct {
	Dir  string // the directory, suffix included: /album+
	Path string // the entry path, suffix stripped: /album
}

// FindGroup returns the outermost directory of p whose name ends in suffix,
// or nil. p may be the directory itself.
func FindGroup(p, suffix string) *Group {
	parts := strings.Split(strings.TrimPrefix(p, "/"), "/")
	for i, part := range parts {
		if len(part) > len(suffix) && strings.HasSuffix(part, suffix) {
			dir := "/" + strings.Join(parts[:i+1], "/")
			return &Group{Dir: dir, Path: strings.TrimSuffix(dir, suffix)}
		}
	}
	return nil
}

// FindAggregateGroup returns the group p belongs to, or nil.
func (e *Engine) FindAggregateGroup(p string) *Group {
	return FindGroup(p, e.cfg.AggregateSuffix)
}

// IsAggregateSource reports whether p is a file inside a group. Such files
// never appear in any index themselves.
func (e *Engine) IsAggregateSource(p string) bool {
	g := e.FindAggregateGroup(p)
	return g != nil && p != g.Dir
}

func ignoredName(name string) bool {
	return strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_")
}

// groupFiles lists the member paths of g in lexical order. Names starting
// with "." or "_" are skipped along with everything beneath them.
func (e *Engine) groupFiles(blogID string, g *Group) (fs.FS, []string, error) {
	if e.cfg.Files == nil {
		return nil, nil, ErrNoFiles
	}
	fsys, err := e.cfg.Files(blogID)
	if err != nil {
		return nil, nil, err
	}
	root := strings.TrimPrefix(g.Dir, "/")
	var paths []string
	err = fs.WalkDir(fsys, root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == root && errors.Is(err, fs.ErrNotExist) {
				return fs.SkipAll
			}
			return err
		}
		if p == root {
			return nil
		}
		if ignoredName(d.Name()) {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if !d.IsDir() {
			paths = append(paths, "/"+p)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	sort.Strings(paths)
	return fsys, paths, nil
}

// BuildAggregate builds the single entry for g from its files. It returns
// nil when the group is empty or holds more files than the cap.
func (e *Engine) BuildAggregate(ctx context.Context, blogID string, g *Group) (*entry.Entry, error) {
	fsys, paths, err := e.groupFiles(blogID, g)
	if err != nil {
		return nil, fmt.Errorf("pubindex: group %s: %w", g.Dir, err)
	}
	if len(paths) == 0 {
		return nil, nil
	}
	if len(paths) > e.cfg.AggregateCap {
		AggregateOverflows.Inc()
		e.log.WarnCtx(ctx, "aggregated group over the file cap, not indexed",
			"blog", blogID, "dir", g.Dir, "files", len(paths), "cap", e.cfg.AggregateCap)
		return nil, nil
	}

	members := make([]entry.Member, 0, len(paths))
	var whole bytes.Buffer
	for _, p := range paths {
		content, err := fs.ReadFile(fsys, strings.TrimPrefix(p, "/"))
		if err != nil {
			return nil, fmt.Errorf("pubindex: group %s: %w", g.Dir, err)
		}
		members = append(members, entry.Member{Path: p, Content: content})
		whole.WriteString(p)
		whole.WriteByte(0)
		whole.Write(content)
		whole.WriteByte(0)
	}

	var built *entry.Entry
	if agg, ok := e.builder.(entry.Aggregator); ok {
		built, err = agg.BuildAggregate(ctx, blogID, g.Path, members)
	} else {
		parts := make([][]byte, len(members))
		for i, m := range members {
			parts[i] = bytes.TrimSpace(m.Content)
		}
		built, err = e.builder.Build(ctx, blogID, g.Path+".md", bytes.Join(parts, []byte("\n\n")))
	}
	if err != nil || built == nil {
		return nil, err
	}

	sources := make(entry.List, len(paths))
	for i, p := range paths {
		sources[i] = entry.String(p)
	}
	if built.Metadata == nil {
		built.Metadata = entry.Metadata{}
	}
	built.Metadata["sources"] = sources
	built.Path = g.Path
	built.Fingerprint = entry.Fingerprint(whole.Bytes())
	return built, nil
}

// syncGroup re-derives the entry of g after any of its files changed.
func (e *Engine) syncGroup(ctx context.Context, blogID string, g *Group) error {
	built, err := e.BuildAggregate(ctx, blogID, g)
	if err != nil {
		return err
	}
	if built == nil {
		id, err := e.remove(ctx, blogID, g.Path, false)
		if err != nil || id == "" {
			return err
		}
		return e.reindex(ctx, blogID, id)
	}
	id, err := e.save(ctx, blogID, built, true)
	if err != nil {
		return err
	}
	return e.reindex(ctx, blogID, id.ID)
}
