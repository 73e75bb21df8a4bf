// Package build turns blog files into entries: markdown and plain text with
// a "Key: value" header, HTML documents converted to markdown, and images.
// It also merges the files of an aggregated group into one entry.
package build

import (
	"context"
	"fmt"
	"path"
	"regexp"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"

	"github.com/eringen/pubindex/entry"
)

type kind int

const (
	kindNone kind = iota
	kindText
	kindHTML
	kindImage
)

var kinds = map[string]kind{
	".md":       kindText,
	".markdown": kindText,
	".txt":      kindText,
	".html":     kindHTML,
	".htm":      kindHTML,
	".jpg":      kindImage,
	".jpeg":     kindImage,
	".png":      kindImage,
	".gif":      kindImage,
	".webp":     kindImage,
	".bmp":      kindImage,
}

func kindOf(p string) kind {
	return kinds[strings.ToLower(path.Ext(p))]
}

const summaryLength = 280

var (
	reDatePrefix = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2})-`)
	reTagSegment = regexp.MustCompile(`^\[(.+)\]$`)
)

// Builder builds entries from blog files. The zero value is ready to use.
type Builder struct {
	// Location interprets dates written without a zone. Defaults to UTC.
	Location *time.Location
}

// New returns a Builder reading dates in UTC.
func New() *Builder {
	return &Builder{Location: time.UTC}
}

func (b *Builder) loc() *time.Location {
	if b.Location == nil {
		return time.UTC
	}
	return b.Location
}

// Build implements entry.Builder. Files of unknown types yield nil.
func (b *Builder) Build(ctx context.Context, _ string, p string, content []byte) (*entry.Entry, error) {
	var (
		meta entry.Metadata
		body string
	)
	switch kindOf(p) {
	case kindText:
		meta, body = parseHeader(string(content))
	case kindHTML:
		md, err := htmltomarkdown.ConvertString(string(content))
		if err != nil {
			return nil, fmt.Errorf("build %s: convert html: %w", p, err)
		}
		meta, body = entry.Metadata{}, md
	case kindImage:
		info, err := decodeImage(content)
		if err != nil {
			return nil, fmt.Errorf("build %s: %w", p, err)
		}
		meta = entry.Metadata{
			"width":  entry.Number(info.Width),
			"height": entry.Number(info.Height),
			"format": entry.String(info.Format),
		}
		body = imageMarkdown(p, info)
	default:
		return nil, nil
	}
	return b.assemble(ctx, p, meta, body)
}

// BuildAggregate implements entry.Aggregator. Members are taken in the given
// order: text bodies become consecutive sections and images become inline
// figures. The first member carrying a header supplies the metadata, and
// tags are collected from every member.
func (b *Builder) BuildAggregate(ctx context.Context, _ string, p string, members []entry.Member) (*entry.Entry, error) {
	var (
		meta     entry.Metadata
		sections []string
		tags     []string
	)
	for _, m := range members {
		var (
			mm   entry.Metadata
			body string
		)
		switch kindOf(m.Path) {
		case kindText:
			mm, body = parseHeader(string(m.Content))
		case kindHTML:
			md, err := htmltomarkdown.ConvertString(string(m.Content))
			if err != nil {
				return nil, fmt.Errorf("build %s: convert html: %w", m.Path, err)
			}
			body = md
		case kindImage:
			info, err := decodeImage(m.Content)
			if err != nil {
				return nil, fmt.Errorf("build %s: %w", m.Path, err)
			}
			body = imageMarkdown(m.Path, info)
		default:
			continue
		}
		if meta == nil && len(mm) > 0 {
			meta = mm
		}
		tags = append(tags, mm.Strings("tags")...)
		if body = strings.TrimSpace(body); body != "" {
			sections = append(sections, body)
		}
	}
	if meta == nil && len(sections) == 0 {
		return nil, nil
	}
	if meta == nil {
		meta = entry.Metadata{}
	}
	list := make(entry.List, len(tags))
	for i, t := range tags {
		list[i] = entry.String(t)
	}
	meta["tags"] = list
	return b.assemble(ctx, p, meta, strings.Join(sections, "\n\n"))
}

func (b *Builder) assemble(ctx context.Context, p string, meta entry.Metadata, body string) (*entry.Entry, error) {
	html, err := renderHTML(ctx, body)
	if err != nil {
		return nil, fmt.Errorf("build %s: render: %w", p, err)
	}
	e := &entry.Entry{
		HTML:     html,
		Metadata: meta,
		Tags:     meta.Strings("tags"),
		Draft:    meta.Bool("draft"),
		Page:     meta.Bool("page"),
	}
	delete(meta, "tags")

	e.Title, _ = meta.String("title")
	if e.Title == "" {
		e.Title = firstHeading(body)
	}
	if e.Title == "" {
		e.Title = humanize(path.Base(p))
	}
	e.Summary, _ = meta.String("summary")
	if e.Summary == "" {
		e.Summary = summarize(body)
	}

	if date, ok := meta.String("date"); ok && date != "" {
		if e.DateStamp, err = parseDate(date, b.loc()); err != nil {
			return nil, fmt.Errorf("build %s: %w", p, err)
		}
	}
	b.applyPath(e, p)
	return e, nil
}

// applyPath applies the folder conventions: "[tag]" directories add tags,
// a "drafts" directory marks drafts, a "pages" directory marks pages and a
// YYYY-MM-DD- filename prefix dates the entry unless the header did.
func (b *Builder) applyPath(e *entry.Entry, p string) {
	dir, file := path.Split(p)
	for _, seg := range strings.Split(strings.Trim(dir, "/"), "/") {
		if m := reTagSegment.FindStringSubmatch(seg); m != nil {
			e.Tags = append(e.Tags, m[1])
			continue
		}
		switch strings.ToLower(seg) {
		case "drafts":
			e.Draft = true
		case "pages":
			e.Page = true
		}
	}
	if e.DateStamp != 0 {
		return
	}
	if m := reDatePrefix.FindStringSubmatch(file); m != nil {
		if t, err := time.ParseInLocation("2006-01-02", m[1], b.loc()); err == nil {
			e.DateStamp = t.UnixMilli()
		}
	}
}

func imageMarkdown(p string, info imageInfo) string {
	return fmt.Sprintf("![%s](%s){|%d|%d}", humanize(path.Base(p)), p, info.Width, info.Height)
}

func firstHeading(body string) string {
	for _, line := range strings.Split(body, "\n") {
		if t, ok := strings.CutPrefix(strings.TrimSpace(line), "# "); ok {
			return strings.TrimSpace(t)
		}
	}
	return ""
}

// summarize returns the first paragraph of body that is not a heading,
// image, list or fence, cut to summaryLength runes.
func summarize(body string) string {
	var para []string
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			if len(para) > 0 {
				break
			}
			continue
		}
		if len(para) == 0 && strings.ContainsAny(line[:1], "#!|-*>`[") {
			continue
		}
		para = append(para, line)
	}
	s := strings.Join(para, " ")
	if utf8.RuneCountInString(s) <= summaryLength {
		return s
	}
	r := []rune(s)[:summaryLength]
	return strings.TrimRightFunc(string(r), unicode.IsSpace) + "…"
}

// humanize turns a file name into a title: the extension and any date
// prefix go, dashes and underscores become spaces.
func humanize(name string) string {
	name = strings.TrimSuffix(name, path.Ext(name))
	name = reDatePrefix.ReplaceAllString(name, "")
	name = strings.Join(strings.FieldsFunc(name, func(r rune) bool {
		return r == '-' || r == '_' || unicode.IsSpace(r)
	}), " ")
	if name == "" {
		return ""
	}
	r, n := utf8.DecodeRuneInString(name)
	return string(unicode.ToUpper(r)) + name[n:]
}
