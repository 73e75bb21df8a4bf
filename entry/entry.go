// Package entry holds the authoritative entry record and the interfaces the
// index engine consumes to read, persist and build entries.
package entry

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
)

// Entry is the authoritative record for one piece of content in a blog.
type Entry struct {
	ID          string   `json:"id"`
	Path        string   `json:"path"`
	DateStamp   int64    `json:"dateStamp"`
	Updated     int64    `json:"updated"`
	Title       string   `json:"title"`
	Summary     string   `json:"summary,omitempty"`
	HTML        string   `json:"html,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	Fingerprint string   `json:"fingerprint,omitempty"`
	Deleted     bool     `json:"deleted,omitempty"`
	Draft       bool     `json:"draft,omitempty"`
	Scheduled   bool     `json:"scheduled,omitempty"`
	Page        bool     `json:"page,omitempty"`
	Metadata    Metadata `json:"metadata,omitempty"`
}

// Visible reports whether the entry belongs in the chronological post list.
func (e *Entry) Visible() bool {
	return !e.Deleted && !e.Draft && !e.Scheduled && !e.Page
}

// Aggregate reports whether the entry was produced from a group of files.
func (e *Entry) Aggregate() bool {
	_, ok := e.Metadata["sources"]
	return ok
}

// Source reads authoritative entries.
//
// GetEntry and GetEntryByID return (nil, nil) when nothing matches. GetEntry
// only considers live entries, GetEntryByID also returns deleted ones.
// GetEntries preserves the order of ids and skips ids that do not exist.
// Scan returns up to limit entries (live and deleted) with id greater than
// after, ordered by id.
type Source interface {
	GetEntry(ctx context.Context, blogID, path string) (*Entry, error)
	GetEntryByID(ctx context.Context, blogID, id string) (*Entry, error)
	GetEntries(ctx context.Context, blogID string, ids []string) ([]Entry, error)
	Scan(ctx context.Context, blogID, after string, limit int) ([]Entry, error)
}

// Writer persists authoritative entries.
type Writer interface {
	PutEntry(ctx context.Context, blogID string, e Entry) error
	MarkDeleted(ctx context.Context, blogID, id string) error
}

// Repository is a Source that can also be written to.
type Repository interface {
	Source
	Writer
}

// Builder converts raw file contents into an entry. A nil entry with a nil
// error means the file does not produce an entry.
//
// Builders fill content fields and lifecycle flags. DateStamp is left zero
// unless the file carries an explicit publication date.
type Builder interface {
	Build(ctx context.Context, blogID, path string, content []byte) (*Entry, error)
}

// Member is one file of an aggregated group.
type Member struct {
	Path    string
	Content []byte
}

// Aggregator is implemented by builders that know how to merge the files of
// a group into a single entry. Builders without it get the members'
// contents concatenated and built as one markdown document.
type Aggregator interface {
	BuildAggregate(ctx context.Context, blogID, path string, members []Member) (*Entry, error)
}

var bom = []byte{0xEF, 0xBB, 0xBF}

// Fingerprint returns the hex SHA-256 of content after stripping a UTF-8
// byte order mark and normalizing CRLF and CR line endings to LF.
func Fingerprint(content []byte) string {
	content = bytes.TrimPrefix(content, bom)
	content = bytes.ReplaceAll(content, []byte("\r\n"), []byte("\n"))
	content = bytes.ReplaceAll(content, []byte("\r"), []byte("\n"))
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}
