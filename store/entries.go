package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/eringen/pubindex/entry"
)

const entryColumns = `id, path, date_stamp, updated, title, summary, html, tags, fingerprint, deleted, draft, scheduled, page, metadata`

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (entry.Entry, error) {
	var (
		e                                 entry.Entry
		tags, metadata                    string
		deleted, draft, scheduled, pageOn int
	)
	err := row.Scan(&e.ID, &e.Path, &e.DateStamp, &e.Updated, &e.Title, &e.Summary, &e.HTML,
		&tags, &e.Fingerprint, &deleted, &draft, &scheduled, &pageOn, &metadata)
	if err != nil {
		return entry.Entry{}, err
	}
	if err := json.Unmarshal([]byte(tags), &e.Tags); err != nil {
		return entry.Entry{}, fmt.Errorf("entry %s tags: %w", e.ID, err)
	}
	if err := json.Unmarshal([]byte(metadata), &e.Metadata); err != nil {
		return entry.Entry{}, fmt.Errorf("entry %s metadata: %w", e.ID, err)
	}
	e.Deleted = deleted == 1
	e.Draft = draft == 1
	e.Scheduled = scheduled == 1
	e.Page = pageOn == 1
	return e, nil
}

// PutEntry inserts or replaces the entry with e.ID.
func (o Ops) PutEntry(ctx context.Context, blogID string, e entry.Entry) error {
	tags := e.Tags
	if tags == nil {
		tags = []string{}
	}
	tagJSON, err := json.Marshal(tags)
	if err != nil {
		return err
	}
	meta := e.Metadata
	if meta == nil {
		meta = entry.Metadata{}
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	_, err = o.q.ExecContext(ctx, `
INSERT INTO entries (blog_id, `+entryColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(blog_id, id) DO UPDATE SET
    path = excluded.path,
    date_stamp = excluded.date_stamp,
    updated = excluded.updated,
    title = excluded.title,
    summary = excluded.summary,
    html = excluded.html,
    tags = excluded.tags,
    fingerprint = excluded.fingerprint,
    deleted = excluded.deleted,
    draft = excluded.draft,
    scheduled = excluded.scheduled,
    page = excluded.page,
    metadata = excluded.metadata`,
		blogID, e.ID, e.Path, e.DateStamp, e.Updated, e.Title, e.Summary, e.HTML,
		string(tagJSON), e.Fingerprint, boolInt(e.Deleted), boolInt(e.Draft),
		boolInt(e.Scheduled), boolInt(e.Page), string(metaJSON))
	return err
}

// MarkDeleted flags an entry as deleted, keeping its row.
func (o Ops) MarkDeleted(ctx context.Context, blogID, id string) error {
	res, err := o.q.ExecContext(ctx, `UPDATE entries SET deleted = 1 WHERE blog_id = ? AND id = ?`, blogID, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetEntry returns the live entry at path, or nil.
func (o Ops) GetEntry(ctx context.Context, blogID, path string) (*entry.Entry, error) {
	row := o.q.QueryRowContext(ctx,
		`SELECT `+entryColumns+` FROM entries WHERE blog_id = ? AND path = ? AND deleted = 0`, blogID, path)
	return oneEntry(row)
}

// GetEntryByID returns the entry with id, deleted or not, or nil.
func (o Ops) GetEntryByID(ctx context.Context, blogID, id string) (*entry.Entry, error) {
	row := o.q.QueryRowContext(ctx,
		`SELECT `+entryColumns+` FROM entries WHERE blog_id = ? AND id = ?`, blogID, id)
	return oneEntry(row)
}

func oneEntry(row *sql.Row) (*entry.Entry, error) {
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// GetEntries returns the entries for ids in the same order, skipping ids
// that do not exist.
func (o Ops) GetEntries(ctx context.Context, blogID string, ids []string) ([]entry.Entry, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	args := make([]any, 0, len(ids)+1)
	args = append(args, blogID)
	for _, id := range ids {
		args = append(args, id)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	rows, err := o.q.QueryContext(ctx,
		`SELECT `+entryColumns+` FROM entries WHERE blog_id = ? AND id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	byID := make(map[string]entry.Entry, len(ids))
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		byID[e.ID] = e
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	out := make([]entry.Entry, 0, len(ids))
	for _, id := range ids {
		if e, ok := byID[id]; ok {
			out = append(out, e)
		}
	}
	return out, nil
}

// Scan returns up to limit entries with id greater than after, ordered by id.
func (o Ops) Scan(ctx context.Context, blogID, after string, limit int) ([]entry.Entry, error) {
	rows, err := o.q.QueryContext(ctx,
		`SELECT `+entryColumns+` FROM entries WHERE blog_id = ? AND id > ? ORDER BY id LIMIT ?`,
		blogID, after, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []entry.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
