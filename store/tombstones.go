package store

import (
	"context"
	"database/sql"
	"errors"
)

// Tombstone remembers the identity of a removed entry by content fingerprint.
type Tombstone struct {
	Fingerprint string
	ID          string
	Path        string
	DateStamp   int64
	ExpiresAt   int64
}

// PutTombstone records t, replacing any tombstone with the same fingerprint.
func (o Ops) PutTombstone(ctx context.Context, blogID string, t Tombstone) error {
	_, err := o.q.ExecContext(ctx, `
INSERT INTO tombstones (blog_id, fingerprint, id, path, date_stamp, expires_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(blog_id, fingerprint) DO UPDATE SET
    id = excluded.id,
    path = excluded.path,
    date_stamp = excluded.date_stamp,
    expires_at = excluded.expires_at`,
		blogID, t.Fingerprint, t.ID, t.Path, t.DateStamp, t.ExpiresAt)
	return err
}

// TakeTombstone removes and returns the unexpired tombstone for fingerprint.
// Expired tombstones of the blog are discarded on the way.
func (o Ops) TakeTombstone(ctx context.Context, blogID, fingerprint string, now int64) (*Tombstone, error) {
	if _, err := o.q.ExecContext(ctx,
		`DELETE FROM tombstones WHERE blog_id = ? AND expires_at <= ?`, blogID, now); err != nil {
		return nil, err
	}
	t := Tombstone{Fingerprint: fingerprint}
	err := o.q.QueryRowContext(ctx,
		`SELECT id, path, date_stamp, expires_at FROM tombstones WHERE blog_id = ? AND fingerprint = ?`,
		blogID, fingerprint).Scan(&t.ID, &t.Path, &t.DateStamp, &t.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if _, err := o.q.ExecContext(ctx,
		`DELETE FROM tombstones WHERE blog_id = ? AND fingerprint = ?`, blogID, fingerprint); err != nil {
		return nil, err
	}
	return &t, nil
}

// PruneTombstones drops every expired tombstone and returns how many went.
func (o Ops) PruneTombstones(ctx context.Context, now int64) (int64, error) {
	res, err := o.q.ExecContext(ctx, `DELETE FROM tombstones WHERE expires_at <= ?`, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
