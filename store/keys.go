package store

import (
	"context"
	"database/sql"
	"errors"
)

// Order selects how ZRange walks an ordered set.
type Order int

const (
	// ByScore orders by score, then member, ascending.
	ByScore Order = iota
	// ByScoreDesc orders by score, then member, descending.
	ByScoreDesc
	// ByCount orders by score descending with ties by member ascending.
	ByCount
	// ByMember orders lexically by member.
	ByMember
	// ByMemberDesc orders lexically by member, descending.
	ByMemberDesc
)

func (o Order) clause() string {
	switch o {
	case ByScoreDesc:
		return "score DESC, member DESC"
	case ByCount:
		return "score DESC, member ASC"
	case ByMember:
		return "member ASC"
	case ByMemberDesc:
		return "member DESC"
	}
	return "score ASC, member ASC"
}

// Range is a window over an ordered set. A Limit of zero or less means no limit.
type Range struct {
	Order  Order
	Offset int
	Limit  int
}

// ScoredMember is one element of an ordered set.
type ScoredMember struct {
	Member string
	Score  int64
}

// ZAdd inserts member or updates its score.
func (o Ops) ZAdd(ctx context.Context, key, member string, score int64) error {
	_, err := o.q.ExecContext(ctx,
		`INSERT INTO zsets (key, member, score) VALUES (?, ?, ?)
		 ON CONFLICT(key, member) DO UPDATE SET score = excluded.score`,
		key, member, score)
	return err
}

// ZRem removes members from an ordered set.
func (o Ops) ZRem(ctx context.Context, key string, members ...string) error {
	for _, m := range members {
		if _, err := o.q.ExecContext(ctx, `DELETE FROM zsets WHERE key = ? AND member = ?`, key, m); err != nil {
			return err
		}
	}
	return nil
}

// ZScore returns the score of member.
func (o Ops) ZScore(ctx context.Context, key, member string) (int64, bool, error) {
	var score int64
	err := o.q.QueryRowContext(ctx, `SELECT score FROM zsets WHERE key = ? AND member = ?`, key, member).Scan(&score)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return score, true, nil
}

// ZRank returns the 0-based ascending position of member, ordered by score
// then member.
func (o Ops) ZRank(ctx context.Context, key, member string) (int64, bool, error) {
	score, ok, err := o.ZScore(ctx, key, member)
	if err != nil || !ok {
		return 0, false, err
	}
	var rank int64
	err = o.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM zsets WHERE key = ? AND (score < ? OR (score = ? AND member < ?))`,
		key, score, score, member).Scan(&rank)
	if err != nil {
		return 0, false, err
	}
	return rank, true, nil
}

// ZCard returns the number of members in an ordered set.
func (o Ops) ZCard(ctx context.Context, key string) (int64, error) {
	var n int64
	err := o.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM zsets WHERE key = ?`, key).Scan(&n)
	return n, err
}

// ZRange returns a window of an ordered set.
func (o Ops) ZRange(ctx context.Context, key string, r Range) ([]ScoredMember, error) {
	limit := r.Limit
	if limit <= 0 {
		limit = -1
	}
	offset := r.Offset
	if offset < 0 {
		offset = 0
	}
	rows, err := o.q.QueryContext(ctx,
		`SELECT member, score FROM zsets WHERE key = ? ORDER BY `+r.Order.clause()+` LIMIT ? OFFSET ?`,
		key, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ScoredMember
	for rows.Next() {
		var m ScoredMember
		if err := rows.Scan(&m.Member, &m.Score); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// ZRangeByScore returns members with score in [min, max] ascending, at most limit.
func (o Ops) ZRangeByScore(ctx context.Context, key string, min, max int64, limit int) ([]ScoredMember, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := o.q.QueryContext(ctx,
		`SELECT member, score FROM zsets WHERE key = ? AND score BETWEEN ? AND ? ORDER BY score ASC, member ASC LIMIT ?`,
		key, min, max, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ScoredMember
	for rows.Next() {
		var m ScoredMember
		if err := rows.Scan(&m.Member, &m.Score); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// SAdd adds members to a set.
func (o Ops) SAdd(ctx context.Context, key string, members ...string) error {
	for _, m := range members {
		if _, err := o.q.ExecContext(ctx, `INSERT OR IGNORE INTO sets (key, member) VALUES (?, ?)`, key, m); err != nil {
			return err
		}
	}
	return nil
}

// SRem removes members from a set.
func (o Ops) SRem(ctx context.Context, key string, members ...string) error {
	for _, m := range members {
		if _, err := o.q.ExecContext(ctx, `DELETE FROM sets WHERE key = ? AND member = ?`, key, m); err != nil {
			return err
		}
	}
	return nil
}

// SMembers returns the members of a set in lexical order.
func (o Ops) SMembers(ctx context.Context, key string) ([]string, error) {
	return o.strings(ctx, `SELECT member FROM sets WHERE key = ? ORDER BY member`, key)
}

// SIsMember reports whether member is in the set.
func (o Ops) SIsMember(ctx context.Context, key, member string) (bool, error) {
	var one int
	err := o.q.QueryRowContext(ctx, `SELECT 1 FROM sets WHERE key = ? AND member = ?`, key, member).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

// SCard returns the size of a set.
func (o Ops) SCard(ctx context.Context, key string) (int64, error) {
	var n int64
	err := o.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM sets WHERE key = ?`, key).Scan(&n)
	return n, err
}

// HGet returns one field of a hash.
func (o Ops) HGet(ctx context.Context, key, field string) (string, bool, error) {
	var v string
	err := o.q.QueryRowContext(ctx, `SELECT value FROM hashes WHERE key = ? AND field = ?`, key, field).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

// HSet sets one field of a hash.
func (o Ops) HSet(ctx context.Context, key, field, value string) error {
	_, err := o.q.ExecContext(ctx,
		`INSERT INTO hashes (key, field, value) VALUES (?, ?, ?)
		 ON CONFLICT(key, field) DO UPDATE SET value = excluded.value`,
		key, field, value)
	return err
}

// HSetNX sets a field only if it is not already present.
func (o Ops) HSetNX(ctx context.Context, key, field, value string) (bool, error) {
	res, err := o.q.ExecContext(ctx, `INSERT OR IGNORE INTO hashes (key, field, value) VALUES (?, ?, ?)`, key, field, value)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// HDel removes fields from a hash.
func (o Ops) HDel(ctx context.Context, key string, fields ...string) error {
	for _, f := range fields {
		if _, err := o.q.ExecContext(ctx, `DELETE FROM hashes WHERE key = ? AND field = ?`, key, f); err != nil {
			return err
		}
	}
	return nil
}

// HGetAll returns every field of a hash.
func (o Ops) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	rows, err := o.q.QueryContext(ctx, `SELECT field, value FROM hashes WHERE key = ?`, key)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var f, v string
		if err := rows.Scan(&f, &v); err != nil {
			return nil, err
		}
		out[f] = v
	}
	return out, rows.Err()
}

var structures = []string{"zsets", "sets", "hashes"}

// Del removes keys of any kind.
func (o Ops) Del(ctx context.Context, keys ...string) error {
	for _, k := range keys {
		for _, table := range structures {
			if _, err := o.q.ExecContext(ctx, `DELETE FROM `+table+` WHERE key = ?`, k); err != nil {
				return err
			}
		}
	}
	return nil
}

// Rename replaces dst with the contents of src and removes src. Run it inside
// Update for readers to see either the old or the new dst, never a mix.
func (o Ops) Rename(ctx context.Context, src, dst string) error {
	if src == dst {
		return nil
	}
	if err := o.Del(ctx, dst); err != nil {
		return err
	}
	for _, table := range structures {
		if _, err := o.q.ExecContext(ctx, `UPDATE `+table+` SET key = ? WHERE key = ?`, dst, src); err != nil {
			return err
		}
	}
	return nil
}

// Keys returns the distinct keys starting with prefix.
func (o Ops) Keys(ctx context.Context, prefix string) ([]string, error) {
	return o.strings(ctx, `
SELECT key FROM zsets WHERE instr(key, ?) = 1
UNION SELECT key FROM sets WHERE instr(key, ?) = 1
UNION SELECT key FROM hashes WHERE instr(key, ?) = 1
ORDER BY key`, prefix, prefix, prefix)
}

func (o Ops) strings(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := o.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
