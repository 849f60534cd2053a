// Package sqlitestore persists the local side of a feed session in SQLite:
// the mutation ledger, saved pager cursors and a cache of the last visible
// feed.
package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	_ "modernc.org/sqlite"

	"studly/internal/feed"
	"studly/internal/model"
)

// DB wraps the SQLite database.
type DB struct{ sql *sql.DB }

var _ feed.Recorder = (*DB)(nil)

func Open(path string) (*DB, error) {
	d, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite")
	}
	// one connection so ":memory:" databases are shared
	d.SetMaxOpenConns(1)
	if _, err := d.Exec(`PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL;`); err != nil {
		_ = d.Close()
		return nil, errors.Wrap(err, "sqlite pragmas")
	}
	db := &DB{sql: d}
	if err := db.migrate(); err != nil {
		_ = d.Close()
		return nil, errors.Wrap(err, "migrate")
	}
	return db, nil
}

func (d *DB) Close() error { return d.sql.Close() }

func (d *DB) migrate() error {
	_, err := d.sql.Exec(`
	CREATE TABLE IF NOT EXISTS mutations (
	  id INTEGER PRIMARY KEY AUTOINCREMENT,
	  ts INTEGER NOT NULL,
	  kind TEXT NOT NULL,
	  post_id TEXT NOT NULL,
	  target TEXT NOT NULL,
	  desired INTEGER NOT NULL,
	  error TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_mutations_ts ON mutations(ts);
	CREATE TABLE IF NOT EXISTS cursors (
	  name TEXT PRIMARY KEY,
	  value TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS cached_posts (
	  feed_key TEXT NOT NULL,
	  position INTEGER NOT NULL,
	  post_id TEXT NOT NULL,
	  payload TEXT NOT NULL,
	  cached_at INTEGER NOT NULL,
	  PRIMARY KEY (feed_key, position)
	);
	`)
	return err
}

// RecordMutation appends a settled mutation to the ledger.
func (d *DB) RecordMutation(ctx context.Context, r feed.MutationRecord) error {
	var msg *string
	if r.Err != nil {
		s := r.Err.Error()
		msg = &s
	}
	_, err := d.sql.ExecContext(ctx, `INSERT INTO mutations(ts, kind, post_id, target, desired, error) VALUES(?,?,?,?,?,?)`,
		r.At.UnixMilli(), string(r.Kind), r.PostID, r.Target, r.Desired, msg)
	return errors.Wrap(err, "insert mutation")
}

// Mutation is a row of the ledger.
type Mutation struct {
	At      time.Time
	Kind    feed.Kind
	PostID  string
	Target  string
	Desired bool
	Error   string
}

// RecentMutations returns up to limit ledger rows, newest first.
func (d *DB) RecentMutations(ctx context.Context, limit int) ([]Mutation, error) {
	rows, err := d.sql.QueryContext(ctx, `SELECT ts, kind, post_id, target, desired, COALESCE(error, '') FROM mutations ORDER BY ts DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "query mutations")
	}
	defer rows.Close()
	var out []Mutation
	for rows.Next() {
		var ts int64
		var m Mutation
		var kind string
		if err := rows.Scan(&ts, &kind, &m.PostID, &m.Target, &m.Desired, &m.Error); err != nil {
			return nil, errors.Wrap(err, "scan mutation")
		}
		m.At = time.UnixMilli(ts).UTC()
		m.Kind = feed.Kind(kind)
		out = append(out, m)
	}
	return out, rows.Err()
}

// CountMutationsWithin counts ledger rows in [start, end). An empty kind
// counts every kind; failedOnly restricts to rolled-back mutations.
func (d *DB) CountMutationsWithin(ctx context.Context, start, end time.Time, kind feed.Kind, failedOnly bool) (int, error) {
	q := `SELECT COUNT(*) FROM mutations WHERE ts>=? AND ts<?`
	args := []any{start.UnixMilli(), end.UnixMilli()}
	if kind != "" {
		q += ` AND kind=?`
		args = append(args, string(kind))
	}
	if failedOnly {
		q += ` AND error IS NOT NULL`
	}
	var n int
	if err := d.sql.QueryRowContext(ctx, q, args...).Scan(&n); err != nil {
		return 0, errors.Wrap(err, "count mutations")
	}
	return n, nil
}

// SaveCursor stores a named value, replacing any previous one.
func (d *DB) SaveCursor(ctx context.Context, name, value string) error {
	_, err := d.sql.ExecContext(ctx, `INSERT INTO cursors(name, value) VALUES(?, ?) ON CONFLICT(name) DO UPDATE SET value=excluded.value`, name, value)
	return errors.Wrap(err, "save cursor")
}

// LoadCursor returns the stored value, or "" when none was saved.
func (d *DB) LoadCursor(ctx context.Context, name string) (string, error) {
	var v string
	err := d.sql.QueryRowContext(ctx, `SELECT value FROM cursors WHERE name=?`, name).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return v, errors.Wrap(err, "load cursor")
}

// SavePosts replaces the cached feed under key with posts, in order.
func (d *DB) SavePosts(ctx context.Context, key string, posts []model.Post, at time.Time) error {
	tx, err := d.sql.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin")
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.ExecContext(ctx, `DELETE FROM cached_posts WHERE feed_key=?`, key); err != nil {
		return errors.Wrap(err, "clear cache")
	}
	for i, p := range posts {
		payload, err := json.Marshal(p)
		if err != nil {
			return errors.Wrapf(err, "encode post %s", p.ID)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO cached_posts(feed_key, position, post_id, payload, cached_at) VALUES(?,?,?,?,?)`,
			key, i, p.ID, string(payload), at.Unix()); err != nil {
			return errors.Wrapf(err, "cache post %s", p.ID)
		}
	}
	return errors.Wrap(tx.Commit(), "commit")
}

// LoadPosts returns the cached feed under key and when it was saved. The
// time is zero when nothing is cached.
func (d *DB) LoadPosts(ctx context.Context, key string) ([]model.Post, time.Time, error) {
	rows, err := d.sql.QueryContext(ctx, `SELECT payload, cached_at FROM cached_posts WHERE feed_key=? ORDER BY position`, key)
	if err != nil {
		return nil, time.Time{}, errors.Wrap(err, "query cache")
	}
	defer rows.Close()
	var out []model.Post
	var cachedAt int64
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload, &cachedAt); err != nil {
			return nil, time.Time{}, errors.Wrap(err, "scan cache")
		}
		var p model.Post
		if err := json.Unmarshal([]byte(payload), &p); err != nil {
			return nil, time.Time{}, errors.Wrap(err, "decode cached post")
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, time.Time{}, err
	}
	if len(out) == 0 {
		return nil, time.Time{}, nil
	}
	return out, time.Unix(cachedAt, 0).UTC(), nil
}
