// Package sqlitestore implements the embedded single-file store backend
// on top of modernc.org/sqlite, a pure-Go database/sql driver that needs
// no cgo toolchain.
package sqlitestore

import (
	"context"
	"database/sql"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/lgbarn/chessagg/internal/aggregate"
	cherrors "github.com/lgbarn/chessagg/internal/errors"
	"github.com/lgbarn/chessagg/internal/store"
)

func init() {
	store.Register("sqlite", Open)
}

// Store is the embedded single-file backend.
type Store struct {
	db *sql.DB
}

// Open opens (creating if absent) the sqlite file named by dsn, the
// DATABASE_URL; its "sqlite://" scheme prefix is stripped here.
func Open(ctx context.Context, dsn string, maxConns int) (store.Store, error) {
	path := strings.TrimPrefix(dsn, "sqlite://")
	if path == "" {
		return nil, cherrors.Wrap(cherrors.ErrConfig, "sqlite DATABASE_URL has no file path")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, cherrors.Wrapf(cherrors.ErrDB, "open sqlite store %s: %v", path, err)
	}
	if maxConns > 0 {
		db.SetMaxOpenConns(maxConns)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, cherrors.Wrapf(cherrors.ErrDB, "ping sqlite store %s: %v", path, err)
	}
	return &Store{db: db}, nil
}

// Migrate creates the aggregates and ingestions tables if absent.
func (s *Store) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS aggregates (
			month TEXT NOT NULL,
			eco_group TEXT NOT NULL,
			white_bucket INTEGER NOT NULL,
			black_bucket INTEGER NOT NULL,
			games INTEGER NOT NULL,
			white_wins INTEGER NOT NULL,
			black_wins INTEGER NOT NULL,
			draws INTEGER NOT NULL,
			PRIMARY KEY (month, eco_group, white_bucket, black_bucket)
		)`,
		`CREATE TABLE IF NOT EXISTS ingestions (
			month TEXT PRIMARY KEY,
			url TEXT NOT NULL,
			started_at TEXT NOT NULL,
			finished_at TEXT,
			games INTEGER NOT NULL DEFAULT 0,
			duration_ms INTEGER NOT NULL DEFAULT 0,
			status TEXT NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return cherrors.Wrapf(cherrors.ErrDB, "migrate: %v", err)
		}
	}
	return nil
}

// Persist marks month started in its own committed statement (so the
// started/failed bookkeeping survives a rollback of the counter
// transaction below), then upserts every counter and marks success inside
// one transaction. Any failure in that transaction rolls it back and
// best-effort marks the month failed outside it.
func (s *Store) Persist(ctx context.Context, month, sourceURL string, m aggregate.Map, gamesCounted int, elapsed time.Duration, batchRows int) error {
	if err := s.markStarted(ctx, month, sourceURL); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		s.MarkFailed(ctx, month, sourceURL)
		return cherrors.Wrapf(cherrors.ErrDB, "begin transaction for %s: %v", month, err)
	}

	if err := s.upsertCounters(ctx, tx, m, batchRows); err != nil {
		tx.Rollback()
		s.MarkFailed(ctx, month, sourceURL)
		return err
	}

	if err := s.markSuccess(ctx, tx, month, gamesCounted, elapsed); err != nil {
		tx.Rollback()
		s.MarkFailed(ctx, month, sourceURL)
		return err
	}

	if err := tx.Commit(); err != nil {
		s.MarkFailed(ctx, month, sourceURL)
		return cherrors.Wrapf(cherrors.ErrDB, "commit %s: %v", month, err)
	}
	return nil
}

// markStarted records month as started in its own statement, outside any
// later transaction, so the row exists even if that transaction rolls back.
func (s *Store) markStarted(ctx context.Context, month, sourceURL string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ingestions (month, url, started_at, status)
		VALUES (?, ?, ?, 'started')
		ON CONFLICT(month) DO UPDATE SET
			url = excluded.url,
			started_at = excluded.started_at,
			status = 'started'
	`, month, sourceURL, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return cherrors.Wrapf(cherrors.ErrDB, "mark %s started: %v", month, err)
	}
	return nil
}

func (s *Store) upsertCounters(ctx context.Context, tx *sql.Tx, m aggregate.Map, batchRows int) error {
	if batchRows <= 0 {
		batchRows = 1000
	}
	keys := store.SortedKeys(m)
	for start := 0; start < len(keys); start += batchRows {
		end := start + batchRows
		if end > len(keys) {
			end = len(keys)
		}
		if err := s.upsertBatch(ctx, tx, m, keys[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) upsertBatch(ctx context.Context, tx *sql.Tx, m aggregate.Map, keys []aggregate.Key) error {
	var sb strings.Builder
	sb.WriteString(`INSERT INTO aggregates (month, eco_group, white_bucket, black_bucket, games, white_wins, black_wins, draws) VALUES `)
	args := make([]interface{}, 0, len(keys)*8)
	for i, k := range keys {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("(?, ?, ?, ?, ?, ?, ?, ?)")
		c := m[k]
		args = append(args, k.Month, k.EcoGroup, k.WhiteBucket, k.BlackBucket, c.Games, c.WhiteWins, c.BlackWins, c.Draws)
	}
	sb.WriteString(` ON CONFLICT(month, eco_group, white_bucket, black_bucket) DO UPDATE SET
		games = aggregates.games + excluded.games,
		white_wins = aggregates.white_wins + excluded.white_wins,
		black_wins = aggregates.black_wins + excluded.black_wins,
		draws = aggregates.draws + excluded.draws`)

	if _, err := tx.ExecContext(ctx, sb.String(), args...); err != nil {
		return cherrors.Wrapf(cherrors.ErrDB, "upsert counters batch: %v", err)
	}
	return nil
}

func (s *Store) markSuccess(ctx context.Context, tx *sql.Tx, month string, games int, elapsed time.Duration) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE ingestions SET status = 'success', finished_at = ?, games = ?, duration_ms = ?
		WHERE month = ?
	`, time.Now().UTC().Format(time.RFC3339), games, elapsed.Milliseconds(), month)
	if err != nil {
		return cherrors.Wrapf(cherrors.ErrDB, "mark %s success: %v", month, err)
	}
	return nil
}

// MarkFailed records month as failed, inserting a minimal row if one
// doesn't already exist (e.g. the run was cancelled before markStarted
// ever ran). Exported so the controller can call it directly when a
// month's pipeline aborts outside of Persist, such as on cancellation.
func (s *Store) MarkFailed(ctx context.Context, month, sourceURL string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ingestions (month, url, started_at, status)
		VALUES (?, ?, ?, 'failed')
		ON CONFLICT(month) DO UPDATE SET status = 'failed'
	`, month, sourceURL, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return cherrors.Wrapf(cherrors.ErrDB, "mark %s failed: %v", month, err)
	}
	return nil
}

// SuccessMonths returns every month whose ingestion row has status =
// success.
func (s *Store) SuccessMonths(ctx context.Context) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT month FROM ingestions WHERE status = 'success'`)
	if err != nil {
		return nil, cherrors.Wrapf(cherrors.ErrDB, "query success months: %v", err)
	}
	defer rows.Close()

	done := make(map[string]bool)
	for rows.Next() {
		var month string
		if err := rows.Scan(&month); err != nil {
			return nil, cherrors.Wrapf(cherrors.ErrDB, "scan success month: %v", err)
		}
		done[month] = true
	}
	if err := rows.Err(); err != nil {
		return nil, cherrors.Wrapf(cherrors.ErrDB, "iterate success months: %v", err)
	}
	return done, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}
