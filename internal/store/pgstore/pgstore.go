// Package pgstore implements the remote-server store backend on top of
// PostgreSQL via github.com/lib/pq, a pure-Go database/sql driver.
package pgstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/lgbarn/chessagg/internal/aggregate"
	cherrors "github.com/lgbarn/chessagg/internal/errors"
	"github.com/lgbarn/chessagg/internal/store"
)

func init() {
	store.Register("postgres", Open)
}

// Store is the remote PostgreSQL backend.
type Store struct {
	db *sql.DB
}

// Open connects to the PostgreSQL server named by dsn (a full
// "postgres://" URL, passed straight through to lib/pq).
func Open(ctx context.Context, dsn string, maxConns int) (store.Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, cherrors.Wrapf(cherrors.ErrDB, "open postgres store: %v", err)
	}
	if maxConns > 0 {
		db.SetMaxOpenConns(maxConns)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, cherrors.Wrapf(cherrors.ErrDB, "ping postgres store: %v", err)
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
			games BIGINT NOT NULL,
			white_wins BIGINT NOT NULL,
			black_wins BIGINT NOT NULL,
			draws BIGINT NOT NULL,
			PRIMARY KEY (month, eco_group, white_bucket, black_bucket)
		)`,
		`CREATE TABLE IF NOT EXISTS ingestions (
			month TEXT PRIMARY KEY,
			url TEXT NOT NULL,
			started_at TIMESTAMPTZ NOT NULL,
			finished_at TIMESTAMPTZ,
			games BIGINT NOT NULL DEFAULT 0,
			duration_ms BIGINT NOT NULL DEFAULT 0,
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
		VALUES ($1, $2, $3, 'started')
		ON CONFLICT (month) DO UPDATE SET
			url = excluded.url,
			started_at = excluded.started_at,
			status = 'started'
	`, month, sourceURL, time.Now().UTC())
	if err != nil {
		return cherrors.Wrapf(cherrors.ErrDB, "mark %s started: %v", month, err)
	}
	return nil
}

// upsertCounters batches keys to respect PostgreSQL's per-statement
// parameter limit (65535): batchRows rows of 8 columns each must stay
// comfortably under that.
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
		base := i * 8
		fmt.Fprintf(&sb, "($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8)
		c := m[k]
		args = append(args, k.Month, k.EcoGroup, k.WhiteBucket, k.BlackBucket, c.Games, c.WhiteWins, c.BlackWins, c.Draws)
	}
	sb.WriteString(` ON CONFLICT (month, eco_group, white_bucket, black_bucket) DO UPDATE SET
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
		UPDATE ingestions SET status = 'success', finished_at = $1, games = $2, duration_ms = $3
		WHERE month = $4
	`, time.Now().UTC(), games, elapsed.Milliseconds(), month)
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
		VALUES ($1, $2, $3, 'failed')
		ON CONFLICT (month) DO UPDATE SET status = 'failed'
	`, month, sourceURL, time.Now().UTC())
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
