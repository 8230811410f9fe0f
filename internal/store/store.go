// Package store defines the persistence contract shared by the embedded
// and remote backends. Each backend registers itself by DSN scheme (the
// same pattern database/sql itself uses for drivers) so the controller
// never imports a concrete backend directly.
package store

import (
	"context"
	"net/url"
	"sort"
	"time"

	"github.com/lgbarn/chessagg/internal/aggregate"
	cherrors "github.com/lgbarn/chessagg/internal/errors"
)

// Store is the contract both backends implement. A Store owns exactly one
// underlying connection (pool); the controller is the sole caller and
// never touches it concurrently across months.
type Store interface {
	// Migrate creates the aggregates and ingestions tables if they don't
	// already exist.
	Migrate(ctx context.Context) error

	// Persist upserts m's counters for month and records the month's
	// ingestion bookkeeping row. It first marks the month started in its
	// own committed statement, then inside a single transaction adds every
	// counter additively (insert on absence) and marks the month success
	// with the given games count and elapsed duration. On an error after
	// the started row is written, the transaction (if open) is rolled back
	// and the month is separately marked failed.
	Persist(ctx context.Context, month, sourceURL string, m aggregate.Map, gamesCounted int, elapsed time.Duration, batchRows int) error

	// SuccessMonths returns the set of months whose ingestion row has
	// status = success, for the controller's remote-mode skip policy.
	SuccessMonths(ctx context.Context) (map[string]bool, error)

	// MarkFailed records month as failed, inserting a minimal ingestion
	// row if one doesn't already exist. The controller calls this
	// directly when a month's pipeline aborts before Persist ever runs
	// (e.g. run cancellation), so a failed month always leaves a row.
	MarkFailed(ctx context.Context, month, sourceURL string) error

	// Close releases the underlying connection pool.
	Close() error
}

// Factory constructs a Store from a DSN and a connection-pool size cap.
type Factory func(ctx context.Context, dsn string, maxConns int) (Store, error)

var registry = make(map[string]Factory)

// Register associates a DSN scheme (e.g. "sqlite", "postgres") with a
// Factory. Backend packages call this from an init() function.
func Register(scheme string, f Factory) {
	registry[scheme] = f
}

// Open parses databaseURL's scheme, looks up the matching registered
// backend, and opens it. The caller is responsible for blank-importing
// the backend package(s) it wants available beforehand.
func Open(ctx context.Context, databaseURL string, maxConns int) (Store, error) {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return nil, cherrors.Wrapf(cherrors.ErrConfig, "parse DATABASE_URL: %v", err)
	}
	factory, ok := registry[u.Scheme]
	if !ok {
		return nil, cherrors.Wrapf(cherrors.ErrConfig, "no store backend registered for scheme %q", u.Scheme)
	}
	return factory(ctx, databaseURL, maxConns)
}

// SortedKeys returns m's keys in (month, eco_group, white_bucket,
// black_bucket) ascending order, the same ordering the tabular emitter
// uses and the order backends batch upserts in so that row order is
// deterministic for a given map.
func SortedKeys(m aggregate.Map) []aggregate.Key {
	keys := make([]aggregate.Key, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := keys[i], keys[j]
		if a.Month != b.Month {
			return a.Month < b.Month
		}
		if a.EcoGroup != b.EcoGroup {
			return a.EcoGroup < b.EcoGroup
		}
		if a.WhiteBucket != b.WhiteBucket {
			return a.WhiteBucket < b.WhiteBucket
		}
		return a.BlackBucket < b.BlackBucket
	})
	return keys
}
