// Package config holds run configuration and defaults for the ingest
// pipeline. Command-line flag parsing and environment lookups live in
// cmd/chessagg and are merged into Config there; this package only
// defines the struct, its defaults, and its validation.
package config

import (
	"io"

	cherrors "github.com/lgbarn/chessagg/internal/errors"
)

// Config holds all parameters for one ingest run.
type Config struct {
	// BucketSize is the width of the rating-bucket interval used to group
	// player ratings into buckets.
	BucketSize int

	// BatchSize is the number of games per aggregation batch handed to a
	// worker.
	BatchSize int

	// WorkerCount is the number of aggregation worker goroutines. Zero
	// means "use runtime.NumCPU()"; resolved by the caller.
	WorkerCount int

	// DBBatchRows is the number of upsert rows grouped into a single
	// statement when persisting to the store; all of a month's statements
	// share one transaction.
	DBBatchRows int

	// Verbosity controls progress output (0=silent, 1=summary, 2=verbose).
	Verbosity int

	// Save enables persisting aggregates to the store.
	Save bool

	// DryRun runs the full parse+aggregate pipeline without touching the store.
	DryRun bool

	// Remote selects remote (archive-index) ingest mode instead of local-file mode.
	Remote bool

	// Until is an optional inclusive upper month bound ("YYYY-MM") for remote mode.
	Until string

	// ListURL is the archive index endpoint for remote mode.
	ListURL string

	// Out is the tabular output destination: a file in local mode, or a
	// directory/base filename in remote mode.
	Out string

	// DatabaseURL selects the store backend by scheme, e.g. "sqlite://"
	// for the embedded store or "postgres://" for the remote store.
	DatabaseURL string

	// MaxConnections caps the store connection pool size.
	MaxConnections int

	// LogFile is an optional progress-output writer. Nothing in this
	// module reads it; logx writes progress output to os.Stderr.
	LogFile io.Writer
}

// Default parameter values for a run that doesn't override them.
const (
	DefaultBucketSize     = 200
	DefaultBatchSize      = 1000
	DefaultDBBatchRows    = 1000
	DefaultMaxConnections = 10
)

// NewConfig creates a Config populated with reasonable defaults for a
// single-host local run.
func NewConfig() *Config {
	return &Config{
		BucketSize:     DefaultBucketSize,
		BatchSize:      DefaultBatchSize,
		DBBatchRows:    DefaultDBBatchRows,
		Verbosity:      1,
		MaxConnections: DefaultMaxConnections,
	}
}

// Validate checks for configuration combinations that cannot produce a
// correct run, returning a config-kind error when one is found.
func (c *Config) Validate() error {
	if c.BucketSize <= 0 {
		return cherrors.Wrap(cherrors.ErrConfig, "bucket size must be positive")
	}
	if c.BatchSize <= 0 {
		return cherrors.Wrap(cherrors.ErrConfig, "batch size must be positive")
	}
	if c.DBBatchRows <= 0 {
		return cherrors.Wrap(cherrors.ErrConfig, "db batch rows must be positive")
	}
	if c.Save && c.DatabaseURL == "" {
		return cherrors.Wrap(cherrors.ErrConfig, "--save requires DATABASE_URL to be set")
	}
	if c.Remote && c.ListURL == "" {
		return cherrors.Wrap(cherrors.ErrConfig, "remote mode requires a list URL")
	}
	return nil
}
