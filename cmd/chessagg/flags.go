// flags.go - command-line flag definitions and configuration merging.
package main

import (
	"flag"
	"os"
	"strconv"

	"github.com/lgbarn/chessagg/internal/config"
)

var (
	remote  = flag.Bool("remote", false, "Ingest from the remote archive index instead of local files")
	until   = flag.String("until", "", "Inclusive upper month bound YYYY-MM for remote mode")
	out     = flag.String("out", "", "Tabular output path (file in local mode, dir or base filename in remote mode)")
	listURL = flag.String("list-url", "", "Archive list endpoint for remote mode")
	save    = flag.Bool("save", false, "Persist aggregates to the store named by DATABASE_URL")
	dryRun  = flag.Bool("dry-run", false, "Run the full parse+aggregate pipeline without touching the store")
	verbose = flag.Int("v", 1, "Verbosity: 0=silent, 1=summary, 2=verbose")
	version = flag.Bool("version", false, "Print the version and exit")
)

// applyFlags merges parsed flags and environment variables into cfg:
// flags win, environment fills in what flags don't cover.
func applyFlags(cfg *config.Config) {
	cfg.Remote = *remote
	cfg.Until = *until
	cfg.Out = *out
	cfg.ListURL = *listURL
	cfg.Save = *save
	cfg.DryRun = *dryRun
	cfg.Verbosity = *verbose

	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		cfg.DatabaseURL = dbURL
	}
	if maxConns := os.Getenv("DB_MAX_CONNECTIONS"); maxConns != "" {
		if n, err := strconv.Atoi(maxConns); err == nil && n > 0 {
			cfg.MaxConnections = n
		}
	}
}
