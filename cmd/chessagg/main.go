// chessagg ingests monthly archives of chess games and reduces them to
// compact per-month counts keyed by opening code and rating bucket.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/lgbarn/chessagg/internal/config"
	cherrors "github.com/lgbarn/chessagg/internal/errors"
	"github.com/lgbarn/chessagg/internal/ingestctl"
	"github.com/lgbarn/chessagg/internal/logx"
	"github.com/lgbarn/chessagg/internal/monthindex"
	"github.com/lgbarn/chessagg/internal/store"

	_ "github.com/lgbarn/chessagg/internal/store/pgstore"
	_ "github.com/lgbarn/chessagg/internal/store/sqlitestore"
)

const programVersion = "0.1.0"

func main() {
	flag.Usage = usage
	flag.Parse()

	if *version {
		fmt.Printf("chessagg version %s\n", programVersion)
		os.Exit(0)
	}

	cfg := config.NewConfig()
	applyFlags(cfg)

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "chessagg: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log := logx.New(logx.Level(cfg.Verbosity))

	var st store.Store
	if cfg.Save && !cfg.DryRun {
		var err error
		st, err = store.Open(ctx, cfg.DatabaseURL, cfg.MaxConnections)
		if err != nil {
			fmt.Fprintf(os.Stderr, "chessagg: %v\n", err)
			os.Exit(1)
		}
		defer st.Close()
		if err := st.Migrate(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "chessagg: %v\n", err)
			os.Exit(1)
		}
	}

	ctl := ingestctl.New(cfg, st, log)

	exitCode := 0
	if cfg.Remote {
		exitCode = runRemote(ctx, ctl, log)
	} else {
		exitCode = runLocal(ctx, ctl, log, flag.Args())
	}
	os.Exit(exitCode)
}

func runLocal(ctx context.Context, ctl *ingestctl.Controller, log *logx.Logger, paths []string) int {
	if len(paths) == 0 {
		fmt.Fprintln(os.Stderr, "chessagg: no archive files given (see -h)")
		return 1
	}

	exitCode := 0
	for _, path := range paths {
		month := monthindex.MonthFromName(path)
		if month == "" {
			fmt.Fprintf(os.Stderr, "chessagg: %s: could not determine month (expected YYYY-MM in filename)\n", path)
			exitCode = 1
			continue
		}
		res, err := ctl.RunLocalFile(ctx, path, month)
		if err != nil {
			fmt.Fprintf(os.Stderr, "chessagg: %s: %v\n", path, err)
			if !errors.Is(err, cherrors.ErrCancel) {
				exitCode = 1
			}
			continue
		}
		log.Summaryf("%s: %d games counted of %d seen in %s (%d frame errors)",
			path, res.GamesCounted, res.GamesSeen, res.Elapsed, res.FrameErrors)
	}
	return exitCode
}

func runRemote(ctx context.Context, ctl *ingestctl.Controller, log *logx.Logger) int {
	results, err := ctl.RunRemote(ctx, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "chessagg: %v\n", err)
		if errors.Is(err, cherrors.ErrCancel) {
			return 0
		}
		return 1
	}

	exitCode := 0
	for _, res := range results {
		if res.Err != nil {
			fmt.Fprintf(os.Stderr, "chessagg: month %s (%s): %v\n", res.Month, res.URL, res.Err)
			if !errors.Is(res.Err, cherrors.ErrCancel) {
				exitCode = 1
			}
		}
	}
	return exitCode
}

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: chessagg [options] [archive-files...]\n\n")
	fmt.Fprintf(os.Stderr, "Ingests monthly chess-game archives and reduces them to per-month\n")
	fmt.Fprintf(os.Stderr, "counts keyed by opening code and rating bucket.\n\n")
	fmt.Fprintf(os.Stderr, "Options:\n")
	flag.PrintDefaults()
	fmt.Fprintf(os.Stderr, "\nEnvironment:\n")
	fmt.Fprintf(os.Stderr, "  DATABASE_URL         store DSN, scheme selects backend (sqlite://, postgres://)\n")
	fmt.Fprintf(os.Stderr, "  DB_MAX_CONNECTIONS   connection pool cap (default 10)\n")
}
