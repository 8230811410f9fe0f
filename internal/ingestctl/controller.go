// Package ingestctl orchestrates one ingest run: local-file mode runs the
// pipeline once against a given archive, remote mode walks the archive
// index oldest-to-newest, skipping months already marked success.
package ingestctl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lgbarn/chessagg/internal/aggregate"
	"github.com/lgbarn/chessagg/internal/config"
	cherrors "github.com/lgbarn/chessagg/internal/errors"
	"github.com/lgbarn/chessagg/internal/frame"
	"github.com/lgbarn/chessagg/internal/ingest"
	"github.com/lgbarn/chessagg/internal/logx"
	"github.com/lgbarn/chessagg/internal/monthindex"
	"github.com/lgbarn/chessagg/internal/store"
	"github.com/lgbarn/chessagg/internal/tabular"
)

// MonthResult summarizes one month's run, returned for the caller's
// summary line and for tests.
type MonthResult struct {
	Month        string
	URL          string
	GamesSeen    int
	GamesCounted int
	FrameErrors  int
	Elapsed      time.Duration
	Err          error
}

// Controller ties the pipeline stages together under one configuration.
type Controller struct {
	cfg *config.Config
	st  store.Store // nil when neither --save nor resume bookkeeping is needed
	log *logx.Logger
}

// New builds a Controller. st may be nil when cfg.Save is false and the
// caller isn't resuming from bookkeeping (i.e. dry-run, local-file mode).
func New(cfg *config.Config, st store.Store, log *logx.Logger) *Controller {
	if log == nil {
		log = logx.New(logx.Level(cfg.Verbosity))
	}
	return &Controller{cfg: cfg, st: st, log: log}
}

// RunLocalFile runs the pipeline once against a local archive file. month
// is injected by the caller (derived from the filename, or supplied
// explicitly) since it is never itself a PGN tag.
func (c *Controller) RunLocalFile(ctx context.Context, path, month string) (MonthResult, error) {
	src, err := ingest.OpenFile(path)
	if err != nil {
		err = wrapRunErr(err, month, path)
		c.markMonthFailed(month, path)
		return MonthResult{Month: month, URL: path, Err: err}, err
	}
	return c.runOne(ctx, src, month, path)
}

// RunRemote fetches the archive index, applies the skip/until filters,
// and runs the pipeline for every remaining month oldest-to-newest. A
// failure fetching the index or loading the success set aborts the run
// before any month starts. A month whose run fails is recorded in its
// MonthResult and the loop continues with the next month; cancellation
// seen between months ends the loop with an ErrCancel error.
func (c *Controller) RunRemote(ctx context.Context, httpClient *http.Client) ([]MonthResult, error) {
	entries, err := monthindex.Fetch(ctx, httpClient, c.cfg.ListURL)
	if err != nil {
		return nil, err
	}

	if c.cfg.Save && c.st != nil {
		done, err := c.st.SuccessMonths(ctx)
		if err != nil {
			return nil, err
		}
		entries = monthindex.FilterSkip(entries, done)
	}
	entries = monthindex.FilterUntil(entries, c.cfg.Until)

	var results []MonthResult
	for _, e := range entries {
		select {
		case <-ctx.Done():
			return results, cherrors.Wrapf(cherrors.ErrCancel, "run cancelled: %v", ctx.Err())
		default:
		}

		src, err := ingest.OpenHTTP(ctx, httpClient, e.URL)
		if err != nil {
			err = wrapRunErr(err, e.Month, e.URL)
			c.markMonthFailed(e.Month, e.URL)
			results = append(results, MonthResult{Month: e.Month, URL: e.URL, Err: err})
			c.log.Summaryf("month %s failed: %v", e.Month, err)
			continue
		}

		res, err := c.runOne(ctx, src, e.Month, e.URL)
		results = append(results, res)
		if err != nil {
			c.log.Summaryf("month %s failed: %v", e.Month, err)
			continue
		}
		c.log.Summaryf("month %s: %d games counted of %d seen (%s)", e.Month, res.GamesCounted, res.GamesSeen, res.Elapsed)
	}
	return results, nil
}

// runOne drives decompression, framing, header extraction, and
// aggregation for a single source, then persists and/or emits the result
// per configuration.
func (c *Controller) runOne(ctx context.Context, src ingest.Source, month, sourceURL string) (MonthResult, error) {
	start := time.Now()
	defer src.Close()

	dec, err := ingest.NewDecompressor(src)
	if err != nil {
		err = wrapRunErr(err, month, sourceURL)
		c.markMonthFailed(month, sourceURL)
		return MonthResult{Month: month, URL: sourceURL, Err: err}, err
	}
	defer dec.Close()

	framer := frame.NewFramer(dec)

	next := func() (frame.Header, bool, error) {
		game, err := framer.Next()
		if err == io.EOF {
			return frame.Header{}, false, nil
		}
		if err != nil {
			return frame.Header{}, false, err
		}
		return frame.ExtractHeader(game, month), true, nil
	}

	c.log.Verbosef("month %s: aggregating (batch size %d, workers %d)", month, c.cfg.BatchSize, c.cfg.WorkerCount)

	m, gamesSeen, gamesCounted, err := aggregate.Run(ctx, next, aggregate.Options{
		BucketSize:  c.cfg.BucketSize,
		BatchSize:   c.cfg.BatchSize,
		WorkerCount: c.cfg.WorkerCount,
	})
	elapsed := time.Since(start)
	result := MonthResult{
		Month:        month,
		URL:          sourceURL,
		GamesSeen:    gamesSeen,
		GamesCounted: gamesCounted,
		FrameErrors:  framer.FrameErrors(),
		Elapsed:      elapsed,
	}
	if err != nil {
		err = wrapRunErr(err, month, sourceURL)
		result.Err = err
		c.markMonthFailed(month, sourceURL)
		return result, err
	}
	c.log.Verbosef("month %s: %d games seen, %d counted, %d frame errors in %s", month, gamesSeen, gamesCounted, result.FrameErrors, elapsed)

	if c.cfg.Save && !c.cfg.DryRun {
		if c.st == nil {
			err := wrapRunErr(cherrors.Wrap(cherrors.ErrConfig, "--save requires a store"), month, sourceURL)
			result.Err = err
			return result, err
		}
		if err := c.st.Persist(ctx, month, sourceURL, m, gamesCounted, elapsed, c.cfg.DBBatchRows); err != nil {
			// Persist already marks the month failed on its own internal
			// rollback path; no need to call markMonthFailed here too.
			err = wrapRunErr(err, month, sourceURL)
			result.Err = err
			return result, err
		}
		c.log.Verbosef("month %s: persisted", month)
	}

	if c.cfg.Out != "" {
		if err := c.emit(month, m); err != nil {
			// The store commit (if any) already succeeded; an emit failure
			// doesn't retroactively un-succeed the month's persistence.
			err = wrapRunErr(err, month, sourceURL)
			result.Err = err
			return result, err
		}
	}

	return result, nil
}

// markMonthFailed records month as failed in the store, using a context
// independent of ctx so the write still lands when the run was aborted by
// cancellation. A no-op when the controller isn't backed by a store.
func (c *Controller) markMonthFailed(month, sourceURL string) {
	if !c.cfg.Save || c.st == nil {
		return
	}
	bg, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := c.st.MarkFailed(bg, month, sourceURL); err != nil {
		c.log.Summaryf("month %s: could not record failure: %v", month, err)
	}
}

// classifyKind maps err to the first sentinel below that it wraps
// (per errors.Is), for the Kind of a RunError built by wrapRunErr.
// Returns nil when err doesn't match any of them.
func classifyKind(err error) error {
	for _, kind := range []error{
		cherrors.ErrCancel,
		cherrors.ErrConfig,
		cherrors.ErrDB,
		cherrors.ErrIO,
		cherrors.ErrDecompress,
		cherrors.ErrFrame,
		cherrors.ErrParse,
	} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}

// wrapRunErr attaches month/source context to err as a *cherrors.RunError.
// If err already carries one (e.g. a pipeline stage wrapped it first), its
// Month/Source are filled in rather than nesting a second RunError.
func wrapRunErr(err error, month, source string) error {
	if err == nil {
		return nil
	}
	var re *cherrors.RunError
	if errors.As(err, &re) {
		if re.Month == "" {
			re.Month = month
		}
		if re.Source == "" {
			re.Source = source
		}
		return re
	}
	return &cherrors.RunError{Err: err, Kind: classifyKind(err), Month: month, Source: source}
}

// emit writes m's tabular rendering to the output path derived from
// cfg.Out for month: "<dir>/<month>.csv" when Out names an existing
// directory (in either mode); otherwise the literal path in local-file
// mode (single month per run), or "<base>-<month><ext>" in remote mode.
func (c *Controller) emit(month string, m aggregate.Map) error {
	path := c.outputPath(month)
	f, err := os.Create(path)
	if err != nil {
		return cherrors.Wrapf(cherrors.ErrIO, "create output file %s: %v", path, err)
	}
	defer f.Close()
	if err := tabular.Write(f, m); err != nil {
		return cherrors.Wrapf(cherrors.ErrIO, "write output file %s: %v", path, err)
	}
	return nil
}

func (c *Controller) outputPath(month string) string {
	out := c.cfg.Out
	if info, err := os.Stat(out); err == nil && info.IsDir() {
		return filepath.Join(out, month+".csv")
	}
	if !c.cfg.Remote {
		return out
	}
	ext := filepath.Ext(out)
	base := strings.TrimSuffix(out, ext)
	return fmt.Sprintf("%s-%s%s", base, month, ext)
}
