package aggregate

import (
	"context"
	"runtime"

	cherrors "github.com/lgbarn/chessagg/internal/errors"
	"github.com/lgbarn/chessagg/internal/frame"
	"github.com/lgbarn/chessagg/internal/worker"
)

// Map is a mutable partial (or final) aggregate: one Counter per Key. A
// worker owns its own Map exclusively while folding a batch; the
// controller owns the merged Map for the remainder of an ingest run.
type Map map[Key]Counter

// FoldHeader folds one game's header into m, returning whether the game
// contributed to any counter. Games with an "other" result, or either
// rating absent, are skipped per the header extractor's defaulting rules;
// they still count toward the caller's games-seen total.
func FoldHeader(m Map, h frame.Header, bucketSize int) bool {
	if !h.WhiteOK || !h.BlackOK {
		return false
	}
	if h.Result != frame.ResultWhiteWin && h.Result != frame.ResultBlackWin && h.Result != frame.ResultDraw {
		return false
	}
	key := Key{
		Month:       h.Month,
		EcoGroup:    EcoGroup(h.ECO),
		WhiteBucket: Bucket(h.WhiteElo, bucketSize),
		BlackBucket: Bucket(h.BlackElo, bucketSize),
	}
	m[key] = m[key].Add(h.Result)
	return true
}

// Merge folds the counters of other into m and returns m. Merge is
// associative and commutative: the order batches are merged in never
// affects the result.
func (m Map) Merge(other Map) Map {
	for k, c := range other {
		m[k] = m[k].Merge(c)
	}
	return m
}

// Options configures one aggregation run.
type Options struct {
	BucketSize  int
	BatchSize   int
	WorkerCount int
}

// batchResult is what one worker reports after folding a single batch:
// its partial map plus how many of the batch's games it actually saw
// (every game read from the framer, regardless of whether it contributed
// a counter).
type batchResult struct {
	partial   Map
	gamesSeen int
}

// Run drains headers from next (called repeatedly until it returns
// ok=false or a non-nil error) across a bounded pool of worker goroutines,
// each folding its own batch into a private Map, and returns the merged
// result along with the total number of games observed and the number
// that contributed to a counter. next must be safe to call from a single
// goroutine only; Run serializes calls to it.
func Run(ctx context.Context, next func() (frame.Header, bool, error), opts Options) (Map, int, int, error) {
	bucketSize := opts.BucketSize
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = 1000
	}
	workerCount := opts.WorkerCount
	if workerCount <= 0 {
		workerCount = runtime.NumCPU()
	}

	processFunc := func(item worker.WorkItem[[]frame.Header]) worker.ProcessResult[batchResult] {
		partial := make(Map)
		seen := 0
		for _, h := range item.Payload {
			FoldHeader(partial, h, bucketSize)
			seen++
		}
		return worker.ProcessResult[batchResult]{
			Result: batchResult{partial: partial, gamesSeen: seen},
			Index:  item.Index,
		}
	}

	pool := worker.NewPool(workerCount, workerCount*2, processFunc)
	pool.Start()

	done := make(chan error, 1)
	go func() {
		done <- dispatchBatches(ctx, next, batchSize, pool)
	}()

	merged := make(Map)
	gamesSeen := 0
	gamesCounted := 0
	for result := range pool.Results() {
		for k, c := range result.Result.partial {
			merged[k] = merged[k].Merge(c)
			gamesCounted += c.Games
		}
		gamesSeen += result.Result.gamesSeen
	}

	if err := <-done; err != nil {
		return nil, 0, 0, err
	}
	return merged, gamesSeen, gamesCounted, nil
}

// dispatchBatches reads headers from next in batchSize groups, submits
// each as a unit of work, then closes the pool once the source is
// exhausted. It is the single point where next is called, so callers of
// Run never need their own synchronization around it.
func dispatchBatches(ctx context.Context, next func() (frame.Header, bool, error), batchSize int, pool *worker.Pool[[]frame.Header, batchResult]) error {
	defer pool.Close()

	index := 0
	batch := make([]frame.Header, 0, batchSize)
	for {
		select {
		case <-ctx.Done():
			return cherrors.Wrapf(cherrors.ErrCancel, "aggregation cancelled: %v", ctx.Err())
		default:
		}

		h, ok, err := next()
		if err != nil {
			return err
		}
		if !ok {
			if len(batch) > 0 {
				pool.Submit(worker.WorkItem[[]frame.Header]{Payload: batch, Index: index})
			}
			return nil
		}
		batch = append(batch, h)
		if len(batch) >= batchSize {
			pool.Submit(worker.WorkItem[[]frame.Header]{Payload: batch, Index: index})
			index++
			batch = make([]frame.Header, 0, batchSize)
		}
	}
}
