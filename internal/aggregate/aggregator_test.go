package aggregate

import (
	"context"
	"errors"
	"testing"

	cherrors "github.com/lgbarn/chessagg/internal/errors"
	"github.com/lgbarn/chessagg/internal/frame"
	"github.com/lgbarn/chessagg/internal/testutil"
)

func elo(v int) (int, bool) { return v, true }

func header(month string, whiteElo, blackElo int, eco string, result frame.Result) frame.Header {
	we, wok := elo(whiteElo)
	be, bok := elo(blackElo)
	return frame.Header{
		Month:    month,
		WhiteElo: we,
		WhiteOK:  wok,
		BlackElo: be,
		BlackOK:  bok,
		ECO:      eco,
		Result:   result,
	}
}

func sourceFrom(headers []frame.Header) func() (frame.Header, bool, error) {
	i := 0
	return func() (frame.Header, bool, error) {
		if i >= len(headers) {
			return frame.Header{}, false, nil
		}
		h := headers[i]
		i++
		return h, true, nil
	}
}

func TestEcoGroup(t *testing.T) {
	tests := []struct {
		eco  string
		want string
	}{
		{"B33", "B30"},
		{"A00", "A00"},
		{"E99", "E90"},
		{"", "U00"},
		{"Z99", "U00"},
		{"B3", "U00"},
		{"B333", "U00"},
	}
	for _, tt := range tests {
		if got := EcoGroup(tt.eco); got != tt.want {
			t.Errorf("EcoGroup(%q) = %q, want %q", tt.eco, got, tt.want)
		}
	}
}

func TestBucket(t *testing.T) {
	tests := []struct {
		elo, bucketSize, want int
	}{
		{2105, 200, 2000},
		{1998, 200, 1800},
		{1999, 200, 1800},
		{2000, 200, 2000},
		{0, 200, 0},
	}
	for _, tt := range tests {
		got := Bucket(tt.elo, tt.bucketSize)
		if got != tt.want {
			t.Errorf("Bucket(%d, %d) = %d, want %d", tt.elo, tt.bucketSize, got, tt.want)
		}
		if got > tt.elo || tt.elo >= got+tt.bucketSize {
			t.Errorf("Bucket(%d, %d) = %d violates bucket(e) <= e < bucket(e)+size", tt.elo, tt.bucketSize, got)
		}
	}
}

// TestRun_Scenario1: two identical games aggregate into one row.
func TestRun_Scenario1(t *testing.T) {
	headers := []frame.Header{
		header("2013-01", 2105, 1998, "B33", frame.ResultWhiteWin),
		header("2013-01", 2105, 1998, "B33", frame.ResultWhiteWin),
	}
	m, seen, counted, err := Run(context.Background(), sourceFrom(headers), Options{BucketSize: 200, BatchSize: 1000, WorkerCount: 2})
	testutil.AssertNoError(t, err, "Run")
	testutil.AssertEqual(t, seen, 2, "games seen")
	testutil.AssertEqual(t, counted, 2, "games counted")
	key := Key{Month: "2013-01", EcoGroup: "B30", WhiteBucket: 2000, BlackBucket: 1800}
	testutil.AssertEqual(t, m[key], Counter{Games: 2, WhiteWins: 2}, "counter")
	testutil.AssertEqual(t, len(m), 1, "distinct rows")
}

// TestRun_Scenario2: absent ECO and a draw.
func TestRun_Scenario2(t *testing.T) {
	headers := []frame.Header{
		header("2013-01", 1500, 1600, "", frame.ResultDraw),
	}
	m, _, counted, err := Run(context.Background(), sourceFrom(headers), Options{BucketSize: 200})
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	key := Key{Month: "2013-01", EcoGroup: "U00", WhiteBucket: 1400, BlackBucket: 1600}
	c := m[key]
	if c.Games != 1 || c.Draws != 1 {
		t.Errorf("counter = %+v, want Games=1 Draws=1", c)
	}
	if counted != 1 {
		t.Errorf("games counted = %d, want 1", counted)
	}
}

// TestRun_Scenario3: "other" result produces no row.
func TestRun_Scenario3(t *testing.T) {
	headers := []frame.Header{
		header("2013-01", 1500, 1600, "B33", frame.ResultOther),
	}
	m, seen, counted, err := Run(context.Background(), sourceFrom(headers), Options{BucketSize: 200})
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if len(m) != 0 {
		t.Errorf("got %d rows, want 0", len(m))
	}
	if counted != 0 {
		t.Errorf("games counted = %d, want 0", counted)
	}
	if seen != 1 {
		t.Errorf("games seen = %d, want 1", seen)
	}
}

// TestRun_Scenario4: missing rating produces no row.
func TestRun_Scenario4(t *testing.T) {
	h := header("2013-01", 0, 1600, "B33", frame.ResultWhiteWin)
	h.WhiteOK = false
	m, _, counted, err := Run(context.Background(), sourceFrom([]frame.Header{h}), Options{BucketSize: 200})
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if len(m) != 0 || counted != 0 {
		t.Errorf("got %d rows, %d counted, want 0, 0", len(m), counted)
	}
}

// TestRun_Scenario5: concatenating two scenarios yields the union of rows.
func TestRun_Scenario5(t *testing.T) {
	headers := []frame.Header{
		header("2013-01", 2105, 1998, "B33", frame.ResultWhiteWin),
		header("2013-01", 2105, 1998, "B33", frame.ResultWhiteWin),
		header("2013-01", 1500, 1600, "", frame.ResultDraw),
	}
	m, _, _, err := Run(context.Background(), sourceFrom(headers), Options{BucketSize: 200})
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if len(m) != 2 {
		t.Fatalf("got %d rows, want 2", len(m))
	}
}

// TestMerge_Associative verifies merging any partition of games yields the
// same result as aggregating them all in one batch.
func TestMerge_Associative(t *testing.T) {
	headers := []frame.Header{
		header("2013-01", 2105, 1998, "B33", frame.ResultWhiteWin),
		header("2013-01", 1500, 1600, "", frame.ResultDraw),
		header("2013-02", 2200, 2100, "C50", frame.ResultBlackWin),
		header("2013-01", 2105, 1998, "B33", frame.ResultWhiteWin),
	}

	whole := make(Map)
	for _, h := range headers {
		FoldHeader(whole, h, 200)
	}

	partA := make(Map)
	for _, h := range headers[:2] {
		FoldHeader(partA, h, 200)
	}
	partB := make(Map)
	for _, h := range headers[2:] {
		FoldHeader(partB, h, 200)
	}
	merged := make(Map).Merge(partA).Merge(partB)

	if len(merged) != len(whole) {
		t.Fatalf("merged has %d keys, whole has %d", len(merged), len(whole))
	}
	for k, c := range whole {
		if merged[k] != c {
			t.Errorf("key %+v: merged=%+v, whole=%+v", k, merged[k], c)
		}
	}
}

// TestRun_CancelledContextReportsErrCancel verifies a cancelled context
// aborts Run with an error recognizable via errors.Is(err, cherrors.ErrCancel).
func TestRun_CancelledContextReportsErrCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	headers := []frame.Header{
		header("2013-01", 2105, 1998, "B33", frame.ResultWhiteWin),
	}
	_, _, _, err := Run(ctx, sourceFrom(headers), Options{BucketSize: 200})
	if err == nil {
		t.Fatal("expected an error from a pre-cancelled context")
	}
	if !errors.Is(err, cherrors.ErrCancel) {
		t.Errorf("errors.Is(err, cherrors.ErrCancel) = false, want true (err: %v)", err)
	}
}

// TestUpsertDoubling models additive upsert: folding G twice doubles every counter.
func TestUpsertDoubling(t *testing.T) {
	headers := []frame.Header{
		header("2013-01", 2105, 1998, "B33", frame.ResultWhiteWin),
	}
	once := make(Map)
	for _, h := range headers {
		FoldHeader(once, h, 200)
	}
	twice := make(Map).Merge(once).Merge(once)

	for k, c := range once {
		doubled := twice[k]
		if doubled.Games != c.Games*2 || doubled.WhiteWins != c.WhiteWins*2 {
			t.Errorf("key %+v: doubled=%+v, want double of %+v", k, doubled, c)
		}
	}
}
