// Package aggregate folds a stream of game headers into a compact keyed
// counter map, one row per (month, ECO group, rating bucket pair). Folding
// is split across a worker pool of partial maps and combined by a single
// commutative merge step so worker completion order never affects the
// result.
package aggregate

import "github.com/lgbarn/chessagg/internal/frame"

// Key identifies one aggregate row.
type Key struct {
	Month       string
	EcoGroup    string
	WhiteBucket int
	BlackBucket int
}

// Counter holds the four running totals kept for one Key.
type Counter struct {
	Games     int
	WhiteWins int
	BlackWins int
	Draws     int
}

// Add folds one game's outcome into c, returning the updated value. It is
// the caller's responsibility to only call Add for games that actually
// contribute (see FoldHeader).
func (c Counter) Add(result frame.Result) Counter {
	c.Games++
	switch result {
	case frame.ResultWhiteWin:
		c.WhiteWins++
	case frame.ResultBlackWin:
		c.BlackWins++
	case frame.ResultDraw:
		c.Draws++
	}
	return c
}

// Merge sums two counters for the same key.
func (c Counter) Merge(other Counter) Counter {
	return Counter{
		Games:     c.Games + other.Games,
		WhiteWins: c.WhiteWins + other.WhiteWins,
		BlackWins: c.BlackWins + other.BlackWins,
		Draws:     c.Draws + other.Draws,
	}
}

// EcoGroup coarsens an ECO code to its group: letter, tens digit, then a
// literal zero. Anything not already validated as the three-character
// letter+two-digits shape (frame.ExtractHeader leaves malformed codes as
// "") maps to the catch-all group "U00".
func EcoGroup(eco string) string {
	if len(eco) != 3 {
		return "U00"
	}
	letter := eco[0]
	tens := eco[1]
	units := eco[2]
	if letter < 'A' || letter > 'E' || tens < '0' || tens > '9' || units < '0' || units > '9' {
		return "U00"
	}
	return string([]byte{letter, tens, '0'})
}

// Bucket floors a rating to the nearest multiple of bucketSize at or below
// it. Callers only pass ratings already known present (frame.Header.*OK).
func Bucket(elo, bucketSize int) int {
	if bucketSize <= 0 {
		return elo
	}
	return (elo / bucketSize) * bucketSize
}
