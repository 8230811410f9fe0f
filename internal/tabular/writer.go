// Package tabular renders a final aggregate map as a deterministic,
// fixed-header text file: one line per row, sorted so that re-running the
// emitter on the same map always produces byte-identical output.
package tabular

import (
	"bufio"
	"io"
	"strconv"

	"github.com/lgbarn/chessagg/internal/aggregate"
	"github.com/lgbarn/chessagg/internal/store"
)

// Header is the literal first line of every tabular output file.
const Header = "month,eco_group,white_bucket,black_bucket,games,white_wins,black_wins,draws"

// Write renders m to w: the fixed header line, then one line per entry
// sorted by (month, eco_group, white_bucket, black_bucket) ascending. All
// fields are ASCII with fixed shapes, so no field ever needs quoting.
func Write(w io.Writer, m aggregate.Map) error {
	bw := bufio.NewWriter(w)

	if _, err := bw.WriteString(Header); err != nil {
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		return err
	}

	for _, k := range store.SortedKeys(m) {
		c := m[k]
		bw.WriteString(k.Month)
		bw.WriteByte(',')
		bw.WriteString(k.EcoGroup)
		bw.WriteByte(',')
		bw.WriteString(strconv.Itoa(k.WhiteBucket))
		bw.WriteByte(',')
		bw.WriteString(strconv.Itoa(k.BlackBucket))
		bw.WriteByte(',')
		bw.WriteString(strconv.Itoa(c.Games))
		bw.WriteByte(',')
		bw.WriteString(strconv.Itoa(c.WhiteWins))
		bw.WriteByte(',')
		bw.WriteString(strconv.Itoa(c.BlackWins))
		bw.WriteByte(',')
		bw.WriteString(strconv.Itoa(c.Draws))
		if err := bw.WriteByte('\n'); err != nil {
			return err
		}
	}

	return bw.Flush()
}
