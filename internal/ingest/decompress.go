package ingest

import (
	"io"

	"github.com/klauspost/compress/zstd"

	cherrors "github.com/lgbarn/chessagg/internal/errors"
)

// Decompressor wraps a Source and exposes its decompressed byte stream.
// It decodes in constant memory regardless of archive size: zstd.Decoder
// streams frame-by-frame rather than materializing the whole output.
type Decompressor struct {
	src Source
	dec *zstd.Decoder
}

// NewDecompressor wraps src in a streaming zstd decoder. The decoder
// transparently handles multi-frame streams, which is how archives built
// by concatenating per-day compressed chunks are typically produced.
func NewDecompressor(src Source) (*Decompressor, error) {
	dec, err := zstd.NewReader(src)
	if err != nil {
		return nil, cherrors.Wrapf(cherrors.ErrDecompress, "init decoder for %s: %v", src.Name(), err)
	}
	return &Decompressor{src: src, dec: dec}, nil
}

// Read satisfies io.Reader, yielding decompressed bytes.
func (d *Decompressor) Read(p []byte) (int, error) {
	n, err := d.dec.Read(p)
	if err != nil && err != io.EOF {
		err = cherrors.Wrapf(cherrors.ErrDecompress, "decode %s: %v", d.src.Name(), err)
	}
	return n, err
}

// Close releases the decoder and the underlying source.
func (d *Decompressor) Close() error {
	d.dec.Close()
	return d.src.Close()
}
