// Package ingest supplies the leaf-most stages of the pipeline: a byte
// source (local file or HTTP body) and a constant-memory decompressor
// wrapping it.
package ingest

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"

	cherrors "github.com/lgbarn/chessagg/internal/errors"
)

// Source yields raw (compressed) bytes from a single archive and can be
// cancelled mid-read. It composes io.Reader with cancellation and a
// descriptive name for error messages.
type Source interface {
	// Read satisfies io.Reader; errors are wrapped with cherrors.ErrIO.
	Read(p []byte) (int, error)
	// Close releases the underlying file or HTTP response body.
	Close() error
	// Name identifies the source for error and log messages (a file path
	// or a URL).
	Name() string
}

// FileSource reads a local archive file.
type FileSource struct {
	name string
	f    *os.File
}

// OpenFile opens path for reading as a Source.
func OpenFile(path string) (*FileSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, cherrors.Wrapf(cherrors.ErrIO, "open %s: %v", path, err)
	}
	return &FileSource{name: path, f: f}, nil
}

func (s *FileSource) Read(p []byte) (int, error) {
	n, err := s.f.Read(p)
	if err != nil && !errors.Is(err, io.EOF) {
		err = cherrors.Wrapf(cherrors.ErrIO, "read %s: %v", s.name, err)
	}
	return n, err
}

func (s *FileSource) Close() error { return s.f.Close() }
func (s *FileSource) Name() string { return s.name }

// HTTPSource streams an archive body fetched over HTTP. The request is
// bound to a context so the controller's cancellation signal closes the
// connection promptly.
type HTTPSource struct {
	name string
	resp *http.Response
}

// OpenHTTP issues a GET for url bound to ctx and returns its body as a
// Source. The caller must Close it.
func OpenHTTP(ctx context.Context, client *http.Client, url string) (*HTTPSource, error) {
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, cherrors.Wrap(cherrors.ErrIO, "build request for "+url)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, cherrors.Wrapf(cherrors.ErrIO, "GET %s: %v", url, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, cherrors.Wrapf(cherrors.ErrIO, "GET %s: unexpected status %s", url, resp.Status)
	}
	return &HTTPSource{name: url, resp: resp}, nil
}

func (s *HTTPSource) Read(p []byte) (int, error) {
	n, err := s.resp.Body.Read(p)
	if err != nil && !errors.Is(err, io.EOF) {
		err = cherrors.Wrapf(cherrors.ErrIO, "read %s: %v", s.name, err)
	}
	return n, err
}

func (s *HTTPSource) Close() error { return s.resp.Body.Close() }
func (s *HTTPSource) Name() string { return s.name }
