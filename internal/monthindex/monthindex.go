// Package monthindex fetches and parses the remote archive list endpoint:
// a plain-text response with one archive URL per line, each expected to
// carry a YYYY-MM month label somewhere in its final path segment.
package monthindex

import (
	"bufio"
	"context"
	"io"
	"net/http"
	"regexp"
	"sort"
	"strings"

	cherrors "github.com/lgbarn/chessagg/internal/errors"
)

// Entry is one archive in the index: its month label and source URL.
type Entry struct {
	Month string
	URL   string
}

var monthRe = regexp.MustCompile(`\d{4}-\d{2}`)

// Fetch retrieves listURL and parses it into month-ascending Entry values.
// Blank lines are ignored; a line whose final path segment contains no
// YYYY-MM substring is skipped rather than aborting the whole fetch, since
// one malformed listing line should not block ingest of the rest.
func Fetch(ctx context.Context, client *http.Client, listURL string) ([]Entry, error) {
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, listURL, nil)
	if err != nil {
		return nil, cherrors.Wrapf(cherrors.ErrIO, "build request for %s: %v", listURL, err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, cherrors.Wrapf(cherrors.ErrIO, "GET %s: %v", listURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, cherrors.Wrapf(cherrors.ErrIO, "GET %s: unexpected status %s", listURL, resp.Status)
	}

	entries, err := Parse(resp.Body)
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// Parse reads a text/plain listing (one archive URL per line) and extracts
// each entry's month label. It is split out from Fetch so tests can feed
// it a fixed body without a network round trip.
func Parse(body io.Reader) ([]Entry, error) {
	var entries []Entry
	scanner := bufio.NewScanner(body)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		month := MonthFromName(line)
		if month == "" {
			continue
		}
		entries = append(entries, Entry{Month: month, URL: line})
	}
	if err := scanner.Err(); err != nil {
		return nil, cherrors.Wrapf(cherrors.ErrIO, "scan archive list: %v", err)
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Month < entries[j].Month })
	return entries, nil
}

// MonthFromName extracts the first YYYY-MM match from the final path
// segment of a URL or local file path. Used both for index lines and for
// deriving a local archive's month label from its filename.
func MonthFromName(name string) string {
	segment := name
	if idx := strings.LastIndexByte(name, '/'); idx >= 0 {
		segment = name[idx+1:]
	}
	return monthRe.FindString(segment)
}

// FilterUntil returns the prefix of entries (already month-ascending) at
// or before the inclusive upper bound until. An empty until disables
// filtering.
func FilterUntil(entries []Entry, until string) []Entry {
	if until == "" {
		return entries
	}
	out := entries[:0:0]
	for _, e := range entries {
		if e.Month > until {
			break
		}
		out = append(out, e)
	}
	return out
}

// FilterSkip removes any entry whose month is present in done (the set of
// months already marked success).
func FilterSkip(entries []Entry, done map[string]bool) []Entry {
	if len(done) == 0 {
		return entries
	}
	out := entries[:0:0]
	for _, e := range entries {
		if done[e.Month] {
			continue
		}
		out = append(out, e)
	}
	return out
}
