package monthindex

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestParse_SortsAscendingAndSkipsBlankLines(t *testing.T) {
	body := strings.NewReader(strings.Join([]string{
		"https://example.test/archives/lichess_2013-03.pgn.zst",
		"",
		"  ",
		"https://example.test/archives/lichess_2013-01.pgn.zst",
		"https://example.test/archives/lichess_2013-02.pgn.zst",
	}, "\n"))

	entries, err := Parse(body)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("got %d entries, want 3", len(entries))
	}
	want := []string{"2013-01", "2013-02", "2013-03"}
	for i, w := range want {
		if entries[i].Month != w {
			t.Errorf("entries[%d].Month = %q, want %q", i, entries[i].Month, w)
		}
	}
}

func TestParse_SkipsLinesWithoutMonth(t *testing.T) {
	body := strings.NewReader("https://example.test/archives/no-month-here.pgn.zst\n" +
		"https://example.test/archives/lichess_2013-01.pgn.zst\n")
	entries, err := Parse(body)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	if entries[0].Month != "2013-01" {
		t.Errorf("Month = %q, want 2013-01", entries[0].Month)
	}
}

func TestFilterUntil(t *testing.T) {
	entries := []Entry{{Month: "2013-01"}, {Month: "2013-02"}, {Month: "2013-03"}}
	got := FilterUntil(entries, "2013-02")
	if len(got) != 2 {
		t.Fatalf("got %d entries, want 2", len(got))
	}
	if got[1].Month != "2013-02" {
		t.Errorf("last entry month = %q, want 2013-02 (inclusive bound)", got[1].Month)
	}
}

func TestFilterUntil_Empty(t *testing.T) {
	entries := []Entry{{Month: "2013-01"}, {Month: "2013-02"}}
	got := FilterUntil(entries, "")
	if len(got) != 2 {
		t.Errorf("got %d entries, want 2 (no filtering)", len(got))
	}
}

func TestFilterSkip(t *testing.T) {
	entries := []Entry{{Month: "2013-01"}, {Month: "2013-02"}, {Month: "2013-03"}}
	done := map[string]bool{"2013-02": true}
	got := FilterSkip(entries, done)
	if len(got) != 2 {
		t.Fatalf("got %d entries, want 2", len(got))
	}
	for _, e := range got {
		if e.Month == "2013-02" {
			t.Error("2013-02 should have been skipped")
		}
	}
}

func TestFetch_UsesHTTPClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("https://example.test/archives/lichess_2013-01.pgn.zst\n"))
	}))
	defer srv.Close()

	entries, err := Fetch(context.Background(), srv.Client(), srv.URL)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(entries) != 1 || entries[0].Month != "2013-01" {
		t.Errorf("entries = %+v, want one entry for 2013-01", entries)
	}
}

func TestFetch_NonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := Fetch(context.Background(), srv.Client(), srv.URL)
	if err == nil {
		t.Fatal("expected an error for a 500 response")
	}
}
