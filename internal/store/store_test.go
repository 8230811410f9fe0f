package store

import (
	"context"
	"testing"
	"time"

	"github.com/lgbarn/chessagg/internal/aggregate"
)

func TestSortedKeys_Order(t *testing.T) {
	m := aggregate.Map{
		{Month: "2013-02", EcoGroup: "A00", WhiteBucket: 0, BlackBucket: 0}:    {Games: 1},
		{Month: "2013-01", EcoGroup: "B30", WhiteBucket: 2000, BlackBucket: 1800}: {Games: 1},
		{Month: "2013-01", EcoGroup: "A00", WhiteBucket: 0, BlackBucket: 0}:    {Games: 1},
	}
	keys := SortedKeys(m)
	if len(keys) != 3 {
		t.Fatalf("got %d keys, want 3", len(keys))
	}
	want := []string{"2013-01", "2013-01", "2013-02"}
	for i, w := range want {
		if keys[i].Month != w {
			t.Errorf("keys[%d].Month = %q, want %q", i, keys[i].Month, w)
		}
	}
	if keys[0].EcoGroup != "A00" || keys[1].EcoGroup != "B30" {
		t.Errorf("within-month order wrong: %+v", keys[:2])
	}
}

type fakeStore struct{}

func (fakeStore) Migrate(ctx context.Context) error { return nil }
func (fakeStore) Persist(ctx context.Context, month, sourceURL string, m aggregate.Map, gamesCounted int, elapsed time.Duration, batchRows int) error {
	return nil
}
func (fakeStore) SuccessMonths(ctx context.Context) (map[string]bool, error) { return nil, nil }
func (fakeStore) MarkFailed(ctx context.Context, month, sourceURL string) error {
	return nil
}
func (fakeStore) Close() error { return nil }

func TestOpen_UnknownScheme(t *testing.T) {
	_, err := Open(context.Background(), "mysql://localhost/db", 1)
	if err == nil {
		t.Fatal("expected an error for an unregistered scheme")
	}
}

func TestOpen_RegisteredScheme(t *testing.T) {
	Register("faketest", func(ctx context.Context, dsn string, maxConns int) (Store, error) {
		return fakeStore{}, nil
	})
	s, err := Open(context.Background(), "faketest://anything", 1)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if s == nil {
		t.Fatal("expected a non-nil Store")
	}
}
