package backend

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/Sternrassler/proxy-cache/pkg/cache"
)

func newTestSQLite(t *testing.T, path string) (*SQLite, func(time.Duration)) {
	t.Helper()

	s, err := NewSQLite(path)
	if err != nil {
		t.Fatalf("NewSQLite() error = %v", err)
	}
	t.Cleanup(func() {
		s.Close()
	})

	var mu sync.Mutex
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	advance := func(d time.Duration) {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(d)
	}
	return s, advance
}

func TestSQLite(t *testing.T) {
	runBackendTests(t, func(t *testing.T) (cache.Backend, func(time.Duration)) {
		return newTestSQLite(t, filepath.Join(t.TempDir(), "cache.db"))
	})
}

func TestSQLite_InMemory(t *testing.T) {
	runBackendTests(t, func(t *testing.T) (cache.Backend, func(time.Duration)) {
		return newTestSQLite(t, "")
	})
}

func TestSQLite_Persistence(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "cache.db")

	first, err := NewSQLite(path)
	if err != nil {
		t.Fatalf("NewSQLite() error = %v", err)
	}
	if err := first.Set(ctx, "entry1", []byte("payload"), []string{"tag"}, 0); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	second, err := NewSQLite(path)
	if err != nil {
		t.Fatalf("NewSQLite() reopen error = %v", err)
	}
	defer second.Close()

	data, found, err := second.Get(ctx, "entry1")
	if err != nil || !found || string(data) != "payload" {
		t.Errorf("Get() after reopen = %q, %v, %v, want payload, true, nil", data, found, err)
	}
	ids, _ := second.FindIdentifiersByTag(ctx, "tag")
	if len(ids) != 1 || ids[0] != "entry1" {
		t.Errorf("FindIdentifiersByTag() after reopen = %v, want [entry1]", ids)
	}
}

func TestSQLite_PurgeExpired(t *testing.T) {
	ctx := context.Background()
	s, advance := newTestSQLite(t, filepath.Join(t.TempDir(), "cache.db"))

	_ = s.Set(ctx, "a", []byte("a"), []string{"tag"}, time.Second)
	_ = s.Set(ctx, "b", []byte("b"), []string{"tag"}, time.Hour)
	_ = s.Set(ctx, "c", []byte("c"), nil, 0)

	advance(time.Minute)

	purged, err := s.PurgeExpired(ctx)
	if err != nil {
		t.Fatalf("PurgeExpired() error = %v", err)
	}
	if purged != 1 {
		t.Errorf("PurgeExpired() = %d, want 1", purged)
	}

	var tagRows int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM entry_tags WHERE identifier = 'a'").Scan(&tagRows); err != nil {
		t.Fatalf("count tags error = %v", err)
	}
	if tagRows != 0 {
		t.Errorf("tag rows for purged entry = %d, want 0", tagRows)
	}
}

func TestSQLite_Ping(t *testing.T) {
	s, _ := newTestSQLite(t, "")
	if err := s.Ping(context.Background()); err != nil {
		t.Errorf("Ping() error = %v", err)
	}
}
