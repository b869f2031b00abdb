package testfixtures

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/example/hearing-scheduler/internal/persistence"
	"github.com/example/hearing-scheduler/internal/persistence/memdb"
	"github.com/example/hearing-scheduler/internal/persistence/sqlite"
)

// NewSQLiteStore opens a document store in a temporary SQLite file that is
// closed when the test ends.
func NewSQLiteStore(tb testing.TB, now func() time.Time) persistence.Store {
	tb.Helper()

	path := filepath.Join(tb.TempDir(), "scheduler.db")
	store, err := sqlite.Open(context.Background(), "file:"+path, now)
	if err != nil {
		tb.Fatalf("failed to open sqlite store: %v", err)
	}
	tb.Cleanup(func() { _ = store.Close() })
	return store
}

// NewMemoryStore returns an in-memory document store closed when the test ends.
func NewMemoryStore(tb testing.TB, now func() time.Time) persistence.Store {
	tb.Helper()

	store, err := memdb.New(now)
	if err != nil {
		tb.Fatalf("failed to create memory store: %v", err)
	}
	tb.Cleanup(func() { _ = store.Close() })
	return store
}
