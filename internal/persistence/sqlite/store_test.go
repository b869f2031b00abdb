package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/example/hearing-scheduler/internal/persistence"
	"github.com/example/hearing-scheduler/internal/persistence/sqlite/migration"
	"github.com/example/hearing-scheduler/internal/persistence/storetest"
)

func TestStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) persistence.Store {
		path := filepath.Join(t.TempDir(), "scheduler.db")
		store, err := Open(context.Background(), "file:"+path, nil)
		require.NoError(t, err)
		t.Cleanup(func() { _ = store.Close() })
		return store
	})
}

func TestStoreSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := "file:" + filepath.Join(t.TempDir(), "scheduler.db")

	store, err := Open(ctx, path, nil)
	require.NoError(t, err)
	record, err := persistence.Encode("f1", "f1", "", map[string]string{"name": "Court 1"}, map[string]string{"displayName": "Court 1"})
	require.NoError(t, err)
	require.NoError(t, store.Create(ctx, persistence.ContainerFacilities, record))
	require.NoError(t, store.Close())

	reopened, err := Open(ctx, path, nil)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.List(ctx, persistence.ContainerFacilities, persistence.Filter{"name": "Court 1"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "f1", got[0].ID)
}

func TestOpenRecordsMigrations(t *testing.T) {
	ctx := context.Background()
	store, err := Open(ctx, "file:"+filepath.Join(t.TempDir(), "scheduler.db"), nil)
	require.NoError(t, err)
	defer store.Close()

	applied, err := migration.AppliedVersions(ctx, store.pool.DB())
	require.NoError(t, err)
	require.Len(t, applied, 2)
	require.Equal(t, "1", applied[0].Version)
	require.Equal(t, "2", applied[1].Version)
}

func TestOpenRejectsEmptyDSN(t *testing.T) {
	_, err := Open(context.Background(), " ", nil)
	require.Error(t, err)
}
