// Package storetest holds the behavioural suite every persistence.Store
// backend must pass.
package storetest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/hearing-scheduler/internal/persistence"
)

type sample struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func encode(t *testing.T, id, pk, unique string, attrs map[string]string, v sample) persistence.Record {
	t.Helper()
	record, err := persistence.Encode(id, pk, unique, attrs, v)
	require.NoError(t, err)
	return record
}

// Run exercises a fresh store produced by factory for every subtest.
func Run(t *testing.T, factory func(t *testing.T) persistence.Store) {
	t.Run("create then get round trips the body", func(t *testing.T) {
		store := factory(t)
		ctx := context.Background()

		require.NoError(t, store.Create(ctx, "things", encode(t, "a", "p1", "", nil, sample{Name: "alpha", Count: 1})))

		got, err := persistence.GetAs[sample](ctx, store, "things", "a", "p1")
		require.NoError(t, err)
		assert.Equal(t, sample{Name: "alpha", Count: 1}, got)

		_, err = persistence.GetAs[sample](ctx, store, "things", "a", "")
		require.NoError(t, err, "empty partition key matches any partition")

		_, err = store.Get(ctx, "things", "a", "other")
		assert.ErrorIs(t, err, persistence.ErrNotFound)

		_, err = store.Get(ctx, "elsewhere", "a", "")
		assert.ErrorIs(t, err, persistence.ErrNotFound)
	})

	t.Run("create rejects duplicate ids", func(t *testing.T) {
		store := factory(t)
		ctx := context.Background()

		require.NoError(t, store.Create(ctx, "things", encode(t, "a", "", "", nil, sample{Name: "one"})))
		err := store.Create(ctx, "things", encode(t, "a", "", "", nil, sample{Name: "two"}))
		assert.ErrorIs(t, err, persistence.ErrDuplicate)

		require.NoError(t, store.Create(ctx, "other", encode(t, "a", "", "", nil, sample{Name: "three"})),
			"ids are scoped to their container")
	})

	t.Run("unique keys are compared case-insensitively", func(t *testing.T) {
		store := factory(t)
		ctx := context.Background()

		require.NoError(t, store.Create(ctx, "calendars", encode(t, "c1", "", "CAL001", nil, sample{Name: "first"})))

		err := store.Create(ctx, "calendars", encode(t, "c2", "", "cal001", nil, sample{Name: "second"}))
		assert.ErrorIs(t, err, persistence.ErrDuplicate)

		err = store.Upsert(ctx, "calendars", encode(t, "c3", "", "Cal001", nil, sample{Name: "third"}))
		assert.ErrorIs(t, err, persistence.ErrDuplicate)

		require.NoError(t, store.Upsert(ctx, "calendars", encode(t, "c1", "", "cal001", nil, sample{Name: "renamed"})),
			"the holder of a unique key may keep it")
	})

	t.Run("upsert replaces by id with last write winning", func(t *testing.T) {
		store := factory(t)
		ctx := context.Background()

		require.NoError(t, store.Upsert(ctx, "things", encode(t, "a", "", "", map[string]string{"kind": "x"}, sample{Count: 1})))
		require.NoError(t, store.Upsert(ctx, "things", encode(t, "a", "", "", map[string]string{"kind": "y"}, sample{Count: 2})))

		got, err := persistence.GetAs[sample](ctx, store, "things", "a", "")
		require.NoError(t, err)
		assert.Equal(t, 2, got.Count)

		byOld, err := store.List(ctx, "things", persistence.Filter{"kind": "x"})
		require.NoError(t, err)
		assert.Empty(t, byOld, "attributes are replaced with the document")
	})

	t.Run("list filters on attributes and orders by id", func(t *testing.T) {
		store := factory(t)
		ctx := context.Background()

		for _, rec := range []persistence.Record{
			encode(t, "b", "", "", map[string]string{"facilityId": "f1"}, sample{Name: "b"}),
			encode(t, "a", "", "", map[string]string{"facilityId": "f1"}, sample{Name: "a"}),
			encode(t, "c", "", "", map[string]string{"facilityId": "f2"}, sample{Name: "c"}),
			encode(t, "d", "", "", nil, sample{Name: "d"}),
		} {
			require.NoError(t, store.Create(ctx, "things", rec))
		}

		items, err := persistence.ListAs[sample](ctx, store, "things", persistence.Filter{"facilityId": "f1"})
		require.NoError(t, err)
		require.Len(t, items, 2)
		assert.Equal(t, "a", items[0].Name)
		assert.Equal(t, "b", items[1].Name)

		all, err := store.List(ctx, "things", nil)
		require.NoError(t, err)
		assert.Len(t, all, 4)

		none, err := persistence.ListAs[sample](ctx, store, "things", persistence.Filter{"facilityId": "f9"})
		require.NoError(t, err)
		assert.Nil(t, none)
	})

	t.Run("delete removes the record and frees its unique key", func(t *testing.T) {
		store := factory(t)
		ctx := context.Background()

		require.NoError(t, store.Create(ctx, "things", encode(t, "a", "p", "key", nil, sample{})))

		assert.ErrorIs(t, store.Delete(ctx, "things", "a", "wrong"), persistence.ErrNotFound)
		require.NoError(t, store.Delete(ctx, "things", "a", "p"))
		assert.ErrorIs(t, store.Delete(ctx, "things", "a", ""), persistence.ErrNotFound)

		_, err := store.Get(ctx, "things", "a", "")
		assert.ErrorIs(t, err, persistence.ErrNotFound)

		require.NoError(t, store.Create(ctx, "things", encode(t, "b", "", "KEY", nil, sample{})))
	})

	t.Run("records without an id are rejected", func(t *testing.T) {
		store := factory(t)
		err := store.Create(context.Background(), "things", persistence.Record{Body: []byte(`{}`)})
		assert.ErrorIs(t, err, persistence.ErrConstraintViolation)
	})
}
