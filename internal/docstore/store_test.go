package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/dgraph-io/badger/v4"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type record struct {
	Name      string `json:"name"`
	Owner     string `json:"owner"`
	CreatedAt int64  `json:"createdAt"`
}

func raw(t *testing.T, v any) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}

func newBadgerForTest(t *testing.T) Store {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewBadgerStore(db)
}

func newRedisForTest(t *testing.T) Store {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return NewRedisStore(client, "test")
}

func backends() map[string]func(t *testing.T) Store {
	return map[string]func(t *testing.T) Store{
		"memory": func(*testing.T) Store { return NewMemoryStore() },
		"badger": newBadgerForTest,
		"redis":  newRedisForTest,
	}
}

func TestStoreContract(t *testing.T) {
	for name, build := range backends() {
		t.Run(name, func(t *testing.T) {
			runContract(t, build(t))
		})
	}
}

func runContract(t *testing.T, s Store) {
	ctx := context.Background()

	t.Run("get missing", func(t *testing.T) {
		_, err := s.Get(ctx, "things", "nope")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("set bumps version", func(t *testing.T) {
		doc, err := s.Set(ctx, "things", "a", raw(t, record{Name: "first"}))
		require.NoError(t, err)
		assert.Equal(t, int64(1), doc.Version)

		doc, err = s.Set(ctx, "things", "a", raw(t, record{Name: "second"}))
		require.NoError(t, err)
		assert.Equal(t, int64(2), doc.Version)

		var got record
		version, err := GetInto(ctx, s, "things", "a", &got)
		require.NoError(t, err)
		assert.Equal(t, int64(2), version)
		assert.Equal(t, "second", got.Name)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, SetFrom(ctx, s, "things", "gone", record{Name: "x"}))
		require.NoError(t, s.Delete(ctx, "things", "gone"))
		_, err := s.Get(ctx, "things", "gone")
		assert.ErrorIs(t, err, ErrNotFound)
		assert.NoError(t, s.Delete(ctx, "things", "gone"))
	})

	t.Run("query filters and sorts", func(t *testing.T) {
		require.NoError(t, SetFrom(ctx, s, "items", "1", record{Name: "old", Owner: "u1", CreatedAt: 100}))
		require.NoError(t, SetFrom(ctx, s, "items", "2", record{Name: "new", Owner: "u1", CreatedAt: 300}))
		require.NoError(t, SetFrom(ctx, s, "items", "3", record{Name: "other", Owner: "u2", CreatedAt: 200}))

		got, err := QueryInto[record](ctx, s, "items", Where("owner", "u1").SortBy("createdAt", true))
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "new", got[0].Name)
		assert.Equal(t, "old", got[1].Name)

		all, err := s.Query(ctx, "items", Query{OrderBy: "createdAt"})
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.Equal(t, []string{"1", "3", "2"}, []string{all[0].ID, all[1].ID, all[2].ID})

		none, err := s.Query(ctx, "items", Where("owner", "u9"))
		require.NoError(t, err)
		assert.Empty(t, none)
	})

	t.Run("apply inserts only when absent", func(t *testing.T) {
		w, err := Put("accounts", "acc", record{Name: "one"}, 0)
		require.NoError(t, err)
		require.NoError(t, s.Apply(ctx, w))
		assert.ErrorIs(t, s.Apply(ctx, w), ErrVersionConflict)
	})

	t.Run("apply is all or nothing", func(t *testing.T) {
		require.NoError(t, SetFrom(ctx, s, "pairs", "left", record{Name: "l0"}))

		left, err := Put("pairs", "left", record{Name: "l1"}, 7)
		require.NoError(t, err)
		right, err := Put("pairs", "right", record{Name: "r1"}, 0)
		require.NoError(t, err)

		assert.ErrorIs(t, s.Apply(ctx, right, left), ErrVersionConflict)
		_, err = s.Get(ctx, "pairs", "right")
		assert.ErrorIs(t, err, ErrNotFound)

		left.Version = 1
		require.NoError(t, s.Apply(ctx, right, left))
		doc, err := s.Get(ctx, "pairs", "left")
		require.NoError(t, err)
		assert.Equal(t, int64(2), doc.Version)
	})

	t.Run("apply deletes", func(t *testing.T) {
		require.NoError(t, SetFrom(ctx, s, "temp", "t", record{Name: "t"}))
		require.NoError(t, s.Apply(ctx, Remove("temp", "t", 1)))
		_, err := s.Get(ctx, "temp", "t")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("apply rejects duplicate targets", func(t *testing.T) {
		w, err := Put("dups", "d", record{}, AnyVersion)
		require.NoError(t, err)
		err = s.Apply(ctx, w, w)
		require.Error(t, err)
		assert.False(t, errors.Is(err, ErrVersionConflict))
	})

	t.Run("concurrent disjoint batches", func(t *testing.T) {
		const workers = 16
		errs := make([]error, workers)
		var wg sync.WaitGroup
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				key, err := Put("claims", fmt.Sprintf("key-%02d", i), record{Name: "claim"}, 0)
				if err != nil {
					errs[i] = err
					return
				}
				item, err := Put("claims", fmt.Sprintf("item-%02d", i), record{Name: "item"}, 0)
				if err != nil {
					errs[i] = err
					return
				}
				errs[i] = s.Apply(ctx, key, item)
			}(i)
		}
		wg.Wait()

		for i, err := range errs {
			assert.NoError(t, err, "worker %d", i)
		}
		all, err := s.Query(ctx, "claims", Query{})
		require.NoError(t, err)
		assert.Len(t, all, 2*workers)
	})

	t.Run("ping", func(t *testing.T) {
		assert.NoError(t, s.Ping(ctx))
	})
}

func TestSortDocumentsMixedTypes(t *testing.T) {
	docs := []Document{
		{ID: "b", Data: json.RawMessage(`{"k":"text"}`)},
		{ID: "a", Data: json.RawMessage(`{"k":5}`)},
		{ID: "c", Data: json.RawMessage(`{}`)},
	}
	sortDocuments(docs, "k", false)
	assert.Equal(t, []string{"c", "a", "b"}, []string{docs[0].ID, docs[1].ID, docs[2].ID})
}
