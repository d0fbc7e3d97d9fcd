// Package docstoretest holds behaviour tests shared by every docstore driver.
package docstoretest

import (
	"context"
	"fmt"
	"testing"

	"github.com/jrsteele09/go-integrations-server/docstore"
	"github.com/stretchr/testify/require"
)

// Run exercises a driver. newStore must return an empty store.
func Run(t *testing.T, newStore func(t *testing.T) docstore.Store) {
	t.Run("GetMissing", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Get(context.Background(), "organizations/org1")
		require.ErrorIs(t, err, docstore.ErrNotFound)
	})

	t.Run("SetAndGet", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		require.NoError(t, s.Set(ctx, "organizations/org1", map[string]any{"name": "Acme", "seats": 3}))

		doc, err := s.Get(ctx, "organizations/org1")
		require.NoError(t, err)
		require.Equal(t, "organizations/org1", doc.Path)
		require.Equal(t, "org1", doc.ID())
		require.Equal(t, "Acme", doc.Data["name"])
		require.Equal(t, float64(3), doc.Data["seats"])
		require.False(t, doc.UpdateTime.IsZero())
	})

	t.Run("SetReplaces", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		require.NoError(t, s.Set(ctx, "a/1", map[string]any{"x": "1", "y": "2"}))
		require.NoError(t, s.Set(ctx, "a/1", map[string]any{"x": "3"}))

		doc, err := s.Get(ctx, "a/1")
		require.NoError(t, err)
		require.Equal(t, map[string]any{"x": "3"}, doc.Data)
	})

	t.Run("MergeKeepsUnspecifiedFields", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		require.NoError(t, s.Merge(ctx, "a/1", map[string]any{"x": "1", "y": "2"}))
		require.NoError(t, s.Merge(ctx, "a/1", map[string]any{"y": "3", "z": true}))

		doc, err := s.Get(ctx, "a/1")
		require.NoError(t, err)
		require.Equal(t, map[string]any{"x": "1", "y": "3", "z": true}, doc.Data)
	})

	t.Run("MergeDeleteField", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		require.NoError(t, s.Set(ctx, "a/1", map[string]any{"x": "1", "y": "2"}))
		require.NoError(t, s.Merge(ctx, "a/1", map[string]any{"y": docstore.DeleteField}))

		doc, err := s.Get(ctx, "a/1")
		require.NoError(t, err)
		require.Equal(t, map[string]any{"x": "1"}, doc.Data)
	})

	t.Run("Delete", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		require.NoError(t, s.Set(ctx, "a/1", map[string]any{"x": "1"}))
		require.NoError(t, s.Delete(ctx, "a/1"))
		require.NoError(t, s.Delete(ctx, "a/1"))

		_, err := s.Get(ctx, "a/1")
		require.ErrorIs(t, err, docstore.ErrNotFound)
	})

	t.Run("ListDirectChildrenOnly", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		require.NoError(t, s.Set(ctx, "organizations/org2", map[string]any{"n": 2}))
		require.NoError(t, s.Set(ctx, "organizations/org1", map[string]any{"n": 1}))
		require.NoError(t, s.Set(ctx, "organizations/org1/integrations/google", map[string]any{"n": 3}))
		require.NoError(t, s.Set(ctx, "users/u1", map[string]any{"n": 4}))

		docs, err := s.List(ctx, "organizations")
		require.NoError(t, err)
		require.Len(t, docs, 2)
		require.Equal(t, "organizations/org1", docs[0].Path)
		require.Equal(t, "organizations/org2", docs[1].Path)

		docs, err = s.List(ctx, "organizations/org1/integrations")
		require.NoError(t, err)
		require.Len(t, docs, 1)
		require.Equal(t, "google", docs[0].ID())

		docs, err = s.List(ctx, "empty")
		require.NoError(t, err)
		require.Empty(t, docs)
	})

	t.Run("InvalidPaths", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		_, err := s.Get(ctx, "organizations")
		require.ErrorIs(t, err, docstore.ErrInvalidPath)
		require.ErrorIs(t, s.Set(ctx, "a//b/c", map[string]any{}), docstore.ErrInvalidPath)
		_, err = s.List(ctx, "organizations/org1")
		require.ErrorIs(t, err, docstore.ErrInvalidPath)
	})

	t.Run("CommitIsAtomic", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		require.NoError(t, s.Set(ctx, "a/1", map[string]any{"v": "old"}))
		err := s.Commit(ctx, []docstore.Write{
			docstore.MergeWrite("a/1", map[string]any{"v": "new"}),
			docstore.SetWrite("a/bad/", map[string]any{}),
		})
		require.Error(t, err)

		doc, err := s.Get(ctx, "a/1")
		require.NoError(t, err)
		require.Equal(t, "old", doc.Data["v"])
	})

	t.Run("CommitSequentialWritesToSamePath", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		require.NoError(t, s.Commit(ctx, []docstore.Write{
			docstore.SetWrite("a/1", map[string]any{"x": "1"}),
			docstore.MergeWrite("a/1", map[string]any{"y": "2"}),
			docstore.SetWrite("a/2", map[string]any{"x": "1"}),
			docstore.DeleteWrite("a/2"),
		}))

		doc, err := s.Get(ctx, "a/1")
		require.NoError(t, err)
		require.Equal(t, map[string]any{"x": "1", "y": "2"}, doc.Data)
		_, err = s.Get(ctx, "a/2")
		require.ErrorIs(t, err, docstore.ErrNotFound)
	})

	t.Run("CommitRejectsOversizedBatch", func(t *testing.T) {
		s := newStore(t)
		writes := make([]docstore.Write, docstore.MaxBatchWrites+1)
		for i := range writes {
			writes[i] = docstore.SetWrite(fmt.Sprintf("a/%d", i), map[string]any{"i": i})
		}
		require.ErrorIs(t, s.Commit(context.Background(), writes), docstore.ErrBatchTooLarge)
	})

	t.Run("CommitChunked", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		writes := make([]docstore.Write, 1001)
		for i := range writes {
			writes[i] = docstore.SetWrite(fmt.Sprintf("a/%04d", i), map[string]any{"i": i})
		}
		require.NoError(t, docstore.CommitChunked(ctx, s, writes, 0))

		docs, err := s.List(ctx, "a")
		require.NoError(t, err)
		require.Len(t, docs, 1001)
	})

	t.Run("StoredDataIsIsolated", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		data := map[string]any{"scopes": []any{"a"}}
		require.NoError(t, s.Set(ctx, "a/1", data))
		data["scopes"] = []any{"mutated"}

		doc, err := s.Get(ctx, "a/1")
		require.NoError(t, err)
		doc.Data["scopes"] = []any{"mutated-again"}

		doc, err = s.Get(ctx, "a/1")
		require.NoError(t, err)
		require.Equal(t, []any{"a"}, doc.Data["scopes"])
	})
}
