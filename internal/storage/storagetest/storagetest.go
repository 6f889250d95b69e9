// Package storagetest is a conformance suite every storage adapter runs from
// its own tests.
package storagetest

import (
	"context"
	"testing"

	"github.com/dmitrijs2005/gophvault/internal/common"
	"github.com/dmitrijs2005/gophvault/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory returns a fresh, empty store for one subtest.
type Factory func(t *testing.T) storage.Store

// Run exercises the storage.Store contract against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Helper()

	t.Run("InsertFetch", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		id1, err := s.Insert(ctx, "alice", []byte{1, 2, 3})
		require.NoError(t, err)
		id2, err := s.Insert(ctx, "alice", []byte{4, 5})
		require.NoError(t, err)
		assert.NotEqual(t, id1, id2)

		recs, err := s.FetchAll(ctx, "alice")
		require.NoError(t, err)
		require.Len(t, recs, 2)

		byID := map[string]storage.Record{}
		for _, r := range recs {
			byID[r.ID] = r
			assert.Equal(t, "alice", r.OwnerID)
			assert.False(t, r.CreatedAt.IsZero())
		}
		assert.Equal(t, []byte{1, 2, 3}, byID[id1].Blob)
		assert.Equal(t, []byte{4, 5}, byID[id2].Blob)
	})

	t.Run("FetchEmpty", func(t *testing.T) {
		s := newStore(t)
		recs, err := s.FetchAll(context.Background(), "nobody")
		require.NoError(t, err)
		assert.Empty(t, recs)
	})

	t.Run("OwnerIsolation", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		aliceID, err := s.Insert(ctx, "alice", []byte("a"))
		require.NoError(t, err)
		_, err = s.Insert(ctx, "bob", []byte("b"))
		require.NoError(t, err)

		recs, err := s.FetchAll(ctx, "bob")
		require.NoError(t, err)
		require.Len(t, recs, 1)
		assert.Equal(t, []byte("b"), recs[0].Blob)

		err = s.Update(ctx, "bob", aliceID, []byte("stolen"))
		require.ErrorIs(t, err, common.ErrorNotFound)

		err = s.Delete(ctx, "bob", aliceID)
		require.ErrorIs(t, err, common.ErrorNotFound)

		recs, err = s.FetchAll(ctx, "alice")
		require.NoError(t, err)
		require.Len(t, recs, 1)
		assert.Equal(t, []byte("a"), recs[0].Blob)
	})

	t.Run("Update", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		id, err := s.Insert(ctx, "alice", []byte("v1"))
		require.NoError(t, err)
		require.NoError(t, s.Update(ctx, "alice", id, []byte("v2")))

		recs, err := s.FetchAll(ctx, "alice")
		require.NoError(t, err)
		require.Len(t, recs, 1)
		assert.Equal(t, id, recs[0].ID)
		assert.Equal(t, []byte("v2"), recs[0].Blob)
	})

	t.Run("UpdateMissing", func(t *testing.T) {
		s := newStore(t)
		err := s.Update(context.Background(), "alice", "does-not-exist", []byte("x"))
		require.ErrorIs(t, err, common.ErrorNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		id, err := s.Insert(ctx, "alice", []byte("x"))
		require.NoError(t, err)
		require.NoError(t, s.Delete(ctx, "alice", id))

		recs, err := s.FetchAll(ctx, "alice")
		require.NoError(t, err)
		assert.Empty(t, recs)

		err = s.Delete(ctx, "alice", id)
		require.ErrorIs(t, err, common.ErrorNotFound)
	})

	t.Run("Params", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		_, err := s.LoadParams(ctx, "alice")
		require.ErrorIs(t, err, common.ErrorNotFound)

		p := &storage.Params{
			Salt:       []byte("0123456789abcdef0123456789abcdef"),
			Iterations: 600_000,
			Cipher:     "aes-256-gcm",
			Canary:     []byte{9, 8, 7},
		}
		require.NoError(t, s.SaveParams(ctx, "alice", p))

		got, err := s.LoadParams(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, p, got)

		_, err = s.LoadParams(ctx, "bob")
		require.ErrorIs(t, err, common.ErrorNotFound)

		p2 := p.Clone()
		p2.Salt = []byte("fedcba9876543210fedcba9876543210")
		p2.Iterations = 700_000
		require.NoError(t, s.SaveParams(ctx, "alice", p2))

		got, err = s.LoadParams(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, p2, got)
	})

	t.Run("ReplaceBlobs", func(t *testing.T) {
		s := newStore(t)
		br, ok := s.(storage.BlobReplacer)
		if !ok {
			t.Skip("adapter has no transactional replace")
		}
		ctx := context.Background()

		a, err := s.Insert(ctx, "alice", []byte("a1"))
		require.NoError(t, err)
		b, err := s.Insert(ctx, "alice", []byte("b1"))
		require.NoError(t, err)
		bobs, err := s.Insert(ctx, "bob", []byte("x"))
		require.NoError(t, err)

		require.NoError(t, br.ReplaceBlobs(ctx, "alice", map[string][]byte{a: []byte("a2"), b: []byte("b2")}))

		err = br.ReplaceBlobs(ctx, "alice", map[string][]byte{a: []byte("a3"), bobs: []byte("stolen")})
		require.ErrorIs(t, err, common.ErrorNotFound)

		recs, err := s.FetchAll(ctx, "alice")
		require.NoError(t, err)
		got := map[string][]byte{}
		for _, r := range recs {
			got[r.ID] = r.Blob
		}
		assert.Equal(t, map[string][]byte{a: []byte("a2"), b: []byte("b2")}, got)

		recs, err = s.FetchAll(ctx, "bob")
		require.NoError(t, err)
		require.Len(t, recs, 1)
		assert.Equal(t, []byte("x"), recs[0].Blob)
	})
}
