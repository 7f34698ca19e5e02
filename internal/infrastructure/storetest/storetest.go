// Package storetest holds behaviour checks shared by every storage backend.
package storetest

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/Zhima-Mochi/libraryhold/internal/domain/inventory"
	"github.com/Zhima-Mochi/libraryhold/internal/domain/reservation"
)

// Inventory runs the availability store checks against a fresh repository per subtest.
func Inventory(t *testing.T, newRepo func(t *testing.T) inventory.Repository) {
	t.Helper()
	ctx := context.Background()

	t.Run("get unknown", func(t *testing.T) {
		repo := newRepo(t)
		_, err := repo.Get(ctx, 404)
		require.ErrorIs(t, err, inventory.ErrNotFound)
		require.ErrorIs(t, repo.SetAvailable(ctx, 404, true), inventory.ErrNotFound)
		require.ErrorIs(t, repo.ReserveIfAvailable(ctx, 404), inventory.ErrNotFound)
	})

	t.Run("reserve then release", func(t *testing.T) {
		repo := newRepo(t)
		require.NoError(t, repo.Add(ctx, inventory.Item{ID: 1, Available: true}))

		require.NoError(t, repo.ReserveIfAvailable(ctx, 1))
		item, err := repo.Get(ctx, 1)
		require.NoError(t, err)
		assert.False(t, item.Available)

		require.ErrorIs(t, repo.ReserveIfAvailable(ctx, 1), inventory.ErrAlreadyReserved)

		require.NoError(t, repo.SetAvailable(ctx, 1, true))
		require.NoError(t, repo.SetAvailable(ctx, 1, true), "release is idempotent")
		item, err = repo.Get(ctx, 1)
		require.NoError(t, err)
		assert.True(t, item.Available)
	})

	t.Run("list unavailable", func(t *testing.T) {
		repo := newRepo(t)
		for _, id := range []int64{1, 2, 3} {
			require.NoError(t, repo.Add(ctx, inventory.Item{ID: id, Available: true}))
		}
		require.NoError(t, repo.ReserveIfAvailable(ctx, 3))
		require.NoError(t, repo.ReserveIfAvailable(ctx, 1))

		items, err := repo.ListUnavailable(ctx)
		require.NoError(t, err)
		ids := make([]int64, 0, len(items))
		for _, it := range items {
			ids = append(ids, it.ID)
			assert.False(t, it.Available)
		}
		assert.ElementsMatch(t, []int64{1, 3}, ids)
	})

	t.Run("concurrent reserve has one winner", func(t *testing.T) {
		repo := newRepo(t)
		require.NoError(t, repo.Add(ctx, inventory.Item{ID: 9, Available: true}))

		var wins, denied atomic.Int32
		var g errgroup.Group
		for range 16 {
			g.Go(func() error {
				err := repo.ReserveIfAvailable(ctx, 9)
				switch {
				case err == nil:
					wins.Add(1)
				case assert.ErrorIs(t, err, inventory.ErrAlreadyReserved):
					denied.Add(1)
				}
				return nil
			})
		}
		require.NoError(t, g.Wait())
		assert.Equal(t, int32(1), wins.Load())
		assert.Equal(t, int32(15), denied.Load())
	})
}

// Ledger runs the reservation ledger checks against a fresh ledger per subtest.
func Ledger(t *testing.T, newLedger func(t *testing.T) reservation.Ledger) {
	t.Helper()
	ctx := context.Background()

	t.Run("create get cancel", func(t *testing.T) {
		l := newLedger(t)
		res, err := l.Create(ctx, 1, 10)
		require.NoError(t, err)
		require.NotEmpty(t, res.ID)
		assert.Equal(t, reservation.StatusActive, res.Status)

		got, err := l.Get(ctx, res.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(1), got.HolderID)
		assert.Equal(t, int64(10), got.ItemID)

		require.NoError(t, l.Cancel(ctx, res.ID))
		_, err = l.Get(ctx, res.ID)
		require.ErrorIs(t, err, reservation.ErrNotFound)
		require.ErrorIs(t, l.Cancel(ctx, res.ID), reservation.ErrNotFound, "second cancel must not succeed")
	})

	t.Run("unknown id", func(t *testing.T) {
		l := newLedger(t)
		_, err := l.Get(ctx, "missing")
		require.ErrorIs(t, err, reservation.ErrNotFound)
		require.ErrorIs(t, l.Cancel(ctx, "missing"), reservation.ErrNotFound)
	})

	t.Run("list by holder and active", func(t *testing.T) {
		l := newLedger(t)
		a, err := l.Create(ctx, 1, 10)
		require.NoError(t, err)
		b, err := l.Create(ctx, 1, 11)
		require.NoError(t, err)
		_, err = l.Create(ctx, 2, 12)
		require.NoError(t, err)
		require.NoError(t, l.Cancel(ctx, a.ID))

		mine, err := l.ListByHolder(ctx, 1)
		require.NoError(t, err)
		require.Len(t, mine, 2)
		byID := map[string]reservation.Reservation{}
		for _, r := range mine {
			byID[r.ID] = r
		}
		assert.Equal(t, reservation.StatusCancelled, byID[a.ID].Status)
		assert.NotNil(t, byID[a.ID].CancelledAt)
		assert.Equal(t, reservation.StatusActive, byID[b.ID].Status)

		active, err := l.ListActive(ctx)
		require.NoError(t, err)
		items := make([]int64, 0, len(active))
		for _, r := range active {
			items = append(items, r.ItemID)
		}
		assert.ElementsMatch(t, []int64{11, 12}, items)
	})

	t.Run("concurrent cancel has one winner", func(t *testing.T) {
		l := newLedger(t)
		res, err := l.Create(ctx, 3, 30)
		require.NoError(t, err)

		var wins atomic.Int32
		var g errgroup.Group
		for range 8 {
			g.Go(func() error {
				if err := l.Cancel(ctx, res.ID); err == nil {
					wins.Add(1)
				}
				return nil
			})
		}
		require.NoError(t, g.Wait())
		assert.Equal(t, int32(1), wins.Load())
	})
}
