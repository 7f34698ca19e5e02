package inventory

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	dominv "github.com/Zhima-Mochi/libraryhold/internal/domain/inventory"
	domoutbox "github.com/Zhima-Mochi/libraryhold/internal/domain/outbox"
	"github.com/Zhima-Mochi/libraryhold/internal/infrastructure/memory"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []domoutbox.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, e domoutbox.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) names() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.EventName())
	}
	return out
}

type failingRepo struct {
	dominv.Repository
	err error
}

func (r failingRepo) Get(context.Context, int64) (*dominv.Item, error) { return nil, r.err }
func (r failingRepo) ReserveIfAvailable(context.Context, int64) error  { return r.err }
func (r failingRepo) SetAvailable(context.Context, int64, bool) error  { return r.err }

func seeded(t *testing.T, ids ...int64) *memory.InventoryRepository {
	t.Helper()
	repo := memory.NewInventoryRepository()
	for _, id := range ids {
		require.NoError(t, repo.Add(context.Background(), dominv.Item{ID: id, Available: true}))
	}
	return repo
}

func TestCheckAvailability(t *testing.T) {
	ctx := context.Background()
	c := NewCoordinator(seeded(t, 1), nil, nil)

	ok, err := c.CheckAvailability(ctx, 1)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.CheckAvailability(ctx, 999)
	require.NoError(t, err, "unknown items are simply unavailable")
	assert.False(t, ok)
}

func TestReserve_FlipsOnce(t *testing.T) {
	ctx := context.Background()
	pub := &recordingPublisher{}
	c := NewCoordinator(seeded(t, 1), pub, nil)

	out, err := c.Reserve(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, dominv.Outcome{Success: true}, out)

	out, err = c.Reserve(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, dominv.Outcome{Reason: dominv.ReasonAlreadyReserved}, out)

	ok, err := c.CheckAvailability(ctx, 1)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.Equal(t, []string{"inventory.item_reserved"}, pub.names())
}

func TestReserve_UnknownItem(t *testing.T) {
	out, err := NewCoordinator(seeded(t), nil, nil).Reserve(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, dominv.Outcome{Reason: dominv.ReasonNotFound}, out)
}

func TestReserve_PublishFailureKeepsReservation(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("bus closed")}
	c := NewCoordinator(seeded(t, 1), pub, nil)

	out, err := c.Reserve(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, out.Success)
}

func TestReserve_StoreFailureIsError(t *testing.T) {
	boom := errors.New("connection reset")
	c := NewCoordinator(failingRepo{err: boom}, nil, nil)

	_, err := c.Reserve(context.Background(), 1)
	require.ErrorIs(t, err, boom)

	_, err = c.Release(context.Background(), 1)
	require.ErrorIs(t, err, boom)

	_, err = c.CheckAvailability(context.Background(), 1)
	require.ErrorIs(t, err, boom)
}

func TestRelease_IsIdempotent(t *testing.T) {
	ctx := context.Background()
	pub := &recordingPublisher{}
	c := NewCoordinator(seeded(t, 1), pub, nil)

	_, err := c.Reserve(ctx, 1)
	require.NoError(t, err)

	for range 2 {
		out, err := c.Release(ctx, 1)
		require.NoError(t, err)
		assert.True(t, out.Success)
	}

	ok, err := c.CheckAvailability(ctx, 1)
	require.NoError(t, err)
	assert.True(t, ok)

	out, err := c.Release(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, dominv.Outcome{Reason: dominv.ReasonNotFound}, out)
}

func TestReserve_ConcurrentCallersOneWinner(t *testing.T) {
	ctx := context.Background()
	c := NewCoordinator(seeded(t, 7), nil, nil)

	var wins atomic.Int32
	var g errgroup.Group
	for range 32 {
		g.Go(func() error {
			out, err := c.Reserve(ctx, 7)
			if err != nil {
				return err
			}
			if out.Success {
				wins.Add(1)
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	assert.Equal(t, int32(1), wins.Load())
}
