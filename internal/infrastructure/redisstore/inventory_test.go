package redisstore

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/Zhima-Mochi/libraryhold/internal/domain/inventory"
	"github.com/Zhima-Mochi/libraryhold/internal/infrastructure/storetest"
)

// newTestRepository uses a random key prefix so runs never collide, and
// deletes its keys afterwards.
func newTestRepository(t *testing.T) *InventoryRepository {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	ctx := context.Background()
	require.NoError(t, client.Ping(ctx).Err())

	prefix := "test-" + uuid.NewString()
	t.Cleanup(func() {
		iter := client.Scan(ctx, 0, prefix+":*", 100).Iterator()
		for iter.Next(ctx) {
			client.Del(ctx, iter.Val())
		}
		_ = client.Close()
	})
	return NewInventoryRepository(client, prefix)
}

func TestInventoryRepository(t *testing.T) {
	storetest.Inventory(t, func(t *testing.T) inventory.Repository {
		return newTestRepository(t)
	})
}

func TestFlagAndParse(t *testing.T) {
	require.Equal(t, "1", flag(true))
	require.Equal(t, "0", flag(false))
	require.True(t, parseNanos("garbage").IsZero())
	require.Equal(t, int64(42), parseNanos("42").UnixNano())
}
