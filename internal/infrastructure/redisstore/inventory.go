// Package redisstore keeps availability flags in Redis. Each item is a hash;
// a set indexes the unavailable ids for reconciliation. Lua scripts make every
// mutation a single atomic step.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	domain "github.com/Zhima-Mochi/libraryhold/internal/domain/inventory"
)

const (
	DefaultPrefix = "inventory"

	fieldAvailable = "available"
	fieldUpdatedAt = "updated_at"
)

// Result codes shared by the scripts.
const (
	codeMissing  = -1
	codeRejected = 0
	codeOK       = 1
)

var addScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then return 0 end
redis.call('HSET', KEYS[1], 'available', ARGV[3], 'updated_at', ARGV[2])
if ARGV[3] == '0' then redis.call('SADD', KEYS[2], ARGV[1]) end
return 1
`)

var reserveScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then return -1 end
if redis.call('HGET', KEYS[1], 'available') ~= '1' then return 0 end
redis.call('HSET', KEYS[1], 'available', '0', 'updated_at', ARGV[2])
redis.call('SADD', KEYS[2], ARGV[1])
return 1
`)

var setAvailableScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then return -1 end
redis.call('HSET', KEYS[1], 'available', ARGV[3], 'updated_at', ARGV[2])
if ARGV[3] == '1' then
  redis.call('SREM', KEYS[2], ARGV[1])
else
  redis.call('SADD', KEYS[2], ARGV[1])
end
return 1
`)

type InventoryRepository struct {
	client redis.UniversalClient
	prefix string
	now    func() time.Time
}

// NewInventoryRepository uses prefix for every key; empty means DefaultPrefix.
// The item hash and the index set are touched by one script, so a cluster
// deployment needs them on the same slot (e.g. a prefix with a hash tag).
func NewInventoryRepository(client redis.UniversalClient, prefix string) *InventoryRepository {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &InventoryRepository{
		client: client,
		prefix: prefix,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (r *InventoryRepository) itemKey(id int64) string {
	return fmt.Sprintf("%s:item:%d", r.prefix, id)
}

func (r *InventoryRepository) unavailableKey() string {
	return r.prefix + ":unavailable"
}

func (r *InventoryRepository) run(ctx context.Context, script *redis.Script, itemID int64, extra ...any) (int64, error) {
	args := append([]any{itemID, r.now().UnixNano()}, extra...)
	code, err := script.Run(ctx, r.client, []string{r.itemKey(itemID), r.unavailableKey()}, args...).Int64()
	if err != nil {
		return 0, fmt.Errorf("redisstore: script: %w", err)
	}
	return code, nil
}

func (r *InventoryRepository) Add(ctx context.Context, item domain.Item) error {
	if item.ID <= 0 {
		return domain.ErrInvalidID
	}
	code, err := r.run(ctx, addScript, item.ID, flag(item.Available))
	if err != nil {
		return err
	}
	if code != codeOK {
		return fmt.Errorf("redisstore: item %d already exists", item.ID)
	}
	return nil
}

func (r *InventoryRepository) Get(ctx context.Context, itemID int64) (*domain.Item, error) {
	vals, err := r.client.HMGet(ctx, r.itemKey(itemID), fieldAvailable, fieldUpdatedAt).Result()
	if err != nil {
		return nil, fmt.Errorf("redisstore: get item %d: %w", itemID, err)
	}
	if len(vals) != 2 || vals[0] == nil {
		return nil, domain.ErrNotFound
	}
	available, _ := vals[0].(string)
	updated, _ := vals[1].(string)
	return &domain.Item{
		ID:        itemID,
		Available: available == "1",
		UpdatedAt: parseNanos(updated),
	}, nil
}

func (r *InventoryRepository) SetAvailable(ctx context.Context, itemID int64, available bool) error {
	code, err := r.run(ctx, setAvailableScript, itemID, flag(available))
	if err != nil {
		return err
	}
	if code == codeMissing {
		return domain.ErrNotFound
	}
	return nil
}

func (r *InventoryRepository) ReserveIfAvailable(ctx context.Context, itemID int64) error {
	code, err := r.run(ctx, reserveScript, itemID)
	if err != nil {
		return err
	}
	switch code {
	case codeOK:
		return nil
	case codeRejected:
		return domain.ErrAlreadyReserved
	case codeMissing:
		return domain.ErrNotFound
	default:
		return fmt.Errorf("redisstore: unknown result code %d", code)
	}
}

func (r *InventoryRepository) ListUnavailable(ctx context.Context) ([]domain.Item, error) {
	members, err := r.client.SMembers(ctx, r.unavailableKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("redisstore: list unavailable: %w", err)
	}

	ids := make([]int64, 0, len(members))
	for _, m := range members {
		id, err := strconv.ParseInt(m, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("redisstore: bad member %q: %w", m, err)
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	pipe := r.client.Pipeline()
	cmds := make([]*redis.SliceCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HMGet(ctx, r.itemKey(id), fieldAvailable, fieldUpdatedAt)
	}
	if len(ids) > 0 {
		if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("redisstore: load unavailable: %w", err)
		}
	}

	out := make([]domain.Item, 0, len(ids))
	for i, id := range ids {
		vals := cmds[i].Val()
		// The index may briefly lag a concurrent release; trust the hash.
		if len(vals) != 2 || vals[0] != "0" {
			continue
		}
		updated, _ := vals[1].(string)
		out = append(out, domain.Item{ID: id, UpdatedAt: parseNanos(updated)})
	}
	return out, nil
}

func flag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func parseNanos(s string) time.Time {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}
