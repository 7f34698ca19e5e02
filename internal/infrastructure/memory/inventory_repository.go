package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	domain "github.com/Zhima-Mochi/libraryhold/internal/domain/inventory"
)

// InventoryRepository keeps availability flags in a map. The mutex makes
// ReserveIfAvailable a single check-and-set.
type InventoryRepository struct {
	mu    sync.RWMutex
	items map[int64]*domain.Item
	now   func() time.Time
}

func NewInventoryRepository() *InventoryRepository {
	return &InventoryRepository{
		items: make(map[int64]*domain.Item),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func (r *InventoryRepository) Add(ctx context.Context, item domain.Item) error {
	_ = ctx
	if item.ID <= 0 {
		return domain.ErrInvalidID
	}
	if item.UpdatedAt.IsZero() {
		item.UpdatedAt = r.now()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.items[item.ID]; ok {
		return fmt.Errorf("memory: item %d already exists", item.ID)
	}
	r.items[item.ID] = cloneItem(&item)
	return nil
}

func (r *InventoryRepository) Get(ctx context.Context, itemID int64) (*domain.Item, error) {
	_ = ctx

	r.mu.RLock()
	defer r.mu.RUnlock()

	item, ok := r.items[itemID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cloneItem(item), nil
}

func (r *InventoryRepository) SetAvailable(ctx context.Context, itemID int64, available bool) error {
	_ = ctx

	r.mu.Lock()
	defer r.mu.Unlock()

	item, ok := r.items[itemID]
	if !ok {
		return domain.ErrNotFound
	}
	item.Available = available
	item.UpdatedAt = r.now()
	return nil
}

func (r *InventoryRepository) ReserveIfAvailable(ctx context.Context, itemID int64) error {
	_ = ctx

	r.mu.Lock()
	defer r.mu.Unlock()

	item, ok := r.items[itemID]
	if !ok {
		return domain.ErrNotFound
	}
	if !item.Available {
		return domain.ErrAlreadyReserved
	}
	item.Available = false
	item.UpdatedAt = r.now()
	return nil
}

func (r *InventoryRepository) ListUnavailable(ctx context.Context) ([]domain.Item, error) {
	_ = ctx

	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.Item, 0)
	for _, item := range r.items {
		if !item.Available {
			out = append(out, *item)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func cloneItem(item *domain.Item) *domain.Item {
	if item == nil {
		return nil
	}
	clone := *item
	return &clone
}
