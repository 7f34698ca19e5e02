package memory

import (
	"context"
	"sync"

	domain "github.com/Zhima-Mochi/libraryhold/internal/domain/holder"
)

type HolderDirectory struct {
	mu      sync.RWMutex
	holders map[int64]domain.Holder
}

func NewHolderDirectory(holders ...domain.Holder) *HolderDirectory {
	d := &HolderDirectory{holders: make(map[int64]domain.Holder, len(holders))}
	for _, h := range holders {
		d.holders[h.ID] = h
	}
	return d
}

func (d *HolderDirectory) Exists(ctx context.Context, holderID int64) (bool, error) {
	_ = ctx
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.holders[holderID]
	return ok, nil
}

func (d *HolderDirectory) AddHolder(ctx context.Context, h domain.Holder) error {
	_ = ctx
	d.mu.Lock()
	defer d.mu.Unlock()
	d.holders[h.ID] = h
	return nil
}
