// Package statistics counts successful reservations per item.
package statistics

import (
	"context"
	"sort"
	"sync"
)

// Entry is one row of the statistics report.
type Entry struct {
	ItemID       int64 `json:"item_id"`
	Reservations int64 `json:"reservations"`
}

// Service owns the per-item counters. Counts live only as long as the
// process; the ledger remains the durable record.
type Service struct {
	mu     sync.RWMutex
	counts map[int64]int64
}

func NewService() *Service {
	return &Service{counts: make(map[int64]int64)}
}

func (s *Service) Record(ctx context.Context, itemID int64) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts[itemID]++
}

// Snapshot returns the counters ordered by item id.
func (s *Service) Snapshot(ctx context.Context) []Entry {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Entry, 0, len(s.counts))
	for id, n := range s.counts {
		out = append(out, Entry{ItemID: id, Reservations: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ItemID < out[j].ItemID })
	return out
}

func (s *Service) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts = make(map[int64]int64)
}
