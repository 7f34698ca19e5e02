package reservation

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"

	appinventory "github.com/Zhima-Mochi/libraryhold/internal/application/inventory"
	domholder "github.com/Zhima-Mochi/libraryhold/internal/domain/holder"
	dominv "github.com/Zhima-Mochi/libraryhold/internal/domain/inventory"
	domoutbox "github.com/Zhima-Mochi/libraryhold/internal/domain/outbox"
	domres "github.com/Zhima-Mochi/libraryhold/internal/domain/reservation"
	"github.com/Zhima-Mochi/libraryhold/internal/infrastructure/id"
	"github.com/Zhima-Mochi/libraryhold/internal/infrastructure/memory"
	"github.com/Zhima-Mochi/libraryhold/internal/observability"
)

type recordedCounter struct {
	mu     sync.Mutex
	totals map[string]float64
}

func (c *recordedCounter) Add(d float64, labels ...observability.Label) {
	parts := make([]string, 0, len(labels))
	for _, l := range labels {
		parts = append(parts, l.Key+"="+l.Value)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.totals[strings.Join(parts, ",")] += d
}

func (c *recordedCounter) get(labels string) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.totals[labels]
}

type recordingMetrics struct {
	mu       sync.Mutex
	counters map[observability.MetricKey]*recordedCounter
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{counters: map[observability.MetricKey]*recordedCounter{}}
}

func (m *recordingMetrics) Counter(name observability.MetricKey) observability.Counter {
	return m.counter(name)
}

func (m *recordingMetrics) Histogram(observability.MetricKey) observability.Histogram {
	return observability.NopHistogram()
}

func (m *recordingMetrics) counter(name observability.MetricKey) *recordedCounter {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.counters[name]
	if !ok {
		c = &recordedCounter{totals: map[string]float64{}}
		m.counters[name] = c
	}
	return c
}

type testObs struct{ metrics *recordingMetrics }

func (testObs) Tracer() observability.Tracer     { return observability.NopTracer() }
func (testObs) Logger() observability.Logger     { return observability.NopLogger() }
func (o testObs) Metrics() observability.Metrics { return o.metrics }

type recordingPublisher struct {
	mu     sync.Mutex
	events []domoutbox.Event
}

func (p *recordingPublisher) Publish(_ context.Context, e domoutbox.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) byName(name string) []domoutbox.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []domoutbox.Event
	for _, e := range p.events {
		if e.EventName() == name {
			out = append(out, e)
		}
	}
	return out
}

// scriptedInventory wraps a real inventory coordinator and lets tests break
// individual calls.
type scriptedInventory struct {
	InventoryPort

	reserveErr   error
	releaseErr   error
	releaseCalls atomic.Int32
	block        chan struct{}
}

func (s *scriptedInventory) Reserve(ctx context.Context, itemID int64) (dominv.Outcome, error) {
	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
			return dominv.Outcome{}, ctx.Err()
		}
	}
	if s.reserveErr != nil {
		return dominv.Outcome{}, s.reserveErr
	}
	return s.InventoryPort.Reserve(ctx, itemID)
}

func (s *scriptedInventory) Release(ctx context.Context, itemID int64) (dominv.Outcome, error) {
	s.releaseCalls.Add(1)
	if err := ctx.Err(); err != nil {
		return dominv.Outcome{}, err
	}
	if s.releaseErr != nil {
		return dominv.Outcome{}, s.releaseErr
	}
	return s.InventoryPort.Release(ctx, itemID)
}

type scriptedLedger struct {
	domres.Ledger

	createErr error
	cancelErr error
	onCreate  func()
}

func (l *scriptedLedger) Create(ctx context.Context, holderID, itemID int64) (*domres.Reservation, error) {
	if l.onCreate != nil {
		l.onCreate()
	}
	if l.createErr != nil {
		return nil, l.createErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return l.Ledger.Create(ctx, holderID, itemID)
}

func (l *scriptedLedger) Cancel(ctx context.Context, id string) error {
	if l.cancelErr != nil {
		return l.cancelErr
	}
	return l.Ledger.Cancel(ctx, id)
}

type brokenDirectory struct{}

func (brokenDirectory) Exists(context.Context, int64) (bool, error) {
	return false, errors.New("directory offline")
}

type harness struct {
	items     *memory.InventoryRepository
	inventory *scriptedInventory
	ledger    *scriptedLedger
	holders   domholder.Directory
	publisher *recordingPublisher
	metrics   *recordingMetrics
	opts      Options
}

func newHarness(itemIDs ...int64) *harness {
	items := memory.NewInventoryRepository()
	for _, id := range itemIDs {
		_ = items.Add(context.Background(), dominv.Item{ID: id, Available: true})
	}
	return &harness{
		items:     items,
		inventory: &scriptedInventory{InventoryPort: appinventory.NewCoordinator(items, nil, nil)},
		ledger:    &scriptedLedger{Ledger: memory.NewLedger(id.NewUUIDGenerator())},
		holders: memory.NewHolderDirectory(
			domholder.Holder{ID: 1, Name: "alice"},
			domholder.Holder{ID: 2, Name: "bob"},
		),
		publisher: &recordingPublisher{},
		metrics:   newRecordingMetrics(),
	}
}

func (h *harness) coordinator() *Coordinator {
	return NewCoordinator(h.holders, h.inventory, h.ledger, h.publisher, testObs{metrics: h.metrics}, h.opts)
}

func (h *harness) available(itemID int64) bool {
	item, err := h.items.Get(context.Background(), itemID)
	if err != nil {
		return false
	}
	return item.Available
}

func (h *harness) activeRows() []domres.Reservation {
	rows, _ := h.ledger.ListActive(context.Background())
	return rows
}
