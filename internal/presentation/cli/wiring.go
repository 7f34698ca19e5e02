package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/Zhima-Mochi/libraryhold/internal/config"
	domholder "github.com/Zhima-Mochi/libraryhold/internal/domain/holder"
	dominv "github.com/Zhima-Mochi/libraryhold/internal/domain/inventory"
	domoutbox "github.com/Zhima-Mochi/libraryhold/internal/domain/outbox"
	domres "github.com/Zhima-Mochi/libraryhold/internal/domain/reservation"
	"github.com/Zhima-Mochi/libraryhold/internal/infrastructure/id"
	"github.com/Zhima-Mochi/libraryhold/internal/infrastructure/kafkapub"
	"github.com/Zhima-Mochi/libraryhold/internal/infrastructure/memory"
	"github.com/Zhima-Mochi/libraryhold/internal/infrastructure/observability/telemetry"
	"github.com/Zhima-Mochi/libraryhold/internal/infrastructure/outbox"
	"github.com/Zhima-Mochi/libraryhold/internal/infrastructure/postgres"
	"github.com/Zhima-Mochi/libraryhold/internal/infrastructure/redisstore"
	"github.com/Zhima-Mochi/libraryhold/internal/infrastructure/sqlite"
	"github.com/Zhima-Mochi/libraryhold/internal/observability"
)

// backend is one opened storage driver. Redis only carries items.
type backend struct {
	items   dominv.Repository
	ledger  domres.Ledger
	holders domholder.Registry
	ping    func(context.Context) error
}

// runtime owns everything a command opens and closes it in reverse order.
type runtime struct {
	cfg      config.Config
	tel      *telemetry.Stack
	log      observability.Logger
	backends map[string]*backend
	closers  []func() error
}

func newRuntime(cfg config.Config, component string) (*runtime, error) {
	tel, err := telemetry.Setup(cfg.ServiceName+"-"+component, cfg.Env)
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}
	return &runtime{
		cfg:      cfg,
		tel:      tel,
		log:      tel.System.With(observability.F("component", component)),
		backends: make(map[string]*backend),
	}, nil
}

func (r *runtime) onClose(fn func() error) { r.closers = append(r.closers, fn) }

func (r *runtime) Close(ctx context.Context) error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		errs = append(errs, r.closers[i]())
	}
	errs = append(errs, r.tel.Shutdown(ctx))
	return errors.Join(errs...)
}

// open returns the backend for driver, opening it once per process so the
// memory driver is shared between services started together.
func (r *runtime) open(ctx context.Context, driver string) (*backend, error) {
	if b, ok := r.backends[driver]; ok {
		return b, nil
	}
	var b *backend
	switch driver {
	case config.DriverMemory:
		b = &backend{
			items:   memory.NewInventoryRepository(),
			ledger:  memory.NewLedger(id.NewUUIDGenerator()),
			holders: memory.NewHolderDirectory(),
		}
	case config.DriverSQLite:
		store, err := sqlite.NewStore(r.cfg.Storage.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("sqlite: %w", err)
		}
		r.onClose(store.Close)
		b = &backend{
			items:   store.Inventory(),
			ledger:  store.Ledger(id.NewUUIDGenerator()),
			holders: store.Holders(),
			ping:    store.Ping,
		}
	case config.DriverPostgres:
		store, err := postgres.Open(ctx, r.cfg.Storage.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		r.onClose(func() error { store.Close(); return nil })
		if err := store.Migrate(ctx); err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		b = &backend{
			items:   store.Inventory(),
			ledger:  store.Ledger(id.NewUUIDGenerator()),
			holders: store.Holders(),
			ping:    store.Ping,
		}
	case config.DriverRedis:
		client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{r.cfg.Storage.RedisAddr}})
		r.onClose(client.Close)
		b = &backend{
			items: redisstore.NewInventoryRepository(client, r.cfg.Storage.RedisPrefix),
			ping:  func(ctx context.Context) error { return client.Ping(ctx).Err() },
		}
	default:
		return nil, fmt.Errorf("%w: unknown driver %q", config.ErrInvalid, driver)
	}
	r.log.Info("storage_opened", observability.F("driver", driver))
	r.backends[driver] = b
	return b, nil
}

// availability opens the store behind the inventory service.
func (r *runtime) availability(ctx context.Context) (*backend, error) {
	return r.open(ctx, r.cfg.AvailabilityDriver())
}

// records opens the store holding holders and the reservation ledger.
func (r *runtime) records(ctx context.Context) (*backend, error) {
	return r.open(ctx, r.cfg.Storage.Driver)
}

// publisher returns the in-process bus and, when Kafka brokers are set, a
// fanout that also writes every event to the topic.
func (r *runtime) publisher() (*outbox.Bus, domoutbox.Publisher) {
	bus := outbox.NewBus(r.tel.Obs.Logger())
	if !r.cfg.KafkaEnabled() {
		return bus, bus
	}
	kp := kafkapub.New(kafkapub.NewWriter(r.cfg.Kafka.Brokers, r.cfg.Kafka.Topic), r.tel.Obs)
	r.onClose(kp.Close)
	r.log.Info("kafka_publisher_enabled",
		observability.F("brokers", r.cfg.Kafka.Brokers),
		observability.F("topic", r.cfg.Kafka.Topic),
	)
	return bus, outbox.NewFanout(bus, kp)
}

func pingAll(backends ...*backend) func(context.Context) error {
	return func(ctx context.Context) error {
		for _, b := range backends {
			if b != nil && b.ping != nil {
				if err := b.ping(ctx); err != nil {
					return err
				}
			}
		}
		return nil
	}
}
