package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	appinventory "github.com/Zhima-Mochi/libraryhold/internal/application/inventory"
	"github.com/Zhima-Mochi/libraryhold/internal/application/reconcile"
	appreservation "github.com/Zhima-Mochi/libraryhold/internal/application/reservation"
	appstatistics "github.com/Zhima-Mochi/libraryhold/internal/application/statistics"
	"github.com/Zhima-Mochi/libraryhold/internal/config"
	domoutbox "github.com/Zhima-Mochi/libraryhold/internal/domain/outbox"
	"github.com/Zhima-Mochi/libraryhold/internal/infrastructure/inventoryclient"
	"github.com/Zhima-Mochi/libraryhold/internal/infrastructure/outbox"
	"github.com/Zhima-Mochi/libraryhold/internal/observability"
	httppresentation "github.com/Zhima-Mochi/libraryhold/internal/presentation/http"
	workerpresentation "github.com/Zhima-Mochi/libraryhold/internal/presentation/worker"
)

const shutdownTimeout = 10 * time.Second

func newInventoryCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "inventory",
		Short: "Serve the inventory service (availability checks, reserve, release)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServices(cmd.Context(), opts, "inventory", true, false)
		},
	}
}

func newCatalogCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "catalog",
		Short: "Serve the reservation API and run the statistics worker",
		Long: `Serves the request-facing API. Inventory calls go to INVENTORY_URL.
With RECONCILE_ENABLED the reconciliation sweep runs every RECONCILE_INTERVAL.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServices(cmd.Context(), opts, "catalog", false, true)
		},
	}
}

func newServeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the inventory and catalog services in one process",
		Long: `Runs both services in one process. They still talk over HTTP, but share
storage handles, which makes the memory driver usable end to end.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServices(cmd.Context(), opts, "all", true, true)
		},
	}
}

func runServices(parent context.Context, opts *rootOptions, component string, withInventory, withCatalog bool) error {
	cfg, err := opts.load()
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := newRuntime(cfg, component)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if cerr := rt.Close(closeCtx); cerr != nil {
			rt.log.Error("shutdown_error", observability.Err(cerr))
		}
	}()

	bus, pub := rt.publisher()
	bus.Start(ctx)
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		bus.Stop(stopCtx)
	}()

	var (
		servers []*http.Server
		loops   []func(context.Context) error
	)
	if withInventory {
		mux, err := rt.inventoryMux(ctx, pub)
		if err != nil {
			return err
		}
		servers = append(servers, newHTTPServer(cfg.Inventory.Addr, mux))
	}
	if withCatalog {
		parts, err := rt.catalogMux(ctx, bus, pub)
		if err != nil {
			return err
		}
		parts.worker.Start()
		defer parts.worker.Stop()
		servers = append(servers, newHTTPServer(cfg.Catalog.Addr, parts.mux))
		if parts.sweeper != nil {
			interval := cfg.Reconcile.Interval.Std()
			loops = append(loops, func(ctx context.Context) error { return parts.sweeper.Run(ctx, interval) })
		}
	}
	return serve(ctx, rt.log, servers, loops...)
}

func (r *runtime) inventoryMux(ctx context.Context, pub domoutbox.Publisher) (*http.ServeMux, error) {
	store, err := r.availability(ctx)
	if err != nil {
		return nil, err
	}
	coord := appinventory.NewCoordinator(store.items, pub, r.tel.Obs)

	mux := http.NewServeMux()
	httppresentation.NewInventoryHandler(coord, pingAll(store), r.tel.Obs.Logger(), r.tel.Obs).Register(mux)
	mux.Handle("GET /metrics", r.tel.MetricsHandler())
	return mux, nil
}

type catalogParts struct {
	mux     *http.ServeMux
	worker  *appstatistics.Worker
	sweeper *reconcile.Sweeper
}

func (r *runtime) catalogMux(ctx context.Context, bus *outbox.Bus, pub domoutbox.Publisher) (*catalogParts, error) {
	records, err := r.records(ctx)
	if err != nil {
		return nil, err
	}
	client, err := inventoryclient.New(r.cfg.Catalog.InventoryURL, nil, r.tel.Obs)
	if err != nil {
		return nil, err
	}
	coord := appreservation.NewCoordinator(records.holders, client, records.ledger, pub, r.tel.Obs, appreservation.Options{
		CallTimeout:  r.cfg.Catalog.CallTimeout.Std(),
		SkipPrecheck: r.cfg.Catalog.SkipPrecheck,
	})
	stats := appstatistics.NewService()

	parts := &catalogParts{
		mux:    http.NewServeMux(),
		worker: appstatistics.NewWorker(workerpresentation.NewSubscriber(bus, r.log, r.tel.Obs), stats, r.tel.Obs),
	}
	httppresentation.NewCatalogHandler(httppresentation.CatalogDeps{
		Reserve: coord.ReserveUseCase(),
		Release: coord.ReleaseUseCase(),
		Queries: coord,
		Stats:   stats,
		Metrics: r.tel.MetricsHandler(),
		Health:  pingAll(records),
	}, r.tel.Obs.Logger(), r.tel.Obs).Register(parts.mux)

	if r.cfg.Reconcile.Enabled {
		if r.cfg.AvailabilityDriver() == config.DriverMemory {
			r.log.Warn("reconcile_memory_driver",
				observability.F("detail", "sweep only sees items held by this process"),
			)
		}
		parts.sweeper, err = r.sweeper(ctx, records, pub, r.cfg.Reconcile.Repair)
		if err != nil {
			return nil, err
		}
	}
	return parts, nil
}

// sweeper compares the availability store with the ledger. Repairs go through
// a local inventory coordinator so released items still emit events.
func (r *runtime) sweeper(ctx context.Context, records *backend, pub domoutbox.Publisher, repair bool) (*reconcile.Sweeper, error) {
	avail, err := r.availability(ctx)
	if err != nil {
		return nil, err
	}
	releaser := appinventory.NewCoordinator(avail.items, pub, r.tel.Obs)
	return reconcile.NewSweeper(avail.items, records.ledger, releaser, r.tel.Obs, reconcile.Options{
		Grace:            r.cfg.Reconcile.Grace.Std(),
		Repair:           repair,
		RepairsPerSecond: r.cfg.Reconcile.RepairsPerSecond,
	}), nil
}

func newHTTPServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// serve runs the servers and loops until ctx ends or one of them fails, then
// shuts every server down within shutdownTimeout.
func serve(ctx context.Context, log observability.Logger, servers []*http.Server, loops ...func(context.Context) error) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, srv := range servers {
		g.Go(func() error {
			log.Info("http_server_start", observability.F("addr", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server %s: %w", srv.Addr, err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.Error("http_server_shutdown_error", observability.F("addr", srv.Addr), observability.Err(err))
				return err
			}
			log.Info("http_server_stopped", observability.F("addr", srv.Addr))
			return nil
		})
	}
	for _, loop := range loops {
		g.Go(func() error { return loop(gctx) })
	}
	return g.Wait()
}
