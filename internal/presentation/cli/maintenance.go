package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	domholder "github.com/Zhima-Mochi/libraryhold/internal/domain/holder"
	dominv "github.com/Zhima-Mochi/libraryhold/internal/domain/inventory"
	"github.com/Zhima-Mochi/libraryhold/internal/observability"
)

func newReconcileCommand(opts *rootOptions) *cobra.Command {
	var repair bool
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Compare item availability with active reservations once",
		Long: `Runs a single reconciliation sweep and prints the report as JSON.

Findings:
  unavailable_without_reservation     item is reserved but no active row exists
  available_with_active_reservation   an active row points at an available item
  duplicate_active_reservation        more than one active row for one item

Without --repair nothing is changed.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("repair") {
				cfg.Reconcile.Repair = repair
			}

			ctx := cmd.Context()
			rt, err := newRuntime(cfg, "reconcile")
			if err != nil {
				return err
			}
			defer func() { _ = rt.Close(context.WithoutCancel(ctx)) }()

			records, err := rt.records(ctx)
			if err != nil {
				return err
			}
			// Repairs publish straight to the optional Kafka topic; nothing in
			// this process subscribes to the bus.
			bus, pub := rt.publisher()
			bus.Start(ctx)
			defer bus.Stop(context.WithoutCancel(ctx))

			sweeper, err := rt.sweeper(ctx, records, pub, cfg.Reconcile.Repair)
			if err != nil {
				return err
			}
			report, err := sweeper.Sweep(ctx)
			if err != nil {
				return fmt.Errorf("reconcile: %w", err)
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		},
	}
	cmd.Flags().BoolVar(&repair, "repair", false, "apply fixes instead of only reporting them")
	return cmd
}

var defaultHolders = []domholder.Holder{
	{ID: 1, Name: "Admin"},
	{ID: 2, Name: "Utilisateur"},
}

func newSeedCommand(opts *rootOptions) *cobra.Command {
	var books int64
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create the default holders and books",
		Long: `Creates holders 1 (Admin) and 2 (Utilisateur) and books 1..N, all available.
Existing books are left untouched, so seeding twice is safe.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if books < 0 {
				return errors.New("seed: --books must not be negative")
			}
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			rt, err := newRuntime(cfg, "seed")
			if err != nil {
				return err
			}
			defer func() { _ = rt.Close(context.WithoutCancel(ctx)) }()

			records, err := rt.records(ctx)
			if err != nil {
				return err
			}
			avail, err := rt.availability(ctx)
			if err != nil {
				return err
			}
			added, err := seed(ctx, records.holders, avail.items, books)
			if err != nil {
				return err
			}
			rt.log.Info("seed_done",
				observability.F("holders", len(defaultHolders)),
				observability.F("books_added", added),
			)
			cmd.Printf("seeded %d holders and %d new books\n", len(defaultHolders), added)
			return nil
		},
	}
	cmd.Flags().Int64Var(&books, "books", 10, "number of books to create")
	return cmd
}

func seed(ctx context.Context, holders domholder.Registry, items dominv.Repository, books int64) (int, error) {
	if holders != nil {
		for _, h := range defaultHolders {
			if err := holders.AddHolder(ctx, h); err != nil {
				return 0, fmt.Errorf("seed holder %d: %w", h.ID, err)
			}
		}
	}
	added := 0
	for itemID := int64(1); itemID <= books; itemID++ {
		_, err := items.Get(ctx, itemID)
		if err == nil {
			continue
		}
		if !errors.Is(err, dominv.ErrNotFound) {
			return added, fmt.Errorf("seed book %d: %w", itemID, err)
		}
		item, err := dominv.NewItem(itemID)
		if err != nil {
			return added, err
		}
		if err := items.Add(ctx, *item); err != nil {
			return added, fmt.Errorf("seed book %d: %w", itemID, err)
		}
		added++
	}
	return added, nil
}
