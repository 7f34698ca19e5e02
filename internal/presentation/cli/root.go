// Package cli is the libraryhold command line: the two services, the
// reconciliation sweep and database seeding.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Zhima-Mochi/libraryhold/internal/config"
)

type rootOptions struct {
	configPath string
}

// NewRootCommand builds the command tree. Each call returns a fresh tree so
// tests can run commands in isolation.
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:   "libraryhold",
		Short: "Coordinate book reservations across the inventory and catalog services",
		Long: `libraryhold runs the inventory service (per-book availability) and the
catalog service (holders, reservations and statistics), plus maintenance
commands for seeding and reconciling the stores.

Settings come from an optional TOML file (--config) and environment
variables, which win over the file.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", os.Getenv("LIBRARYHOLD_CONFIG"), "path to a TOML config file")

	root.AddCommand(
		newInventoryCommand(opts),
		newCatalogCommand(opts),
		newServeCommand(opts),
		newReconcileCommand(opts),
		newSeedCommand(opts),
	)
	return root
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func (o *rootOptions) load() (config.Config, error) {
	return config.Load(o.configPath)
}
