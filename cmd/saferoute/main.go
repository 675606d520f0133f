// Package main provides the saferoute command-line tool for dataset
// administration and offline route ranking.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/saferoute/saferoute/internal/config"
	"github.com/saferoute/saferoute/internal/crime"
	"github.com/saferoute/saferoute/internal/database"
	"github.com/saferoute/saferoute/internal/dataset"
)

// Version is set at compile time via ldflags.
var Version = "dev"

var (
	cfg        *config.Config
	log        zerolog.Logger
	configPath string
)

var rootCmd = &cobra.Command{
	Use:           "saferoute",
	Short:         "Crime-exposure route safety tooling",
	Long:          "Imports crime datasets, inspects the spatial index, ranks route geometries offline and mints admin tokens for the SafeRoute API.",
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		c, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c
		log = cfg.Log.NewLogger(cmd.ErrOrStderr())
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to the configuration file")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// loadStore builds a store from the configured source and loads it once.
// The returned cleanup closes any database pool.
func loadStore(ctx context.Context) (*dataset.Store, func(), error) {
	parser, err := cfg.Parser(log)
	if err != nil {
		return nil, nil, err
	}

	cleanup := func() {}
	var repo crime.Repository
	if cfg.Dataset.Source == dataset.SourcePostgres {
		pool, err := database.Connect(ctx, cfg.Database)
		if err != nil {
			return nil, nil, fmt.Errorf("connect database: %w", err)
		}
		cleanup = pool.Close
		loc, err := cfg.Location()
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("dataset timezone: %w", err)
		}
		repo = crime.NewPostgresRepository(pool, loc)
	}

	source, err := dataset.NewSource(cfg.Dataset.Source, cfg.Dataset.Path, parser, repo)
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	store := dataset.NewStore(dataset.StoreConfig{
		Source:   source,
		CellSize: cfg.Dataset.GridCellSizeDegrees,
		Logger:   log,
	})
	if _, err := store.Reload(ctx); err != nil {
		cleanup()
		return nil, nil, err
	}
	return store, cleanup, nil
}
