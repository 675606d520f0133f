package main

import (
	"errors"
	"fmt"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/saferoute/saferoute/internal/crime"
	"github.com/saferoute/saferoute/internal/database"
	"github.com/saferoute/saferoute/internal/dataset"
)

var (
	importFile   string
	importFormat string
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import a crime export into PostgreSQL",
	Long:  "Parses a CSV or shapefile crime export and replaces the crime_incidents table with its records.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		format, err := detectFormat(importFile, importFormat)
		if err != nil {
			return err
		}

		parser, err := cfg.Parser(log)
		if err != nil {
			return err
		}
		source, err := dataset.NewSource(format, importFile, parser, nil)
		if err != nil {
			return err
		}

		result, err := source.Load(ctx)
		if err != nil {
			return fmt.Errorf("import: %w", err)
		}
		if len(result.Records) == 0 {
			return fmt.Errorf("import: %w: %d rows dropped", dataset.ErrEmptyDataset, result.Dropped)
		}

		pool, err := database.Connect(ctx, cfg.Database)
		if err != nil {
			return fmt.Errorf("import: connect database: %w", err)
		}
		defer pool.Close()

		repo := crime.NewPostgresRepository(pool, nil)
		if err := repo.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("import: %w", err)
		}

		written, err := repo.ReplaceAll(ctx, result.Records)
		if err != nil {
			return fmt.Errorf("import: %w", err)
		}

		log.Info().
			Str("file", importFile).
			Str("format", format).
			Int64("written", written).
			Int("dropped", result.Dropped).
			Interface("drop_reasons", result.DropReasons).
			Msg("import complete")

		fmt.Fprintf(cmd.OutOrStdout(), "imported %d records (%d dropped)\n", written, result.Dropped)
		return nil
	},
}

// detectFormat returns format, or infers it from the file extension.
func detectFormat(path, format string) (string, error) {
	if format != "" {
		switch format {
		case dataset.SourceCSV, dataset.SourceShapefile:
			return format, nil
		}
		return "", fmt.Errorf("unsupported format %q", format)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return dataset.SourceCSV, nil
	case ".shp":
		return dataset.SourceShapefile, nil
	}
	return "", errors.New("cannot infer format from extension, pass --format")
}

func init() {
	importCmd.Flags().StringVar(&importFile, "file", "", "path to the CSV or .shp export (required)")
	importCmd.Flags().StringVar(&importFormat, "format", "", "csv or shapefile (default: from extension)")
	_ = importCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(importCmd)
}
