package main

import (
	"fmt"
	"io"
	"os/signal"
	"sort"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/saferoute/saferoute/internal/crime"
	"github.com/saferoute/saferoute/internal/dataset"
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Inspect the crime spatial index",
}

var indexStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Load the configured dataset and print index statistics",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		store, cleanup, err := loadStore(ctx)
		if err != nil {
			return err
		}
		defer cleanup()

		return writeIndexStats(cmd.OutOrStdout(), summarizeIndex(store.Current()))
	},
}

type indexSummary struct {
	Source      string
	Records     int
	Dropped     int
	DropReasons map[string]int
	Cells       int
	CellSize    float64
	PerCell     float64
	Severity    map[crime.Severity]int
	Earliest    time.Time
	Latest      time.Time
	LoadTime    time.Duration
}

func summarizeIndex(snap *dataset.Snapshot) indexSummary {
	s := indexSummary{
		Source:      snap.Source,
		Records:     snap.Records,
		Dropped:     snap.Dropped,
		DropReasons: snap.DropReasons,
		Cells:       snap.Index.CellCount(),
		CellSize:    snap.Index.CellSize(),
		Severity:    make(map[crime.Severity]int, 3),
		LoadTime:    snap.LoadTime,
	}
	if s.Cells > 0 {
		s.PerCell = float64(s.Records) / float64(s.Cells)
	}

	for _, r := range snap.Index.Records() {
		s.Severity[r.Severity]++
		if s.Earliest.IsZero() || r.OccurredAt.Before(s.Earliest) {
			s.Earliest = r.OccurredAt
		}
		if r.OccurredAt.After(s.Latest) {
			s.Latest = r.OccurredAt
		}
	}
	return s
}

func writeIndexStats(out io.Writer, s indexSummary) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)

	fmt.Fprintf(w, "source\t%s\n", s.Source)
	fmt.Fprintf(w, "records\t%d\n", s.Records)
	fmt.Fprintf(w, "dropped\t%d\n", s.Dropped)
	fmt.Fprintf(w, "cells\t%d\n", s.Cells)
	fmt.Fprintf(w, "cell size\t%.4f deg\n", s.CellSize)
	fmt.Fprintf(w, "records per cell\t%.1f\n", s.PerCell)
	for _, sev := range []crime.Severity{crime.SeverityHigh, crime.SeverityMedium, crime.SeverityLow} {
		fmt.Fprintf(w, "severity %s\t%d\n", sev, s.Severity[sev])
	}
	if !s.Earliest.IsZero() {
		fmt.Fprintf(w, "earliest\t%s\n", s.Earliest.Format(time.RFC3339))
		fmt.Fprintf(w, "latest\t%s\n", s.Latest.Format(time.RFC3339))
	}
	fmt.Fprintf(w, "load time\t%s\n", s.LoadTime.Round(time.Millisecond))

	reasons := make([]string, 0, len(s.DropReasons))
	for reason := range s.DropReasons {
		reasons = append(reasons, reason)
	}
	sort.Strings(reasons)
	for _, reason := range reasons {
		fmt.Fprintf(w, "drop: %s\t%d\n", reason, s.DropReasons[reason])
	}

	return w.Flush()
}

func init() {
	indexCmd.AddCommand(indexStatsCmd)
	rootCmd.AddCommand(indexCmd)
}
