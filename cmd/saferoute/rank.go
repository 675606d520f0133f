package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/spf13/cobra"

	"github.com/saferoute/saferoute/internal/planner"
	"github.com/saferoute/saferoute/internal/ranking"
	"github.com/saferoute/saferoute/internal/routing"
	"github.com/saferoute/saferoute/internal/safety"
)

// walkingSpeedMps estimates a duration for features that carry none.
const walkingSpeedMps = 5000.0 / 3600

var (
	rankInput  string
	rankAt     string
	rankWindow string
	rankJSON   bool
)

var rankCmd = &cobra.Command{
	Use:   "rank",
	Short: "Score and rank route geometries from a GeoJSON file",
	Long: "Reads a FeatureCollection of LineString features, scores each against the configured crime dataset " +
		"and prints them in recommended order. Feature properties id, distanceMeters, durationSeconds and summary are used when present; " +
		"a missing distance is measured from the geometry and a missing duration assumes walking pace.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		data, err := os.ReadFile(rankInput)
		if err != nil {
			return fmt.Errorf("read input: %w", err)
		}
		candidates, err := candidatesFromGeoJSON(data)
		if err != nil {
			return err
		}

		var at time.Time
		if rankAt != "" {
			at, err = time.Parse(time.RFC3339, rankAt)
			if err != nil {
				return fmt.Errorf("parse --at: %w", err)
			}
		}

		store, cleanup, err := loadStore(ctx)
		if err != nil {
			return err
		}
		defer cleanup()

		ranker, err := ranking.NewRanker(ranking.Config{
			Scoring: cfg.ScoringConfig(),
			Weights: cfg.RankingWeights(),
			Workers: cfg.Ranking.Workers,
			Logger:  log,
		})
		if err != nil {
			return err
		}

		loc, err := cfg.Location()
		if err != nil {
			return fmt.Errorf("dataset timezone: %w", err)
		}

		p := planner.New(planner.Config{
			Store:    store,
			Ranker:   ranker,
			Dedup:    cfg.DedupConfig(),
			Logger:   log,
			Location: loc,
		})

		result, err := p.RankCandidates(ctx, planner.RankRequest{
			Candidates: candidates,
			At:         at,
			TimeWindow: safety.TimeWindow(rankWindow),
		})
		if err != nil {
			return err
		}

		if rankJSON {
			return writeRankJSON(cmd.OutOrStdout(), result)
		}
		return writeRankTable(cmd.OutOrStdout(), result)
	},
}

// candidatesFromGeoJSON converts LineString features into candidates. Features
// without an id get feature-N.
func candidatesFromGeoJSON(data []byte) ([]routing.Candidate, error) {
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("parse geojson: %w", err)
	}
	if len(fc.Features) == 0 {
		return nil, errors.New("input has no features")
	}

	out := make([]routing.Candidate, 0, len(fc.Features))
	for i, f := range fc.Features {
		line, ok := f.Geometry.(orb.LineString)
		if !ok {
			return nil, fmt.Errorf("feature %d: geometry is %s, want LineString", i, f.Geometry.GeoJSONType())
		}

		id := f.Properties.MustString("id", "")
		if id == "" {
			id = fmt.Sprintf("feature-%d", i+1)
		}

		distance := f.Properties.MustFloat64("distanceMeters", 0)
		if distance <= 0 {
			distance = safety.LengthMeters(line)
		}
		duration := f.Properties.MustFloat64("durationSeconds", 0)
		if duration <= 0 {
			duration = distance / walkingSpeedMps
		}

		out = append(out, routing.Candidate{
			ID:              id,
			Geometry:        line,
			DistanceMeters:  distance,
			DurationSeconds: duration,
			Origin:          routing.OriginSupplied,
			Summary:         f.Properties.MustString("summary", ""),
		})
	}
	return out, nil
}

func writeRankTable(out io.Writer, result *planner.Result) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "RANK\tID\tSAFETY\tLEVEL\tCOMPOSITE\tCRIMES\tPER KM\tDISTANCE\tDURATION\n")
	for _, r := range result.Routes {
		marker := ""
		if r.IsRecommended {
			marker = " *"
		}
		fmt.Fprintf(w, "%d%s\t%s\t%d\t%s\t%d\t%d\t%.2f\t%.0fm\t%.0fs\n",
			r.Rank, marker,
			r.Candidate.ID,
			r.Metrics.SafetyScore,
			r.Metrics.Interpretation,
			r.CompositeScore,
			r.Metrics.TotalCrimes,
			r.Metrics.CrimesPerKm,
			r.Candidate.DistanceMeters,
			r.Candidate.DurationSeconds,
		)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	window := string(result.TimeWindow)
	if result.TimeWindow == safety.WindowAll {
		window = string(safety.WindowAnyTime)
	}
	_, err := fmt.Fprintf(out, "\nscored at %s (%s crimes) against dataset v%d\n",
		result.At.Format(time.RFC3339), window, result.DatasetVersion)
	return err
}

type rankOutput struct {
	ID             string  `json:"id"`
	Rank           int     `json:"rank"`
	Recommended    bool    `json:"recommended"`
	SafetyScore    int     `json:"safetyScore"`
	Interpretation string  `json:"interpretation"`
	CompositeScore int     `json:"compositeScore"`
	TotalCrimes    int     `json:"totalCrimes"`
	CrimesPerKm    float64 `json:"crimesPerKm"`
	DistanceMeters float64 `json:"distanceMeters"`
	DurationSecs   float64 `json:"durationSeconds"`
}

func writeRankJSON(out io.Writer, result *planner.Result) error {
	rows := make([]rankOutput, len(result.Routes))
	for i, r := range result.Routes {
		rows[i] = rankOutput{
			ID:             r.Candidate.ID,
			Rank:           r.Rank,
			Recommended:    r.IsRecommended,
			SafetyScore:    r.Metrics.SafetyScore,
			Interpretation: string(r.Metrics.Interpretation),
			CompositeScore: r.CompositeScore,
			TotalCrimes:    r.Metrics.TotalCrimes,
			CrimesPerKm:    r.Metrics.CrimesPerKm,
			DistanceMeters: r.Candidate.DistanceMeters,
			DurationSecs:   r.Candidate.DurationSeconds,
		}
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(rows)
}

func init() {
	rankCmd.Flags().StringVar(&rankInput, "input", "", "GeoJSON FeatureCollection of route LineStrings (required)")
	rankCmd.Flags().StringVar(&rankAt, "at", "", "RFC 3339 time crimes are aged against (default: now)")
	rankCmd.Flags().StringVar(&rankWindow, "window", "", "time-of-day window: all, day, evening, night or auto (default: scoring.time_window)")
	rankCmd.Flags().BoolVar(&rankJSON, "json", false, "print JSON instead of a table")
	_ = rankCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(rankCmd)
}
