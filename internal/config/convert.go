package config

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/saferoute/saferoute/internal/crime"
	"github.com/saferoute/saferoute/internal/ranking"
	"github.com/saferoute/saferoute/internal/routing"
	"github.com/saferoute/saferoute/internal/safety"
	"github.com/saferoute/saferoute/internal/telemetry"
)

// ScoringConfig returns the exposure model configuration.
func (c *Config) ScoringConfig() safety.Config {
	return safety.Config{
		SampleIntervalMeters: c.Scoring.SampleIntervalMeters,
		SearchRadiusMeters:   c.Scoring.SearchRadiusMeters,
		HalfLifeDays:         c.Scoring.HalfLifeDays,
		MaxAgeDays:           c.Scoring.MaxAgeDays,
		CalibrationFactor:    c.Scoring.CalibrationFactor,
		TimeWindow:           safety.TimeWindow(c.Scoring.TimeWindow),
	}
}

// RankingWeights returns the composite weights.
func (c *Config) RankingWeights() ranking.Weights {
	return ranking.Weights{
		Safety:   c.Ranking.Weights.Safety,
		Time:     c.Ranking.Weights.Time,
		Distance: c.Ranking.Weights.Distance,
	}
}

// DedupConfig returns the deduplicator configuration.
func (c *Config) DedupConfig() routing.DedupConfig {
	return routing.DedupConfig{
		SimilarityThreshold:    c.Dedup.SimilarityThresholdPercent,
		TargetCount:            c.Dedup.TargetCount,
		WaypointOffsetFraction: c.Dedup.WaypointOffsetFraction,
	}
}

// Projector returns the projector for dataset X/Y columns.
func (c *Config) Projector() crime.Projector {
	if c.Dataset.Projection == "wgs84" {
		return crime.IdentityProjector{}
	}
	return crime.UTMProjector{Zone: c.Dataset.UTMZone, Northern: c.Dataset.UTMNorthern}
}

// Location returns the dataset time zone, or UTC when unset.
func (c *Config) Location() (*time.Location, error) {
	if c.Dataset.Timezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(c.Dataset.Timezone)
}

// Parser returns a crime row parser using the dataset projection and time zone.
func (c *Config) Parser(logger zerolog.Logger) (*crime.Parser, error) {
	loc, err := c.Location()
	if err != nil {
		return nil, fmt.Errorf("config: dataset timezone: %w", err)
	}
	return crime.NewParser(crime.ParserConfig{
		Projector: c.Projector(),
		Location:  loc,
		Logger:    logger,
	}), nil
}

// TelemetryConfig returns the OpenTelemetry setup configuration.
func (c *Config) TelemetryConfig(version string) telemetry.Config {
	return telemetry.Config{
		ServiceName:    c.Telemetry.ServiceName,
		ServiceVersion: version,
		Environment:    c.Server.Environment,
		OTLPEndpoint:   c.Telemetry.OTLPEndpoint,
		Enabled:        c.Telemetry.Enabled,
	}
}

// NewLogger builds the root logger. Console format writes human-readable
// output to w; json writes one object per line.
func (c LogConfig) NewLogger(w io.Writer) zerolog.Logger {
	if w == nil {
		w = os.Stdout
	}
	if c.Format == "console" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}

	level, err := zerolog.ParseLevel(c.Level)
	if err != nil || c.Level == "" {
		level = zerolog.InfoLevel
	}

	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}

// Redacted returns a copy with secrets masked.
func (c *Config) Redacted() *Config {
	out := *c
	mask := func(s string) string {
		if s == "" {
			return ""
		}
		return "********"
	}
	out.Routing.ORSAPIKey = mask(c.Routing.ORSAPIKey)
	out.Auth.JWTSigningKey = mask(c.Auth.JWTSigningKey)
	out.Database.Password = mask(c.Database.Password)
	out.Database.URL = mask(c.Database.URL)
	return &out
}

// YAML renders the configuration with secrets masked.
func (c *Config) YAML() ([]byte, error) {
	return yaml.Marshal(c.Redacted())
}
