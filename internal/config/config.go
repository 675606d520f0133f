// Package config loads and validates the service configuration.
package config

import (
	"time"

	"github.com/saferoute/saferoute/internal/database"
)

// Config holds the full application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
	Database  database.Config `yaml:"database" mapstructure:"database"`
	Dataset   DatasetConfig   `yaml:"dataset" mapstructure:"dataset"`
	Scoring   ScoringConfig   `yaml:"scoring" mapstructure:"scoring"`
	Ranking   RankingConfig   `yaml:"ranking" mapstructure:"ranking"`
	Dedup     DedupConfig     `yaml:"dedup" mapstructure:"dedup"`
	Routing   RoutingConfig   `yaml:"routing" mapstructure:"routing"`
	Telemetry TelemetryConfig `yaml:"telemetry" mapstructure:"telemetry"`
	PubSub    PubSubConfig    `yaml:"pubsub" mapstructure:"pubsub"`
	Auth      AuthConfig      `yaml:"auth" mapstructure:"auth"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port            int           `yaml:"port" mapstructure:"port" validate:"gte=1,lte=65535"`
	Environment     string        `yaml:"environment" mapstructure:"environment"`
	ReadTimeout     time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" mapstructure:"shutdown_timeout"`
	RateLimit       int           `yaml:"rate_limit_per_minute" mapstructure:"rate_limit_per_minute" validate:"gte=0"`
	RequireTLS      bool          `yaml:"require_tls" mapstructure:"require_tls"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level" validate:"oneof=trace debug info warn error"`
	Format string `yaml:"format" mapstructure:"format" validate:"oneof=json console"`
}

// DatasetConfig configures where crime records come from and how they are indexed.
type DatasetConfig struct {
	Source              string        `yaml:"source" mapstructure:"source" validate:"oneof=csv shapefile postgres"`
	Path                string        `yaml:"path" mapstructure:"path" validate:"required_unless=Source postgres"`
	Projection          string        `yaml:"projection" mapstructure:"projection" validate:"oneof=utm wgs84"`
	UTMZone             int           `yaml:"utm_zone" mapstructure:"utm_zone" validate:"gte=1,lte=60"`
	UTMNorthern         bool          `yaml:"utm_northern" mapstructure:"utm_northern"`
	Timezone            string        `yaml:"timezone" mapstructure:"timezone"`
	GridCellSizeDegrees float64       `yaml:"grid_cell_size_degrees" mapstructure:"grid_cell_size_degrees" validate:"gt=0,lte=1"`
	ReloadInterval      time.Duration `yaml:"reload_interval" mapstructure:"reload_interval"`
}

// ScoringConfig configures the exposure model.
type ScoringConfig struct {
	SampleIntervalMeters float64 `yaml:"sample_interval_meters" mapstructure:"sample_interval_meters" validate:"gt=0"`
	SearchRadiusMeters   float64 `yaml:"search_radius_meters" mapstructure:"search_radius_meters" validate:"gt=0"`
	HalfLifeDays         float64 `yaml:"half_life_days" mapstructure:"half_life_days" validate:"gt=0"`
	MaxAgeDays           float64 `yaml:"max_age_days" mapstructure:"max_age_days" validate:"gt=0"`
	CalibrationFactor    float64 `yaml:"calibration_factor" mapstructure:"calibration_factor" validate:"gt=0"`
	TimeWindow           string  `yaml:"time_window" mapstructure:"time_window" validate:"omitempty,oneof=all day evening night auto"`
}

// RankingConfig configures composite ranking.
type RankingConfig struct {
	Weights WeightsConfig `yaml:"weights" mapstructure:"weights"`
	Workers int           `yaml:"workers" mapstructure:"workers" validate:"gte=1,lte=64"`
}

// WeightsConfig holds the composite weights.
type WeightsConfig struct {
	Safety   float64 `yaml:"safety" mapstructure:"safety" validate:"gte=0,lte=1"`
	Time     float64 `yaml:"time" mapstructure:"time" validate:"gte=0,lte=1"`
	Distance float64 `yaml:"distance" mapstructure:"distance" validate:"gte=0,lte=1"`
}

// DedupConfig configures near-duplicate filtering, variants and detours.
type DedupConfig struct {
	SimilarityThresholdPercent float64 `yaml:"similarity_threshold_percent" mapstructure:"similarity_threshold_percent" validate:"gt=0,lte=100"`
	TargetCount                int     `yaml:"target_count" mapstructure:"target_count" validate:"gte=1,lte=10"`
	WaypointOffsetFraction     float64 `yaml:"waypoint_offset_fraction" mapstructure:"waypoint_offset_fraction" validate:"gt=0,lte=1"`
	DetourScoreThreshold       int     `yaml:"detour_score_threshold" mapstructure:"detour_score_threshold" validate:"gte=0,lte=100"`
	DetourOffsetMeters         float64 `yaml:"detour_offset_meters" mapstructure:"detour_offset_meters" validate:"gte=0"`
}

// RoutingConfig configures the directions provider.
type RoutingConfig struct {
	ORSAPIKey       string        `yaml:"ors_api_key" mapstructure:"ors_api_key"`
	ORSBaseURL      string        `yaml:"ors_base_url" mapstructure:"ors_base_url" validate:"omitempty,url"`
	Profile         string        `yaml:"profile" mapstructure:"profile" validate:"oneof=foot-walking cycling-regular"`
	MaxAlternatives int           `yaml:"max_alternatives" mapstructure:"max_alternatives" validate:"gte=0,lte=5"`
	Timeout         time.Duration `yaml:"timeout" mapstructure:"timeout"`
	Retries         int           `yaml:"retries" mapstructure:"retries" validate:"gte=0,lte=5"`
	BreakerCooldown time.Duration `yaml:"breaker_cooldown" mapstructure:"breaker_cooldown"`
	CacheTTL        time.Duration `yaml:"cache_ttl" mapstructure:"cache_ttl"`
	StaleTTL        time.Duration `yaml:"stale_ttl" mapstructure:"stale_ttl"`
	GeocodeCountry  string        `yaml:"geocode_country" mapstructure:"geocode_country" validate:"omitempty,alpha,min=2,max=3"`
}

// TelemetryConfig configures OpenTelemetry export.
type TelemetryConfig struct {
	Enabled      bool   `yaml:"enabled" mapstructure:"enabled"`
	ServiceName  string `yaml:"service_name" mapstructure:"service_name" validate:"required"`
	OTLPEndpoint string `yaml:"otlp_endpoint" mapstructure:"otlp_endpoint" validate:"required_if=Enabled true"`
}

// PubSubConfig configures the reload trigger subscription.
type PubSubConfig struct {
	Enabled        bool   `yaml:"enabled" mapstructure:"enabled"`
	ProjectID      string `yaml:"project_id" mapstructure:"project_id" validate:"required_if=Enabled true"`
	SubscriptionID string `yaml:"subscription_id" mapstructure:"subscription_id" validate:"required_if=Enabled true"`
}

// AuthConfig configures admin token verification.
type AuthConfig struct {
	JWTSigningKey string        `yaml:"jwt_signing_key" mapstructure:"jwt_signing_key"`
	Issuer        string        `yaml:"issuer" mapstructure:"issuer"`
	TokenTTL      time.Duration `yaml:"token_ttl" mapstructure:"token_ttl"`
}
