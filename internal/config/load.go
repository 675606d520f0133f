package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. SAFEROUTE_SCORING_HALF_LIFE_DAYS.
const EnvPrefix = "SAFEROUTE"

// Load reads configuration from defaults, an optional YAML file and the
// environment, then validates it. An empty path searches for saferoute.yaml
// in the working directory and /etc/saferoute.
func Load(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("saferoute")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/saferoute")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: read file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration with every default applied.
func Default() *Config {
	v := viper.New()
	setDefaults(v)

	var cfg Config
	// Defaults always decode.
	_ = v.Unmarshal(&cfg)
	return &cfg
}

// setDefaults registers every key so environment overrides reach Unmarshal.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.environment", "development")
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.rate_limit_per_minute", 100)
	v.SetDefault("server.require_tls", false)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("database.url", "")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "saferoute")
	v.SetDefault("database.password", "localdev")
	v.SetDefault("database.name", "saferoute")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.conn_max_lifetime", "5m")

	v.SetDefault("dataset.source", "csv")
	v.SetDefault("dataset.path", "data/crimedata.csv")
	v.SetDefault("dataset.projection", "utm")
	v.SetDefault("dataset.utm_zone", 10)
	v.SetDefault("dataset.utm_northern", true)
	v.SetDefault("dataset.timezone", "America/Vancouver")
	v.SetDefault("dataset.grid_cell_size_degrees", 0.01)
	v.SetDefault("dataset.reload_interval", "0s")

	v.SetDefault("scoring.sample_interval_meters", 50.0)
	v.SetDefault("scoring.search_radius_meters", 100.0)
	v.SetDefault("scoring.half_life_days", 90.0)
	v.SetDefault("scoring.max_age_days", 365.0)
	v.SetDefault("scoring.calibration_factor", 20.0)
	v.SetDefault("scoring.time_window", "")

	v.SetDefault("ranking.weights.safety", 0.4)
	v.SetDefault("ranking.weights.time", 0.3)
	v.SetDefault("ranking.weights.distance", 0.3)
	v.SetDefault("ranking.workers", 4)

	v.SetDefault("dedup.similarity_threshold_percent", 85.0)
	v.SetDefault("dedup.target_count", 3)
	v.SetDefault("dedup.waypoint_offset_fraction", 0.2)
	v.SetDefault("dedup.detour_score_threshold", 55)
	v.SetDefault("dedup.detour_offset_meters", 220.0)

	v.SetDefault("routing.ors_api_key", "")
	v.SetDefault("routing.ors_base_url", "https://api.openrouteservice.org")
	v.SetDefault("routing.profile", "foot-walking")
	v.SetDefault("routing.max_alternatives", 2)
	v.SetDefault("routing.timeout", "10s")
	v.SetDefault("routing.retries", 2)
	v.SetDefault("routing.breaker_cooldown", "30s")
	v.SetDefault("routing.cache_ttl", "5m")
	v.SetDefault("routing.stale_ttl", "15m")
	v.SetDefault("routing.geocode_country", "")

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.service_name", "saferoute")
	v.SetDefault("telemetry.otlp_endpoint", "localhost:4317")

	v.SetDefault("pubsub.enabled", false)
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.subscription_id", "")

	v.SetDefault("auth.jwt_signing_key", "")
	v.SetDefault("auth.issuer", "saferoute")
	v.SetDefault("auth.token_ttl", "1h")
}
