package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// AppConfig carries everything the server and the map client library need.
type AppConfig struct {
	// Upstream credentials. The charging-station key is mandatory for the
	// locations endpoint; the weather key is optional enrichment.
	ChargeMapAPIKey string
	WeatherAPIKey   string

	// Upstream endpoints, overridable for tests and staging.
	ChargeMapBaseURL string
	WeatherBaseURL   string

	// Shared outbound HTTP client timeout.
	HTTPTimeout time.Duration

	Port string

	// Client-side result cache.
	CacheMaxSize           int
	CacheCleanupDistanceKm float64

	// Viewport change detection.
	QuietPeriod       time.Duration
	CoordThresholdDeg float64
	RadiusThresholdKm float64
	MinRadiusKm       float64
	MaxRadiusKm       float64

	// Query coalescing freshness window and refresh interval.
	StaleAfter time.Duration
}

// Load reads configuration from the environment with sensible defaults.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		log.Info().Msg("no .env file found; using process environment")
	}

	cfg := &AppConfig{}

	cfg.ChargeMapAPIKey = os.Getenv("OCM_API_KEY")
	cfg.WeatherAPIKey = os.Getenv("OPENWEATHER_API_KEY")

	cfg.ChargeMapBaseURL = os.Getenv("OCM_BASE_URL")
	cfg.WeatherBaseURL = os.Getenv("OPENWEATHER_BASE_URL")

	timeout, err := getenvDuration("HTTP_TIMEOUT", "10s")
	if err != nil {
		return nil, fmt.Errorf("invalid HTTP_TIMEOUT: %w", err)
	}
	cfg.HTTPTimeout = timeout

	cfg.Port = getenvDefault("PORT", "3001")

	cfg.CacheMaxSize = getenvInt("CACHE_MAX_SIZE", 500)
	cfg.CacheCleanupDistanceKm = getenvFloat("CACHE_CLEANUP_DISTANCE_KM", 100)

	quiet, err := getenvDuration("VIEWPORT_QUIET_PERIOD", "500ms")
	if err != nil {
		return nil, fmt.Errorf("invalid VIEWPORT_QUIET_PERIOD: %w", err)
	}
	cfg.QuietPeriod = quiet

	cfg.CoordThresholdDeg = getenvFloat("VIEWPORT_COORD_THRESHOLD", 0.001)
	cfg.RadiusThresholdKm = getenvFloat("VIEWPORT_RADIUS_THRESHOLD_KM", 1)
	cfg.MinRadiusKm = getenvFloat("VIEWPORT_MIN_RADIUS_KM", 1)
	cfg.MaxRadiusKm = getenvFloat("VIEWPORT_MAX_RADIUS_KM", 50)

	stale, err := getenvDuration("QUERY_STALE_AFTER", "5m")
	if err != nil {
		return nil, fmt.Errorf("invalid QUERY_STALE_AFTER: %w", err)
	}
	cfg.StaleAfter = stale

	return cfg, nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}

func getenvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err == nil {
			return f
		}
	}
	return def
}

func getenvDuration(key, def string) (time.Duration, error) {
	return time.ParseDuration(getenvDefault(key, def))
}
