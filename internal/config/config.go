package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Store drivers accepted by STORE_DRIVER.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

const defaultBaseURL = "https://climate.weather.gc.ca/climate_data/daily_data_e.html"

// Location is one configured place and the station that reports for it.
type Location struct {
	Name      string
	StationID string
}

// Config holds all service settings, populated from environment variables.
type Config struct {
	Locations     []Location
	SourceBaseURL string
	StartYear     int

	StoreDriver  string
	SQLitePath   string
	DatabaseURL  string
	FetchTimeout time.Duration
	StoreTimeout time.Duration

	PageCacheSize  int
	UpdateInterval time.Duration

	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Change feed; disabled when KafkaBrokers is empty.
	KafkaBrokers []string
	KafkaTopic   string
}

// Stations returns the location name -> station id map.
func (c *Config) Stations() map[string]string {
	m := make(map[string]string, len(c.Locations))
	for _, l := range c.Locations {
		m[l.Name] = l.StationID
	}
	return m
}

// LocationNames returns the configured location names in declaration order.
func (c *Config) LocationNames() []string {
	names := make([]string, len(c.Locations))
	for i, l := range c.Locations {
		names[i] = l.Name
	}
	return names
}

// FeedEnabled reports whether observations are published to Kafka.
func (c *Config) FeedEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

// Load reads configuration from environment variables, applying defaults where
// unset. A .env file in the working directory is read first when present;
// variables already set in the environment take precedence over it.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	locations, err := parseLocations(envOrDefault("LOCATIONS", "Winnipeg=27174"))
	if err != nil {
		return nil, err
	}

	startYear, err := parseInt("START_YEAR", 2020, 1)
	if err != nil {
		return nil, err
	}
	fetchTimeout, err := parseDuration("FETCH_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, err
	}
	storeTimeout, err := parseDuration("STORE_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}
	cacheSize, err := parseInt("PAGE_CACHE_SIZE", 256, 0)
	if err != nil {
		return nil, err
	}
	updateInterval, err := parseDuration("UPDATE_INTERVAL", 6*time.Hour)
	if err != nil {
		return nil, err
	}
	shutdownTimeout, err := parseDuration("SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Locations:       locations,
		SourceBaseURL:   envOrDefault("SOURCE_BASE_URL", defaultBaseURL),
		StartYear:       startYear,
		StoreDriver:     strings.ToLower(envOrDefault("STORE_DRIVER", DriverSQLite)),
		SQLitePath:      envOrDefault("SQLITE_PATH", "climate.db"),
		DatabaseURL:     strings.TrimSpace(os.Getenv("DATABASE_URL")),
		FetchTimeout:    fetchTimeout,
		StoreTimeout:    storeTimeout,
		PageCacheSize:   cacheSize,
		UpdateInterval:  updateInterval,
		HTTPAddr:        envOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        envOrDefault("LOG_LEVEL", "info"),
		LogFormat:       envOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,
		KafkaBrokers:    parseList(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:      envOrDefault("KAFKA_TOPIC", "climate-observations"),
	}

	switch cfg.StoreDriver {
	case DriverSQLite:
		if cfg.SQLitePath == "" {
			return nil, errors.New("SQLITE_PATH is required when STORE_DRIVER is sqlite")
		}
	case DriverPostgres:
		if cfg.DatabaseURL == "" {
			return nil, errors.New("DATABASE_URL is required when STORE_DRIVER is postgres")
		}
	default:
		return nil, fmt.Errorf("invalid STORE_DRIVER %q: want sqlite or postgres", cfg.StoreDriver)
	}
	if cfg.FeedEnabled() && cfg.KafkaTopic == "" {
		return nil, errors.New("KAFKA_TOPIC is required when KAFKA_BROKERS is set")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

// parseList splits a comma-separated value, dropping empty entries.
func parseList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// parseLocations reads "Name=StationID" pairs. Names must be unique.
func parseLocations(s string) ([]Location, error) {
	entries := parseList(s)
	if len(entries) == 0 {
		return nil, errors.New("LOCATIONS is required: at least one Name=StationID entry")
	}

	seen := make(map[string]bool, len(entries))
	locations := make([]Location, 0, len(entries))
	for _, e := range entries {
		name, station, ok := strings.Cut(e, "=")
		name, station = strings.TrimSpace(name), strings.TrimSpace(station)
		if !ok || name == "" || station == "" {
			return nil, fmt.Errorf("invalid LOCATIONS entry %q: want Name=StationID", e)
		}
		if seen[name] {
			return nil, fmt.Errorf("invalid LOCATIONS: duplicate location %q", name)
		}
		seen[name] = true
		locations = append(locations, Location{Name: name, StationID: station})
	}
	return locations, nil
}

func parseDuration(key string, fallback time.Duration) (time.Duration, error) {
	s := strings.TrimSpace(os.Getenv(key))
	if s == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s %q: must be a positive duration", key, s)
	}
	return d, nil
}

func parseInt(key string, fallback, minimum int) (int, error) {
	s := strings.TrimSpace(os.Getenv(key))
	if s == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < minimum {
		return 0, fmt.Errorf("invalid %s %q: must be an integer >= %d", key, s, minimum)
	}
	return n, nil
}
