package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []Location{{Name: "Winnipeg", StationID: "27174"}}, cfg.Locations)
	assert.Equal(t, defaultBaseURL, cfg.SourceBaseURL)
	assert.Equal(t, 2020, cfg.StartYear)
	assert.Equal(t, DriverSQLite, cfg.StoreDriver)
	assert.Equal(t, "climate.db", cfg.SQLitePath)
	assert.Empty(t, cfg.DatabaseURL)
	assert.Equal(t, 30*time.Second, cfg.FetchTimeout)
	assert.Equal(t, 10*time.Second, cfg.StoreTimeout)
	assert.Equal(t, 256, cfg.PageCacheSize)
	assert.Equal(t, 6*time.Hour, cfg.UpdateInterval)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	assert.Empty(t, cfg.KafkaBrokers)
	assert.False(t, cfg.FeedEnabled())
}

func TestLoad_CustomEnv(t *testing.T) {
	t.Setenv("LOCATIONS", "Winnipeg=27174, Brandon=49909")
	t.Setenv("SOURCE_BASE_URL", "http://localhost:9999/daily")
	t.Setenv("START_YEAR", "1999")
	t.Setenv("STORE_DRIVER", "postgres")
	t.Setenv("DATABASE_URL", "postgres://etl@localhost/climate")
	t.Setenv("FETCH_TIMEOUT", "5s")
	t.Setenv("STORE_TIMEOUT", "2s")
	t.Setenv("PAGE_CACHE_SIZE", "10")
	t.Setenv("UPDATE_INTERVAL", "1h")
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "text")
	t.Setenv("SHUTDOWN_TIMEOUT", "30s")
	t.Setenv("KAFKA_BROKERS", "broker1:9092,broker2:9092")
	t.Setenv("KAFKA_TOPIC", "daily")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"Winnipeg", "Brandon"}, cfg.LocationNames())
	assert.Equal(t, map[string]string{"Winnipeg": "27174", "Brandon": "49909"}, cfg.Stations())
	assert.Equal(t, "http://localhost:9999/daily", cfg.SourceBaseURL)
	assert.Equal(t, 1999, cfg.StartYear)
	assert.Equal(t, DriverPostgres, cfg.StoreDriver)
	assert.Equal(t, "postgres://etl@localhost/climate", cfg.DatabaseURL)
	assert.Equal(t, 5*time.Second, cfg.FetchTimeout)
	assert.Equal(t, 2*time.Second, cfg.StoreTimeout)
	assert.Equal(t, 10, cfg.PageCacheSize)
	assert.Equal(t, time.Hour, cfg.UpdateInterval)
	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, []string{"broker1:9092", "broker2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "daily", cfg.KafkaTopic)
	assert.True(t, cfg.FeedEnabled())
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		key, value string
	}{
		{"START_YEAR", "last-year"},
		{"START_YEAR", "0"},
		{"FETCH_TIMEOUT", "soon"},
		{"STORE_TIMEOUT", "-1s"},
		{"PAGE_CACHE_SIZE", "-5"},
		{"UPDATE_INTERVAL", "0s"},
		{"SHUTDOWN_TIMEOUT", "not-a-duration"},
		{"STORE_DRIVER", "mysql"},
	}
	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.key)
		})
	}
}

func TestLoad_Locations(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		wantErr string
	}{
		{"blank", " , ", "LOCATIONS is required"},
		{"missing station", "Winnipeg=", "want Name=StationID"},
		{"missing separator", "Winnipeg", "want Name=StationID"},
		{"duplicate", "Winnipeg=1,Winnipeg=2", "duplicate location"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("LOCATIONS", tt.value)
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad_ZeroCacheSizeDisablesCache(t *testing.T) {
	t.Setenv("PAGE_CACHE_SIZE", "0")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Zero(t, cfg.PageCacheSize)
}

func TestLoad_PostgresRequiresURL(t *testing.T) {
	t.Setenv("STORE_DRIVER", "postgres")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL")
}

func TestLoad_DotEnv(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("START_YEAR=2015\nHTTP_ADDR=:7070\n"), 0o600))
	t.Chdir(dir)
	t.Setenv("HTTP_ADDR", ":6060")
	// Vars set by godotenv outlive the test; unset on cleanup.
	t.Cleanup(func() { _ = os.Unsetenv("START_YEAR") })

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 2015, cfg.StartYear)
	assert.Equal(t, ":6060", cfg.HTTPAddr, "environment wins over .env")
}
