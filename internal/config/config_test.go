package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, "KTLX", cfg.Station)
	assert.Equal(t, "https://noaa-nexrad-level2.s3.amazonaws.com", cfg.ArchiveBaseURL)
	assert.Equal(t, 60*time.Second, cfg.ArchiveTimeout)
	assert.Equal(t, "./data/cache", cfg.CacheDir)
	assert.Equal(t, int64(2<<30), cfg.CacheMaxBytes)
	assert.Equal(t, 60*time.Second, cfg.PollInterval)
	assert.Equal(t, 3, cfg.RetryMaxAttempts)
	assert.Equal(t, time.Second, cfg.RetryBaseDelay)
	assert.Equal(t, 4*time.Second, cfg.RetryMaxDelay)
	assert.Equal(t, 4, cfg.MaxConcurrentFetches)
	assert.False(t, cfg.KafkaEnabled)
	assert.Equal(t, []string{"localhost:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "radar-scans", cfg.KafkaTopic)
}

func TestLoad_CustomEnv(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "text")
	t.Setenv("SHUTDOWN_TIMEOUT", "30s")
	t.Setenv("RADAR_STATION", " kinx ")
	t.Setenv("ARCHIVE_BASE_URL", "http://localhost:9000/")
	t.Setenv("ARCHIVE_TIMEOUT", "5s")
	t.Setenv("CACHE_DIR", "/var/cache/radar")
	t.Setenv("CACHE_MAX_BYTES", "1048576")
	t.Setenv("POLL_INTERVAL", "30s")
	t.Setenv("RETRY_MAX_ATTEMPTS", "5")
	t.Setenv("RETRY_BASE_DELAY", "500ms")
	t.Setenv("RETRY_MAX_DELAY", "8s")
	t.Setenv("MAX_CONCURRENT_FETCHES", "8")
	t.Setenv("KAFKA_ENABLED", "true")
	t.Setenv("KAFKA_BROKERS", "broker1:9092,broker2:9092")
	t.Setenv("KAFKA_TOPIC", "scans")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, "KINX", cfg.Station)
	assert.Equal(t, "http://localhost:9000", cfg.ArchiveBaseURL)
	assert.Equal(t, 5*time.Second, cfg.ArchiveTimeout)
	assert.Equal(t, "/var/cache/radar", cfg.CacheDir)
	assert.Equal(t, int64(1<<20), cfg.CacheMaxBytes)
	assert.Equal(t, 30*time.Second, cfg.PollInterval)
	assert.Equal(t, 5, cfg.RetryMaxAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.RetryBaseDelay)
	assert.Equal(t, 8*time.Second, cfg.RetryMaxDelay)
	assert.Equal(t, 8, cfg.MaxConcurrentFetches)
	assert.True(t, cfg.KafkaEnabled)
	assert.Equal(t, []string{"broker1:9092", "broker2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "scans", cfg.KafkaTopic)
}

func TestLoad_ZeroRetriesAllowed(t *testing.T) {
	t.Setenv("RETRY_MAX_ATTEMPTS", "0")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Zero(t, cfg.RetryMaxAttempts)
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		env   string
		value string
	}{
		{"SHUTDOWN_TIMEOUT", "not-a-duration"},
		{"SHUTDOWN_TIMEOUT", "-1s"},
		{"RADAR_STATION", "XXXX"},
		{"ARCHIVE_TIMEOUT", "soon"},
		{"POLL_INTERVAL", "0s"},
		{"RETRY_MAX_ATTEMPTS", "-1"},
		{"RETRY_MAX_ATTEMPTS", "three"},
		{"RETRY_BASE_DELAY", "-1s"},
		{"RETRY_MAX_DELAY", "500ms"},
		{"MAX_CONCURRENT_FETCHES", "0"},
		{"CACHE_MAX_BYTES", "0"},
		{"CACHE_MAX_BYTES", "2GB"},
		{"KAFKA_ENABLED", "maybe"},
	}
	for _, tt := range tests {
		t.Run(tt.env+"="+tt.value, func(t *testing.T) {
			t.Setenv(tt.env, tt.value)
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.env)
		})
	}
}

func TestLoad_KafkaBrokersRequiredWhenEnabled(t *testing.T) {
	t.Setenv("KAFKA_ENABLED", "true")
	t.Setenv("KAFKA_BROKERS", " , ")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "KAFKA_BROKERS")
}

func TestLoad_KafkaBrokersIgnoredWhenDisabled(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", " , ")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Empty(t, cfg.KafkaBrokers)
}
