package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"github.com/joho/godotenv"

	"github.com/couchcryptid/storm-radar-service/internal/adapter/archive"
	"github.com/couchcryptid/storm-radar-service/internal/station"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Station is the radar polled by the pipeline.
	Station string

	ArchiveBaseURL string
	ArchiveTimeout time.Duration

	CacheDir      string
	CacheMaxBytes int64

	PollInterval         time.Duration
	RetryMaxAttempts     int
	RetryBaseDelay       time.Duration
	RetryMaxDelay        time.Duration
	MaxConcurrentFetches int

	KafkaEnabled bool
	KafkaBrokers []string
	KafkaTopic   string
}

const defaultCacheMaxBytes = 2 << 30

// Load reads configuration from environment variables, applying defaults where unset.
// Values from a .env file in the working directory are used when the
// variable is not already set.
func Load() (*Config, error) {
	_ = godotenv.Load() // ignore missing file

	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	archiveTimeout, err := parseDuration("ARCHIVE_TIMEOUT", "60s")
	if err != nil {
		return nil, err
	}
	pollInterval, err := parseDuration("POLL_INTERVAL", "60s")
	if err != nil {
		return nil, err
	}
	baseDelay, err := parseDuration("RETRY_BASE_DELAY", "1s")
	if err != nil {
		return nil, err
	}
	maxDelay, err := parseDuration("RETRY_MAX_DELAY", "4s")
	if err != nil {
		return nil, err
	}
	if maxDelay < baseDelay {
		return nil, errors.New("invalid RETRY_MAX_DELAY")
	}

	retries, err := parseInt("RETRY_MAX_ATTEMPTS", 3, 0)
	if err != nil {
		return nil, err
	}
	concurrent, err := parseInt("MAX_CONCURRENT_FETCHES", 4, 1)
	if err != nil {
		return nil, err
	}

	cacheMax := int64(defaultCacheMaxBytes)
	if s := os.Getenv("CACHE_MAX_BYTES"); s != "" {
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil || n <= 0 {
			return nil, errors.New("invalid CACHE_MAX_BYTES")
		}
		cacheMax = n
	}

	kafkaEnabled := false
	if v := os.Getenv("KAFKA_ENABLED"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, errors.New("invalid KAFKA_ENABLED")
		}
		kafkaEnabled = b
	}

	cfg := &Config{
		HTTPAddr:             sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:             sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:            sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout:      shutdownTimeout,
		Station:              strings.ToUpper(strings.TrimSpace(sharedcfg.EnvOrDefault("RADAR_STATION", "KTLX"))),
		ArchiveBaseURL:       strings.TrimRight(sharedcfg.EnvOrDefault("ARCHIVE_BASE_URL", archive.DefaultBaseURL), "/"),
		ArchiveTimeout:       archiveTimeout,
		CacheDir:             sharedcfg.EnvOrDefault("CACHE_DIR", "./data/cache"),
		CacheMaxBytes:        cacheMax,
		PollInterval:         pollInterval,
		RetryMaxAttempts:     retries,
		RetryBaseDelay:       baseDelay,
		RetryMaxDelay:        maxDelay,
		MaxConcurrentFetches: concurrent,
		KafkaEnabled:         kafkaEnabled,
		KafkaBrokers:         sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaTopic:           sharedcfg.EnvOrDefault("KAFKA_TOPIC", "radar-scans"),
	}

	if _, ok := station.Lookup(cfg.Station); !ok {
		return nil, errors.New("invalid RADAR_STATION")
	}
	if cfg.ArchiveBaseURL == "" {
		return nil, errors.New("ARCHIVE_BASE_URL is required")
	}
	if cfg.CacheDir == "" {
		return nil, errors.New("CACHE_DIR is required")
	}
	if cfg.KafkaEnabled {
		if len(cfg.KafkaBrokers) == 0 {
			return nil, errors.New("KAFKA_BROKERS is required")
		}
	}

	return cfg, nil
}

func parseDuration(name, def string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(name, def))
	if err != nil || d <= 0 {
		return 0, errors.New("invalid " + name)
	}
	return d, nil
}

func parseInt(name string, def, lowest int) (int, error) {
	s := os.Getenv(name)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < lowest {
		return 0, errors.New("invalid " + name)
	}
	return n, nil
}
