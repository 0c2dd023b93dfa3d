// Package config loads inboxdigest settings from an optional .env file and
// the environment. Command-line flags override the loaded values.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/teemow/inboxdigest/internal/cache"
	"github.com/teemow/inboxdigest/internal/gateway"
	"github.com/teemow/inboxdigest/internal/inbox"
	"github.com/teemow/inboxdigest/internal/logging"
	"github.com/teemow/inboxdigest/internal/push"
	"github.com/teemow/inboxdigest/internal/store"
)

// Store backends.
const (
	StoreFile   = "file"
	StoreMemory = "memory"
	StoreRedis  = "redis"
)

// Environment variables.
const (
	EnvAPIURL               = "INBOXDIGEST_API_URL"
	EnvStore                = "INBOXDIGEST_STORE"
	EnvStorePath            = "INBOXDIGEST_STORE_PATH"
	EnvSessionPath          = "INBOXDIGEST_SESSION_PATH"
	EnvStoreQuotaBytes      = "INBOXDIGEST_STORE_QUOTA_BYTES"
	EnvRedisURL             = "REDIS_URL"
	EnvRedisPrefix          = "INBOXDIGEST_REDIS_PREFIX"
	EnvPushChannelPrefix    = "INBOXDIGEST_PUSH_CHANNEL_PREFIX"
	EnvCacheMaxAgeDays      = "INBOXDIGEST_CACHE_MAX_AGE_DAYS"
	EnvTimezone             = "INBOXDIGEST_TIMEZONE"
	EnvHTTPTimeout          = "INBOXDIGEST_HTTP_TIMEOUT"
	EnvSummarizeConcurrency = "INBOXDIGEST_SUMMARIZE_CONCURRENCY"
	EnvLogLevel             = "LOG_LEVEL"
	EnvLogFormat            = "LOG_FORMAT"
)

// Config holds the runtime settings.
type Config struct {
	// APIURL is the backend gateway base URL
	APIURL string

	// Store selects the key-value backend: file, memory or redis
	Store string

	// StorePath is the state file of the file backend
	StorePath string

	// SessionPath is the file holding per-session markers for the file backend
	SessionPath string

	// StoreQuotaBytes caps the file and memory backends (0 = unlimited)
	StoreQuotaBytes int64

	// RedisURL is used by the redis backend and the push listener
	RedisURL string

	// RedisPrefix namespaces every key in Redis
	RedisPrefix string

	// PushChannelPrefix is prepended to the user id to form the push channel
	PushChannelPrefix string

	// CacheMaxAge is the default retention used by cleanup
	CacheMaxAge time.Duration

	// Timezone names the location used to project summaries onto calendar days
	Timezone string

	// HTTPTimeout bounds a single gateway JSON request
	HTTPTimeout time.Duration

	// SummarizeConcurrency bounds concurrent summarize calls
	SummarizeConcurrency int

	LogLevel  string
	LogFormat string
}

// Default returns the built-in defaults.
func Default() Config {
	return Config{
		APIURL:               gateway.DefaultBaseURL,
		Store:                StoreFile,
		StorePath:            store.DefaultFilePath(),
		SessionPath:          store.DefaultSessionFilePath(),
		StoreQuotaBytes:      store.DefaultQuotaBytes,
		RedisPrefix:          store.DefaultRedisPrefix,
		PushChannelPrefix:    push.DefaultChannelPrefix,
		CacheMaxAge:          cache.DefaultMaxAge,
		Timezone:             "UTC",
		HTTPTimeout:          gateway.DefaultTimeout,
		SummarizeConcurrency: inbox.DefaultConcurrency,
		LogLevel:             "info",
		LogFormat:            logging.FormatText,
	}
}

// Load reads envFile (".env" when empty, ignored if missing) and then
// the environment on top of the defaults.
func Load(envFile string) (Config, error) {
	if envFile == "" {
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("failed to load .env: %w", err)
		}
	} else if err := godotenv.Load(envFile); err != nil {
		return Config{}, fmt.Errorf("failed to load %s: %w", envFile, err)
	}
	return FromEnv()
}

// FromEnv applies environment variables on top of the defaults.
func FromEnv() (Config, error) {
	cfg := Default()

	cfg.APIURL = getEnv(EnvAPIURL, cfg.APIURL)
	cfg.Store = strings.ToLower(getEnv(EnvStore, cfg.Store))
	cfg.StorePath = getEnv(EnvStorePath, cfg.StorePath)
	cfg.SessionPath = getEnv(EnvSessionPath, cfg.SessionPath)
	cfg.RedisURL = getEnv(EnvRedisURL, cfg.RedisURL)
	cfg.RedisPrefix = getEnv(EnvRedisPrefix, cfg.RedisPrefix)
	cfg.PushChannelPrefix = getEnv(EnvPushChannelPrefix, cfg.PushChannelPrefix)
	cfg.Timezone = getEnv(EnvTimezone, cfg.Timezone)
	cfg.LogLevel = getEnv(EnvLogLevel, cfg.LogLevel)
	cfg.LogFormat = strings.ToLower(getEnv(EnvLogFormat, cfg.LogFormat))

	var err error
	if cfg.StoreQuotaBytes, err = getEnvInt64(EnvStoreQuotaBytes, cfg.StoreQuotaBytes); err != nil {
		return Config{}, err
	}
	days, err := getEnvInt64(EnvCacheMaxAgeDays, int64(cfg.CacheMaxAge/(24*time.Hour)))
	if err != nil {
		return Config{}, err
	}
	cfg.CacheMaxAge = cache.MaxAgeFromDays(float64(days))
	if cfg.HTTPTimeout, err = getEnvDuration(EnvHTTPTimeout, cfg.HTTPTimeout); err != nil {
		return Config{}, err
	}
	n, err := getEnvInt64(EnvSummarizeConcurrency, int64(cfg.SummarizeConcurrency))
	if err != nil {
		return Config{}, err
	}
	cfg.SummarizeConcurrency = int(n)

	return cfg, nil
}

// Validate checks the configuration for consistency.
func (c Config) Validate() error {
	u, err := url.Parse(c.APIURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid %s %q: must be an http(s) URL", EnvAPIURL, c.APIURL)
	}

	switch c.Store {
	case StoreFile:
		if c.StorePath == "" || c.SessionPath == "" {
			return fmt.Errorf("file store requires %s and %s", EnvStorePath, EnvSessionPath)
		}
	case StoreMemory:
	case StoreRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("redis store requires %s", EnvRedisURL)
		}
	default:
		return fmt.Errorf("invalid %s %q: must be one of file, memory, redis", EnvStore, c.Store)
	}

	if c.StoreQuotaBytes < 0 {
		return fmt.Errorf("%s must not be negative", EnvStoreQuotaBytes)
	}
	if c.CacheMaxAge < 0 {
		return fmt.Errorf("%s must not be negative", EnvCacheMaxAgeDays)
	}
	if c.HTTPTimeout <= 0 {
		return fmt.Errorf("%s must be positive", EnvHTTPTimeout)
	}
	if c.SummarizeConcurrency < 1 {
		return fmt.Errorf("%s must be at least 1", EnvSummarizeConcurrency)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	if c.LogFormat != logging.FormatText && c.LogFormat != logging.FormatJSON {
		return fmt.Errorf("invalid %s %q: must be text or json", EnvLogFormat, c.LogFormat)
	}
	return nil
}

// Location resolves Timezone.
func (c Config) Location() (*time.Location, error) {
	if c.Timezone == "" || strings.EqualFold(c.Timezone, "UTC") {
		return time.UTC, nil
	}
	if strings.EqualFold(c.Timezone, "Local") {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid %s %q: %w", EnvTimezone, c.Timezone, err)
	}
	return loc, nil
}

func getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) (int64, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return n, nil
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return d, nil
}
