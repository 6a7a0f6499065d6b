package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds runtime configuration values for the sync service.
type Config struct {
	AppName     string
	AppEnv      string
	AppPort     string
	LogLevel    string
	LogFormat   string
	DatabaseURL string
	RedisURL    string
	NATSURL     string
	// EventChannel prefixes the redis channel and nats subject sync status events are published on.
	EventChannel string
	JWTSecret    string
	CORSOrigins  string

	CanvasBaseURL  string
	CanvasToken    string
	RequestTimeout time.Duration
	PageSize       int
	MaxPages       int

	SyncMaxAge        time.Duration
	SyncCheckInterval time.Duration
	SyncConcurrency   int
	RetryAttempts     int
	RetryDelay        time.Duration
	ConflictStrategy  string

	RateLimitMax    int
	RateLimitWindow time.Duration
	SSEKeepAlive    time.Duration
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// UsesPostgres reports whether DatabaseURL points at PostgreSQL rather than a sqlite file.
func (c Config) UsesPostgres() bool {
	dsn := strings.ToLower(strings.TrimSpace(c.DatabaseURL))
	return strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") || strings.Contains(dsn, "host=")
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("CANVAS")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "Canvas Sync")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("database.url", "canvas-cache.db")
	v.SetDefault("event.channel", "canvas")
	v.SetDefault("request.timeout", "30s")
	v.SetDefault("page.size", 100)
	v.SetDefault("max.pages", 1000)
	v.SetDefault("sync.max_age", "5m")
	v.SetDefault("sync.check_interval", "1m")
	v.SetDefault("sync.concurrency", 6)
	v.SetDefault("retry.attempts", 2)
	v.SetDefault("retry.delay", "500ms")
	v.SetDefault("conflict.strategy", "server_wins")
	v.SetDefault("rate_limit.max", 5)
	v.SetDefault("rate_limit.window", "1m")
	v.SetDefault("sse.keepalive", "30s")
	v.SetDefault("cors.origins", "*")

	requestTimeout, err := parseDuration(v, "request.timeout", 30*time.Second)
	if err != nil {
		return Config{}, err
	}
	maxAge, err := parseDuration(v, "sync.max_age", 5*time.Minute)
	if err != nil {
		return Config{}, err
	}
	checkInterval, err := parseDuration(v, "sync.check_interval", time.Minute)
	if err != nil {
		return Config{}, err
	}
	retryDelay, err := parseDuration(v, "retry.delay", 500*time.Millisecond)
	if err != nil {
		return Config{}, err
	}
	rateWindow, err := parseDuration(v, "rate_limit.window", time.Minute)
	if err != nil {
		return Config{}, err
	}
	keepAlive, err := parseDuration(v, "sse.keepalive", 30*time.Second)
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		AppName:           v.GetString("app.name"),
		AppEnv:            v.GetString("app.env"),
		AppPort:           v.GetString("app.port"),
		LogLevel:          strings.ToLower(v.GetString("log.level")),
		LogFormat:         strings.ToLower(v.GetString("log.format")),
		DatabaseURL:       v.GetString("database.url"),
		RedisURL:          v.GetString("redis.url"),
		NATSURL:           v.GetString("nats.url"),
		EventChannel:      v.GetString("event.channel"),
		JWTSecret:         v.GetString("jwt.secret"),
		CORSOrigins:       strings.TrimSpace(v.GetString("cors.origins")),
		CanvasBaseURL:     strings.TrimRight(strings.TrimSpace(v.GetString("base_url")), "/"),
		CanvasToken:       strings.TrimSpace(v.GetString("api_token")),
		RequestTimeout:    requestTimeout,
		PageSize:          v.GetInt("page.size"),
		MaxPages:          v.GetInt("max.pages"),
		SyncMaxAge:        maxAge,
		SyncCheckInterval: checkInterval,
		SyncConcurrency:   v.GetInt("sync.concurrency"),
		RetryAttempts:     v.GetInt("retry.attempts"),
		RetryDelay:        retryDelay,
		ConflictStrategy:  strings.ToLower(v.GetString("conflict.strategy")),
		RateLimitMax:      v.GetInt("rate_limit.max"),
		RateLimitWindow:   rateWindow,
		SSEKeepAlive:      keepAlive,
	}

	if cfg.PageSize <= 0 || cfg.PageSize > 100 {
		cfg.PageSize = 100
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 1000
	}
	if cfg.SyncConcurrency <= 0 {
		cfg.SyncConcurrency = 6
	}
	if cfg.RetryAttempts < 0 {
		cfg.RetryAttempts = 0
	}

	switch cfg.ConflictStrategy {
	case "server_wins", "most_recent":
	default:
		return Config{}, fmt.Errorf("unknown conflict strategy %q", cfg.ConflictStrategy)
	}

	return cfg, nil
}

func parseDuration(v *viper.Viper, key string, fallback time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(v.GetString(key))
	if raw == "" {
		return fallback, nil
	}

	value, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if value <= 0 {
		return fallback, nil
	}
	return value, nil
}
