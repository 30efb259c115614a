package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	LogLevel        slog.Level
	HTTPAddr        string        `validate:"required"`
	ReadTimeout     time.Duration `validate:"gt=0"`
	WriteTimeout    time.Duration `validate:"gt=0"`
	ShutdownTimeout time.Duration `validate:"gt=0"`

	DBDriver     string        `validate:"oneof=pgx sqlite"`
	DatabaseURL  string        `validate:"required"`
	DBMaxConns   int           `validate:"gte=0"`
	DBConnectFor time.Duration `validate:"gt=0"`

	FeedVehiclePositionsURL string        `validate:"required,url"`
	FeedTripUpdatesURL      string        `validate:"omitempty,url"`
	FeedAlertsURL           string        `validate:"omitempty,url"`
	FeedTimeout             time.Duration `validate:"gt=0"`
	PollInterval            time.Duration `validate:"gt=0"`

	VehicleStaleAfter time.Duration `validate:"gte=0"`
	WSSendBuffer      int           `validate:"gt=0"`
	WSWriteTimeout    time.Duration `validate:"gt=0"`
	ServiceLocation   *time.Location

	RedisEnabled         bool
	RedisAddr            string `validate:"required_if=RedisEnabled true"`
	RedisPassword        string
	RedisDB              int
	CacheTTL             time.Duration
	CacheRefreshInterval time.Duration
	TripCacheSize        int `validate:"gte=0"`
	TripCacheTTL         time.Duration

	NATSURL     string
	NATSSubject string

	CORSAllowedOrigins []string

	RateLimitPerWindow int           `validate:"gte=0"`
	RateLimitWindow    time.Duration `validate:"gt=0"`
	RateLimitWhitelist []string
}

// fileConfig is the optional YAML file named by CONFIG_FILE. Its values replace
// the built-in defaults; environment variables still win over both.
type fileConfig struct {
	Database struct {
		Driver string `yaml:"driver"`
		URL    string `yaml:"url"`
	} `yaml:"database"`
	Feeds struct {
		VehiclePositionsURL string        `yaml:"vehiclePositionsURL"`
		TripUpdatesURL      string        `yaml:"tripUpdatesURL"`
		AlertsURL           string        `yaml:"alertsURL"`
		Timeout             time.Duration `yaml:"timeout"`
		PollInterval        time.Duration `yaml:"pollInterval"`
	} `yaml:"feeds"`
	ServiceTimezone string `yaml:"serviceTimezone"`
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	var file fileConfig
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	loc, err := time.LoadLocation(getEnv("SERVICE_TIMEZONE", or(file.ServiceTimezone, "Local")))
	if err != nil {
		return nil, fmt.Errorf("SERVICE_TIMEZONE: %w", err)
	}

	cfg := &Config{
		LogLevel:        getLogLevelEnv("LOG_LEVEL", slog.LevelInfo),
		HTTPAddr:        getEnv("HTTP_ADDR", ":8080"),
		ReadTimeout:     getDurationEnv("READ_TIMEOUT", 10*time.Second),
		WriteTimeout:    getDurationEnv("WRITE_TIMEOUT", 30*time.Second),
		ShutdownTimeout: getDurationEnv("SHUTDOWN_TIMEOUT", 30*time.Second),

		DBDriver:     getEnv("DB_DRIVER", or(file.Database.Driver, "pgx")),
		DatabaseURL:  getEnv("DATABASE_URL", file.Database.URL),
		DBMaxConns:   getIntEnv("DB_MAX_CONNS", 20),
		DBConnectFor: getDurationEnv("DB_CONNECT_TIMEOUT", 30*time.Second),

		FeedVehiclePositionsURL: getEnv("FEED_VEHICLE_POSITIONS_URL", file.Feeds.VehiclePositionsURL),
		FeedTripUpdatesURL:      getEnv("FEED_TRIP_UPDATES_URL", file.Feeds.TripUpdatesURL),
		FeedAlertsURL:           getEnv("FEED_ALERTS_URL", file.Feeds.AlertsURL),
		FeedTimeout:             getDurationEnv("FEED_TIMEOUT", orDuration(file.Feeds.Timeout, 10*time.Second)),
		PollInterval:            getDurationEnv("POLL_INTERVAL", orDuration(file.Feeds.PollInterval, 2*time.Second)),

		VehicleStaleAfter: getDurationEnv("VEHICLE_STALE_AFTER", 5*time.Minute),
		WSSendBuffer:      getIntEnv("WS_SEND_BUFFER", 16),
		WSWriteTimeout:    getDurationEnv("WS_WRITE_TIMEOUT", 5*time.Second),
		ServiceLocation:   loc,

		RedisEnabled:         getBoolEnv("REDIS_ENABLED", false),
		RedisAddr:            getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:        getEnv("REDIS_PASSWORD", ""),
		RedisDB:              getIntEnv("REDIS_DB", 0),
		CacheTTL:             getDurationEnv("CACHE_TTL", 24*time.Hour),
		CacheRefreshInterval: getDurationEnv("CACHE_REFRESH_INTERVAL", time.Hour),
		TripCacheSize:        getIntEnv("TRIP_CACHE_SIZE", 10000),
		TripCacheTTL:         getDurationEnv("TRIP_CACHE_TTL", 6*time.Hour),

		NATSURL:     getEnv("NATS_URL", ""),
		NATSSubject: getEnv("NATS_SUBJECT", "transit.positions"),

		CORSAllowedOrigins: getCSVEnv("CORS_ALLOWED_ORIGINS"),

		RateLimitPerWindow: getIntEnv("RATE_LIMIT_PER_WINDOW", 120),
		RateLimitWindow:    getDurationEnv("RATE_LIMIT_WINDOW", time.Minute),
		RateLimitWhitelist: getCSVEnv("RATE_LIMIT_WHITELIST"),
	}
	if len(cfg.CORSAllowedOrigins) == 0 {
		cfg.CORSAllowedOrigins = []string{"*"}
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func or(v, defaultVal string) string {
	if v != "" {
		return v
	}
	return defaultVal
}

func orDuration(v, defaultVal time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return defaultVal
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getDurationEnv(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}

func getIntEnv(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

func getBoolEnv(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultVal
}

func getLogLevelEnv(key string, defaultVal slog.Level) slog.Level {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}

	switch strings.ToLower(v) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return defaultVal
	}
}

func getCSVEnv(key string) []string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil
	}

	parts := strings.Split(v, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			result = append(result, t)
		}
	}
	return result
}
