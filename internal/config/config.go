// Package config reads service settings from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds environment-based settings
type Config struct {
	Environment    string
	ServerAddress  string
	LogLevel       string
	DatabaseURL    string // empty selects the in-memory store
	MigrationsPath string

	RedisAddress  string // empty disables the cache
	RedisUsername string
	RedisPassword string

	MQTTBrokerURL string // empty selects log-only sinks
	MQTTClientID  string
	AdhanAudioURL string

	ScrapeURL     string
	ScrapeTimeout time.Duration
	Location      string
	TimeZone      *time.Location
	RefreshHour   int

	UpdateRatePerMinute int

	UploadDir       string
	UseSpaces       bool
	SpacesEndpoint  string
	SpacesRegion    string
	SpacesBucket    string
	SpacesCDNURL    string
	SpacesAccessKey string
	SpacesSecretKey string
}

// Load reads configuration from environment variables, applying defaults
// for everything optional.
func Load() (*Config, error) {
	zone, err := loadZone(os.Getenv("TIMEZONE"))
	if err != nil {
		return nil, err
	}
	timeout, err := envDuration("SCRAPE_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}
	refreshHour, err := envInt("REFRESH_HOUR", 6)
	if err != nil {
		return nil, err
	}
	updateRate, err := envInt("UPDATE_RATE_PER_MINUTE", 6)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Environment:    envOr("APP_ENV", "development"),
		ServerAddress:  envOr("SERVER_ADDRESS", ":8080"),
		LogLevel:       envOr("LOG_LEVEL", "info"),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		MigrationsPath: envOr("MIGRATIONS_PATH", "./migrations"),

		RedisAddress:  os.Getenv("REDIS_ADDRESS"),
		RedisUsername: os.Getenv("REDIS_USERNAME"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),

		MQTTBrokerURL: os.Getenv("MQTT_BROKER_URL"),
		MQTTClientID:  envOr("MQTT_CLIENT_ID", "athan-server"),
		AdhanAudioURL: envOr("ADHAN_AUDIO_URL", "/audio/adhan.mp3"),

		ScrapeURL:     envOr("SCRAPE_URL", "https://almanar.com.lb/salat/"),
		ScrapeTimeout: timeout,
		Location:      envOr("LOCATION", "Beirut, Lebanon"),
		TimeZone:      zone,
		RefreshHour:   refreshHour,

		UpdateRatePerMinute: updateRate,

		UploadDir:       envOr("UPLOAD_DIR", "./uploads"),
		UseSpaces:       envBool("USE_SPACES", false),
		SpacesEndpoint:  os.Getenv("SPACES_ENDPOINT"),
		SpacesRegion:    os.Getenv("SPACES_REGION"),
		SpacesBucket:    os.Getenv("SPACES_BUCKET"),
		SpacesCDNURL:    os.Getenv("SPACES_CDN_URL"),
		SpacesAccessKey: os.Getenv("SPACES_ACCESS_KEY"),
		SpacesSecretKey: os.Getenv("SPACES_SECRET_KEY"),
	}

	if cfg.RefreshHour < 0 || cfg.RefreshHour > 23 {
		return nil, fmt.Errorf("REFRESH_HOUR must be between 0 and 23, got %d", cfg.RefreshHour)
	}
	if cfg.UpdateRatePerMinute < 1 {
		return nil, fmt.Errorf("UPDATE_RATE_PER_MINUTE must be positive, got %d", cfg.UpdateRatePerMinute)
	}
	if cfg.UseSpaces && (cfg.SpacesBucket == "" || cfg.SpacesEndpoint == "") {
		return nil, fmt.Errorf("USE_SPACES requires SPACES_ENDPOINT and SPACES_BUCKET")
	}
	return cfg, nil
}

// IsProduction returns true if running in production environment.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func loadZone(name string) (*time.Location, error) {
	if name == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE %q: %w", name, err)
	}
	return loc, nil
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: want an integer", key, v)
	}
	return n, nil
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s %q: want a positive duration like 10s", key, v)
	}
	return d, nil
}
