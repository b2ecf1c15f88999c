package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/i474232898/weather-notification/internal/weather"
)

type AppConfig struct {
	OpenWeatherAPIKey string
	WeatherAPIKey     string

	// Geocoder selects the reverse geocoder: "nominatim" (default) or "google".
	Geocoder             string
	GoogleGeocoderAPIKey string

	// RefreshInterval controls how often the scheduler triggers a quiet refresh.
	RefreshInterval time.Duration
	RefreshOnStart  bool
	HTTPTimeout     time.Duration

	// Limits for the manual refresh endpoint.
	RefreshRate  float64
	RefreshBurst int

	// Storage backend: memory, redis or sqlite.
	StoreBackend    string
	StoreMaxHistory int           // max number of readings kept (0 = unlimited)
	StoreMaxAge     time.Duration // max age of readings in memory (0 = unlimited)
	RedisAddr       string
	SQLitePath      string

	ReachabilityAddrs   []string
	ReachabilityTimeout time.Duration

	PreferencesFile string

	// Seed coordinates for the device location, if known at startup.
	DeviceCoordinates *weather.Coordinates
	LocationMaxAge    time.Duration

	NoticeLimit int

	LogLevel  string
	LogFormat string

	Port string
}

// Load reads configuration from environment with sensible defaults.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		log.Printf("INFO: No .env file found or error loading it: %v", err)
	}
	cfg := &AppConfig{}
	var err error

	cfg.OpenWeatherAPIKey = os.Getenv("OPENWEATHER_API_KEY")
	cfg.WeatherAPIKey = os.Getenv("WEATHERAPI_API_KEY")
	cfg.GoogleGeocoderAPIKey = os.Getenv("GOOGLE_GEOCODER_API_KEY")

	cfg.Geocoder = strings.ToLower(getenvDefault("GEOCODER", "nominatim"))
	if cfg.Geocoder != "nominatim" && cfg.Geocoder != "google" {
		return nil, fmt.Errorf("invalid GEOCODER %q: want nominatim or google", cfg.Geocoder)
	}

	// Scheduler interval: default 30 minutes.
	if cfg.RefreshInterval, err = getenvDuration("REFRESH_INTERVAL", 30*time.Minute); err != nil {
		return nil, err
	}
	if cfg.RefreshInterval <= 0 {
		return nil, fmt.Errorf("invalid REFRESH_INTERVAL: must be positive")
	}
	if cfg.RefreshOnStart, err = getenvBool("REFRESH_ON_START", true); err != nil {
		return nil, err
	}
	if cfg.HTTPTimeout, err = getenvDuration("HTTP_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}

	if cfg.RefreshRate, err = getenvFloat("REFRESH_RATE", 1); err != nil {
		return nil, err
	}
	cfg.RefreshBurst = getenvInt("REFRESH_BURST", 3)

	cfg.StoreBackend = strings.ToLower(getenvDefault("STORE_BACKEND", "memory"))
	switch cfg.StoreBackend {
	case "memory", "redis", "sqlite":
	default:
		return nil, fmt.Errorf("invalid STORE_BACKEND %q: want memory, redis or sqlite", cfg.StoreBackend)
	}

	// Store retention.
	cfg.StoreMaxHistory = getenvInt("STORE_MAX_HISTORY", 48) // roughly 24h at 30-minute intervals
	if cfg.StoreMaxAge, err = getenvDuration("STORE_MAX_AGE", 24*time.Hour); err != nil {
		return nil, err
	}
	cfg.RedisAddr = getenvDefault("REDIS_ADDR", "localhost:6379")
	cfg.SQLitePath = getenvDefault("SQLITE_PATH", "weather.db")

	cfg.ReachabilityAddrs = splitList(getenvDefault("REACHABILITY_ADDRS", "1.1.1.1:53,8.8.8.8:53"))
	if cfg.ReachabilityTimeout, err = getenvDuration("REACHABILITY_TIMEOUT", 3*time.Second); err != nil {
		return nil, err
	}

	cfg.PreferencesFile = os.Getenv("PREFERENCES_FILE")

	coords, err := loadDeviceCoordinates()
	if err != nil {
		return nil, err
	}
	cfg.DeviceCoordinates = coords
	if cfg.LocationMaxAge, err = getenvDuration("LOCATION_MAX_AGE", 0); err != nil {
		return nil, err
	}

	cfg.NoticeLimit = getenvInt("NOTICE_LIMIT", 50)
	cfg.LogLevel = getenvDefault("LOG_LEVEL", "info")
	cfg.LogFormat = getenvDefault("LOG_FORMAT", "json")
	cfg.Port = getenvDefault("PORT", "8080")

	return cfg, nil
}

func loadDeviceCoordinates() (*weather.Coordinates, error) {
	latStr := os.Getenv("DEVICE_LATITUDE")
	lonStr := os.Getenv("DEVICE_LONGITUDE")
	if latStr == "" && lonStr == "" {
		return nil, nil
	}
	if latStr == "" || lonStr == "" {
		return nil, fmt.Errorf("DEVICE_LATITUDE and DEVICE_LONGITUDE must be set together")
	}

	lat, err := strconv.ParseFloat(latStr, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid DEVICE_LATITUDE: %w", err)
	}
	lon, err := strconv.ParseFloat(lonStr, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid DEVICE_LONGITUDE: %w", err)
	}
	return &weather.Coordinates{Latitude: lat, Longitude: lon}, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
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

func getenvFloat(key string, def float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return f, nil
}

func getenvBool(key string, def bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}

func getenvDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
