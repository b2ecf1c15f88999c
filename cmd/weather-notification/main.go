package main

import (
	"context"
	"io"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	redisv9 "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	httpapi "github.com/i474232898/weather-notification/internal/api/http"
	"github.com/i474232898/weather-notification/internal/config"
	"github.com/i474232898/weather-notification/internal/location"
	"github.com/i474232898/weather-notification/internal/network"
	"github.com/i474232898/weather-notification/internal/notify"
	"github.com/i474232898/weather-notification/internal/refresh"
	"github.com/i474232898/weather-notification/internal/scheduler"
	"github.com/i474232898/weather-notification/internal/store"
	"github.com/i474232898/weather-notification/internal/weather"
	"github.com/i474232898/weather-notification/internal/weather/providers"
)

const userAgent = "weather-notification/1.0"

// weatherStore is what the refresh core writes to and the API reads from.
type weatherStore interface {
	refresh.Storage
	store.Reader
}

func main() {
	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	sugar, err := config.NewLogger(cfg)
	if err != nil {
		log.Fatalf("failed to create logger: %v", err)
	}
	defer func() { _ = sugar.Sync() }()

	// Shared HTTP client for outbound provider and geocoder calls.
	httpClient := &http.Client{
		Timeout: cfg.HTTPTimeout,
	}

	st, closeStore, err := openStore(cfg, sugar)
	if err != nil {
		sugar.Fatalw("failed to open store", "backend", cfg.StoreBackend, "err", err)
	}
	defer closeStore()

	// Providers with resilience (backoff + circuit breaker).
	var provs []weather.Provider
	if cfg.OpenWeatherAPIKey != "" {
		provs = append(provs, providers.NewOpenWeatherProvider(httpClient, cfg.OpenWeatherAPIKey))
	}
	if cfg.WeatherAPIKey != "" {
		provs = append(provs, providers.NewWeatherAPIProvider(httpClient, cfg.WeatherAPIKey))
	}
	// Open-Meteo needs no API key but only serves coordinates.
	provs = append(provs, providers.NewOpenMeteoProvider(httpClient))

	service := weather.NewService(provs, sugar.Named("weather"))
	sugar.Infow("weather providers registered", "providers", service.Providers())

	// Device location, optionally seeded from configuration.
	lastKnown := location.NewLastKnown(cfg.LocationMaxAge)
	if cfg.DeviceCoordinates != nil {
		if err := lastKnown.Update(*cfg.DeviceCoordinates); err != nil {
			sugar.Fatalw("invalid device coordinates", "err", err)
		}
	}
	resolver := location.NewResolver(lastKnown, newGeocoder(cfg, httpClient, sugar), sugar.Named("location"))

	prefs, err := config.LoadPreferences(cfg.PreferencesFile)
	if err != nil {
		sugar.Fatalw("failed to load preferences", "err", err)
	}

	var reach refresh.Reachability = network.Always{}
	if len(cfg.ReachabilityAddrs) > 0 {
		reach = network.NewChecker(cfg.ReachabilityAddrs, cfg.ReachabilityTimeout, sugar.Named("network"))
	}

	feed := notify.NewFeed(cfg.NoticeLimit, sugar.Named("notify"))

	orch := refresh.NewOrchestrator(refresh.Deps{
		Source:       service,
		Resolver:     resolver,
		Storage:      st,
		Reachability: reach,
		Notifier:     feed,
		Settings: refresh.SettingsFunc(func() refresh.Settings {
			p := prefs.Snapshot()
			return refresh.Settings{AutoLocation: p.AutoLocation, Location: p.Location}
		}),
		Logger: sugar.Named("refresh"),
	})
	defer orch.Close()

	// Scheduler that periodically triggers a quiet refresh.
	sched := scheduler.New(orch, cfg.RefreshInterval, cfg.RefreshOnStart, sugar.Named("scheduler"))
	if err := sched.Start(); err != nil {
		sugar.Fatalw("failed to start scheduler", "err", err)
	}

	limiter := httpapi.NewRateLimiter(cfg.RefreshRate, cfg.RefreshBurst)

	// Basic app configuration
	app := fiber.New(fiber.Config{
		AppName:               "weather-notification",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          10 * time.Second,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			// Centralized error response
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error":   true,
				"message": err.Error(),
			})
		},
	})

	// Global middleware
	app.Use(logger.New())
	app.Use(recover.New())

	// API routes.
	httpapi.RegisterRoutes(app, httpapi.Deps{
		Refresher:   orch,
		Store:       st,
		Location:    lastKnown,
		Preferences: prefs,
		Notices:     feed,
		Limiter:     limiter,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				limiter.Cleanup(3 * time.Minute)
			}
		}
	}()

	// Start server with graceful shutdown
	go func() {
		sugar.Infow("http server listening", "port", cfg.Port)
		if err := app.Listen(":" + cfg.Port); err != nil {
			sugar.Warnw("fiber server stopped", "err", err)
		}
	}()

	// Wait for termination signal
	<-ctx.Done()
	sugar.Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	sched.Stop()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		sugar.Warnw("error during shutdown", "err", err)
	}
}

// openStore builds the configured storage backend and its close function.
func openStore(cfg *config.AppConfig, logger *zap.SugaredLogger) (weatherStore, func(), error) {
	switch cfg.StoreBackend {
	case "redis":
		client := redisv9.NewClient(&redisv9.Options{Addr: cfg.RedisAddr})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		return store.NewRedisStore(client, "", cfg.StoreMaxHistory), closer(client, logger), nil
	case "sqlite":
		s, err := store.NewSQLiteStore(cfg.SQLitePath, cfg.StoreMaxHistory, logger)
		if err != nil {
			return nil, nil, err
		}
		return s, closer(s, logger), nil
	default:
		return store.NewMemoryStore(cfg.StoreMaxHistory, cfg.StoreMaxAge), func() {}, nil
	}
}

func closer(c io.Closer, logger *zap.SugaredLogger) func() {
	return func() {
		if err := c.Close(); err != nil {
			logger.Warnw("failed to close store", "err", err)
		}
	}
}

// newGeocoder picks the reverse geocoder; Google falls back to Nominatim without a key.
func newGeocoder(cfg *config.AppConfig, client *http.Client, logger *zap.SugaredLogger) location.Geocoder {
	if cfg.Geocoder == "google" {
		if cfg.GoogleGeocoderAPIKey != "" {
			return location.NewGoogleGeocoder(cfg.GoogleGeocoderAPIKey, cfg.HTTPTimeout)
		}
		logger.Warnw("GOOGLE_GEOCODER_API_KEY not set, using nominatim")
	}
	return location.NewNominatimGeocoder(client, userAgent)
}
