package weather

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrNoProviders is returned by Query when no provider is configured.
var ErrNoProviders = errors.New("no weather providers configured")

// Service queries every configured provider concurrently and aggregates the
// successful readings into a single Weather.
type Service struct {
	providers []Provider
	logger    *zap.SugaredLogger
}

// NewService creates a new Service.
func NewService(providers []Provider, logger *zap.SugaredLogger) *Service {
	return &Service{
		providers: providers,
		logger:    logger,
	}
}

// Providers returns the names of the configured providers.
func (s *Service) Providers() []string {
	names := make([]string, 0, len(s.providers))
	for _, p := range s.providers {
		names = append(names, p.Name())
	}
	return names
}

// Query fetches data from all providers concurrently for the given location
// and aggregates successful readings. It fails only when every provider fails.
func (s *Service) Query(ctx context.Context, loc Location) (Weather, error) {
	if len(s.providers) == 0 {
		s.logger.Errorw("no providers available to fetch weather data", "location", loc.Key())
		return Weather{}, ErrNoProviders
	}
	s.logger.Debugw("querying weather", "location", loc.Key(), "providers", len(s.providers))

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		readings []ProviderReading
		errs     []error
	)

	for _, p := range s.providers {
		wg.Add(1)
		go func() {
			defer wg.Done()

			r, err := p.Fetch(ctx, loc)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				// Log and continue; partial success is still a result.
				s.logger.Warnw("provider fetch failed", "provider", p.Name(), "location", loc.Key(), "error", err)
				errs = append(errs, fmt.Errorf("%s: %w", p.Name(), err))
				return
			}
			readings = append(readings, r)
		}()
	}

	wg.Wait()

	if len(readings) == 0 {
		return Weather{}, fmt.Errorf("all providers failed for %s: %w", loc.Key(), errors.Join(errs...))
	}

	w := AggregateReadings(loc, readings)
	if w.Timestamp.IsZero() {
		w.Timestamp = time.Now().UTC()
	}
	return w, nil
}
