package location

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/i474232898/weather-notification/internal/weather"
)

// Provider reports the device's last known coordinates, if any.
// It must not block waiting for a fresh fix.
type Provider interface {
	LastKnownCoordinates() (weather.Coordinates, bool)
}

// Geocoder translates coordinates into a human-readable place name.
type Geocoder interface {
	ReverseGeocode(ctx context.Context, coords weather.Coordinates) (string, error)
}

// Resolver picks the location to query: either the manual location from the
// preferences or the last known device coordinates, reverse geocoded when possible.
type Resolver struct {
	provider Provider
	geocoder Geocoder
	logger   *zap.SugaredLogger
}

// NewResolver creates a Resolver. geocoder may be nil, in which case
// resolved locations carry no place name.
func NewResolver(provider Provider, geocoder Geocoder, logger *zap.SugaredLogger) *Resolver {
	return &Resolver{
		provider: provider,
		geocoder: geocoder,
		logger:   logger,
	}
}

// Resolve returns the location to query and false when the location is unknown.
// Geocoding failures degrade to a coordinates-only location; only the absence
// of coordinates makes an automatic location unknown.
func (r *Resolver) Resolve(ctx context.Context, useAuto bool, manualText string) (weather.Location, bool) {
	if !useAuto {
		text := strings.TrimSpace(manualText)
		if text == "" {
			return weather.Location{}, false
		}
		return weather.NewManualLocation(text), true
	}

	if r.provider == nil {
		return weather.Location{}, false
	}
	coords, ok := r.provider.LastKnownCoordinates()
	if !ok {
		r.logger.Debugw("no last known location")
		return weather.Location{}, false
	}

	if r.geocoder == nil {
		return weather.NewResolvedLocation(coords, ""), true
	}

	name, err := r.geocoder.ReverseGeocode(ctx, coords)
	if err != nil {
		r.logger.Warnw("cannot decode location", "coordinates", coords.String(), "error", err)
		return weather.NewResolvedLocation(coords, ""), true
	}
	return weather.NewResolvedLocation(coords, strings.TrimSpace(name)), true
}
