package location

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/kelvins/geocoder"

	"github.com/i474232898/weather-notification/internal/weather"
)

// ErrGeocodeTimeout is returned when the Google lookup does not answer in time.
var ErrGeocodeTimeout = errors.New("reverse geocoding timed out")

// The geocoder package keeps its API key in a package variable.
var googleMu sync.Mutex

// GoogleGeocoder reverse geocodes through the Google Geocoding API.
type GoogleGeocoder struct {
	apiKey  string
	timeout time.Duration
	reverse func(geocoder.Location) ([]geocoder.Address, error)
}

// NewGoogleGeocoder creates a geocoder using the given API key. Each lookup is
// abandoned after timeout (<= 0 means 10s).
func NewGoogleGeocoder(apiKey string, timeout time.Duration) *GoogleGeocoder {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &GoogleGeocoder{
		apiKey:  apiKey,
		timeout: timeout,
		reverse: geocoder.GeocodingReverse,
	}
}

type googleResult struct {
	addresses []geocoder.Address
	err       error
}

// ReverseGeocode returns the city of the best match, or its formatted address.
// The underlying client has no timeout and takes no context, so the lookup runs
// on its own goroutine and is abandoned on ctx cancellation or after g.timeout.
func (g *GoogleGeocoder) ReverseGeocode(ctx context.Context, coords weather.Coordinates) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	done := make(chan googleResult, 1)
	go func() {
		googleMu.Lock()
		defer googleMu.Unlock()
		geocoder.ApiKey = g.apiKey
		addresses, err := g.reverse(geocoder.Location{
			Latitude:  coords.Latitude,
			Longitude: coords.Longitude,
		})
		done <- googleResult{addresses: addresses, err: err}
	}()

	timer := time.NewTimer(g.timeout)
	defer timer.Stop()

	var res googleResult
	select {
	case res = <-done:
	case <-ctx.Done():
		return "", ctx.Err()
	case <-timer.C:
		return "", ErrGeocodeTimeout
	}
	if res.err != nil {
		return "", res.err
	}

	// Usually the first address returned is the most detailed one.
	for _, a := range res.addresses {
		if a.City != "" {
			return a.City, nil
		}
		if a.FormattedAddress != "" {
			return a.FormattedAddress, nil
		}
	}
	return "", ErrNoPlace
}
