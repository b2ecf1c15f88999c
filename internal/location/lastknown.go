package location

import (
	"errors"
	"sync"
	"time"

	"github.com/i474232898/weather-notification/internal/weather"
)

var (
	ErrInvalidLatitude  = errors.New("latitude must be between -90 and 90")
	ErrInvalidLongitude = errors.New("longitude must be between -180 and 180")
)

// LastKnown keeps the most recent coordinates reported by the device.
// It is a snapshot store: reading never waits for a new fix.
type LastKnown struct {
	mu      sync.RWMutex
	coords  weather.Coordinates
	fixedAt time.Time
	has     bool

	// maxAge discards fixes older than this; zero keeps them forever.
	maxAge time.Duration
	now    func() time.Time
}

// NewLastKnown creates an empty tracker.
func NewLastKnown(maxAge time.Duration) *LastKnown {
	return &LastKnown{maxAge: maxAge, now: time.Now}
}

// Update records a new fix.
func (l *LastKnown) Update(coords weather.Coordinates) error {
	if coords.Latitude < -90 || coords.Latitude > 90 {
		return ErrInvalidLatitude
	}
	if coords.Longitude < -180 || coords.Longitude > 180 {
		return ErrInvalidLongitude
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.coords = coords
	l.fixedAt = l.now()
	l.has = true
	return nil
}

// LastKnownCoordinates returns the last fix if there is one and it has not expired.
func (l *LastKnown) LastKnownCoordinates() (weather.Coordinates, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if !l.has {
		return weather.Coordinates{}, false
	}
	if l.maxAge > 0 && l.now().Sub(l.fixedAt) > l.maxAge {
		return weather.Coordinates{}, false
	}
	return l.coords, true
}

// FixedAt returns when the last fix was recorded.
func (l *LastKnown) FixedAt() (time.Time, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.fixedAt, l.has
}
