package store

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/i474232898/weather-notification/internal/weather"
)

var (
	// ErrNotFound is returned when no weather has been stored yet.
	ErrNotFound = errors.New("no weather data stored")
)

// Reader is the read side of a weather store, used for display.
type Reader interface {
	Latest(ctx context.Context) (weather.Weather, error)
	Range(ctx context.Context, from, to time.Time) ([]weather.Weather, error)
	UpdatedAt(ctx context.Context) (time.Time, error)
}

// MemoryStore is a concurrency-safe in-memory weather store.
type MemoryStore struct {
	mu sync.RWMutex

	history   []weather.Weather
	updatedAt time.Time

	// retention configuration
	maxHistory int           // max number of readings kept
	maxAge     time.Duration // optional max age for readings

	now func() time.Time
}

// NewMemoryStore creates a new MemoryStore with optional limits.
// If maxHistory is <= 0, it is treated as unlimited.
func NewMemoryStore(maxHistory int, maxAge time.Duration) *MemoryStore {
	return &MemoryStore{
		maxHistory: maxHistory,
		maxAge:     maxAge,
		now:        time.Now,
	}
}

// Save appends a reading, enforces retention and marks the update time.
func (s *MemoryStore) Save(ctx context.Context, w weather.Weather) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.history = append(s.history, w)
	s.updatedAt = s.now().UTC()

	// Enforce retention by count.
	if s.maxHistory > 0 && len(s.history) > s.maxHistory {
		over := len(s.history) - s.maxHistory
		s.history = append(s.history[:0:0], s.history[over:]...)
	}

	// Enforce retention by age, always keeping the latest reading.
	if s.maxAge > 0 {
		cutoff := s.now().Add(-s.maxAge)
		i := 0
		for ; i < len(s.history)-1; i++ {
			if !s.history[i].Timestamp.Before(cutoff) {
				break
			}
		}
		if i > 0 {
			s.history = s.history[i:]
		}
	}
	return nil
}

// UpdateTime marks the update time without storing a reading.
func (s *MemoryStore) UpdateTime(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updatedAt = s.now().UTC()
	return nil
}

// Latest returns the most recently saved reading.
func (s *MemoryStore) Latest(ctx context.Context) (weather.Weather, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.history) == 0 {
		return weather.Weather{}, ErrNotFound
	}
	return s.history[len(s.history)-1], nil
}

// Range returns all readings between from and to (inclusive).
func (s *MemoryStore) Range(ctx context.Context, from, to time.Time) ([]weather.Weather, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []weather.Weather
	for _, w := range s.history {
		if !w.Timestamp.Before(from) && !w.Timestamp.After(to) {
			result = append(result, w)
		}
	}

	if len(result) == 0 {
		return nil, ErrNotFound
	}
	return result, nil
}

// UpdatedAt returns the time of the last refresh attempt.
func (s *MemoryStore) UpdatedAt(ctx context.Context) (time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.updatedAt.IsZero() {
		return time.Time{}, ErrNotFound
	}
	return s.updatedAt, nil
}
