package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	redisv9 "github.com/redis/go-redis/v9"

	"github.com/i474232898/weather-notification/internal/weather"
)

const (
	keyLatest    = "weather:latest"
	keyHistory   = "weather:history"
	keyUpdatedAt = "weather:updated_at"

	// History members are "<id>|<json>" so identical readings stay distinct.
	memberSep = "|"
)

// RedisStore keeps the latest reading, a bounded history sorted by reading
// time and the last update time in Redis.
type RedisStore struct {
	client     redisv9.UniversalClient
	prefix     string
	maxHistory int64
	now        func() time.Time
}

// NewRedisStore creates a store; keys are prefixed with prefix when non-empty.
func NewRedisStore(client redisv9.UniversalClient, prefix string, maxHistory int) *RedisStore {
	return &RedisStore{
		client:     client,
		prefix:     prefix,
		maxHistory: int64(maxHistory),
		now:        time.Now,
	}
}

func (s *RedisStore) key(k string) string {
	if s.prefix == "" {
		return k
	}
	return s.prefix + ":" + k
}

// Save stores the reading as latest, appends it to the history and marks the update time.
func (s *RedisStore) Save(ctx context.Context, w weather.Weather) error {
	b, err := json.Marshal(w)
	if err != nil {
		return fmt.Errorf("encode weather: %w", err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redisv9.Pipeliner) error {
		pipe.Set(ctx, s.key(keyLatest), b, 0)
		member := uuid.NewString() + memberSep + string(b)
		pipe.ZAdd(ctx, s.key(keyHistory), redisv9.Z{Score: float64(w.Timestamp.UnixNano()), Member: member})
		if s.maxHistory > 0 {
			pipe.ZRemRangeByRank(ctx, s.key(keyHistory), 0, -s.maxHistory-1)
		}
		pipe.Set(ctx, s.key(keyUpdatedAt), s.now().UTC().UnixNano(), 0)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis save: %w", err)
	}
	return nil
}

// UpdateTime marks the update time.
func (s *RedisStore) UpdateTime(ctx context.Context) error {
	if err := s.client.Set(ctx, s.key(keyUpdatedAt), s.now().UTC().UnixNano(), 0).Err(); err != nil {
		return fmt.Errorf("redis update time: %w", err)
	}
	return nil
}

// Latest returns the most recently saved reading.
func (s *RedisStore) Latest(ctx context.Context) (weather.Weather, error) {
	val, err := s.client.Get(ctx, s.key(keyLatest)).Bytes()
	if errors.Is(err, redisv9.Nil) {
		return weather.Weather{}, ErrNotFound
	}
	if err != nil {
		return weather.Weather{}, err
	}

	var w weather.Weather
	if err := json.Unmarshal(val, &w); err != nil {
		return weather.Weather{}, fmt.Errorf("decode weather: %w", err)
	}
	return w, nil
}

// Range returns readings with timestamps between from and to (inclusive).
func (s *RedisStore) Range(ctx context.Context, from, to time.Time) ([]weather.Weather, error) {
	vals, err := s.client.ZRangeByScore(ctx, s.key(keyHistory), &redisv9.ZRangeBy{
		Min: strconv.FormatInt(from.UnixNano(), 10),
		Max: strconv.FormatInt(to.UnixNano(), 10),
	}).Result()
	if err != nil {
		return nil, err
	}
	if len(vals) == 0 {
		return nil, ErrNotFound
	}

	out := make([]weather.Weather, 0, len(vals))
	for _, v := range vals {
		_, payload, ok := strings.Cut(v, memberSep)
		if !ok {
			payload = v
		}
		var w weather.Weather
		if err := json.Unmarshal([]byte(payload), &w); err != nil {
			return nil, fmt.Errorf("decode weather: %w", err)
		}
		out = append(out, w)
	}
	return out, nil
}

// UpdatedAt returns the time of the last refresh attempt.
func (s *RedisStore) UpdatedAt(ctx context.Context) (time.Time, error) {
	n, err := s.client.Get(ctx, s.key(keyUpdatedAt)).Int64()
	if errors.Is(err, redisv9.Nil) {
		return time.Time{}, ErrNotFound
	}
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(0, n).UTC(), nil
}
