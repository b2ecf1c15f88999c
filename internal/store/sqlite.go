package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/i474232898/weather-notification/internal/weather"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS weather (
	id      INTEGER PRIMARY KEY AUTOINCREMENT,
	ts      INTEGER NOT NULL,
	payload TEXT    NOT NULL
);
CREATE INDEX IF NOT EXISTS weather_ts ON weather(ts);
CREATE TABLE IF NOT EXISTS meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);`

const metaUpdatedAt = "updated_at"

// SQLiteStore persists readings in a local SQLite database.
type SQLiteStore struct {
	db         *sql.DB
	maxHistory int
	now        func() time.Time
}

// NewSQLiteStore opens (or creates) the database at path.
func NewSQLiteStore(path string, maxHistory int, logger *zap.SugaredLogger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		logger.Warnw("could not set WAL mode", "err", err)
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &SQLiteStore{db: db, maxHistory: maxHistory, now: time.Now}, nil
}

// Save inserts the reading, trims the history and marks the update time.
func (s *SQLiteStore) Save(ctx context.Context, w weather.Weather) (err error) {
	b, err := json.Marshal(w)
	if err != nil {
		return fmt.Errorf("encode weather: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `INSERT INTO weather(ts, payload) VALUES(?, ?)`,
		w.Timestamp.UnixNano(), string(b)); err != nil {
		return err
	}
	if s.maxHistory > 0 {
		if _, err = tx.ExecContext(ctx,
			`DELETE FROM weather WHERE id NOT IN (SELECT id FROM weather ORDER BY ts DESC, id DESC LIMIT ?)`,
			s.maxHistory); err != nil {
			return err
		}
	}
	if err = s.setUpdatedAt(ctx, tx); err != nil {
		return err
	}
	return tx.Commit()
}

// UpdateTime marks the update time.
func (s *SQLiteStore) UpdateTime(ctx context.Context) error {
	return s.setUpdatedAt(ctx, s.db)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *SQLiteStore) setUpdatedAt(ctx context.Context, ex execer) error {
	_, err := ex.ExecContext(ctx, `INSERT OR REPLACE INTO meta(key, value) VALUES(?, ?)`,
		metaUpdatedAt, strconv.FormatInt(s.now().UTC().UnixNano(), 10))
	return err
}

// Latest returns the most recently saved reading.
func (s *SQLiteStore) Latest(ctx context.Context) (weather.Weather, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM weather ORDER BY id DESC LIMIT 1`).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return weather.Weather{}, ErrNotFound
	}
	if err != nil {
		return weather.Weather{}, err
	}

	var w weather.Weather
	if err := json.Unmarshal([]byte(payload), &w); err != nil {
		return weather.Weather{}, fmt.Errorf("decode weather: %w", err)
	}
	return w, nil
}

// Range returns readings with timestamps between from and to (inclusive).
func (s *SQLiteStore) Range(ctx context.Context, from, to time.Time) ([]weather.Weather, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT payload FROM weather WHERE ts >= ? AND ts <= ? ORDER BY ts, id`,
		from.UnixNano(), to.UnixNano())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []weather.Weather
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var w weather.Weather
		if err := json.Unmarshal([]byte(payload), &w); err != nil {
			return nil, fmt.Errorf("decode weather: %w", err)
		}
		out = append(out, w)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, ErrNotFound
	}
	return out, nil
}

// UpdatedAt returns the time of the last refresh attempt.
func (s *SQLiteStore) UpdatedAt(ctx context.Context) (time.Time, error) {
	var v string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = ?`, metaUpdatedAt).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, ErrNotFound
	}
	if err != nil {
		return time.Time{}, err
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse updated_at: %w", err)
	}
	return time.Unix(0, n).UTC(), nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
