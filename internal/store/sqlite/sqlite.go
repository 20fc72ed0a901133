// Package sqlite implements the observation store on an embedded SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/couchcryptid/climate-daily-etl/internal/domain"
	"github.com/couchcryptid/climate-daily-etl/internal/store"
)

const schema = `CREATE TABLE IF NOT EXISTS observations (
	location  TEXT NOT NULL,
	date      TEXT NOT NULL,
	max_temp  REAL,
	min_temp  REAL,
	mean_temp REAL,
	PRIMARY KEY (location, date)
)`

const upsertSQL = `INSERT INTO observations (location, date, max_temp, min_temp, mean_temp)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (location, date) DO UPDATE SET
	max_temp = excluded.max_temp,
	min_temp = excluded.min_temp,
	mean_temp = excluded.mean_temp`

// Store is a SQLite-backed store.ObservationStore. SQLite admits one writer at
// a time, so all writes go through a single mutex; WAL mode lets readers see
// the last committed snapshot while a write is in progress.
type Store struct {
	db      *sql.DB
	writeMu sync.Mutex
}

var _ store.ObservationStore = (*Store)(nil)

// Open opens (creating if needed) the database file at path and applies the schema.
func Open(ctx context.Context, path string) (*Store, error) {
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	db.SetMaxOpenConns(4)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Upsert inserts or replaces one observation.
func (s *Store) Upsert(ctx context.Context, obs domain.Observation) error {
	return s.UpsertBatch(ctx, []domain.Observation{obs})
}

// UpsertBatch upserts all observations in one transaction: either every row
// is committed or none is.
func (s *Store) UpsertBatch(ctx context.Context, obs []domain.Observation) (err error) {
	if len(obs) == 0 {
		return nil
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upsert: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, upsertSQL)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, o := range obs {
		if _, err = stmt.ExecContext(ctx, o.Location, o.Date.String(), o.MaxTemp, o.MinTemp, o.MeanTemp); err != nil {
			return fmt.Errorf("upsert observation %s: %w", o.Key(), err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit upsert: %w", err)
	}
	return nil
}

// LatestDate returns the most recent stored date for location; ok is false
// when the location has no rows.
func (s *Store) LatestDate(ctx context.Context, location string) (domain.Date, bool, error) {
	var latest sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT MAX(date) FROM observations WHERE location = ?`, location,
	).Scan(&latest)
	if err != nil {
		return domain.Date{}, false, fmt.Errorf("latest date: %w", err)
	}
	if !latest.Valid {
		return domain.Date{}, false, nil
	}
	d, err := domain.ParseDate(latest.String)
	if err != nil {
		return domain.Date{}, false, fmt.Errorf("latest date: %w", err)
	}
	return d, true, nil
}

// Range returns observations for location between start and end inclusive,
// ascending by date.
func (s *Store) Range(ctx context.Context, location string, start, end domain.Date) ([]domain.Observation, error) {
	if start.After(end) {
		return nil, store.ErrInvalidRange
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT location, date, max_temp, min_temp, mean_temp
		 FROM observations
		 WHERE location = ? AND date >= ? AND date <= ?
		 ORDER BY date`,
		location, start.String(), end.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("range query: %w", err)
	}
	defer rows.Close()

	result := []domain.Observation{}
	for rows.Next() {
		o, err := scanObservation(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, o)
	}
	return result, rows.Err()
}

// Month returns the observations of one calendar month, ascending by date.
func (s *Store) Month(ctx context.Context, location string, year int, month time.Month) ([]domain.Observation, error) {
	first, last := store.MonthBounds(year, month)
	return s.Range(ctx, location, first, last)
}

func scanObservation(rows *sql.Rows) (domain.Observation, error) {
	var (
		location, date   string
		maxT, minT, mean sql.NullFloat64
	)
	if err := rows.Scan(&location, &date, &maxT, &minT, &mean); err != nil {
		return domain.Observation{}, fmt.Errorf("scan observation: %w", err)
	}
	d, err := domain.ParseDate(date)
	if err != nil {
		return domain.Observation{}, fmt.Errorf("scan observation: %w", err)
	}
	return domain.Observation{
		Location: location,
		Date:     d,
		MaxTemp:  nullable(maxT),
		MinTemp:  nullable(minT),
		MeanTemp: nullable(mean),
	}, nil
}

func nullable(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
