// Package postgres implements the observation store on PostgreSQL via pgx.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/couchcryptid/climate-daily-etl/internal/domain"
	"github.com/couchcryptid/climate-daily-etl/internal/store"
)

const schema = `CREATE TABLE IF NOT EXISTS observations (
	location  TEXT NOT NULL,
	date      DATE NOT NULL,
	max_temp  DOUBLE PRECISION,
	min_temp  DOUBLE PRECISION,
	mean_temp DOUBLE PRECISION,
	PRIMARY KEY (location, date)
)`

const upsertSQL = `INSERT INTO observations (location, date, max_temp, min_temp, mean_temp)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (location, date) DO UPDATE
SET max_temp = EXCLUDED.max_temp,
    min_temp = EXCLUDED.min_temp,
    mean_temp = EXCLUDED.mean_temp`

// Store is a PostgreSQL-backed store.ObservationStore. Writes are serialized
// per location; writes for different locations run concurrently.
type Store struct {
	pool  *pgxpool.Pool
	locks store.KeyedMutex
}

var _ store.ObservationStore = (*Store)(nil)

// New connects to dsn, verifies the connection and applies the schema.
func New(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect to db: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Close releases the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// Upsert inserts or replaces one observation.
func (s *Store) Upsert(ctx context.Context, obs domain.Observation) error {
	return s.UpsertBatch(ctx, []domain.Observation{obs})
}

// UpsertBatch upserts all observations in a single transaction.
func (s *Store) UpsertBatch(ctx context.Context, obs []domain.Observation) error {
	if len(obs) == 0 {
		return nil
	}

	unlock := s.locks.Lock(store.Locations(obs)...)
	defer unlock()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin upsert: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	batch := &pgx.Batch{}
	for _, o := range obs {
		batch.Queue(upsertSQL, o.Location, o.Date.Time(), o.MaxTemp, o.MinTemp, o.MeanTemp)
	}
	br := tx.SendBatch(ctx, batch)
	for _, o := range obs {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return fmt.Errorf("upsert observation %s: %w", o.Key(), err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("close batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit upsert: %w", err)
	}
	return nil
}

// LatestDate returns the most recent stored date for location.
func (s *Store) LatestDate(ctx context.Context, location string) (domain.Date, bool, error) {
	var latest *time.Time
	err := s.pool.QueryRow(ctx,
		`SELECT MAX(date) FROM observations WHERE location = $1`, location,
	).Scan(&latest)
	if err != nil {
		return domain.Date{}, false, fmt.Errorf("latest date: %w", err)
	}
	if latest == nil {
		return domain.Date{}, false, nil
	}
	return domain.DateOf(latest.UTC()), true, nil
}

// Range returns observations for location between start and end inclusive,
// ascending by date.
func (s *Store) Range(ctx context.Context, location string, start, end domain.Date) ([]domain.Observation, error) {
	if start.After(end) {
		return nil, store.ErrInvalidRange
	}

	rows, err := s.pool.Query(ctx,
		`SELECT location, date, max_temp, min_temp, mean_temp
		 FROM observations
		 WHERE location = $1 AND date BETWEEN $2 AND $3
		 ORDER BY date`,
		location, start.Time(), end.Time(),
	)
	if err != nil {
		return nil, fmt.Errorf("range query: %w", err)
	}
	defer rows.Close()

	result := []domain.Observation{}
	for rows.Next() {
		var (
			o    domain.Observation
			date time.Time
		)
		if err := rows.Scan(&o.Location, &date, &o.MaxTemp, &o.MinTemp, &o.MeanTemp); err != nil {
			return nil, fmt.Errorf("scan observation: %w", err)
		}
		o.Date = domain.DateOf(date.UTC())
		result = append(result, o)
	}
	return result, rows.Err()
}

// Month returns the observations of one calendar month, ascending by date.
func (s *Store) Month(ctx context.Context, location string, year int, month time.Month) ([]domain.Observation, error) {
	first, last := store.MonthBounds(year, month)
	return s.Range(ctx, location, first, last)
}
