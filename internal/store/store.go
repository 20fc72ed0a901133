// Package store holds what the observation stores share: the table layout,
// the per-location write lock, and date-range helpers.
package store

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/couchcryptid/climate-daily-etl/internal/domain"
)

// ErrInvalidRange is returned when a query's start date is after its end date.
var ErrInvalidRange = errors.New("start date after end date")

// ObservationStore is the durable (location, date)-keyed observation table.
type ObservationStore interface {
	Upsert(ctx context.Context, obs domain.Observation) error
	UpsertBatch(ctx context.Context, obs []domain.Observation) error
	LatestDate(ctx context.Context, location string) (domain.Date, bool, error)
	Range(ctx context.Context, location string, start, end domain.Date) ([]domain.Observation, error)
	Month(ctx context.Context, location string, year int, month time.Month) ([]domain.Observation, error)
	Close() error
}

// MonthBounds returns the first and last day of the month.
func MonthBounds(year int, month time.Month) (first, last domain.Date) {
	first = domain.NewDate(year, month, 1)
	last = domain.NewDate(year, month+1, 0)
	return first, last
}

// Locations returns the distinct locations in obs, sorted.
func Locations(obs []domain.Observation) []string {
	locs := make([]string, 0, 1)
	for _, o := range obs {
		if !slices.Contains(locs, o.Location) {
			locs = append(locs, o.Location)
		}
	}
	slices.Sort(locs)
	return locs
}

// KeyedMutex serializes work per key while letting different keys proceed in
// parallel. The zero value is ready to use.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (k *KeyedMutex) lockFor(key string) *sync.Mutex {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.locks == nil {
		k.locks = make(map[string]*sync.Mutex)
	}
	l, ok := k.locks[key]
	if !ok {
		l = &sync.Mutex{}
		k.locks[key] = l
	}
	return l
}

// Lock acquires the locks for keys in sorted order and returns the function
// releasing them. keys must already be sorted and distinct.
func (k *KeyedMutex) Lock(keys ...string) (unlock func()) {
	held := make([]*sync.Mutex, 0, len(keys))
	for _, key := range keys {
		l := k.lockFor(key)
		l.Lock()
		held = append(held, l)
	}
	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].Unlock()
		}
	}
}
