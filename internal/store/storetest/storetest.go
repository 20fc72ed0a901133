// Package storetest is a behavioral test suite shared by every
// store.ObservationStore implementation.
package storetest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/climate-daily-etl/internal/domain"
	"github.com/couchcryptid/climate-daily-etl/internal/store"
)

// Opener returns a ready store; the suite closes it.
type Opener func(t *testing.T) store.ObservationStore

// Run executes the suite against stores produced by open. Locations are made
// unique per subtest so implementations backed by a shared database are safe.
func Run(t *testing.T, open Opener) {
	t.Run("upsert is idempotent", func(t *testing.T) { testIdempotentUpsert(t, open) })
	t.Run("upsert replaces row", func(t *testing.T) { testUpsertReplaces(t, open) })
	t.Run("latest date", func(t *testing.T) { testLatestDate(t, open) })
	t.Run("range ordering and isolation", func(t *testing.T) { testRange(t, open) })
	t.Run("month", func(t *testing.T) { testMonth(t, open) })
	t.Run("absent fields stay absent", func(t *testing.T) { testAbsentFields(t, open) })
	t.Run("invalid range", func(t *testing.T) { testInvalidRange(t, open) })
	t.Run("cancelled batch persists nothing", func(t *testing.T) { testCancelledBatch(t, open) })
	t.Run("concurrent locations", func(t *testing.T) { testConcurrentLocations(t, open) })
}

// Float returns a pointer to v.
func Float(v float64) *float64 { return &v }

func uniqueLocation(t *testing.T, suffix string) string {
	t.Helper()
	return fmt.Sprintf("%s-%s-%d", t.Name(), suffix, time.Now().UnixNano())
}

func openStore(t *testing.T, open Opener) store.ObservationStore {
	t.Helper()
	s := open(t)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func obs(location string, date domain.Date, maxT, minT *float64) domain.Observation {
	o := domain.Observation{Location: location, Date: date, MaxTemp: maxT, MinTemp: minT}
	if maxT != nil && minT != nil {
		o.MeanTemp = Float((*maxT + *minT) / 2)
	}
	return o
}

func testIdempotentUpsert(t *testing.T, open Opener) {
	s := openStore(t, open)
	ctx := context.Background()
	loc := uniqueLocation(t, "a")
	o := obs(loc, domain.NewDate(2022, 1, 1), Float(5), Float(-2))

	require.NoError(t, s.Upsert(ctx, o))
	once, err := s.Range(ctx, loc, domain.NewDate(2022, 1, 1), domain.NewDate(2022, 1, 31))
	require.NoError(t, err)

	require.NoError(t, s.Upsert(ctx, o))
	twice, err := s.Range(ctx, loc, domain.NewDate(2022, 1, 1), domain.NewDate(2022, 1, 31))
	require.NoError(t, err)

	require.Len(t, twice, 1)
	if diff := cmp.Diff(once, twice); diff != "" {
		t.Fatalf("state changed on repeated upsert (-once +twice):\n%s", diff)
	}
}

func testUpsertReplaces(t *testing.T, open Opener) {
	s := openStore(t, open)
	ctx := context.Background()
	loc := uniqueLocation(t, "a")
	day := domain.NewDate(2022, 1, 2)

	require.NoError(t, s.Upsert(ctx, obs(loc, day, Float(1), Float(-1))))
	require.NoError(t, s.Upsert(ctx, obs(loc, day, nil, Float(-3))))

	got, err := s.Range(ctx, loc, day, day)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Nil(t, got[0].MaxTemp)
	assert.Nil(t, got[0].MeanTemp)
	require.NotNil(t, got[0].MinTemp)
	assert.InDelta(t, -3.0, *got[0].MinTemp, 1e-9)
}

func testLatestDate(t *testing.T, open Opener) {
	s := openStore(t, open)
	ctx := context.Background()
	loc := uniqueLocation(t, "a")

	_, ok, err := s.LatestDate(ctx, loc)
	require.NoError(t, err)
	assert.False(t, ok)

	for _, d := range []domain.Date{domain.NewDate(2021, 1, 1), domain.NewDate(2021, 3, 5), domain.NewDate(2021, 2, 14)} {
		require.NoError(t, s.Upsert(ctx, obs(loc, d, Float(1), nil)))
	}
	require.NoError(t, s.Upsert(ctx, obs(uniqueLocation(t, "other"), domain.NewDate(2023, 1, 1), Float(1), nil)))

	latest, ok, err := s.LatestDate(ctx, loc)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, domain.NewDate(2021, 3, 5), latest)
}

func testRange(t *testing.T, open Opener) {
	s := openStore(t, open)
	ctx := context.Background()
	loc := uniqueLocation(t, "a")
	other := uniqueLocation(t, "b")

	batch := []domain.Observation{
		obs(loc, domain.NewDate(2022, 1, 20), Float(3), Float(1)),
		obs(loc, domain.NewDate(2022, 1, 2), Float(2), Float(-3)),
		obs(loc, domain.NewDate(2022, 2, 1), Float(4), Float(0)),
		obs(loc, domain.NewDate(2022, 1, 1), Float(5), Float(-2)),
		obs(other, domain.NewDate(2022, 1, 5), Float(9), Float(9)),
	}
	require.NoError(t, s.UpsertBatch(ctx, batch))

	got, err := s.Range(ctx, loc, domain.NewDate(2022, 1, 1), domain.NewDate(2022, 1, 31))
	require.NoError(t, err)

	dates := make([]string, 0, len(got))
	for _, o := range got {
		assert.Equal(t, loc, o.Location)
		dates = append(dates, o.Date.String())
	}
	assert.Equal(t, []string{"2022-01-01", "2022-01-02", "2022-01-20"}, dates)

	empty, err := s.Range(ctx, loc, domain.NewDate(2019, 1, 1), domain.NewDate(2019, 12, 31))
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}

func testMonth(t *testing.T, open Opener) {
	s := openStore(t, open)
	ctx := context.Background()
	loc := uniqueLocation(t, "a")

	require.NoError(t, s.UpsertBatch(ctx, []domain.Observation{
		obs(loc, domain.NewDate(2024, 2, 29), Float(1), Float(0)),
		obs(loc, domain.NewDate(2024, 3, 1), Float(2), Float(0)),
		obs(loc, domain.NewDate(2024, 2, 1), Float(3), Float(0)),
		obs(loc, domain.NewDate(2024, 1, 31), Float(4), Float(0)),
	}))

	got, err := s.Month(ctx, loc, 2024, time.February)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, domain.NewDate(2024, 2, 1), got[0].Date)
	assert.Equal(t, domain.NewDate(2024, 2, 29), got[1].Date)
}

func testAbsentFields(t *testing.T, open Opener) {
	s := openStore(t, open)
	ctx := context.Background()
	loc := uniqueLocation(t, "a")
	day := domain.NewDate(2022, 1, 2)

	require.NoError(t, s.Upsert(ctx, domain.Observation{Location: loc, Date: day, MinTemp: Float(0)}))

	got, err := s.Range(ctx, loc, day, day)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Nil(t, got[0].MaxTemp)
	assert.Nil(t, got[0].MeanTemp)
	require.NotNil(t, got[0].MinTemp)
	assert.Zero(t, *got[0].MinTemp)
}

func testInvalidRange(t *testing.T, open Opener) {
	s := openStore(t, open)
	_, err := s.Range(context.Background(), "x", domain.NewDate(2022, 2, 1), domain.NewDate(2022, 1, 1))
	assert.ErrorIs(t, err, store.ErrInvalidRange)
}

func testCancelledBatch(t *testing.T, open Opener) {
	s := openStore(t, open)
	loc := uniqueLocation(t, "a")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := s.UpsertBatch(ctx, []domain.Observation{
		obs(loc, domain.NewDate(2022, 1, 1), Float(1), Float(0)),
		obs(loc, domain.NewDate(2022, 1, 2), Float(1), Float(0)),
	})
	require.Error(t, err)

	_, ok, err := s.LatestDate(context.Background(), loc)
	require.NoError(t, err)
	assert.False(t, ok, "no row may be visible after a failed batch")
}

func testConcurrentLocations(t *testing.T, open Opener) {
	s := openStore(t, open)
	ctx := context.Background()

	locs := []string{uniqueLocation(t, "a"), uniqueLocation(t, "b"), uniqueLocation(t, "c")}
	var wg sync.WaitGroup
	errs := make(chan error, len(locs)*31)
	for _, loc := range locs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for day := 1; day <= 31; day++ {
				errs <- s.Upsert(ctx, obs(loc, domain.NewDate(2022, 1, day), Float(float64(day)), nil))
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	for _, loc := range locs {
		got, err := s.Month(ctx, loc, 2022, time.January)
		require.NoError(t, err)
		assert.Len(t, got, 31)
	}
}
