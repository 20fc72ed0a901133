package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"
)

// RunFunc runs one ingestion for one location.
type RunFunc func(ctx context.Context, location string) (Summary, error)

// EachLocation runs fn for every location concurrently, at most limit at a
// time (limit <= 0 means unbounded). Locations are independent: one failing
// does not cancel the others. Summaries are returned in the order of
// locations, and errors are joined with the failing location named.
func EachLocation(ctx context.Context, locations []string, limit int, fn RunFunc) ([]Summary, error) {
	summaries := make([]Summary, len(locations))
	var (
		mu   sync.Mutex
		errs []error
	)

	var g errgroup.Group
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, loc := range locations {
		g.Go(func() error {
			s, err := fn(ctx, loc)
			summaries[i] = s
			if err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", loc, err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return summaries, errors.Join(errs...)
}
