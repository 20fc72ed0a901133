package pipeline

import (
	"slices"

	"github.com/couchcryptid/climate-daily-etl/internal/domain"
)

// CollapsePages reduces fetch targets to the distinct month pages that cover
// them, in chronological order. One page serves every day of its month.
func CollapsePages(targets []domain.FetchTarget) []domain.FetchTarget {
	seen := make(map[domain.FetchTarget]struct{}, len(targets))
	pages := make([]domain.FetchTarget, 0, len(targets))
	for _, t := range targets {
		page := t.Page()
		if _, ok := seen[page]; ok {
			continue
		}
		seen[page] = struct{}{}
		pages = append(pages, page)
	}
	slices.SortStableFunc(pages, func(a, b domain.FetchTarget) int {
		switch {
		case a.Location != b.Location:
			if a.Location < b.Location {
				return -1
			}
			return 1
		case a.Before(b):
			return -1
		case b.Before(a):
			return 1
		}
		return 0
	})
	return pages
}
