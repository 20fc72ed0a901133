package main

import (
	"fmt"
	"io"
	"math"

	"github.com/spf13/cobra"

	"github.com/couchcryptid/climate-daily-etl/internal/domain"
)

// errValidationFailed is returned when any integrity check reports a problem.
var errValidationFailed = fmt.Errorf("validation failed")

// check collects the problems found by one integrity check.
type check struct {
	name   string
	errors []string
}

func (c *check) errorf(format string, args ...any) {
	c.errors = append(c.errors, fmt.Sprintf(format, args...))
}

func (c *check) passed() bool { return len(c.errors) == 0 }

func newValidateCmd(opts *rootOptions) *cobra.Command {
	var startFlag, endFlag string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check stored observations for gaps and inconsistent values",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := opts.app
			end := domain.Today()
			if endFlag != "" {
				d, err := domain.ParseDate(endFlag)
				if err != nil {
					return fmt.Errorf("invalid --end: %w", err)
				}
				end = d
			}
			start := domain.NewDate(a.cfg.StartYear, 1, 1)
			if startFlag != "" {
				d, err := domain.ParseDate(startFlag)
				if err != nil {
					return fmt.Errorf("invalid --start: %w", err)
				}
				start = d
			}

			locs, err := a.locations(opts.locations)
			if err != nil {
				return err
			}
			failed := false
			for _, loc := range locs {
				obs, err := a.store.Range(cmd.Context(), loc, start, end)
				if err != nil {
					return fmt.Errorf("query %s: %w", loc, err)
				}
				if !printChecks(cmd.OutOrStdout(), loc, validateObservations(obs, start, end)) {
					failed = true
				}
			}
			if failed {
				return errValidationFailed
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&startFlag, "start", "", "first day to check, YYYY-MM-DD (default January 1 of START_YEAR)")
	cmd.Flags().StringVar(&endFlag, "end", "", "last day to check, YYYY-MM-DD (default today)")
	return cmd
}

// validateObservations runs every integrity check over obs, which must be
// one location's observations between start and end in ascending date order.
func validateObservations(obs []domain.Observation, start, end domain.Date) []*check {
	return []*check{
		checkCoverage(obs, start, end),
		checkTemperatureOrder(obs),
		checkMean(obs),
	}
}

// checkCoverage reports runs of days with no stored observation.
func checkCoverage(obs []domain.Observation, start, end domain.Date) *check {
	c := &check{name: "every day stored"}
	next := start
	for _, o := range obs {
		if o.Date.After(next) {
			reportGap(c, next, o.Date.AddDays(-1))
		}
		next = o.Date.AddDays(1)
	}
	if !next.After(end) {
		reportGap(c, next, end)
	}
	return c
}

func reportGap(c *check, from, to domain.Date) {
	if from == to {
		c.errorf("missing %s", from)
		return
	}
	c.errorf("missing %s through %s", from, to)
}

func checkTemperatureOrder(obs []domain.Observation) *check {
	c := &check{name: "min temperature <= max temperature"}
	for _, o := range obs {
		if o.MaxTemp != nil && o.MinTemp != nil && *o.MinTemp > *o.MaxTemp {
			c.errorf("%s: min %.1f above max %.1f", o.Date, *o.MinTemp, *o.MaxTemp)
		}
	}
	return c
}

func checkMean(obs []domain.Observation) *check {
	c := &check{name: "mean derived from max and min"}
	for _, o := range obs {
		switch {
		case o.MaxTemp != nil && o.MinTemp != nil:
			want := (*o.MaxTemp + *o.MinTemp) / 2
			if o.MeanTemp == nil || math.Abs(*o.MeanTemp-want) > 1e-9 {
				c.errorf("%s: mean should be %.2f", o.Date, want)
			}
		case o.MeanTemp != nil:
			c.errorf("%s: mean present without both max and min", o.Date)
		}
	}
	return c
}

// printChecks writes a PASS/FAIL line per check and its problems; it reports
// whether every check passed.
func printChecks(w io.Writer, location string, checks []*check) bool {
	fmt.Fprintf(w, "=== %s ===\n", location)
	ok := true
	for _, c := range checks {
		if c.passed() {
			fmt.Fprintf(w, "  %-40s PASS\n", c.name)
			continue
		}
		ok = false
		fmt.Fprintf(w, "  %-40s FAIL (%d)\n", c.name, len(c.errors))
		for _, e := range c.errors {
			fmt.Fprintf(w, "    - %s\n", e)
		}
	}
	return ok
}
