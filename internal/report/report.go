// Package report prepares plot-ready series from stored observations. It does
// not render anything; callers hand the series to an external plotter.
package report

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/couchcryptid/climate-daily-etl/internal/domain"
)

// ErrInvalidPeriod is returned for an empty year range or an out-of-range month.
var ErrInvalidPeriod = errors.New("invalid report period")

// YearSeries holds the mean temperatures of one year with their five-number
// summary. Days without a mean are skipped, never counted as zero.
type YearSeries struct {
	Year   int       `json:"year"`
	Means  []float64 `json:"means"`
	Min    float64   `json:"min"`
	Q1     float64   `json:"q1"`
	Median float64   `json:"median"`
	Q3     float64   `json:"q3"`
	Max    float64   `json:"max"`
}

// BoxPlotSeries is the data behind a per-year box plot of mean temperatures.
type BoxPlotSeries struct {
	StartYear int          `json:"start_year"`
	EndYear   int          `json:"end_year"`
	Years     []YearSeries `json:"years"`
}

// Point is one day of a monthly line plot. Mean is nil when the day has no mean.
type Point struct {
	Day  int      `json:"day"`
	Mean *float64 `json:"mean"`
}

// LineSeries is the data behind a daily line plot for one month.
type LineSeries struct {
	Year   int     `json:"year"`
	Month  int     `json:"month"`
	Points []Point `json:"points"`
}

// BoxPlot groups mean temperatures by year for startYear..endYear inclusive.
// Years with no usable mean are omitted; the remaining years are ascending.
func BoxPlot(obs []domain.Observation, startYear, endYear int) (BoxPlotSeries, error) {
	if startYear > endYear {
		return BoxPlotSeries{}, fmt.Errorf("%w: start year %d after end year %d", ErrInvalidPeriod, startYear, endYear)
	}

	byYear := make(map[int][]float64)
	for _, o := range obs {
		if o.MeanTemp == nil || o.Date.Year < startYear || o.Date.Year > endYear {
			continue
		}
		byYear[o.Date.Year] = append(byYear[o.Date.Year], *o.MeanTemp)
	}

	series := BoxPlotSeries{StartYear: startYear, EndYear: endYear, Years: []YearSeries{}}
	for year := startYear; year <= endYear; year++ {
		means, ok := byYear[year]
		if !ok {
			continue
		}
		series.Years = append(series.Years, summarize(year, means))
	}
	return series, nil
}

// Line returns one point per day of the month that has an observation,
// ordered by day. Observations from other months are ignored.
func Line(obs []domain.Observation, year, month int) (LineSeries, error) {
	if month < 1 || month > 12 {
		return LineSeries{}, fmt.Errorf("%w: month %d", ErrInvalidPeriod, month)
	}

	series := LineSeries{Year: year, Month: month, Points: []Point{}}
	for _, o := range obs {
		if o.Date.Year != year || o.Date.Month != time.Month(month) {
			continue
		}
		series.Points = append(series.Points, Point{Day: o.Date.Day, Mean: o.MeanTemp})
	}
	slices.SortStableFunc(series.Points, func(a, b Point) int { return a.Day - b.Day })
	return series, nil
}

func summarize(year int, means []float64) YearSeries {
	sorted := slices.Clone(means)
	slices.Sort(sorted)
	return YearSeries{
		Year:   year,
		Means:  means,
		Min:    sorted[0],
		Q1:     quantile(sorted, 0.25),
		Median: quantile(sorted, 0.5),
		Q3:     quantile(sorted, 0.75),
		Max:    sorted[len(sorted)-1],
	}
}

// quantile interpolates linearly between closest ranks of a sorted sample.
func quantile(sorted []float64, q float64) float64 {
	pos := q * float64(len(sorted)-1)
	lo := int(pos)
	if lo+1 >= len(sorted) {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo] + frac*(sorted[lo+1]-sorted[lo])
}
