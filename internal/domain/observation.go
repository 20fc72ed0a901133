package domain

import "fmt"

// Field labels recognized in the daily-data table markup.
const (
	FieldMax = "Max"
	FieldMin = "Min"
)

// Observation is one calendar day of temperature data at one location.
// Nil temperature fields mean "no data" and are never coerced to zero.
type Observation struct {
	Location string   `json:"location"`
	Date     Date     `json:"date"`
	MaxTemp  *float64 `json:"max_temp"`
	MinTemp  *float64 `json:"min_temp"`
	MeanTemp *float64 `json:"mean_temp"`
}

// Key returns the unique storage key of the observation.
func (o Observation) Key() string {
	return o.Location + "|" + o.Date.String()
}

// RawRow is one data row recovered from a page before normalization: the
// date token from the row marker and the raw value token of each label seen.
type RawRow struct {
	Date   string
	Fields map[string]string
}

// FetchTarget identifies one remote page (Day == 0) or one day within a page.
type FetchTarget struct {
	Location string
	Year     int
	Month    int
	Day      int
}

// Page returns the month-page target covering t.
func (t FetchTarget) Page() FetchTarget {
	t.Day = 0
	return t
}

// Before orders targets chronologically within a location; a month page sorts
// before the days it covers.
func (t FetchTarget) Before(other FetchTarget) bool {
	if t.Year != other.Year {
		return t.Year < other.Year
	}
	if t.Month != other.Month {
		return t.Month < other.Month
	}
	return t.Day < other.Day
}

func (t FetchTarget) String() string {
	if t.Day == 0 {
		return fmt.Sprintf("%s %04d-%02d", t.Location, t.Year, t.Month)
	}
	return fmt.Sprintf("%s %04d-%02d-%02d", t.Location, t.Year, t.Month, t.Day)
}
