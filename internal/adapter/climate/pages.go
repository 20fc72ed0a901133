package climate

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/couchcryptid/climate-daily-etl/internal/domain"
)

// DefaultBaseURL is the Environment Canada daily-data page.
const DefaultBaseURL = "https://climate.weather.gc.ca/climate_data/daily_data_e.html"

// Pages maps fetch targets to page URLs using each location's station id.
// It implements pipeline.PageLocator.
type Pages struct {
	baseURL  string
	stations map[string]string
}

// NewPages creates a locator for the given base URL and location -> station id map.
func NewPages(baseURL string, stations map[string]string) *Pages {
	return &Pages{baseURL: baseURL, stations: stations}
}

// PageURL returns the month page covering target. The day, if any, is ignored:
// the source serves one page per month.
func (p *Pages) PageURL(target domain.FetchTarget) (string, error) {
	station, ok := p.stations[target.Location]
	if !ok {
		return "", fmt.Errorf("no station configured for location %q", target.Location)
	}

	q := url.Values{
		"StationID": {station},
		"timeframe": {"2"},
		"Year":      {strconv.Itoa(target.Year)},
		"Month":     {strconv.Itoa(target.Month)},
		"Day":       {"1"},
	}
	return p.baseURL + "?" + q.Encode(), nil
}

// pageMonth extracts the Year and Month query parameters of a page URL.
func pageMonth(raw string) (year, month int, ok bool) {
	u, err := url.Parse(raw)
	if err != nil {
		return 0, 0, false
	}
	q := u.Query()
	year, errY := strconv.Atoi(q.Get("Year"))
	month, errM := strconv.Atoi(q.Get("Month"))
	if errY != nil || errM != nil || month < 1 || month > 12 {
		return 0, 0, false
	}
	return year, month, true
}
