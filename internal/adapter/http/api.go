package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/couchcryptid/climate-daily-etl/internal/domain"
	"github.com/couchcryptid/climate-daily-etl/internal/report"
	"github.com/couchcryptid/climate-daily-etl/internal/store"
)

// ObservationReader is the read side of the observation store.
type ObservationReader interface {
	Range(ctx context.Context, location string, start, end domain.Date) ([]domain.Observation, error)
	Month(ctx context.Context, location string, year int, month time.Month) ([]domain.Observation, error)
}

type observationsResponse struct {
	Location     string               `json:"location"`
	Start        domain.Date          `json:"start"`
	End          domain.Date          `json:"end"`
	Count        int                  `json:"count"`
	Observations []domain.Observation `json:"observations"`
}

type api struct {
	reader    ObservationReader
	locations []string
	logger    *slog.Logger
}

func newAPI(reader ObservationReader, locations []string, logger *slog.Logger) *api {
	return &api{reader: reader, locations: locations, logger: logger}
}

func (a *api) register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/locations", a.handleLocations)
	mux.HandleFunc("GET /api/v1/locations/{location}/observations", a.handleRange)
	mux.HandleFunc("GET /api/v1/locations/{location}/observations/{year}/{month}", a.handleMonth)
	mux.HandleFunc("GET /api/v1/report/boxplot", a.handleBoxPlot)
	mux.HandleFunc("GET /api/v1/report/line", a.handleLine)
}

func (a *api) handleLocations(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"locations": a.locations})
}

func (a *api) handleRange(w http.ResponseWriter, r *http.Request) {
	loc, ok := a.location(w, r.PathValue("location"))
	if !ok {
		return
	}
	start, err := domain.ParseDate(r.URL.Query().Get("start"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid start: "+err.Error())
		return
	}
	end, err := domain.ParseDate(r.URL.Query().Get("end"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid end: "+err.Error())
		return
	}

	obs, err := a.reader.Range(r.Context(), loc, start, end)
	if err != nil {
		a.storeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, observationsResponse{
		Location: loc, Start: start, End: end, Count: len(obs), Observations: obs,
	})
}

func (a *api) handleMonth(w http.ResponseWriter, r *http.Request) {
	loc, ok := a.location(w, r.PathValue("location"))
	if !ok {
		return
	}
	year, ok := intParam(w, "year", r.PathValue("year"))
	if !ok {
		return
	}
	month, ok := intParam(w, "month", r.PathValue("month"))
	if !ok {
		return
	}
	if month < 1 || month > 12 {
		writeError(w, http.StatusBadRequest, "invalid month: must be 1-12")
		return
	}

	obs, err := a.reader.Month(r.Context(), loc, year, time.Month(month))
	if err != nil {
		a.storeError(w, r, err)
		return
	}
	first, last := store.MonthBounds(year, time.Month(month))
	writeJSON(w, http.StatusOK, observationsResponse{
		Location: loc, Start: first, End: last, Count: len(obs), Observations: obs,
	})
}

func (a *api) handleBoxPlot(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	loc, ok := a.location(w, q.Get("location"))
	if !ok {
		return
	}
	startYear, ok := intParam(w, "start_year", q.Get("start_year"))
	if !ok {
		return
	}
	endYear, ok := intParam(w, "end_year", q.Get("end_year"))
	if !ok {
		return
	}
	if startYear > endYear {
		writeError(w, http.StatusBadRequest, "start_year must not be after end_year")
		return
	}

	obs, err := a.reader.Range(r.Context(), loc,
		domain.NewDate(startYear, time.January, 1), domain.NewDate(endYear, time.December, 31))
	if err != nil {
		a.storeError(w, r, err)
		return
	}
	series, err := report.BoxPlot(obs, startYear, endYear)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, series)
}

func (a *api) handleLine(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	loc, ok := a.location(w, q.Get("location"))
	if !ok {
		return
	}
	year, ok := intParam(w, "year", q.Get("year"))
	if !ok {
		return
	}
	month, ok := intParam(w, "month", q.Get("month"))
	if !ok {
		return
	}
	if month < 1 || month > 12 {
		writeError(w, http.StatusBadRequest, "invalid month: must be 1-12")
		return
	}

	obs, err := a.reader.Month(r.Context(), loc, year, time.Month(month))
	if err != nil {
		a.storeError(w, r, err)
		return
	}
	series, err := report.Line(obs, year, month)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, series)
}

func (a *api) location(w http.ResponseWriter, name string) (string, bool) {
	if name == "" {
		writeError(w, http.StatusBadRequest, "location is required")
		return "", false
	}
	if !slices.Contains(a.locations, name) {
		writeError(w, http.StatusNotFound, "unknown location "+strconv.Quote(name))
		return "", false
	}
	return name, true
}

func (a *api) storeError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, store.ErrInvalidRange) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	a.logger.Error("query observations failed", "path", r.URL.Path, "error", err)
	writeError(w, http.StatusInternalServerError, "query failed")
}

func intParam(w http.ResponseWriter, name, raw string) (int, bool) {
	n, err := strconv.Atoi(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid "+name+": "+strconv.Quote(raw))
		return 0, false
	}
	return n, true
}
