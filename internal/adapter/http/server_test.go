package http_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httpadapter "github.com/couchcryptid/climate-daily-etl/internal/adapter/http"
	"github.com/couchcryptid/climate-daily-etl/internal/domain"
	"github.com/couchcryptid/climate-daily-etl/internal/store/sqlite"
)

type mockReadiness struct {
	err error
}

func (m *mockReadiness) CheckReadiness(_ context.Context) error { return m.err }

type brokenReader struct{}

func (brokenReader) Range(context.Context, string, domain.Date, domain.Date) ([]domain.Observation, error) {
	return nil, errors.New("database is locked")
}

func (brokenReader) Month(context.Context, string, int, time.Month) ([]domain.Observation, error) {
	return nil, errors.New("database is locked")
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func f(v float64) *float64 { return &v }

func seededReader(t *testing.T) httpadapter.ObservationReader {
	t.Helper()
	s, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "climate.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.UpsertBatch(context.Background(), []domain.Observation{
		{Location: "Winnipeg", Date: domain.NewDate(2022, time.January, 1), MaxTemp: f(5), MinTemp: f(-2), MeanTemp: f(1.5)},
		{Location: "Winnipeg", Date: domain.NewDate(2022, time.January, 2), MinTemp: f(-3)},
		{Location: "Winnipeg", Date: domain.NewDate(2022, time.February, 1), MaxTemp: f(0), MinTemp: f(-4), MeanTemp: f(-2)},
		{Location: "Winnipeg", Date: domain.NewDate(2021, time.July, 1), MaxTemp: f(30), MinTemp: f(20), MeanTemp: f(25)},
		{Location: "Brandon", Date: domain.NewDate(2022, time.January, 1), MaxTemp: f(1), MinTemp: f(-1), MeanTemp: f(0)},
	}))
	return s
}

func newTestServer(t *testing.T, readyErr error) *httpadapter.Server {
	t.Helper()
	return httpadapter.NewServer(":0", &mockReadiness{err: readyErr}, seededReader(t), []string{"Winnipeg", "Brandon"}, discardLogger())
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealthzReturns200(t *testing.T) {
	rec := get(t, newTestServer(t, nil), "/healthz")

	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
}

func TestReadyzReturns200WhenReady(t *testing.T) {
	rec := get(t, newTestServer(t, nil), "/readyz")

	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ready", body["status"])
}

func TestReadyzReturns503WhenNotReady(t *testing.T) {
	rec := get(t, newTestServer(t, fmt.Errorf("no ingestion run has completed yet")), "/readyz")

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "not ready", body["status"])
	assert.Equal(t, "no ingestion run has completed yet", body["error"])
}

func TestMetricsEndpoint(t *testing.T) {
	rec := get(t, newTestServer(t, nil), "/metrics")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestLocations(t *testing.T) {
	rec := get(t, newTestServer(t, nil), "/api/v1/locations")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"locations":["Winnipeg","Brandon"]}`, rec.Body.String())
}

func TestObservationsRange(t *testing.T) {
	rec := get(t, newTestServer(t, nil), "/api/v1/locations/Winnipeg/observations?start=2022-01-01&end=2022-01-31")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{
		"location": "Winnipeg",
		"start": "2022-01-01",
		"end": "2022-01-31",
		"count": 2,
		"observations": [
			{"location":"Winnipeg","date":"2022-01-01","max_temp":5,"min_temp":-2,"mean_temp":1.5},
			{"location":"Winnipeg","date":"2022-01-02","max_temp":null,"min_temp":-3,"mean_temp":null}
		]
	}`, rec.Body.String())
}

func TestObservationsRange_EmptyIsArray(t *testing.T) {
	rec := get(t, newTestServer(t, nil), "/api/v1/locations/Brandon/observations?start=2030-01-01&end=2030-01-31")

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Observations []domain.Observation `json:"observations"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.NotNil(t, body.Observations)
	assert.Contains(t, rec.Body.String(), `"observations":[]`)
}

func TestObservationsMonth(t *testing.T) {
	rec := get(t, newTestServer(t, nil), "/api/v1/locations/Winnipeg/observations/2022/2")

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Start        string               `json:"start"`
		End          string               `json:"end"`
		Observations []domain.Observation `json:"observations"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "2022-02-01", body.Start)
	assert.Equal(t, "2022-02-28", body.End)
	require.Len(t, body.Observations, 1)
	assert.Equal(t, domain.NewDate(2022, time.February, 1), body.Observations[0].Date)
}

func TestBadRequests(t *testing.T) {
	srv := newTestServer(t, nil)
	tests := []struct {
		name string
		path string
		code int
	}{
		{"unknown location", "/api/v1/locations/Atlantis/observations?start=2022-01-01&end=2022-01-31", http.StatusNotFound},
		{"malformed start", "/api/v1/locations/Winnipeg/observations?start=2022-13-01&end=2022-01-31", http.StatusBadRequest},
		{"missing end", "/api/v1/locations/Winnipeg/observations?start=2022-01-01", http.StatusBadRequest},
		{"inverted range", "/api/v1/locations/Winnipeg/observations?start=2022-02-01&end=2022-01-01", http.StatusBadRequest},
		{"month out of range", "/api/v1/locations/Winnipeg/observations/2022/13", http.StatusBadRequest},
		{"non-numeric year", "/api/v1/locations/Winnipeg/observations/twenty/1", http.StatusBadRequest},
		{"boxplot missing location", "/api/v1/report/boxplot?start_year=2020&end_year=2022", http.StatusBadRequest},
		{"boxplot inverted years", "/api/v1/report/boxplot?location=Winnipeg&start_year=2022&end_year=2020", http.StatusBadRequest},
		{"line bad month", "/api/v1/report/line?location=Winnipeg&year=2022&month=jan", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := get(t, srv, tt.path)
			assert.Equal(t, tt.code, rec.Code, rec.Body.String())
			assert.Contains(t, rec.Body.String(), `"error"`)
		})
	}
}

func TestStoreErrorIs500(t *testing.T) {
	srv := httpadapter.NewServer(":0", &mockReadiness{}, brokenReader{}, []string{"Winnipeg"}, discardLogger())

	rec := get(t, srv, "/api/v1/locations/Winnipeg/observations/2022/1")

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "locked")
}

func TestReportBoxPlot(t *testing.T) {
	rec := get(t, newTestServer(t, nil), "/api/v1/report/boxplot?location=Winnipeg&start_year=2021&end_year=2022")

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Years []struct {
			Year  int       `json:"year"`
			Means []float64 `json:"means"`
		} `json:"years"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Years, 2)
	assert.Equal(t, 2021, body.Years[0].Year)
	assert.Equal(t, []float64{25}, body.Years[0].Means)
	assert.Equal(t, 2022, body.Years[1].Year)
	assert.Equal(t, []float64{1.5, -2}, body.Years[1].Means)
}

func TestReportLine(t *testing.T) {
	rec := get(t, newTestServer(t, nil), "/api/v1/report/line?location=Winnipeg&year=2022&month=1")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"year":2022,"month":1,"points":[{"day":1,"mean":1.5},{"day":2,"mean":null}]}`, rec.Body.String())
}
