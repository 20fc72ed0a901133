package climate

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/climate-daily-etl/internal/domain"
	"github.com/couchcryptid/climate-daily-etl/internal/observability"
)

func testClient() *Client {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewClient(5*time.Second, observability.NewMetricsForTesting(), logger)
}

func TestClient_Fetch_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "27174", r.URL.Query().Get("StationID"))
		assert.Equal(t, "2", r.URL.Query().Get("timeframe"))
		assert.Equal(t, "2022", r.URL.Query().Get("Year"))
		assert.Equal(t, "1", r.URL.Query().Get("Month"))
		w.Header().Set("Content-Type", "text/html")
		_, _ = io.WriteString(w, twoDayPage)
	}))
	defer srv.Close()

	pages := NewPages(srv.URL, map[string]string{"Winnipeg": "27174"})
	u, err := pages.PageURL(domain.FetchTarget{Location: "Winnipeg", Year: 2022, Month: 1})
	require.NoError(t, err)

	body, err := testClient().Fetch(context.Background(), u)
	require.NoError(t, err)
	assert.Equal(t, twoDayPage, string(body))
}

func TestClient_Fetch_NonOK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := testClient().Fetch(context.Background(), srv.URL)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnexpectedStatus)
	assert.Contains(t, err.Error(), "503")
}

func TestClient_Fetch_ContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := testClient().Fetch(ctx, srv.URL)
	require.Error(t, err)
}

func TestClient_Fetch_BreakerOpensAfterFailures(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := testClient()
	for range 5 {
		_, err := c.Fetch(context.Background(), srv.URL)
		require.Error(t, err)
	}

	_, err := c.Fetch(context.Background(), srv.URL)
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, 5, calls)
}

func TestPages_PageURL(t *testing.T) {
	pages := testPages()

	u, err := pages.PageURL(domain.FetchTarget{Location: "Winnipeg", Year: 2021, Month: 7, Day: 2})
	require.NoError(t, err)

	parsed, err := url.Parse(u)
	require.NoError(t, err)
	assert.Equal(t, "climate.weather.gc.ca", parsed.Host)
	assert.Equal(t, "27174", parsed.Query().Get("StationID"))
	assert.Equal(t, "7", parsed.Query().Get("Month"))
	assert.Equal(t, "1", parsed.Query().Get("Day"))

	_, err = pages.PageURL(domain.FetchTarget{Location: "Nowhere", Year: 2021, Month: 7})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Nowhere")
}
