package meteo

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josch/gallerize/internal/retry"
)

const hourlyBody = `{
	"hourly": {
		"time": ["2023-06-01T00:00", "2023-06-01T01:00", "2023-06-01T02:00"],
		"temperature_2m": [14.2, 13.8, 13.5]
	}
}`

func fastRetry() retry.Policy {
	return retry.Policy{Mode: retry.BackoffFixed, Initial: time.Millisecond, Max: time.Millisecond, MaxAttempts: 3}
}

func TestForecastDecodesHourlySeries(t *testing.T) {
	var gotQuery atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery.Store(r.URL.Query())
		_, _ = w.Write([]byte(hourlyBody))
	}))
	defer srv.Close()

	client := NewClient(Options{ForecastURL: srv.URL, Retry: fastRetry()})
	loc := Location{Name: "Testville", Latitude: 46.2, Longitude: 6.1, Timezone: time.UTC}

	s, err := client.Forecast(context.Background(), loc)
	require.NoError(t, err)
	require.Equal(t, 3, s.Len())
	assert.Equal(t, 14.2, s.Values[0])
	assert.Equal(t, time.Date(2023, 6, 1, 1, 0, 0, 0, time.UTC), s.Times[1])

	q := gotQuery.Load().(interface{ Get(string) string })
	assert.Equal(t, "temperature_2m", q.Get("hourly"))
	assert.Equal(t, "celsius", q.Get("temperature_unit"))
	assert.Equal(t, "30", q.Get("past_days"))
	assert.Equal(t, "16", q.Get("forecast_days"))
	assert.Equal(t, "UTC", q.Get("timezone"))
	assert.Equal(t, "iso8601", q.Get("timeformat"))
}

func TestHistoricalSendsDayRange(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "2023-06-01", q.Get("start_date"))
		assert.Equal(t, "2023-06-15", q.Get("end_date"))
		assert.Empty(t, q.Get("past_days"))
		_, _ = w.Write([]byte(hourlyBody))
	}))
	defer srv.Close()

	client := NewClient(Options{HistoricalURL: srv.URL, Retry: fastRetry()})
	start := time.Date(2023, 6, 1, 10, 30, 0, 0, time.UTC)
	end := time.Date(2023, 6, 15, 0, 0, 0, 0, time.UTC)

	s, err := client.Historical(context.Background(), Geneva, start, end)
	require.NoError(t, err)
	require.Equal(t, 3, s.Len())
}

func TestErrorPayloadSurfacesReason(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error": true, "reason": "Latitude must be in range of -90 to 90"}`))
	}))
	defer srv.Close()

	client := NewClient(Options{ForecastURL: srv.URL, Retry: fastRetry()})
	_, err := client.Forecast(context.Background(), Location{Name: "Nowhere", Latitude: 123})
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Contains(t, apiErr.Reason, "Latitude")
}

func TestServerErrorsAreRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(hourlyBody))
	}))
	defer srv.Close()

	client := NewClient(Options{ForecastURL: srv.URL, Retry: fastRetry()})
	s, err := client.Forecast(context.Background(), Geneva)
	require.NoError(t, err)
	require.Equal(t, 3, s.Len())
	assert.EqualValues(t, 3, calls.Load())
}

func TestTimestampsParseInLocationTimezone(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(hourlyBody))
	}))
	defer srv.Close()

	zurich, err := time.LoadLocation("Europe/Zurich")
	require.NoError(t, err)

	client := NewClient(Options{ForecastURL: srv.URL, Retry: fastRetry()})
	s, err := client.Forecast(context.Background(), Location{Name: "Geneva", Latitude: 46.2, Longitude: 6.1, Timezone: zurich})
	require.NoError(t, err)
	assert.Equal(t, "Europe/Zurich", s.Times[0].Location().String())
}
