// Package meteo fetches hourly temperature data from the Open-Meteo API.
package meteo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/josch/gallerize/internal/retry"
	"github.com/josch/gallerize/internal/series"
)

// Public Open-Meteo endpoints. Forecast also serves the recent past via
// past_days; older data comes from the archive endpoint.
const (
	DefaultForecastURL   = "https://api.open-meteo.com/v1/forecast"
	DefaultHistoricalURL = "https://archive-api.open-meteo.com/v1/archive"
)

// dayFormat is the date format Open-Meteo expects for start_date/end_date.
// Not really iso8601, just the day part.
const dayFormat = "2006-01-02"

// hourFormat is the timestamp layout of hourly data with timeformat=iso8601.
const hourFormat = "2006-01-02T15:04"

// APIError is the error payload Open-Meteo returns in a 200 or 4xx body:
// {"error": true, "reason": "..."}.
type APIError struct {
	Reason string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("failed to load meteo data. Reason: %s", e.Reason)
}

// Options tune a Client beyond its defaults.
type Options struct {
	ForecastURL   string
	HistoricalURL string
	PastDays      int // days of recent history on the forecast endpoint
	ForecastDays  int
	HTTPClient    *http.Client
	Retry         retry.Policy
}

// Client fetches hourly temperature series for locations.
type Client struct {
	forecastURL   string
	historicalURL string
	pastDays      int
	forecastDays  int
	httpClient    *http.Client
	retry         retry.Policy
}

// NewClient creates a Client; zero option fields fall back to defaults
// matching the original extractor (30 past days, 16 forecast days).
func NewClient(opts Options) *Client {
	c := &Client{
		forecastURL:   DefaultForecastURL,
		historicalURL: DefaultHistoricalURL,
		pastDays:      30,
		forecastDays:  16,
		httpClient:    &http.Client{Timeout: 30 * time.Second},
		retry:         retry.DefaultPolicy(),
	}
	if opts.ForecastURL != "" {
		c.forecastURL = opts.ForecastURL
	}
	if opts.HistoricalURL != "" {
		c.historicalURL = opts.HistoricalURL
	}
	if opts.PastDays > 0 {
		c.pastDays = opts.PastDays
	}
	if opts.ForecastDays > 0 {
		c.forecastDays = opts.ForecastDays
	}
	if opts.HTTPClient != nil {
		c.httpClient = opts.HTTPClient
	}
	if opts.Retry.MaxAttempts > 0 {
		c.retry = opts.Retry
	}
	return c
}

// hourlyPayload is the wire shape of the hourly block plus the error contract.
type hourlyPayload struct {
	Error  bool   `json:"error"`
	Reason string `json:"reason"`
	Hourly struct {
		Time          []string  `json:"time"`
		Temperature2M []float64 `json:"temperature_2m"`
	} `json:"hourly"`
}

// Forecast returns the hourly temperature forecast for the location,
// including the configured number of past days.
func (c *Client) Forecast(ctx context.Context, loc Location) (series.Series, error) {
	q := c.baseQuery(loc)
	q.Set("past_days", strconv.Itoa(c.pastDays))
	q.Set("forecast_days", strconv.Itoa(c.forecastDays))
	return c.fetch(ctx, loc, c.forecastURL, q)
}

// Historical returns hourly temperatures between start and end (inclusive,
// day granularity) from the archive endpoint.
func (c *Client) Historical(ctx context.Context, loc Location, start, end time.Time) (series.Series, error) {
	q := c.baseQuery(loc)
	q.Set("start_date", start.Format(dayFormat))
	q.Set("end_date", end.Format(dayFormat))
	return c.fetch(ctx, loc, c.historicalURL, q)
}

func (c *Client) baseQuery(loc Location) url.Values {
	q := url.Values{}
	q.Set("latitude", strconv.FormatFloat(loc.Latitude, 'f', -1, 64))
	q.Set("longitude", strconv.FormatFloat(loc.Longitude, 'f', -1, 64))
	q.Set("hourly", "temperature_2m")
	q.Set("temperature_unit", "celsius")
	q.Set("windspeed_unit", "kmh")
	q.Set("precipitation_unit", "mm")
	q.Set("timeformat", "iso8601")
	q.Set("timezone", loc.tz().String())
	return q
}

func (c *Client) fetch(ctx context.Context, loc Location, endpoint string, q url.Values) (series.Series, error) {
	reqURL := endpoint + "?" + q.Encode()

	var body []byte
	err := c.retry.Do(ctx, func() error {
		var err error
		body, err = c.get(ctx, reqURL)
		return err
	}, func(n int, err error) {
		slog.Warn("Retrying Open-Meteo request", "location", loc.Name, "retry", n, "error", err)
	})
	if err != nil {
		return series.Series{}, err
	}

	var payload hourlyPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return series.Series{}, fmt.Errorf("decode meteo response: %w", err)
	}
	if payload.Error {
		return series.Series{}, &APIError{Reason: payload.Reason}
	}

	times := make([]time.Time, len(payload.Hourly.Time))
	for i, raw := range payload.Hourly.Time {
		t, err := time.ParseInLocation(hourFormat, raw, loc.tz())
		if err != nil {
			return series.Series{}, fmt.Errorf("parse hourly timestamp %q: %w", raw, err)
		}
		times[i] = t
	}
	return series.New(times, payload.Hourly.Temperature2M)
}

func (c *Client) get(ctx context.Context, reqURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("meteo request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read meteo response: %w", err)
	}
	// 4xx bodies carry the error contract; let the caller surface the reason
	// instead of a bare status code.
	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("meteo server error: status %d", resp.StatusCode)
	}
	return body, nil
}
