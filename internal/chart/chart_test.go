package chart

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josch/gallerize/internal/series"
)

func TestColorCycleWrapsWithAlpha(t *testing.T) {
	assert.Equal(t, "rgba(31, 119, 180, 1)", Color(0, 1))
	assert.Equal(t, "rgba(255, 127, 14, 0.2)", Color(1, 0.2))
	// Index 10 wraps back to the first color.
	assert.Equal(t, Color(0, 1), Color(10, 1))
}

func TestWriteTemperatureChart(t *testing.T) {
	base := time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)
	n := 30
	times := make([]time.Time, n)
	values := make([]float64, n)
	for i := range times {
		times[i] = base.Add(time.Duration(i) * time.Hour)
		values[i] = 20 + float64(i%5)
	}
	s, err := series.New(times, values)
	require.NoError(t, err)

	var buf bytes.Buffer
	err = WriteTemperatureChart(&buf, []LocationSeries{
		{Name: "Geneva", Historical: s, Forecast: s},
	}, base.Add(24*time.Hour))
	require.NoError(t, err)

	html := buf.String()
	assert.True(t, strings.Contains(html, "Temperature OpenMeteo"))
	assert.True(t, strings.Contains(html, "Geneva forecast av24h"))
	assert.True(t, strings.Contains(html, "Geneva historical"))
	// NaN warmup entries must not leak into the payload.
	assert.False(t, strings.Contains(html, "NaN"))
}

func TestTimeAxisSharedAcrossLocations(t *testing.T) {
	// Two locations in separately loaded copies of the same zone report the
	// same hour; the shared axis must carry it once, not per location.
	zoneA, err := time.LoadLocation("Europe/Zurich")
	require.NoError(t, err)
	zoneB, err := time.LoadLocation("Europe/Zurich")
	require.NoError(t, err)

	geneva := series.Series{
		Times:  []time.Time{time.Date(2024, 6, 1, 12, 0, 0, 0, zoneA)},
		Values: []float64{21},
	}
	bern := series.Series{
		Times:  []time.Time{time.Date(2024, 6, 1, 12, 0, 0, 0, zoneB)},
		Values: []float64{19},
	}

	axis := timeAxis([]LocationSeries{
		{Name: "Geneva", Forecast: geneva},
		{Name: "Bern", Forecast: bern},
	})
	assert.Equal(t, []string{"2024-06-01 12:00"}, axis)
}
