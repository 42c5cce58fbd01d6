// Package chart renders the multi-location temperature chart produced by the
// weather gallery page.
package chart

import (
	"fmt"
	"io"
	"math"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/josch/gallerize/internal/series"
)

// colorOrder is the ten-color cycle palette shared by all gallery charts.
var colorOrder = [][3]int{
	{31, 119, 180},
	{255, 127, 14},
	{44, 160, 44},
	{214, 39, 40},
	{148, 103, 189},
	{140, 86, 75},
	{227, 119, 194},
	{127, 127, 127},
	{188, 189, 34},
	{23, 190, 207},
}

// Color returns the color at index idx in the cycle as an rgba() string.
func Color(idx int, alpha float64) string {
	c := colorOrder[((idx%len(colorOrder))+len(colorOrder))%len(colorOrder)]
	return fmt.Sprintf("rgba(%d, %d, %d, %g)", c[0], c[1], c[2], alpha)
}

// LocationSeries bundles one location's merged temperature data for plotting.
type LocationSeries struct {
	Name       string
	Historical series.Series
	Forecast   series.Series
}

// Temperature chart thresholds: 25 °C warning, 27 °C critical.
const (
	ThresholdWarn = 25.0
	ThresholdCrit = 27.0
)

// WriteTemperatureChart renders the temperature line chart to w as a
// self-contained HTML document. Per location it draws the raw forecast and
// historical series (translucent) and their 24h trailing means (opaque, the
// forecast mean dashed), with threshold marklines and a marker at now.
func WriteTemperatureChart(w io.Writer, locations []LocationSeries, now time.Time) error {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "Temperature OpenMeteo"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Date"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Temperature [°C]"}),
	)

	axis := timeAxis(locations)
	line.SetXAxis(axis)

	for idx, loc := range locations {
		forecast24 := series.RollingMean(loc.Forecast, 24)
		historical24 := series.RollingMean(loc.Historical, 24)

		line.AddSeries(loc.Name+" forecast", alignedData(axis, loc.Forecast),
			charts.WithLineStyleOpts(opts.LineStyle{Color: Color(idx, 0.2)}))
		line.AddSeries(loc.Name+" forecast av24h", alignedData(axis, forecast24),
			charts.WithLineStyleOpts(opts.LineStyle{Color: Color(idx, 1), Type: "dashed"}))
		line.AddSeries(loc.Name+" historical", alignedData(axis, loc.Historical),
			charts.WithLineStyleOpts(opts.LineStyle{Color: Color(idx, 0.4)}))
		line.AddSeries(loc.Name+" historical av24h", alignedData(axis, historical24),
			charts.WithLineStyleOpts(opts.LineStyle{Color: Color(idx, 1)}))
	}

	line.SetSeriesOptions(
		charts.WithMarkLineNameYAxisItemOpts(
			opts.MarkLineNameYAxisItem{Name: "25 °C", YAxis: ThresholdWarn},
			opts.MarkLineNameYAxisItem{Name: "27 °C", YAxis: ThresholdCrit},
		),
		charts.WithMarkLineNameXAxisItemOpts(
			opts.MarkLineNameXAxisItem{Name: "now", XAxis: now.Format("2006-01-02 15:04")},
		),
	)

	return line.Render(w)
}

// timeAxis merges all series times into one sorted hourly axis.
func timeAxis(locations []LocationSeries) []string {
	var all series.Series
	for _, loc := range locations {
		all = series.Merge(all, loc.Historical)
		all = series.Merge(all, loc.Forecast)
	}
	axis := make([]string, all.Len())
	for i, t := range all.Times {
		axis[i] = t.Format("2006-01-02 15:04")
	}
	return axis
}

// alignedData maps a series onto the shared axis, leaving gaps ("-") where the
// series has no entry or a NaN (the rolling-mean warmup).
func alignedData(axis []string, s series.Series) []opts.LineData {
	byTime := make(map[string]float64, s.Len())
	for i, t := range s.Times {
		byTime[t.Format("2006-01-02 15:04")] = s.Values[i]
	}
	data := make([]opts.LineData, len(axis))
	for i, key := range axis {
		if v, ok := byTime[key]; ok && !math.IsNaN(v) {
			data[i] = opts.LineData{Value: v}
		} else {
			data[i] = opts.LineData{Value: "-"}
		}
	}
	return data
}
