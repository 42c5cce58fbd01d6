// Package series holds hourly time series and the aggregation used by the
// weather example pages.
package series

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/montanaflynn/stats"
)

// Series is an hourly time series with parallel time/value slices.
// Invariant: len(Times) == len(Values).
type Series struct {
	Times  []time.Time
	Values []float64
}

// New builds a Series, enforcing the parallel-slice invariant.
func New(times []time.Time, values []float64) (Series, error) {
	if len(times) != len(values) {
		return Series{}, fmt.Errorf("series length mismatch: %d times vs %d values", len(times), len(values))
	}
	return Series{Times: times, Values: values}, nil
}

// Len returns the number of entries.
func (s Series) Len() int { return len(s.Times) }

// RollingMean returns the trailing mean over the given window. Entries with
// fewer than window predecessors are NaN, so the result aligns index-for-index
// with the input.
func RollingMean(s Series, window int) Series {
	out := Series{
		Times:  s.Times,
		Values: make([]float64, len(s.Values)),
	}
	if window <= 0 {
		copy(out.Values, s.Values)
		return out
	}
	for i := range s.Values {
		if i+1 < window {
			out.Values[i] = math.NaN()
			continue
		}
		mean, err := stats.Mean(stats.Float64Data(s.Values[i+1-window : i+1]))
		if err != nil {
			out.Values[i] = math.NaN()
			continue
		}
		out.Values[i] = mean
	}
	return out
}

// Merge joins two series on time. Where both have an entry for the same
// instant the second series wins (forecast data supersedes historical for
// overlapping hours). The result is sorted by time.
func Merge(a, b Series) Series {
	type entry struct {
		t time.Time
		v float64
	}
	// Keyed by the instant, not by time.Time: == on time.Time compares the
	// location pointer, so equal wall-clock hours from separately loaded
	// copies of the same zone would not collapse.
	byInstant := make(map[int64]entry, a.Len()+b.Len())
	for i, t := range a.Times {
		byInstant[t.UnixNano()] = entry{t: t, v: a.Values[i]}
	}
	for i, t := range b.Times {
		byInstant[t.UnixNano()] = entry{t: t, v: b.Values[i]}
	}

	instants := make([]int64, 0, len(byInstant))
	for instant := range byInstant {
		instants = append(instants, instant)
	}
	sort.Slice(instants, func(i, j int) bool { return instants[i] < instants[j] })

	times := make([]time.Time, len(instants))
	values := make([]float64, len(instants))
	for i, instant := range instants {
		times[i] = byInstant[instant].t
		values[i] = byInstant[instant].v
	}
	return Series{Times: times, Values: values}
}
