package monitor

import (
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/tspipe/internal/journal"
)

// BitRateStats summarizes the collected bitrate samples, all values in
// bits per second.
type BitRateStats struct {
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"stddev"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Median float64 `json:"median"`
	P95    float64 `json:"p95"`
}

func bitrateStats(samples []journal.Sample) BitRateStats {
	if len(samples) == 0 {
		return BitRateStats{}
	}
	vals := make([]float64, 0, len(samples))
	for _, s := range samples {
		vals = append(vals, float64(s.BitRate))
	}
	sort.Float64s(vals)

	st := BitRateStats{
		Count:  len(vals),
		Mean:   stat.Mean(vals, nil),
		Min:    vals[0],
		Max:    vals[len(vals)-1],
		Median: stat.Quantile(0.5, stat.Empirical, vals, nil),
		P95:    stat.Quantile(0.95, stat.Empirical, vals, nil),
	}
	if len(vals) > 1 {
		st.StdDev = stat.StdDev(vals, nil)
	}
	return st
}
