// Package suite reads the result files written by the measurement process
// and exposes each benchmark's samples through the statistics engine.
//
// A result file holds one suite:
//
//	{
//	  "metadata": {...},
//	  "benchmarks": [
//	    {
//	      "metadata": {"name": "...", "unit": "second", "timestamp": "..."},
//	      "runs": [
//	        {"metadata": {"date": "..."}, "warmups": [[loops, value], ...], "values": [...]}
//	      ]
//	    }
//	  ]
//	}
//
// Suite-level metadata is inherited by every benchmark unless the benchmark
// overrides the key.
package suite

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"sort"
	"time"

	"github.com/montanaflynn/stats"
)

// calibrationKeys mark a run that only determined loop or warmup counts.
var calibrationKeys = []string{"calibrate_loops", "recalibrate_loops", "calibrate_warmups", "recalibrate_warmups"}

// Suite is a parsed result file
type Suite struct {
	Metadata   map[string]any `json:"metadata,omitempty"`
	Benchmarks []*Benchmark   `json:"benchmarks"`
}

// Benchmark is one named benchmark and its runs
type Benchmark struct {
	Metadata map[string]any `json:"metadata"`
	Runs     []*Run         `json:"runs"`
}

// Run is one process run of a benchmark
type Run struct {
	Metadata map[string]any `json:"metadata,omitempty"`
	Warmups  [][2]float64   `json:"warmups,omitempty"`
	Values   []float64      `json:"values,omitempty"`
}

// Load reads and parses the suite stored at path
func Load(path string) (*Suite, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read suite: %w", err)
	}
	return Parse(data)
}

// Parse decodes a suite and propagates suite metadata into its benchmarks
func Parse(data []byte) (*Suite, error) {
	var s Suite
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse suite: %w", err)
	}
	for i, b := range s.Benchmarks {
		if b == nil {
			return nil, fmt.Errorf("benchmark %d is null", i)
		}
		if b.Metadata == nil {
			b.Metadata = map[string]any{}
		}
		for k, v := range s.Metadata {
			if _, ok := b.Metadata[k]; !ok {
				b.Metadata[k] = v
			}
		}
	}
	return &s, nil
}

// IsCalibration reports whether the run only calibrated loop or warmup counts
func (r *Run) IsCalibration() bool {
	if len(r.Values) == 0 {
		return true
	}
	for _, k := range calibrationKeys {
		if _, ok := r.Metadata[k]; ok {
			return true
		}
	}
	return false
}

// Name returns the benchmark's full name
func (b *Benchmark) Name() string {
	return b.stringMeta("name")
}

// Unit returns the unit the samples are expressed in
func (b *Benchmark) Unit() string {
	return b.stringMeta("unit")
}

func (b *Benchmark) stringMeta(key string) string {
	if v, ok := b.Metadata[key].(string); ok {
		return v
	}
	return ""
}

// NRun returns the number of runs, calibration runs included
func (b *Benchmark) NRun() int {
	return len(b.Runs)
}

// NCalibrationRuns returns how many runs report themselves as calibration
func (b *Benchmark) NCalibrationRuns() int {
	n := 0
	for _, r := range b.Runs {
		if r.IsCalibration() {
			n++
		}
	}
	return n
}

// WarmupsPerRun returns the warmup count of the measured runs
func (b *Benchmark) WarmupsPerRun() float64 {
	return b.runProperty(func(r *Run) int { return len(r.Warmups) })
}

// ValuesPerRun returns the value count of the measured runs
func (b *Benchmark) ValuesPerRun() float64 {
	return b.runProperty(func(r *Run) int { return len(r.Values) })
}

// runProperty returns the property shared by all measured runs, or its
// mean when runs disagree.
func (b *Benchmark) runProperty(get func(*Run) int) float64 {
	var props []float64
	for _, r := range b.Runs {
		if r.IsCalibration() {
			continue
		}
		props = append(props, float64(get(r)))
	}
	if len(props) == 0 {
		return 0
	}
	mean, _ := stats.Mean(props)
	return math.Round(mean)
}

// Values returns every measured sample, in run order
func (b *Benchmark) Values() []float64 {
	var values []float64
	for _, r := range b.Runs {
		if r.IsCalibration() {
			continue
		}
		values = append(values, r.Values...)
	}
	return values
}

// Dates returns the parsed run dates, earliest first
func (b *Benchmark) Dates() []time.Time {
	var dates []time.Time
	for _, r := range b.Runs {
		raw, ok := r.Metadata["date"].(string)
		if !ok {
			continue
		}
		if t, ok := ParseTime(raw); ok {
			dates = append(dates, t)
		}
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return dates
}

// timeLayouts are the date forms the measurement process writes
var timeLayouts = []string{time.RFC3339Nano, "2006-01-02 15:04:05.999999", "2006-01-02T15:04:05.999999"}

// ParseTime parses a run date or metadata timestamp
func ParseTime(raw string) (time.Time, bool) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Median of the measured values
func (b *Benchmark) Median() (float64, error) {
	return stats.Median(b.Values())
}

// Mean of the measured values
func (b *Benchmark) Mean() (float64, error) {
	return stats.Mean(b.Values())
}

// Stdev is the sample standard deviation of the measured values.
// A single value has no spread and yields 0.
func (b *Benchmark) Stdev() (float64, error) {
	values := b.Values()
	if len(values) == 1 {
		return 0, nil
	}
	return stats.StandardDeviationSample(values)
}

// MedianAbsDev is the median absolute deviation of the measured values
func (b *Benchmark) MedianAbsDev() (float64, error) {
	return stats.MedianAbsoluteDeviation(b.Values())
}

// Percentile returns the p-th percentile (0 <= p <= 100) of the measured
// values, interpolating linearly between the closest ranks. The 50th
// percentile is always equal to Median.
func (b *Benchmark) Percentile(p float64) (float64, error) {
	values := b.Values()
	if len(values) == 0 {
		return stats.Median(values)
	}
	if p < 0 || p > 100 {
		return math.NaN(), fmt.Errorf("percentile %v out of range [0, 100]", p)
	}
	if p == 50 {
		return stats.Median(values)
	}

	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	k := float64(len(sorted)-1) * p / 100
	lo, hi := math.Floor(k), math.Ceil(k)
	if lo == hi {
		return sorted[int(k)], nil
	}
	return sorted[int(lo)]*(hi-k) + sorted[int(hi)]*(k-lo), nil
}
