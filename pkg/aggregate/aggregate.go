package aggregate

import (
	"errors"
	"fmt"
	"time"

	"github.com/mslinn/commitbench/pkg/suite"
)

// Percentiles is the fixed set of percentile points reported per benchmark
var Percentiles = []float64{0, 5, 25, 50, 75, 95, 99, 100}

// ErrEmptyBenchmark is returned for a benchmark without measured values
var ErrEmptyBenchmark = errors.New("benchmark has no measured values")

// Runs splits a benchmark's run count
type Runs struct {
	Calibration int `json:"calibration"`
	WithValues  int `json:"with_values"`
	Total       int `json:"total"`
}

// Benchmark is the reportable form of one benchmark record
type Benchmark struct {
	FullName      string
	Unit          string // Unit after normalization ("milliseconds" for converted seconds)
	Factor        float64
	Runs          Runs
	WarmupsPerRun float64
	ValuesPerRun  float64
	Median        float64
	Mean          float64
	Stdev         float64
	MedianAbsDev  float64
	Percentiles   map[string]float64 // keyed "%.1f"
	StartDate     time.Time
	Metadata      map[string]any // record metadata, name excluded
}

// PercentileKey formats a percentile point the way documents key it
func PercentileKey(p float64) string {
	return fmt.Sprintf("%.1f", p)
}

// Aggregate loads the result file at path and reduces every benchmark in it
func Aggregate(path string) ([]Benchmark, error) {
	s, err := suite.Load(path)
	if err != nil {
		return nil, err
	}

	out := make([]Benchmark, 0, len(s.Benchmarks))
	for _, b := range s.Benchmarks {
		agg, err := FromSuite(b)
		if err != nil {
			return nil, fmt.Errorf("%s: %s: %w", path, b.Name(), err)
		}
		out = append(out, agg)
	}
	return out, nil
}

// FromSuite reduces one benchmark record. All numeric reductions come from
// the suite's statistics engine; samples in seconds are scaled to milliseconds.
func FromSuite(b *suite.Benchmark) (Benchmark, error) {
	if len(b.Values()) == 0 {
		return Benchmark{}, ErrEmptyBenchmark
	}

	factor := 1.0
	unit := b.Unit()
	if unit == "second" {
		factor = 1000
		unit = "milliseconds"
	}

	calibration := b.NCalibrationRuns()
	total := b.NRun()

	agg := Benchmark{
		FullName: b.Name(),
		Unit:     unit,
		Factor:   factor,
		Runs: Runs{
			Calibration: calibration,
			WithValues:  total - calibration,
			Total:       total,
		},
		WarmupsPerRun: b.WarmupsPerRun(),
		ValuesPerRun:  b.ValuesPerRun(),
		Percentiles:   make(map[string]float64, len(Percentiles)),
		Metadata:      make(map[string]any, len(b.Metadata)),
	}

	for k, v := range b.Metadata {
		if k != "name" {
			agg.Metadata[k] = v
		}
	}
	agg.Metadata["unit"] = unit

	if dates := b.Dates(); len(dates) > 0 {
		agg.StartDate = dates[0]
	}

	reductions := []struct {
		dst *float64
		fn  func() (float64, error)
	}{
		{&agg.Median, b.Median},
		{&agg.Mean, b.Mean},
		{&agg.Stdev, b.Stdev},
		{&agg.MedianAbsDev, b.MedianAbsDev},
	}
	for _, r := range reductions {
		v, err := r.fn()
		if err != nil {
			return Benchmark{}, err
		}
		*r.dst = v * factor
	}

	for _, p := range Percentiles {
		v, err := b.Percentile(p)
		if err != nil {
			return Benchmark{}, fmt.Errorf("percentile %.1f: %w", p, err)
		}
		agg.Percentiles[PercentileKey(p)] = v * factor
	}

	return agg, nil
}
