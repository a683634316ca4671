package suite

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleSuite = `{
  "metadata": {"python_version": "3.12", "unit": "second"},
  "benchmarks": [
    {
      "metadata": {"name": "benchmarks.bm_transactions.bench_transaction_spans.time", "timestamp": "2024-01-01T10:00:00+00:00"},
      "runs": [
        {"metadata": {"date": "2024-01-02T10:00:05.000001", "calibrate_loops": 16}, "warmups": [[1, 0.1], [2, 0.2]]},
        {"metadata": {"date": "2024-01-02T10:00:01.5"}, "warmups": [[16, 0.011]], "values": [0.010, 0.012, 0.011]},
        {"metadata": {"date": "2024-01-02T10:00:03"}, "warmups": [[16, 0.013]], "values": [0.014, 0.009, 0.010]}
      ]
    },
    {
      "metadata": {"name": "benchmarks.bm_exceptions.bench_capture_exception.time", "unit": "millisecond"},
      "runs": [
        {"warmups": [[1, 5]], "values": [5, 6]}
      ]
    }
  ]
}`

func TestParse(t *testing.T) {
	s, err := Parse([]byte(sampleSuite))
	require.NoError(t, err)
	require.Len(t, s.Benchmarks, 2)

	b := s.Benchmarks[0]
	assert.Equal(t, "benchmarks.bm_transactions.bench_transaction_spans.time", b.Name())
	assert.Equal(t, "second", b.Unit(), "unit is inherited from suite metadata")
	assert.Equal(t, "3.12", b.Metadata["python_version"])

	assert.Equal(t, "millisecond", s.Benchmarks[1].Unit(), "benchmark metadata overrides the suite")
}

func TestBenchmark_RunCounts(t *testing.T) {
	s, err := Parse([]byte(sampleSuite))
	require.NoError(t, err)
	b := s.Benchmarks[0]

	assert.Equal(t, 3, b.NRun())
	assert.Equal(t, 1, b.NCalibrationRuns())
	assert.Equal(t, float64(1), b.WarmupsPerRun())
	assert.Equal(t, float64(3), b.ValuesPerRun())
	assert.Equal(t, []float64{0.010, 0.012, 0.011, 0.014, 0.009, 0.010}, b.Values())
}

func TestRun_IsCalibration(t *testing.T) {
	tests := []struct {
		name string
		run  Run
		want bool
	}{
		{"no values", Run{Warmups: [][2]float64{{1, 1}}}, true},
		{"calibrate flag", Run{Values: []float64{1}, Metadata: map[string]any{"recalibrate_warmups": true}}, true},
		{"measured", Run{Values: []float64{1}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.run.IsCalibration())
		})
	}
}

func TestBenchmark_Dates(t *testing.T) {
	s, err := Parse([]byte(sampleSuite))
	require.NoError(t, err)

	dates := s.Benchmarks[0].Dates()
	require.Len(t, dates, 3)
	assert.Equal(t, 1, dates[0].Second())
	assert.True(t, dates[0].Before(dates[1]))
	assert.True(t, dates[1].Before(dates[2]))
}

func TestBenchmark_Reductions(t *testing.T) {
	b := &Benchmark{Runs: []*Run{{Values: []float64{4, 1, 3, 2}}}}

	median, err := b.Median()
	require.NoError(t, err)
	assert.Equal(t, 2.5, median)

	mean, err := b.Mean()
	require.NoError(t, err)
	assert.Equal(t, 2.5, mean)

	p0, err := b.Percentile(0)
	require.NoError(t, err)
	assert.Equal(t, float64(1), p0)

	p100, err := b.Percentile(100)
	require.NoError(t, err)
	assert.Equal(t, float64(4), p100)
}

func TestBenchmark_PercentileInterpolates(t *testing.T) {
	b := &Benchmark{Runs: []*Run{{Values: []float64{4, 1, 3, 2}}}}

	tests := []struct {
		p    float64
		want float64
	}{
		{25, 1.75},
		{50, 2.5},
		{75, 3.25},
		{95, 3.85},
	}
	for _, tt := range tests {
		got, err := b.Percentile(tt.p)
		require.NoError(t, err)
		assert.InDelta(t, tt.want, got, 1e-9, "p%.0f", tt.p)
	}

	median, err := b.Median()
	require.NoError(t, err)
	p50, err := b.Percentile(50)
	require.NoError(t, err)
	assert.Equal(t, median, p50)

	_, err = b.Percentile(101)
	assert.Error(t, err)
}

func TestBenchmark_SingleValueStdev(t *testing.T) {
	b := &Benchmark{Runs: []*Run{{Values: []float64{7}}}}
	stdev, err := b.Stdev()
	require.NoError(t, err)
	assert.Equal(t, float64(0), stdev)
}

func TestBenchmark_EmptyValues(t *testing.T) {
	b := &Benchmark{Runs: []*Run{{Warmups: [][2]float64{{1, 1}}}}}
	_, err := b.Median()
	assert.Error(t, err)
	assert.Equal(t, float64(0), b.ValuesPerRun())
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "result.time.abc.json")
	require.NoError(t, os.WriteFile(path, []byte(sampleSuite), 0644))

	s, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, s.Benchmarks, 2)

	_, err = Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestParse_Invalid(t *testing.T) {
	_, err := Parse([]byte(`{"benchmarks": [null]}`))
	assert.Error(t, err)

	_, err = Parse([]byte(`not json`))
	assert.Error(t, err)
}
