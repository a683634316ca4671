package database

import "time"

// Result is one stored benchmark document
type Result struct {
	ID                 int64
	IndexName          string
	RunID              string
	CommitSHA          string
	Timestamp          time.Time
	Benchmark          string // full dotted name
	BenchmarkClass     string
	BenchmarkShortName string
	RunsCalibration    int
	RunsWithValues     int
	RunsTotal          int
	WarmupsPerRun      float64
	ValuesPerRun       float64
	Median             float64 // Millisecond precision when the unit was seconds
	MedianAbsDev       float64
	Mean               float64
	MeanStdDev         float64
	Percentiles        string // JSON object keyed "%.1f"
	Meta               string // JSON object
	StartDate          *time.Time
}

// Commit is the per-commit summary, unique per (index, sha)
type Commit struct {
	IndexName string
	SHA       string
	Timestamp time.Time
	ShortRef  string
	Title     string
	Body      string
	Author    string
	UpdatedAt time.Time
}

// Stats summarizes store contents
type Stats struct {
	Commits    int
	Results    int
	Runs       int
	Benchmarks int
}
