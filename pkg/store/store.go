// Package store writes benchmark documents to a queryable backend.
//
// Benchmark documents are plain inserts: every upload adds new documents.
// Commit documents are upserted by sha so a commit has at most one summary
// per index no matter how often it is uploaded.
package store

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// ErrUnsupportedScheme is returned by Open for an unknown store URL scheme
var ErrUnsupportedScheme = errors.New("unsupported store URL scheme")

// Runs splits a benchmark's run count
type Runs struct {
	Calibration int `json:"calibration"`
	WithValues  int `json:"with_values"`
	Total       int `json:"total"`
}

// BenchmarkDocument is the stored form of one aggregated benchmark
type BenchmarkDocument struct {
	RunID              string             `json:"run_id"`
	CommitSHA          string             `json:"commit_sha"`
	Timestamp          time.Time          `json:"@timestamp"`
	Benchmark          string             `json:"benchmark"`
	BenchmarkClass     string             `json:"benchmark_class"`
	BenchmarkShortName string             `json:"benchmark_short_name"`
	Meta               map[string]any     `json:"meta"`
	Runs               Runs               `json:"runs"`
	WarmupsPerRun      float64            `json:"warmups_per_run"`
	ValuesPerRun       float64            `json:"values_per_run"`
	Median             float64            `json:"median"`
	MedianAbsDev       float64            `json:"median_abs_dev"`
	Mean               float64            `json:"mean"`
	MeanStdDev         float64            `json:"mean_std_dev"`
	Percentiles        map[string]float64 `json:"percentiles"`
	StartDate          time.Time          `json:"start_date,omitempty"`
	Tags               map[string]string  `json:"-"` // also present as meta.tags
}

// CommitDocument is the per-commit summary, keyed by SHA
type CommitDocument struct {
	SHA       string    `json:"-"`
	Timestamp time.Time `json:"@timestamp"`
	ShortRef  string    `json:"shortref"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Author    string    `json:"author"`
}

// Store is a document backend
type Store interface {
	// IndexBenchmark inserts doc into index as a new document.
	IndexBenchmark(ctx context.Context, index string, doc *BenchmarkDocument) error
	// UpsertCommit creates the commit document keyed by doc.SHA or merges
	// doc's fields into the existing one.
	UpsertCommit(ctx context.Context, index string, doc *CommitDocument) error
	Close() error
}

// Options carries backend settings that do not fit in a URL
type Options struct {
	Org    string // InfluxDB organization
	Bucket string // InfluxDB bucket
}

// Open connects to the store addressed by rawURL. The scheme selects the
// backend:
//
//	sqlite:///path/to/bench.db   SQLite database file
//	postgres://user:pw@host/db   PostgreSQL
//	http(s)://user:pw@host:8086  InfluxDB 2.x (influx:// and influxs:// also accepted)
//	redis://user:pw@host:6379/0  Redis
//	mem://                       process-local memory, for dry runs
func Open(ctx context.Context, rawURL string, opts Options) (Store, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid store URL: %w", err)
	}

	var s Store
	switch strings.ToLower(u.Scheme) {
	case "sqlite", "sqlite3", "file":
		s, err = OpenSQLite(sqlitePath(u))
	case "postgres", "postgresql":
		s, err = OpenPostgres(rawURL)
	case "http", "https", "influx", "influxs":
		s, err = OpenInflux(ctx, u, opts)
	case "redis", "rediss":
		s, err = OpenRedis(ctx, rawURL)
	case "mem", "memory":
		s = NewMemory()
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

// sqlitePath extracts the database path from sqlite:///abs, sqlite://rel or file:rel
func sqlitePath(u *url.URL) string {
	if u.Opaque != "" {
		return u.Opaque
	}
	return u.Host + u.Path
}

// ErrNotQueryable is returned by OpenSQL for backends bench-query cannot read
var ErrNotQueryable = errors.New("store is not a SQL database")

// OpenSQL opens a sqlite:// or postgres:// store URL for reading
func OpenSQL(rawURL string) (*SQL, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid store URL: %w", err)
	}
	switch strings.ToLower(u.Scheme) {
	case "sqlite", "sqlite3", "file":
		return OpenSQLite(sqlitePath(u))
	case "postgres", "postgresql":
		return OpenPostgres(rawURL)
	}
	return nil, fmt.Errorf("%w: %q", ErrNotQueryable, u.Scheme)
}
