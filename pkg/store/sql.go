package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mslinn/commitbench/pkg/database"
)

// SQL stores documents in SQLite or PostgreSQL tables
type SQL struct {
	DB *database.DB
}

// OpenSQLite opens a SQLite-backed store at path
func OpenSQLite(path string) (*SQL, error) {
	db, err := database.OpenSQLite(path)
	if err != nil {
		return nil, err
	}
	return &SQL{DB: db}, nil
}

// OpenPostgres opens a PostgreSQL-backed store from a postgres:// URL
func OpenPostgres(dsn string) (*SQL, error) {
	db, err := database.Open(database.DriverPostgres, dsn)
	if err != nil {
		return nil, err
	}
	return &SQL{DB: db}, nil
}

// IndexBenchmark implements Store
func (s *SQL) IndexBenchmark(ctx context.Context, index string, doc *BenchmarkDocument) error {
	percentiles, err := json.Marshal(doc.Percentiles)
	if err != nil {
		return fmt.Errorf("failed to encode percentiles: %w", err)
	}
	meta, err := json.Marshal(doc.Meta)
	if err != nil {
		return fmt.Errorf("failed to encode meta: %w", err)
	}

	r := &database.Result{
		IndexName:          index,
		RunID:              doc.RunID,
		CommitSHA:          doc.CommitSHA,
		Timestamp:          doc.Timestamp,
		Benchmark:          doc.Benchmark,
		BenchmarkClass:     doc.BenchmarkClass,
		BenchmarkShortName: doc.BenchmarkShortName,
		RunsCalibration:    doc.Runs.Calibration,
		RunsWithValues:     doc.Runs.WithValues,
		RunsTotal:          doc.Runs.Total,
		WarmupsPerRun:      doc.WarmupsPerRun,
		ValuesPerRun:       doc.ValuesPerRun,
		Median:             doc.Median,
		MedianAbsDev:       doc.MedianAbsDev,
		Mean:               doc.Mean,
		MeanStdDev:         doc.MeanStdDev,
		Percentiles:        string(percentiles),
		Meta:               string(meta),
	}
	if !doc.StartDate.IsZero() {
		start := doc.StartDate
		r.StartDate = &start
	}
	return s.DB.InsertResult(ctx, r)
}

// UpsertCommit implements Store
func (s *SQL) UpsertCommit(ctx context.Context, index string, doc *CommitDocument) error {
	return s.DB.UpsertCommit(ctx, &database.Commit{
		IndexName: index,
		SHA:       doc.SHA,
		Timestamp: doc.Timestamp,
		ShortRef:  doc.ShortRef,
		Title:     doc.Title,
		Body:      doc.Body,
		Author:    doc.Author,
	})
}

// Close implements Store
func (s *SQL) Close() error {
	return s.DB.Close()
}
