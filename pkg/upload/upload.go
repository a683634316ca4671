// Package upload turns aggregated result files into store documents and
// writes them, one commit at a time.
package upload

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/mslinn/commitbench/pkg/aggregate"
	"github.com/mslinn/commitbench/pkg/commits"
	"github.com/mslinn/commitbench/pkg/store"
	"github.com/mslinn/commitbench/pkg/suite"
)

// Default index names
const (
	DefaultBenchmarkIndex = "benchmark-python"
	DefaultCommitIndex    = "benchmark-py-commits"
)

// Uploader writes the documents of one orchestrator run
type Uploader struct {
	Store          store.Store
	BenchmarkIndex string
	CommitIndex    string
	RunID          string // Attached to every benchmark document
	Logger         *slog.Logger
}

func (u *Uploader) logger() *slog.Logger {
	if u.Logger == nil {
		return slog.Default()
	}
	return u.Logger
}

// Upload aggregates files and indexes one document per benchmark, then
// upserts the commit summary exactly once.
func (u *Uploader) Upload(ctx context.Context, files []string, commit commits.Commit, tags map[string]string) error {
	benchIndex := u.BenchmarkIndex
	if benchIndex == "" {
		benchIndex = DefaultBenchmarkIndex
	}
	commitIndex := u.CommitIndex
	if commitIndex == "" {
		commitIndex = DefaultCommitIndex
	}

	var docs []*store.BenchmarkDocument
	for _, f := range files {
		benchmarks, err := aggregate.Aggregate(f)
		if err != nil {
			return err
		}
		for _, b := range benchmarks {
			docs = append(docs, BenchmarkDocument(b, commit, tags, u.RunID))
		}
	}

	for _, d := range docs {
		if err := u.Store.IndexBenchmark(ctx, benchIndex, d); err != nil {
			return fmt.Errorf("failed to index %s: %w", d.Benchmark, err)
		}
	}
	u.logger().Debug("indexed benchmark documents", "commit", commit.ShortSHA(), "count", len(docs))

	if err := u.Store.UpsertCommit(ctx, commitIndex, CommitDocument(commit)); err != nil {
		return fmt.Errorf("failed to upsert commit %s: %w", commit.ShortSHA(), err)
	}
	return nil
}

// BenchmarkDocument builds the stored form of b measured at commit
func BenchmarkDocument(b aggregate.Benchmark, commit commits.Commit, tags map[string]string, runID string) *store.BenchmarkDocument {
	class, short := SplitName(b.FullName)

	meta := make(map[string]any, len(b.Metadata)+2)
	for k, v := range b.Metadata {
		meta[k] = v
	}

	timestamp := commit.Timestamp
	if raw, ok := meta["timestamp"].(string); ok {
		if t, ok := suite.ParseTime(raw); ok {
			timestamp = t
		}
	}
	delete(meta, "timestamp")

	if !b.StartDate.IsZero() {
		meta["start_date"] = b.StartDate.Format("2006-01-02 15:04:05.999999")
	}
	if len(tags) > 0 {
		meta["tags"] = tags
	}

	return &store.BenchmarkDocument{
		RunID:              runID,
		CommitSHA:          commit.SHA,
		Timestamp:          timestamp,
		Benchmark:          b.FullName,
		BenchmarkClass:     class,
		BenchmarkShortName: short,
		Meta:               meta,
		Runs: store.Runs{
			Calibration: b.Runs.Calibration,
			WithValues:  b.Runs.WithValues,
			Total:       b.Runs.Total,
		},
		WarmupsPerRun: b.WarmupsPerRun,
		ValuesPerRun:  b.ValuesPerRun,
		Median:        b.Median,
		MedianAbsDev:  b.MedianAbsDev,
		Mean:          b.Mean,
		MeanStdDev:    b.Stdev,
		Percentiles:   b.Percentiles,
		StartDate:     b.StartDate,
		Tags:          tags,
	}
}

// CommitDocument builds the per-commit summary
func CommitDocument(c commits.Commit) *store.CommitDocument {
	return &store.CommitDocument{
		SHA:       c.SHA,
		Timestamp: c.Timestamp,
		ShortRef:  c.ShortSHA(),
		Title:     c.Title,
		Body:      c.Message,
		Author:    c.Author,
	}
}

// SplitName derives the benchmark class (every segment but the last) and
// the short name (the last segment of the class) from a dotted full name.
//
//	benchmarks.bm_transactions.bench_transaction_spans.time
//	  class: benchmarks.bm_transactions.bench_transaction_spans
//	  short: bench_transaction_spans
func SplitName(fullName string) (class, short string) {
	class = fullName
	if i := strings.LastIndex(fullName, "."); i >= 0 {
		class = fullName[:i]
	}
	short = class
	if i := strings.LastIndex(class, "."); i >= 0 {
		short = class[i+1:]
	}
	return class, short
}

// WithCredentials returns rawURL with user and password embedded, unless
// user is empty or rawURL already carries credentials. The input is never
// modified; an unparsable URL is returned unchanged.
func WithCredentials(rawURL, user, password string) string {
	if user == "" {
		return rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.User != nil {
		return rawURL
	}
	withCreds := *u
	withCreds.User = url.UserPassword(user, password)
	return withCreds.String()
}

// ParseTags turns key=value items into a tag map. Only the first = splits,
// so values may contain =.
func ParseTags(items []string) (map[string]string, error) {
	tags := make(map[string]string, len(items))
	for _, item := range items {
		k, v, ok := strings.Cut(item, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid tag %q: expected key=value", item)
		}
		tags[k] = v
	}
	return tags, nil
}
