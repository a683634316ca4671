package store

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
)

// Defaults used when Options leaves the InfluxDB org or bucket empty
const (
	DefaultInfluxOrg    = "commitbench"
	DefaultInfluxBucket = "benchmarks"
)

// Influx writes documents as InfluxDB points. The index names the
// measurement. A commit point is keyed by its sha tag and the commit
// timestamp, so rewriting it replaces the fields of the same point.
type Influx struct {
	writeAPI api.WriteAPIBlocking
	close    func()
}

// OpenInflux connects to the InfluxDB server at u. Credentials embedded in
// the URL become the token: "user:password" (v1 compatibility auth) or the
// bare user part when no password is given.
func OpenInflux(_ context.Context, u *url.URL, opts Options) (*Influx, error) {
	server := *u
	switch server.Scheme {
	case "influx":
		server.Scheme = "http"
	case "influxs":
		server.Scheme = "https"
	}

	token := ""
	if server.User != nil {
		token = server.User.Username()
		if pw, ok := server.User.Password(); ok {
			token += ":" + pw
		}
		server.User = nil
	}
	if server.Host == "" {
		return nil, fmt.Errorf("influx store URL %q has no host", u.Redacted())
	}

	org := opts.Org
	if org == "" {
		org = DefaultInfluxOrg
	}
	bucket := opts.Bucket
	if bucket == "" {
		bucket = DefaultInfluxBucket
	}

	client := influxdb2.NewClient(strings.TrimSuffix(server.String(), "/"), token)
	return &Influx{
		writeAPI: client.WriteAPIBlocking(org, bucket),
		close:    client.Close,
	}, nil
}

// NewInflux wraps an existing blocking write API
func NewInflux(writeAPI api.WriteAPIBlocking) *Influx {
	return &Influx{writeAPI: writeAPI}
}

// IndexBenchmark implements Store
func (s *Influx) IndexBenchmark(ctx context.Context, index string, doc *BenchmarkDocument) error {
	tags := map[string]string{
		"benchmark":            doc.Benchmark,
		"benchmark_class":      doc.BenchmarkClass,
		"benchmark_short_name": doc.BenchmarkShortName,
		"commit_sha":           doc.CommitSHA,
		"run_id":               doc.RunID,
	}
	for k, v := range doc.Tags {
		tags["tag_"+k] = v
	}

	fields := map[string]interface{}{
		"median":           doc.Median,
		"median_abs_dev":   doc.MedianAbsDev,
		"mean":             doc.Mean,
		"mean_std_dev":     doc.MeanStdDev,
		"warmups_per_run":  doc.WarmupsPerRun,
		"values_per_run":   doc.ValuesPerRun,
		"runs_calibration": doc.Runs.Calibration,
		"runs_with_values": doc.Runs.WithValues,
		"runs_total":       doc.Runs.Total,
	}
	for k, v := range doc.Percentiles {
		fields["p"+k] = v
	}
	if unit, ok := doc.Meta["unit"].(string); ok {
		fields["unit"] = unit
	}
	if !doc.StartDate.IsZero() {
		fields["start_date"] = doc.StartDate.Format("2006-01-02 15:04:05.999999")
	}

	p := influxdb2.NewPoint(index, tags, fields, doc.Timestamp)
	if err := s.writeAPI.WritePoint(ctx, p); err != nil {
		return fmt.Errorf("failed to write benchmark point: %w", err)
	}
	return nil
}

// UpsertCommit implements Store
func (s *Influx) UpsertCommit(ctx context.Context, index string, doc *CommitDocument) error {
	p := influxdb2.NewPoint(
		index,
		map[string]string{"sha": doc.SHA},
		map[string]interface{}{
			"shortref": doc.ShortRef,
			"title":    doc.Title,
			"body":     doc.Body,
			"author":   doc.Author,
		},
		doc.Timestamp,
	)
	if err := s.writeAPI.WritePoint(ctx, p); err != nil {
		return fmt.Errorf("failed to write commit point: %w", err)
	}
	return nil
}

// Close implements Store
func (s *Influx) Close() error {
	if s.close != nil {
		s.close()
	}
	return nil
}
