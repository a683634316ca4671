package database

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "bench.db"))
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestUpsertCommit_SingleRowPerSHA(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	commit := &Commit{
		IndexName: "benchmark-py-commits",
		SHA:       "abcdef0123456789",
		Timestamp: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC),
		ShortRef:  "abcdef01",
		Title:     "first title",
		Body:      "body",
		Author:    "dev@example.com",
	}
	if err := db.UpsertCommit(ctx, commit); err != nil {
		t.Fatalf("UpsertCommit failed: %v", err)
	}

	commit.Title = "second title"
	if err := db.UpsertCommit(ctx, commit); err != nil {
		t.Fatalf("second UpsertCommit failed: %v", err)
	}

	commits, err := db.ListCommits(ctx, "benchmark-py-commits")
	if err != nil {
		t.Fatalf("ListCommits failed: %v", err)
	}
	if len(commits) != 1 {
		t.Fatalf("got %d commits, want 1", len(commits))
	}
	if commits[0].Title != "second title" {
		t.Errorf("Title = %q, want second title", commits[0].Title)
	}

	got, err := db.GetCommit(ctx, "benchmark-py-commits", "abcdef0123456789")
	if err != nil {
		t.Fatalf("GetCommit failed: %v", err)
	}
	if !got.Timestamp.Equal(commit.Timestamp) {
		t.Errorf("Timestamp = %v, want %v", got.Timestamp, commit.Timestamp)
	}
}

func TestUpsertCommit_IndexesAreSeparate(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	for _, index := range []string{"a", "b"} {
		c := &Commit{IndexName: index, SHA: "abc", Timestamp: time.Now()}
		if err := db.UpsertCommit(ctx, c); err != nil {
			t.Fatalf("UpsertCommit failed: %v", err)
		}
	}

	for _, index := range []string{"a", "b"} {
		commits, err := db.ListCommits(ctx, index)
		if err != nil {
			t.Fatalf("ListCommits failed: %v", err)
		}
		if len(commits) != 1 {
			t.Errorf("index %s: got %d commits, want 1", index, len(commits))
		}
	}
}

func TestInsertResult_AppendsRows(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	start := time.Date(2024, 1, 2, 3, 4, 5, 600, time.UTC)
	for i := 0; i < 2; i++ {
		r := &Result{
			IndexName:          "benchmark-python",
			RunID:              "run-1",
			CommitSHA:          "abcdef0123",
			Timestamp:          time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
			Benchmark:          "benchmarks.bm_transactions.bench_transaction_spans.time",
			BenchmarkClass:     "benchmarks.bm_transactions.bench_transaction_spans",
			BenchmarkShortName: "bench_transaction_spans",
			RunsCalibration:    1,
			RunsWithValues:     2,
			RunsTotal:          3,
			Median:             1.5,
			Percentiles:        `{"50.0":1.5}`,
			Meta:               `{"unit":"milliseconds"}`,
			StartDate:          &start,
		}
		if err := db.InsertResult(ctx, r); err != nil {
			t.Fatalf("InsertResult failed: %v", err)
		}
		if r.ID == 0 {
			t.Error("InsertResult should set ID")
		}
	}

	results, err := db.ListResults(ctx, "benchmark-python", "abcdef", "")
	if err != nil {
		t.Fatalf("ListResults failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if results[0].StartDate == nil || !results[0].StartDate.Equal(start) {
		t.Errorf("StartDate = %v, want %v", results[0].StartDate, start)
	}
	if results[0].RunsWithValues != 2 {
		t.Errorf("RunsWithValues = %d, want 2", results[0].RunsWithValues)
	}

	filtered, err := db.ListResults(ctx, "benchmark-python", "", "%bench_capture%")
	if err != nil {
		t.Fatalf("ListResults failed: %v", err)
	}
	if len(filtered) != 0 {
		t.Errorf("got %d results for unmatched pattern, want 0", len(filtered))
	}

	stats, err := db.GetStats(ctx, "benchmark-python")
	if err != nil {
		t.Fatalf("GetStats failed: %v", err)
	}
	if stats.Results != 2 || stats.Runs != 1 || stats.Benchmarks != 1 {
		t.Errorf("stats = %+v, want 2 results, 1 run, 1 benchmark", stats)
	}
}

func TestOpen_ReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bench.db")
	ctx := context.Background()

	db, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := db.UpsertCommit(ctx, &Commit{IndexName: "c", SHA: "abc", Timestamp: time.Now()}); err != nil {
		t.Fatalf("UpsertCommit failed: %v", err)
	}
	db.Close()

	db, err = OpenSQLite(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer db.Close()

	commits, err := db.ListCommits(ctx, "c")
	if err != nil {
		t.Fatalf("ListCommits failed: %v", err)
	}
	if len(commits) != 1 {
		t.Errorf("got %d commits after reopen, want 1", len(commits))
	}
}

func TestRebind(t *testing.T) {
	tests := []struct {
		driver string
		want   string
	}{
		{DriverSQLite, "SELECT ? WHERE a = ?"},
		{DriverPostgres, "SELECT $1 WHERE a = $2"},
	}

	for _, tt := range tests {
		t.Run(tt.driver, func(t *testing.T) {
			db := &DB{driver: tt.driver}
			if got := db.rebind("SELECT ? WHERE a = ?"); got != tt.want {
				t.Errorf("rebind() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestListCommits_OrdersAcrossOffsets(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	tokyo := time.FixedZone("JST", 9*60*60)

	// 10:00+09:00 is 01:00Z, four hours before the UTC commit
	older := &Commit{IndexName: "c", SHA: "older", Timestamp: time.Date(2024, 1, 1, 10, 0, 0, 0, tokyo)}
	newer := &Commit{IndexName: "c", SHA: "newer", Timestamp: time.Date(2024, 1, 1, 5, 0, 0, 0, time.UTC)}
	for _, c := range []*Commit{newer, older} {
		if err := db.UpsertCommit(ctx, c); err != nil {
			t.Fatalf("UpsertCommit failed: %v", err)
		}
	}

	commits, err := db.ListCommits(ctx, "c")
	if err != nil {
		t.Fatalf("ListCommits failed: %v", err)
	}
	if len(commits) != 2 {
		t.Fatalf("got %d commits, want 2", len(commits))
	}
	if commits[0].SHA != "older" || commits[1].SHA != "newer" {
		t.Errorf("order = %s, %s, want older, newer", commits[0].SHA, commits[1].SHA)
	}
	if !commits[0].Timestamp.Equal(older.Timestamp) {
		t.Errorf("Timestamp = %v, want %v", commits[0].Timestamp, older.Timestamp)
	}
}

func TestGlobToLike(t *testing.T) {
	tests := []struct {
		glob string
		want string
	}{
		{"", ""},
		{"*spans*", "%spans%"},
		{"bench_?", `bench\__`},
		{"100%", `100\%`},
		{`a\b`, `a\\b`},
	}

	for _, tt := range tests {
		t.Run(tt.glob, func(t *testing.T) {
			if got := GlobToLike(tt.glob); got != tt.want {
				t.Errorf("GlobToLike(%q) = %q, want %q", tt.glob, got, tt.want)
			}
		})
	}
}

func TestListResults_GlobMatchesUnderscoreLiterally(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	for _, name := range []string{"benchmarks.bm_transactions.time", "benchmarks.bmXtransactions.time"} {
		r := &Result{IndexName: "b", CommitSHA: "abc", Timestamp: time.Now(), Benchmark: name}
		if err := db.InsertResult(ctx, r); err != nil {
			t.Fatalf("InsertResult failed: %v", err)
		}
	}

	results, err := db.ListResults(ctx, "b", "", GlobToLike("*bm_transactions*"))
	if err != nil {
		t.Fatalf("ListResults failed: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	if results[0].Benchmark != "benchmarks.bm_transactions.time" {
		t.Errorf("Benchmark = %q, want benchmarks.bm_transactions.time", results[0].Benchmark)
	}
}
