package database

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// Supported database/sql drivers
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

// timeLayout is a fixed-width UTC form so that text columns sort
// chronologically whatever offset the value was recorded in.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// parseTime also accepts the offset-bearing RFC 3339 text of older rows
func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

// GlobToLike converts a shell glob to a LIKE pattern for ListResults.
// LIKE metacharacters in the glob match literally.
func GlobToLike(glob string) string {
	if glob == "" {
		return ""
	}
	return strings.NewReplacer(
		`\`, `\\`,
		"%", `\%`,
		"_", `\_`,
		"*", "%",
		"?", "_",
	).Replace(glob)
}

// DB wraps a SQLite or PostgreSQL connection holding benchmark results
type DB struct {
	conn   *sql.DB
	driver string
}

// Open opens or creates the database and initializes the schema
func Open(driver, dsn string) (*DB, error) {
	conn, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	schema := postgresSchema
	if driver == DriverSQLite {
		schema = sqliteSchema

		// WAL allows readers (bench-query) while a run is writing
		if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}

		// If database is locked, retry for up to 5 seconds before failing
		if _, err := conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to set busy timeout: %w", err)
		}
	}

	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	db := &DB{conn: conn, driver: driver}
	if err := db.runMigrations(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return db, nil
}

// OpenSQLite opens the SQLite database file at path
func OpenSQLite(path string) (*DB, error) {
	return Open(DriverSQLite, path)
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// Driver returns the database/sql driver name
func (db *DB) Driver() string {
	return db.driver
}

// rebind rewrites ? placeholders to $N for PostgreSQL
func (db *DB) rebind(query string) string {
	if db.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// InsertResult inserts a new benchmark result row
func (db *DB) InsertResult(ctx context.Context, r *Result) error {
	var startDate *string
	if r.StartDate != nil {
		s := formatTime(*r.StartDate)
		startDate = &s
	}

	query := `
		INSERT INTO benchmark_results (index_name, run_id, commit_sha, timestamp, benchmark, benchmark_class,
			benchmark_short_name, runs_calibration, runs_with_values, runs_total, warmups_per_run, values_per_run,
			median, median_abs_dev, mean, mean_std_dev, percentiles, meta, start_date)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	args := []interface{}{
		r.IndexName, r.RunID, r.CommitSHA, formatTime(r.Timestamp),
		r.Benchmark, r.BenchmarkClass, r.BenchmarkShortName,
		r.RunsCalibration, r.RunsWithValues, r.RunsTotal,
		r.WarmupsPerRun, r.ValuesPerRun,
		r.Median, r.MedianAbsDev, r.Mean, r.MeanStdDev,
		r.Percentiles, r.Meta, startDate,
	}

	if db.driver == DriverPostgres {
		err := db.conn.QueryRowContext(ctx, db.rebind(query)+" RETURNING id", args...).Scan(&r.ID)
		if err != nil {
			return fmt.Errorf("failed to insert result: %w", err)
		}
		return nil
	}

	result, err := db.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to insert result: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	r.ID = id
	return nil
}

// UpsertCommit creates the commit row or overwrites its fields
func (db *DB) UpsertCommit(ctx context.Context, c *Commit) error {
	c.UpdatedAt = time.Now().UTC()
	_, err := db.conn.ExecContext(ctx, db.rebind(`
		INSERT INTO commits (index_name, sha, timestamp, shortref, title, body, author, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (index_name, sha) DO UPDATE SET
			timestamp = excluded.timestamp,
			shortref = excluded.shortref,
			title = excluded.title,
			body = excluded.body,
			author = excluded.author,
			updated_at = excluded.updated_at`),
		c.IndexName, c.SHA, formatTime(c.Timestamp), c.ShortRef,
		c.Title, c.Body, c.Author, formatTime(c.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert commit: %w", err)
	}
	return nil
}

// GetCommit retrieves a commit summary by sha
func (db *DB) GetCommit(ctx context.Context, index, sha string) (*Commit, error) {
	var c Commit
	var timestamp, updatedAt string

	err := db.conn.QueryRowContext(ctx, db.rebind(`
		SELECT index_name, sha, timestamp, shortref, title, body, author, updated_at
		FROM commits WHERE index_name = ? AND sha = ?`), index, sha,
	).Scan(&c.IndexName, &c.SHA, &timestamp, &c.ShortRef, &c.Title, &c.Body, &c.Author, &updatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to get commit: %w", err)
	}

	c.Timestamp = parseTime(timestamp)
	c.UpdatedAt = parseTime(updatedAt)
	return &c, nil
}

// ListCommits lists the commit summaries of index, oldest commit first
func (db *DB) ListCommits(ctx context.Context, index string) ([]*Commit, error) {
	rows, err := db.conn.QueryContext(ctx, db.rebind(`
		SELECT index_name, sha, timestamp, shortref, title, body, author, updated_at
		FROM commits WHERE index_name = ? ORDER BY timestamp, sha`), index)
	if err != nil {
		return nil, fmt.Errorf("failed to list commits: %w", err)
	}
	defer rows.Close()

	var commits []*Commit
	for rows.Next() {
		var c Commit
		var timestamp, updatedAt string
		if err := rows.Scan(&c.IndexName, &c.SHA, &timestamp, &c.ShortRef, &c.Title, &c.Body, &c.Author, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan commit: %w", err)
		}
		c.Timestamp = parseTime(timestamp)
		c.UpdatedAt = parseTime(updatedAt)
		commits = append(commits, &c)
	}

	return commits, rows.Err()
}

// ListResults lists the results of index, optionally filtered by commit sha
// (prefix match) and benchmark name (LIKE pattern with \ as escape, see
// GlobToLike). Empty filters match all.
func (db *DB) ListResults(ctx context.Context, index, shaPrefix, benchmarkLike string) ([]*Result, error) {
	query := `
		SELECT id, index_name, run_id, commit_sha, timestamp, benchmark, benchmark_class, benchmark_short_name,
			runs_calibration, runs_with_values, runs_total, warmups_per_run, values_per_run,
			median, median_abs_dev, mean, mean_std_dev, percentiles, meta, start_date
		FROM benchmark_results WHERE index_name = ?`
	args := []interface{}{index}

	if shaPrefix != "" {
		query += ` AND commit_sha LIKE ? ESCAPE '\'`
		args = append(args, GlobToLike(shaPrefix)+"%")
	}
	if benchmarkLike != "" {
		query += ` AND benchmark LIKE ? ESCAPE '\'`
		args = append(args, benchmarkLike)
	}
	query += " ORDER BY timestamp, benchmark, id"

	rows, err := db.conn.QueryContext(ctx, db.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list results: %w", err)
	}
	defer rows.Close()

	var results []*Result
	for rows.Next() {
		var r Result
		var timestamp string
		var startDate *string

		err := rows.Scan(
			&r.ID, &r.IndexName, &r.RunID, &r.CommitSHA, &timestamp,
			&r.Benchmark, &r.BenchmarkClass, &r.BenchmarkShortName,
			&r.RunsCalibration, &r.RunsWithValues, &r.RunsTotal,
			&r.WarmupsPerRun, &r.ValuesPerRun,
			&r.Median, &r.MedianAbsDev, &r.Mean, &r.MeanStdDev,
			&r.Percentiles, &r.Meta, &startDate,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}

		r.Timestamp = parseTime(timestamp)
		if startDate != nil {
			t := parseTime(*startDate)
			r.StartDate = &t
		}
		results = append(results, &r)
	}

	return results, rows.Err()
}

// GetStats counts commits, results, runs and distinct benchmarks in index
func (db *DB) GetStats(ctx context.Context, index string) (*Stats, error) {
	var s Stats

	err := db.conn.QueryRowContext(ctx, db.rebind(`SELECT COUNT(*) FROM commits WHERE index_name = ?`), index).Scan(&s.Commits)
	if err != nil {
		return nil, fmt.Errorf("failed to count commits: %w", err)
	}

	err = db.conn.QueryRowContext(ctx, db.rebind(`
		SELECT COUNT(*), COUNT(DISTINCT run_id), COUNT(DISTINCT benchmark)
		FROM benchmark_results WHERE index_name = ?`), index,
	).Scan(&s.Results, &s.Runs, &s.Benchmarks)
	if err != nil {
		return nil, fmt.Errorf("failed to count results: %w", err)
	}

	return &s, nil
}

// runMigrations applies schema migrations for databases created before run_id existed
func (db *DB) runMigrations() error {
	var exists bool
	var err error

	if db.driver == DriverSQLite {
		err = db.conn.QueryRow(`
			SELECT COUNT(*) > 0
			FROM pragma_table_info('benchmark_results')
			WHERE name = 'run_id'
		`).Scan(&exists)
	} else {
		err = db.conn.QueryRow(`
			SELECT COUNT(*) > 0
			FROM information_schema.columns
			WHERE table_name = 'benchmark_results' AND column_name = 'run_id'
		`).Scan(&exists)
	}
	if err != nil {
		return fmt.Errorf("failed to check for run_id column: %w", err)
	}

	if !exists {
		_, err := db.conn.Exec(`ALTER TABLE benchmark_results ADD COLUMN run_id TEXT NOT NULL DEFAULT ''`)
		if err != nil {
			return fmt.Errorf("failed to add run_id column: %w", err)
		}
	}

	return nil
}
