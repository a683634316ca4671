package database

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS benchmark_results (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    index_name TEXT NOT NULL,
    run_id TEXT NOT NULL DEFAULT '',
    commit_sha TEXT NOT NULL,
    timestamp TEXT NOT NULL,
    benchmark TEXT NOT NULL,
    benchmark_class TEXT NOT NULL,
    benchmark_short_name TEXT NOT NULL,
    runs_calibration INTEGER NOT NULL,
    runs_with_values INTEGER NOT NULL,
    runs_total INTEGER NOT NULL,
    warmups_per_run REAL NOT NULL,
    values_per_run REAL NOT NULL,
    median REAL NOT NULL,
    median_abs_dev REAL NOT NULL,
    mean REAL NOT NULL,
    mean_std_dev REAL NOT NULL,
    percentiles TEXT NOT NULL,
    meta TEXT NOT NULL,
    start_date TEXT
);

CREATE TABLE IF NOT EXISTS commits (
    index_name TEXT NOT NULL,
    sha TEXT NOT NULL,
    timestamp TEXT NOT NULL,
    shortref TEXT NOT NULL,
    title TEXT NOT NULL,
    body TEXT NOT NULL,
    author TEXT NOT NULL,
    updated_at TEXT NOT NULL,
    PRIMARY KEY (index_name, sha)
);

CREATE INDEX IF NOT EXISTS idx_results_commit ON benchmark_results(commit_sha);
CREATE INDEX IF NOT EXISTS idx_results_benchmark ON benchmark_results(benchmark);
`

const postgresSchema = `
CREATE TABLE IF NOT EXISTS benchmark_results (
    id BIGSERIAL PRIMARY KEY,
    index_name TEXT NOT NULL,
    run_id TEXT NOT NULL DEFAULT '',
    commit_sha TEXT NOT NULL,
    timestamp TEXT NOT NULL,
    benchmark TEXT NOT NULL,
    benchmark_class TEXT NOT NULL,
    benchmark_short_name TEXT NOT NULL,
    runs_calibration INTEGER NOT NULL,
    runs_with_values INTEGER NOT NULL,
    runs_total INTEGER NOT NULL,
    warmups_per_run DOUBLE PRECISION NOT NULL,
    values_per_run DOUBLE PRECISION NOT NULL,
    median DOUBLE PRECISION NOT NULL,
    median_abs_dev DOUBLE PRECISION NOT NULL,
    mean DOUBLE PRECISION NOT NULL,
    mean_std_dev DOUBLE PRECISION NOT NULL,
    percentiles TEXT NOT NULL,
    meta TEXT NOT NULL,
    start_date TEXT
);

CREATE TABLE IF NOT EXISTS commits (
    index_name TEXT NOT NULL,
    sha TEXT NOT NULL,
    timestamp TEXT NOT NULL,
    shortref TEXT NOT NULL,
    title TEXT NOT NULL,
    body TEXT NOT NULL,
    author TEXT NOT NULL,
    updated_at TEXT NOT NULL,
    PRIMARY KEY (index_name, sha)
);

CREATE INDEX IF NOT EXISTS idx_results_commit ON benchmark_results(commit_sha);
CREATE INDEX IF NOT EXISTS idx_results_benchmark ON benchmark_results(benchmark);
`
