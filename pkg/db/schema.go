package db

// Schema defines the SQLite schema for the run journal: one row per
// pipeline run, metadata only. Patched images are never cached or reused
// across runs.
const Schema = `
CREATE TABLE IF NOT EXISTS runs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    serial TEXT NOT NULL,
    codename TEXT NOT NULL,
    version TEXT NOT NULL,
    source TEXT,
    archive_path TEXT,
    build_url TEXT,
    reference_digest TEXT,
    computed_digest TEXT,
    format TEXT,
    stage TEXT NOT NULL,
    status TEXT NOT NULL CHECK(status IN ('running', 'succeeded', 'failed')),
    error_message TEXT,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_runs_serial ON runs(serial);
CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at);
`

// Status constants
const (
	StatusRunning   = "running"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// Run represents one pipeline run record
type Run struct {
	ID              int64
	Serial          string
	Codename        string
	Version         string
	Source          string
	ArchivePath     string
	BuildURL        string
	ReferenceDigest string
	ComputedDigest  string
	Format          string
	Stage           string
	Status          string
	ErrorMessage    string
	CreatedAt       string
	UpdatedAt       string
}
