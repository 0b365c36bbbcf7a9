package db

import (
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/tim-hub/reinstall-magisk-on-lineageos/pkg/errors"
	_ "modernc.org/sqlite"
)

// Repository provides database operations for the run journal
type Repository struct {
	db *sql.DB
}

// NewRepository opens the journal database and ensures the schema exists
func NewRepository(dbPath string) (*Repository, error) {
	slog.Info("journal_init", "db_path", dbPath)

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		slog.Error("journal_open_failed", "db_path", dbPath, "error", err)
		return nil, errors.Wrap(err, "failed to open journal database")
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		slog.Error("journal_schema_failed", "db_path", dbPath, "error", err)
		return nil, errors.Wrap(err, "failed to create schema")
	}

	return &Repository{db: db}, nil
}

// Close closes the database connection
func (r *Repository) Close() error {
	return r.db.Close()
}

// Create inserts a new run record
func (r *Repository) Create(run *Run) error {
	slog.Info("journal_create_run", "serial", run.Serial, "version", run.Version, "stage", run.Stage)

	query := `
		INSERT INTO runs (serial, codename, version, source, archive_path, build_url,
		                  reference_digest, computed_digest, format, stage, status, error_message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	result, err := r.db.Exec(query,
		run.Serial, run.Codename, run.Version, run.Source, run.ArchivePath, run.BuildURL,
		run.ReferenceDigest, run.ComputedDigest, run.Format, run.Stage, run.Status, run.ErrorMessage)
	if err != nil {
		slog.Error("journal_insert_failed", "serial", run.Serial, "error", err)
		return errors.Wrap(err, "failed to insert run")
	}

	id, err := result.LastInsertId()
	if err != nil {
		return errors.Wrap(err, "failed to get last insert id")
	}
	run.ID = id

	return nil
}

// Update rewrites an existing run record
func (r *Repository) Update(run *Run) error {
	query := `
		UPDATE runs
		SET source = ?, archive_path = ?, build_url = ?, reference_digest = ?,
		    computed_digest = ?, format = ?, stage = ?, status = ?, error_message = ?,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`
	result, err := r.db.Exec(query,
		run.Source, run.ArchivePath, run.BuildURL, run.ReferenceDigest,
		run.ComputedDigest, run.Format, run.Stage, run.Status, run.ErrorMessage, run.ID)
	if err != nil {
		slog.Error("journal_update_failed", "run_id", run.ID, "error", err)
		return errors.Wrap(err, "failed to update run")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to get rows affected")
	}
	if rows == 0 {
		return fmt.Errorf("run not found: id=%d", run.ID)
	}

	return nil
}

// UpdateStage records the stage a run has reached
func (r *Repository) UpdateStage(id int64, stage string) error {
	slog.Info("journal_update_stage", "run_id", id, "stage", stage)

	query := `UPDATE runs SET stage = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`
	if _, err := r.db.Exec(query, stage, id); err != nil {
		slog.Error("journal_stage_update_failed", "run_id", id, "stage", stage, "error", err)
		return errors.Wrap(err, "failed to update stage")
	}
	return nil
}

// Finish closes a run with its final status and error message
func (r *Repository) Finish(id int64, status, errorMessage string) error {
	slog.Info("journal_finish_run", "run_id", id, "status", status)

	query := `UPDATE runs SET status = ?, error_message = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`
	if _, err := r.db.Exec(query, status, errorMessage, id); err != nil {
		slog.Error("journal_finish_failed", "run_id", id, "status", status, "error", err)
		return errors.Wrap(err, "failed to finish run")
	}
	return nil
}

// GetByID retrieves one run; nil when absent
func (r *Repository) GetByID(id int64) (*Run, error) {
	query := `
		SELECT id, serial, codename, version, source, archive_path, build_url,
		       reference_digest, computed_digest, format, stage, status, error_message,
		       created_at, updated_at
		FROM runs WHERE id = ?
	`
	run, err := scanRun(r.db.QueryRow(query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("journal_query_failed", "run_id", id, "error", err)
		return nil, errors.Wrap(err, "failed to query run")
	}
	return run, nil
}

// List retrieves all runs, newest first
func (r *Repository) List() ([]*Run, error) {
	query := `
		SELECT id, serial, codename, version, source, archive_path, build_url,
		       reference_digest, computed_digest, format, stage, status, error_message,
		       created_at, updated_at
		FROM runs ORDER BY created_at DESC, id DESC
	`
	rows, err := r.db.Query(query)
	if err != nil {
		slog.Error("journal_list_failed", "error", err)
		return nil, errors.Wrap(err, "failed to list runs")
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan row")
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "rows error")
	}

	return runs, nil
}

// Purge deletes all journal rows
func (r *Repository) Purge() (int64, error) {
	result, err := r.db.Exec(`DELETE FROM runs`)
	if err != nil {
		slog.Error("journal_purge_failed", "error", err)
		return 0, errors.Wrap(err, "failed to purge runs")
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "failed to get rows affected")
	}

	slog.Info("journal_purged", "deleted", deleted)
	return deleted, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Run, error) {
	var run Run
	var source, archivePath, buildURL, refDigest, compDigest, format, errorMessage sql.NullString

	err := row.Scan(
		&run.ID, &run.Serial, &run.Codename, &run.Version,
		&source, &archivePath, &buildURL, &refDigest, &compDigest, &format,
		&run.Stage, &run.Status, &errorMessage,
		&run.CreatedAt, &run.UpdatedAt)
	if err != nil {
		return nil, err
	}

	run.Source = source.String
	run.ArchivePath = archivePath.String
	run.BuildURL = buildURL.String
	run.ReferenceDigest = refDigest.String
	run.ComputedDigest = compDigest.String
	run.Format = format.String
	run.ErrorMessage = errorMessage.String
	return &run, nil
}
