package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"converter/errs"
	"converter/models"
)

// PostgresStore keeps the job table in Postgres so job history survives
// restarts. Enabled when DATABASE_URL (or DB_HOST) is configured.
type PostgresStore struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS conversion_jobs (
	id             TEXT PRIMARY KEY,
	input_path     TEXT NOT NULL,
	source_kind    TEXT NOT NULL,
	source_format  TEXT NOT NULL,
	target_kind    TEXT NOT NULL,
	target_format  TEXT NOT NULL,
	options        JSONB,
	status         TEXT NOT NULL,
	output_ref     TEXT NOT NULL DEFAULT '',
	error_kind     TEXT NOT NULL DEFAULT '',
	error_message  TEXT NOT NULL DEFAULT '',
	worker_id      INT NOT NULL DEFAULT 0,
	output_bytes   BIGINT NOT NULL DEFAULT 0,
	duration_ms    BIGINT NOT NULL DEFAULT 0,
	created_at     TIMESTAMPTZ NOT NULL,
	completed_at   TIMESTAMPTZ
)`

func NewPostgresStore(databaseURL string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to ensure schema: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

func (p *PostgresStore) Create(ctx context.Context, job *models.ConversionJob) error {
	optsJSON, _ := json.Marshal(job.Options)
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO conversion_jobs
			(id, input_path, source_kind, source_format, target_kind, target_format,
			 options, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		job.ID, job.InputPath, job.SourceKind, job.SourceFormat,
		job.TargetKind, job.TargetFormat, optsJSON, job.Status, job.CreatedAt,
	)
	return err
}

func (p *PostgresStore) Get(ctx context.Context, id string) (*models.ConversionJob, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT id, input_path, source_kind, source_format, target_kind, target_format,
		       options, status, output_ref, error_kind, error_message,
		       worker_id, output_bytes, duration_ms, created_at, completed_at
		FROM conversion_jobs WHERE id = $1`, id)
	return scanJob(row)
}

func (p *PostgresStore) Update(ctx context.Context, job *models.ConversionJob) error {
	// The status guard keeps terminal states immutable even if two writers
	// ever race.
	res, err := p.db.ExecContext(ctx, `
		UPDATE conversion_jobs
		SET status = $2, output_ref = $3, error_kind = $4, error_message = $5,
		    worker_id = $6, output_bytes = $7, duration_ms = $8, completed_at = $9
		WHERE id = $1 AND (status = $2 OR status NOT IN ('succeeded', 'failed'))`,
		job.ID, job.Status, job.OutputRef, job.ErrorKind, job.ErrorMessage,
		job.WorkerID, job.OutputBytes, job.DurationMS, job.CompletedAt,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		if _, getErr := p.Get(ctx, job.ID); errors.Is(getErr, errs.ErrNotFound) {
			return errs.ErrNotFound
		}
		return fmt.Errorf("illegal status transition to %s for job %s", job.Status, job.ID)
	}
	return nil
}

func (p *PostgresStore) Delete(ctx context.Context, id string) error {
	_, err := p.db.ExecContext(ctx, `DELETE FROM conversion_jobs WHERE id = $1`, id)
	return err
}

func (p *PostgresStore) ListTerminalBefore(ctx context.Context, cutoff time.Time) ([]*models.ConversionJob, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, input_path, source_kind, source_format, target_kind, target_format,
		       options, status, output_ref, error_kind, error_message,
		       worker_id, output_bytes, duration_ms, created_at, completed_at
		FROM conversion_jobs
		WHERE status IN ('succeeded', 'failed') AND completed_at < $1`, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.ConversionJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	return out, rows.Err()
}

func (p *PostgresStore) Close() error { return p.db.Close() }

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*models.ConversionJob, error) {
	var job models.ConversionJob
	var optsJSON []byte
	var completedAt sql.NullTime
	err := row.Scan(
		&job.ID, &job.InputPath, &job.SourceKind, &job.SourceFormat,
		&job.TargetKind, &job.TargetFormat, &optsJSON, &job.Status,
		&job.OutputRef, &job.ErrorKind, &job.ErrorMessage,
		&job.WorkerID, &job.OutputBytes, &job.DurationMS,
		&job.CreatedAt, &completedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if len(optsJSON) > 0 {
		_ = json.Unmarshal(optsJSON, &job.Options)
	}
	if completedAt.Valid {
		t := completedAt.Time
		job.CompletedAt = &t
	}
	return &job, nil
}
