package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"videopipeline/internal/job"
)

const schema = `
CREATE TABLE IF NOT EXISTS video_jobs (
  job_id                VARCHAR(64)  NOT NULL,
  master_key            VARCHAR(512) NOT NULL,
  make_4k               TINYINT(1)   NOT NULL DEFAULT 0,
  status                ENUM('processing','active','failed','archived') NOT NULL DEFAULT 'processing',
  processing_lock       VARCHAR(128) NOT NULL DEFAULT '',
  processing_started_at DATETIME(6)  NULL,
  last_error            VARCHAR(1024) NOT NULL DEFAULT '',
  mp4_720_path          VARCHAR(512) NOT NULL DEFAULT '',
  mp4_720_url           VARCHAR(1024) NOT NULL DEFAULT '',
  mp4_1080_path         VARCHAR(512) NOT NULL DEFAULT '',
  mp4_1080_url          VARCHAR(1024) NOT NULL DEFAULT '',
  mp4_2160_path         VARCHAR(512) NOT NULL DEFAULT '',
  mp4_2160_url          VARCHAR(1024) NOT NULL DEFAULT '',
  created_at            DATETIME(6)  NOT NULL,
  updated_at            DATETIME(6)  NOT NULL,
  PRIMARY KEY (job_id),
  KEY idx_claimable (status, processing_lock, updated_at)
)
`

const jobColumns = `job_id, master_key, make_4k, status, processing_lock, processing_started_at,
  last_error, mp4_720_path, mp4_720_url, mp4_1080_path, mp4_1080_url,
  mp4_2160_path, mp4_2160_url, created_at, updated_at`

// MySQLStore implements JobStore on a shared MySQL table. Claiming runs
// inside a transaction with a FOR UPDATE row lock so the select and the
// assignment are one indivisible operation across workers and hosts.
type MySQLStore struct {
	db *sql.DB
}

func NewMySQLStore(db *sql.DB) *MySQLStore {
	return &MySQLStore{db: db}
}

func (s *MySQLStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create video_jobs table: %w", err)
	}
	return nil
}

func (s *MySQLStore) Create(ctx context.Context, j *job.Job) error {
	now := timestamp()
	if j.CreatedAt.IsZero() {
		j.CreatedAt = now
	}
	if j.UpdatedAt.IsZero() {
		j.UpdatedAt = now
	}
	if j.Status == "" {
		j.Status = job.StatusProcessing
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO video_jobs (job_id, master_key, make_4k, status, processing_lock, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		j.ID, j.MasterKey, j.Make4K, j.Status, j.ProcessingLock, j.CreatedAt, j.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert job %s: %w", j.ID, err)
	}
	return nil
}

func (s *MySQLStore) Get(ctx context.Context, jobID string) (*job.Job, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM video_jobs WHERE job_id = ?`, jobID)
	return scanJob(row)
}

func (s *MySQLStore) ClaimNext(ctx context.Context, workerID string) (*job.Job, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin claim tx: %w", err)
	}
	defer tx.Rollback()

	var jobID string
	err = tx.QueryRowContext(ctx, `
		SELECT job_id FROM video_jobs
		WHERE status = 'processing' AND processing_lock = ''
		ORDER BY updated_at
		LIMIT 1
		FOR UPDATE`,
	).Scan(&jobID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select claimable job: %w", err)
	}

	now := timestamp()
	_, err = tx.ExecContext(ctx, `
		UPDATE video_jobs
		SET processing_lock = ?, processing_started_at = ?, updated_at = ?
		WHERE job_id = ? AND processing_lock = ''`,
		workerID, now, now, jobID,
	)
	if err != nil {
		return nil, fmt.Errorf("assign job %s to %s: %w", jobID, workerID, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit claim of %s: %w", jobID, err)
	}

	return s.Get(ctx, jobID)
}

func (s *MySQLStore) MarkActive(ctx context.Context, jobID string, renditions job.RenditionSet) error {
	r720 := renditions[job.Label720]
	r1080 := renditions[job.Label1080]
	r2160 := renditions[job.Label2160]
	res, err := s.db.ExecContext(ctx, `
		UPDATE video_jobs
		SET status = 'active', processing_lock = '', last_error = '',
		    mp4_720_path = ?, mp4_720_url = ?,
		    mp4_1080_path = ?, mp4_1080_url = ?,
		    mp4_2160_path = ?, mp4_2160_url = ?,
		    updated_at = ?
		WHERE job_id = ?`,
		r720.Key, r720.URL, r1080.Key, r1080.URL, r2160.Key, r2160.URL,
		timestamp(), jobID,
	)
	if err != nil {
		return fmt.Errorf("mark job %s active: %w", jobID, err)
	}
	return requireRow(res)
}

func (s *MySQLStore) MarkFailed(ctx context.Context, jobID string, reason string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE video_jobs
		SET status = 'failed', last_error = ?, updated_at = ?
		WHERE job_id = ?`,
		TruncateError(reason), timestamp(), jobID,
	)
	if err != nil {
		return fmt.Errorf("mark job %s failed: %w", jobID, err)
	}
	return requireRow(res)
}

func (s *MySQLStore) Retry(ctx context.Context, jobID string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE video_jobs
		SET status = 'processing', processing_lock = '', updated_at = ?
		WHERE job_id = ? AND status = 'failed'`,
		timestamp(), jobID,
	)
	if err != nil {
		return fmt.Errorf("retry job %s: %w", jobID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		if _, err := s.Get(ctx, jobID); err != nil {
			return err
		}
		return ErrNotRetryable
	}
	return nil
}

func (s *MySQLStore) ListAll(ctx context.Context) ([]*job.Job, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+jobColumns+` FROM video_jobs ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*job.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*job.Job, error) {
	var j job.Job
	var statusStr string
	var startedAt sql.NullTime
	err := row.Scan(
		&j.ID, &j.MasterKey, &j.Make4K, &statusStr, &j.ProcessingLock, &startedAt,
		&j.LastError, &j.MP4720Path, &j.MP4720URL, &j.MP41080Path, &j.MP41080URL,
		&j.MP42160Path, &j.MP42160URL, &j.CreatedAt, &j.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan job row: %w", err)
	}
	j.Status = job.Status(statusStr)
	if !j.Status.Valid() {
		return nil, fmt.Errorf("job %s has unknown status %q", j.ID, statusStr)
	}
	if startedAt.Valid {
		t := startedAt.Time
		j.ProcessingStartedAt = &t
	}
	return &j, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func timestamp() time.Time {
	return time.Now().UTC().Round(time.Microsecond)
}
