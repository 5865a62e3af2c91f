package store

import (
	"context"
	"errors"

	"videopipeline/internal/job"
)

var (
	ErrNotFound     = errors.New("job not found")
	ErrNotRetryable = errors.New("job is not in a retryable state")
)

// JobStore is the shared job table. All cross-worker coordination goes
// through ClaimNext, which must be a single atomic read-modify-write so
// two concurrently polling workers can never both claim the same job.
type JobStore interface {
	Create(ctx context.Context, j *job.Job) error
	Get(ctx context.Context, jobID string) (*job.Job, error)

	// ClaimNext picks the oldest-updated claimable job, assigns it to
	// workerID and stamps processing_started_at. It returns (nil, nil)
	// when no job is claimable; that is the idle signal, not an error.
	ClaimNext(ctx context.Context, workerID string) (*job.Job, error)

	// MarkActive publishes all rendition locations at once, clears the
	// lock and the last error.
	MarkActive(ctx context.Context, jobID string, renditions job.RenditionSet) error

	MarkFailed(ctx context.Context, jobID string, reason string) error

	// Retry re-arms a failed job for another claim cycle. Returns
	// ErrNotRetryable when the job is not in the failed state.
	Retry(ctx context.Context, jobID string) error

	// ListAll returns every job, newest-created-first.
	ListAll(ctx context.Context) ([]*job.Job, error)
}

// TruncateError bounds persisted failure reasons.
func TruncateError(msg string) string {
	if len(msg) > 1024 {
		return msg[:1024]
	}
	return msg
}
