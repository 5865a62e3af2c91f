package worker

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"videopipeline/internal/job"
	"videopipeline/internal/statuscache"
	"videopipeline/internal/storage"
	"videopipeline/internal/store"
	"videopipeline/internal/transcode"
)

const renditionContentType = "video/mp4"

// Worker is one poll-claim-process loop. It handles a single job at a
// time; running more worker processes against the same store is how the
// pipeline scales out, with the store's atomic claim keeping them apart.
type Worker struct {
	ID           string
	Store        store.JobStore
	Storage      storage.Gateway
	Encoder      transcode.Encoder
	Cache        *statuscache.Cache
	Logger       *slog.Logger
	TempDir      string
	PollInterval time.Duration
}

// Run polls until ctx is cancelled. Job failures never stop the loop.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		j, err := w.Store.ClaimNext(ctx, w.ID)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			w.Logger.Error("claim failed", "worker_id", w.ID, "error", err)
			w.sleep(ctx)
			continue
		}
		if j == nil {
			w.sleep(ctx)
			continue
		}

		w.Logger.Info("claimed job", "job_id", j.ID, "worker_id", w.ID, "master_key", j.MasterKey)
		w.Cache.MirrorClaim(ctx, j.ID, w.ID)

		if err := w.Process(ctx, j); err != nil {
			w.Logger.Error("job failed", "job_id", j.ID, "error", err)
			w.fail(j.ID, err)
			continue
		}

		w.Logger.Info("job completed", "job_id", j.ID)
		w.Cache.MirrorStatus(ctx, j.ID, job.StatusActive, "")
	}
}

// Process runs one claimed job through download, encode, upload and
// finalization. The scratch directory is removed on every exit path.
func (w *Worker) Process(ctx context.Context, j *job.Job) (err error) {
	scratch, err := w.makeScratch(j.ID)
	if err != nil {
		return err
	}
	defer os.RemoveAll(scratch)

	masterPath := filepath.Join(scratch, "master"+MasterExt(j.MasterKey))
	if err := w.Storage.DownloadTo(ctx, j.MasterKey, masterPath); err != nil {
		return fmt.Errorf("download master: %w", err)
	}

	// All renditions are encoded before anything is uploaded, so a failed
	// encode publishes nothing and a retry starts from scratch.
	heights := j.RequiredHeights()
	localPaths := make(map[string]string, len(heights))
	for _, height := range heights {
		localPath, err := w.Encoder.Encode(ctx, masterPath, height)
		if err != nil {
			return err
		}
		localPaths[job.LabelForHeight(height)] = localPath
	}

	outputs := job.RenditionSet{}
	for _, height := range heights {
		label := job.LabelForHeight(height)
		key := job.RenditionKey(j.ID, label)
		if err := w.Storage.PutFile(ctx, key, localPaths[label], renditionContentType); err != nil {
			return fmt.Errorf("upload %s: %w", label, err)
		}
		outputs[label] = job.RenditionOutput{Key: key, URL: w.Storage.PublicURL(key)}
	}

	if err := w.Store.MarkActive(ctx, j.ID, outputs); err != nil {
		return fmt.Errorf("finalize: %w", err)
	}
	return nil
}

// fail records the terminal state on a detached context so a shutdown
// mid-job still leaves the row in a retryable state.
func (w *Worker) fail(jobID string, cause error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	reason := cause.Error()
	if err := w.Store.MarkFailed(ctx, jobID, reason); err != nil {
		w.Logger.Error("failed to mark job failed", "job_id", jobID, "error", err)
	}
	w.Cache.MirrorStatus(ctx, jobID, job.StatusFailed, store.TruncateError(reason))
}

func (w *Worker) makeScratch(jobID string) (string, error) {
	dir := filepath.Join(w.TempDir, fmt.Sprintf("%s-%d", jobID, time.Now().UnixNano()))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create scratch dir: %w", err)
	}
	return dir, nil
}

func (w *Worker) sleep(ctx context.Context) {
	t := time.NewTimer(w.PollInterval)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// MasterExt guesses the container extension from the master key. Anything
// unrecognized is treated as an mp4 container.
func MasterExt(masterKey string) string {
	switch ext := strings.ToLower(filepath.Ext(masterKey)); ext {
	case ".mp4", ".mov", ".m4v":
		return ext
	default:
		return ".mp4"
	}
}
