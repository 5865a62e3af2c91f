package statuscache

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"videopipeline/internal/job"
)

// Cache mirrors job state transitions into Redis hashes for ops tooling.
// Every write is best-effort: failures are logged and never affect the
// job outcome. A nil *Cache is valid and does nothing.
type Cache struct {
	rdb    *redis.Client
	logger *slog.Logger
}

func New(addr, password string, db int, logger *slog.Logger) *Cache {
	if addr == "" {
		return nil
	}
	return &Cache{
		rdb: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
			DB:       db,
		}),
		logger: logger,
	}
}

func (c *Cache) Ping(ctx context.Context) error {
	if c == nil {
		return nil
	}
	return c.rdb.Ping(ctx).Err()
}

// MirrorClaim records which worker picked the job up.
func (c *Cache) MirrorClaim(ctx context.Context, jobID, workerID string) {
	c.set(ctx, jobID, map[string]interface{}{
		"status": string(job.StatusProcessing),
		"worker": workerID,
	})
}

// MirrorStatus records a terminal transition, with the failure reason when
// there is one.
func (c *Cache) MirrorStatus(ctx context.Context, jobID string, status job.Status, errMsg string) {
	c.set(ctx, jobID, map[string]interface{}{
		"status": string(status),
		"error":  errMsg,
	})
}

func (c *Cache) set(ctx context.Context, jobID string, fields map[string]interface{}) {
	if c == nil {
		return
	}
	fields["updated_at"] = time.Now().UTC().Format(time.RFC3339Nano)
	if err := c.rdb.HSet(ctx, cacheKey(jobID), fields).Err(); err != nil {
		c.logger.Warn("status cache write failed", "job_id", jobID, "error", err)
	}
}

func cacheKey(jobID string) string {
	return fmt.Sprintf("videojob:%s", jobID)
}
