// Package statuscache mirrors job status transitions into Redis so
// sidecar consumers can watch conversions without polling the HTTP API.
// Writes are best-effort; the job store stays authoritative.
package statuscache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"converter/models"
)

type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

func New(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

func key(jobID string) string {
	return fmt.Sprintf("conversion:status:%s", jobID)
}

// Publish writes the job's current state to its status hash.
func (c *Cache) Publish(ctx context.Context, job *models.ConversionJob) error {
	fields := map[string]interface{}{
		"status":     string(job.Status),
		"updated_at": time.Now().UTC().Format(time.RFC3339),
	}
	if job.ErrorMessage != "" {
		fields["error"] = job.ErrorMessage
	}
	if job.OutputRef != "" {
		fields["output_ref"] = job.OutputRef
	}

	k := key(job.ID)
	if err := c.client.HSet(ctx, k, fields).Err(); err != nil {
		return err
	}
	if c.ttl > 0 {
		return c.client.Expire(ctx, k, c.ttl).Err()
	}
	return nil
}

// Drop removes a job's status hash, used by the retention janitor.
func (c *Cache) Drop(ctx context.Context, jobID string) error {
	return c.client.Del(ctx, key(jobID)).Err()
}
