// Package cancel implements the cooperative cancellation channel (C5):
// a polled check against the job-status record, fail-open on KV errors.
package cancel

import (
	"context"
	"fmt"

	"github.com/bobmcallan/docworker/internal/queuestore"
	"github.com/bobmcallan/docworker/internal/retry"
)

// JobCancelled is the distinguished failure raised by EnsureNotCancelled.
// The worker loop recognizes it via errors.As and maps it to the
// CANCELLED state rather than consulting the error taxonomy.
type JobCancelled struct {
	JobID string
}

func (e *JobCancelled) Error() string {
	return fmt.Sprintf("job %s was cancelled", e.JobID)
}

// Checker polls IsCancelled against a queuestore.Store.
type Checker struct {
	store queuestore.Store
}

// New constructs a Checker.
func New(store queuestore.Store) *Checker {
	return &Checker{store: store}
}

// IsCancelled reads the status record and returns true iff
// cancel_requested == "1" or status == CANCELLED. Transient KV failures
// during the check fail open to false — they must never cancel the job.
// The KV read uses the KV retry policy.
func (c *Checker) IsCancelled(ctx context.Context, jobID string) bool {
	fields, err := retry.DoValue(ctx, retry.KVPolicy, func(ctx context.Context) (map[string]string, error) {
		return c.store.HGetAll(ctx, queuestore.StatusKey(jobID))
	})
	if err != nil {
		return false
	}
	if fields["cancel_requested"] == "1" {
		return true
	}
	return fields["status"] == "CANCELLED"
}

// EnsureNotCancelled is called at every pipeline suspension point (before
// each page, before each chunk, before each long-running infra call). A
// positive cancellation check raises JobCancelled.
func (c *Checker) EnsureNotCancelled(ctx context.Context, jobID string) error {
	if c.IsCancelled(ctx, jobID) {
		return &JobCancelled{JobID: jobID}
	}
	return nil
}
