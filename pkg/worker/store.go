package worker

import (
	"context"

	"github.com/rhuss/podexec/pkg/api"
)

// JobStore persists jobs. Implementations scope every operation by the
// tenant in the context (storage.GetTenant) and reject updates that break
// the job status state machine with storage.ErrInvalidTransition.
type JobStore interface {
	// SaveJob records a new job. Returns storage.ErrConflict if the ID exists.
	SaveJob(ctx context.Context, job *api.Job) error

	// UpdateJob replaces the stored job with the same ID.
	// Returns storage.ErrNotFound if it does not exist.
	UpdateJob(ctx context.Context, job *api.Job) error

	// GetJob returns a copy of the stored job or storage.ErrNotFound.
	GetJob(ctx context.Context, id string) (*api.Job, error)

	// CountJobs summarizes stored jobs by status.
	CountJobs(ctx context.Context) (api.JobCounts, error)

	HealthCheck(ctx context.Context) error
	Close() error
}
