package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/rhuss/podexec/pkg/api"
)

// Sentinel errors for job store operations.
var (
	// ErrNotFound is returned when a job does not exist or belongs to
	// another tenant.
	ErrNotFound = errors.New("job not found")

	// ErrConflict is returned when a job with the given ID already exists.
	ErrConflict = errors.New("job already exists")

	// ErrInvalidTransition is returned when an update would move a job to
	// a status its current status does not allow.
	ErrInvalidTransition = errors.New("invalid job status transition")
)

// CheckTransition wraps api.ValidateJobTransition for store adapters.
func CheckTransition(from, to api.JobStatus) error {
	if apiErr := api.ValidateJobTransition(from, to); apiErr != nil {
		return fmt.Errorf("%w: %s", ErrInvalidTransition, apiErr.Message)
	}
	return nil
}

type tenantKey struct{}

// SetTenant returns a context carrying tenantID. Stores record it on
// every saved job and only return jobs of the same tenant.
func SetTenant(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, tenantKey{}, tenantID)
}

// GetTenant returns the tenant carried by ctx, or "" in single-tenant mode.
func GetTenant(ctx context.Context) string {
	tenantID, _ := ctx.Value(tenantKey{}).(string)
	return tenantID
}

// Visible reports whether a job owned by owner may be read under ctx. An
// empty tenant in ctx sees every job.
func Visible(ctx context.Context, owner string) bool {
	tenantID := GetTenant(ctx)
	return tenantID == "" || tenantID == owner
}
