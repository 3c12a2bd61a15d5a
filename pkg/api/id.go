package api

import (
	"strings"

	"github.com/google/uuid"
)

const syncJobPrefix = "sync-"

// NewJobID generates a job identifier. Synchronous jobs carry the "sync-"
// prefix so they can be told apart from queued jobs in logs and storage.
func NewJobID(sync bool) string {
	id := uuid.NewString()
	if sync {
		return syncJobPrefix + id
	}
	return id
}

// ValidateJobID checks whether id was produced by NewJobID.
func ValidateJobID(id string) bool {
	id = strings.TrimPrefix(id, syncJobPrefix)
	_, err := uuid.Parse(id)
	return err == nil && len(id) == 36
}

// IsSyncJobID reports whether id belongs to a synchronous job.
func IsSyncJobID(id string) bool {
	return strings.HasPrefix(id, syncJobPrefix) && ValidateJobID(id)
}
