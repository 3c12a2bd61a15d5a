package api

import "fmt"

// ValidateJobTransition checks whether a job status transition is valid.
// An empty "from" status represents a job that has not been recorded yet.
// Terminal states (completed, failed, timed out) do not allow outgoing
// transitions; there is no retry or resume.
func ValidateJobTransition(from, to JobStatus) *APIError {
	valid := map[JobStatus][]JobStatus{
		"":                  {JobStatusInQueue, JobStatusInProgress},
		JobStatusInQueue:    {JobStatusInProgress},
		JobStatusInProgress: {JobStatusCompleted, JobStatusFailed, JobStatusTimedOut},
	}

	allowed, exists := valid[from]
	if !exists {
		return NewInvalidRequestError("status",
			fmt.Sprintf("invalid transition from %s to %s", from, to))
	}

	for _, s := range allowed {
		if s == to {
			return nil
		}
	}

	return NewInvalidRequestError("status",
		fmt.Sprintf("invalid transition from %s to %s", from, to))
}
