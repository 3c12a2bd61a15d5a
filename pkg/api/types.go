package api

import "time"

// JobStatus is the lifecycle state of a job on the executor host.
type JobStatus string

const (
	JobStatusInQueue    JobStatus = "IN_QUEUE"
	JobStatusInProgress JobStatus = "IN_PROGRESS"
	JobStatusCompleted  JobStatus = "COMPLETED"
	JobStatusFailed     JobStatus = "FAILED"
	JobStatusTimedOut   JobStatus = "TIMED_OUT"
)

// Terminal reports whether no further transitions are allowed from s.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusTimedOut:
		return true
	}
	return false
}

// JobInput is the payload of a job. A missing code field decodes to the
// empty program.
type JobInput struct {
	Code string `json:"code"`
}

// JobRequest is the envelope accepted by /run and /runsync.
type JobRequest struct {
	Input JobInput `json:"input"`
}

// Job is one execution as recorded by the executor host. Its JSON form is
// the runsync response body.
type Job struct {
	ID     string    `json:"id"`
	Status JobStatus `json:"status"`

	// DelayTime is the time spent queued, in milliseconds.
	DelayTime int64 `json:"delayTime"`

	// ExecutionTime is the time spent running, in milliseconds.
	ExecutionTime int64 `json:"executionTime"`

	Input  JobInput         `json:"-"`
	Output *ExecutionResult `json:"output,omitempty"`
	Error  string           `json:"error,omitempty"`

	CreatedAt  time.Time  `json:"-"`
	StartedAt  *time.Time `json:"-"`
	FinishedAt *time.Time `json:"-"`
}

// Finish records result on the job, derives the terminal status and the
// execution time, and returns the status the job moved to.
func (j *Job) Finish(result ExecutionResult, at time.Time) JobStatus {
	j.Output = &result
	j.FinishedAt = &at
	if j.StartedAt != nil {
		j.ExecutionTime = at.Sub(*j.StartedAt).Milliseconds()
	}

	switch result.Outcome {
	case OutcomeCompleted:
		j.Status = JobStatusCompleted
		j.Error = ""
	case OutcomeTimedOut:
		j.Status = JobStatusTimedOut
		j.Error = result.Error
	default:
		j.Status = JobStatusFailed
		j.Error = result.Error
	}
	return j.Status
}

// Start moves the job to IN_PROGRESS and records the queue delay.
func (j *Job) Start(at time.Time) {
	j.Status = JobStatusInProgress
	j.StartedAt = &at
	if !j.CreatedAt.IsZero() {
		j.DelayTime = at.Sub(j.CreatedAt).Milliseconds()
	}
}

// JobAccepted is returned by /run for a queued job.
type JobAccepted struct {
	ID     string    `json:"id"`
	Status JobStatus `json:"status"`
}

// JobCounts summarizes jobs by state for health reporting.
type JobCounts struct {
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
	InProgress int `json:"inProgress"`
	InQueue    int `json:"inQueue"`
}

// WorkerCounts summarizes execution slots for health reporting.
type WorkerCounts struct {
	Idle    int `json:"idle"`
	Running int `json:"running"`
}

// HealthResponse is the body of GET /health. Only Status is required by
// callers; the counters are informational.
type HealthResponse struct {
	Status  string        `json:"status,omitempty"`
	Jobs    *JobCounts    `json:"jobs,omitempty"`
	Workers *WorkerCounts `json:"workers,omitempty"`
}

// Clone returns a deep copy of j.
func (j *Job) Clone() *Job {
	c := *j
	if j.Output != nil {
		out := *j.Output
		c.Output = &out
	}
	if j.StartedAt != nil {
		t := *j.StartedAt
		c.StartedAt = &t
	}
	if j.FinishedAt != nil {
		t := *j.FinishedAt
		c.FinishedAt = &t
	}
	return &c
}
