package api

import (
	"strings"
	"testing"
)

func TestValidateJobTransition(t *testing.T) {
	tests := []struct {
		name    string
		from    JobStatus
		to      JobStatus
		wantErr bool
	}{
		{name: "initial to queued", from: "", to: JobStatusInQueue},
		{name: "initial to in_progress (sync)", from: "", to: JobStatusInProgress},
		{name: "queued to in_progress", from: JobStatusInQueue, to: JobStatusInProgress},
		{name: "in_progress to completed", from: JobStatusInProgress, to: JobStatusCompleted},
		{name: "in_progress to failed", from: JobStatusInProgress, to: JobStatusFailed},
		{name: "in_progress to timed_out", from: JobStatusInProgress, to: JobStatusTimedOut},

		{name: "completed to in_progress", from: JobStatusCompleted, to: JobStatusInProgress, wantErr: true},
		{name: "failed to completed", from: JobStatusFailed, to: JobStatusCompleted, wantErr: true},
		{name: "timed_out to in_progress (no retry)", from: JobStatusTimedOut, to: JobStatusInProgress, wantErr: true},
		{name: "queued to completed (skip in_progress)", from: JobStatusInQueue, to: JobStatusCompleted, wantErr: true},
		{name: "in_progress to queued (backward)", from: JobStatusInProgress, to: JobStatusInQueue, wantErr: true},
		{name: "initial to completed", from: "", to: JobStatusCompleted, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateJobTransition(tt.from, tt.to)
			if tt.wantErr {
				if err == nil {
					t.Errorf("ValidateJobTransition(%q, %q) = nil, want error", tt.from, tt.to)
				} else if !strings.Contains(err.Message, "invalid transition") {
					t.Errorf("error message %q does not contain \"invalid transition\"", err.Message)
				}
				return
			}
			if err != nil {
				t.Errorf("ValidateJobTransition(%q, %q) = %v, want nil", tt.from, tt.to, err)
			}
		})
	}
}

func TestJobStatusTerminal(t *testing.T) {
	for _, s := range []JobStatus{JobStatusCompleted, JobStatusFailed, JobStatusTimedOut} {
		if !s.Terminal() {
			t.Errorf("%s.Terminal() = false, want true", s)
		}
	}
	for _, s := range []JobStatus{JobStatusInQueue, JobStatusInProgress, ""} {
		if s.Terminal() {
			t.Errorf("%q.Terminal() = true, want false", s)
		}
	}
}
