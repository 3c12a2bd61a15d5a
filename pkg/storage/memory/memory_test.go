package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rhuss/podexec/pkg/api"
	"github.com/rhuss/podexec/pkg/storage"
)

func makeJob(id string, status api.JobStatus) *api.Job {
	return &api.Job{
		ID:        id,
		Status:    status,
		Input:     api.JobInput{Code: "print(1)"},
		CreatedAt: time.Now(),
	}
}

// finish moves a saved job through IN_PROGRESS to COMPLETED.
func finish(t *testing.T, s *Store, ctx context.Context, id string) {
	t.Helper()
	job, err := s.GetJob(ctx, id)
	if err != nil {
		t.Fatalf("GetJob(%s) failed: %v", id, err)
	}
	if job.Status == api.JobStatusInQueue {
		job.Start(time.Now())
		if err := s.UpdateJob(ctx, job); err != nil {
			t.Fatalf("UpdateJob(start) failed: %v", err)
		}
	}
	job.Finish(api.Completed("1\n", "", 0), time.Now())
	if err := s.UpdateJob(ctx, job); err != nil {
		t.Fatalf("UpdateJob(finish) failed: %v", err)
	}
}

func TestSaveAndGet(t *testing.T) {
	s := New(0)
	ctx := context.Background()

	if err := s.SaveJob(ctx, makeJob("job-1", api.JobStatusInQueue)); err != nil {
		t.Fatalf("SaveJob failed: %v", err)
	}

	got, err := s.GetJob(ctx, "job-1")
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	if got.ID != "job-1" || got.Status != api.JobStatusInQueue {
		t.Errorf("got %+v", got)
	}
	if got.Input.Code != "print(1)" {
		t.Errorf("Input.Code = %q, want print(1)", got.Input.Code)
	}
}

func TestGetNotFound(t *testing.T) {
	s := New(0)
	_, err := s.GetJob(context.Background(), "missing")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSaveConflict(t *testing.T) {
	s := New(0)
	ctx := context.Background()

	if err := s.SaveJob(ctx, makeJob("job-1", api.JobStatusInQueue)); err != nil {
		t.Fatalf("first SaveJob failed: %v", err)
	}
	err := s.SaveJob(ctx, makeJob("job-1", api.JobStatusInQueue))
	if !errors.Is(err, storage.ErrConflict) {
		t.Errorf("expected ErrConflict, got %v", err)
	}
}

func TestSaveRejectsTerminalStatus(t *testing.T) {
	s := New(0)
	err := s.SaveJob(context.Background(), makeJob("job-1", api.JobStatusCompleted))
	if !errors.Is(err, storage.ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestUpdateLifecycle(t *testing.T) {
	s := New(0)
	ctx := context.Background()

	if err := s.SaveJob(ctx, makeJob("job-1", api.JobStatusInQueue)); err != nil {
		t.Fatalf("SaveJob failed: %v", err)
	}
	finish(t, s, ctx, "job-1")

	got, err := s.GetJob(ctx, "job-1")
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	if got.Status != api.JobStatusCompleted {
		t.Errorf("Status = %s, want COMPLETED", got.Status)
	}
	if got.Output == nil || got.Output.Stdout != "1\n" {
		t.Errorf("Output = %+v", got.Output)
	}

	// Terminal jobs accept no further transitions.
	got.Status = api.JobStatusInProgress
	if err := s.UpdateJob(ctx, got); !errors.Is(err, storage.ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestUpdateNotFound(t *testing.T) {
	s := New(0)
	err := s.UpdateJob(context.Background(), makeJob("missing", api.JobStatusInProgress))
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestReturnsCopies(t *testing.T) {
	s := New(0)
	ctx := context.Background()

	job := makeJob("job-1", api.JobStatusInProgress)
	if err := s.SaveJob(ctx, job); err != nil {
		t.Fatalf("SaveJob failed: %v", err)
	}
	job.Status = api.JobStatusFailed

	got, _ := s.GetJob(ctx, "job-1")
	if got.Status != api.JobStatusInProgress {
		t.Errorf("stored job changed through caller pointer: %s", got.Status)
	}
	got.Status = api.JobStatusCompleted

	again, _ := s.GetJob(ctx, "job-1")
	if again.Status != api.JobStatusInProgress {
		t.Errorf("stored job changed through returned pointer: %s", again.Status)
	}
}

func TestTenantIsolation(t *testing.T) {
	s := New(0)
	ctxA := storage.SetTenant(context.Background(), "org-a")
	ctxB := storage.SetTenant(context.Background(), "org-b")

	if err := s.SaveJob(ctxA, makeJob("job-a", api.JobStatusInQueue)); err != nil {
		t.Fatalf("SaveJob failed: %v", err)
	}

	if _, err := s.GetJob(ctxB, "job-a"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("tenant B read tenant A's job: err = %v", err)
	}
	if _, err := s.GetJob(ctxA, "job-a"); err != nil {
		t.Errorf("tenant A cannot read own job: %v", err)
	}
	if _, err := s.GetJob(context.Background(), "job-a"); err != nil {
		t.Errorf("single-tenant context should see all jobs: %v", err)
	}

	job := makeJob("job-a", api.JobStatusInProgress)
	if err := s.UpdateJob(ctxB, job); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("tenant B updated tenant A's job: err = %v", err)
	}

	counts, _ := s.CountJobs(ctxB)
	if counts.InQueue != 0 {
		t.Errorf("tenant B counts = %+v, want none", counts)
	}
	counts, _ = s.CountJobs(ctxA)
	if counts.InQueue != 1 {
		t.Errorf("tenant A counts = %+v, want 1 queued", counts)
	}
}

func TestCountJobs(t *testing.T) {
	s := New(0)
	ctx := context.Background()

	s.SaveJob(ctx, makeJob("q", api.JobStatusInQueue))
	s.SaveJob(ctx, makeJob("p", api.JobStatusInProgress))
	s.SaveJob(ctx, makeJob("c", api.JobStatusInProgress))
	s.SaveJob(ctx, makeJob("t", api.JobStatusInProgress))
	finish(t, s, ctx, "c")

	timedOut, _ := s.GetJob(ctx, "t")
	timedOut.Finish(api.TimedOut(), time.Now())
	if err := s.UpdateJob(ctx, timedOut); err != nil {
		t.Fatalf("UpdateJob failed: %v", err)
	}

	counts, err := s.CountJobs(ctx)
	if err != nil {
		t.Fatalf("CountJobs failed: %v", err)
	}
	want := api.JobCounts{Completed: 1, Failed: 1, InProgress: 1, InQueue: 1}
	if counts != want {
		t.Errorf("counts = %+v, want %+v", counts, want)
	}
}

func TestLRUEvictsFinishedJobs(t *testing.T) {
	s := New(2)
	ctx := context.Background()

	s.SaveJob(ctx, makeJob("old", api.JobStatusInProgress))
	finish(t, s, ctx, "old")
	s.SaveJob(ctx, makeJob("running", api.JobStatusInProgress))
	s.SaveJob(ctx, makeJob("new", api.JobStatusInProgress))

	if _, err := s.GetJob(ctx, "old"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("finished job should be evicted, got %v", err)
	}
	if _, err := s.GetJob(ctx, "running"); err != nil {
		t.Errorf("running job must not be evicted: %v", err)
	}
	if s.Len() != 2 {
		t.Errorf("Len() = %d, want 2", s.Len())
	}
}

func TestLRUKeepsUnfinishedJobs(t *testing.T) {
	s := New(1)
	ctx := context.Background()

	s.SaveJob(ctx, makeJob("a", api.JobStatusInQueue))
	s.SaveJob(ctx, makeJob("b", api.JobStatusInQueue))

	if s.Len() != 2 {
		t.Errorf("Len() = %d, want 2 (no finished job to evict)", s.Len())
	}
}

func TestLRURecentlyReadSurvives(t *testing.T) {
	s := New(2)
	ctx := context.Background()

	for _, id := range []string{"a", "b"} {
		s.SaveJob(ctx, makeJob(id, api.JobStatusInProgress))
		finish(t, s, ctx, id)
	}
	// Touch "a" so "b" becomes least recently used.
	s.GetJob(ctx, "a")
	s.SaveJob(ctx, makeJob("c", api.JobStatusInProgress))

	if _, err := s.GetJob(ctx, "a"); err != nil {
		t.Errorf("recently read job evicted: %v", err)
	}
	if _, err := s.GetJob(ctx, "b"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("least recently used job should be evicted, got %v", err)
	}
}

func TestConcurrentAccess(t *testing.T) {
	s := New(50)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := fmt.Sprintf("job-%d", i)
			if err := s.SaveJob(ctx, makeJob(id, api.JobStatusInProgress)); err != nil {
				t.Errorf("SaveJob(%s) failed: %v", id, err)
				return
			}
			job, err := s.GetJob(ctx, id)
			if err != nil {
				t.Errorf("GetJob(%s) failed: %v", id, err)
				return
			}
			job.Finish(api.Completed("", "", 0), time.Now())
			if err := s.UpdateJob(ctx, job); err != nil {
				t.Errorf("UpdateJob(%s) failed: %v", id, err)
			}
			s.CountJobs(ctx)
		}()
	}
	wg.Wait()

	counts, _ := s.CountJobs(ctx)
	if counts.Completed != 20 {
		t.Errorf("Completed = %d, want 20", counts.Completed)
	}
}

func TestHealthCheckAndClose(t *testing.T) {
	s := New(0)
	if err := s.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() = %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("Close() = %v", err)
	}
}
