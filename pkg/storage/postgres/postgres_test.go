package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	pgmodule "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/rhuss/podexec/pkg/api"
	"github.com/rhuss/podexec/pkg/storage"
)

func init() {
	// Configure testcontainers to use podman.
	// Detect the podman socket from `podman machine inspect`.
	if os.Getenv("DOCKER_HOST") == "" {
		out, err := exec.Command("podman", "machine", "inspect", "--format", "{{.ConnectionInfo.PodmanSocket.Path}}").Output()
		if err == nil {
			sock := strings.TrimSpace(string(out))
			if sock != "" {
				os.Setenv("DOCKER_HOST", "unix://"+sock)
			}
		}
	}
	// Ryuk needs privileged mode with podman.
	if os.Getenv("TESTCONTAINERS_RYUK_CONTAINER_PRIVILEGED") == "" {
		os.Setenv("TESTCONTAINERS_RYUK_CONTAINER_PRIVILEGED", "true")
	}
}

// setupTestDB starts a PostgreSQL container and returns a connected Store
// along with its DSN. Tests are skipped if no container runtime is available.
func setupTestDB(t *testing.T) (*Store, string) {
	t.Helper()

	if os.Getenv("SKIP_INTEGRATION") == "true" {
		t.Skip("SKIP_INTEGRATION=true, skipping PostgreSQL integration tests")
	}

	if _, err := exec.LookPath("podman"); err != nil {
		if _, err := exec.LookPath("docker"); err != nil {
			t.Skip("no container runtime found, skipping integration tests")
		}
	}

	ctx := context.Background()

	container, err := pgmodule.Run(ctx,
		"postgres:16-alpine",
		pgmodule.WithDatabase("podexec_test"),
		pgmodule.WithUsername("test"),
		pgmodule.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Skipf("skipping: could not start PostgreSQL container: %v", err)
	}

	t.Cleanup(func() {
		container.Terminate(context.Background())
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("getting connection string: %v", err)
	}

	store, err := New(ctx, Config{
		DSN:            connStr,
		MaxConns:       5,
		MinConns:       1,
		MigrateOnStart: true,
	})
	if err != nil {
		t.Fatalf("creating store: %v", err)
	}

	t.Cleanup(func() {
		store.Close()
	})

	return store, connStr
}

func makeTestJob(prefix string) *api.Job {
	return &api.Job{
		ID:        fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano()),
		Status:    api.JobStatusInQueue,
		Input:     api.JobInput{Code: "print('hi')"},
		CreatedAt: time.Now().UTC().Truncate(time.Millisecond),
	}
}

func TestPostgres_SaveAndGet(t *testing.T) {
	store, _ := setupTestDB(t)
	ctx := context.Background()

	job := makeTestJob("save")
	if err := store.SaveJob(ctx, job); err != nil {
		t.Fatalf("SaveJob failed: %v", err)
	}

	got, err := store.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	if got.ID != job.ID {
		t.Errorf("ID = %q, want %q", got.ID, job.ID)
	}
	if got.Status != api.JobStatusInQueue {
		t.Errorf("Status = %q, want %q", got.Status, api.JobStatusInQueue)
	}
	if got.Input.Code != "print('hi')" {
		t.Errorf("Input.Code = %q", got.Input.Code)
	}
	if got.Output != nil {
		t.Errorf("Output = %+v, want nil", got.Output)
	}
	if got.StartedAt != nil || got.FinishedAt != nil {
		t.Errorf("unexpected timestamps: started=%v finished=%v", got.StartedAt, got.FinishedAt)
	}
}

func TestPostgres_GetNotFound(t *testing.T) {
	store, _ := setupTestDB(t)

	_, err := store.GetJob(context.Background(), "job-nonexistent")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestPostgres_DuplicateSave(t *testing.T) {
	store, _ := setupTestDB(t)
	ctx := context.Background()

	job := makeTestJob("dup")
	if err := store.SaveJob(ctx, job); err != nil {
		t.Fatalf("SaveJob failed: %v", err)
	}

	err := store.SaveJob(ctx, job)
	if !errors.Is(err, storage.ErrConflict) {
		t.Errorf("expected ErrConflict, got %v", err)
	}
}

func TestPostgres_Lifecycle(t *testing.T) {
	store, _ := setupTestDB(t)
	ctx := context.Background()

	job := makeTestJob("life")
	if err := store.SaveJob(ctx, job); err != nil {
		t.Fatalf("SaveJob failed: %v", err)
	}

	job.Start(time.Now())
	if err := store.UpdateJob(ctx, job); err != nil {
		t.Fatalf("UpdateJob(start) failed: %v", err)
	}

	job.Finish(api.Completed("hi\n", "warn\n", 3), time.Now())
	if err := store.UpdateJob(ctx, job); err != nil {
		t.Fatalf("UpdateJob(finish) failed: %v", err)
	}

	got, err := store.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	if got.Status != api.JobStatusCompleted {
		t.Errorf("Status = %q, want COMPLETED", got.Status)
	}
	if got.Output == nil {
		t.Fatal("Output is nil")
	}
	if got.Output.Stdout != "hi\n" || got.Output.Stderr != "warn\n" || got.Output.ExitCode != 3 {
		t.Errorf("Output = %+v", got.Output)
	}
	if got.StartedAt == nil || got.FinishedAt == nil {
		t.Error("expected start and finish timestamps")
	}

	// A finished job accepts no further transitions.
	got.Status = api.JobStatusInProgress
	if err := store.UpdateJob(ctx, got); !errors.Is(err, storage.ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestPostgres_TimedOutOutput(t *testing.T) {
	store, _ := setupTestDB(t)
	ctx := context.Background()

	job := makeTestJob("timeout")
	job.Status = api.JobStatusInProgress
	job.Start(time.Now())
	if err := store.SaveJob(ctx, job); err != nil {
		t.Fatalf("SaveJob failed: %v", err)
	}

	job.Finish(api.TimedOut(), time.Now())
	if err := store.UpdateJob(ctx, job); err != nil {
		t.Fatalf("UpdateJob failed: %v", err)
	}

	got, err := store.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	if got.Status != api.JobStatusTimedOut {
		t.Errorf("Status = %q, want TIMED_OUT", got.Status)
	}
	if got.Output == nil || got.Output.Outcome != api.OutcomeTimedOut {
		t.Errorf("Output = %+v, want timed out", got.Output)
	}
	if got.Error != api.TimeoutMessage {
		t.Errorf("Error = %q, want %q", got.Error, api.TimeoutMessage)
	}
}

func TestPostgres_UpdateNotFound(t *testing.T) {
	store, _ := setupTestDB(t)

	job := makeTestJob("ghost")
	job.Status = api.JobStatusInProgress
	if err := store.UpdateJob(context.Background(), job); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestPostgres_CountJobs(t *testing.T) {
	store, _ := setupTestDB(t)
	ctx := context.Background()

	queued := makeTestJob("count-q")
	if err := store.SaveJob(ctx, queued); err != nil {
		t.Fatalf("SaveJob failed: %v", err)
	}

	for _, result := range []api.ExecutionResult{
		api.Completed("", "", 0),
		api.Failed(errors.New("boom")),
		api.TimedOut(),
	} {
		job := makeTestJob("count")
		job.Start(time.Now())
		if err := store.SaveJob(ctx, job); err != nil {
			t.Fatalf("SaveJob failed: %v", err)
		}
		job.Finish(result, time.Now())
		if err := store.UpdateJob(ctx, job); err != nil {
			t.Fatalf("UpdateJob failed: %v", err)
		}
	}

	counts, err := store.CountJobs(ctx)
	if err != nil {
		t.Fatalf("CountJobs failed: %v", err)
	}
	want := api.JobCounts{Completed: 1, Failed: 2, InQueue: 1}
	if counts != want {
		t.Errorf("CountJobs = %+v, want %+v", counts, want)
	}
}

func TestPostgres_HealthCheck(t *testing.T) {
	store, _ := setupTestDB(t)
	if err := store.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck failed: %v", err)
	}
}

func TestPostgres_MigrationsIdempotent(t *testing.T) {
	_, dsn := setupTestDB(t)

	again, err := New(context.Background(), Config{DSN: dsn, MigrateOnStart: true})
	if err != nil {
		t.Fatalf("second migration run failed: %v", err)
	}
	again.Close()
}

func TestPostgres_TenantIsolation(t *testing.T) {
	store, _ := setupTestDB(t)

	ctxA := storage.SetTenant(context.Background(), "tenant-a")
	ctxB := storage.SetTenant(context.Background(), "tenant-b")

	job := makeTestJob("tenant")
	if err := store.SaveJob(ctxA, job); err != nil {
		t.Fatalf("SaveJob failed: %v", err)
	}

	if _, err := store.GetJob(ctxA, job.ID); err != nil {
		t.Fatalf("tenant A should see own job: %v", err)
	}
	if _, err := store.GetJob(ctxB, job.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Error("tenant B should not see tenant A's job")
	}
	if _, err := store.GetJob(context.Background(), job.ID); err != nil {
		t.Fatalf("no-tenant should see all: %v", err)
	}

	job.Start(time.Now())
	if err := store.UpdateJob(ctxB, job); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("tenant B update: expected ErrNotFound, got %v", err)
	}

	counts, err := store.CountJobs(ctxB)
	if err != nil {
		t.Fatalf("CountJobs failed: %v", err)
	}
	if counts != (api.JobCounts{}) {
		t.Errorf("tenant B counts = %+v, want zero", counts)
	}
}
