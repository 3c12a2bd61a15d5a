// Package postgres provides a PostgreSQL worker.JobStore built on pgx/v5.
// Job input and output are stored as JSONB.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rhuss/podexec/pkg/api"
	"github.com/rhuss/podexec/pkg/storage"
	"github.com/rhuss/podexec/pkg/worker"
)

// uniqueViolation is the PostgreSQL error code for duplicate keys.
const uniqueViolation = "23505"

// Store is a PostgreSQL-backed JobStore.
type Store struct {
	pool *pgxpool.Pool
}

var _ worker.JobStore = (*Store)(nil)

// New connects to PostgreSQL and verifies the connection. If
// MigrateOnStart is set, pending schema migrations are applied.
func New(ctx context.Context, cfg Config) (*Store, error) {
	cfg.applyDefaults()

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parsing DSN: %w", err)
	}
	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	s := &Store{pool: pool}
	if cfg.MigrateOnStart {
		if err := s.migrate(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("running migrations: %w", err)
		}
	}
	return s, nil
}

// SaveJob inserts a new job owned by the tenant in ctx.
func (s *Store) SaveJob(ctx context.Context, job *api.Job) error {
	if err := storage.CheckTransition("", job.Status); err != nil {
		return err
	}

	inputJSON, err := json.Marshal(job.Input)
	if err != nil {
		return fmt.Errorf("marshaling input: %w", err)
	}
	outputJSON, err := marshalOutput(job.Output)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO jobs (
			id, tenant_id, status, input, output, error,
			delay_ms, execution_ms, created_at, started_at, finished_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`,
		job.ID, storage.GetTenant(ctx), string(job.Status), inputJSON, outputJSON, job.Error,
		job.DelayTime, job.ExecutionTime, job.CreatedAt, job.StartedAt, job.FinishedAt,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return storage.ErrConflict
		}
		return fmt.Errorf("inserting job: %w", err)
	}
	return nil
}

// UpdateJob replaces the mutable fields of a stored job. The current row
// is locked while the status transition is checked.
func (s *Store) UpdateJob(ctx context.Context, job *api.Job) error {
	outputJSON, err := marshalOutput(job.Output)
	if err != nil {
		return err
	}

	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		query, args := scoped(ctx, "SELECT status FROM jobs WHERE id = $1", job.ID)
		var current string
		err := tx.QueryRow(ctx, query+" FOR UPDATE", args...).Scan(&current)
		if errors.Is(err, pgx.ErrNoRows) {
			return storage.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("locking job: %w", err)
		}

		if api.JobStatus(current) != job.Status {
			if err := storage.CheckTransition(api.JobStatus(current), job.Status); err != nil {
				return err
			}
		}

		_, err = tx.Exec(ctx, `
			UPDATE jobs SET
				status = $2, output = $3, error = $4,
				delay_ms = $5, execution_ms = $6, started_at = $7, finished_at = $8
			WHERE id = $1
		`,
			job.ID, string(job.Status), outputJSON, job.Error,
			job.DelayTime, job.ExecutionTime, job.StartedAt, job.FinishedAt,
		)
		if err != nil {
			return fmt.Errorf("updating job: %w", err)
		}
		return nil
	})
}

// GetJob retrieves a job by ID within the tenant in ctx.
func (s *Store) GetJob(ctx context.Context, id string) (*api.Job, error) {
	query, args := scoped(ctx, `
		SELECT id, status, input, output, error,
		       delay_ms, execution_ms, created_at, started_at, finished_at
		FROM jobs
		WHERE id = $1`, id)

	var job api.Job
	var status string
	var inputJSON, outputJSON []byte

	err := s.pool.QueryRow(ctx, query, args...).Scan(
		&job.ID, &status, &inputJSON, &outputJSON, &job.Error,
		&job.DelayTime, &job.ExecutionTime, &job.CreatedAt, &job.StartedAt, &job.FinishedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying job: %w", err)
	}

	job.Status = api.JobStatus(status)
	if err := json.Unmarshal(inputJSON, &job.Input); err != nil {
		return nil, fmt.Errorf("unmarshaling input: %w", err)
	}
	if outputJSON != nil {
		var out api.ExecutionResult
		if err := json.Unmarshal(outputJSON, &out); err != nil {
			return nil, fmt.Errorf("unmarshaling output: %w", err)
		}
		job.Output = &out
	}
	return &job, nil
}

// CountJobs counts the jobs visible under ctx. Timed-out jobs count as
// failed.
func (s *Store) CountJobs(ctx context.Context) (api.JobCounts, error) {
	query := "SELECT status, count(*) FROM jobs"
	var args []any
	if tenantID := storage.GetTenant(ctx); tenantID != "" {
		query += " WHERE tenant_id = $1"
		args = append(args, tenantID)
	}
	query += " GROUP BY status"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return api.JobCounts{}, fmt.Errorf("counting jobs: %w", err)
	}
	defer rows.Close()

	var counts api.JobCounts
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return api.JobCounts{}, fmt.Errorf("scanning job count: %w", err)
		}
		switch api.JobStatus(status) {
		case api.JobStatusInQueue:
			counts.InQueue += int(n)
		case api.JobStatusInProgress:
			counts.InProgress += int(n)
		case api.JobStatusCompleted:
			counts.Completed += int(n)
		case api.JobStatusFailed, api.JobStatusTimedOut:
			counts.Failed += int(n)
		}
	}
	if err := rows.Err(); err != nil {
		return api.JobCounts{}, fmt.Errorf("counting jobs: %w", err)
	}
	return counts, nil
}

// HealthCheck verifies the database connection.
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// scoped appends a tenant filter to a query whose only parameter is $1.
func scoped(ctx context.Context, query string, id string) (string, []any) {
	args := []any{id}
	if tenantID := storage.GetTenant(ctx); tenantID != "" {
		args = append(args, tenantID)
		query += " AND tenant_id = $" + strconv.Itoa(len(args))
	}
	return query, args
}

// marshalOutput encodes a result for the nullable output column.
func marshalOutput(out *api.ExecutionResult) ([]byte, error) {
	if out == nil {
		return nil, nil
	}
	b, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("marshaling output: %w", err)
	}
	return b, nil
}

func isDuplicateKey(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
