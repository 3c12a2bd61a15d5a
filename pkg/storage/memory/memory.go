// Package memory provides an in-memory worker.JobStore for single-replica
// deployments and tests. Jobs are lost when the process restarts. Optional
// LRU eviction bounds memory usage; only finished jobs are evicted.
package memory

import (
	"container/list"
	"context"
	"sync"

	"github.com/rhuss/podexec/pkg/api"
	"github.com/rhuss/podexec/pkg/storage"
	"github.com/rhuss/podexec/pkg/worker"
)

type entry struct {
	job      *api.Job
	tenantID string
	lruElem  *list.Element
}

// Store is an in-memory JobStore with optional LRU eviction.
type Store struct {
	mu      sync.Mutex
	entries map[string]*entry
	lruList *list.List // front = most recently used
	maxSize int        // 0 = unlimited
}

var _ worker.JobStore = (*Store)(nil)

// New creates an in-memory store. If maxSize is 0 the store grows without
// limit; otherwise the least recently used finished job is evicted when
// the limit is reached.
func New(maxSize int) *Store {
	return &Store{
		entries: make(map[string]*entry),
		lruList: list.New(),
		maxSize: maxSize,
	}
}

// SaveJob stores a copy of job under the tenant in ctx.
func (s *Store) SaveJob(ctx context.Context, job *api.Job) error {
	if err := storage.CheckTransition("", job.Status); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[job.ID]; exists {
		return storage.ErrConflict
	}

	if s.maxSize > 0 && len(s.entries) >= s.maxSize {
		s.evictOldest()
	}

	s.entries[job.ID] = &entry{
		job:      job.Clone(),
		tenantID: storage.GetTenant(ctx),
		lruElem:  s.lruList.PushFront(job.ID),
	}
	return nil
}

// UpdateJob replaces the stored job after checking the status transition.
// Updating a job to its current status is allowed.
func (s *Store) UpdateJob(ctx context.Context, job *api.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[job.ID]
	if !ok || !storage.Visible(ctx, e.tenantID) {
		return storage.ErrNotFound
	}
	if e.job.Status != job.Status {
		if err := storage.CheckTransition(e.job.Status, job.Status); err != nil {
			return err
		}
	}

	e.job = job.Clone()
	s.lruList.MoveToFront(e.lruElem)
	return nil
}

// GetJob returns a copy of the job with the given ID.
func (s *Store) GetJob(ctx context.Context, id string) (*api.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok || !storage.Visible(ctx, e.tenantID) {
		return nil, storage.ErrNotFound
	}
	s.lruList.MoveToFront(e.lruElem)
	return e.job.Clone(), nil
}

// CountJobs counts the jobs visible under ctx. Timed-out jobs count as
// failed.
func (s *Store) CountJobs(ctx context.Context) (api.JobCounts, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var counts api.JobCounts
	for _, e := range s.entries {
		if !storage.Visible(ctx, e.tenantID) {
			continue
		}
		countStatus(&counts, e.job.Status)
	}
	return counts, nil
}

func countStatus(c *api.JobCounts, status api.JobStatus) {
	switch status {
	case api.JobStatusInQueue:
		c.InQueue++
	case api.JobStatusInProgress:
		c.InProgress++
	case api.JobStatusCompleted:
		c.Completed++
	case api.JobStatusFailed, api.JobStatusTimedOut:
		c.Failed++
	}
}

// HealthCheck always returns nil for the in-memory store.
func (s *Store) HealthCheck(_ context.Context) error {
	return nil
}

// Close is a no-op for the in-memory store.
func (s *Store) Close() error {
	return nil
}

// Len returns the number of stored jobs.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// evictOldest removes the least recently used finished job. Queued and
// running jobs are never evicted, so the store may briefly exceed maxSize
// when all entries are unfinished. Must be called with s.mu held.
func (s *Store) evictOldest() {
	for elem := s.lruList.Back(); elem != nil; elem = elem.Prev() {
		id := elem.Value.(string)
		if s.entries[id].job.Status.Terminal() {
			s.lruList.Remove(elem)
			delete(s.entries, id)
			return
		}
	}
}
