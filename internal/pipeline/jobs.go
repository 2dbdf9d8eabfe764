package pipeline

import (
	"errors"
	"sync"
	"time"

	"github.com/dgallion1/versegest/internal/faults"
)

// JobStatus represents the state of an ingestion job.
type JobStatus string

const (
	StatusQueued     JobStatus = "queued"
	StatusFetching   JobStatus = "fetching"
	StatusParsing    JobStatus = "parsing"
	StatusPersisting JobStatus = "persisting"
	StatusCompleted  JobStatus = "completed"
	StatusFailed     JobStatus = "failed"
	StatusDupSkipped JobStatus = "duplicate_skipped"
)

var stageStatus = map[string]JobStatus{
	StageFetch:   StatusFetching,
	StageParse:   StatusParsing,
	StagePersist: StatusPersisting,
}

// Job tracks one source submitted to a Pool.
type Job struct {
	mu sync.Mutex

	ID     string
	Source Source

	Status    JobStatus
	Stage     string
	CreatedAt time.Time
	UpdatedAt time.Time

	result Result
	err    error
	done   chan struct{}
}

func NewJob(src Source) *Job {
	now := time.Now()
	return &Job{
		ID:        newID(),
		Source:    src,
		Status:    StatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
		done:      make(chan struct{}),
	}
}

// JobStore is a thread-safe in-memory job registry with TTL eviction.
type JobStore struct {
	mu   sync.Mutex
	jobs map[string]*Job
	ttl  time.Duration
}

func NewJobStore(ttl time.Duration) *JobStore {
	return &JobStore{
		jobs: make(map[string]*Job),
		ttl:  ttl,
	}
}

func (s *JobStore) Put(job *Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
}

func (s *JobStore) Get(id string) *Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jobs[id]
}

// Cleanup removes finished jobs idle for longer than the TTL.
func (s *JobStore) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for id, job := range s.jobs {
		if job.Finished() && now.Sub(job.updated()) > s.ttl {
			delete(s.jobs, id)
		}
	}
}

// Len reports how many jobs are registered.
func (s *JobStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

// SetStatus updates job status atomically.
func (j *Job) SetStatus(status JobStatus, stage string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Status = status
	j.Stage = stage
	j.UpdatedAt = time.Now()
}

// observe maps a pipeline stage to its job status.
func (j *Job) observe(stage string) {
	j.SetStatus(stageStatus[stage], stage)
}

// finish records the run outcome and releases Wait.
func (j *Job) finish(res Result, err error) {
	j.mu.Lock()
	j.result = res
	j.err = err
	switch {
	case err == nil:
		j.Status = StatusCompleted
	case errors.Is(err, faults.ErrDuplicateSource):
		j.Status = StatusDupSkipped
	default:
		j.Status = StatusFailed
	}
	j.UpdatedAt = time.Now()
	j.mu.Unlock()
	close(j.done)
}

// Wait blocks until the job has run and returns its outcome.
func (j *Job) Wait() (Result, error) {
	<-j.done
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.result, j.err
}

// Finished reports whether the job has run.
func (j *Job) Finished() bool {
	select {
	case <-j.done:
		return true
	default:
		return false
	}
}

func (j *Job) updated() time.Time {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.UpdatedAt
}

// JobSnapshot is a read-only copy of job state.
type JobSnapshot struct {
	ID         string    `json:"job_id" yaml:"job_id"`
	Source     string    `json:"source" yaml:"source"`
	Status     JobStatus `json:"status" yaml:"status"`
	Stage      string    `json:"stage,omitempty" yaml:"stage,omitempty"`
	DocumentID string    `json:"document_id,omitempty" yaml:"document_id,omitempty"`
	Passages   int       `json:"passages,omitempty" yaml:"passages,omitempty"`
	Error      string    `json:"error,omitempty" yaml:"error,omitempty"`
}

// Snapshot returns a copy of the job state.
func (j *Job) Snapshot() JobSnapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	snap := JobSnapshot{
		ID:     j.ID,
		Source: j.Source.Location(),
		Status: j.Status,
		Stage:  j.Stage,
	}
	if p, ok := j.result.Persisted(); ok {
		snap.DocumentID = p.DocumentID
		snap.Passages = len(p.PassageIDs)
	}
	if j.err != nil {
		snap.Error = j.err.Error()
	}
	return snap
}
