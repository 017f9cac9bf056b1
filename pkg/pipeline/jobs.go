package pipeline

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Video jobs run to completion or failure; there is no cancellation mid-job.
// External collaborators observe jobs through the tracker.

type JobState string

const (
	JobPending   JobState = "pending"
	JobRunning   JobState = "running"
	JobCompleted JobState = "completed"
	JobFailed    JobState = "failed"
)

type Job struct {
	ID        string    `json:"id"`
	State     JobState  `json:"state"`
	Error     string    `json:"error,omitempty"` // reason, set when State is failed
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// JobTracker is an in-memory job registry, safe for concurrent use
type JobTracker struct {
	mu   sync.Mutex
	jobs map[string]*Job
}

func NewJobTracker() *JobTracker {
	return &JobTracker{
		jobs: map[string]*Job{},
	}
}

// Create registers a new pending job and returns a snapshot of it
func (t *JobTracker) Create() Job {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := time.Now().UTC()
	job := &Job{
		ID:        uuid.NewString(),
		State:     JobPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	t.jobs[job.ID] = job
	return *job
}

func (t *JobTracker) Start(id string) error {
	return t.transition(id, JobRunning, "", JobPending)
}

func (t *JobTracker) Complete(id string) error {
	return t.transition(id, JobCompleted, "", JobRunning)
}

// Fail moves a job to its terminal failed state with a reason, distinct from
// successful completion with zero detections
func (t *JobTracker) Fail(id string, reason string) error {
	return t.transition(id, JobFailed, reason, JobPending, JobRunning)
}

// Get returns a snapshot of a job
func (t *JobTracker) Get(id string) (Job, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	job, ok := t.jobs[id]
	if !ok {
		return Job{}, false
	}
	return *job, true
}

func (t *JobTracker) transition(id string, to JobState, reason string, validFrom ...JobState) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	job, ok := t.jobs[id]
	if !ok {
		return fmt.Errorf("unknown job %v", id)
	}
	valid := false
	for _, from := range validFrom {
		if job.State == from {
			valid = true
			break
		}
	}
	if !valid {
		return fmt.Errorf("job %v: invalid transition %v -> %v", id, job.State, to)
	}
	job.State = to
	job.Error = reason
	job.UpdatedAt = time.Now().UTC()
	return nil
}
