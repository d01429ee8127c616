// File path: internal/jobs/jobs.go

// Package jobs implements the asynchronous evaluation pattern: a submitted
// evaluation becomes a job record tracked through pending/running/completed/
// failed/canceled, enqueued for background processing and polled for status
// and results. Store and Queue are the portability seams; cloud table and
// queue services plug in behind them, the in-repo implementations are SQLite
// and an in-process channel.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCanceled  Status = "canceled"
)

// Terminal reports whether the status can no longer change.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCanceled:
		return true
	}
	return false
}

var (
	ErrJobNotFound = errors.New("job not found")
	ErrJobFinished = errors.New("job already finished")
	ErrQueueFull   = errors.New("job queue full")
)

// Job is one asynchronous unit of evaluation work.
type Job struct {
	ID         string          `json:"id"`
	Status     Status          `json:"status"`
	Request    json.RawMessage `json:"-"`
	Result     json.RawMessage `json:"result,omitempty"`
	Error      string          `json:"error,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	StartedAt  *time.Time      `json:"started_at,omitempty"`
	FinishedAt *time.Time      `json:"finished_at,omitempty"`
}

// NewJob builds a pending job around an encoded evaluation request.
func NewJob(request json.RawMessage) Job {
	return Job{
		ID:        uuid.NewString(),
		Status:    StatusPending,
		Request:   request,
		CreatedAt: time.Now().UTC(),
	}
}

// Store persists job records. Implementations must guard the status
// transitions: only pending jobs start running, only running jobs complete,
// pending or running jobs may fail or cancel (admission failures fail a job
// before it starts), and terminal jobs never change again.
type Store interface {
	Create(ctx context.Context, job Job) error
	Get(ctx context.Context, id string) (Job, error)
	List(ctx context.Context, limit int) ([]Job, error)
	MarkRunning(ctx context.Context, id string) error
	Complete(ctx context.Context, id string, result json.RawMessage) error
	Fail(ctx context.Context, id, message string) error
	Cancel(ctx context.Context, id string) error
	Close() error
}

// Queue hands job IDs from submission to the worker pool.
type Queue interface {
	Enqueue(ctx context.Context, jobID string) error
	Dequeue(ctx context.Context) (string, error)
}
