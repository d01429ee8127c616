// File path: internal/jobs/worker_test.go
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func waitForStatus(t *testing.T, store Store, id string, want Status) Job {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job, err := store.Get(context.Background(), id)
		if err != nil {
			t.Fatalf("get job: %v", err)
		}
		if job.Status == want {
			return job
		}
		time.Sleep(10 * time.Millisecond)
	}
	job, _ := store.Get(context.Background(), id)
	t.Fatalf("job %s never reached %s, last status %s", id, want, job.Status)
	return Job{}
}

func TestMemoryQueueBackpressure(t *testing.T) {
	queue := NewMemoryQueue(1)
	ctx := context.Background()
	if err := queue.Enqueue(ctx, "one"); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := queue.Enqueue(ctx, "two"); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
	id, err := queue.Dequeue(ctx)
	if err != nil || id != "one" {
		t.Fatalf("dequeue: %q %v", id, err)
	}
	canceled, cancel := context.WithCancel(ctx)
	cancel()
	if _, err := queue.Dequeue(canceled); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestWorkerCompletesJobs(t *testing.T) {
	store, err := OpenSQLite(filepath.Join(t.TempDir(), "jobs.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer store.Close()
	queue := NewMemoryQueue(8)

	run := func(ctx context.Context, job Job) (json.RawMessage, error) {
		var req struct {
			Fail bool `json:"fail"`
		}
		if err := json.Unmarshal(job.Request, &req); err != nil {
			return nil, err
		}
		if req.Fail {
			return nil, fmt.Errorf("scripted failure")
		}
		return json.RawMessage(`{"ok": true}`), nil
	}
	worker := NewWorker(store, queue, run, 2)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go worker.Start(ctx)

	good := NewJob(json.RawMessage(`{"fail": false}`))
	bad := NewJob(json.RawMessage(`{"fail": true}`))
	for _, job := range []Job{good, bad} {
		if err := store.Create(ctx, job); err != nil {
			t.Fatalf("create: %v", err)
		}
		if err := queue.Enqueue(ctx, job.ID); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}

	done := waitForStatus(t, store, good.ID, StatusCompleted)
	if string(done.Result) != `{"ok": true}` {
		t.Fatalf("unexpected result: %s", done.Result)
	}
	failed := waitForStatus(t, store, bad.ID, StatusFailed)
	if !strings.Contains(failed.Error, "scripted failure") {
		t.Fatalf("unexpected error: %q", failed.Error)
	}
}

func TestWorkerCancelRunningJob(t *testing.T) {
	store, err := OpenSQLite(filepath.Join(t.TempDir(), "jobs.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer store.Close()
	queue := NewMemoryQueue(8)

	started := make(chan struct{})
	run := func(ctx context.Context, job Job) (json.RawMessage, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	}
	worker := NewWorker(store, queue, run, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go worker.Start(ctx)

	job := NewJob(json.RawMessage(`{}`))
	if err := store.Create(ctx, job); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := queue.Enqueue(ctx, job.ID); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatalf("job never started")
	}
	if !worker.Cancel(job.ID) {
		t.Fatalf("expected a running job to cancel")
	}
	waitForStatus(t, store, job.ID, StatusCanceled)
}

func TestWorkerSkipsCanceledPendingJob(t *testing.T) {
	store, err := OpenSQLite(filepath.Join(t.TempDir(), "jobs.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer store.Close()
	queue := NewMemoryQueue(8)

	ran := make(chan struct{}, 1)
	run := func(ctx context.Context, job Job) (json.RawMessage, error) {
		ran <- struct{}{}
		return json.RawMessage(`{}`), nil
	}
	worker := NewWorker(store, queue, run, 1)

	job := NewJob(json.RawMessage(`{}`))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := store.Create(ctx, job); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.Cancel(ctx, job.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if err := queue.Enqueue(ctx, job.ID); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	go worker.Start(ctx)

	select {
	case <-ran:
		t.Fatalf("canceled job must not run")
	case <-time.After(300 * time.Millisecond):
	}
	final, _ := store.Get(ctx, job.ID)
	if final.Status != StatusCanceled {
		t.Fatalf("job status changed to %s", final.Status)
	}
}
