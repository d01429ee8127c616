// File path: internal/jobs/worker.go
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/auditlens/auditlens/internal/common"
)

const storeWriteTimeout = 5 * time.Second

// RunFunc executes one job and returns its encoded result.
type RunFunc func(ctx context.Context, job Job) (json.RawMessage, error)

// Worker drains the queue with a pool of goroutines. Each claimed job runs
// under its own cancelable context so Cancel can interrupt it mid-flight.
type Worker struct {
	store Store
	queue Queue
	run   RunFunc
	count int

	mu      sync.Mutex
	running map[string]context.CancelFunc
}

func NewWorker(store Store, queue Queue, run RunFunc, count int) *Worker {
	if count <= 0 {
		count = 2
	}
	return &Worker{
		store:   store,
		queue:   queue,
		run:     run,
		count:   count,
		running: make(map[string]context.CancelFunc),
	}
}

// Start blocks until ctx is canceled, running count drain loops.
func (w *Worker) Start(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < w.count; i++ {
		g.Go(func() error {
			return w.loop(ctx)
		})
	}
	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (w *Worker) loop(ctx context.Context) error {
	for {
		id, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		w.process(ctx, id)
	}
}

func (w *Worker) process(ctx context.Context, id string) {
	logger := common.Logger()
	if err := w.store.MarkRunning(ctx, id); err != nil {
		// Typically the job was canceled while still queued.
		logger.Info("worker: skipping job", "job", id, "reason", err)
		return
	}
	job, err := w.store.Get(ctx, id)
	if err != nil {
		logger.Error("worker: load job failed", "job", id, "error", err)
		w.finish(func(ctx context.Context) error {
			return w.store.Fail(ctx, id, err.Error())
		}, id)
		return
	}

	jobCtx, cancel := context.WithCancel(ctx)
	w.register(id, cancel)
	defer w.unregister(id)
	defer cancel()

	result, err := w.run(jobCtx, job)
	if err != nil {
		if jobCtx.Err() != nil {
			logger.Info("worker: job canceled", "job", id)
			w.finish(func(ctx context.Context) error {
				return w.store.Cancel(ctx, id)
			}, id)
			return
		}
		logger.Error("worker: job failed", "job", id, "error", err)
		w.finish(func(ctx context.Context) error {
			return w.store.Fail(ctx, id, err.Error())
		}, id)
		return
	}
	logger.Info("worker: job completed", "job", id)
	w.finish(func(ctx context.Context) error {
		return w.store.Complete(ctx, id, result)
	}, id)
}

// finish records a terminal status on a fresh context so bookkeeping survives
// cancellation of the worker context.
func (w *Worker) finish(write func(context.Context) error, id string) {
	ctx, cancel := context.WithTimeout(context.Background(), storeWriteTimeout)
	defer cancel()
	if err := write(ctx); err != nil && !errors.Is(err, ErrJobFinished) {
		common.Logger().Error("worker: record job outcome failed", "job", id, "error", err)
	}
}

// Cancel interrupts a job currently executing on this worker. It reports
// whether a running job was found; the store transition is the caller's job.
func (w *Worker) Cancel(id string) bool {
	w.mu.Lock()
	cancel, ok := w.running[id]
	w.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

func (w *Worker) register(id string, cancel context.CancelFunc) {
	w.mu.Lock()
	w.running[id] = cancel
	w.mu.Unlock()
}

func (w *Worker) unregister(id string) {
	w.mu.Lock()
	delete(w.running, id)
	w.mu.Unlock()
}
