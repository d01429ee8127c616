// File path: internal/jobs/queue.go
package jobs

import "context"

const defaultQueueSize = 64

// MemoryQueue is the in-process Queue implementation, a bounded channel of
// job IDs shared between the HTTP handlers and the worker pool.
type MemoryQueue struct {
	ch chan string
}

func NewMemoryQueue(size int) *MemoryQueue {
	if size <= 0 {
		size = defaultQueueSize
	}
	return &MemoryQueue{ch: make(chan string, size)}
}

// Enqueue never blocks: a full queue returns ErrQueueFull so the caller can
// surface backpressure instead of stalling the request.
func (q *MemoryQueue) Enqueue(ctx context.Context, jobID string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case q.ch <- jobID:
		return nil
	default:
		return ErrQueueFull
	}
}

func (q *MemoryQueue) Dequeue(ctx context.Context) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case id := <-q.ch:
		return id, nil
	}
}
