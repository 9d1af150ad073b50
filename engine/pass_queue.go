package engine

import (
	"context"
	"sync"
	"time"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/Carmen-Shannon/oxy-gpu/common"
	"github.com/cockroachdb/errors"
)

// PassQueue runs passes one at a time in submission order. Passes that share buffers must be
// serialized; submitting them through one queue does that.
type PassQueue struct {
	mu     sync.Mutex
	wg     sync.WaitGroup
	gpu    GPU
	pool   worker.DynamicWorkerPool
	nextID int
	closed bool
}

// NewPassQueue creates a queue executing on g.
//
// Parameters:
//   - g: the GPU passes run on
//   - capacity: how many passes may wait before Submit blocks; values <= 0 use 64
//
// Returns:
//   - *PassQueue: the queue
func NewPassQueue(g GPU, capacity int) *PassQueue {
	if capacity <= 0 {
		capacity = 64
	}
	return &PassQueue{
		gpu:  g,
		pool: worker.NewDynamicWorkerPool(1, capacity, time.Second),
	}
}

// Submit queues a pass. The returned channel yields the pass result once and is then closed.
//
// Parameters:
//   - ctx: passed to GPU.Execute when the pass runs
//   - pass: the pass
//   - options: per-execution options
//
// Returns:
//   - <-chan error: receives the result of the pass
func (q *PassQueue) Submit(ctx context.Context, pass *Pass, options ...ExecuteOption) <-chan error {
	result := make(chan error, 1)

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		result <- errors.New("pass queue is closed")
		close(result)
		return result
	}
	id := q.nextID
	q.nextID++
	q.wg.Add(1)
	q.mu.Unlock()

	q.pool.SubmitTask(worker.Task{
		ID:      id,
		Payload: pass,
		Do: func() (any, error) {
			defer q.wg.Done()
			err := q.gpu.Execute(ctx, pass, options...)
			if err != nil {
				common.Logger().Debug("queued pass failed", "task", id, "pass", pass.Label(), "error", err)
			}
			result <- err
			close(result)
			return nil, err
		},
	})
	return result
}

// Close waits for every submitted pass to finish and stops the worker. Later submissions fail.
func (q *PassQueue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.mu.Unlock()

	q.wg.Wait()
	q.pool.Stop()
}
