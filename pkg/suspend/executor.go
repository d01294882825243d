package suspend

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// ErrExecutorClosed is returned when a task is submitted after Close.
var ErrExecutorClosed = errors.New("executor is closed")

// Executor runs blocking work off the scheduler's workers. Agents find it in
// their ContextSet; the async helpers in this package look it up there. The
// number of tasks running at once is bounded by a weighted semaphore.
type Executor struct {
	logger *zap.Logger
	sem    *semaphore.Weighted
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewExecutor creates an executor running at most maxConcurrent tasks at a
// time.
func NewExecutor(maxConcurrent int64, logger *zap.Logger) (*Executor, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if maxConcurrent <= 0 {
		return nil, fmt.Errorf("max concurrent tasks must be positive, got %d", maxConcurrent)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Executor{
		logger: logger.Named("executor"),
		sem:    semaphore.NewWeighted(maxConcurrent),
		ctx:    ctx,
		cancel: cancel,
	}, nil
}

// Go runs task on its own goroutine once a slot is free. The context passed
// to task is cancelled by Close.
func (e *Executor) Go(task func(ctx context.Context)) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrExecutorClosed
	}
	e.wg.Add(1)
	e.mu.Unlock()

	go func() {
		defer e.wg.Done()
		if err := e.sem.Acquire(e.ctx, 1); err != nil {
			e.logger.Debug("Task dropped, executor closing.", zap.Error(err))
			return
		}
		defer e.sem.Release(1)
		defer func() {
			if r := recover(); r != nil {
				e.logger.Error("Task panicked.", zap.Any("panic", r))
			}
		}()
		task(e.ctx)
	}()
	return nil
}

// Close cancels running tasks and waits for them to return. Tasks still
// waiting for a slot are dropped.
func (e *Executor) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	e.mu.Unlock()

	e.cancel()
	e.wg.Wait()
}
