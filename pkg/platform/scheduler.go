// pkg/platform/scheduler.go
package platform

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// Scheduler runs deliberation turns on a fixed pool of worker goroutines.
//
// The run queue is unbounded: workers resubmit the turns of busy agents, and
// a bounded queue would let a full pool deadlock on its own resubmissions.
// The number of queued turns is still bounded by the number of agents, since
// an agent never has more than one turn in flight.
type Scheduler struct {
	logger  *zap.Logger
	workers int
	limiter *rate.Limiter

	mu      sync.Mutex
	cond    *sync.Cond
	pending []func()
	started bool
	halted  bool

	group   errgroup.Group
	delayed sync.WaitGroup

	// Closed by the single watcher goroutine once every worker and delayed
	// submission is done.
	watchOnce sync.Once
	stopped   chan struct{}
	stopErr   error
}

// ErrNotHalted is returned by Wait on a scheduler that was never halted.
var ErrNotHalted = errors.New("scheduler has not been halted")

// NewScheduler creates a scheduler with the given pool size. limiter, when
// not nil, throttles SubmitThrottled.
func NewScheduler(workers int, limiter *rate.Limiter, logger *zap.Logger) (*Scheduler, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if workers <= 0 {
		return nil, errors.New("worker count must be positive")
	}
	if limiter != nil && limiter.Burst() < 1 {
		return nil, errors.New("turn rate limiter needs a burst of at least 1")
	}
	s := &Scheduler{
		logger:  logger.With(zap.String("component", "scheduler")),
		workers: workers,
		limiter: limiter,
		stopped: make(chan struct{}),
	}
	s.cond = sync.NewCond(&s.mu)
	return s, nil
}

// Start launches the worker pool. Calling it again has no effect.
func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.started || s.halted {
		s.mu.Unlock()
		s.logger.Warn("Scheduler.Start called, but scheduler is already running or halted.")
		return
	}
	s.started = true
	s.mu.Unlock()

	s.logger.Info("Starting scheduler worker pool", zap.Int("workers", s.workers))
	for i := 0; i < s.workers; i++ {
		workerID := i + 1
		s.group.Go(func() error {
			s.runWorker(workerID)
			return nil
		})
	}
}

// Submit queues a turn. It returns false, and queues nothing, once the
// scheduler has been halted.
func (s *Scheduler) Submit(turn func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.halted {
		return false
	}
	s.pending = append(s.pending, turn)
	s.cond.Signal()
	return true
}

// SubmitThrottled queues a turn subject to the rate limiter. When the limiter
// asks for a delay the turn is queued later from a timer; the worker never
// waits. rejected runs instead of the turn if the scheduler halts first.
func (s *Scheduler) SubmitThrottled(turn func(), rejected func()) {
	if s.limiter == nil {
		if !s.Submit(turn) {
			rejected()
		}
		return
	}

	r := s.limiter.Reserve()
	delay := r.Delay()
	if delay <= 0 {
		if !s.Submit(turn) {
			rejected()
		}
		return
	}

	s.mu.Lock()
	if s.halted {
		s.mu.Unlock()
		r.Cancel()
		rejected()
		return
	}
	s.delayed.Add(1)
	s.mu.Unlock()

	time.AfterFunc(delay, func() {
		defer s.delayed.Done()
		if !s.Submit(turn) {
			rejected()
		}
	})
}

// Halt stops accepting submissions. Turns already queued still run, after
// which the workers exit.
func (s *Scheduler) Halt() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.halted {
		return
	}
	s.halted = true
	s.cond.Broadcast()
	s.logger.Info("Scheduler halted, draining queued turns.", zap.Int("pending", len(s.pending)))
}

// Halted reports whether Halt has been called.
func (s *Scheduler) Halted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.halted
}

// Pending returns the number of queued turns.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Wait blocks until the workers have drained the queue and exited after a
// Halt, or until ctx is done. All calls share one watcher goroutine, which
// exits with the last worker, so a Wait that gives up leaves nothing behind
// beyond that watcher.
func (s *Scheduler) Wait(ctx context.Context) error {
	if !s.Halted() {
		return ErrNotHalted
	}
	s.watchOnce.Do(func() {
		go func() {
			s.delayed.Wait()
			s.stopErr = s.group.Wait()
			close(s.stopped)
		}()
	})
	select {
	case <-s.stopped:
		s.logger.Info("Scheduler stopped gracefully.")
		return s.stopErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) runWorker(workerID int) {
	logger := s.logger.With(zap.Int("worker_id", workerID))
	logger.Debug("Worker goroutine started")
	for {
		turn, ok := s.next()
		if !ok {
			logger.Debug("Run queue halted and drained, worker shutting down.")
			return
		}
		s.execute(logger, turn)
	}
}

// next blocks until a turn is queued, or returns false once the scheduler is
// halted and the queue is empty.
func (s *Scheduler) next() (func(), bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for len(s.pending) == 0 && !s.halted {
		s.cond.Wait()
	}
	if len(s.pending) == 0 {
		return nil, false
	}
	turn := s.pending[0]
	s.pending[0] = nil
	s.pending = s.pending[1:]
	return turn, true
}

func (s *Scheduler) execute(logger *zap.Logger, turn func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Turn panicked outside deliberation.", zap.Any("panic", r), zap.Stack("stack"))
		}
	}()
	turn()
}
