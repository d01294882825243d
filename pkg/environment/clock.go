// Package environment connects agents to the world outside the platform.
package environment

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/xkilldash9x/deliberate/pkg/agent"
)

// Tick is the external trigger a Clock injects.
type Tick struct {
	Name string
	At   time.Time
}

// Clock injects external triggers into agents on cron schedules. Entries are
// dropped automatically when their agent dies.
type Clock struct {
	logger *zap.Logger
	cron   *cron.Cron

	mu      sync.Mutex
	entries map[agent.ID][]cron.EntryID
	started bool
}

// NewClock creates a clock. Schedules accept standard five field cron
// expressions and descriptors such as "@every 5s".
func NewClock(logger *zap.Logger) (*Clock, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	return &Clock{
		logger:  logger.Named("clock"),
		cron:    cron.New(),
		entries: make(map[agent.ID][]cron.EntryID),
	}, nil
}

// Every adds a schedule that sends a Tick named name to h. Use EveryFunc to
// send other triggers.
func (c *Clock) Every(schedule, name string, h agent.ExternalHandle) (cron.EntryID, error) {
	return c.EveryFunc(schedule, h, func(at time.Time) agent.Trigger {
		return &Tick{Name: name, At: at}
	})
}

// EveryFunc adds a schedule that sends the trigger built by build to h.
func (c *Clock) EveryFunc(schedule string, h agent.ExternalHandle, build func(at time.Time) agent.Trigger) (cron.EntryID, error) {
	if h == nil || build == nil {
		return 0, errors.New("handle and trigger constructor are required")
	}
	id, err := c.cron.AddFunc(schedule, func() {
		h.AddExternalTrigger(build(time.Now()))
	})
	if err != nil {
		return 0, fmt.Errorf("invalid schedule %q: %w", schedule, err)
	}

	c.mu.Lock()
	_, watched := c.entries[h.ID()]
	c.entries[h.ID()] = append(c.entries[h.ID()], id)
	c.mu.Unlock()

	if !watched {
		h.AddDeathListener(agent.DeathListenerFunc(c.forget))
	}
	c.logger.Debug("Schedule added.", zap.Stringer("agent_id", h.ID()), zap.String("schedule", schedule))
	return id, nil
}

// forget removes every entry of a dead agent.
func (c *Clock) forget(id agent.ID) {
	c.mu.Lock()
	ids := c.entries[id]
	delete(c.entries, id)
	c.mu.Unlock()
	for _, e := range ids {
		c.cron.Remove(e)
	}
}

// Entries returns the number of live schedules.
func (c *Clock) Entries() int {
	return len(c.cron.Entries())
}

// Fire runs the job of an entry immediately.
func (c *Clock) Fire(id cron.EntryID) bool {
	e := c.cron.Entry(id)
	if !e.Valid() {
		return false
	}
	e.Job.Run()
	return true
}

// Start begins running schedules in the background.
func (c *Clock) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return
	}
	c.started = true
	c.cron.Start()
}

// Stop halts the clock and waits, bounded by ctx, for running jobs.
func (c *Clock) Stop(ctx context.Context) error {
	done := c.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
