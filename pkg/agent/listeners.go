package agent

import (
	"maps"
	"slices"
	"sync"

	"go.uber.org/zap"
)

type deathListeners struct {
	mu     sync.Mutex
	next   uint64
	byKey  map[uint64]DeathListener
	killed bool
}

func (d *deathListeners) add(id ID, l DeathListener) func() {
	if l == nil {
		return func() {}
	}
	d.mu.Lock()
	if d.killed {
		d.mu.Unlock()
		l.AgentDied(id)
		return func() {}
	}
	if d.byKey == nil {
		d.byKey = make(map[uint64]DeathListener)
	}
	key := d.next
	d.next++
	d.byKey[key] = l
	d.mu.Unlock()

	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		delete(d.byKey, key)
	}
}

// notify calls every registered listener once, in registration order, and
// marks the agent dead so later registrations fire immediately.
func (d *deathListeners) notify(id ID, logger *zap.Logger) {
	d.mu.Lock()
	d.killed = true
	pending := make([]DeathListener, 0, len(d.byKey))
	for _, key := range slices.Sorted(maps.Keys(d.byKey)) {
		pending = append(pending, d.byKey[key])
	}
	d.byKey = nil
	d.mu.Unlock()

	for _, l := range pending {
		func() {
			defer func() {
				if r := recover(); r != nil {
					logger.Error("Death listener panicked.", zap.Any("panic", r))
				}
			}()
			l.AgentDied(id)
		}()
	}
}
