// Package messaging provides the default in-process router that delivers
// messages between agents of one platform.
package messaging

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/xkilldash9x/deliberate/pkg/agent"
)

// ErrAlreadyRegistered is returned when an ID is registered twice.
var ErrAlreadyRegistered = errors.New("agent already registered")

// Message is an envelope for agents that want to tell the receiver who sent
// a message. Any Trigger may be sent; Message is a convenience.
type Message struct {
	From    agent.ID
	Payload any
}

// Router maps agent IDs to inboxes. It is safe for concurrent use.
type Router struct {
	logger  *zap.Logger
	mu      sync.RWMutex
	inboxes map[agent.ID]agent.Inbox
}

var _ agent.Router = (*Router)(nil)

// NewRouter creates an empty router.
func NewRouter(logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{
		logger:  logger.Named("router"),
		inboxes: make(map[agent.ID]agent.Inbox),
	}
}

func (r *Router) Register(id agent.ID, inbox agent.Inbox) error {
	if inbox == nil {
		return fmt.Errorf("inbox for %s cannot be nil", id)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.inboxes[id]; exists {
		return fmt.Errorf("%w: %s", ErrAlreadyRegistered, id)
	}
	r.inboxes[id] = inbox
	return nil
}

func (r *Router) Deregister(id agent.ID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.inboxes, id)
}

// Send delivers msg to the inbox registered for to. Delivery happens outside
// the router lock since it may wake and reschedule the receiver.
func (r *Router) Send(to agent.ID, msg agent.Trigger) error {
	r.mu.RLock()
	inbox, ok := r.inboxes[to]
	r.mu.RUnlock()
	if !ok {
		r.logger.Debug("Dropping message for unknown receiver.", zap.Stringer("receiver", to))
		return fmt.Errorf("%w: %s", agent.ErrReceiverNotFound, to)
	}
	inbox.DeliverMessage(msg)
	return nil
}

// Registered reports whether id currently has an inbox.
func (r *Router) Registered(id agent.ID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.inboxes[id]
	return ok
}

// Len returns the number of registered agents.
func (r *Router) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.inboxes)
}
