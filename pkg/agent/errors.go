package agent

import (
	"errors"
	"fmt"
	"reflect"
)

// ErrorCode classifies runtime errors for logs and metrics.
type ErrorCode string

const (
	CodeAgentCreationFailed ErrorCode = "AGENT_CREATION_FAILED"
	CodeReceiverNotFound    ErrorCode = "RECEIVER_NOT_FOUND"
	CodeContextNotFound     ErrorCode = "CONTEXT_NOT_FOUND"
	CodeSchedulerClosed     ErrorCode = "SCHEDULER_CLOSED"
	CodeCycleFailure        ErrorCode = "CYCLE_FAILURE"
	CodePlanFailure         ErrorCode = "PLAN_FAILURE"
	CodeInvalidConfig       ErrorCode = "INVALID_CONFIG"
	CodeUnknown             ErrorCode = "UNKNOWN"
)

var (
	ErrAgentCreationFailed = errors.New("agent creation failed")
	ErrReceiverNotFound    = errors.New("receiver not found")
	ErrContextNotFound     = errors.New("context not found")
	ErrSchedulerClosed     = errors.New("scheduler closed")
	ErrInvalidConfig       = errors.New("invalid agent configuration")
)

// Coded is implemented by errors that carry an ErrorCode.
type Coded interface {
	Code() ErrorCode
}

// CodeOf extracts the ErrorCode of err, falling back to the sentinel it wraps.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	var coded Coded
	if errors.As(err, &coded) {
		return coded.Code()
	}
	switch {
	case errors.Is(err, ErrAgentCreationFailed):
		return CodeAgentCreationFailed
	case errors.Is(err, ErrReceiverNotFound):
		return CodeReceiverNotFound
	case errors.Is(err, ErrContextNotFound):
		return CodeContextNotFound
	case errors.Is(err, ErrSchedulerClosed):
		return CodeSchedulerClosed
	case errors.Is(err, ErrInvalidConfig):
		return CodeInvalidConfig
	}
	return CodeUnknown
}

// CreationError reports why an agent of a given type could not be created.
// It matches ErrAgentCreationFailed as well as its cause.
type CreationError struct {
	Type Type
	Err  error
}

func (e *CreationError) Error() string {
	return fmt.Sprintf("agent creation failed for type %q: %v", e.Type, e.Err)
}

func (e *CreationError) Unwrap() []error { return []error{ErrAgentCreationFailed, e.Err} }

func (e *CreationError) Code() ErrorCode { return CodeAgentCreationFailed }

// ContextError reports a context kind missing from an agent's ContextSet.
type ContextError struct {
	Kind reflect.Type
}

func (e *ContextError) Error() string {
	return fmt.Sprintf("context not found: %v", e.Kind)
}

func (e *ContextError) Unwrap() error { return ErrContextNotFound }

func (e *ContextError) Code() ErrorCode { return CodeContextNotFound }

// PlanExecutionError is raised when a plan's Execute fails. The failed plan
// has already been removed from the agent; the error itself is queued as an
// internal trigger so rule sets can react to it with repair plans.
type PlanExecutionError struct {
	Plan Plan
	Err  error
}

func (e *PlanExecutionError) Error() string {
	return fmt.Sprintf("plan %T failed: %v", e.Plan, e.Err)
}

func (e *PlanExecutionError) Unwrap() error { return e.Err }

func (e *PlanExecutionError) Code() ErrorCode { return CodePlanFailure }

// CycleError is a failure of a deliberation step other than a plan failure.
// It is fatal to the agent. Step is -1 when the failure was a panic caught
// outside any particular step.
type CycleError struct {
	Step int
	Err  error
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("deliberation step %d failed: %v", e.Step, e.Err)
}

func (e *CycleError) Unwrap() error { return e.Err }

func (e *CycleError) Code() ErrorCode { return CodeCycleFailure }
