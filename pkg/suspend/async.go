package suspend

import (
	"context"
	"fmt"

	"github.com/xkilldash9x/deliberate/pkg/agent"
)

// TaskFailed is posted as an internal trigger when asynchronous work started
// by one of the helpers below fails. Trigger is the value that would have
// been posted on success, if any.
type TaskFailed struct {
	Trigger agent.Trigger
	Err     error
}

func (e *TaskFailed) Error() string { return fmt.Sprintf("async task failed: %v", e.Err) }

func (e *TaskFailed) Unwrap() error { return e.Err }

// Result carries the outcome of a task started with NotifyResult.
type Result[V any] struct {
	Value V
	Err   error
}

// NotifyWhenFinished runs task on the agent's Executor and posts done as an
// internal trigger when it succeeds, or a *TaskFailed when it does not.
func NotifyWhenFinished(pc agent.PlanContext, task func(ctx context.Context) error, done agent.Trigger) error {
	return submit(pc, func(ctx context.Context) error {
		if err := task(ctx); err != nil {
			return err
		}
		pc.PostInternalTrigger(done)
		return nil
	}, done)
}

// NotifyResult runs task on the agent's Executor and posts its outcome as a
// *Result[V] internal trigger.
func NotifyResult[V any](pc agent.PlanContext, task func(ctx context.Context) (V, error)) error {
	return submit(pc, func(ctx context.Context) error {
		v, err := task(ctx)
		pc.PostInternalTrigger(&Result[V]{Value: v, Err: err})
		return nil
	}, nil)
}

// AdoptPlanWhenFinished runs task on the agent's Executor and, when it
// succeeds, adopts a plan running body with its value. Failures are posted
// as *TaskFailed.
func AdoptPlanWhenFinished[V any](pc agent.PlanContext, task func(ctx context.Context) (V, error), body func(v V, pc agent.PlanContext) error) error {
	return submit(pc, func(ctx context.Context) error {
		v, err := task(ctx)
		if err != nil {
			return err
		}
		pc.PostPlan(agent.RunOnce(func(pc agent.PlanContext) error {
			return body(v, pc)
		}))
		return nil
	}, nil)
}

func submit(pc agent.PlanContext, run func(ctx context.Context) error, onFailure agent.Trigger) error {
	exec, err := agent.ContextOf[*Executor](pc.Contexts())
	if err != nil {
		return err
	}
	return exec.Go(func(ctx context.Context) {
		var failure error
		func() {
			defer func() {
				if r := recover(); r != nil {
					failure = fmt.Errorf("task panicked: %v", r)
				}
			}()
			failure = run(ctx)
		}()
		if failure != nil {
			pc.PostInternalTrigger(&TaskFailed{Trigger: onFailure, Err: failure})
		}
	})
}
