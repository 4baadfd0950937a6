package pool

import (
	"time"

	"github.com/pkg/errors"

	"github.com/determined-ai/gotp/pkg/actor"
	"github.com/determined-ai/gotp/pkg/actor/server"
)

const lookupInterval = 10 * time.Millisecond

// taskMessage carries a task from the manager to a worker. It wraps the task so that a nil task
// is not mistaken for a deferred reply.
type taskMessage struct {
	task interface{}
}

type worker struct {
	manager string
	handler func(task interface{}) interface{}
}

// Run contains the main loop for the worker. It asks the manager for tasks until it is shut down.
// A worker that loses its manager dies, to be restarted by the pool's supervisor.
func (w *worker) Run(ctx *actor.Context) error {
	manager, err := w.lookup(ctx)
	if err != nil {
		return err
	}
	for {
		resp, err := server.Call(ctx, manager, receiveTask{}, actor.Forever)
		if err != nil {
			return err
		}
		result := w.handler(resp.(taskMessage).task)
		if err := server.Cast(ctx, manager, returnTask{result: result}); err != nil {
			return err
		}
	}
}

// lookup waits for the manager to be registered, which it may not be yet while the supervisor is
// restarting it.
func (w *worker) lookup(ctx *actor.Context) (actor.Handle, error) {
	for {
		if manager := ctx.System().Lookup(w.manager); manager != nil {
			return manager, nil
		}
		// Wait without consuming messages, so that a shutdown request still ends the worker.
		_, err := ctx.ReceiveSelect(lookupInterval, func(actor.Message) (actor.Message, bool) {
			return nil, false
		})
		if !errors.Is(err, actor.ErrTimeout) {
			return nil, err
		}
	}
}
