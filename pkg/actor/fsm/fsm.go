// Package fsm implements finite state machine actors. Each state is a function that receives the
// messages it is interested in and returns the next state. Messages a state does not select stay
// in the mailbox, in order, until a later state takes them.
package fsm

import (
	"reflect"
	"runtime"
	"runtime/debug"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/determined-ai/gotp/pkg/actor"
)

// State is one state of a machine. It returns the state to enter next; a nil state stops the
// machine normally and an error stops it with that error as the death cause.
type State func(ctx *actor.Context) (State, error)

// Machine is the behavior of a state machine actor.
type Machine struct {
	// Initial is the first state. A machine without one stops as soon as Init returns.
	Initial State
	// Init, if set, runs before the first state.
	Init func(ctx *actor.Context) error
	// Terminate, if set, runs when the machine stops. The cause is nil for a normal stop or a
	// shutdown request.
	Terminate func(ctx *actor.Context, cause error)
}

// Run implements actor.Actor.
func (m *Machine) Run(ctx *actor.Context) error {
	if m.Init != nil {
		if err := invoke(ctx, func() error { return m.Init(ctx) }); err != nil {
			return m.terminate(ctx, errors.Wrap(err, "initializing state machine"))
		}
	}

	state := m.Initial
	for state != nil {
		ctx.Log().Debugf("entering state %s", stateName(state))
		current := state
		err := invoke(ctx, func() (err error) {
			state, err = current(ctx)
			return err
		})
		if err != nil {
			return m.terminate(ctx, errors.Wrapf(err, "in state %s", stateName(current)))
		}
	}
	return m.terminate(ctx, nil)
}

func (m *Machine) terminate(ctx *actor.Context, cause error) error {
	if errors.Is(cause, actor.ErrShutdown) {
		cause = nil
	}
	if m.Terminate != nil {
		if err := invoke(ctx, func() error {
			m.Terminate(ctx, cause)
			return nil
		}); err != nil {
			ctx.Log().WithError(err).Error("error terminating state machine")
		}
	}
	return cause
}

// invoke runs a callback, converting a panic into an error.
func invoke(ctx *actor.Context, f func() error) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			ctx.Log().Error(rec, "\n", string(debug.Stack()))
			err = errors.Errorf("unexpected panic: %v", rec)
		}
	}()
	return f()
}

func stateName(s State) string {
	name := runtime.FuncForPC(reflect.ValueOf(s).Pointer()).Name()
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	return name
}

// Props returns the props of a state machine built by the factory. Machines started from these
// props can be restarted by a supervisor with fresh state.
func Props(name string, factory func() *Machine) actor.Props {
	return actor.Props{
		Name: name,
		Factory: func() actor.Actor {
			return factory()
		},
	}
}

// Spawn starts a state machine.
func Spawn(system *actor.System, name string, m *Machine) (*actor.Ref, error) {
	return system.SpawnActor(name, m)
}

type selected struct {
	next State
}

// Receive waits for the first message the selector accepts and returns the state the selector
// chose for it. A selector may accept a message with a nil state to stop the machine. A negative
// timeout waits forever; when it expires the error is actor.ErrTimeout.
func Receive(
	ctx *actor.Context, timeout time.Duration, sel func(msg actor.Message) (State, bool),
) (State, error) {
	res, err := ctx.ReceiveSelect(timeout, func(msg actor.Message) (actor.Message, bool) {
		next, ok := sel(msg)
		return selected{next: next}, ok
	})
	if err != nil {
		return nil, err
	}
	return res.(selected).next, nil
}

// ReceiveType waits for the first message of type M.
func ReceiveType[M any](ctx *actor.Context, timeout time.Duration) (M, error) {
	res, err := ctx.ReceiveSelect(timeout, func(msg actor.Message) (actor.Message, bool) {
		_, ok := msg.(M)
		return msg, ok
	})
	if err != nil {
		var zero M
		return zero, err
	}
	return res.(M), nil
}
