package server

import (
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/determined-ai/gotp/pkg/actor"
)

// Call sends a request to the target server and waits for its reply. The caller watches the
// target for the duration of the call, so a target that dies before replying fails the call with
// a CallError carrying its death cause. A negative timeout waits forever.
//
// A nil caller context may be passed from code that is not running in an actor; a temporary
// context is created for the call.
func Call(
	caller *actor.Context, target actor.Handle, req actor.Message, timeout time.Duration,
) (actor.Message, error) {
	if target == nil {
		return nil, errors.New("call target is nil")
	}
	if caller == nil {
		caller = actor.TempContext(target)
		defer caller.Release()
	}
	if target == actor.Handle(caller.Self()) {
		return nil, errors.Wrapf(ErrSelfCall, "calling %s", target)
	}

	id := nextCallID()
	token := caller.Watch(target)
	defer caller.Unwatch(target, token)
	defer caller.System().DetectDeadlock(caller.Self(), target)()

	if err := caller.Send(target, Request{From: caller.Self(), ID: id, Payload: req}); err != nil {
		return nil, errors.Wrapf(err, "calling %s", target)
	}

	msg, err := caller.ReceiveSelect(timeout, func(msg actor.Message) (actor.Message, bool) {
		switch msg := msg.(type) {
		case Response:
			return msg, msg.ID == id
		case actor.ExitMessage:
			return msg, msg.Watch == token
		default:
			return nil, false
		}
	})
	switch {
	case errors.Is(err, actor.ErrTimeout):
		return nil, errors.Wrapf(err, "call %d to %s after %s", id, target, timeout)
	case err != nil:
		return nil, err
	}

	switch msg := msg.(type) {
	case Response:
		if msg.Err != nil {
			return nil, msg.Err
		}
		return msg.Value, nil
	case actor.ExitMessage:
		return nil, &CallError{Target: target, Cause: msg.Cause}
	default:
		return nil, errors.Errorf("unexpected reply %T", msg)
	}
}

// Cast sends a one-way request to the target server. The sender may be nil.
func Cast(sender *actor.Context, target actor.Handle, msg actor.Message) error {
	req := Request{ID: nextCallID(), Payload: msg, Cast: true}
	if sender == nil {
		return target.Send(req)
	}
	req.From = sender.Self()
	return sender.Send(target, req)
}

// Result is the outcome of one call of a MultiCall.
type Result struct {
	Target actor.Handle
	Value  actor.Message
	Err    error
}

// MultiCall calls every target concurrently, each from its own temporary context, and returns
// the results in the order of the targets.
func MultiCall(targets []actor.Handle, req actor.Message, timeout time.Duration) []Result {
	results := make([]Result, len(targets))
	wg := sync.WaitGroup{}
	wg.Add(len(targets))
	for i, target := range targets {
		go func(i int, target actor.Handle) {
			defer wg.Done()
			value, err := Call(nil, target, req, timeout)
			results[i] = Result{Target: target, Value: value, Err: err}
		}(i, target)
	}
	wg.Wait()
	return results
}
