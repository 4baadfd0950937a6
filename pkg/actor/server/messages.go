package server

import (
	"fmt"
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/determined-ai/gotp/pkg/actor"
)

// CallID correlates a call with its reply.
type CallID uint64

var callIDs atomic.Uint64

func nextCallID() CallID {
	return CallID(callIDs.Add(1))
}

type (
	// Request is the envelope of a call or cast sent to a server.
	Request struct {
		From    actor.Handle
		ID      CallID
		Payload actor.Message
		Cast    bool
	}

	// Response is the envelope of a reply sent back to a caller.
	Response struct {
		ID    CallID
		Value actor.Message
		Err   error
	}
)

var (
	// ErrDuplicateReply is returned when replying to a call that has already been answered or
	// was never received.
	ErrDuplicateReply = errors.New("duplicate or unknown reply")
	// ErrSelfCall is returned when a server calls itself, which can never complete.
	ErrSelfCall = errors.New("server cannot call itself")
	// ErrNoReply is the cause of a CallError for a target that exited normally without replying.
	ErrNoReply = errors.New("server exited without replying")
)

// CallError is returned by Call when the target dies before replying.
type CallError struct {
	Target actor.Handle
	Cause  error
}

func (e *CallError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("call to %s failed: %s", e.Target, ErrNoReply)
	}
	return fmt.Sprintf("call to %s failed: target died: %s", e.Target, e.Cause)
}

// Unwrap returns the death cause of the target, or ErrNoReply for a normal death.
func (e *CallError) Unwrap() error {
	if e.Cause == nil {
		return ErrNoReply
	}
	return e.Cause
}
