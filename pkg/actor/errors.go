package actor

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrQueueCapacityExceeded is returned when a message cannot be added to a full mailbox.
	ErrQueueCapacityExceeded = errors.New("mailbox queue capacity exceeded")
	// ErrTimeout is returned when a receive, join or call does not complete in time.
	ErrTimeout = errors.New("timed out")
	// ErrInterrupted is returned from a suspension point of an interrupted actor.
	ErrInterrupted = errors.New("actor interrupted")
	// ErrShutdown is returned from a receive when the actor has been asked to shut down. An actor
	// that returns it from Run dies normally.
	ErrShutdown = errors.New("actor shutdown requested")
	// ErrAlreadyRegistered is returned when registering a name held by a live actor.
	ErrAlreadyRegistered = errors.New("name already registered")
	// ErrNotReinstantiable is returned when an actor cannot produce a fresh instance of itself.
	ErrNotReinstantiable = errors.New("actor cannot be reinstantiated")
	// ErrNotStarted is returned when an operation requires a running actor.
	ErrNotStarted = errors.New("actor not started")
	// ErrAlreadyStarted is returned when starting an actor twice.
	ErrAlreadyStarted = errors.New("actor already started")
	// ErrUnnamed is returned when registering an actor that has no name.
	ErrUnnamed = errors.New("actor has no name")
)

// LifecycleError is the death cause of an actor killed by the death of a linked actor.
type LifecycleError struct {
	Exit ExitMessage
}

func (e *LifecycleError) Error() string {
	if e.Exit.Cause == nil {
		return fmt.Sprintf("linked actor %s exited", e.Exit.Actor)
	}
	return fmt.Sprintf("linked actor %s died: %s", e.Exit.Actor, e.Exit.Cause)
}

// Unwrap returns the cause of the linked actor's death.
func (e *LifecycleError) Unwrap() error {
	return e.Exit.Cause
}

// BlockedSendError is returned from a send to a full mailbox with the block overflow policy once
// the sender has given up waiting for space.
type BlockedSendError struct {
	Target   string
	Attempts uint64
}

func (e *BlockedSendError) Error() string {
	return fmt.Sprintf("send to %s blocked after %d attempts: %s",
		e.Target, e.Attempts, ErrQueueCapacityExceeded)
}

// Unwrap returns ErrQueueCapacityExceeded.
func (e *BlockedSendError) Unwrap() error {
	return ErrQueueCapacityExceeded
}

type errUnexpectedMessage struct {
	recipient string
	message   Message
}

func (e errUnexpectedMessage) Error() string {
	recipient := e.recipient
	if recipient == "" {
		recipient = "<unknown>"
	}
	return fmt.Sprintf("unexpected message to %s (%T): %+v", recipient, e.message, e.message)
}

// ErrUnexpectedMessage is returned by behaviors that receive a message they do not understand.
func ErrUnexpectedMessage(ctx *Context, msg Message) error {
	var recipient string
	if ctx != nil && ctx.ref != nil {
		recipient = ctx.ref.String()
	}
	return errUnexpectedMessage{recipient: recipient, message: msg}
}

// IsUnexpectedMessage returns true if the error was created by ErrUnexpectedMessage.
func IsUnexpectedMessage(err error) bool {
	var target errUnexpectedMessage
	return errors.As(err, &target)
}
