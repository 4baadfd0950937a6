package actor

import (
	"fmt"

	"github.com/google/uuid"
)

// LifecycleMessage is a message generated by the runtime about the life of an actor.
type LifecycleMessage interface {
	lifecycleMessage()
}

// WatchToken identifies a single watch registration. The zero token identifies a link.
type WatchToken uuid.UUID

// NoWatch is the watch token carried by exit messages generated by links.
var NoWatch WatchToken

func newWatchToken() WatchToken {
	return WatchToken(uuid.New())
}

func (t WatchToken) String() string {
	if t == NoWatch {
		return "link"
	}
	return uuid.UUID(t).String()
}

type (
	// ExitMessage reports the death of an actor to its linked and watching actors. Cause is nil for
	// a normal death.
	ExitMessage struct {
		Actor Handle
		Cause error
		Watch WatchToken
	}

	// ShutdownMessage asks the receiving actor to terminate normally.
	ShutdownMessage struct {
		From Handle
	}
)

func (ExitMessage) lifecycleMessage()     {}
func (ShutdownMessage) lifecycleMessage() {}

// IsLink returns true if the exit was generated by a link rather than a watch.
func (m ExitMessage) IsLink() bool {
	return m.Watch == NoWatch
}

func (m ExitMessage) String() string {
	cause := "normal"
	if m.Cause != nil {
		cause = m.Cause.Error()
	}
	return fmt.Sprintf("exit of %s (%s): %s", m.Actor, m.Watch, cause)
}
