package actor

import "time"

// Message holds the communication protocol between actors. Any value can be sent to an actor; the
// runtime never copies or inspects messages other than its own lifecycle types.
type Message interface{}

// Actor is an object that encapsulates both state and behavior. Run is executed on the actor's own
// goroutine and owns it for the actor's entire life: the actor receives messages by calling the
// receive operations of its context. Returning nil is a normal death; returning an error (or
// panicking) is an abnormal death with that cause.
type Actor interface {
	Run(ctx *Context) error
}

// ActorFunc is a function that encapsulates behavior. It is a stateless actor, useful for
// mocking and for small helper actors.
type ActorFunc func(ctx *Context) error

// Run implements actor.Actor.
func (f ActorFunc) Run(ctx *Context) error {
	return f(ctx)
}

// LifecycleHandler is implemented by actors that want to intercept lifecycle messages (link exits
// and shutdown requests) that arrive during a receive that does not accept them. Returning an error
// terminates the actor with that error; returning nil ignores the message.
type LifecycleHandler interface {
	HandleLifecycle(ctx *Context, msg LifecycleMessage) error
}

// Reinstantiable is implemented by actors that can produce a fresh instance of themselves to be
// restarted under the same name.
type Reinstantiable interface {
	Reinstantiate() Actor
}

// Props is the recipe for an actor reference.
type Props struct {
	// Name is the optional name of the actor. Named actors are given the name in logs and metrics
	// and can be registered with the system.
	Name string
	// Factory creates the actor's behavior. An actor created from a factory can be reinstantiated.
	Factory func() Actor
	// Mailbox overrides the system's default mailbox configuration.
	Mailbox *MailboxConfig
	// Register registers the actor under its name when it is started.
	Register bool
	// TrapExit delivers link exits to the actor as ordinary messages rather than killing it.
	TrapExit bool
}

// Forever is a timeout value that waits indefinitely.
const Forever time.Duration = -1
