package actor

// Handle is a location-transparent reference to an actor. Local actors are referenced by *Ref;
// actors living elsewhere are referenced through a RemoteHandle.
type Handle interface {
	Name() string
	String() string

	// Send delivers a message to the actor's mailbox.
	Send(msg Message) error
	// Interrupt makes the actor's next suspension point fail with ErrInterrupted.
	Interrupt()
	// ThrowIn makes the actor's next suspension point fail with err.
	ThrowIn(err error)

	// AddListener registers a listener to be notified once when the actor dies. Listeners added
	// to a dead actor are notified immediately.
	AddListener(l Listener)
	// RemoveListener unregisters a listener.
	RemoveListener(l Listener)
}

// Listener is notified of the death of an actor it was registered on.
type Listener interface {
	Dead(actor Handle, cause error)
}

// exitListener delivers an ExitMessage to its observer. It is comparable so that it can be removed
// by value.
type exitListener struct {
	observer Handle
	watch    WatchToken
}

func (l exitListener) Dead(actor Handle, cause error) {
	msg := ExitMessage{Actor: actor, Cause: cause, Watch: l.watch}
	if ref, ok := l.observer.(*Ref); ok {
		ref.mailbox.force(msg)
		return
	}
	_ = l.observer.Send(msg)
}

type funcListener struct {
	f func(actor Handle, cause error)
}

func (l *funcListener) Dead(actor Handle, cause error) {
	l.f(actor, cause)
}

// OnDeath adapts a function to a listener. The returned listener can be passed to RemoveListener.
func OnDeath(f func(actor Handle, cause error)) Listener {
	return &funcListener{f: f}
}

// RequestShutdown asks the actor to terminate normally. The request is delivered even to a full
// local mailbox.
func RequestShutdown(h Handle, from Handle) error {
	msg := ShutdownMessage{From: from}
	if ref, ok := h.(*Ref); ok {
		ref.mailbox.force(msg)
		return nil
	}
	return h.Send(msg)
}
