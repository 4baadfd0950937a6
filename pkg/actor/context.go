package actor

import (
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/determined-ai/gotp/pkg/logger"
)

// Context is the handle an actor uses to act on itself: receive messages, send messages, and
// manage links, watches and registration. A context must only be used from the goroutine running
// its actor.
type Context struct {
	ref  *Ref
	temp bool
}

// Selector examines a queued message during a selective receive. It returns the value the receive
// should return and whether the message is accepted. Rejected messages stay in the mailbox.
type Selector func(msg Message) (Message, bool)

// Self returns the reference to the context's actor.
func (c *Context) Self() *Ref {
	return c.ref
}

// System returns the system the context's actor belongs to.
func (c *Context) System() *System {
	return c.ref.system
}

// Log returns the actor's logger.
func (c *Context) Log() *log.Entry {
	return c.ref.log
}

// AddLabel adds a new label to the actor's logger.
func (c *Context) AddLabel(key string, value interface{}) {
	c.ref.log = c.ref.log.WithField(key, value)
}

// AddLabels adds new labels to the actor's logger.
func (c *Context) AddLabels(ctx logger.Context) {
	c.ref.log = c.ref.log.WithFields(ctx.Fields())
}

// Receive waits for the next message.
func (c *Context) Receive() (Message, error) {
	return c.receive(Forever, nil)
}

// ReceiveTimeout waits up to the timeout for the next message. A non-positive timeout only
// checks for a queued message.
func (c *Context) ReceiveTimeout(timeout time.Duration) (Message, error) {
	if timeout < 0 {
		timeout = 0
	}
	return c.receive(timeout, nil)
}

// TryReceive returns the next queued message without waiting, or ErrTimeout if there is none.
func (c *Context) TryReceive() (Message, error) {
	return c.receive(0, nil)
}

// ReceiveSelect waits for the first queued message accepted by the selector and returns the
// value the selector produced for it. Earlier rejected messages keep their positions. A negative
// timeout waits forever.
func (c *Context) ReceiveSelect(timeout time.Duration, sel Selector) (Message, error) {
	return c.receive(timeout, sel)
}

// ReceiveType waits for the first queued message accepted by the predicate.
func (c *Context) ReceiveType(timeout time.Duration, pred func(msg Message) bool) (Message, error) {
	return c.receive(timeout, func(msg Message) (Message, bool) {
		return msg, pred(msg)
	})
}

func (c *Context) receive(timeout time.Duration, sel Selector) (Message, error) {
	if err := c.ref.takeInterrupt(); err != nil {
		return nil, err
	}

	var result Message
	proc := func(msg Message) (Verdict, error) {
		if sel != nil {
			if res, ok := sel(msg); ok {
				result = res
				c.ref.system.report(func(m Monitor) { m.MessageReceived(c.ref) })
				return Accept, nil
			}
		}
		if lm, ok := msg.(LifecycleMessage); ok && c.routesToHandler(lm) {
			return Consume, c.handleLifecycle(lm)
		}
		if sel == nil {
			result = msg
			c.ref.system.report(func(m Monitor) { m.MessageReceived(c.ref) })
			return Accept, nil
		}
		c.ref.system.report(func(m Monitor) { m.MessageSkipped(c.ref) })
		return Skip, nil
	}

	w := &receiveWait{ctx: c, timeout: timeout}
	defer w.stop()
	if _, err := c.ref.mailbox.scan(proc, w.wait); err != nil {
		return nil, err
	}
	return result, nil
}

// receiveWait is the waiting side of one receive. Its timer is created on the first wait that
// has a deadline and must be released with stop once the receive returns.
type receiveWait struct {
	ctx     *Context
	timeout time.Duration
	timer   *time.Timer
}

func (w *receiveWait) wait(notify <-chan struct{}) error {
	c := w.ctx
	switch {
	case w.timeout == 0:
		return ErrTimeout
	case w.timeout < 0:
		select {
		case <-notify:
			return nil
		case <-c.ref.interrupts:
			return c.ref.interruptCause()
		}
	}
	if w.timer == nil {
		w.timer = time.NewTimer(w.timeout)
	}
	select {
	case <-notify:
		return nil
	case <-w.timer.C:
		w.timeout = 0
		return ErrTimeout
	case <-c.ref.interrupts:
		return c.ref.interruptCause()
	}
}

func (w *receiveWait) stop() {
	if w.timer != nil {
		w.timer.Stop()
	}
}

// routesToHandler returns true if the lifecycle message is handled by the lifecycle handler
// rather than returned from a generic receive. Watch exits are ordinary messages.
func (c *Context) routesToHandler(msg LifecycleMessage) bool {
	switch msg := msg.(type) {
	case ExitMessage:
		return msg.IsLink() && !c.ref.trapExit.Load()
	case ShutdownMessage:
		return true
	default:
		return false
	}
}

func (c *Context) handleLifecycle(msg LifecycleMessage) error {
	if h, ok := c.ref.actor.(LifecycleHandler); ok {
		return h.HandleLifecycle(c, msg)
	}
	return DefaultLifecycle(c, msg)
}

// DefaultLifecycle is the default handling of lifecycle messages: a link exit kills the actor with
// a LifecycleError and a shutdown request ends it with ErrShutdown.
func DefaultLifecycle(ctx *Context, msg LifecycleMessage) error {
	switch msg := msg.(type) {
	case ExitMessage:
		ctx.ref.forget(msg.Actor)
		if !msg.IsLink() {
			return nil
		}
		return &LifecycleError{Exit: msg}
	case ShutdownMessage:
		return ErrShutdown
	default:
		return nil
	}
}

// forget drops the bookkeeping for listeners registered on a dead actor.
func (r *Ref) forget(other Handle) {
	r.lLock.Lock()
	defer r.lLock.Unlock()
	delete(r.observed, other)
}

// Sleep suspends the actor for the duration. It returns early with an error if the actor is
// interrupted.
func (c *Context) Sleep(d time.Duration) error {
	if err := c.ref.takeInterrupt(); err != nil {
		return err
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-c.ref.interrupts:
		return c.ref.interruptCause()
	}
}

// Interrupted returns the pending interrupt of the actor, if any, consuming it.
func (c *Context) Interrupted() error {
	return c.ref.takeInterrupt()
}

// Send sends a message to the target. If the target's mailbox blocks the send past its retry
// budget, the error is also thrown into the sending actor.
func (c *Context) Send(target Handle, msg Message) error {
	err := target.Send(msg)
	var blocked *BlockedSendError
	if errors.As(err, &blocked) && !c.temp {
		c.ref.ThrowIn(err)
	}
	return err
}

// Link links the actor with another actor.
func (c *Context) Link(other Handle) {
	c.ref.Link(other)
}

// Unlink removes the link with another actor.
func (c *Context) Unlink(other Handle) {
	c.ref.Unlink(other)
}

// Watch watches another actor, returning the token its ExitMessage will carry.
func (c *Context) Watch(other Handle) WatchToken {
	return c.ref.Watch(other)
}

// Unwatch removes a watch. An exit message for the watch that is already queued is discarded.
func (c *Context) Unwatch(other Handle, token WatchToken) {
	c.ref.Unwatch(other, token)
	_, _ = c.ref.mailbox.scan(func(msg Message) (Verdict, error) {
		if exit, ok := msg.(ExitMessage); ok && exit.Watch == token {
			return Accept, nil
		}
		return Skip, nil
	}, func(<-chan struct{}) error { return ErrTimeout })
}

// TrapExit sets whether link exits are delivered to the actor as ordinary messages.
func (c *Context) TrapExit(trap bool) {
	c.ref.trapExit.Store(trap)
}

// Register registers the actor under the name.
func (c *Context) Register(name string) error {
	return c.ref.Register(name)
}

// Unregister removes the actor from the registry.
func (c *Context) Unregister() {
	c.ref.Unregister()
}

// Spawn creates and starts an actor in the same system.
func (c *Context) Spawn(props Props) (*Ref, error) {
	return c.ref.system.Spawn(props)
}

// SpawnLink creates an actor, links it with this actor, and starts it.
func (c *Context) SpawnLink(props Props) (*Ref, error) {
	ref, err := c.ref.system.NewRef(props)
	if err != nil {
		return nil, err
	}
	c.ref.Link(ref)
	if err := ref.Start(); err != nil {
		c.ref.Unlink(ref)
		return nil, err
	}
	return ref, nil
}

// Release ends a temporary context, notifying anything that watched it.
func (c *Context) Release() {
	if c.temp {
		c.ref.die(nil)
	}
}
