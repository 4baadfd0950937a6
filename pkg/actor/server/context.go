package server

import (
	"time"

	"github.com/pkg/errors"

	"github.com/determined-ai/gotp/pkg/actor"
)

type pendingKey struct {
	from actor.Handle
	id   CallID
}

// Context is the context passed to server callbacks. It embeds the context of the server's actor
// and tracks the calls that are waiting for a reply.
type Context struct {
	*actor.Context

	pending   map[pendingKey]struct{}
	timeout   time.Duration
	stopped   bool
	stopCause error
}

// Reply answers a call whose reply was deferred. Each call is answered at most once; later
// replies are dropped and return ErrDuplicateReply.
func (c *Context) Reply(to actor.Handle, id CallID, value actor.Message) error {
	return c.reply(to, Response{ID: id, Value: value})
}

// ReplyError answers a call with an error that the caller's Call returns.
func (c *Context) ReplyError(to actor.Handle, id CallID, err error) error {
	return c.reply(to, Response{ID: id, Err: err})
}

func (c *Context) reply(to actor.Handle, resp Response) error {
	key := pendingKey{from: to, id: resp.ID}
	if _, ok := c.pending[key]; !ok {
		c.Log().Warnf("dropping reply %d to %v: %s", resp.ID, to, ErrDuplicateReply)
		return errors.Wrapf(ErrDuplicateReply, "replying to call %d", resp.ID)
	}
	delete(c.pending, key)
	if to == nil {
		return nil
	}
	return to.Send(resp)
}

// Pending returns the number of calls waiting for a reply.
func (c *Context) Pending() int {
	return len(c.pending)
}

// SetTimeout changes the idle timeout. A non-positive duration disables it.
func (c *Context) SetTimeout(d time.Duration) {
	c.timeout = d
}

// Stop terminates the server after the current callback returns, with the given cause. A nil
// cause is a normal stop.
func (c *Context) Stop(cause error) {
	c.stopped = true
	c.stopCause = cause
}
