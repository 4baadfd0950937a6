package server

import (
	"runtime/debug"
	"time"

	"github.com/pkg/errors"

	"github.com/determined-ai/gotp/pkg/actor"
)

// Handler is the behavior of a server. Every callback runs on the server's goroutine, one message
// at a time. An error returned from any callback terminates the server with that error.
type Handler interface {
	// Init is called once before the first message is received.
	Init(ctx *Context) error
	// HandleCall answers a call. A non-nil result is sent back as the reply; a nil result defers
	// the reply, which must then be sent with Context.Reply. An error is replied to the caller
	// and then terminates the server.
	HandleCall(ctx *Context, from actor.Handle, id CallID, req actor.Message) (actor.Message, error)
	// HandleCast handles a one-way request.
	HandleCast(ctx *Context, from actor.Handle, id CallID, msg actor.Message) error
	// HandleInfo handles any message that is neither a call nor a cast.
	HandleInfo(ctx *Context, msg actor.Message) error
	// HandleTimeout is called when no message arrives within the idle timeout.
	HandleTimeout(ctx *Context) error
	// Terminate is called once when the server stops, with a nil cause for a normal stop.
	Terminate(ctx *Context, cause error)
}

// Base provides default callbacks. Calls and casts are rejected as unexpected, other messages and
// timeouts are ignored.
type Base struct{}

// Init implements Handler.
func (Base) Init(*Context) error {
	return nil
}

// HandleCall implements Handler.
func (Base) HandleCall(
	ctx *Context, _ actor.Handle, _ CallID, req actor.Message,
) (actor.Message, error) {
	return nil, actor.ErrUnexpectedMessage(ctx.Context, req)
}

// HandleCast implements Handler.
func (Base) HandleCast(ctx *Context, _ actor.Handle, _ CallID, msg actor.Message) error {
	return actor.ErrUnexpectedMessage(ctx.Context, msg)
}

// HandleInfo implements Handler.
func (Base) HandleInfo(ctx *Context, msg actor.Message) error {
	ctx.Log().Debugf("ignoring unexpected message %T", msg)
	return nil
}

// HandleTimeout implements Handler.
func (Base) HandleTimeout(*Context) error {
	return nil
}

// Terminate implements Handler.
func (Base) Terminate(*Context, error) {}

type options struct {
	timeout  time.Duration
	mailbox  *actor.MailboxConfig
	register bool
	trapExit bool
}

// Option configures a server.
type Option func(*options)

// WithTimeout sets the idle timeout after which HandleTimeout is called.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		o.timeout = d
	}
}

// WithMailbox overrides the server's mailbox configuration.
func WithMailbox(cfg actor.MailboxConfig) Option {
	return func(o *options) {
		o.mailbox = &cfg
	}
}

// WithRegister registers the server under its name when it starts.
func WithRegister() Option {
	return func(o *options) {
		o.register = true
	}
}

// WithTrapExit delivers link exits to HandleInfo instead of terminating the server.
func WithTrapExit() Option {
	return func(o *options) {
		o.trapExit = true
	}
}

func newOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// New wraps a handler in an actor.
func New(handler Handler, opts ...Option) actor.Actor {
	return &server{handler: handler, opts: newOptions(opts)}
}

// Props returns the props of a server whose handler is produced by the factory. Servers started
// from these props can be restarted with a fresh handler.
func Props(name string, factory func() Handler, opts ...Option) actor.Props {
	o := newOptions(opts)
	return actor.Props{
		Name: name,
		Factory: func() actor.Actor {
			return &server{handler: factory(), opts: o}
		},
		Mailbox:  o.mailbox,
		Register: o.register,
		TrapExit: o.trapExit,
	}
}

// Spawn starts a server running the handler instance. A server spawned this way keeps the same
// handler instance if it is reinstantiated; use Props for restarts with fresh state.
func Spawn(system *actor.System, name string, handler Handler, opts ...Option) (*actor.Ref, error) {
	props := Props(name, func() Handler { return handler }, opts...)
	ref, err := system.NewRef(props)
	if err != nil {
		return nil, err
	}
	if err := ref.Start(); err != nil {
		return nil, err
	}
	return ref, nil
}

// Stop asks a server to terminate normally.
func Stop(target actor.Handle) error {
	return actor.RequestShutdown(target, nil)
}

type server struct {
	handler Handler
	opts    options
}

func (s *server) Run(actx *actor.Context) error {
	ctx := &Context{
		Context: actx,
		pending: make(map[pendingKey]struct{}),
		timeout: s.opts.timeout,
	}

	if err := ctx.invoke(func() error { return s.handler.Init(ctx) }); err != nil {
		return s.terminate(ctx, errors.Wrap(err, "initializing server"))
	}

	for !ctx.stopped {
		var msg actor.Message
		var err error
		if ctx.timeout > 0 {
			msg, err = ctx.ReceiveTimeout(ctx.timeout)
		} else {
			msg, err = ctx.Receive()
		}

		switch {
		case errors.Is(err, actor.ErrTimeout):
			err = ctx.invoke(func() error { return s.handler.HandleTimeout(ctx) })
		case err != nil:
		default:
			err = s.dispatch(ctx, msg)
		}
		if err != nil {
			return s.terminate(ctx, err)
		}
	}
	return s.terminate(ctx, ctx.stopCause)
}

func (s *server) dispatch(ctx *Context, msg actor.Message) error {
	req, ok := msg.(Request)
	if !ok {
		return ctx.invoke(func() error { return s.handler.HandleInfo(ctx, msg) })
	}
	if req.Cast {
		return ctx.invoke(func() error {
			return s.handler.HandleCast(ctx, req.From, req.ID, req.Payload)
		})
	}

	ctx.pending[pendingKey{from: req.From, id: req.ID}] = struct{}{}
	var result actor.Message
	err := ctx.invoke(func() (err error) {
		result, err = s.handler.HandleCall(ctx, req.From, req.ID, req.Payload)
		return err
	})
	switch {
	case err != nil:
		if rErr := ctx.ReplyError(req.From, req.ID, err); rErr != nil {
			ctx.Log().WithError(rErr).Debug("could not reply with error")
		}
		return err
	case result != nil:
		if rErr := ctx.Reply(req.From, req.ID, result); rErr != nil {
			ctx.Log().WithError(rErr).Warn("could not reply to call")
		}
	}
	return nil
}

// terminate runs the Terminate callback and returns the cause the actor dies with. A shutdown
// request is a normal stop.
func (s *server) terminate(ctx *Context, cause error) error {
	if errors.Is(cause, actor.ErrShutdown) {
		cause = nil
	}
	if err := ctx.invoke(func() error {
		s.handler.Terminate(ctx, cause)
		return nil
	}); err != nil {
		ctx.Log().WithError(err).Error("error terminating server")
	}
	return cause
}

// invoke runs a callback, converting a panic into an error.
func (c *Context) invoke(f func() error) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			c.Log().Error(rec, "\n", string(debug.Stack()))
			err = errors.Errorf("unexpected panic: %v", rec)
		}
	}()
	return f()
}
