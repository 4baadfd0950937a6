// Package eventsource implements an event manager: a server that dispatches each event it
// receives to a dynamic set of handlers.
package eventsource

import (
	"time"

	"github.com/pkg/errors"

	"github.com/determined-ai/gotp/pkg/actor"
	"github.com/determined-ai/gotp/pkg/actor/server"
)

// Handler handles the events of an event source. Handlers run on the source's goroutine. An
// error or panic in a handler terminates the source with that cause.
//
// Handlers are identified by interface equality, so they should be pointers.
type Handler interface {
	HandleEvent(event actor.Message) error
}

type funcHandler struct {
	f func(event actor.Message) error
}

func (h *funcHandler) HandleEvent(event actor.Message) error {
	return h.f(event)
}

// OnEvent adapts a function to a handler. The returned handler can be passed to RemoveHandler.
func OnEvent(f func(event actor.Message) error) Handler {
	return &funcHandler{f: f}
}

type (
	addHandler struct {
		handler Handler
	}
	removeHandler struct {
		handler Handler
	}
)

type source struct {
	server.Base

	handlers []Handler
}

func (s *source) HandleCall(
	ctx *server.Context, from actor.Handle, id server.CallID, req actor.Message,
) (actor.Message, error) {
	switch req := req.(type) {
	case addHandler:
		for _, h := range s.handlers {
			if h == req.handler {
				return false, nil
			}
		}
		ctx.Log().Infof("adding handler %T", req.handler)
		s.handlers = append(s.handlers, req.handler)
		return true, nil
	case removeHandler:
		for i, h := range s.handlers {
			if h == req.handler {
				ctx.Log().Infof("removing handler %T", req.handler)
				s.handlers = append(s.handlers[:i], s.handlers[i+1:]...)
				return true, nil
			}
		}
		return false, nil
	default:
		return s.Base.HandleCall(ctx, from, id, req)
	}
}

func (s *source) HandleCast(
	ctx *server.Context, _ actor.Handle, _ server.CallID, event actor.Message,
) error {
	return s.notify(ctx, event)
}

// HandleInfo treats plain messages as events.
func (s *source) HandleInfo(ctx *server.Context, event actor.Message) error {
	if _, ok := event.(actor.LifecycleMessage); ok {
		return s.Base.HandleInfo(ctx, event)
	}
	return s.notify(ctx, event)
}

func (s *source) notify(ctx *server.Context, event actor.Message) error {
	ctx.Log().Debugf("got event %T", event)
	for _, h := range append([]Handler{}, s.handlers...) {
		if err := h.HandleEvent(event); err != nil {
			return errors.Wrapf(err, "handling event %T", event)
		}
	}
	return nil
}

func (s *source) Terminate(*server.Context, error) {
	s.handlers = nil
}

// EventSource is a handle to a running event source.
type EventSource struct {
	ref *actor.Ref
}

// Spawn starts an event source with the initial handlers.
func Spawn(
	system *actor.System, name string, handlers []Handler, opts ...server.Option,
) (*EventSource, error) {
	ref, err := system.Spawn(Props(name, handlers, opts...))
	if err != nil {
		return nil, err
	}
	return &EventSource{ref: ref}, nil
}

// Props returns the props of an event source, for use under a supervisor. Every instance starts
// with the initial handlers, so handlers added later are lost when the source is restarted.
func Props(name string, handlers []Handler, opts ...server.Option) actor.Props {
	return server.Props(name, func() server.Handler {
		return &source{handlers: append([]Handler{}, handlers...)}
	}, opts...)
}

// Wrap returns a handle to an event source started from Props.
func Wrap(ref *actor.Ref) *EventSource {
	return &EventSource{ref: ref}
}

// Ref returns the event source's actor.
func (e *EventSource) Ref() *actor.Ref {
	return e.ref
}

// AddHandler adds a handler. It returns false if the handler was already added.
func (e *EventSource) AddHandler(h Handler) (bool, error) {
	resp, err := server.Call(nil, e.ref, addHandler{handler: h}, actor.Forever)
	if err != nil {
		return false, err
	}
	return resp.(bool), nil
}

// RemoveHandler removes a handler. It returns false if the handler was not found.
func (e *EventSource) RemoveHandler(h Handler) (bool, error) {
	resp, err := server.Call(nil, e.ref, removeHandler{handler: h}, actor.Forever)
	if err != nil {
		return false, err
	}
	return resp.(bool), nil
}

// Notify sends an event to every handler asynchronously.
func (e *EventSource) Notify(event actor.Message) error {
	return server.Cast(nil, e.ref, event)
}

// Shutdown stops the event source and returns its death cause.
func (e *EventSource) Shutdown(timeout time.Duration) error {
	if err := server.Stop(e.ref); err != nil && e.ref.IsAlive() {
		return err
	}
	return e.ref.Join(timeout)
}
