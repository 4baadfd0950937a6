package actors

import (
	"fmt"
	"sync"

	"github.com/determined-ai/gotp/pkg/actor"
	"github.com/determined-ai/gotp/pkg/actor/server"
)

type (
	// ForwardThroughMock forwards a message (Msg) to another actor (To), using call and cast
	// appropriately.
	ForwardThroughMock struct {
		To  actor.Handle
		Msg actor.Message
	}
	// MockResponse sets up a reply to calls carrying a message of a given type.
	MockResponse struct {
		Msg      actor.Message
		Consumed bool
	}
	// MockServer is a convenience server for testing clients of servers without instantiating
	// the real ones. Calls are echoed back unless a response was set up for their type; an error
	// message terminates the server with that error.
	MockServer struct {
		server.Base

		mu        sync.Mutex
		Messages  []actor.Message
		Responses map[string]*MockResponse
	}
)

// NewMockServer returns a mock server with no expectations.
func NewMockServer() *MockServer {
	return &MockServer{Responses: make(map[string]*MockResponse)}
}

// HandleCall implements server.Handler.
func (a *MockServer) HandleCall(
	ctx *server.Context, _ actor.Handle, _ server.CallID, req actor.Message,
) (actor.Message, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.Messages = append(a.Messages, req)
	switch msg := req.(type) {
	case error:
		return nil, msg
	case ForwardThroughMock:
		return server.Call(ctx.Context, msg.To, msg.Msg, actor.Forever)
	default:
		if resp, ok := a.Responses[fmt.Sprintf("%T", msg)]; ok {
			resp.Consumed = true
			return resp.Msg, nil
		}
		return req, nil
	}
}

// HandleCast implements server.Handler.
func (a *MockServer) HandleCast(
	ctx *server.Context, _ actor.Handle, _ server.CallID, msg actor.Message,
) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.Messages = append(a.Messages, msg)
	switch msg := msg.(type) {
	case error:
		return msg
	case ForwardThroughMock:
		return server.Cast(ctx.Context, msg.To, msg.Msg)
	default:
		if resp, ok := a.Responses[fmt.Sprintf("%T", msg)]; ok {
			resp.Consumed = true
		}
		return nil
	}
}

// HandleInfo implements server.Handler.
func (a *MockServer) HandleInfo(_ *server.Context, msg actor.Message) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.Messages = append(a.Messages, msg)
	return nil
}

// Expect sets up an expectation to send some response.
func (a *MockServer) Expect(t string, r MockResponse) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.Responses[t] = &r
}

// Received returns a copy of the messages received so far.
func (a *MockServer) Received() []actor.Message {
	a.mu.Lock()
	defer a.mu.Unlock()

	return append([]actor.Message{}, a.Messages...)
}

// AssertExpectations asserts mocked expectations were met.
func (a *MockServer) AssertExpectations() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	for t, r := range a.Responses {
		if !r.Consumed {
			return fmt.Errorf("expected to reply with %s", t)
		}
	}
	return nil
}
