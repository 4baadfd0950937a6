package supervisor

import (
	"time"

	"github.com/pkg/errors"

	"github.com/determined-ai/gotp/pkg/actor"
	"github.com/determined-ai/gotp/pkg/actor/server"
)

// Supervisor is a handle to a running supervisor.
type Supervisor struct {
	ref *actor.Ref
}

// Props returns the props of a supervisor. The children are started, in order, when the
// supervisor starts; a child that fails to start fails the supervisor.
func Props(
	name string, strategy Strategy, specs []ChildSpec, opts ...Option,
) actor.Props {
	return server.Props(name, func() server.Handler {
		return newSupervisor(strategy, specs, opts...)
	})
}

// Factory returns an actor factory for a supervisor, for use in the ChildSpec of a nested
// supervisor. Each instance starts a fresh set of children.
func Factory(strategy Strategy, specs []ChildSpec, opts ...Option) func() actor.Actor {
	return func() actor.Actor {
		return server.New(newSupervisor(strategy, specs, opts...))
	}
}

// Spawn starts a supervisor and waits until its children have been started.
func Spawn(
	system *actor.System, name string, strategy Strategy, specs []ChildSpec, opts ...Option,
) (*Supervisor, error) {
	ref, err := system.Spawn(Props(name, strategy, specs, opts...))
	if err != nil {
		return nil, err
	}
	s := &Supervisor{ref: ref}
	// The first call is answered only after Init has started every child.
	if _, err := s.GetChildren(); err != nil {
		return nil, errors.Wrapf(err, "starting supervisor %s", name)
	}
	return s, nil
}

// Wrap returns a handle to a supervisor started from Props or Factory.
func Wrap(ref *actor.Ref) *Supervisor {
	return &Supervisor{ref: ref}
}

// Ref returns the supervisor's actor.
func (s *Supervisor) Ref() *actor.Ref {
	return s.ref
}

// GetChild returns the running instance of the child, or nil if the child is unknown or
// currently stopped.
func (s *Supervisor) GetChild(id string) (*actor.Ref, error) {
	resp, err := server.Call(nil, s.ref, getChild{id: id}, actor.Forever)
	if err != nil {
		return nil, err
	}
	return resp.(childRef).ref, nil
}

// GetChildren returns the running children in start order.
func (s *Supervisor) GetChildren() ([]*actor.Ref, error) {
	resp, err := server.Call(nil, s.ref, getChildren{}, actor.Forever)
	if err != nil {
		return nil, err
	}
	return resp.([]*actor.Ref), nil
}

// AddChild starts a new child and returns its instance.
func (s *Supervisor) AddChild(spec ChildSpec) (*actor.Ref, error) {
	resp, err := server.Call(nil, s.ref, addChild{spec: spec}, actor.Forever)
	if err != nil {
		return nil, err
	}
	return resp.(childRef).ref, nil
}

// RemoveChild stops supervising the child. If terminate is set the child is shut down, otherwise
// it keeps running unsupervised.
func (s *Supervisor) RemoveChild(id string, terminate bool) error {
	_, err := server.Call(nil, s.ref, removeChild{id: id, terminate: terminate}, actor.Forever)
	return err
}

// Shutdown stops the supervisor and its children, and returns the supervisor's death cause.
func (s *Supervisor) Shutdown(timeout time.Duration) error {
	if err := server.Stop(s.ref); err != nil && s.ref.IsAlive() {
		return err
	}
	return s.ref.Join(timeout)
}
