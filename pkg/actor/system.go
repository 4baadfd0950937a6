package actor

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/determined-ai/gotp/pkg/logger"
)

// System is a set of actors sharing a registry, a default mailbox configuration and a monitor.
type System struct {
	id     string
	log    *log.Entry
	labels logger.Context

	mailbox  MailboxConfig
	monitor  Monitor
	registry *registry
	calls    *callGraph
	nextID   atomic.Int64

	refsLock sync.Mutex
	refs     map[int64]*Ref
}

// Option configures a system.
type Option func(*System)

// WithMailbox sets the default mailbox configuration of actors in the system.
func WithMailbox(cfg MailboxConfig) Option {
	return func(s *System) {
		s.mailbox = cfg
	}
}

// WithLabels adds logging fields to every actor of the system. Later labels win.
func WithLabels(labels logger.Context) Option {
	return func(s *System) {
		s.labels = logger.MergeContexts(s.labels, labels)
	}
}

// WithMonitor sets the monitor that receives actor activity hooks.
func WithMonitor(m Monitor) Option {
	return func(s *System) {
		if m != nil {
			s.monitor = m
		}
	}
}

// WithDeadlockDetection enables the detection of call cycles between local actors.
func WithDeadlockDetection(enabled bool) Option {
	return func(s *System) {
		if enabled {
			s.calls = newCallGraph()
		} else {
			s.calls = nil
		}
	}
}

// NewSystem constructs a new actor system.
func NewSystem(id string, opts ...Option) *System {
	s := &System{
		id:       id,
		labels:   logger.Context{},
		mailbox:  DefaultMailboxConfig(),
		monitor:  NopMonitor{},
		registry: &registry{},
		refs:     make(map[int64]*Ref),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = log.WithFields(logger.MergeContexts(s.labels, logger.Context{"system": id}).Fields())
	return s
}

var background = sync.OnceValue(func() *System {
	return NewSystem("background")
})

// ID returns the id of the system.
func (s *System) ID() string {
	return s.id
}

// NewRef creates an actor reference from the props' factory without starting it.
func (s *System) NewRef(props Props) (*Ref, error) {
	if props.Factory == nil {
		return nil, errors.Errorf("actor %q has no factory", props.Name)
	}
	actor := props.Factory()
	if actor == nil {
		return nil, errors.Errorf("factory of actor %q returned no actor", props.Name)
	}
	return newRef(s, props, actor), nil
}

// Spawn creates an actor reference from the props and starts it.
func (s *System) Spawn(props Props) (*Ref, error) {
	ref, err := s.NewRef(props)
	if err != nil {
		return nil, err
	}
	if err := ref.Start(); err != nil {
		return nil, err
	}
	return ref, nil
}

// SpawnActor starts an actor instance under the name, which may be empty. The actor cannot be
// reinstantiated unless it implements Reinstantiable.
func (s *System) SpawnActor(name string, actor Actor) (*Ref, error) {
	ref := newRef(s, Props{Name: name}, actor)
	if err := ref.Start(); err != nil {
		return nil, err
	}
	return ref, nil
}

// NewTempContext creates a context for code that is not running in an actor, so that it can
// receive replies and watch actors. The context must be released when it is no longer needed.
func (s *System) NewTempContext() *Context {
	ref := newRef(s, Props{}, tempActor{})
	ref.state = StateRunning
	ref.context.temp = true
	return ref.context
}

// TempContext creates a temporary context in the system of the handle, or in a background system
// if the handle is not local.
func TempContext(h Handle) *Context {
	if ref, ok := h.(*Ref); ok {
		return ref.system.NewTempContext()
	}
	return background().NewTempContext()
}

type tempActor struct{}

func (tempActor) Run(*Context) error {
	return nil
}

// Lookup returns the handle registered under the name, or nil.
func (s *System) Lookup(name string) Handle {
	return s.registry.lookup(name)
}

// Register registers a handle under the name. Local references are registered as by
// Ref.Register; other handles are registered directly.
func (s *System) Register(name string, h Handle) error {
	if ref, ok := h.(*Ref); ok && ref.system == s {
		return ref.Register(name)
	}
	return s.registry.register(name, h)
}

// Unregister removes the name if it is still registered to the handle.
func (s *System) Unregister(name string, h Handle) {
	if ref, ok := h.(*Ref); ok && ref.system == s {
		ref.Unregister()
		return
	}
	s.registry.unregister(name, h)
}

// Names returns the registered names in sorted order.
func (s *System) Names() []string {
	return s.registry.list()
}

func (s *System) track(r *Ref) {
	s.refsLock.Lock()
	defer s.refsLock.Unlock()
	s.refs[r.id] = r
}

func (s *System) untrack(r *Ref) {
	s.refsLock.Lock()
	delete(s.refs, r.id)
	s.refsLock.Unlock()
	s.forgetCalls(r)
}

// Refs returns the running actors of the system.
func (s *System) Refs() []*Ref {
	s.refsLock.Lock()
	defer s.refsLock.Unlock()
	refs := make([]*Ref, 0, len(s.refs))
	for _, ref := range s.refs {
		refs = append(refs, ref)
	}
	return refs
}

// Shutdown asks every running actor to shut down and waits up to the timeout for each of them.
// Actors that do not exit in time are interrupted and waited on once more.
func (s *System) Shutdown(timeout time.Duration) error {
	refs := s.Refs()
	for _, ref := range refs {
		_ = RequestShutdown(ref, nil)
	}

	var result *multierror.Error
	for _, ref := range refs {
		if ref.Wait(timeout) {
			continue
		}
		ref.Interrupt()
		if !ref.Wait(timeout) {
			result = multierror.Append(result, errors.Wrapf(ErrTimeout, "shutting down %s", ref))
		}
	}
	return result.ErrorOrNil()
}
