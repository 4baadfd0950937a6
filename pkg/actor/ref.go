package actor

import (
	"encoding/json"
	"fmt"
	"reflect"
	"runtime/debug"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// State is the lifecycle state of an actor.
type State int

// Actor states. An actor moves from new to running to dead and never goes back.
const (
	StateNew State = iota
	StateRunning
	StateDead
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateRunning:
		return "running"
	default:
		return "dead"
	}
}

// Ref is a reference to a local actor. It owns the actor's mailbox, goroutine and lifecycle.
type Ref struct {
	log *log.Entry

	id             int64
	typeName       string
	registeredTime time.Time

	system   *System
	props    Props
	actor    Actor
	mailbox  *Mailbox
	context  *Context
	trapExit atomic.Bool

	interrupts chan struct{}
	thrownLock sync.Mutex
	thrown     error

	// lLock guards the lifecycle state, the death listeners and the listeners this actor has
	// registered on other actors. Listeners added after death are notified immediately.
	lLock      sync.Mutex
	name       string
	state      State
	err        error
	listeners  []Listener
	observed   map[Handle][]Listener
	registered bool
	done       chan struct{}
}

func newRef(system *System, props Props, actor Actor) *Ref {
	typeName := reflect.TypeOf(actor).String()
	if strings.Contains(typeName, ".") {
		typeName = strings.Split(typeName, ".")[1]
	}
	cfg := system.mailbox
	if props.Mailbox != nil {
		cfg = *props.Mailbox
	}

	ref := &Ref{
		id:             system.nextID.Add(1),
		typeName:       typeName,
		registeredTime: time.Now(),

		system:     system,
		props:      props,
		actor:      actor,
		interrupts: make(chan struct{}, 1),

		name:     props.Name,
		observed: make(map[Handle][]Listener),
		done:     make(chan struct{}),
	}
	ref.log = system.log.WithField("type", typeName).WithField("id", ref.id)
	if props.Name != "" {
		ref.log = ref.log.WithField("name", props.Name)
	}
	ref.mailbox = NewMailbox(ref.String(), cfg)
	ref.context = &Context{ref: ref}
	ref.trapExit.Store(props.TrapExit)
	return ref
}

// ID returns the system-unique id of the actor.
func (r *Ref) ID() int64 {
	return r.id
}

// Name returns the name of the actor, which may be empty.
func (r *Ref) Name() string {
	r.lLock.Lock()
	defer r.lLock.Unlock()
	return r.name
}

// System returns the system that this actor belongs to.
func (r *Ref) System() *System {
	return r.system
}

// Mailbox returns the actor's mailbox.
func (r *Ref) Mailbox() *Mailbox {
	return r.mailbox
}

// RegisteredTime returns the time the reference was created.
func (r *Ref) RegisteredTime() time.Time {
	return r.registeredTime
}

func (r *Ref) String() string {
	if name := r.Name(); name != "" {
		return fmt.Sprintf("%s://%s#%d", r.system.id, name, r.id)
	}
	return fmt.Sprintf("%s://%s#%d", r.system.id, r.typeName, r.id)
}

// MarshalJSON implements the json.Marshaler interface.
func (r *Ref) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.String())
}

// Start starts the actor's goroutine. Actors with Props.Register set are registered first.
func (r *Ref) Start() error {
	r.lLock.Lock()
	state := r.state
	r.lLock.Unlock()
	if state != StateNew {
		return errors.Wrapf(ErrAlreadyStarted, "starting %s", r)
	}

	if r.props.Register {
		if err := r.Register(""); err != nil {
			return err
		}
	}

	r.lLock.Lock()
	if r.state != StateNew {
		r.lLock.Unlock()
		return errors.Wrapf(ErrAlreadyStarted, "starting %s", r)
	}
	r.state = StateRunning
	r.lLock.Unlock()

	r.system.track(r)
	r.system.report(func(m Monitor) { m.ActorStarted(r) })
	go r.run()
	return nil
}

func (r *Ref) run() {
	r.die(r.runActor())
}

func (r *Ref) runActor() (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error(rec, "\n", string(debug.Stack()))
			err = errors.Errorf("unexpected panic: %v", rec)
		}
	}()
	if err = r.actor.Run(r.context); errors.Is(err, ErrShutdown) {
		return nil
	}
	return err
}

func (r *Ref) die(cause error) {
	r.lLock.Lock()
	if r.state == StateDead {
		r.lLock.Unlock()
		return
	}
	r.state = StateDead
	r.err = cause
	listeners, observed := r.listeners, r.observed
	r.listeners, r.observed = nil, nil
	registered, name := r.registered, r.name
	r.registered = false
	r.lLock.Unlock()

	if cause != nil {
		r.log.WithError(cause).Error("error while actor was running")
	} else {
		r.log.Debug("actor exited")
	}

	if dropped := r.mailbox.close(); len(dropped) > 0 {
		r.log.Debugf("dropping %d undelivered messages", len(dropped))
	}
	if registered {
		r.system.registry.unregister(name, r)
	}
	for other, ls := range observed {
		for _, l := range ls {
			other.RemoveListener(l)
		}
	}
	for _, l := range listeners {
		r.notify(l, cause)
	}

	r.system.untrack(r)
	if !r.context.temp {
		r.system.report(func(m Monitor) { m.ActorDied(r, cause) })
	}
	close(r.done)
}

func (r *Ref) notify(l Listener, cause error) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Errorf("death listener panicked: %v", rec)
		}
	}()
	l.Dead(r, cause)
}

// State returns the lifecycle state of the actor.
func (r *Ref) State() State {
	r.lLock.Lock()
	defer r.lLock.Unlock()
	return r.state
}

// IsAlive returns true if the actor has not died. An actor that has not been started is alive.
func (r *Ref) IsAlive() bool {
	return r.State() != StateDead
}

// Cause returns the cause of the actor's death. It is nil for live actors and normal deaths.
func (r *Ref) Cause() error {
	r.lLock.Lock()
	defer r.lLock.Unlock()
	return r.err
}

// Done returns a channel that is closed after the actor has died and notified its listeners.
func (r *Ref) Done() <-chan struct{} {
	return r.done
}

// Wait waits for the actor to die, returning false if it did not die within the timeout. A
// negative timeout waits forever.
func (r *Ref) Wait(timeout time.Duration) bool {
	if timeout < 0 {
		<-r.done
		return true
	}
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-r.done:
		return true
	case <-t.C:
		return false
	}
}

// Join waits for the actor to die and returns its death cause, or ErrTimeout.
func (r *Ref) Join(timeout time.Duration) error {
	if !r.Wait(timeout) {
		return errors.Wrapf(ErrTimeout, "joining %s", r)
	}
	return r.Cause()
}

// Send implements Handle.
func (r *Ref) Send(msg Message) error {
	return r.mailbox.Send(msg)
}

// Interrupt implements Handle.
func (r *Ref) Interrupt() {
	select {
	case r.interrupts <- struct{}{}:
	default:
	}
}

// ThrowIn implements Handle.
func (r *Ref) ThrowIn(err error) {
	r.thrownLock.Lock()
	r.thrown = err
	r.thrownLock.Unlock()
	r.Interrupt()
}

// takeInterrupt consumes a pending interrupt and returns the error it carries.
func (r *Ref) takeInterrupt() error {
	select {
	case <-r.interrupts:
		return r.interruptCause()
	default:
		return nil
	}
}

func (r *Ref) interruptCause() error {
	r.thrownLock.Lock()
	defer r.thrownLock.Unlock()
	err := r.thrown
	r.thrown = nil
	if err == nil {
		return ErrInterrupted
	}
	return err
}

// AddListener implements Handle.
func (r *Ref) AddListener(l Listener) {
	r.lLock.Lock()
	if r.state == StateDead {
		cause := r.err
		r.lLock.Unlock()
		r.notify(l, cause)
		return
	}
	r.listeners = append(r.listeners, l)
	r.lLock.Unlock()
}

// RemoveListener implements Handle.
func (r *Ref) RemoveListener(l Listener) {
	r.lLock.Lock()
	defer r.lLock.Unlock()
	for i, existing := range r.listeners {
		if existing == l {
			r.listeners = append(r.listeners[:i], r.listeners[i+1:]...)
			return
		}
	}
}

func (r *Ref) observe(other Handle, l Listener) {
	r.lLock.Lock()
	defer r.lLock.Unlock()
	if r.observed != nil {
		r.observed[other] = append(r.observed[other], l)
	}
}

func (r *Ref) unobserve(other Handle, l Listener) {
	r.lLock.Lock()
	defer r.lLock.Unlock()
	ls := r.observed[other]
	for i, existing := range ls {
		if existing == l {
			ls = append(ls[:i], ls[i+1:]...)
			break
		}
	}
	if len(ls) == 0 {
		delete(r.observed, other)
	} else {
		r.observed[other] = ls
	}
}

// Link links the actor with another actor. The death of either delivers an ExitMessage to the
// other, which kills it unless it traps exits or handles the message itself.
func (r *Ref) Link(other Handle) {
	if other == Handle(r) {
		return
	}
	toOther := exitListener{observer: other}
	toSelf := exitListener{observer: r}
	r.observe(other, toSelf)
	if o, ok := other.(*Ref); ok {
		o.observe(r, toOther)
	}
	r.AddListener(toOther)
	other.AddListener(toSelf)
}

// Unlink removes a link in both directions.
func (r *Ref) Unlink(other Handle) {
	toOther := exitListener{observer: other}
	toSelf := exitListener{observer: r}
	r.RemoveListener(toOther)
	other.RemoveListener(toSelf)
	r.unobserve(other, toSelf)
	if o, ok := other.(*Ref); ok {
		o.unobserve(r, toOther)
	}
}

// Watch registers the actor to receive an ExitMessage carrying the returned token when other
// dies. Watching is one-way and never kills the watcher.
func (r *Ref) Watch(other Handle) WatchToken {
	l := exitListener{observer: r, watch: newWatchToken()}
	r.observe(other, l)
	other.AddListener(l)
	return l.watch
}

// Unwatch removes a watch registered by Watch.
func (r *Ref) Unwatch(other Handle, token WatchToken) {
	l := exitListener{observer: r, watch: token}
	other.RemoveListener(l)
	r.unobserve(other, l)
}

// Register registers the actor in its system's registry. An empty name uses the actor's own name.
func (r *Ref) Register(name string) error {
	r.lLock.Lock()
	if name == "" {
		name = r.name
	}
	switch {
	case name == "":
		r.lLock.Unlock()
		return errors.Wrapf(ErrUnnamed, "registering %s", r.typeName)
	case r.name != "" && r.name != name:
		current := r.name
		r.lLock.Unlock()
		return errors.Errorf("actor %s cannot be registered under a different name %q", current, name)
	case r.state == StateDead:
		r.lLock.Unlock()
		return errors.Errorf("cannot register dead actor %s", name)
	case r.registered:
		r.lLock.Unlock()
		return nil
	}
	r.lLock.Unlock()
	return r.bind(name)
}

// bind takes the name in the registry and records it on the actor. The actor may die while the
// name is taken; death only releases names already recorded, so the name is released here.
func (r *Ref) bind(name string) error {
	if err := r.system.registry.register(name, r); err != nil {
		return err
	}

	r.lLock.Lock()
	if r.state == StateDead {
		r.lLock.Unlock()
		r.system.registry.unregister(name, r)
		return errors.Errorf("cannot register dead actor %s", name)
	}
	defer r.lLock.Unlock()
	if r.name == "" {
		r.name = name
		r.log = r.log.WithField("name", name)
	}
	r.registered = true
	return nil
}

// Unregister removes the actor from its system's registry.
func (r *Ref) Unregister() {
	r.lLock.Lock()
	registered, name := r.registered, r.name
	r.registered = false
	r.lLock.Unlock()
	if registered {
		r.system.registry.unregister(name, r)
	}
}

// Reinstantiate creates a new, unstarted reference running a fresh instance of the actor's
// behavior under the same name.
func (r *Ref) Reinstantiate() (*Ref, error) {
	if ri, ok := r.actor.(Reinstantiable); ok {
		return newRef(r.system, r.props, ri.Reinstantiate()), nil
	}
	if r.props.Factory == nil {
		return nil, errors.Wrapf(ErrNotReinstantiable, "reinstantiating %s", r)
	}
	return r.system.NewRef(r.props)
}
