package supervisor

import (
	"github.com/emirpasic/gods/maps/linkedhashmap"
	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"

	"github.com/determined-ai/gotp/pkg/actor"
	"github.com/determined-ai/gotp/pkg/actor/server"
	"github.com/determined-ai/gotp/pkg/check"
)

// Requests handled by the supervisor's run loop.
type (
	getChild struct {
		id string
	}
	getChildren struct{}
	addChild    struct {
		spec ChildSpec
	}
	removeChild struct {
		id        string
		terminate bool
	}

	// childRef wraps a possibly nil reference so that it can be used as a reply.
	childRef struct {
		ref *actor.Ref
	}
)

type child struct {
	spec ChildSpec
	// ref is the running instance, nil while the child is stopped. last is kept for
	// reinstantiation.
	ref     *actor.Ref
	last    *actor.Ref
	watch   actor.WatchToken
	history restartHistory
}

// supervisor is the server behavior of a supervisor. Its children are kept in start order and
// are only touched from its own goroutine.
type supervisor struct {
	server.Base

	strategy Strategy
	specs    []ChildSpec
	clock    clockwork.Clock

	children *linkedhashmap.Map
	group    restartHistory
}

// Option configures a supervisor.
type Option func(*supervisor)

// WithClock sets the clock used to measure restart windows.
func WithClock(clock clockwork.Clock) Option {
	return func(s *supervisor) {
		s.clock = clock
	}
}

func newSupervisor(strategy Strategy, specs []ChildSpec, opts ...Option) *supervisor {
	s := &supervisor{
		strategy: strategy,
		specs:    append([]ChildSpec{}, specs...),
		clock:    clockwork.NewRealClock(),
		children: linkedhashmap.New(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *supervisor) Init(ctx *server.Context) error {
	ctx.AddLabel("strategy", s.strategy)
	for _, spec := range s.specs {
		if _, err := s.addChild(ctx, spec); err != nil {
			return err
		}
	}
	return nil
}

func (s *supervisor) HandleCall(
	ctx *server.Context, from actor.Handle, id server.CallID, req actor.Message,
) (actor.Message, error) {
	switch req := req.(type) {
	case getChild:
		if c := s.child(req.id); c != nil {
			return childRef{ref: c.ref}, nil
		}
		return childRef{}, nil
	case getChildren:
		return s.refs(), nil
	case addChild:
		ref, err := s.addChild(ctx, req.spec)
		if err != nil {
			return nil, s.replyError(ctx, from, id, err)
		}
		return childRef{ref: ref}, nil
	case removeChild:
		c := s.child(req.id)
		if c == nil {
			return nil, s.replyError(ctx, from, id,
				errors.Wrapf(ErrChildNotFound, "removing child %q", req.id))
		}
		if req.terminate {
			s.shutdownChild(ctx, c)
		} else if c.ref != nil {
			ctx.Unwatch(c.ref, c.watch)
		}
		s.children.Remove(req.id)
		return true, nil
	default:
		return s.Base.HandleCall(ctx, from, id, req)
	}
}

// replyError answers a failed request without terminating the supervisor.
func (s *supervisor) replyError(
	ctx *server.Context, from actor.Handle, id server.CallID, err error,
) error {
	if rErr := ctx.ReplyError(from, id, err); rErr != nil {
		ctx.Log().WithError(rErr).Warn("could not reply to supervisor request")
	}
	return nil
}

func (s *supervisor) HandleInfo(ctx *server.Context, msg actor.Message) error {
	exit, ok := msg.(actor.ExitMessage)
	if !ok {
		return s.Base.HandleInfo(ctx, msg)
	}
	c := s.watched(exit.Watch)
	if c == nil {
		ctx.Log().Debugf("ignoring stale exit of %s", exit.Actor)
		return nil
	}
	c.ref = nil
	log := ctx.Log().WithField("child", c.spec.ID)
	if exit.Cause != nil {
		log.WithError(exit.Cause).Info("child died")
	} else {
		log.Info("child exited")
	}
	return s.onChildDeath(ctx, c, exit.Cause)
}

func (s *supervisor) Terminate(ctx *server.Context, cause error) {
	s.shutdownAll(ctx)
}

func (s *supervisor) onChildDeath(ctx *server.Context, c *child, cause error) error {
	switch s.strategy {
	case Escalate:
		return errors.Wrapf(ErrEscalated, "child %s died: %v", c.spec.ID, cause)
	case AllForOne, RestForOne:
		if c.spec.Mode == Temporary || (c.spec.Mode == Transient && cause == nil) {
			return s.tryRestart(ctx, c, cause, true, true)
		}
		return s.restartGroup(ctx, c, cause)
	default:
		return s.tryRestart(ctx, c, cause, true, true)
	}
}

// restartGroup shuts down the group of the failed child in reverse start order and restarts it
// in start order. AllForOne accounts for the restart once for the whole group.
func (s *supervisor) restartGroup(ctx *server.Context, failed *child, cause error) error {
	all := s.ordered()
	group := all
	if s.strategy == RestForOne {
		for i, c := range all {
			if c == failed {
				group = all[i:]
				break
			}
		}
	} else {
		if n := s.group.add(s.clock, failed.spec.Window); n > failed.spec.MaxRestarts {
			return s.intensityExceeded(failed, n, cause)
		}
	}

	for i := len(group) - 1; i >= 0; i-- {
		s.shutdownChild(ctx, group[i])
	}
	for _, c := range group {
		var err error
		if c == failed {
			err = s.tryRestart(ctx, c, cause, true, s.strategy == RestForOne)
		} else {
			err = s.tryRestart(ctx, c, nil, false, s.strategy == RestForOne)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// tryRestart applies the child's restart mode. It returns an error when the supervisor must give
// up.
func (s *supervisor) tryRestart(
	ctx *server.Context, c *child, cause error, isDead bool, account bool,
) error {
	switch c.spec.Mode {
	case Transient:
		if isDead && cause == nil {
			s.children.Remove(c.spec.ID)
			return nil
		}
		fallthrough
	case Permanent:
		s.shutdownChild(ctx, c)
		if account {
			if n := c.history.add(s.clock, c.spec.Window); n > c.spec.MaxRestarts {
				return s.intensityExceeded(c, n, cause)
			}
		}
		return s.start(ctx, c, true)
	default:
		if !isDead {
			s.shutdownChild(ctx, c)
		}
		s.children.Remove(c.spec.ID)
		return nil
	}
}

func (s *supervisor) intensityExceeded(c *child, n int, cause error) error {
	return errors.Wrapf(ErrRestartIntensity, "child %s died %d times within %s, last cause: %v",
		c.spec.ID, n, c.spec.Window, cause)
}

func (s *supervisor) addChild(ctx *server.Context, spec ChildSpec) (*actor.Ref, error) {
	if err := check.Combine(spec.Validate()); err != nil {
		return nil, err
	}
	if _, ok := s.children.Get(spec.ID); ok {
		return nil, errors.Wrapf(ErrChildExists, "adding child %q", spec.ID)
	}

	c := &child{spec: spec, ref: spec.Ref, last: spec.Ref}
	if c.ref != nil && c.ref.State() != actor.StateNew {
		c.watch = ctx.Watch(c.ref)
	} else if err := s.start(ctx, c, false); err != nil {
		return nil, err
	}
	s.children.Put(spec.ID, c)
	ctx.Log().WithField("child", spec.ID).Debug("child added")
	return c.ref, nil
}

// start creates and starts a new instance of the child. The child is watched before it starts so
// that an immediate death is not missed.
func (s *supervisor) start(ctx *server.Context, c *child, restart bool) error {
	ref := c.ref
	if ref == nil {
		ref = c.last
	}
	if ref == nil || ref.State() != actor.StateNew {
		var err error
		switch {
		case c.spec.Factory != nil:
			ref, err = ctx.System().NewRef(c.spec.props())
		case ref != nil:
			ref, err = ref.Reinstantiate()
		default:
			err = errors.Wrapf(actor.ErrNotReinstantiable, "child %s has no reference", c.spec.ID)
		}
		if err != nil {
			return errors.Wrapf(err, "starting child %s", c.spec.ID)
		}
	}

	watch := ctx.Watch(ref)
	if err := ref.Start(); err != nil {
		ctx.Unwatch(ref, watch)
		return errors.Wrapf(err, "starting child %s", c.spec.ID)
	}
	c.ref, c.last, c.watch = ref, ref, watch
	if restart {
		ctx.System().ReportRestart(ref)
		ctx.Log().WithField("child", c.spec.ID).Infof("child restarted as %s", ref)
	}
	return nil
}

// shutdownChild stops a running child: it asks the child to shut down, interrupts it if it does
// not exit within its shutdown timeout, and abandons it if it still does not exit.
func (s *supervisor) shutdownChild(ctx *server.Context, c *child) {
	ref := c.ref
	if ref == nil {
		return
	}
	c.ref = nil
	ctx.Unwatch(ref, c.watch)
	if !ref.IsAlive() {
		return
	}

	log := ctx.Log().WithField("child", c.spec.ID)
	timeout := c.spec.shutdownTimeout()
	_ = actor.RequestShutdown(ref, ctx.Self())
	if ref.Wait(timeout) {
		log.Debug("child shut down")
		return
	}
	log.Warnf("child did not shut down within %s, interrupting", timeout)
	ref.Interrupt()
	if !ref.Wait(timeout) {
		log.Warn("child did not exit after interrupt, abandoning")
		ref.Unregister()
	}
}

func (s *supervisor) shutdownAll(ctx *server.Context) {
	all := s.ordered()
	for i := len(all) - 1; i >= 0; i-- {
		s.shutdownChild(ctx, all[i])
	}
}

func (s *supervisor) child(id string) *child {
	if c, ok := s.children.Get(id); ok {
		return c.(*child)
	}
	return nil
}

func (s *supervisor) watched(token actor.WatchToken) *child {
	for _, c := range s.ordered() {
		if c.ref != nil && c.watch == token {
			return c
		}
	}
	return nil
}

func (s *supervisor) ordered() []*child {
	values := s.children.Values()
	children := make([]*child, 0, len(values))
	for _, v := range values {
		children = append(children, v.(*child))
	}
	return children
}

func (s *supervisor) refs() []*actor.Ref {
	refs := make([]*actor.Ref, 0, s.children.Size())
	for _, c := range s.ordered() {
		if c.ref != nil {
			refs = append(refs, c.ref)
		}
	}
	return refs
}
