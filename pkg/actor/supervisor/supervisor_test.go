package supervisor

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/determined-ai/gotp/pkg/actor"
)

const testTimeout = 5 * time.Second

type (
	crash struct{}
	quit  struct{}
)

var errCrash = errors.New("child crashed")

// tracker records every instance of a child as it starts.
type tracker struct {
	started chan *actor.Ref
}

func newTracker() *tracker {
	return &tracker{started: make(chan *actor.Ref, 64)}
}

func (tr *tracker) run(ctx *actor.Context) error {
	tr.started <- ctx.Self()
	for {
		msg, err := ctx.Receive()
		if err != nil {
			return err
		}
		switch msg.(type) {
		case crash:
			return errCrash
		case quit:
			return nil
		}
	}
}

func (tr *tracker) factory() func() actor.Actor {
	return func() actor.Actor {
		return actor.ActorFunc(tr.run)
	}
}

func (tr *tracker) next(t *testing.T) *actor.Ref {
	t.Helper()
	select {
	case ref := <-tr.started:
		return ref
	case <-time.After(testTimeout):
		t.Fatal("timed out waiting for child to start")
		return nil
	}
}

func (tr *tracker) assertIdle(t *testing.T) {
	t.Helper()
	select {
	case ref := <-tr.started:
		t.Fatalf("unexpected start of %s", ref)
	case <-time.After(50 * time.Millisecond):
	}
}

func childSpec(id string, mode RestartMode, tr *tracker) ChildSpec {
	return ChildSpec{
		ID:              id,
		Mode:            mode,
		MaxRestarts:     5,
		Window:          time.Minute,
		ShutdownTimeout: time.Second,
		Factory:         tr.factory(),
	}
}

func kill(t *testing.T, ref *actor.Ref, msg actor.Message) {
	t.Helper()
	require.NoError(t, ref.Send(msg))
	require.True(t, ref.Wait(testTimeout), "child %s did not die", ref)
}

func names(refs []*actor.Ref) []string {
	var names []string
	for _, ref := range refs {
		names = append(names, ref.Name())
	}
	return names
}

func TestOneForOne(t *testing.T) {
	system := actor.NewSystem(t.Name())
	a, b := newTracker(), newTracker()
	sup, err := Spawn(system, "sup", OneForOne, []ChildSpec{
		childSpec("a", Permanent, a),
		childSpec("b", Permanent, b),
	})
	require.NoError(t, err)
	a1, b1 := a.next(t), b.next(t)

	kill(t, a1, crash{})
	assert.ErrorIs(t, a1.Cause(), errCrash)
	a2 := a.next(t)
	assert.NotSame(t, a1, a2)
	b.assertIdle(t)

	children, err := sup.GetChildren()
	require.NoError(t, err)
	assert.Equal(t, []*actor.Ref{a2, b1}, children)

	// Permanent children come back after a normal exit too.
	kill(t, b1, quit{})
	b2 := b.next(t)
	child, err := sup.GetChild("b")
	require.NoError(t, err)
	assert.Same(t, b2, child)

	require.NoError(t, sup.Shutdown(testTimeout))
	assert.False(t, a2.IsAlive())
	assert.False(t, b2.IsAlive())
}

func TestAllForOne(t *testing.T) {
	system := actor.NewSystem(t.Name())
	a, b, c := newTracker(), newTracker(), newTracker()
	sup, err := Spawn(system, "sup", AllForOne, []ChildSpec{
		childSpec("a", Permanent, a),
		childSpec("b", Permanent, b),
		childSpec("c", Permanent, c),
	})
	require.NoError(t, err)
	a1, b1, c1 := a.next(t), b.next(t), c.next(t)

	kill(t, b1, crash{})
	a2, b2, c2 := a.next(t), b.next(t), c.next(t)

	// Every sibling was shut down normally and replaced by a new instance.
	for _, old := range []*actor.Ref{a1, c1} {
		require.True(t, old.Wait(testTimeout))
		assert.NoError(t, old.Cause())
	}
	children, err := sup.GetChildren()
	require.NoError(t, err)
	assert.Equal(t, []*actor.Ref{a2, b2, c2}, children)
	if diff := cmp.Diff([]string{"a", "b", "c"}, names(children)); diff != "" {
		t.Errorf("children mismatch (-want +got):\n%s", diff)
	}
	require.NoError(t, sup.Shutdown(testTimeout))
}

func TestAllForOneTemporaryChild(t *testing.T) {
	system := actor.NewSystem(t.Name())
	a, b := newTracker(), newTracker()
	sup, err := Spawn(system, "sup", AllForOne, []ChildSpec{
		childSpec("a", Permanent, a),
		childSpec("b", Temporary, b),
	})
	require.NoError(t, err)
	a1, b1 := a.next(t), b.next(t)

	// A temporary child's death does not affect its siblings.
	kill(t, b1, crash{})
	a.assertIdle(t)
	assert.True(t, a1.IsAlive())
	children, err := sup.GetChildren()
	require.NoError(t, err)
	assert.Equal(t, []*actor.Ref{a1}, children)

	require.NoError(t, sup.Shutdown(testTimeout))
}

func TestRestForOne(t *testing.T) {
	system := actor.NewSystem(t.Name())
	a, b, c := newTracker(), newTracker(), newTracker()
	sup, err := Spawn(system, "sup", RestForOne, []ChildSpec{
		childSpec("a", Permanent, a),
		childSpec("b", Permanent, b),
		childSpec("c", Permanent, c),
	})
	require.NoError(t, err)
	a1, b1, c1 := a.next(t), b.next(t), c.next(t)

	kill(t, b1, crash{})
	b2, c2 := b.next(t), c.next(t)
	a.assertIdle(t)
	require.True(t, c1.Wait(testTimeout))

	children, err := sup.GetChildren()
	require.NoError(t, err)
	assert.Equal(t, []*actor.Ref{a1, b2, c2}, children)
	require.NoError(t, sup.Shutdown(testTimeout))
}

func TestRestartIntensity(t *testing.T) {
	system := actor.NewSystem(t.Name())
	clock := clockwork.NewFakeClock()
	a := newTracker()
	spec := childSpec("a", Permanent, a)
	spec.MaxRestarts, spec.Window = 3, time.Second
	sup, err := Spawn(system, "sup", OneForOne, []ChildSpec{spec}, WithClock(clock))
	require.NoError(t, err)

	ref := a.next(t)
	for i := 0; i < 3; i++ {
		kill(t, ref, crash{})
		ref = a.next(t)
	}
	kill(t, ref, crash{})
	a.assertIdle(t)

	err = sup.Ref().Join(testTimeout)
	assert.ErrorIs(t, err, ErrRestartIntensity)
}

func TestRestartIntensityWindow(t *testing.T) {
	system := actor.NewSystem(t.Name())
	clock := clockwork.NewFakeClock()
	a := newTracker()
	spec := childSpec("a", Permanent, a)
	spec.MaxRestarts, spec.Window = 3, time.Second
	sup, err := Spawn(system, "sup", OneForOne, []ChildSpec{spec}, WithClock(clock))
	require.NoError(t, err)

	ref := a.next(t)
	for i := 0; i < 3; i++ {
		kill(t, ref, crash{})
		ref = a.next(t)
	}

	// Restarts older than the window no longer count.
	clock.Advance(2 * time.Second)
	kill(t, ref, crash{})
	ref = a.next(t)
	assert.True(t, sup.Ref().IsAlive())
	assert.True(t, ref.IsAlive())
	require.NoError(t, sup.Shutdown(testTimeout))
}

func TestTransient(t *testing.T) {
	system := actor.NewSystem(t.Name())
	a := newTracker()
	sup, err := Spawn(system, "sup", OneForOne, []ChildSpec{childSpec("a", Transient, a)})
	require.NoError(t, err)

	kill(t, a.next(t), crash{})
	a2 := a.next(t)

	kill(t, a2, quit{})
	a.assertIdle(t)
	child, err := sup.GetChild("a")
	require.NoError(t, err)
	assert.Nil(t, child)
	err = sup.RemoveChild("a", true)
	assert.ErrorIs(t, err, ErrChildNotFound)
	require.NoError(t, sup.Shutdown(testTimeout))
}

func TestTemporary(t *testing.T) {
	system := actor.NewSystem(t.Name())
	a := newTracker()
	sup, err := Spawn(system, "sup", OneForOne, []ChildSpec{childSpec("a", Temporary, a)})
	require.NoError(t, err)

	kill(t, a.next(t), crash{})
	a.assertIdle(t)
	children, err := sup.GetChildren()
	require.NoError(t, err)
	assert.Empty(t, children)
	require.NoError(t, sup.Shutdown(testTimeout))
}

func TestEscalate(t *testing.T) {
	system := actor.NewSystem(t.Name())
	a, b := newTracker(), newTracker()
	sup, err := Spawn(system, "sup", Escalate, []ChildSpec{
		childSpec("a", Permanent, a),
		childSpec("b", Permanent, b),
	})
	require.NoError(t, err)
	a1, b1 := a.next(t), b.next(t)

	kill(t, a1, crash{})
	err = sup.Ref().Join(testTimeout)
	assert.ErrorIs(t, err, ErrEscalated)
	assert.True(t, b1.Wait(testTimeout), "siblings are shut down with the supervisor")
	a.assertIdle(t)
}

func TestAddRemoveChild(t *testing.T) {
	system := actor.NewSystem(t.Name())
	sup, err := Spawn(system, "sup", OneForOne, nil)
	require.NoError(t, err)

	a, b := newTracker(), newTracker()
	ref, err := sup.AddChild(childSpec("a", Permanent, a))
	require.NoError(t, err)
	assert.Same(t, a.next(t), ref)

	_, err = sup.AddChild(childSpec("a", Permanent, a))
	assert.ErrorIs(t, err, ErrChildExists)
	_, err = sup.AddChild(ChildSpec{ID: "invalid"})
	assert.ErrorContains(t, err, "needs a factory or a reference")

	bRef, err := sup.AddChild(childSpec("b", Permanent, b))
	require.NoError(t, err)
	b.next(t)

	// Removed without termination, the child keeps running but is no longer restarted.
	require.NoError(t, sup.RemoveChild("b", false))
	assert.True(t, bRef.IsAlive())
	kill(t, bRef, crash{})
	b.assertIdle(t)

	require.NoError(t, sup.RemoveChild("a", true))
	assert.False(t, ref.IsAlive())
	assert.NoError(t, ref.Cause())
	a.assertIdle(t)

	assert.True(t, sup.Ref().IsAlive())
	require.NoError(t, sup.Shutdown(testTimeout))
}

type reinstantiable struct {
	tr *tracker
}

func (r *reinstantiable) Run(ctx *actor.Context) error {
	return r.tr.run(ctx)
}

func (r *reinstantiable) Reinstantiate() actor.Actor {
	return &reinstantiable{tr: r.tr}
}

func TestRefChild(t *testing.T) {
	system := actor.NewSystem(t.Name())
	tr := newTracker()
	running, err := system.SpawnActor("running", &reinstantiable{tr: tr})
	require.NoError(t, err)
	assert.Same(t, running, tr.next(t))

	sup, err := Spawn(system, "sup", OneForOne, []ChildSpec{
		{ID: "running", Mode: Permanent, MaxRestarts: 1, Window: time.Minute, Ref: running},
	})
	require.NoError(t, err)
	tr.assertIdle(t)

	kill(t, running, crash{})
	restarted := tr.next(t)
	assert.Equal(t, "running", restarted.Name())
	assert.NotSame(t, running, restarted)
	require.NoError(t, sup.Shutdown(testTimeout))
}

func TestRefChildNotReinstantiable(t *testing.T) {
	system := actor.NewSystem(t.Name())
	tr := newTracker()
	running, err := system.SpawnActor("fixed", actor.ActorFunc(tr.run))
	require.NoError(t, err)
	tr.next(t)

	sup, err := Spawn(system, "sup", OneForOne, []ChildSpec{
		{ID: "fixed", Mode: Permanent, MaxRestarts: 1, Window: time.Minute, Ref: running},
	})
	require.NoError(t, err)

	kill(t, running, crash{})
	err = sup.Ref().Join(testTimeout)
	assert.ErrorIs(t, err, actor.ErrNotReinstantiable)
}

func TestNestedSupervisor(t *testing.T) {
	system := actor.NewSystem(t.Name())
	leaf := newTracker()
	inner := ChildSpec{
		ID:          "inner",
		Mode:        Permanent,
		MaxRestarts: 5,
		Window:      time.Minute,
		Factory:     Factory(Escalate, []ChildSpec{childSpec("leaf", Permanent, leaf)}),
	}
	sup, err := Spawn(system, "outer", OneForOne, []ChildSpec{inner})
	require.NoError(t, err)
	leaf1 := leaf.next(t)
	inner1, err := sup.GetChild("inner")
	require.NoError(t, err)

	// The leaf's death escalates to the inner supervisor, which the outer one restarts.
	kill(t, leaf1, crash{})
	leaf2 := leaf.next(t)
	require.True(t, inner1.Wait(testTimeout))
	assert.ErrorIs(t, inner1.Cause(), ErrEscalated)

	inner2, err := sup.GetChild("inner")
	require.NoError(t, err)
	assert.NotSame(t, inner1, inner2)
	children, err := Wrap(inner2).GetChildren()
	require.NoError(t, err)
	assert.Equal(t, []*actor.Ref{leaf2}, children)

	require.NoError(t, sup.Shutdown(testTimeout))
	assert.False(t, leaf2.IsAlive())
}

func TestShutdownInterruptsStuckChild(t *testing.T) {
	system := actor.NewSystem(t.Name())
	started := make(chan *actor.Ref, 1)
	sup, err := Spawn(system, "sup", OneForOne, []ChildSpec{{
		ID:              "stuck",
		Mode:            Permanent,
		ShutdownTimeout: 20 * time.Millisecond,
		Factory: func() actor.Actor {
			return actor.ActorFunc(func(ctx *actor.Context) error {
				started <- ctx.Self()
				// Shutdown requests are never received while sleeping.
				return ctx.Sleep(time.Hour)
			})
		},
	}})
	require.NoError(t, err)
	stuck := <-started

	require.NoError(t, sup.Shutdown(testTimeout))
	assert.False(t, stuck.IsAlive())
	assert.ErrorIs(t, stuck.Cause(), actor.ErrInterrupted)
}

func TestInvalidSpec(t *testing.T) {
	system := actor.NewSystem(t.Name())
	a := newTracker()
	spec := childSpec("a", Permanent, a)
	spec.MaxRestarts, spec.Window = 1, 0
	_, err := Spawn(system, "sup", OneForOne, []ChildSpec{spec})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "restart window")
}
