package actors

import (
	"syscall"
	"testing"
	"time"

	"github.com/pkg/errors"
	"gotest.tools/assert"

	"github.com/determined-ai/gotp/pkg/actor"
	"github.com/determined-ai/gotp/pkg/actor/server"
)

const testTimeout = 5 * time.Second

func TestNotifyAfter(t *testing.T) {
	system := actor.NewSystem(t.Name())
	ctx := system.NewTempContext()
	defer ctx.Release()

	timer, err := NotifyAfter(ctx, 10*time.Millisecond, "tick")
	assert.NilError(t, err)
	msg, err := ctx.ReceiveTimeout(testTimeout)
	assert.NilError(t, err)
	assert.Equal(t, msg, "tick")
	assert.NilError(t, timer.Join(testTimeout))
}

func TestSendAfterCancel(t *testing.T) {
	system := actor.NewSystem(t.Name())
	ctx := system.NewTempContext()
	defer ctx.Release()

	timer, err := SendAfter(system, ctx.Self(), time.Hour, "tick")
	assert.NilError(t, err)
	timer.Interrupt()
	assert.NilError(t, timer.Join(testTimeout))
	_, err = ctx.TryReceive()
	assert.Assert(t, errors.Is(err, actor.ErrTimeout))
}

func TestNotifyOnStop(t *testing.T) {
	system := actor.NewSystem(t.Name())
	ctx := system.NewTempContext()
	defer ctx.Release()

	target, err := system.SpawnActor("target", actor.ActorFunc(func(ctx *actor.Context) error {
		_, err := ctx.Receive()
		return err
	}))
	assert.NilError(t, err)

	done := NotifyOnStop(ctx, target, "stopped")
	assert.NilError(t, target.Send("stop"))
	select {
	case <-done:
	case <-time.After(testTimeout):
		t.Fatal("stop notifier did not finish")
	}
	msg, err := ctx.ReceiveTimeout(testTimeout)
	assert.NilError(t, err)
	assert.Equal(t, msg, "stopped")
}

func TestNotifyOnSignal(t *testing.T) {
	system := actor.NewSystem(t.Name())
	ctx := system.NewTempContext()

	relay, err := NotifyOnSignal(ctx, syscall.SIGWINCH, syscall.SIGCHLD)
	assert.NilError(t, err)
	// Unrelated signals are not relayed.
	assert.NilError(t, syscall.Kill(syscall.Getpid(), syscall.SIGURG))
	assert.NilError(t, syscall.Kill(syscall.Getpid(), syscall.SIGWINCH))
	assert.NilError(t, syscall.Kill(syscall.Getpid(), syscall.SIGCHLD))

	for _, want := range []syscall.Signal{syscall.SIGWINCH, syscall.SIGCHLD} {
		msg, err := ctx.ReceiveSelect(testTimeout, func(msg actor.Message) (actor.Message, bool) {
			sig, ok := msg.(syscall.Signal)
			return sig, ok && sig == want
		})
		assert.NilError(t, err)
		assert.Equal(t, msg, want)
	}

	// The relay stops with its recipient.
	ctx.Release()
	assert.NilError(t, relay.Join(testTimeout))
}

func TestNotifyOnSignalIsSubscribedOnReturn(t *testing.T) {
	system := actor.NewSystem(t.Name())
	for i := 0; i < 20; i++ {
		ctx := system.NewTempContext()
		relay, err := NotifyOnSignal(ctx, syscall.SIGWINCH)
		assert.NilError(t, err)
		// The signal is sent before the relay had any chance to run.
		assert.NilError(t, syscall.Kill(syscall.Getpid(), syscall.SIGWINCH))
		msg, err := ctx.ReceiveTimeout(testTimeout)
		assert.NilError(t, err)
		assert.Equal(t, msg, syscall.SIGWINCH)
		ctx.Release()
		assert.NilError(t, relay.Join(testTimeout))
	}
}

type ping struct{}

func TestMockServer(t *testing.T) {
	system := actor.NewSystem(t.Name())
	mock := NewMockServer()
	mock.Expect("actors.ping", MockResponse{Msg: "pong"})
	ref, err := server.Spawn(system, "mock", mock)
	assert.NilError(t, err)

	echo := NewMockServer()
	echoRef, err := server.Spawn(system, "echo", echo)
	assert.NilError(t, err)

	assert.ErrorContains(t, mock.AssertExpectations(), "expected to reply with actors.ping")
	resp, err := server.Call(nil, ref, ping{}, testTimeout)
	assert.NilError(t, err)
	assert.Equal(t, resp, "pong")
	assert.NilError(t, mock.AssertExpectations())

	resp, err = server.Call(nil, ref, ForwardThroughMock{To: echoRef, Msg: 42}, testTimeout)
	assert.NilError(t, err)
	assert.Equal(t, resp, 42)
	assert.DeepEqual(t, echo.Received(), []actor.Message{42})

	boom := errors.New("boom")
	_, err = server.Call(nil, ref, boom, testTimeout)
	assert.Assert(t, errors.Is(err, boom))
	assert.Assert(t, errors.Is(ref.Join(testTimeout), boom))
	assert.Equal(t, len(mock.Received()), 3)
}
