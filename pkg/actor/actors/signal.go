package actors

import (
	"os"
	"os/signal"

	"github.com/google/uuid"

	"github.com/determined-ai/gotp/pkg/actor"
)

type signalActor struct {
	recipient actor.Handle
	listener  chan os.Signal
}

// Run relays signals to the recipient until the recipient dies or the relay is shut down.
func (s *signalActor) Run(ctx *actor.Context) error {
	defer func() {
		signal.Stop(s.listener)
		close(s.listener)
	}()
	go func() {
		for sig := range s.listener {
			_ = ctx.Self().Send(sig)
		}
	}()

	token := ctx.Watch(s.recipient)
	for {
		msg, err := ctx.Receive()
		if err != nil {
			return err
		}
		switch msg := msg.(type) {
		case os.Signal:
			if err := ctx.Send(s.recipient, msg); err != nil {
				ctx.Log().WithError(err).Warnf("dropping signal %s", msg)
			}
		case actor.ExitMessage:
			if msg.Watch == token {
				return nil
			}
		}
	}
}

// NotifyOnSignal relays incoming signals to the context's actor. If no signals are provided, all
// incoming signals will be relayed. Otherwise, just the provided signals will. The relay stops
// when the actor dies.
func NotifyOnSignal(ctx *actor.Context, signals ...os.Signal) (*actor.Ref, error) {
	listener := make(chan os.Signal, 100)
	signal.Notify(listener, signals...)
	ref, err := ctx.System().SpawnActor("notify-on-signal-"+uuid.New().String(),
		&signalActor{recipient: ctx.Self(), listener: listener})
	if err != nil {
		signal.Stop(listener)
		return nil, err
	}
	return ref, nil
}
