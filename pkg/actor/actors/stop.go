package actors

import (
	"github.com/google/uuid"

	"github.com/determined-ai/gotp/pkg/actor"
)

type stopNotifier struct {
	target    actor.Handle
	recipient actor.Handle
	msg       actor.Message
	done      chan struct{}
}

func (a *stopNotifier) Run(ctx *actor.Context) error {
	defer close(a.done)
	token := ctx.Watch(a.target)
	if _, err := ctx.ReceiveSelect(actor.Forever, func(msg actor.Message) (actor.Message, bool) {
		exit, ok := msg.(actor.ExitMessage)
		return msg, ok && exit.Watch == token
	}); err != nil {
		ctx.Unwatch(a.target, token)
		return nil
	}
	return a.recipient.Send(a.msg)
}

// NotifyOnStop asynchronously notifies the context's actor when the target has stopped. Returns
// a channel that is closed when the actor has been notified, or when the notifier was shut down
// first.
func NotifyOnStop(ctx *actor.Context, target actor.Handle, msg actor.Message) <-chan struct{} {
	done := make(chan struct{})
	if _, err := ctx.System().SpawnActor("notify-stop-"+uuid.New().String(), &stopNotifier{
		target:    target,
		recipient: ctx.Self(),
		msg:       msg,
		done:      done,
	}); err != nil {
		ctx.Log().WithError(err).Error("could not start stop notifier")
		close(done)
	}
	return done
}
