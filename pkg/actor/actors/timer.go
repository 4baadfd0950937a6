package actors

import (
	"time"

	"github.com/google/uuid"

	"github.com/determined-ai/gotp/pkg/actor"
)

type timer struct {
	d         time.Duration
	recipient actor.Handle
	msg       actor.Message
}

// Run implements the actor.Actor interface. An interrupted timer exits without sending.
func (t *timer) Run(ctx *actor.Context) error {
	if err := ctx.Sleep(t.d); err != nil {
		ctx.Log().Debug("timer cancelled")
		return nil
	}
	return t.recipient.Send(t.msg)
}

// SendAfter sends the message to the recipient once the duration has elapsed. The returned timer
// actor can be interrupted to cancel the send.
func SendAfter(
	system *actor.System, recipient actor.Handle, d time.Duration, msg actor.Message,
) (*actor.Ref, error) {
	return system.SpawnActor("send-timer-"+uuid.New().String(),
		&timer{d: d, recipient: recipient, msg: msg})
}

// NotifyAfter asynchronously notifies the context's actor with the provided message after the
// provided duration.
func NotifyAfter(ctx *actor.Context, d time.Duration, msg actor.Message) (*actor.Ref, error) {
	return SendAfter(ctx.System(), ctx.Self(), d, msg)
}
