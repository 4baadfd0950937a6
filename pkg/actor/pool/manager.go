package pool

import (
	"github.com/emirpasic/gods/queues/linkedlistqueue"

	"github.com/determined-ai/gotp/pkg/actor"
	"github.com/determined-ai/gotp/pkg/actor/server"
)

// waiter is a worker whose request for a task was deferred until one is submitted.
type waiter struct {
	from  actor.Handle
	id    server.CallID
	watch actor.WatchToken
}

type manager struct {
	server.Base

	queueLimit int
	callback   func(result interface{})

	queue   *linkedlistqueue.Queue
	waiting []waiter

	submitted uint64
	completed uint64
}

func newManager(queueLimit int, callback func(result interface{})) *manager {
	return &manager{
		queueLimit: queueLimit,
		callback:   callback,
		queue:      linkedlistqueue.New(),
	}
}

func (m *manager) HandleCall(
	ctx *server.Context, from actor.Handle, id server.CallID, req actor.Message,
) (actor.Message, error) {
	switch req := req.(type) {
	case sendTask:
		if len(m.waiting) > 0 {
			m.submitted++
			m.handOut(ctx, req.task)
			return true, nil
		}
		if m.queueLimit > 0 && m.queue.Size() >= m.queueLimit {
			if err := ctx.ReplyError(from, id, QueueFullError{}); err != nil {
				ctx.Log().WithError(err).Debug("could not reject task")
			}
			return nil, nil
		}
		m.submitted++
		m.queue.Enqueue(req.task)
		return true, nil
	case receiveTask:
		if task, ok := m.queue.Dequeue(); ok {
			return taskMessage{task: task}, nil
		}
		// The reply is deferred until a task arrives.
		m.waiting = append(m.waiting, waiter{from: from, id: id, watch: ctx.Watch(from)})
		return nil, nil
	case getStats:
		return Stats{
			Queued:    m.queue.Size(),
			Idle:      len(m.waiting),
			Submitted: m.submitted,
			Completed: m.completed,
		}, nil
	default:
		return m.Base.HandleCall(ctx, from, id, req)
	}
}

// handOut replies to the longest waiting worker with the task.
func (m *manager) handOut(ctx *server.Context, task interface{}) {
	w := m.waiting[0]
	m.waiting = m.waiting[1:]
	ctx.Unwatch(w.from, w.watch)
	if err := ctx.Reply(w.from, w.id, taskMessage{task: task}); err != nil {
		ctx.Log().WithError(err).Warn("could not hand out task")
	}
}

func (m *manager) HandleCast(
	ctx *server.Context, from actor.Handle, id server.CallID, msg actor.Message,
) error {
	switch msg := msg.(type) {
	case returnTask:
		m.completed++
		if m.callback != nil {
			m.callback(msg.result)
		}
		return nil
	default:
		return m.Base.HandleCast(ctx, from, id, msg)
	}
}

// HandleInfo forgets waiting workers that died.
func (m *manager) HandleInfo(ctx *server.Context, msg actor.Message) error {
	exit, ok := msg.(actor.ExitMessage)
	if !ok {
		return m.Base.HandleInfo(ctx, msg)
	}
	for i, w := range m.waiting {
		if w.watch == exit.Watch {
			ctx.Log().Debugf("worker %s died while waiting", exit.Actor)
			m.waiting = append(m.waiting[:i], m.waiting[i+1:]...)
			break
		}
	}
	return nil
}

func (m *manager) Terminate(ctx *server.Context, cause error) {
	if n := m.queue.Size(); n > 0 {
		ctx.Log().Warnf("dropping %d queued tasks", n)
	}
	m.queue.Clear()
}
