// Package pool implements thread-pool like behavior on top of actors. A manager server queues
// submitted tasks and hands them to a fixed set of supervised workers, which run the task handler
// concurrently and return the results to the manager.
package pool

import (
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/determined-ai/gotp/pkg/actor"
	"github.com/determined-ai/gotp/pkg/actor/server"
	"github.com/determined-ai/gotp/pkg/actor/supervisor"
)

// QueueFullError is returned by Submit when the pool is so backed up that the queue is full.
type QueueFullError struct{}

func (e QueueFullError) Error() string {
	return "actor pool queue is full"
}

// Internal message types
type (
	// For giving a new task to the manager.
	sendTask struct {
		task interface{}
	}

	// For workers to request their next task.
	receiveTask struct{}

	// To return the result of a task to the manager.
	returnTask struct {
		result interface{}
	}

	// For reading the manager's counters.
	getStats struct{}
)

// Stats is a snapshot of the state of a pool.
type Stats struct {
	Queued    int
	Idle      int
	Submitted uint64
	Completed uint64
}

// Config configures a pool.
type Config struct {
	QueueLimit int
	Workers    int
	// TaskHandler may be called many times in parallel.
	TaskHandler func(task interface{}) interface{}
	// Callback is only called by the manager, one result at a time.
	Callback func(result interface{})
	// MaxRestarts and Window bound worker restarts; see supervisor.ChildSpec.
	MaxRestarts int
	Window      time.Duration
}

// Pool is a handle to a running pool.
type Pool struct {
	name    string
	manager string
	system  *actor.System
	sup     *supervisor.Supervisor
}

// New starts a pool under the name. The manager is registered as "<name>-manager" and the workers
// run under a OneForOne supervisor named after the pool. A task handed to a worker that dies
// while running it is lost.
func New(system *actor.System, name string, cfg Config) (*Pool, error) {
	switch {
	case cfg.Workers <= 0:
		return nil, errors.Errorf("pool %s needs at least one worker", name)
	case cfg.TaskHandler == nil:
		return nil, errors.Errorf("pool %s needs a task handler", name)
	}
	if cfg.MaxRestarts == 0 && cfg.Window == 0 {
		cfg.MaxRestarts, cfg.Window = 10, time.Second
	}

	managerName := name + "-manager"
	specs := []supervisor.ChildSpec{{
		ID:          managerName,
		Mode:        supervisor.Permanent,
		MaxRestarts: cfg.MaxRestarts,
		Window:      cfg.Window,
		Register:    true,
		Factory: func() actor.Actor {
			return server.New(newManager(cfg.QueueLimit, cfg.Callback))
		},
	}}
	for i := 0; i < cfg.Workers; i++ {
		specs = append(specs, supervisor.ChildSpec{
			ID:          fmt.Sprintf("%s-worker-%d", name, i),
			Mode:        supervisor.Permanent,
			MaxRestarts: cfg.MaxRestarts,
			Window:      cfg.Window,
			Factory: func() actor.Actor {
				return &worker{manager: managerName, handler: cfg.TaskHandler}
			},
		})
	}

	sup, err := supervisor.Spawn(system, name, supervisor.OneForOne, specs)
	if err != nil {
		return nil, errors.Wrapf(err, "starting pool %s", name)
	}
	return &Pool{name: name, manager: managerName, system: system, sup: sup}, nil
}

func (p *Pool) call(req actor.Message) (actor.Message, error) {
	manager := p.system.Lookup(p.manager)
	if manager == nil {
		return nil, errors.Wrapf(actor.ErrNoSuchActor, "pool %s", p.name)
	}
	return server.Call(nil, manager, req, actor.Forever)
}

// Submit queues a task. It returns a QueueFullError if the queue is at its limit.
func (p *Pool) Submit(task interface{}) error {
	_, err := p.call(sendTask{task: task})
	return err
}

// Stats returns the current state of the pool.
func (p *Pool) Stats() (Stats, error) {
	resp, err := p.call(getStats{})
	if err != nil {
		return Stats{}, err
	}
	return resp.(Stats), nil
}

// Supervisor returns the supervisor of the pool's actors.
func (p *Pool) Supervisor() *supervisor.Supervisor {
	return p.sup
}

// Shutdown stops the workers and the manager. Queued tasks are dropped.
func (p *Pool) Shutdown(timeout time.Duration) error {
	return p.sup.Shutdown(timeout)
}
