package main

import (
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/determined-ai/gotp/internal/config"
	"github.com/determined-ai/gotp/pkg/actor"
	"github.com/determined-ai/gotp/pkg/actor/api"
	"github.com/determined-ai/gotp/pkg/actor/eventsource"
	"github.com/determined-ai/gotp/pkg/actor/pool"
	"github.com/determined-ai/gotp/pkg/actor/server"
	"github.com/determined-ai/gotp/pkg/actor/supervisor"
)

const (
	calculatorName = "calculator"
	eventsName     = "events"
	poolName       = "squares"
)

// calculator adds the "a" and "b" query parameters of the requests routed to it.
type calculator struct {
	server.Base

	requests int
}

func (c *calculator) HandleCall(
	ctx *server.Context, from actor.Handle, id server.CallID, req actor.Message,
) (actor.Message, error) {
	switch req := req.(type) {
	case api.Request:
		c.requests++
		a, aErr := strconv.Atoi(req.Query.Get("a"))
		b, bErr := strconv.Atoi(req.Query.Get("b"))
		if aErr != nil || bErr != nil {
			return api.Response{
				Status: http.StatusBadRequest,
				Body:   map[string]string{"error": "a and b must be integers"},
			}, nil
		}
		return map[string]int{"sum": a + b, "requests": c.requests}, nil
	default:
		return c.Base.HandleCall(ctx, from, id, req)
	}
}

// flaky submits a task to the pool and reports it as an event every interval, and then fails so
// that its supervisor restarts it.
type flaky struct {
	interval time.Duration
	pool     *pool.Pool
}

func (f *flaky) Run(ctx *actor.Context) error {
	// Spread the failures so that restarts of the demo do not line up.
	jitter := time.Duration(rand.Int63n(int64(f.interval))) //nolint:gosec
	if err := ctx.Sleep(f.interval/2 + jitter); err != nil {
		return err
	}
	task := rand.Intn(100) //nolint:gosec
	if err := f.pool.Submit(task); err != nil {
		ctx.Log().WithError(err).Warn("could not submit task")
	}
	if events := ctx.System().Lookup(eventsName); events != nil {
		event := errors.Errorf("flaky worker failing after task %d", task)
		if err := server.Cast(ctx, events, event); err != nil {
			ctx.Log().WithError(err).Warn("could not report event")
		}
	}
	return errors.New("flaky worker failed on purpose")
}

func logEvents(event actor.Message) error {
	log.WithField("component", "events").Infof("event: %v", event)
	return nil
}

// startDemo starts the demonstration supervision tree and the pool it feeds.
func startDemo(
	system *actor.System, cfg config.DemoConfig,
) (*supervisor.Supervisor, *pool.Pool, error) {
	squares, err := pool.New(system, poolName, pool.Config{
		QueueLimit:  100,
		Workers:     cfg.Workers,
		TaskHandler: func(task interface{}) interface{} { return task.(int) * task.(int) },
		Callback: func(result interface{}) {
			log.WithField("component", poolName).Infof("computed %v", result)
		},
	})
	if err != nil {
		return nil, nil, err
	}

	window := time.Duration(cfg.Window)
	root, err := supervisor.Spawn(system, "demo", supervisor.OneForOne, []supervisor.ChildSpec{
		{
			ID:          calculatorName,
			Mode:        supervisor.Permanent,
			MaxRestarts: cfg.MaxRestarts,
			Window:      window,
			Register:    true,
			Factory: server.Props(calculatorName, func() server.Handler {
				return &calculator{}
			}).Factory,
		},
		{
			ID:          eventsName,
			Mode:        supervisor.Permanent,
			MaxRestarts: cfg.MaxRestarts,
			Window:      window,
			Register:    true,
			Factory: eventsource.Props(eventsName, []eventsource.Handler{
				eventsource.OnEvent(logEvents),
			}).Factory,
		},
		{
			ID:          "flaky",
			Mode:        supervisor.Permanent,
			MaxRestarts: cfg.MaxRestarts,
			Window:      window,
			Factory: func() actor.Actor {
				return &flaky{interval: time.Duration(cfg.FailEvery), pool: squares}
			},
		},
	})
	if err != nil {
		return nil, nil, multiShutdown(err, squares.Shutdown(time.Second))
	}
	return root, squares, nil
}
