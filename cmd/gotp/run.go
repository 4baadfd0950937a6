package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"syscall"
	"time"

	petname "github.com/dustinkirkland/golang-petname"
	"github.com/hashicorp/go-multierror"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/determined-ai/gotp/internal/config"
	"github.com/determined-ai/gotp/pkg/actor"
	"github.com/determined-ai/gotp/pkg/actor/actors"
	"github.com/determined-ai/gotp/pkg/actor/api"
	"github.com/determined-ai/gotp/pkg/actor/pool"
	"github.com/determined-ai/gotp/pkg/actor/supervisor"
	"github.com/determined-ai/gotp/pkg/logger"
)

// requestTimeout bounds the calls made to servers for HTTP requests.
const requestTimeout = 10 * time.Second

// stopRequest asks the run loop to stop because the HTTP server failed.
type stopRequest struct{}

func multiShutdown(errs ...error) error {
	var result *multierror.Error
	for _, err := range errs {
		if err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

func newSystem(cfg *config.Config) (*actor.System, error) {
	opts := cfg.SystemOptions()
	if cfg.Observability.EnablePrometheus {
		monitor, err := actor.NewPrometheusMonitor(prometheus.DefaultRegisterer)
		if err != nil {
			return nil, err
		}
		opts = append(opts, actor.WithMonitor(monitor))
	}
	return actor.NewSystem("gotp-"+petname.Generate(2, "-"), opts...), nil
}

func newEcho(system *actor.System, cfg *config.Config) *echo.Echo {
	e := echo.New()
	e.Use(middleware.Recover())
	e.Logger = logger.NewEcho(logger.Context{"component": "http"})
	e.HideBanner = true
	e.HidePort = true

	if cfg.Observability.EnablePrometheus {
		e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	}
	e.GET("/servers", func(c echo.Context) error {
		return c.JSON(http.StatusOK, system.Names())
	})
	e.Any("/servers/:name", api.Route(system, "", requestTimeout))
	return e
}

func run(ctx context.Context, cfg *config.Config) error {
	system, err := newSystem(cfg)
	if err != nil {
		return err
	}

	var root *supervisor.Supervisor
	var squares *pool.Pool
	if cfg.Demo.Enabled {
		if root, squares, err = startDemo(system, cfg.Demo); err != nil {
			return err
		}
	}

	e := newEcho(system, cfg)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Infof("listening on :%d", cfg.HTTP.Port)
		err := e.Start(fmt.Sprintf(":%d", cfg.HTTP.Port))
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrap(err, "http server failed")
	})
	g.Go(func() error {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), requestTimeout)
			defer cancel()
			if err := e.Shutdown(shutdownCtx); err != nil {
				log.WithError(err).Warn("error shutting down http server")
			}
		}()
		return waitForStop(gctx, system, root)
	})
	runErr := g.Wait()

	timeout := time.Duration(cfg.ShutdownTimeout)
	var shutdownErrs []error
	if root != nil {
		shutdownErrs = append(shutdownErrs, ignoreDead(root.Shutdown(timeout)))
	}
	if squares != nil {
		shutdownErrs = append(shutdownErrs, squares.Shutdown(timeout))
	}
	shutdownErrs = append(shutdownErrs, system.Shutdown(timeout))
	if err := multiShutdown(shutdownErrs...); err != nil {
		log.WithError(err).Warn("error shutting down actors")
	}
	return runErr
}

// ignoreDead drops the death cause of a supervisor that already gave up, which was reported when
// it happened.
func ignoreDead(err error) error {
	if errors.Is(err, supervisor.ErrRestartIntensity) {
		return nil
	}
	return err
}

// waitForStop blocks until the process is signalled, the context is cancelled, or the root
// supervisor dies.
func waitForStop(ctx context.Context, system *actor.System, root *supervisor.Supervisor) error {
	tctx := system.NewTempContext()
	defer tctx.Release()

	if _, err := actors.NotifyOnSignal(tctx, os.Interrupt, syscall.SIGTERM); err != nil {
		return err
	}
	var token actor.WatchToken
	if root != nil {
		token = tctx.Watch(root.Ref())
	}
	go func() {
		select {
		case <-ctx.Done():
			_ = tctx.Self().Send(stopRequest{})
		case <-tctx.Self().Done():
		}
	}()

	msg, err := tctx.ReceiveSelect(actor.Forever, func(msg actor.Message) (actor.Message, bool) {
		switch msg := msg.(type) {
		case os.Signal, stopRequest:
			return msg, true
		case actor.ExitMessage:
			return msg, root != nil && msg.Watch == token
		default:
			return nil, false
		}
	})
	if err != nil {
		return err
	}
	switch msg := msg.(type) {
	case os.Signal:
		log.Infof("received %s, shutting down", msg)
		return nil
	case actor.ExitMessage:
		return errors.Wrap(msg.Cause, "demo supervision tree died")
	default:
		return nil
	}
}
