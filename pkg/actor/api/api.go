package api

import (
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/determined-ai/gotp/pkg/actor"
	"github.com/determined-ai/gotp/pkg/actor/server"
)

// Request is the call made to a server for an HTTP request.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Body   []byte
}

// Response lets a server choose the status code of its reply. Any other reply is rendered as
// JSON with status 200.
type Response struct {
	Status int
	Body   interface{}
}

// Route aims at routing HTTP and websocket requests to a registered server. It returns an echo
// handler function to register with endpoints. Requests will be routed to the server registered
// under the name if presented. Otherwise, the name is taken from the ":name" path parameter.
func Route(system *actor.System, name string, timeout time.Duration) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		target := lookup(system, name, ctx)
		if target == nil {
			// The server could not be found.
			return echo.ErrNotFound
		}
		if ctx.IsWebSocket() {
			return handleWSRequest(system, target, ctx, timeout)
		}
		return handleRequest(target, ctx, timeout)
	}
}

func lookup(system *actor.System, name string, ctx echo.Context) actor.Handle {
	if name == "" {
		name = ctx.Param("name")
	}
	if name == "" {
		return nil
	}
	return system.Lookup(name)
}

func handleRequest(target actor.Handle, ctx echo.Context, timeout time.Duration) error {
	body, err := io.ReadAll(ctx.Request().Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "reading request body").SetInternal(err)
	}
	resp, err := server.Call(nil, target, Request{
		Method: ctx.Request().Method,
		Path:   ctx.Request().URL.Path,
		Query:  ctx.QueryParams(),
		Body:   body,
	}, timeout)
	if err != nil {
		return httpError(err)
	}

	switch resp := resp.(type) {
	case Response:
		status := resp.Status
		if status == 0 {
			status = http.StatusOK
		}
		if resp.Body == nil {
			return ctx.NoContent(status)
		}
		return ctx.JSON(status, resp.Body)
	default:
		return ctx.JSON(http.StatusOK, resp)
	}
}

// httpError converts the error of a call into the status code of the reply.
func httpError(err error) error {
	var httpErr *echo.HTTPError
	var callErr *server.CallError
	switch {
	case errors.As(err, &httpErr):
		return httpErr
	case errors.Is(err, actor.ErrTimeout):
		return echo.NewHTTPError(http.StatusGatewayTimeout, err.Error()).SetInternal(err)
	case errors.As(err, &callErr):
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error()).SetInternal(err)
	case actor.IsUnexpectedMessage(err):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error()).SetInternal(err)
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error()).SetInternal(err)
	}
}
