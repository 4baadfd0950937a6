package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/determined-ai/gotp/pkg/actor"
	"github.com/determined-ai/gotp/pkg/actor/server"
)

type echoServer struct {
	server.Base
}

func (echoServer) HandleCall(
	ctx *server.Context, from actor.Handle, id server.CallID, req actor.Message,
) (actor.Message, error) {
	switch req := req.(type) {
	case Request:
		switch req.Query.Get("mode") {
		case "created":
			return Response{Status: http.StatusCreated, Body: string(req.Body)}, nil
		case "teapot":
			return nil, echo.NewHTTPError(http.StatusTeapot, "short and stout")
		case "hang":
			// Never replied.
			return nil, nil
		}
		return map[string]string{"method": req.Method, "path": req.Path}, nil
	case SocketMessage:
		var body map[string]int
		if err := json.Unmarshal(req.Body, &body); err != nil {
			return nil, err
		}
		return map[string]int{"sum": body["a"] + body["b"]}, nil
	default:
		return echoServer{}.Base.HandleCall(ctx, from, id, req)
	}
}

func setup(t *testing.T) (*actor.System, *echo.Echo) {
	system := actor.NewSystem(t.Name())
	_, err := server.Spawn(system, "echo", echoServer{}, server.WithRegister())
	require.NoError(t, err)
	e := echo.New()
	e.Any("/servers/:name", Route(system, "", 100*time.Millisecond))
	return system, e
}

func serve(e *echo.Echo, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestRoute(t *testing.T) {
	_, e := setup(t)

	rec := serve(e, http.MethodGet, "/servers/echo", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"method": "GET", "path": "/servers/echo"}`, rec.Body.String())

	rec = serve(e, http.MethodPost, "/servers/echo?mode=created", "payload")
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.JSONEq(t, `"payload"`, rec.Body.String())

	rec = serve(e, http.MethodGet, "/servers/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = serve(e, http.MethodGet, "/servers/echo?mode=hang", "")
	assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
}

func TestRouteHandlerError(t *testing.T) {
	system, e := setup(t)

	// An error reply terminates the server, after which it is no longer found.
	rec := serve(e, http.MethodGet, "/servers/echo?mode=teapot", "")
	assert.Equal(t, http.StatusTeapot, rec.Code)
	ref := system.Lookup("echo")
	if ref != nil {
		require.Error(t, ref.(*actor.Ref).Join(time.Second))
	}
	rec = serve(e, http.MethodGet, "/servers/echo", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRouteWebSocket(t *testing.T) {
	_, e := setup(t)
	ts := httptest.NewServer(e)
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/servers/echo"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"a": 2, "b": 3}`)))
	var resp map[string]int
	require.NoError(t, conn.ReadJSON(&resp))
	assert.Equal(t, map[string]int{"sum": 5}, resp)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`not json`)))
	var errResp map[string]string
	require.NoError(t, conn.ReadJSON(&errResp))
	assert.Contains(t, errResp["error"], "not valid JSON")

	require.NoError(t, conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
}
