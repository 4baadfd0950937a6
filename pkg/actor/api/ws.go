package api

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/determined-ai/gotp/pkg/actor"
	"github.com/determined-ai/gotp/pkg/actor/server"
)

// MaxWebsocketMessageSize is the maximum size of a websocket message that we send in bytes.
const MaxWebsocketMessageSize = 128 * 1024 * 1024

var upgrader = websocket.Upgrader{}

// SocketMessage is the call made to a server for each message received on a websocket routed to
// it. The reply is written back to the socket as JSON.
type SocketMessage struct {
	Socket *actor.Ref
	Body   json.RawMessage
}

// WriteMessage is a message to a socket actor asking it to write out the given message, encoding
// it to JSON.
type WriteMessage struct {
	actor.Message
}

// socketClosed is sent by the read loop when the peer closes the socket.
type socketClosed struct{}

func handleWSRequest(
	system *actor.System, target actor.Handle, ctx echo.Context, timeout time.Duration,
) error {
	conn, err := upgrader.Upgrade(ctx.Response(), ctx.Request(), nil)
	if err != nil {
		return errors.Wrap(err, "websocket connection error")
	}
	socket, err := system.SpawnActor(
		"websocket-"+uuid.New().String(), WrapSocket(conn, target, timeout))
	if err != nil {
		_ = conn.Close()
		return err
	}
	return socket.Join(actor.Forever)
}

// WrapSocket wraps a websocket connection as an actor that relays every incoming message to the
// target server as a SocketMessage call.
func WrapSocket(conn *websocket.Conn, target actor.Handle, timeout time.Duration) actor.Actor {
	return &websocketActor{conn: conn, target: target, timeout: timeout}
}

type websocketActor struct {
	conn    *websocket.Conn
	target  actor.Handle
	timeout time.Duration
}

// Run implements the actor.Actor interface.
func (s *websocketActor) Run(ctx *actor.Context) error {
	defer func() {
		_ = s.conn.Close()
	}()
	go s.runReadLoop(ctx.Self())

	for {
		msg, err := ctx.Receive()
		if err != nil {
			return err
		}
		switch msg := msg.(type) {
		case socketClosed:
			return nil
		case error: // Socket read errors.
			return msg
		case []byte: // Incoming messages on the socket.
			if err := s.relay(ctx, msg); err != nil {
				return err
			}
		case WriteMessage:
			if err := s.write(msg.Message); err != nil {
				return err
			}
		default:
			return actor.ErrUnexpectedMessage(ctx, msg)
		}
	}
}

func (s *websocketActor) relay(ctx *actor.Context, raw []byte) error {
	if !json.Valid(raw) {
		return s.write(map[string]string{"error": "message is not valid JSON"})
	}
	resp, err := server.Call(ctx, s.target, SocketMessage{Socket: ctx.Self(), Body: raw}, s.timeout)
	if err != nil {
		ctx.Log().WithError(err).Debug("socket call failed")
		return s.write(map[string]string{"error": err.Error()})
	}
	return s.write(resp)
}

func (s *websocketActor) write(msg interface{}) error {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(msg); err != nil {
		return err
	}
	if cur, max := buf.Len(), MaxWebsocketMessageSize; cur > max {
		return errors.Errorf("message size %d exceeds maximum size %d", cur, max)
	}
	return s.conn.WriteMessage(websocket.TextMessage, buf.Bytes())
}

func isClosingError(err error) bool {
	return err == websocket.ErrCloseSent || websocket.IsCloseError(err, websocket.CloseNormalClosure)
}

func (s *websocketActor) runReadLoop(self *actor.Ref) {
	read := func() ([]byte, error) {
		msgType, msg, err := s.conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		if msgType != websocket.TextMessage && msgType != websocket.BinaryMessage {
			return nil, errors.Errorf("unexpected message type: %d", msgType)
		}
		return msg, nil
	}

	for {
		msg, err := read()
		switch {
		case isClosingError(err):
			_ = self.Send(socketClosed{})
			return
		case err != nil:
			// Read errors end the socket actor; once it has closed the connection they are not
			// delivered anywhere.
			_ = self.Send(err)
			return
		}
		if err := self.Send(msg); err != nil {
			return
		}
	}
}
