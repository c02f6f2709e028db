package ws

import (
	"sync/atomic"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/promptduel/promptduel-backend/pkg/types"
)

// Client is one player's connection. It implements match.Conn: the match core
// pushes events through Send and checks Live, nothing more; the read/write
// pumps in this package own the underlying socket.
type Client struct {
	id     string
	conn   *websocket.Conn
	out    chan types.ServerMessage
	closed atomic.Bool
}

func newClient(conn *websocket.Conn) *Client {
	return &Client{
		id:   uuid.NewString(),
		conn: conn,
		out:  make(chan types.ServerMessage, 16),
	}
}

func (c *Client) ID() string { return c.id }

func (c *Client) Live() bool { return !c.closed.Load() }

// Send queues an event for delivery. Fire-and-forget: when the client is
// gone or its outbox is full the event is dropped.
func (c *Client) Send(event string, payload any) {
	if c.closed.Load() {
		return
	}
	select {
	case c.out <- types.ServerMessage{Type: event, Data: payload}:
	default:
	}
}
