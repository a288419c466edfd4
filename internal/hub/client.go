package hub

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ymliu/convo/internal/config"
	"github.com/ymliu/convo/pkg/log"
)

// ErrSendBufferFull is returned when a participant's outbound buffer is
// full or its connection is already closed. Broadcast treats it as a
// per-participant failure, never a fatal one.
var ErrSendBufferFull = errors.New("send buffer full or connection closed")

// Sender is the writable end of a live connection as seen by the registry
// and the broadcaster.
type Sender interface {
	Send(data []byte) error
}

// Client wraps a websocket connection with a buffered outbound queue
// drained by WritePump. All writes to the socket go through that single
// goroutine.
type Client struct {
	ID   string
	conn *websocket.Conn
	send chan []byte
	cfg  config.WebSocketConfig

	closeOnce sync.Once
	closed    chan struct{}
}

// NewClient creates a client for an upgraded websocket connection.
func NewClient(id string, conn *websocket.Conn, cfg config.WebSocketConfig) *Client {
	return &Client{
		ID:     id,
		conn:   conn,
		send:   make(chan []byte, 256),
		cfg:    cfg,
		closed: make(chan struct{}),
	}
}

// Send queues data for delivery. It never blocks: when the buffer is full
// or the client is closed it returns ErrSendBufferFull and the data is
// dropped.
func (c *Client) Send(data []byte) error {
	select {
	case <-c.closed:
		return ErrSendBufferFull
	default:
	}

	select {
	case c.send <- data:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// SendJSON marshals v and queues it for delivery.
func (c *Client) SendJSON(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.Send(data)
}

// ReadText blocks until the next text frame arrives and returns its
// payload. Any read error means the connection is gone.
func (c *Client) ReadText() (string, error) {
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// WritePump drains the outbound queue and keeps the connection alive with
// pings. Run it in its own goroutine; it exits when the client closes or
// a write fails.
func (c *Client) WritePump() {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.closed:
			return

		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				l := log.L()
				l.Debug().Str(log.FieldConnID, c.ID).Err(err).Msg("write failed, dropping connection")
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// StartReadDeadlines configures the read limit and pong-refreshed read
// deadline for the connection.
func (c *Client) StartReadDeadlines() {
	c.conn.SetReadLimit(c.cfg.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	})
}

// ClosePolicy writes a policy-violation close frame (1008) and closes the
// connection. Used when authentication fails on a new connection.
func (c *Client) ClosePolicy(reason string) error {
	msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason)
	c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
	c.conn.WriteMessage(websocket.CloseMessage, msg)
	return c.Close()
}

// Close shuts the client down. Safe to call multiple times.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.conn.Close()
	})
	return nil
}
