package ws

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// writeWait stays well under the dispatch timeout so one stalled peer
// cannot hold a detached delivery for its whole budget.
const writeWait = 3 * time.Second

// ErrClosed is returned when sending on a closed channel.
var ErrClosed = errors.New("ws: channel closed")

// Client represents a websocket client connection bound to one identity.
type Client struct {
	id     string
	userID string
	conn   *websocket.Conn
	log    *slog.Logger

	mu     sync.Mutex
	closed bool
	opened time.Time
}

// NewClient constructs a client wrapper.
func NewClient(conn *websocket.Conn, userID string, logger *slog.Logger) *Client {
	id := uuid.NewString()
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		id:     id,
		userID: userID,
		conn:   conn,
		log:    logger.With("channel_id", id, "user_id", userID),
		opened: time.Now().UTC(),
	}
}

// ID returns the connection identifier.
func (c *Client) ID() string { return c.id }

// UserID returns the identity the connection was admitted for.
func (c *Client) UserID() string { return c.userID }

// ConnectedAt reports when the connection was accepted.
func (c *Client) ConnectedAt() time.Time { return c.opened }

// Send writes a message to the websocket connection. Writes are serialised
// because gorilla connections support a single concurrent writer.
func (c *Client) Send(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		c.log.Warn("websocket send failed", "error", err)
		c.closed = true
		_ = c.conn.Close()
		return err
	}
	return nil
}

// ReadLoop drains inbound frames until the peer goes away. Clients only
// receive in this protocol, so inbound payloads are discarded.
func (c *Client) ReadLoop() {
	c.conn.SetReadLimit(4096)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Debug("websocket read ended", "error", err)
			}
			return
		}
	}
}

// Close terminates the connection.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	_ = c.conn.Close()
}
