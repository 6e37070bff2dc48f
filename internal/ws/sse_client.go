package ws

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
)

// SSEClient streams Server-Sent Events over an HTTP response writer. It is
// the fallback channel for clients that cannot hold a websocket.
type SSEClient struct {
	mu      sync.Mutex
	id      string
	writer  io.Writer
	flusher http.Flusher
	log     *slog.Logger
	closed  bool
	last    time.Time
	seq     uint64
	done    chan struct{}

	doneOnce sync.Once
}

// NewSSEClient builds an SSE client instance.
func NewSSEClient(writer io.Writer, flusher http.Flusher, logger *slog.Logger) *SSEClient {
	id := uuid.NewString()
	if logger == nil {
		logger = slog.Default()
	}
	return &SSEClient{id: id, writer: writer, flusher: flusher, log: logger.With("channel_id", id), last: time.Now().UTC(), done: make(chan struct{})}
}

// ID returns the stream identifier.
func (c *SSEClient) ID() string { return c.id }

// Send emits a data event to the SSE stream.
func (c *SSEClient) Send(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return io.EOF
	}
	c.seq++
	if _, err := fmt.Fprintf(c.writer, "id: %d\ndata: %s\n\n", c.seq, payload); err != nil {
		c.closed = true
		c.log.Warn("sse send failed", "error", err)
		return err
	}
	c.flusher.Flush()
	c.last = time.Now().UTC()
	return nil
}

// Heartbeat emits a comment frame to keep the connection alive.
func (c *SSEClient) Heartbeat() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return io.EOF
	}
	if _, err := fmt.Fprint(c.writer, ": ping\n\n"); err != nil {
		c.closed = true
		c.log.Warn("sse heartbeat failed", "error", err)
		return err
	}
	c.flusher.Flush()
	c.last = time.Now().UTC()
	return nil
}

// Close marks the stream as closed and releases the serving handler.
func (c *SSEClient) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.doneOnce.Do(func() { close(c.done) })
}

// Done is closed once the stream has been closed.
func (c *SSEClient) Done() <-chan struct{} { return c.done }

// LastActivity reports the timestamp of the most recent successful write.
func (c *SSEClient) LastActivity() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}
