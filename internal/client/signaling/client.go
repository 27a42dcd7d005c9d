package signaling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/peercall/peercall/internal/application/constant"
	"github.com/peercall/peercall/internal/domain/signal"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

// ErrChannelClosed is returned by Send once the signaling channel is gone.
// Callers drop the message; nothing is queued for redelivery.
var ErrChannelClosed = errors.New("signaling channel closed")

// Client is one participant's connection to the signaling relay. The room
// is part of the URL and cannot change for the lifetime of the connection.
type Client struct {
	conn     *websocket.Conn
	incoming chan *signal.Envelope
	outgoing chan []byte
	done     chan struct{}

	mu     sync.Mutex
	closed bool
}

// Dial connects to the relay's /ws/:roomId endpoint. http(s) server URLs
// are rewritten to the ws(s) scheme.
func Dial(ctx context.Context, serverURL, roomID string) (*Client, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return nil, fmt.Errorf("invalid server URL: %w", err)
	}

	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	u.Path = "/ws/" + roomID

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial signaling relay: %w", err)
	}

	c := &Client{
		conn:     conn,
		incoming: make(chan *signal.Envelope, 32),
		outgoing: make(chan []byte, 32),
		done:     make(chan struct{}),
	}

	conn.SetReadLimit(maxMessageSize)
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	go c.readPump()
	go c.writePump()

	return c, nil
}

// Incoming delivers decoded relay messages in arrival order. The channel
// is closed when the connection is lost, which the session surfaces as a
// channel error.
func (c *Client) Incoming() <-chan *signal.Envelope {
	return c.incoming
}

// Send marshals v and queues it for the write pump. It fails with
// ErrChannelClosed after Close or connection loss. The mutex is never held
// across the queue send: a Send blocked on a full queue must not stall
// Close, which the read pump calls during teardown.
func (c *Client) Send(v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal signaling message: %w", err)
	}

	select {
	case <-c.done:
		return ErrChannelClosed
	default:
	}

	select {
	case c.outgoing <- raw:
		return nil
	case <-c.done:
		return ErrChannelClosed
	}
}

// Close tears the connection down. Safe to call more than once.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true

	close(c.done)
}

func (c *Client) readPump() {
	defer func() {
		c.Close()
		c.conn.Close()
		close(c.incoming)
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		env, err := signal.Decode(raw)
		if err != nil {
			slog.Warn("ignoring malformed relay message", slog.Any(constant.Error, err))
			continue
		}

		select {
		case c.incoming <- env:
		case <-c.done:
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case raw := <-c.outgoing:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, raw); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}
