// Package wsconn provides a reconnecting WebSocket client over coder/websocket.
package wsconn

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/coder/websocket"
)

// ErrNotConnected is returned by Send when no connection is established.
var ErrNotConnected = errors.New("wsconn: not connected")

// State represents the connection state.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
)

// Config holds WebSocket client configuration.
type Config struct {
	URL            string
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	MaxReconnects  int // 0 = infinite
	PingInterval   time.Duration
	BufferSize     int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig(url string) Config {
	return Config{
		URL:            url,
		InitialBackoff: 1 * time.Second,
		MaxBackoff:     30 * time.Second,
		MaxReconnects:  0, // infinite
		PingInterval:   30 * time.Second,
		BufferSize:     100,
	}
}

// Client is a WebSocket client that reconnects with exponential backoff and
// delivers raw messages on a channel. A message may be lost around a
// reconnect; consumers requiring a consistent view must resynchronize on
// reconnect via OnConnect.
type Client struct {
	config Config

	// OnConnect, if set, runs after every successful (re)connect, before
	// reads begin. Used to re-subscribe streams.
	OnConnect func(ctx context.Context, conn *websocket.Conn) error

	state   State
	stateMu sync.RWMutex

	conn   *websocket.Conn
	connMu sync.Mutex

	messages   chan []byte
	done       chan struct{}
	closeOnce  sync.Once
	reconnects int
}

// New creates a new WebSocket client.
func New(config Config) *Client {
	if config.BufferSize <= 0 {
		config.BufferSize = 100
	}
	return &Client{
		config:   config,
		state:    StateDisconnected,
		messages: make(chan []byte, config.BufferSize),
		done:     make(chan struct{}),
	}
}

// Connect establishes the connection and starts the read/ping loops. It
// returns after the first successful dial; reconnection afterwards is
// handled internally.
func (c *Client) Connect(ctx context.Context) error {
	c.setState(StateConnecting)

	conn, err := c.dial(ctx)
	if err != nil {
		c.setState(StateDisconnected)
		return err
	}

	c.setConn(conn)
	c.setState(StateConnected)

	if c.OnConnect != nil {
		if err := c.OnConnect(ctx, conn); err != nil {
			conn.Close(websocket.StatusInternalError, "subscribe failed")
			c.setState(StateDisconnected)
			return err
		}
	}

	go c.readLoop(ctx)
	go c.pingLoop(ctx)

	return nil
}

// Send sends a text message through the WebSocket.
func (c *Client) Send(ctx context.Context, msg []byte) error {
	c.connMu.Lock()
	conn := c.conn
	c.connMu.Unlock()

	if conn == nil {
		return ErrNotConnected
	}
	return conn.Write(ctx, websocket.MessageText, msg)
}

// Messages returns the channel for receiving messages.
func (c *Client) Messages() <-chan []byte {
	return c.messages
}

// State returns the current connection state.
func (c *Client) State() State {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.state
}

// Close gracefully closes the WebSocket connection.
func (c *Client) Close() error {
	c.closeOnce.Do(func() { close(c.done) })

	c.connMu.Lock()
	conn := c.conn
	c.conn = nil
	c.connMu.Unlock()

	if conn != nil {
		conn.Close(websocket.StatusNormalClosure, "client closed")
	}
	c.setState(StateDisconnected)
	return nil
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(dialCtx, c.config.URL, nil)
	if err != nil {
		return nil, err
	}
	conn.SetReadLimit(1 << 20)
	return conn, nil
}

func (c *Client) readLoop(ctx context.Context) {
	for {
		select {
		case <-c.done:
			return
		case <-ctx.Done():
			return
		default:
		}

		c.connMu.Lock()
		conn := c.conn
		c.connMu.Unlock()
		if conn == nil {
			return
		}

		_, data, err := conn.Read(ctx)
		if err != nil {
			if !c.reconnect(ctx) {
				return
			}
			continue
		}

		select {
		case c.messages <- data:
		case <-c.done:
			return
		case <-ctx.Done():
			return
		default:
			// Drop on full buffer; a slow consumer must not stall reads.
		}
	}
}

func (c *Client) pingLoop(ctx context.Context) {
	interval := c.config.PingInterval
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.connMu.Lock()
			conn := c.conn
			c.connMu.Unlock()
			if conn == nil {
				continue
			}
			pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			_ = conn.Ping(pingCtx)
			cancel()
		}
	}
}

// reconnect dials with exponential backoff. Returns false when the retry
// budget is exhausted or the client is closing.
func (c *Client) reconnect(ctx context.Context) bool {
	c.setState(StateReconnecting)
	backoff := c.config.InitialBackoff

	for {
		if c.config.MaxReconnects > 0 && c.reconnects >= c.config.MaxReconnects {
			c.setState(StateDisconnected)
			return false
		}

		select {
		case <-c.done:
			return false
		case <-ctx.Done():
			return false
		case <-time.After(backoff):
		}

		c.reconnects++
		conn, err := c.dial(ctx)
		if err == nil {
			if c.OnConnect != nil {
				if err := c.OnConnect(ctx, conn); err != nil {
					conn.Close(websocket.StatusInternalError, "subscribe failed")
					backoff = nextBackoff(backoff, c.config.MaxBackoff)
					continue
				}
			}
			c.setConn(conn)
			c.setState(StateConnected)
			return true
		}

		backoff = nextBackoff(backoff, c.config.MaxBackoff)
	}
}

func nextBackoff(current, max time.Duration) time.Duration {
	next := current * 2
	if max > 0 && next > max {
		return max
	}
	return next
}

func (c *Client) setConn(conn *websocket.Conn) {
	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()
}

func (c *Client) setState(state State) {
	c.stateMu.Lock()
	c.state = state
	c.stateMu.Unlock()
}
