package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
)

const (
	maxReconnectAttempts = 5
	reconnectBaseDelay   = 5 * time.Second
	reconnectMaxDelay    = 30 * time.Second

	writeTimeout = 10 * time.Second

	qualityCheckInterval = 5 * time.Second
	staleThreshold       = 15 * time.Second
)

// Quality grades the connection by how recently the server has spoken.
type Quality string

const (
	QualityGood         Quality = "good"
	QualityUnstable     Quality = "unstable"
	QualityPoor         Quality = "poor"
	QualityDisconnected Quality = "disconnected"
)

// Envelope is the wire frame in both directions.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type outboundEnvelope struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// Config wires a Client to one game session.
type Config struct {
	// URL is the websocket endpoint, e.g. ws://host/websocket.
	URL string

	// AuthToken, when set, is sent as a bearer Authorization header.
	AuthToken string

	// Registry receives inbound messages. A nil Registry gets replaced with a
	// fresh one.
	Registry *Registry
}

// Client is one websocket session with automatic reconnection. It implements
// the engine's Sender and Subscriber seams.
type Client struct {
	url      string
	token    string
	registry *Registry

	mu        sync.Mutex
	conn      *websocket.Conn
	lastHeard time.Time
	closed    bool

	cancel context.CancelFunc
	done   chan struct{}
}

func NewClient(cfg Config) *Client {
	if cfg.Registry == nil {
		cfg.Registry = NewRegistry()
	}
	return &Client{
		url:      cfg.URL,
		token:    cfg.AuthToken,
		registry: cfg.Registry,
		done:     make(chan struct{}),
	}
}

// Registry exposes the inbound dispatch table.
func (c *Client) Registry() *Registry { return c.registry }

// Subscribe registers a handler for a message type.
func (c *Client) Subscribe(topic string, fn func(payload json.RawMessage)) func() {
	return c.registry.Subscribe(topic, fn)
}

// Connect dials the server and starts the read loop. The loop runs until
// Close or until reconnection gives up.
func (c *Client) Connect(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	conn, err := c.dial(ctx)
	if err != nil {
		cancel()
		return fmt.Errorf("CONNECT_FAILED: %w", err)
	}
	c.setConn(conn)

	go c.readLoop(ctx)
	go c.monitorQuality(ctx)
	return nil
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	opts := &websocket.DialOptions{}
	if c.token != "" {
		opts.HTTPHeader = http.Header{"Authorization": {"Bearer " + c.token}}
	}
	conn, _, err := websocket.Dial(ctx, c.url, opts)
	return conn, err
}

func (c *Client) setConn(conn *websocket.Conn) {
	c.mu.Lock()
	c.conn = conn
	c.lastHeard = time.Now()
	c.mu.Unlock()
}

// readLoop pumps inbound frames into the registry and reconnects on failure.
func (c *Client) readLoop(ctx context.Context) {
	defer close(c.done)

	for {
		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()
		if conn == nil {
			return
		}

		msgType, data, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() != nil || c.isClosed() {
				return
			}
			log.Printf("Read error: %v", err)
			if !c.reconnect(ctx) {
				return
			}
			continue
		}
		if msgType != websocket.MessageText {
			log.Printf("Non-text frame from server, ignoring")
			continue
		}

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			log.Printf("Malformed frame: %v", err)
			continue
		}

		c.mu.Lock()
		c.lastHeard = time.Now()
		c.mu.Unlock()

		c.registry.Dispatch(env.Type, env.Payload)
	}
}

// reconnect redials with linear backoff. Reports whether a new connection was
// established.
func (c *Client) reconnect(ctx context.Context) bool {
	for attempt := 1; attempt <= maxReconnectAttempts; attempt++ {
		delay := time.Duration(attempt) * reconnectBaseDelay
		if delay > reconnectMaxDelay {
			delay = reconnectMaxDelay
		}
		log.Printf("Reconnect attempt %d/%d in %s", attempt, maxReconnectAttempts, delay)

		select {
		case <-ctx.Done():
			return false
		case <-time.After(delay):
		}
		if c.isClosed() {
			return false
		}

		conn, err := c.dial(ctx)
		if err != nil {
			log.Printf("Reconnect attempt %d failed: %v", attempt, err)
			continue
		}
		c.setConn(conn)
		log.Printf("Reconnected")
		return true
	}
	log.Printf("Giving up after %d reconnect attempts", maxReconnectAttempts)
	return false
}

// Send writes one message. The destination identifies the server-side route;
// the frame itself is typed, so the destination only appears in logs.
func (c *Client) Send(destination, messageType string, payload any) error {
	c.mu.Lock()
	conn := c.conn
	closed := c.closed
	c.mu.Unlock()

	if closed || conn == nil {
		return fmt.Errorf("NOT_CONNECTED: cannot send %s to %s", messageType, destination)
	}

	data, err := json.Marshal(outboundEnvelope{Type: messageType, Payload: payload})
	if err != nil {
		return fmt.Errorf("MARSHAL_FAILED: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	log.Printf("Sending %s to %s", messageType, destination)
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("SEND_FAILED: %s to %s: %w", messageType, destination, err)
	}
	return nil
}

// CurrentQuality grades the link by inbound silence.
func (c *Client) CurrentQuality() Quality {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || c.conn == nil {
		return QualityDisconnected
	}
	silence := time.Since(c.lastHeard)
	switch {
	case silence < qualityCheckInterval:
		return QualityGood
	case silence < 2*qualityCheckInterval:
		return QualityUnstable
	case silence < staleThreshold:
		return QualityPoor
	default:
		return QualityDisconnected
	}
}

// monitorQuality logs quality transitions so silent stalls show up in logs.
func (c *Client) monitorQuality(ctx context.Context) {
	ticker := time.NewTicker(qualityCheckInterval)
	defer ticker.Stop()

	last := QualityGood
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			q := c.CurrentQuality()
			if q != last {
				log.Printf("Connection quality: %s -> %s", last, q)
				last = q
			}
		}
	}
}

func (c *Client) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Close shuts the session down and waits for the read loop to exit.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn := c.conn
	c.mu.Unlock()

	if c.cancel != nil {
		c.cancel()
	}
	var err error
	if conn != nil {
		err = conn.Close(websocket.StatusNormalClosure, "Client closing")
	}
	select {
	case <-c.done:
	case <-time.After(time.Second):
	}
	return err
}
