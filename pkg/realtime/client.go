// Package realtime is the push half of the sync layer: a websocket client that
// keeps one connection to the dashboard server, reconnects with linear backoff,
// sends a keep-alive ping while connected and turns inbound frames into typed
// handler calls and bus events.
package realtime

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/agentstation/shopfloor/pkg/constants"
	"github.com/agentstation/shopfloor/pkg/errors"
	"github.com/agentstation/shopfloor/pkg/events"
	"github.com/agentstation/shopfloor/pkg/logging"
)

// State is the connection state of a Client.
type State string

// Connection states.
const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
)

// Identity is the operator registered on the socket.
type Identity struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Connected is the payload of socket-connected.
type Connected struct {
	URL string `json:"url"`
}

// Disconnected is the payload of socket-disconnected.
type Disconnected struct {
	Code   int    `json:"code,omitempty"`
	Reason string `json:"reason,omitempty"`
	Manual bool   `json:"manual"`
}

// Reconnecting is the payload of socket-reconnecting.
type Reconnecting struct {
	Attempt int           `json:"attempt"`
	Delay   time.Duration `json:"delay"`
}

// ReconnectFailed is the payload of socket-reconnect-failed.
type ReconnectFailed struct {
	Attempts int `json:"attempts"`
}

// Client is a reconnecting websocket client.
type Client struct {
	url    string
	cfg    config
	bus    *events.Bus
	logger *zerolog.Logger

	mu       sync.Mutex
	state    State
	conn     *websocket.Conn
	gen      uint64
	stopPing chan struct{}
	attempts int
	identity *Identity
	retry    *time.Timer
	closing  bool
	gaveUp   bool

	writeMu sync.Mutex
}

// NewClient creates a disconnected client for the socket at url.
func NewClient(url string, bus *events.Bus, opts ...Option) (*Client, error) {
	cfg := config{
		maxAttempts:  constants.MaxReconnectAttempts,
		baseDelay:    constants.ReconnectBaseDelay,
		pingInterval: constants.PingInterval,
		dialer: &websocket.Dialer{
			HandshakeTimeout: constants.HandshakeTimeout,
		},
	}
	for _, opt := range opts {
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}
	if cfg.logger == nil {
		nop := zerolog.Nop()
		cfg.logger = &nop
	}
	if url == "" {
		return nil, errors.NewValidationError("url", url, "socket url is required")
	}
	return &Client{
		url:    url,
		cfg:    cfg,
		bus:    bus,
		logger: logging.Component(cfg.logger, "socket"),
		state:  StateDisconnected,
	}, nil
}

// URL returns the socket endpoint.
func (c *Client) URL() string {
	return c.url
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Attempts returns the number of reconnects scheduled since the last open.
func (c *Client) Attempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts
}

// Connect dials the server. It returns nil immediately when the client is
// already connected or connecting. A failed dial is treated as a close and
// schedules a reconnect; the dial error is still returned.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	c.closing = false
	c.gaveUp = false
	c.mu.Unlock()
	return c.dial(ctx)
}

func (c *Client) dial(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateDisconnected || c.closing {
		c.mu.Unlock()
		return nil
	}
	c.state = StateConnecting
	if c.retry != nil {
		c.retry.Stop()
		c.retry = nil
	}
	c.mu.Unlock()

	c.logger.Debug().Str("url", c.url).Msg("Dialing socket")
	conn, resp, err := c.cfg.dialer.DialContext(ctx, c.url, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		c.logger.Warn().Err(err).Str("url", c.url).Msg("Socket dial failed")
		c.mu.Lock()
		c.state = StateDisconnected
		if c.closing {
			c.mu.Unlock()
			return err
		}
		c.closedLocked(Disconnected{Reason: err.Error()})
		return err
	}

	c.mu.Lock()
	if c.closing {
		c.state = StateDisconnected
		c.mu.Unlock()
		_ = conn.Close()
		return nil
	}
	c.gen++
	gen := c.gen
	c.conn = conn
	c.state = StateConnected
	c.attempts = 0
	c.gaveUp = false
	c.stopPing = make(chan struct{})
	stop := c.stopPing
	var ident *Identity
	if c.identity != nil {
		id := *c.identity
		ident = &id
	}
	c.mu.Unlock()

	c.cfg.metrics.connected(true)
	c.logger.Info().Str("url", c.url).Msg("Socket connected")

	if ident != nil {
		if err := c.Send(registerFrame{Type: TypeRegister, OperatorID: ident.ID, OperatorName: ident.Name}); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to re-register operator")
		}
	}
	c.bus.Publish(events.SocketConnected, Connected{URL: c.url})

	go c.readLoop(conn, gen)
	go c.pingLoop(stop)
	return nil
}

// closedLocked handles an unexpected close: it publishes the disconnect and
// either schedules a reconnect or gives up. Caller holds c.mu; it is released here.
func (c *Client) closedLocked(d Disconnected) {
	var (
		reconnect *Reconnecting
		giveUp    *ReconnectFailed
	)
	switch {
	case c.attempts < c.cfg.maxAttempts:
		c.attempts++
		delay := time.Duration(c.attempts) * c.cfg.baseDelay
		c.retry = time.AfterFunc(delay, c.reconnect)
		reconnect = &Reconnecting{Attempt: c.attempts, Delay: delay}
	case !c.gaveUp:
		c.gaveUp = true
		giveUp = &ReconnectFailed{Attempts: c.attempts}
	}
	c.mu.Unlock()

	c.cfg.metrics.connected(false)
	c.bus.Publish(events.SocketDisconnected, d)
	if reconnect != nil {
		c.cfg.metrics.reconnect()
		c.logger.Info().Int("attempt", reconnect.Attempt).Dur("delay", reconnect.Delay).Msg("Socket reconnect scheduled")
		c.bus.Publish(events.SocketReconnecting, *reconnect)
	}
	if giveUp != nil {
		c.cfg.metrics.giveUp()
		c.logger.Error().Int("attempt", giveUp.Attempts).Msg("Socket reconnect attempts exhausted")
		c.bus.Publish(events.SocketReconnectFailed, *giveUp)
	}
}

// reconnect runs on the retry timer.
func (c *Client) reconnect() {
	c.mu.Lock()
	c.retry = nil
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), constants.HandshakeTimeout)
	defer cancel()
	_ = c.dial(ctx)
}

func (c *Client) readLoop(conn *websocket.Conn, gen uint64) {
	conn.SetReadLimit(constants.MaxMessageSize)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.connLost(gen, err)
			return
		}
		c.handleFrame(data)
	}
}

func (c *Client) handleFrame(data []byte) {
	env, frame, err := Decode(data)
	if err != nil {
		c.logger.Warn().Err(err).Msg("Malformed socket frame")
		return
	}
	c.cfg.metrics.frame(env.Type)
	c.dispatch(frame)
	c.bus.Publish(events.SocketMessage, env)
}

// connLost is called by the read loop of generation gen when its connection fails.
func (c *Client) connLost(gen uint64, err error) {
	c.mu.Lock()
	if gen != c.gen || c.state != StateConnected {
		c.mu.Unlock()
		return
	}
	conn := c.conn
	c.conn = nil
	c.state = StateDisconnected
	close(c.stopPing)
	c.stopPing = nil

	d := Disconnected{Reason: err.Error()}
	var ce *websocket.CloseError
	if stderrors.As(err, &ce) {
		d.Code = ce.Code
		d.Reason = ce.Text
	}
	if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		c.logger.Warn().Err(err).Msg("Socket closed unexpectedly")
	} else {
		c.logger.Info().Int("code", d.Code).Msg("Socket closed")
	}
	c.closedLocked(d)
	_ = conn.Close()
}

func (c *Client) pingLoop(stop <-chan struct{}) {
	if c.cfg.pingInterval <= 0 {
		return
	}
	ticker := time.NewTicker(c.cfg.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := c.Send(pingFrame{Type: TypePing, Timestamp: time.Now()}); err != nil {
				c.logger.Debug().Err(err).Msg("Ping failed")
			}
		}
	}
}

// Send writes v as a JSON text frame.
func (c *Client) Send(v any) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return errors.ErrNotConnected
	}

	data, err := json.Marshal(v)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(constants.WriteWait))
	return conn.WriteMessage(websocket.TextMessage, data)
}

// Register identifies the operator to the server. The identity is kept and
// sent again after every reconnect.
func (c *Client) Register(id, name string) error {
	c.mu.Lock()
	c.identity = &Identity{ID: id, Name: name}
	connected := c.state == StateConnected
	c.mu.Unlock()

	if !connected {
		return nil
	}
	return c.Send(registerFrame{Type: TypeRegister, OperatorID: id, OperatorName: name})
}

// Identity returns the registered operator, if any.
func (c *Client) Identity() (Identity, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.identity == nil {
		return Identity{}, false
	}
	return *c.identity, true
}

// Disconnect closes the connection and cancels any pending reconnect.
// No automatic reconnect follows until Connect is called again.
func (c *Client) Disconnect() {
	c.mu.Lock()
	c.closing = true
	if c.retry != nil {
		c.retry.Stop()
		c.retry = nil
	}
	conn := c.conn
	wasConnected := c.state == StateConnected
	if c.stopPing != nil {
		close(c.stopPing)
		c.stopPing = nil
	}
	c.conn = nil
	c.gen++
	if c.state == StateConnected {
		c.state = StateDisconnected
	}
	c.mu.Unlock()

	if conn == nil {
		return
	}
	c.writeMu.Lock()
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(constants.WriteWait))
	c.writeMu.Unlock()
	_ = conn.Close()

	c.cfg.metrics.connected(false)
	c.logger.Info().Msg("Socket disconnected")
	if wasConnected {
		c.bus.Publish(events.SocketDisconnected, Disconnected{Code: websocket.CloseNormalClosure, Manual: true})
	}
}

// HandleVisibility reconnects when the view becomes visible while the socket is down.
// It does nothing after Disconnect.
func (c *Client) HandleVisibility(ctx context.Context, visible bool) {
	if !visible {
		return
	}
	c.mu.Lock()
	skip := c.closing || c.state != StateDisconnected
	if !skip {
		c.gaveUp = false
	}
	c.mu.Unlock()
	if skip {
		return
	}
	c.logger.Debug().Msg("View visible, reconnecting socket")
	_ = c.dial(ctx)
}
