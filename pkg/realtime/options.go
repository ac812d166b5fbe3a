package realtime

import (
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// Option configures a Client.
type Option func(*config) error

type config struct {
	maxAttempts  int
	baseDelay    time.Duration
	pingInterval time.Duration
	dialer       *websocket.Dialer
	logger       *zerolog.Logger
	handlers     Handlers
	metrics      *Metrics
}

// WithMaxReconnectAttempts sets how many automatic reconnects run before giving up.
func WithMaxReconnectAttempts(n int) Option {
	return func(c *config) error {
		c.maxAttempts = n
		return nil
	}
}

// WithReconnectDelay sets the linear backoff unit.
func WithReconnectDelay(d time.Duration) Option {
	return func(c *config) error {
		c.baseDelay = d
		return nil
	}
}

// WithPingInterval sets the keep-alive period.
func WithPingInterval(d time.Duration) Option {
	return func(c *config) error {
		c.pingInterval = d
		return nil
	}
}

// WithDialer replaces the websocket dialer.
func WithDialer(d *websocket.Dialer) Option {
	return func(c *config) error {
		c.dialer = d
		return nil
	}
}

// WithLogger sets the client logger.
func WithLogger(logger *zerolog.Logger) Option {
	return func(c *config) error {
		c.logger = logger
		return nil
	}
}

// WithHandlers sets the typed frame handlers.
func WithHandlers(h Handlers) Option {
	return func(c *config) error {
		c.handlers = h
		return nil
	}
}

// WithMetrics records connection and frame metrics.
func WithMetrics(m *Metrics) Option {
	return func(c *config) error {
		c.metrics = m
		return nil
	}
}
