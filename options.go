package shopfloor

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/agentstation/shopfloor/internal/transport"
	"github.com/agentstation/shopfloor/pkg/constants"
	"github.com/agentstation/shopfloor/pkg/errors"
	"github.com/agentstation/shopfloor/pkg/notify"
	"github.com/agentstation/shopfloor/pkg/polling"
	"github.com/agentstation/shopfloor/pkg/workflow"
)

// Option is a function that configures a Shopfloor instance
type Option func(*config) error

// config holds the construction settings of a Shopfloor
type config struct {
	origin          string
	auth            transport.Authenticator
	logger          *zerolog.Logger
	registerer      prometheus.Registerer
	alerts          notify.Writer
	workflows       []workflow.Definition
	notificationTTL time.Duration

	socket         bool
	maxAttempts    int
	reconnectDelay time.Duration
	pingInterval   time.Duration
	operatorID     string
	operatorName   string

	polling        bool
	frequencies    map[string]time.Duration
	statusInterval time.Duration
	fetchTimeout   time.Duration
}

func defaultConfig() *config {
	return &config{
		origin:          constants.DefaultOrigin,
		auth:            transport.NoAuth{},
		notificationTTL: constants.NotificationTTL,
		socket:          true,
		maxAttempts:     constants.MaxReconnectAttempts,
		reconnectDelay:  constants.ReconnectBaseDelay,
		pingInterval:    constants.PingInterval,
		polling:         true,
		frequencies:     make(map[string]time.Duration),
		statusInterval:  constants.SystemStatusInterval,
		fetchTimeout:    constants.FetchTimeout,
	}
}

// WithOrigin sets the dashboard origin. REST paths and the socket URL derive from it.
func WithOrigin(origin string) Option {
	return func(c *config) error {
		if origin == "" {
			return errors.NewValidationError("origin", origin, "origin is required")
		}
		c.origin = origin
		return nil
	}
}

// WithToken sends a bearer token on every poll request.
func WithToken(token string) Option {
	return func(c *config) error {
		c.auth = transport.BearerAuth{Token: token}
		return nil
	}
}

// WithAPIKey sends key in header on every poll request instead of a bearer token.
func WithAPIKey(header, key string) Option {
	return func(c *config) error {
		if header == "" {
			return errors.NewValidationError("header", header, "api key header is required")
		}
		c.auth = transport.HeaderAuth{Header: header, Token: key}
		return nil
	}
}

// WithLogger configures the logger shared by every component
func WithLogger(logger *zerolog.Logger) Option {
	return func(c *config) error {
		c.logger = logger
		return nil
	}
}

// WithRegisterer registers socket and poll metrics on reg
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(c *config) error {
		c.registerer = reg
		return nil
	}
}

// WithAlertWriter sets where the notification surface renders alerts
func WithAlertWriter(w notify.Writer) Option {
	return func(c *config) error {
		c.alerts = w
		return nil
	}
}

// WithWorkflows registers extra workflow definitions next to the built-in ones
func WithWorkflows(defs ...workflow.Definition) Option {
	return func(c *config) error {
		c.workflows = append(c.workflows, defs...)
		return nil
	}
}

// WithNotificationTTL configures how long store notifications live
func WithNotificationTTL(d time.Duration) Option {
	return func(c *config) error {
		if d <= 0 {
			return errors.NewValidationError("notification_ttl", d, "must be positive")
		}
		c.notificationTTL = d
		return nil
	}
}

// WithSocket enables or disables the push channel
func WithSocket(enabled bool) Option {
	return func(c *config) error {
		c.socket = enabled
		return nil
	}
}

// WithReconnect configures the push channel's reconnect budget and backoff unit
func WithReconnect(maxAttempts int, delay time.Duration) Option {
	return func(c *config) error {
		if maxAttempts < 0 || delay <= 0 {
			return errors.NewValidationError("reconnect", delay, "attempts must be >= 0 and delay positive")
		}
		c.maxAttempts = maxAttempts
		c.reconnectDelay = delay
		return nil
	}
}

// WithPingInterval configures the socket keep-alive period. Zero disables pings.
func WithPingInterval(d time.Duration) Option {
	return func(c *config) error {
		if d < 0 {
			return errors.NewValidationError("ping_interval", d, "must not be negative")
		}
		c.pingInterval = d
		return nil
	}
}

// WithOperator registers the operator on the socket once it opens
func WithOperator(id, name string) Option {
	return func(c *config) error {
		c.operatorID = id
		c.operatorName = name
		return nil
	}
}

// WithPolling enables or disables the pull channel
func WithPolling(enabled bool) Option {
	return func(c *config) error {
		c.polling = enabled
		return nil
	}
}

// WithPollFrequency overrides the period of one polled resource
func WithPollFrequency(key string, d time.Duration) Option {
	return func(c *config) error {
		if d <= 0 {
			return errors.NewValidationError("frequency", d, "must be positive")
		}
		if !knownResource(key) {
			return errors.NewValidationError("frequency", key, "unknown poll resource")
		}
		c.frequencies[key] = d
		return nil
	}
}

// WithStatusInterval configures how often the system status is published. Zero disables it.
func WithStatusInterval(d time.Duration) Option {
	return func(c *config) error {
		if d < 0 {
			return errors.NewValidationError("status_interval", d, "must not be negative")
		}
		c.statusInterval = d
		return nil
	}
}

// WithFetchTimeout bounds each poll request
func WithFetchTimeout(d time.Duration) Option {
	return func(c *config) error {
		if d <= 0 {
			return errors.NewValidationError("fetch_timeout", d, "must be positive")
		}
		c.fetchTimeout = d
		return nil
	}
}

func knownResource(key string) bool {
	for _, r := range polling.DefaultResources() {
		if r.Key == key {
			return true
		}
	}
	return false
}

// apply applies options to the config
func (c *config) apply(opts ...Option) error {
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return err
		}
	}
	return nil
}
