// Package app provides the application context and dependency management
// for the shopfloor CLI. Configuration, logging and the session lifecycle
// live here; commands receive the App through appcontext.Interface.
package app

import (
	"context"
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/agentstation/shopfloor"
	"github.com/agentstation/shopfloor/internal/appcontext"
	"github.com/agentstation/shopfloor/pkg/errors"
)

// App represents the shopfloor application with all its dependencies.
type App struct {
	// Version information
	version string
	commit  string
	date    string
	builtBy string

	config   *Config
	logger   *zerolog.Logger
	registry *prometheus.Registry

	// Sessions created for commands, stopped on Shutdown
	mu       sync.Mutex
	sessions []shopfloor.Shopfloor
	created  int
}

// New creates a new App instance with the given version information.
func New(version, commit, date, builtBy string, opts ...Option) (*App, error) {
	app := &App{
		version:  version,
		commit:   commit,
		date:     date,
		builtBy:  builtBy,
		registry: prometheus.NewRegistry(),
	}

	config, err := LoadConfig()
	if err != nil {
		return nil, errors.WrapResource("load", "config", "", err)
	}
	app.config = config

	logger := NewLogger(config)
	app.logger = &logger

	for _, opt := range opts {
		if err := opt(app); err != nil {
			return nil, err
		}
	}
	return app, nil
}

// Version returns the version information.
func (a *App) Version() string {
	return a.version
}

// Commit returns the git commit hash.
func (a *App) Commit() string {
	return a.commit
}

// Date returns the build date.
func (a *App) Date() string {
	return a.date
}

// BuiltBy returns the build system identifier.
func (a *App) BuiltBy() string {
	return a.builtBy
}

// Config returns the application configuration.
func (a *App) Config() *Config {
	return a.config
}

// Logger returns the application logger.
func (a *App) Logger() *zerolog.Logger {
	return a.logger
}

// OutputFormat returns the configured output format.
func (a *App) OutputFormat() string {
	return a.config.Format
}

// Locale returns the configured label language.
func (a *App) Locale() string {
	return a.config.Locale
}

// Registry returns the metrics registry sessions register on.
func (a *App) Registry() *prometheus.Registry {
	return a.registry
}

// Session creates a shopfloor session from the configuration. Every session
// is stopped on Shutdown.
func (a *App) Session(extra ...shopfloor.Option) (shopfloor.Shopfloor, error) {
	a.mu.Lock()
	n := a.created
	a.created++
	a.mu.Unlock()

	opts := append(a.sessionOptions(n), extra...)
	sf, err := shopfloor.New(opts...)
	if err != nil {
		return nil, errors.WrapResource("create", "session", a.config.Origin, err)
	}

	a.mu.Lock()
	a.sessions = append(a.sessions, sf)
	a.mu.Unlock()
	return sf, nil
}

// Shutdown stops every session created by the app.
func (a *App) Shutdown(_ context.Context) error {
	a.mu.Lock()
	sessions := a.sessions
	a.sessions = nil
	a.mu.Unlock()

	for _, sf := range sessions {
		sf.Stop()
	}
	return nil
}

// sessionOptions builds session options from the configuration.
// Each session's metrics carry a session label so they can share one registry.
func (a *App) sessionOptions(n int) []shopfloor.Option {
	c := a.config
	opts := []shopfloor.Option{
		shopfloor.WithLogger(a.logger),
		shopfloor.WithRegisterer(prometheus.WrapRegistererWith(prometheus.Labels{"session": strconv.Itoa(n)}, a.registry)),
	}
	if c.Origin != "" {
		opts = append(opts, shopfloor.WithOrigin(c.Origin))
	}
	switch {
	case c.APIKey != "":
		opts = append(opts, shopfloor.WithAPIKey(c.APIKeyHeader, c.APIKey))
	case c.Token != "":
		opts = append(opts, shopfloor.WithToken(c.Token))
	}
	if c.OperatorID != "" {
		opts = append(opts, shopfloor.WithOperator(c.OperatorID, c.OperatorName))
	}
	if c.ReconnectDelay > 0 {
		opts = append(opts, shopfloor.WithReconnect(c.ReconnectAttempts, c.ReconnectDelay))
	}
	if c.PingInterval > 0 {
		opts = append(opts, shopfloor.WithPingInterval(c.PingInterval))
	}
	if c.FetchTimeout > 0 {
		opts = append(opts, shopfloor.WithFetchTimeout(c.FetchTimeout))
	}
	if c.StatusInterval > 0 {
		opts = append(opts, shopfloor.WithStatusInterval(c.StatusInterval))
	}
	if c.NotificationTTL > 0 {
		opts = append(opts, shopfloor.WithNotificationTTL(c.NotificationTTL))
	}
	return opts
}

// Option is a functional option for configuring the App.
type Option func(*App) error

// WithConfig sets a custom configuration.
func WithConfig(config *Config) Option {
	return func(a *App) error {
		a.config = config
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *zerolog.Logger) Option {
	return func(a *App) error {
		a.logger = logger
		return nil
	}
}

var _ appcontext.Interface = (*App)(nil)
