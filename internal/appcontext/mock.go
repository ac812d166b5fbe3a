package appcontext

import (
	"github.com/rs/zerolog"

	"github.com/agentstation/shopfloor"
	"github.com/agentstation/shopfloor/pkg/notify"
)

// Mock provides a mock implementation of Interface for testing.
// Each method can be customized by setting the corresponding function field.
// If a function field is nil, the method returns a default value.
type Mock struct {
	SessionFunc      func(...shopfloor.Option) (shopfloor.Shopfloor, error)
	LoggerFunc       func() *zerolog.Logger
	OutputFormatFunc func() string
	LocaleFunc       func() string
	VersionFunc      func() string
}

// Session returns a session using the mock function, or an offline session
// with no socket, no polling and discarded alerts.
func (m *Mock) Session(extra ...shopfloor.Option) (shopfloor.Shopfloor, error) {
	if m.SessionFunc != nil {
		return m.SessionFunc(extra...)
	}
	opts := []shopfloor.Option{
		shopfloor.WithLogger(m.Logger()),
		shopfloor.WithSocket(false),
		shopfloor.WithPolling(false),
		shopfloor.WithAlertWriter(notify.Discard),
	}
	return shopfloor.New(append(opts, extra...)...)
}

// Logger returns a logger using the mock function or a no-op logger.
func (m *Mock) Logger() *zerolog.Logger {
	if m.LoggerFunc != nil {
		return m.LoggerFunc()
	}
	logger := zerolog.Nop()
	return &logger
}

// OutputFormat returns the format using the mock function or "json".
func (m *Mock) OutputFormat() string {
	if m.OutputFormatFunc != nil {
		return m.OutputFormatFunc()
	}
	return "json"
}

// Locale returns the locale using the mock function or "en".
func (m *Mock) Locale() string {
	if m.LocaleFunc != nil {
		return m.LocaleFunc()
	}
	return "en"
}

// Version returns version using the mock function or "dev".
func (m *Mock) Version() string {
	if m.VersionFunc != nil {
		return m.VersionFunc()
	}
	return "dev"
}

var _ Interface = (*Mock)(nil)
