// Package appcontext provides the application context interface shared by
// every command. Commands accept it instead of the concrete App so they can
// be tested with a stub.
package appcontext

import (
	"github.com/rs/zerolog"

	"github.com/agentstation/shopfloor"
)

// Interface defines what commands need from the application.
type Interface interface {
	// Session creates a shopfloor session from the configuration. extra
	// options are applied after the configured ones and win over them.
	Session(extra ...shopfloor.Option) (shopfloor.Shopfloor, error)

	// Logger returns the configured logger instance.
	Logger() *zerolog.Logger

	// OutputFormat returns the configured output format (table, markdown, json, yaml).
	OutputFormat() string

	// Locale returns the language tag used for labels.
	Locale() string

	// Version returns the application version string.
	Version() string
}
