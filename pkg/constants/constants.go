// Package constants provides shared constants used throughout the shopfloor codebase.
// This includes timeouts, intervals, limits and other values that must stay
// consistent between the event bus, the state store and the sync layer.
package constants

import "time"

// Notification constants
const (
	// NotificationTTL is how long a store notification lives before it is removed automatically
	NotificationTTL = 5 * time.Second
)

// Push channel constants
const (
	// MaxReconnectAttempts is the number of automatic reconnects before the socket gives up
	MaxReconnectAttempts = 5

	// ReconnectBaseDelay is multiplied by the attempt number to get the reconnect delay (linear backoff)
	ReconnectBaseDelay = 1 * time.Second

	// PingInterval is the keep-alive period while the socket is connected
	PingInterval = 30 * time.Second

	// HandshakeTimeout bounds the websocket opening handshake
	HandshakeTimeout = 10 * time.Second

	// WriteWait is the time allowed to write a frame to the peer
	WriteWait = 10 * time.Second

	// MaxMessageSize is the largest inbound frame accepted, in bytes
	MaxMessageSize = 1 << 20
)

// Pull channel constants
const (
	// FetchTimeout bounds a single poll request
	FetchTimeout = 10 * time.Second

	// SystemStatusInterval is the period of the system-status snapshot timer
	SystemStatusInterval = 5 * time.Second

	// ActiveProductionInterval is the default poll period for active productions
	ActiveProductionInterval = 10 * time.Second

	// ProductionPlansInterval is the default poll period for production plans
	ProductionPlansInterval = 30 * time.Second

	// ProductionHistoryInterval is the default poll period for production history
	ProductionHistoryInterval = 60 * time.Second

	// TemplatesInterval is the default poll period for stage templates and quality checkpoints
	TemplatesInterval = 5 * time.Minute
)

// Resource paths polled from the dashboard server
const (
	PathActiveProductions  = "/api/production/active"
	PathProductionHistory  = "/api/production/history"
	PathStageTemplates     = "/api/production/stage-templates"
	PathQualityCheckpoints = "/api/production/quality-checkpoints"
	PathProductionPlans    = "/api/production/plans"
)

// Cache constants
const (
	// CacheTTL is the default time-to-live for cached values
	CacheTTL = 5 * time.Minute
)

// File permission constants define standard Unix file permissions
const (
	// DirPermissions is the default permission for created directories (rwxr-xr-x)
	DirPermissions = 0755

	// FilePermissions is the default permission for created files (rw-r--r--)
	FilePermissions = 0644
)

// Path constants
const (
	// DefaultConfigName is the config file name searched in $HOME and the working directory
	DefaultConfigName = ".shopfloor"

	// DefaultOrigin is the dashboard origin used when none is configured
	DefaultOrigin = "http://localhost:3000"

	// DefaultAPIKeyHeader carries the API key when one is configured
	DefaultAPIKeyHeader = "X-Api-Key"
)
