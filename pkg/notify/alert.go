// Package notify renders operator-facing alerts: store notifications, socket
// state changes and critical sync failures. A Surface listens on the event bus
// and hands each alert to a Writer.
package notify

import (
	"fmt"
	"time"

	"github.com/agentstation/shopfloor/pkg/state"
)

// Level is the severity of an alert.
type Level int

const (
	// LevelError indicates a failure the operator must see.
	LevelError Level = iota
	// LevelWarning indicates degraded operation.
	LevelWarning
	// LevelInfo indicates general information.
	LevelInfo
	// LevelSuccess indicates a completed action.
	LevelSuccess
)

// String returns the level name.
func (l Level) String() string {
	switch l {
	case LevelError:
		return "error"
	case LevelWarning:
		return "warning"
	case LevelInfo:
		return "info"
	case LevelSuccess:
		return "success"
	default:
		return fmt.Sprintf("unknown(%d)", l)
	}
}

// Icon returns a one-character marker for terminal output.
func (l Level) Icon() string {
	switch l {
	case LevelError:
		return "✗"
	case LevelWarning:
		return "!"
	case LevelInfo:
		return "i"
	case LevelSuccess:
		return "✓"
	default:
		return "?"
	}
}

// Color returns the ANSI color for the level.
func (l Level) Color() string {
	switch l {
	case LevelError:
		return "\033[31m"
	case LevelWarning:
		return "\033[33m"
	case LevelInfo:
		return "\033[36m"
	case LevelSuccess:
		return "\033[32m"
	default:
		return resetColor
	}
}

const resetColor = "\033[0m"

// LevelOf maps a store notification type onto an alert level.
func LevelOf(t state.NotificationType) Level {
	switch t {
	case state.NotificationError:
		return LevelError
	case state.NotificationWarning:
		return LevelWarning
	case state.NotificationSuccess:
		return LevelSuccess
	default:
		return LevelInfo
	}
}

// Alert is one rendered notification.
type Alert struct {
	ID        string
	Level     Level
	Title     string
	Message   string
	Details   []string
	Source    string
	Timestamp time.Time
	Err       error
}

// New creates an alert stamped with the current time.
func New(level Level, title, message string) *Alert {
	return &Alert{
		Level:     level,
		Title:     title,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// WithError attaches the underlying error.
func (a *Alert) WithError(err error) *Alert {
	a.Err = err
	return a
}

// WithDetails appends detail lines.
func (a *Alert) WithDetails(details ...string) *Alert {
	a.Details = append(a.Details, details...)
	return a
}

// WithSource records which event produced the alert.
func (a *Alert) WithSource(source string) *Alert {
	a.Source = source
	return a
}

// String renders the alert on one line.
func (a *Alert) String() string {
	s := a.Level.Icon() + " "
	if a.Title != "" {
		s += a.Title + ": "
	}
	s += a.Message
	if a.Err != nil {
		s += fmt.Sprintf(" (%v)", a.Err)
	}
	return s
}
