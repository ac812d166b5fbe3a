// Package events provides the in-process event bus that decouples producers of
// domain events (socket frames, poll results, the workflow engine, UI actions)
// from their consumers.
//
// Listeners are ordered by descending priority and, within one priority, by
// registration order. A listener that panics is recovered and logged; the
// remaining listeners still run.
package events

import "time"

// Name identifies an event. The set is open: any string is accepted, but the
// names below are declared on every new Bus so undeclared ones can be detected.
type Name string

// Production lifecycle.
const (
	ProductionStarted     Name = "production-started"
	ProductionUpdated     Name = "production-updated"
	ProductionPaused      Name = "production-paused"
	ProductionCompleted   Name = "production-completed"
	ProductionTransferred Name = "production-transferred"
)

// Stage lifecycle.
const (
	StageStarted   Name = "stage-started"
	StageUpdated   Name = "stage-updated"
	StageCompleted Name = "stage-completed"
)

// Quality-check lifecycle.
const (
	QualityCheckStarted   Name = "quality-check-started"
	QualityCheckPassed    Name = "quality-check-passed"
	QualityCheckFailed    Name = "quality-check-failed"
	QualityCheckCompleted Name = "quality-check-completed"
)

// Plan lifecycle.
const (
	PlanCreated  Name = "plan-created"
	PlanUpdated  Name = "plan-updated"
	PlanSelected Name = "plan-selected"
)

// Tab lifecycle.
const (
	TabChanged  Name = "tab-changed"
	TabEnabled  Name = "tab-enabled"
	TabDisabled Name = "tab-disabled"
)

// State and workflow changes.
const (
	StateUpdated      Name = "state-updated"
	StateReset        Name = "state-reset"
	WorkflowStarted   Name = "workflow-started"
	StepCompleted     Name = "step-completed"
	WorkflowCompleted Name = "workflow-completed"
	WorkflowPaused    Name = "workflow-paused"
	WorkflowResumed   Name = "workflow-resumed"
	WorkflowError     Name = "workflow-error"
)

// Notifications.
const (
	NotificationAdded   Name = "notification-added"
	NotificationRemoved Name = "notification-removed"
)

// Sync layer.
const (
	DataUpdated           Name = "data-updated"
	SystemStatusUpdated   Name = "system-status-updated"
	SyncError             Name = "sync-error"
	SocketConnected       Name = "socket-connected"
	SocketDisconnected    Name = "socket-disconnected"
	SocketReconnecting    Name = "socket-reconnecting"
	SocketReconnectFailed Name = "socket-reconnect-failed"
	SocketMessage         Name = "socket-message"
	ScriptFault           Name = "script-fault"
)

// Declared lists every name pre-registered on a new Bus.
var Declared = []Name{
	ProductionStarted, ProductionUpdated, ProductionPaused, ProductionCompleted, ProductionTransferred,
	StageStarted, StageUpdated, StageCompleted,
	QualityCheckStarted, QualityCheckPassed, QualityCheckFailed, QualityCheckCompleted,
	PlanCreated, PlanUpdated, PlanSelected,
	TabChanged, TabEnabled, TabDisabled,
	StateUpdated, StateReset,
	WorkflowStarted, StepCompleted, WorkflowCompleted, WorkflowPaused, WorkflowResumed, WorkflowError,
	NotificationAdded, NotificationRemoved,
	DataUpdated, SystemStatusUpdated, SyncError,
	SocketConnected, SocketDisconnected, SocketReconnecting, SocketReconnectFailed, SocketMessage,
	ScriptFault,
}

// Event is what a listener receives.
type Event struct {
	Name      Name      `json:"name"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload,omitempty"`
}

// Listener handles one event.
type Listener func(Event)
