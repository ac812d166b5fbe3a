// Package state holds the process-wide workflow snapshot of a dashboard session
// and the tab descriptors derived from it.
//
// All mutation goes through Store.Update, AddNotification, RemoveNotification
// and ResetState. Each call is single-key and synchronous; changes are announced
// on the event bus after the store lock is released.
package state

import (
	"bytes"
	"encoding/json"
	"strconv"
	"time"
)

// ID is a server-side identifier. The dashboard API sends ids as JSON numbers
// or strings depending on the table; both decode into the same form.
type ID string

// UnmarshalJSON accepts numbers and strings.
func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*id = ID(n.String())
	return nil
}

// Int returns the id as an integer when it is numeric.
func (id ID) Int() (int64, bool) {
	n, err := strconv.ParseInt(string(id), 10, 64)
	return n, err == nil
}

// Plan is a production plan selected for execution.
type Plan struct {
	ID           ID         `json:"id" yaml:"id"`
	OrderNumber  string     `json:"order_number,omitempty" yaml:"order_number,omitempty"`
	ProductName  string     `json:"product_name,omitempty" yaml:"product_name,omitempty"`
	Quantity     int        `json:"quantity,omitempty" yaml:"quantity,omitempty"`
	Status       string     `json:"status,omitempty" yaml:"status,omitempty"`
	PlannedStart *time.Time `json:"planned_start,omitempty" yaml:"planned_start,omitempty"`
}

// Production is a production run on the shop floor.
type Production struct {
	ID           ID         `json:"id" yaml:"id"`
	PlanID       ID         `json:"plan_id,omitempty" yaml:"plan_id,omitempty"`
	ProductName  string     `json:"product_name,omitempty" yaml:"product_name,omitempty"`
	Quantity     int        `json:"quantity,omitempty" yaml:"quantity,omitempty"`
	Status       string     `json:"status,omitempty" yaml:"status,omitempty"`
	CurrentStage string     `json:"current_stage,omitempty" yaml:"current_stage,omitempty"`
	OperatorID   ID         `json:"operator_id,omitempty" yaml:"operator_id,omitempty"`
	OperatorName string     `json:"operator_name,omitempty" yaml:"operator_name,omitempty"`
	Progress     float64    `json:"progress,omitempty" yaml:"progress,omitempty"`
	StartedAt    *time.Time `json:"started_at,omitempty" yaml:"started_at,omitempty"`
}

// Active reports whether the production is still running.
func (p Production) Active() bool {
	switch p.Status {
	case "completed", "cancelled", "canceled":
		return false
	default:
		return true
	}
}

// Stage is one manufacturing stage of a production.
type Stage struct {
	ID          ID         `json:"id" yaml:"id"`
	Name        string     `json:"name" yaml:"name"`
	Order       int        `json:"order,omitempty" yaml:"order,omitempty"`
	Status      string     `json:"status,omitempty" yaml:"status,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty" yaml:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty" yaml:"completed_at,omitempty"`
}

// QualityResult is the outcome of a quality check.
type QualityResult string

// Quality check outcomes.
const (
	QualityPending QualityResult = "pending"
	QualityPassed  QualityResult = "pass"
	QualityFailed  QualityResult = "fail"
)

// QualityCheck is one checkpoint measurement.
type QualityCheck struct {
	ID         ID            `json:"id" yaml:"id"`
	Checkpoint string        `json:"checkpoint" yaml:"checkpoint"`
	Result     QualityResult `json:"result" yaml:"result"`
	Notes      string        `json:"notes,omitempty" yaml:"notes,omitempty"`
	CheckedAt  *time.Time    `json:"checked_at,omitempty" yaml:"checked_at,omitempty"`
}

// NotificationType is the severity of a store notification.
type NotificationType string

// Notification types.
const (
	NotificationSuccess NotificationType = "success"
	NotificationInfo    NotificationType = "info"
	NotificationWarning NotificationType = "warning"
	NotificationError   NotificationType = "error"
)

// Notification is a transient message kept in the process state.
type Notification struct {
	ID        string           `json:"id"`
	Message   string           `json:"message"`
	Type      NotificationType `json:"type"`
	Timestamp time.Time        `json:"timestamp"`
}

// WorkflowStatus is the coarse production phase of the session.
type WorkflowStatus string

// Workflow statuses.
const (
	StatusIdle         WorkflowStatus = "idle"
	StatusPlanning     WorkflowStatus = "planning"
	StatusProducing    WorkflowStatus = "producing"
	StatusQualityCheck WorkflowStatus = "quality_check"
	StatusCompleted    WorkflowStatus = "completed"
)

// Valid reports whether s is one of the known statuses.
func (s WorkflowStatus) Valid() bool {
	switch s {
	case StatusIdle, StatusPlanning, StatusProducing, StatusQualityCheck, StatusCompleted:
		return true
	}
	return false
}

// Key names a field of the process state.
type Key string

// Process state keys.
const (
	KeyCurrentPlan      Key = "currentPlan"
	KeyActiveProduction Key = "activeProduction"
	KeyCurrentStage     Key = "currentStage"
	KeyQualityChecks    Key = "qualityChecks"
	KeyNotifications    Key = "notifications"
	KeyWorkflowStatus   Key = "workflowStatus"
)

// Keys is the process state schema, in declaration order.
var Keys = []Key{
	KeyCurrentPlan,
	KeyActiveProduction,
	KeyCurrentStage,
	KeyQualityChecks,
	KeyNotifications,
	KeyWorkflowStatus,
}

// ProcessState is the workflow snapshot shared by every dashboard surface.
type ProcessState struct {
	CurrentPlan      *Plan          `json:"currentPlan"`
	ActiveProduction *Production    `json:"activeProduction"`
	CurrentStage     *Stage         `json:"currentStage"`
	QualityChecks    []QualityCheck `json:"qualityChecks"`
	Notifications    []Notification `json:"notifications"`
	WorkflowStatus   WorkflowStatus `json:"workflowStatus"`
}

// initialState returns the state a session starts with.
func initialState() ProcessState {
	return ProcessState{
		QualityChecks:  []QualityCheck{},
		Notifications:  []Notification{},
		WorkflowStatus: StatusIdle,
	}
}

// clone returns a copy that shares no mutable memory with s.
func (s ProcessState) clone() ProcessState {
	out := s
	if s.CurrentPlan != nil {
		p := *s.CurrentPlan
		out.CurrentPlan = &p
	}
	if s.ActiveProduction != nil {
		p := *s.ActiveProduction
		out.ActiveProduction = &p
	}
	if s.CurrentStage != nil {
		st := *s.CurrentStage
		out.CurrentStage = &st
	}
	out.QualityChecks = append([]QualityCheck{}, s.QualityChecks...)
	out.Notifications = append([]Notification{}, s.Notifications...)
	return out
}

// Change is the payload of a state-updated event.
type Change struct {
	Key   Key `json:"key"`
	Value any `json:"value"`
}
