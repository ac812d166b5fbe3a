// Package workflow runs named step chains that drive the production process state.
//
// A Definition is a graph of steps linked by Next. The Engine holds at most one
// active instance at a time; starting another while it is running fails.
// Instances move idle → running → {paused ⇄ running} → completed, with error as an
// absorbing state entered on an unresolvable step or an explicit Fail.
package workflow

import (
	"time"

	"github.com/agentstation/shopfloor/pkg/state"
)

// Status is the lifecycle state of a workflow instance.
type Status string

// Instance statuses.
const (
	StatusIdle      Status = "idle"
	StatusRunning   Status = "running"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
)

// Step is one node of a workflow graph. An empty Next ends the workflow.
type Step struct {
	ID       string `json:"id" yaml:"id"`
	Name     string `json:"name" yaml:"name"`
	Required bool   `json:"required" yaml:"required"`
	Next     string `json:"next,omitempty" yaml:"next,omitempty"`
}

// Definition describes a workflow.
type Definition struct {
	ID        string `json:"id" yaml:"id"`
	Name      string `json:"name" yaml:"name"`
	Steps     []Step `json:"steps" yaml:"steps"`
	StartStep string `json:"start_step,omitempty" yaml:"start_step,omitempty"`
	EndStep   string `json:"end_step,omitempty" yaml:"end_step,omitempty"`

	// StartStatus and CompleteStatus, when set, are written to the process
	// state's workflowStatus as the workflow starts and completes.
	StartStatus    state.WorkflowStatus `json:"start_status,omitempty" yaml:"start_status,omitempty"`
	CompleteStatus state.WorkflowStatus `json:"complete_status,omitempty" yaml:"complete_status,omitempty"`
}

// Step returns the step with id.
func (d *Definition) Step(id string) (Step, bool) {
	for _, s := range d.Steps {
		if s.ID == id {
			return s, true
		}
	}
	return Step{}, false
}

// CompletedStep records one finished step.
type CompletedStep struct {
	StepID      string         `json:"step_id" yaml:"step_id"`
	CompletedAt time.Time      `json:"completed_at" yaml:"completed_at"`
	Data        map[string]any `json:"data,omitempty" yaml:"data,omitempty"`
}

// instance is the engine's mutable record of a started workflow.
type instance struct {
	id          string
	definition  string
	currentStep string
	completed   []CompletedStep
	status      Status
	data        map[string]any
	startedAt   time.Time
	finishedAt  time.Time
	err         error
}

// Snapshot is a read-only view of a workflow and its latest instance.
type Snapshot struct {
	WorkflowID     string          `json:"workflow_id" yaml:"workflow_id"`
	Name           string          `json:"name" yaml:"name"`
	InstanceID     string          `json:"instance_id,omitempty" yaml:"instance_id,omitempty"`
	Status         Status          `json:"status" yaml:"status"`
	CurrentStep    string          `json:"current_step,omitempty" yaml:"current_step,omitempty"`
	CompletedSteps []CompletedStep `json:"completed_steps" yaml:"completed_steps"`
	TotalSteps     int             `json:"total_steps" yaml:"total_steps"`
	Progress       int             `json:"progress" yaml:"progress"`
	Data           map[string]any  `json:"data,omitempty" yaml:"data,omitempty"`
	StartedAt      *time.Time      `json:"started_at,omitempty" yaml:"started_at,omitempty"`
	FinishedAt     *time.Time      `json:"finished_at,omitempty" yaml:"finished_at,omitempty"`
	Error          string          `json:"error,omitempty" yaml:"error,omitempty"`
}

// Transition is the payload of a step-completed event.
type Transition struct {
	WorkflowID string         `json:"workflow_id"`
	InstanceID string         `json:"instance_id"`
	Completed  Step           `json:"completed"`
	Current    Step           `json:"current"`
	Data       map[string]any `json:"data,omitempty"`
	Progress   int            `json:"progress"`
}
