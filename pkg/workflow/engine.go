package workflow

import (
	"fmt"
	"maps"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/agentstation/shopfloor/pkg/errors"
	"github.com/agentstation/shopfloor/pkg/events"
	"github.com/agentstation/shopfloor/pkg/state"
)

// StateUpdater is the part of the state store the engine writes through.
type StateUpdater interface {
	Update(key state.Key, value any) error
}

// Engine runs workflow definitions, one active instance at a time.
type Engine struct {
	mu        sync.RWMutex
	defs      map[string]*Definition
	order     []string
	instances map[string]*instance
	current   string

	bus    *events.Bus
	store  StateUpdater
	logger *zerolog.Logger
	now    func() time.Time
}

// NewEngine creates an engine with the given definitions registered.
// store may be nil, in which case workflowStatus is never written.
func NewEngine(bus *events.Bus, store StateUpdater, logger *zerolog.Logger, defs ...Definition) (*Engine, error) {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	e := &Engine{
		defs:      make(map[string]*Definition),
		instances: make(map[string]*instance),
		bus:       bus,
		store:     store,
		logger:    logger,
		now:       time.Now,
	}
	for _, d := range defs {
		if err := e.Register(d); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// Register validates d and adds it, replacing any definition with the same id.
func (e *Engine) Register(d Definition) error {
	if err := Validate(&d); err != nil {
		return err
	}
	d.Steps = append([]Step{}, d.Steps...)

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.defs[d.ID]; !ok {
		e.order = append(e.order, d.ID)
	}
	e.defs[d.ID] = &d
	return nil
}

// Validate checks that d is runnable and fills in default start and end steps.
// Cycles are allowed.
func Validate(d *Definition) error {
	if d.ID == "" {
		return errors.NewValidationError("id", d.ID, "workflow id is required")
	}
	if len(d.Steps) == 0 {
		return errors.NewValidationError("steps", d.ID, "workflow has no steps")
	}
	seen := make(map[string]bool, len(d.Steps))
	for _, s := range d.Steps {
		if s.ID == "" {
			return errors.NewValidationError("steps.id", d.ID, "step id is required")
		}
		if seen[s.ID] {
			return errors.NewValidationError("steps.id", s.ID, "duplicate step id")
		}
		seen[s.ID] = true
	}
	for _, s := range d.Steps {
		if s.Next != "" && !seen[s.Next] {
			return errors.NewValidationError("steps.next", s.Next, fmt.Sprintf("step %s points at an unknown step", s.ID))
		}
	}
	if d.StartStep == "" {
		d.StartStep = d.Steps[0].ID
	}
	if d.EndStep == "" {
		d.EndStep = d.Steps[len(d.Steps)-1].ID
	}
	if !seen[d.StartStep] {
		return errors.NewValidationError("start_step", d.StartStep, "unknown start step")
	}
	if !seen[d.EndStep] {
		return errors.NewValidationError("end_step", d.EndStep, "unknown end step")
	}
	for _, st := range []state.WorkflowStatus{d.StartStatus, d.CompleteStatus} {
		if st != "" && !st.Valid() {
			return errors.NewValidationError("status", st, "unknown workflow status")
		}
	}
	return nil
}

// Definitions returns the registered definitions in registration order.
func (e *Engine) Definitions() []Definition {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]Definition, 0, len(e.order))
	for _, id := range e.order {
		d := *e.defs[id]
		d.Steps = append([]Step{}, d.Steps...)
		out = append(out, d)
	}
	return out
}

// Definition returns the definition with id.
func (e *Engine) Definition(id string) (Definition, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	d, ok := e.defs[id]
	if !ok {
		return Definition{}, false
	}
	out := *d
	out.Steps = append([]Step{}, d.Steps...)
	return out, true
}

// Start begins workflow id at its start step.
// It fails if another instance is active; the active instance is left untouched.
func (e *Engine) Start(id string, data map[string]any) error {
	e.mu.Lock()
	if e.current != "" {
		active := e.current
		e.mu.Unlock()
		e.logger.Warn().Str("workflow_id", id).Str("active", active).Msg("Workflow start rejected")
		return errors.NewWorkflowError("start", id, fmt.Errorf("%w: %s", errors.ErrWorkflowActive, active))
	}
	def, ok := e.defs[id]
	if !ok {
		e.mu.Unlock()
		return errors.NewWorkflowError("start", id, errors.NewNotFoundError("workflow", id))
	}
	inst := &instance{
		id:          uuid.NewString(),
		definition:  id,
		currentStep: def.StartStep,
		completed:   []CompletedStep{},
		status:      StatusRunning,
		data:        maps.Clone(data),
		startedAt:   e.now(),
	}
	e.instances[id] = inst
	e.current = id
	snap := e.snapshotLocked(def, inst)
	startStatus := def.StartStatus
	e.mu.Unlock()

	e.logger.Info().Str("workflow_id", id).Str("instance_id", inst.id).Msg("Workflow started")
	e.setStatus(startStatus)
	e.bus.Publish(events.WorkflowStarted, snap)
	return nil
}

// Next completes the current step of the active instance and advances it.
func (e *Engine) Next(data map[string]any) error {
	e.mu.Lock()
	if e.current == "" {
		e.mu.Unlock()
		return errors.NewWorkflowError("next", "", errors.ErrNoActiveWorkflow)
	}
	id := e.current
	def := e.defs[id]
	inst := e.instances[id]
	if inst.status == StatusPaused {
		e.mu.Unlock()
		return errors.NewWorkflowError("next", id, errors.ErrWorkflowPaused)
	}

	step, ok := def.Step(inst.currentStep)
	if !ok {
		err := errors.NewWorkflowError("next", id, errors.NewNotFoundError("step", inst.currentStep))
		e.failLocked(inst, err)
		snap := e.snapshotLocked(def, inst)
		e.mu.Unlock()

		e.logger.Error().Err(err).Str("workflow_id", id).Msg("Workflow step unresolvable")
		e.bus.Publish(events.WorkflowError, snap)
		return err
	}

	inst.completed = append(inst.completed, CompletedStep{
		StepID:      step.ID,
		CompletedAt: e.now(),
		Data:        maps.Clone(data),
	})

	if step.Next == "" {
		inst.status = StatusCompleted
		inst.currentStep = ""
		inst.finishedAt = e.now()
		e.current = ""
		snap := e.snapshotLocked(def, inst)
		completeStatus := def.CompleteStatus
		e.mu.Unlock()

		e.logger.Info().Str("workflow_id", id).Int("steps", len(snap.CompletedSteps)).Msg("Workflow completed")
		e.setStatus(completeStatus)
		e.bus.Publish(events.WorkflowCompleted, snap)
		return nil
	}

	inst.currentStep = step.Next
	next, _ := def.Step(step.Next)
	tr := Transition{
		WorkflowID: id,
		InstanceID: inst.id,
		Completed:  step,
		Current:    next,
		Data:       maps.Clone(data),
		Progress:   progress(len(inst.completed), len(def.Steps)),
	}
	e.mu.Unlock()

	e.logger.Debug().Str("workflow_id", id).Str("step", step.ID).Str("next", next.ID).Msg("Workflow step completed")
	e.bus.Publish(events.StepCompleted, tr)
	return nil
}

// Pause pauses the active instance. It is a no-op without one.
func (e *Engine) Pause() {
	e.toggle(StatusRunning, StatusPaused, events.WorkflowPaused)
}

// Resume resumes a paused instance. It is a no-op without one.
func (e *Engine) Resume() {
	e.toggle(StatusPaused, StatusRunning, events.WorkflowResumed)
}

func (e *Engine) toggle(from, to Status, name events.Name) {
	e.mu.Lock()
	if e.current == "" {
		e.mu.Unlock()
		return
	}
	inst := e.instances[e.current]
	if inst.status != from {
		e.mu.Unlock()
		return
	}
	inst.status = to
	snap := e.snapshotLocked(e.defs[e.current], inst)
	e.mu.Unlock()

	e.logger.Info().Str("workflow_id", snap.WorkflowID).Str("status", string(to)).Msg("Workflow status changed")
	e.bus.Publish(name, snap)
}

// Fail moves the active instance to the error state.
func (e *Engine) Fail(cause error) error {
	e.mu.Lock()
	if e.current == "" {
		e.mu.Unlock()
		return errors.NewWorkflowError("fail", "", errors.ErrNoActiveWorkflow)
	}
	id := e.current
	inst := e.instances[id]
	e.failLocked(inst, cause)
	snap := e.snapshotLocked(e.defs[id], inst)
	e.mu.Unlock()

	e.logger.Error().Err(cause).Str("workflow_id", id).Msg("Workflow failed")
	e.bus.Publish(events.WorkflowError, snap)
	return nil
}

func (e *Engine) failLocked(inst *instance, cause error) {
	inst.status = StatusError
	inst.err = cause
	inst.finishedAt = e.now()
	e.current = ""
}

// Current returns the id of the active workflow, or "" when none is active.
func (e *Engine) Current() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.current
}

// Status returns a projection of workflow id and its latest instance.
func (e *Engine) Status(id string) (Snapshot, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	def, ok := e.defs[id]
	if !ok {
		return Snapshot{}, errors.NewWorkflowError("status", id, errors.NewNotFoundError("workflow", id))
	}
	return e.snapshotLocked(def, e.instances[id]), nil
}

func (e *Engine) snapshotLocked(def *Definition, inst *instance) Snapshot {
	snap := Snapshot{
		WorkflowID:     def.ID,
		Name:           def.Name,
		Status:         StatusIdle,
		CompletedSteps: []CompletedStep{},
		TotalSteps:     len(def.Steps),
	}
	if inst == nil {
		return snap
	}
	snap.InstanceID = inst.id
	snap.Status = inst.status
	snap.CurrentStep = inst.currentStep
	snap.CompletedSteps = append(snap.CompletedSteps, inst.completed...)
	snap.Progress = progress(len(inst.completed), len(def.Steps))
	snap.Data = maps.Clone(inst.data)
	started := inst.startedAt
	snap.StartedAt = &started
	if !inst.finishedAt.IsZero() {
		finished := inst.finishedAt
		snap.FinishedAt = &finished
	}
	if inst.err != nil {
		snap.Error = inst.err.Error()
	}
	return snap
}

// progress is 100*done/total rounded; cycles can push it past 100.
func progress(done, total int) int {
	if total == 0 {
		return 0
	}
	return int(math.Round(100 * float64(done) / float64(total)))
}

func (e *Engine) setStatus(st state.WorkflowStatus) {
	if st == "" || e.store == nil {
		return
	}
	if err := e.store.Update(state.KeyWorkflowStatus, st); err != nil {
		e.logger.Warn().Err(err).Str("status", string(st)).Msg("Failed to update workflow status")
	}
}
