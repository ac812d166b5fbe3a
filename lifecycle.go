package shopfloor

import (
	"context"

	"github.com/agentstation/shopfloor/pkg/errors"
	"github.com/agentstation/shopfloor/pkg/events"
	"github.com/agentstation/shopfloor/pkg/state"
)

// Start connects the socket and starts the poll timers. A socket that cannot
// be reached on the first dial is not an error: it keeps retrying in the
// background and reports through socket-reconnecting and
// socket-reconnect-failed.
func (sf *shopfloor) Start(ctx context.Context) error {
	sf.mu.Lock()
	if sf.started {
		sf.mu.Unlock()
		return nil
	}
	sf.started = true
	sf.mu.Unlock()

	sf.surface.Attach()

	sf.logger.Info().
		Str("origin", sf.config.origin).
		Bool("socket", sf.socket != nil).
		Bool("polling", sf.poller != nil).
		Msg("Starting shopfloor session")

	if sf.poller != nil {
		sf.poller.Start(ctx)
	}
	if sf.socket != nil {
		if sf.config.operatorID != "" {
			// Stored identity is sent on every open, including the first one.
			if err := sf.socket.Register(sf.config.operatorID, sf.config.operatorName); err != nil {
				return err
			}
		}
		if err := sf.socket.Connect(ctx); err != nil {
			sf.logger.Warn().Err(err).Msg("Socket not reachable, retrying in background")
		}
	}
	return nil
}

// Stop tears the session down. Pending notifications are dropped; a later
// Start resumes with a fresh notification list.
func (sf *shopfloor) Stop() {
	sf.mu.Lock()
	sf.started = false
	sf.mu.Unlock()

	if sf.socket != nil {
		sf.socket.Disconnect()
	}
	if sf.poller != nil {
		sf.poller.Stop()
	}
	sf.surface.Detach()
	sf.store.Close()
	sf.logger.Info().Msg("Shopfloor session stopped")
}

// running reports whether the session is between Start and Stop
func (sf *shopfloor) running() bool {
	sf.mu.Lock()
	defer sf.mu.Unlock()
	return sf.started
}

// HandleVisibility forwards a page visibility change to the sync layer.
// Changes outside Start and Stop are ignored.
func (sf *shopfloor) HandleVisibility(ctx context.Context, visible bool) {
	if !sf.running() {
		return
	}
	if sf.poller != nil {
		sf.poller.HandleVisibility(visible)
	}
	if sf.socket != nil {
		sf.socket.HandleVisibility(ctx, visible)
	}
}

// HandleNetwork forwards a network state change to the poller
func (sf *shopfloor) HandleNetwork(online bool) {
	if !sf.running() {
		return
	}
	if sf.poller != nil {
		sf.poller.HandleNetwork(online)
	}
}

// SelectPlan makes plan the current plan. An idle session moves to planning.
func (sf *shopfloor) SelectPlan(plan state.Plan) error {
	if plan.ID == "" {
		return errors.NewValidationError("plan.id", plan.ID, "plan id is required")
	}
	if err := sf.store.Update(state.KeyCurrentPlan, plan); err != nil {
		return err
	}
	if sf.store.WorkflowStatus() == state.StatusIdle {
		if err := sf.store.Update(state.KeyWorkflowStatus, state.StatusPlanning); err != nil {
			return err
		}
	}
	sf.bus.Publish(events.PlanSelected, plan)
	return nil
}

// SetStage makes stage the current stage. Entering a different stage publishes
// stage-started; a stage reported as completed publishes stage-completed.
func (sf *shopfloor) SetStage(stage state.Stage) error {
	if stage.ID == "" {
		return errors.NewValidationError("stage.id", stage.ID, "stage id is required")
	}
	var prev *state.Stage
	if v, ok := sf.store.Get(state.KeyCurrentStage); ok {
		prev, _ = v.(*state.Stage)
	}
	if err := sf.store.Update(state.KeyCurrentStage, stage); err != nil {
		return err
	}

	switch {
	case stage.Status == "completed":
		sf.bus.Publish(events.StageCompleted, stage)
	case prev == nil || prev.ID != stage.ID:
		sf.bus.Publish(events.StageStarted, stage)
	default:
		sf.bus.Publish(events.StageUpdated, stage)
	}
	return nil
}

// RecordQualityCheck adds check, replacing an earlier result with the same id
func (sf *shopfloor) RecordQualityCheck(check state.QualityCheck) error {
	if check.ID == "" {
		return errors.NewValidationError("check.id", check.ID, "check id is required")
	}
	if check.Result == "" {
		check.Result = state.QualityPending
	}

	checks := sf.store.Snapshot().QualityChecks
	replaced := false
	for i := range checks {
		if checks[i].ID == check.ID {
			checks[i] = check
			replaced = true
			break
		}
	}
	if !replaced {
		checks = append(checks, check)
	}
	if err := sf.store.Update(state.KeyQualityChecks, checks); err != nil {
		return err
	}

	switch check.Result {
	case state.QualityPassed:
		sf.bus.Publish(events.QualityCheckPassed, check)
	case state.QualityFailed:
		sf.bus.Publish(events.QualityCheckFailed, check)
	default:
		sf.bus.Publish(events.QualityCheckStarted, check)
	}
	if allDecided(checks) {
		sf.bus.Publish(events.QualityCheckCompleted, checks)
	}
	return nil
}

func allDecided(checks []state.QualityCheck) bool {
	for _, c := range checks {
		if c.Result != state.QualityPassed && c.Result != state.QualityFailed {
			return false
		}
	}
	return len(checks) > 0
}
