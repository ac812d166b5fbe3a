package workflow

import (
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/shopfloor/pkg/errors"
	"github.com/agentstation/shopfloor/pkg/events"
	"github.com/agentstation/shopfloor/pkg/state"
)

type fixture struct {
	engine *Engine
	store  *state.Store
	bus    *events.Bus

	mu  sync.Mutex
	got []events.Event
}

func newFixture(t *testing.T, defs ...Definition) *fixture {
	t.Helper()
	logger := zerolog.Nop()
	bus := events.NewBus(&logger)
	store := state.NewStore(bus)
	t.Cleanup(store.Close)
	if len(defs) == 0 {
		defs = Builtin()
	}
	engine, err := NewEngine(bus, store, &logger, defs...)
	require.NoError(t, err)

	f := &fixture{engine: engine, store: store, bus: bus}
	for _, n := range []events.Name{
		events.WorkflowStarted, events.StepCompleted, events.WorkflowCompleted,
		events.WorkflowPaused, events.WorkflowResumed, events.WorkflowError,
	} {
		bus.Subscribe(n, func(e events.Event) {
			f.mu.Lock()
			f.got = append(f.got, e)
			f.mu.Unlock()
		})
	}
	return f
}

func (f *fixture) names() []events.Name {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]events.Name, len(f.got))
	for i, e := range f.got {
		out[i] = e.Name
	}
	return out
}

func TestEngine_Builtin(t *testing.T) {
	f := newFixture(t)

	defs := f.engine.Definitions()
	require.Len(t, defs, 3)
	assert.Equal(t, []string{ProductionStart, ProductionStages, QualityControl},
		[]string{defs[0].ID, defs[1].ID, defs[2].ID})
	for _, d := range defs {
		assert.Len(t, d.Steps, 4, d.ID)
		assert.Equal(t, "", d.Steps[3].Next, d.ID)
		for i := 0; i < 3; i++ {
			assert.Equal(t, d.Steps[i+1].ID, d.Steps[i].Next)
		}
	}
}

func TestEngine_RunToCompletion(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.engine.Start(ProductionStart, map[string]any{"plan": 7}))
	assert.Equal(t, state.StatusPlanning, f.store.WorkflowStatus())
	assert.Equal(t, ProductionStart, f.engine.Current())

	for i := 0; i < 4; i++ {
		require.NoError(t, f.engine.Next(map[string]any{"n": i}), "step %d", i)
	}

	snap, err := f.engine.Status(ProductionStart)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, snap.Status)
	assert.Equal(t, 100, snap.Progress)
	assert.Len(t, snap.CompletedSteps, 4)
	assert.Equal(t, "", f.engine.Current())
	assert.Equal(t, state.StatusProducing, f.store.WorkflowStatus())

	err = f.engine.Next(nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrNoActiveWorkflow)

	assert.Equal(t, []events.Name{
		events.WorkflowStarted,
		events.StepCompleted, events.StepCompleted, events.StepCompleted,
		events.WorkflowCompleted,
	}, f.names())
}

func TestEngine_StepCompletedPayload(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.engine.Start(QualityControl, nil))
	require.NoError(t, f.engine.Next(map[string]any{"ok": true}))

	f.mu.Lock()
	tr, ok := f.got[1].Payload.(Transition)
	f.mu.Unlock()
	require.True(t, ok)
	assert.Equal(t, "visual-inspection", tr.Completed.ID)
	assert.Equal(t, "dimension-check", tr.Current.ID)
	assert.Equal(t, 25, tr.Progress)
	assert.Equal(t, true, tr.Data["ok"])
}

func TestEngine_SecondStartFails(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.engine.Start(ProductionStart, nil))
	require.NoError(t, f.engine.Next(nil))
	before, err := f.engine.Status(ProductionStart)
	require.NoError(t, err)

	err = f.engine.Start(ProductionStages, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrWorkflowActive)
	assert.Equal(t, errors.CategoryMisuse, errors.Classify(err))

	after, err := f.engine.Status(ProductionStart)
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Equal(t, ProductionStart, f.engine.Current())

	other, err := f.engine.Status(ProductionStages)
	require.NoError(t, err)
	assert.Equal(t, StatusIdle, other.Status)
}

func TestEngine_PauseResume(t *testing.T) {
	f := newFixture(t)

	f.engine.Pause()
	f.engine.Resume()
	assert.Empty(t, f.names(), "no-ops without an active instance")

	require.NoError(t, f.engine.Start(ProductionStages, nil))
	require.NoError(t, f.engine.Next(nil))

	f.engine.Pause()
	snap, _ := f.engine.Status(ProductionStages)
	assert.Equal(t, StatusPaused, snap.Status)
	assert.Equal(t, "assembly", snap.CurrentStep)
	assert.Len(t, snap.CompletedSteps, 1)

	err := f.engine.Next(nil)
	assert.ErrorIs(t, err, errors.ErrWorkflowPaused)

	f.engine.Pause()
	f.engine.Resume()
	snap, _ = f.engine.Status(ProductionStages)
	assert.Equal(t, StatusRunning, snap.Status)
	assert.Equal(t, "assembly", snap.CurrentStep)
	assert.Len(t, snap.CompletedSteps, 1)

	assert.Equal(t, []events.Name{
		events.WorkflowStarted, events.StepCompleted,
		events.WorkflowPaused, events.WorkflowResumed,
	}, f.names())
}

func TestEngine_UnresolvableStep(t *testing.T) {
	def := Definition{
		ID: "repair",
		Steps: []Step{
			{ID: "a", Next: "b"},
			{ID: "b"},
		},
	}
	f := newFixture(t, def)
	require.NoError(t, f.engine.Start("repair", nil))
	require.NoError(t, f.engine.Next(nil))

	require.NoError(t, f.engine.Register(Definition{ID: "repair", Steps: []Step{{ID: "a"}}}))

	err := f.engine.Next(nil)
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))

	snap, _ := f.engine.Status("repair")
	assert.Equal(t, StatusError, snap.Status)
	assert.NotEmpty(t, snap.Error)
	assert.Equal(t, "", f.engine.Current())
	assert.Contains(t, f.names(), events.WorkflowError)

	require.NoError(t, f.engine.Start("repair", nil), "error state releases the engine")
}

func TestEngine_Cycle(t *testing.T) {
	def := Definition{
		ID: "rework",
		Steps: []Step{
			{ID: "inspect", Next: "fix"},
			{ID: "fix", Next: "inspect"},
		},
	}
	f := newFixture(t, def)
	require.NoError(t, f.engine.Start("rework", nil))
	for i := 0; i < 5; i++ {
		require.NoError(t, f.engine.Next(nil))
	}
	snap, _ := f.engine.Status("rework")
	assert.Equal(t, StatusRunning, snap.Status)
	assert.Equal(t, "fix", snap.CurrentStep)
	assert.Equal(t, 250, snap.Progress)
}

func TestEngine_Fail(t *testing.T) {
	f := newFixture(t)

	assert.ErrorIs(t, f.engine.Fail(assert.AnError), errors.ErrNoActiveWorkflow)

	require.NoError(t, f.engine.Start(ProductionStart, nil))
	require.NoError(t, f.engine.Fail(assert.AnError))

	snap, _ := f.engine.Status(ProductionStart)
	assert.Equal(t, StatusError, snap.Status)
	assert.Equal(t, assert.AnError.Error(), snap.Error)
}

func TestEngine_UnknownWorkflow(t *testing.T) {
	f := newFixture(t)

	err := f.engine.Start("nope", nil)
	assert.True(t, errors.IsNotFound(err))
	_, err = f.engine.Status("nope")
	assert.True(t, errors.IsNotFound(err))
	assert.Equal(t, "", f.engine.Current())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		def     Definition
		wantErr bool
	}{
		{"ok", Definition{ID: "w", Steps: []Step{{ID: "a"}}}, false},
		{"no id", Definition{Steps: []Step{{ID: "a"}}}, true},
		{"no steps", Definition{ID: "w"}, true},
		{"duplicate", Definition{ID: "w", Steps: []Step{{ID: "a"}, {ID: "a"}}}, true},
		{"dangling next", Definition{ID: "w", Steps: []Step{{ID: "a", Next: "z"}}}, true},
		{"bad start", Definition{ID: "w", StartStep: "z", Steps: []Step{{ID: "a"}}}, true},
		{"bad status", Definition{ID: "w", StartStatus: "asleep", Steps: []Step{{ID: "a"}}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := tt.def
			err := Validate(&d)
			if tt.wantErr {
				assert.True(t, errors.IsValidationError(err), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "a", d.StartStep)
			assert.Equal(t, "a", d.EndStep)
		})
	}
}
