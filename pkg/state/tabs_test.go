package state

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/shopfloor/pkg/events"
)

func TestComputeTabs_Initial(t *testing.T) {
	tabs := computeTabs(initialState())

	tests := []struct {
		id      TabID
		enabled bool
		status  TabStatus
	}{
		{TabPlanning, true, TabIdle},
		{TabProduction, false, TabDisabled},
		{TabStages, false, TabDisabled},
		{TabQuality, false, TabDisabled},
		{TabHistory, true, TabIdle},
		{TabOperators, true, TabIdle},
		{TabInventory, true, TabIdle},
	}
	for _, tt := range tests {
		t.Run(string(tt.id), func(t *testing.T) {
			d := tabs[tt.id]
			assert.Equal(t, tt.enabled, d.Enabled)
			assert.Equal(t, tt.status, d.Status)
		})
	}
}

func TestComputeTabs_DisabledImpliesStatus(t *testing.T) {
	states := []ProcessState{
		initialState(),
		{WorkflowStatus: StatusProducing, ActiveProduction: &Production{ID: "1"}},
		{WorkflowStatus: StatusQualityCheck, CurrentPlan: &Plan{ID: "1"}},
	}
	for _, st := range states {
		for id, d := range computeTabs(st) {
			if !d.Enabled {
				assert.Equal(t, TabDisabled, d.Status, "tab %s", id)
			}
		}
	}
}

func TestComputeTabs_ActiveByStatus(t *testing.T) {
	full := ProcessState{
		CurrentPlan:      &Plan{ID: "1"},
		ActiveProduction: &Production{ID: "2"},
		CurrentStage:     &Stage{ID: "3"},
	}

	tests := []struct {
		name      string
		status    WorkflowStatus
		stage     bool
		active    TabID
		completed []TabID
	}{
		{"planning", StatusPlanning, true, TabPlanning, nil},
		{"producing without stage", StatusProducing, false, TabProduction, []TabID{TabPlanning}},
		{"producing with stage", StatusProducing, true, TabStages, []TabID{TabPlanning, TabProduction}},
		{"quality", StatusQualityCheck, true, TabQuality, []TabID{TabPlanning, TabProduction, TabStages}},
		{"completed", StatusCompleted, true, TabHistory, []TabID{TabPlanning, TabProduction, TabStages, TabQuality}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := full.clone()
			st.WorkflowStatus = tt.status
			if !tt.stage {
				st.CurrentStage = nil
			}
			tabs := computeTabs(st)
			assert.Equal(t, TabActive, tabs[tt.active].Status)
			for _, id := range tt.completed {
				assert.Equal(t, TabCompleted, tabs[id].Status, "tab %s", id)
			}
			assert.Equal(t, TabIdle, tabs[TabOperators].Status)
		})
	}
}

func TestComputeTabs_FailedCheckWarns(t *testing.T) {
	st := ProcessState{
		ActiveProduction: &Production{ID: "1"},
		CurrentStage:     &Stage{ID: "2"},
		QualityChecks:    []QualityCheck{{ID: "a", Result: QualityPassed}, {ID: "b", Result: QualityFailed}},
		WorkflowStatus:   StatusQualityCheck,
	}
	assert.Equal(t, TabWarning, computeTabs(st)[TabQuality].Status)
}

func TestStore_RecomputeIdempotent(t *testing.T) {
	s, bus := newTestStore(t)

	require.NoError(t, s.Update(KeyCurrentPlan, Plan{ID: "1"}))
	require.NoError(t, s.Update(KeyActiveProduction, Production{ID: "2"}))
	require.NoError(t, s.Update(KeyWorkflowStatus, StatusProducing))

	first := s.Tabs()
	rec := record(bus, events.TabChanged)
	s.RecomputeTabs()
	second := s.Tabs()
	s.RecomputeTabs()
	third := s.Tabs()

	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("tabs changed on recompute (-first +second):\n%s", diff)
	}
	if diff := cmp.Diff(second, third); diff != "" {
		t.Errorf("tabs changed on recompute (-second +third):\n%s", diff)
	}
	assert.Empty(t, rec.all())
}

func TestStore_TabEvents(t *testing.T) {
	s, bus := newTestStore(t)
	rec := record(bus, events.TabChanged, events.TabEnabled, events.TabDisabled)

	require.NoError(t, s.Update(KeyCurrentPlan, Plan{ID: "1"}))
	assert.Equal(t, 1, rec.count(events.TabEnabled))
	assert.Equal(t, 1, rec.count(events.TabChanged))

	enabled := rec.all()[0].Payload.(TabDescriptor)
	assert.Equal(t, TabProduction, enabled.ID)

	require.NoError(t, s.Update(KeyCurrentPlan, nil))
	assert.Equal(t, 1, rec.count(events.TabDisabled))
}

func TestStore_TabLookup(t *testing.T) {
	s, _ := newTestStore(t)

	d, ok := s.Tab(TabQuality)
	require.True(t, ok)
	assert.Equal(t, []Key{KeyActiveProduction, KeyCurrentStage}, d.Requirements)
	assert.Equal(t, TabHistory, d.Next)

	_, ok = s.Tab("nope")
	assert.False(t, ok)
	assert.Equal(t, TabDisabled, s.TabStatusOf("nope"))
	assert.Len(t, s.Tabs(), len(TabIDs()))
}
