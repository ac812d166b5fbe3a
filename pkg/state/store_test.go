package state

import (
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/shopfloor/pkg/errors"
	"github.com/agentstation/shopfloor/pkg/events"
)

func newTestStore(t *testing.T, opts ...Option) (*Store, *events.Bus) {
	t.Helper()
	logger := zerolog.Nop()
	bus := events.NewBus(&logger)
	s := NewStore(bus, opts...)
	t.Cleanup(s.Close)
	return s, bus
}

// recorder collects events published under a set of names.
type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func record(bus *events.Bus, names ...events.Name) *recorder {
	r := &recorder{}
	for _, n := range names {
		bus.Subscribe(n, func(e events.Event) {
			r.mu.Lock()
			r.events = append(r.events, e)
			r.mu.Unlock()
		})
	}
	return r
}

func (r *recorder) all() []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]events.Event{}, r.events...)
}

func (r *recorder) count(name events.Name) int {
	n := 0
	for _, e := range r.all() {
		if e.Name == name {
			n++
		}
	}
	return n
}

func TestStore_InitialState(t *testing.T) {
	s, _ := newTestStore(t)

	snap := s.Snapshot()
	assert.Nil(t, snap.CurrentPlan)
	assert.Nil(t, snap.ActiveProduction)
	assert.Nil(t, snap.CurrentStage)
	assert.Empty(t, snap.QualityChecks)
	assert.Empty(t, snap.Notifications)
	assert.Equal(t, StatusIdle, s.WorkflowStatus())
}

func TestStore_UpdatePublishes(t *testing.T) {
	s, bus := newTestStore(t)
	rec := record(bus, events.StateUpdated)

	plan := Plan{ID: "7", OrderNumber: "WO-7", ProductName: "Bracket", Quantity: 40}
	require.NoError(t, s.Update(KeyCurrentPlan, plan))

	got := rec.all()
	require.Len(t, got, 1)
	change, ok := got[0].Payload.(Change)
	require.True(t, ok)
	assert.Equal(t, KeyCurrentPlan, change.Key)
	assert.Equal(t, &plan, change.Value)

	v, ok := s.Get(KeyCurrentPlan)
	require.True(t, ok)
	assert.Equal(t, "WO-7", v.(*Plan).OrderNumber)
}

func TestStore_UpdateUnknownKey(t *testing.T) {
	s, bus := newTestStore(t)
	rec := record(bus, events.StateUpdated, events.TabChanged)
	before := s.Snapshot()

	err := s.Update("unknownKey", 42)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrUnknownKey)

	assert.Empty(t, rec.all())
	assert.Equal(t, before, s.Snapshot())
	_, ok := s.Get("unknownKey")
	assert.False(t, ok)
}

func TestStore_UpdateWrongType(t *testing.T) {
	s, bus := newTestStore(t)
	rec := record(bus, events.StateUpdated)

	tests := []struct {
		key   Key
		value any
	}{
		{KeyCurrentPlan, "plan"},
		{KeyQualityChecks, QualityCheck{}},
		{KeyWorkflowStatus, 3},
		{KeyWorkflowStatus, "sleeping"},
	}
	for _, tt := range tests {
		err := s.Update(tt.key, tt.value)
		assert.Error(t, err, "%s=%v", tt.key, tt.value)
		assert.True(t, errors.IsValidationError(err))
	}
	assert.Empty(t, rec.all())
	assert.Equal(t, StatusIdle, s.WorkflowStatus())
}

func TestStore_WorkflowStatus(t *testing.T) {
	s, _ := newTestStore(t)

	require.NoError(t, s.Update(KeyWorkflowStatus, "producing"))
	assert.Equal(t, StatusProducing, s.WorkflowStatus())

	v, _ := s.Get(KeyWorkflowStatus)
	assert.Equal(t, StatusProducing, v)

	require.NoError(t, s.Update(KeyWorkflowStatus, StatusQualityCheck))
	assert.Equal(t, StatusQualityCheck, s.WorkflowStatus())
}

func TestStore_NilClearsPointer(t *testing.T) {
	s, _ := newTestStore(t)

	require.NoError(t, s.Update(KeyActiveProduction, &Production{ID: "1"}))
	require.NoError(t, s.Update(KeyActiveProduction, nil))

	v, ok := s.Get(KeyActiveProduction)
	assert.True(t, ok)
	assert.Nil(t, v)
}

func TestStore_SnapshotIsolation(t *testing.T) {
	s, _ := newTestStore(t)
	checks := []QualityCheck{{ID: "1", Checkpoint: "weld", Result: QualityPassed}}
	require.NoError(t, s.Update(KeyQualityChecks, checks))

	checks[0].Result = QualityFailed
	snap := s.Snapshot()
	snap.QualityChecks[0].Checkpoint = "mutated"

	again := s.Snapshot()
	assert.Equal(t, QualityPassed, again.QualityChecks[0].Result)
	assert.Equal(t, "weld", again.QualityChecks[0].Checkpoint)
}

func TestStore_Notifications(t *testing.T) {
	s, bus := newTestStore(t, WithNotificationTTL(50*time.Millisecond))
	rec := record(bus, events.NotificationAdded, events.NotificationRemoved, events.StateUpdated)

	n := s.AddNotification("Production started", NotificationSuccess)
	assert.NotEmpty(t, n.ID)
	assert.False(t, n.Timestamp.IsZero())
	require.Len(t, s.Notifications(), 1)
	assert.Equal(t, 1, rec.count(events.NotificationAdded))
	assert.Equal(t, 1, rec.count(events.StateUpdated))

	assert.Eventually(t, func() bool {
		return len(s.Notifications()) == 0
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, rec.count(events.NotificationRemoved))
	assert.Equal(t, 2, rec.count(events.StateUpdated))
}

func TestStore_RemoveNotification(t *testing.T) {
	s, _ := newTestStore(t)

	a := s.AddNotification("first", NotificationInfo)
	b := s.AddNotification("second", NotificationWarning)
	assert.NotEqual(t, a.ID, b.ID)

	assert.True(t, s.RemoveNotification(a.ID))
	assert.False(t, s.RemoveNotification(a.ID))

	list := s.Notifications()
	require.Len(t, list, 1)
	assert.Equal(t, "second", list[0].Message)
}

func TestStore_CloseDropsNotifications(t *testing.T) {
	s, bus := newTestStore(t, WithNotificationTTL(50*time.Millisecond))
	rec := record(bus, events.NotificationRemoved)

	s.AddNotification("pending", NotificationInfo)
	s.Close()
	assert.Empty(t, s.Notifications())
	assert.Equal(t, 1, rec.count(events.NotificationRemoved))

	s.AddNotification("later", NotificationInfo)
	assert.Eventually(t, func() bool {
		return len(s.Notifications()) == 0
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, 2, rec.count(events.NotificationRemoved))
}

func TestStore_ResetState(t *testing.T) {
	s, bus := newTestStore(t)
	rec := record(bus, events.StateReset)

	require.NoError(t, s.Update(KeyCurrentPlan, Plan{ID: "1"}))
	require.NoError(t, s.Update(KeyWorkflowStatus, StatusPlanning))
	s.AddNotification("hello", NotificationInfo)

	s.ResetState()

	assert.Equal(t, initialState(), s.Snapshot())
	assert.Equal(t, 1, rec.count(events.StateReset))
	assert.Equal(t, TabDisabled, s.TabStatusOf(TabProduction))
}

func TestStore_ConcurrentUpdates(t *testing.T) {
	s, _ := newTestStore(t)
	require.NoError(t, s.Update(KeyActiveProduction, Production{ID: "p"}))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				_ = s.Update(KeyWorkflowStatus, StatusProducing)
			} else {
				_ = s.Update(KeyCurrentStage, Stage{ID: "s"})
			}
			_ = s.Tabs()
		}(i)
	}
	wg.Wait()

	assert.Equal(t, StatusProducing, s.WorkflowStatus())
	assert.Equal(t, TabActive, s.TabStatusOf(TabStages))
}
