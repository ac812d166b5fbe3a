package shopfloor

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/shopfloor/internal/testserver"
	"github.com/agentstation/shopfloor/pkg/constants"
	"github.com/agentstation/shopfloor/pkg/events"
	"github.com/agentstation/shopfloor/pkg/notify"
	"github.com/agentstation/shopfloor/pkg/polling"
	"github.com/agentstation/shopfloor/pkg/realtime"
	"github.com/agentstation/shopfloor/pkg/state"
	"github.com/agentstation/shopfloor/pkg/workflow"
)

const waitFor = 2 * time.Second
const tick = 5 * time.Millisecond

type alertLog struct {
	mu     sync.Mutex
	alerts []*notify.Alert
}

func (l *alertLog) WriteAlert(a *notify.Alert) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.alerts = append(l.alerts, a)
	return nil
}

func (l *alertLog) messages() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []string
	for _, a := range l.alerts {
		out = append(out, a.Message)
	}
	return out
}

type eventLog struct {
	mu  sync.Mutex
	got []events.Event
}

func watch(bus *events.Bus, names ...events.Name) *eventLog {
	l := &eventLog{}
	for _, n := range names {
		bus.Subscribe(n, func(e events.Event) {
			l.mu.Lock()
			l.got = append(l.got, e)
			l.mu.Unlock()
		})
	}
	return l
}

func (l *eventLog) names() []events.Name {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []events.Name
	for _, e := range l.got {
		out = append(out, e.Name)
	}
	return out
}

func (l *eventLog) count(name events.Name) int {
	n := 0
	for _, got := range l.names() {
		if got == name {
			n++
		}
	}
	return n
}

func newSession(t *testing.T, opts ...Option) Shopfloor {
	t.Helper()
	logger := zerolog.Nop()
	sf, err := New(append([]Option{WithLogger(&logger), WithAlertWriter(notify.Discard)}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(sf.Stop)
	return sf
}

func activeID(sf Shopfloor) state.ID {
	p := sf.Store().Snapshot().ActiveProduction
	if p == nil {
		return ""
	}
	return p.ID
}

func TestNew_Components(t *testing.T) {
	sf := newSession(t)

	assert.NotNil(t, sf.Bus())
	assert.NotNil(t, sf.Store())
	assert.NotNil(t, sf.Engine())
	assert.NotNil(t, sf.Surface())
	require.NotNil(t, sf.Socket())
	require.NotNil(t, sf.Poller())
	assert.Equal(t, "ws://localhost:3000/ws", sf.Socket().URL())

	for _, id := range []string{workflow.ProductionStart, workflow.ProductionStages, workflow.QualityControl} {
		_, ok := sf.Engine().Definition(id)
		assert.True(t, ok, id)
	}

	st := sf.Status()
	assert.Equal(t, realtime.StateDisconnected, st.Socket)
	assert.Equal(t, state.StatusIdle, st.WorkflowStatus)
	assert.Len(t, st.Tabs, len(state.TabIDs()))
	require.NotNil(t, st.Poll)
	assert.False(t, st.Poll.Active)
}

func TestNew_Disabled(t *testing.T) {
	sf := newSession(t, WithSocket(false), WithPolling(false))

	assert.Nil(t, sf.Socket())
	assert.Nil(t, sf.Poller())
	require.NoError(t, sf.Start(context.Background()))
	assert.Nil(t, sf.Status().Poll)
}

func TestNew_InvalidOptions(t *testing.T) {
	tests := []struct {
		name string
		opt  Option
	}{
		{"empty origin", WithOrigin("")},
		{"unsupported scheme", WithOrigin("ftp://example.com")},
		{"negative ttl", WithNotificationTTL(-time.Second)},
		{"zero reconnect delay", WithReconnect(3, 0)},
		{"zero frequency", WithPollFrequency(polling.ActiveProductions, 0)},
		{"unknown poll resource", WithPollFrequency("active-production", time.Second)},
		{"zero fetch timeout", WithFetchTimeout(0)},
		{"negative ping interval", WithPingInterval(-time.Second)},
		{"negative status interval", WithStatusInterval(-time.Second)},
		{"invalid workflow", WithWorkflows(workflow.Definition{ID: "empty"})},
		{"api key without header", WithAPIKey("", "secret")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.opt, WithAlertWriter(notify.Discard))
			assert.Error(t, err)
		})
	}
}

func TestNew_ExtraWorkflow(t *testing.T) {
	def := workflow.Definition{
		ID:    "rework",
		Name:  "Rework",
		Steps: []workflow.Step{{ID: "inspect", Next: "fix"}, {ID: "fix"}},
	}
	sf := newSession(t, WithWorkflows(def))

	require.NoError(t, sf.Engine().Start("rework", nil))
	assert.Equal(t, "rework", sf.Status().Workflow)
}

func TestSelectPlan(t *testing.T) {
	sf := newSession(t, WithSocket(false), WithPolling(false))
	log := watch(sf.Bus(), events.PlanSelected, events.TabEnabled)

	require.NoError(t, sf.SelectPlan(state.Plan{ID: "12", ProductName: "Bracket"}))

	snap := sf.Store().Snapshot()
	require.NotNil(t, snap.CurrentPlan)
	assert.Equal(t, state.ID("12"), snap.CurrentPlan.ID)
	assert.Equal(t, state.StatusPlanning, snap.WorkflowStatus)
	assert.Equal(t, 1, log.count(events.PlanSelected))
	assert.GreaterOrEqual(t, log.count(events.TabEnabled), 1)

	tab, ok := sf.Store().Tab(state.TabProduction)
	require.True(t, ok)
	assert.True(t, tab.Enabled)

	assert.Error(t, sf.SelectPlan(state.Plan{}))
}

func TestSetStage(t *testing.T) {
	sf := newSession(t, WithSocket(false), WithPolling(false))
	log := watch(sf.Bus(), events.StageStarted, events.StageUpdated, events.StageCompleted)

	require.NoError(t, sf.SetStage(state.Stage{ID: "1", Name: "cutting", Status: "in_progress"}))
	require.NoError(t, sf.SetStage(state.Stage{ID: "1", Name: "cutting", Status: "in_progress"}))
	require.NoError(t, sf.SetStage(state.Stage{ID: "1", Name: "cutting", Status: "completed"}))
	require.NoError(t, sf.SetStage(state.Stage{ID: "2", Name: "assembly"}))

	assert.Equal(t, []events.Name{
		events.StageStarted,
		events.StageUpdated,
		events.StageCompleted,
		events.StageStarted,
	}, log.names())
	assert.Equal(t, "assembly", sf.Store().Snapshot().CurrentStage.Name)
}

func TestRecordQualityCheck(t *testing.T) {
	sf := newSession(t, WithSocket(false), WithPolling(false))
	require.NoError(t, sf.Store().Update(state.KeyActiveProduction, state.Production{ID: "1", Status: "in_progress"}))
	require.NoError(t, sf.SetStage(state.Stage{ID: "4", Name: "finishing"}))
	log := watch(sf.Bus(),
		events.QualityCheckStarted, events.QualityCheckPassed,
		events.QualityCheckFailed, events.QualityCheckCompleted)

	require.NoError(t, sf.RecordQualityCheck(state.QualityCheck{ID: "a", Checkpoint: "visual"}))
	require.NoError(t, sf.RecordQualityCheck(state.QualityCheck{ID: "b", Checkpoint: "dimension", Result: state.QualityPassed}))
	assert.Equal(t, 0, log.count(events.QualityCheckCompleted))

	require.NoError(t, sf.RecordQualityCheck(state.QualityCheck{ID: "a", Checkpoint: "visual", Result: state.QualityFailed}))

	checks := sf.Store().Snapshot().QualityChecks
	require.Len(t, checks, 2)
	assert.Equal(t, state.QualityFailed, checks[0].Result)
	assert.Equal(t, []events.Name{
		events.QualityCheckStarted,
		events.QualityCheckPassed,
		events.QualityCheckFailed,
		events.QualityCheckCompleted,
	}, log.names())
	assert.Equal(t, state.TabWarning, sf.Store().TabStatusOf(state.TabQuality))
}

func TestSocketProjection(t *testing.T) {
	srv := testserver.New(t)
	alerts := &alertLog{}
	sf := newSession(t,
		WithOrigin(srv.URL),
		WithPolling(false),
		WithOperator("7", "Ayse"),
		WithReconnect(2, 10*time.Millisecond),
		WithAlertWriter(alerts),
	)
	log := watch(sf.Bus(), events.ProductionStarted, events.ProductionUpdated, events.ProductionCompleted, events.ProductionTransferred)

	var added, removed []state.ID
	var mu sync.Mutex
	sf.OnProductionAdded(func(p state.Production) {
		mu.Lock()
		added = append(added, p.ID)
		mu.Unlock()
	})
	sf.OnProductionRemoved(func(p state.Production) {
		mu.Lock()
		removed = append(removed, p.ID)
		mu.Unlock()
	})

	require.NoError(t, sf.Start(context.Background()))
	require.Eventually(t, func() bool { return srv.Hub.ClientCount() == 1 }, waitFor, tick)
	require.Eventually(t, func() bool { return len(srv.Hub.ReceivedOfType("register")) == 1 }, waitFor, tick)
	assert.Equal(t, "7", srv.Hub.ReceivedOfType("register")[0]["operatorId"])

	require.NoError(t, srv.Hub.Broadcast(map[string]any{
		"type": "current_productions",
		"data": []map[string]any{
			{"id": 1, "operator_id": 3, "status": "in_progress"},
			{"id": 2, "operator_id": 7, "status": "in_progress"},
			{"id": 3, "operator_id": 7, "status": "completed"},
		},
	}))
	require.Eventually(t, func() bool { return activeID(sf) == "2" }, waitFor, tick)
	assert.Equal(t, state.StatusProducing, sf.Store().WorkflowStatus())
	assert.Equal(t, 2, log.count(events.ProductionStarted))

	require.NoError(t, srv.Hub.Broadcast(map[string]any{
		"type": "production_updated",
		"data": map[string]any{"production": map[string]any{"id": 2, "operator_id": 7, "status": "completed"}},
	}))
	require.Eventually(t, func() bool { return activeID(sf) == "1" }, waitFor, tick)
	assert.Equal(t, 1, log.count(events.ProductionCompleted))

	require.NoError(t, srv.Hub.Broadcast(map[string]any{
		"type": "production_transferred",
		"data": map[string]any{
			"production":   map[string]any{"id": 1, "operator_id": 7, "status": "in_progress", "product_name": "Bracket"},
			"fromOperator": "Mert",
			"toOperator":   "Ayse",
		},
	}))
	require.Eventually(t, func() bool { return log.count(events.ProductionTransferred) == 1 }, waitFor, tick)
	assert.Equal(t, 1, log.count(events.ProductionUpdated))
	assert.Equal(t, state.ID("7"), sf.Store().Snapshot().ActiveProduction.OperatorID)
	assert.Eventually(t, func() bool {
		for _, m := range alerts.messages() {
			if m == "Production Bracket transferred from Mert to Ayse" {
				return true
			}
		}
		return false
	}, waitFor, tick)

	mu.Lock()
	assert.Equal(t, []state.ID{"1", "2"}, added)
	assert.Equal(t, []state.ID{"2"}, removed)
	mu.Unlock()
}

func TestSocketNotification(t *testing.T) {
	srv := testserver.New(t)
	sf := newSession(t, WithOrigin(srv.URL), WithPolling(false))

	require.NoError(t, sf.Start(context.Background()))
	require.Eventually(t, func() bool { return srv.Hub.ClientCount() == 1 }, waitFor, tick)

	require.NoError(t, srv.Hub.Broadcast(map[string]any{
		"type": "general_notification",
		"data": map[string]any{"title": "Shift", "message": "ends in 10 minutes", "type": "warning"},
	}))
	require.Eventually(t, func() bool { return len(sf.Store().Notifications()) == 1 }, waitFor, tick)

	n := sf.Store().Notifications()[0]
	assert.Equal(t, "Shift: ends in 10 minutes", n.Message)
	assert.Equal(t, state.NotificationWarning, n.Type)
}

func TestPollProjection(t *testing.T) {
	srv := testserver.New(t)
	srv.SetJSON(constants.PathActiveProductions, http.StatusOK, map[string]any{
		"productions": []map[string]any{{"id": "40", "status": "in_progress"}},
	})
	srv.SetJSON(constants.PathProductionPlans, http.StatusOK, []map[string]any{
		{"id": 5, "product_name": "Hinge", "quantity": 20},
		{"id": 6, "product_name": "Latch", "quantity": 5},
	})
	srv.SetJSON(constants.PathStageTemplates, http.StatusOK, []map[string]any{{"name": "cutting"}})

	sf := newSession(t, WithOrigin(srv.URL), WithSocket(false))
	log := watch(sf.Bus(), events.PlanUpdated, events.ProductionStarted)
	require.NoError(t, sf.SelectPlan(state.Plan{ID: "5", ProductName: "Hinge", Quantity: 10}))

	ctx := context.Background()
	require.NoError(t, sf.Poller().Trigger(ctx, polling.ActiveProductions, polling.ProductionPlans, polling.StageTemplates))

	assert.Equal(t, state.ID("40"), activeID(sf))
	assert.Equal(t, state.StatusProducing, sf.Store().WorkflowStatus())
	assert.Equal(t, 20, sf.Store().Snapshot().CurrentPlan.Quantity)
	assert.Equal(t, 1, log.count(events.PlanUpdated))
	assert.Equal(t, 1, log.count(events.ProductionStarted))

	plans, ok := sf.Store().GetCache(polling.ProductionPlans)
	require.True(t, ok)
	assert.Len(t, plans, 2)
	_, ok = sf.Store().GetCache(polling.StageTemplates)
	assert.True(t, ok)

	// Same body again changes nothing.
	require.NoError(t, sf.Poller().Trigger(ctx, polling.ActiveProductions, polling.ProductionPlans))
	assert.Equal(t, 1, log.count(events.PlanUpdated))
	assert.Equal(t, 1, log.count(events.ProductionStarted))
}

func TestPollCredentials(t *testing.T) {
	srv := testserver.New(t)
	srv.SetJSON(constants.PathActiveProductions, http.StatusOK, []any{})
	ctx := context.Background()

	sf := newSession(t, WithOrigin(srv.URL), WithSocket(false), WithToken("t0k"))
	require.NoError(t, sf.Poller().Trigger(ctx, polling.ActiveProductions))
	assert.Equal(t, "Bearer t0k", srv.LastHeader(constants.PathActiveProductions).Get("Authorization"))

	sf = newSession(t, WithOrigin(srv.URL), WithSocket(false), WithAPIKey("X-Plant-Key", "k3y"))
	require.NoError(t, sf.Poller().Trigger(ctx, polling.ActiveProductions))
	h := srv.LastHeader(constants.PathActiveProductions)
	assert.Equal(t, "k3y", h.Get("X-Plant-Key"))
	assert.Empty(t, h.Get("Authorization"))
}

func TestPollFrequencyOverride(t *testing.T) {
	sf := newSession(t, WithSocket(false), WithPollFrequency(polling.ActiveProductions, 3*time.Second))

	for _, r := range sf.Poller().Resources() {
		if r.Key == polling.ActiveProductions {
			assert.Equal(t, 3*time.Second, r.Frequency)
		}
	}
}

func TestPollFetchTimeout(t *testing.T) {
	srv := testserver.New(t)
	srv.SetJSON(constants.PathActiveProductions, http.StatusOK, map[string]any{
		"productions": []map[string]any{{"id": "7", "status": "in_progress"}},
	})
	srv.SetDelay(constants.PathActiveProductions, 100*time.Millisecond)
	ctx := context.Background()

	sf := newSession(t, WithOrigin(srv.URL), WithSocket(false), WithFetchTimeout(20*time.Millisecond))
	require.NoError(t, sf.Poller().Trigger(ctx, polling.ActiveProductions))
	assert.Empty(t, activeID(sf))

	sf = newSession(t, WithOrigin(srv.URL), WithSocket(false), WithFetchTimeout(time.Minute))
	require.NoError(t, sf.Poller().Trigger(ctx, polling.ActiveProductions))
	assert.Equal(t, state.ID("7"), activeID(sf))
}

func TestStartStop(t *testing.T) {
	srv := testserver.New(t)
	sf := newSession(t, WithOrigin(srv.URL), WithReconnect(1, 10*time.Millisecond))
	log := watch(sf.Bus(), events.SocketConnected, events.SocketReconnecting)

	ctx := context.Background()
	require.NoError(t, sf.Start(ctx))
	require.NoError(t, sf.Start(ctx))
	require.Eventually(t, func() bool { return sf.Status().Socket == realtime.StateConnected }, waitFor, tick)
	assert.True(t, sf.Status().Poll.Active)

	sf.HandleNetwork(false)
	assert.False(t, sf.Poller().Active())
	sf.HandleNetwork(true)
	assert.True(t, sf.Poller().Active())

	sf.Stop()
	assert.Equal(t, realtime.StateDisconnected, sf.Status().Socket)
	assert.False(t, sf.Poller().Active())

	sf.HandleVisibility(ctx, true)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, log.count(events.SocketConnected))
	assert.Equal(t, 0, log.count(events.SocketReconnecting))
}

func TestRestart(t *testing.T) {
	alerts := &alertLog{}
	sf := newSession(t, WithSocket(false), WithPolling(false),
		WithAlertWriter(alerts), WithNotificationTTL(50*time.Millisecond))
	ctx := context.Background()

	require.NoError(t, sf.Start(ctx))
	first := sf.Store().AddNotification("before stop", state.NotificationInfo)
	sf.Stop()
	assert.Empty(t, sf.Store().Notifications())

	require.NoError(t, sf.Start(ctx))
	sf.Store().AddNotification("after restart", state.NotificationInfo)
	require.Eventually(t, func() bool {
		return len(alerts.messages()) == 2
	}, waitFor, tick)
	assert.Equal(t, []string{"before stop", "after restart"}, alerts.messages())

	require.Eventually(t, func() bool {
		return len(sf.Store().Notifications()) == 0
	}, waitFor, tick)
	assert.False(t, sf.Store().RemoveNotification(first.ID))
}

func TestDiffProductions(t *testing.T) {
	old := []state.Production{
		{ID: "1", Status: "in_progress"},
		{ID: "2", Status: "in_progress"},
	}
	next := []state.Production{
		{ID: "2", Status: "paused"},
		{ID: "3", Status: "in_progress"},
	}

	d := diffProductions(old, next)
	require.Len(t, d.added, 1)
	assert.Equal(t, state.ID("3"), d.added[0].ID)
	require.Len(t, d.updated, 1)
	assert.Equal(t, "paused", d.updated[0][1].Status)
	require.Len(t, d.removed, 1)
	assert.Equal(t, state.ID("1"), d.removed[0].ID)

	assert.True(t, diffProductions(next, next).empty())
}

func TestDecodeList(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    int
		wantErr bool
	}{
		{"bare array", `[{"id":1},{"id":2}]`, 2, false},
		{"named field", `{"plans":[{"id":1}]}`, 1, false},
		{"data field", `{"data":[{"id":1}]}`, 1, false},
		{"missing field", `{"other":[]}`, 0, false},
		{"null", `null`, 0, false},
		{"empty", ``, 0, false},
		{"malformed", `{"plans":`, 0, true},
		{"wrong shape", `{"plans":{"id":1}}`, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := decodeList[state.Plan]([]byte(tt.body), "plans")
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Len(t, got, tt.want)
		})
	}
}
