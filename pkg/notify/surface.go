package notify

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/agentstation/shopfloor/pkg/errors"
	"github.com/agentstation/shopfloor/pkg/events"
	"github.com/agentstation/shopfloor/pkg/realtime"
	"github.com/agentstation/shopfloor/pkg/state"
	"github.com/agentstation/shopfloor/pkg/workflow"
)

// Surface turns bus events into alerts.
type Surface struct {
	bus    *events.Bus
	w      Writer
	logger *zerolog.Logger

	mu   sync.Mutex
	subs []*events.Subscription
}

// NewSurface creates a detached surface writing to w.
func NewSurface(bus *events.Bus, w Writer, logger *zerolog.Logger) *Surface {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	if w == nil {
		w = Discard
	}
	return &Surface{bus: bus, w: w, logger: logger}
}

// Attach subscribes the surface. Calling it twice has no further effect.
func (s *Surface) Attach() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.subs) > 0 {
		return
	}
	on := func(name events.Name, fn events.Listener) {
		s.subs = append(s.subs, s.bus.Subscribe(name, fn))
	}
	on(events.NotificationAdded, s.onNotification)
	on(events.SocketConnected, s.onConnected)
	on(events.SocketDisconnected, s.onDisconnected)
	on(events.SocketReconnectFailed, s.onGiveUp)
	on(events.SyncError, s.onSyncError)
	on(events.ScriptFault, s.onScriptFault)
	on(events.WorkflowCompleted, s.onWorkflowCompleted)
	on(events.WorkflowError, s.onWorkflowError)
}

// Detach removes every subscription.
func (s *Surface) Detach() {
	s.mu.Lock()
	subs := s.subs
	s.subs = nil
	s.mu.Unlock()
	for _, sub := range subs {
		sub.Unsubscribe()
	}
}

// Show renders an alert directly.
func (s *Surface) Show(title string, level Level, message string) {
	s.write(New(level, title, message))
}

func (s *Surface) write(a *Alert) {
	if err := s.w.WriteAlert(a); err != nil {
		s.logger.Warn().Err(err).Str("title", a.Title).Msg("Failed to render alert")
	}
}

func (s *Surface) onNotification(e events.Event) {
	n, ok := e.Payload.(state.Notification)
	if !ok {
		return
	}
	a := New(LevelOf(n.Type), "", n.Message).WithSource(string(e.Name))
	a.ID = n.ID
	a.Timestamp = n.Timestamp
	s.write(a)
}

func (s *Surface) onConnected(e events.Event) {
	s.write(New(LevelSuccess, "Live updates", "Connected to the production server").WithSource(string(e.Name)))
}

func (s *Surface) onDisconnected(e events.Event) {
	d, _ := e.Payload.(realtime.Disconnected)
	if d.Manual {
		return
	}
	a := New(LevelWarning, "Live updates", "Connection lost, reconnecting").WithSource(string(e.Name))
	if d.Reason != "" {
		a.WithDetails(d.Reason)
	}
	s.write(a)
}

func (s *Surface) onGiveUp(e events.Event) {
	f, _ := e.Payload.(realtime.ReconnectFailed)
	s.write(New(LevelError, "Live updates", "Could not reconnect to the production server").
		WithSource(string(e.Name)).
		WithDetails(fmt.Sprintf("gave up after %d attempts", f.Attempts)))
}

func (s *Surface) onSyncError(e events.Event) {
	err, ok := e.Payload.(error)
	if !ok || !errors.IsCritical(err) {
		return
	}
	s.write(New(LevelError, "Data sync", "Could not refresh production data").
		WithSource(string(e.Name)).
		WithError(err))
}

func (s *Surface) onScriptFault(e events.Event) {
	err, _ := e.Payload.(error)
	s.write(New(LevelError, "Internal error", "An update handler failed").
		WithSource(string(e.Name)).
		WithError(err))
}

func (s *Surface) onWorkflowCompleted(e events.Event) {
	snap, ok := e.Payload.(workflow.Snapshot)
	if !ok {
		return
	}
	s.write(New(LevelSuccess, snap.Name, "Workflow completed").WithSource(string(e.Name)))
}

func (s *Surface) onWorkflowError(e events.Event) {
	snap, ok := e.Payload.(workflow.Snapshot)
	if !ok {
		return
	}
	a := New(LevelError, snap.Name, "Workflow stopped").WithSource(string(e.Name))
	if snap.Error != "" {
		a.WithDetails(snap.Error)
	}
	s.write(a)
}
