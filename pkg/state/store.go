package state

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/agentstation/shopfloor/pkg/constants"
	"github.com/agentstation/shopfloor/pkg/errors"
	"github.com/agentstation/shopfloor/pkg/events"
)

// Store owns the process state, the derived tab descriptors and the cache.
type Store struct {
	mu       sync.RWMutex
	state    ProcessState
	tabs     map[TabID]TabDescriptor
	timers   map[string]*time.Timer
	cache    *Cache
	bus      *events.Bus
	logger   *zerolog.Logger
	notifTTL time.Duration
}

// Option configures a Store.
type Option func(*Store)

// WithNotificationTTL overrides how long notifications live.
func WithNotificationTTL(d time.Duration) Option {
	return func(s *Store) {
		s.notifTTL = d
	}
}

// WithLogger sets the store logger.
func WithLogger(logger *zerolog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// NewStore creates a store in its initial state, publishing on bus.
func NewStore(bus *events.Bus, opts ...Option) *Store {
	nop := zerolog.Nop()
	s := &Store{
		state:    initialState(),
		timers:   make(map[string]*time.Timer),
		cache:    NewCache(),
		bus:      bus,
		logger:   &nop,
		notifTTL: constants.NotificationTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.tabs = computeTabs(s.state)
	return s
}

// Get returns the current value of key. The bool is false for keys outside the schema.
func (s *Store) Get(key Key) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return valueOf(s.state, key)
}

// Snapshot returns a deep copy of the process state.
func (s *Store) Snapshot() ProcessState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.clone()
}

// WorkflowStatus returns the current workflow status.
func (s *Store) WorkflowStatus() WorkflowStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.WorkflowStatus
}

// Update sets key to value, publishes state-updated and recomputes the tabs.
// Keys outside the schema and values of the wrong type leave the state untouched.
func (s *Store) Update(key Key, value any) error {
	s.mu.Lock()
	next := s.state.clone()
	if err := assign(&next, key, value); err != nil {
		s.mu.Unlock()
		s.logger.Warn().Err(err).Str("key", string(key)).Msg("State update rejected")
		return err
	}
	s.state = next
	stored, _ := valueOf(s.state, key)
	changes := s.recomputeLocked()
	s.mu.Unlock()

	s.logger.Debug().Str("key", string(key)).Msg("State updated")
	s.bus.Publish(events.StateUpdated, Change{Key: key, Value: stored})
	s.publishTabChanges(changes)
	return nil
}

// AddNotification appends a notification and schedules its removal.
func (s *Store) AddNotification(message string, typ NotificationType) Notification {
	n := Notification{
		ID:        uuid.NewString(),
		Message:   message,
		Type:      typ,
		Timestamp: time.Now(),
	}

	s.mu.Lock()
	s.state.Notifications = append(s.state.Notifications, n)
	s.timers[n.ID] = time.AfterFunc(s.notifTTL, func() { s.expire(n.ID) })
	list := append([]Notification{}, s.state.Notifications...)
	s.mu.Unlock()

	s.bus.Publish(events.NotificationAdded, n)
	s.bus.Publish(events.StateUpdated, Change{Key: KeyNotifications, Value: list})
	return n
}

// expire runs on the notification timer goroutine.
func (s *Store) expire(id string) {
	defer func() {
		if err := errors.Recovered("notification-timer", recover()); err != nil {
			s.logger.Error().Err(err).Msg("Notification expiry failed")
			s.bus.Publish(events.ScriptFault, err)
		}
	}()
	s.RemoveNotification(id)
}

// RemoveNotification removes the notification with id. It reports whether one was removed.
func (s *Store) RemoveNotification(id string) bool {
	s.mu.Lock()
	idx := -1
	for i, n := range s.state.Notifications {
		if n.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		return false
	}
	removed := s.state.Notifications[idx]
	list := make([]Notification, 0, len(s.state.Notifications)-1)
	list = append(list, s.state.Notifications[:idx]...)
	list = append(list, s.state.Notifications[idx+1:]...)
	s.state.Notifications = list
	if t, ok := s.timers[id]; ok {
		t.Stop()
		delete(s.timers, id)
	}
	out := append([]Notification{}, list...)
	s.mu.Unlock()

	s.bus.Publish(events.NotificationRemoved, removed)
	s.bus.Publish(events.StateUpdated, Change{Key: KeyNotifications, Value: out})
	return true
}

// Notifications returns the current notification list.
func (s *Store) Notifications() []Notification {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Notification{}, s.state.Notifications...)
}

// ResetState restores every field to its initial value and recomputes the tabs.
func (s *Store) ResetState() {
	s.mu.Lock()
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
	s.state = initialState()
	changes := s.recomputeLocked()
	s.mu.Unlock()

	s.bus.Publish(events.StateReset, s.Snapshot())
	s.publishTabChanges(changes)
}

// Close stops pending notification timers and drops the notifications they
// would have removed.
func (s *Store) Close() {
	s.mu.Lock()
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
	dropped := s.state.Notifications
	s.state.Notifications = []Notification{}
	s.mu.Unlock()

	if len(dropped) == 0 {
		return
	}
	for _, n := range dropped {
		s.bus.Publish(events.NotificationRemoved, n)
	}
	s.bus.Publish(events.StateUpdated, Change{Key: KeyNotifications, Value: []Notification{}})
}

// assign writes value into st under key.
func assign(st *ProcessState, key Key, value any) error {
	switch key {
	case KeyCurrentPlan:
		switch v := value.(type) {
		case nil:
			st.CurrentPlan = nil
		case Plan:
			st.CurrentPlan = &v
		case *Plan:
			st.CurrentPlan = copyPtr(v)
		default:
			return typeError(key, value)
		}
	case KeyActiveProduction:
		switch v := value.(type) {
		case nil:
			st.ActiveProduction = nil
		case Production:
			st.ActiveProduction = &v
		case *Production:
			st.ActiveProduction = copyPtr(v)
		default:
			return typeError(key, value)
		}
	case KeyCurrentStage:
		switch v := value.(type) {
		case nil:
			st.CurrentStage = nil
		case Stage:
			st.CurrentStage = &v
		case *Stage:
			st.CurrentStage = copyPtr(v)
		default:
			return typeError(key, value)
		}
	case KeyQualityChecks:
		switch v := value.(type) {
		case nil:
			st.QualityChecks = []QualityCheck{}
		case []QualityCheck:
			st.QualityChecks = append([]QualityCheck{}, v...)
		default:
			return typeError(key, value)
		}
	case KeyNotifications:
		switch v := value.(type) {
		case nil:
			st.Notifications = []Notification{}
		case []Notification:
			st.Notifications = append([]Notification{}, v...)
		default:
			return typeError(key, value)
		}
	case KeyWorkflowStatus:
		var ws WorkflowStatus
		switch v := value.(type) {
		case WorkflowStatus:
			ws = v
		case string:
			ws = WorkflowStatus(v)
		default:
			return typeError(key, value)
		}
		if !ws.Valid() {
			return errors.NewValidationError(string(key), value, fmt.Sprintf("unknown workflow status %q", ws))
		}
		st.WorkflowStatus = ws
	default:
		return &errors.StateKeyError{Key: string(key)}
	}
	return nil
}

// valueOf reads key from st. Absent pointers come back as untyped nil.
func valueOf(st ProcessState, key Key) (any, bool) {
	switch key {
	case KeyCurrentPlan:
		if st.CurrentPlan == nil {
			return nil, true
		}
		return copyPtr(st.CurrentPlan), true
	case KeyActiveProduction:
		if st.ActiveProduction == nil {
			return nil, true
		}
		return copyPtr(st.ActiveProduction), true
	case KeyCurrentStage:
		if st.CurrentStage == nil {
			return nil, true
		}
		return copyPtr(st.CurrentStage), true
	case KeyQualityChecks:
		return append([]QualityCheck{}, st.QualityChecks...), true
	case KeyNotifications:
		return append([]Notification{}, st.Notifications...), true
	case KeyWorkflowStatus:
		return st.WorkflowStatus, true
	}
	return nil, false
}

func copyPtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func typeError(key Key, value any) error {
	return errors.NewValidationError(string(key), value, fmt.Sprintf("unexpected type %T", value))
}
