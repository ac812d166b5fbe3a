package state

import (
	"github.com/agentstation/shopfloor/pkg/events"
)

// TabID identifies a view tab.
type TabID string

// Tabs, in display order.
const (
	TabPlanning   TabID = "planning"
	TabProduction TabID = "production"
	TabStages     TabID = "stages"
	TabQuality    TabID = "quality"
	TabHistory    TabID = "history"
	TabOperators  TabID = "operators"
	TabInventory  TabID = "inventory"
)

// TabStatus is the derived display status of a tab.
type TabStatus string

// Tab statuses.
const (
	TabIdle      TabStatus = "idle"
	TabActive    TabStatus = "active"
	TabCompleted TabStatus = "completed"
	TabWarning   TabStatus = "warning"
	TabDisabled  TabStatus = "disabled"
)

// TabDescriptor is the derived view of one tab.
type TabDescriptor struct {
	ID           TabID     `json:"id"`
	Status       TabStatus `json:"status"`
	Enabled      bool      `json:"enabled"`
	Requirements []Key     `json:"requirements"`
	Next         TabID     `json:"next,omitempty"`
}

type tabRule struct {
	id           TabID
	requirements []Key
	next         TabID
}

var tabRules = []tabRule{
	{id: TabPlanning, next: TabProduction},
	{id: TabProduction, requirements: []Key{KeyCurrentPlan}, next: TabStages},
	{id: TabStages, requirements: []Key{KeyActiveProduction}, next: TabQuality},
	{id: TabQuality, requirements: []Key{KeyActiveProduction, KeyCurrentStage}, next: TabHistory},
	{id: TabHistory},
	{id: TabOperators},
	{id: TabInventory},
}

// TabIDs lists every tab in display order.
func TabIDs() []TabID {
	ids := make([]TabID, len(tabRules))
	for i, r := range tabRules {
		ids[i] = r.id
	}
	return ids
}

// chainIndex returns the position of id in the workflow chain, or -1.
func chainIndex(id TabID) int {
	cur := TabPlanning
	for i := 0; cur != ""; i++ {
		if cur == id {
			return i
		}
		cur = ruleFor(cur).next
	}
	return -1
}

func ruleFor(id TabID) tabRule {
	for _, r := range tabRules {
		if r.id == id {
			return r
		}
	}
	return tabRule{}
}

// present reports whether key holds a non-empty value in st.
func present(st ProcessState, key Key) bool {
	switch key {
	case KeyCurrentPlan:
		return st.CurrentPlan != nil
	case KeyActiveProduction:
		return st.ActiveProduction != nil
	case KeyCurrentStage:
		return st.CurrentStage != nil
	case KeyQualityChecks:
		return len(st.QualityChecks) > 0
	case KeyNotifications:
		return len(st.Notifications) > 0
	case KeyWorkflowStatus:
		return st.WorkflowStatus != ""
	}
	return false
}

// activeTab maps the workflow status onto the tab the operator is working in.
func activeTab(st ProcessState) TabID {
	switch st.WorkflowStatus {
	case StatusPlanning:
		return TabPlanning
	case StatusProducing:
		if st.CurrentStage != nil {
			return TabStages
		}
		return TabProduction
	case StatusQualityCheck:
		return TabQuality
	case StatusCompleted:
		return TabHistory
	}
	return ""
}

// computeTabs derives every tab descriptor from st. It is a pure function.
func computeTabs(st ProcessState) map[TabID]TabDescriptor {
	active := activeTab(st)
	activeIdx := chainIndex(active)
	failed := false
	for _, qc := range st.QualityChecks {
		if qc.Result == QualityFailed {
			failed = true
			break
		}
	}

	out := make(map[TabID]TabDescriptor, len(tabRules))
	for _, r := range tabRules {
		d := TabDescriptor{
			ID:           r.id,
			Enabled:      true,
			Requirements: append([]Key{}, r.requirements...),
			Next:         r.next,
		}
		for _, k := range r.requirements {
			if !present(st, k) {
				d.Enabled = false
				break
			}
		}

		idx := chainIndex(r.id)
		switch {
		case !d.Enabled:
			d.Status = TabDisabled
		case r.id == TabQuality && failed:
			d.Status = TabWarning
		case r.id == active:
			d.Status = TabActive
		case idx >= 0 && activeIdx > 0 && idx < activeIdx:
			d.Status = TabCompleted
		default:
			d.Status = TabIdle
		}
		out[r.id] = d
	}
	return out
}

func sameTab(a, b TabDescriptor) bool {
	if a.ID != b.ID || a.Status != b.Status || a.Enabled != b.Enabled || a.Next != b.Next {
		return false
	}
	if len(a.Requirements) != len(b.Requirements) {
		return false
	}
	for i := range a.Requirements {
		if a.Requirements[i] != b.Requirements[i] {
			return false
		}
	}
	return true
}

type tabChange struct {
	prev, next TabDescriptor
}

// recomputeLocked refreshes s.tabs and returns the descriptors that changed.
// Caller holds s.mu.
func (s *Store) recomputeLocked() []tabChange {
	next := computeTabs(s.state)
	var changes []tabChange
	for _, id := range TabIDs() {
		if !sameTab(s.tabs[id], next[id]) {
			changes = append(changes, tabChange{prev: s.tabs[id], next: next[id]})
		}
	}
	s.tabs = next
	return changes
}

func (s *Store) publishTabChanges(changes []tabChange) {
	for _, c := range changes {
		s.bus.Publish(events.TabChanged, c.next)
		if c.prev.Enabled != c.next.Enabled {
			if c.next.Enabled {
				s.bus.Publish(events.TabEnabled, c.next)
			} else {
				s.bus.Publish(events.TabDisabled, c.next)
			}
		}
	}
}

// RecomputeTabs re-derives the tab descriptors and publishes any changes.
// Calling it twice without a state change publishes nothing the second time.
func (s *Store) RecomputeTabs() {
	s.mu.Lock()
	changes := s.recomputeLocked()
	s.mu.Unlock()
	s.publishTabChanges(changes)
}

// Tab returns the descriptor for id.
func (s *Store) Tab(id TabID) (TabDescriptor, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.tabs[id]
	if !ok {
		return TabDescriptor{}, false
	}
	d.Requirements = append([]Key{}, d.Requirements...)
	return d, true
}

// TabStatusOf returns the status of id, or disabled for unknown tabs.
func (s *Store) TabStatusOf(id TabID) TabStatus {
	d, ok := s.Tab(id)
	if !ok {
		return TabDisabled
	}
	return d.Status
}

// Tabs returns all descriptors in display order.
func (s *Store) Tabs() []TabDescriptor {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]TabDescriptor, 0, len(s.tabs))
	for _, id := range TabIDs() {
		d := s.tabs[id]
		d.Requirements = append([]Key{}, d.Requirements...)
		out = append(out, d)
	}
	return out
}
