package shopfloor

import (
	"reflect"
	"sync"

	"github.com/agentstation/shopfloor/pkg/state"
)

// Hook function types for production changes
type (
	// ProductionAddedHook is called when a production appears in the active set
	ProductionAddedHook func(p state.Production)

	// ProductionUpdatedHook is called when an active production changes
	ProductionUpdatedHook func(old, new state.Production)

	// ProductionRemovedHook is called when a production finishes or leaves the active set
	ProductionRemovedHook func(p state.Production)
)

// hooks manages callbacks for changes to the active production set
type hooks struct {
	mu                  sync.RWMutex
	onProductionAdded   []ProductionAddedHook
	onProductionUpdated []ProductionUpdatedHook
	onProductionRemoved []ProductionRemovedHook
}

func newHooks() *hooks {
	return &hooks{}
}

// OnProductionAdded registers a callback for productions that appear
func (h *hooks) OnProductionAdded(fn ProductionAddedHook) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onProductionAdded = append(h.onProductionAdded, fn)
}

// OnProductionUpdated registers a callback for productions that change
func (h *hooks) OnProductionUpdated(fn ProductionUpdatedHook) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onProductionUpdated = append(h.onProductionUpdated, fn)
}

// OnProductionRemoved registers a callback for productions that leave
func (h *hooks) OnProductionRemoved(fn ProductionRemovedHook) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onProductionRemoved = append(h.onProductionRemoved, fn)
}

// productionDiff is the outcome of comparing two active sets
type productionDiff struct {
	added   []state.Production
	updated [][2]state.Production
	removed []state.Production
}

func (d productionDiff) empty() bool {
	return len(d.added) == 0 && len(d.updated) == 0 && len(d.removed) == 0
}

// diffProductions compares two active sets keyed by production id. Order
// follows next for additions and updates and old for removals.
func diffProductions(old, next []state.Production) productionDiff {
	oldMap := make(map[state.ID]state.Production, len(old))
	for _, p := range old {
		oldMap[p.ID] = p
	}
	nextMap := make(map[state.ID]state.Production, len(next))
	for _, p := range next {
		nextMap[p.ID] = p
	}

	var d productionDiff
	for _, p := range next {
		if prev, exists := oldMap[p.ID]; exists {
			if !reflect.DeepEqual(prev, p) {
				d.updated = append(d.updated, [2]state.Production{prev, p})
			}
		} else {
			d.added = append(d.added, p)
		}
	}
	for _, p := range old {
		if _, exists := nextMap[p.ID]; !exists {
			d.removed = append(d.removed, p)
		}
	}
	return d
}

// trigger runs the registered callbacks for d. Callbacks are copied first so
// a callback may register another one.
func (h *hooks) trigger(d productionDiff) {
	h.mu.RLock()
	added := append([]ProductionAddedHook{}, h.onProductionAdded...)
	updated := append([]ProductionUpdatedHook{}, h.onProductionUpdated...)
	removed := append([]ProductionRemovedHook{}, h.onProductionRemoved...)
	h.mu.RUnlock()

	for _, p := range d.added {
		for _, hook := range added {
			hook(p)
		}
	}
	for _, pair := range d.updated {
		for _, hook := range updated {
			hook(pair[0], pair[1])
		}
	}
	for _, p := range d.removed {
		for _, hook := range removed {
			hook(p)
		}
	}
}
