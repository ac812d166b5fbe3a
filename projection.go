package shopfloor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"sync"

	"github.com/rs/zerolog"

	"github.com/agentstation/shopfloor/pkg/constants"
	"github.com/agentstation/shopfloor/pkg/errors"
	"github.com/agentstation/shopfloor/pkg/events"
	"github.com/agentstation/shopfloor/pkg/logging"
	"github.com/agentstation/shopfloor/pkg/polling"
	"github.com/agentstation/shopfloor/pkg/realtime"
	"github.com/agentstation/shopfloor/pkg/state"
)

// projector turns socket frames and poll bodies into store updates and
// domain events. Both channels feed the same active production set, so a
// production reported twice only produces events once.
type projector struct {
	mu     sync.Mutex
	active []state.Production

	store      *state.Store
	bus        *events.Bus
	hooks      *hooks
	operatorID string
	logger     *zerolog.Logger
}

func newProjector(store *state.Store, bus *events.Bus, h *hooks, operatorID string, logger *zerolog.Logger) *projector {
	return &projector{
		store:      store,
		bus:        bus,
		hooks:      h,
		operatorID: operatorID,
		logger:     logging.Component(logger, "projector"),
	}
}

func (p *projector) socketHandlers() realtime.Handlers {
	return realtime.Handlers{
		Welcome: func(f realtime.Welcome) {
			p.logger.Debug().Str("client_id", f.ClientID).Msg("Socket welcomed")
		},
		CurrentProductions: func(f realtime.CurrentProductions) {
			p.replace(f.Productions)
		},
		ProductionUpdated: func(f realtime.ProductionUpdated) {
			p.upsert(f.Production)
		},
		ProductionTransferred: func(f realtime.ProductionTransferred) {
			p.upsert(f.Production)
			p.bus.Publish(events.ProductionTransferred, f)
			p.store.AddNotification(transferMessage(f), state.NotificationInfo)
		},
		HistoryUpdated: func(f realtime.HistoryUpdated) {
			p.store.SetCache(polling.ProductionHistory, f.History, constants.CacheTTL)
		},
		Notification:        p.notification,
		GeneralNotification: p.notification,
		Unknown: func(f realtime.Unknown) {
			p.logger.Debug().Str("frame_type", f.Type).Msg("Unhandled socket frame")
		},
	}
}

func (p *projector) notification(f realtime.Notification) {
	msg := f.Message
	if f.Title != "" && msg != "" {
		msg = f.Title + ": " + msg
	} else if msg == "" {
		msg = f.Title
	}
	if msg == "" {
		return
	}
	p.store.AddNotification(msg, f.Type)
}

func transferMessage(f realtime.ProductionTransferred) string {
	name := f.Production.ProductName
	if name == "" {
		name = "#" + string(f.Production.ID)
	}
	if f.FromOperator != "" {
		return fmt.Sprintf("Production %s transferred from %s to %s", name, f.FromOperator, f.ToOperator)
	}
	return fmt.Sprintf("Production %s transferred to %s", name, f.ToOperator)
}

// pollHandler returns the body handler for a default resource
func (p *projector) pollHandler(key string) polling.Handler {
	switch key {
	case polling.ActiveProductions:
		return func(ctx context.Context, data json.RawMessage) error {
			list, err := decodeList[state.Production](data, "productions")
			if err != nil {
				return err
			}
			p.replace(list)
			logging.Ctx(ctx).Debug().Int("productions", len(list)).Msg("Active productions projected")
			return nil
		}
	case polling.ProductionPlans:
		return func(_ context.Context, data json.RawMessage) error {
			plans, err := decodeList[state.Plan](data, "plans")
			if err != nil {
				return err
			}
			p.store.SetCache(key, plans, constants.CacheTTL)
			return p.refreshPlan(plans)
		}
	case polling.ProductionHistory:
		return func(_ context.Context, data json.RawMessage) error {
			history, err := decodeList[state.Production](data, "history")
			if err != nil {
				return err
			}
			p.store.SetCache(key, history, constants.CacheTTL)
			return nil
		}
	default:
		return func(_ context.Context, data json.RawMessage) error {
			p.store.SetCache(key, data, constants.CacheTTL)
			return nil
		}
	}
}

// replace swaps the whole active set, as sent by a snapshot
func (p *projector) replace(list []state.Production) {
	next := make([]state.Production, 0, len(list))
	for _, prod := range list {
		if prod.Active() {
			next = append(next, prod)
		}
	}

	p.mu.Lock()
	d := diffProductions(p.active, next)
	p.active = next
	p.mu.Unlock()

	p.apply(d)
}

// upsert merges one production into the active set. A finished production
// leaves the set and is reported with its final state.
func (p *projector) upsert(prod state.Production) {
	p.mu.Lock()
	next := make([]state.Production, 0, len(p.active)+1)
	found := false
	for _, cur := range p.active {
		if cur.ID == prod.ID {
			found = true
			if prod.Active() {
				next = append(next, prod)
			}
			continue
		}
		next = append(next, cur)
	}
	if !found && prod.Active() {
		next = append(next, prod)
	}
	d := diffProductions(p.active, next)
	for i := range d.removed {
		if d.removed[i].ID == prod.ID {
			d.removed[i] = prod
		}
	}
	p.active = next
	p.mu.Unlock()

	if !found && !prod.Active() {
		// Finished before it was ever seen.
		d.removed = append(d.removed, prod)
	}
	p.apply(d)
}

func (p *projector) apply(d productionDiff) {
	if d.empty() {
		return
	}
	for _, prod := range d.added {
		p.bus.Publish(events.ProductionStarted, prod)
	}
	for _, pair := range d.updated {
		p.bus.Publish(events.ProductionUpdated, pair[1])
		if pair[1].Status == "paused" && pair[0].Status != "paused" {
			p.bus.Publish(events.ProductionPaused, pair[1])
		}
	}
	for _, prod := range d.removed {
		p.bus.Publish(events.ProductionCompleted, prod)
	}
	p.hooks.trigger(d)

	if err := p.refreshActive(); err != nil {
		p.logger.Error().Err(err).Msg("Active production not projected")
	}
}

// selected picks the production shown to this operator: their own one when
// known, else the first active one.
func (p *projector) selected() *state.Production {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.active) == 0 {
		return nil
	}
	if p.operatorID != "" {
		for _, prod := range p.active {
			if string(prod.OperatorID) == p.operatorID {
				prod := prod
				return &prod
			}
		}
	}
	prod := p.active[0]
	return &prod
}

func (p *projector) refreshActive() error {
	next := p.selected()

	var cur *state.Production
	if v, ok := p.store.Get(state.KeyActiveProduction); ok {
		cur, _ = v.(*state.Production)
	}
	if reflect.DeepEqual(cur, next) {
		return nil
	}
	if err := p.store.Update(state.KeyActiveProduction, next); err != nil {
		return err
	}

	if next != nil {
		switch p.store.WorkflowStatus() {
		case state.StatusIdle, state.StatusPlanning:
			return p.store.Update(state.KeyWorkflowStatus, state.StatusProducing)
		}
	}
	return nil
}

// refreshPlan replaces the current plan with its newest server copy
func (p *projector) refreshPlan(plans []state.Plan) error {
	v, ok := p.store.Get(state.KeyCurrentPlan)
	if !ok {
		return nil
	}
	cur, _ := v.(*state.Plan)
	if cur == nil {
		return nil
	}
	for _, plan := range plans {
		if plan.ID != cur.ID || reflect.DeepEqual(*cur, plan) {
			continue
		}
		if err := p.store.Update(state.KeyCurrentPlan, plan); err != nil {
			return err
		}
		p.bus.Publish(events.PlanUpdated, plan)
		return nil
	}
	return nil
}

// decodeList accepts a bare array or an object holding the array under field
// or under "data".
func decodeList[T any](data json.RawMessage, field string) ([]T, error) {
	data = bytes.TrimSpace(data)
	var list []T
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return list, nil
	}
	if data[0] == '[' {
		if err := json.Unmarshal(data, &list); err != nil {
			return nil, errors.WrapParse("json", field, err)
		}
		return list, nil
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, errors.WrapParse("json", field, err)
	}
	raw, ok := obj[field]
	if !ok {
		raw, ok = obj["data"]
	}
	if !ok {
		return list, nil
	}
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, errors.WrapParse("json", field, err)
	}
	return list, nil
}
