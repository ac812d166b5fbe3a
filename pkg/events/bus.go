package events

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// SubscriptionID identifies one registration on a Bus.
type SubscriptionID uint64

type registration struct {
	id       SubscriptionID
	priority int
	fn       Listener
}

// Bus is an in-process publish/subscribe registry.
// It is safe for concurrent use. Listeners are invoked synchronously by
// Publish, outside the bus lock, so a listener may publish or subscribe.
type Bus struct {
	mu        sync.RWMutex
	listeners map[Name][]registration
	declared  map[Name]struct{}
	nextID    atomic.Uint64
	unheard   atomic.Uint64
	logger    *zerolog.Logger
}

// NewBus creates a bus with the domain event names pre-declared.
func NewBus(logger *zerolog.Logger) *Bus {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	b := &Bus{logger: logger}
	b.Reset()
	return b
}

// Reset clears every registration and restores the pre-declared empty sets.
func (b *Bus) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.listeners = make(map[Name][]registration, len(Declared))
	b.declared = make(map[Name]struct{}, len(Declared))
	for _, name := range Declared {
		b.listeners[name] = nil
		b.declared[name] = struct{}{}
	}
}

// SubscribeOption configures a subscription.
type SubscribeOption func(*registration)

// Priority sets the listener priority. Higher runs first; the default is 0.
func Priority(p int) SubscribeOption {
	return func(r *registration) {
		r.priority = p
	}
}

// Subscription is the handle returned by Subscribe.
type Subscription struct {
	bus  *Bus
	name Name
	id   SubscriptionID
}

// ID returns the subscription id.
func (s *Subscription) ID() SubscriptionID { return s.id }

// Name returns the event name the subscription listens to.
func (s *Subscription) Name() Name { return s.name }

// Unsubscribe removes the listener. Calling it more than once is harmless.
func (s *Subscription) Unsubscribe() {
	s.bus.Unsubscribe(s.name, s.id)
}

// Subscribe registers fn for name.
func (b *Bus) Subscribe(name Name, fn Listener, opts ...SubscribeOption) *Subscription {
	reg := registration{
		id: SubscriptionID(b.nextID.Add(1)),
		fn: fn,
	}
	for _, opt := range opts {
		opt(&reg)
	}

	b.mu.Lock()
	current := b.listeners[name]
	regs := make([]registration, 0, len(current)+1)
	regs = append(regs, current...)
	regs = append(regs, reg)
	// stable: equal priorities keep registration order
	sort.SliceStable(regs, func(i, j int) bool {
		return regs[i].priority > regs[j].priority
	})
	b.listeners[name] = regs
	b.mu.Unlock()

	return &Subscription{bus: b, name: name, id: reg.id}
}

// SubscribeOnce registers fn so that it runs for the first matching event only.
func (b *Bus) SubscribeOnce(name Name, fn Listener, opts ...SubscribeOption) *Subscription {
	var fired atomic.Bool
	var sub *Subscription
	ready := make(chan struct{})

	sub = b.Subscribe(name, func(e Event) {
		// claim before running so a reentrant publish from fn cannot fire it again
		if !fired.CompareAndSwap(false, true) {
			return
		}
		<-ready
		sub.Unsubscribe()
		fn(e)
	}, opts...)
	close(ready)

	return sub
}

// Unsubscribe removes the registration with the given id from name.
func (b *Bus) Unsubscribe(name Name, id SubscriptionID) {
	b.mu.Lock()
	defer b.mu.Unlock()

	regs := b.listeners[name]
	for i, r := range regs {
		if r.id == id {
			out := make([]registration, 0, len(regs)-1)
			out = append(out, regs[:i]...)
			out = append(out, regs[i+1:]...)
			b.listeners[name] = out
			return
		}
	}
}

// Publish delivers payload to every listener of name, highest priority first.
func (b *Bus) Publish(name Name, payload any) {
	b.mu.RLock()
	regs := b.listeners[name]
	_, declared := b.declared[name]
	b.mu.RUnlock()

	if !declared {
		b.logger.Debug().Str("event", string(name)).Msg("Publishing undeclared event")
	}

	if len(regs) == 0 {
		b.unheard.Add(1)
		b.logger.Debug().Str("event", string(name)).Msg("No listeners for event")
		return
	}

	event := Event{
		Name:      name,
		Timestamp: time.Now(),
		Payload:   payload,
	}

	// regs is never mutated in place, so iterating the snapshot is safe
	for _, r := range regs {
		b.invoke(r, event)
	}
}

// invoke runs one listener, isolating panics.
func (b *Bus) invoke(r registration, event Event) {
	defer func() {
		if rec := recover(); rec != nil {
			b.logger.Error().
				Str("event", string(event.Name)).
				Uint64("subscription_id", uint64(r.id)).
				Interface("panic", rec).
				Msg("Event listener failed")
		}
	}()
	r.fn(event)
}

// IsDeclared reports whether name was pre-declared on this bus.
func (b *Bus) IsDeclared(name Name) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.declared[name]
	return ok
}

// ListenerCount returns the number of listeners registered for name.
func (b *Bus) ListenerCount(name Name) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.listeners[name])
}

// Names returns every event name that currently has a registration entry,
// sorted alphabetically.
func (b *Bus) Names() []Name {
	b.mu.RLock()
	names := make([]Name, 0, len(b.listeners))
	for name := range b.listeners {
		names = append(names, name)
	}
	b.mu.RUnlock()

	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}

// Unheard returns how many publishes found no listener.
func (b *Bus) Unheard() uint64 {
	return b.unheard.Load()
}
