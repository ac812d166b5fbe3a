// Package polling is the pull half of the sync layer. A Scheduler keeps one
// timer per registered resource, fetches it on every tick, republishes the
// body on the event bus and hands it to the resource's handler. Page
// visibility and network state pause and resume the timers.
package polling

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/agentstation/shopfloor/pkg/constants"
	"github.com/agentstation/shopfloor/pkg/errors"
	"github.com/agentstation/shopfloor/pkg/events"
	"github.com/agentstation/shopfloor/pkg/logging"
)

// Fetcher returns the JSON body of an OK GET for path.
type Fetcher interface {
	Fetch(ctx context.Context, path string) ([]byte, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, path string) ([]byte, error)

// Fetch implements Fetcher.
func (f FetcherFunc) Fetch(ctx context.Context, path string) ([]byte, error) {
	return f(ctx, path)
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger sets the scheduler logger.
func WithLogger(logger *zerolog.Logger) Option {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logging.Component(logger, "poller")
		}
	}
}

// WithMetrics records poll metrics.
func WithMetrics(m *Metrics) Option {
	return func(s *Scheduler) {
		s.metrics = m
	}
}

// WithFetchTimeout bounds each request.
func WithFetchTimeout(d time.Duration) Option {
	return func(s *Scheduler) {
		s.timeout = d
	}
}

// WithStatusInterval sets the system-status period.
func WithStatusInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		s.statusInterval = d
	}
}

// WithResources replaces the default resource set.
func WithResources(res ...Resource) Option {
	return func(s *Scheduler) {
		s.order = nil
		s.resources = make(map[string]*Resource)
		for _, r := range res {
			r := r
			s.order = append(s.order, r.Key)
			s.resources[r.Key] = &r
		}
	}
}

// Scheduler polls resources on independent timers.
type Scheduler struct {
	fetcher Fetcher
	bus     *events.Bus
	logger  *zerolog.Logger
	metrics *Metrics
	flight  singleflight.Group

	timeout        time.Duration
	statusInterval time.Duration

	mu        sync.Mutex
	resources map[string]*Resource
	order     []string
	health    map[string]*ResourceStatus
	active    bool
	online    bool
	visible   bool
	parent    context.Context
	cancel    context.CancelFunc
}

// NewScheduler creates an inactive scheduler over the default resources.
func NewScheduler(fetcher Fetcher, bus *events.Bus, opts ...Option) (*Scheduler, error) {
	nop := zerolog.Nop()
	s := &Scheduler{
		fetcher:        fetcher,
		bus:            bus,
		logger:         &nop,
		timeout:        constants.FetchTimeout,
		statusInterval: constants.SystemStatusInterval,
		health:         make(map[string]*ResourceStatus),
		online:         true,
		visible:        true,
		parent:         context.Background(),
	}
	WithResources(DefaultResources()...)(s)
	for _, opt := range opts {
		opt(s)
	}
	if fetcher == nil {
		return nil, errors.NewValidationError("fetcher", nil, "fetcher is required")
	}
	for _, key := range s.order {
		if err := s.resources[key].validate(); err != nil {
			return nil, err
		}
		s.health[key] = &ResourceStatus{}
	}
	return s, nil
}

// Register adds or replaces a resource. An active scheduler starts its timer at once.
func (s *Scheduler) Register(r Resource) error {
	if err := r.validate(); err != nil {
		return err
	}
	s.mu.Lock()
	if _, ok := s.resources[r.Key]; !ok {
		s.order = append(s.order, r.Key)
		s.health[r.Key] = &ResourceStatus{}
	}
	s.resources[r.Key] = &r
	active := s.active
	s.mu.Unlock()

	if active {
		s.restart()
	}
	return nil
}

// Handle sets the handler invoked after each successful poll of key.
func (s *Scheduler) Handle(key string, h Handler) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.resources[key]
	if !ok {
		return errors.NewNotFoundError("resource", key)
	}
	r.Handler = h
	return nil
}

// Resources returns the registered resources in registration order.
func (s *Scheduler) Resources() []Resource {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Resource, 0, len(s.order))
	for _, key := range s.order {
		out = append(out, *s.resources[key])
	}
	return out
}

// Start creates one timer per resource and the system-status timer.
// It is a no-op while active. ctx bounds every timer until Pause.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.active {
		s.mu.Unlock()
		return
	}
	s.parent = ctx
	s.startLocked()
	n := len(s.order)
	s.mu.Unlock()

	s.metrics.active(true)
	s.logger.Info().Int("resources", n).Msg("Polling started")
}

// startLocked launches the timers. Caller holds s.mu.
func (s *Scheduler) startLocked() {
	ctx, cancel := context.WithCancel(s.parent)
	s.cancel = cancel
	s.active = true
	for _, key := range s.order {
		go s.loop(ctx, key, s.resources[key].Frequency)
	}
	go s.statusLoop(ctx)
}

// Pause stops every timer. It does not wait for in-flight fetches.
func (s *Scheduler) Pause() {
	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return
	}
	s.cancel()
	s.active = false
	s.mu.Unlock()

	s.metrics.active(false)
	s.logger.Info().Msg("Polling paused")
}

// Resume restarts the timers with the context given to Start. It is a no-op while active.
func (s *Scheduler) Resume() {
	s.mu.Lock()
	if s.active {
		s.mu.Unlock()
		return
	}
	s.startLocked()
	s.mu.Unlock()

	s.metrics.active(true)
	s.logger.Info().Msg("Polling resumed")
}

// Stop pauses the scheduler. It exists for symmetry with the other components' lifecycles.
func (s *Scheduler) Stop() {
	s.Pause()
}

// Active reports whether the timers are running.
func (s *Scheduler) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// restart applies a changed schedule by pausing and resuming every timer.
func (s *Scheduler) restart() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active {
		return
	}
	s.cancel()
	s.startLocked()
}

// SetFrequency changes how often key is polled. When active, every timer restarts.
func (s *Scheduler) SetFrequency(key string, d time.Duration) error {
	if d <= 0 {
		return errors.NewValidationError("frequency", d, "frequency must be positive")
	}
	s.mu.Lock()
	r, ok := s.resources[key]
	if !ok {
		s.mu.Unlock()
		return errors.NewNotFoundError("resource", key)
	}
	r.Frequency = d
	s.mu.Unlock()

	s.logger.Debug().Str("resource_key", key).Dur("frequency", d).Msg("Poll frequency changed")
	s.restart()
	return nil
}

// HandleVisibility pauses while hidden and resumes when visible and online.
func (s *Scheduler) HandleVisibility(visible bool) {
	s.mu.Lock()
	s.visible = visible
	online := s.online
	s.mu.Unlock()

	if !visible {
		s.Pause()
	} else if online {
		s.Resume()
	}
}

// HandleNetwork pauses while offline and resumes when online and visible.
func (s *Scheduler) HandleNetwork(online bool) {
	s.mu.Lock()
	s.online = online
	visible := s.visible
	s.mu.Unlock()

	if !online {
		s.Pause()
	} else if visible {
		s.Resume()
	}
}

func (s *Scheduler) loop(ctx context.Context, key string, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = s.poll(ctx, key)
		}
	}
}

func (s *Scheduler) statusLoop(ctx context.Context) {
	if s.statusInterval <= 0 {
		return
	}
	ticker := time.NewTicker(s.statusInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.bus.Publish(events.SystemStatusUpdated, s.Status())
		}
	}
}

// Trigger runs one fetch cycle now for the given keys, or for every resource
// when none are given. Timer phases are left alone. It returns the first
// critical failure, if any.
func (s *Scheduler) Trigger(ctx context.Context, keys ...string) error {
	s.mu.Lock()
	if len(keys) == 0 {
		keys = append(keys, s.order...)
	}
	for _, key := range keys {
		if _, ok := s.resources[key]; !ok {
			s.mu.Unlock()
			return errors.NewNotFoundError("resource", key)
		}
	}
	s.mu.Unlock()

	var g errgroup.Group
	for _, key := range keys {
		key := key
		g.Go(func() error {
			return s.poll(ctx, key)
		})
	}
	return g.Wait()
}

// poll fetches key once; concurrent polls of the same key share one request.
func (s *Scheduler) poll(ctx context.Context, key string) error {
	ctx = logging.WithResource(logging.WithLogger(ctx, s.logger), key)
	_, err, _ := s.flight.Do(key, func() (any, error) {
		return nil, s.fetch(ctx, key)
	})
	return err
}

func (s *Scheduler) fetch(ctx context.Context, key string) error {
	s.mu.Lock()
	r, ok := s.resources[key]
	if !ok {
		s.mu.Unlock()
		return errors.NewNotFoundError("resource", key)
	}
	res := *r
	s.mu.Unlock()

	fctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	started := time.Now()
	body, err := s.fetcher.Fetch(fctx, res.Path)
	took := time.Since(started)
	if err != nil {
		if ctx.Err() != nil {
			// Paused or shut down mid-request.
			return nil
		}
		return s.failed(ctx, res.Key, err, took)
	}

	now := time.Now()
	data := json.RawMessage(body)
	s.bus.Publish(events.DataUpdated, Update{ResourceKey: res.Key, Data: data, Timestamp: now})

	if res.Handler != nil {
		if err := s.runHandler(ctx, res, data); err != nil {
			return s.failed(ctx, res.Key, err, took)
		}
	}

	s.mu.Lock()
	if h, ok := s.health[res.Key]; ok {
		h.LastUpdate = &now
		h.LastError = ""
		h.Updates++
	}
	s.mu.Unlock()
	s.metrics.observe(res.Key, OutcomeOK, took)
	logging.Ctx(ctx).Debug().Dur("took", took).Msg("Resource updated")
	return nil
}

func (s *Scheduler) runHandler(ctx context.Context, res Resource, data json.RawMessage) (err error) {
	defer func() {
		if serr := errors.Recovered("poll:"+res.Key, recover()); serr != nil {
			err = serr
		}
	}()
	return res.Handler(ctx, data)
}

// failed classifies err, records it and decides whether to surface it.
// Only critical failures are returned.
func (s *Scheduler) failed(ctx context.Context, key string, err error, took time.Duration) error {
	cat := errors.Classify(err)
	log := logging.Ctx(ctx)

	if errors.IsNotFound(err) {
		s.mu.Lock()
		if h, ok := s.health[key]; ok {
			h.Skipped++
		}
		s.mu.Unlock()
		s.metrics.observe(key, OutcomeSkipped, took)
		log.Debug().Msg("Resource not present, skipped")
		return nil
	}

	s.mu.Lock()
	if h, ok := s.health[key]; ok {
		h.LastError = err.Error()
		h.Failures++
	}
	s.mu.Unlock()

	if !cat.Critical() {
		s.metrics.observe(key, OutcomeError, took)
		log.Warn().Err(err).Str("category", cat.String()).Msg("Poll failed")
		return nil
	}

	s.metrics.observe(key, OutcomeCritical, took)
	log.Error().Err(err).Str("category", cat.String()).Msg("Poll failed")
	f := Failure{ResourceKey: key, Category: cat, Err: err, Message: err.Error()}
	if cat == errors.CategoryScript {
		s.bus.Publish(events.ScriptFault, err)
	} else {
		s.bus.Publish(events.SyncError, f)
	}
	return f
}

// Status returns a snapshot of the scheduler and every resource.
func (s *Scheduler) Status() SystemStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := SystemStatus{
		Active:    s.active,
		Online:    s.online,
		Visible:   s.visible,
		Timestamp: time.Now(),
		Resources: make([]ResourceStatus, 0, len(s.order)),
	}
	for _, key := range s.order {
		r := s.resources[key]
		h := *s.health[key]
		h.Key = key
		h.Path = r.Path
		h.Frequency = r.Frequency
		if h.LastUpdate != nil {
			t := *h.LastUpdate
			h.LastUpdate = &t
		}
		st.Resources = append(st.Resources, h)
	}
	return st
}
