// Package shopfloor wires the coordination core of a manufacturing dashboard:
// the event bus, the process state store, the workflow engine, the push and
// pull halves of the sync layer and the notification surface.
//
// Everything is constructed explicitly by New; there are no package globals.
package shopfloor

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/agentstation/shopfloor/internal/transport"
	"github.com/agentstation/shopfloor/pkg/events"
	"github.com/agentstation/shopfloor/pkg/logging"
	"github.com/agentstation/shopfloor/pkg/notify"
	"github.com/agentstation/shopfloor/pkg/polling"
	"github.com/agentstation/shopfloor/pkg/realtime"
	"github.com/agentstation/shopfloor/pkg/state"
	"github.com/agentstation/shopfloor/pkg/workflow"
)

// Shopfloor is one dashboard session with its sync layer and workflow engine
type Shopfloor interface {
	// Bus returns the event bus every component publishes on
	Bus() *events.Bus

	// Store returns the process state store
	Store() *state.Store

	// Engine returns the workflow engine
	Engine() *workflow.Engine

	// Socket returns the push client, or nil when the socket is disabled
	Socket() *realtime.Client

	// Poller returns the polling scheduler, or nil when polling is disabled
	Poller() *polling.Scheduler

	// Surface returns the notification surface
	Surface() *notify.Surface

	// Start connects the socket and starts the poll timers
	Start(ctx context.Context) error

	// Stop tears the session down. No reconnect or poll happens afterwards.
	Stop()

	// HandleVisibility forwards a page visibility change to the sync layer
	HandleVisibility(ctx context.Context, visible bool)

	// HandleNetwork forwards a network state change to the poller
	HandleNetwork(online bool)

	// Status returns a point-in-time view of the session
	Status() Status

	// SelectPlan makes plan the current plan
	SelectPlan(plan state.Plan) error

	// SetStage makes stage the current stage of the active production
	SetStage(stage state.Stage) error

	// RecordQualityCheck adds or replaces a quality check result
	RecordQualityCheck(check state.QualityCheck) error

	// OnProductionAdded registers a callback for productions that appear
	OnProductionAdded(ProductionAddedHook)

	// OnProductionUpdated registers a callback for productions that change
	OnProductionUpdated(ProductionUpdatedHook)

	// OnProductionRemoved registers a callback for productions that finish or disappear
	OnProductionRemoved(ProductionRemovedHook)
}

// Status is a snapshot of the session.
type Status struct {
	Socket         realtime.State        `json:"socket"`
	Attempts       int                   `json:"reconnectAttempts"`
	Workflow       string                `json:"workflow,omitempty"`
	WorkflowStatus state.WorkflowStatus  `json:"workflowStatus"`
	Tabs           []state.TabDescriptor `json:"tabs"`
	Poll           *polling.SystemStatus `json:"poll,omitempty"`
}

// shopfloor is the internal implementation of the Shopfloor interface
type shopfloor struct {
	mu      sync.Mutex
	config  *config
	logger  *zerolog.Logger
	started bool

	bus     *events.Bus
	store   *state.Store
	engine  *workflow.Engine
	socket  *realtime.Client
	poller  *polling.Scheduler
	surface *notify.Surface

	projector *projector
	hooks     *hooks
}

// New creates a session with the given options
func New(opts ...Option) (Shopfloor, error) {
	cfg := defaultConfig()
	if err := cfg.apply(opts...); err != nil {
		return nil, fmt.Errorf("applying options: %w", err)
	}

	logger := cfg.logger
	if logger == nil {
		logger = logging.Default()
	}

	sf := &shopfloor{
		config: cfg,
		logger: logger,
		hooks:  newHooks(),
	}

	sf.bus = events.NewBus(logger)
	sf.store = state.NewStore(sf.bus,
		state.WithLogger(logger),
		state.WithNotificationTTL(cfg.notificationTTL),
	)

	defs := append(workflow.Builtin(), cfg.workflows...)
	engine, err := workflow.NewEngine(sf.bus, sf.store, logger, defs...)
	if err != nil {
		return nil, fmt.Errorf("creating workflow engine: %w", err)
	}
	sf.engine = engine

	sf.projector = newProjector(sf.store, sf.bus, sf.hooks, cfg.operatorID, logger)

	if cfg.polling {
		if err := sf.setupPoller(); err != nil {
			return nil, err
		}
	}
	if cfg.socket {
		if err := sf.setupSocket(); err != nil {
			return nil, err
		}
	}

	alerts := cfg.alerts
	if alerts == nil {
		alerts = notify.LogWriter(logger)
	}
	sf.surface = notify.NewSurface(sf.bus, alerts, logger)
	sf.surface.Attach()

	return sf, nil
}

func (sf *shopfloor) setupPoller() error {
	client, err := transport.New(sf.config.origin, sf.config.auth)
	if err != nil {
		return fmt.Errorf("creating poll client: %w", err)
	}
	client.WithTimeout(sf.config.fetchTimeout)

	resources := polling.DefaultResources()
	for i := range resources {
		if d, ok := sf.config.frequencies[resources[i].Key]; ok {
			resources[i].Frequency = d
		}
		resources[i].Handler = sf.projector.pollHandler(resources[i].Key)
	}

	poller, err := polling.NewScheduler(client, sf.bus,
		polling.WithLogger(sf.logger),
		polling.WithMetrics(polling.NewMetrics(sf.config.registerer)),
		polling.WithFetchTimeout(sf.config.fetchTimeout),
		polling.WithStatusInterval(sf.config.statusInterval),
		polling.WithResources(resources...),
	)
	if err != nil {
		return fmt.Errorf("creating poller: %w", err)
	}
	sf.poller = poller
	return nil
}

func (sf *shopfloor) setupSocket() error {
	url, err := realtime.SocketURL(sf.config.origin)
	if err != nil {
		return fmt.Errorf("deriving socket url: %w", err)
	}

	socket, err := realtime.NewClient(url, sf.bus,
		realtime.WithLogger(sf.logger),
		realtime.WithMaxReconnectAttempts(sf.config.maxAttempts),
		realtime.WithReconnectDelay(sf.config.reconnectDelay),
		realtime.WithPingInterval(sf.config.pingInterval),
		realtime.WithHandlers(sf.projector.socketHandlers()),
		realtime.WithMetrics(realtime.NewMetrics(sf.config.registerer)),
	)
	if err != nil {
		return fmt.Errorf("creating socket client: %w", err)
	}
	sf.socket = socket
	return nil
}

// Bus returns the event bus
func (sf *shopfloor) Bus() *events.Bus { return sf.bus }

// Store returns the state store
func (sf *shopfloor) Store() *state.Store { return sf.store }

// Engine returns the workflow engine
func (sf *shopfloor) Engine() *workflow.Engine { return sf.engine }

// Socket returns the push client
func (sf *shopfloor) Socket() *realtime.Client { return sf.socket }

// Poller returns the polling scheduler
func (sf *shopfloor) Poller() *polling.Scheduler { return sf.poller }

// Surface returns the notification surface
func (sf *shopfloor) Surface() *notify.Surface { return sf.surface }

// OnProductionAdded registers a callback for productions that appear
func (sf *shopfloor) OnProductionAdded(fn ProductionAddedHook) {
	sf.hooks.OnProductionAdded(fn)
}

// OnProductionUpdated registers a callback for productions that change
func (sf *shopfloor) OnProductionUpdated(fn ProductionUpdatedHook) {
	sf.hooks.OnProductionUpdated(fn)
}

// OnProductionRemoved registers a callback for productions that finish or disappear
func (sf *shopfloor) OnProductionRemoved(fn ProductionRemovedHook) {
	sf.hooks.OnProductionRemoved(fn)
}

// Status returns a point-in-time view of the session
func (sf *shopfloor) Status() Status {
	st := Status{
		Socket:         realtime.StateDisconnected,
		Workflow:       sf.engine.Current(),
		WorkflowStatus: sf.store.WorkflowStatus(),
		Tabs:           sf.store.Tabs(),
	}
	if sf.socket != nil {
		st.Socket = sf.socket.State()
		st.Attempts = sf.socket.Attempts()
	}
	if sf.poller != nil {
		ps := sf.poller.Status()
		st.Poll = &ps
	}
	return st
}
