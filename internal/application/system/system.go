// Package system wires the kernel registry, cascade router, event bus,
// logger, and optional journal into one runnable unit.
package system

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/cortexos/cortex-go/internal/config"
	kerneldomain "github.com/cortexos/cortex-go/internal/domain/kernel"
	routingdomain "github.com/cortexos/cortex-go/internal/domain/routing"
	"github.com/cortexos/cortex-go/internal/infrastructure/events"
	"github.com/cortexos/cortex-go/internal/infrastructure/eventsourcing"
	"github.com/cortexos/cortex-go/internal/infrastructure/kernel"
	"github.com/cortexos/cortex-go/internal/infrastructure/routing"
)

// RouteInput is the dispatch payload for the "route" primitive.
type RouteInput struct {
	Modality    routingdomain.Modality          `json:"modality"`
	Constraints *routingdomain.RouteConstraints `json:"constraints,omitempty"`
}

// EscalateInput is the dispatch payload for the "escalate" primitive.
type EscalateInput struct {
	DecisionID string `json:"decisionId"`
}

// System is the assembled runtime: one bus, one registry, one router, and an
// optional journal recording every bus event.
type System struct {
	config   config.Config
	logger   *zap.Logger
	bus      *events.Bus
	registry *kernel.Registry
	router   *routing.Router
	journal  *eventsourcing.Journal
}

// Option configures the System.
type Option func(*options)

type options struct {
	logger *zap.Logger
}

// WithLogger replaces the logger built from the configuration.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// New assembles a System from configuration. The routing-layer primitives
// (route, cascade, escalate) are registered against the router; all other
// primitives are left to the caller.
func New(cfg config.Config, opts ...Option) (*System, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	logger := o.logger
	if logger == nil {
		built, err := cfg.BuildLogger()
		if err != nil {
			return nil, fmt.Errorf("build logger: %w", err)
		}
		logger = built
	}

	bus := events.New()

	var journal *eventsourcing.Journal
	if cfg.Journal.Enabled {
		j, err := eventsourcing.NewJournal(eventsourcing.JournalConfig{
			DatabasePath: cfg.Journal.DatabasePath,
		})
		if err != nil {
			bus.Close()
			return nil, fmt.Errorf("open journal: %w", err)
		}
		j.Attach(bus)
		journal = j
	}

	s := &System{
		config:   cfg,
		logger:   logger,
		bus:      bus,
		registry: kernel.New(cfg.RegistryConfig(), bus, kernel.WithLogger(logger)),
		router:   routing.New(cfg.RouterConfig(), bus),
		journal:  journal,
	}

	if err := s.registerRoutingPrimitives(); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// registerRoutingPrimitives installs the route-layer handlers backed by the
// router.
func (s *System) registerRoutingPrimitives() error {
	handlers := map[kerneldomain.PrimitiveID]kerneldomain.Handler{
		kerneldomain.PrimitiveCascade: func(ctx context.Context, input interface{}) (interface{}, error) {
			req, ok := input.(routingdomain.CascadeRequest)
			if !ok {
				return nil, fmt.Errorf("cascade expects a CascadeRequest, got %T", input)
			}
			return s.router.Cascade(req)
		},
		kerneldomain.PrimitiveRoute: func(ctx context.Context, input interface{}) (interface{}, error) {
			in, ok := input.(RouteInput)
			if !ok {
				return nil, fmt.Errorf("route expects a RouteInput, got %T", input)
			}
			return s.router.Route(in.Modality, in.Constraints)
		},
		kerneldomain.PrimitiveEscalate: func(ctx context.Context, input interface{}) (interface{}, error) {
			in, ok := input.(EscalateInput)
			if !ok {
				return nil, fmt.Errorf("escalate expects an EscalateInput, got %T", input)
			}
			return s.router.Escalate(in.DecisionID), nil
		},
	}

	for id, handler := range handlers {
		if err := s.registry.Register(id, handler); err != nil {
			return fmt.Errorf("register %s: %w", id, err)
		}
	}
	return nil
}

// Call dispatches a primitive through the registry.
func (s *System) Call(ctx context.Context, id kerneldomain.PrimitiveID, input interface{}) (interface{}, error) {
	return s.registry.Call(ctx, id, input)
}

// Cascade routes a request through the router directly.
func (s *System) Cascade(req routingdomain.CascadeRequest) (*routingdomain.RoutingDecision, error) {
	return s.router.Cascade(req)
}

// RecordOutcome reports a routing outcome.
func (s *System) RecordOutcome(decisionID string, outcome routingdomain.Outcome) {
	s.router.RecordOutcome(decisionID, outcome)
}

// Registry returns the kernel registry.
func (s *System) Registry() *kernel.Registry { return s.registry }

// Router returns the cascade router.
func (s *System) Router() *routing.Router { return s.router }

// Bus returns the event bus.
func (s *System) Bus() *events.Bus { return s.bus }

// Journal returns the event journal, or nil when journaling is disabled.
func (s *System) Journal() *eventsourcing.Journal { return s.journal }

// Logger returns the system logger.
func (s *System) Logger() *zap.Logger { return s.logger }

// Config returns the configuration the system was built from.
func (s *System) Config() config.Config { return s.config }

// Close shuts down the bus and journal. The registry and router hold no
// resources of their own.
func (s *System) Close() error {
	s.bus.Close()
	if s.journal != nil {
		return s.journal.Close()
	}
	return nil
}
