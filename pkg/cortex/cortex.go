// Package cortex provides the public API for cortex-go.
//
// It exposes the kernel dispatch table and the confidence-gated cascade
// router behind one assembled System.
//
// Example:
//
//	sys, err := cortex.NewSystem(cortex.DefaultConfig())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer sys.Close()
//
//	confidence := 0.9
//	decision, err := sys.Cascade(cortex.CascadeRequest{
//	    Task:       "classify intent",
//	    Confidence: &confidence,
//	})
package cortex

import (
	"context"

	"github.com/cortexos/cortex-go/internal/application/system"
	"github.com/cortexos/cortex-go/internal/config"
	kerneldomain "github.com/cortexos/cortex-go/internal/domain/kernel"
	routingdomain "github.com/cortexos/cortex-go/internal/domain/routing"
	"github.com/cortexos/cortex-go/internal/infrastructure/events"
	"github.com/cortexos/cortex-go/internal/infrastructure/kernel"
	"github.com/cortexos/cortex-go/internal/infrastructure/routing"
	"github.com/cortexos/cortex-go/internal/shared"
)

// Re-export types for the public API.
type (
	// Kernel types
	PrimitiveID      = kerneldomain.PrimitiveID
	Handler          = kerneldomain.Handler
	UsageReporter    = kerneldomain.UsageReporter
	Primitive        = kerneldomain.Primitive
	CallRecord       = kerneldomain.CallRecord
	Budget           = kerneldomain.Budget
	RegistryConfig   = kerneldomain.RegistryConfig
	ValidationResult = kerneldomain.ValidationResult
	RegistryStats    = kerneldomain.RegistryStats
	LayerStats       = kerneldomain.LayerStats
	PrimitiveInfo    = kerneldomain.PrimitiveInfo
	Registry         = kernel.Registry

	// Routing types
	Modality            = routingdomain.Modality
	ModelTier           = routingdomain.ModelTier
	RouteConstraints    = routingdomain.RouteConstraints
	CascadeRequest      = routingdomain.CascadeRequest
	RoutingDecision     = routingdomain.RoutingDecision
	AdapterSpec         = routingdomain.AdapterSpec
	LoRAAdapter         = routingdomain.LoRAAdapter
	ModalityRoute       = routingdomain.ModalityRoute
	DistillationSpec    = routingdomain.DistillationSpec
	DistillationConfig  = routingdomain.DistillationConfig
	DistillationMetrics = routingdomain.DistillationMetrics
	Outcome             = routingdomain.Outcome
	RouterConfig        = routingdomain.RouterConfig
	RouterStats         = routingdomain.RouterStats
	Router              = routing.Router

	// Event types
	Event        = shared.Event
	EventType    = shared.EventType
	EventPayload = shared.EventPayload
	Bus          = events.Bus

	// Errors
	KernelError = shared.KernelError
	ErrorCode   = shared.ErrorCode

	// System assembly
	Config        = config.Config
	System        = system.System
	RouteInput    = system.RouteInput
	EscalateInput = system.EscalateInput
)

// Primitive ids.
const (
	PrimitiveTokenize    = kerneldomain.PrimitiveTokenize
	PrimitiveEmbed       = kerneldomain.PrimitiveEmbed
	PrimitiveCache       = kerneldomain.PrimitiveCache
	PrimitiveIndex       = kerneldomain.PrimitiveIndex
	PrimitiveStore       = kerneldomain.PrimitiveStore
	PrimitiveRecall      = kerneldomain.PrimitiveRecall
	PrimitiveAttend      = kerneldomain.PrimitiveAttend
	PrimitiveFocus       = kerneldomain.PrimitiveFocus
	PrimitiveFilter      = kerneldomain.PrimitiveFilter
	PrimitivePlan        = kerneldomain.PrimitivePlan
	PrimitiveDecompose   = kerneldomain.PrimitiveDecompose
	PrimitiveReflect     = kerneldomain.PrimitiveReflect
	PrimitiveVerify      = kerneldomain.PrimitiveVerify
	PrimitiveAdapt       = kerneldomain.PrimitiveAdapt
	PrimitiveDistill     = kerneldomain.PrimitiveDistill
	PrimitiveConsolidate = kerneldomain.PrimitiveConsolidate
	PrimitiveRoute       = kerneldomain.PrimitiveRoute
	PrimitiveCascade     = kerneldomain.PrimitiveCascade
	PrimitiveEscalate    = kerneldomain.PrimitiveEscalate
)

// Modalities.
const (
	ModalityText           = routingdomain.ModalityText
	ModalityCode           = routingdomain.ModalityCode
	ModalityImage          = routingdomain.ModalityImage
	ModalityAudio          = routingdomain.ModalityAudio
	ModalityVideo          = routingdomain.ModalityVideo
	ModalityMultimodal     = routingdomain.ModalityMultimodal
	ModalityStructuredData = routingdomain.ModalityStructuredData
)

// Error codes.
const (
	CodeAlreadyRegistered        = shared.CodeAlreadyRegistered
	CodeNotRegistered            = shared.CodeNotRegistered
	CodeUnknownPrimitive         = shared.CodeUnknownPrimitive
	CodeDisabled                 = shared.CodeDisabled
	CodeConcurrencyLimitExceeded = shared.CodeConcurrencyLimitExceeded
	CodeTimeout                  = shared.CodeTimeout
	CodeDepthLimitExceeded       = shared.CodeDepthLimitExceeded
	CodeNoTiersRegistered        = shared.CodeNoTiersRegistered
)

// AllPrimitives returns every primitive id in lexicographic order.
func AllPrimitives() []PrimitiveID {
	return kerneldomain.AllPrimitives()
}

// DefaultConfig returns the default system configuration.
func DefaultConfig() Config {
	return config.Default()
}

// DefaultRegistryConfig returns the default standalone registry
// configuration.
func DefaultRegistryConfig() RegistryConfig {
	return kerneldomain.DefaultRegistryConfig()
}

// DefaultRouterConfig returns the default standalone router configuration.
// Start from it when constructing a Router: boolean fields are not
// backfilled from a zero value.
func DefaultRouterConfig() RouterConfig {
	return routingdomain.DefaultRouterConfig()
}

// LoadConfig reads a YAML config file over the defaults.
func LoadConfig(path string) (Config, error) {
	return config.Load(path)
}

// NewSystem assembles a full system: bus, registry, router, and optional
// journal, with the routing-layer primitives pre-registered.
func NewSystem(cfg Config) (*System, error) {
	return system.New(cfg)
}

// NewRegistry creates a standalone kernel registry.
func NewRegistry(cfg RegistryConfig, bus *Bus) *Registry {
	return kernel.New(cfg, bus)
}

// NewRouter creates a standalone cascade router.
func NewRouter(cfg RouterConfig, bus *Bus) *Router {
	return routing.New(cfg, bus)
}

// NewBus creates an event bus.
func NewBus() *Bus {
	return events.New()
}

// IsCode reports whether err is a KernelError carrying the given code.
func IsCode(err error, code ErrorCode) bool {
	return shared.IsCode(err, code)
}

// CallAs dispatches a primitive and asserts the output type.
func CallAs[T any](ctx context.Context, r *Registry, id PrimitiveID, input interface{}) (T, error) {
	return kernel.CallAs[T](ctx, r, id, input)
}
