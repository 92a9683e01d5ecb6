package kernel

import (
	"context"
	"time"
)

// Handler is the opaque asynchronous function registered for a primitive.
// The kernel never inspects inputs or outputs; it only dispatches.
type Handler func(ctx context.Context, input interface{}) (interface{}, error)

// UsageReporter can be implemented by handler outputs to feed token and cost
// accounting into the kernel budget. Outputs that do not implement it simply
// contribute call counts.
type UsageReporter interface {
	Usage() (tokens int64, costUSD float64)
}

// Primitive represents a registered kernel primitive with its runtime
// metrics.
type Primitive struct {
	ID              PrimitiveID `json:"id"`
	Layer           int         `json:"layer"`
	Handler         Handler     `json:"-"`
	Enabled         bool        `json:"enabled"`
	RegisteredAt    int64       `json:"registeredAt"`
	CallCount       int64       `json:"callCount"`
	ErrorCount      int64       `json:"errorCount"`
	TotalDurationMs int64       `json:"totalDurationMs"`
}

// CallRecord is the observability record of a single call. History never
// gates behavior.
type CallRecord struct {
	PrimitiveID PrimitiveID `json:"primitiveId"`
	CallID      string      `json:"callId"`
	Timestamp   int64       `json:"timestamp"`
	DurationMs  int64       `json:"durationMs"`
	Success     bool        `json:"success"`
	Error       string      `json:"error,omitempty"`
}

// Budget holds process-wide counters, monotonically non-decreasing within a
// registry's lifetime.
type Budget struct {
	TotalCalls       int64                 `json:"totalCalls"`
	TotalTokens      int64                 `json:"totalTokens"`
	TotalCostUSD     float64               `json:"totalCostUsd"`
	CallsByPrimitive map[PrimitiveID]int64 `json:"callsByPrimitive"`
}

// RegistryConfig holds configuration for creating a Registry.
type RegistryConfig struct {
	// AutoStart enables primitives at registration time.
	AutoStart bool `json:"autoStart"`

	// Tracing logs the call lifecycle through the registry's logger.
	Tracing bool `json:"tracing"`

	// MaxConcurrency bounds in-flight calls across all primitives.
	MaxConcurrency int `json:"maxConcurrency"`

	// CallTimeout bounds a single handler invocation.
	CallTimeout time.Duration `json:"callTimeout"`

	// HistorySize bounds the call-record ring buffer.
	HistorySize int `json:"historySize"`
}

// DefaultRegistryConfig returns the default registry configuration.
func DefaultRegistryConfig() RegistryConfig {
	return RegistryConfig{
		AutoStart:      true,
		Tracing:        false,
		MaxConcurrency: 10,
		CallTimeout:    30 * time.Second,
		HistorySize:    1000,
	}
}

// MissingDependency names a registered primitive whose static dependency is
// not currently registered.
type MissingDependency struct {
	PrimitiveID PrimitiveID `json:"primitiveId"`
	DependsOn   PrimitiveID `json:"dependsOn"`
}

// ValidationResult is the outcome of dependency validation.
type ValidationResult struct {
	Valid                bool                `json:"valid"`
	MissingDependencies  []MissingDependency `json:"missingDependencies"`
	CircularDependencies [][]PrimitiveID     `json:"circularDependencies"`
}

// LayerStats aggregates per-layer registration and call metrics.
type LayerStats struct {
	Layer      int    `json:"layer"`
	Name       string `json:"name"`
	Registered int    `json:"registered"`
	Enabled    int    `json:"enabled"`
	Calls      int64  `json:"calls"`
	Errors     int64  `json:"errors"`
}

// RegistryStats aggregates registry-wide metrics.
type RegistryStats struct {
	Registered  int   `json:"registered"`
	ActiveCalls int   `json:"activeCalls"`
	TotalCalls  int64 `json:"totalCalls"`
	TotalErrors int64 `json:"totalErrors"`
	HistorySize int   `json:"historySize"`
}

// PrimitiveInfo is the read-only view of a primitive returned by accessors.
type PrimitiveInfo struct {
	ID              PrimitiveID   `json:"id"`
	Layer           int           `json:"layer"`
	LayerName       string        `json:"layerName"`
	Enabled         bool          `json:"enabled"`
	RegisteredAt    int64         `json:"registeredAt"`
	CallCount       int64         `json:"callCount"`
	ErrorCount      int64         `json:"errorCount"`
	TotalDurationMs int64         `json:"totalDurationMs"`
	AvgDurationMs   float64       `json:"avgDurationMs"`
	Dependencies    []PrimitiveID `json:"dependencies,omitempty"`
}
