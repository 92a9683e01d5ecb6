// Package kernel provides the kernel dispatch table: primitive registration,
// dependency validation, topological initialization ordering, and
// concurrency- and timeout-bounded invocation with budget accounting.
package kernel

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	domain "github.com/cortexos/cortex-go/internal/domain/kernel"
	"github.com/cortexos/cortex-go/internal/infrastructure/events"
	"github.com/cortexos/cortex-go/internal/shared"
)

// Registry owns primitive registration and dispatch. All maps and counters
// are guarded by mu; the only asynchronous boundary is the handler goroutine
// spawned by Call.
type Registry struct {
	mu          sync.Mutex
	config      domain.RegistryConfig
	primitives  map[domain.PrimitiveID]*domain.Primitive
	budget      domain.Budget
	activeCalls int

	history *CallHistory
	bus     *events.Bus
	logger  *zap.Logger

	// dependenciesOf resolves the static dependency list. Overridable for
	// tests that need graphs the shipped table never produces (cycles).
	dependenciesOf func(domain.PrimitiveID) []domain.PrimitiveID
}

// Option configures the Registry.
type Option func(*Registry)

// WithLogger sets the logger used when tracing is enabled.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithDependencyGraph overrides the static dependency lookup.
func WithDependencyGraph(deps map[domain.PrimitiveID][]domain.PrimitiveID) Option {
	return func(r *Registry) {
		r.dependenciesOf = func(id domain.PrimitiveID) []domain.PrimitiveID {
			return deps[id]
		}
	}
}

// New creates a Registry. Events are published to bus, which may be nil.
func New(config domain.RegistryConfig, bus *events.Bus, opts ...Option) *Registry {
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = DefaultMaxConcurrency
	}
	if config.CallTimeout <= 0 {
		config.CallTimeout = DefaultCallTimeout
	}

	r := &Registry{
		config:     config,
		primitives: make(map[domain.PrimitiveID]*domain.Primitive),
		budget: domain.Budget{
			CallsByPrimitive: make(map[domain.PrimitiveID]int64),
		},
		history:        NewCallHistory(config.HistorySize),
		bus:            bus,
		logger:         zap.NewNop(),
		dependenciesOf: domain.DependenciesOf,
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Default dispatch bounds.
const (
	DefaultMaxConcurrency = 10
	DefaultCallTimeout    = 30 * time.Second
)

// Register installs a handler for a primitive. The primitive's layer comes
// from the static table; re-registering an id without an intervening
// Unregister fails.
func (r *Registry) Register(id domain.PrimitiveID, handler domain.Handler) error {
	layer, known := domain.LayerOf(id)
	if !known {
		return shared.NewUnknownPrimitive(string(id))
	}

	r.mu.Lock()
	if _, exists := r.primitives[id]; exists {
		r.mu.Unlock()
		return shared.NewAlreadyRegistered(string(id))
	}

	r.primitives[id] = &domain.Primitive{
		ID:           id,
		Layer:        layer,
		Handler:      handler,
		Enabled:      r.config.AutoStart,
		RegisteredAt: shared.Now(),
	}
	r.mu.Unlock()

	r.bus.Emit(shared.PrimitiveRegisteredPayload{PrimitiveID: string(id), Layer: layer})
	return nil
}

// Unregister removes a primitive and reports whether it existed. Absence is
// not an error.
func (r *Registry) Unregister(id domain.PrimitiveID) bool {
	r.mu.Lock()
	_, existed := r.primitives[id]
	delete(r.primitives, id)
	r.mu.Unlock()

	if existed {
		r.bus.Emit(shared.PrimitiveUnregisteredPayload{PrimitiveID: string(id)})
	}
	return existed
}

// Has reports whether a primitive is registered.
func (r *Registry) Has(id domain.PrimitiveID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.primitives[id]
	return ok
}

// Call dispatches input to a primitive's handler, bounded by the configured
// concurrency limit and call timeout. Exactly one of the handler result and
// the timeout finalizes the call; a timed-out handler is abandoned and its
// eventual result discarded. The in-flight slot is released on every exit
// path.
func (r *Registry) Call(ctx context.Context, id domain.PrimitiveID, input interface{}) (interface{}, error) {
	r.mu.Lock()
	p, ok := r.primitives[id]
	if !ok {
		r.mu.Unlock()
		return nil, shared.NewNotRegistered(string(id))
	}
	if !p.Enabled {
		r.mu.Unlock()
		return nil, shared.NewDisabled(string(id))
	}
	if r.activeCalls >= r.config.MaxConcurrency {
		limit := r.config.MaxConcurrency
		r.mu.Unlock()
		return nil, shared.NewConcurrencyLimitExceeded(limit)
	}
	r.activeCalls++
	handler := p.Handler
	timeout := r.config.CallTimeout
	r.mu.Unlock()

	callID := uuid.New().String()
	r.bus.Emit(shared.PrimitiveCalledPayload{PrimitiveID: string(id), CallID: callID})
	if r.config.Tracing {
		r.logger.Debug("primitive called",
			zap.String("primitive", string(id)),
			zap.String("callId", callID))
	}

	type callResult struct {
		output interface{}
		err    error
	}

	start := time.Now()
	done := make(chan callResult, 1)
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	go func() {
		output, err := handler(cctx, input)
		done <- callResult{output: output, err: err}
	}()

	select {
	case res := <-done:
		durationMs := time.Since(start).Milliseconds()
		r.finalize(id, callID, durationMs, res.output, res.err)
		if res.err != nil {
			return nil, res.err
		}
		return res.output, nil

	case <-cctx.Done():
		durationMs := time.Since(start).Milliseconds()
		var err error
		if cctx.Err() == context.DeadlineExceeded {
			err = shared.NewTimeout(string(id), callID, timeout)
		} else {
			// Caller cancellation, not a kernel timeout.
			err = cctx.Err()
		}
		r.finalize(id, callID, durationMs, nil, err)
		return nil, err
	}
}

// CallAs invokes a primitive and type-asserts the output.
func CallAs[T any](ctx context.Context, r *Registry, id domain.PrimitiveID, input interface{}) (T, error) {
	var zero T
	output, err := r.Call(ctx, id, input)
	if err != nil {
		return zero, err
	}
	typed, ok := output.(T)
	if !ok {
		return zero, fmt.Errorf("primitive %q returned %T, not %T", id, output, zero)
	}
	return typed, nil
}

// finalize settles metrics, budget, history, and events for a call. It is
// reached exactly once per dispatched call.
func (r *Registry) finalize(id domain.PrimitiveID, callID string, durationMs int64, output interface{}, callErr error) {
	r.mu.Lock()
	r.activeCalls--
	if p, ok := r.primitives[id]; ok {
		p.CallCount++
		if callErr != nil {
			p.ErrorCount++
		} else {
			p.TotalDurationMs += durationMs
		}
	}
	r.budget.TotalCalls++
	r.budget.CallsByPrimitive[id]++
	if reporter, ok := output.(domain.UsageReporter); ok && callErr == nil {
		tokens, cost := reporter.Usage()
		r.budget.TotalTokens += tokens
		r.budget.TotalCostUSD += cost
	}
	r.mu.Unlock()

	record := domain.CallRecord{
		PrimitiveID: id,
		CallID:      callID,
		Timestamp:   shared.Now(),
		DurationMs:  durationMs,
		Success:     callErr == nil,
	}
	if callErr != nil {
		record.Error = callErr.Error()
	}
	r.history.Append(record)

	if callErr != nil {
		r.bus.Emit(shared.CallFailedPayload{
			PrimitiveID: string(id),
			CallID:      callID,
			DurationMs:  durationMs,
			Error:       callErr.Error(),
		})
		if r.config.Tracing {
			r.logger.Warn("primitive call failed",
				zap.String("primitive", string(id)),
				zap.String("callId", callID),
				zap.Int64("durationMs", durationMs),
				zap.Error(callErr))
		}
		return
	}

	r.bus.Emit(shared.CallCompletedPayload{
		PrimitiveID: string(id),
		CallID:      callID,
		DurationMs:  durationMs,
	})
	if r.config.Tracing {
		r.logger.Debug("primitive call completed",
			zap.String("primitive", string(id)),
			zap.String("callId", callID),
			zap.Int64("durationMs", durationMs))
	}
}

// SetEnabled toggles a primitive. Calls to a disabled primitive fail fast
// without touching budget or history.
func (r *Registry) SetEnabled(id domain.PrimitiveID, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.primitives[id]
	if !ok {
		return shared.NewNotRegistered(string(id))
	}
	p.Enabled = enabled
	return nil
}

// IsEnabled reports whether a primitive is registered and enabled.
func (r *Registry) IsEnabled(id domain.PrimitiveID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.primitives[id]
	return ok && p.Enabled
}

// registeredIDsLocked returns registered ids sorted by layer ascending, then
// id lexicographic. Callers must hold mu.
func (r *Registry) registeredIDsLocked() []domain.PrimitiveID {
	ids := make([]domain.PrimitiveID, 0, len(r.primitives))
	for id := range r.primitives {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		li := r.primitives[ids[i]].Layer
		lj := r.primitives[ids[j]].Layer
		if li != lj {
			return li < lj
		}
		return ids[i] < ids[j]
	})
	return ids
}

// ValidateDependencies checks that every registered primitive's static
// dependencies are themselves registered, and runs cycle detection.
func (r *Registry) ValidateDependencies() domain.ValidationResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	result := domain.ValidationResult{
		MissingDependencies:  []domain.MissingDependency{},
		CircularDependencies: [][]domain.PrimitiveID{},
	}

	for _, id := range r.registeredIDsLocked() {
		for _, dep := range r.dependenciesOf(id) {
			if _, ok := r.primitives[dep]; !ok {
				result.MissingDependencies = append(result.MissingDependencies, domain.MissingDependency{
					PrimitiveID: id,
					DependsOn:   dep,
				})
			}
		}
	}

	result.CircularDependencies = r.detectCircularDepsLocked()
	result.Valid = len(result.MissingDependencies) == 0 && len(result.CircularDependencies) == 0
	return result
}

// InitializationOrder returns a topological order for the registered set:
// every primitive appears after all of its registered dependencies.
// Unregistered dependencies are skipped. Roots are seeded by (layer, id) so
// lower layers tend to come first, but the DFS result is authoritative.
func (r *Registry) InitializationOrder() []domain.PrimitiveID {
	r.mu.Lock()
	defer r.mu.Unlock()

	order := make([]domain.PrimitiveID, 0, len(r.primitives))
	visited := make(map[domain.PrimitiveID]bool, len(r.primitives))

	var visit func(id domain.PrimitiveID)
	visit = func(id domain.PrimitiveID) {
		if visited[id] {
			return
		}
		visited[id] = true
		for _, dep := range r.dependenciesOf(id) {
			if _, ok := r.primitives[dep]; ok {
				visit(dep)
			}
		}
		order = append(order, id)
	}

	for _, id := range r.registeredIDsLocked() {
		visit(id)
	}
	return order
}

// DetectCircularDeps runs a DFS with a fresh visited/in-stack set per
// starting primitive. A cycle reachable from several roots is therefore
// reported once per root, not deduplicated.
func (r *Registry) DetectCircularDeps() [][]domain.PrimitiveID {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.detectCircularDepsLocked()
}

func (r *Registry) detectCircularDepsLocked() [][]domain.PrimitiveID {
	cycles := [][]domain.PrimitiveID{}

	for _, root := range r.registeredIDsLocked() {
		visited := make(map[domain.PrimitiveID]bool)
		inStack := make(map[domain.PrimitiveID]bool)
		path := []domain.PrimitiveID{}

		var visit func(id domain.PrimitiveID)
		visit = func(id domain.PrimitiveID) {
			if inStack[id] {
				// Close the cycle from its first occurrence on the path.
				start := 0
				for i, p := range path {
					if p == id {
						start = i
						break
					}
				}
				cycle := make([]domain.PrimitiveID, 0, len(path)-start+1)
				cycle = append(cycle, path[start:]...)
				cycle = append(cycle, id)
				cycles = append(cycles, cycle)
				return
			}
			if visited[id] {
				return
			}
			visited[id] = true
			inStack[id] = true
			path = append(path, id)

			for _, dep := range r.dependenciesOf(id) {
				if _, ok := r.primitives[dep]; ok {
					visit(dep)
				}
			}

			inStack[id] = false
			path = path[:len(path)-1]
		}

		visit(root)
	}

	return cycles
}

// LayerStats aggregates registration and call counts per layer.
func (r *Registry) LayerStats() []domain.LayerStats {
	r.mu.Lock()
	defer r.mu.Unlock()

	stats := make([]domain.LayerStats, domain.NumLayers)
	for layer := range stats {
		stats[layer] = domain.LayerStats{Layer: layer, Name: domain.LayerName(layer)}
	}
	for _, p := range r.primitives {
		s := &stats[p.Layer]
		s.Registered++
		if p.Enabled {
			s.Enabled++
		}
		s.Calls += p.CallCount
		s.Errors += p.ErrorCount
	}
	return stats
}

// Stats returns registry-wide counters.
func (r *Registry) Stats() domain.RegistryStats {
	r.mu.Lock()
	defer r.mu.Unlock()

	stats := domain.RegistryStats{
		Registered:  len(r.primitives),
		ActiveCalls: r.activeCalls,
		HistorySize: r.history.Len(),
	}
	for _, p := range r.primitives {
		stats.TotalCalls += p.CallCount
		stats.TotalErrors += p.ErrorCount
	}
	return stats
}

// Budget returns a copy of the process-wide budget counters.
func (r *Registry) Budget() domain.Budget {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := domain.Budget{
		TotalCalls:       r.budget.TotalCalls,
		TotalTokens:      r.budget.TotalTokens,
		TotalCostUSD:     r.budget.TotalCostUSD,
		CallsByPrimitive: make(map[domain.PrimitiveID]int64, len(r.budget.CallsByPrimitive)),
	}
	for id, count := range r.budget.CallsByPrimitive {
		out.CallsByPrimitive[id] = count
	}
	return out
}

// PrimitiveInfo returns the read-only view of a registered primitive, or nil
// if it is not registered.
func (r *Registry) PrimitiveInfo(id domain.PrimitiveID) *domain.PrimitiveInfo {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.primitives[id]
	if !ok {
		return nil
	}

	info := &domain.PrimitiveInfo{
		ID:              p.ID,
		Layer:           p.Layer,
		LayerName:       domain.LayerName(p.Layer),
		Enabled:         p.Enabled,
		RegisteredAt:    p.RegisteredAt,
		CallCount:       p.CallCount,
		ErrorCount:      p.ErrorCount,
		TotalDurationMs: p.TotalDurationMs,
		Dependencies:    r.dependenciesOf(id),
	}
	if succeeded := p.CallCount - p.ErrorCount; succeeded > 0 {
		info.AvgDurationMs = float64(p.TotalDurationMs) / float64(succeeded)
	}
	return info
}

// History returns a copy of the call history, oldest first.
func (r *Registry) History() []domain.CallRecord {
	return r.history.Records()
}

// ActiveCalls returns the number of in-flight calls.
func (r *Registry) ActiveCalls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.activeCalls
}

// Config returns the registry configuration.
func (r *Registry) Config() domain.RegistryConfig {
	return r.config
}
