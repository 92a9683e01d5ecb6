package kernel

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	domain "github.com/cortexos/cortex-go/internal/domain/kernel"
	"github.com/cortexos/cortex-go/internal/infrastructure/events"
	"github.com/cortexos/cortex-go/internal/shared"
)

func echoHandler(ctx context.Context, input interface{}) (interface{}, error) {
	return input, nil
}

func newTestRegistry(t *testing.T, mutate func(*domain.RegistryConfig)) *Registry {
	t.Helper()
	cfg := domain.DefaultRegistryConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	return New(cfg, nil)
}

func TestRegisterTwiceFails(t *testing.T) {
	r := newTestRegistry(t, nil)

	if err := r.Register(domain.PrimitiveAttend, echoHandler); err != nil {
		t.Fatalf("first register failed: %v", err)
	}
	if !r.Has(domain.PrimitiveAttend) {
		t.Fatal("expected Has to be true after register")
	}

	err := r.Register(domain.PrimitiveAttend, echoHandler)
	if !shared.IsCode(err, shared.CodeAlreadyRegistered) {
		t.Fatalf("expected ALREADY_REGISTERED, got %v", err)
	}

	if !r.Unregister(domain.PrimitiveAttend) {
		t.Fatal("expected unregister to report existence")
	}
	if r.Unregister(domain.PrimitiveAttend) {
		t.Fatal("expected second unregister to report absence")
	}
	if err := r.Register(domain.PrimitiveAttend, echoHandler); err != nil {
		t.Fatalf("register after unregister failed: %v", err)
	}
}

func TestRegisterUnknownPrimitive(t *testing.T) {
	r := newTestRegistry(t, nil)
	err := r.Register("teleport", echoHandler)
	if !shared.IsCode(err, shared.CodeUnknownPrimitive) {
		t.Fatalf("expected UNKNOWN_PRIMITIVE, got %v", err)
	}
}

func TestRegistrationEventCarriesLayer(t *testing.T) {
	bus := events.New()
	defer bus.Close()
	ch := bus.Subscribe(shared.EventPrimitiveRegistered)

	r := New(domain.DefaultRegistryConfig(), bus)
	if err := r.Register(domain.PrimitivePlan, echoHandler); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	event := <-ch
	payload := event.Payload.(shared.PrimitiveRegisteredPayload)
	if payload.PrimitiveID != "plan" || payload.Layer != domain.LayerReasoning {
		t.Fatalf("unexpected registration payload: %+v", payload)
	}
}

func TestCallSuccessRecordsDuration(t *testing.T) {
	r := newTestRegistry(t, func(cfg *domain.RegistryConfig) {
		cfg.CallTimeout = time.Second
	})
	if err := r.Register(domain.PrimitiveRecall, func(ctx context.Context, input interface{}) (interface{}, error) {
		time.Sleep(10 * time.Millisecond)
		return "ok", nil
	}); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	output, err := r.Call(context.Background(), domain.PrimitiveRecall, nil)
	if err != nil {
		t.Fatalf("call failed: %v", err)
	}
	if output != "ok" {
		t.Fatalf("unexpected output %v", output)
	}

	records := r.History()
	if len(records) != 1 {
		t.Fatalf("expected 1 history record, got %d", len(records))
	}
	rec := records[0]
	if !rec.Success || rec.CallID == "" {
		t.Fatalf("unexpected record %+v", rec)
	}
	if rec.DurationMs < 5 || rec.DurationMs > 500 {
		t.Fatalf("expected duration near 10ms, got %d", rec.DurationMs)
	}

	info := r.PrimitiveInfo(domain.PrimitiveRecall)
	if info.CallCount != 1 || info.ErrorCount != 0 || info.TotalDurationMs < 5 {
		t.Fatalf("unexpected primitive info %+v", info)
	}
}

func TestCallTimeout(t *testing.T) {
	r := newTestRegistry(t, func(cfg *domain.RegistryConfig) {
		cfg.CallTimeout = 50 * time.Millisecond
	})
	if err := r.Register(domain.PrimitiveVerify, func(ctx context.Context, input interface{}) (interface{}, error) {
		<-make(chan struct{}) // never resolves
		return nil, nil
	}); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	start := time.Now()
	_, err := r.Call(context.Background(), domain.PrimitiveVerify, nil)
	elapsed := time.Since(start)

	if !shared.IsCode(err, shared.CodeTimeout) {
		t.Fatalf("expected TIMEOUT, got %v", err)
	}
	if elapsed < 40*time.Millisecond || elapsed > time.Second {
		t.Fatalf("expected timeout near 50ms, took %s", elapsed)
	}
	if info := r.PrimitiveInfo(domain.PrimitiveVerify); info.ErrorCount != 1 {
		t.Fatalf("expected errorCount 1, got %d", info.ErrorCount)
	}
	if active := r.ActiveCalls(); active != 0 {
		t.Fatalf("expected activeCalls 0 after timeout, got %d", active)
	}

	records := r.History()
	if len(records) != 1 || records[0].Success || records[0].Error == "" {
		t.Fatalf("expected failure record, got %+v", records)
	}
}

func TestCallerCancellation(t *testing.T) {
	r := newTestRegistry(t, nil)
	if err := r.Register(domain.PrimitiveFocus, func(ctx context.Context, input interface{}) (interface{}, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := r.Call(ctx, domain.PrimitiveFocus, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if active := r.ActiveCalls(); active != 0 {
		t.Fatalf("expected activeCalls 0, got %d", active)
	}
}

func TestConcurrencyLimit(t *testing.T) {
	const limit = 3
	r := newTestRegistry(t, func(cfg *domain.RegistryConfig) {
		cfg.MaxConcurrency = limit
		cfg.CallTimeout = 5 * time.Second
	})

	release := make(chan struct{})
	if err := r.Register(domain.PrimitiveAttend, func(ctx context.Context, input interface{}) (interface{}, error) {
		<-release
		return nil, nil
	}); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, limit)
	for i := 0; i < limit; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := r.Call(context.Background(), domain.PrimitiveAttend, nil)
			errs <- err
		}()
	}

	// Wait for all three to be in flight.
	deadline := time.Now().Add(time.Second)
	for r.ActiveCalls() < limit {
		if time.Now().After(deadline) {
			t.Fatalf("in-flight count never reached %d", limit)
		}
		time.Sleep(time.Millisecond)
	}

	_, err := r.Call(context.Background(), domain.PrimitiveAttend, nil)
	if !shared.IsCode(err, shared.CodeConcurrencyLimitExceeded) {
		t.Fatalf("expected CONCURRENCY_LIMIT_EXCEEDED, got %v", err)
	}

	close(release)
	wg.Wait()
	for i := 0; i < limit; i++ {
		if err := <-errs; err != nil {
			t.Fatalf("in-flight call failed: %v", err)
		}
	}
	if active := r.ActiveCalls(); active != 0 {
		t.Fatalf("expected activeCalls 0, got %d", active)
	}
}

func TestDisabledPrimitiveFailsFastWithoutBookkeeping(t *testing.T) {
	r := newTestRegistry(t, nil)
	if err := r.Register(domain.PrimitiveFilter, echoHandler); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if err := r.SetEnabled(domain.PrimitiveFilter, false); err != nil {
		t.Fatalf("disable failed: %v", err)
	}
	if r.IsEnabled(domain.PrimitiveFilter) {
		t.Fatal("expected primitive disabled")
	}

	_, err := r.Call(context.Background(), domain.PrimitiveFilter, nil)
	if !shared.IsCode(err, shared.CodeDisabled) {
		t.Fatalf("expected DISABLED, got %v", err)
	}
	if budget := r.Budget(); budget.TotalCalls != 0 {
		t.Fatalf("expected untouched budget, got %+v", budget)
	}
	if len(r.History()) != 0 {
		t.Fatal("expected empty history")
	}

	if err := r.SetEnabled("teleport", true); !shared.IsCode(err, shared.CodeNotRegistered) {
		t.Fatalf("expected NOT_REGISTERED, got %v", err)
	}
}

func TestCallNotRegistered(t *testing.T) {
	r := newTestRegistry(t, nil)
	_, err := r.Call(context.Background(), domain.PrimitivePlan, nil)
	if !shared.IsCode(err, shared.CodeNotRegistered) {
		t.Fatalf("expected NOT_REGISTERED, got %v", err)
	}
}

func TestHandlerErrorPassesThrough(t *testing.T) {
	r := newTestRegistry(t, nil)
	handlerErr := errors.New("embedding backend unavailable")
	if err := r.Register(domain.PrimitiveEmbed, func(ctx context.Context, input interface{}) (interface{}, error) {
		return nil, handlerErr
	}); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	_, err := r.Call(context.Background(), domain.PrimitiveEmbed, nil)
	if !errors.Is(err, handlerErr) {
		t.Fatalf("expected handler error unmodified, got %v", err)
	}

	budget := r.Budget()
	if budget.TotalCalls != 1 || budget.CallsByPrimitive[domain.PrimitiveEmbed] != 1 {
		t.Fatalf("expected budget updated on failure, got %+v", budget)
	}
}

type usageOutput struct {
	tokens int64
	cost   float64
}

func (u usageOutput) Usage() (int64, float64) { return u.tokens, u.cost }

func TestBudgetAccumulatesUsage(t *testing.T) {
	r := newTestRegistry(t, nil)
	if err := r.Register(domain.PrimitiveTokenize, func(ctx context.Context, input interface{}) (interface{}, error) {
		return usageOutput{tokens: 128, cost: 0.004}, nil
	}); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	for i := 0; i < 3; i++ {
		if _, err := r.Call(context.Background(), domain.PrimitiveTokenize, nil); err != nil {
			t.Fatalf("call failed: %v", err)
		}
	}

	budget := r.Budget()
	if budget.TotalCalls != 3 || budget.TotalTokens != 384 {
		t.Fatalf("unexpected budget %+v", budget)
	}
	if budget.TotalCostUSD < 0.0119 || budget.TotalCostUSD > 0.0121 {
		t.Fatalf("unexpected cost %f", budget.TotalCostUSD)
	}
}

func TestValidateDependenciesFlagsMissing(t *testing.T) {
	r := newTestRegistry(t, nil)
	// recall depends on embed and index; register only recall.
	if err := r.Register(domain.PrimitiveRecall, echoHandler); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	result := r.ValidateDependencies()
	if result.Valid {
		t.Fatal("expected validation failure")
	}
	if len(result.MissingDependencies) != 2 {
		t.Fatalf("expected 2 missing dependencies, got %+v", result.MissingDependencies)
	}

	if err := r.Register(domain.PrimitiveEmbed, echoHandler); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if err := r.Register(domain.PrimitiveIndex, echoHandler); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	// embed depends on tokenize, still missing.
	result = r.ValidateDependencies()
	if len(result.MissingDependencies) != 1 || result.MissingDependencies[0].DependsOn != domain.PrimitiveTokenize {
		t.Fatalf("expected tokenize missing, got %+v", result.MissingDependencies)
	}

	if err := r.Register(domain.PrimitiveTokenize, echoHandler); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	result = r.ValidateDependencies()
	if !result.Valid || len(result.CircularDependencies) != 0 {
		t.Fatalf("expected valid result, got %+v", result)
	}
}

func TestInitializationOrderRespectsDependencies(t *testing.T) {
	r := newTestRegistry(t, nil)
	for _, id := range domain.AllPrimitives() {
		if err := r.Register(id, echoHandler); err != nil {
			t.Fatalf("register %q failed: %v", id, err)
		}
	}

	order := r.InitializationOrder()
	if len(order) != 19 {
		t.Fatalf("expected all 19 primitives in order, got %d", len(order))
	}

	index := make(map[domain.PrimitiveID]int, len(order))
	for i, id := range order {
		index[id] = i
	}
	for _, id := range order {
		for _, dep := range domain.DependenciesOf(id) {
			if index[dep] >= index[id] {
				t.Fatalf("%q (index %d) precedes its dependency %q (index %d)", id, index[id], dep, index[dep])
			}
		}
	}
}

func TestInitializationOrderSkipsUnregisteredDeps(t *testing.T) {
	r := newTestRegistry(t, nil)
	// cascade depends on route and adapt; register only cascade and route.
	if err := r.Register(domain.PrimitiveCascade, echoHandler); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if err := r.Register(domain.PrimitiveRoute, echoHandler); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	order := r.InitializationOrder()
	if len(order) != 2 {
		t.Fatalf("expected 2 entries, got %v", order)
	}
	if order[0] != domain.PrimitiveRoute || order[1] != domain.PrimitiveCascade {
		t.Fatalf("expected route before cascade, got %v", order)
	}
}

func TestDetectCircularDepsReportsPerRoot(t *testing.T) {
	// Injected cyclic graph: attend -> recall -> attend, reachable from plan.
	cyclic := map[domain.PrimitiveID][]domain.PrimitiveID{
		domain.PrimitiveAttend: {domain.PrimitiveRecall},
		domain.PrimitiveRecall: {domain.PrimitiveAttend},
		domain.PrimitivePlan:   {domain.PrimitiveAttend},
	}
	r := New(domain.DefaultRegistryConfig(), nil, WithDependencyGraph(cyclic))
	for _, id := range []domain.PrimitiveID{domain.PrimitiveAttend, domain.PrimitiveRecall, domain.PrimitivePlan} {
		if err := r.Register(id, echoHandler); err != nil {
			t.Fatalf("register %q failed: %v", id, err)
		}
	}

	cycles := r.DetectCircularDeps()
	// The same cycle is reported once per root that reaches it: attend,
	// recall, and plan all reach it.
	if len(cycles) != 3 {
		t.Fatalf("expected 3 cycle reports (one per root), got %d: %v", len(cycles), cycles)
	}
	for _, cycle := range cycles {
		if len(cycle) < 3 {
			t.Fatalf("cycle too short: %v", cycle)
		}
		if cycle[0] != cycle[len(cycle)-1] {
			t.Fatalf("expected cycle to close on its first node: %v", cycle)
		}
	}

	result := r.ValidateDependencies()
	if result.Valid {
		t.Fatal("expected cyclic graph to fail validation")
	}
}

func TestLayerStatsAndStats(t *testing.T) {
	r := newTestRegistry(t, nil)
	if err := r.Register(domain.PrimitiveTokenize, echoHandler); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if err := r.Register(domain.PrimitiveEmbed, echoHandler); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if err := r.Register(domain.PrimitiveRoute, echoHandler); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if _, err := r.Call(context.Background(), domain.PrimitiveEmbed, "x"); err != nil {
		t.Fatalf("call failed: %v", err)
	}

	layers := r.LayerStats()
	if len(layers) != domain.NumLayers {
		t.Fatalf("expected %d layer entries, got %d", domain.NumLayers, len(layers))
	}
	if layers[domain.LayerSubstrate].Registered != 2 || layers[domain.LayerSubstrate].Calls != 1 {
		t.Fatalf("unexpected substrate stats %+v", layers[domain.LayerSubstrate])
	}
	if layers[domain.LayerRoute].Registered != 1 {
		t.Fatalf("unexpected route stats %+v", layers[domain.LayerRoute])
	}

	stats := r.Stats()
	if stats.Registered != 3 || stats.TotalCalls != 1 || stats.ActiveCalls != 0 || stats.HistorySize != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestCallAs(t *testing.T) {
	r := newTestRegistry(t, nil)
	if err := r.Register(domain.PrimitiveTokenize, func(ctx context.Context, input interface{}) (interface{}, error) {
		return []string{"a", "b"}, nil
	}); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	tokens, err := CallAs[[]string](context.Background(), r, domain.PrimitiveTokenize, "a b")
	if err != nil {
		t.Fatalf("CallAs failed: %v", err)
	}
	if len(tokens) != 2 {
		t.Fatalf("unexpected tokens %v", tokens)
	}

	if _, err := CallAs[int](context.Background(), r, domain.PrimitiveTokenize, "a b"); err == nil {
		t.Fatal("expected type assertion failure")
	}
}
