package cortex

import (
	"context"
	"strings"
	"testing"
)

func TestSystemEndToEnd(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Logging.Level = "error"

	sys, err := NewSystem(cfg)
	if err != nil {
		t.Fatalf("failed to assemble system: %v", err)
	}
	defer sys.Close()

	err = sys.Registry().Register(PrimitiveTokenize, func(ctx context.Context, input interface{}) (interface{}, error) {
		return strings.Fields(input.(string)), nil
	})
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}

	tokens, err := CallAs[[]string](context.Background(), sys.Registry(), PrimitiveTokenize, "route the request")
	if err != nil {
		t.Fatalf("call failed: %v", err)
	}
	if len(tokens) != 3 {
		t.Fatalf("expected 3 tokens, got %v", tokens)
	}

	confidence := 0.95
	decision, err := sys.Cascade(CascadeRequest{Task: "classify", Confidence: &confidence})
	if err != nil {
		t.Fatalf("cascade failed: %v", err)
	}
	if decision.Tier.ID != "tier_fast" {
		t.Fatalf("expected tier_fast, got %q", decision.Tier.ID)
	}
	sys.RecordOutcome(decision.ID, Outcome{Success: true, Quality: 0.9})
}

func TestStandaloneRegistryAndRouter(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	registry := NewRegistry(RegistryConfig{AutoStart: true, MaxConcurrency: 2, HistorySize: 10}, bus)
	if err := registry.Register("simulate", nil); !IsCode(err, CodeUnknownPrimitive) {
		t.Fatalf("expected UNKNOWN_PRIMITIVE, got %v", err)
	}

	router := NewRouter(DefaultRouterConfig(), bus)
	if len(router.Tiers()) != 3 {
		t.Fatalf("expected default tiers, got %d", len(router.Tiers()))
	}
	if !router.Config().DepthAwareRouting {
		t.Fatal("expected depth-aware routing on by default")
	}

	if len(AllPrimitives()) != 19 {
		t.Fatalf("expected 19 primitives, got %d", len(AllPrimitives()))
	}

	layers := registry.LayerStats()
	if len(layers) != 6 {
		t.Fatalf("expected 6 layer entries, got %d", len(layers))
	}
	for _, layer := range layers {
		if layer.Name == "" {
			t.Fatalf("expected layer name set, got %+v", layer)
		}
	}
}
