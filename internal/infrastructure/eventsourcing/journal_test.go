package eventsourcing

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/cortexos/cortex-go/internal/infrastructure/events"
	"github.com/cortexos/cortex-go/internal/shared"
)

func newTestJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := NewJournal(JournalConfig{DatabasePath: ":memory:"})
	if err != nil {
		t.Fatalf("failed to open journal: %v", err)
	}
	t.Cleanup(func() { j.Close() })
	return j
}

func TestRecordAndEntries(t *testing.T) {
	j := newTestJournal(t)
	ctx := context.Background()

	err := j.Record(ctx, shared.Event{
		Type:      shared.EventPrimitiveCalled,
		Timestamp: 100,
		Payload:   shared.PrimitiveCalledPayload{PrimitiveID: "plan", CallID: "c1"},
	})
	if err != nil {
		t.Fatalf("record failed: %v", err)
	}
	err = j.Record(ctx, shared.Event{
		Type:      shared.EventCallCompleted,
		Timestamp: 200,
		Payload:   shared.CallCompletedPayload{PrimitiveID: "plan", CallID: "c1", DurationMs: 12},
	})
	if err != nil {
		t.Fatalf("record failed: %v", err)
	}

	entries, err := j.Entries(ctx, Query{})
	if err != nil {
		t.Fatalf("entries failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Type != shared.EventPrimitiveCalled || entries[1].Type != shared.EventCallCompleted {
		t.Fatalf("expected timestamp order, got %q then %q", entries[0].Type, entries[1].Type)
	}

	var payload shared.CallCompletedPayload
	if err := json.Unmarshal(entries[1].Payload, &payload); err != nil {
		t.Fatalf("failed to decode payload: %v", err)
	}
	if payload.PrimitiveID != "plan" || payload.DurationMs != 12 {
		t.Fatalf("unexpected payload %+v", payload)
	}
}

func TestEntriesFiltering(t *testing.T) {
	j := newTestJournal(t)
	ctx := context.Background()

	for i := int64(1); i <= 5; i++ {
		eventType := shared.EventPrimitiveCalled
		if i%2 == 0 {
			eventType = shared.EventCallCompleted
		}
		err := j.Record(ctx, shared.Event{
			Type:      eventType,
			Timestamp: i * 100,
			Payload:   shared.PrimitiveCalledPayload{PrimitiveID: "plan"},
		})
		if err != nil {
			t.Fatalf("record %d failed: %v", i, err)
		}
	}

	entries, err := j.Entries(ctx, Query{EventTypes: []shared.EventType{shared.EventCallCompleted}})
	if err != nil {
		t.Fatalf("entries failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 completed entries, got %d", len(entries))
	}

	entries, err = j.Entries(ctx, Query{FromTimestamp: 200, ToTimestamp: 400})
	if err != nil {
		t.Fatalf("entries failed: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries in window, got %d", len(entries))
	}

	entries, err = j.Entries(ctx, Query{Limit: 2, Offset: 1})
	if err != nil {
		t.Fatalf("entries failed: %v", err)
	}
	if len(entries) != 2 || entries[0].Timestamp != 200 {
		t.Fatalf("unexpected page %+v", entries)
	}
}

func TestCounts(t *testing.T) {
	j := newTestJournal(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := j.Record(ctx, shared.Event{Type: shared.EventRouteDecided, Timestamp: shared.Now(), Payload: shared.RouteDecidedPayload{}}); err != nil {
			t.Fatalf("record failed: %v", err)
		}
	}
	if err := j.Record(ctx, shared.Event{Type: shared.EventRouteEscalated, Timestamp: shared.Now(), Payload: shared.RouteEscalatedPayload{}}); err != nil {
		t.Fatalf("record failed: %v", err)
	}

	count, err := j.Count(ctx)
	if err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 4 {
		t.Fatalf("expected 4 events, got %d", count)
	}

	byType, err := j.CountByType(ctx)
	if err != nil {
		t.Fatalf("countByType failed: %v", err)
	}
	if byType[shared.EventRouteDecided] != 3 || byType[shared.EventRouteEscalated] != 1 {
		t.Fatalf("unexpected counts %v", byType)
	}
}

func TestAttachJournalsBusEvents(t *testing.T) {
	j := newTestJournal(t)
	bus := events.New()
	defer bus.Close()

	j.Attach(bus)

	bus.Emit(shared.PrimitiveRegisteredPayload{PrimitiveID: "tokenize", Layer: 0})
	bus.Emit(shared.RouteDecidedPayload{DecisionID: "d1", TierID: "tier_fast", Confidence: 0.9})

	// On handlers run synchronously in Emit, so the rows are already there.
	count, err := j.Count(context.Background())
	if err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 journaled events, got %d", count)
	}

	entries, err := j.Entries(context.Background(), Query{EventTypes: []shared.EventType{shared.EventRouteDecided}})
	if err != nil {
		t.Fatalf("entries failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 route decision, got %d", len(entries))
	}
	var payload shared.RouteDecidedPayload
	if err := json.Unmarshal(entries[0].Payload, &payload); err != nil {
		t.Fatalf("failed to decode payload: %v", err)
	}
	if payload.DecisionID != "d1" || payload.TierID != "tier_fast" {
		t.Fatalf("unexpected payload %+v", payload)
	}
}

func TestClosedJournal(t *testing.T) {
	j, err := NewJournal(JournalConfig{DatabasePath: ":memory:"})
	if err != nil {
		t.Fatalf("failed to open journal: %v", err)
	}
	if err := j.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if err := j.Close(); err != nil {
		t.Fatalf("second close failed: %v", err)
	}

	ctx := context.Background()
	if err := j.Record(ctx, shared.Event{Type: shared.EventRouteDecided, Timestamp: time.Now().UnixMilli()}); !errors.Is(err, ErrJournalClosed) {
		t.Fatalf("expected ErrJournalClosed, got %v", err)
	}
	if _, err := j.Entries(ctx, Query{}); !errors.Is(err, ErrJournalClosed) {
		t.Fatalf("expected ErrJournalClosed, got %v", err)
	}
	if _, err := j.Count(ctx); !errors.Is(err, ErrJournalClosed) {
		t.Fatalf("expected ErrJournalClosed, got %v", err)
	}
}
