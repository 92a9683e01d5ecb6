package kernel

import (
	"fmt"
	"testing"

	domain "github.com/cortexos/cortex-go/internal/domain/kernel"
)

func TestHistoryAppendWithinCapacity(t *testing.T) {
	h := NewCallHistory(4)
	for i := 0; i < 3; i++ {
		h.Append(domain.CallRecord{CallID: fmt.Sprintf("c-%d", i)})
	}

	if h.Len() != 3 || h.Capacity() != 4 {
		t.Fatalf("len=%d cap=%d, expected 3/4", h.Len(), h.Capacity())
	}

	records := h.Records()
	for i, rec := range records {
		if rec.CallID != fmt.Sprintf("c-%d", i) {
			t.Fatalf("record %d = %q, expected c-%d", i, rec.CallID, i)
		}
	}
}

func TestHistoryEvictsOldest(t *testing.T) {
	h := NewCallHistory(3)
	for i := 0; i < 5; i++ {
		h.Append(domain.CallRecord{CallID: fmt.Sprintf("c-%d", i)})
	}

	if h.Len() != 3 {
		t.Fatalf("expected len 3 after overflow, got %d", h.Len())
	}

	records := h.Records()
	expected := []string{"c-2", "c-3", "c-4"}
	for i, want := range expected {
		if records[i].CallID != want {
			t.Fatalf("record %d = %q, expected %q", i, records[i].CallID, want)
		}
	}
}

func TestHistoryDefaultCapacity(t *testing.T) {
	h := NewCallHistory(0)
	if h.Capacity() != 1000 {
		t.Fatalf("expected default capacity 1000, got %d", h.Capacity())
	}
}
