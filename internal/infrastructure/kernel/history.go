package kernel

import (
	"sync"

	domain "github.com/cortexos/cortex-go/internal/domain/kernel"
)

// CallHistory is a lock-protected, fixed-capacity ring buffer of call
// records. Once full, appending silently evicts the oldest record. History
// is observability only; nothing in the kernel reads it to gate behavior.
type CallHistory struct {
	mu      sync.Mutex
	records []domain.CallRecord
	head    int
	size    int
}

// NewCallHistory creates a history bounded to capacity records. A
// non-positive capacity falls back to the default of 1000.
func NewCallHistory(capacity int) *CallHistory {
	if capacity <= 0 {
		capacity = 1000
	}
	return &CallHistory{
		records: make([]domain.CallRecord, capacity),
	}
}

// Append adds a record, evicting the oldest when the buffer is full.
func (h *CallHistory) Append(record domain.CallRecord) {
	h.mu.Lock()
	defer h.mu.Unlock()

	tail := (h.head + h.size) % len(h.records)
	h.records[tail] = record
	if h.size < len(h.records) {
		h.size++
	} else {
		h.head = (h.head + 1) % len(h.records)
	}
}

// Records returns a copy of the history, oldest first.
func (h *CallHistory) Records() []domain.CallRecord {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]domain.CallRecord, h.size)
	for i := 0; i < h.size; i++ {
		out[i] = h.records[(h.head+i)%len(h.records)]
	}
	return out
}

// Len returns the number of retained records.
func (h *CallHistory) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.size
}

// Capacity returns the fixed capacity.
func (h *CallHistory) Capacity() int {
	return len(h.records)
}
