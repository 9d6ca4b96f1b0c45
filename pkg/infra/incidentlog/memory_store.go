package incidentlog

import (
	"context"
	"sync"

	"github.com/NeuralTrust/TrustSentinel/pkg/domain/incident"
)

const StoreMemory = "memory"

// ring keeps the newest records up to a fixed capacity.
type ring struct {
	mu      sync.RWMutex
	records []incident.Record
	next    int
	full    bool
}

func newRing(capacity int) *ring {
	if capacity <= 0 {
		capacity = 1
	}
	return &ring{records: make([]incident.Record, capacity)}
}

func (r *ring) push(record incident.Record) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[r.next] = record
	r.next = (r.next + 1) % len(r.records)
	if r.next == 0 {
		r.full = true
	}
}

// newest returns up to n records, newest first.
func (r *ring) newest(n int) []incident.Record {
	r.mu.RLock()
	defer r.mu.RUnlock()
	size := r.next
	if r.full {
		size = len(r.records)
	}
	if n <= 0 || n > size {
		n = size
	}
	out := make([]incident.Record, 0, n)
	for i := 1; i <= n; i++ {
		idx := (r.next - i + len(r.records)) % len(r.records)
		out = append(out, r.records[idx])
	}
	return out
}

// MemoryStore is a bounded in-process store. Nothing survives a restart.
type MemoryStore struct {
	ring *ring
}

func NewMemoryStore(capacity int) *MemoryStore {
	return &MemoryStore{ring: newRing(capacity)}
}

func (s *MemoryStore) Append(_ context.Context, record incident.Record) error {
	s.ring.push(record)
	return nil
}

func (s *MemoryStore) Recent(_ context.Context, n int) ([]incident.Record, error) {
	return s.ring.newest(n), nil
}
