package dispatcher

import (
	"sort"
	"sync"

	"github.com/NeuralTrust/TrustSentinel/pkg/domain/countermeasure"
)

// health remembers which countermeasure kinds failed on their last
// enforcer invocation.
type health struct {
	mu      sync.RWMutex
	failing map[countermeasure.Kind]struct{}
}

func newHealth() *health {
	return &health{failing: make(map[countermeasure.Kind]struct{})}
}

func (h *health) failure(kind countermeasure.Kind) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failing[kind] = struct{}{}
}

func (h *health) success(kind countermeasure.Kind) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.failing, kind)
}

func (h *health) degraded() []countermeasure.Kind {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]countermeasure.Kind, 0, len(h.failing))
	for kind := range h.failing {
		out = append(out, kind)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
