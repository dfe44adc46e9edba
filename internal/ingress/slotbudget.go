package ingress

import (
	"sync"

	"github.com/daisy9542/meme-alert-bot/internal/metrics"
)

// SlotBudget is the process-wide subscription slot counter that enforces
// MAX_ACTIVE_MARKETS, per spec.md §4.1. It is a small mutex-guarded counter
// checked before doing expensive work, never blocked on, the same texture
// as rnts08-eth-watchtower's RPCState circuit breaker gating connection
// attempts.
type SlotBudget struct {
	mu      sync.Mutex
	used    int
	max     int
	metrics *metrics.Metrics
}

// NewSlotBudget builds a SlotBudget capped at max slots.
func NewSlotBudget(max int, m *metrics.Metrics) *SlotBudget {
	return &SlotBudget{max: max, metrics: m}
}

// TryAcquire reserves one slot, returning false if the budget is exhausted.
func (b *SlotBudget) TryAcquire() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.used >= b.max {
		return false
	}
	b.used++
	if b.metrics != nil {
		b.metrics.SubscriptionSlotsUsed.Set(float64(b.used))
	}
	return true
}

// Release frees one previously acquired slot. Safe to call from the idle
// sweep or from Subscriber.Stop; a Release with no matching acquisition is a
// no-op rather than going negative.
func (b *SlotBudget) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.used > 0 {
		b.used--
	}
	if b.metrics != nil {
		b.metrics.SubscriptionSlotsUsed.Set(float64(b.used))
	}
}

// Used reports the current number of consumed slots.
func (b *SlotBudget) Used() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.used
}
