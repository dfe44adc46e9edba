package ingress

import (
	"sync"
	"time"

	"github.com/daisy9542/meme-alert-bot/internal/metrics"
)

// Dedup suppresses re-admission of a trending candidate seen within the
// last ttl, per spec.md §3's "Dedup set for trending candidates: key→expiry,
// TTL = 5 min." Swept lazily on insert rather than through a background
// goroutine, matching the "no background task where a cheap inline check
// suffices" texture of the teacher's RPCState.TrippedUntil.
type Dedup struct {
	mu      sync.Mutex
	seen    map[string]time.Time
	ttl     time.Duration
	metrics *metrics.Metrics
}

// NewDedup builds a Dedup with the given TTL.
func NewDedup(ttl time.Duration, m *metrics.Metrics) *Dedup {
	return &Dedup{seen: make(map[string]time.Time), ttl: ttl, metrics: m}
}

// Seen reports whether key was already registered within the TTL window. If
// not, it registers key with a fresh expiry and returns false.
func (d *Dedup) Seen(key string, now time.Time) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if expires, ok := d.seen[key]; ok && now.Before(expires) {
		if d.metrics != nil {
			d.metrics.DedupHits.Inc()
		}
		return true
	}

	for k, expires := range d.seen {
		if !now.Before(expires) {
			delete(d.seen, k)
		}
	}

	d.seen[key] = now.Add(d.ttl)
	return false
}
