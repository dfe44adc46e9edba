// Package window implements C5 WindowStore: per-market sliding trade-event
// windows with 1-minute and 10-minute aggregates, per spec.md §4.4. Sharded
// per market key with its own mutex, following spec.md §5's "per-entry
// granularity to avoid cross-market contention" rule — the same sharding
// shape the teacher applies per-RPC-endpoint in its RPCState slice.
package window

import (
	"sync"
	"time"

	"github.com/daisy9542/meme-alert-bot/internal/domain"
	"github.com/daisy9542/meme-alert-bot/internal/metrics"
)

const (
	oneMinute        = time.Minute
	tenMinutes       = 10 * time.Minute
	pruneEveryAppend = 128
	idleDropDefault  = 2 * time.Hour
)

type marketWindow struct {
	mu             sync.Mutex
	events         []domain.TradeEvent
	appendsSincePrune int
	lastActivity   time.Time
}

// Aggregate is a one/ten-minute rollup over a market's trade window.
type Aggregate struct {
	TotalUSD     float64
	BuyUSD       float64
	BuyTxs       int
	UniqueBuyers int
}

// Store holds every market's sliding window.
type Store struct {
	mu       sync.RWMutex
	windows  map[domain.MarketKey]*marketWindow
	idleDrop time.Duration
	metrics  *metrics.Metrics
}

// New builds an empty Store with the default 2h idle-eviction TTL.
func New(m *metrics.Metrics) *Store {
	return &Store{
		windows:  make(map[domain.MarketKey]*marketWindow),
		idleDrop: idleDropDefault,
		metrics:  m,
	}
}

func (s *Store) windowFor(key domain.MarketKey) *marketWindow {
	s.mu.RLock()
	w, ok := s.windows[key]
	s.mu.RUnlock()
	if ok {
		return w
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if w, ok := s.windows[key]; ok {
		return w
	}
	w = &marketWindow{lastActivity: time.Now()}
	s.windows[key] = w
	return w
}

// Record appends a trade event to a market's window, pruning eagerly every
// 128 appends per spec.md §4.4.
func (s *Store) Record(key domain.MarketKey, ev domain.TradeEvent) {
	w := s.windowFor(key)
	w.mu.Lock()
	defer w.mu.Unlock()

	w.events = append(w.events, ev)
	w.lastActivity = ev.Timestamp
	w.appendsSincePrune++
	if w.appendsSincePrune >= pruneEveryAppend {
		w.pruneLocked(time.Now())
	}
	if s.metrics != nil {
		s.metrics.TradesProcessed.WithLabelValues(key.Chain.String()).Inc()
	}
}

// pruneLocked drops events older than the 10-minute retention horizon.
// Caller must hold w.mu.
func (w *marketWindow) pruneLocked(now time.Time) {
	cutoff := now.Add(-tenMinutes)
	i := 0
	for i < len(w.events) && w.events[i].Timestamp.Before(cutoff) {
		i++
	}
	if i > 0 {
		w.events = append([]domain.TradeEvent(nil), w.events[i:]...)
	}
	w.appendsSincePrune = 0
}

// aggregateSince walks the tail backward, per spec.md §4.4, accumulating
// stats for events at or after cutoff. Caller must hold w.mu.
func aggregateSince(events []domain.TradeEvent, cutoff time.Time) Aggregate {
	var agg Aggregate
	buyers := make(map[string]struct{})
	for i := len(events) - 1; i >= 0; i-- {
		ev := events[i]
		if ev.Timestamp.Before(cutoff) {
			break
		}
		agg.TotalUSD += ev.USDValue
		if ev.IsBuy {
			agg.BuyUSD += ev.USDValue
			agg.BuyTxs++
			buyers[ev.Buyer.Hex()] = struct{}{}
		}
	}
	agg.UniqueBuyers = len(buyers)
	return agg
}

// OneMinute returns the 1-minute aggregate ending at now.
func (s *Store) OneMinute(key domain.MarketKey, now time.Time) Aggregate {
	w := s.windowFor(key)
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pruneLocked(now)
	return aggregateSince(w.events, now.Add(-oneMinute))
}

// TenMinutesTotal returns the total USD volume over the 10-minute window.
func (s *Store) TenMinutesTotal(key domain.MarketKey, now time.Time) float64 {
	w := s.windowFor(key)
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pruneLocked(now)
	return aggregateSince(w.events, now.Add(-tenMinutes)).TotalUSD
}

// BaselineAvgPerMin implements baselineAvgPerMin(now) = max(0, total10m -
// total1m) / 9, per spec.md §4.4.
func (s *Store) BaselineAvgPerMin(key domain.MarketKey, now time.Time) float64 {
	w := s.windowFor(key)
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pruneLocked(now)
	total10m := aggregateSince(w.events, now.Add(-tenMinutes)).TotalUSD
	total1m := aggregateSince(w.events, now.Add(-oneMinute)).TotalUSD
	diff := total10m - total1m
	if diff < 0 {
		diff = 0
	}
	return diff / 9
}

// SweepIdle evicts markets with no activity for idleDropMs, per spec.md
// §4.4. Returns the number evicted.
func (s *Store) SweepIdle(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	evicted := 0
	for key, w := range s.windows {
		w.mu.Lock()
		idle := now.Sub(w.lastActivity) > s.idleDrop
		w.mu.Unlock()
		if idle {
			delete(s.windows, key)
			evicted++
		}
	}
	return evicted
}
