// Package watchlist implements C4 Watchlist: the per-market lifecycle
// registry (pending/active/rejected) with metadata, per spec.md §3 and §4.
// Structurally this is rnts08-eth-watchtower's `tracked
// map[string]*ContractState` behind `sync.RWMutex`, generalized from a flat
// per-contract map to markets carrying a status machine and idle-sweep
// bookkeeping.
package watchlist

import (
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/daisy9542/meme-alert-bot/internal/domain"
	"github.com/daisy9542/meme-alert-bot/internal/logging"
	"github.com/daisy9542/meme-alert-bot/internal/metrics"
)

const (
	activeIdleTTL    = 24 * time.Hour
	nonActiveIdleTTL = 1 * time.Hour
)

// Watchlist is the exclusive owner of Market state. Callers elsewhere only
// look markets up; only the Watchlist mutates them.
type Watchlist struct {
	mu       sync.RWMutex
	entries  map[domain.MarketKey]*domain.Market
	log      *logging.Logger
	metrics  *metrics.Metrics
}

// New builds an empty Watchlist.
func New(log *logging.Logger, m *metrics.Metrics) *Watchlist {
	return &Watchlist{
		entries: make(map[domain.MarketKey]*domain.Market),
		log:     log,
		metrics: m,
	}
}

// Insert registers a market as pending if it is not already tracked.
// Idempotent: re-insertion of an already-tracked key is a no-op, per
// spec.md §3's "once rejected, terminal" / "once active, no further
// transitions" invariants — Insert never demotes an existing entry.
func (w *Watchlist) Insert(key domain.MarketKey, token0, token1 common.Address, fee *uint32) (*domain.Market, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if existing, ok := w.entries[key]; ok {
		return existing, false
	}

	now := time.Now()
	mkt := &domain.Market{
		Key:         key,
		Token0:      token0,
		Token1:      token1,
		Fee:         fee,
		FirstSeen:   now,
		LastUpdated: now,
		Status:      domain.StatusPending,
	}
	w.entries[key] = mkt
	w.bumpGauges()
	return mkt, true
}

// Get looks up a market by key and returns a copy of its current entry.
func (w *Watchlist) Get(key domain.MarketKey) (*domain.Market, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	mkt, ok := w.entries[key]
	if !ok {
		return nil, false
	}
	c := mkt.Clone()
	return &c, true
}

// Activate transitions a pending market to active. No-op if the market is
// already active or terminal (rejected).
func (w *Watchlist) Activate(key domain.MarketKey, liquidityUSD float64, baseTokenHint common.Address) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	mkt, ok := w.entries[key]
	if !ok || mkt.Status != domain.StatusPending {
		return false
	}
	mkt.Status = domain.StatusActive
	mkt.LiquidityUSD = liquidityUSD
	mkt.BaseTokenHint = baseTokenHint
	mkt.LastUpdated = time.Now()
	w.bumpGauges()
	return true
}

// Reject transitions a pending market to the terminal rejected status with
// a machine-readable reason.
func (w *Watchlist) Reject(key domain.MarketKey, reason string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	mkt, ok := w.entries[key]
	if !ok || mkt.Status != domain.StatusPending {
		return false
	}
	mkt.Status = domain.StatusRejected
	mkt.Reason = reason
	mkt.LastUpdated = time.Now()
	w.bumpGauges()
	if w.metrics != nil {
		w.metrics.GateRejections.WithLabelValues(mkt.Key.Chain.String(), reason).Inc()
	}
	return true
}

// Touch bumps LastUpdated and, for active markets, the last-observed
// liquidity/mint metadata — called from MarketSubscriber callbacks.
func (w *Watchlist) Touch(key domain.MarketKey, liquidityUSD, lastMintUSD float64) {
	w.mu.Lock()
	defer w.mu.Unlock()

	mkt, ok := w.entries[key]
	if !ok {
		return
	}
	mkt.LastUpdated = time.Now()
	if liquidityUSD > 0 {
		mkt.LiquidityUSD = liquidityUSD
	}
	if lastMintUSD > 0 {
		mkt.LastMintUSD = lastMintUSD
	}
}

// Active returns a snapshot of all active markets.
func (w *Watchlist) Active() []domain.Market {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]domain.Market, 0, len(w.entries))
	for _, mkt := range w.entries {
		if mkt.Status == domain.StatusActive {
			out = append(out, mkt.Clone())
		}
	}
	return out
}

// SweepIdle evicts markets past their idle TTL: 24h for active, 1h for
// pending/rejected, per spec.md §3's lifecycle summary. onEvict, if
// non-nil, is called for each evicted key after the entry is removed so the
// caller can honor that market's subscription stop handle and free its
// slot budget reservation, per spec.md §9's "slot reaper frees slots on
// idle eviction" resolution — the Watchlist owns lifecycle, not
// subscriptions, so it reports evictions rather than reaching into
// gate.Pipeline itself. Returns the number evicted.
func (w *Watchlist) SweepIdle(now time.Time, onEvict func(domain.MarketKey)) int {
	w.mu.Lock()
	var evictedKeys []domain.MarketKey
	for key, mkt := range w.entries {
		ttl := nonActiveIdleTTL
		if mkt.Status == domain.StatusActive {
			ttl = activeIdleTTL
		}
		if now.Sub(mkt.LastUpdated) > ttl {
			delete(w.entries, key)
			evictedKeys = append(evictedKeys, key)
		}
	}
	evicted := len(evictedKeys)
	if evicted > 0 {
		w.bumpGauges()
	}
	w.mu.Unlock()

	if onEvict != nil {
		for _, key := range evictedKeys {
			onEvict(key)
		}
	}
	return evicted
}

// LogSummary emits a teacher-style stats line summarizing lifecycle counts.
func (w *Watchlist) LogSummary() {
	w.mu.RLock()
	defer w.mu.RUnlock()

	var pending, active, rejected int
	for _, mkt := range w.entries {
		switch mkt.Status {
		case domain.StatusPending:
			pending++
		case domain.StatusActive:
			active++
		case domain.StatusRejected:
			rejected++
		}
	}
	if w.log != nil {
		w.log.Statsf("watchlist", "pending", pending, "active", active, "rejected", rejected, "total", len(w.entries))
	}
}

// bumpGauges refreshes the active/pending Prometheus gauges. Caller must
// already hold w.mu.
func (w *Watchlist) bumpGauges() {
	if w.metrics == nil {
		return
	}
	var pending, active float64
	for _, mkt := range w.entries {
		switch mkt.Status {
		case domain.StatusPending:
			pending++
		case domain.StatusActive:
			active++
		}
	}
	w.metrics.MarketsPending.Set(pending)
	w.metrics.MarketsActive.Set(active)
}
