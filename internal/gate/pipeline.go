// Package gate implements C10 Gate Pipeline: it turns an Ingress Candidate
// into a Watchlist admission decision by running SafetyProbes, then starts
// (or, under slot pressure, defers) the resulting market's MarketSubscriber,
// per spec.md §4.1 and §4.2. Structurally this is the same
// insert-then-check-then-act sequence rnts08-eth-watchtower's main loop runs
// per discovered contract, split out into its own collaborator since here
// the check itself (SafetyProbes) is a whole package of its own.
package gate

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/daisy9542/meme-alert-bot/internal/aggregator"
	"github.com/daisy9542/meme-alert-bot/internal/domain"
	"github.com/daisy9542/meme-alert-bot/internal/ingress"
	"github.com/daisy9542/meme-alert-bot/internal/logging"
	"github.com/daisy9542/meme-alert-bot/internal/metrics"
	"github.com/daisy9542/meme-alert-bot/internal/safety"
	"github.com/daisy9542/meme-alert-bot/internal/subscriber"
	"github.com/daisy9542/meme-alert-bot/internal/watchlist"
)

// PairLookup is the single aggregator call the Pipeline needs when a
// candidate arrives without its own liquidity hint, narrowed for testability.
type PairLookup interface {
	Pair(ctx context.Context, chainSlug, pairAddr string) (aggregator.Pair, bool, error)
}

// ChainResources bundles the collaborators the Pipeline needs per chain: a
// SafetyProbes Checker wired to that chain's RPC reader, and the
// MarketSubscriber dependencies it starts a market with on admission.
type ChainResources struct {
	Checker *safety.Checker
	SubDeps subscriber.Deps
}

// Pipeline is C10: candidate in, Watchlist transition and (if a slot is
// available) a running MarketSubscriber out.
type Pipeline struct {
	resources map[domain.Chain]ChainResources
	watchlist *watchlist.Watchlist
	slots     *ingress.SlotBudget
	agg       PairLookup
	minLiqUSD float64
	maxTaxPct float64
	metrics   *metrics.Metrics
	log       *logging.Logger

	mu      sync.Mutex
	running map[domain.MarketKey]*subscriber.Subscriber
	waiting map[domain.MarketKey]domain.Market
}

// New builds a Pipeline. resources must carry an entry for every chain
// candidates can arrive on.
func New(resources map[domain.Chain]ChainResources, wl *watchlist.Watchlist, slots *ingress.SlotBudget, agg PairLookup, minLiqUSD, maxTaxPct float64, m *metrics.Metrics, log *logging.Logger) *Pipeline {
	return &Pipeline{
		resources: resources,
		watchlist: wl,
		slots:     slots,
		agg:       agg,
		minLiqUSD: minLiqUSD,
		maxTaxPct: maxTaxPct,
		metrics:   m,
		log:       log,
		running:   make(map[domain.MarketKey]*subscriber.Subscriber),
		waiting:   make(map[domain.MarketKey]domain.Market),
	}
}

func chainSlug(chain domain.Chain) string {
	switch chain {
	case domain.ChainBSC:
		return "bsc"
	case domain.ChainETH:
		return "ethereum"
	default:
		return ""
	}
}

// baseTokenHint picks whichever side of the pool is a recognized base
// token, for the Watchlist's BaseTokenHint field. Returns the zero address
// if neither side is recognized.
func baseTokenHint(chain domain.Chain, token0, token1 common.Address) common.Address {
	if domain.IsBaseToken(chain, token0) {
		return token0
	}
	if domain.IsBaseToken(chain, token1) {
		return token1
	}
	return common.Address{}
}

// Admit runs one candidate through Insert -> SafetyProbes -> Activate/Reject
// -> (subscribe or defer). It is safe to call concurrently and from
// multiple ingress sources for the same candidate: Watchlist.Insert's
// idempotency means a duplicate arrival is a silent no-op.
func (p *Pipeline) Admit(ctx context.Context, cand domain.Candidate) {
	res, ok := p.resources[cand.Key.Chain]
	if !ok {
		if p.log != nil {
			p.log.Printf("gate: no resources wired for chain %s, dropping %s", cand.Key.Chain, cand.Key)
		}
		return
	}

	if _, inserted := p.watchlist.Insert(cand.Key, cand.Token0, cand.Token1, cand.Fee); !inserted {
		return
	}

	in := safety.Input{
		Chain:           cand.Key.Chain,
		Type:            cand.Key.Type,
		Address:         cand.Key.Address,
		Token0:          cand.Token0,
		Token1:          cand.Token1,
		Fee:             cand.Fee,
		AggLiquidityUSD: p.resolveAggLiquidity(ctx, cand),
		MinLiqUSD:       p.minLiqUSD,
		MaxTaxPct:       p.maxTaxPct,
	}

	result := res.Checker.Admit(ctx, in)
	if !result.Pass {
		p.watchlist.Reject(cand.Key, result.Reason)
		if p.log != nil {
			p.log.Printf("gate rejected %s: %s", cand.Key, result.Reason)
		}
		return
	}

	hint := baseTokenHint(cand.Key.Chain, cand.Token0, cand.Token1)
	if !p.watchlist.Activate(cand.Key, result.LiquidityUSD, hint) {
		return
	}
	p.startOrDefer(ctx, cand.Key, res)
}

// resolveAggLiquidity prefers the candidate's own hint (trending candidates
// already carry the aggregator's reported liquidity); factory candidates
// have none, so it falls back to a fresh single-pair lookup, per spec.md
// §4.1's "the aggregator's reported figure" fallback used throughout §4.2.
func (p *Pipeline) resolveAggLiquidity(ctx context.Context, cand domain.Candidate) float64 {
	if cand.LiquidityUSDHint > 0 {
		return cand.LiquidityUSDHint
	}
	if p.agg == nil {
		return 0
	}
	slug := chainSlug(cand.Key.Chain)
	if slug == "" {
		return 0
	}
	pair, found, err := p.agg.Pair(ctx, slug, cand.Key.Address.Hex())
	if err != nil || !found {
		return 0
	}
	return pair.LiquidityUSD
}

// startOrDefer implements spec.md §4.1's slot budget: when a slot is free
// the MarketSubscriber starts immediately; otherwise the market stays
// active in the Watchlist, unsubscribed, and is retried by RetryPending
// once a slot frees.
func (p *Pipeline) startOrDefer(ctx context.Context, key domain.MarketKey, res ChainResources) {
	mkt, ok := p.watchlist.Get(key)
	if !ok {
		return
	}

	if !p.slots.TryAcquire() {
		p.mu.Lock()
		p.waiting[key] = mkt.Clone()
		p.mu.Unlock()
		if p.log != nil {
			p.log.Printf("market %s activated but slot budget exhausted, deferring subscription", key)
		}
		return
	}

	sub, err := subscriber.Start(ctx, res.SubDeps, mkt.Clone())
	if err != nil {
		p.slots.Release()
		if p.log != nil {
			p.log.Printf("market %s subscription failed: %v", key, err)
		}
		return
	}

	p.mu.Lock()
	p.running[key] = sub
	p.mu.Unlock()
}

// RetryPending attempts to start subscriptions for markets that were
// activated but deferred for lack of a slot, per spec.md §4.1's "remains
// admissible if a slot frees later." Callers drive this from a periodic
// tick alongside Watchlist.SweepIdle.
func (p *Pipeline) RetryPending(ctx context.Context) {
	p.mu.Lock()
	keys := make([]domain.MarketKey, 0, len(p.waiting))
	for k := range p.waiting {
		keys = append(keys, k)
	}
	p.mu.Unlock()

	for _, key := range keys {
		res, ok := p.resources[key.Chain]
		if !ok {
			continue
		}
		if !p.slots.TryAcquire() {
			return
		}

		p.mu.Lock()
		mkt, stillWaiting := p.waiting[key]
		if stillWaiting {
			delete(p.waiting, key)
		}
		p.mu.Unlock()
		if !stillWaiting {
			p.slots.Release()
			continue
		}

		sub, err := subscriber.Start(ctx, res.SubDeps, mkt)
		if err != nil {
			p.slots.Release()
			if p.log != nil {
				p.log.Printf("deferred market %s subscription failed: %v", key, err)
			}
			continue
		}
		p.mu.Lock()
		p.running[key] = sub
		p.mu.Unlock()
	}
}

// Stop tears down a market's running subscription, if any, and releases its
// slot. Safe to call for a market that was never subscribed (e.g. still
// waiting, or rejected).
func (p *Pipeline) Stop(key domain.MarketKey) {
	p.mu.Lock()
	sub, running := p.running[key]
	if running {
		delete(p.running, key)
	}
	delete(p.waiting, key)
	p.mu.Unlock()

	if running {
		sub.Stop()
		p.slots.Release()
	}
}

// Running reports how many markets currently have a live subscription.
func (p *Pipeline) Running() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.running)
}

// Waiting reports how many activated markets are deferred on the slot
// budget.
func (p *Pipeline) Waiting() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.waiting)
}
