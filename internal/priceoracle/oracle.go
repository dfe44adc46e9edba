// Package priceoracle implements C1 PriceOracle: USD price lookup for
// recognized base tokens and arbitrary tokens, per spec.md §4.6. It wraps
// internal/aggregator behind a 30s TTL read-through cache, mirroring the
// mutex-guarded per-key cache idiom internal/pricer's decimals cache also
// uses (grounded on rnts08-eth-watchtower's RPCState).
package priceoracle

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/daisy9542/meme-alert-bot/internal/aggregator"
	"github.com/daisy9542/meme-alert-bot/internal/domain"
)

const cacheTTL = 30 * time.Second

type cacheKey struct {
	chain domain.Chain
	token common.Address
}

type cacheEntry struct {
	usd     float64
	expires time.Time
}

// pairSource is the minimal aggregator call the oracle depends on, letting
// tests supply a fake without an HTTP round trip.
type pairSource interface {
	TokenPairs(ctx context.Context, token string) ([]aggregator.Pair, error)
}

// Oracle sources USD prices for tokens, per spec.md §4.6.
type Oracle struct {
	agg pairSource

	mu    sync.RWMutex
	cache map[cacheKey]cacheEntry
}

// New builds an Oracle over an aggregator client.
func New(agg pairSource) *Oracle {
	return &Oracle{
		agg:   agg,
		cache: make(map[cacheKey]cacheEntry),
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

func (o *Oracle) cached(key cacheKey) (float64, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	entry, ok := o.cache[key]
	if !ok || time.Now().After(entry.expires) {
		return 0, false
	}
	return entry.usd, true
}

func (o *Oracle) store(key cacheKey, usd float64) {
	o.mu.Lock()
	o.cache[key] = cacheEntry{usd: usd, expires: time.Now().Add(cacheTTL)}
	o.mu.Unlock()
}

// bestPairPrice queries the aggregator for token, filters to pools on the
// correct chain, and returns the price from the pool with the highest
// reported USD liquidity, per spec.md §4.6.
func (o *Oracle) bestPairPrice(ctx context.Context, chain domain.Chain, token common.Address) (float64, bool) {
	pairs, err := o.agg.TokenPairs(ctx, token.Hex())
	if err != nil {
		return 0, false
	}
	slug := chainSlug(chain)
	var best aggregator.Pair
	found := false
	for _, p := range pairs {
		if !strings.EqualFold(p.ChainID, slug) {
			continue
		}
		if !found || p.LiquidityUSD > best.LiquidityUSD {
			best = p
			found = true
		}
	}
	if !found || best.PriceUSD <= 0 {
		return 0, false
	}
	return best.PriceUSD, true
}

// stableFallback returns 1.00 for recognized stablecoin base tokens
// (USDT/USDC/BUSD/DAI), used when the aggregator is unavailable.
func stableFallback(chain domain.Chain, token common.Address) (float64, bool) {
	bt, ok := domain.LookupBaseToken(chain, token)
	if !ok || !bt.Stable {
		return 0, false
	}
	return 1.0, true
}

// GetBaseTokenUSD implements getBaseTokenUsd(chain, token): aggregator
// first, stablecoin fallback second, cached with a 30s TTL.
func (o *Oracle) GetBaseTokenUSD(ctx context.Context, chain domain.Chain, token common.Address) (float64, bool) {
	key := cacheKey{chain: chain, token: token}
	if usd, ok := o.cached(key); ok {
		return usd, true
	}

	if usd, ok := o.bestPairPrice(ctx, chain, token); ok {
		o.store(key, usd)
		return usd, true
	}
	if usd, ok := stableFallback(chain, token); ok {
		o.store(key, usd)
		return usd, true
	}
	return 0, false
}

// FetchTokenUSD implements fetchTokenUsd(chain, token): like
// GetBaseTokenUSD but returns none for non-base tokens when the aggregator
// has no entry, rather than falling back to a stablecoin assumption.
func (o *Oracle) FetchTokenUSD(ctx context.Context, chain domain.Chain, token common.Address) (float64, bool) {
	key := cacheKey{chain: chain, token: token}
	if usd, ok := o.cached(key); ok {
		return usd, true
	}
	if usd, ok := o.bestPairPrice(ctx, chain, token); ok {
		o.store(key, usd)
		return usd, true
	}
	if usd, ok := stableFallback(chain, token); ok {
		o.store(key, usd)
		return usd, true
	}
	return 0, false
}
