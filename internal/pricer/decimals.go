package pricer

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/daisy9542/meme-alert-bot/internal/domain"
)

// decimalsSource is the minimal read call the decimals cache depends on,
// letting tests supply a fake without a chain client.
type decimalsSource interface {
	Decimals(ctx context.Context, token common.Address) (uint8, error)
}

type decimalsKey struct {
	chain domain.Chain
	token common.Address
}

// decimalsCache caches decimals per (chain, token) forever — decimals never
// change for a deployed token — falling back to 18 on lookup failure per
// spec.md §4.5. Grounded on the teacher's mutex-guarded per-key cache idiom
// (RPCState), generalized from a boolean trip flag to a cached value.
type decimalsCache struct {
	mu    sync.RWMutex
	cache map[decimalsKey]uint8
}

func newDecimalsCache() *decimalsCache {
	return &decimalsCache{cache: make(map[decimalsKey]uint8)}
}

func (c *decimalsCache) get(ctx context.Context, src decimalsSource, chain domain.Chain, token common.Address) uint8 {
	key := decimalsKey{chain: chain, token: token}

	c.mu.RLock()
	if d, ok := c.cache[key]; ok {
		c.mu.RUnlock()
		return d
	}
	c.mu.RUnlock()

	d, err := src.Decimals(ctx, token)
	if err != nil {
		d = 18
	}

	c.mu.Lock()
	c.cache[key] = d
	c.mu.Unlock()

	return d
}
