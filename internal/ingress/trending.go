package ingress

import (
	"context"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/daisy9542/meme-alert-bot/internal/aggregator"
	"github.com/daisy9542/meme-alert-bot/internal/domain"
	"github.com/daisy9542/meme-alert-bot/internal/logging"
	"github.com/daisy9542/meme-alert-bot/internal/metrics"
)

var hexAddrShape = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

// trendingSource is the minimal aggregator surface TrendingPoller depends
// on, letting tests supply a fake without an HTTP round trip, mirroring
// internal/priceoracle's pairSource narrowing of *aggregator.Client.
type trendingSource interface {
	Trending(ctx context.Context, chainSlug string, limit int) ([]aggregator.Pair, bool, error)
	TokenPairs(ctx context.Context, token string) ([]aggregator.Pair, error)
}

// TrendingConfig bundles a chain's trending-poll parameters, per spec.md
// §4.1 and §6.
type TrendingConfig struct {
	Chain      domain.Chain
	ChainSlug  string
	Interval   time.Duration
	TopK       int
	MinLiqUSD  float64
}

// dexFamilyAllowlist reports whether dexID belongs to the recognized DEX
// family for chain, per spec.md §4.1's "Pancake variants on BSC, Uniswap on
// ETH" rule.
func dexFamilyAllowlist(chain domain.Chain, dexID string) bool {
	d := strings.ToLower(dexID)
	if chain == domain.ChainBSC {
		return strings.Contains(d, "pancake")
	}
	return strings.Contains(d, "uniswap")
}

// inferMarketType infers v2/v3 from the aggregator's DEX-ID string: a "v3"
// substring means v3, per spec.md §4.1.
func inferMarketType(dexID string) domain.MarketType {
	if strings.Contains(strings.ToLower(dexID), "v3") {
		return domain.MarketV3
	}
	return domain.MarketV2
}

// TrendingPoller periodically queries the market aggregator's trending
// endpoint for one chain, generalizing rnts08-eth-watchtower's watchConfig
// ticker pattern (src/main.go:496) from file-mtime polling to HTTP polling.
type TrendingPoller struct {
	agg        trendingSource
	cfg        TrendingConfig
	dedup      *Dedup
	candidates chan<- domain.Candidate
	metrics    *metrics.Metrics
	log        *logging.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// StartTrendingPoller begins the ticker loop and returns a handle whose Stop
// tears it down.
func StartTrendingPoller(ctx context.Context, agg trendingSource, cfg TrendingConfig, dedup *Dedup, candidates chan<- domain.Candidate, m *metrics.Metrics, log *logging.Logger) *TrendingPoller {
	pollCtx, cancel := context.WithCancel(ctx)
	p := &TrendingPoller{agg: agg, cfg: cfg, dedup: dedup, candidates: candidates, metrics: m, log: log, cancel: cancel}
	p.wg.Add(1)
	go p.loop(pollCtx)
	return p
}

// Stop cancels the poll loop and waits for it to exit.
func (p *TrendingPoller) Stop() {
	p.cancel()
	p.wg.Wait()
}

func (p *TrendingPoller) loop(ctx context.Context) {
	defer p.wg.Done()
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.pollOnce(ctx)
		}
	}
}

func (p *TrendingPoller) pollOnce(ctx context.Context) {
	pairs, available, err := p.agg.Trending(ctx, p.cfg.ChainSlug, p.cfg.TopK)
	if err != nil {
		if p.log != nil {
			p.log.Printf("trending poll for %s failed: %v", p.cfg.Chain, err)
		}
		return
	}

	now := time.Now()
	if !available {
		p.synthesizeFromBaseTokens(ctx, now)
		return
	}
	for _, pair := range pairs {
		p.considerCandidate(pair, now)
	}
}

// synthesizeFromBaseTokens implements spec.md §6's fallback: when the
// aggregator has no dedicated trending endpoint, approximate it by querying
// the top pools of each recognized base token and running the same
// admission filter considerCandidate already applies to real trending pairs.
func (p *TrendingPoller) synthesizeFromBaseTokens(ctx context.Context, now time.Time) {
	for _, bt := range domain.BaseTokens(p.cfg.Chain) {
		if bt.Address == (common.Address{}) {
			continue
		}
		pairs, err := p.agg.TokenPairs(ctx, bt.Address.Hex())
		if err != nil {
			if p.log != nil {
				p.log.Printf("trending fallback: token-pairs for %s (%s) failed: %v", bt.Symbol, p.cfg.Chain, err)
			}
			continue
		}
		for _, pair := range pairs {
			p.considerCandidate(pair, now)
		}
	}
}

func (p *TrendingPoller) considerCandidate(pair aggregator.Pair, now time.Time) {
	if !dexFamilyAllowlist(p.cfg.Chain, pair.DexID) {
		return
	}
	if !hexAddrShape.MatchString(pair.PairAddress) || !hexAddrShape.MatchString(pair.BaseToken) || !hexAddrShape.MatchString(pair.QuoteToken) {
		return
	}
	if pair.LiquidityUSD < p.cfg.MinLiqUSD {
		return
	}
	token0 := common.HexToAddress(pair.BaseToken)
	token1 := common.HexToAddress(pair.QuoteToken)
	if !domain.IsBaseToken(p.cfg.Chain, token0) && !domain.IsBaseToken(p.cfg.Chain, token1) {
		return
	}

	dedupKey := p.cfg.ChainSlug + ":" + strings.ToLower(pair.PairAddress)
	if p.dedup.Seen(dedupKey, now) {
		return
	}

	typ := inferMarketType(pair.DexID)
	cand := domain.Candidate{
		Key:              domain.NewMarketKey(p.cfg.Chain, typ, common.HexToAddress(pair.PairAddress)),
		Token0:           token0,
		Token1:           token1,
		LiquidityUSDHint: pair.LiquidityUSD,
		Source:           "trending",
	}
	if typ == domain.MarketV3 && pair.FeeTier > 0 {
		fee := pair.FeeTier
		cand.Fee = &fee
	}

	if p.metrics != nil {
		p.metrics.CandidatesIngested.WithLabelValues(p.cfg.Chain.String(), "trending").Inc()
	}
	select {
	case p.candidates <- cand:
	default:
		if p.log != nil {
			p.log.Printf("trending candidate %s dropped: candidate channel full", cand.Key)
		}
	}
}
