package ingress

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/daisy9542/meme-alert-bot/internal/aggregator"
	"github.com/daisy9542/meme-alert-bot/internal/domain"
)

func newTestPoller(chain domain.Chain, minLiq float64) (*TrendingPoller, chan domain.Candidate) {
	candidates := make(chan domain.Candidate, 8)
	p := &TrendingPoller{
		cfg: TrendingConfig{
			Chain:     chain,
			ChainSlug: "bsc",
			MinLiqUSD: minLiq,
		},
		dedup:      NewDedup(5*time.Minute, nil),
		candidates: candidates,
	}
	return p, candidates
}

func TestConsiderCandidateRejectsWrongDexFamily(t *testing.T) {
	p, ch := newTestPoller(domain.ChainBSC, 1000)
	wbnb := "0x000000000000000000000000000000000000dead"
	domain.SetBaseTokenAddress(domain.ChainBSC, "WBNB", common.HexToAddress(wbnb))

	p.considerCandidate(aggregator.Pair{
		DexID:        "uniswapv2",
		PairAddress:  "0x000000000000000000000000000000000000beef",
		BaseToken:    wbnb,
		QuoteToken:   "0x000000000000000000000000000000000000cafe",
		LiquidityUSD: 50000,
	}, time.Now())

	select {
	case <-ch:
		t.Fatal("expected a non-Pancake pair on BSC to be rejected")
	default:
	}
}

func TestConsiderCandidateRejectsMalformedAddress(t *testing.T) {
	p, ch := newTestPoller(domain.ChainBSC, 1000)
	p.considerCandidate(aggregator.Pair{
		DexID:        "pancakeswap",
		PairAddress:  "not-an-address",
		BaseToken:    "0x000000000000000000000000000000000000dead",
		QuoteToken:   "0x000000000000000000000000000000000000cafe",
		LiquidityUSD: 50000,
	}, time.Now())

	select {
	case <-ch:
		t.Fatal("expected a malformed address to be rejected")
	default:
	}
}

func TestConsiderCandidateRejectsBelowMinLiquidity(t *testing.T) {
	p, ch := newTestPoller(domain.ChainBSC, 10000)
	p.considerCandidate(aggregator.Pair{
		DexID:        "pancakeswap",
		PairAddress:  "0x000000000000000000000000000000000000beef",
		BaseToken:    "0x000000000000000000000000000000000000dead",
		QuoteToken:   "0x000000000000000000000000000000000000cafe",
		LiquidityUSD: 500,
	}, time.Now())

	select {
	case <-ch:
		t.Fatal("expected a below-threshold liquidity pair to be rejected")
	default:
	}
}

func TestConsiderCandidateRejectsWithoutRecognizedBaseSide(t *testing.T) {
	p, ch := newTestPoller(domain.ChainBSC, 1000)
	p.considerCandidate(aggregator.Pair{
		DexID:        "pancakeswap",
		PairAddress:  "0x000000000000000000000000000000000000beef",
		BaseToken:    "0x000000000000000000000000000000000000feed",
		QuoteToken:   "0x000000000000000000000000000000000000cafe",
		LiquidityUSD: 50000,
	}, time.Now())

	select {
	case <-ch:
		t.Fatal("expected a pair with no recognized base-token side to be rejected")
	default:
	}
}

func TestConsiderCandidateAdmitsValidTrendingPair(t *testing.T) {
	p, ch := newTestPoller(domain.ChainBSC, 1000)
	wbnb := "0x000000000000000000000000000000000000dead"
	domain.SetBaseTokenAddress(domain.ChainBSC, "WBNB", common.HexToAddress(wbnb))

	p.considerCandidate(aggregator.Pair{
		DexID:        "pancakeswap-v3",
		PairAddress:  "0x000000000000000000000000000000000000beef",
		BaseToken:    wbnb,
		QuoteToken:   "0x000000000000000000000000000000000000cafe",
		LiquidityUSD: 50000,
		FeeTier:      2500,
	}, time.Now())

	select {
	case cand := <-ch:
		if cand.Key.Type != domain.MarketV3 {
			t.Fatalf("expected the '-v3' DexID to infer MarketV3, got %v", cand.Key.Type)
		}
		if cand.Fee == nil || *cand.Fee != 2500 {
			t.Fatal("expected the fee tier to be carried through for a v3 candidate")
		}
	default:
		t.Fatal("expected a valid trending pair to produce a candidate")
	}
}

// fakeTrendingSource lets tests drive TrendingPoller.pollOnce without an
// HTTP round trip, mirroring internal/priceoracle's fakePairSource.
type fakeTrendingSource struct {
	trendingPairs     []aggregator.Pair
	trendingAvailable bool
	trendingErr       error

	tokenPairsByToken map[string][]aggregator.Pair
	tokenPairsCalls   []string
}

func (f *fakeTrendingSource) Trending(ctx context.Context, chainSlug string, limit int) ([]aggregator.Pair, bool, error) {
	return f.trendingPairs, f.trendingAvailable, f.trendingErr
}

func (f *fakeTrendingSource) TokenPairs(ctx context.Context, token string) ([]aggregator.Pair, error) {
	f.tokenPairsCalls = append(f.tokenPairsCalls, token)
	return f.tokenPairsByToken[token], nil
}

func TestPollOnceSynthesizesFromBaseTokensWhenTrendingUnavailable(t *testing.T) {
	wbnb := common.HexToAddress("0x000000000000000000000000000000000000dead")
	domain.SetBaseTokenAddress(domain.ChainBSC, "WBNB", wbnb)

	pair := aggregator.Pair{
		DexID:        "pancakeswap",
		PairAddress:  "0x000000000000000000000000000000000000beef",
		BaseToken:    wbnb.Hex(),
		QuoteToken:   "0x000000000000000000000000000000000000cafe",
		LiquidityUSD: 50000,
	}
	src := &fakeTrendingSource{
		trendingAvailable: false,
		tokenPairsByToken: map[string][]aggregator.Pair{
			wbnb.Hex(): {pair},
		},
	}
	candidates := make(chan domain.Candidate, 8)
	p := &TrendingPoller{
		agg: src,
		cfg: TrendingConfig{
			Chain:     domain.ChainBSC,
			ChainSlug: "bsc",
			MinLiqUSD: 1000,
		},
		dedup:      NewDedup(5*time.Minute, nil),
		candidates: candidates,
	}

	p.pollOnce(context.Background())

	if len(src.tokenPairsCalls) == 0 {
		t.Fatal("expected pollOnce to fall back to TokenPairs when trending is unavailable")
	}
	select {
	case cand := <-candidates:
		if cand.Key.Address != common.HexToAddress(pair.PairAddress) {
			t.Fatalf("unexpected candidate address %v", cand.Key.Address)
		}
	default:
		t.Fatal("expected a candidate synthesized from base-token top pools")
	}
}

func TestPollOnceSkipsSynthesisWhenTrendingAvailable(t *testing.T) {
	wbnb := common.HexToAddress("0x000000000000000000000000000000000000dead")
	domain.SetBaseTokenAddress(domain.ChainBSC, "WBNB", wbnb)

	src := &fakeTrendingSource{
		trendingAvailable: true,
		trendingPairs:     nil,
	}
	candidates := make(chan domain.Candidate, 8)
	p := &TrendingPoller{
		agg: src,
		cfg: TrendingConfig{
			Chain:     domain.ChainBSC,
			ChainSlug: "bsc",
			MinLiqUSD: 1000,
		},
		dedup:      NewDedup(5*time.Minute, nil),
		candidates: candidates,
	}

	p.pollOnce(context.Background())

	if len(src.tokenPairsCalls) != 0 {
		t.Fatal("expected no fallback TokenPairs calls when trending is available")
	}
}

func TestPollOnceReturnsOnTrendingError(t *testing.T) {
	src := &fakeTrendingSource{trendingErr: errors.New("aggregator unreachable")}
	candidates := make(chan domain.Candidate, 8)
	p := &TrendingPoller{
		agg: src,
		cfg: TrendingConfig{
			Chain:     domain.ChainBSC,
			ChainSlug: "bsc",
			MinLiqUSD: 1000,
		},
		dedup:      NewDedup(5*time.Minute, nil),
		candidates: candidates,
	}

	p.pollOnce(context.Background())

	if len(src.tokenPairsCalls) != 0 {
		t.Fatal("expected no fallback attempt when Trending itself errors")
	}
}

func TestConsiderCandidateDedupsRepeatSighting(t *testing.T) {
	p, ch := newTestPoller(domain.ChainBSC, 1000)
	wbnb := "0x000000000000000000000000000000000000dead"
	domain.SetBaseTokenAddress(domain.ChainBSC, "WBNB", common.HexToAddress(wbnb))

	pair := aggregator.Pair{
		DexID:        "pancakeswap",
		PairAddress:  "0x000000000000000000000000000000000000beef",
		BaseToken:    wbnb,
		QuoteToken:   "0x000000000000000000000000000000000000cafe",
		LiquidityUSD: 50000,
	}
	now := time.Now()
	p.considerCandidate(pair, now)
	<-ch
	p.considerCandidate(pair, now.Add(time.Minute))

	select {
	case <-ch:
		t.Fatal("expected the second sighting within the dedup TTL to be suppressed")
	default:
	}
}
