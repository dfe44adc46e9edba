package priceoracle

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/daisy9542/meme-alert-bot/internal/aggregator"
	"github.com/daisy9542/meme-alert-bot/internal/domain"
)

type fakePairSource struct {
	pairs []aggregator.Pair
	calls int
}

func (f *fakePairSource) TokenPairs(ctx context.Context, token string) ([]aggregator.Pair, error) {
	f.calls++
	return f.pairs, nil
}

func TestGetBaseTokenUSDPrefersHighestLiquidityPair(t *testing.T) {
	src := &fakePairSource{pairs: []aggregator.Pair{
		{ChainID: "bsc", PriceUSD: 590, LiquidityUSD: 100},
		{ChainID: "bsc", PriceUSD: 601, LiquidityUSD: 900000},
		{ChainID: "ethereum", PriceUSD: 2000, LiquidityUSD: 5000000},
	}}
	o := New(src)
	token := common.HexToAddress("0xwbnb")

	usd, ok := o.GetBaseTokenUSD(context.Background(), domain.ChainBSC, token)
	if !ok {
		t.Fatal("expected price found")
	}
	if usd != 601 {
		t.Fatalf("expected the higher-liquidity BSC pair (601), got %v", usd)
	}
}

func TestGetBaseTokenUSDCachesWithinTTL(t *testing.T) {
	src := &fakePairSource{pairs: []aggregator.Pair{{ChainID: "bsc", PriceUSD: 500, LiquidityUSD: 1}}}
	o := New(src)
	token := common.HexToAddress("0xwbnb")

	if _, ok := o.GetBaseTokenUSD(context.Background(), domain.ChainBSC, token); !ok {
		t.Fatal("expected first lookup to succeed")
	}
	if _, ok := o.GetBaseTokenUSD(context.Background(), domain.ChainBSC, token); !ok {
		t.Fatal("expected second lookup to succeed")
	}
	if src.calls != 1 {
		t.Fatalf("expected 1 aggregator call within TTL, got %d", src.calls)
	}
}

func TestGetBaseTokenUSDFallsBackToStablecoin(t *testing.T) {
	src := &fakePairSource{} // no pairs: aggregator unavailable/empty
	o := New(src)

	usdt := common.HexToAddress("0x5555")
	domain.SetBaseTokenAddress(domain.ChainBSC, "USDT", usdt)

	usd, ok := o.GetBaseTokenUSD(context.Background(), domain.ChainBSC, usdt)
	if !ok {
		t.Fatal("expected stablecoin fallback")
	}
	if usd != 1.0 {
		t.Fatalf("expected fallback 1.00, got %v", usd)
	}
}

func TestFetchTokenUSDReturnsNoneForUnknownNonBaseToken(t *testing.T) {
	src := &fakePairSource{}
	o := New(src)
	token := common.HexToAddress("0xdeadbeef")

	if _, ok := o.FetchTokenUSD(context.Background(), domain.ChainBSC, token); ok {
		t.Fatal("expected none for a non-base token with no aggregator entry")
	}
}
