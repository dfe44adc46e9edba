package alert

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"testing"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/daisy9542/meme-alert-bot/internal/domain"
	"github.com/daisy9542/meme-alert-bot/internal/ethreader"
	"github.com/daisy9542/meme-alert-bot/internal/fdv"
	"github.com/daisy9542/meme-alert-bot/internal/notifier"
	"github.com/daisy9542/meme-alert-bot/internal/pricer"
	"github.com/daisy9542/meme-alert-bot/internal/watchlist"
	"github.com/daisy9542/meme-alert-bot/internal/window"
)

// erroringClient always fails CallContract, so any AMM- or supply-derived
// path in the evaluator degrades gracefully rather than panicking; these
// tests only exercise the window/whale signals, not FDV.
type erroringClient struct{}

func (erroringClient) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	return nil, errors.New("erroringClient: no chain wired")
}
func (erroringClient) CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error) {
	return nil, errors.New("erroringClient: no chain wired")
}
func (erroringClient) SubscribeFilterLogs(ctx context.Context, q ethereum.FilterQuery, ch chan<- types.Log) (ethereum.Subscription, error) {
	return nil, errors.New("not implemented")
}
func (erroringClient) SubscribeNewHead(ctx context.Context, ch chan<- *types.Header) (ethereum.Subscription, error) {
	return nil, errors.New("not implemented")
}
func (erroringClient) Close() {}

type capturingNotifier struct {
	records []notifier.Record
}

func (n *capturingNotifier) Notify(ctx context.Context, rec notifier.Record) {
	n.records = append(n.records, rec)
}

func ptrFloat(f float64) *float64 { return &f }

func newTestEvaluator(th Thresholds) (*Evaluator, *watchlist.Watchlist, *window.Store, *capturingNotifier) {
	reader := ethreader.New(erroringClient{})
	p := pricer.New(reader, nil)
	wl := watchlist.New(nil, nil)
	windows := window.New(nil)
	notif := &capturingNotifier{}

	deps := Deps{
		Windows:   windows,
		FDV:       fdv.New(),
		Watchlist: wl,
		Reader:    reader,
		Pricer:    p,
		Notifier:  notif,
	}
	return New(deps, th), wl, windows, notif
}

func TestEvaluateEmitsStrongVerdictOnWhaleBuy(t *testing.T) {
	pool := common.HexToAddress("0xalertpool1")
	token0 := common.HexToAddress("0xalerttoken1a")
	token1 := common.HexToAddress("0xalerttoken1b")
	key := domain.NewMarketKey(domain.ChainBSC, domain.MarketV2, pool)

	th := Thresholds{
		MinLiqUSD:           5000,
		BuyVol1mUSD:         5000,
		BuyTxs1m:            5,
		VolumeMultiplier:    5,
		FDVMultiplier:       3,
		WhaleSingleBuyUSD:   5000,
		WhaleLiquidityRatio: 0.03,
	}
	e, wl, _, notif := newTestEvaluator(th)
	wl.Insert(key, token0, token1, nil)

	req := domain.TradeAlertRequest{
		Key:            key,
		TargetIsToken0: false,
		LastTradeUSD:   10000,
		IsBuy:          true,
		LiquidityUSD:   ptrFloat(50000),
	}
	e.Evaluate(context.Background(), req)

	if len(notif.records) != 1 {
		t.Fatalf("expected exactly one alert dispatched, got %d", len(notif.records))
	}
	if notif.records[0].Level != "strong" {
		t.Fatalf("expected a strong verdict, got %q", notif.records[0].Level)
	}
}

func TestEvaluateSuppressesAlertForTinySell(t *testing.T) {
	pool := common.HexToAddress("0xalertpool2")
	token0 := common.HexToAddress("0xalerttoken2a")
	token1 := common.HexToAddress("0xalerttoken2b")
	key := domain.NewMarketKey(domain.ChainBSC, domain.MarketV2, pool)

	th := Thresholds{
		MinLiqUSD:           5000,
		BuyVol1mUSD:         5000,
		BuyTxs1m:            5,
		VolumeMultiplier:    5,
		FDVMultiplier:       3,
		WhaleSingleBuyUSD:   5000,
		WhaleLiquidityRatio: 0.03,
	}
	e, wl, _, notif := newTestEvaluator(th)
	wl.Insert(key, token0, token1, nil)

	req := domain.TradeAlertRequest{
		Key:            key,
		TargetIsToken0: false,
		LastTradeUSD:   10,
		IsBuy:          false,
	}
	e.Evaluate(context.Background(), req)

	if len(notif.records) != 0 {
		t.Fatalf("expected no alert for a tiny sell, got %d", len(notif.records))
	}
}

const fdvClientABIJSON = `[
	{"constant":true,"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"type":"function"},
	{"constant":true,"inputs":[],"name":"totalSupply","outputs":[{"name":"","type":"uint256"}],"type":"function"},
	{"constant":true,"inputs":[],"name":"getReserves","outputs":[{"name":"reserve0","type":"uint112"},{"name":"reserve1","type":"uint112"},{"name":"blockTimestampLast","type":"uint32"}],"type":"function"}
]`

// fdvCapableClient backs a real ethreader.Reader well enough to drive
// Evaluator.currentFDV: fixed reserves for an AMM-derived price, decimals,
// and a fixed total supply for the target token.
type fdvCapableClient struct {
	abi         abi.ABI
	reserve0    *big.Int
	reserve1    *big.Int
	totalSupply *big.Int
}

func newFDVCapableClient(reserve0, reserve1, totalSupply *big.Int) *fdvCapableClient {
	parsed, err := abi.JSON(strings.NewReader(fdvClientABIJSON))
	if err != nil {
		panic(err)
	}
	return &fdvCapableClient{abi: parsed, reserve0: reserve0, reserve1: reserve1, totalSupply: totalSupply}
}

func (f *fdvCapableClient) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	if len(msg.Data) < 4 {
		return nil, errors.New("fdvCapableClient: short call data")
	}
	method, err := f.abi.MethodById(msg.Data[:4])
	if err != nil {
		return nil, err
	}
	switch method.Name {
	case "decimals":
		out := make([]byte, 32)
		out[31] = 18
		return out, nil
	case "totalSupply":
		return f.abi.Methods["totalSupply"].Outputs.Pack(f.totalSupply)
	case "getReserves":
		return f.abi.Methods["getReserves"].Outputs.Pack(f.reserve0, f.reserve1, uint32(0))
	default:
		return nil, errors.New("fdvCapableClient: unrecognized selector")
	}
}
func (f *fdvCapableClient) CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error) {
	return nil, errors.New("not implemented")
}
func (f *fdvCapableClient) SubscribeFilterLogs(ctx context.Context, q ethereum.FilterQuery, ch chan<- types.Log) (ethereum.Subscription, error) {
	return nil, errors.New("not implemented")
}
func (f *fdvCapableClient) SubscribeNewHead(ctx context.Context, ch chan<- *types.Header) (ethereum.Subscription, error) {
	return nil, errors.New("not implemented")
}
func (f *fdvCapableClient) Close() {}

// TestEvaluateFdvRatioExcludesJustPushedSample guards against computing the
// FDV burst ratio against the sample the same call just pushed: on a
// market's first-ever evaluation there is no prior sample, so fdv-burst must
// not fire even though the just-computed FDV trivially equals itself.
func TestEvaluateFdvRatioExcludesJustPushedSample(t *testing.T) {
	pool := common.HexToAddress("0xf0")
	token0 := common.HexToAddress("0xf1") // base side
	token1 := common.HexToAddress("0xf2") // target side
	key := domain.NewMarketKey(domain.ChainBSC, domain.MarketV2, pool)
	domain.SetBaseTokenAddress(domain.ChainBSC, "WBNB", token0)

	th := Thresholds{
		MinLiqUSD:           5000,
		BuyVol1mUSD:         999999,
		BuyTxs1m:            999,
		VolumeMultiplier:    999,
		FDVMultiplier:       2,
		WhaleSingleBuyUSD:   999999,
		WhaleLiquidityRatio: 999,
	}

	client := newFDVCapableClient(big.NewInt(1_000_000), big.NewInt(1_000_000), big.NewInt(1_000_000))
	reader := ethreader.New(client)
	p := pricer.New(reader, func(ctx context.Context, chain domain.Chain, token common.Address) (float64, bool) {
		return 1.0, true
	})
	wl := watchlist.New(nil, nil)
	windows := window.New(nil)
	notif := &capturingNotifier{}
	deps := Deps{
		Windows:   windows,
		FDV:       fdv.New(),
		Watchlist: wl,
		Reader:    reader,
		Pricer:    p,
		Notifier:  notif,
	}
	e := New(deps, th)
	wl.Insert(key, token0, token1, nil)

	req := domain.TradeAlertRequest{
		Key:            key,
		TargetIsToken0: false,
		LastTradeUSD:   1,
		IsBuy:          true,
	}
	// First-ever evaluation: no prior FDV sample exists, so the ratio must
	// not be computable from the sample this same call is about to push.
	e.Evaluate(context.Background(), req)

	if _, ok := e.deps.FDV.RatioSinceRecent(key, time.Now(), 1); !ok {
		t.Fatal("expected the first evaluation's FDV sample to be on record for later ratios")
	}
	for _, rec := range notif.records {
		if strings.Contains(rec.Body, "fdv-burst") {
			t.Fatal("expected no fdv-burst factor on a market's first-ever evaluation")
		}
	}
}

func TestEvaluateEmitsNormalVerdictOnVolumeBurstWithoutWhale(t *testing.T) {
	pool := common.HexToAddress("0xalertpool3")
	token0 := common.HexToAddress("0xalerttoken3a")
	token1 := common.HexToAddress("0xalerttoken3b")
	key := domain.NewMarketKey(domain.ChainBSC, domain.MarketV2, pool)

	th := Thresholds{
		MinLiqUSD:           5000,
		BuyVol1mUSD:         5000,
		BuyTxs1m:            1,
		VolumeMultiplier:    5,
		FDVMultiplier:       3,
		WhaleSingleBuyUSD:   999999,
		WhaleLiquidityRatio: 0.03,
	}
	e, wl, windows, notif := newTestEvaluator(th)
	wl.Insert(key, token0, token1, nil)

	now := time.Now()
	// Older buy establishes a nonzero baseline; the recent one alone would
	// trip volume-burst against it.
	windows.Record(key, domain.TradeEvent{Timestamp: now.Add(-5 * time.Minute), USDValue: 6000, IsBuy: true, Buyer: common.HexToAddress("0xbuyerA")})
	windows.Record(key, domain.TradeEvent{Timestamp: now, USDValue: 6000, IsBuy: true, Buyer: common.HexToAddress("0xbuyerB")})

	req := domain.TradeAlertRequest{
		Key:            key,
		TargetIsToken0: false,
		LastTradeUSD:   6000,
		IsBuy:          true,
		LiquidityUSD:   ptrFloat(1_000_000), // ratio well under WhaleLiquidityRatio
	}
	e.Evaluate(context.Background(), req)

	if len(notif.records) != 1 {
		t.Fatalf("expected exactly one alert dispatched, got %d", len(notif.records))
	}
	if notif.records[0].Level != "normal" {
		t.Fatalf("expected a normal verdict, got %q", notif.records[0].Level)
	}
}
