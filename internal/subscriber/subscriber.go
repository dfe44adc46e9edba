// Package subscriber implements C8 MarketSubscriber: per-market on-chain
// Swap/Mint subscriptions with USD conversion, dispatch to WindowStore,
// TaxEstimator, and AlertEvaluator, per spec.md §4.3. The subscribe/select
// loop is rnts08-eth-watchtower's `subscribeLogs` generic helper narrowed
// from "one subscription per signature, shared by every tracked contract"
// to "one subscription per active market" (a V2 market's filter matches
// both its Swap and Mint topics).
package subscriber

import (
	"context"
	"math/big"
	"sync"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"

	"github.com/daisy9542/meme-alert-bot/internal/domain"
	"github.com/daisy9542/meme-alert-bot/internal/ethreader"
	"github.com/daisy9542/meme-alert-bot/internal/logging"
	"github.com/daisy9542/meme-alert-bot/internal/metrics"
	"github.com/daisy9542/meme-alert-bot/internal/pricer"
	"github.com/daisy9542/meme-alert-bot/internal/tax"
	"github.com/daisy9542/meme-alert-bot/internal/watchlist"
	"github.com/daisy9542/meme-alert-bot/internal/window"
)

// SpotPriceSource supplies a fallback USD price for a token when no
// AMM-derived price is available, per spec.md §4.3 step 4.
type SpotPriceSource interface {
	FetchTokenUSD(ctx context.Context, chain domain.Chain, token common.Address) (float64, bool)
}

// AlertSink receives per-trade evaluation requests, per spec.md §4.3 step 7.
type AlertSink interface {
	Evaluate(ctx context.Context, req domain.TradeAlertRequest)
}

// Deps bundles a Subscriber's collaborators.
type Deps struct {
	ChainClient ethreader.ChainClient
	Reader      *ethreader.Reader
	Pricer      *pricer.Pricer
	Spot        SpotPriceSource
	Windows     *window.Store
	Taxes       *tax.Estimator
	Watchlist   *watchlist.Watchlist
	Alerts      AlertSink
	Metrics     *metrics.Metrics
	Log         *logging.Logger
}

// Subscriber owns one active market's event subscription.
type Subscriber struct {
	deps   Deps
	market domain.Market
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Start installs the appropriate V2 or V3 subscription for mkt and begins
// dispatching events. Returns a Subscriber whose Stop tears the
// subscription down.
func Start(ctx context.Context, deps Deps, mkt domain.Market) (*Subscriber, error) {
	subCtx, cancel := context.WithCancel(ctx)
	s := &Subscriber{deps: deps, market: mkt, cancel: cancel}

	var topics [][]common.Hash
	if mkt.Key.Type == domain.MarketV2 {
		topics = [][]common.Hash{{ethreader.V2SwapTopic, ethreader.V2MintTopic}}
	} else {
		topics = [][]common.Hash{{ethreader.V3SwapTopic}}
	}
	query := ethereum.FilterQuery{
		Addresses: []common.Address{mkt.Key.Address},
		Topics:    topics,
	}

	logsChan := make(chan types.Log)
	sub, err := deps.ChainClient.SubscribeFilterLogs(subCtx, query, logsChan)
	if err != nil {
		cancel()
		return nil, err
	}

	s.wg.Add(1)
	go s.loop(subCtx, sub, logsChan)
	return s, nil
}

// Stop cancels the subscription and waits for the dispatch loop to exit.
func (s *Subscriber) Stop() {
	s.cancel()
	s.wg.Wait()
}

func (s *Subscriber) loop(ctx context.Context, sub ethereum.Subscription, logsChan <-chan types.Log) {
	defer s.wg.Done()
	defer sub.Unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case err := <-sub.Err():
			if err != nil && s.deps.Log != nil {
				s.deps.Log.Printf("market %s subscription error: %v", s.market.Key, err)
			}
			return
		case l := <-logsChan:
			s.handleLog(ctx, l)
		}
	}
}

func (s *Subscriber) handleLog(ctx context.Context, l types.Log) {
	if len(l.Topics) == 0 {
		return
	}
	switch {
	case s.market.Key.Type == domain.MarketV2 && l.Topics[0] == ethreader.V2SwapTopic:
		s.handleV2Swap(ctx, l)
	case s.market.Key.Type == domain.MarketV2 && l.Topics[0] == ethreader.V2MintTopic:
		s.handleV2Mint(ctx, l)
	case s.market.Key.Type == domain.MarketV3 && l.Topics[0] == ethreader.V3SwapTopic:
		s.handleV3Swap(ctx, l)
	}
}

// targetSide implements spec.md §4.3 step 1: the non-base side, defaulting
// to token0 when both or neither side is a recognized base token.
func targetSide(chain domain.Chain, token0, token1 common.Address) (targetIsToken0 bool) {
	base0 := domain.IsBaseToken(chain, token0)
	base1 := domain.IsBaseToken(chain, token1)
	if base0 == base1 {
		return true
	}
	return !base0
}

func (s *Subscriber) decimalsPair(ctx context.Context) (d0, d1 uint8) {
	chain := s.market.Key.Chain
	d0 = s.deps.Pricer.Decimals(ctx, chain, s.market.Token0)
	d1 = s.deps.Pricer.Decimals(ctx, chain, s.market.Token1)
	return
}

func normalizeDelta(amount *big.Int, decimals uint8) float64 {
	d := decimal.NewFromBigInt(amount, 0).Div(decimal.New(1, int32(decimals)))
	f, _ := d.Float64()
	return f
}

func (s *Subscriber) handleV2Swap(ctx context.Context, l types.Log) {
	ev, err := ethreader.DecodeV2Swap(l)
	if err != nil {
		return
	}
	chain := s.market.Key.Chain
	targetIsToken0 := targetSide(chain, s.market.Token0, s.market.Token1)
	d0, d1 := s.decimalsPair(ctx)

	var deltaTarget float64
	var buyer common.Address
	if targetIsToken0 {
		deltaTarget = normalizeDelta(new(big.Int).Sub(ev.Amount0Out, ev.Amount0In), d0)
	} else {
		deltaTarget = normalizeDelta(new(big.Int).Sub(ev.Amount1Out, ev.Amount1In), d1)
	}
	isBuy := deltaTarget > 0
	if isBuy {
		buyer = ev.To
	} else {
		buyer = ev.Sender
	}

	var p0in1, p1in0 float64
	var ok bool
	if reserves, err := s.deps.Reader.GetReserves(ctx, s.market.Key.Address); err == nil {
		p0in1, p1in0, ok = pricer.V2RelativePrice(reserves.Reserve0, reserves.Reserve1, d0, d1)
	}

	targetToken := s.market.Token0
	counterToken := s.market.Token1
	if !targetIsToken0 {
		targetToken, counterToken = s.market.Token1, s.market.Token0
	}

	usdValue, priceOK := s.priceDelta(ctx, chain, targetToken, counterToken, targetIsToken0, p0in1, p1in0, ok, deltaTarget)
	if !priceOK {
		if s.deps.Metrics != nil {
			s.deps.Metrics.TradesDropped.WithLabelValues(chain.String(), "no_price").Inc()
		}
		return
	}

	s.recordAndDispatch(ctx, usdValue, isBuy, buyer, targetIsToken0)

	if domain.IsBaseToken(chain, counterToken) && ok {
		s.recordTax(targetIsToken0, d0, d1, p0in1, p1in0, ev.Amount0In, ev.Amount1In, ev.Amount0Out, ev.Amount1Out)
	}
}

func (s *Subscriber) handleV3Swap(ctx context.Context, l types.Log) {
	ev, err := ethreader.DecodeV3Swap(l)
	if err != nil {
		return
	}
	chain := s.market.Key.Chain
	targetIsToken0 := targetSide(chain, s.market.Token0, s.market.Token1)
	d0, d1 := s.decimalsPair(ctx)

	var amountTarget *big.Int
	if targetIsToken0 {
		amountTarget = ev.Amount0
	} else {
		amountTarget = ev.Amount1
	}
	dec := d0
	if !targetIsToken0 {
		dec = d1
	}
	deltaTarget := -normalizeDelta(amountTarget, dec)
	isBuy := deltaTarget > 0
	var buyer common.Address
	if isBuy {
		buyer = ev.Recipient
	} else {
		buyer = ev.Sender
	}

	p0in1, ok := pricer.V3RelativePrice(ev.SqrtPriceX96, d0, d1)
	var p1in0 float64
	if ok && p0in1 > 0 {
		p1in0 = 1 / p0in1
	}

	targetToken := s.market.Token0
	counterToken := s.market.Token1
	if !targetIsToken0 {
		targetToken, counterToken = s.market.Token1, s.market.Token0
	}

	usdValue, priceOK := s.priceDelta(ctx, chain, targetToken, counterToken, targetIsToken0, p0in1, p1in0, ok, deltaTarget)
	if !priceOK {
		if s.deps.Metrics != nil {
			s.deps.Metrics.TradesDropped.WithLabelValues(chain.String(), "no_price").Inc()
		}
		return
	}

	s.recordAndDispatch(ctx, usdValue, isBuy, buyer, targetIsToken0)
}

// priceDelta converts |deltaTarget| to USD, preferring the AMM-derived
// price and falling back to the aggregator spot price, per spec.md §4.3
// step 4.
func (s *Subscriber) priceDelta(ctx context.Context, chain domain.Chain, targetToken, counterToken common.Address, targetIsToken0 bool, p0in1, p1in0 float64, ammOK bool, deltaTarget float64) (float64, bool) {
	if ammOK {
		usd0, usd1, ok0, ok1 := s.deps.Pricer.USDPrices(ctx, chain, s.market.Token0, s.market.Token1, p0in1, p1in0)
		var targetUSD float64
		var targetOK bool
		if targetIsToken0 {
			targetUSD, targetOK = usd0, ok0
		} else {
			targetUSD, targetOK = usd1, ok1
		}
		if targetOK {
			delta := deltaTarget
			if delta < 0 {
				delta = -delta
			}
			return pricer.DeltaToUSD(delta, targetUSD), true
		}
	}
	if s.deps.Spot != nil {
		if usd, ok := s.deps.Spot.FetchTokenUSD(ctx, chain, targetToken); ok {
			delta := deltaTarget
			if delta < 0 {
				delta = -delta
			}
			return pricer.DeltaToUSD(delta, usd), true
		}
	}
	return 0, false
}

func (s *Subscriber) recordAndDispatch(ctx context.Context, usdValue float64, isBuy bool, buyer common.Address, targetIsToken0 bool) {
	ev := domain.TradeEvent{Timestamp: time.Now(), USDValue: usdValue, IsBuy: isBuy, Buyer: buyer}
	s.deps.Windows.Record(s.market.Key, ev)

	req := domain.TradeAlertRequest{
		Key:            s.market.Key,
		TargetIsToken0: targetIsToken0,
		LastTradeUSD:   usdValue,
		IsBuy:          isBuy,
		Buyer:          buyer,
	}
	// s.market is a one-time snapshot taken at Start; mint/liquidity fields
	// must come from the Watchlist's current entry, never the snapshot, per
	// domain.Market's "ask the Watchlist for current state" rule.
	if mkt, ok := s.deps.Watchlist.Get(s.market.Key); ok {
		if mkt.LastMintUSD > 0 {
			mintUSD := mkt.LastMintUSD
			req.LastMintUSD = &mintUSD
		}
		if mkt.LiquidityUSD > 0 {
			liq := mkt.LiquidityUSD
			req.LiquidityUSD = &liq
		}
	}
	if s.deps.Alerts != nil {
		s.deps.Alerts.Evaluate(ctx, req)
	}
}

// recordTax implements the buy/sell tax sample per spec.md §4.8, using the
// pool's mid-price to compute the expected output for the observed swap.
func (s *Subscriber) recordTax(targetIsToken0 bool, d0, d1 uint8, p0in1, p1in0 float64, a0In, a1In, a0Out, a1Out *big.Int) {
	now := time.Now()
	key := s.market.Key

	if targetIsToken0 {
		in1 := normalizeDelta(a1In, d1)
		out0 := normalizeDelta(a0Out, d0)
		if in1 > 0 {
			expected := in1 * p1in0
			s.deps.Taxes.RecordBuy(key, now, expected, out0)
			return
		}
		in0 := normalizeDelta(a0In, d0)
		out1 := normalizeDelta(a1Out, d1)
		if in0 > 0 {
			expected := in0 * p0in1
			s.deps.Taxes.RecordSell(key, now, expected, out1)
		}
		return
	}

	in0 := normalizeDelta(a0In, d0)
	out1 := normalizeDelta(a1Out, d1)
	if in0 > 0 {
		expected := in0 * p0in1
		s.deps.Taxes.RecordBuy(key, now, expected, out1)
		return
	}
	in1 := normalizeDelta(a1In, d1)
	out0 := normalizeDelta(a0Out, d0)
	if in1 > 0 {
		expected := in1 * p1in0
		s.deps.Taxes.RecordSell(key, now, expected, out0)
	}
}

func (s *Subscriber) handleV2Mint(ctx context.Context, l types.Log) {
	ev, err := ethreader.DecodeV2Mint(l)
	if err != nil {
		return
	}
	chain := s.market.Key.Chain
	d0, d1 := s.decimalsPair(ctx)

	amount0 := normalizeDelta(ev.Amount0, d0)
	amount1 := normalizeDelta(ev.Amount1, d1)

	reserves, err := s.deps.Reader.GetReserves(ctx, s.market.Key.Address)
	var mintUSD float64
	if err == nil {
		if p0in1, p1in0, ok := pricer.V2RelativePrice(reserves.Reserve0, reserves.Reserve1, d0, d1); ok {
			usd0, usd1, ok0, ok1 := s.deps.Pricer.USDPrices(ctx, chain, s.market.Token0, s.market.Token1, p0in1, p1in0)
			if ok0 {
				mintUSD += amount0 * usd0
			}
			if ok1 {
				mintUSD += amount1 * usd1
			}
		}
	}
	if mintUSD <= 0 {
		if mkt, ok := s.deps.Watchlist.Get(s.market.Key); ok {
			mintUSD = mkt.LiquidityUSD
		}
	}
	s.deps.Watchlist.Touch(s.market.Key, 0, mintUSD)
}
