// Package alert implements C11 AlertEvaluator: derived signals (buy-volume,
// volume burst, FDV burst, whale) folded into an additive score and a
// three-way verdict, dispatched to a Notifier, per spec.md §4.7.
package alert

import (
	"context"
	"fmt"
	"math"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/daisy9542/meme-alert-bot/internal/domain"
	"github.com/daisy9542/meme-alert-bot/internal/ethreader"
	"github.com/daisy9542/meme-alert-bot/internal/fdv"
	"github.com/daisy9542/meme-alert-bot/internal/logging"
	"github.com/daisy9542/meme-alert-bot/internal/metrics"
	"github.com/daisy9542/meme-alert-bot/internal/notifier"
	"github.com/daisy9542/meme-alert-bot/internal/pricer"
	"github.com/daisy9542/meme-alert-bot/internal/watchlist"
	"github.com/daisy9542/meme-alert-bot/internal/window"
)

// SpotSource supplies a fallback USD price when no AMM-derived price is
// available, the same shape subscriber.SpotPriceSource uses, narrowed
// locally so alert doesn't need to import the subscriber package for one
// interface.
type SpotSource interface {
	FetchTokenUSD(ctx context.Context, chain domain.Chain, token common.Address) (float64, bool)
}

// Thresholds bundles the spec.md §6 constants the evaluator's scoring
// depends on.
type Thresholds struct {
	MinLiqUSD           float64
	BuyVol1mUSD         float64
	BuyTxs1m            int
	VolumeMultiplier    float64
	FDVMultiplier       float64
	WhaleSingleBuyUSD   float64
	WhaleLiquidityRatio float64
}

// Deps bundles an Evaluator's collaborators.
type Deps struct {
	Windows   *window.Store
	FDV       *fdv.Tracker
	Watchlist *watchlist.Watchlist
	Reader    *ethreader.Reader
	Pricer    *pricer.Pricer
	Spot      SpotSource
	Notifier  notifier.Notifier
	Metrics   *metrics.Metrics
	Log       *logging.Logger
}

// Evaluator implements subscriber.AlertSink.
type Evaluator struct {
	deps Deps
	th   Thresholds
}

// New builds an Evaluator.
func New(deps Deps, th Thresholds) *Evaluator {
	return &Evaluator{deps: deps, th: th}
}

// Evaluate implements spec.md §4.7: it derives every signal, scores them,
// and dispatches a rendered message to the Notifier if the verdict is not
// "none".
func (e *Evaluator) Evaluate(ctx context.Context, req domain.TradeAlertRequest) {
	mkt, ok := e.deps.Watchlist.Get(req.Key)
	if !ok {
		return
	}
	now := time.Now()

	agg1m := e.deps.Windows.OneMinute(req.Key, now)
	buyMeetsVolume := agg1m.BuyUSD >= e.th.BuyVol1mUSD && agg1m.BuyTxs >= e.th.BuyTxs1m

	baseline := e.deps.Windows.BaselineAvgPerMin(req.Key, now)
	var volumeRatio float64
	var volumeBurst bool
	if baseline <= 0 {
		volumeRatio = math.Inf(1)
		volumeBurst = true
	} else {
		volumeRatio = agg1m.TotalUSD / baseline
		volumeBurst = volumeRatio >= e.th.VolumeMultiplier
	}

	var fdvRatio float64
	var fdvBurst bool
	if fdvUSD, ok := e.currentFDV(ctx, mkt, req.TargetIsToken0); ok {
		// Compute the ratio against samples already on record before pushing
		// the current one, so it never gets to satisfy its own 3-minute
		// lookback and a market's first sighting correctly reports ok=false.
		if ratio, ok := e.deps.FDV.RatioSinceRecent(req.Key, now, fdvUSD); ok {
			fdvRatio = ratio
			fdvBurst = ratio >= e.th.FDVMultiplier
		}
		e.deps.FDV.Push(req.Key, now, fdvUSD)
	}

	var whale bool
	var whaleLiquidityPct float64
	if req.IsBuy {
		if req.LiquidityUSD != nil && *req.LiquidityUSD > 0 {
			whaleLiquidityPct = req.LastTradeUSD / *req.LiquidityUSD
			if whaleLiquidityPct >= e.th.WhaleLiquidityRatio {
				whale = true
			}
		}
		if req.LastTradeUSD >= e.th.WhaleSingleBuyUSD {
			whale = true
		}
	}

	score := 0
	if req.IsBuy {
		score += 2
	}
	if volumeBurst {
		score += 2
	}
	if fdvBurst {
		score += 2
	}
	if whale {
		score += 3
	}
	// Prefer the Watchlist's current LastMintUSD over req's, which may carry
	// a snapshot taken when the caller's subscription started rather than
	// the market's live state.
	lastMintUSD := mkt.LastMintUSD
	if lastMintUSD == 0 && req.LastMintUSD != nil {
		lastMintUSD = *req.LastMintUSD
	}
	mintBonus := lastMintUSD >= 1.2*e.th.MinLiqUSD
	if mintBonus {
		score++
	}

	verdict := "none"
	switch {
	case score >= 6 && (whale || (volumeBurst && fdvBurst)):
		verdict = "strong"
	case score >= 3:
		verdict = "normal"
	}

	if e.deps.Metrics != nil {
		e.deps.Metrics.AlertsEmitted.WithLabelValues(verdict).Inc()
	}
	if verdict == "none" {
		return
	}

	headline, body := renderMessage(req, buyMeetsVolume, agg1m, volumeBurst, volumeRatio, fdvBurst, fdvRatio, whale, whaleLiquidityPct, mintBonus, verdict)
	if e.deps.Notifier == nil {
		return
	}
	e.deps.Notifier.Notify(ctx, notifier.Record{
		Level:      verdict,
		Chain:      req.Key.Chain,
		MarketType: req.Key.Type,
		Address:    req.Key.Address,
		Token0:     mkt.Token0,
		Token1:     mkt.Token1,
		TargetSide: targetSideLabel(req.TargetIsToken0),
		Headline:   headline,
		Body:       body,
	})
}

// currentFDV computes totalSupply/10^dec * priceUsd for the market's target
// token, per spec.md §4.7. ok is false if either the token's total supply
// or its USD price is currently unavailable.
func (e *Evaluator) currentFDV(ctx context.Context, mkt *domain.Market, targetIsToken0 bool) (float64, bool) {
	targetToken := mkt.Token0
	if !targetIsToken0 {
		targetToken = mkt.Token1
	}

	priceUSD, ok := e.targetPriceUSD(ctx, mkt, targetIsToken0)
	if !ok {
		return 0, false
	}

	supply, err := e.deps.Reader.TotalSupply(ctx, targetToken)
	if err != nil || supply == nil {
		return 0, false
	}
	dec, err := e.deps.Reader.Decimals(ctx, targetToken)
	if err != nil {
		dec = 18
	}
	return normalize(supply, dec) * priceUSD, true
}

// targetPriceUSD prefers the AMM-derived price computed fresh from current
// reserves/slot0, falling back to the aggregator spot price, mirroring
// subscriber.Subscriber.priceDelta's own AMM-then-spot preference.
func (e *Evaluator) targetPriceUSD(ctx context.Context, mkt *domain.Market, targetIsToken0 bool) (float64, bool) {
	chain := mkt.Key.Chain
	d0 := e.deps.Pricer.Decimals(ctx, chain, mkt.Token0)
	d1 := e.deps.Pricer.Decimals(ctx, chain, mkt.Token1)

	var p0in1, p1in0 float64
	var ammOK bool
	if mkt.Key.Type == domain.MarketV2 {
		if reserves, err := e.deps.Reader.GetReserves(ctx, mkt.Key.Address); err == nil {
			p0in1, p1in0, ammOK = pricer.V2RelativePrice(reserves.Reserve0, reserves.Reserve1, d0, d1)
		}
	} else if slot0, err := e.deps.Reader.GetSlot0(ctx, mkt.Key.Address); err == nil {
		if p, ok := pricer.V3RelativePrice(slot0.SqrtPriceX96, d0, d1); ok {
			p0in1, ammOK = p, true
			if p0in1 > 0 {
				p1in0 = 1 / p0in1
			}
		}
	}

	if ammOK {
		usd0, usd1, ok0, ok1 := e.deps.Pricer.USDPrices(ctx, chain, mkt.Token0, mkt.Token1, p0in1, p1in0)
		if targetIsToken0 && ok0 {
			return usd0, true
		}
		if !targetIsToken0 && ok1 {
			return usd1, true
		}
	}

	if e.deps.Spot != nil {
		targetToken := mkt.Token0
		if !targetIsToken0 {
			targetToken = mkt.Token1
		}
		if usd, ok := e.deps.Spot.FetchTokenUSD(ctx, chain, targetToken); ok {
			return usd, true
		}
	}
	return 0, false
}

func normalize(amount *big.Int, decimals uint8) float64 {
	d := decimal.NewFromBigInt(amount, 0).Div(decimal.New(1, int32(decimals)))
	f, _ := d.Float64()
	return f
}

func targetSideLabel(targetIsToken0 bool) string {
	if targetIsToken0 {
		return "token0"
	}
	return "token1"
}

// renderMessage builds the human-readable headline/body pair spec.md §4.7
// requires: triggered factors, 1-minute buy stats, multiplier readouts, and
// whale details expressed as a liquidity percentage or an absolute amount.
func renderMessage(req domain.TradeAlertRequest, buyMeetsVolume bool, agg1m window.Aggregate, volumeBurst bool, volumeRatio float64, fdvBurst bool, fdvRatio float64, whale bool, whaleLiquidityPct float64, mintBonus bool, verdict string) (headline, body string) {
	headline = fmt.Sprintf("%s signal on %s %s", strings.ToUpper(verdict), req.Key.Type, req.Key.Address.Hex())

	var factors []string
	if req.IsBuy {
		factors = append(factors, "buy")
	}
	if buyMeetsVolume {
		factors = append(factors, "buy-volume")
	}
	if volumeBurst {
		factors = append(factors, fmt.Sprintf("volume-burst(x%.1f)", volumeRatio))
	}
	if fdvBurst {
		factors = append(factors, fmt.Sprintf("fdv-burst(x%.1f)", fdvRatio))
	}
	if whale {
		if whaleLiquidityPct > 0 {
			factors = append(factors, fmt.Sprintf("whale(%.1f%% of liquidity)", whaleLiquidityPct*100))
		} else {
			factors = append(factors, fmt.Sprintf("whale($%.0f)", req.LastTradeUSD))
		}
	}
	if mintBonus {
		factors = append(factors, "recent-mint")
	}

	body = fmt.Sprintf(
		"factors=%s last_trade_usd=%.2f buy_usd_1m=%.2f buy_txs_1m=%d unique_buyers_1m=%d",
		strings.Join(factors, ","), req.LastTradeUSD, agg1m.BuyUSD, agg1m.BuyTxs, agg1m.UniqueBuyers,
	)
	return headline, body
}
