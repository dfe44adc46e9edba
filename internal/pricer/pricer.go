// Package pricer implements C2 ReservesPricer: AMM-formula relative prices
// (V2 constant-product reserves, V3 sqrtPriceX96) and USD derivation against
// the recognized base-token table, per spec.md §4.5.
package pricer

import (
	"context"
	"math"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/daisy9542/meme-alert-bot/internal/domain"
)

// BaseUSDLookup resolves a recognized base token's USD price. Implemented
// by internal/priceoracle in production, stubbed in tests.
type BaseUSDLookup func(ctx context.Context, chain domain.Chain, token common.Address) (float64, bool)

// Pricer computes relative and USD prices from on-chain pool state.
type Pricer struct {
	decimals *decimalsCache
	reader   decimalsSource
	baseUSD  BaseUSDLookup
}

// New builds a Pricer. reader supplies decimals lookups; baseUSD supplies
// recognized base-token USD prices (C1 PriceOracle).
func New(reader decimalsSource, baseUSD BaseUSDLookup) *Pricer {
	return &Pricer{
		decimals: newDecimalsCache(),
		reader:   reader,
		baseUSD:  baseUSD,
	}
}

// Decimals returns cached decimals for token on chain, falling back to 18.
func (p *Pricer) Decimals(ctx context.Context, chain domain.Chain, token common.Address) uint8 {
	return p.decimals.get(ctx, p.reader, chain, token)
}

// normalize converts an on-chain integer amount to a float64 only after
// dividing by 10^decimals, per spec.md §9's numeric-conversion rule. Uses
// shopspring/decimal for the division so repeated calls don't compound
// float64 rounding before the final, intentional precision drop.
func normalize(amount *big.Int, decimals uint8) float64 {
	if amount == nil {
		return 0
	}
	d := decimal.NewFromBigInt(amount, 0).Div(decimal.New(1, int32(decimals)))
	f, _ := d.Float64()
	return f
}

// V2RelativePrice returns price(token0 in token1) and price(token1 in
// token0) from raw reserves, per spec.md §4.5. Undefined (ok=false) if
// either normalized reserve is <= 0.
func V2RelativePrice(r0, r1 *big.Int, d0, d1 uint8) (p0in1, p1in0 float64, ok bool) {
	nr0 := normalize(r0, d0)
	nr1 := normalize(r1, d1)
	if nr0 <= 0 || nr1 <= 0 {
		return 0, 0, false
	}
	return nr1 / nr0, nr0 / nr1, true
}

// V3RelativePrice returns price(token1 per token0) from sqrtPriceX96, per
// spec.md §4.5: sp = sqrtPriceX96 / 2^96; price = sp^2 * 10^(d0-d1). This is
// the same quantity V2RelativePrice returns as p0in1 (token0 priced in
// token1). Undefined if the result is not finite or <= 0.
func V3RelativePrice(sqrtPriceX96 *big.Int, d0, d1 uint8) (p0in1 float64, ok bool) {
	if sqrtPriceX96 == nil || sqrtPriceX96.Sign() <= 0 {
		return 0, false
	}
	sqrtBig := new(big.Float).SetInt(sqrtPriceX96)
	q96 := new(big.Float).SetFloat64(math.Pow(2, 96))
	sp, _ := new(big.Float).Quo(sqrtBig, q96).Float64()
	if math.IsNaN(sp) || math.IsInf(sp, 0) {
		return 0, false
	}

	price := sp * sp * math.Pow(10, float64(int(d0)-int(d1)))
	if math.IsNaN(price) || math.IsInf(price, 0) || price <= 0 {
		return 0, false
	}
	return price, true
}

// USDPrices derives USD-per-token prices for both sides of a pool, given
// their relative prices and recognized-base-token USD lookups. If both
// sides are base tokens, the higher-priority side's aggregator/oracle price
// is used to derive the other, per spec.md §4.5.
func (p *Pricer) USDPrices(ctx context.Context, chain domain.Chain, token0, token1 common.Address, p0in1, p1in0 float64) (usd0, usd1 float64, ok0, ok1 bool) {
	base0, isBase0 := domain.LookupBaseToken(chain, token0)
	base1, isBase1 := domain.LookupBaseToken(chain, token1)

	switch {
	case isBase0 && isBase1:
		// Prefer deriving from the higher-priority side.
		if base0.Priority <= base1.Priority {
			if u0, found := p.baseUSD(ctx, chain, token0); found {
				usd0, ok0 = u0, true
				usd1, ok1 = u0*p1in0, true
				return
			}
		}
		if u1, found := p.baseUSD(ctx, chain, token1); found {
			usd1, ok1 = u1, true
			usd0, ok0 = u1*p0in1, true
		}
		return
	case isBase0:
		if u0, found := p.baseUSD(ctx, chain, token0); found {
			usd0, ok0 = u0, true
			usd1, ok1 = u0*p1in0, true
		}
		return
	case isBase1:
		if u1, found := p.baseUSD(ctx, chain, token1); found {
			usd1, ok1 = u1, true
			usd0, ok0 = u1*p0in1, true
		}
		return
	default:
		return 0, 0, false, false
	}
}

// DeltaToUSD converts a natural-unit token delta to USD given a per-token
// USD price, preserving sign. Implements spec.md §8's decimal round-trip
// invariant: usd_of(|Δ|) · sign(Δ) == delta_to_usd(Δ).
func DeltaToUSD(delta, usdPrice float64) float64 {
	return delta * usdPrice
}
