package safety

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/daisy9542/meme-alert-bot/internal/domain"
	"github.com/daisy9542/meme-alert-bot/internal/ethreader"
	"github.com/daisy9542/meme-alert-bot/internal/metrics"
	"github.com/daisy9542/meme-alert-bot/internal/pricer"
	"github.com/daisy9542/meme-alert-bot/internal/tax"
)

const (
	lowLiqUSD   = 3000
	midLiqUSD   = 8000
	rejectScore = 2
)

// Input is everything a gate admission decision needs beyond what the
// Checker already holds: the candidate's identity plus the aggregator's own
// view of the pool, which several checks fall back to or cross-check
// against.
type Input struct {
	Chain           domain.Chain
	Type            domain.MarketType
	Address         common.Address
	Token0          common.Address
	Token1          common.Address
	Fee             *uint32
	AggLiquidityUSD float64
	MinLiqUSD       float64
	MaxTaxPct       float64
}

// Result is the outcome of running every check in order.
type Result struct {
	Pass         bool
	Reason       string
	LiquidityUSD float64
}

// Checker runs the five sequential admission checks spec.md §4.2 defines,
// short-circuiting on the first failure. Each check treats its own errors as
// a failed check, never a panic, per that section's closing rule.
type Checker struct {
	reader  *ethreader.Reader
	baseUSD pricer.BaseUSDLookup
	taxEst  *tax.Estimator
	metrics *metrics.Metrics
}

// NewChecker builds a Checker. baseUSD resolves a recognized base token's
// USD price (the same lookup internal/pricer is built over, C1 PriceOracle).
func NewChecker(reader *ethreader.Reader, baseUSD pricer.BaseUSDLookup, taxEst *tax.Estimator, m *metrics.Metrics) *Checker {
	return &Checker{reader: reader, baseUSD: baseUSD, taxEst: taxEst, metrics: m}
}

func fail(reason string) Result { return Result{Pass: false, Reason: reason} }

// Admit runs the pipeline. On success, Result.LiquidityUSD carries the
// figure the caller should record on the Watchlist entry.
func (c *Checker) Admit(ctx context.Context, in Input) Result {
	if r := c.checkBytecodePresence(ctx, in); !r.Pass {
		return r
	}

	liqRes := c.checkMinimumLiquidity(ctx, in)
	if !liqRes.Pass {
		return liqRes
	}

	if r := c.checkSellability(ctx, in); !r.Pass {
		return r
	}

	if r := c.checkLPRisk(ctx, in); !r.Pass {
		return r
	}

	if r := c.checkTaxAverage(in); !r.Pass {
		return r
	}

	return Result{Pass: true, LiquidityUSD: liqRes.LiquidityUSD}
}

// checkBytecodePresence implements spec.md §4.2 check 1: pair/pool, token0
// and token1 must all carry deployed bytecode.
func (c *Checker) checkBytecodePresence(ctx context.Context, in Input) Result {
	for name, addr := range map[string]common.Address{
		"pool":   in.Address,
		"token0": in.Token0,
		"token1": in.Token1,
	} {
		ok, err := c.reader.HasCode(ctx, addr)
		if err != nil {
			return fail(fmt.Sprintf("bytecode presence fail: %s: %v", name, err))
		}
		if !ok {
			return fail(fmt.Sprintf("bytecode presence fail: %s has no code", name))
		}
	}
	return Result{Pass: true}
}

// checkMinimumLiquidity implements spec.md §4.2 check 2.
func (c *Checker) checkMinimumLiquidity(ctx context.Context, in Input) Result {
	liqUSD, ok := c.estimateLiquidityUSD(ctx, in)
	if !ok {
		liqUSD = in.AggLiquidityUSD
	}
	if liqUSD < in.MinLiqUSD {
		return fail(fmt.Sprintf("minimum liquidity fail: %.2f < %.2f", liqUSD, in.MinLiqUSD))
	}
	return Result{Pass: true, LiquidityUSD: liqUSD}
}

// estimateLiquidityUSD implements the V2 reserves-based derivation; V3 and
// any V2 pool with neither side recognized fall back to the aggregator's
// reported figure (ok=false).
func (c *Checker) estimateLiquidityUSD(ctx context.Context, in Input) (float64, bool) {
	if in.Type != domain.MarketV2 {
		return 0, false
	}

	base, side, ok := c.baseSide(in)
	if !ok {
		return 0, false
	}

	reserves, err := c.reader.GetReserves(ctx, in.Address)
	if err != nil {
		return 0, false
	}
	reserve := reserves.Reserve0
	token := in.Token0
	if side == 1 {
		reserve = reserves.Reserve1
		token = in.Token1
	}

	dec, err := c.reader.Decimals(ctx, token)
	if err != nil {
		return 0, false
	}
	usdPrice, found := c.baseUSD(ctx, in.Chain, base.Address)
	if !found {
		return 0, false
	}

	reserveNat := normalize(reserve, dec)
	return 2 * reserveNat * usdPrice, true
}

// baseSide reports which side (0 or 1) of the pool is a recognized base
// token, preferring the higher-priority side if both are.
func (c *Checker) baseSide(in Input) (domain.BaseToken, int, bool) {
	bt0, ok0 := domain.LookupBaseToken(in.Chain, in.Token0)
	bt1, ok1 := domain.LookupBaseToken(in.Chain, in.Token1)
	switch {
	case ok0 && ok1:
		if bt0.Priority <= bt1.Priority {
			return bt0, 0, true
		}
		return bt1, 1, true
	case ok0:
		return bt0, 0, true
	case ok1:
		return bt1, 1, true
	default:
		return domain.BaseToken{}, 0, false
	}
}

// targetSide picks the non-base side of the pool, defaulting to token0 if
// both or neither side is a recognized base token, matching the
// MarketSubscriber's own target-side rule (spec.md §4.3 step 1).
func targetSide(chain domain.Chain, token0, token1 common.Address) (target, other common.Address, targetIsToken0 bool) {
	base0 := domain.IsBaseToken(chain, token0)
	base1 := domain.IsBaseToken(chain, token1)
	switch {
	case base0 && !base1:
		return token1, token0, false
	case base1 && !base0:
		return token0, token1, true
	default:
		return token0, token1, true
	}
}

func normalize(amount *big.Int, decimals uint8) float64 {
	if amount == nil {
		return 0
	}
	f := new(big.Float).SetInt(amount)
	div := new(big.Float).SetInt(pow10(decimals))
	out, _ := new(big.Float).Quo(f, div).Float64()
	return out
}

func pow10(n uint8) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}

// probeAmount implements the "10^max(0, decimals-6), floor 1" rule spec.md
// §4.2 check 3 defines for both the V2 and V3 sellability probes.
func probeAmount(decimals uint8) *big.Int {
	exp := 0
	if int(decimals) > 6 {
		exp = int(decimals) - 6
	}
	return pow10(uint8(exp))
}

// checkSellability implements spec.md §4.2 check 3.
func (c *Checker) checkSellability(ctx context.Context, in Input) Result {
	if in.Type == domain.MarketV2 {
		return c.checkSellabilityV2(ctx, in)
	}
	return c.checkSellabilityV3(ctx, in)
}

func (c *Checker) checkSellabilityV2(ctx context.Context, in Input) Result {
	target, _, _ := targetSide(in.Chain, in.Token0, in.Token1)

	dec, err := c.reader.Decimals(ctx, target)
	if err != nil {
		return fail(fmt.Sprintf("sellability fail: decimals: %v", err))
	}
	amountIn := probeAmount(dec)
	router := domain.RouterFor(in.Chain)
	bases := domain.BaseTokens(in.Chain)

	for _, b := range bases {
		if b.Address == (common.Address{}) {
			continue
		}
		path := []common.Address{target, b.Address}
		if amounts, err := c.reader.GetAmountsOut(ctx, router, amountIn, path); err == nil && len(amounts) > 0 && amounts[len(amounts)-1].Sign() > 0 {
			return Result{Pass: true}
		}
	}
	for _, mid := range bases {
		if mid.Address == (common.Address{}) {
			continue
		}
		for _, dst := range bases {
			if dst.Address == (common.Address{}) || dst.Address == mid.Address {
				continue
			}
			path := []common.Address{target, mid.Address, dst.Address}
			if amounts, err := c.reader.GetAmountsOut(ctx, router, amountIn, path); err == nil && len(amounts) > 0 && amounts[len(amounts)-1].Sign() > 0 {
				return Result{Pass: true}
			}
		}
	}
	return fail("sellability fail: no static route found (V2)")
}

func (c *Checker) checkSellabilityV3(ctx context.Context, in Input) Result {
	if in.Fee == nil {
		return fail("sellability fail: no fee tier (V3)")
	}
	factory := domain.V3FactoryFor(in.Chain)
	got, err := c.reader.GetPool(ctx, factory, in.Token0, in.Token1, *in.Fee)
	if err != nil {
		return fail(fmt.Sprintf("sellability fail: getPool: %v", err))
	}
	if got != in.Address {
		return fail("sellability fail: pool address mismatch (V3)")
	}

	target, base, _ := targetSide(in.Chain, in.Token0, in.Token1)
	if !domain.IsBaseToken(in.Chain, base) {
		return fail("sellability fail: no recognized base token in pool (V3)")
	}

	dec, err := c.reader.Decimals(ctx, target)
	if err != nil {
		return fail(fmt.Sprintf("sellability fail: decimals: %v", err))
	}
	quoter := domain.V3QuoterFor(in.Chain)
	unit := probeAmount(dec)
	for _, mult := range []int64{1, 10, 100} {
		amt := new(big.Int).Mul(unit, big.NewInt(mult))
		out, err := c.reader.QuoteExactInputSingle(ctx, quoter, target, base, *in.Fee, amt)
		if err == nil && out != nil && out.Sign() > 0 {
			return Result{Pass: true}
		}
	}
	return fail("sellability fail: quoter returned no positive output (V3)")
}

// checkLPRisk implements spec.md §4.2 check 4, folding in a bonus derived
// from the trimmed bytecode Analyzer.
func (c *Checker) checkLPRisk(ctx context.Context, in Input) Result {
	score := 0
	if !domain.IsBaseToken(in.Chain, in.Token0) && !domain.IsBaseToken(in.Chain, in.Token1) {
		score += 2
	}
	switch {
	case in.AggLiquidityUSD < lowLiqUSD:
		score += 2
	case in.AggLiquidityUSD < midLiqUSD:
		score++
	}

	score += c.bytecodeBonus(ctx, in)

	if score >= rejectScore {
		return fail(fmt.Sprintf("lp-risk fail: score %d >= %d", score, rejectScore))
	}
	return Result{Pass: true}
}

// highSeverityFlags names the Analyzer flags severe enough to add the
// bytecode bonus's top tier on their own, regardless of how the rest of the
// scan's numeric score sums up.
var highSeverityFlags = map[string]bool{
	"SelfDestruct":                true,
	"HardcodedBlacklistedAddress": true,
	"HiddenMint":                  true,
	"PotentialHoneypot":           true,
}

// bytecodeBonus statically scans the non-base ("target") side's deployed
// code. Any single high-severity flag adds the top-tier bonus outright; a
// contract can otherwise rack up a large numeric score from several minor
// flags (e.g. Stateless + NoTransferEvent) without any one of them being
// severe, which only earns the lower tier.
func (c *Checker) bytecodeBonus(ctx context.Context, in Input) int {
	target, _, _ := targetSide(in.Chain, in.Token0, in.Token1)
	code, err := c.reader.Code(ctx, target)
	if err != nil || len(code) == 0 {
		return 0
	}

	start := time.Now()
	analyzer := NewAnalyzer(code)
	flags, score := analyzer.Analyze()
	if c.metrics != nil {
		c.metrics.BytecodeAnalysisDuration.Observe(time.Since(start).Seconds())
		for _, f := range flags {
			c.metrics.BytecodeAnalysisFlags.WithLabelValues(f).Inc()
		}
	}

	for _, f := range flags {
		if highSeverityFlags[f] {
			return 2
		}
	}
	if score > 0 {
		return 1
	}
	return 0
}

// checkTaxAverage implements spec.md §4.2 check 5. Absent samples are not a
// failure — the estimator has nothing to average yet.
func (c *Checker) checkTaxAverage(in Input) Result {
	if c.taxEst == nil {
		return Result{Pass: true}
	}
	key := domain.NewMarketKey(in.Chain, in.Type, in.Address)
	avgBuy, avgSell, hasBuy, hasSell := c.taxEst.GetAvg(key, time.Now())
	if hasBuy && avgBuy > in.MaxTaxPct {
		return fail(fmt.Sprintf("tax fail: avg buy tax %.4f > %.4f", avgBuy, in.MaxTaxPct))
	}
	if hasSell && avgSell > in.MaxTaxPct {
		return fail(fmt.Sprintf("tax fail: avg sell tax %.4f > %.4f", avgSell, in.MaxTaxPct))
	}
	return Result{Pass: true}
}
