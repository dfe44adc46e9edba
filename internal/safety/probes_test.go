package safety

import (
	"bytes"
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
	"github.com/daisy9542/meme-alert-bot/internal/tax"
)

const (
	decimalsABIJSON   = `[{"constant":true,"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"type":"function"}]`
	reservesABIJSON   = `[{"constant":true,"inputs":[],"name":"getReserves","outputs":[{"name":"reserve0","type":"uint112"},{"name":"reserve1","type":"uint112"},{"name":"blockTimestampLast","type":"uint32"}],"type":"function"}]`
	amountsOutABIJSON = `[{"constant":true,"inputs":[{"name":"amountIn","type":"uint256"},{"name":"path","type":"address[]"}],"name":"getAmountsOut","outputs":[{"name":"amounts","type":"uint256[]"}],"type":"function"}]`
	getPoolABIJSON    = `[{"constant":true,"inputs":[{"name":"tokenA","type":"address"},{"name":"tokenB","type":"address"},{"name":"fee","type":"uint24"}],"name":"getPool","outputs":[{"name":"pool","type":"address"}],"type":"function"}]`
	quoteABIJSON      = `[{"inputs":[{"name":"tokenIn","type":"address"},{"name":"tokenOut","type":"address"},{"name":"fee","type":"uint24"},{"name":"amountIn","type":"uint256"},{"name":"sqrtPriceLimitX96","type":"uint160"}],"name":"quoteExactInputSingle","outputs":[{"name":"amountOut","type":"uint256"}],"type":"function"}]`
)

var (
	decimalsABI   = mustParseTest(decimalsABIJSON)
	reservesABI   = mustParseTest(reservesABIJSON)
	amountsOutABI = mustParseTest(amountsOutABIJSON)
	getPoolABI    = mustParseTest(getPoolABIJSON)
	quoteABI      = mustParseTest(quoteABIJSON)
)

func mustParseTest(js string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(js))
	if err != nil {
		panic(err)
	}
	return parsed
}

// fakeSafetyClient dispatches CallContract by method selector so a single
// fake can back every read the Checker's probes issue through a real
// ethreader.Reader.
type fakeSafetyClient struct {
	codeless     map[common.Address]bool
	codeOverride map[common.Address][]byte

	decimals map[common.Address]uint8

	reserve0, reserve1 *big.Int

	amountsOut    *big.Int // non-nil => every getAmountsOut call succeeds with this as the final leg
	amountsOutErr error

	poolAddr common.Address
	poolErr  error

	quoteOut *big.Int
	quoteErr error
}

func newFakeSafetyClient() *fakeSafetyClient {
	return &fakeSafetyClient{
		codeless: map[common.Address]bool{},
		decimals: map[common.Address]uint8{},
	}
}

func (f *fakeSafetyClient) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	if len(msg.Data) < 4 {
		return nil, errors.New("fakeSafetyClient: short call data")
	}
	sel := msg.Data[:4]
	switch {
	case bytes.Equal(sel, decimalsABI.Methods["decimals"].ID):
		dec := uint8(18)
		if msg.To != nil {
			if d, ok := f.decimals[*msg.To]; ok {
				dec = d
			}
		}
		out := make([]byte, 32)
		out[31] = dec
		return out, nil
	case bytes.Equal(sel, reservesABI.Methods["getReserves"].ID):
		r0, r1 := f.reserve0, f.reserve1
		if r0 == nil {
			r0 = big.NewInt(0)
		}
		if r1 == nil {
			r1 = big.NewInt(0)
		}
		return reservesABI.Methods["getReserves"].Outputs.Pack(r0, r1, uint32(0))
	case bytes.Equal(sel, amountsOutABI.Methods["getAmountsOut"].ID):
		if f.amountsOutErr != nil {
			return nil, f.amountsOutErr
		}
		out := f.amountsOut
		if out == nil {
			out = big.NewInt(0)
		}
		return amountsOutABI.Methods["getAmountsOut"].Outputs.Pack([]*big.Int{big.NewInt(1), out})
	case bytes.Equal(sel, getPoolABI.Methods["getPool"].ID):
		if f.poolErr != nil {
			return nil, f.poolErr
		}
		return getPoolABI.Methods["getPool"].Outputs.Pack(f.poolAddr)
	case bytes.Equal(sel, quoteABI.Methods["quoteExactInputSingle"].ID):
		if f.quoteErr != nil {
			return nil, f.quoteErr
		}
		out := f.quoteOut
		if out == nil {
			out = big.NewInt(0)
		}
		return quoteABI.Methods["quoteExactInputSingle"].Outputs.Pack(out)
	default:
		return nil, errors.New("fakeSafetyClient: unrecognized selector")
	}
}

func (f *fakeSafetyClient) CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error) {
	if f.codeless[account] {
		return nil, nil
	}
	if code, ok := f.codeOverride[account]; ok {
		return code, nil
	}
	return []byte{0x60, 0x00}, nil
}

func (f *fakeSafetyClient) SubscribeFilterLogs(ctx context.Context, q ethereum.FilterQuery, ch chan<- types.Log) (ethereum.Subscription, error) {
	return nil, errors.New("not implemented")
}
func (f *fakeSafetyClient) SubscribeNewHead(ctx context.Context, ch chan<- *types.Header) (ethereum.Subscription, error) {
	return nil, errors.New("not implemented")
}
func (f *fakeSafetyClient) Close() {}

func alwaysOneUSD(ctx context.Context, chain domain.Chain, token common.Address) (float64, bool) {
	return 1.0, true
}

func baseInput(chain domain.Chain, typ domain.MarketType, pool, token0, token1 common.Address) Input {
	return Input{
		Chain:           chain,
		Type:            typ,
		Address:         pool,
		Token0:          token0,
		Token1:          token1,
		AggLiquidityUSD: 20000,
		MinLiqUSD:       5000,
		MaxTaxPct:       0.20,
	}
}

func TestCheckBytecodePresenceFailsWhenTokenHasNoCode(t *testing.T) {
	client := newFakeSafetyClient()
	pool := common.HexToAddress("0xpool1")
	token0 := common.HexToAddress("0xtoken1a")
	token1 := common.HexToAddress("0xtoken1b")
	client.codeless[token1] = true

	c := NewChecker(ethreader.New(client), alwaysOneUSD, nil, nil)
	res := c.Admit(context.Background(), baseInput(domain.ChainBSC, domain.MarketV2, pool, token0, token1))

	if res.Pass {
		t.Fatal("expected admission to fail when a token has no deployed code")
	}
}

func TestCheckMinimumLiquidityV2UsesReservesForRecognizedBaseSide(t *testing.T) {
	client := newFakeSafetyClient()
	wbnb := common.HexToAddress("0xa1")
	meme := common.HexToAddress("0xb1")
	pool := common.HexToAddress("0xc1")
	domain.SetBaseTokenAddress(domain.ChainBSC, "WBNB", wbnb)

	client.reserve0 = big.NewInt(10000) // 10000 units of WBNB at 0 decimals => $10000 at $1/unit
	client.reserve1 = big.NewInt(999999)
	client.decimals[wbnb] = 0
	client.decimals[meme] = 18
	client.amountsOut = big.NewInt(1) // sellability passes trivially

	c := NewChecker(ethreader.New(client), alwaysOneUSD, nil, nil)
	in := baseInput(domain.ChainBSC, domain.MarketV2, pool, wbnb, meme)
	in.AggLiquidityUSD = 100000

	res := c.Admit(context.Background(), in)

	if !res.Pass {
		t.Fatalf("expected admission to pass, got reason: %s", res.Reason)
	}
	// liquidity = 2 * 10000 * $1 = $20000, computed from reserves rather than
	// the (much higher) aggregator-reported figure in baseInput.
	if res.LiquidityUSD != 20000 {
		t.Fatalf("expected $20000 computed liquidity, got %v", res.LiquidityUSD)
	}
}

func TestCheckMinimumLiquidityFallsBackToAggregatorFigureWithoutBaseSide(t *testing.T) {
	client := newFakeSafetyClient()
	tokenA := common.HexToAddress("0xa2")
	tokenB := common.HexToAddress("0xb2")
	pool := common.HexToAddress("0xc2")
	client.amountsOutErr = errors.New("no route")

	c := NewChecker(ethreader.New(client), alwaysOneUSD, nil, nil)
	in := baseInput(domain.ChainBSC, domain.MarketV2, pool, tokenA, tokenB)
	in.AggLiquidityUSD = 3000
	in.MinLiqUSD = 5000

	res := c.Admit(context.Background(), in)

	if res.Pass {
		t.Fatal("expected rejection: aggregator-reported liquidity is below MinLiqUSD")
	}
}

func TestCheckSellabilityV2PassesWithOneHopRoute(t *testing.T) {
	client := newFakeSafetyClient()
	wbnb := common.HexToAddress("0xa3")
	meme := common.HexToAddress("0xb3")
	pool := common.HexToAddress("0xc3")
	domain.SetBaseTokenAddress(domain.ChainBSC, "WBNB", wbnb)
	client.reserve0, client.reserve1 = big.NewInt(10000), big.NewInt(999999)
	client.decimals[wbnb], client.decimals[meme] = 0, 18
	client.amountsOut = big.NewInt(42)

	c := NewChecker(ethreader.New(client), alwaysOneUSD, nil, nil)
	res := c.Admit(context.Background(), baseInput(domain.ChainBSC, domain.MarketV2, pool, wbnb, meme))

	if !res.Pass {
		t.Fatalf("expected admission to pass, got reason: %s", res.Reason)
	}
}

func TestCheckSellabilityV2FailsWhenNoRouteFound(t *testing.T) {
	client := newFakeSafetyClient()
	wbnb := common.HexToAddress("0xa4")
	meme := common.HexToAddress("0xb4")
	pool := common.HexToAddress("0xc4")
	domain.SetBaseTokenAddress(domain.ChainBSC, "WBNB", wbnb)
	client.reserve0, client.reserve1 = big.NewInt(10000), big.NewInt(999999)
	client.decimals[wbnb], client.decimals[meme] = 0, 18
	client.amountsOutErr = errors.New("execution reverted")

	c := NewChecker(ethreader.New(client), alwaysOneUSD, nil, nil)
	res := c.Admit(context.Background(), baseInput(domain.ChainBSC, domain.MarketV2, pool, wbnb, meme))

	if res.Pass {
		t.Fatal("expected sellability to fail when every route reverts")
	}
	if !strings.Contains(res.Reason, "sellability") {
		t.Fatalf("expected a sellability failure reason, got %q", res.Reason)
	}
}

func TestCheckSellabilityV3FailsOnPoolAddressMismatch(t *testing.T) {
	client := newFakeSafetyClient()
	weth := common.HexToAddress("0xwethv3")
	meme := common.HexToAddress("0xmemev3")
	observedPool := common.HexToAddress("0xobservedpool")
	client.poolAddr = common.HexToAddress("0xdifferentpool")
	domain.SetBaseTokenAddress(domain.ChainETH, "WETH", weth)

	c := NewChecker(ethreader.New(client), alwaysOneUSD, nil, nil)
	fee := uint32(3000)
	in := baseInput(domain.ChainETH, domain.MarketV3, observedPool, weth, meme)
	in.Fee = &fee

	res := c.Admit(context.Background(), in)

	if res.Pass {
		t.Fatal("expected rejection when getPool doesn't return the observed pool address")
	}
}

func TestCheckSellabilityV3PassesWhenQuoterReturnsPositiveOutput(t *testing.T) {
	client := newFakeSafetyClient()
	weth := common.HexToAddress("0xwethv3ok")
	meme := common.HexToAddress("0xmemev3ok")
	pool := common.HexToAddress("0xpoolv3ok")
	client.poolAddr = pool
	client.quoteOut = big.NewInt(7)
	domain.SetBaseTokenAddress(domain.ChainETH, "WETH", weth)

	c := NewChecker(ethreader.New(client), alwaysOneUSD, nil, nil)
	fee := uint32(3000)
	in := baseInput(domain.ChainETH, domain.MarketV3, pool, weth, meme)
	in.Fee = &fee

	res := c.Admit(context.Background(), in)

	if !res.Pass {
		t.Fatalf("expected admission to pass, got reason: %s", res.Reason)
	}
}

func TestCheckLPRiskRejectsWhenNeitherSideIsBaseAndLiquidityIsLow(t *testing.T) {
	client := newFakeSafetyClient()
	tokenA := common.HexToAddress("0xa5")
	tokenB := common.HexToAddress("0xb5")
	pool := common.HexToAddress("0xc5")
	client.amountsOut = big.NewInt(1) // sellability passes regardless of path content
	// Give the chain a recognized base token so the V2 router-path loop has
	// somewhere to route through; neither tokenA nor tokenB is it.
	domain.SetBaseTokenAddress(domain.ChainBSC, "WBNB", common.HexToAddress("0xd5"))

	c := NewChecker(ethreader.New(client), alwaysOneUSD, nil, nil)
	in := baseInput(domain.ChainBSC, domain.MarketV2, pool, tokenA, tokenB)
	in.AggLiquidityUSD = 2000 // < 3000: +2, plus +2 for no recognized base side and +1 bytecode bonus => score 5
	in.MinLiqUSD = 1000       // low enough that the minimum-liquidity check itself still passes

	res := c.Admit(context.Background(), in)

	if res.Pass {
		t.Fatal("expected lp-risk to reject a pool with no base side and thin liquidity")
	}
	if !strings.Contains(res.Reason, "lp-risk") {
		t.Fatalf("expected an lp-risk failure reason, got %q", res.Reason)
	}
}

// TestBytecodeBonusAwardsTopTierForNamedHighSeverityFlagBelowScoreThreshold
// covers the false negative from summing raw scores: HiddenMint alone
// scores 40, below the old fixed 50-point high-score threshold, but it's
// one of the four named high-severity flags and must earn the +2 bonus on
// its own.
func TestBytecodeBonusAwardsTopTierForNamedHighSeverityFlagBelowScoreThreshold(t *testing.T) {
	client := newFakeSafetyClient()
	target := common.HexToAddress("0xhiddenminttarget")
	// PUSH4 transferSig, PUSH32 transferEventID, SSTORE, CALLER, ADD:
	// hasTransferSig + hasTransferEvent + hasSstore + hasCaller + hasAddSubMul
	// raises only HiddenMint (score 40); the matching transfer-event topic
	// keeps NoTransferEvent/PotentialHoneypot from also firing.
	code := push(0x63, transferSig[:]...)
	code = append(code, push(0x7F, transferEventID...)...)
	code = append(code, 0x55, 0x33, 0x01)
	client.codeOverride = map[common.Address][]byte{target: code}

	c := NewChecker(ethreader.New(client), alwaysOneUSD, nil, nil)
	in := baseInput(domain.ChainBSC, domain.MarketV2, common.HexToAddress("0xhmpool"), common.HexToAddress("0xwbnbhm"), target)
	domain.SetBaseTokenAddress(domain.ChainBSC, "WBNB", common.HexToAddress("0xwbnbhm"))

	bonus := c.bytecodeBonus(context.Background(), in)
	if bonus != 2 {
		t.Fatalf("expected a single named high-severity flag (HiddenMint, score 40) to earn the +2 bonus, got %d", bonus)
	}
}

// TestBytecodeBonusDoesNotAwardTopTierWithoutNamedFlagEvenAtHighScore covers
// the false positive: Stateless (30) + NoTransferEvent (20) sum to the old
// 50-point threshold without either being one of the four named
// high-severity flags, so only the lower +1 tier should apply.
func TestBytecodeBonusDoesNotAwardTopTierWithoutNamedFlagEvenAtHighScore(t *testing.T) {
	client := newFakeSafetyClient()
	target := common.HexToAddress("0xstatelesstarget")
	// PUSH4 transferSig only: hasTransferSig true, no SSTORE anywhere (raises
	// Stateless), no matching transfer-event topic (raises NoTransferEvent).
	code := push(0x63, transferSig[:]...)
	client.codeOverride = map[common.Address][]byte{target: code}

	c := NewChecker(ethreader.New(client), alwaysOneUSD, nil, nil)
	in := baseInput(domain.ChainBSC, domain.MarketV2, common.HexToAddress("0xslpool"), common.HexToAddress("0xwbnbsl"), target)
	domain.SetBaseTokenAddress(domain.ChainBSC, "WBNB", common.HexToAddress("0xwbnbsl"))

	bonus := c.bytecodeBonus(context.Background(), in)
	if bonus != 1 {
		t.Fatalf("expected Stateless+NoTransferEvent (score 50, no named flag) to earn only the +1 bonus, got %d", bonus)
	}
}

func TestCheckTaxAverageRejectsWhenAverageBuyTaxExceedsMax(t *testing.T) {
	client := newFakeSafetyClient()
	wbnb := common.HexToAddress("0xa6")
	meme := common.HexToAddress("0xb6")
	pool := common.HexToAddress("0xc6")
	domain.SetBaseTokenAddress(domain.ChainBSC, "WBNB", wbnb)
	client.reserve0, client.reserve1 = big.NewInt(10000), big.NewInt(999999)
	client.decimals[wbnb], client.decimals[meme] = 0, 18
	client.amountsOut = big.NewInt(5)

	taxEst := newTaxEstimatorWithBuySample(t, domain.NewMarketKey(domain.ChainBSC, domain.MarketV2, pool), 0.5)
	c := NewChecker(ethreader.New(client), alwaysOneUSD, taxEst, nil)

	res := c.Admit(context.Background(), baseInput(domain.ChainBSC, domain.MarketV2, pool, wbnb, meme))

	if res.Pass {
		t.Fatal("expected rejection when the recorded average buy tax exceeds MaxTaxPct")
	}
}

func newTaxEstimatorWithBuySample(t *testing.T, key domain.MarketKey, taxRate float64) *tax.Estimator {
	t.Helper()
	est := tax.New()
	now := time.Now()
	// clamp(expected, observed) = 1 - observed/expected; expected=1, observed=1-taxRate.
	est.RecordBuy(key, now, 1.0, 1.0-taxRate)
	return est
}
