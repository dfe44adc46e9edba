package ethreader

import (
	"context"
	"fmt"
	"math/big"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
)

// Reader performs the read-only contract calls the safety probes and
// pricers need, packing/unpacking through accounts/abi rather than a
// hand-rolled selector table.
type Reader struct {
	client ChainClient
}

// New builds a Reader over a ChainClient.
func New(client ChainClient) *Reader {
	return &Reader{client: client}
}

func (r *Reader) call(ctx context.Context, target common.Address, data []byte) ([]byte, error) {
	return r.client.CallContract(ctx, ethereum.CallMsg{To: &target, Data: data}, nil)
}

// HasCode reports whether an address carries deployed bytecode, per
// spec.md §4.2 check 1 (bytecode presence).
func (r *Reader) HasCode(ctx context.Context, addr common.Address) (bool, error) {
	code, err := r.client.CodeAt(ctx, addr, nil)
	if err != nil {
		return false, err
	}
	return len(code) > 0, nil
}

// Code returns raw bytecode for static analysis.
func (r *Reader) Code(ctx context.Context, addr common.Address) ([]byte, error) {
	return r.client.CodeAt(ctx, addr, nil)
}

// Decimals reads ERC20.decimals(), falling back to 18 on any error per
// spec.md §4.5.
func (r *Reader) Decimals(ctx context.Context, token common.Address) (uint8, error) {
	data, err := erc20ABI.Pack("decimals")
	if err != nil {
		return 18, err
	}
	out, err := r.call(ctx, token, data)
	if err != nil {
		return 18, err
	}
	res, err := erc20ABI.Unpack("decimals", out)
	if err != nil || len(res) == 0 {
		return 18, fmt.Errorf("decimals: unpack: %w", err)
	}
	return res[0].(uint8), nil
}

// TotalSupply reads ERC20.totalSupply().
func (r *Reader) TotalSupply(ctx context.Context, token common.Address) (*big.Int, error) {
	data, err := erc20ABI.Pack("totalSupply")
	if err != nil {
		return nil, err
	}
	out, err := r.call(ctx, token, data)
	if err != nil {
		return nil, err
	}
	res, err := erc20ABI.Unpack("totalSupply", out)
	if err != nil || len(res) == 0 {
		return nil, fmt.Errorf("totalSupply: unpack: %w", err)
	}
	return res[0].(*big.Int), nil
}

// Reserves is the V2 pair's getReserves() result.
type Reserves struct {
	Reserve0 *big.Int
	Reserve1 *big.Int
}

// GetReserves reads a V2 pair's reserves.
func (r *Reader) GetReserves(ctx context.Context, pair common.Address) (Reserves, error) {
	data, err := v2PairABI.Pack("getReserves")
	if err != nil {
		return Reserves{}, err
	}
	out, err := r.call(ctx, pair, data)
	if err != nil {
		return Reserves{}, err
	}
	res, err := v2PairABI.Unpack("getReserves", out)
	if err != nil || len(res) < 2 {
		return Reserves{}, fmt.Errorf("getReserves: unpack: %w", err)
	}
	return Reserves{
		Reserve0: res[0].(*big.Int),
		Reserve1: res[1].(*big.Int),
	}, nil
}

// Slot0 is the subset of a V3 pool's slot0() this system needs.
type Slot0 struct {
	SqrtPriceX96 *big.Int
	Tick         int32
}

// GetSlot0 reads a V3 pool's slot0().
func (r *Reader) GetSlot0(ctx context.Context, pool common.Address) (Slot0, error) {
	data, err := v3PoolABI.Pack("slot0")
	if err != nil {
		return Slot0{}, err
	}
	out, err := r.call(ctx, pool, data)
	if err != nil {
		return Slot0{}, err
	}
	res, err := v3PoolABI.Unpack("slot0", out)
	if err != nil || len(res) < 2 {
		return Slot0{}, fmt.Errorf("slot0: unpack: %w", err)
	}
	return Slot0{
		SqrtPriceX96: res[0].(*big.Int),
		Tick:         res[1].(int32),
	}, nil
}

// GetAmountsOut calls the V2 router's getAmountsOut(amountIn, path). A
// revert surfaces as a non-nil error, which callers treat as "no route"
// per spec.md §4.2 check 3, not as a system failure.
func (r *Reader) GetAmountsOut(ctx context.Context, router common.Address, amountIn *big.Int, path []common.Address) ([]*big.Int, error) {
	data, err := v2RouterABI.Pack("getAmountsOut", amountIn, path)
	if err != nil {
		return nil, err
	}
	out, err := r.call(ctx, router, data)
	if err != nil {
		return nil, err
	}
	res, err := v2RouterABI.Unpack("getAmountsOut", out)
	if err != nil || len(res) == 0 {
		return nil, fmt.Errorf("getAmountsOut: unpack: %w", err)
	}
	return res[0].([]*big.Int), nil
}

// GetPool calls the V3 factory's getPool(tokenA, tokenB, fee).
func (r *Reader) GetPool(ctx context.Context, factory common.Address, tokenA, tokenB common.Address, fee uint32) (common.Address, error) {
	data, err := v3FactoryABI.Pack("getPool", tokenA, tokenB, big.NewInt(int64(fee)))
	if err != nil {
		return common.Address{}, err
	}
	out, err := r.call(ctx, factory, data)
	if err != nil {
		return common.Address{}, err
	}
	res, err := v3FactoryABI.Unpack("getPool", out)
	if err != nil || len(res) == 0 {
		return common.Address{}, fmt.Errorf("getPool: unpack: %w", err)
	}
	return res[0].(common.Address), nil
}

// QuoteExactInputSingle calls the V3 quoter. A revert (zero-liquidity probe)
// surfaces as an error, treated as a negative sellability signal, not a
// system failure.
func (r *Reader) QuoteExactInputSingle(ctx context.Context, quoter common.Address, tokenIn, tokenOut common.Address, fee uint32, amountIn *big.Int) (*big.Int, error) {
	data, err := v3QuoterABI.Pack("quoteExactInputSingle", tokenIn, tokenOut, big.NewInt(int64(fee)), amountIn, big.NewInt(0))
	if err != nil {
		return nil, err
	}
	out, err := r.call(ctx, quoter, data)
	if err != nil {
		return nil, err
	}
	res, err := v3QuoterABI.Unpack("quoteExactInputSingle", out)
	if err != nil || len(res) == 0 {
		return nil, fmt.Errorf("quoteExactInputSingle: unpack: %w", err)
	}
	return res[0].(*big.Int), nil
}
