package ethreader

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// V2SwapEvent is the decoded form of a V2 pair's Swap log.
type V2SwapEvent struct {
	Sender     common.Address
	Amount0In  *big.Int
	Amount1In  *big.Int
	Amount0Out *big.Int
	Amount1Out *big.Int
	To         common.Address
}

// DecodeV2Swap unpacks a V2 Swap log's indexed topics and non-indexed data.
func DecodeV2Swap(l types.Log) (V2SwapEvent, error) {
	if len(l.Topics) < 3 {
		return V2SwapEvent{}, fmt.Errorf("v2 swap: expected 3 topics, got %d", len(l.Topics))
	}
	values, err := v2PairEventsABI.Events["Swap"].Inputs.NonIndexed().Unpack(l.Data)
	if err != nil || len(values) < 4 {
		return V2SwapEvent{}, fmt.Errorf("v2 swap: unpack data: %w", err)
	}
	return V2SwapEvent{
		Sender:     common.HexToAddress(l.Topics[1].Hex()),
		Amount0In:  values[0].(*big.Int),
		Amount1In:  values[1].(*big.Int),
		Amount0Out: values[2].(*big.Int),
		Amount1Out: values[3].(*big.Int),
		To:         common.HexToAddress(l.Topics[2].Hex()),
	}, nil
}

// V2MintEvent is the decoded form of a V2 pair's Mint log.
type V2MintEvent struct {
	Sender  common.Address
	Amount0 *big.Int
	Amount1 *big.Int
}

// DecodeV2Mint unpacks a V2 Mint log.
func DecodeV2Mint(l types.Log) (V2MintEvent, error) {
	if len(l.Topics) < 2 {
		return V2MintEvent{}, fmt.Errorf("v2 mint: expected 2 topics, got %d", len(l.Topics))
	}
	values, err := v2PairEventsABI.Events["Mint"].Inputs.NonIndexed().Unpack(l.Data)
	if err != nil || len(values) < 2 {
		return V2MintEvent{}, fmt.Errorf("v2 mint: unpack data: %w", err)
	}
	return V2MintEvent{
		Sender:  common.HexToAddress(l.Topics[1].Hex()),
		Amount0: values[0].(*big.Int),
		Amount1: values[1].(*big.Int),
	}, nil
}

// V3SwapEvent is the decoded form of a V3 pool's Swap log.
type V3SwapEvent struct {
	Sender       common.Address
	Recipient    common.Address
	Amount0      *big.Int
	Amount1      *big.Int
	SqrtPriceX96 *big.Int
	Liquidity    *big.Int
	Tick         int32
}

// DecodeV3Swap unpacks a V3 Swap log.
func DecodeV3Swap(l types.Log) (V3SwapEvent, error) {
	if len(l.Topics) < 3 {
		return V3SwapEvent{}, fmt.Errorf("v3 swap: expected 3 topics, got %d", len(l.Topics))
	}
	values, err := v3PoolEventsABI.Events["Swap"].Inputs.NonIndexed().Unpack(l.Data)
	if err != nil || len(values) < 5 {
		return V3SwapEvent{}, fmt.Errorf("v3 swap: unpack data: %w", err)
	}
	return V3SwapEvent{
		Sender:       common.HexToAddress(l.Topics[1].Hex()),
		Recipient:    common.HexToAddress(l.Topics[2].Hex()),
		Amount0:      values[0].(*big.Int),
		Amount1:      values[1].(*big.Int),
		SqrtPriceX96: values[2].(*big.Int),
		Liquidity:    values[3].(*big.Int),
		Tick:         values[4].(int32),
	}, nil
}

// V2PairCreatedEvent is the decoded form of a V2 factory's PairCreated log.
type V2PairCreatedEvent struct {
	Token0 common.Address
	Token1 common.Address
	Pair   common.Address
}

// DecodeV2PairCreated unpacks a V2 factory PairCreated log.
func DecodeV2PairCreated(l types.Log) (V2PairCreatedEvent, error) {
	if len(l.Topics) < 3 {
		return V2PairCreatedEvent{}, fmt.Errorf("pair created: expected 3 topics, got %d", len(l.Topics))
	}
	values, err := v2FactoryEventsABI.Events["PairCreated"].Inputs.NonIndexed().Unpack(l.Data)
	if err != nil || len(values) < 1 {
		return V2PairCreatedEvent{}, fmt.Errorf("pair created: unpack data: %w", err)
	}
	return V2PairCreatedEvent{
		Token0: common.HexToAddress(l.Topics[1].Hex()),
		Token1: common.HexToAddress(l.Topics[2].Hex()),
		Pair:   values[0].(common.Address),
	}, nil
}

// V3PoolCreatedEvent is the decoded form of a V3 factory's PoolCreated log.
type V3PoolCreatedEvent struct {
	Token0      common.Address
	Token1      common.Address
	Fee         uint32
	TickSpacing int32
	Pool        common.Address
}

// DecodeV3PoolCreated unpacks a V3 factory PoolCreated log.
func DecodeV3PoolCreated(l types.Log) (V3PoolCreatedEvent, error) {
	if len(l.Topics) < 4 {
		return V3PoolCreatedEvent{}, fmt.Errorf("pool created: expected 4 topics, got %d", len(l.Topics))
	}
	values, err := v3FactoryEventsABI.Events["PoolCreated"].Inputs.NonIndexed().Unpack(l.Data)
	if err != nil || len(values) < 2 {
		return V3PoolCreatedEvent{}, fmt.Errorf("pool created: unpack data: %w", err)
	}
	feeBig := new(big.Int).SetBytes(l.Topics[3].Bytes())
	return V3PoolCreatedEvent{
		Token0:      common.HexToAddress(l.Topics[1].Hex()),
		Token1:      common.HexToAddress(l.Topics[2].Hex()),
		Fee:         uint32(feeBig.Uint64()),
		TickSpacing: values[0].(int32),
		Pool:        values[1].(common.Address),
	}, nil
}
