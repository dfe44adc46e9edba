// Package ethreader wraps the read-only contract calls spec.md §6 requires
// (ERC-20 decimals/totalSupply, V2 pair getReserves, V3 pool slot0, V2
// router getAmountsOut, V3 factory getPool, V3 quoter quoteExactInputSingle,
// eth_getCode) behind a small typed API built on
// github.com/ethereum/go-ethereum/accounts/abi, generalizing the teacher's
// EthClient interface (rnts08-eth-watchtower/src/main.go) which already
// narrows *ethclient.Client down to the handful of methods actually used.
package ethreader

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const erc20ABIJSON = `[
	{"constant":true,"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"type":"function"},
	{"constant":true,"inputs":[],"name":"totalSupply","outputs":[{"name":"","type":"uint256"}],"type":"function"}
]`

const v2PairABIJSON = `[
	{"constant":true,"inputs":[],"name":"getReserves","outputs":[{"name":"reserve0","type":"uint112"},{"name":"reserve1","type":"uint112"},{"name":"blockTimestampLast","type":"uint32"}],"type":"function"}
]`

const v3PoolABIJSON = `[
	{"constant":true,"inputs":[],"name":"slot0","outputs":[
		{"name":"sqrtPriceX96","type":"uint160"},
		{"name":"tick","type":"int24"},
		{"name":"observationIndex","type":"uint16"},
		{"name":"observationCardinality","type":"uint16"},
		{"name":"observationCardinalityNext","type":"uint16"},
		{"name":"feeProtocol","type":"uint8"},
		{"name":"unlocked","type":"bool"}
	],"type":"function"}
]`

const v2RouterABIJSON = `[
	{"constant":true,"inputs":[{"name":"amountIn","type":"uint256"},{"name":"path","type":"address[]"}],"name":"getAmountsOut","outputs":[{"name":"amounts","type":"uint256[]"}],"type":"function"}
]`

const v3FactoryABIJSON = `[
	{"constant":true,"inputs":[{"name":"tokenA","type":"address"},{"name":"tokenB","type":"address"},{"name":"fee","type":"uint24"}],"name":"getPool","outputs":[{"name":"pool","type":"address"}],"type":"function"}
]`

const v3QuoterABIJSON = `[
	{"inputs":[{"name":"tokenIn","type":"address"},{"name":"tokenOut","type":"address"},{"name":"fee","type":"uint24"},{"name":"amountIn","type":"uint256"},{"name":"sqrtPriceLimitX96","type":"uint160"}],"name":"quoteExactInputSingle","outputs":[{"name":"amountOut","type":"uint256"}],"type":"function"}
]`

const v2PairEventsABIJSON = `[
	{"anonymous":false,"inputs":[{"indexed":true,"name":"sender","type":"address"},{"indexed":false,"name":"amount0In","type":"uint256"},{"indexed":false,"name":"amount1In","type":"uint256"},{"indexed":false,"name":"amount0Out","type":"uint256"},{"indexed":false,"name":"amount1Out","type":"uint256"},{"indexed":true,"name":"to","type":"address"}],"name":"Swap","type":"event"},
	{"anonymous":false,"inputs":[{"indexed":true,"name":"sender","type":"address"},{"indexed":false,"name":"amount0","type":"uint256"},{"indexed":false,"name":"amount1","type":"uint256"}],"name":"Mint","type":"event"}
]`

const v3PoolEventsABIJSON = `[
	{"anonymous":false,"inputs":[{"indexed":true,"name":"sender","type":"address"},{"indexed":true,"name":"recipient","type":"address"},{"indexed":false,"name":"amount0","type":"int256"},{"indexed":false,"name":"amount1","type":"int256"},{"indexed":false,"name":"sqrtPriceX96","type":"uint160"},{"indexed":false,"name":"liquidity","type":"uint128"},{"indexed":false,"name":"tick","type":"int24"}],"name":"Swap","type":"event"}
]`

const v2FactoryEventsABIJSON = `[
	{"anonymous":false,"inputs":[{"indexed":true,"name":"token0","type":"address"},{"indexed":true,"name":"token1","type":"address"},{"indexed":false,"name":"pair","type":"address"},{"indexed":false,"name":"","type":"uint256"}],"name":"PairCreated","type":"event"}
]`

const v3FactoryEventsABIJSON = `[
	{"anonymous":false,"inputs":[{"indexed":true,"name":"token0","type":"address"},{"indexed":true,"name":"token1","type":"address"},{"indexed":true,"name":"fee","type":"uint24"},{"indexed":false,"name":"tickSpacing","type":"int24"},{"indexed":false,"name":"pool","type":"address"}],"name":"PoolCreated","type":"event"}
]`

var (
	erc20ABI     = mustParse(erc20ABIJSON)
	v2PairABI    = mustParse(v2PairABIJSON)
	v3PoolABI    = mustParse(v3PoolABIJSON)
	v2RouterABI  = mustParse(v2RouterABIJSON)
	v3FactoryABI = mustParse(v3FactoryABIJSON)
	v3QuoterABI  = mustParse(v3QuoterABIJSON)

	v2PairEventsABI    = mustParse(v2PairEventsABIJSON)
	v3PoolEventsABI    = mustParse(v3PoolEventsABIJSON)
	v2FactoryEventsABI = mustParse(v2FactoryEventsABIJSON)
	v3FactoryEventsABI = mustParse(v3FactoryEventsABIJSON)

	// V2SwapTopic and friends are the event topic-0 hashes subscribers filter on.
	V2SwapTopic        = v2PairEventsABI.Events["Swap"].ID
	V2MintTopic        = v2PairEventsABI.Events["Mint"].ID
	V3SwapTopic        = v3PoolEventsABI.Events["Swap"].ID
	V2PairCreatedTopic = v2FactoryEventsABI.Events["PairCreated"].ID
	V3PoolCreatedTopic = v3FactoryEventsABI.Events["PoolCreated"].ID
)

func mustParse(js string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(js))
	if err != nil {
		panic("ethreader: invalid embedded ABI: " + err.Error())
	}
	return parsed
}
