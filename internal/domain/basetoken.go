package domain

import "github.com/ethereum/go-ethereum/common"

// BaseToken describes one entry in a chain's recognized quote-asset table.
// Priority is lower-is-preferred: the wrapped native asset outranks
// stablecoins, matching spec.md §4.5's "prefer the side whose base token is
// higher-priority" rule.
type BaseToken struct {
	Symbol   string
	Address  common.Address
	Priority int
	Stable   bool
}

// baseTokens is the immutable, per-chain closed set of recognized base
// tokens. Populated once at process start (see cmd/marketwatch's
// wellKnownBaseTokens, which hardcodes the addresses) and never
// mutated afterward.
var baseTokens = map[Chain][]BaseToken{
	ChainBSC: {
		{Symbol: "WBNB", Priority: 0},
		{Symbol: "USDT", Priority: 1, Stable: true},
		{Symbol: "USDC", Priority: 2, Stable: true},
		{Symbol: "DAI", Priority: 3, Stable: true},
		{Symbol: "BUSD", Priority: 4, Stable: true},
	},
	ChainETH: {
		{Symbol: "WETH", Priority: 0},
		{Symbol: "USDT", Priority: 1, Stable: true},
		{Symbol: "USDC", Priority: 2, Stable: true},
		{Symbol: "DAI", Priority: 3, Stable: true},
	},
}

// SetBaseTokenAddress fills in the on-chain address for a symbol on a chain.
// Called once during composition-root wiring with the hardcoded addresses in
// cmd/marketwatch's wellKnownBaseTokens; the table
// is immutable after that (see spec.md §3).
func SetBaseTokenAddress(chain Chain, symbol string, addr common.Address) {
	list := baseTokens[chain]
	for i := range list {
		if list[i].Symbol == symbol {
			list[i].Address = addr
			return
		}
	}
}

// BaseTokens returns the ordered (by priority) base-token table for a chain.
func BaseTokens(chain Chain) []BaseToken {
	return baseTokens[chain]
}

// LookupBaseToken reports whether addr is a recognized base token on chain,
// returning its table entry.
func LookupBaseToken(chain Chain, addr common.Address) (BaseToken, bool) {
	for _, bt := range baseTokens[chain] {
		if bt.Address == addr {
			return bt, true
		}
	}
	return BaseToken{}, false
}

// IsBaseToken is a convenience wrapper around LookupBaseToken.
func IsBaseToken(chain Chain, addr common.Address) bool {
	_, ok := LookupBaseToken(chain, addr)
	return ok
}

// HigherPriority reports whether a should be preferred over b when both
// sides of a pool are base tokens (spec.md §4.5).
func HigherPriority(chain Chain, a, b common.Address) bool {
	ta, oka := LookupBaseToken(chain, a)
	tb, okb := LookupBaseToken(chain, b)
	if !oka {
		return false
	}
	if !okb {
		return true
	}
	return ta.Priority < tb.Priority
}
