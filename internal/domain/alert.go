package domain

import "github.com/ethereum/go-ethereum/common"

// TradeAlertRequest is the per-trade input MarketSubscriber forwards to
// AlertEvaluator, per spec.md §4.7.
type TradeAlertRequest struct {
	Key          MarketKey
	TargetIsToken0 bool
	LastTradeUSD float64
	IsBuy        bool
	Buyer        common.Address
	LastMintUSD  *float64
	LiquidityUSD *float64
}
