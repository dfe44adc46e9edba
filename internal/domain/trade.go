package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// TradeEvent is one recorded swap against a market's target token, already
// converted to a USD value. Appended monotonically per spec.md §3; ordering
// within a market is delivery order from its subscriber.
type TradeEvent struct {
	Timestamp time.Time
	USDValue  float64
	IsBuy     bool
	Buyer     common.Address
}
