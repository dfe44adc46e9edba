// Package domain holds the shared types every other package keys its state
// by: chains, market identity, lifecycle status, and the recognized
// base-token table.
package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Chain identifies which EVM chain a market lives on.
type Chain int

const (
	ChainBSC Chain = iota
	ChainETH
)

func (c Chain) String() string {
	switch c {
	case ChainBSC:
		return "bsc"
	case ChainETH:
		return "eth"
	default:
		return "unknown"
	}
}

// MarketType tags which AMM generation a pool implements.
type MarketType int

const (
	MarketV2 MarketType = iota
	MarketV3
)

func (t MarketType) String() string {
	if t == MarketV3 {
		return "v3"
	}
	return "v2"
}

// MarketStatus is the Watchlist lifecycle state of a market.
type MarketStatus int

const (
	StatusPending MarketStatus = iota
	StatusActive
	StatusRejected
)

func (s MarketStatus) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusRejected:
		return "rejected"
	default:
		return "pending"
	}
}

// MarketKey is the opaque identity every collaborator keys its per-market
// state by. Components never hold a *Market pointer across an await point;
// they hold a MarketKey and ask the Watchlist for current state.
type MarketKey struct {
	Chain   Chain
	Type    MarketType
	Address common.Address
}

// String renders a stable, lowercase-hex identity suitable for map keys and
// log lines.
func (k MarketKey) String() string {
	return fmt.Sprintf("%s:%s:%s", k.Chain, k.Type, strings.ToLower(k.Address.Hex()))
}

// NewMarketKey builds a MarketKey. The address is stored as a 20-byte
// common.Address, so hex case plays no part in key equality; String renders
// it as lowercase hex.
func NewMarketKey(chain Chain, typ MarketType, addr common.Address) MarketKey {
	return MarketKey{Chain: chain, Type: typ, Address: addr}
}

// Market is the Watchlist's owned record for one pool. Ownership is
// exclusive to the Watchlist; other components only ever read a copy
// returned by Watchlist.Get.
type Market struct {
	Key           MarketKey
	Token0        common.Address
	Token1        common.Address
	Fee           *uint32 // v3 fee tier, nil for v2
	FirstSeen     time.Time
	LastUpdated   time.Time
	Status        MarketStatus
	Reason        string
	LiquidityUSD  float64
	LastMintUSD   float64
	BaseTokenHint common.Address
}

// Clone returns a value copy safe to hand to a caller outside the
// Watchlist's lock.
func (m Market) Clone() Market {
	if m.Fee != nil {
		fee := *m.Fee
		m.Fee = &fee
	}
	return m
}
