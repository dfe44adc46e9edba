package domain

import "github.com/ethereum/go-ethereum/common"

// Candidate is a newly observed market awaiting admission, produced by
// Ingress and consumed by the Gate Pipeline, per spec.md §4.1.
type Candidate struct {
	Key              MarketKey
	Token0           common.Address
	Token1           common.Address
	Fee              *uint32
	LiquidityUSDHint float64
	Source           string // "factory" or "trending"
}
