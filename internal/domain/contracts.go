package domain

import "github.com/ethereum/go-ethereum/common"

// DexFamily identifies one of the two DEX families recognized per chain,
// mirroring the DEX allowlist spec.md §4.1 names.
type DexFamily int

const (
	DexPancake DexFamily = iota
	DexUniswap
)

// FactoryContract names one factory this system watches for new-pair events.
type FactoryContract struct {
	Chain   Chain
	Type    MarketType
	Family  DexFamily
	Address common.Address
}

// Factories is the fixed set of factory contracts watched per chain, the
// well-known mainnet deployment addresses for each DEX family's V2/V3
// factories, mirroring the way rnts08-eth-watchtower hardcodes signature and
// router addresses directly in code rather than through configuration.
var Factories = []FactoryContract{
	{Chain: ChainBSC, Type: MarketV2, Family: DexPancake, Address: common.HexToAddress("0xcA143Ce32Fe78f1f7019d7d551a6402fC5350c73")},
	{Chain: ChainBSC, Type: MarketV3, Family: DexPancake, Address: common.HexToAddress("0x0BFbCF9fa4f9C56B0F40a671Ad40E0805A091865")},
	{Chain: ChainETH, Type: MarketV2, Family: DexUniswap, Address: common.HexToAddress("0x5C69bEe701ef814a2B6a3EDD4B1652CB9cc5aA6f")},
	{Chain: ChainETH, Type: MarketV3, Family: DexUniswap, Address: common.HexToAddress("0x1F98431c8aD98523631AE4a59f267346ea31F984")},
}

// RouterFor returns the standard V2 router address for a chain, used by
// SafetyProbes' sellability check.
func RouterFor(chain Chain) common.Address {
	if chain == ChainBSC {
		return common.HexToAddress("0x10ED43C718714eb63d5aA57B78B54704E256024E")
	}
	return common.HexToAddress("0x7a250d5630B4cF539739dF2C5dAcb4c659F2488D")
}

// V3QuoterFor returns the standard V3 quoter address for a chain.
func V3QuoterFor(chain Chain) common.Address {
	if chain == ChainBSC {
		return common.HexToAddress("0xB048Bbc1Ee6b733FFfCFb9e9CeF7375518e25997")
	}
	return common.HexToAddress("0xb27308f9F90D607463bb33eA1BeBb41C27CE5AB6")
}

// V3FactoryFor returns the V3 factory address for a chain, used by
// SafetyProbes' sellability check to confirm the observed pool address.
func V3FactoryFor(chain Chain) common.Address {
	for _, f := range Factories {
		if f.Chain == chain && f.Type == MarketV3 {
			return f.Address
		}
	}
	return common.Address{}
}
