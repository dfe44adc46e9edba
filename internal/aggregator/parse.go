package aggregator

import (
	"encoding/json"
	"strconv"
)

// decodeBody parses a response body as untyped JSON. Only the allowlisted
// fields spec.md §6 names are ever read back out of the result.
func decodeBody(raw []byte) (map[string]any, error) {
	var body map[string]any
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, err
	}
	return body, nil
}

func extractField(body map[string]any, key string) (map[string]any, bool) {
	v, ok := body[key]
	if !ok {
		return nil, false
	}
	m, ok := v.(map[string]any)
	return m, ok
}

func extractPairs(body map[string]any, key string) []Pair {
	raw, ok := body[key]
	if !ok {
		return nil
	}
	list, ok := raw.([]any)
	if !ok {
		return nil
	}
	pairs := make([]Pair, 0, len(list))
	for _, entry := range list {
		m, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		if p, ok := pairFromMap(m); ok {
			pairs = append(pairs, p)
		}
	}
	return pairs
}

func pairFromMap(m map[string]any) (Pair, bool) {
	p := Pair{
		ChainID:      firstString(m, "chainId", "chain"),
		DexID:        stringField(m, "dexId"),
		PairAddress:  stringField(m, "pairAddress"),
		PriceUSD:     floatField(m, "priceUsd"),
		LiquidityUSD: nestedFloat(m, "liquidity", "usd"),
		FeeTier:      uint32(firstFloat(m, "feeTier", "fee")),
	}
	if base, ok := extractField(m, "baseToken"); ok {
		p.BaseToken = stringField(base, "address")
	}
	if quote, ok := extractField(m, "quoteToken"); ok {
		p.QuoteToken = stringField(quote, "address")
	}
	if txns, ok := extractField(m, "txns"); ok {
		if m5, ok := extractField(txns, "m5"); ok {
			p.TxnsBuysM5 = int(floatField(m5, "buys"))
			p.TxnsSellsM5 = int(floatField(m5, "sells"))
		}
		if h1, ok := extractField(txns, "h1"); ok {
			p.TxnsBuysH1 = int(floatField(h1, "buys"))
			p.TxnsSellsH1 = int(floatField(h1, "sells"))
		}
	}
	if p.PairAddress == "" {
		return Pair{}, false
	}
	return p, true
}

func stringField(m map[string]any, key string) string {
	if v, ok := m[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s := stringField(m, k); s != "" {
			return s
		}
	}
	return ""
}

func floatField(m map[string]any, key string) float64 {
	v, ok := m[key]
	if !ok {
		return 0
	}
	switch n := v.(type) {
	case float64:
		return n
	case string:
		f, _ := strconv.ParseFloat(n, 64)
		return f
	default:
		return 0
	}
}

func firstFloat(m map[string]any, keys ...string) float64 {
	for _, k := range keys {
		if _, ok := m[k]; ok {
			if f := floatField(m, k); f != 0 {
				return f
			}
		}
	}
	return 0
}

func nestedFloat(m map[string]any, key, subkey string) float64 {
	nested, ok := extractField(m, key)
	if !ok {
		return 0
	}
	return floatField(nested, subkey)
}
