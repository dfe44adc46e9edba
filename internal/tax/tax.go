// Package tax implements C7 TaxEstimator: rolling buy/sell effective-fee
// samples derived from mid-price vs realized swap output, per spec.md §4.8.
// Samples are clamped to [0, 1] using github.com/shopspring/decimal so that
// repeated fee-percentage arithmetic over a 10-minute window does not
// accumulate float64 rounding error, matching this repo's numeric-
// conversion rule (spec.md §9).
package tax

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/daisy9542/meme-alert-bot/internal/domain"
)

const retention = 10 * time.Minute

var (
	zero = decimal.Zero
	one  = decimal.NewFromInt(1)
)

type sample struct {
	timestamp time.Time
	buyTax    *float64
	sellTax   *float64
}

type series struct {
	mu      sync.Mutex
	samples []sample
}

// Estimator tracks rolling tax samples per market.
type Estimator struct {
	mu   sync.RWMutex
	byKey map[domain.MarketKey]*series
}

// New builds an empty Estimator.
func New() *Estimator {
	return &Estimator{byKey: make(map[domain.MarketKey]*series)}
}

func (e *Estimator) seriesFor(key domain.MarketKey) *series {
	e.mu.RLock()
	s, ok := e.byKey[key]
	e.mu.RUnlock()
	if ok {
		return s
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if s, ok := e.byKey[key]; ok {
		return s
	}
	s = &series{}
	e.byKey[key] = s
	return s
}

func pruneLocked(s *series, now time.Time) {
	cutoff := now.Add(-retention)
	i := 0
	for i < len(s.samples) && s.samples[i].timestamp.Before(cutoff) {
		i++
	}
	if i > 0 {
		s.samples = append([]sample(nil), s.samples[i:]...)
	}
}

// clamp implements clamp(0, 1, 1 - observed/max(expected, eps)) using
// decimal arithmetic for the division and subtraction.
func clamp(expected, observed, eps float64) float64 {
	den := decimal.NewFromFloat(expected)
	if expected < eps {
		den = decimal.NewFromFloat(eps)
	}
	ratio := decimal.NewFromFloat(observed).Div(den)
	tax := one.Sub(ratio)
	if tax.LessThan(zero) {
		tax = zero
	}
	if tax.GreaterThan(one) {
		tax = one
	}
	f, _ := tax.Float64()
	return f
}

// RecordBuy computes and records a buy-side tax sample from the pool's
// expected (mid-price) output vs the realized output.
func (e *Estimator) RecordBuy(key domain.MarketKey, now time.Time, expected, observed float64) {
	tax := clamp(expected, observed, 1e-12)
	s := e.seriesFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.samples = append(s.samples, sample{timestamp: now, buyTax: &tax})
	pruneLocked(s, now)
}

// RecordSell computes and records a sell-side tax sample.
func (e *Estimator) RecordSell(key domain.MarketKey, now time.Time, expected, observed float64) {
	tax := clamp(expected, observed, 1e-12)
	s := e.seriesFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.samples = append(s.samples, sample{timestamp: now, sellTax: &tax})
	pruneLocked(s, now)
}

// GetAvg returns the arithmetic mean of the buy and sell tax series over
// the retained window. hasBuy/hasSell are false for a series with no
// samples yet — the
// Gate Pipeline must never block on an absent series (spec.md §4.8).
func (e *Estimator) GetAvg(key domain.MarketKey, now time.Time) (avgBuy, avgSell float64, hasBuy, hasSell bool) {
	s := e.seriesFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	pruneLocked(s, now)

	var sumBuy, sumSell float64
	var nBuy, nSell int
	for _, sm := range s.samples {
		if sm.buyTax != nil {
			sumBuy += *sm.buyTax
			nBuy++
		}
		if sm.sellTax != nil {
			sumSell += *sm.sellTax
			nSell++
		}
	}
	if nBuy > 0 {
		avgBuy, hasBuy = sumBuy/float64(nBuy), true
	}
	if nSell > 0 {
		avgSell, hasSell = sumSell/float64(nSell), true
	}
	return
}
