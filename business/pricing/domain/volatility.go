package domain

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// VolatilityWindow keeps a bounded rolling window of price observations and
// derives a volatility score from the relative spread between the window's
// extremes. The score feeds risk adjustment: calm markets score near 0,
// violent ones approach 1.
type VolatilityWindow struct {
	mu      sync.Mutex
	maxLen  int
	maxAge  time.Duration
	samples []sample

	// fullScaleBps is the relative range treated as maximum volatility.
	fullScaleBps decimal.Decimal
}

type sample struct {
	price decimal.Decimal
	at    time.Time
}

// NewVolatilityWindow creates a window of at most maxLen samples no older
// than maxAge. fullScaleBps is the high-low range, in basis points of the
// low, that maps to a score of 1.
func NewVolatilityWindow(maxLen int, maxAge time.Duration, fullScaleBps int64) *VolatilityWindow {
	if maxLen <= 0 {
		maxLen = 120
	}
	return &VolatilityWindow{
		maxLen:       maxLen,
		maxAge:       maxAge,
		fullScaleBps: decimal.NewFromInt(fullScaleBps),
	}
}

// Observe records a price observation.
func (w *VolatilityWindow) Observe(price decimal.Decimal, at time.Time) {
	if price.Sign() <= 0 {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	w.samples = append(w.samples, sample{price: price, at: at})
	w.pruneLocked(at)
}

// Score returns the current volatility in [0, 1]. Fewer than two samples
// score 0.
func (w *VolatilityWindow) Score(now time.Time) decimal.Decimal {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.pruneLocked(now)
	if len(w.samples) < 2 {
		return decimal.Zero
	}

	low, high := w.samples[0].price, w.samples[0].price
	for _, s := range w.samples[1:] {
		if s.price.LessThan(low) {
			low = s.price
		}
		if s.price.GreaterThan(high) {
			high = s.price
		}
	}

	if low.Sign() <= 0 {
		return decimal.Zero
	}

	rangeBps := high.Sub(low).Div(low).Mul(decimal.NewFromInt(10_000))
	score := rangeBps.Div(w.fullScaleBps)
	if score.GreaterThan(decimal.NewFromInt(1)) {
		return decimal.NewFromInt(1)
	}
	return score
}

// Len returns the live sample count.
func (w *VolatilityWindow) Len(now time.Time) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pruneLocked(now)
	return len(w.samples)
}

func (w *VolatilityWindow) pruneLocked(now time.Time) {
	if w.maxAge > 0 {
		cutoff := now.Add(-w.maxAge)
		idx := 0
		for idx < len(w.samples) && w.samples[idx].at.Before(cutoff) {
			idx++
		}
		w.samples = w.samples[idx:]
	}
	if len(w.samples) > w.maxLen {
		w.samples = w.samples[len(w.samples)-w.maxLen:]
	}
}
