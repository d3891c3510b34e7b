package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// SandwichOpportunity is a scored candidate for a front-run/back-run pair
// around a victim swap. Read-only after creation; unconsumed opportunities
// expire after TTL.
type SandwichOpportunity struct {
	ID             string
	Chain          Chain
	VictimTxHash   string
	VictimGasPrice decimal.Decimal // in native base units, for priority context
	Pool           Pool            // reserve snapshot at detection time
	Swap           SwapCall
	PriceImpact    int64 // bps
	// Confidence in [0, 1]. Stale pool data downgrades it; it flows to the
	// optimizer's risk adjustment rather than blocking emission.
	Confidence decimal.Decimal
	DetectedAt time.Time
	TTL        time.Duration
}

// IsExpired reports whether the opportunity has outlived its staleness window.
func (o *SandwichOpportunity) IsExpired(now time.Time) bool {
	return now.Sub(o.DetectedAt) > o.TTL
}
