// Package domain contains the core domain types for the optimization context.
package domain

import (
	"math/big"
	"time"

	"github.com/shopspring/decimal"

	detection "github.com/fd1az/sandwich-bot/business/detection/domain"
)

// ProfitEstimate is the optimizer's verdict on an opportunity. Absent (nil)
// when no profitable front-run size exists — that is a normal rejection, not
// an error.
type ProfitEstimate struct {
	OpportunityID string
	Chain         detection.Chain

	// FrontRunAmount is the optimal front-run input, in base units of the
	// victim's input token. BackRunAmount is the intermediate holding sold
	// back in the back-run leg.
	FrontRunAmount *big.Int
	BackRunAmount  *big.Int

	// GrossProfit and NetProfit are in base units of the input token.
	GrossProfit *big.Int
	NetProfit   *big.Int

	GasCostNative *big.Int
	GasCostUSD    decimal.Decimal
	NetProfitUSD  decimal.Decimal

	// RiskScore in (0, 1]: the multiplier applied to gross margin before the
	// profitability threshold was checked.
	RiskScore decimal.Decimal

	ComputedAt time.Time
}
