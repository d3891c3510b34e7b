// Package app contains application services and port definitions for the optimization context.
package app

import (
	"context"

	"github.com/shopspring/decimal"

	detection "github.com/fd1az/sandwich-bot/business/detection/domain"
	pricing "github.com/fd1az/sandwich-bot/business/pricing/domain"
)

// PriceSource supplies USD prices and a volatility score per chain.
// Implemented by the pricing service.
type PriceSource interface {
	NativeUSD(ctx context.Context, chain string) (decimal.Decimal, error)
	VolatilityScore(chain string) decimal.Decimal
}

// GasSource supplies the current gas price for one chain.
type GasSource interface {
	GasPrice(ctx context.Context) (*pricing.GasPrice, error)
}

// TokenSource resolves token metadata. Implemented by the detection pool
// provider.
type TokenSource interface {
	Token(ctx context.Context, chain detection.Chain, address string) (*detection.Token, error)
}
