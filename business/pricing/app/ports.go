// Package app contains application services and port definitions for the pricing context.
package app

import (
	"context"
	"math/big"

	"github.com/shopspring/decimal"

	"github.com/fd1az/sandwich-bot/business/pricing/domain"
)

// PriceFeed supplies USD prices for native assets. Implementations must fail
// with PRICE_FEED_STALE rather than serve quotes past their staleness bound.
type PriceFeed interface {
	// NativeUSD returns the USD price of the chain's native asset.
	NativeUSD(ctx context.Context, chain string) (decimal.Decimal, error)

	// Quote returns the last observation with its metadata.
	Quote(ctx context.Context, chain string) (*domain.PriceQuote, error)

	Close() error
}

// GasEstimator supplies gas prices and limits for a chain.
type GasEstimator interface {
	// GasPrice returns the current suggested gas price in wei.
	GasPrice(ctx context.Context) (*domain.GasPrice, error)

	// GasTipCap returns the suggested priority fee in wei.
	GasTipCap(ctx context.Context) (*big.Int, error)

	// EstimateGas estimates the gas limit for a call.
	EstimateGas(ctx context.Context, to string, data []byte) (uint64, error)

	Close() error
}
