// Package domain contains the core domain types for the pricing context.
package domain

import (
	"math/big"
	"time"

	"github.com/shopspring/decimal"
)

// PriceQuote is a USD price observation for an asset.
type PriceQuote struct {
	Symbol     string
	Price      decimal.Decimal
	Source     string
	ObservedAt time.Time
}

// IsStale reports whether the quote is older than maxAge.
func (q *PriceQuote) IsStale(now time.Time, maxAge time.Duration) bool {
	return now.Sub(q.ObservedAt) > maxAge
}

var weiPerGwei = decimal.NewFromInt(1_000_000_000)

// GasPrice is a chain gas price in wei.
type GasPrice struct {
	Wei       *big.Int
	FetchedAt time.Time
}

// NewGasPrice creates a gas price from wei.
func NewGasPrice(wei *big.Int) *GasPrice {
	return &GasPrice{Wei: new(big.Int).Set(wei), FetchedAt: time.Now()}
}

// Gwei returns the price in gwei for display.
func (g *GasPrice) Gwei() decimal.Decimal {
	return decimal.NewFromBigInt(g.Wei, 0).Div(weiPerGwei)
}

// CostWei returns the total cost of gasLimit units at this price.
func (g *GasPrice) CostWei(gasLimit uint64) *big.Int {
	return new(big.Int).Mul(g.Wei, new(big.Int).SetUint64(gasLimit))
}
