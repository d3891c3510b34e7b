// Package asset provides value objects for on-chain amounts in base units.
package asset

import (
	"errors"
	"fmt"
)

// Common errors
var (
	ErrNilAsset       = errors.New("asset: nil asset")
	ErrNilRaw         = errors.New("asset: nil raw value")
	ErrNegativeAmount = errors.New("asset: negative amount")
	ErrAssetMismatch  = errors.New("asset: cannot operate on different assets")
	ErrNegativeResult = errors.New("asset: operation would result in negative amount")
)

// Asset describes a currency and its base-unit precision.
type Asset struct {
	Symbol   string
	Decimals int32
}

// String implements fmt.Stringer.
func (a *Asset) String() string {
	return a.Symbol
}

// Equal reports whether two assets are the same currency.
func (a *Asset) Equal(b *Asset) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Symbol == b.Symbol && a.Decimals == b.Decimals
}

// Format renders a raw base-unit value with the asset symbol.
func (a *Asset) Format(amount Amount) string {
	return fmt.Sprintf("%s %s", amount.ToDecimal().String(), a.Symbol)
}
