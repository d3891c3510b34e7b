// Package di contains dependency injection tokens for the pricing context.
package di

import (
	"github.com/fd1az/sandwich-bot/business/pricing/app"
	"github.com/fd1az/sandwich-bot/internal/di"
)

// Public service tokens - exposed to other modules
var (
	PricingService = di.NewToken[*app.Service]("pricing.Service")
)

// Private dependency tokens - internal to the pricing module
var (
	PriceFeed     = di.NewToken[app.PriceFeed]("pricing:priceFeed")
	GasEstimators = di.NewToken[map[string]app.GasEstimator]("pricing:gasEstimators")
)

// GetPricingService resolves the pricing service.
func GetPricingService(c di.ServiceRegistry) *app.Service {
	return di.GetToken(c, PricingService)
}

// GetPriceFeed resolves the price feed.
func GetPriceFeed(c di.ServiceRegistry) app.PriceFeed {
	return di.GetToken(c, PriceFeed)
}

// GetGasEstimators resolves the per-chain gas estimators.
func GetGasEstimators(c di.ServiceRegistry) map[string]app.GasEstimator {
	return di.GetToken(c, GasEstimators)
}
