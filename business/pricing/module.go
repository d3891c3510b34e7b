// Package pricing implements the pricing bounded context: native asset USD
// prices, gas estimation and market volatility.
package pricing

import (
	"context"
	"time"

	"github.com/fd1az/sandwich-bot/business/pricing/app"
	pricingDI "github.com/fd1az/sandwich-bot/business/pricing/di"
	"github.com/fd1az/sandwich-bot/business/pricing/infra/binance"
	"github.com/fd1az/sandwich-bot/business/pricing/infra/ethereum"
	"github.com/fd1az/sandwich-bot/internal/asset"
	"github.com/fd1az/sandwich-bot/internal/config"
	"github.com/fd1az/sandwich-bot/internal/di"
	"github.com/fd1az/sandwich-bot/internal/logger"
	"github.com/fd1az/sandwich-bot/internal/monolith"
	"github.com/fd1az/sandwich-bot/internal/wsconn"
)

// Module implements the pricing bounded context.
type Module struct{}

// RegisterServices registers all pricing services with the DI container.
func (m *Module) RegisterServices(c di.Container) error {
	di.RegisterToken(c, pricingDI.PriceFeed, func(sr di.ServiceRegistry) app.PriceFeed {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)

		symbols := make(map[string]string, len(cfg.Chains))
		for _, chain := range cfg.Chains {
			if native := asset.NativeFor(chain.Name); native != nil {
				symbols[chain.Name] = native.Symbol + "USDT"
			}
		}

		feedCfg := binance.DefaultFeedConfig(symbols)
		if cfg.PriceFeed.WebSocketURL != "" {
			feedCfg.WSBaseURL = cfg.PriceFeed.WebSocketURL
		}
		if cfg.PriceFeed.RESTURL != "" {
			feedCfg.RESTBaseURL = cfg.PriceFeed.RESTURL
		}
		if cfg.PriceFeed.StaleTimeout > 0 {
			feedCfg.MaxQuoteAge = cfg.PriceFeed.StaleTimeout
		}

		streamURL, err := binance.StreamURL(feedCfg)
		if err != nil {
			panic("failed to build price stream url: " + err.Error())
		}
		conn := wsconn.New(wsconn.DefaultConfig(streamURL))

		feed, err := binance.NewFeed(feedCfg, conn, log)
		if err != nil {
			panic("failed to create binance feed: " + err.Error())
		}
		return feed
	})

	di.RegisterToken(c, pricingDI.GasEstimators, func(sr di.ServiceRegistry) map[string]app.GasEstimator {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)

		estimators := make(map[string]app.GasEstimator)
		for _, chain := range cfg.Chains {
			if chain.Family != "evm" || chain.HTTPURL == "" {
				continue
			}
			oracle, err := ethereum.NewGasOracle(ethereum.DefaultGasOracleConfig(chain.HTTPURL), log)
			if err != nil {
				panic("failed to create gas oracle for " + chain.Name + ": " + err.Error())
			}
			estimators[chain.Name] = oracle
		}
		return estimators
	})

	di.RegisterToken(c, pricingDI.PricingService, func(sr di.ServiceRegistry) *app.Service {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)

		chains := make([]string, 0, len(cfg.Chains))
		for _, chain := range cfg.Chains {
			chains = append(chains, chain.Name)
		}

		return app.NewService(app.DefaultServiceConfig(),
			pricingDI.GetPriceFeed(sr),
			pricingDI.GetGasEstimators(sr),
			chains, log)
	})

	return nil
}

// Startup connects the price feed and starts the sampling service.
func (m *Module) Startup(ctx context.Context, mono monolith.Monolith) error {
	log := mono.Logger()

	feed := pricingDI.GetPriceFeed(mono.Services())
	if connector, ok := feed.(interface{ Connect(context.Context) error }); ok {
		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()

		if err := connector.Connect(connectCtx); err != nil {
			log.Warn(ctx, "price feed connection failed, will retry in background", "error", err)
			go func() {
				for {
					select {
					case <-ctx.Done():
						return
					case <-time.After(5 * time.Second):
						if err := connector.Connect(ctx); err != nil {
							log.Warn(ctx, "price feed retry failed", "error", err)
						} else {
							log.Info(ctx, "price feed connected")
							return
						}
					}
				}
			}()
		}
	}

	service := pricingDI.GetPricingService(mono.Services())
	if err := service.Start(ctx); err != nil {
		return err
	}

	log.Info(ctx, "pricing module started")
	return nil
}
