// Package optimization implements the profit optimization bounded context:
// front-run sizing and risk-adjusted profitability gating.
package optimization

import (
	"context"
	"strings"

	detectionDI "github.com/fd1az/sandwich-bot/business/detection/di"
	"github.com/fd1az/sandwich-bot/business/optimization/app"
	optimizationDI "github.com/fd1az/sandwich-bot/business/optimization/di"
	pipeline "github.com/fd1az/sandwich-bot/business/pipeline/domain"
	pricingDI "github.com/fd1az/sandwich-bot/business/pricing/di"
	"github.com/fd1az/sandwich-bot/internal/config"
	"github.com/fd1az/sandwich-bot/internal/di"
	"github.com/fd1az/sandwich-bot/internal/logger"
	"github.com/fd1az/sandwich-bot/internal/monolith"
)

// Module implements the optimization bounded context.
type Module struct{}

// RegisterServices registers all optimization services with the DI container.
func (m *Module) RegisterServices(c di.Container) error {
	di.RegisterToken(c, optimizationDI.Optimizer, func(sr di.ServiceRegistry) *app.Optimizer {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)
		stats := sr.Get("stats").(*pipeline.ExecutionStats)

		optCfg := app.DefaultOptimizerConfig()
		if cfg.Optimizer.MaxPositionBps > 0 {
			optCfg.MaxPositionBps = cfg.Optimizer.MaxPositionBps
		}
		if cfg.Optimizer.SearchIterations > 0 {
			optCfg.SearchIterations = cfg.Optimizer.SearchIterations
		}
		if cfg.Optimizer.EpsilonBps > 0 {
			optCfg.EpsilonBps = cfg.Optimizer.EpsilonBps
		}
		if cfg.Optimizer.MinNetProfitUSD > 0 {
			optCfg.MinNetProfitUSD = cfg.Optimizer.MinNetProfitUSDDecimal()
		}
		if cfg.Optimizer.FrontRunGasLimit > 0 {
			optCfg.FrontRunGasLimit = cfg.Optimizer.FrontRunGasLimit
		}
		if cfg.Optimizer.BackRunGasLimit > 0 {
			optCfg.BackRunGasLimit = cfg.Optimizer.BackRunGasLimit
		}
		if cfg.Optimizer.GasPremiumBps > 0 {
			optCfg.GasPremiumBps = cfg.Optimizer.GasPremiumBps
		}

		// Wrapped native tokens track the chain's native USD price; stables
		// are a dollar per whole unit.
		for _, chain := range cfg.Chains {
			if chain.WrappedNative != "" {
				optCfg.Valuations[strings.ToLower(chain.WrappedNative)] = app.ValueAsNative
			}
		}
		for _, token := range cfg.Optimizer.StableTokens {
			optCfg.Valuations[strings.ToLower(token)] = app.ValueAsUSD
		}

		pricingService := pricingDI.GetPricingService(sr)

		gas := make(map[string]app.GasSource)
		for _, chain := range cfg.Chains {
			if est := pricingService.GasEstimator(chain.Name); est != nil {
				gas[chain.Name] = est
			}
		}

		optimizer, err := app.NewOptimizer(optCfg,
			pricingService, gas,
			detectionDI.GetPoolProvider(sr),
			stats, log)
		if err != nil {
			panic("failed to create optimizer: " + err.Error())
		}
		return optimizer
	})

	return nil
}

// Startup validates wiring.
func (m *Module) Startup(ctx context.Context, mono monolith.Monolith) error {
	optimizationDI.GetOptimizer(mono.Services())
	mono.Logger().Info(ctx, "optimization module started")
	return nil
}
