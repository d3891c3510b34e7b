// Package detection implements the opportunity detection bounded context:
// mempool streaming, swap decoding and sandwich candidate scoring.
package detection

import (
	"context"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"

	"github.com/fd1az/sandwich-bot/business/detection/app"
	detectionDI "github.com/fd1az/sandwich-bot/business/detection/di"
	"github.com/fd1az/sandwich-bot/business/detection/domain"
	"github.com/fd1az/sandwich-bot/business/detection/infra/evm"
	"github.com/fd1az/sandwich-bot/business/detection/infra/solana"
	pipeline "github.com/fd1az/sandwich-bot/business/pipeline/domain"
	"github.com/fd1az/sandwich-bot/internal/config"
	"github.com/fd1az/sandwich-bot/internal/di"
	"github.com/fd1az/sandwich-bot/internal/logger"
	"github.com/fd1az/sandwich-bot/internal/monolith"
)

// Module implements the detection bounded context.
type Module struct{}

func chainFromConfig(cc config.ChainConfig) domain.Chain {
	family := domain.FamilyEVM
	if cc.Family == "solana" {
		family = domain.FamilySolana
	}
	return domain.Chain{Name: cc.Name, Family: family, ID: cc.ChainID}
}

// RegisterServices registers all detection services with the DI container.
func (m *Module) RegisterServices(c di.Container) error {
	di.RegisterToken(c, detectionDI.MempoolSources, func(sr di.ServiceRegistry) []app.MempoolSource {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)

		var sources []app.MempoolSource
		for _, cc := range cfg.Chains {
			if cc.Family != "evm" || cc.WebSocketURL == "" {
				continue
			}
			source, err := evm.NewMempoolSource(evm.DefaultMempoolConfig(cc.WebSocketURL),
				chainFromConfig(cc), log)
			if err != nil {
				panic("failed to create mempool source for " + cc.Name + ": " + err.Error())
			}
			sources = append(sources, source)
		}
		return sources
	})

	di.RegisterToken(c, detectionDI.SwapDecoders, func(sr di.ServiceRegistry) map[domain.ChainFamily]app.SwapDecoder {
		cfg := sr.Get("config").(*config.Config)

		decoders := make(map[domain.ChainFamily]app.SwapDecoder)

		var routers []string
		wrappedNative := ""
		var programs []string
		for _, cc := range cfg.Chains {
			switch cc.Family {
			case "evm":
				routers = append(routers, cc.Routers...)
				if wrappedNative == "" {
					wrappedNative = cc.WrappedNative
				}
			case "solana":
				programs = append(programs, cc.SwapPrograms...)
			}
		}

		if len(routers) > 0 {
			decoders[domain.FamilyEVM] = evm.NewRouterRegistry(evm.RegistryConfig{
				Routers:       routers,
				WrappedNative: wrappedNative,
			})
		}
		if len(programs) > 0 {
			decoders[domain.FamilySolana] = solana.NewInstructionParser(programs)
		}
		return decoders
	})

	di.RegisterToken(c, detectionDI.PoolProvider, func(sr di.ServiceRegistry) app.PoolProvider {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)

		providers := make(map[string]app.PoolProvider)
		for _, cc := range cfg.Chains {
			if cc.Family != "evm" || cc.HTTPURL == "" {
				continue
			}
			client, err := ethclient.Dial(cc.HTTPURL)
			if err != nil {
				panic("failed to dial " + cc.Name + " rpc: " + err.Error())
			}

			providerCfg := evm.DefaultPoolProviderConfig(cc.FactoryAddress)
			providerCfg.Blacklist = cfg.Detector.TokenBlacklist

			provider, err := evm.NewPoolProvider(providerCfg, chainFromConfig(cc), client, log)
			if err != nil {
				panic("failed to create pool provider for " + cc.Name + ": " + err.Error())
			}
			providers[cc.Name] = provider
		}
		return app.NewPoolRouter(providers)
	})

	di.RegisterToken(c, detectionDI.Detector, func(sr di.ServiceRegistry) *app.Detector {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)
		stats := sr.Get("stats").(*pipeline.ExecutionStats)

		detectorCfg := app.DefaultDetectorConfig()
		if cfg.Detector.MinPriceImpactBps > 0 {
			detectorCfg.MinPriceImpactBps = cfg.Detector.MinPriceImpactBps
		}
		if cfg.Detector.MinLiquidityNative > 0 {
			detectorCfg.MinLiquidity = decimal.NewFromFloat(cfg.Detector.MinLiquidityNative)
		}
		if cfg.Detector.MaxPoolAge > 0 {
			detectorCfg.MaxPoolAge = cfg.Detector.MaxPoolAge
		}
		if cfg.Detector.OpportunityTTL > 0 {
			detectorCfg.OpportunityTTL = cfg.Detector.OpportunityTTL
		}
		if cfg.Detector.BufferSize > 0 {
			detectorCfg.BufferSize = cfg.Detector.BufferSize
		}
		detectorCfg.TokenBlacklist = cfg.Detector.TokenBlacklist

		detector, err := app.NewDetector(detectorCfg,
			di.GetToken(sr, detectionDI.MempoolSources),
			di.GetToken(sr, detectionDI.SwapDecoders),
			detectionDI.GetPoolProvider(sr),
			stats, log)
		if err != nil {
			panic("failed to create detector: " + err.Error())
		}
		return detector
	})

	return nil
}

// Startup validates wiring; the detector itself is started by the pipeline.
func (m *Module) Startup(ctx context.Context, mono monolith.Monolith) error {
	detectionDI.GetDetector(mono.Services())
	mono.Logger().Info(ctx, "detection module started")
	return nil
}
