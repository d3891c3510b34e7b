// Package execution implements the execution bounded context: bundle
// construction, simulation, submission and inclusion tracking.
package execution

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	detectionDI "github.com/fd1az/sandwich-bot/business/detection/di"
	"github.com/fd1az/sandwich-bot/business/execution/app"
	executionDI "github.com/fd1az/sandwich-bot/business/execution/di"
	"github.com/fd1az/sandwich-bot/business/execution/infra/ethereum"
	"github.com/fd1az/sandwich-bot/business/execution/infra/relay"
	pipelineDI "github.com/fd1az/sandwich-bot/business/pipeline/di"
	pipeline "github.com/fd1az/sandwich-bot/business/pipeline/domain"
	"github.com/fd1az/sandwich-bot/internal/asset"
	"github.com/fd1az/sandwich-bot/internal/config"
	"github.com/fd1az/sandwich-bot/internal/di"
	"github.com/fd1az/sandwich-bot/internal/logger"
	"github.com/fd1az/sandwich-bot/internal/monolith"
)

// Module implements the execution bounded context.
type Module struct{}

// keyFromEnv loads an ECDSA key from the environment variable named by env.
func keyFromEnv(env string) (*ecdsa.PrivateKey, error) {
	raw := strings.TrimPrefix(strings.TrimSpace(os.Getenv(env)), "0x")
	if raw == "" {
		return nil, nil
	}
	return crypto.HexToECDSA(raw)
}

// RegisterServices registers all execution services with the DI container.
func (m *Module) RegisterServices(c di.Container) error {
	di.RegisterToken(c, executionDI.Orchestrators, func(sr di.ServiceRegistry) map[string]*app.Orchestrator {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)
		stats := sr.Get("stats").(*pipeline.ExecutionStats)
		reporter := pipelineDI.GetReporter(sr)
		pools := detectionDI.GetPoolProvider(sr)

		ctx := context.Background()
		orchestrators := make(map[string]*app.Orchestrator)
		for _, chain := range cfg.Chains {
			if chain.Family != "evm" {
				continue
			}
			if chain.RelayURL == "" || chain.PrivateKeyEnv == "" {
				log.Warn(ctx, "chain has no relay or wallet configured, detection only",
					"chain", chain.Name)
				continue
			}

			walletKey, err := keyFromEnv(chain.PrivateKeyEnv)
			if err != nil {
				panic("invalid wallet key for " + chain.Name + ": " + err.Error())
			}
			if walletKey == nil {
				log.Warn(ctx, "wallet key env is empty, detection only",
					"chain", chain.Name, "env", chain.PrivateKeyEnv)
				continue
			}

			relayKeyEnv := chain.RelayKeyEnv
			if relayKeyEnv == "" {
				relayKeyEnv = chain.PrivateKeyEnv
			}
			relayKey, err := keyFromEnv(relayKeyEnv)
			if err != nil {
				panic("invalid relay key for " + chain.Name + ": " + err.Error())
			}

			builderCfg := ethereum.DefaultBuilderConfig(
				common.HexToAddress(chain.Routers[0]), new(big.Int).SetUint64(chain.ChainID))
			if cfg.Optimizer.FrontRunGasLimit > 0 {
				builderCfg.FrontRunGasLimit = cfg.Optimizer.FrontRunGasLimit
			}
			if cfg.Optimizer.BackRunGasLimit > 0 {
				builderCfg.BackRunGasLimit = cfg.Optimizer.BackRunGasLimit
			}

			builder, err := ethereum.NewBuilder(builderCfg, walletKey)
			if err != nil {
				panic("failed to create tx builder for " + chain.Name + ": " + err.Error())
			}

			relayCfg := relay.DefaultClientConfig(chain.RelayURL)
			if cfg.Executor.SubmitRatePerMinute > 0 {
				relayCfg.RequestsPerMinute = cfg.Executor.SubmitRatePerMinute
			}
			relayClient, err := relay.NewClient(relayCfg, relayKey, log)
			if err != nil {
				panic("failed to create relay client for " + chain.Name + ": " + err.Error())
			}

			reader := ethereum.NewReader(chain.HTTPURL)

			orchestrator, err := app.NewOrchestrator(
				orchestratorConfig(cfg, chain),
				relayClient, builder, reader, pools,
				app.NewNonceManager(reader),
				stats, reporter, log)
			if err != nil {
				panic("failed to create orchestrator for " + chain.Name + ": " + err.Error())
			}
			orchestrators[chain.Name] = orchestrator
		}
		return orchestrators
	})

	return nil
}

func orchestratorConfig(cfg *config.Config, chain config.ChainConfig) app.OrchestratorConfig {
	orchCfg := app.DefaultOrchestratorConfig()

	if cfg.Executor.ReserveDriftBps > 0 {
		orchCfg.ReserveDriftBps = cfg.Executor.ReserveDriftBps
	}
	if cfg.Executor.SimDivergenceBps > 0 {
		orchCfg.SimDivergenceBps = cfg.Executor.SimDivergenceBps
	}
	if cfg.Optimizer.GasPremiumBps > 0 {
		orchCfg.GasPremiumBps = cfg.Optimizer.GasPremiumBps
	}
	if cfg.Executor.TipRatio > 0 {
		orchCfg.TipRatio = cfg.Executor.TipRatioDecimal()
	}
	if cfg.Executor.MaxTipNative > 0 {
		if native := asset.NativeFor(chain.Name); native != nil {
			orchCfg.MaxTipNative = cfg.Executor.MaxTipBase(native.Decimals)
		}
	}
	if cfg.Executor.MaxSubmitRetries > 0 {
		orchCfg.MaxSubmitRetries = cfg.Executor.MaxSubmitRetries
	}
	if cfg.Executor.RetryBackoff > 0 {
		orchCfg.RetryBackoff = cfg.Executor.RetryBackoff
	}
	if cfg.Executor.MaxRetryBackoff > 0 {
		orchCfg.MaxRetryBackoff = cfg.Executor.MaxRetryBackoff
	}
	if cfg.Executor.InclusionPollInterval > 0 {
		orchCfg.InclusionPollInterval = cfg.Executor.InclusionPollInterval
	}
	if cfg.Executor.InclusionPollAttempts > 0 {
		orchCfg.InclusionPollAttempts = cfg.Executor.InclusionPollAttempts
	}
	if cfg.Executor.MaxInFlightPerWallet > 0 {
		orchCfg.MaxInFlightPerWallet = cfg.Executor.MaxInFlightPerWallet
	}
	if cfg.Executor.TargetBlockOffset > 0 {
		orchCfg.TargetBlockOffset = cfg.Executor.TargetBlockOffset
	}
	return orchCfg
}

// Startup validates wiring.
func (m *Module) Startup(ctx context.Context, mono monolith.Monolith) error {
	orchestrators := executionDI.GetOrchestrators(mono.Services())
	mono.Logger().Info(ctx, "execution module started", "chains", len(orchestrators))
	return nil
}
