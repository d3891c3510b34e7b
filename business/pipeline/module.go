// Package pipeline wires detection, optimization and execution into one
// opportunity stream.
package pipeline

import (
	"context"

	detectionDI "github.com/fd1az/sandwich-bot/business/detection/di"
	executionDI "github.com/fd1az/sandwich-bot/business/execution/di"
	optimizationDI "github.com/fd1az/sandwich-bot/business/optimization/di"
	"github.com/fd1az/sandwich-bot/business/pipeline/app"
	pipelineDI "github.com/fd1az/sandwich-bot/business/pipeline/di"
	"github.com/fd1az/sandwich-bot/business/pipeline/domain"
	"github.com/fd1az/sandwich-bot/business/pipeline/infra/console"
	"github.com/fd1az/sandwich-bot/internal/config"
	"github.com/fd1az/sandwich-bot/internal/di"
	"github.com/fd1az/sandwich-bot/internal/logger"
	"github.com/fd1az/sandwich-bot/internal/monolith"
)

// Module implements the pipeline bounded context.
type Module struct{}

// RegisterServices registers all pipeline services with the DI container.
func (m *Module) RegisterServices(c di.Container) error {
	di.RegisterToken(c, pipelineDI.Reporter, func(sr di.ServiceRegistry) domain.Reporter {
		log := sr.Get("logger").(logger.LoggerInterface)
		return console.NewReporter(log)
	})

	di.RegisterToken(c, pipelineDI.Pipeline, func(sr di.ServiceRegistry) *app.Pipeline {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)
		stats := sr.Get("stats").(*domain.ExecutionStats)

		pipelineCfg := app.DefaultConfig()
		if cfg.Telemetry.StatsInterval > 0 {
			pipelineCfg.StatsInterval = cfg.Telemetry.StatsInterval
		}

		return app.New(pipelineCfg,
			detectionDI.GetDetector(sr),
			optimizationDI.GetOptimizer(sr),
			executionDI.GetOrchestrators(sr),
			stats,
			pipelineDI.GetReporter(sr),
			log)
	})

	return nil
}

// Startup validates wiring; the pipeline itself is started by main.
func (m *Module) Startup(ctx context.Context, mono monolith.Monolith) error {
	pipelineDI.GetPipeline(mono.Services())
	mono.Logger().Info(ctx, "pipeline module started")
	return nil
}
