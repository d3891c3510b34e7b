// Package app wires the three stages into a running pipeline.
package app

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	detectionapp "github.com/fd1az/sandwich-bot/business/detection/app"
	detection "github.com/fd1az/sandwich-bot/business/detection/domain"
	executionapp "github.com/fd1az/sandwich-bot/business/execution/app"
	optimizationapp "github.com/fd1az/sandwich-bot/business/optimization/app"
	"github.com/fd1az/sandwich-bot/business/pipeline/domain"
	"github.com/fd1az/sandwich-bot/internal/apperror"
	"github.com/fd1az/sandwich-bot/internal/logger"
)

const tracerName = "pipeline"

// Config holds pipeline configuration.
type Config struct {
	// StatsInterval is how often aggregate counters are reported.
	StatsInterval time.Duration
	// MaxConcurrent bounds opportunities processed simultaneously.
	MaxConcurrent int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		StatsInterval: 30 * time.Second,
		MaxConcurrent: 16,
	}
}

// Pipeline drives opportunities from detection through execution. Each
// opportunity runs in its own goroutine; one failing trade never stops the
// stream.
type Pipeline struct {
	config        Config
	detector      *detectionapp.Detector
	optimizer     *optimizationapp.Optimizer
	orchestrators map[string]*executionapp.Orchestrator

	stats    *domain.ExecutionStats
	reporter domain.Reporter
	logger   logger.LoggerInterface
	tracer   trace.Tracer

	wg   sync.WaitGroup
	done chan struct{}
}

// New creates a pipeline. orchestrators is keyed by chain name; opportunities
// on chains without an orchestrator are estimated but not executed.
func New(
	cfg Config,
	detector *detectionapp.Detector,
	optimizer *optimizationapp.Optimizer,
	orchestrators map[string]*executionapp.Orchestrator,
	stats *domain.ExecutionStats,
	reporter domain.Reporter,
	log logger.LoggerInterface,
) *Pipeline {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 1
	}
	if reporter == nil {
		reporter = domain.NopReporter{}
	}

	return &Pipeline{
		config:        cfg,
		detector:      detector,
		optimizer:     optimizer,
		orchestrators: orchestrators,
		stats:         stats,
		reporter:      reporter,
		logger:        log,
		tracer:        otel.Tracer(tracerName),
		done:          make(chan struct{}),
	}
}

// Start begins detection and opportunity processing.
func (p *Pipeline) Start(ctx context.Context) error {
	if err := p.detector.Start(ctx); err != nil {
		return err
	}

	p.wg.Add(2)
	go p.consume(ctx)
	go p.reportStats(ctx)

	p.logger.Info(ctx, "pipeline started",
		"chains", len(p.orchestrators), "max_concurrent", p.config.MaxConcurrent)
	return nil
}

// Stop shuts the pipeline down: detection stops, orchestrators cancel their
// inclusion watches, and in-flight opportunities are waited out.
func (p *Pipeline) Stop() error {
	close(p.done)
	err := p.detector.Stop()
	for _, orch := range p.orchestrators {
		if cerr := orch.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	p.wg.Wait()
	return err
}

// EmergencyStop halts execution on every chain. Detection and estimation
// keep running so the operator can watch the stream while deciding.
func (p *Pipeline) EmergencyStop() {
	for _, orch := range p.orchestrators {
		orch.EmergencyStop()
	}
}

// Resume lifts an emergency stop on every chain.
func (p *Pipeline) Resume() {
	for _, orch := range p.orchestrators {
		orch.Resume()
	}
}

// Snapshot returns current pipeline counters.
func (p *Pipeline) Snapshot() domain.StatsSnapshot {
	return p.stats.Snapshot()
}

func (p *Pipeline) consume(ctx context.Context) {
	defer p.wg.Done()

	slots := make(chan struct{}, p.config.MaxConcurrent)
	var inFlight sync.WaitGroup
	defer inFlight.Wait()

	for {
		select {
		case <-p.done:
			return
		case <-ctx.Done():
			return
		case opp, ok := <-p.detector.Opportunities():
			if !ok {
				return
			}

			select {
			case slots <- struct{}{}:
			case <-p.done:
				return
			case <-ctx.Done():
				return
			}

			inFlight.Add(1)
			go func() {
				defer inFlight.Done()
				defer func() { <-slots }()
				p.process(ctx, opp)
			}()
		}
	}
}

// process runs one opportunity through estimation and execution. Errors are
// terminal for the opportunity only.
func (p *Pipeline) process(ctx context.Context, opp *detection.SandwichOpportunity) {
	ctx, span := p.tracer.Start(ctx, "pipeline.process")
	defer span.End()

	p.reporter.OpportunityDetected(opp)

	est, err := p.optimizer.Estimate(ctx, opp)
	if err != nil {
		p.logger.Debug(ctx, "opportunity rejected by optimizer",
			"opportunity_id", opp.ID, "code", string(apperror.GetCode(err)))
		return
	}
	p.reporter.ProfitEstimated(opp, est)

	orch, ok := p.orchestrators[opp.Chain.Name]
	if !ok {
		p.logger.Debug(ctx, "no executor for chain, skipping",
			"opportunity_id", opp.ID, "chain", opp.Chain.Name)
		return
	}

	if err := orch.Execute(ctx, opp, est); err != nil {
		p.logger.Debug(ctx, "execution aborted",
			"opportunity_id", opp.ID, "code", string(apperror.GetCode(err)))
	}
}

func (p *Pipeline) reportStats(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.config.StatsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.reporter.StatsUpdated(p.stats.Snapshot())
		}
	}
}
