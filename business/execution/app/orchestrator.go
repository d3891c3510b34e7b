package app

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	detection "github.com/fd1az/sandwich-bot/business/detection/domain"
	"github.com/fd1az/sandwich-bot/business/execution/domain"
	optimization "github.com/fd1az/sandwich-bot/business/optimization/domain"
	pipeline "github.com/fd1az/sandwich-bot/business/pipeline/domain"
	"github.com/fd1az/sandwich-bot/internal/apperror"
	"github.com/fd1az/sandwich-bot/internal/logger"
)

const (
	tracerName = "execution"
	meterName  = "execution"
)

// OrchestratorConfig holds configuration for the execution orchestrator.
type OrchestratorConfig struct {
	// ReserveDriftBps aborts execution when the pool moved more than this
	// since detection.
	ReserveDriftBps int64
	// SimDivergenceBps aborts submission when simulated profit diverges from
	// the estimate by more than this.
	SimDivergenceBps int64
	// GasPremiumBps is the margin paid above the victim's gas price.
	GasPremiumBps int64

	// TipRatio is the share of net profit paid to the block producer,
	// capped at MaxTipNative (native base units).
	TipRatio     decimal.Decimal
	MaxTipNative *big.Int

	MaxSubmitRetries int
	RetryBackoff     time.Duration
	MaxRetryBackoff  time.Duration

	InclusionPollInterval time.Duration
	InclusionPollAttempts int

	MaxInFlightPerWallet int
	TargetBlockOffset    uint64
}

// DefaultOrchestratorConfig returns sensible defaults.
func DefaultOrchestratorConfig() OrchestratorConfig {
	maxTip, _ := new(big.Int).SetString("50000000000000000", 10) // 0.05 native

	return OrchestratorConfig{
		ReserveDriftBps:       500,
		SimDivergenceBps:      1000,
		GasPremiumBps:         1000,
		TipRatio:              decimal.RequireFromString("0.5"),
		MaxTipNative:          maxTip,
		MaxSubmitRetries:      3,
		RetryBackoff:          500 * time.Millisecond,
		MaxRetryBackoff:       5 * time.Second,
		InclusionPollInterval: 2 * time.Second,
		InclusionPollAttempts: 15,
		MaxInFlightPerWallet:  3,
		TargetBlockOffset:     1,
	}
}

// orchestratorMetrics holds OTEL metric instruments.
type orchestratorMetrics struct {
	bundles    metric.Int64Counter
	submitted  metric.Int64Counter
	included   metric.Int64Counter
	failed     metric.Int64Counter
	expired    metric.Int64Counter
	rejections metric.Int64Counter
	inFlight   metric.Int64UpDownCounter
}

// Orchestrator drives bundles through their lifecycle: validate against
// fresh chain state, simulate, submit with bounded retries, then watch for
// inclusion. Each opportunity is isolated: any failure marks its own bundle
// and leaves the pipeline running.
type Orchestrator struct {
	config  OrchestratorConfig
	relay   RelayClient
	builder TxBuilder
	chain   ChainReader
	pools   PoolReader
	nonces  *NonceManager

	stats    *pipeline.ExecutionStats
	reporter pipeline.Reporter
	logger   logger.LoggerInterface

	stopped   atomic.Bool
	stopMu    sync.Mutex
	stopCh    chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	inFlight  chan struct{}

	tracer  trace.Tracer
	metrics *orchestratorMetrics
}

// NewOrchestrator creates an execution orchestrator for one wallet.
func NewOrchestrator(
	cfg OrchestratorConfig,
	relay RelayClient,
	builder TxBuilder,
	chain ChainReader,
	pools PoolReader,
	nonces *NonceManager,
	stats *pipeline.ExecutionStats,
	reporter pipeline.Reporter,
	log logger.LoggerInterface,
) (*Orchestrator, error) {
	if cfg.MaxInFlightPerWallet <= 0 {
		cfg.MaxInFlightPerWallet = 1
	}

	o := &Orchestrator{
		config:   cfg,
		relay:    relay,
		builder:  builder,
		chain:    chain,
		pools:    pools,
		nonces:   nonces,
		stats:    stats,
		reporter: reporter,
		logger:   log,
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
		inFlight: make(chan struct{}, cfg.MaxInFlightPerWallet),
		tracer:   otel.Tracer(tracerName),
	}

	if err := o.initMetrics(); err != nil {
		return nil, err
	}

	return o, nil
}

func (o *Orchestrator) initMetrics() error {
	meter := otel.Meter(meterName)
	var err error

	o.metrics = &orchestratorMetrics{}

	o.metrics.bundles, err = meter.Int64Counter(
		"executor_bundles_total",
		metric.WithDescription("Bundles created"),
	)
	if err != nil {
		return err
	}

	o.metrics.submitted, err = meter.Int64Counter(
		"executor_submitted_total",
		metric.WithDescription("Bundles submitted to the relay"),
	)
	if err != nil {
		return err
	}

	o.metrics.included, err = meter.Int64Counter(
		"executor_included_total",
		metric.WithDescription("Bundles included on chain"),
	)
	if err != nil {
		return err
	}

	o.metrics.failed, err = meter.Int64Counter(
		"executor_failed_total",
		metric.WithDescription("Bundles that failed before or after submission"),
	)
	if err != nil {
		return err
	}

	o.metrics.expired, err = meter.Int64Counter(
		"executor_expired_total",
		metric.WithDescription("Submitted bundles that missed their window"),
	)
	if err != nil {
		return err
	}

	o.metrics.rejections, err = meter.Int64Counter(
		"executor_rejections_total",
		metric.WithDescription("Opportunities rejected before a bundle was built"),
	)
	if err != nil {
		return err
	}

	o.metrics.inFlight, err = meter.Int64UpDownCounter(
		"executor_in_flight",
		metric.WithDescription("Bundles between submission and resolution"),
	)
	if err != nil {
		return err
	}

	return nil
}

// EmergencyStop halts all new executions and aborts in-flight work: retry
// backoffs are interrupted and inclusion watches cancel their bundles.
func (o *Orchestrator) EmergencyStop() {
	o.stopMu.Lock()
	defer o.stopMu.Unlock()
	if o.stopped.Swap(true) {
		return
	}
	close(o.stopCh)
	o.logger.Warn(context.Background(), "emergency stop engaged")
}

// Resume lifts an emergency stop.
func (o *Orchestrator) Resume() {
	o.stopMu.Lock()
	defer o.stopMu.Unlock()
	if !o.stopped.Swap(false) {
		return
	}
	o.stopCh = make(chan struct{})
	o.logger.Info(context.Background(), "emergency stop lifted")
}

// stopSignal returns the channel closed by the current emergency stop.
func (o *Orchestrator) stopSignal() <-chan struct{} {
	o.stopMu.Lock()
	defer o.stopMu.Unlock()
	return o.stopCh
}

// Stopped reports whether the orchestrator accepts new work.
func (o *Orchestrator) Stopped() bool {
	return o.stopped.Load()
}

// Close shuts the orchestrator down for good: background inclusion watches
// cancel their bundles and exit. Unlike EmergencyStop it cannot be resumed.
func (o *Orchestrator) Close() error {
	o.closeOnce.Do(func() { close(o.done) })
	return nil
}

// Execute runs the bundle lifecycle for one sized opportunity. It returns
// once the bundle is submitted (or rejected); inclusion is watched in the
// background while holding the wallet's in-flight slot.
func (o *Orchestrator) Execute(ctx context.Context, opp *detection.SandwichOpportunity, est *optimization.ProfitEstimate) error {
	ctx, span := o.tracer.Start(ctx, "orchestrator.execute",
		trace.WithAttributes(
			attribute.String("opportunity_id", opp.ID),
			attribute.String("chain", opp.Chain.Name),
		),
	)
	defer span.End()

	if o.stopped.Load() {
		return o.reject(ctx, span, apperror.New(apperror.CodeEmergencyStop))
	}

	if err := o.acquireSlot(ctx, opp); err != nil {
		return o.reject(ctx, span, err)
	}

	bundle, err := o.prepare(ctx, opp, est)
	if err != nil {
		o.releaseSlot(ctx)
		return o.reject(ctx, span, err)
	}

	if err := o.submit(ctx, bundle); err != nil {
		o.releaseSlot(ctx)
		if apperror.GetCode(err) == apperror.CodeEmergencyStop {
			o.cancel(ctx, bundle, "emergency stop")
		} else {
			o.fail(ctx, bundle, err)
		}
		span.SetStatus(codes.Error, "submission failed")
		return err
	}

	o.stats.IncSubmitted()
	o.metrics.submitted.Add(ctx, 1)
	o.reporter.BundleSubmitted(bundle)
	o.logger.Info(ctx, "bundle submitted",
		"bundle_id", bundle.ID,
		"opportunity_id", opp.ID,
		"target_block", bundle.TargetBlock)

	// The watch outlives the opportunity's request scope; the stop and close
	// signals cancel it instead.
	go o.watchInclusion(context.WithoutCancel(ctx), bundle)

	span.SetStatus(codes.Ok, "submitted")
	return nil
}

// acquireSlot waits for an in-flight slot until the opportunity expires.
func (o *Orchestrator) acquireSlot(ctx context.Context, opp *detection.SandwichOpportunity) error {
	deadline := opp.DetectedAt.Add(opp.TTL)
	wait := time.Until(deadline)
	if wait <= 0 {
		return apperror.New(apperror.CodeStaleData,
			apperror.WithContext("opportunity expired before execution"))
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case o.inFlight <- struct{}{}:
		o.metrics.inFlight.Add(ctx, 1)
		return nil
	case <-timer.C:
		return apperror.New(apperror.CodeStaleData,
			apperror.WithContext("opportunity expired waiting for an execution slot"))
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (o *Orchestrator) releaseSlot(ctx context.Context) {
	<-o.inFlight
	o.metrics.inFlight.Add(ctx, -1)
}

// prepare validates fresh chain state, builds and signs the legs, and
// simulates the bundle. Returns a bundle in Simulated state.
func (o *Orchestrator) prepare(ctx context.Context, opp *detection.SandwichOpportunity, est *optimization.ProfitEstimate) (*domain.Bundle, error) {
	currentBlock, err := o.chain.CurrentBlock(ctx)
	if err != nil {
		return nil, apperror.New(apperror.CodeChainRPCError, apperror.WithCause(err))
	}

	bundle := domain.NewBundle(uuid.NewString(), opp.Chain, opp.ID, o.builder.Wallet(),
		currentBlock+o.config.TargetBlockOffset)
	o.metrics.bundles.Add(ctx, 1)

	if err := o.validate(ctx, opp); err != nil {
		return nil, err
	}
	if err := bundle.TransitionTo(domain.StatusValidated); err != nil {
		return nil, err
	}

	if err := o.buildLegs(ctx, bundle, opp, est); err != nil {
		return nil, err
	}

	if err := o.simulate(ctx, bundle, est); err != nil {
		return nil, err
	}
	if err := bundle.TransitionTo(domain.StatusSimulated); err != nil {
		return nil, err
	}

	return bundle, nil
}

// validate re-checks the assumptions the estimate was priced on.
func (o *Orchestrator) validate(ctx context.Context, opp *detection.SandwichOpportunity) error {
	if opp.IsExpired(time.Now()) {
		return apperror.New(apperror.CodeStaleData,
			apperror.WithContext("opportunity past TTL"))
	}

	pending, err := o.chain.IsPending(ctx, opp.VictimTxHash)
	if err != nil {
		return apperror.New(apperror.CodeChainRPCError, apperror.WithCause(err))
	}
	if !pending {
		return apperror.New(apperror.CodeStaleData,
			apperror.WithContext("victim transaction no longer pending"))
	}

	fresh, err := o.pools.RefreshPool(ctx, opp.Chain, opp.Swap.InputToken(), opp.Swap.OutputToken())
	if err != nil {
		return err
	}

	drift := reserveDriftBps(&opp.Pool, fresh)
	if drift > o.config.ReserveDriftBps {
		return apperror.New(apperror.CodeStaleData,
			apperror.WithContext(fmt.Sprintf("reserves drifted %d bps since detection", drift)))
	}

	return nil
}

func (o *Orchestrator) buildLegs(ctx context.Context, bundle *domain.Bundle, opp *detection.SandwichOpportunity, est *optimization.ProfitEstimate) error {
	frontNonce, backNonce, err := o.nonces.NextPair(ctx, opp.Chain.Name, o.builder.Wallet())
	if err != nil {
		return err
	}

	gasPrice := o.frontRunGasPrice(opp)
	tip := o.tip(est)

	front, err := o.builder.BuildFrontRun(ctx, opp, est, frontNonce, gasPrice)
	if err != nil {
		return apperror.New(apperror.CodeSigningFailed, apperror.WithCause(err))
	}
	back, err := o.builder.BuildBackRun(ctx, opp, est, backNonce, gasPrice, tip)
	if err != nil {
		return apperror.New(apperror.CodeSigningFailed, apperror.WithCause(err))
	}

	victim := domain.BundleTx{Role: domain.RoleVictim, Hash: opp.VictimTxHash}
	bundle.Tip = tip

	return bundle.SetTxs([]domain.BundleTx{front, victim, back})
}

// frontRunGasPrice outbids the victim by GasPremiumBps.
func (o *Orchestrator) frontRunGasPrice(opp *detection.SandwichOpportunity) *big.Int {
	price := opp.VictimGasPrice.BigInt()
	if price == nil || price.Sign() <= 0 {
		price = big.NewInt(1)
	}
	premium := new(big.Int).Mul(price, big.NewInt(o.config.GasPremiumBps))
	premium.Quo(premium, big.NewInt(detection.BpsDenominator))
	return new(big.Int).Add(price, premium)
}

// tip pays the producer a share of net profit, capped.
func (o *Orchestrator) tip(est *optimization.ProfitEstimate) *big.Int {
	net := decimal.NewFromBigInt(est.NetProfit, 0)
	tip := net.Mul(o.config.TipRatio).Truncate(0).BigInt()
	if tip.Sign() < 0 {
		return big.NewInt(0)
	}
	if o.config.MaxTipNative != nil && tip.Cmp(o.config.MaxTipNative) > 0 {
		return new(big.Int).Set(o.config.MaxTipNative)
	}
	return tip
}

// simulate dry-runs the bundle and cross-checks the relay's profit against
// the estimate. A mismatch means the model priced a different pool than the
// chain has; submitting would burn gas on a losing trade.
func (o *Orchestrator) simulate(ctx context.Context, bundle *domain.Bundle, est *optimization.ProfitEstimate) error {
	result, err := o.relay.Simulate(ctx, bundle)
	if err != nil {
		return apperror.New(apperror.CodeSimulationFailed, apperror.WithCause(err))
	}
	if !result.Success {
		return apperror.New(apperror.CodeSimulationFailed,
			apperror.WithContext("bundle reverted: "+result.Revert))
	}

	if result.ProfitWei != nil && est.NetProfit.Sign() > 0 {
		diff := new(big.Int).Sub(result.ProfitWei, est.NetProfit)
		diff.Abs(diff)
		divergence := new(big.Int).Mul(diff, big.NewInt(detection.BpsDenominator))
		divergence.Quo(divergence, est.NetProfit)

		if divergence.Cmp(big.NewInt(o.config.SimDivergenceBps)) > 0 {
			return apperror.New(apperror.CodeSimulationMismatch,
				apperror.WithContext(fmt.Sprintf("simulated profit diverges %s bps from estimate", divergence)))
		}
	}

	return nil
}

// submit sends the bundle with bounded retries. Only SUBMISSION_FAILED is
// retried; everything else aborts immediately.
func (o *Orchestrator) submit(ctx context.Context, bundle *domain.Bundle) error {
	backoff := o.config.RetryBackoff

	var lastErr error
	for attempt := 0; attempt <= o.config.MaxSubmitRetries; attempt++ {
		if o.stopped.Load() {
			return apperror.New(apperror.CodeEmergencyStop)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if attempt > 0 {
			select {
			case <-time.After(backoff):
			case <-o.stopSignal():
				return apperror.New(apperror.CodeEmergencyStop,
					apperror.WithContext("stopped during retry backoff"))
			case <-o.done:
				return apperror.New(apperror.CodeEmergencyStop,
					apperror.WithContext("orchestrator closed during retry backoff"))
			case <-ctx.Done():
				return ctx.Err()
			}
			backoff *= 2
			if backoff > o.config.MaxRetryBackoff {
				backoff = o.config.MaxRetryBackoff
			}
		}

		_, err := o.relay.Submit(ctx, bundle)
		if err == nil {
			return bundle.TransitionTo(domain.StatusSubmitted)
		}

		lastErr = err
		if !apperror.IsRetryable(err) {
			break
		}
		o.logger.Warn(ctx, "bundle submission failed, retrying",
			"bundle_id", bundle.ID, "attempt", attempt+1, "error", err)
	}

	// The reserved nonces may now have a gap; re-read from chain next time.
	o.nonces.Refresh(bundle.Chain.Name, bundle.Wallet)
	return lastErr
}

// watchInclusion polls until the bundle lands or its window passes.
func (o *Orchestrator) watchInclusion(ctx context.Context, bundle *domain.Bundle) {
	defer o.releaseSlot(ctx)

	frontHash := ""
	for _, tx := range bundle.Txs() {
		if tx.Role == domain.RoleFrontRun {
			frontHash = tx.Hash
			break
		}
	}

	ticker := time.NewTicker(o.config.InclusionPollInterval)
	defer ticker.Stop()

	for attempt := 0; attempt < o.config.InclusionPollAttempts; attempt++ {
		select {
		case <-o.stopSignal():
			o.cancel(ctx, bundle, "emergency stop")
			o.nonces.Refresh(bundle.Chain.Name, bundle.Wallet)
			return
		case <-o.done:
			o.cancel(ctx, bundle, "orchestrator closed")
			o.nonces.Refresh(bundle.Chain.Name, bundle.Wallet)
			return
		case <-ctx.Done():
			o.cancel(ctx, bundle, "context cancelled")
			return
		case <-ticker.C:
		}

		included, block, err := o.chain.IsIncluded(ctx, frontHash)
		if err != nil {
			o.logger.Debug(ctx, "inclusion poll failed", "bundle_id", bundle.ID, "error", err)
			continue
		}
		if included {
			if err := bundle.TransitionTo(domain.StatusIncluded); err == nil {
				o.stats.IncIncluded()
				o.metrics.included.Add(ctx, 1)
				o.reporter.BundleIncluded(bundle)
				o.reporter.StatsUpdated(o.stats.Snapshot())
				o.logger.Info(ctx, "bundle included",
					"bundle_id", bundle.ID, "block", block)
			}
			return
		}
	}

	if err := bundle.TransitionToWithReason(domain.StatusExpired, "not included within target window"); err == nil {
		o.stats.IncExpired()
		o.metrics.expired.Add(ctx, 1)
		o.nonces.Refresh(bundle.Chain.Name, bundle.Wallet)
		o.reporter.BundleFailed(bundle, "expired")
		o.reporter.StatsUpdated(o.stats.Snapshot())
		o.logger.Warn(ctx, "bundle expired", "bundle_id", bundle.ID)
	}
}

// reserveDriftBps measures the largest relative reserve movement between the
// detection-time snapshot and a fresh read, in basis points.
func reserveDriftBps(snapshot, fresh *detection.Pool) int64 {
	drift := func(old, cur *big.Int) int64 {
		if old == nil || cur == nil || old.Sign() <= 0 {
			return detection.BpsDenominator
		}
		diff := new(big.Int).Sub(cur, old)
		diff.Abs(diff)
		diff.Mul(diff, big.NewInt(detection.BpsDenominator))
		diff.Quo(diff, old)
		if !diff.IsInt64() {
			return detection.BpsDenominator
		}
		return diff.Int64()
	}

	d0 := drift(snapshot.Reserve0, fresh.Reserve0)
	d1 := drift(snapshot.Reserve1, fresh.Reserve1)
	if d1 > d0 {
		return d1
	}
	return d0
}

// reject records a pre-bundle rejection.
func (o *Orchestrator) reject(ctx context.Context, span trace.Span, err error) error {
	o.stats.IncRejectedExecution()
	o.metrics.rejections.Add(ctx, 1, metric.WithAttributes(
		attribute.String("reason", string(apperror.GetCode(err))),
	))
	span.SetStatus(codes.Error, "rejected")
	o.logger.Debug(ctx, "execution rejected", "code", string(apperror.GetCode(err)), "error", err)
	return err
}

// cancel aborts a live bundle without counting it as a market failure. The
// bundle may still land if the relay already has it; the monitor is gone
// either way, so the operator is told through the reporter.
func (o *Orchestrator) cancel(ctx context.Context, bundle *domain.Bundle, reason string) {
	if err := bundle.TransitionToWithReason(domain.StatusCancelled, reason); err != nil {
		return
	}
	o.reporter.BundleFailed(bundle, string(domain.StatusCancelled))
	o.logger.Warn(ctx, "bundle cancelled", "bundle_id", bundle.ID, "reason", reason)
}

// fail marks the bundle failed and records it.
func (o *Orchestrator) fail(ctx context.Context, bundle *domain.Bundle, err error) {
	reason := string(apperror.GetCode(err))
	_ = bundle.TransitionToWithReason(domain.StatusFailed, reason)
	o.stats.IncFailed()
	o.metrics.failed.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
	o.reporter.BundleFailed(bundle, reason)
	o.reporter.StatsUpdated(o.stats.Snapshot())
	o.logger.Error(ctx, "bundle failed",
		"bundle_id", bundle.ID, "code", reason, "error", err)
}
