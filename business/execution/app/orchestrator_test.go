package app

import (
	"context"
	"io"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	detection "github.com/fd1az/sandwich-bot/business/detection/domain"
	"github.com/fd1az/sandwich-bot/business/execution/domain"
	optimization "github.com/fd1az/sandwich-bot/business/optimization/domain"
	pipeline "github.com/fd1az/sandwich-bot/business/pipeline/domain"
	"github.com/fd1az/sandwich-bot/internal/apperror"
	"github.com/fd1az/sandwich-bot/internal/logger"
)

type fakeRelay struct {
	mu          sync.Mutex
	simResult   *SimulationResult
	simErr      error
	submitErr   error
	submitCalls int
}

func (f *fakeRelay) Simulate(context.Context, *domain.Bundle) (*SimulationResult, error) {
	if f.simErr != nil {
		return nil, f.simErr
	}
	return f.simResult, nil
}

func (f *fakeRelay) Submit(context.Context, *domain.Bundle) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitCalls++
	if f.submitErr != nil {
		return "", f.submitErr
	}
	return "0xbundlehash", nil
}

func (f *fakeRelay) submits() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.submitCalls
}

type fakeBuilder struct{}

func (fakeBuilder) Wallet() string { return "0xattacker" }

func (fakeBuilder) BuildFrontRun(_ context.Context, _ *detection.SandwichOpportunity, _ *optimization.ProfitEstimate, nonce uint64, _ *big.Int) (domain.BundleTx, error) {
	return domain.BundleTx{Role: domain.RoleFrontRun, Hash: "0xfront", Nonce: nonce}, nil
}

func (fakeBuilder) BuildBackRun(_ context.Context, _ *detection.SandwichOpportunity, _ *optimization.ProfitEstimate, nonce uint64, _, _ *big.Int) (domain.BundleTx, error) {
	return domain.BundleTx{Role: domain.RoleBackRun, Hash: "0xback", Nonce: nonce}, nil
}

type fakeChain struct {
	mu       sync.Mutex
	pending  bool
	included bool
	block    uint64
}

func (f *fakeChain) IsPending(context.Context, string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pending, nil
}

func (f *fakeChain) IsIncluded(context.Context, string) (bool, uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.included, f.block, nil
}

func (f *fakeChain) CurrentBlock(context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.block, nil
}

func (f *fakeChain) setIncluded(v bool) {
	f.mu.Lock()
	f.included = v
	f.mu.Unlock()
}

type fakePoolReader struct {
	mu        sync.Mutex
	pool      *detection.Pool
	refreshes int
}

func (f *fakePoolReader) RefreshPool(context.Context, detection.Chain, string, string) (*detection.Pool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshes++
	return f.pool, nil
}

func (f *fakePoolReader) refreshCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.refreshes
}

type recordingReporter struct {
	pipeline.NopReporter
	mu        sync.Mutex
	submitted []*domain.Bundle
	included  []*domain.Bundle
	failed    []string
}

func (r *recordingReporter) BundleSubmitted(b *domain.Bundle) {
	r.mu.Lock()
	r.submitted = append(r.submitted, b)
	r.mu.Unlock()
}

func (r *recordingReporter) BundleIncluded(b *domain.Bundle) {
	r.mu.Lock()
	r.included = append(r.included, b)
	r.mu.Unlock()
}

func (r *recordingReporter) BundleFailed(_ *domain.Bundle, reason string) {
	r.mu.Lock()
	r.failed = append(r.failed, reason)
	r.mu.Unlock()
}

func (r *recordingReporter) submittedBundle() *domain.Bundle {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.submitted) == 0 {
		return nil
	}
	return r.submitted[0]
}

func (r *recordingReporter) includedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.included)
}

var (
	testTokenIn  = common.HexToAddress("0x00000000000000000000000000000000000000aa").Hex()
	testTokenOut = common.HexToAddress("0x00000000000000000000000000000000000000bb").Hex()
)

func testChain() detection.Chain {
	return detection.Chain{Name: "ethereum", Family: detection.FamilyEVM, ID: 1}
}

func orchPool(reserve0, reserve1 int64) *detection.Pool {
	return &detection.Pool{
		Address:   "0xpool",
		Chain:     testChain(),
		Token0:    testTokenIn,
		Token1:    testTokenOut,
		Reserve0:  big.NewInt(reserve0),
		Reserve1:  big.NewInt(reserve1),
		FeeBps:    30,
		FetchedAt: time.Now(),
	}
}

func orchOpportunity() *detection.SandwichOpportunity {
	return &detection.SandwichOpportunity{
		ID:             "opp-1",
		Chain:          testChain(),
		VictimTxHash:   "0xvictim",
		VictimGasPrice: decimal.NewFromInt(30_000_000_000),
		Pool:           *orchPool(1_000_000, 1_000_000),
		Swap: detection.EVMSwap{
			CallKind: detection.RouterV2ExactIn,
			TokenIn:  common.HexToAddress(testTokenIn),
			TokenOut: common.HexToAddress(testTokenOut),
			AmountIn: big.NewInt(100_000),
		},
		PriceImpact: 900,
		Confidence:  decimal.NewFromInt(1),
		DetectedAt:  time.Now(),
		TTL:         5 * time.Second,
	}
}

func orchEstimate() *optimization.ProfitEstimate {
	return &optimization.ProfitEstimate{
		OpportunityID:  "opp-1",
		Chain:          testChain(),
		FrontRunAmount: big.NewInt(50_000),
		BackRunAmount:  big.NewInt(48_000),
		GrossProfit:    big.NewInt(2_000),
		NetProfit:      big.NewInt(1_500),
		GasCostNative:  big.NewInt(500),
		NetProfitUSD:   decimal.NewFromInt(40),
		RiskScore:      decimal.NewFromFloat(0.9),
		ComputedAt:     time.Now(),
	}
}

type orchFixture struct {
	orch     *Orchestrator
	relay    *fakeRelay
	chain    *fakeChain
	pools    *fakePoolReader
	nonces   *fakeNonceSource
	stats    *pipeline.ExecutionStats
	reporter *recordingReporter
}

func newOrchFixture(t *testing.T, mutate func(*OrchestratorConfig)) *orchFixture {
	t.Helper()

	cfg := DefaultOrchestratorConfig()
	cfg.RetryBackoff = time.Millisecond
	cfg.MaxRetryBackoff = 2 * time.Millisecond
	cfg.InclusionPollInterval = 5 * time.Millisecond
	cfg.InclusionPollAttempts = 5
	if mutate != nil {
		mutate(&cfg)
	}

	f := &orchFixture{
		relay: &fakeRelay{
			simResult: &SimulationResult{Success: true, ProfitWei: big.NewInt(1_500), GasUsed: 300_000},
		},
		chain:    &fakeChain{pending: true, block: 100},
		pools:    &fakePoolReader{pool: orchPool(1_000_000, 1_000_000)},
		nonces:   &fakeNonceSource{next: 7},
		stats:    &pipeline.ExecutionStats{},
		reporter: &recordingReporter{},
	}

	log := logger.New(io.Discard, logger.LevelDebug, "test", nil)
	orch, err := NewOrchestrator(cfg, f.relay, fakeBuilder{}, f.chain, f.pools,
		NewNonceManager(f.nonces), f.stats, f.reporter, log)
	require.NoError(t, err)
	f.orch = orch
	return f
}

func TestOrchestrator_SubmitsAndSeesInclusion(t *testing.T) {
	f := newOrchFixture(t, nil)

	err := f.orch.Execute(context.Background(), orchOpportunity(), orchEstimate())
	require.NoError(t, err)

	bundle := f.reporter.submittedBundle()
	require.NotNil(t, bundle)
	require.Equal(t, domain.StatusSubmitted, bundle.Status())
	require.Equal(t, uint64(101), bundle.TargetBlock)

	txs := bundle.Txs()
	require.Len(t, txs, 3)
	require.Equal(t, domain.RoleFrontRun, txs[0].Role)
	require.Equal(t, domain.RoleVictim, txs[1].Role)
	require.Equal(t, domain.RoleBackRun, txs[2].Role)
	require.Equal(t, uint64(7), txs[0].Nonce)
	require.Equal(t, uint64(8), txs[2].Nonce)

	f.chain.setIncluded(true)
	require.Eventually(t, func() bool {
		return bundle.Status() == domain.StatusIncluded
	}, time.Second, 5*time.Millisecond)

	require.Equal(t, 1, f.reporter.includedCount())
	require.Equal(t, uint64(1), f.stats.Snapshot().Included)
}

func TestOrchestrator_ExpiresWhenNeverIncluded(t *testing.T) {
	f := newOrchFixture(t, nil)

	err := f.orch.Execute(context.Background(), orchOpportunity(), orchEstimate())
	require.NoError(t, err)

	bundle := f.reporter.submittedBundle()
	require.NotNil(t, bundle)

	require.Eventually(t, func() bool {
		return bundle.Status() == domain.StatusExpired
	}, time.Second, 5*time.Millisecond)

	require.Equal(t, uint64(1), f.stats.Snapshot().Expired)
	// The reserved nonces are abandoned; the manager must re-read the chain.
	f.nonces.mu.Lock()
	calls := f.nonces.calls
	f.nonces.mu.Unlock()
	require.GreaterOrEqual(t, calls, 1)
}

func TestOrchestrator_AbortsOnReserveDrift(t *testing.T) {
	f := newOrchFixture(t, nil)
	f.pools.pool = orchPool(2_000_000, 1_000_000) // doubled since detection

	err := f.orch.Execute(context.Background(), orchOpportunity(), orchEstimate())
	require.Error(t, err)
	require.Equal(t, apperror.CodeStaleData, apperror.GetCode(err))
	require.Zero(t, f.relay.submits())
	require.Equal(t, uint64(1), f.stats.Snapshot().RejectedExecution)
	require.Equal(t, 1, f.pools.refreshCount(), "drift check must re-read reserves from chain")
}

func TestOrchestrator_AbortsWhenVictimConfirmed(t *testing.T) {
	f := newOrchFixture(t, nil)
	f.chain.pending = false

	err := f.orch.Execute(context.Background(), orchOpportunity(), orchEstimate())
	require.Error(t, err)
	require.Equal(t, apperror.CodeStaleData, apperror.GetCode(err))
	require.Zero(t, f.relay.submits())
}

func TestOrchestrator_NeverSubmitsOnSimulationMismatch(t *testing.T) {
	f := newOrchFixture(t, nil)
	// Estimate says 1500 but simulation says 100, a 93% shortfall.
	f.relay.simResult = &SimulationResult{Success: true, ProfitWei: big.NewInt(100)}

	err := f.orch.Execute(context.Background(), orchOpportunity(), orchEstimate())
	require.Error(t, err)
	require.Equal(t, apperror.CodeSimulationMismatch, apperror.GetCode(err))
	require.Zero(t, f.relay.submits())
}

func TestOrchestrator_FailsOnRevertedSimulation(t *testing.T) {
	f := newOrchFixture(t, nil)
	f.relay.simResult = &SimulationResult{Success: false, Revert: "UniswapV2: K"}

	err := f.orch.Execute(context.Background(), orchOpportunity(), orchEstimate())
	require.Error(t, err)
	require.Equal(t, apperror.CodeSimulationFailed, apperror.GetCode(err))
	require.Zero(t, f.relay.submits())
}

func TestOrchestrator_RetriesSubmissionThenFails(t *testing.T) {
	f := newOrchFixture(t, func(cfg *OrchestratorConfig) {
		cfg.MaxSubmitRetries = 2
	})
	f.relay.submitErr = apperror.New(apperror.CodeSubmissionFailed)

	err := f.orch.Execute(context.Background(), orchOpportunity(), orchEstimate())
	require.Error(t, err)
	require.Equal(t, apperror.CodeSubmissionFailed, apperror.GetCode(err))
	require.Equal(t, 3, f.relay.submits(), "initial attempt plus two retries")
	require.Equal(t, uint64(1), f.stats.Snapshot().Failed)

	f.reporter.mu.Lock()
	failed := append([]string(nil), f.reporter.failed...)
	f.reporter.mu.Unlock()
	require.Contains(t, failed, string(apperror.CodeSubmissionFailed))
}

func TestOrchestrator_DoesNotRetryNonRetryableSubmitError(t *testing.T) {
	f := newOrchFixture(t, nil)
	f.relay.submitErr = apperror.New(apperror.CodeRelayError)

	err := f.orch.Execute(context.Background(), orchOpportunity(), orchEstimate())
	require.Error(t, err)
	require.Equal(t, 1, f.relay.submits())
}

func TestOrchestrator_EmergencyStopBlocksNewWork(t *testing.T) {
	f := newOrchFixture(t, nil)
	f.orch.EmergencyStop()

	err := f.orch.Execute(context.Background(), orchOpportunity(), orchEstimate())
	require.Error(t, err)
	require.Equal(t, apperror.CodeEmergencyStop, apperror.GetCode(err))
	require.Zero(t, f.relay.submits())

	f.orch.Resume()
	require.NoError(t, f.orch.Execute(context.Background(), orchOpportunity(), orchEstimate()))
}

func TestOrchestrator_EmergencyStopCancelsInclusionWatch(t *testing.T) {
	f := newOrchFixture(t, func(cfg *OrchestratorConfig) {
		cfg.InclusionPollInterval = 50 * time.Millisecond
		cfg.InclusionPollAttempts = 100
	})

	err := f.orch.Execute(context.Background(), orchOpportunity(), orchEstimate())
	require.NoError(t, err)

	bundle := f.reporter.submittedBundle()
	require.NotNil(t, bundle)

	f.orch.EmergencyStop()
	require.Eventually(t, func() bool {
		return bundle.Status() == domain.StatusCancelled
	}, time.Second, 5*time.Millisecond)
	require.Equal(t, "emergency stop", bundle.FailReason())

	// The abandoned nonces force a re-read from chain.
	f.nonces.mu.Lock()
	calls := f.nonces.calls
	f.nonces.mu.Unlock()
	require.GreaterOrEqual(t, calls, 1)
}

func TestOrchestrator_CloseCancelsInclusionWatch(t *testing.T) {
	f := newOrchFixture(t, func(cfg *OrchestratorConfig) {
		cfg.InclusionPollInterval = 50 * time.Millisecond
		cfg.InclusionPollAttempts = 100
	})

	err := f.orch.Execute(context.Background(), orchOpportunity(), orchEstimate())
	require.NoError(t, err)

	bundle := f.reporter.submittedBundle()
	require.NotNil(t, bundle)

	require.NoError(t, f.orch.Close())
	require.Eventually(t, func() bool {
		return bundle.Status() == domain.StatusCancelled
	}, time.Second, 5*time.Millisecond)
}

func TestOrchestrator_EmergencyStopAbortsRetryBackoff(t *testing.T) {
	f := newOrchFixture(t, func(cfg *OrchestratorConfig) {
		cfg.MaxSubmitRetries = 3
		cfg.RetryBackoff = time.Hour
		cfg.MaxRetryBackoff = time.Hour
	})
	f.relay.submitErr = apperror.New(apperror.CodeSubmissionFailed)

	errCh := make(chan error, 1)
	go func() {
		errCh <- f.orch.Execute(context.Background(), orchOpportunity(), orchEstimate())
	}()

	require.Eventually(t, func() bool {
		return f.relay.submits() == 1
	}, time.Second, time.Millisecond)

	f.orch.EmergencyStop()

	select {
	case err := <-errCh:
		require.Error(t, err)
		require.Equal(t, apperror.CodeEmergencyStop, apperror.GetCode(err))
	case <-time.After(time.Second):
		t.Fatal("stop did not interrupt the retry backoff")
	}
	require.Equal(t, 1, f.relay.submits(), "no further attempts after the stop")

	f.reporter.mu.Lock()
	failed := append([]string(nil), f.reporter.failed...)
	f.reporter.mu.Unlock()
	require.Contains(t, failed, string(domain.StatusCancelled))
}

func TestOrchestrator_RejectsExpiredOpportunity(t *testing.T) {
	f := newOrchFixture(t, nil)

	opp := orchOpportunity()
	opp.DetectedAt = time.Now().Add(-time.Minute)

	err := f.orch.Execute(context.Background(), opp, orchEstimate())
	require.Error(t, err)
	require.Equal(t, apperror.CodeStaleData, apperror.GetCode(err))
}

func TestOrchestrator_TipIsCappedShareOfProfit(t *testing.T) {
	f := newOrchFixture(t, func(cfg *OrchestratorConfig) {
		cfg.TipRatio = decimal.RequireFromString("0.5")
		cfg.MaxTipNative = big.NewInt(500)
	})

	err := f.orch.Execute(context.Background(), orchOpportunity(), orchEstimate())
	require.NoError(t, err)

	bundle := f.reporter.submittedBundle()
	require.NotNil(t, bundle)
	// Half of the 1500 net profit is 750, capped at 500.
	require.Equal(t, int64(500), bundle.Tip.Int64())
}
