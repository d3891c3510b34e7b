package app

import (
	"context"
	"io"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	detection "github.com/fd1az/sandwich-bot/business/detection/domain"
	pipeline "github.com/fd1az/sandwich-bot/business/pipeline/domain"
	pricing "github.com/fd1az/sandwich-bot/business/pricing/domain"
	"github.com/fd1az/sandwich-bot/internal/apperror"
	"github.com/fd1az/sandwich-bot/internal/logger"
)

var (
	chain     = detection.Chain{Name: "ethereum", Family: detection.FamilyEVM, ID: 1}
	wethAddr  = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	tokenAddr = common.HexToAddress("0x00000000000000000000000000000000000000bb")
)

type fakePrices struct {
	nativeUSD  decimal.Decimal
	volatility decimal.Decimal
}

func (f *fakePrices) NativeUSD(context.Context, string) (decimal.Decimal, error) {
	return f.nativeUSD, nil
}
func (f *fakePrices) VolatilityScore(string) decimal.Decimal { return f.volatility }

type fakeGas struct {
	priceWei *big.Int
}

func (f *fakeGas) GasPrice(context.Context) (*pricing.GasPrice, error) {
	return pricing.NewGasPrice(f.priceWei), nil
}

type fakeTokens struct{}

func (fakeTokens) Token(_ context.Context, c detection.Chain, address string) (*detection.Token, error) {
	return &detection.Token{Address: address, Chain: c, Decimals: 18}, nil
}

func eth(n int64) *big.Int {
	wei := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	return wei.Mul(wei, big.NewInt(n))
}

func testOpportunity(victimIn, victimMinOut *big.Int) *detection.SandwichOpportunity {
	return &detection.SandwichOpportunity{
		ID:             "opp-1",
		Chain:          chain,
		VictimTxHash:   "0xvictim",
		VictimGasPrice: decimal.NewFromInt(30_000_000_000),
		Pool: detection.Pool{
			Address:   "0xpool",
			Chain:     chain,
			Token0:    wethAddr.Hex(),
			Token1:    tokenAddr.Hex(),
			Reserve0:  eth(1000),
			Reserve1:  eth(1000),
			FeeBps:    30,
			FetchedAt: time.Now(),
		},
		Swap: detection.EVMSwap{
			CallKind:     detection.RouterV2ExactIn,
			TokenIn:      wethAddr,
			TokenOut:     tokenAddr,
			AmountIn:     victimIn,
			AmountOutMin: victimMinOut,
		},
		PriceImpact: 900,
		Confidence:  decimal.NewFromInt(1),
		DetectedAt:  time.Now(),
		TTL:         12 * time.Second,
	}
}

func newTestOptimizer(t *testing.T, cfg OptimizerConfig, gasWei *big.Int) *Optimizer {
	t.Helper()

	cfg.Valuations = map[string]TokenValuation{
		strings.ToLower(wethAddr.Hex()): ValueAsNative,
	}

	log := logger.New(io.Discard, logger.LevelError, "test", nil)
	o, err := NewOptimizer(cfg,
		&fakePrices{nativeUSD: decimal.NewFromInt(3400)},
		map[string]GasSource{"ethereum": &fakeGas{priceWei: gasWei}},
		fakeTokens{},
		&pipeline.ExecutionStats{},
		log)
	require.NoError(t, err)
	return o
}

func TestOptimizer_SizesProfitableSandwich(t *testing.T) {
	o := newTestOptimizer(t, DefaultOptimizerConfig(), big.NewInt(30_000_000_000))

	opp := testOpportunity(eth(100), big.NewInt(0))
	estimate, err := o.Estimate(context.Background(), opp)
	require.NoError(t, err)
	require.NotNil(t, estimate)

	// Position cap: at most 30% of the input reserve.
	maxPosition := new(big.Int).Quo(new(big.Int).Mul(eth(1000), big.NewInt(3000)), big.NewInt(10_000))
	require.LessOrEqual(t, estimate.FrontRunAmount.Cmp(maxPosition), 0)
	require.Positive(t, estimate.FrontRunAmount.Sign())
	require.Positive(t, estimate.GrossProfit.Sign())
	require.True(t, estimate.NetProfitUSD.GreaterThan(o.config.MinNetProfitUSD))
	require.True(t, estimate.RiskScore.GreaterThan(decimal.Zero))
	require.True(t, estimate.RiskScore.LessThanOrEqual(decimal.NewFromInt(1)))
}

func TestOptimizer_GasSpikeTurnsUnprofitable(t *testing.T) {
	// 5,000,000 gwei: both legs cost ~1980 ETH, drowning any gross profit.
	spike := new(big.Int).Mul(big.NewInt(5_000_000), big.NewInt(1_000_000_000))
	o := newTestOptimizer(t, DefaultOptimizerConfig(), spike)

	_, err := o.Estimate(context.Background(), testOpportunity(eth(100), big.NewInt(0)))
	require.Error(t, err)
	require.Equal(t, apperror.CodeInsufficientProfit, apperror.GetCode(err))
}

func TestOptimizer_TightVictimMinOutLeavesNoRoom(t *testing.T) {
	o := newTestOptimizer(t, DefaultOptimizerConfig(), big.NewInt(30_000_000_000))

	// Victim demands exactly the unsandwiched output; any front-run at all
	// would push them below it.
	unshifted := detection.AmountOut(eth(100), eth(1000), eth(1000), 30)
	_, err := o.Estimate(context.Background(), testOpportunity(eth(100), unshifted))
	require.Error(t, err)
	require.Equal(t, apperror.CodeInsufficientProfit, apperror.GetCode(err))
}

func TestOptimizer_ExpiredOpportunityRejected(t *testing.T) {
	o := newTestOptimizer(t, DefaultOptimizerConfig(), big.NewInt(30_000_000_000))

	opp := testOpportunity(eth(100), big.NewInt(0))
	opp.DetectedAt = time.Now().Add(-time.Minute)

	_, err := o.Estimate(context.Background(), opp)
	require.Error(t, err)
	require.Equal(t, apperror.CodeStaleData, apperror.GetCode(err))
}

func TestOptimizer_UnpricedInputTokenRejected(t *testing.T) {
	o := newTestOptimizer(t, DefaultOptimizerConfig(), big.NewInt(30_000_000_000))
	o.config.Valuations = map[string]TokenValuation{}

	_, err := o.Estimate(context.Background(), testOpportunity(eth(100), big.NewInt(0)))
	require.Error(t, err)
	require.Equal(t, apperror.CodeInsufficientProfit, apperror.GetCode(err))
}

func TestOptimizer_ProfitFloorApplies(t *testing.T) {
	cfg := DefaultOptimizerConfig()
	cfg.MinNetProfitUSD = decimal.New(1, 12) // absurd floor
	o := newTestOptimizer(t, cfg, big.NewInt(30_000_000_000))

	_, err := o.Estimate(context.Background(), testOpportunity(eth(100), big.NewInt(0)))
	require.Error(t, err)
	require.Equal(t, apperror.CodeInsufficientProfit, apperror.GetCode(err))
}

func TestOptimizer_LowConfidenceShrinksRiskScore(t *testing.T) {
	o := newTestOptimizer(t, DefaultOptimizerConfig(), big.NewInt(30_000_000_000))

	confident := testOpportunity(eth(100), big.NewInt(0))
	shaky := testOpportunity(eth(100), big.NewInt(0))
	shaky.Confidence = decimal.RequireFromString("0.5")

	est1, err := o.Estimate(context.Background(), confident)
	require.NoError(t, err)
	est2, err := o.Estimate(context.Background(), shaky)
	require.NoError(t, err)

	require.True(t, est2.RiskScore.LessThan(est1.RiskScore))
}

func TestOptimizer_RejectionIncrementsStats(t *testing.T) {
	o := newTestOptimizer(t, DefaultOptimizerConfig(), big.NewInt(30_000_000_000))
	o.config.Valuations = map[string]TokenValuation{}

	_, _ = o.Estimate(context.Background(), testOpportunity(eth(100), big.NewInt(0)))
	require.Equal(t, uint64(1), o.stats.Snapshot().RejectedOptimizer)
}
