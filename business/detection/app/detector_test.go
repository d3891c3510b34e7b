package app

import (
	"context"
	"io"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/fd1az/sandwich-bot/business/detection/domain"
	pipeline "github.com/fd1az/sandwich-bot/business/pipeline/domain"
	"github.com/fd1az/sandwich-bot/internal/apperror"
	"github.com/fd1az/sandwich-bot/internal/logger"
)

var testChain = domain.Chain{Name: "ethereum", Family: domain.FamilyEVM, ID: 1}

var (
	tokenInAddr  = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	tokenOutAddr = common.HexToAddress("0x00000000000000000000000000000000000000bb")
)

type fakeDecoder struct {
	swap domain.SwapCall
	err  error
}

func (f *fakeDecoder) Decode(*domain.PendingTransaction) (domain.SwapCall, error) {
	return f.swap, f.err
}

type fakePools struct {
	pool   *domain.Pool
	tokens map[string]*domain.Token
}

func (f *fakePools) PoolByPair(_ context.Context, _ domain.Chain, _, _ string) (*domain.Pool, error) {
	if f.pool == nil {
		return nil, apperror.New(apperror.CodePoolNotFound)
	}
	return f.pool, nil
}

func (f *fakePools) RefreshPool(ctx context.Context, chain domain.Chain, tokenIn, tokenOut string) (*domain.Pool, error) {
	return f.PoolByPair(ctx, chain, tokenIn, tokenOut)
}

func (f *fakePools) Token(_ context.Context, _ domain.Chain, address string) (*domain.Token, error) {
	if tok, ok := f.tokens[address]; ok {
		return tok, nil
	}
	return nil, apperror.New(apperror.CodeNotFound)
}

func eth(n int64) *big.Int {
	wei := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	return wei.Mul(wei, big.NewInt(n))
}

func testSwap(amountIn *big.Int) domain.SwapCall {
	return domain.EVMSwap{
		CallKind: domain.RouterV2ExactIn,
		TokenIn:  tokenInAddr,
		TokenOut: tokenOutAddr,
		AmountIn: amountIn,
	}
}

func testPool(reserve int64, fetchedAt time.Time) *domain.Pool {
	return &domain.Pool{
		Address:   "0xpool",
		Chain:     testChain,
		Token0:    tokenInAddr.Hex(),
		Token1:    tokenOutAddr.Hex(),
		Reserve0:  eth(reserve),
		Reserve1:  eth(reserve),
		FeeBps:    30,
		FetchedAt: fetchedAt,
	}
}

func healthyTokens() map[string]*domain.Token {
	return map[string]*domain.Token{
		tokenInAddr.Hex():  {Address: tokenInAddr.Hex(), Chain: testChain, Decimals: 18},
		tokenOutAddr.Hex(): {Address: tokenOutAddr.Hex(), Chain: testChain, Decimals: 18},
	}
}

func newTestDetector(t *testing.T, cfg DetectorConfig, pools PoolProvider) *Detector {
	t.Helper()
	log := logger.New(io.Discard, logger.LevelError, "test", nil)
	d, err := NewDetector(cfg, nil, nil, pools, &pipeline.ExecutionStats{}, log)
	require.NoError(t, err)
	return d
}

func pendingTx() *domain.PendingTransaction {
	return &domain.PendingTransaction{
		Hash:       "0xvictim",
		Chain:      testChain,
		GasPrice:   big.NewInt(30_000_000_000),
		ObservedAt: time.Now(),
	}
}

func TestDetector_EvaluateEmitsHighImpactSwap(t *testing.T) {
	pools := &fakePools{pool: testPool(1000, time.Now()), tokens: healthyTokens()}
	d := newTestDetector(t, DefaultDetectorConfig(), pools)

	// 100 in vs 1000 reserve is roughly 9% impact, far above the 50 bps gate.
	opp, err := d.evaluate(context.Background(), pendingTx(), testSwap(eth(100)))
	require.NoError(t, err)
	require.NotNil(t, opp)
	require.Equal(t, "0xvictim", opp.VictimTxHash)
	require.GreaterOrEqual(t, opp.PriceImpact, int64(50))
	require.True(t, opp.Confidence.GreaterThan(decimal.RequireFromString("0.9")))
	require.NotEmpty(t, opp.ID)
}

func TestDetector_EvaluateRejectsLowImpact(t *testing.T) {
	pools := &fakePools{pool: testPool(1_000_000, time.Now()), tokens: healthyTokens()}
	d := newTestDetector(t, DefaultDetectorConfig(), pools)

	// 1 in vs 1M reserve is well below 50 bps.
	_, err := d.evaluate(context.Background(), pendingTx(), testSwap(eth(1)))
	require.Error(t, err)
	require.Equal(t, apperror.CodeInsufficientProfit, apperror.GetCode(err))
}

func TestDetector_EvaluateRejectsBlacklistedToken(t *testing.T) {
	cfg := DefaultDetectorConfig()
	cfg.TokenBlacklist = []string{tokenInAddr.Hex()}
	pools := &fakePools{pool: testPool(1000, time.Now()), tokens: healthyTokens()}
	d := newTestDetector(t, cfg, pools)

	_, err := d.evaluate(context.Background(), pendingTx(), testSwap(eth(100)))
	require.Error(t, err)
	require.Equal(t, apperror.CodeTokenBlacklisted, apperror.GetCode(err))
}

func TestDetector_EvaluateRejectsBlacklistedTokenMetadata(t *testing.T) {
	tokens := healthyTokens()
	tokens[tokenOutAddr.Hex()].Blacklisted = true
	pools := &fakePools{pool: testPool(1000, time.Now()), tokens: tokens}
	d := newTestDetector(t, DefaultDetectorConfig(), pools)

	_, err := d.evaluate(context.Background(), pendingTx(), testSwap(eth(100)))
	require.Error(t, err)
	require.Equal(t, apperror.CodeTokenBlacklisted, apperror.GetCode(err))
}

func TestDetector_EvaluateRejectsImplausibleDecimals(t *testing.T) {
	tokens := healthyTokens()
	tokens[tokenInAddr.Hex()].Decimals = 99
	pools := &fakePools{pool: testPool(1000, time.Now()), tokens: tokens}
	d := newTestDetector(t, DefaultDetectorConfig(), pools)

	_, err := d.evaluate(context.Background(), pendingTx(), testSwap(eth(100)))
	require.Error(t, err)
	require.Equal(t, apperror.CodeImplausibleDecimals, apperror.GetCode(err))
}

func TestDetector_EvaluateRejectsThinPool(t *testing.T) {
	// Reserve of 5 whole tokens is below the 10-token liquidity floor.
	pools := &fakePools{pool: testPool(5, time.Now()), tokens: healthyTokens()}
	d := newTestDetector(t, DefaultDetectorConfig(), pools)

	_, err := d.evaluate(context.Background(), pendingTx(), testSwap(eth(1)))
	require.Error(t, err)
	require.Equal(t, apperror.CodeInsufficientLiquidity, apperror.GetCode(err))
}

func TestDetector_StaleSnapshotStillEmitsWithFloorConfidence(t *testing.T) {
	stale := time.Now().Add(-2 * time.Minute)
	pools := &fakePools{pool: testPool(1000, stale), tokens: healthyTokens()}
	d := newTestDetector(t, DefaultDetectorConfig(), pools)

	opp, err := d.evaluate(context.Background(), pendingTx(), testSwap(eth(100)))
	require.NoError(t, err)
	require.NotNil(t, opp)
	require.True(t, opp.Confidence.Equal(decimal.RequireFromString("0.5")),
		"snapshot past the age cutoff downgrades confidence to the floor, got %s", opp.Confidence)
}

func TestDetector_ConfidenceDecaysWithAge(t *testing.T) {
	pools := &fakePools{pool: testPool(1000, time.Now()), tokens: healthyTokens()}
	d := newTestDetector(t, DefaultDetectorConfig(), pools)

	fresh := d.confidence(0)
	aged := d.confidence(d.config.MaxPoolAge)

	require.True(t, fresh.Equal(decimal.NewFromInt(1)))
	require.True(t, aged.LessThan(fresh))
	require.True(t, aged.GreaterThanOrEqual(decimal.RequireFromString("0.5")))
}

func TestDetector_UndecodedTxCounted(t *testing.T) {
	pools := &fakePools{pool: testPool(1000, time.Now()), tokens: healthyTokens()}
	d := newTestDetector(t, DefaultDetectorConfig(), pools)
	d.decoders = map[domain.ChainFamily]SwapDecoder{
		domain.FamilyEVM: &fakeDecoder{err: apperror.New(apperror.CodeDecodeFailed)},
	}

	d.onPendingTx(context.Background(), pendingTx())

	snap := d.stats.Snapshot()
	require.Equal(t, uint64(1), snap.Seen)
	require.Equal(t, uint64(1), snap.Undecoded)
	require.Len(t, d.Opportunities(), 0)
}

func TestDetector_OnPendingTxEmitsToChannel(t *testing.T) {
	pools := &fakePools{pool: testPool(1000, time.Now()), tokens: healthyTokens()}
	d := newTestDetector(t, DefaultDetectorConfig(), pools)
	d.decoders = map[domain.ChainFamily]SwapDecoder{
		domain.FamilyEVM: &fakeDecoder{swap: testSwap(eth(100))},
	}

	d.onPendingTx(context.Background(), pendingTx())

	select {
	case opp := <-d.Opportunities():
		require.Equal(t, "0xvictim", opp.VictimTxHash)
	default:
		t.Fatal("expected an emitted opportunity")
	}
}
