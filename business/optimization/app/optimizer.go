package app

import (
	"context"
	"math/big"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	detection "github.com/fd1az/sandwich-bot/business/detection/domain"
	"github.com/fd1az/sandwich-bot/business/optimization/domain"
	pipeline "github.com/fd1az/sandwich-bot/business/pipeline/domain"
	"github.com/fd1az/sandwich-bot/internal/apperror"
	"github.com/fd1az/sandwich-bot/internal/asset"
	"github.com/fd1az/sandwich-bot/internal/logger"
)

const (
	tracerName = "optimization"
	meterName  = "optimization"
)

// TokenValuation says how a token's amounts convert to USD.
type TokenValuation string

const (
	// ValueAsNative prices the token at the chain's native USD price
	// (wrapped native assets).
	ValueAsNative TokenValuation = "native"
	// ValueAsUSD treats one whole token as one dollar (stablecoins).
	ValueAsUSD TokenValuation = "usd"
)

// OptimizerConfig holds configuration for the profit optimizer.
type OptimizerConfig struct {
	// MaxPositionBps caps the front-run size as a share of the input reserve.
	MaxPositionBps   int64
	SearchIterations int
	// EpsilonBps terminates the search when successive probes agree within
	// this fraction of the best profit.
	EpsilonBps      int64
	MinNetProfitUSD decimal.Decimal

	FrontRunGasLimit uint64
	BackRunGasLimit  uint64
	// GasPremiumBps is the margin paid above the victim's gas price so the
	// front-run orders ahead of it.
	GasPremiumBps int64

	// Valuations maps lowercase token addresses to their USD conversion
	// rule. Opportunities whose input token has no valuation are rejected:
	// profit that cannot be priced cannot clear a USD threshold.
	Valuations map[string]TokenValuation
}

// DefaultOptimizerConfig returns sensible defaults.
func DefaultOptimizerConfig() OptimizerConfig {
	return OptimizerConfig{
		MaxPositionBps:   3000,
		SearchIterations: 20,
		EpsilonBps:       10,
		MinNetProfitUSD:  decimal.NewFromInt(25),
		FrontRunGasLimit: 180_000,
		BackRunGasLimit:  180_000,
		GasPremiumBps:    1000,
		Valuations:       map[string]TokenValuation{},
	}
}

// optimizerMetrics holds OTEL metric instruments.
type optimizerMetrics struct {
	evaluated  metric.Int64Counter
	accepted   metric.Int64Counter
	rejections metric.Int64Counter
	netUSD     metric.Float64Histogram
}

// Optimizer sizes the front-run leg for each opportunity and rejects those
// whose risk-adjusted net profit falls below the floor. A nil estimate with
// an INSUFFICIENT_PROFIT error is the normal negative verdict.
type Optimizer struct {
	config OptimizerConfig
	prices PriceSource
	gas    map[string]GasSource // by chain name
	tokens TokenSource
	stats  *pipeline.ExecutionStats
	logger logger.LoggerInterface

	tracer  trace.Tracer
	metrics *optimizerMetrics
}

// NewOptimizer creates a profit optimizer.
func NewOptimizer(
	cfg OptimizerConfig,
	prices PriceSource,
	gas map[string]GasSource,
	tokens TokenSource,
	stats *pipeline.ExecutionStats,
	log logger.LoggerInterface,
) (*Optimizer, error) {
	o := &Optimizer{
		config: cfg,
		prices: prices,
		gas:    gas,
		tokens: tokens,
		stats:  stats,
		logger: log,
		tracer: otel.Tracer(tracerName),
	}

	if err := o.initMetrics(); err != nil {
		return nil, err
	}

	return o, nil
}

func (o *Optimizer) initMetrics() error {
	meter := otel.Meter(meterName)
	var err error

	o.metrics = &optimizerMetrics{}

	o.metrics.evaluated, err = meter.Int64Counter(
		"optimizer_evaluated_total",
		metric.WithDescription("Opportunities evaluated"),
	)
	if err != nil {
		return err
	}

	o.metrics.accepted, err = meter.Int64Counter(
		"optimizer_accepted_total",
		metric.WithDescription("Opportunities passing the profit floor"),
	)
	if err != nil {
		return err
	}

	o.metrics.rejections, err = meter.Int64Counter(
		"optimizer_rejections_total",
		metric.WithDescription("Opportunities rejected"),
	)
	if err != nil {
		return err
	}

	o.metrics.netUSD, err = meter.Float64Histogram(
		"optimizer_net_profit_usd",
		metric.WithDescription("Net profit of accepted opportunities"),
		metric.WithUnit("USD"),
	)
	if err != nil {
		return err
	}

	return nil
}

// Estimate sizes the sandwich for the opportunity. Returns the estimate, or
// nil with an error explaining the rejection.
func (o *Optimizer) Estimate(ctx context.Context, opp *detection.SandwichOpportunity) (*domain.ProfitEstimate, error) {
	ctx, span := o.tracer.Start(ctx, "optimizer.estimate",
		trace.WithAttributes(
			attribute.String("opportunity_id", opp.ID),
			attribute.String("chain", opp.Chain.Name),
		),
	)
	defer span.End()

	o.metrics.evaluated.Add(ctx, 1)

	estimate, err := o.estimate(ctx, opp)
	if err != nil {
		o.stats.IncRejectedOptimizer()
		o.metrics.rejections.Add(ctx, 1, metric.WithAttributes(
			attribute.String("reason", string(apperror.GetCode(err))),
		))
		span.SetStatus(codes.Error, "rejected")
		o.logger.Debug(ctx, "opportunity rejected",
			"id", opp.ID, "code", string(apperror.GetCode(err)), "error", err)
		return nil, err
	}

	o.metrics.accepted.Add(ctx, 1)
	o.metrics.netUSD.Record(ctx, estimate.NetProfitUSD.InexactFloat64())
	span.SetStatus(codes.Ok, "accepted")
	o.logger.Info(ctx, "opportunity sized",
		"id", opp.ID,
		"front_run", estimate.FrontRunAmount.String(),
		"net_profit_usd", estimate.NetProfitUSD.String(),
		"risk_score", estimate.RiskScore.String())

	return estimate, nil
}

func (o *Optimizer) estimate(ctx context.Context, opp *detection.SandwichOpportunity) (*domain.ProfitEstimate, error) {
	now := time.Now()
	if opp.IsExpired(now) {
		return nil, apperror.New(apperror.CodeStaleData,
			apperror.WithContext("opportunity expired before sizing"))
	}

	valuation, ok := o.config.Valuations[strings.ToLower(opp.Swap.InputToken())]
	if !ok {
		return nil, apperror.New(apperror.CodeInsufficientProfit,
			apperror.WithContext("input token has no USD valuation"))
	}

	reserveIn, reserveOut, found := opp.Pool.ReservesFor(opp.Swap.InputToken(), opp.Swap.OutputToken())
	if !found {
		return nil, apperror.New(apperror.CodePoolNotFound,
			apperror.WithContext("pool does not hold the swap pair"))
	}

	maxPosition := new(big.Int).Mul(reserveIn, big.NewInt(o.config.MaxPositionBps))
	maxPosition.Quo(maxPosition, big.NewInt(detection.BpsDenominator))
	if maxPosition.Sign() <= 0 {
		return nil, apperror.New(apperror.CodeInvalidTradeSize,
			apperror.WithContext("position cap rounds to zero"))
	}

	victimIn := opp.Swap.InAmount()
	victimMinOut := opp.Swap.MinOutAmount()
	feeBps := opp.Pool.FeeBps

	result := domain.MaximizeConcave(maxPosition, o.config.SearchIterations, o.config.EpsilonBps,
		func(f *big.Int) *big.Int {
			legs := domain.ModelSandwich(f, victimIn, victimMinOut, reserveIn, reserveOut, feeBps)
			if legs == nil {
				return nil
			}
			return legs.Profit
		})

	if result.Best.Sign() <= 0 || result.BestProfit.Sign() <= 0 {
		return nil, apperror.New(apperror.CodeInsufficientProfit,
			apperror.WithContext("no front-run size yields gross profit"))
	}

	legs := domain.ModelSandwich(result.Best, victimIn, victimMinOut, reserveIn, reserveOut, feeBps)
	if legs == nil {
		return nil, apperror.New(apperror.CodeInsufficientProfit,
			apperror.WithContext("optimal size violates victim min-out"))
	}

	gasNative, err := o.gasCostNative(ctx, opp)
	if err != nil {
		return nil, err
	}

	nativeUSD, err := o.prices.NativeUSD(ctx, opp.Chain.Name)
	if err != nil {
		return nil, apperror.New(apperror.CodePriceFeedError,
			apperror.WithCause(err),
			apperror.WithContext("price native asset"))
	}

	native := asset.NativeFor(opp.Chain.Name)
	gasUSD := decimal.NewFromBigInt(gasNative, -native.Decimals).Mul(nativeUSD)

	tokenIn, err := o.tokens.Token(ctx, opp.Chain, opp.Swap.InputToken())
	if err != nil {
		return nil, err
	}

	grossUSD := o.tokenUSD(legs.Profit, tokenIn.Decimals, valuation, nativeUSD)
	netUSD := grossUSD.Sub(gasUSD)

	risk := o.riskScore(opp, result.Best, reserveIn)
	adjustedUSD := netUSD.Mul(risk)

	if adjustedUSD.LessThan(o.config.MinNetProfitUSD) {
		return nil, apperror.New(apperror.CodeInsufficientProfit,
			apperror.WithContext("risk-adjusted net "+adjustedUSD.StringFixed(2)+" USD below floor"))
	}

	netProfit := new(big.Int).Set(legs.Profit)
	if valuation == ValueAsNative {
		netProfit.Sub(netProfit, gasNative)
	}

	return &domain.ProfitEstimate{
		OpportunityID:  opp.ID,
		Chain:          opp.Chain,
		FrontRunAmount: result.Best,
		BackRunAmount:  legs.FrontRunOut,
		GrossProfit:    legs.Profit,
		NetProfit:      netProfit,
		GasCostNative:  gasNative,
		GasCostUSD:     gasUSD,
		NetProfitUSD:   netUSD,
		RiskScore:      risk,
		ComputedAt:     now,
	}, nil
}

// gasCostNative prices both attacker legs at a premium over the larger of
// the oracle's suggestion and the victim's own gas price, so the bundle
// orders correctly when submitted outside a relay.
func (o *Optimizer) gasCostNative(ctx context.Context, opp *detection.SandwichOpportunity) (*big.Int, error) {
	source, ok := o.gas[opp.Chain.Name]
	if !ok {
		return nil, apperror.New(apperror.CodeGasEstimationFailed,
			apperror.WithContext("no gas source for chain "+opp.Chain.Name))
	}

	price, err := source.GasPrice(ctx)
	if err != nil {
		return nil, apperror.New(apperror.CodeGasEstimationFailed,
			apperror.WithCause(err))
	}

	gasPrice := new(big.Int).Set(price.Wei)
	victimPrice := opp.VictimGasPrice.BigInt()
	if victimPrice != nil && victimPrice.Cmp(gasPrice) > 0 {
		gasPrice.Set(victimPrice)
	}

	premium := new(big.Int).Mul(gasPrice, big.NewInt(o.config.GasPremiumBps))
	premium.Quo(premium, big.NewInt(detection.BpsDenominator))
	gasPrice.Add(gasPrice, premium)

	totalGas := new(big.Int).SetUint64(o.config.FrontRunGasLimit + o.config.BackRunGasLimit)
	return totalGas.Mul(totalGas, gasPrice), nil
}

func (o *Optimizer) tokenUSD(amount *big.Int, decimals int32, valuation TokenValuation, nativeUSD decimal.Decimal) decimal.Decimal {
	whole := decimal.NewFromBigInt(amount, -decimals)
	if valuation == ValueAsNative {
		return whole.Mul(nativeUSD)
	}
	return whole
}

// riskScore combines detection confidence, market volatility and position
// depth into a multiplier in (0, 1]. Deeper positions relative to the
// reserve carry more inventory risk and score lower.
func (o *Optimizer) riskScore(opp *detection.SandwichOpportunity, frontRun, reserveIn *big.Int) decimal.Decimal {
	half := decimal.RequireFromString("0.5")
	one := decimal.NewFromInt(1)

	volatility := o.prices.VolatilityScore(opp.Chain.Name)
	volFactor := one.Sub(volatility.Mul(half))

	depth := decimal.NewFromBigInt(frontRun, 0).Div(decimal.NewFromBigInt(reserveIn, 0))
	depthFactor := one.Sub(depth.Mul(half))

	score := opp.Confidence.Mul(volFactor).Mul(depthFactor)
	if score.Sign() <= 0 {
		return decimal.New(1, -4) // floor at 0.0001, the score is a multiplier
	}
	if score.GreaterThan(one) {
		return one
	}
	return score
}
