package app

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/fd1az/sandwich-bot/business/detection/domain"
	pipeline "github.com/fd1az/sandwich-bot/business/pipeline/domain"
	"github.com/fd1az/sandwich-bot/internal/apperror"
	"github.com/fd1az/sandwich-bot/internal/logger"
)

const (
	tracerName = "detection"
	meterName  = "detection"
)

// DetectorConfig holds configuration for the opportunity detector.
type DetectorConfig struct {
	MinPriceImpactBps int64
	// MinLiquidity is the floor for the input-side reserve, expressed in
	// whole tokens; it is scaled by the token's decimals at gate time.
	MinLiquidity   decimal.Decimal
	MaxPoolAge     time.Duration
	OpportunityTTL time.Duration
	TokenBlacklist []string
	BufferSize     int
}

// DefaultDetectorConfig returns sensible defaults.
func DefaultDetectorConfig() DetectorConfig {
	return DetectorConfig{
		MinPriceImpactBps: 50,
		MinLiquidity:      decimal.NewFromInt(10),
		MaxPoolAge:        30 * time.Second,
		OpportunityTTL:    12 * time.Second,
		BufferSize:        64,
	}
}

// detectorMetrics holds OTEL metric instruments.
type detectorMetrics struct {
	txSeen        metric.Int64Counter
	swapsDecoded  metric.Int64Counter
	opportunities metric.Int64Counter
	rejections    metric.Int64Counter
}

// Detector consumes pending transactions, decodes swap intents and emits
// scored sandwich opportunities. One consumer goroutine per mempool source;
// each transaction is evaluated independently, so a failure never affects
// neighbouring candidates.
type Detector struct {
	config    DetectorConfig
	sources   []MempoolSource
	decoders  map[domain.ChainFamily]SwapDecoder
	pools     PoolProvider
	stats     *pipeline.ExecutionStats
	logger    logger.LoggerInterface
	blacklist map[string]struct{}

	out chan *domain.SandwichOpportunity

	tracer  trace.Tracer
	metrics *detectorMetrics
}

// NewDetector creates a new opportunity Detector.
func NewDetector(
	cfg DetectorConfig,
	sources []MempoolSource,
	decoders map[domain.ChainFamily]SwapDecoder,
	pools PoolProvider,
	stats *pipeline.ExecutionStats,
	log logger.LoggerInterface,
) (*Detector, error) {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 64
	}

	blacklist := make(map[string]struct{}, len(cfg.TokenBlacklist))
	for _, addr := range cfg.TokenBlacklist {
		blacklist[strings.ToLower(addr)] = struct{}{}
	}

	d := &Detector{
		config:    cfg,
		sources:   sources,
		decoders:  decoders,
		pools:     pools,
		stats:     stats,
		logger:    log,
		blacklist: blacklist,
		out:       make(chan *domain.SandwichOpportunity, cfg.BufferSize),
		tracer:    otel.Tracer(tracerName),
	}

	if err := d.initMetrics(); err != nil {
		return nil, err
	}

	return d, nil
}

func (d *Detector) initMetrics() error {
	meter := otel.Meter(meterName)
	var err error

	d.metrics = &detectorMetrics{}

	d.metrics.txSeen, err = meter.Int64Counter(
		"detector_transactions_total",
		metric.WithDescription("Pending transactions observed"),
	)
	if err != nil {
		return err
	}

	d.metrics.swapsDecoded, err = meter.Int64Counter(
		"detector_swaps_decoded_total",
		metric.WithDescription("Transactions decoded as swaps"),
	)
	if err != nil {
		return err
	}

	d.metrics.opportunities, err = meter.Int64Counter(
		"detector_opportunities_total",
		metric.WithDescription("Opportunities emitted"),
	)
	if err != nil {
		return err
	}

	d.metrics.rejections, err = meter.Int64Counter(
		"detector_rejections_total",
		metric.WithDescription("Candidates rejected by quality gates"),
	)
	if err != nil {
		return err
	}

	return nil
}

// Start subscribes to every mempool source and begins consuming.
func (d *Detector) Start(ctx context.Context) error {
	d.logger.Info(ctx, "starting opportunity detector", "sources", len(d.sources))

	for _, src := range d.sources {
		txs, err := src.Subscribe(ctx)
		if err != nil {
			return apperror.New(apperror.CodeChainConnectionFailed,
				apperror.WithCause(err),
				apperror.WithContext("subscribe to mempool: "+src.Chain().Name))
		}
		go d.run(ctx, src.Chain(), txs)
	}

	return nil
}

// Opportunities returns the stream of emitted opportunities.
func (d *Detector) Opportunities() <-chan *domain.SandwichOpportunity {
	return d.out
}

// Stop closes the mempool sources and the output stream.
func (d *Detector) Stop() error {
	d.logger.Info(context.Background(), "stopping opportunity detector")
	for _, src := range d.sources {
		if err := src.Close(); err != nil {
			d.logger.Warn(context.Background(), "mempool source close failed",
				"chain", src.Chain().Name, "error", err)
		}
	}
	close(d.out)
	return nil
}

func (d *Detector) run(ctx context.Context, chain domain.Chain, txs <-chan *domain.PendingTransaction) {
	for {
		select {
		case <-ctx.Done():
			d.logger.Info(ctx, "detector consumer stopping", "chain", chain.Name, "reason", ctx.Err())
			return
		case tx, ok := <-txs:
			if !ok {
				d.logger.Info(ctx, "mempool stream closed", "chain", chain.Name)
				return
			}
			if tx != nil {
				d.onPendingTx(ctx, tx)
			}
		}
	}
}

func (d *Detector) onPendingTx(ctx context.Context, tx *domain.PendingTransaction) {
	ctx, span := d.tracer.Start(ctx, "detector.evaluate",
		trace.WithAttributes(
			attribute.String("chain", tx.Chain.Name),
			attribute.String("tx_hash", tx.Hash),
		),
	)
	defer span.End()

	d.stats.IncSeen()
	d.metrics.txSeen.Add(ctx, 1, metric.WithAttributes(attribute.String("chain", tx.Chain.Name)))

	decoder, ok := d.decoders[tx.Chain.Family]
	if !ok {
		d.stats.IncUndecoded()
		return
	}

	swap, err := decoder.Decode(tx)
	if err != nil {
		d.stats.IncUndecoded()
		return
	}
	d.metrics.swapsDecoded.Add(ctx, 1, metric.WithAttributes(attribute.String("chain", tx.Chain.Name)))

	opp, err := d.evaluate(ctx, tx, swap)
	if err != nil {
		d.reject(ctx, tx, err)
		return
	}

	select {
	case d.out <- opp:
		d.metrics.opportunities.Add(ctx, 1, metric.WithAttributes(attribute.String("chain", tx.Chain.Name)))
		d.logger.Info(ctx, "opportunity detected",
			"id", opp.ID,
			"chain", opp.Chain.Name,
			"victim_tx", opp.VictimTxHash,
			"price_impact_bps", opp.PriceImpact,
			"confidence", opp.Confidence.String())
	default:
		// Downstream is saturated. Opportunities decay in seconds, so
		// dropping beats queueing.
		d.reject(ctx, tx, apperror.New(apperror.CodeStaleData,
			apperror.WithContext("output buffer full")))
	}
}

// evaluate runs the quality gates in cost order and scores the candidate.
func (d *Detector) evaluate(ctx context.Context, tx *domain.PendingTransaction, swap domain.SwapCall) (*domain.SandwichOpportunity, error) {
	if swap.InAmount() == nil || swap.InAmount().Sign() <= 0 {
		return nil, apperror.New(apperror.CodeDecodeFailed,
			apperror.WithContext("non-positive input amount"))
	}

	if d.isBlacklisted(swap.InputToken()) || d.isBlacklisted(swap.OutputToken()) {
		return nil, apperror.New(apperror.CodeTokenBlacklisted)
	}

	tokenIn, err := d.pools.Token(ctx, tx.Chain, swap.InputToken())
	if err != nil {
		return nil, err
	}
	tokenOut, err := d.pools.Token(ctx, tx.Chain, swap.OutputToken())
	if err != nil {
		return nil, err
	}
	if tokenIn.Blacklisted || tokenOut.Blacklisted {
		return nil, apperror.New(apperror.CodeTokenBlacklisted)
	}
	if !tokenIn.PlausibleDecimals() || !tokenOut.PlausibleDecimals() {
		return nil, apperror.New(apperror.CodeImplausibleDecimals)
	}

	pool, err := d.pools.PoolByPair(ctx, tx.Chain, swap.InputToken(), swap.OutputToken())
	if err != nil {
		return nil, err
	}

	reserveIn, _, ok := pool.ReservesFor(swap.InputToken(), swap.OutputToken())
	if !ok {
		return nil, apperror.New(apperror.CodePoolNotFound,
			apperror.WithContext("pair not in pool "+pool.Address))
	}

	minLiquidity := d.config.MinLiquidity.Shift(tokenIn.Decimals).Truncate(0).BigInt()
	if reserveIn.Cmp(minLiquidity) < 0 {
		return nil, apperror.New(apperror.CodeInsufficientLiquidity)
	}

	impact := domain.PriceImpactBps(swap.InAmount(), reserveIn, pool.FeeBps)
	if impact < d.config.MinPriceImpactBps {
		return nil, apperror.New(apperror.CodeInsufficientProfit,
			apperror.WithContext("price impact below threshold"))
	}

	now := time.Now()
	age := pool.Age(now)

	gasPrice := decimal.Zero
	if tx.GasPrice != nil {
		gasPrice = decimal.NewFromBigInt(tx.GasPrice, 0)
	}

	return &domain.SandwichOpportunity{
		ID:             uuid.NewString(),
		Chain:          tx.Chain,
		VictimTxHash:   tx.Hash,
		VictimGasPrice: gasPrice,
		Pool:           *pool,
		Swap:           swap,
		PriceImpact:    impact,
		Confidence:     d.confidence(age),
		DetectedAt:     now,
		TTL:            d.config.OpportunityTTL,
	}, nil
}

// confidence maps snapshot age onto [0.5, 1]: fresh reserves score 1.0 and the
// score decays linearly to the 0.5 floor at MaxPoolAge. Staleness never blocks
// emission; the downgraded score rides the opportunity so downstream risk
// scoring can price it in.
func (d *Detector) confidence(age time.Duration) decimal.Decimal {
	if d.config.MaxPoolAge <= 0 || age <= 0 {
		return decimal.NewFromInt(1)
	}
	if age >= d.config.MaxPoolAge {
		return decimal.NewFromFloat(0.5)
	}
	ratio := decimal.NewFromFloat(age.Seconds()).Div(decimal.NewFromFloat(d.config.MaxPoolAge.Seconds()))
	half := decimal.NewFromFloat(0.5)
	return decimal.NewFromInt(1).Sub(ratio.Mul(half))
}

func (d *Detector) isBlacklisted(token string) bool {
	_, ok := d.blacklist[strings.ToLower(token)]
	return ok
}

func (d *Detector) reject(ctx context.Context, tx *domain.PendingTransaction, err error) {
	d.stats.IncRejectedDetection()
	d.metrics.rejections.Add(ctx, 1, metric.WithAttributes(
		attribute.String("chain", tx.Chain.Name),
		attribute.String("reason", string(apperror.GetCode(err))),
	))
	d.logger.Debug(ctx, "candidate rejected",
		"chain", tx.Chain.Name,
		"tx_hash", tx.Hash,
		"code", string(apperror.GetCode(err)),
		"error", err)
}
