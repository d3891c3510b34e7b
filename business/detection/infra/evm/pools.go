package evm

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/fd1az/sandwich-bot/business/detection/domain"
	"github.com/fd1az/sandwich-bot/internal/apperror"
	"github.com/fd1az/sandwich-bot/internal/cache"
	"github.com/fd1az/sandwich-bot/internal/circuitbreaker"
	"github.com/fd1az/sandwich-bot/internal/logger"
)

const (
	poolsTracerName = "github.com/fd1az/sandwich-bot/business/detection/infra/evm"
	poolsMeterName  = "github.com/fd1az/sandwich-bot/business/detection/infra/evm"
)

var (
	uint112Ty, _ = abi.NewType("uint112", "", nil)
	uint32Ty, _  = abi.NewType("uint32", "", nil)
	uint8Ty, _   = abi.NewType("uint8", "", nil)

	getPairArgs     = abi.Arguments{{Type: addressTy}, {Type: addressTy}}
	addressRetArgs  = abi.Arguments{{Type: addressTy}}
	reservesRetArgs = abi.Arguments{{Type: uint112Ty}, {Type: uint112Ty}, {Type: uint32Ty}}
	decimalsRetArgs = abi.Arguments{{Type: uint8Ty}}
)

func selector(signature string) []byte {
	return crypto.Keccak256([]byte(signature))[:4]
}

var (
	getPairSel     = selector("getPair(address,address)")
	token0Sel      = selector("token0()")
	token1Sel      = selector("token1()")
	getReservesSel = selector("getReserves()")
	decimalsSel    = selector("decimals()")
)

// PoolProviderConfig holds configuration for the on-chain pool provider.
type PoolProviderConfig struct {
	Factory   string
	FeeBps    int64
	PoolTTL   time.Duration
	TokenTTL  time.Duration
	Blacklist []string
}

// DefaultPoolProviderConfig returns sensible defaults for a V2-style factory.
func DefaultPoolProviderConfig(factory string) PoolProviderConfig {
	return PoolProviderConfig{
		Factory:  factory,
		FeeBps:   30,
		PoolTTL:  10 * time.Second,
		TokenTTL: 10 * time.Minute,
	}
}

// poolProviderMetrics holds OTEL metric instruments.
type poolProviderMetrics struct {
	rpcCalls   metric.Int64Counter
	cacheHits  metric.Int64Counter
	rpcErrors  metric.Int64Counter
	rpcLatency metric.Float64Histogram
}

// PoolProvider reads pool and token state from a V2-style factory over an
// Ethereum RPC client. Reads go through a TTL cache so the detector's hot
// path only touches the chain when the snapshot has gone stale, and through
// a circuit breaker so a dying node does not stall evaluation.
type PoolProvider struct {
	config  PoolProviderConfig
	chain   domain.Chain
	client  *ethclient.Client
	factory common.Address
	logger  logger.LoggerInterface

	pools     *cache.Cache[string, *domain.Pool]
	tokens    *cache.Cache[string, *domain.Token]
	blacklist map[string]struct{}

	breaker *circuitbreaker.CircuitBreaker[[]byte]

	tracer  trace.Tracer
	metrics *poolProviderMetrics
}

// NewPoolProvider creates a pool provider bound to one chain.
func NewPoolProvider(cfg PoolProviderConfig, chain domain.Chain, client *ethclient.Client, log logger.LoggerInterface) (*PoolProvider, error) {
	blacklist := make(map[string]struct{}, len(cfg.Blacklist))
	for _, addr := range cfg.Blacklist {
		blacklist[strings.ToLower(addr)] = struct{}{}
	}

	p := &PoolProvider{
		config:    cfg,
		chain:     chain,
		client:    client,
		factory:   common.HexToAddress(cfg.Factory),
		logger:    log,
		pools:     cache.New[string, *domain.Pool](cfg.PoolTTL),
		tokens:    cache.New[string, *domain.Token](cfg.TokenTTL),
		blacklist: blacklist,
		breaker:   circuitbreaker.New[[]byte](circuitbreaker.DefaultConfig("evm-pools-" + chain.Name)),
		tracer:    otel.Tracer(poolsTracerName),
	}

	if err := p.initMetrics(); err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}

	return p, nil
}

func (p *PoolProvider) initMetrics() error {
	meter := otel.Meter(poolsMeterName)
	var err error

	p.metrics = &poolProviderMetrics{}

	p.metrics.rpcCalls, err = meter.Int64Counter(
		"pool_provider_rpc_calls_total",
		metric.WithDescription("On-chain reads issued"),
	)
	if err != nil {
		return err
	}

	p.metrics.cacheHits, err = meter.Int64Counter(
		"pool_provider_cache_hits_total",
		metric.WithDescription("Reads served from cache"),
	)
	if err != nil {
		return err
	}

	p.metrics.rpcErrors, err = meter.Int64Counter(
		"pool_provider_rpc_errors_total",
		metric.WithDescription("Failed on-chain reads"),
	)
	if err != nil {
		return err
	}

	p.metrics.rpcLatency, err = meter.Float64Histogram(
		"pool_provider_rpc_latency_ms",
		metric.WithDescription("On-chain read latency"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return err
	}

	return nil
}

// PoolByPair resolves the canonical pool for the pair, serving cached
// snapshots while they are within PoolTTL.
func (p *PoolProvider) PoolByPair(ctx context.Context, chain domain.Chain, tokenIn, tokenOut string) (*domain.Pool, error) {
	ctx, span := p.tracer.Start(ctx, "pools.by_pair",
		trace.WithAttributes(
			attribute.String("chain", chain.Name),
			attribute.String("token_in", tokenIn),
			attribute.String("token_out", tokenOut),
		),
	)
	defer span.End()

	if pool, ok := p.pools.Get(ctx, pairKey(tokenIn, tokenOut)); ok {
		p.metrics.cacheHits.Add(ctx, 1)
		return pool, nil
	}

	return p.RefreshPool(ctx, chain, tokenIn, tokenOut)
}

// RefreshPool re-reads the pair's reserves from the chain, skipping the
// snapshot cache. The fresh snapshot replaces the cached one so subsequent
// detector reads benefit from it.
func (p *PoolProvider) RefreshPool(ctx context.Context, chain domain.Chain, tokenIn, tokenOut string) (*domain.Pool, error) {
	ctx, span := p.tracer.Start(ctx, "pools.refresh",
		trace.WithAttributes(
			attribute.String("chain", chain.Name),
			attribute.String("token_in", tokenIn),
			attribute.String("token_out", tokenOut),
		),
	)
	defer span.End()

	pairAddr, err := p.pairAddress(ctx, common.HexToAddress(tokenIn), common.HexToAddress(tokenOut))
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if pairAddr == (common.Address{}) {
		return nil, apperror.New(apperror.CodePoolNotFound,
			apperror.WithContext(fmt.Sprintf("no pool for %s/%s", tokenIn, tokenOut)))
	}

	pool, err := p.fetchPool(ctx, pairAddr)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch failed")
		return nil, err
	}

	p.pools.Set(ctx, pairKey(tokenIn, tokenOut), pool, p.config.PoolTTL)
	span.SetStatus(codes.Ok, "refreshed")
	return pool, nil
}

// Token resolves token metadata, cached for TokenTTL.
func (p *PoolProvider) Token(ctx context.Context, chain domain.Chain, address string) (*domain.Token, error) {
	key := strings.ToLower(address)
	if tok, ok := p.tokens.Get(ctx, key); ok {
		p.metrics.cacheHits.Add(ctx, 1)
		return tok, nil
	}

	decimals, err := p.tokenDecimals(ctx, common.HexToAddress(address))
	if err != nil {
		return nil, err
	}

	_, blacklisted := p.blacklist[key]
	tok := &domain.Token{
		Address:     common.HexToAddress(address).Hex(),
		Chain:       chain,
		Decimals:    decimals,
		Blacklisted: blacklisted,
	}

	p.tokens.Set(ctx, key, tok, p.config.TokenTTL)
	return tok, nil
}

func (p *PoolProvider) pairAddress(ctx context.Context, tokenA, tokenB common.Address) (common.Address, error) {
	packed, err := getPairArgs.Pack(tokenA, tokenB)
	if err != nil {
		return common.Address{}, err
	}

	out, err := p.call(ctx, p.factory, append(getPairSel, packed...))
	if err != nil {
		return common.Address{}, err
	}

	values, err := addressRetArgs.Unpack(out)
	if err != nil {
		return common.Address{}, err
	}
	return values[0].(common.Address), nil
}

func (p *PoolProvider) fetchPool(ctx context.Context, pair common.Address) (*domain.Pool, error) {
	token0, err := p.callAddress(ctx, pair, token0Sel)
	if err != nil {
		return nil, err
	}
	token1, err := p.callAddress(ctx, pair, token1Sel)
	if err != nil {
		return nil, err
	}

	out, err := p.call(ctx, pair, getReservesSel)
	if err != nil {
		return nil, err
	}
	values, err := reservesRetArgs.Unpack(out)
	if err != nil {
		return nil, err
	}

	return &domain.Pool{
		Address:   pair.Hex(),
		Chain:     p.chain,
		Token0:    token0.Hex(),
		Token1:    token1.Hex(),
		Reserve0:  values[0].(*big.Int),
		Reserve1:  values[1].(*big.Int),
		FeeBps:    p.config.FeeBps,
		FetchedAt: time.Now(),
	}, nil
}

func (p *PoolProvider) tokenDecimals(ctx context.Context, token common.Address) (int32, error) {
	out, err := p.call(ctx, token, decimalsSel)
	if err != nil {
		return 0, err
	}
	values, err := decimalsRetArgs.Unpack(out)
	if err != nil {
		return 0, err
	}
	return int32(values[0].(uint8)), nil
}

func (p *PoolProvider) callAddress(ctx context.Context, to common.Address, data []byte) (common.Address, error) {
	out, err := p.call(ctx, to, data)
	if err != nil {
		return common.Address{}, err
	}
	values, err := addressRetArgs.Unpack(out)
	if err != nil {
		return common.Address{}, err
	}
	return values[0].(common.Address), nil
}

// call issues an eth_call through the circuit breaker.
func (p *PoolProvider) call(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	start := time.Now()
	out, err := p.breaker.Execute(func() ([]byte, error) {
		p.metrics.rpcCalls.Add(ctx, 1)
		return p.client.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	})
	p.metrics.rpcLatency.Record(ctx, float64(time.Since(start).Milliseconds()))

	if err != nil {
		p.metrics.rpcErrors.Add(ctx, 1)
		if p.breaker.IsOpen() {
			return nil, apperror.New(apperror.CodeCircuitOpen,
				apperror.WithCause(err),
				apperror.WithContext("pool provider breaker open"))
		}
		return nil, apperror.New(apperror.CodeChainRPCError,
			apperror.WithCause(err),
			apperror.WithContext("eth_call to "+to.Hex()))
	}
	return out, nil
}

// Close releases caches. The RPC client is owned by the caller.
func (p *PoolProvider) Close() error {
	p.pools.Close()
	p.tokens.Close()
	return nil
}

// pairKey normalizes the unordered pair into one cache key.
func pairKey(a, b string) string {
	a, b = strings.ToLower(a), strings.ToLower(b)
	if a > b {
		a, b = b, a
	}
	return a + "/" + b
}
