package evm

import (
	"context"
	"fmt"
	"math/big"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient/gethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/fd1az/sandwich-bot/business/detection/domain"
	"github.com/fd1az/sandwich-bot/internal/apperror"
	"github.com/fd1az/sandwich-bot/internal/logger"
)

// MempoolConfig holds configuration for the EVM mempool source.
type MempoolConfig struct {
	WSURL          string
	ReconnectDelay time.Duration
	BufferSize     int
}

// DefaultMempoolConfig returns sensible defaults.
func DefaultMempoolConfig(wsURL string) MempoolConfig {
	return MempoolConfig{
		WSURL:          wsURL,
		ReconnectDelay: 5 * time.Second,
		BufferSize:     256,
	}
}

// mempoolMetrics holds OTEL metric instruments.
type mempoolMetrics struct {
	txReceived  metric.Int64Counter
	txDropped   metric.Int64Counter
	resubscribe metric.Int64Counter
}

// MempoolSource streams full pending transactions from an EVM node over a
// WebSocket subscription. Requires a node exposing
// newPendingTransactions with full transaction bodies.
type MempoolSource struct {
	config MempoolConfig
	chain  domain.Chain
	logger logger.LoggerInterface
	signer types.Signer

	rpcClient *rpc.Client

	out    chan *domain.PendingTransaction
	done   chan struct{}
	closed atomic.Bool

	tracer  trace.Tracer
	metrics *mempoolMetrics
}

// NewMempoolSource creates a mempool source for one chain.
func NewMempoolSource(cfg MempoolConfig, chain domain.Chain, log logger.LoggerInterface) (*MempoolSource, error) {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 256
	}

	m := &MempoolSource{
		config: cfg,
		chain:  chain,
		logger: log,
		signer: types.LatestSignerForChainID(new(big.Int).SetUint64(chain.ID)),
		out:    make(chan *domain.PendingTransaction, cfg.BufferSize),
		done:   make(chan struct{}),
		tracer: otel.Tracer(poolsTracerName),
	}

	if err := m.initMetrics(); err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}

	return m, nil
}

func (m *MempoolSource) initMetrics() error {
	meter := otel.Meter(poolsMeterName)
	var err error

	m.metrics = &mempoolMetrics{}

	m.metrics.txReceived, err = meter.Int64Counter(
		"mempool_transactions_total",
		metric.WithDescription("Pending transactions received"),
	)
	if err != nil {
		return err
	}

	m.metrics.txDropped, err = meter.Int64Counter(
		"mempool_transactions_dropped_total",
		metric.WithDescription("Pending transactions dropped on full buffer"),
	)
	if err != nil {
		return err
	}

	m.metrics.resubscribe, err = meter.Int64Counter(
		"mempool_resubscribes_total",
		metric.WithDescription("Subscription restarts"),
	)
	if err != nil {
		return err
	}

	return nil
}

// Chain identifies which chain this source watches.
func (m *MempoolSource) Chain() domain.Chain {
	return m.chain
}

// Subscribe dials the node and starts streaming pending transactions.
func (m *MempoolSource) Subscribe(ctx context.Context) (<-chan *domain.PendingTransaction, error) {
	ctx, span := m.tracer.Start(ctx, "mempool.subscribe",
		trace.WithAttributes(attribute.String("chain", m.chain.Name)),
	)
	defer span.End()

	client, err := rpc.DialContext(ctx, m.config.WSURL)
	if err != nil {
		span.RecordError(err)
		return nil, apperror.New(apperror.CodeChainConnectionFailed,
			apperror.WithCause(err),
			apperror.WithContext("dial "+m.config.WSURL))
	}
	m.rpcClient = client

	go m.run(ctx)

	return m.out, nil
}

// run maintains the subscription, restarting it after errors until the
// source is closed.
func (m *MempoolSource) run(ctx context.Context) {
	defer close(m.out)

	for {
		select {
		case <-m.done:
			return
		case <-ctx.Done():
			return
		default:
		}

		if err := m.stream(ctx); err != nil {
			if m.closed.Load() || ctx.Err() != nil {
				return
			}
			m.logger.Warn(ctx, "mempool stream ended, restarting",
				"chain", m.chain.Name, "error", err)
			m.metrics.resubscribe.Add(ctx, 1)

			select {
			case <-time.After(m.config.ReconnectDelay):
			case <-m.done:
				return
			case <-ctx.Done():
				return
			}
		}
	}
}

// stream runs one subscription until it errors or the source closes.
func (m *MempoolSource) stream(ctx context.Context) error {
	txs := make(chan *types.Transaction, m.config.BufferSize)

	gc := gethclient.New(m.rpcClient)
	sub, err := gc.SubscribeFullPendingTransactions(ctx, txs)
	if err != nil {
		return err
	}
	defer sub.Unsubscribe()

	m.logger.Info(ctx, "subscribed to pending transactions", "chain", m.chain.Name)

	for {
		select {
		case <-m.done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		case err := <-sub.Err():
			return err
		case tx := <-txs:
			if tx != nil {
				m.emit(ctx, tx)
			}
		}
	}
}

func (m *MempoolSource) emit(ctx context.Context, tx *types.Transaction) {
	if tx.To() == nil {
		return // contract creation, never a swap
	}

	pending := &domain.PendingTransaction{
		Hash:       tx.Hash().Hex(),
		Chain:      m.chain,
		To:         tx.To().Hex(),
		Data:       tx.Data(),
		Value:      tx.Value(),
		GasPrice:   tx.GasPrice(),
		ObservedAt: time.Now(),
	}
	if from, err := types.Sender(m.signer, tx); err == nil {
		pending.From = from.Hex()
	}

	select {
	case m.out <- pending:
		m.metrics.txReceived.Add(ctx, 1, metric.WithAttributes(attribute.String("chain", m.chain.Name)))
	default:
		// Keep reading even when the detector lags; stale candidates are
		// worthless anyway.
		m.metrics.txDropped.Add(ctx, 1, metric.WithAttributes(attribute.String("chain", m.chain.Name)))
	}
}

// Close terminates the subscription and the output stream.
func (m *MempoolSource) Close() error {
	if m.closed.Swap(true) {
		return nil
	}
	close(m.done)
	if m.rpcClient != nil {
		m.rpcClient.Close()
	}
	return nil
}
