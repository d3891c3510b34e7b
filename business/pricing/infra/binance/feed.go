// Package binance provides a Binance-backed USD price feed.
package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/fd1az/sandwich-bot/business/pricing/domain"
	"github.com/fd1az/sandwich-bot/internal/apperror"
	"github.com/fd1az/sandwich-bot/internal/httpclient"
	"github.com/fd1az/sandwich-bot/internal/logger"
)

const (
	tracerName = "github.com/fd1az/sandwich-bot/business/pricing/infra/binance"
	meterName  = "github.com/fd1az/sandwich-bot/business/pricing/infra/binance"

	BaseWSURL   = "wss://stream.binance.com:9443"
	BaseRESTURL = "https://api.binance.com"
)

// wsDialer abstracts the reconnecting WebSocket client so tests can feed
// messages directly.
type wsDialer interface {
	Connect(ctx context.Context) error
	Messages() <-chan []byte
	Close() error
}

// FeedConfig holds configuration for the Binance price feed.
type FeedConfig struct {
	WSBaseURL   string
	RESTBaseURL string
	// Symbols maps chain name to Binance symbol, e.g. "ethereum" -> "ETHUSDT".
	Symbols     map[string]string
	MaxQuoteAge time.Duration
}

// DefaultFeedConfig returns sensible defaults.
func DefaultFeedConfig(symbols map[string]string) FeedConfig {
	return FeedConfig{
		WSBaseURL:   BaseWSURL,
		RESTBaseURL: BaseRESTURL,
		Symbols:     symbols,
		MaxQuoteAge: 30 * time.Second,
	}
}

// feedMetrics holds OTEL metric instruments.
type feedMetrics struct {
	updates      metric.Int64Counter
	parseErrors  metric.Int64Counter
	restFallback metric.Int64Counter
	staleQuotes  metric.Int64Counter
}

// streamEvent is the combined-streams wrapper.
type streamEvent struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

// bookTickerEvent is a best bid/ask update.
type bookTickerEvent struct {
	Symbol string `json:"s"`
	Bid    string `json:"b"`
	Ask    string `json:"a"`
}

// tickerPriceResponse is the REST fallback payload.
type tickerPriceResponse struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
}

// Feed streams best bid/ask from Binance and serves mid prices. When the
// stream quote is older than MaxQuoteAge it falls back to the REST ticker;
// if that also fails the caller gets PRICE_FEED_STALE.
type Feed struct {
	config FeedConfig
	logger logger.LoggerInterface

	conn wsDialer
	rest *httpclient.Client

	quotes  map[string]*domain.PriceQuote // by symbol
	quoteMu sync.RWMutex

	done chan struct{}

	tracer  trace.Tracer
	metrics *feedMetrics
}

// NewFeed creates the feed. Connect must be called before use.
func NewFeed(cfg FeedConfig, conn wsDialer, log logger.LoggerInterface, httpOpts ...httpclient.Option) (*Feed, error) {
	rest, err := httpclient.New("binance", httpOpts...)
	if err != nil {
		return nil, err
	}

	f := &Feed{
		config: cfg,
		logger: log,
		conn:   conn,
		rest:   rest,
		quotes: make(map[string]*domain.PriceQuote),
		done:   make(chan struct{}),
		tracer: otel.Tracer(tracerName),
	}

	if err := f.initMetrics(); err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}

	return f, nil
}

func (f *Feed) initMetrics() error {
	meter := otel.Meter(meterName)
	var err error

	f.metrics = &feedMetrics{}

	f.metrics.updates, err = meter.Int64Counter(
		"price_feed_updates_total",
		metric.WithDescription("Book ticker updates applied"),
	)
	if err != nil {
		return err
	}

	f.metrics.parseErrors, err = meter.Int64Counter(
		"price_feed_parse_errors_total",
		metric.WithDescription("Stream payloads that failed to parse"),
	)
	if err != nil {
		return err
	}

	f.metrics.restFallback, err = meter.Int64Counter(
		"price_feed_rest_fallback_total",
		metric.WithDescription("REST fallback fetches"),
	)
	if err != nil {
		return err
	}

	f.metrics.staleQuotes, err = meter.Int64Counter(
		"price_feed_stale_total",
		metric.WithDescription("Requests that found only stale quotes"),
	)
	if err != nil {
		return err
	}

	return nil
}

// StreamURL builds the combined bookTicker stream URL for the configured
// symbols. It is a free function so the WebSocket connection can be built
// before the feed that consumes it.
func StreamURL(cfg FeedConfig) (string, error) {
	if len(cfg.Symbols) == 0 {
		return "", apperror.New(apperror.CodeConfigurationError,
			apperror.WithContext("no price feed symbols configured"))
	}

	streams := make([]string, 0, len(cfg.Symbols))
	for _, sym := range cfg.Symbols {
		streams = append(streams, strings.ToLower(sym)+"@bookTicker")
	}

	u, err := url.Parse(cfg.WSBaseURL)
	if err != nil {
		return "", err
	}
	u.Path = "/stream"
	u.RawQuery = "streams=" + strings.Join(streams, "/")
	return u.String(), nil
}

// StreamURL builds the stream URL for this feed's configuration.
func (f *Feed) StreamURL() (string, error) {
	return StreamURL(f.config)
}

// Connect starts the stream consumer.
func (f *Feed) Connect(ctx context.Context) error {
	if err := f.conn.Connect(ctx); err != nil {
		return apperror.New(apperror.CodePriceFeedError,
			apperror.WithCause(err),
			apperror.WithContext("connect price stream"))
	}

	go f.consume(ctx)

	f.logger.Info(ctx, "price feed connected", "symbols", len(f.config.Symbols))
	return nil
}

func (f *Feed) consume(ctx context.Context) {
	for {
		select {
		case <-f.done:
			return
		case <-ctx.Done():
			return
		case msg, ok := <-f.conn.Messages():
			if !ok {
				return
			}
			f.handleMessage(ctx, msg)
		}
	}
}

func (f *Feed) handleMessage(ctx context.Context, data []byte) {
	var event streamEvent
	if err := json.Unmarshal(data, &event); err != nil {
		f.metrics.parseErrors.Add(ctx, 1)
		return
	}
	if !strings.HasSuffix(event.Stream, "@bookTicker") {
		return
	}

	var ticker bookTickerEvent
	if err := json.Unmarshal(event.Data, &ticker); err != nil {
		f.metrics.parseErrors.Add(ctx, 1)
		return
	}

	bid, err := decimal.NewFromString(ticker.Bid)
	if err != nil {
		f.metrics.parseErrors.Add(ctx, 1)
		return
	}
	ask, err := decimal.NewFromString(ticker.Ask)
	if err != nil {
		f.metrics.parseErrors.Add(ctx, 1)
		return
	}

	mid := bid.Add(ask).Div(decimal.NewFromInt(2))
	f.setQuote(&domain.PriceQuote{
		Symbol:     ticker.Symbol,
		Price:      mid,
		Source:     "binance-ws",
		ObservedAt: time.Now(),
	})
	f.metrics.updates.Add(ctx, 1, metric.WithAttributes(attribute.String("symbol", ticker.Symbol)))
}

func (f *Feed) setQuote(q *domain.PriceQuote) {
	f.quoteMu.Lock()
	f.quotes[q.Symbol] = q
	f.quoteMu.Unlock()
}

// NativeUSD returns the USD mid price of the chain's native asset.
func (f *Feed) NativeUSD(ctx context.Context, chain string) (decimal.Decimal, error) {
	quote, err := f.Quote(ctx, chain)
	if err != nil {
		return decimal.Zero, err
	}
	return quote.Price, nil
}

// Quote returns the freshest quote available for the chain.
func (f *Feed) Quote(ctx context.Context, chain string) (*domain.PriceQuote, error) {
	symbol, ok := f.config.Symbols[chain]
	if !ok {
		return nil, apperror.New(apperror.CodePriceFeedError,
			apperror.WithContext("no symbol configured for chain "+chain))
	}

	f.quoteMu.RLock()
	quote := f.quotes[symbol]
	f.quoteMu.RUnlock()

	now := time.Now()
	if quote != nil && !quote.IsStale(now, f.config.MaxQuoteAge) {
		return quote, nil
	}

	fresh, err := f.fetchREST(ctx, symbol)
	if err != nil {
		f.metrics.staleQuotes.Add(ctx, 1)
		if quote != nil {
			return nil, apperror.New(apperror.CodePriceFeedStale,
				apperror.WithCause(err),
				apperror.WithContext(fmt.Sprintf("quote for %s is %s old", symbol, now.Sub(quote.ObservedAt))))
		}
		return nil, apperror.New(apperror.CodePriceFeedError,
			apperror.WithCause(err),
			apperror.WithContext("no quote for "+symbol))
	}

	f.setQuote(fresh)
	return fresh, nil
}

func (f *Feed) fetchREST(ctx context.Context, symbol string) (*domain.PriceQuote, error) {
	ctx, span := f.tracer.Start(ctx, "binance.rest_ticker",
		trace.WithAttributes(attribute.String("symbol", symbol)),
	)
	defer span.End()

	f.metrics.restFallback.Add(ctx, 1)

	var resp tickerPriceResponse
	url := f.config.RESTBaseURL + "/api/v3/ticker/price?symbol=" + symbol
	if err := f.rest.GetJSON(ctx, url, &resp); err != nil {
		span.RecordError(err)
		return nil, err
	}

	price, err := decimal.NewFromString(resp.Price)
	if err != nil {
		return nil, err
	}

	return &domain.PriceQuote{
		Symbol:     symbol,
		Price:      price,
		Source:     "binance-rest",
		ObservedAt: time.Now(),
	}, nil
}

// Close terminates the stream.
func (f *Feed) Close() error {
	select {
	case <-f.done:
	default:
		close(f.done)
	}
	return f.conn.Close()
}
