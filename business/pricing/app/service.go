package app

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fd1az/sandwich-bot/business/pricing/domain"
	"github.com/fd1az/sandwich-bot/internal/logger"
)

// ServiceConfig holds configuration for the pricing service.
type ServiceConfig struct {
	// VolatilityWindow bounds the rolling observation window.
	VolatilityWindowLen int
	VolatilityMaxAge    time.Duration
	// VolatilityFullScaleBps is the price range mapped to maximum volatility.
	VolatilityFullScaleBps int64
	// SampleInterval drives the background price sampler.
	SampleInterval time.Duration
}

// DefaultServiceConfig returns sensible defaults.
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		VolatilityWindowLen:    120,
		VolatilityMaxAge:       10 * time.Minute,
		VolatilityFullScaleBps: 300,
		SampleInterval:         5 * time.Second,
	}
}

// Service exposes prices, gas data and a per-chain volatility score to the
// rest of the pipeline. A background sampler feeds the volatility windows so
// risk adjustment reflects recent market movement, not just the moment of
// the query.
type Service struct {
	config ServiceConfig
	feed   PriceFeed
	gas    map[string]GasEstimator // by chain name
	logger logger.LoggerInterface

	volatility map[string]*domain.VolatilityWindow

	done chan struct{}
}

// NewService creates the pricing service for the configured chains.
func NewService(cfg ServiceConfig, feed PriceFeed, gas map[string]GasEstimator, chains []string, log logger.LoggerInterface) *Service {
	volatility := make(map[string]*domain.VolatilityWindow, len(chains))
	for _, chain := range chains {
		volatility[chain] = domain.NewVolatilityWindow(
			cfg.VolatilityWindowLen, cfg.VolatilityMaxAge, cfg.VolatilityFullScaleBps)
	}

	return &Service{
		config:     cfg,
		feed:       feed,
		gas:        gas,
		logger:     log,
		volatility: volatility,
		done:       make(chan struct{}),
	}
}

// Start launches the background price sampler.
func (s *Service) Start(ctx context.Context) error {
	s.logger.Info(ctx, "starting pricing service", "chains", len(s.volatility))
	go s.sample(ctx)
	return nil
}

// Stop shuts down the sampler and the underlying feed.
func (s *Service) Stop() error {
	close(s.done)
	return s.feed.Close()
}

// NativeUSD returns the USD price of a chain's native asset.
func (s *Service) NativeUSD(ctx context.Context, chain string) (decimal.Decimal, error) {
	return s.feed.NativeUSD(ctx, chain)
}

// GasEstimator returns the estimator for a chain, or nil when the chain has
// none configured.
func (s *Service) GasEstimator(chain string) GasEstimator {
	return s.gas[chain]
}

// VolatilityScore returns the chain's current volatility in [0, 1]. Unknown
// chains score 0.
func (s *Service) VolatilityScore(chain string) decimal.Decimal {
	w, ok := s.volatility[chain]
	if !ok {
		return decimal.Zero
	}
	return w.Score(time.Now())
}

func (s *Service) sample(ctx context.Context) {
	ticker := time.NewTicker(s.config.SampleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := time.Now()
			for chain, window := range s.volatility {
				price, err := s.feed.NativeUSD(ctx, chain)
				if err != nil {
					s.logger.Debug(ctx, "price sample failed", "chain", chain, "error", err)
					continue
				}
				window.Observe(price, now)
			}
		}
	}
}
