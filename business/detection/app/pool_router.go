package app

import (
	"context"

	"github.com/fd1az/sandwich-bot/business/detection/domain"
	"github.com/fd1az/sandwich-bot/internal/apperror"
)

// PoolRouter dispatches pool and token lookups to the provider registered for
// each chain. Lookups on chains without a provider fail with POOL_NOT_FOUND.
type PoolRouter struct {
	providers map[string]PoolProvider // by chain name
}

// NewPoolRouter creates a router over per-chain providers.
func NewPoolRouter(providers map[string]PoolProvider) *PoolRouter {
	return &PoolRouter{providers: providers}
}

func (r *PoolRouter) provider(chain domain.Chain) (PoolProvider, error) {
	p, ok := r.providers[chain.Name]
	if !ok {
		return nil, apperror.New(apperror.CodePoolNotFound,
			apperror.WithContext("no pool provider for chain "+chain.Name))
	}
	return p, nil
}

// PoolByPair implements PoolProvider.
func (r *PoolRouter) PoolByPair(ctx context.Context, chain domain.Chain, tokenIn, tokenOut string) (*domain.Pool, error) {
	p, err := r.provider(chain)
	if err != nil {
		return nil, err
	}
	return p.PoolByPair(ctx, chain, tokenIn, tokenOut)
}

// RefreshPool implements PoolProvider.
func (r *PoolRouter) RefreshPool(ctx context.Context, chain domain.Chain, tokenIn, tokenOut string) (*domain.Pool, error) {
	p, err := r.provider(chain)
	if err != nil {
		return nil, err
	}
	return p.RefreshPool(ctx, chain, tokenIn, tokenOut)
}

// Token implements PoolProvider.
func (r *PoolRouter) Token(ctx context.Context, chain domain.Chain, address string) (*domain.Token, error) {
	p, err := r.provider(chain)
	if err != nil {
		return nil, err
	}
	return p.Token(ctx, chain, address)
}
