package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fd1az/sandwich-bot/business/detection/domain"
	"github.com/fd1az/sandwich-bot/internal/apperror"
)

type countingPools struct {
	fakePools
	byPairCalls  int
	refreshCalls int
}

func (c *countingPools) PoolByPair(ctx context.Context, chain domain.Chain, tokenIn, tokenOut string) (*domain.Pool, error) {
	c.byPairCalls++
	return c.fakePools.PoolByPair(ctx, chain, tokenIn, tokenOut)
}

func (c *countingPools) RefreshPool(ctx context.Context, chain domain.Chain, tokenIn, tokenOut string) (*domain.Pool, error) {
	c.refreshCalls++
	return c.fakePools.PoolByPair(ctx, chain, tokenIn, tokenOut)
}

func TestPoolRouter_DispatchesByChain(t *testing.T) {
	provider := &countingPools{fakePools: fakePools{pool: testPool(1000, time.Now()), tokens: healthyTokens()}}
	router := NewPoolRouter(map[string]PoolProvider{"ethereum": provider})

	pool, err := router.PoolByPair(context.Background(), testChain, tokenInAddr.Hex(), tokenOutAddr.Hex())
	require.NoError(t, err)
	require.Equal(t, "0xpool", pool.Address)
	require.Equal(t, 1, provider.byPairCalls)

	tok, err := router.Token(context.Background(), testChain, tokenInAddr.Hex())
	require.NoError(t, err)
	require.Equal(t, tokenInAddr.Hex(), tok.Address)
}

func TestPoolRouter_RefreshPoolBypassesCachedRead(t *testing.T) {
	provider := &countingPools{fakePools: fakePools{pool: testPool(1000, time.Now()), tokens: healthyTokens()}}
	router := NewPoolRouter(map[string]PoolProvider{"ethereum": provider})

	_, err := router.RefreshPool(context.Background(), testChain, tokenInAddr.Hex(), tokenOutAddr.Hex())
	require.NoError(t, err)
	require.Equal(t, 1, provider.refreshCalls)
	require.Zero(t, provider.byPairCalls, "a refresh must not be served by the cached lookup")
}

func TestPoolRouter_UnknownChainFails(t *testing.T) {
	router := NewPoolRouter(map[string]PoolProvider{})

	_, err := router.PoolByPair(context.Background(), testChain, tokenInAddr.Hex(), tokenOutAddr.Hex())
	require.Error(t, err)
	require.Equal(t, apperror.CodePoolNotFound, apperror.GetCode(err))

	_, err = router.RefreshPool(context.Background(), testChain, tokenInAddr.Hex(), tokenOutAddr.Hex())
	require.Error(t, err)
	require.Equal(t, apperror.CodePoolNotFound, apperror.GetCode(err))
}
