// Package app contains application services and port definitions for the detection context.
package app

import (
	"context"

	"github.com/fd1az/sandwich-bot/business/detection/domain"
)

// MempoolSource streams pending transactions observed in a chain's mempool.
type MempoolSource interface {
	// Subscribe starts the stream. The channel closes when the source shuts
	// down or ctx is cancelled.
	Subscribe(ctx context.Context) (<-chan *domain.PendingTransaction, error)

	// Chain identifies which chain this source watches.
	Chain() domain.Chain

	// Close releases the underlying connection.
	Close() error
}

// SwapDecoder extracts a swap call from raw transaction payloads. Returns an
// error with code DECODE_FAILED for transactions that are not recognizable
// swaps; that is the common case, not a fault.
type SwapDecoder interface {
	Decode(tx *domain.PendingTransaction) (domain.SwapCall, error)
}

// PoolProvider resolves pool and token state for a chain. Implementations
// cache reads; FetchedAt on the returned pool reflects when the reserves were
// actually read from the chain.
type PoolProvider interface {
	// PoolByPair returns the canonical pool for the token pair, or an error
	// with code POOL_NOT_FOUND.
	PoolByPair(ctx context.Context, chain domain.Chain, tokenIn, tokenOut string) (*domain.Pool, error)

	// RefreshPool re-reads the pool's reserves from the chain, bypassing any
	// cached snapshot. Pre-submission drift checks must use this; PoolByPair
	// can serve the very snapshot the caller wants to compare against.
	RefreshPool(ctx context.Context, chain domain.Chain, tokenIn, tokenOut string) (*domain.Pool, error)

	// Token returns token metadata for the address.
	Token(ctx context.Context, chain domain.Chain, address string) (*domain.Token, error)
}
