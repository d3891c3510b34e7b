// Package app contains application services and port definitions for the execution context.
package app

import (
	"context"
	"math/big"

	detection "github.com/fd1az/sandwich-bot/business/detection/domain"
	"github.com/fd1az/sandwich-bot/business/execution/domain"
	optimization "github.com/fd1az/sandwich-bot/business/optimization/domain"
)

// SimulationResult is the relay's verdict on a bundle dry run.
type SimulationResult struct {
	Success bool
	// ProfitWei is the simulated coinbase/profit delta in native base units.
	ProfitWei *big.Int
	GasUsed   uint64
	Revert    string
}

// RelayClient submits bundles to a private relay. Submission failures carry
// code SUBMISSION_FAILED and are the only retryable errors in the pipeline.
type RelayClient interface {
	// Simulate dry-runs the bundle against the head of the chain.
	Simulate(ctx context.Context, bundle *domain.Bundle) (*SimulationResult, error)

	// Submit sends the bundle targeting its TargetBlock. Returns the relay's
	// bundle hash.
	Submit(ctx context.Context, bundle *domain.Bundle) (string, error)
}

// TxBuilder constructs and signs the attacker legs.
type TxBuilder interface {
	// Wallet returns the signing address in chain-native form.
	Wallet() string

	// BuildFrontRun signs the front-run leg buying est.FrontRunAmount ahead
	// of the victim. gasPrice must outbid the victim.
	BuildFrontRun(ctx context.Context, opp *detection.SandwichOpportunity, est *optimization.ProfitEstimate, nonce uint64, gasPrice *big.Int) (domain.BundleTx, error)

	// BuildBackRun signs the back-run leg selling the acquired holding, with
	// tip attached for the block producer.
	BuildBackRun(ctx context.Context, opp *detection.SandwichOpportunity, est *optimization.ProfitEstimate, nonce uint64, gasPrice, tip *big.Int) (domain.BundleTx, error)
}

// ChainReader answers liveness questions about transactions and blocks.
type ChainReader interface {
	// IsPending reports whether the transaction is still in the mempool.
	IsPending(ctx context.Context, txHash string) (bool, error)

	// IsIncluded reports whether the transaction landed, and in which block.
	IsIncluded(ctx context.Context, txHash string) (bool, uint64, error)

	// CurrentBlock returns the latest block number.
	CurrentBlock(ctx context.Context) (uint64, error)
}

// PoolReader re-reads pool state for pre-submission drift checks. Implemented
// by the detection pool provider. RefreshPool must bypass any snapshot cache;
// a cached read here would compare the detection-time pool with itself.
type PoolReader interface {
	RefreshPool(ctx context.Context, chain detection.Chain, tokenIn, tokenOut string) (*detection.Pool, error)
}

// NonceSource reads the wallet's next nonce from the chain.
type NonceSource interface {
	PendingNonce(ctx context.Context, wallet string) (uint64, error)
}
