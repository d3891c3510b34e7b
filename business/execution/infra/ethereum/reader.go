package ethereum

import (
	"context"
	"errors"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/fd1az/sandwich-bot/internal/apperror"
)

// Reader answers transaction and block liveness questions over an EVM RPC
// endpoint. It also serves as the wallet nonce source.
type Reader struct {
	rpcURL string

	mu     sync.Mutex
	client *ethclient.Client
}

// NewReader creates a chain reader for rpcURL. The connection is established
// lazily on first use.
func NewReader(rpcURL string) *Reader {
	return &Reader{rpcURL: rpcURL}
}

func (r *Reader) getClient(ctx context.Context) (*ethclient.Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.client != nil {
		return r.client, nil
	}

	client, err := ethclient.DialContext(ctx, r.rpcURL)
	if err != nil {
		return nil, apperror.New(apperror.CodeChainConnectionFailed,
			apperror.WithCause(err),
			apperror.WithContext("dial "+r.rpcURL))
	}
	r.client = client
	return client, nil
}

// IsPending reports whether the transaction is still waiting in the mempool.
// A transaction the node has never seen counts as not pending.
func (r *Reader) IsPending(ctx context.Context, txHash string) (bool, error) {
	client, err := r.getClient(ctx)
	if err != nil {
		return false, err
	}

	_, pending, err := client.TransactionByHash(ctx, common.HexToHash(txHash))
	if errors.Is(err, ethereum.NotFound) {
		return false, nil
	}
	if err != nil {
		return false, apperror.New(apperror.CodeChainRPCError, apperror.WithCause(err))
	}
	return pending, nil
}

// IsIncluded reports whether the transaction landed in a block.
func (r *Reader) IsIncluded(ctx context.Context, txHash string) (bool, uint64, error) {
	client, err := r.getClient(ctx)
	if err != nil {
		return false, 0, err
	}

	receipt, err := client.TransactionReceipt(ctx, common.HexToHash(txHash))
	if errors.Is(err, ethereum.NotFound) {
		return false, 0, nil
	}
	if err != nil {
		return false, 0, apperror.New(apperror.CodeChainRPCError, apperror.WithCause(err))
	}
	return true, receipt.BlockNumber.Uint64(), nil
}

// CurrentBlock returns the latest block number.
func (r *Reader) CurrentBlock(ctx context.Context) (uint64, error) {
	client, err := r.getClient(ctx)
	if err != nil {
		return 0, err
	}

	block, err := client.BlockNumber(ctx)
	if err != nil {
		return 0, apperror.New(apperror.CodeChainRPCError, apperror.WithCause(err))
	}
	return block, nil
}

// PendingNonce returns the wallet's next nonce including queued transactions.
func (r *Reader) PendingNonce(ctx context.Context, wallet string) (uint64, error) {
	client, err := r.getClient(ctx)
	if err != nil {
		return 0, err
	}

	nonce, err := client.PendingNonceAt(ctx, common.HexToAddress(wallet))
	if err != nil {
		return 0, apperror.New(apperror.CodeChainRPCError, apperror.WithCause(err))
	}
	return nonce, nil
}

// Close tears down the RPC connection.
func (r *Reader) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.client != nil {
		r.client.Close()
		r.client = nil
	}
}
