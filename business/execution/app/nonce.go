package app

import (
	"context"
	"sync"

	"github.com/fd1az/sandwich-bot/internal/apperror"
)

// NonceManager hands out strictly increasing nonces per (chain, wallet).
// Assignment is the pipeline's single serialized step: two concurrent
// bundles for the same wallet get disjoint nonce pairs, never interleaved
// ones.
type NonceManager struct {
	source NonceSource

	mu      sync.Mutex
	wallets map[string]*walletNonce
}

type walletNonce struct {
	mu     sync.Mutex
	next   uint64
	primed bool
}

// NewNonceManager creates a nonce manager over the given chain source.
func NewNonceManager(source NonceSource) *NonceManager {
	return &NonceManager{
		source:  source,
		wallets: make(map[string]*walletNonce),
	}
}

func (m *NonceManager) wallet(key string) *walletNonce {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.wallets[key]
	if !ok {
		w = &walletNonce{}
		m.wallets[key] = w
	}
	return w
}

// NextPair reserves two consecutive nonces for the front-run and back-run
// legs. The pair is consumed whether or not the bundle lands; gaps are
// reconciled by Refresh.
func (m *NonceManager) NextPair(ctx context.Context, chain, wallet string) (uint64, uint64, error) {
	w := m.wallet(chain + "/" + wallet)

	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.primed {
		next, err := m.source.PendingNonce(ctx, wallet)
		if err != nil {
			return 0, 0, apperror.New(apperror.CodeChainRPCError,
				apperror.WithCause(err),
				apperror.WithContext("prime nonce for "+wallet))
		}
		w.next = next
		w.primed = true
	}

	front := w.next
	w.next += 2
	return front, front + 1, nil
}

// Refresh drops the local counter so the next reservation re-reads the chain.
// Called after a NONCE_CONFLICT or a failed submission.
func (m *NonceManager) Refresh(chain, wallet string) {
	w := m.wallet(chain + "/" + wallet)
	w.mu.Lock()
	w.primed = false
	w.mu.Unlock()
}
