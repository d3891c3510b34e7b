// Package domain contains the core domain types for the execution context.
package domain

import (
	"fmt"
	"math/big"
	"sync"
	"time"

	detection "github.com/fd1az/sandwich-bot/business/detection/domain"
	"github.com/fd1az/sandwich-bot/internal/apperror"
)

// BundleStatus is the lifecycle state of a bundle.
type BundleStatus string

const (
	StatusCreated   BundleStatus = "created"
	StatusValidated BundleStatus = "validated"
	StatusSimulated BundleStatus = "simulated"
	StatusSubmitted BundleStatus = "submitted"
	StatusIncluded  BundleStatus = "included"
	StatusFailed    BundleStatus = "failed"
	StatusExpired   BundleStatus = "expired"
	StatusCancelled BundleStatus = "cancelled"
)

// legalTransitions encodes the lifecycle:
// Created -> Validated -> Simulated -> Submitted -> {Included, Failed, Expired, Cancelled}.
// Failure and cancellation are reachable from every non-terminal state.
var legalTransitions = map[BundleStatus][]BundleStatus{
	StatusCreated:   {StatusValidated, StatusFailed, StatusCancelled},
	StatusValidated: {StatusSimulated, StatusFailed, StatusCancelled},
	StatusSimulated: {StatusSubmitted, StatusFailed, StatusCancelled},
	StatusSubmitted: {StatusIncluded, StatusFailed, StatusExpired, StatusCancelled},
}

// IsTerminal reports whether no further transitions are possible.
func (s BundleStatus) IsTerminal() bool {
	switch s {
	case StatusIncluded, StatusFailed, StatusExpired, StatusCancelled:
		return true
	}
	return false
}

// TxRole identifies a transaction's position in the sandwich.
type TxRole string

const (
	RoleFrontRun TxRole = "front_run"
	RoleVictim   TxRole = "victim"
	RoleBackRun  TxRole = "back_run"
)

// BundleTx is one ordered member of a bundle. For attacker legs Raw holds the
// signed transaction bytes; the victim leg carries only its mempool reference.
type BundleTx struct {
	Role  TxRole
	Hash  string
	Raw   []byte
	Nonce uint64
}

// Bundle is an atomic ordered transaction set bound for a relay. Status is
// the only mutable field; the transaction set is immutable once the bundle
// has been submitted.
type Bundle struct {
	ID            string
	Chain         detection.Chain
	OpportunityID string
	Wallet        string

	mu          sync.RWMutex
	txs         []BundleTx
	status      BundleStatus
	statusAt    time.Time
	failReason  string

	TargetBlock uint64
	Tip         *big.Int
	CreatedAt   time.Time
}

// NewBundle creates a bundle in Created state.
func NewBundle(id string, chain detection.Chain, opportunityID, wallet string, targetBlock uint64) *Bundle {
	now := time.Now()
	return &Bundle{
		ID:            id,
		Chain:         chain,
		OpportunityID: opportunityID,
		Wallet:        wallet,
		TargetBlock:   targetBlock,
		status:        StatusCreated,
		statusAt:      now,
		CreatedAt:     now,
	}
}

// Status returns the current lifecycle state.
func (b *Bundle) Status() BundleStatus {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.status
}

// FailReason returns the recorded reason for a failed/cancelled transition.
func (b *Bundle) FailReason() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.failReason
}

// TransitionTo advances the lifecycle, rejecting illegal transitions.
func (b *Bundle) TransitionTo(next BundleStatus) error {
	return b.transition(next, "")
}

// TransitionToWithReason advances to a terminal state recording why.
func (b *Bundle) TransitionToWithReason(next BundleStatus, reason string) error {
	return b.transition(next, reason)
}

func (b *Bundle) transition(next BundleStatus, reason string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	allowed := legalTransitions[b.status]
	for _, s := range allowed {
		if s == next {
			b.status = next
			b.statusAt = time.Now()
			if reason != "" {
				b.failReason = reason
			}
			return nil
		}
	}

	return apperror.New(apperror.CodeInvalidState,
		apperror.WithContext(fmt.Sprintf("bundle %s: illegal transition %s -> %s", b.ID, b.status, next)))
}

// SetTxs installs the ordered transaction set. Rejected once the bundle has
// entered Submitted or any later state.
func (b *Bundle) SetTxs(txs []BundleTx) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.status == StatusSubmitted || b.status.IsTerminal() {
		return apperror.New(apperror.CodeInvalidState,
			apperror.WithContext(fmt.Sprintf("bundle %s: tx set immutable in state %s", b.ID, b.status)))
	}

	b.txs = make([]BundleTx, len(txs))
	copy(b.txs, txs)
	return nil
}

// Txs returns a copy of the ordered transaction set.
func (b *Bundle) Txs() []BundleTx {
	b.mu.RLock()
	defer b.mu.RUnlock()
	txs := make([]BundleTx, len(b.txs))
	copy(txs, b.txs)
	return txs
}
