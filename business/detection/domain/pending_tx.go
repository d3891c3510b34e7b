// Package domain contains the core domain types for the detection context.
package domain

import (
	"math/big"
	"time"
)

// ChainFamily distinguishes chain execution models. Swap payloads are tagged
// variants per family so field access is compile-time checked.
type ChainFamily string

const (
	FamilyEVM    ChainFamily = "evm"
	FamilySolana ChainFamily = "solana"
)

// Chain identifies a configured chain.
type Chain struct {
	Name   string
	Family ChainFamily
	ID     uint64
}

// PendingTransaction is a mempool transaction as observed. Immutable once
// captured; hashes and addresses are kept in their chain-native string form
// (hex for EVM, base58 for Solana).
type PendingTransaction struct {
	Hash       string
	Chain      Chain
	From       string
	To         string
	Data       []byte
	Value      *big.Int
	GasPrice   *big.Int
	ObservedAt time.Time
}
