package domain

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// RouterKind classifies the decoded router call.
type RouterKind string

const (
	RouterV2ExactIn  RouterKind = "v2_exact_in"
	RouterV2ExactOut RouterKind = "v2_exact_out"
	RouterV3ExactIn  RouterKind = "v3_exact_in"
	RouterSolanaAMM  RouterKind = "solana_amm"
)

// SwapCall is the decoded swap intent of a victim transaction. It is a sealed
// tagged variant: exactly EVMSwap and SolanaSwap implement it.
type SwapCall interface {
	Family() ChainFamily
	Kind() RouterKind
	// InputToken and OutputToken in chain-native string form.
	InputToken() string
	OutputToken() string
	// In base units of the input token.
	InAmount() *big.Int
	// Victim's declared minimum acceptable output, zero when absent.
	MinOutAmount() *big.Int

	sealedSwap()
}

// EVMSwap is a decoded EVM router swap.
type EVMSwap struct {
	Router       common.Address
	CallKind     RouterKind
	TokenIn      common.Address
	TokenOut     common.Address
	Path         []common.Address
	AmountIn     *big.Int
	AmountOutMin *big.Int
	Recipient    common.Address
	Deadline     *big.Int
	// FeeTier is set for concentrated-liquidity calls (e.g. 3000 = 0.3%).
	FeeTier int64
}

func (s EVMSwap) Family() ChainFamily    { return FamilyEVM }
func (s EVMSwap) Kind() RouterKind       { return s.CallKind }
func (s EVMSwap) InputToken() string     { return s.TokenIn.Hex() }
func (s EVMSwap) OutputToken() string    { return s.TokenOut.Hex() }
func (s EVMSwap) InAmount() *big.Int     { return s.AmountIn }
func (s EVMSwap) MinOutAmount() *big.Int { return s.AmountOutMin }
func (s EVMSwap) sealedSwap()            {}

// SolanaSwap is a decoded Solana AMM swap instruction. Accounts are base58.
type SolanaSwap struct {
	Program      string
	PoolAccount  string
	InputMint    string
	OutputMint   string
	AmountIn     *big.Int
	MinimumOut   *big.Int
	UserAccount  string
}

func (s SolanaSwap) Family() ChainFamily    { return FamilySolana }
func (s SolanaSwap) Kind() RouterKind       { return RouterSolanaAMM }
func (s SolanaSwap) InputToken() string     { return s.InputMint }
func (s SolanaSwap) OutputToken() string    { return s.OutputMint }
func (s SolanaSwap) InAmount() *big.Int     { return s.AmountIn }
func (s SolanaSwap) MinOutAmount() *big.Int { return s.MinimumOut }
func (s SolanaSwap) sealedSwap()            {}
