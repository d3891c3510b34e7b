// Package ethereum implements EVM transaction building, signing, and chain
// reads for the execution context.
package ethereum

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	detection "github.com/fd1az/sandwich-bot/business/detection/domain"
	"github.com/fd1az/sandwich-bot/business/execution/domain"
	optimization "github.com/fd1az/sandwich-bot/business/optimization/domain"
	"github.com/fd1az/sandwich-bot/internal/apperror"
)

var (
	uint256Ty, _    = abi.NewType("uint256", "", nil)
	addressTy, _    = abi.NewType("address", "", nil)
	addressArrTy, _ = abi.NewType("address[]", "", nil)

	swapExactInArgs = abi.Arguments{
		{Type: uint256Ty},    // amountIn
		{Type: uint256Ty},    // amountOutMin
		{Type: addressArrTy}, // path
		{Type: addressTy},    // to
		{Type: uint256Ty},    // deadline
	}

	swapExactInSelector = crypto.Keccak256([]byte(
		"swapExactTokensForTokens(uint256,uint256,address[],address,uint256)"))[:4]
)

// BuilderConfig holds transaction builder configuration.
type BuilderConfig struct {
	// Router is the DEX router both legs trade through.
	Router common.Address
	// ChainID selects the EIP-155 signer.
	ChainID *big.Int

	FrontRunGasLimit uint64
	BackRunGasLimit  uint64

	// SlippageBps loosens each leg's minimum output below the modeled amount.
	SlippageBps int64
	// DeadlineSlack bounds how long a leg stays valid if the bundle leaks.
	DeadlineSlack time.Duration
}

// DefaultBuilderConfig returns sensible defaults for a chain.
func DefaultBuilderConfig(router common.Address, chainID *big.Int) BuilderConfig {
	return BuilderConfig{
		Router:           router,
		ChainID:          chainID,
		FrontRunGasLimit: 180_000,
		BackRunGasLimit:  180_000,
		SlippageBps:      100,
		DeadlineSlack:    60 * time.Second,
	}
}

// Builder signs sandwich legs with a local key. The key never leaves the
// process; it is loaded from the environment at startup.
type Builder struct {
	config BuilderConfig
	key    *ecdsa.PrivateKey
	wallet common.Address
	signer types.Signer
}

// NewBuilder creates a transaction builder signing with key.
func NewBuilder(cfg BuilderConfig, key *ecdsa.PrivateKey) (*Builder, error) {
	if key == nil {
		return nil, apperror.New(apperror.CodeConfigurationError,
			apperror.WithContext("wallet signing key is required"))
	}
	if cfg.ChainID == nil || cfg.ChainID.Sign() <= 0 {
		return nil, apperror.New(apperror.CodeConfigurationError,
			apperror.WithContext("chain id is required"))
	}

	return &Builder{
		config: cfg,
		key:    key,
		wallet: crypto.PubkeyToAddress(key.PublicKey),
		signer: types.LatestSignerForChainID(cfg.ChainID),
	}, nil
}

// Wallet returns the signing address.
func (b *Builder) Wallet() string {
	return b.wallet.Hex()
}

// BuildFrontRun signs the leg buying ahead of the victim, same direction as
// the victim's swap.
func (b *Builder) BuildFrontRun(ctx context.Context, opp *detection.SandwichOpportunity, est *optimization.ProfitEstimate, nonce uint64, gasPrice *big.Int) (domain.BundleTx, error) {
	swap, ok := opp.Swap.(detection.EVMSwap)
	if !ok {
		return domain.BundleTx{}, apperror.New(apperror.CodeSigningFailed,
			apperror.WithContext("front-run requires an EVM swap"))
	}

	reserveIn, reserveOut, ok := opp.Pool.ReservesFor(swap.InputToken(), swap.OutputToken())
	if !ok {
		return domain.BundleTx{}, apperror.New(apperror.CodePoolNotFound,
			apperror.WithContext("pool does not hold the swap pair"))
	}

	expected := detection.AmountOut(est.FrontRunAmount, reserveIn, reserveOut, opp.Pool.FeeBps)
	minOut := b.withSlippage(expected)

	return b.signLeg(domain.RoleFrontRun, nonce, gasPrice,
		b.config.FrontRunGasLimit,
		est.FrontRunAmount, minOut,
		[]common.Address{swap.TokenIn, swap.TokenOut})
}

// BuildBackRun signs the leg selling the acquired holding back. The producer
// tip is paid through this leg's gas price: gas burned at the bumped price
// accrues to the block producer.
func (b *Builder) BuildBackRun(ctx context.Context, opp *detection.SandwichOpportunity, est *optimization.ProfitEstimate, nonce uint64, gasPrice, tip *big.Int) (domain.BundleTx, error) {
	swap, ok := opp.Swap.(detection.EVMSwap)
	if !ok {
		return domain.BundleTx{}, apperror.New(apperror.CodeSigningFailed,
			apperror.WithContext("back-run requires an EVM swap"))
	}

	expected := new(big.Int).Add(est.FrontRunAmount, est.GrossProfit)
	minOut := b.withSlippage(expected)

	effectiveGasPrice := new(big.Int).Set(gasPrice)
	if tip != nil && tip.Sign() > 0 {
		perGas := new(big.Int).Quo(tip, new(big.Int).SetUint64(b.config.BackRunGasLimit))
		effectiveGasPrice.Add(effectiveGasPrice, perGas)
	}

	return b.signLeg(domain.RoleBackRun, nonce, effectiveGasPrice,
		b.config.BackRunGasLimit,
		est.BackRunAmount, minOut,
		[]common.Address{swap.TokenOut, swap.TokenIn})
}

func (b *Builder) withSlippage(amount *big.Int) *big.Int {
	if amount == nil || amount.Sign() <= 0 {
		return big.NewInt(0)
	}
	out := new(big.Int).Mul(amount, big.NewInt(detection.BpsDenominator-b.config.SlippageBps))
	return out.Quo(out, big.NewInt(detection.BpsDenominator))
}

func (b *Builder) signLeg(role domain.TxRole, nonce uint64, gasPrice *big.Int, gasLimit uint64, amountIn, minOut *big.Int, path []common.Address) (domain.BundleTx, error) {
	deadline := big.NewInt(time.Now().Add(b.config.DeadlineSlack).Unix())

	calldata, err := swapExactInArgs.Pack(amountIn, minOut, path, b.wallet, deadline)
	if err != nil {
		return domain.BundleTx{}, apperror.New(apperror.CodeSigningFailed, apperror.WithCause(err))
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      gasLimit,
		To:       &b.config.Router,
		Value:    big.NewInt(0),
		Data:     append(append([]byte{}, swapExactInSelector...), calldata...),
	})

	signed, err := types.SignTx(tx, b.signer, b.key)
	if err != nil {
		return domain.BundleTx{}, apperror.New(apperror.CodeSigningFailed, apperror.WithCause(err))
	}

	raw, err := signed.MarshalBinary()
	if err != nil {
		return domain.BundleTx{}, apperror.New(apperror.CodeSigningFailed, apperror.WithCause(err))
	}

	return domain.BundleTx{
		Role:  role,
		Hash:  signed.Hash().Hex(),
		Raw:   raw,
		Nonce: nonce,
	}, nil
}
