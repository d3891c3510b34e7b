// Package evm provides EVM-chain infrastructure adapters for the detection context.
package evm

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/fd1az/sandwich-bot/business/detection/domain"
	"github.com/fd1az/sandwich-bot/internal/apperror"
)

// ABI types used by the router method table. Construction cannot fail for
// these well-formed type strings.
var (
	uint256Ty, _    = abi.NewType("uint256", "", nil)
	addressTy, _    = abi.NewType("address", "", nil)
	addressArrTy, _ = abi.NewType("address[]", "", nil)
	bytesTy, _      = abi.NewType("bytes", "", nil)

	exactInputSingleTy, _ = abi.NewType("tuple", "", []abi.ArgumentMarshaling{
		{Name: "tokenIn", Type: "address"},
		{Name: "tokenOut", Type: "address"},
		{Name: "fee", Type: "uint24"},
		{Name: "recipient", Type: "address"},
		{Name: "deadline", Type: "uint256"},
		{Name: "amountIn", Type: "uint256"},
		{Name: "amountOutMinimum", Type: "uint256"},
		{Name: "sqrtPriceLimitX96", Type: "uint160"},
	})

	exactInputTy, _ = abi.NewType("tuple", "", []abi.ArgumentMarshaling{
		{Name: "path", Type: "bytes"},
		{Name: "recipient", Type: "address"},
		{Name: "deadline", Type: "uint256"},
		{Name: "amountIn", Type: "uint256"},
		{Name: "amountOutMinimum", Type: "uint256"},
	})
)

type decodeFn func(tx *domain.PendingTransaction, router common.Address, data []byte) (domain.SwapCall, error)

type routerMethod struct {
	name   string
	decode decodeFn
}

// RouterRegistry decodes swap calldata for known router methods. Methods are
// keyed by 4-byte selector; selectors are derived from canonical signatures
// at construction so the table cannot drift from the signatures.
type RouterRegistry struct {
	methods map[[4]byte]routerMethod

	// routers restricts decoding to known router addresses when non-empty.
	routers map[common.Address]struct{}

	// wrappedNative stands in for the native asset on ETH-denominated
	// methods (WETH on mainnet).
	wrappedNative common.Address
}

// RegistryConfig holds configuration for the router registry.
type RegistryConfig struct {
	Routers       []string
	WrappedNative string
}

// NewRouterRegistry builds the selector table for V2 and V3 style routers.
func NewRouterRegistry(cfg RegistryConfig) *RouterRegistry {
	r := &RouterRegistry{
		methods:       make(map[[4]byte]routerMethod),
		routers:       make(map[common.Address]struct{}, len(cfg.Routers)),
		wrappedNative: common.HexToAddress(cfg.WrappedNative),
	}
	for _, addr := range cfg.Routers {
		r.routers[common.HexToAddress(addr)] = struct{}{}
	}

	r.register("swapExactTokensForTokens(uint256,uint256,address[],address,uint256)", r.decodeV2ExactIn)
	r.register("swapExactTokensForETH(uint256,uint256,address[],address,uint256)", r.decodeV2ExactIn)
	r.register("swapExactETHForTokens(uint256,address[],address,uint256)", r.decodeV2ExactInETH)
	r.register("swapTokensForExactTokens(uint256,uint256,address[],address,uint256)", r.decodeV2ExactOut)
	r.register("exactInputSingle((address,address,uint24,address,uint256,uint256,uint256,uint160))", r.decodeV3ExactInputSingle)
	r.register("exactInput((bytes,address,uint256,uint256,uint256))", r.decodeV3ExactInput)

	return r
}

func (r *RouterRegistry) register(signature string, fn decodeFn) {
	var sel [4]byte
	copy(sel[:], crypto.Keccak256([]byte(signature))[:4])
	name := signature[:strings.IndexByte(signature, '(')]
	r.methods[sel] = routerMethod{name: name, decode: fn}
}

// Decode extracts a swap intent from the transaction calldata. Transactions
// to unknown routers or with unknown selectors fail with DECODE_FAILED.
func (r *RouterRegistry) Decode(tx *domain.PendingTransaction) (domain.SwapCall, error) {
	if len(tx.Data) < 4 {
		return nil, apperror.New(apperror.CodeDecodeFailed,
			apperror.WithContext("calldata too short"))
	}

	router := common.HexToAddress(tx.To)
	if len(r.routers) > 0 {
		if _, ok := r.routers[router]; !ok {
			return nil, apperror.New(apperror.CodeDecodeFailed,
				apperror.WithContext("unknown router "+tx.To))
		}
	}

	var sel [4]byte
	copy(sel[:], tx.Data[:4])
	method, ok := r.methods[sel]
	if !ok {
		return nil, apperror.New(apperror.CodeDecodeFailed,
			apperror.WithContext("unknown selector"))
	}

	swap, err := method.decode(tx, router, tx.Data[4:])
	if err != nil {
		return nil, apperror.New(apperror.CodeDecodeFailed,
			apperror.WithCause(err),
			apperror.WithContext("decode "+method.name))
	}
	return swap, nil
}

var v2ExactInArgs = abi.Arguments{
	{Type: uint256Ty},    // amountIn
	{Type: uint256Ty},    // amountOutMin
	{Type: addressArrTy}, // path
	{Type: addressTy},    // to
	{Type: uint256Ty},    // deadline
}

func (r *RouterRegistry) decodeV2ExactIn(_ *domain.PendingTransaction, router common.Address, data []byte) (domain.SwapCall, error) {
	values, err := v2ExactInArgs.Unpack(data)
	if err != nil {
		return nil, err
	}

	amountIn := values[0].(*big.Int)
	amountOutMin := values[1].(*big.Int)
	path := values[2].([]common.Address)
	recipient := values[3].(common.Address)
	deadline := values[4].(*big.Int)

	if len(path) < 2 {
		return nil, apperror.New(apperror.CodeDecodeFailed,
			apperror.WithContext("path shorter than 2 hops"))
	}

	return domain.EVMSwap{
		Router:       router,
		CallKind:     domain.RouterV2ExactIn,
		TokenIn:      path[0],
		TokenOut:     path[len(path)-1],
		Path:         path,
		AmountIn:     amountIn,
		AmountOutMin: amountOutMin,
		Recipient:    recipient,
		Deadline:     deadline,
	}, nil
}

var v2ExactInETHArgs = abi.Arguments{
	{Type: uint256Ty},    // amountOutMin
	{Type: addressArrTy}, // path
	{Type: addressTy},    // to
	{Type: uint256Ty},    // deadline
}

// decodeV2ExactInETH handles the payable variant: the input amount is the
// transaction value and the input token is the wrapped native asset.
func (r *RouterRegistry) decodeV2ExactInETH(tx *domain.PendingTransaction, router common.Address, data []byte) (domain.SwapCall, error) {
	values, err := v2ExactInETHArgs.Unpack(data)
	if err != nil {
		return nil, err
	}

	amountOutMin := values[0].(*big.Int)
	path := values[1].([]common.Address)
	recipient := values[2].(common.Address)
	deadline := values[3].(*big.Int)

	if len(path) < 2 {
		return nil, apperror.New(apperror.CodeDecodeFailed,
			apperror.WithContext("path shorter than 2 hops"))
	}
	if tx.Value == nil || tx.Value.Sign() <= 0 {
		return nil, apperror.New(apperror.CodeDecodeFailed,
			apperror.WithContext("payable swap without value"))
	}

	return domain.EVMSwap{
		Router:       router,
		CallKind:     domain.RouterV2ExactIn,
		TokenIn:      path[0],
		TokenOut:     path[len(path)-1],
		Path:         path,
		AmountIn:     tx.Value,
		AmountOutMin: amountOutMin,
		Recipient:    recipient,
		Deadline:     deadline,
	}, nil
}

var v2ExactOutArgs = abi.Arguments{
	{Type: uint256Ty},    // amountOut
	{Type: uint256Ty},    // amountInMax
	{Type: addressArrTy}, // path
	{Type: addressTy},    // to
	{Type: uint256Ty},    // deadline
}

// decodeV2ExactOut models the exact-output call conservatively: the input is
// taken at its maximum and the fixed output becomes the minimum-out bound.
func (r *RouterRegistry) decodeV2ExactOut(_ *domain.PendingTransaction, router common.Address, data []byte) (domain.SwapCall, error) {
	values, err := v2ExactOutArgs.Unpack(data)
	if err != nil {
		return nil, err
	}

	amountOut := values[0].(*big.Int)
	amountInMax := values[1].(*big.Int)
	path := values[2].([]common.Address)
	recipient := values[3].(common.Address)
	deadline := values[4].(*big.Int)

	if len(path) < 2 {
		return nil, apperror.New(apperror.CodeDecodeFailed,
			apperror.WithContext("path shorter than 2 hops"))
	}

	return domain.EVMSwap{
		Router:       router,
		CallKind:     domain.RouterV2ExactOut,
		TokenIn:      path[0],
		TokenOut:     path[len(path)-1],
		Path:         path,
		AmountIn:     amountInMax,
		AmountOutMin: amountOut,
		Recipient:    recipient,
		Deadline:     deadline,
	}, nil
}

type exactInputSingleParams struct {
	TokenIn           common.Address
	TokenOut          common.Address
	Fee               *big.Int
	Recipient         common.Address
	Deadline          *big.Int
	AmountIn          *big.Int
	AmountOutMinimum  *big.Int
	SqrtPriceLimitX96 *big.Int
}

var v3ExactInputSingleArgs = abi.Arguments{{Type: exactInputSingleTy}}

func (r *RouterRegistry) decodeV3ExactInputSingle(_ *domain.PendingTransaction, router common.Address, data []byte) (domain.SwapCall, error) {
	values, err := v3ExactInputSingleArgs.Unpack(data)
	if err != nil {
		return nil, err
	}

	params := abi.ConvertType(values[0], new(exactInputSingleParams)).(*exactInputSingleParams)

	return domain.EVMSwap{
		Router:       router,
		CallKind:     domain.RouterV3ExactIn,
		TokenIn:      params.TokenIn,
		TokenOut:     params.TokenOut,
		Path:         []common.Address{params.TokenIn, params.TokenOut},
		AmountIn:     params.AmountIn,
		AmountOutMin: params.AmountOutMinimum,
		Recipient:    params.Recipient,
		Deadline:     params.Deadline,
		FeeTier:      params.Fee.Int64(),
	}, nil
}

type exactInputParams struct {
	Path             []byte
	Recipient        common.Address
	Deadline         *big.Int
	AmountIn         *big.Int
	AmountOutMinimum *big.Int
}

var v3ExactInputArgs = abi.Arguments{{Type: exactInputTy}}

// V3 packed path layout: 20-byte token, 3-byte fee, repeating, final token.
const (
	v3AddrLen = 20
	v3FeeLen  = 3
	v3HopLen  = v3AddrLen + v3FeeLen
)

func (r *RouterRegistry) decodeV3ExactInput(_ *domain.PendingTransaction, router common.Address, data []byte) (domain.SwapCall, error) {
	values, err := v3ExactInputArgs.Unpack(data)
	if err != nil {
		return nil, err
	}

	params := abi.ConvertType(values[0], new(exactInputParams)).(*exactInputParams)

	path := params.Path
	if len(path) < v3HopLen+v3AddrLen || (len(path)-v3AddrLen)%v3HopLen != 0 {
		return nil, apperror.New(apperror.CodeDecodeFailed,
			apperror.WithContext("malformed v3 path"))
	}

	tokenIn := common.BytesToAddress(path[:v3AddrLen])
	tokenOut := common.BytesToAddress(path[len(path)-v3AddrLen:])
	fee := new(big.Int).SetBytes(path[v3AddrLen : v3AddrLen+v3FeeLen])

	return domain.EVMSwap{
		Router:       router,
		CallKind:     domain.RouterV3ExactIn,
		TokenIn:      tokenIn,
		TokenOut:     tokenOut,
		Path:         []common.Address{tokenIn, tokenOut},
		AmountIn:     params.AmountIn,
		AmountOutMin: params.AmountOutMinimum,
		Recipient:    params.Recipient,
		Deadline:     params.Deadline,
		FeeTier:      fee.Int64(),
	}, nil
}
