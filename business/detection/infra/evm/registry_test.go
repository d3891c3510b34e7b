package evm

import (
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"github.com/fd1az/sandwich-bot/business/detection/domain"
	"github.com/fd1az/sandwich-bot/internal/apperror"
)

var (
	routerAddr = "0x7a250d5630B4cF539739dF2C5dAcb4c659F2488D"
	wethAddr   = "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"
	usdcAddr   = "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"
	sender     = "0x000000000000000000000000000000000000dEaD"
)

func newTestRegistry() *RouterRegistry {
	return NewRouterRegistry(RegistryConfig{
		Routers:       []string{routerAddr},
		WrappedNative: wethAddr,
	})
}

func calldata(t *testing.T, signature string, args abi.Arguments, values ...interface{}) []byte {
	t.Helper()
	packed, err := args.Pack(values...)
	require.NoError(t, err)
	return append(crypto.Keccak256([]byte(signature))[:4], packed...)
}

func evmTx(data []byte, value *big.Int) *domain.PendingTransaction {
	return &domain.PendingTransaction{
		Hash:       "0xabc",
		Chain:      domain.Chain{Name: "ethereum", Family: domain.FamilyEVM, ID: 1},
		From:       sender,
		To:         routerAddr,
		Data:       data,
		Value:      value,
		GasPrice:   big.NewInt(20_000_000_000),
		ObservedAt: time.Now(),
	}
}

func TestRouterRegistry_DecodeV2ExactIn(t *testing.T) {
	reg := newTestRegistry()
	path := []common.Address{common.HexToAddress(wethAddr), common.HexToAddress(usdcAddr)}
	deadline := big.NewInt(time.Now().Add(time.Minute).Unix())

	data := calldata(t,
		"swapExactTokensForTokens(uint256,uint256,address[],address,uint256)",
		v2ExactInArgs,
		big.NewInt(1_000_000), big.NewInt(990_000), path, common.HexToAddress(sender), deadline)

	swap, err := reg.Decode(evmTx(data, nil))
	require.NoError(t, err)

	evm, ok := swap.(domain.EVMSwap)
	require.True(t, ok)
	require.Equal(t, domain.RouterV2ExactIn, evm.Kind())
	require.Equal(t, common.HexToAddress(wethAddr), evm.TokenIn)
	require.Equal(t, common.HexToAddress(usdcAddr), evm.TokenOut)
	require.Equal(t, int64(1_000_000), evm.AmountIn.Int64())
	require.Equal(t, int64(990_000), evm.AmountOutMin.Int64())
}

func TestRouterRegistry_DecodeV2ExactInETHUsesTxValue(t *testing.T) {
	reg := newTestRegistry()
	path := []common.Address{common.HexToAddress(wethAddr), common.HexToAddress(usdcAddr)}
	deadline := big.NewInt(time.Now().Add(time.Minute).Unix())

	data := calldata(t,
		"swapExactETHForTokens(uint256,address[],address,uint256)",
		v2ExactInETHArgs,
		big.NewInt(990_000), path, common.HexToAddress(sender), deadline)

	value := big.NewInt(5_000_000)
	swap, err := reg.Decode(evmTx(data, value))
	require.NoError(t, err)
	require.Equal(t, value, swap.InAmount())
	require.Equal(t, common.HexToAddress(wethAddr).Hex(), swap.InputToken())
}

func TestRouterRegistry_DecodeV2ExactInETHWithoutValueFails(t *testing.T) {
	reg := newTestRegistry()
	path := []common.Address{common.HexToAddress(wethAddr), common.HexToAddress(usdcAddr)}

	data := calldata(t,
		"swapExactETHForTokens(uint256,address[],address,uint256)",
		v2ExactInETHArgs,
		big.NewInt(990_000), path, common.HexToAddress(sender), big.NewInt(0))

	_, err := reg.Decode(evmTx(data, nil))
	require.Error(t, err)
	require.Equal(t, apperror.CodeDecodeFailed, apperror.GetCode(err))
}

func TestRouterRegistry_DecodeV2ExactOut(t *testing.T) {
	reg := newTestRegistry()
	path := []common.Address{common.HexToAddress(usdcAddr), common.HexToAddress(wethAddr)}

	data := calldata(t,
		"swapTokensForExactTokens(uint256,uint256,address[],address,uint256)",
		v2ExactOutArgs,
		big.NewInt(1_000), big.NewInt(3_500_000), path, common.HexToAddress(sender), big.NewInt(0))

	swap, err := reg.Decode(evmTx(data, nil))
	require.NoError(t, err)
	require.Equal(t, domain.RouterV2ExactOut, swap.Kind())
	// Conservative reading: worst-case input, fixed output as the floor.
	require.Equal(t, int64(3_500_000), swap.InAmount().Int64())
	require.Equal(t, int64(1_000), swap.MinOutAmount().Int64())
}

func TestRouterRegistry_DecodeV3ExactInputSingle(t *testing.T) {
	reg := newTestRegistry()

	params := exactInputSingleParams{
		TokenIn:           common.HexToAddress(wethAddr),
		TokenOut:          common.HexToAddress(usdcAddr),
		Fee:               big.NewInt(3000),
		Recipient:         common.HexToAddress(sender),
		Deadline:          big.NewInt(0),
		AmountIn:          big.NewInt(2_000_000),
		AmountOutMinimum:  big.NewInt(1_900_000),
		SqrtPriceLimitX96: big.NewInt(0),
	}

	data := calldata(t,
		"exactInputSingle((address,address,uint24,address,uint256,uint256,uint256,uint160))",
		v3ExactInputSingleArgs, params)

	swap, err := reg.Decode(evmTx(data, nil))
	require.NoError(t, err)

	evm := swap.(domain.EVMSwap)
	require.Equal(t, domain.RouterV3ExactIn, evm.Kind())
	require.Equal(t, int64(3000), evm.FeeTier)
	require.Equal(t, int64(2_000_000), evm.AmountIn.Int64())
}

func TestRouterRegistry_DecodeV3ExactInputPath(t *testing.T) {
	reg := newTestRegistry()

	// token(20) + fee(3) + token(20)
	path := make([]byte, 0, 43)
	path = append(path, common.HexToAddress(wethAddr).Bytes()...)
	path = append(path, 0x00, 0x0b, 0xb8) // 3000
	path = append(path, common.HexToAddress(usdcAddr).Bytes()...)

	params := exactInputParams{
		Path:             path,
		Recipient:        common.HexToAddress(sender),
		Deadline:         big.NewInt(0),
		AmountIn:         big.NewInt(7_000_000),
		AmountOutMinimum: big.NewInt(6_500_000),
	}

	data := calldata(t,
		"exactInput((bytes,address,uint256,uint256,uint256))",
		v3ExactInputArgs, params)

	swap, err := reg.Decode(evmTx(data, nil))
	require.NoError(t, err)

	evm := swap.(domain.EVMSwap)
	require.Equal(t, common.HexToAddress(wethAddr), evm.TokenIn)
	require.Equal(t, common.HexToAddress(usdcAddr), evm.TokenOut)
	require.Equal(t, int64(3000), evm.FeeTier)
}

func TestRouterRegistry_RejectsUnknownRouter(t *testing.T) {
	reg := newTestRegistry()
	tx := evmTx([]byte{0x38, 0xed, 0x17, 0x39}, nil)
	tx.To = "0x1111111111111111111111111111111111111111"

	_, err := reg.Decode(tx)
	require.Error(t, err)
	require.Equal(t, apperror.CodeDecodeFailed, apperror.GetCode(err))
}

func TestRouterRegistry_RejectsUnknownSelector(t *testing.T) {
	reg := newTestRegistry()

	_, err := reg.Decode(evmTx([]byte{0xde, 0xad, 0xbe, 0xef}, nil))
	require.Error(t, err)
	require.Equal(t, apperror.CodeDecodeFailed, apperror.GetCode(err))
}

func TestRouterRegistry_RejectsShortCalldata(t *testing.T) {
	reg := newTestRegistry()

	_, err := reg.Decode(evmTx([]byte{0x01}, nil))
	require.Error(t, err)
	require.Equal(t, apperror.CodeDecodeFailed, apperror.GetCode(err))
}
