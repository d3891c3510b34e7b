package solana

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/require"

	"github.com/fd1az/sandwich-bot/business/detection/domain"
	"github.com/fd1az/sandwich-bot/internal/apperror"
)

const raydiumProgram = "675kPX9MHTjS2zt1qfr1NYHuzeLXfQM9H24wFSUt1Mp8"

func swapInstruction(tag byte, amountIn, minOut uint64) []byte {
	data := make([]byte, 0, instructionLen)
	data = append(data, tag)
	data = binary.LittleEndian.AppendUint64(data, amountIn)
	data = binary.LittleEndian.AppendUint64(data, minOut)

	inputMint := make([]byte, keyLen)
	inputMint[0] = 0x01
	outputMint := make([]byte, keyLen)
	outputMint[0] = 0x02
	pool := make([]byte, keyLen)
	pool[0] = 0x03

	data = append(data, inputMint...)
	data = append(data, outputMint...)
	data = append(data, pool...)
	return data
}

func solanaTx(data []byte) *domain.PendingTransaction {
	return &domain.PendingTransaction{
		Hash:       "5sig",
		Chain:      domain.Chain{Name: "solana", Family: domain.FamilySolana},
		From:       "userAccount111",
		To:         raydiumProgram,
		Data:       data,
		ObservedAt: time.Now(),
	}
}

func TestInstructionParser_DecodeSwap(t *testing.T) {
	parser := NewInstructionParser([]string{raydiumProgram})

	swap, err := parser.Decode(solanaTx(swapInstruction(swapInstructionTag, 1_000_000, 950_000)))
	require.NoError(t, err)

	sol, ok := swap.(domain.SolanaSwap)
	require.True(t, ok)
	require.Equal(t, domain.FamilySolana, sol.Family())
	require.Equal(t, uint64(1_000_000), sol.AmountIn.Uint64())
	require.Equal(t, uint64(950_000), sol.MinimumOut.Uint64())
	require.Equal(t, raydiumProgram, sol.Program)
	require.Equal(t, "userAccount111", sol.UserAccount)

	// Keys round-trip through base58.
	mint, err := base58.Decode(sol.InputMint)
	require.NoError(t, err)
	require.Equal(t, byte(0x01), mint[0])
}

func TestInstructionParser_RejectsUnknownProgram(t *testing.T) {
	parser := NewInstructionParser([]string{raydiumProgram})

	tx := solanaTx(swapInstruction(swapInstructionTag, 1, 1))
	tx.To = "someOtherProgram"

	_, err := parser.Decode(tx)
	require.Error(t, err)
	require.Equal(t, apperror.CodeDecodeFailed, apperror.GetCode(err))
}

func TestInstructionParser_RejectsNonSwapTag(t *testing.T) {
	parser := NewInstructionParser(nil)

	_, err := parser.Decode(solanaTx(swapInstruction(4, 1, 1)))
	require.Error(t, err)
	require.Equal(t, apperror.CodeDecodeFailed, apperror.GetCode(err))
}

func TestInstructionParser_RejectsTruncatedData(t *testing.T) {
	parser := NewInstructionParser(nil)

	_, err := parser.Decode(solanaTx([]byte{swapInstructionTag, 0x01}))
	require.Error(t, err)
	require.Equal(t, apperror.CodeDecodeFailed, apperror.GetCode(err))
}

func TestInstructionParser_RejectsZeroAmount(t *testing.T) {
	parser := NewInstructionParser(nil)

	_, err := parser.Decode(solanaTx(swapInstruction(swapInstructionTag, 0, 1)))
	require.Error(t, err)
	require.Equal(t, apperror.CodeDecodeFailed, apperror.GetCode(err))
}
