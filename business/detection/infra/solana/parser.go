// Package solana provides Solana infrastructure adapters for the detection context.
package solana

import (
	"encoding/binary"
	"math/big"

	"github.com/mr-tron/base58"

	"github.com/fd1az/sandwich-bot/business/detection/domain"
	"github.com/fd1az/sandwich-bot/internal/apperror"
)

// Swap instruction layout, as flattened by the stream adapter:
// tag(1) + amount_in(8 LE) + min_out(8 LE) + input_mint(32) + output_mint(32) + pool(32).
const (
	swapInstructionTag = 9

	tagLen    = 1
	amountLen = 8
	keyLen    = 32

	instructionLen = tagLen + 2*amountLen + 3*keyLen
)

// InstructionParser decodes AMM swap instructions for a configured set of
// programs. Keys are re-encoded to base58 for the domain layer.
type InstructionParser struct {
	programs map[string]struct{}
}

// NewInstructionParser creates a parser accepting swaps from the given
// program IDs (base58). An empty list accepts any program.
func NewInstructionParser(programs []string) *InstructionParser {
	set := make(map[string]struct{}, len(programs))
	for _, p := range programs {
		set[p] = struct{}{}
	}
	return &InstructionParser{programs: set}
}

// Decode parses the transaction's instruction payload into a swap intent.
func (p *InstructionParser) Decode(tx *domain.PendingTransaction) (domain.SwapCall, error) {
	if len(p.programs) > 0 {
		if _, ok := p.programs[tx.To]; !ok {
			return nil, apperror.New(apperror.CodeDecodeFailed,
				apperror.WithContext("unknown program "+tx.To))
		}
	}

	data := tx.Data
	if len(data) != instructionLen {
		return nil, apperror.New(apperror.CodeDecodeFailed,
			apperror.WithContext("unexpected instruction length"))
	}
	if data[0] != swapInstructionTag {
		return nil, apperror.New(apperror.CodeDecodeFailed,
			apperror.WithContext("not a swap instruction"))
	}

	amountIn := binary.LittleEndian.Uint64(data[tagLen:])
	minOut := binary.LittleEndian.Uint64(data[tagLen+amountLen:])
	if amountIn == 0 {
		return nil, apperror.New(apperror.CodeDecodeFailed,
			apperror.WithContext("zero input amount"))
	}

	keys := data[tagLen+2*amountLen:]
	inputMint := base58.Encode(keys[:keyLen])
	outputMint := base58.Encode(keys[keyLen : 2*keyLen])
	pool := base58.Encode(keys[2*keyLen : 3*keyLen])

	return domain.SolanaSwap{
		Program:     tx.To,
		PoolAccount: pool,
		InputMint:   inputMint,
		OutputMint:  outputMint,
		AmountIn:    new(big.Int).SetUint64(amountIn),
		MinimumOut:  new(big.Int).SetUint64(minOut),
		UserAccount: tx.From,
	}, nil
}
