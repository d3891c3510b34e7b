package domain

import (
	"math/big"
	"time"
)

// Pool is a point-in-time snapshot of an AMM pool's state. Reserve0/Reserve1
// follow the pool's own token ordering.
type Pool struct {
	Address   string
	Chain     Chain
	Token0    string
	Token1    string
	Reserve0  *big.Int
	Reserve1  *big.Int
	FeeBps    int64
	FetchedAt time.Time
}

// Age returns how old this snapshot is.
func (p *Pool) Age(now time.Time) time.Duration {
	return now.Sub(p.FetchedAt)
}

// ReservesFor orients the reserves for a swap of tokenIn -> tokenOut.
// ok is false when either token does not belong to the pool.
func (p *Pool) ReservesFor(tokenIn, tokenOut string) (reserveIn, reserveOut *big.Int, ok bool) {
	switch {
	case tokenIn == p.Token0 && tokenOut == p.Token1:
		return p.Reserve0, p.Reserve1, true
	case tokenIn == p.Token1 && tokenOut == p.Token0:
		return p.Reserve1, p.Reserve0, true
	default:
		return nil, nil, false
	}
}

// Token holds quality-gate metadata for a token.
type Token struct {
	Address     string
	Chain       Chain
	Decimals    int32
	Blacklisted bool
}

// PlausibleDecimals reports whether the token's declared precision is sane.
func (t *Token) PlausibleDecimals() bool {
	return t.Decimals > 0 && t.Decimals <= 36
}
