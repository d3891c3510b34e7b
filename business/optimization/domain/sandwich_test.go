package domain

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	detection "github.com/fd1az/sandwich-bot/business/detection/domain"
)

func eth(n int64) *big.Int {
	wei := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	return wei.Mul(wei, big.NewInt(n))
}

func TestModelSandwich_ProfitableOnLargeVictim(t *testing.T) {
	legs := ModelSandwich(eth(50), eth(100), big.NewInt(0), eth(1000), eth(1000), 30)
	require.NotNil(t, legs)
	require.Positive(t, legs.Profit.Sign())
	require.Equal(t, new(big.Int).Sub(legs.BackRunOut, legs.FrontRunIn), legs.Profit)
}

func TestModelSandwich_ZeroFrontRunIsNeutral(t *testing.T) {
	legs := ModelSandwich(big.NewInt(0), eth(100), big.NewInt(0), eth(1000), eth(1000), 30)
	require.NotNil(t, legs)
	require.Zero(t, legs.Profit.Sign())
	require.Zero(t, legs.FrontRunOut.Sign())
	require.Zero(t, legs.BackRunOut.Sign())
}

func TestModelSandwich_VictimMinOutViolationReturnsNil(t *testing.T) {
	// The victim's floor equals their unsandwiched output; any front-run
	// pushes them below it.
	unshifted := detection.AmountOut(eth(100), eth(1000), eth(1000), 30)

	require.NotNil(t, ModelSandwich(big.NewInt(0), eth(100), unshifted, eth(1000), eth(1000), 30))
	require.Nil(t, ModelSandwich(eth(10), eth(100), unshifted, eth(1000), eth(1000), 30))
}

func TestModelSandwich_LooseMinOutTolerated(t *testing.T) {
	unshifted := detection.AmountOut(eth(100), eth(1000), eth(1000), 30)
	loose := new(big.Int).Quo(unshifted, big.NewInt(2))

	legs := ModelSandwich(eth(10), eth(100), loose, eth(1000), eth(1000), 30)
	require.NotNil(t, legs)
	require.GreaterOrEqual(t, legs.VictimOut.Cmp(loose), 0)
}

func TestModelSandwich_NegativeFrontRunRejected(t *testing.T) {
	require.Nil(t, ModelSandwich(big.NewInt(-1), eth(100), big.NewInt(0), eth(1000), eth(1000), 30))
}

func TestModelSandwich_FeesEatTinyVictims(t *testing.T) {
	// A dust victim cannot pay for three legs of fees.
	legs := ModelSandwich(eth(10), big.NewInt(1000), big.NewInt(0), eth(1000), eth(1000), 30)
	require.NotNil(t, legs)
	require.Negative(t, legs.Profit.Sign())
}

func TestModelSandwich_ProfitGrowsThenShrinks(t *testing.T) {
	// Concavity sanity: profit at a moderate size beats both extremes.
	small := ModelSandwich(eth(1), eth(100), big.NewInt(0), eth(1000), eth(1000), 30)
	mid := ModelSandwich(eth(80), eth(100), big.NewInt(0), eth(1000), eth(1000), 30)
	huge := ModelSandwich(eth(5000), eth(100), big.NewInt(0), eth(1000), eth(1000), 30)

	require.NotNil(t, small)
	require.NotNil(t, mid)
	require.NotNil(t, huge)
	require.Positive(t, mid.Profit.Cmp(small.Profit))
	require.Positive(t, mid.Profit.Cmp(huge.Profit))
}
