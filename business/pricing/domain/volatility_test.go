package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestVolatilityWindow_EmptyScoresZero(t *testing.T) {
	w := NewVolatilityWindow(10, time.Minute, 500)
	require.True(t, w.Score(time.Now()).IsZero())
}

func TestVolatilityWindow_FlatMarketScoresZero(t *testing.T) {
	w := NewVolatilityWindow(10, time.Minute, 500)
	now := time.Now()
	for i := 0; i < 5; i++ {
		w.Observe(decimal.NewFromInt(3400), now.Add(time.Duration(i)*time.Second))
	}
	require.True(t, w.Score(now.Add(10*time.Second)).IsZero())
}

func TestVolatilityWindow_RangeMapsToScore(t *testing.T) {
	// Full scale 500 bps: a 2.5% range should score 0.5.
	w := NewVolatilityWindow(10, time.Minute, 500)
	now := time.Now()
	w.Observe(decimal.NewFromInt(1000), now)
	w.Observe(decimal.NewFromInt(1025), now.Add(time.Second))

	score := w.Score(now.Add(2 * time.Second))
	require.True(t, score.Equal(decimal.RequireFromString("0.5")), "got %s", score)
}

func TestVolatilityWindow_ScoreCapsAtOne(t *testing.T) {
	w := NewVolatilityWindow(10, time.Minute, 500)
	now := time.Now()
	w.Observe(decimal.NewFromInt(1000), now)
	w.Observe(decimal.NewFromInt(2000), now.Add(time.Second))

	require.True(t, w.Score(now.Add(2*time.Second)).Equal(decimal.NewFromInt(1)))
}

func TestVolatilityWindow_OldSamplesExpire(t *testing.T) {
	w := NewVolatilityWindow(10, 10*time.Second, 500)
	now := time.Now()
	w.Observe(decimal.NewFromInt(1000), now.Add(-time.Minute))
	w.Observe(decimal.NewFromInt(2000), now)

	// The old extreme aged out, leaving a single live sample.
	require.Equal(t, 1, w.Len(now))
	require.True(t, w.Score(now).IsZero())
}

func TestVolatilityWindow_BoundedLength(t *testing.T) {
	w := NewVolatilityWindow(3, time.Hour, 500)
	now := time.Now()
	for i := 0; i < 10; i++ {
		w.Observe(decimal.NewFromInt(int64(1000+i)), now.Add(time.Duration(i)*time.Second))
	}
	require.Equal(t, 3, w.Len(now.Add(11*time.Second)))
}
