package feature

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantpulse/microflow/internal/domain"
)

func buy(cost float64) domain.TradeEvent {
	return domain.TradeEvent{Side: domain.SideBuy, Cost: cost}
}

func sell(cost float64) domain.TradeEvent {
	return domain.TradeEvent{Side: domain.SideSell, Cost: cost}
}

func TestTradeAggregatorRatio(t *testing.T) {
	now := time.Now()
	agg := NewTradeAggregator(60 * time.Second)

	ratio := agg.Update([]domain.TradeEvent{buy(30), buy(20), sell(10)}, now)
	require.NotNil(t, ratio)
	assert.InDelta(t, 5.0, *ratio, 1e-9)
}

func TestTradeAggregatorBuyOnlyFallback(t *testing.T) {
	now := time.Now()
	agg := NewTradeAggregator(60 * time.Second)

	// Sell volume zero: the raw buy notional is the ratio.
	ratio := agg.Update([]domain.TradeEvent{buy(30)}, now)
	require.NotNil(t, ratio)
	assert.InDelta(t, 30.0, *ratio, 1e-9)
}

func TestTradeAggregatorEmptyWindowIsAbsent(t *testing.T) {
	now := time.Now()
	agg := NewTradeAggregator(60 * time.Second)

	assert.Nil(t, agg.Update(nil, now))
}

func TestTradeAggregatorEvictionMakesRatioAbsent(t *testing.T) {
	now := time.Now()
	agg := NewTradeAggregator(60 * time.Second)

	ratio := agg.Update([]domain.TradeEvent{buy(30), sell(10)}, now)
	require.NotNil(t, ratio)

	// More than the retention past the last trade: everything evicts.
	assert.Nil(t, agg.Update(nil, now.Add(61*time.Second)))
}

func TestTradeAggregatorSlidingWindow(t *testing.T) {
	now := time.Now()
	agg := NewTradeAggregator(60 * time.Second)

	agg.Update([]domain.TradeEvent{sell(100)}, now)
	ratio := agg.Update([]domain.TradeEvent{buy(50)}, now.Add(30*time.Second))
	require.NotNil(t, ratio)
	assert.InDelta(t, 0.5, *ratio, 1e-9)

	// The sell falls out of the window; only the buy remains.
	ratio = agg.Update(nil, now.Add(70*time.Second))
	require.NotNil(t, ratio)
	assert.InDelta(t, 50.0, *ratio, 1e-9)
}

func TestTradeAggregatorRounding(t *testing.T) {
	now := time.Now()
	agg := NewTradeAggregator(60 * time.Second)

	ratio := agg.Update([]domain.TradeEvent{buy(1), sell(3)}, now)
	require.NotNil(t, ratio)
	assert.Equal(t, 0.3333, *ratio)
}
