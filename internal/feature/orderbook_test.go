package feature

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantpulse/microflow/internal/domain"
)

func book(bids, asks []domain.PriceLevel) domain.BookSnapshot {
	return domain.BookSnapshot{Instrument: "BTC", Bids: bids, Asks: asks}
}

func TestImbalanceKnownScenario(t *testing.T) {
	// bid_volume = 100*2 + 99*1 = 299, ask_volume = 101*1 + 102*1 = 203
	snap := book(
		[]domain.PriceLevel{{Price: 100, Size: 2}, {Price: 99, Size: 1}},
		[]domain.PriceLevel{{Price: 101, Size: 1}, {Price: 102, Size: 1}},
	)
	imb, ok := Imbalance(snap)
	require.True(t, ok)
	assert.InDelta(t, 0.1912, imb, 1e-9)
}

func TestImbalanceEmptySideIsNoOp(t *testing.T) {
	_, ok := Imbalance(book(nil, []domain.PriceLevel{{Price: 101, Size: 1}}))
	assert.False(t, ok)

	_, ok = Imbalance(book([]domain.PriceLevel{{Price: 100, Size: 1}}, nil))
	assert.False(t, ok)
}

func TestImbalanceZeroTotalVolume(t *testing.T) {
	snap := book(
		[]domain.PriceLevel{{Price: 100, Size: 0}},
		[]domain.PriceLevel{{Price: 101, Size: 0}},
	)
	imb, ok := Imbalance(snap)
	require.True(t, ok)
	assert.Equal(t, 0.0, imb)
}

func TestImbalanceBounds(t *testing.T) {
	// Ask side present but worthless: imbalance pins at +1.
	imb, ok := Imbalance(book(
		[]domain.PriceLevel{{Price: 100, Size: 5}},
		[]domain.PriceLevel{{Price: 101, Size: 0}},
	))
	require.True(t, ok)
	assert.Equal(t, 1.0, imb)

	imb, ok = Imbalance(book(
		[]domain.PriceLevel{{Price: 100, Size: 0}},
		[]domain.PriceLevel{{Price: 101, Size: 5}},
	))
	require.True(t, ok)
	assert.Equal(t, -1.0, imb)

	imb, ok = Imbalance(book(
		[]domain.PriceLevel{{Price: 100, Size: 3}},
		[]domain.PriceLevel{{Price: 101, Size: 7}},
	))
	require.True(t, ok)
	assert.GreaterOrEqual(t, imb, -1.0)
	assert.LessOrEqual(t, imb, 1.0)
}

func TestImbalanceScaleInvariance(t *testing.T) {
	bids := []domain.PriceLevel{{Price: 100, Size: 2}, {Price: 99.5, Size: 4}}
	asks := []domain.PriceLevel{{Price: 100.5, Size: 3}, {Price: 101, Size: 1}}

	base, ok := Imbalance(book(bids, asks))
	require.True(t, ok)

	const k = 7.25
	scaledBids := make([]domain.PriceLevel, len(bids))
	for i, l := range bids {
		scaledBids[i] = domain.PriceLevel{Price: l.Price, Size: l.Size * k}
	}
	scaledAsks := make([]domain.PriceLevel, len(asks))
	for i, l := range asks {
		scaledAsks[i] = domain.PriceLevel{Price: l.Price, Size: l.Size * k}
	}

	scaled, ok := Imbalance(book(scaledBids, scaledAsks))
	require.True(t, ok)
	assert.InDelta(t, base, scaled, 1e-4)
}
