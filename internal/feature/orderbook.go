package feature

import (
	"math"

	"github.com/quantpulse/microflow/internal/domain"
)

// Imbalance computes the order-book imbalance for a snapshot: the normalized
// difference between aggregate bid and ask notional volume, in [-1, 1].
// Positive values indicate buy-side pressure. It returns ok=false when either
// side of the book is empty, in which case the caller should retain the
// previous value.
func Imbalance(snap domain.BookSnapshot) (float64, bool) {
	if len(snap.Bids) == 0 || len(snap.Asks) == 0 {
		return 0, false
	}

	var bidVolume, askVolume float64
	for _, lvl := range snap.Bids {
		bidVolume += lvl.Price * lvl.Size
	}
	for _, lvl := range snap.Asks {
		askVolume += lvl.Price * lvl.Size
	}

	total := bidVolume + askVolume
	if total == 0 {
		return 0.0, true
	}
	return round4((bidVolume - askVolume) / total), true
}

// round4 rounds to 4 decimal places, the precision published downstream.
func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
