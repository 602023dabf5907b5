package feature

import (
	"time"

	"github.com/quantpulse/microflow/internal/domain"
)

// TradeAggregator derives the taker buy/sell volume ratio for one instrument
// over a trailing retention window. Each aggregator is owned by a single
// stream worker and must not be shared.
type TradeAggregator struct {
	window *Window[domain.TradeEvent]
}

// NewTradeAggregator creates an aggregator with the given window retention.
func NewTradeAggregator(retention time.Duration) *TradeAggregator {
	return &TradeAggregator{window: NewWindow[domain.TradeEvent](retention)}
}

// Update appends the incoming trades stamped with now, evicts entries older
// than the retention, and returns the taker buy/sell ratio rounded to 4
// decimal places. It returns nil when no trades remain in the window.
//
// When sell volume is zero but buy volume is positive, the raw buy notional
// is returned as the ratio. This conflates a ratio with an absolute volume,
// but downstream consumers depend on the current scale, so it is preserved
// deliberately rather than fixed.
func (a *TradeAggregator) Update(trades []domain.TradeEvent, now time.Time) *float64 {
	for _, t := range trades {
		a.window.Insert(t, now)
	}

	var buyVolume, sellVolume float64
	for _, t := range a.window.Items(now) {
		switch t.Side {
		case domain.SideBuy:
			buyVolume += t.Cost
		case domain.SideSell:
			sellVolume += t.Cost
		}
	}

	var ratio float64
	switch {
	case sellVolume > 0:
		ratio = buyVolume / sellVolume
	case buyVolume > 0:
		ratio = buyVolume
	default:
		return nil
	}

	ratio = round4(ratio)
	return &ratio
}
