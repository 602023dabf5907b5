package domain

import "time"

// FeedType identifies one of the two independent streaming inputs per
// instrument.
type FeedType string

const (
	FeedOrderBook FeedType = "orderbook"
	FeedTrades    FeedType = "trades"
)

// FeatureRecord holds the latest derived microstructure signals for one
// instrument. Nil pointers mean "no data yet for this feed type". LastUpdate
// is the zero time until the first update of either feed arrives.
type FeatureRecord struct {
	OrderBookImbalance *float64
	TakerBuySellRatio  *float64
	LastUpdate         time.Time
}

// FeatureUpdate is the partial record produced by one aggregator pass. Only
// the field matching the owning feed type is consulted: Imbalance for
// FeedOrderBook, TakerRatio for FeedTrades. A nil TakerRatio on a trade
// update clears the ratio (no trades remain in the window).
type FeatureUpdate struct {
	Imbalance  *float64
	TakerRatio *float64
}
