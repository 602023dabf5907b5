// Package domain defines the core types shared across the feature engine:
// order-book and trade market data, derived feature records, and the
// interfaces implemented by the cache, store, blob, and feed adapters.
package domain

import "time"

// PriceLevel is a single price+size entry in an order book.
type PriceLevel struct {
	Price float64
	Size  float64
}

// BookSnapshot is a full view of bids and asks for one instrument, most
// favorable price first on each side. Incremental feed deltas are normalized
// to a full snapshot by the platform client before reaching this type.
type BookSnapshot struct {
	Instrument string
	Bids       []PriceLevel
	Asks       []PriceLevel
	Timestamp  time.Time
}

// TradeSide distinguishes taker buys from taker sells.
type TradeSide string

const (
	SideBuy  TradeSide = "buy"
	SideSell TradeSide = "sell"
)

// TradeEvent is a single public trade execution. Cost is the notional value
// (price × size). Timestamp carries the exchange's trade time; the retention
// window stamps its own processing-time clock on insertion.
type TradeEvent struct {
	Instrument string
	Side       TradeSide
	Price      float64
	Size       float64
	Cost       float64
	Timestamp  time.Time
}

// FeedMessage is one inbound message from a feed subscription. Exactly one of
// Book or Trades is populated, matching the subscription's feed type.
type FeedMessage struct {
	Book   *BookSnapshot
	Trades []TradeEvent
}
