package bybit

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/quantpulse/microflow/internal/domain"
)

// wsRequest is the command envelope for the Bybit v5 public stream.
type wsRequest struct {
	Op   string   `json:"op"`
	Args []string `json:"args,omitempty"`
}

// wsEnvelope is the outer shape of every inbound frame. Data frames carry
// Topic and Type; command acknowledgements carry Op and Success instead.
type wsEnvelope struct {
	Topic   string          `json:"topic"`
	Type    string          `json:"type"` // "snapshot" or "delta" on orderbook topics
	Op      string          `json:"op"`
	Success *bool           `json:"success"`
	RetMsg  string          `json:"ret_msg"`
	TS      int64           `json:"ts"` // ms
	Data    json.RawMessage `json:"data"`
}

// orderbookData is the payload of orderbook.{depth}.{symbol} frames. Levels
// are [price, size] string pairs; a zero size in a delta removes the level.
type orderbookData struct {
	Symbol   string     `json:"s"`
	Bids     [][]string `json:"b"`
	Asks     [][]string `json:"a"`
	UpdateID int64      `json:"u"`
	Seq      int64      `json:"seq"`
}

// tradeData is one execution in a publicTrade.{symbol} frame.
type tradeData struct {
	Timestamp int64  `json:"T"` // ms
	Symbol    string `json:"s"`
	Side      string `json:"S"` // "Buy" or "Sell"
	Size      string `json:"v"`
	Price     string `json:"p"`
}

// parseLevel decodes one [price, size] pair.
func parseLevel(pair []string) (price, size float64, err error) {
	if len(pair) < 2 {
		return 0, 0, fmt.Errorf("level has %d fields, want 2", len(pair))
	}
	price, err = strconv.ParseFloat(pair[0], 64)
	if err != nil {
		return 0, 0, fmt.Errorf("price %q: %w", pair[0], err)
	}
	size, err = strconv.ParseFloat(pair[1], 64)
	if err != nil {
		return 0, 0, fmt.Errorf("size %q: %w", pair[1], err)
	}
	return price, size, nil
}

// toDomainTrades converts a publicTrade payload. Cost is the quote notional,
// price times size.
func toDomainTrades(instrument string, data []tradeData) ([]domain.TradeEvent, error) {
	trades := make([]domain.TradeEvent, 0, len(data))
	for _, t := range data {
		price, err := strconv.ParseFloat(t.Price, 64)
		if err != nil {
			return nil, fmt.Errorf("trade price %q: %w", t.Price, err)
		}
		size, err := strconv.ParseFloat(t.Size, 64)
		if err != nil {
			return nil, fmt.Errorf("trade size %q: %w", t.Size, err)
		}

		var side domain.TradeSide
		switch strings.ToLower(t.Side) {
		case "buy":
			side = domain.SideBuy
		case "sell":
			side = domain.SideSell
		default:
			return nil, fmt.Errorf("trade side %q", t.Side)
		}

		trades = append(trades, domain.TradeEvent{
			Instrument: instrument,
			Side:       side,
			Price:      price,
			Size:       size,
			Cost:       price * size,
			Timestamp:  time.UnixMilli(t.Timestamp).UTC(),
		})
	}
	return trades, nil
}
