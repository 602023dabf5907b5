// Package bybit subscribes to the Bybit v5 public linear WebSocket stream and
// normalizes its order-book and trade frames into domain types. Order-book
// deltas are folded into a locally maintained book so consumers only ever see
// full snapshots.
package bybit

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/quantpulse/microflow/internal/domain"
)

const (
	// DefaultWSURL is the Bybit v5 public stream for linear perpetuals.
	DefaultWSURL = "wss://stream.bybit.com/v5/public/linear"

	// DefaultDepth is the order-book depth subscribed to and emitted.
	DefaultDepth = 50

	// DefaultQuoteSuffix maps an instrument like "BTC" to the exchange
	// symbol "BTCUSDT".
	DefaultQuoteSuffix = "USDT"

	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// pingPeriod sends application-level pings at this interval. Bybit
	// drops connections silent for more than 30 seconds.
	pingPeriod = 20 * time.Second

	handshakeTimeout = 15 * time.Second
)

// Dialer opens one WebSocket connection per subscription. It implements
// domain.FeedDialer.
type Dialer struct {
	wsURL       string
	depth       int
	quoteSuffix string
}

// Option adjusts a Dialer.
type Option func(*Dialer)

// WithURL overrides the stream endpoint, e.g. for the testnet.
func WithURL(url string) Option {
	return func(d *Dialer) { d.wsURL = url }
}

// WithDepth sets the order-book subscription depth.
func WithDepth(depth int) Option {
	return func(d *Dialer) { d.depth = depth }
}

// WithQuoteSuffix sets the quote currency appended to instrument names.
func WithQuoteSuffix(suffix string) Option {
	return func(d *Dialer) { d.quoteSuffix = suffix }
}

// NewDialer creates a Dialer with the public linear defaults.
func NewDialer(opts ...Option) *Dialer {
	d := &Dialer{
		wsURL:       DefaultWSURL,
		depth:       DefaultDepth,
		quoteSuffix: DefaultQuoteSuffix,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Symbol returns the exchange symbol for an instrument, e.g. "BTC" → "BTCUSDT".
func (d *Dialer) Symbol(instrument string) string {
	return strings.ToUpper(instrument) + d.quoteSuffix
}

// topic builds the subscription topic for an (instrument, feed) pair.
func (d *Dialer) topic(instrument string, feed domain.FeedType) (string, error) {
	switch feed {
	case domain.FeedOrderBook:
		return fmt.Sprintf("orderbook.%d.%s", d.depth, d.Symbol(instrument)), nil
	case domain.FeedTrades:
		return fmt.Sprintf("publicTrade.%s", d.Symbol(instrument)), nil
	default:
		return "", fmt.Errorf("bybit: unknown feed type %q", feed)
	}
}

// Dial connects, subscribes to the single topic for the pair, and returns the
// live subscription. The caller owns the subscription and must Close it.
func (d *Dialer) Dial(ctx context.Context, instrument string, feed domain.FeedType) (domain.Subscription, error) {
	topic, err := d.topic(instrument, feed)
	if err != nil {
		return nil, err
	}

	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, d.wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("bybit: connect %s: %w", d.wsURL, err)
	}

	sub := &subscription{
		conn:       conn,
		instrument: instrument,
		feed:       feed,
		topic:      topic,
		depth:      d.depth,
		done:       make(chan struct{}),
	}

	if err := sub.send(wsRequest{Op: "subscribe", Args: []string{topic}}); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("bybit: subscribe %s: %w", topic, err)
	}

	go sub.pingLoop()

	return sub, nil
}

var _ domain.FeedDialer = (*Dialer)(nil)

// subscription is one live topic on its own connection. Next is the only
// reader; send serializes writes between Next's caller and the ping loop.
type subscription struct {
	conn       *websocket.Conn
	instrument string
	feed       domain.FeedType
	topic      string
	depth      int

	writeMu   sync.Mutex
	closeOnce sync.Once
	done      chan struct{}

	// Local book, folded from snapshot and delta frames. Keyed by the
	// exchange's price string so delta removals match exactly.
	bids map[string]domain.PriceLevel
	asks map[string]domain.PriceLevel
}

// Next blocks until a data frame for the topic arrives, the context ends, or
// the connection fails. Command acknowledgements and pongs are consumed
// silently. Undecodable frames are reported wrapped in
// domain.ErrMalformedMessage and leave the connection usable.
func (s *subscription) Next(ctx context.Context) (domain.FeedMessage, error) {
	// Unblock the read when the context ends. gorilla reads are not
	// context-aware, so force a read deadline in the past.
	stop := context.AfterFunc(ctx, func() {
		_ = s.conn.SetReadDeadline(time.Unix(0, 0))
	})
	defer stop()

	if deadline, ok := ctx.Deadline(); ok {
		_ = s.conn.SetReadDeadline(deadline)
	} else {
		_ = s.conn.SetReadDeadline(time.Time{})
	}

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return domain.FeedMessage{}, ctxErr
			}
			return domain.FeedMessage{}, fmt.Errorf("bybit: read %s: %v: %w", s.topic, err, domain.ErrFeedDisconnect)
		}

		msg, ok, err := s.decode(raw)
		if err != nil {
			return domain.FeedMessage{}, err
		}
		if !ok {
			continue
		}
		return msg, nil
	}
}

// decode parses one frame. ok is false for frames that carry no market data
// (acks, pongs, empty deltas).
func (s *subscription) decode(raw []byte) (domain.FeedMessage, bool, error) {
	var env wsEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return domain.FeedMessage{}, false, fmt.Errorf("bybit: envelope: %v: %w", err, domain.ErrMalformedMessage)
	}

	// Command responses. A rejected subscribe means the stream will never
	// produce data, so treat it as a connection failure.
	if env.Op != "" {
		if env.Success != nil && !*env.Success {
			return domain.FeedMessage{}, false, fmt.Errorf("bybit: %s rejected: %s: %w", env.Op, env.RetMsg, domain.ErrFeedDisconnect)
		}
		return domain.FeedMessage{}, false, nil
	}

	switch {
	case strings.HasPrefix(env.Topic, "orderbook."):
		snap, ok, err := s.applyBook(env)
		if err != nil {
			return domain.FeedMessage{}, false, err
		}
		if !ok {
			return domain.FeedMessage{}, false, nil
		}
		return domain.FeedMessage{Book: snap}, true, nil

	case strings.HasPrefix(env.Topic, "publicTrade."):
		var data []tradeData
		if err := json.Unmarshal(env.Data, &data); err != nil {
			return domain.FeedMessage{}, false, fmt.Errorf("bybit: trades: %v: %w", err, domain.ErrMalformedMessage)
		}
		trades, err := toDomainTrades(s.instrument, data)
		if err != nil {
			return domain.FeedMessage{}, false, fmt.Errorf("bybit: trades: %v: %w", err, domain.ErrMalformedMessage)
		}
		if len(trades) == 0 {
			return domain.FeedMessage{}, false, nil
		}
		return domain.FeedMessage{Trades: trades}, true, nil
	}

	// Unknown topics are ignored rather than treated as malformed.
	return domain.FeedMessage{}, false, nil
}

// applyBook folds a snapshot or delta frame into the local book and returns
// the resulting full view. A delta before any snapshot is dropped; the
// exchange always sends a snapshot first.
func (s *subscription) applyBook(env wsEnvelope) (*domain.BookSnapshot, bool, error) {
	var data orderbookData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return nil, false, fmt.Errorf("bybit: orderbook: %v: %w", err, domain.ErrMalformedMessage)
	}

	switch env.Type {
	case "snapshot":
		s.bids = make(map[string]domain.PriceLevel, len(data.Bids))
		s.asks = make(map[string]domain.PriceLevel, len(data.Asks))
	case "delta":
		if s.bids == nil {
			return nil, false, nil
		}
	default:
		return nil, false, fmt.Errorf("bybit: orderbook type %q: %w", env.Type, domain.ErrMalformedMessage)
	}

	if err := applyLevels(s.bids, data.Bids); err != nil {
		return nil, false, fmt.Errorf("bybit: orderbook bids: %v: %w", err, domain.ErrMalformedMessage)
	}
	if err := applyLevels(s.asks, data.Asks); err != nil {
		return nil, false, fmt.Errorf("bybit: orderbook asks: %v: %w", err, domain.ErrMalformedMessage)
	}

	return s.snapshot(time.UnixMilli(env.TS).UTC()), true, nil
}

// applyLevels merges [price, size] pairs into one book side. Zero size
// removes the level.
func applyLevels(side map[string]domain.PriceLevel, pairs [][]string) error {
	for _, pair := range pairs {
		price, size, err := parseLevel(pair)
		if err != nil {
			return err
		}
		if size == 0 {
			delete(side, pair[0])
			continue
		}
		side[pair[0]] = domain.PriceLevel{Price: price, Size: size}
	}
	return nil
}

// snapshot renders the current book, best price first on each side, capped
// at the subscribed depth.
func (s *subscription) snapshot(ts time.Time) *domain.BookSnapshot {
	bids := make([]domain.PriceLevel, 0, len(s.bids))
	for _, l := range s.bids {
		bids = append(bids, l)
	}
	sort.Slice(bids, func(i, j int) bool { return bids[i].Price > bids[j].Price })
	if len(bids) > s.depth {
		bids = bids[:s.depth]
	}

	asks := make([]domain.PriceLevel, 0, len(s.asks))
	for _, l := range s.asks {
		asks = append(asks, l)
	}
	sort.Slice(asks, func(i, j int) bool { return asks[i].Price < asks[j].Price })
	if len(asks) > s.depth {
		asks = asks[:s.depth]
	}

	return &domain.BookSnapshot{
		Instrument: s.instrument,
		Bids:       bids,
		Asks:       asks,
		Timestamp:  ts,
	}
}

// Close unsubscribes and tears down the connection. Safe to call more than
// once and concurrently with Next.
func (s *subscription) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		_ = s.send(wsRequest{Op: "unsubscribe", Args: []string{s.topic}})

		s.writeMu.Lock()
		_ = s.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait),
		)
		s.writeMu.Unlock()

		err = s.conn.Close()
	})
	return err
}

// send writes one JSON command, serialized against the ping loop.
func (s *subscription) send(req wsRequest) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteJSON(req)
}

// pingLoop keeps the stream alive with Bybit's application-level ping.
func (s *subscription) pingLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			if err := s.send(wsRequest{Op: "ping"}); err != nil {
				return
			}
		}
	}
}
