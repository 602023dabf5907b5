// Package feed runs the streaming side of the engine: one worker per
// (instrument, feed type) subscription, supervised as a group. Workers feed
// the matching aggregator on every inbound message and write the result into
// the shared feature store; transient failures are absorbed locally with
// bounded backoff and never surface beyond a log line.
package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/quantpulse/microflow/internal/domain"
	"github.com/quantpulse/microflow/internal/feature"
)

// State is the lifecycle state of a stream worker.
type State int32

const (
	StateConnecting State = iota
	StateStreaming
	StateBackingOff
	StateStopped
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateStreaming:
		return "streaming"
	case StateBackingOff:
		return "backing_off"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// WorkerConfig bounds the worker's recovery behavior.
type WorkerConfig struct {
	// BackoffFloor is the initial reconnect delay; BackoffCeiling caps the
	// exponential growth. A streaming period that processed at least one
	// message resets the delay to the floor.
	BackoffFloor   time.Duration
	BackoffCeiling time.Duration

	// IdleTimeout treats a subscription that stays silent for this long as a
	// connection failure. Zero disables the idle check.
	IdleTimeout time.Duration

	// TradeRetention is the taker-ratio window length for trade workers.
	TradeRetention time.Duration
}

// Worker owns one feed subscription for one (instrument, feed type) pair. It
// cycles connecting → streaming → backing off until the supervisor cancels
// its context, at which point it unsubscribes and stops. No feed error is
// ever fatal; only cancellation ends the run loop.
type Worker struct {
	instrument string
	feed       domain.FeedType
	dialer     domain.FeedDialer
	store      *feature.Store
	trades     *feature.TradeAggregator // nil for order-book workers
	cfg        WorkerConfig
	logger     *slog.Logger
	state      atomic.Int32
}

// NewWorker creates a worker for the given pair. Trade workers get their own
// retention window; it lives as long as the worker.
func NewWorker(instrument string, feed domain.FeedType, dialer domain.FeedDialer, store *feature.Store, cfg WorkerConfig, logger *slog.Logger) *Worker {
	w := &Worker{
		instrument: instrument,
		feed:       feed,
		dialer:     dialer,
		store:      store,
		cfg:        cfg,
		logger: logger.With(
			slog.String("component", "stream_worker"),
			slog.String("instrument", instrument),
			slog.String("feed", string(feed)),
		),
	}
	if feed == domain.FeedTrades {
		w.trades = feature.NewTradeAggregator(cfg.TradeRetention)
	}
	return w
}

// Instrument returns the instrument this worker serves.
func (w *Worker) Instrument() string { return w.instrument }

// Feed returns the feed type this worker serves.
func (w *Worker) Feed() domain.FeedType { return w.feed }

// State returns the current lifecycle state. Safe for concurrent use.
func (w *Worker) State() State { return State(w.state.Load()) }

func (w *Worker) setState(s State) { w.state.Store(int32(s)) }

// Run executes the worker loop until ctx is cancelled. It only ever returns
// ctx.Err(): every feed-level failure is handled by backing off and
// resubscribing.
func (w *Worker) Run(ctx context.Context) error {
	delay := w.cfg.BackoffFloor

	for {
		if ctx.Err() != nil {
			w.setState(StateStopped)
			return ctx.Err()
		}

		w.setState(StateConnecting)
		sub, err := w.dialer.Dial(ctx, w.instrument, w.feed)
		if err != nil {
			if ctx.Err() != nil {
				w.setState(StateStopped)
				return ctx.Err()
			}
			w.logger.WarnContext(ctx, "subscribe failed",
				slog.String("error", err.Error()),
				slog.Duration("retry_in", delay),
			)
			if stopped := w.backOff(ctx, delay); stopped {
				return ctx.Err()
			}
			delay = nextDelay(delay, w.cfg.BackoffFloor, w.cfg.BackoffCeiling)
			continue
		}

		w.setState(StateStreaming)
		processed, streamErr := w.stream(ctx, sub)
		_ = sub.Close()

		if ctx.Err() != nil {
			w.setState(StateStopped)
			return ctx.Err()
		}

		// A period that made progress resets the backoff to its floor.
		if processed > 0 {
			delay = w.cfg.BackoffFloor
		}
		w.logger.WarnContext(ctx, "stream interrupted",
			slog.String("error", streamErr.Error()),
			slog.Int("messages_processed", processed),
			slog.Duration("retry_in", delay),
		)
		if stopped := w.backOff(ctx, delay); stopped {
			return ctx.Err()
		}
		delay = nextDelay(delay, w.cfg.BackoffFloor, w.cfg.BackoffCeiling)
	}
}

// stream consumes messages until a connection-level error or cancellation.
// Malformed single messages are logged and skipped without changing state.
func (w *Worker) stream(ctx context.Context, sub domain.Subscription) (int, error) {
	processed := 0
	for {
		msgCtx := ctx
		cancel := func() {}
		if w.cfg.IdleTimeout > 0 {
			msgCtx, cancel = context.WithTimeout(ctx, w.cfg.IdleTimeout)
		}
		msg, err := sub.Next(msgCtx)
		cancel()

		if err != nil {
			if ctx.Err() != nil {
				return processed, ctx.Err()
			}
			if errors.Is(err, domain.ErrMalformedMessage) {
				w.logger.DebugContext(ctx, "skipping malformed message",
					slog.String("error", err.Error()),
				)
				continue
			}
			if errors.Is(err, context.DeadlineExceeded) {
				return processed, fmt.Errorf("feed: no message for %s: %w", w.cfg.IdleTimeout, domain.ErrFeedIdle)
			}
			return processed, err
		}

		w.apply(msg)
		processed++
	}
}

// apply feeds one message through the matching aggregator and writes the
// result into the feature store.
func (w *Worker) apply(msg domain.FeedMessage) {
	switch w.feed {
	case domain.FeedOrderBook:
		if msg.Book == nil {
			return
		}
		imb, ok := feature.Imbalance(*msg.Book)
		if !ok {
			// Empty book side: keep the previous value.
			return
		}
		w.store.Update(w.instrument, w.feed, domain.FeatureUpdate{Imbalance: &imb})
	case domain.FeedTrades:
		ratio := w.trades.Update(msg.Trades, time.Now())
		w.store.Update(w.instrument, w.feed, domain.FeatureUpdate{TakerRatio: ratio})
	}
}

// backOff waits for the given delay or until cancellation. It reports whether
// the worker was stopped while waiting.
func (w *Worker) backOff(ctx context.Context, delay time.Duration) bool {
	w.setState(StateBackingOff)
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		w.setState(StateStopped)
		return true
	case <-timer.C:
		return false
	}
}

// nextDelay doubles the current delay, clamped to [floor, ceiling].
func nextDelay(cur, floor, ceiling time.Duration) time.Duration {
	next := cur * 2
	if next < floor {
		next = floor
	}
	if next > ceiling {
		next = ceiling
	}
	return next
}
