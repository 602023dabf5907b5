package feed

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/quantpulse/microflow/internal/domain"
	"github.com/quantpulse/microflow/internal/feature"
)

// Supervisor fans out one worker per (instrument, feed type) pair and runs
// them as a group. Workers are isolated: one pair failing or backing off
// never blocks the others. Cancelling the run context stops every worker.
type Supervisor struct {
	workers []*Worker
	logger  *slog.Logger
}

// NewSupervisor builds workers for every instrument crossed with both feed
// types. All workers share the dialer and the feature store.
func NewSupervisor(instruments []string, dialer domain.FeedDialer, store *feature.Store, cfg WorkerConfig, logger *slog.Logger) *Supervisor {
	workers := make([]*Worker, 0, len(instruments)*2)
	for _, inst := range instruments {
		for _, feed := range []domain.FeedType{domain.FeedOrderBook, domain.FeedTrades} {
			workers = append(workers, NewWorker(inst, feed, dialer, store, cfg, logger))
		}
	}
	return &Supervisor{
		workers: workers,
		logger:  logger.With(slog.String("component", "feed_supervisor")),
	}
}

// Run starts every worker and blocks until all of them have stopped. Workers
// only return on cancellation, so Run returns ctx.Err() once the group
// drains.
func (s *Supervisor) Run(ctx context.Context) error {
	s.logger.InfoContext(ctx, "starting stream workers", slog.Int("count", len(s.workers)))

	g, ctx := errgroup.WithContext(ctx)
	for _, w := range s.workers {
		g.Go(func() error {
			return w.Run(ctx)
		})
	}

	err := g.Wait()
	s.logger.InfoContext(ctx, "all stream workers stopped")
	return err
}

// Workers returns the supervised workers for status reporting.
func (s *Supervisor) Workers() []*Worker { return s.workers }
