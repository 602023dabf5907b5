// Package monitor watches the feature store for instruments that have gone
// quiet. A healthy stream updates every record continuously; a record whose
// LastUpdate falls behind the staleness threshold means the upstream feed is
// wedged even though the workers look alive, so the watcher raises an alert.
package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/quantpulse/microflow/internal/domain"
	"github.com/quantpulse/microflow/internal/notify"
)

// Alerter is the alert surface the watcher needs. *notify.Notifier satisfies
// it.
type Alerter interface {
	Notify(ctx context.Context, event, title, message string) error
}

// Reader is the view of the feature store the watcher needs.
type Reader interface {
	ReadAll() map[string]domain.FeatureRecord
}

// Config holds the watcher settings.
type Config struct {
	// StaleAfter is how long a record may go without an update before it
	// counts as stale.
	StaleAfter time.Duration

	// CheckInterval is how often the watcher scans the store.
	CheckInterval time.Duration
}

// Watcher periodically scans for stale records. Each instrument alerts at
// most once per staleness episode; recovery re-arms the alert.
type Watcher struct {
	reader  Reader
	alerter Alerter
	cfg     Config
	logger  *slog.Logger

	// alerted tracks instruments already reported in the current episode.
	// Only the watcher goroutine touches it.
	alerted map[string]bool
}

// NewWatcher creates a watcher over the given store view.
func NewWatcher(reader Reader, alerter Alerter, cfg Config, logger *slog.Logger) *Watcher {
	return &Watcher{
		reader:  reader,
		alerter: alerter,
		cfg:     cfg,
		logger:  logger.With(slog.String("component", "staleness_watcher")),
		alerted: make(map[string]bool),
	}
}

// Run scans on every tick until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	w.logger.InfoContext(ctx, "staleness watcher started",
		slog.Duration("stale_after", w.cfg.StaleAfter),
		slog.Duration("check_interval", w.cfg.CheckInterval),
	)

	ticker := time.NewTicker(w.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w.check(ctx, time.Now())
		}
	}
}

// check scans once. Records that never received data (zero LastUpdate) are
// skipped: they are a startup condition, not a regression.
func (w *Watcher) check(ctx context.Context, now time.Time) {
	for inst, rec := range w.reader.ReadAll() {
		if rec.LastUpdate.IsZero() {
			continue
		}

		age := now.Sub(rec.LastUpdate)
		if age < w.cfg.StaleAfter {
			if w.alerted[inst] {
				w.logger.InfoContext(ctx, "instrument recovered", slog.String("instrument", inst))
				delete(w.alerted, inst)
			}
			continue
		}

		if w.alerted[inst] {
			continue
		}
		w.alerted[inst] = true

		w.logger.WarnContext(ctx, "instrument stale",
			slog.String("instrument", inst),
			slog.Duration("age", age),
		)
		if w.alerter == nil {
			continue
		}
		msg := fmt.Sprintf("No feature update for %s in %s (threshold %s).",
			inst, age.Round(time.Second), w.cfg.StaleAfter)
		if err := w.alerter.Notify(ctx, notify.EventFeatureStale, "Stale feature data", msg); err != nil {
			w.logger.ErrorContext(ctx, "stale alert failed",
				slog.String("instrument", inst),
				slog.String("error", err.Error()),
			)
		}
	}
}
