package monitor

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantpulse/microflow/internal/domain"
)

type staticReader map[string]domain.FeatureRecord

func (r staticReader) ReadAll() map[string]domain.FeatureRecord {
	out := make(map[string]domain.FeatureRecord, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

type recordingAlerter struct {
	events []string
	titles []string
}

func (a *recordingAlerter) Notify(ctx context.Context, event, title, message string) error {
	a.events = append(a.events, event)
	a.titles = append(a.titles, title)
	return nil
}

func newTestWatcher(reader Reader, alerter Alerter) *Watcher {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewWatcher(reader, alerter, Config{
		StaleAfter:    time.Minute,
		CheckInterval: time.Second,
	}, logger)
}

func TestWatcherAlertsOnStaleRecord(t *testing.T) {
	now := time.Now()
	reader := staticReader{
		"BTC": {LastUpdate: now.Add(-2 * time.Minute)},
		"ETH": {LastUpdate: now.Add(-time.Second)},
	}
	alerter := &recordingAlerter{}
	w := newTestWatcher(reader, alerter)

	w.check(context.Background(), now)

	require.Len(t, alerter.events, 1)
	assert.Equal(t, "feature_stale", alerter.events[0])
}

func TestWatcherAlertsOncePerEpisode(t *testing.T) {
	now := time.Now()
	reader := staticReader{"BTC": {LastUpdate: now.Add(-2 * time.Minute)}}
	alerter := &recordingAlerter{}
	w := newTestWatcher(reader, alerter)

	w.check(context.Background(), now)
	w.check(context.Background(), now.Add(time.Second))
	w.check(context.Background(), now.Add(2*time.Second))

	assert.Len(t, alerter.events, 1)
}

func TestWatcherReArmsAfterRecovery(t *testing.T) {
	now := time.Now()
	reader := staticReader{"BTC": {LastUpdate: now.Add(-2 * time.Minute)}}
	alerter := &recordingAlerter{}
	w := newTestWatcher(reader, alerter)

	w.check(context.Background(), now)
	require.Len(t, alerter.events, 1)

	// Fresh data arrives, then goes stale again.
	reader["BTC"] = domain.FeatureRecord{LastUpdate: now}
	w.check(context.Background(), now.Add(time.Second))

	reader["BTC"] = domain.FeatureRecord{LastUpdate: now}
	w.check(context.Background(), now.Add(2*time.Minute))

	assert.Len(t, alerter.events, 2)
}

func TestWatcherSkipsRecordsWithNoDataYet(t *testing.T) {
	reader := staticReader{"BTC": {}}
	alerter := &recordingAlerter{}
	w := newTestWatcher(reader, alerter)

	w.check(context.Background(), time.Now())

	assert.Empty(t, alerter.events)
}
