package publish

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantpulse/microflow/internal/domain"
)

func ptr(v float64) *float64 { return &v }

type staticReader map[string]domain.FeatureRecord

func (r staticReader) ReadAll() map[string]domain.FeatureRecord {
	out := make(map[string]domain.FeatureRecord, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestPublisher(t *testing.T, reader Reader) (*Publisher, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "features.json")
	cfg := Config{Path: path, Interval: 10 * time.Second}
	return NewPublisher(reader, cfg, testLogger()), path
}

func TestPublishOnceWritesSnapshotFile(t *testing.T) {
	updated := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	reader := staticReader{
		"BTC": {OrderBookImbalance: ptr(0.1912), TakerBuySellRatio: ptr(1.5), LastUpdate: updated},
		"ETH": {},
	}
	p, path := newTestPublisher(t, reader)

	require.NoError(t, p.publishOnce(context.Background()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var got map[string]map[string]any
	require.NoError(t, json.Unmarshal(data, &got))
	require.Len(t, got, 2)

	btc := got["BTC"]
	assert.Equal(t, 0.1912, btc["order_book_imbalance"])
	assert.Equal(t, 1.5, btc["taker_buy_sell_ratio"])
	assert.Equal(t, "2026-08-31T12:00:00Z", btc["last_update"])

	// Instruments with no data yet appear with every field omitted.
	assert.Empty(t, got["ETH"])
}

func TestPublishOnceOverwritesAtomically(t *testing.T) {
	reader := staticReader{"BTC": {OrderBookImbalance: ptr(0.5)}}
	p, path := newTestPublisher(t, reader)

	require.NoError(t, p.publishOnce(context.Background()))
	require.NoError(t, p.publishOnce(context.Background()))

	// No temp files are left behind next to the snapshot.
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, filepath.Base(path), entries[0].Name())
}

func TestPublishOnceCreatesParentDir(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "out", "features.json")
	p := NewPublisher(staticReader{}, Config{Path: path, Interval: time.Second}, testLogger())

	require.NoError(t, p.publishOnce(context.Background()))

	_, err := os.Stat(path)
	assert.NoError(t, err)
}

type recordingCache struct {
	mu      sync.Mutex
	records map[string]domain.FeatureRecord
	err     error
}

func (c *recordingCache) SetRecord(ctx context.Context, instrument string, rec domain.FeatureRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	if c.records == nil {
		c.records = map[string]domain.FeatureRecord{}
	}
	c.records[instrument] = rec
	return nil
}

func (c *recordingCache) GetRecord(ctx context.Context, instrument string) (domain.FeatureRecord, error) {
	return domain.FeatureRecord{}, domain.ErrNotFound
}

func (c *recordingCache) GetRecords(ctx context.Context, instruments []string) (map[string]domain.FeatureRecord, error) {
	return nil, nil
}

type recordingBus struct {
	mu       sync.Mutex
	payloads [][]byte
}

func (b *recordingBus) Publish(ctx context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.payloads = append(b.payloads, payload)
	return nil
}

func (b *recordingBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	return nil, errors.New("not implemented")
}

func TestPublishOnceFansOutToSinks(t *testing.T) {
	reader := staticReader{"BTC": {OrderBookImbalance: ptr(0.25), LastUpdate: time.Now().UTC()}}
	cache := &recordingCache{}
	bus := &recordingBus{}

	p, _ := newTestPublisher(t, reader)
	p.WithCache(cache).WithBus(bus, "microflow:snapshots")

	require.NoError(t, p.publishOnce(context.Background()))

	require.Contains(t, cache.records, "BTC")
	assert.Equal(t, 0.25, *cache.records["BTC"].OrderBookImbalance)

	require.Len(t, bus.payloads, 1)
	var event struct {
		ID          string `json:"id"`
		Instruments int    `json:"instruments"`
	}
	require.NoError(t, json.Unmarshal(bus.payloads[0], &event))
	assert.NotEmpty(t, event.ID)
	assert.Equal(t, 1, event.Instruments)
}

func TestPublishOnceSinkFailureDoesNotFailPublish(t *testing.T) {
	reader := staticReader{"BTC": {OrderBookImbalance: ptr(0.25)}}
	cache := &recordingCache{err: errors.New("redis: connection refused")}

	p, path := newTestPublisher(t, reader)
	p.WithCache(cache)

	require.NoError(t, p.publishOnce(context.Background()))

	_, err := os.Stat(path)
	assert.NoError(t, err)
}

func TestRunPublishesPeriodicallyUntilCancelled(t *testing.T) {
	reader := staticReader{"BTC": {OrderBookImbalance: ptr(0.1)}}
	path := filepath.Join(t.TempDir(), "features.json")
	p := NewPublisher(reader, Config{Path: path, Interval: 10 * time.Millisecond}, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	require.Eventually(t, func() bool {
		_, err := os.Stat(path)
		return err == nil
	}, time.Second, 5*time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}
