// Package publish periodically renders the feature store into a JSON
// snapshot. The snapshot file on local disk is the primary output; optional
// sinks (cache, database, blob storage, signal bus) receive the same payload
// when configured. A failed publish cycle is logged and the next tick tries
// again.
package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/quantpulse/microflow/internal/domain"
)

// Reader is the view of the feature store the publisher needs.
type Reader interface {
	ReadAll() map[string]domain.FeatureRecord
}

// Config holds the publisher's required settings.
type Config struct {
	// Path is the snapshot file destination.
	Path string

	// Interval is the publish period.
	Interval time.Duration
}

// snapshotEntry is the wire form of one instrument's features. Absent
// features are omitted rather than serialized as null.
type snapshotEntry struct {
	OrderBookImbalance *float64 `json:"order_book_imbalance,omitempty"`
	TakerBuySellRatio  *float64 `json:"taker_buy_sell_ratio,omitempty"`
	LastUpdate         string   `json:"last_update,omitempty"`
}

// publishEvent is the signal-bus notification emitted after each successful
// file write.
type publishEvent struct {
	ID          string `json:"id"`
	GeneratedAt string `json:"generated_at"`
	Instruments int    `json:"instruments"`
	Path        string `json:"path"`
}

// Publisher renders and distributes snapshots. Construct with NewPublisher,
// attach optional sinks with the With methods, then call Run.
type Publisher struct {
	reader Reader
	cfg    Config
	logger *slog.Logger

	cache      domain.FeatureCache
	store      domain.SnapshotStore
	blob       domain.BlobWriter
	blobKey    string
	bus        domain.SignalBus
	busChannel string
}

// NewPublisher creates a publisher that writes to cfg.Path every
// cfg.Interval.
func NewPublisher(reader Reader, cfg Config, logger *slog.Logger) *Publisher {
	return &Publisher{
		reader: reader,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "snapshot_publisher")),
	}
}

// WithCache mirrors each published record into the feature cache.
func (p *Publisher) WithCache(cache domain.FeatureCache) *Publisher {
	p.cache = cache
	return p
}

// WithStore persists each published batch to the snapshot store.
func (p *Publisher) WithStore(store domain.SnapshotStore) *Publisher {
	p.store = store
	return p
}

// WithBlob uploads each snapshot to blob storage under the given key.
func (p *Publisher) WithBlob(blob domain.BlobWriter, key string) *Publisher {
	p.blob = blob
	p.blobKey = key
	return p
}

// WithBus announces each successful publish on the given channel.
func (p *Publisher) WithBus(bus domain.SignalBus, channel string) *Publisher {
	p.bus = bus
	p.busChannel = channel
	return p
}

// Run publishes on every tick until ctx is cancelled. Publish failures are
// never fatal; the loop logs and keeps going.
func (p *Publisher) Run(ctx context.Context) error {
	p.logger.InfoContext(ctx, "snapshot publisher started",
		slog.String("path", p.cfg.Path),
		slog.Duration("interval", p.cfg.Interval),
	)

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.InfoContext(ctx, "snapshot publisher stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := p.publishOnce(ctx); err != nil {
				p.logger.ErrorContext(ctx, "publish failed", slog.String("error", err.Error()))
			}
		}
	}
}

// publishOnce renders the current store contents and distributes them. The
// file write is atomic: the payload lands in a temp file in the destination
// directory and is renamed over the target, so readers never observe a
// partial snapshot.
func (p *Publisher) publishOnce(ctx context.Context) error {
	records := p.reader.ReadAll()
	generatedAt := time.Now().UTC()

	payload := make(map[string]snapshotEntry, len(records))
	for inst, rec := range records {
		entry := snapshotEntry{
			OrderBookImbalance: rec.OrderBookImbalance,
			TakerBuySellRatio:  rec.TakerBuySellRatio,
		}
		if !rec.LastUpdate.IsZero() {
			entry.LastUpdate = rec.LastUpdate.UTC().Format(time.RFC3339)
		}
		payload[inst] = entry
	}

	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("publish: marshal snapshot: %w", err)
	}

	if err := p.writeFile(data); err != nil {
		return err
	}

	// Sink failures after the file write are logged individually so one
	// unhealthy sink does not block the others.
	if p.cache != nil {
		for inst, rec := range records {
			if err := p.cache.SetRecord(ctx, inst, rec); err != nil {
				p.logger.WarnContext(ctx, "cache sink failed",
					slog.String("instrument", inst),
					slog.String("error", err.Error()),
				)
				break
			}
		}
	}

	if p.store != nil {
		if err := p.store.UpsertBatch(ctx, records, generatedAt); err != nil {
			p.logger.WarnContext(ctx, "store sink failed", slog.String("error", err.Error()))
		}
	}

	if p.blob != nil {
		if err := p.blob.Put(ctx, p.blobKey, bytes.NewReader(data), "application/json"); err != nil {
			p.logger.WarnContext(ctx, "blob sink failed", slog.String("error", err.Error()))
		}
	}

	if p.bus != nil {
		event := publishEvent{
			ID:          uuid.NewString(),
			GeneratedAt: generatedAt.Format(time.RFC3339),
			Instruments: len(records),
			Path:        p.cfg.Path,
		}
		msg, err := json.Marshal(event)
		if err == nil {
			if err := p.bus.Publish(ctx, p.busChannel, msg); err != nil {
				p.logger.WarnContext(ctx, "bus sink failed", slog.String("error", err.Error()))
			}
		}
	}

	p.logger.DebugContext(ctx, "snapshot published",
		slog.Int("instruments", len(records)),
	)
	return nil
}

// writeFile performs the temp-then-rename write.
func (p *Publisher) writeFile(data []byte) error {
	dir := filepath.Dir(p.cfg.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("publish: create snapshot dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(p.cfg.Path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("publish: create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("publish: write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("publish: close temp file: %w", err)
	}

	if err := os.Rename(tmpName, p.cfg.Path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("publish: rename snapshot: %w", err)
	}
	return nil
}
