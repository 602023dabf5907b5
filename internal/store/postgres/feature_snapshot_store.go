package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quantpulse/microflow/internal/domain"
)

// FeatureSnapshotStore implements domain.SnapshotStore using PostgreSQL. One
// row per instrument holds the latest published record; history lives in the
// blob archive, not here.
type FeatureSnapshotStore struct {
	pool *pgxpool.Pool
}

// NewFeatureSnapshotStore creates a store backed by the given connection pool.
func NewFeatureSnapshotStore(pool *pgxpool.Pool) *FeatureSnapshotStore {
	return &FeatureSnapshotStore{pool: pool}
}

// UpsertBatch replaces each instrument's row with the published record in a
// single batch.
func (s *FeatureSnapshotStore) UpsertBatch(ctx context.Context, records map[string]domain.FeatureRecord, publishedAt time.Time) error {
	if len(records) == 0 {
		return nil
	}

	const query = `
		INSERT INTO feature_snapshots (
			instrument, order_book_imbalance, taker_buy_sell_ratio,
			last_update, published_at
		) VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (instrument) DO UPDATE SET
			order_book_imbalance = EXCLUDED.order_book_imbalance,
			taker_buy_sell_ratio = EXCLUDED.taker_buy_sell_ratio,
			last_update          = EXCLUDED.last_update,
			published_at         = EXCLUDED.published_at`

	batch := &pgx.Batch{}
	for inst, rec := range records {
		var lastUpdate any
		if !rec.LastUpdate.IsZero() {
			lastUpdate = rec.LastUpdate
		}
		batch.Queue(query,
			inst, rec.OrderBookImbalance, rec.TakerBuySellRatio,
			lastUpdate, publishedAt,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: upsert feature snapshot batch item %d: %w", i, err)
		}
	}
	return nil
}

// GetAll returns the latest stored record per instrument.
func (s *FeatureSnapshotStore) GetAll(ctx context.Context) (map[string]domain.FeatureRecord, error) {
	const query = `
		SELECT instrument, order_book_imbalance, taker_buy_sell_ratio, last_update
		FROM feature_snapshots`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("postgres: query feature snapshots: %w", err)
	}
	defer rows.Close()

	out := make(map[string]domain.FeatureRecord)
	for rows.Next() {
		var (
			inst       string
			rec        domain.FeatureRecord
			lastUpdate *time.Time
		)
		if err := rows.Scan(&inst, &rec.OrderBookImbalance, &rec.TakerBuySellRatio, &lastUpdate); err != nil {
			return nil, fmt.Errorf("postgres: scan feature snapshot: %w", err)
		}
		if lastUpdate != nil {
			rec.LastUpdate = lastUpdate.UTC()
		}
		out[inst] = rec
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate feature snapshots: %w", err)
	}
	return out, nil
}

// Compile-time interface check.
var _ domain.SnapshotStore = (*FeatureSnapshotStore)(nil)
