package domain

import (
	"context"
	"time"
)

// SnapshotStore persists the latest published feature record per instrument.
// Only the most recent record is kept; UpsertBatch replaces rows in place.
type SnapshotStore interface {
	UpsertBatch(ctx context.Context, records map[string]FeatureRecord, publishedAt time.Time) error
	GetAll(ctx context.Context) (map[string]FeatureRecord, error)
}
