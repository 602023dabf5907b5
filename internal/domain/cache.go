package domain

import "context"

// FeatureCache mirrors the latest feature record per instrument into a fast
// shared cache so read-only consumers (serve mode, dashboards) do not need
// the live engine in-process.
type FeatureCache interface {
	SetRecord(ctx context.Context, instrument string, rec FeatureRecord) error
	GetRecord(ctx context.Context, instrument string) (FeatureRecord, error)
	GetRecords(ctx context.Context, instruments []string) (map[string]FeatureRecord, error)
}

// SignalBus provides ephemeral pub/sub. The engine publishes a small event on
// every snapshot publish; downstream collaborators (alerting, dashboards)
// subscribe to react without polling the snapshot file.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}
