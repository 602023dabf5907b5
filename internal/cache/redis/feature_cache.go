package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/quantpulse/microflow/internal/domain"
)

// FeatureCache implements domain.FeatureCache using one Redis hash per
// instrument.
//
// Key schema:
//
//	feature:{instrument} - hash with fields "imbalance", "taker_ratio",
//	                       "last_update" (unix nanoseconds)
//
// Absent features are deleted from the hash rather than stored as a sentinel,
// so readers can distinguish "no data" from any numeric value.
type FeatureCache struct {
	rdb *redis.Client
}

// NewFeatureCache creates a FeatureCache backed by the given Client.
func NewFeatureCache(c *Client) *FeatureCache {
	return &FeatureCache{rdb: c.Underlying()}
}

func featureKey(instrument string) string { return "feature:" + instrument }

// SetRecord replaces the instrument's cached record. Set and absent fields go
// through one pipeline so the hash never mixes two records.
func (fc *FeatureCache) SetRecord(ctx context.Context, instrument string, rec domain.FeatureRecord) error {
	key := featureKey(instrument)

	pipe := fc.rdb.TxPipeline()

	if rec.OrderBookImbalance != nil {
		pipe.HSet(ctx, key, "imbalance", strconv.FormatFloat(*rec.OrderBookImbalance, 'f', -1, 64))
	} else {
		pipe.HDel(ctx, key, "imbalance")
	}

	if rec.TakerBuySellRatio != nil {
		pipe.HSet(ctx, key, "taker_ratio", strconv.FormatFloat(*rec.TakerBuySellRatio, 'f', -1, 64))
	} else {
		pipe.HDel(ctx, key, "taker_ratio")
	}

	if !rec.LastUpdate.IsZero() {
		pipe.HSet(ctx, key, "last_update", strconv.FormatInt(rec.LastUpdate.UnixNano(), 10))
	} else {
		pipe.HDel(ctx, key, "last_update")
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set feature record %s: %w", instrument, err)
	}
	return nil
}

// GetRecord reads one instrument's cached record. It returns
// domain.ErrNotFound when the instrument has no hash at all.
func (fc *FeatureCache) GetRecord(ctx context.Context, instrument string) (domain.FeatureRecord, error) {
	vals, err := fc.rdb.HGetAll(ctx, featureKey(instrument)).Result()
	if err != nil {
		return domain.FeatureRecord{}, fmt.Errorf("redis: get feature record %s: %w", instrument, err)
	}
	if len(vals) == 0 {
		return domain.FeatureRecord{}, domain.ErrNotFound
	}
	return recordFromHash(vals), nil
}

// GetRecords reads many instruments in one pipeline. Instruments with no
// cached record are omitted from the result.
func (fc *FeatureCache) GetRecords(ctx context.Context, instruments []string) (map[string]domain.FeatureRecord, error) {
	pipe := fc.rdb.Pipeline()

	cmds := make(map[string]*redis.MapStringStringCmd, len(instruments))
	for _, inst := range instruments {
		cmds[inst] = pipe.HGetAll(ctx, featureKey(inst))
	}

	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, fmt.Errorf("redis: get feature records: %w", err)
	}

	out := make(map[string]domain.FeatureRecord, len(instruments))
	for inst, cmd := range cmds {
		vals, err := cmd.Result()
		if err != nil || len(vals) == 0 {
			continue
		}
		out[inst] = recordFromHash(vals)
	}
	return out, nil
}

// recordFromHash rebuilds a record from hash fields. Unparseable fields are
// treated as absent.
func recordFromHash(vals map[string]string) domain.FeatureRecord {
	var rec domain.FeatureRecord

	if s, ok := vals["imbalance"]; ok {
		if v, err := strconv.ParseFloat(s, 64); err == nil {
			rec.OrderBookImbalance = &v
		}
	}
	if s, ok := vals["taker_ratio"]; ok {
		if v, err := strconv.ParseFloat(s, 64); err == nil {
			rec.TakerBuySellRatio = &v
		}
	}
	if s, ok := vals["last_update"]; ok {
		if ns, err := strconv.ParseInt(s, 10, 64); err == nil {
			rec.LastUpdate = time.Unix(0, ns).UTC()
		}
	}
	return rec
}

// Compile-time interface check.
var _ domain.FeatureCache = (*FeatureCache)(nil)
