package feature

import (
	"sync"
	"time"

	"github.com/quantpulse/microflow/internal/domain"
)

// Store maps each configured instrument to its latest FeatureRecord. Records
// are created once at construction and mutated for the process lifetime; an
// instrument is never removed. Update and ReadAll are safe for concurrent use
// from any number of stream workers and the snapshot publisher.
type Store struct {
	mu      sync.RWMutex
	records map[string]domain.FeatureRecord
}

// NewStore registers one empty record per instrument. Every configured
// instrument has exactly one record from this point on, even before any feed
// data arrives.
func NewStore(instruments []string) *Store {
	records := make(map[string]domain.FeatureRecord, len(instruments))
	for _, inst := range instruments {
		records[inst] = domain.FeatureRecord{}
	}
	return &Store{records: records}
}

// Update replaces the instrument's record wholesale under the lock: the field
// belonging to the given feed type and LastUpdate change together, so a
// concurrent ReadAll never observes a half-applied update. The other feed
// type's field is carried over untouched. Updates for instruments that were
// not registered at construction are ignored.
func (s *Store) Update(instrument string, feed domain.FeedType, up domain.FeatureUpdate) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[instrument]
	if !ok {
		return
	}

	switch feed {
	case domain.FeedOrderBook:
		rec.OrderBookImbalance = up.Imbalance
	case domain.FeedTrades:
		rec.TakerBuySellRatio = up.TakerRatio
	default:
		return
	}
	rec.LastUpdate = time.Now().UTC()
	s.records[instrument] = rec
}

// ReadAll returns an independent copy of every record so serialization by the
// caller cannot race with further updates.
func (s *Store) ReadAll() map[string]domain.FeatureRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]domain.FeatureRecord, len(s.records))
	for inst, rec := range s.records {
		out[inst] = cloneRecord(rec)
	}
	return out
}

// Get returns the record for one instrument.
func (s *Store) Get(instrument string) (domain.FeatureRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[instrument]
	return cloneRecord(rec), ok
}

func cloneRecord(rec domain.FeatureRecord) domain.FeatureRecord {
	out := domain.FeatureRecord{LastUpdate: rec.LastUpdate}
	if rec.OrderBookImbalance != nil {
		v := *rec.OrderBookImbalance
		out.OrderBookImbalance = &v
	}
	if rec.TakerBuySellRatio != nil {
		v := *rec.TakerBuySellRatio
		out.TakerBuySellRatio = &v
	}
	return out
}

// Instruments returns the registered instrument set in unspecified order.
func (s *Store) Instruments() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.records))
	for inst := range s.records {
		out = append(out, inst)
	}
	return out
}
