package feature

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantpulse/microflow/internal/domain"
)

func ptr(v float64) *float64 { return &v }

func TestStoreRegistersEveryInstrument(t *testing.T) {
	s := NewStore([]string{"BTC", "ETH", "SOL"})

	all := s.ReadAll()
	require.Len(t, all, 3)
	for _, inst := range []string{"BTC", "ETH", "SOL"} {
		rec, ok := all[inst]
		require.True(t, ok)
		assert.Nil(t, rec.OrderBookImbalance)
		assert.Nil(t, rec.TakerBuySellRatio)
		assert.True(t, rec.LastUpdate.IsZero())
	}
}

func TestStoreUpdatePreservesOtherFeedField(t *testing.T) {
	s := NewStore([]string{"BTC"})

	s.Update("BTC", domain.FeedOrderBook, domain.FeatureUpdate{Imbalance: ptr(0.25)})
	s.Update("BTC", domain.FeedTrades, domain.FeatureUpdate{TakerRatio: ptr(1.5)})

	rec, ok := s.Get("BTC")
	require.True(t, ok)
	require.NotNil(t, rec.OrderBookImbalance)
	require.NotNil(t, rec.TakerBuySellRatio)
	assert.Equal(t, 0.25, *rec.OrderBookImbalance)
	assert.Equal(t, 1.5, *rec.TakerBuySellRatio)
	assert.False(t, rec.LastUpdate.IsZero())
}

func TestStoreTradeUpdateClearsRatio(t *testing.T) {
	s := NewStore([]string{"BTC"})

	s.Update("BTC", domain.FeedTrades, domain.FeatureUpdate{TakerRatio: ptr(2.0)})
	s.Update("BTC", domain.FeedTrades, domain.FeatureUpdate{TakerRatio: nil})

	rec, _ := s.Get("BTC")
	assert.Nil(t, rec.TakerBuySellRatio)
	assert.False(t, rec.LastUpdate.IsZero())
}

func TestStoreIgnoresUnknownInstrument(t *testing.T) {
	s := NewStore([]string{"BTC"})

	s.Update("DOGE", domain.FeedOrderBook, domain.FeatureUpdate{Imbalance: ptr(0.5)})

	assert.Len(t, s.ReadAll(), 1)
	_, ok := s.Get("DOGE")
	assert.False(t, ok)
}

func TestStoreReadAllReturnsIndependentCopy(t *testing.T) {
	s := NewStore([]string{"BTC"})
	s.Update("BTC", domain.FeedOrderBook, domain.FeatureUpdate{Imbalance: ptr(0.1)})

	all := s.ReadAll()
	*all["BTC"].OrderBookImbalance = 99
	delete(all, "BTC")

	rec, ok := s.Get("BTC")
	require.True(t, ok)
	require.NotNil(t, rec.OrderBookImbalance)
	assert.Equal(t, 0.1, *rec.OrderBookImbalance)
}

// Concurrent updates across both feed types must never surface a record with
// one field from a newer update and a LastUpdate from an older one. Each
// update replaces the whole record under the lock, so every observed record
// with a set field must also carry a non-zero LastUpdate.
func TestStoreConcurrentUpdatesStayConsistent(t *testing.T) {
	s := NewStore([]string{"BTC", "ETH"})

	var wg sync.WaitGroup
	stop := make(chan struct{})

	for _, inst := range []string{"BTC", "ETH"} {
		wg.Add(2)
		go func(inst string) {
			defer wg.Done()
			for i := 0; ; i++ {
				select {
				case <-stop:
					return
				default:
				}
				s.Update(inst, domain.FeedOrderBook, domain.FeatureUpdate{Imbalance: ptr(float64(i%100) / 100)})
			}
		}(inst)
		go func(inst string) {
			defer wg.Done()
			for i := 0; ; i++ {
				select {
				case <-stop:
					return
				default:
				}
				s.Update(inst, domain.FeedTrades, domain.FeatureUpdate{TakerRatio: ptr(float64(i % 10))})
			}
		}(inst)
	}

	deadline := time.Now().Add(100 * time.Millisecond)
	for time.Now().Before(deadline) {
		for inst, rec := range s.ReadAll() {
			if rec.OrderBookImbalance != nil || rec.TakerBuySellRatio != nil {
				assert.Falsef(t, rec.LastUpdate.IsZero(),
					"%s: record has data but zero LastUpdate", inst)
			}
		}
	}

	close(stop)
	wg.Wait()
}
