package feed

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantpulse/microflow/internal/domain"
	"github.com/quantpulse/microflow/internal/feature"
)

// pairDialer scripts a subscription per (instrument, feed) pair. Unscripted
// pairs fail every dial.
type pairDialer struct {
	mu   sync.Mutex
	subs map[string]*fakeSub
}

func (d *pairDialer) Dial(ctx context.Context, instrument string, feed domain.FeedType) (domain.Subscription, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	sub, ok := d.subs[instrument+"/"+string(feed)]
	if !ok || sub == nil {
		return nil, errors.New("dial: connection refused")
	}
	delete(d.subs, instrument+"/"+string(feed))
	return sub, nil
}

func TestSupervisorSpawnsWorkerPerPair(t *testing.T) {
	store := feature.NewStore([]string{"BTC", "ETH"})
	s := NewSupervisor([]string{"BTC", "ETH"}, &pairDialer{}, store, testWorkerConfig(), testLogger())

	require.Len(t, s.Workers(), 4)

	seen := map[string]bool{}
	for _, w := range s.Workers() {
		seen[w.Instrument()+"/"+string(w.Feed())] = true
	}
	for _, key := range []string{"BTC/orderbook", "BTC/trades", "ETH/orderbook", "ETH/trades"} {
		assert.True(t, seen[key], key)
	}
}

// A pair whose feed keeps failing must not stop the healthy pairs from
// updating the store.
func TestSupervisorIsolatesFailingWorker(t *testing.T) {
	store := feature.NewStore([]string{"BTC", "ETH"})
	dialer := &pairDialer{subs: map[string]*fakeSub{
		"ETH/orderbook": {steps: []step{{msg: domain.FeedMessage{Book: &domain.BookSnapshot{
			Instrument: "ETH",
			Bids:       []domain.PriceLevel{{Price: 10, Size: 3}},
			Asks:       []domain.PriceLevel{{Price: 11, Size: 1}},
		}}}}},
	}}
	s := NewSupervisor([]string{"BTC", "ETH"}, dialer, store, testWorkerConfig(), testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool {
		rec, _ := store.Get("ETH")
		return rec.OrderBookImbalance != nil
	}, time.Second, time.Millisecond)

	rec, _ := store.Get("BTC")
	assert.Nil(t, rec.OrderBookImbalance)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("supervisor did not stop after cancellation")
	}

	for _, w := range s.Workers() {
		assert.Equal(t, StateStopped, w.State())
	}
}
