package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantpulse/microflow/internal/domain"
)

type fakeSource map[string]domain.FeatureRecord

func (s fakeSource) Records(ctx context.Context) (map[string]domain.FeatureRecord, error) {
	out := make(map[string]domain.FeatureRecord, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out, nil
}

func (s fakeSource) Record(ctx context.Context, instrument string) (domain.FeatureRecord, error) {
	rec, ok := s[instrument]
	if !ok {
		return domain.FeatureRecord{}, domain.ErrNotFound
	}
	return rec, nil
}

func newFeatureHandler(source FeatureSource) *FeatureHandler {
	return NewFeatureHandler(source, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func ptr(v float64) *float64 { return &v }

func TestListFeatures(t *testing.T) {
	updated := time.Date(2026, 8, 31, 9, 30, 0, 0, time.UTC)
	h := newFeatureHandler(fakeSource{
		"BTC": {OrderBookImbalance: ptr(0.1912), TakerBuySellRatio: ptr(2.5), LastUpdate: updated},
		"ETH": {},
	})

	// Mux-level routing is covered by the server package; call the handler
	// directly here.
	req := httptest.NewRequest(http.MethodGet, "/api/features", nil)
	rr := httptest.NewRecorder()
	h.ListFeatures(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/json; charset=utf-8", rr.Header().Get("Content-Type"))

	var got map[string]featureResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	require.Len(t, got, 2)

	btc := got["BTC"]
	require.NotNil(t, btc.OrderBookImbalance)
	assert.Equal(t, 0.1912, *btc.OrderBookImbalance)
	assert.Equal(t, "2026-08-31T09:30:00Z", btc.LastUpdate)

	eth := got["ETH"]
	assert.Nil(t, eth.OrderBookImbalance)
	assert.Nil(t, eth.TakerBuySellRatio)
	assert.Empty(t, eth.LastUpdate)
}

func TestGetFeature(t *testing.T) {
	h := newFeatureHandler(fakeSource{
		"BTC": {OrderBookImbalance: ptr(-0.5)},
	})

	req := httptest.NewRequest(http.MethodGet, "/api/features/BTC", nil)
	req.SetPathValue("instrument", "BTC")
	rr := httptest.NewRecorder()
	h.GetFeature(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)

	var got featureResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	assert.Equal(t, "BTC", got.Instrument)
	require.NotNil(t, got.OrderBookImbalance)
	assert.Equal(t, -0.5, *got.OrderBookImbalance)
}

func TestGetFeatureUnknownInstrument(t *testing.T) {
	h := newFeatureHandler(fakeSource{})

	req := httptest.NewRequest(http.MethodGet, "/api/features/DOGE", nil)
	req.SetPathValue("instrument", "DOGE")
	rr := httptest.NewRecorder()
	h.GetFeature(rr, req)

	assert.Equal(t, http.StatusNotFound, rr.Code)
}
