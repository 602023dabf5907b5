package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/quantpulse/microflow/internal/domain"
)

// FeatureSource is the read surface the feature endpoints need. In full and
// engine modes it is backed by the in-process feature store; in serve mode it
// reads from the shared cache.
type FeatureSource interface {
	Records(ctx context.Context) (map[string]domain.FeatureRecord, error)
	Record(ctx context.Context, instrument string) (domain.FeatureRecord, error)
}

// FeatureHandler serves the derived feature endpoints.
type FeatureHandler struct {
	source FeatureSource
	logger *slog.Logger
}

// NewFeatureHandler creates a FeatureHandler over the given source.
func NewFeatureHandler(source FeatureSource, logger *slog.Logger) *FeatureHandler {
	return &FeatureHandler{
		source: source,
		logger: logger.With(slog.String("handler", "features")),
	}
}

// featureResponse is the wire form of one feature record.
type featureResponse struct {
	Instrument         string   `json:"instrument"`
	OrderBookImbalance *float64 `json:"order_book_imbalance,omitempty"`
	TakerBuySellRatio  *float64 `json:"taker_buy_sell_ratio,omitempty"`
	LastUpdate         string   `json:"last_update,omitempty"`
}

func toResponse(instrument string, rec domain.FeatureRecord) featureResponse {
	resp := featureResponse{
		Instrument:         instrument,
		OrderBookImbalance: rec.OrderBookImbalance,
		TakerBuySellRatio:  rec.TakerBuySellRatio,
	}
	if !rec.LastUpdate.IsZero() {
		resp.LastUpdate = rec.LastUpdate.UTC().Format(time.RFC3339)
	}
	return resp
}

// ListFeatures responds with the latest record for every instrument.
// GET /api/features
func (h *FeatureHandler) ListFeatures(w http.ResponseWriter, r *http.Request) {
	records, err := h.source.Records(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list features", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to read features")
		return
	}

	out := make(map[string]featureResponse, len(records))
	for inst, rec := range records {
		out[inst] = toResponse(inst, rec)
	}
	writeJSON(w, http.StatusOK, out)
}

// GetFeature responds with the latest record for one instrument.
// GET /api/features/{instrument}
func (h *FeatureHandler) GetFeature(w http.ResponseWriter, r *http.Request) {
	instrument := r.PathValue("instrument")

	rec, err := h.source.Record(r.Context(), instrument)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "unknown instrument")
			return
		}
		h.logger.ErrorContext(r.Context(), "get feature",
			slog.String("instrument", instrument),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to read feature")
		return
	}
	writeJSON(w, http.StatusOK, toResponse(instrument, rec))
}
