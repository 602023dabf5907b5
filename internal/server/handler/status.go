package handler

import (
	"net/http"
)

// WorkerInfo is one stream worker's identity and lifecycle state as exposed
// on the status endpoint.
type WorkerInfo struct {
	Instrument string `json:"instrument"`
	Feed       string `json:"feed"`
	State      string `json:"state"`
}

// StatusHandler serves the process status: run mode and, when the engine is
// in-process, per-worker states.
type StatusHandler struct {
	mode    string
	workers func() []WorkerInfo // nil in serve mode
}

// NewStatusHandler creates a StatusHandler. workers may be nil when no
// engine runs in this process.
func NewStatusHandler(mode string, workers func() []WorkerInfo) *StatusHandler {
	return &StatusHandler{mode: mode, workers: workers}
}

// GetStatus responds with the run mode and worker states.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"mode": h.mode,
	}
	if h.workers != nil {
		resp["workers"] = h.workers()
	}
	writeJSON(w, http.StatusOK, resp)
}
