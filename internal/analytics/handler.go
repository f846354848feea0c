package analytics

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
)

// History lists persisted snapshots, newest first.
type History interface {
	List(ctx context.Context, limit int) ([]AggregatedStats, error)
}

type Handler struct {
	aggregator *Aggregator
	history    History
	logger     *slog.Logger
}

// NewHandler serves live statistics from aggregator and, when history is
// non-nil, persisted snapshots.
func NewHandler(aggregator *Aggregator, history History) *Handler {
	return &Handler{
		aggregator: aggregator,
		history:    history,
		logger:     slog.Default().With("component", "analytics-handler"),
	}
}

// Stats writes the live statistics, or with ?history=N the last N snapshots.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("history")
	if raw == "" {
		h.writeJSON(w, http.StatusOK, h.aggregator.Stats())
		return
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 || n > 1000 {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "history must be between 1 and 1000"})
		return
	}
	if h.history == nil {
		h.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "snapshot history is disabled"})
		return
	}
	snapshots, err := h.history.List(r.Context(), n)
	if err != nil {
		h.logger.Error("listing snapshots failed", "error", err)
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "listing snapshots failed"})
		return
	}
	h.writeJSON(w, http.StatusOK, snapshots)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write analytics response", "error", err)
	}
}
