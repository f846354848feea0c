package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/Adithya-Monish-Kumar-K/Relevance-Feedback-Platform/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/Relevance-Feedback-Platform/internal/ingestion/validator"
	apperrors "github.com/Adithya-Monish-Kumar-K/Relevance-Feedback-Platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Relevance-Feedback-Platform/pkg/logger"
)

// Ingester accepts validated documents. *publisher.Publisher satisfies it.
type Ingester interface {
	Ingest(ctx context.Context, req *ingestion.IngestRequest) (*ingestion.IngestResponse, error)
}

type Handler struct {
	ingester    Ingester
	searchField string
	logger      *slog.Logger
}

func New(ingester Ingester, searchField string) *Handler {
	return &Handler{
		ingester:    ingester,
		searchField: searchField,
		logger:      slog.Default().With("component", "ingestion-handler"),
	}
}

// Register installs POST /api/v1/documents on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/documents", h.Ingest)
}

func (h *Handler) Ingest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)
	var req ingestion.IngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := validator.ValidateIngestRequest(&req, h.searchField); err != nil {
		var validationErr *validator.ValidationError
		if errors.As(err, &validationErr) {
			h.writeJSON(w, http.StatusBadRequest, map[string]any{
				"error":  "validation failed",
				"fields": validationErr.Fields,
			})
			return
		}
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp, err := h.ingester.Ingest(ctx, &req)
	if err != nil {
		statusCode := apperrors.HTTPStatusCode(err)
		log.Error("ingestion failed",
			"doc_id", req.ID,
			"error", err,
			"status_code", statusCode,
		)
		h.writeError(w, statusCode, apperrors.PublicMessage(err, "ingestion failed"))
		return
	}
	status := http.StatusAccepted
	if resp.Status == ingestion.StatusDuplicate {
		status = http.StatusOK
	}
	log.Info("document ingested", "doc_id", resp.DocumentID, "status", resp.Status)
	h.writeJSON(w, status, resp)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
