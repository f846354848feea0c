// Package ingestion defines the request/response types and Kafka event schema
// used to add documents to the index.
package ingestion

import (
	"time"

	"github.com/Adithya-Monish-Kumar-K/Relevance-Feedback-Platform/internal/indexer/index"
)

// IngestRequest is the JSON body accepted by the document endpoint.
type IngestRequest struct {
	ID     string            `json:"id"`
	Fields map[string]string `json:"fields"`
}

// IngestResponse is returned to the caller after a document is accepted.
type IngestResponse struct {
	DocumentID  string `json:"document_id"`
	Status      string `json:"status"`
	ContentHash string `json:"content_hash"`
}

const (
	StatusAccepted  = "ACCEPTED"
	StatusDuplicate = "DUPLICATE"
)

// IngestEvent is the value of a document-ingest message.
type IngestEvent struct {
	DocumentID string            `json:"document_id"`
	Fields     map[string]string `json:"fields"`
	IngestedAt time.Time         `json:"ingested_at"`
}

// Document returns the event as an index document.
func (e IngestEvent) Document() index.Document {
	return index.Document{ID: e.DocumentID, Fields: e.Fields}
}
