// Package consumer reads document ingest events from Kafka and adds them to
// the index.
package consumer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Relevance-Feedback-Platform/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/Relevance-Feedback-Platform/internal/ingestion"
	apperrors "github.com/Adithya-Monish-Kumar-K/Relevance-Feedback-Platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Relevance-Feedback-Platform/pkg/kafka"
)

// DocumentIndexer adds documents to an index. *indexer.Engine satisfies it.
type DocumentIndexer interface {
	IndexDocument(doc index.Document) error
}

// IndexedFunc is called after a document was added.
type IndexedFunc func(ctx context.Context, docID string)

// HandleMessage returns a kafka.MessageHandler that indexes each ingest
// event. Undecodable messages and duplicate ids are logged and skipped so
// the offset still advances; other indexing errors are returned and the
// message is retried.
func HandleMessage(idx DocumentIndexer, onIndexed IndexedFunc) kafka.MessageHandler {
	logger := slog.Default().With("component", "index-consumer")
	return func(ctx context.Context, key []byte, value []byte) error {
		event, err := kafka.DecodeJSON[ingestion.IngestEvent](value)
		if err != nil {
			logger.Error("failed to decode ingest event",
				"error", err,
				"key", string(key),
			)
			return nil
		}
		err = idx.IndexDocument(event.Document())
		switch {
		case errors.Is(err, apperrors.ErrDocumentExists):
			logger.Warn("duplicate document skipped", "doc_id", event.DocumentID)
			return nil
		case errors.Is(err, apperrors.ErrInvalidInput):
			logger.Error("invalid ingest event skipped", "key", string(key), "error", err)
			return nil
		case err != nil:
			return fmt.Errorf("indexing document %s: %w", event.DocumentID, err)
		}

		if onIndexed != nil {
			onIndexed(ctx, event.DocumentID)
		}
		logger.Debug("document indexed",
			"doc_id", event.DocumentID,
			"lag", time.Since(event.IngestedAt),
		)
		return nil
	}
}
