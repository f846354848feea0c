// Package publisher hands validated documents to the indexer. Documents are
// registered in PostgreSQL by content hash, so re-submitting the same
// content under the same id is idempotent.
package publisher

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Relevance-Feedback-Platform/internal/ingestion"
	apperrors "github.com/Adithya-Monish-Kumar-K/Relevance-Feedback-Platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Relevance-Feedback-Platform/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Relevance-Feedback-Platform/pkg/postgres"
)

// Sink delivers ingest events to the indexer. *kafka.Producer satisfies it.
type Sink interface {
	Publish(ctx context.Context, event kafka.Event) error
}

var _ Sink = (*kafka.Producer)(nil)

// HandlerSink delivers events in-process to the handler a Kafka consumer
// would run, for an index living in the same binary.
type HandlerSink struct {
	Handle kafka.MessageHandler
}

func (s HandlerSink) Publish(ctx context.Context, event kafka.Event) error {
	data, err := json.Marshal(event.Value)
	if err != nil {
		return fmt.Errorf("encoding ingest event: %w", err)
	}
	return s.Handle(ctx, []byte(event.Key), data)
}

// Registry remembers which content was ingested under each id.
type Registry interface {
	// Register claims id for hash. When id is already taken it reports the
	// stored hash and created=false.
	Register(ctx context.Context, id, hash string) (existing string, created bool, err error)
	// Release forgets id after its event could not be delivered.
	Release(ctx context.Context, id string) error
}

// Publisher registers documents and delivers them to a Sink. Requests are
// expected to have passed the validator.
type Publisher struct {
	sink     Sink
	registry Registry
	logger   *slog.Logger
}

// New creates a Publisher. A nil registry disables duplicate detection.
func New(sink Sink, registry Registry) *Publisher {
	return &Publisher{
		sink:     sink,
		registry: registry,
		logger:   slog.Default().With("component", "publisher"),
	}
}

// Ingest registers the document and publishes an IngestEvent keyed by its
// id. Identical re-submissions are reported as duplicates without being
// published again; the same id with different content is a conflict.
func (p *Publisher) Ingest(ctx context.Context, req *ingestion.IngestRequest) (*ingestion.IngestResponse, error) {
	hash := ContentHash(req.Fields)
	resp := &ingestion.IngestResponse{DocumentID: req.ID, Status: ingestion.StatusAccepted, ContentHash: hash}

	if p.registry != nil {
		existing, created, err := p.registry.Register(ctx, req.ID, hash)
		if err != nil {
			return nil, fmt.Errorf("registering document %s: %w", req.ID, err)
		}
		if !created {
			if existing != hash {
				return nil, apperrors.Newf(apperrors.ErrDocumentExists, http.StatusConflict,
					"document %s was already ingested with different content", req.ID)
			}
			p.logger.Info("duplicate ingestion detected", "doc_id", req.ID)
			resp.Status = ingestion.StatusDuplicate
			return resp, nil
		}
	}

	event := kafka.Event{
		Key: req.ID,
		Value: ingestion.IngestEvent{
			DocumentID: req.ID,
			Fields:     req.Fields,
			IngestedAt: time.Now().UTC(),
		},
	}
	if err := p.sink.Publish(ctx, event); err != nil {
		if p.registry != nil {
			if rerr := p.registry.Release(ctx, req.ID); rerr != nil {
				p.logger.Error("failed to release document after publish error", "doc_id", req.ID, "error", rerr)
			}
		}
		return nil, apperrors.Newf(apperrors.ErrIndexUnavailable, http.StatusServiceUnavailable,
			"document %s not delivered: %v", req.ID, err)
	}
	return resp, nil
}

// ContentHash is the hex SHA-256 of the fields in name order.
func ContentHash(fields map[string]string) string {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	h := sha256.New()
	for _, name := range names {
		h.Write([]byte(name))
		h.Write([]byte{0})
		h.Write([]byte(fields[name]))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

const schema = `
CREATE TABLE IF NOT EXISTS ingested_documents (
	id           TEXT        PRIMARY KEY,
	content_hash TEXT        NOT NULL,
	ingested_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

// PostgresRegistry keeps the registry in the ingested_documents table.
type PostgresRegistry struct {
	db *postgres.Client
}

func NewPostgresRegistry(db *postgres.Client) *PostgresRegistry {
	return &PostgresRegistry{db: db}
}

// EnsureSchema creates the registry table when it does not exist.
func (r *PostgresRegistry) EnsureSchema(ctx context.Context) error {
	return r.db.Migrate(ctx, "ingested_documents", schema)
}

func (r *PostgresRegistry) Register(ctx context.Context, id, hash string) (string, bool, error) {
	var existing string
	created := false
	err := r.db.InTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO ingested_documents (id, content_hash) VALUES ($1, $2)
		ON CONFLICT (id) DO NOTHING`, id, hash)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 1 {
			created = true
			existing = hash
			return nil
		}
		return tx.QueryRowContext(ctx,
			`SELECT content_hash FROM ingested_documents WHERE id=$1`, id).Scan(&existing)
	})
	if err != nil {
		return "", false, err
	}
	return existing, created, nil
}

func (r *PostgresRegistry) Release(ctx context.Context, id string) error {
	if _, err := r.db.DB.ExecContext(ctx, `DELETE FROM ingested_documents WHERE id=$1`, id); err != nil {
		return fmt.Errorf("releasing document %s: %w", id, err)
	}
	return nil
}
