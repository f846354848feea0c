// Package judgment stores graded relevance judgments (qrels) in PostgreSQL
// and turns them into the relevant/non-relevant partitions that judged
// feedback models consume.
package judgment

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Relevance-Feedback-Platform/internal/feedback/model"
	apperrors "github.com/Adithya-Monish-Kumar-K/Relevance-Feedback-Platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Relevance-Feedback-Platform/pkg/postgres"
)

const schema = `
CREATE TABLE IF NOT EXISTS relevance_judgments (
	query_id   TEXT        NOT NULL,
	doc_id     TEXT        NOT NULL,
	relevance  INTEGER     NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (query_id, doc_id)
)`

// Judgment grades one document for one query. A positive Relevance marks
// the document relevant; zero or below marks it non-relevant.
type Judgment struct {
	QueryID   string    `json:"query_id"`
	DocID     string    `json:"doc_id"`
	Relevance int       `json:"relevance"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

func (j Judgment) Relevant() bool { return j.Relevance > 0 }

func (j Judgment) validate() error {
	if strings.TrimSpace(j.QueryID) == "" || strings.TrimSpace(j.DocID) == "" {
		return apperrors.Invalid("judgment needs query_id and doc_id")
	}
	return nil
}

// Store persists judgments in the relevance_judgments table.
type Store struct {
	db     *postgres.Client
	logger *slog.Logger
}

func NewStore(db *postgres.Client) *Store {
	return &Store{
		db:     db,
		logger: slog.Default().With("component", "judgment-store"),
	}
}

// EnsureSchema creates the judgments table when it does not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	return s.db.Migrate(ctx, "relevance_judgments", schema)
}

// Record upserts judgments in one transaction.
func (s *Store) Record(ctx context.Context, judgments ...Judgment) error {
	for _, j := range judgments {
		if err := j.validate(); err != nil {
			return err
		}
	}
	err := s.db.InTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO relevance_judgments (query_id, doc_id, relevance, updated_at)
			 VALUES ($1, $2, $3, NOW())
			 ON CONFLICT (query_id, doc_id)
			 DO UPDATE SET relevance = EXCLUDED.relevance, updated_at = NOW()`)
		if err != nil {
			return fmt.Errorf("preparing judgment upsert: %w", err)
		}
		defer stmt.Close()
		for _, j := range judgments {
			if _, err := stmt.ExecContext(ctx, j.QueryID, j.DocID, j.Relevance); err != nil {
				return fmt.Errorf("upserting judgment %s/%s: %w", j.QueryID, j.DocID, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.logger.Debug("judgments recorded", "count", len(judgments))
	return nil
}

// Judgments returns every judgment for queryID ordered by document id.
func (s *Store) Judgments(ctx context.Context, queryID string) ([]Judgment, error) {
	rows, err := s.db.DB.QueryContext(ctx,
		`SELECT query_id, doc_id, relevance, updated_at
		 FROM relevance_judgments
		 WHERE query_id = $1
		 ORDER BY doc_id`,
		queryID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying judgments for %s: %w", queryID, err)
	}
	defer rows.Close()

	var out []Judgment
	for rows.Next() {
		var j Judgment
		if err := rows.Scan(&j.QueryID, &j.DocID, &j.Relevance, &j.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning judgment: %w", err)
		}
		out = append(out, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating judgments: %w", err)
	}
	return out, nil
}

// Partition loads the judgments for queryID and maps them onto ids, the
// feedback documents in rank order. It returns nil when none of ids is
// judged.
func (s *Store) Partition(ctx context.Context, queryID string, ids []string) (*model.Partition, error) {
	judgments, err := s.Judgments(ctx, queryID)
	if err != nil {
		return nil, err
	}
	return PartitionFrom(judgments, ids), nil
}

// PartitionFrom maps judgments onto positions in ids. Unjudged documents
// belong to neither set.
func PartitionFrom(judgments []Judgment, ids []string) *model.Partition {
	grade := make(map[string]bool, len(judgments))
	for _, j := range judgments {
		grade[j.DocID] = j.Relevant()
	}
	p := &model.Partition{}
	for i, id := range ids {
		relevant, ok := grade[id]
		switch {
		case !ok:
		case relevant:
			p.Relevant = append(p.Relevant, i)
		default:
			p.NonRelevant = append(p.NonRelevant, i)
		}
	}
	if len(p.Relevant) == 0 && len(p.NonRelevant) == 0 {
		return nil
	}
	return p
}
