// Package validator checks ingest requests before they reach the index and
// reports per-field failures.
package validator

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/Relevance-Feedback-Platform/internal/ingestion"
)

const (
	maxIDLength    = 255
	maxFieldLength = 1048576
	maxFields      = 64
)

// ValidationError holds per-field validation failure messages.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for field, msg := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s:%s", field, msg))
	}
	sort.Strings(parts)
	return strings.Join(parts, "; ")
}

// ValidateIngestRequest requires an id and a non-empty searchField, and
// bounds the id, the number of fields and each field's length.
func ValidateIngestRequest(req *ingestion.IngestRequest, searchField string) error {
	errs := make(map[string]string)

	id := strings.TrimSpace(req.ID)
	switch {
	case id == "":
		errs["id"] = "id is required"
	case len(id) > maxIDLength:
		errs["id"] = fmt.Sprintf("id must be at most %d characters", maxIDLength)
	case id != req.ID:
		errs["id"] = "id must not have surrounding whitespace"
	}

	if len(req.Fields) > maxFields {
		errs["fields"] = fmt.Sprintf("at most %d fields are allowed", maxFields)
	}
	for name, value := range req.Fields {
		if len(value) > maxFieldLength {
			errs["fields."+name] = fmt.Sprintf("must be at most %d characters", maxFieldLength)
		}
	}
	if strings.TrimSpace(req.Fields[searchField]) == "" {
		errs["fields."+searchField] = "field is required and must not be empty"
	}

	if len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}
	return nil
}
