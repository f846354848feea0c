package errors

import (
	"context"
	"fmt"
	"net/http"
	"testing"
)

func TestHTTPStatusCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"not found", fmt.Errorf("lookup doc-1: %w", ErrDocumentNotFound), http.StatusNotFound},
		{"exists", ErrDocumentExists, http.StatusConflict},
		{"invalid", fmt.Errorf("parse: %w", ErrInvalidInput), http.StatusBadRequest},
		{"unavailable", ErrIndexUnavailable, http.StatusServiceUnavailable},
		{"deadline", fmt.Errorf("rerank: %w", context.DeadlineExceeded), http.StatusGatewayTimeout},
		{"client gone", fmt.Errorf("build vectors: %w", context.Canceled), StatusClientClosedRequest},
		{"app error wins", New(ErrDocumentNotFound, http.StatusTeapot, "custom"), http.StatusTeapot},
		{"invalid helper", Invalid("limit %d out of range", -1), http.StatusBadRequest},
		{"unknown", fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HTTPStatusCode(tt.err); got != tt.want {
				t.Errorf("HTTPStatusCode(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}

func TestAppErrorUnwrap(t *testing.T) {
	err := Invalid("fbDocs must be positive")
	if err.Error() != "invalid input: fbDocs must be positive" {
		t.Errorf("unexpected message %q", err.Error())
	}
	if err.Unwrap() != ErrInvalidInput {
		t.Error("expected Unwrap to return the sentinel")
	}
}

func TestPublicMessage(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{New(ErrDocumentExists, http.StatusConflict, "doc-1 exists with different content"), "doc-1 exists with different content"},
		{fmt.Errorf("lookup doc-9: %w", ErrDocumentNotFound), "lookup doc-9: document not found"},
		{fmt.Errorf("segment 3 checksum mismatch"), "search failed"},
		{fmt.Errorf("dial: %w", ErrIndexUnavailable), "search failed"},
	}
	for _, tt := range tests {
		if got := PublicMessage(tt.err, "search failed"); got != tt.want {
			t.Errorf("PublicMessage(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}
