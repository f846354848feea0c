package middleware

import (
	"log/slog"
	"math/rand/v2"
	"net/http"

	"github.com/Adithya-Monish-Kumar-K/Relevance-Feedback-Platform/pkg/tracing"
)

// Tracing starts a root span for a sampleRate fraction of requests and logs
// the finished span tree. Spans opened further down, such as the rerank
// stages, attach to it. The request id, when set, becomes the trace id.
func Tracing(sampleRate float64) func(http.Handler) http.Handler {
	logger := slog.Default().With("component", "tracing")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if sampleRate <= 0 || (sampleRate < 1 && rand.Float64() >= sampleRate) {
				next.ServeHTTP(w, r)
				return
			}
			ctx, span := tracing.StartSpan(r.Context(), r.Method+" "+r.URL.Path, GetRequestID(r.Context()))
			sw := &statusWriter{ResponseWriter: w}
			next.ServeHTTP(sw, r.WithContext(ctx))
			span.SetAttr("status", sw.Status())
			span.End()
			span.Log(logger)
		})
	}
}
