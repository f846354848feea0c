package health

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRunWorstStatusWins(t *testing.T) {
	tests := []struct {
		name   string
		checks map[string]Check
		want   Status
	}{
		{
			name:   "all up",
			checks: map[string]Check{"index": PingCheck(func(context.Context) error { return nil }, StatusDown)},
			want:   StatusUp,
		},
		{
			name: "degraded cache",
			checks: map[string]Check{
				"index": PingCheck(func(context.Context) error { return nil }, StatusDown),
				"redis": PingCheck(nil, StatusDegraded),
			},
			want: StatusDegraded,
		},
		{
			name: "index down",
			checks: map[string]Check{
				"index": PingCheck(func(context.Context) error { return errors.New("refused") }, StatusDown),
				"redis": PingCheck(nil, StatusDegraded),
			},
			want: StatusDown,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewChecker()
			for name, check := range tt.checks {
				c.Register(name, check)
			}
			report := c.Run(context.Background())
			if report.Status != tt.want {
				t.Errorf("status = %s, want %s (%+v)", report.Status, tt.want, report.Components)
			}
			if len(report.Components) != len(tt.checks) {
				t.Errorf("components = %d, want %d", len(report.Components), len(tt.checks))
			}
		})
	}
}

func TestReadyHandlerStatusCodes(t *testing.T) {
	c := NewChecker()
	c.Register("redis", PingCheck(nil, StatusDegraded))
	rec := httptest.NewRecorder()
	c.ReadyHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("degraded should still be ready, got %d", rec.Code)
	}

	c.Register("index", PingCheck(func(context.Context) error { return errors.New("gone") }, StatusDown))
	rec = httptest.NewRecorder()
	c.ReadyHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("down should be 503, got %d", rec.Code)
	}
}
