package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

func TestWithHTTPMethod_RoundTrip(t *testing.T) {
	t.Parallel()

	ctx := WithHTTPMethod(context.Background(), "POST")
	got := httpMethodFromContext(ctx)
	if got != "POST" {
		t.Errorf("httpMethodFromContext = %q, want %q", got, "POST")
	}
}

func TestWithHTTPMethod_Empty(t *testing.T) {
	t.Parallel()

	ctx := WithHTTPMethod(context.Background(), "")
	got := httpMethodFromContext(ctx)
	if got != "" {
		t.Errorf("httpMethodFromContext = %q, want empty", got)
	}
}

func TestRoutePatternFromContext(t *testing.T) {
	t.Parallel()

	if got := routePatternFromContext(context.Background()); got != "" {
		t.Errorf("routePatternFromContext(plain ctx) = %q, want empty", got)
	}

	rc := chi.NewRouteContext()
	rc.RoutePatterns = []string{"/api/v1/tracking/{id}"}
	ctx := context.WithValue(context.Background(), chi.RouteCtxKey, rc)
	if got := routePatternFromContext(ctx); got != "/api/v1/tracking/{id}" {
		t.Errorf("routePatternFromContext = %q, want route pattern", got)
	}
}

func TestQueryObserverReceivesLabels(t *testing.T) {
	// not parallel: mutates the global observer
	var gotMethod, gotRoute, gotOutcome string
	var gotDur time.Duration
	SetQueryObserver(QueryObserverFunc(func(_ context.Context, method, route, outcome string, dur time.Duration) {
		gotMethod, gotRoute, gotOutcome, gotDur = method, route, outcome, dur
	}))
	defer SetQueryObserver(nil)

	tr := loggingTracer{}
	ctx := WithHTTPMethod(context.Background(), "GET")

	rc := chi.NewRouteContext()
	rc.RoutePatterns = []string{"/api/v1/tracking/{id}"}
	ctx = context.WithValue(ctx, chi.RouteCtxKey, rc)

	ctx = tr.TraceQueryStart(ctx, nil, pgx.TraceQueryStartData{SQL: "SELECT 1"})
	tr.TraceQueryEnd(ctx, nil, pgx.TraceQueryEndData{CommandTag: pgconn.NewCommandTag("SELECT 1")})

	if gotMethod != "GET" {
		t.Errorf("method = %q, want GET", gotMethod)
	}
	if gotRoute != "/api/v1/tracking/{id}" {
		t.Errorf("route = %q, want route pattern", gotRoute)
	}
	if gotOutcome != "ok" {
		t.Errorf("outcome = %q, want ok", gotOutcome)
	}
	if gotDur <= 0 {
		t.Errorf("duration = %v, want > 0", gotDur)
	}
}

func TestQueryObserverErrorOutcome(t *testing.T) {
	var gotMethod, gotRoute, gotOutcome string
	SetQueryObserver(QueryObserverFunc(func(_ context.Context, method, route, outcome string, _ time.Duration) {
		gotMethod, gotRoute, gotOutcome = method, route, outcome
	}))
	defer SetQueryObserver(nil)

	tr := loggingTracer{}
	ctx := tr.TraceQueryStart(context.Background(), nil, pgx.TraceQueryStartData{SQL: "INSERT INTO x"})
	tr.TraceQueryEnd(ctx, nil, pgx.TraceQueryEndData{Err: errors.New("boom")})

	if gotOutcome != "error" {
		t.Errorf("outcome = %q, want error", gotOutcome)
	}
	if gotMethod != "UNKNOWN" {
		t.Errorf("method = %q, want UNKNOWN fallback", gotMethod)
	}
	if gotRoute != "unknown" {
		t.Errorf("route = %q, want unknown fallback", gotRoute)
	}
}

func TestNewPool_InvalidURL(t *testing.T) {
	t.Parallel()

	if _, err := NewPool(context.Background(), "://not-a-url"); err == nil {
		t.Error("NewPool(invalid url) error = nil, want parse failure")
	}
}
