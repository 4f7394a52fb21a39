package tracing

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"

	"github.com/psantana5/dockerapp/internal/config"
)

func TestMiddlewareCreatesSpan(t *testing.T) {
	p, err := Init(context.Background(), config.TracingConfig{ServiceName: "test"}, "test")
	require.NoError(t, err)
	defer p.Shutdown(context.Background())

	var sc trace.SpanContext
	handler := Middleware(p)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sc = trace.SpanContextFromContext(r.Context())
		w.WriteHeader(http.StatusTeapot)
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/info", nil))

	assert.Equal(t, http.StatusTeapot, rr.Code)
	assert.True(t, sc.IsValid())
	assert.NotEmpty(t, rr.Header().Get("traceparent"))
}

func TestMiddlewareContinuesInboundTrace(t *testing.T) {
	p, err := Init(context.Background(), config.TracingConfig{ServiceName: "test"}, "test")
	require.NoError(t, err)

	const parent = "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01"

	var sc trace.SpanContext
	handler := Middleware(p)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sc = trace.SpanContextFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("traceparent", parent)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", sc.TraceID().String())
}
