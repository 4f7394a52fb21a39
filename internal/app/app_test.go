package app

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/psantana5/dockerapp/internal/config"
)

func serve(t *testing.T, h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestHello(t *testing.T) {
	rr := serve(t, NewHandler(Options{}), httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "Hello World!", rr.Body.String())
	assert.NotEmpty(t, rr.Header().Get(RequestIDHeader))
}

func TestInfo(t *testing.T) {
	tests := []struct {
		desc    string
		headers map[string]string
		want    InfoResponse
	}{
		{
			desc: "behind proxy",
			headers: map[string]string{
				"X-Real-IP":       "203.0.113.7",
				"X-Forwarded-For": "203.0.113.7, 10.0.0.1",
				"User-Agent":      "curl/8.0",
			},
			want: InfoResponse{
				ConnectingIP: "203.0.113.7",
				ProxyIP:      "203.0.113.7, 10.0.0.1",
				Host:         "example.com",
				UserAgent:    "curl/8.0",
			},
		},
		{
			desc: "direct",
			want: InfoResponse{Host: "example.com"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "http://example.com/info", nil)
			req.Header.Del("User-Agent")
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}

			rr := serve(t, NewHandler(Options{}), req)
			require.Equal(t, http.StatusOK, rr.Code)
			assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))

			var got InfoResponse
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
			assert.Equal(t, tt.want.ConnectingIP, got.ConnectingIP)
			assert.Equal(t, tt.want.ProxyIP, got.ProxyIP)
			assert.Equal(t, tt.want.Host, got.Host)
			assert.Equal(t, tt.want.UserAgent, got.UserAgent)
			assert.Equal(t, "example.com", got.Headers["Host"])
			for k, v := range tt.headers {
				assert.Equal(t, v, got.Headers[http.CanonicalHeaderKey(k)])
			}
		})
	}
}

func TestHealth(t *testing.T) {
	rr := serve(t, NewHandler(Options{}), httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"healthy"}`, rr.Body.String())
}

func TestUnknownRoute(t *testing.T) {
	rr := serve(t, NewHandler(Options{}), httptest.NewRequest(http.MethodGet, "/missing", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestRequestIDPreserved(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "abc-123")

	rr := serve(t, NewHandler(Options{}), req)
	assert.Equal(t, "abc-123", rr.Header().Get(RequestIDHeader))
}

func TestRateLimited(t *testing.T) {
	h := NewHandler(Options{
		RateLimit: config.RateLimitConfig{Enabled: true, RPS: 1, Burst: 1},
	})

	first := serve(t, h, httptest.NewRequest(http.MethodGet, "/", nil))
	second := serve(t, h, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
}

func TestRecoverer(t *testing.T) {
	boom := http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") })

	tests := []struct {
		desc  string
		debug bool
		body  string
	}{
		{"production hides detail", false, "Internal Server Error\n"},
		{"debug shows panic", true, "boom"},
	}

	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			h := recoverer(tt.debug)(boom)
			rr := serve(t, h, httptest.NewRequest(http.MethodGet, "/", nil))

			assert.Equal(t, http.StatusInternalServerError, rr.Code)
			if tt.debug {
				assert.Contains(t, rr.Body.String(), tt.body)
			} else {
				assert.Equal(t, tt.body, rr.Body.String())
			}
		})
	}
}

func TestPanicLogCarriesRequestID(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	boom := http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") })
	h := requestID(accessLog(zap.New(core).Sugar())(recoverer(false)(boom)))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "req-123")
	rr := serve(t, h, req)
	assert.Equal(t, http.StatusInternalServerError, rr.Code)

	panics := logs.FilterMessage("handler panic").All()
	require.Len(t, panics, 1)
	assert.Equal(t, "req-123", panics[0].ContextMap()["request_id"])

	requests := logs.FilterMessage("request").All()
	require.Len(t, requests, 1)
	assert.Equal(t, "req-123", requests[0].ContextMap()["request_id"])
	assert.EqualValues(t, http.StatusInternalServerError, requests[0].ContextMap()["status"])
}

func TestLimitDuration(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	slow := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
		w.Write([]byte("late"))
	})

	rr := serve(t, limitDuration(slow, 20*time.Millisecond), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Equal(t, "Request timed out", rr.Body.String())

	fast := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.Write([]byte("ok")) })
	rr = serve(t, limitDuration(fast, 20*time.Millisecond), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ok", rr.Body.String())

	assert.IsType(t, fast, limitDuration(fast, 0))
}

func TestNewServerTimeouts(t *testing.T) {
	srv := NewServer("0.0.0.0:5000", http.NotFoundHandler(), 60*time.Second)

	assert.Equal(t, "0.0.0.0:5000", srv.Addr)
	assert.Equal(t, 60*time.Second, srv.ReadTimeout)
	assert.Equal(t, 65*time.Second, srv.WriteTimeout)
}
