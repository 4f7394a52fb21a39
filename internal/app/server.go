// Package app is the served web application: a greeting, a connection
// info endpoint and a health probe, behind the request middleware chain.
package app

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/psantana5/dockerapp/internal/config"
	"github.com/psantana5/dockerapp/internal/ratelimit"
	"github.com/psantana5/dockerapp/internal/tracing"
)

// Options configures the handler chain.
type Options struct {
	Log       *zap.SugaredLogger
	Tracing   *tracing.Provider
	RateLimit config.RateLimitConfig

	// Timeout bounds every request; zero means unbounded.
	Timeout time.Duration

	// Debug includes panic details in 500 responses.
	Debug bool
}

// RegisterRoutes attaches the application routes to router.
func RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/", handleHello).Methods(http.MethodGet, http.MethodHead)
	router.HandleFunc("/info", handleInfo).Methods(http.MethodGet)
	router.HandleFunc("/health", handleHealth).Methods(http.MethodGet, http.MethodHead)
}

// NewHandler returns the routed application wrapped in its middleware.
// Order, outermost first: request id, access log, recovery, rate limit,
// tracing, timeout.
func NewHandler(opts Options) http.Handler {
	log := opts.Log
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	router := mux.NewRouter()
	RegisterRoutes(router)

	h := limitDuration(router, opts.Timeout)
	if opts.Tracing != nil {
		h = tracing.Middleware(opts.Tracing)(h)
	}
	if opts.RateLimit.Enabled {
		limiter := ratelimit.NewLimiter(opts.RateLimit.RPS, opts.RateLimit.Burst)
		h = limiter.Middleware(ratelimit.ClientKey)(h)
	}
	h = recoverer(opts.Debug)(h)
	h = accessLog(log)(h)
	h = requestID(h)
	return h
}

// NewServer wraps handler with the server-level timeouts used by both run modes.
func NewServer(addr string, handler http.Handler, timeout time.Duration) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       timeout,
		WriteTimeout:      timeout + 5*time.Second,
		IdleTimeout:       timeout,
	}
}
