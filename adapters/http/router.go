// Package http exposes the billing services over a JSON HTTP API.
package http

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/artpar/paycore/adapters/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Version is set at build time.
var Version = "dev"

// VersionResponse represents the version endpoint response.
type VersionResponse struct {
	Version   string `json:"version"`
	Service   string `json:"service"`
	Processor string `json:"processor"`
}

// RouterConfig holds optional configuration for the router.
type RouterConfig struct {
	Metrics        *metrics.Collector
	MetricsHandler http.Handler // defaults to promhttp.Handler() when Metrics is set
	MetricsPath    string       // default: /metrics
	Processor      string       // processor name reported by /version
	RequestTimeout time.Duration

	// Auth guards /billing with bearer tokens. Nil leaves the API open.
	Auth TokenValidator
}

// NewRouter creates the main HTTP router with the billing API mounted at /billing.
func NewRouter(billing *BillingHandler, logger zerolog.Logger, cfg RouterConfig) chi.Router {
	r := chi.NewRouter()

	metricsPath := cfg.MetricsPath
	if metricsPath == "" {
		metricsPath = "/metrics"
	}
	timeout := cfg.RequestTimeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(NewLoggingMiddleware(logger, metricsPath))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(timeout))
	if cfg.Metrics != nil {
		r.Use(NewMetricsMiddleware(cfg.Metrics, metricsPath))
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/version", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, VersionResponse{
			Version:   Version,
			Service:   "paycore",
			Processor: cfg.Processor,
		})
	})

	if cfg.MetricsHandler != nil {
		r.Handle(metricsPath, cfg.MetricsHandler)
	} else if cfg.Metrics != nil {
		r.Handle(metricsPath, promhttp.Handler())
	}

	r.Route("/billing", func(r chi.Router) {
		if cfg.Auth != nil {
			r.Use(NewAuthMiddleware(cfg.Auth, logger))
		}
		r.Mount("/", billing.Router())
	})

	return r
}

// NewMetricsMiddleware records request counts and durations labelled by
// route pattern, so ids in paths do not create new series.
func NewMetricsMiddleware(m *metrics.Collector, metricsPath string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if skipInstrumentation(r.URL.Path, metricsPath) {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			route := "unmatched"
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				if p := rctx.RoutePattern(); p != "" {
					route = p
				}
			}
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}

			m.RequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
			m.RequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		})
	}
}

// NewLoggingMiddleware logs HTTP requests.
func NewLoggingMiddleware(logger zerolog.Logger, metricsPath string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			if skipInstrumentation(r.URL.Path, metricsPath) {
				return
			}

			logger.Debug().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start)).
				Str("request_id", middleware.GetReqID(r.Context())).
				Msg("http request")
		})
	}
}

func skipInstrumentation(path, metricsPath string) bool {
	return strings.HasPrefix(path, "/health") || path == metricsPath
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	})
}
