// Package api exposes the HTTP surface: versioned data endpoints, the
// admin refresh trigger, health and Prometheus metrics.
package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vietddude/tokend/internal/cache"
	"github.com/vietddude/tokend/internal/core/domain"
	"github.com/vietddude/tokend/internal/metrics"
	"github.com/vietddude/tokend/internal/refresh"
	"github.com/vietddude/tokend/internal/service"
	"github.com/vietddude/tokend/internal/tier"
)

const maxBatchKeys = 50

// HealthChecker reports readiness of one backing dependency.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Server serves the tokend HTTP API.
type Server struct {
	prices    *service.PriceService
	tokens    *service.TokenService
	tiers     *tier.Engine
	scheduler *refresh.Scheduler

	adminToken string
	checkers   map[string]HealthChecker
	server     *http.Server
}

// NewServer creates the API server. adminToken guards the refresh trigger;
// an empty token disables it. checkers may be nil.
func NewServer(port int, adminToken string,
	prices *service.PriceService, tokens *service.TokenService,
	tiers *tier.Engine, scheduler *refresh.Scheduler,
	checkers map[string]HealthChecker) *Server {

	mux := http.NewServeMux()
	s := &Server{
		prices:     prices,
		tokens:     tokens,
		tiers:      tiers,
		scheduler:  scheduler,
		adminToken: adminToken,
		checkers:   checkers,
		server: &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: mux,
		},
	}

	mux.HandleFunc("GET /v1/prices", s.instrument("/v1/prices", s.handlePrices))
	mux.HandleFunc("GET /v1/tokens/{processID}", s.instrument("/v1/tokens", s.handleToken))
	mux.HandleFunc("GET /v1/registry", s.instrument("/v1/registry", s.handleRegistry))
	mux.HandleFunc("GET /v1/tiers", s.instrument("/v1/tiers", s.handleTiers))
	mux.HandleFunc("POST /v1/refresh", s.instrument("/v1/refresh", s.requireAdmin(s.handleRefresh)))
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())

	return s
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	return s.server.ListenAndServe()
}

// Stop stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Handler returns the underlying handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (s *Server) instrument(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next(sw, r)
		metrics.HTTPRequests.WithLabelValues(route, strconv.Itoa(sw.status)).Inc()
	}
}

func (s *Server) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.adminToken == "" {
			writeError(w, http.StatusForbidden, "admin endpoint disabled")
			return
		}
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(s.adminToken)) != 1 {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		next(w, r)
	}
}

func (s *Server) handlePrices(w http.ResponseWriter, r *http.Request) {
	ids, err := splitParam(r, "ids")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.prices.GetPrices(r.Context(), ids))
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	processID := r.PathValue("processID")
	res, err := s.tokens.GetToken(r.Context(), processID)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, cachedPayload(res.Value, res))
}

func (s *Server) handleRegistry(w http.ResponseWriter, r *http.Request) {
	res, err := s.tokens.GetRegistry(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, cachedPayload(res.Value, res))
}

func (s *Server) handleTiers(w http.ResponseWriter, r *http.Request) {
	addresses, err := splitParam(r, "addresses")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	for _, addr := range addresses {
		if !domain.ValidAddress(addr) {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid address %s", addr))
			return
		}
	}

	records, err := s.tiers.GetTiers(r.Context(), addresses)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	namespace := r.URL.Query().Get("namespace")
	if namespace == "" {
		writeError(w, http.StatusBadRequest, "missing namespace parameter")
		return
	}

	summary, err := s.scheduler.Trigger(r.Context(), namespace)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	deps := make(map[string]string, len(s.checkers))
	for name, checker := range s.checkers {
		if err := checker.Health(r.Context()); err != nil {
			deps[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		deps[name] = "ok"
	}

	body := map[string]any{"status": "healthy", "dependencies": deps}
	if status != http.StatusOK {
		body["status"] = "degraded"
	}
	writeJSON(w, status, body)
}

// splitParam parses a comma-separated query parameter, bounded at
// maxBatchKeys entries.
func splitParam(r *http.Request, name string) ([]string, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, fmt.Errorf("missing %s parameter", name)
	}

	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("missing %s parameter", name)
	}
	if len(out) > maxBatchKeys {
		return nil, fmt.Errorf("too many %s: %d, limit %d", name, len(out), maxBatchKeys)
	}
	return out, nil
}

func cachedPayload[T any](value T, res cache.Result[T]) map[string]any {
	return map[string]any{
		"data":     value,
		"fresh":    res.Fresh,
		"cachedAt": res.StoredAt,
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
