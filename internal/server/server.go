// Package server exposes the pricing engine to the rest of the
// application over HTTP.
package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/shelfline/bookpricer/internal/model"
	"github.com/shelfline/bookpricer/internal/monitoring"
	"github.com/shelfline/bookpricer/internal/pricing"
)

// Server routes pricing API requests to the service façade.
type Server struct {
	svc    *pricing.Service
	router chi.Router
}

// New builds the HTTP handler tree. metrics may be nil, in which case
// the prometheus endpoint is not mounted.
func New(svc *pricing.Service, metrics *monitoring.Metrics) *Server {
	s := &Server{svc: svc}

	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPut, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))
	r.Use(requestLogger)

	r.Get("/health", s.handleHealth)
	if metrics != nil {
		r.Method(http.MethodGet, "/metrics",
			promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/book-pricing/{isbn}", s.handleBookPricing)
		r.Put("/books/{id}/pricing", s.handleRefreshBookPricing)
		r.Get("/pricing/metrics", s.handlePricingMetrics)
	})

	s.router = r
	return s
}

// Handler returns the assembled router.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleBookPricing(w http.ResponseWriter, r *http.Request) {
	isbn := chi.URLParam(r, "isbn")
	userID := r.URL.Query().Get("userId")

	data, err := s.svc.GetPricingData(r.Context(), isbn, userID)
	if err != nil {
		if errors.Is(err, pricing.ErrUnconfigured) {
			writeError(w, http.StatusServiceUnavailable, "unconfigured",
				"pricing service has no marketplace credentials")
			return
		}
		zap.L().Error("pricing lookup failed", zap.String("isbn", isbn), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal", "pricing lookup failed")
		return
	}
	if data == nil {
		writeError(w, http.StatusNotFound, "not_found",
			"no completed sales found for this ISBN")
		return
	}
	writeJSON(w, http.StatusOK, data)
}

func (s *Server) handleRefreshBookPricing(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	book, data, err := s.svc.RefreshBookPricing(r.Context(), id)
	if err != nil {
		if errors.Is(err, pricing.ErrUnconfigured) {
			writeError(w, http.StatusServiceUnavailable, "unconfigured",
				"pricing service has no marketplace credentials")
			return
		}
		zap.L().Error("book pricing refresh failed", zap.String("book_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal", "pricing refresh failed")
		return
	}
	if book == nil {
		writeError(w, http.StatusNotFound, "not_found", "book not found")
		return
	}
	if data == nil {
		writeError(w, http.StatusNotFound, "not_found",
			"no completed sales found for this ISBN")
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Book        *model.Book        `json:"book"`
		PricingData *model.PricingData `json:"pricingData"`
	}{book, data})
}

func (s *Server) handlePricingMetrics(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.Metrics())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Error("encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{"error": code, "message": message})
}

// requestLogger logs each request with its status and latency.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		zap.L().Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("latency", time.Since(start)))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
