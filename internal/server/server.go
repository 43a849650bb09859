// Package server exposes the dashboard API over the persisted
// collections. Read endpoints never fail: missing data degrades to the
// newest history entry or an empty record.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/centinela-labs/centinela/internal/model"
)

// Store is the read/append surface the dashboard needs.
type Store interface {
	Current() *model.PipelineRecord
	History(days int) []model.PipelineRecord
	CitizenReports(days int) []model.CitizenReport
	AppendCitizenReport(r model.CitizenReport) error
	TypeCounts() map[string]int
	HeatmapPoints() []model.HeatmapPoint
}

// Trigger starts one pipeline run on demand.
type Trigger interface {
	TriggerNow(ctx context.Context) error
}

// Server is the dashboard API.
type Server struct {
	store   Store
	trigger Trigger
}

// New creates a Server over the given store and run trigger.
func New(store Store, trigger Trigger) *Server {
	return &Server{store: store, trigger: trigger}
}

// Router builds the chi router with all dashboard routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Route("/api", func(r chi.Router) {
		r.Get("/security_data", s.handleSecurityData)
		r.Get("/latest_news", s.handleLatestNews)
		r.Get("/historical_data", s.handleHistoricalData)
		r.Get("/incident_types", s.handleIncidentTypes)
		r.Get("/heatmap_data", s.handleHeatmapData)
		r.Post("/trigger_update", s.handleTriggerUpdate)
		r.Get("/citizen-reports", s.handleGetCitizenReports)
		r.Post("/citizen-reports", s.handleAddCitizenReport)
		r.Get("/all-incidents", s.handleAllIncidents)
	})

	return r
}

// ListenAndServe runs the HTTP server until ctx is cancelled, then shuts
// down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, port int) error {
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      s.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		zap.L().Info("server: listening", zap.String("addr", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		zap.L().Info("server: request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Error("server: encode response", zap.Error(err))
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
