package server

import (
	"log/slog"
	"net/http"

	"cohort-dashboard/internal/handlers"
	"cohort-dashboard/internal/observability"
	"cohort-dashboard/internal/services"
)

type Server struct {
	analytics   *services.Analytics
	mux         *http.ServeMux
	logger      *slog.Logger
	apiHandlers *handlers.APIHandlers
	sseHandlers *handlers.SSEHandlers
}

type TemplateHandlers struct {
	Dashboard http.HandlerFunc
}

func NewServer(analytics *services.Analytics, logger *slog.Logger, templateHandlers *TemplateHandlers) *Server {
	s := &Server{
		analytics:   analytics,
		mux:         http.NewServeMux(),
		logger:      logger,
		apiHandlers: handlers.NewAPIHandlers(analytics, logger),
		sseHandlers: handlers.NewSSEHandlers(analytics, logger),
	}
	s.setupRoutes(templateHandlers)
	return s
}

func (s *Server) setupRoutes(templateHandlers *TemplateHandlers) {
	// Dashboard routes
	s.mux.HandleFunc("GET /{$}", templateHandlers.Dashboard)
	s.mux.HandleFunc("GET /health", s.apiHandlers.HandleHealth)
	s.mux.HandleFunc("GET /admin/stats", s.apiHandlers.HandleStats)
	s.mux.Handle("GET /metrics", observability.MetricsHandler())

	// REST API endpoints
	s.mux.HandleFunc("GET /api/countries", s.apiHandlers.HandleCountries)
	s.mux.HandleFunc("GET /api/retention", s.apiHandlers.HandleRetention)
	s.mux.HandleFunc("GET /api/summary", s.apiHandlers.HandleSummary)
	s.mux.HandleFunc("GET /api/retention.png", s.apiHandlers.HandleRetentionPNG)
	s.mux.HandleFunc("GET /api/retention.xlsx", s.apiHandlers.HandleRetentionXLSX)

	// Datastar SSE endpoints
	s.mux.HandleFunc("GET /sse/retention", s.sseHandlers.HandleRetention)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}
