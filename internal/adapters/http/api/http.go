// Package api exposes the trending service over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/okian/trending/internal/adapters/http/swagger"
	"github.com/okian/trending/internal/domain/model"
	"github.com/okian/trending/pkg/logger"
	"github.com/okian/trending/pkg/metrics"
)

// Dependencies required by HTTP handlers.
type Dependencies interface {
	EventDependencies
	TrendingDependencies
	RankDependencies
	HealthDependencies
	StatsProvider
}

// Entry mirrors the read shape returned by ranking queries.
type Entry = model.ItemScore

// Limits bounds GET /trending.
type Limits struct {
	DefaultCount   int
	MaxCount       int
	ScorePrecision int
}

// DefaultLimits matches the service configuration defaults.
var DefaultLimits = Limits{DefaultCount: 10, MaxCount: 1000, ScorePrecision: 6}

// Server wires HTTP routes for the business API.
type Server struct {
	router chi.Router
	logger logger.Logger

	healthHandler   *HealthHandler
	statsHandler    *StatsHandler
	eventsHandler   *EventsHandler
	trendingHandler *TrendingHandler
	rankHandler     *RankHandler
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithLogger sets the request logger.
func WithLogger(l logger.Logger) ServerOption {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewServer creates a new API server with all handlers and routes.
func NewServer(ctx context.Context, deps Dependencies, limits Limits, opts ...ServerOption) *Server {
	s := &Server{
		logger:          logger.Nop(),
		healthHandler:   NewHealthHandler(deps),
		statsHandler:    NewStatsHandler(deps),
		eventsHandler:   NewEventsHandler(deps),
		trendingHandler: NewTrendingHandler(deps, limits),
		rankHandler:     NewRankHandler(deps, limits.ScorePrecision),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes(ctx)
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes(ctx context.Context) {
	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(AccessLog(s.logger))

	r.With(Metrics("add_event")).Post("/add_event", s.eventsHandler.HandleAddEvent)
	r.With(Metrics("trending")).Get("/trending", s.trendingHandler.HandleGetTrending)
	r.With(Metrics("rank")).Get("/trending/{itemID}", s.rankHandler.HandleGetRank)
	r.With(Metrics("healthz")).Get("/healthz", s.healthHandler.HandleHealth)
	r.With(Metrics("stats")).Get("/stats", s.statsHandler.HandleStats)
	r.Handle("/metrics", promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{}))

	swagger.Register(ctx, r)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not_found", ErrNotFound)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", nil)
	})

	s.router = r
}

type ackResponse struct {
	Status    string `json:"status"`
	Message   string `json:"message"`
	Duplicate bool   `json:"duplicate,omitempty"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	writeJSON(w, status, errorResponse{Code: code, Message: message(status, err)})
}

// message prefers the cause of an *Error, which is what the client needs to fix.
func message(status int, err error) string {
	if err == nil {
		return http.StatusText(status)
	}
	var apiErr *Error
	if errors.As(err, &apiErr) && apiErr.Err != nil {
		return apiErr.Err.Error()
	}
	return err.Error()
}
