package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/felixgeelhaar/sensei/internal/config"
	"github.com/felixgeelhaar/sensei/internal/domain"
	"github.com/felixgeelhaar/sensei/internal/practice"
	"github.com/felixgeelhaar/sensei/internal/progression"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// UserHeader names the learner a request acts for.
const UserHeader = "X-Sensei-User"

// PracticeService is what the HTTP handlers need from practice.Service.
type PracticeService interface {
	Subjects() []domain.Subject
	Today() time.Time
	NewChallenge(ctx context.Context, userID string, req practice.NewChallengeRequest) (*practice.ChallengeView, error)
	GetChallenge(ctx context.Context, id uuid.UUID) (*practice.ChallengeView, error)
	Daily(ctx context.Context, userID string, count int) (*practice.DailyChallenges, error)
	Hint(ctx context.Context, id uuid.UUID, current int) (*practice.HintResult, error)
	Submit(ctx context.Context, userID string, req practice.SubmitRequest) (*practice.SubmissionResult, error)
	Overview(ctx context.Context, userID string) (*practice.Overview, error)
	SubjectDetail(ctx context.Context, userID, subject string) (*practice.SubjectDetail, error)
	WeeklyActivity(ctx context.Context, userID string, today time.Time) (*practice.WeeklyActivity, error)
	History(ctx context.Context, userID string, page, pageSize int) (*practice.HistoryPage, error)
	Streak(ctx context.Context, userID string) (progression.StreakView, error)
	NextDifficulty(ctx context.Context, userID, subject string) (int, error)
	Status(ctx context.Context) practice.Status
}

var _ PracticeService = (*practice.Service)(nil)

// Server represents the sensei daemon HTTP server
type Server struct {
	cfg         *config.LocalConfig
	server      *http.Server
	router      *http.ServeMux
	practice    PracticeService
	gatherer    prometheus.Gatherer
	version     string
	defaultUser string
}

// ServerConfig holds configuration for creating a new server
type ServerConfig struct {
	Config   *config.LocalConfig
	Practice PracticeService
	Gatherer prometheus.Gatherer // nil disables /metrics
	Version  string
}

// NewServer creates a new daemon server
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Config == nil {
		return nil, errors.New("config is required")
	}
	if cfg.Practice == nil {
		return nil, errors.New("practice service is required")
	}

	s := &Server{
		cfg:         cfg.Config,
		router:      http.NewServeMux(),
		practice:    cfg.Practice,
		gatherer:    cfg.Gatherer,
		version:     cfg.Version,
		defaultUser: cfg.Config.Daemon.DefaultUser,
	}
	if s.version == "" {
		s.version = "dev"
	}
	if s.defaultUser == "" {
		s.defaultUser = "local"
	}

	s.setupRoutes()

	s.server = &http.Server{
		Addr:         cfg.Config.Addr(),
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 180 * time.Second, // generation can take several backend attempts
		IdleTimeout:  120 * time.Second,
	}

	return s, nil
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	// Health & status
	s.router.HandleFunc("GET /v1/health", s.handleHealth)
	s.router.HandleFunc("GET /v1/status", s.handleStatus)

	// Catalog
	s.router.HandleFunc("GET /v1/subjects", s.handleListSubjects)

	// Challenges
	s.router.HandleFunc("POST /v1/challenges", s.handleCreateChallenge)
	s.router.HandleFunc("GET /v1/challenges/daily", s.handleDailyChallenges)
	s.router.HandleFunc("GET /v1/challenges/{id}", s.handleGetChallenge)
	s.router.HandleFunc("POST /v1/challenges/{id}/hint", s.handleHint)
	s.router.HandleFunc("POST /v1/challenges/{id}/submit", s.handleSubmit)

	// Progress
	s.router.HandleFunc("GET /v1/history", s.handleHistory)
	s.router.HandleFunc("GET /v1/progress", s.handleOverview)
	s.router.HandleFunc("GET /v1/progress/weekly", s.handleWeekly)
	s.router.HandleFunc("GET /v1/progress/{subject}", s.handleSubjectProgress)
	s.router.HandleFunc("GET /v1/streak", s.handleStreak)
	s.router.HandleFunc("GET /v1/difficulty/{subject}", s.handleDifficulty)
	s.router.HandleFunc("GET /v1/levels/{xp}", s.handleLevel)

	if s.gatherer != nil {
		s.router.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
}

// Handler returns the routed handler wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	return recoveryMiddleware(correlationIDMiddleware(loggingMiddleware(s.router)))
}

// Start starts the HTTP server
func (s *Server) Start() error {
	slog.Info("starting sensei daemon",
		"addr", s.server.Addr,
		"version", s.version,
	)
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("shutting down daemon...")
	return s.server.Shutdown(ctx)
}

// userID returns the learner named by the request, or the default user.
func (s *Server) userID(r *http.Request) string {
	if u := r.Header.Get(UserHeader); u != "" {
		return u
	}
	return s.defaultUser
}

func (s *Server) jsonResponse(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func (s *Server) jsonError(w http.ResponseWriter, status int, message string, err error) {
	response := map[string]interface{}{
		"error":  message,
		"status": status,
	}
	if err != nil {
		response["details"] = err.Error()
	}
	s.jsonResponse(w, status, response)
}

// serviceError maps a practice error onto a status code.
func (s *Server) serviceError(w http.ResponseWriter, message string, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidInput), errors.Is(err, domain.ErrNoMoreHints):
		s.jsonError(w, http.StatusBadRequest, message, err)
	case errors.Is(err, domain.ErrNotFound):
		s.jsonError(w, http.StatusNotFound, message, err)
	case errors.Is(err, domain.ErrConnection):
		s.jsonError(w, http.StatusServiceUnavailable, message, err)
	default:
		s.jsonError(w, http.StatusInternalServerError, message, err)
	}
}
