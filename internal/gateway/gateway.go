// Package gateway is the HTTP boundary of the dashboard engine. Routing,
// auth and CORS are thin plumbing over the engines; every handler maps the
// engine error taxonomy onto status codes and returns JSON.
package gateway

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/karem505/openclaw-agent-dashboard/internal/bus"
	"github.com/karem505/openclaw-agent-dashboard/internal/config"
	"github.com/karem505/openclaw-agent-dashboard/internal/cron"
	obs "github.com/karem505/openclaw-agent-dashboard/internal/otel"
	"github.com/karem505/openclaw-agent-dashboard/internal/sessions"
	"github.com/karem505/openclaw-agent-dashboard/internal/shared"
	"github.com/karem505/openclaw-agent-dashboard/internal/task"
	"github.com/karem505/openclaw-agent-dashboard/internal/workspace"
)

// Config holds the dependencies for the HTTP server.
type Config struct {
	Tasks       *task.Engine
	Attachments *task.Attachments
	Cron        *cron.Engine
	Sessions    *sessions.Aggregator
	Workspace   *workspace.Workspace
	Bus         *bus.Bus
	Logger      *slog.Logger
	Metrics     *obs.Metrics
	Tracer      trace.Tracer

	// AuthToken is the opaque shared secret. Empty disables all
	// authenticated routes (everything 401s except health/login).
	AuthToken string

	CORS           config.CORSConfig
	MaxBodyBytes   int64
	MaxUploadBytes int64
}

// Server is the dashboard HTTP API.
type Server struct {
	cfg    Config
	logger *slog.Logger

	tokenMu   sync.RWMutex
	authToken string

	started time.Time
}

// New creates the server.
func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cfg:       cfg,
		logger:    logger,
		authToken: cfg.AuthToken,
		started:   time.Now(),
	}
}

// SetAuthToken swaps the shared secret; used by config hot reload.
func (s *Server) SetAuthToken(token string) {
	s.tokenMu.Lock()
	s.authToken = token
	s.tokenMu.Unlock()
}

// Handler builds the route table wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/login", s.handleLogin)
	mux.HandleFunc("/logout", s.handleLogout)
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/tasks", s.handleTasks)
	mux.HandleFunc("/tasks/", s.handleTaskSubroutes)
	mux.HandleFunc("/cron", s.handleCron)
	mux.HandleFunc("/cron/", s.handleCronSubroutes)
	mux.HandleFunc("/agents", s.handleAgents)
	mux.HandleFunc("/files", s.handleFiles)
	mux.HandleFunc("/skills", s.handleSkills)
	mux.HandleFunc("/logs", s.handleLogs)
	mux.HandleFunc("/logs/", s.handleLogs)

	var h http.Handler = mux
	h = s.authMiddleware(h)
	h = s.requestLogMiddleware(h)
	h = RequestSizeLimitMiddleware(s.cfg.MaxBodyBytes, s.cfg.MaxUploadBytes)(h)
	h = NewCORSMiddleware(s.cfg.CORS)(h)
	return h
}

// segments splits a path into its non-empty components.
func segments(path string) []string {
	return strings.FieldsFunc(strings.TrimSuffix(path, "/"), func(r rune) bool { return r == '/' })
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

// writeEngineError maps the engine error taxonomy onto HTTP statuses.
func (s *Server) writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case shared.IsValidation(err):
		s.writeError(w, http.StatusBadRequest, err.Error())
	case shared.IsNotFound(err):
		s.writeError(w, http.StatusNotFound, err.Error())
	case shared.IsConflict(err):
		s.writeError(w, http.StatusConflict, err.Error())
	default:
		s.logger.Error("request failed", "error", err)
		s.writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// decodeBody parses a JSON request body; an empty body decodes to the zero
// value, malformed JSON is a validation error.
func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return shared.Validationf("invalid JSON body")
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"uptime": time.Since(s.started).Seconds(),
	})
}

// requestLogMiddleware records the request duration metric and an access
// log line at debug level.
func (s *Server) requestLogMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx := shared.WithTraceID(r.Context(), shared.NewTraceID())
		if s.cfg.Tracer != nil {
			var span trace.Span
			ctx, span = obs.StartServerSpan(ctx, s.cfg.Tracer, r.Method+" "+r.URL.Path, obs.AttrRoute.String(r.URL.Path))
			defer span.End()
		}
		next.ServeHTTP(w, r.WithContext(ctx))
		if s.cfg.Metrics != nil {
			s.cfg.Metrics.RequestDuration.Record(ctx, time.Since(start).Seconds())
		}
		s.logger.DebugContext(ctx, "request", "method", r.Method, "path", r.URL.Path, "duration_ms", time.Since(start).Milliseconds())
	})
}
