package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/ImpulseADHD/Chief-Productivity-Officer/internal/checkin"
	"github.com/ImpulseADHD/Chief-Productivity-Officer/internal/config"
	"github.com/ImpulseADHD/Chief-Productivity-Officer/internal/groups"
	"github.com/ImpulseADHD/Chief-Productivity-Officer/internal/logger"
	"github.com/ImpulseADHD/Chief-Productivity-Officer/internal/observability"
	"github.com/ImpulseADHD/Chief-Productivity-Officer/internal/render"
	"github.com/ImpulseADHD/Chief-Productivity-Officer/internal/tasks"
)

// Checkins is the read side of the check-in service.
type Checkins interface {
	Sessions() []render.CheckinState
	Session(id string) (render.CheckinState, error)
	Feed() *checkin.Feed
	ActiveCount() int
}

type TaskLister interface {
	List(ctx context.Context, userID string) ([]tasks.Task, error)
}

type GroupLister interface {
	List(ctx context.Context, guildID string) ([]groups.Group, error)
}

// Deps wires the server to the bot's services. Tasks, Groups and Ready are
// optional.
type Deps struct {
	Checkins Checkins
	Tasks    TaskLister
	Groups   GroupLister
	Metrics  *observability.Metrics
	Logger   logrus.FieldLogger
	// Ready reports whether the chat gateway connection is usable.
	Ready func() error
	// StoreMode is "postgres" or "in-memory".
	StoreMode string
}

type Server struct {
	cfg      config.Config
	deps     Deps
	log      logrus.FieldLogger
	upgrader websocket.Upgrader
}

func New(cfg config.Config, deps Deps) *Server {
	log := deps.Logger
	if log == nil {
		log = logger.Discard()
	}
	return &Server{
		cfg:  cfg,
		deps: deps,
		log:  log.WithField("component", "httpapi"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Browsers may only attach from the same origin unless explicitly opened up.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Route("/v1", func(r chi.Router) {
		r.Get("/checkins", s.handleListCheckins)
		r.Get("/checkins/ws", s.handleCheckinFeed)
		r.Get("/checkins/{id}", s.handleGetCheckin)
		r.Get("/tasks", s.handleListTasks)
		r.Get("/groups", s.handleListGroups)
		r.Get("/perf/latency", s.handlePerfLatency)
	})

	return r
}

type readinessCheck struct {
	ID     string `json:"id"`
	Status string `json:"status"` // ok|warn|error
	Detail string `json:"detail,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":          "ok",
		"active_sessions": s.deps.Checkins.ActiveCount(),
		"store_mode":      s.storeMode(),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	checks := s.readinessChecks()
	status, code := "ready", http.StatusOK
	for _, c := range checks {
		if c.Status == "error" {
			status, code = "not_ready", http.StatusServiceUnavailable
			break
		}
	}
	respondJSON(w, code, map[string]any{
		"status":     status,
		"store_mode": s.storeMode(),
		"checks":     checks,
	})
}

func (s *Server) readinessChecks() []readinessCheck {
	checks := make([]readinessCheck, 0, 3)

	gatewayCheck := readinessCheck{ID: "discord_gateway", Status: "ok"}
	if s.deps.Ready != nil {
		if err := s.deps.Ready(); err != nil {
			gatewayCheck.Status = "error"
			gatewayCheck.Detail = err.Error()
		}
	}
	checks = append(checks, gatewayCheck)

	storeCheck := readinessCheck{ID: "store", Status: "ok", Detail: s.storeMode()}
	if s.storeMode() == "in-memory" {
		storeCheck.Status = "warn"
		storeCheck.Detail = "DATABASE_URL is unset; tasks, groups and managers are not persisted"
	}
	checks = append(checks, storeCheck)

	devCheck := readinessCheck{ID: "bot_developer", Status: "ok"}
	if strings.TrimSpace(s.cfg.DeveloperID) == "" {
		devCheck.Status = "warn"
		devCheck.Detail = "BOT_DEVELOPER_ID is unset; permission commands are unusable"
	}
	return append(checks, devCheck)
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}

func (s *Server) storeMode() string {
	if mode := strings.TrimSpace(s.deps.StoreMode); mode != "" {
		return mode
	}
	return "in-memory"
}
