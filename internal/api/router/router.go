package router

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/wolfman30/lab-scheduling-assistant/internal/conversation"
	"github.com/wolfman30/lab-scheduling-assistant/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/lab-scheduling-assistant/internal/http/middleware"
	"github.com/wolfman30/lab-scheduling-assistant/internal/webchat"
	"github.com/wolfman30/lab-scheduling-assistant/pkg/logging"
)

// HealthCheck probes one dependency.
type HealthCheck func(ctx context.Context) error

// Config holds router configuration
type Config struct {
	Logger             *logging.Logger
	ChatHandler        *conversation.Handler
	WebChat            *webchat.Handler
	AdminSchedule      *handlers.AdminScheduleHandler
	AdminAudit         *handlers.AdminAuditHandler
	AdminAuthSecret    string
	ChatLimiter        httpmiddleware.Limiter
	MetricsHandler     http.Handler
	CORSAllowedOrigins []string
	HealthChecks       map[string]HealthCheck
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	r.Use(middleware.Recoverer)
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}

	r.Get("/health", healthHandler(cfg.HealthChecks))
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	// Patient-facing chat
	r.Group(func(chat chi.Router) {
		if cfg.ChatLimiter != nil {
			chat.Use(httpmiddleware.RateLimit(cfg.ChatLimiter, cfg.Logger))
		}
		if cfg.ChatHandler != nil {
			chat.Post("/api/chat", cfg.ChatHandler.Chat)
			chat.Post("/chat", cfg.ChatHandler.Chat)
		}
		if cfg.WebChat != nil {
			chat.Get("/ws/chat", cfg.WebChat.HandleWebSocket)
		}
	})

	// Staff calendar management
	if cfg.AdminAuthSecret != "" {
		r.Route("/admin", func(admin chi.Router) {
			admin.Use(httpmiddleware.AdminJWT(cfg.AdminAuthSecret))
			admin.Use(middleware.Compress(5))
			if cfg.AdminSchedule != nil {
				admin.Get("/blocked-days", cfg.AdminSchedule.ListBlockedDays)
				admin.Post("/blocked-days", cfg.AdminSchedule.AddBlockedDay)
				admin.Delete("/blocked-days/{date}", cfg.AdminSchedule.RemoveBlockedDay)
				admin.Post("/blocked-slots", cfg.AdminSchedule.AddBlockedSlot)
				admin.Delete("/blocked-slots", cfg.AdminSchedule.RemoveBlockedSlot)
				admin.Get("/availability/{date}", cfg.AdminSchedule.DayAvailability)
			}
			if cfg.AdminAudit != nil {
				admin.Get("/audit-events", cfg.AdminAudit.ListEvents)
			}
		})
	}

	return r
}

// healthHandler reports 503 when any dependency probe fails.
func healthHandler(checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := "ok"
		code := http.StatusOK
		results := make(map[string]string, len(checks))
		for name, check := range checks {
			if err := check(ctx); err != nil {
				results[name] = err.Error()
				status = "degraded"
				code = http.StatusServiceUnavailable
				continue
			}
			results[name] = "ok"
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		body := map[string]any{"status": status}
		if len(results) > 0 {
			body["checks"] = results
		}
		_ = json.NewEncoder(w).Encode(body)
	}
}
