// Package router wires the HTTP surface: public channels, tenant-scoped
// scheduling APIs and JWT-guarded admin endpoints.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/evolvian/assistant-platform/internal/channels/email"
	"github.com/evolvian/assistant-platform/internal/channels/webchat"
	"github.com/evolvian/assistant-platform/internal/channels/whatsapp"
	"github.com/evolvian/assistant-platform/internal/http/handlers"
	httpmiddleware "github.com/evolvian/assistant-platform/internal/http/middleware"
	"github.com/evolvian/assistant-platform/pkg/logging"
)

// Config holds router configuration.
type Config struct {
	Logger *logging.Logger

	WebchatHandler  *webchat.Handler
	WhatsAppHandler *whatsapp.Handler
	EmailHandler    *email.Handler

	AppointmentsHandler *handlers.AppointmentsHandler
	AvailabilityHandler *handlers.AvailabilityHandler
	AdminHandler        *handlers.AdminHandler

	AdminAuthSecret    string
	MetricsHandler     http.Handler
	CORSAllowedOrigins []string

	// Requests/sec per IP on the public channel endpoints; 0 disables.
	PublicRateLimit float64
	PublicRateBurst int
}

// New creates a new Chi router with all routes configured.
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	// Public channel endpoints.
	r.Group(func(public chi.Router) {
		if cfg.PublicRateLimit > 0 {
			public.Use(httpmiddleware.RateLimit(cfg.PublicRateLimit, cfg.PublicRateBurst))
		}
		if cfg.WebchatHandler != nil {
			public.Route("/webchat", func(r chi.Router) {
				r.Post("/message", cfg.WebchatHandler.HandleMessage)
				r.Get("/ws", cfg.WebchatHandler.HandleWebSocket)
				r.Get("/history", cfg.WebchatHandler.HandleHistory)
				r.Get("/widget.js", cfg.WebchatHandler.HandleWidgetJS)
			})
		}
		if cfg.WhatsAppHandler != nil {
			public.Post("/webhooks/whatsapp", cfg.WhatsAppHandler.HandleWebhook)
		}
		if cfg.EmailHandler != nil {
			public.Post("/channels/email", cfg.EmailHandler.HandleInbound)
		}
	})

	// Tenant-scoped scheduling API.
	r.Route("/v1", func(v1 chi.Router) {
		v1.Use(requireTenantID)
		if cfg.AppointmentsHandler != nil {
			v1.Post("/appointments", cfg.AppointmentsHandler.Register)
			v1.Patch("/appointments/{appointmentID}/status", cfg.AppointmentsHandler.UpdateStatus)
		}
		if cfg.AvailabilityHandler != nil {
			v1.Get("/availability", cfg.AvailabilityHandler.List)
		}
	})

	// Admin routes (protected by JWT).
	if cfg.AdminHandler != nil && cfg.AdminAuthSecret != "" {
		r.Route("/admin", func(admin chi.Router) {
			admin.Use(httpmiddleware.AdminJWT(cfg.AdminAuthSecret))
			admin.Get("/history", cfg.AdminHandler.History)
			admin.Post("/documents", cfg.AdminHandler.UploadDocument)
			admin.Post("/reindex", cfg.AdminHandler.Reindex)
		})
	}

	return r
}
