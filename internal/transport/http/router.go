package http

import (
	"io"
	"log"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"dealership_backend/internal/auth"
	"dealership_backend/internal/handler"
	"dealership_backend/internal/httputil"
	authmw "dealership_backend/internal/transport/http/middleware"
)

// RouterConfig holds the dependencies needed to create routes
type RouterConfig struct {
	NotificationHandler      *handler.NotificationHandler
	AdminNotificationHandler *handler.NotificationHandler
	DeviceHandler            *handler.DeviceHandler
	AdminHandler             *handler.AdminHandler
	Realtime                 http.HandlerFunc
	Verifier                 auth.Verifier
	AllowedOrigins           []string
	// AccessLog receives one line per request; stdout when nil
	AccessLog io.Writer
}

// NewRouter creates and configures a new Chi router with all route groups
func NewRouter(cfg RouterConfig) chi.Router {
	r := chi.NewRouter()

	accessLog := cfg.AccessLog
	if accessLog == nil {
		accessLog = os.Stdout
	}
	// The websocket handshake carries the operator JWT in ?token=
	r.Use(authmw.RedactedLogger(&middleware.DefaultLogFormatter{
		Logger:  log.New(accessLog, "", log.LstdFlags),
		NoColor: cfg.AccessLog != nil,
	}, "token"))
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check endpoint (useful for deployment/monitoring)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSON(w, 200, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	// Operator realtime channel; the handshake does its own authentication
	r.Get("/ws/admin", cfg.Realtime)

	// Guests may register a device for announcements
	r.Group(func(r chi.Router) {
		r.Use(authmw.OptionalAuthMiddleware(cfg.Verifier))
		r.Post("/devices/token", cfg.DeviceHandler.RegisterToken)
		r.Delete("/devices/token", cfg.DeviceHandler.RemoveToken)
	})

	// Protected routes - require authentication
	r.Group(func(r chi.Router) {
		r.Use(authmw.AuthMiddleware(cfg.Verifier))

		r.Post("/devices/sign-out", cfg.DeviceHandler.SignOut)

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", cfg.NotificationHandler.List)
			r.Get("/unread-count", cfg.NotificationHandler.GetUnreadCount)
			r.Patch("/read", cfg.NotificationHandler.MarkRead)
			r.Patch("/read-all", cfg.NotificationHandler.MarkAllRead)
			r.Delete("/{id}", cfg.NotificationHandler.Delete)
		})

		// Operator-only routes
		r.Route("/admin", func(r chi.Router) {
			r.Use(authmw.RequireOperator)

			r.Get("/notifications", cfg.AdminNotificationHandler.List)
			r.Get("/notifications/unread-count", cfg.AdminNotificationHandler.GetUnreadCount)
			r.Patch("/notifications/read", cfg.AdminNotificationHandler.MarkRead)
			r.Patch("/notifications/read-all", cfg.AdminNotificationHandler.MarkAllRead)

			r.Post("/broadcast", cfg.AdminHandler.Broadcast)
			r.Patch("/appointments/{id}/status", cfg.AdminHandler.UpdateAppointmentStatus)
		})
	})

	return r
}
