package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type RouterConfig struct {
	Auth          *AuthHandler
	Chats         *ChatHandler
	Notifications *NotificationHandler
	System        *SystemHandler
	Authenticator TokenAuthenticator
	Socket        http.Handler
	Metrics       http.Handler
	Logger        *slog.Logger
	// Middleware wraps every route, outermost first.
	Middleware []func(http.Handler) http.Handler
	// Tracing enables otelhttp server spans.
	Tracing bool
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(RequestLogger(cfg.Logger))
	for _, mw := range cfg.Middleware {
		if mw != nil {
			r.Use(mw)
		}
	}
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		newResponder(cfg.Logger).writeError(req.Context(), w, http.StatusMethodNotAllowed, nil)
	})
	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		newResponder(cfg.Logger).writeError(req.Context(), w, http.StatusNotFound, nil)
	})

	if cfg.System != nil {
		r.Get("/healthz", cfg.System.Healthz)
	}
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics)
	}
	if cfg.Socket != nil {
		r.Method(http.MethodGet, "/ws", cfg.Socket)
	}
	if cfg.Auth != nil {
		r.Post("/sessions", cfg.Auth.CreateSession)
	}

	r.Group(func(pr chi.Router) {
		if cfg.Authenticator != nil {
			pr.Use(RequireAuth(cfg.Authenticator, cfg.Logger))
		}

		if cfg.Chats != nil {
			pr.Get("/chats", cfg.Chats.ListChats)
			pr.Route("/chat", func(cr chi.Router) {
				cr.Post("/{chatId}/messages", cfg.Chats.SendMessage)
				cr.Get("/{chatId}/messages", cfg.Chats.ListMessages)
				cr.Patch("/messages/{messageId}/read", cfg.Chats.MarkRead)
			})
		}
		if cfg.Notifications != nil {
			pr.Route("/notifications", func(nr chi.Router) {
				nr.Get("/", cfg.Notifications.List)
				nr.Get("/unread-count", cfg.Notifications.UnreadCount)
				nr.Post("/read-all", cfg.Notifications.MarkAllRead)
				nr.Patch("/{id}/read", cfg.Notifications.MarkRead)
			})
		}
		if cfg.System != nil {
			pr.Get("/presence", cfg.System.Presence)
		}
	})

	if !cfg.Tracing {
		return r
	}
	return otelhttp.NewHandler(r, "shiftline.http",
		otelhttp.WithSpanNameFormatter(func(_ string, req *http.Request) string {
			return req.Method + " " + req.URL.Path
		}),
	)
}
