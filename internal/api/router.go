package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/parley-chat/parley/internal/api/middleware"
	"github.com/parley-chat/parley/internal/auth"
	"github.com/parley-chat/parley/internal/config"
	"github.com/parley-chat/parley/internal/handlers"
	"github.com/parley-chat/parley/internal/store"
	"github.com/parley-chat/parley/internal/ws"
)

// Deps carries everything the router needs.
type Deps struct {
	Config  *config.Config
	Logger  zerolog.Logger
	Handler *handlers.Handler
	Auth    *auth.Manager
	WS      *ws.Handler
	Redis   *store.RedisStore
}

// NewRouter creates and configures the HTTP router.
func NewRouter(d Deps) *chi.Mux {
	r := chi.NewRouter()

	// Metrics middleware (first to capture all requests)
	r.Use(middleware.Metrics)

	// Security middleware (order matters!)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.MaxBodySize(4 * 1024 * 1024)) // inline media rides in message payloads

	// Standard middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(d.Logger))
	r.Use(chimw.Recoverer)

	// Rate limiting
	limiter := middleware.NewRateLimiter(d.Redis, d.Logger)
	r.Use(limiter.Middleware)

	// CORS with credentials: the browser client sends the Token cookie.
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   d.Config.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	authmw := middleware.NewAuthMiddleware(d.Auth)

	// Metrics endpoint (for Prometheus scraping)
	r.Handle("/metrics", promhttp.Handler())

	// Public routes (no auth required)
	r.Get("/health", d.Handler.Health)
	r.Post("/signup", d.Handler.Signup)
	r.Post("/login", d.Handler.Login)
	r.Post("/refresh", d.Handler.Refresh)

	// Uploaded media (images, audio, documents)
	r.Handle("/uploads/*", http.StripPrefix("/uploads/", http.FileServer(http.Dir(d.Config.UploadDir))))

	// WebSocket endpoint authenticates during the handshake itself.
	r.Get("/ws", d.WS.ServeHTTP)

	// Authenticated routes
	r.Group(func(r chi.Router) {
		r.Use(authmw.RequireAuth)

		r.Post("/logout", d.Handler.Logout)
		r.Get("/users", d.Handler.ListUsers)

		r.Post("/chats", d.Handler.CreateChat)
		r.Post("/chats/group", d.Handler.CreateGroupChat)
		r.Get("/chats", d.Handler.ListChats)
		r.Get("/chats/{id}/messages", d.Handler.GetChatMessages)
		r.Get("/chats/{id}/active/{userId}", d.Handler.IsActiveInChat)
	})

	return r
}
