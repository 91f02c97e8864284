package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"go-identity-gate/internal/config"
	"go-identity-gate/internal/handler"
	"go-identity-gate/internal/middleware"
	"go-identity-gate/internal/model"
)

type Handlers struct {
	Auth      *handler.AuthHandler
	Profile   *handler.ProfileHandler
	Federated *handler.FederatedHandler
	User      *handler.UserHandler
}

func New(cfg *config.Config, authMiddleware *middleware.AuthMiddleware, h Handlers) http.Handler {
	r := chi.NewRouter()
	rateLimitMiddleware := middleware.NewRateLimitMiddleware(cfg.RateLimitRPM, cfg.AuthRateLimitRPM)

	r.Use(middleware.Recovery)
	r.Use(middleware.Logging)
	r.Use(middleware.CORS(cfg.CORSOrigins))
	r.Use(middleware.SecurityHeaders)
	r.Use(rateLimitMiddleware.Handler)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Route("/api", func(api chi.Router) {
		api.Use(middleware.Timeout(cfg.RequestTimeout))
		api.Use(authMiddleware.Session)

		api.Route("/auth", func(auth chi.Router) {
			auth.Post("/", h.Auth.Submit)
			auth.Post("/register", h.Auth.Register)
			auth.Post("/login", h.Auth.Login)
			auth.Post("/logout", h.Auth.Logout)
			auth.With(authMiddleware.RequireAuthenticated).Get("/me", h.Auth.Me)

			auth.Get("/federated/start", h.Federated.Start)
			auth.Get("/federated/callback", h.Federated.Callback)
		})

		api.Get("/profile", h.Profile.Get)

		api.Route("/users", func(users chi.Router) {
			users.Use(authMiddleware.RequireRole(model.RoleAdmin))
			users.Get("/", h.User.List)
			users.Get("/{id}", h.User.Get)
			users.Patch("/{id}", h.User.Update)
		})
	})

	return r
}
