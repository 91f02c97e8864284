package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go-identity-gate/internal/config"
	"go-identity-gate/internal/database"
	"go-identity-gate/internal/event"
	"go-identity-gate/internal/handler"
	"go-identity-gate/internal/middleware"
	"go-identity-gate/internal/repository"
	"go-identity-gate/internal/router"
	"go-identity-gate/internal/service"
	"go-identity-gate/internal/session"
)

type App struct {
	server       *http.Server
	cleanupFuncs []func()
}

func New(cfg *config.Config) (*App, error) {
	a := &App{}
	ctx := context.Background()

	users, sessionTokens, err := a.openRegistry(ctx, cfg)
	if err != nil {
		a.cleanup()
		return nil, err
	}

	ambient, err := a.openAmbientStore(ctx, cfg)
	if err != nil {
		a.cleanup()
		return nil, err
	}

	registry, err := service.NewRegistryService(users, cfg.BcryptCost)
	if err != nil {
		a.cleanup()
		return nil, fmt.Errorf("failed to initialize registry: %w", err)
	}

	tokens, err := service.NewTokenService(service.TokenServiceConfig{
		Secret:    cfg.JWTSecret,
		Algorithm: cfg.JWTAlgorithm,
		TTL:       cfg.JWTTTL,
		Issuer:    cfg.JWTIssuer,
		Audience:  cfg.JWTAudience,
		Leeway:    cfg.JWTLeeway,
	})
	if err != nil {
		a.cleanup()
		return nil, fmt.Errorf("failed to initialize token service: %w", err)
	}

	bus := event.NewBus()
	authService := service.NewAuthService(registry, tokens, sessionTokens, cfg.SessionTokenTTL, bus)
	resolver := service.NewResolver(tokens, users, sessionTokens)

	var federated *service.FederatedService
	if cfg.FederatedEnabled() {
		federated = service.NewFederatedService(service.FederatedConfig{
			ClientID:     cfg.OAuthClientID,
			ClientSecret: cfg.OAuthClientSecret,
			AuthURL:      cfg.OAuthAuthURL,
			TokenURL:     cfg.OAuthTokenURL,
			UserInfoURL:  cfg.OAuthUserInfoURL,
			RedirectURL:  cfg.OAuthRedirectURL,
			Scopes:       cfg.OAuthScopes,
		}, registry, bus)
		slog.Info("federated login enabled", "auth_url", cfg.OAuthAuthURL)
	}

	sessions := session.NewManager(ambient, cfg.SessionCookieName, cfg.AmbientSessionTTL, cfg.SessionCookieSecure)
	authMiddleware := middleware.NewAuthMiddleware(resolver, sessions, cfg.AuthForbiddenStatus)

	appRouter := router.New(cfg, authMiddleware, router.Handlers{
		Auth:      handler.NewAuthHandler(authService, sessions),
		Profile:   handler.NewProfileHandler(authService, sessions),
		Federated: handler.NewFederatedHandler(federated, sessions),
		User:      handler.NewUserHandler(registry, authService, sessions),
	})

	bgCtx, bgCancel := context.WithCancel(context.Background())
	go event.RunAuditLog(bgCtx, bus, slog.Default().With("component", "audit"))
	go authService.StartSessionCleanup(bgCtx, cfg.SessionCleanupInterval)
	a.cleanupFuncs = append([]func(){bgCancel}, a.cleanupFuncs...)

	a.server = &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           appRouter,
		ReadHeaderTimeout: cfg.ServerReadHeaderTimeout,
		WriteTimeout:      cfg.ServerWriteTimeout,
		IdleTimeout:       cfg.ServerIdleTimeout,
	}

	return a, nil
}

// openRegistry picks PostgreSQL when DATABASE_URL is set and the JSON file
// plus in-process session tokens otherwise.
func (a *App) openRegistry(ctx context.Context, cfg *config.Config) (repository.UserStore, repository.SessionStore, error) {
	if cfg.DatabaseURL == "" {
		users, err := repository.NewFileUserRepository(cfg.UsersFile)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open users file: %w", err)
		}
		slog.Info("registry ready", "backend", "file", "path", cfg.UsersFile)
		return users, repository.NewMemorySessionRepository(), nil
	}

	slog.Info("connecting to PostgreSQL")
	db, err := database.New(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	a.cleanupFuncs = append(a.cleanupFuncs, db.Close)

	if err := db.EnsureSchema(ctx); err != nil {
		return nil, nil, fmt.Errorf("failed to ensure database schema: %w", err)
	}

	slog.Info("registry ready", "backend", "postgres")
	return repository.NewUserRepository(db.Pool), repository.NewSessionRepository(db.Pool), nil
}

func (a *App) openAmbientStore(ctx context.Context, cfg *config.Config) (session.Store, error) {
	if cfg.RedisURL == "" {
		slog.Info("ambient sessions kept in memory")
		return session.NewMemoryStore(), nil
	}

	client, err := session.Connect(ctx, cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	a.cleanupFuncs = append(a.cleanupFuncs, func() { _ = client.Close() })

	slog.Info("ambient sessions kept in redis")
	return session.NewRedisStore(client), nil
}

func (a *App) cleanup() {
	for _, fn := range a.cleanupFuncs {
		fn()
	}
	a.cleanupFuncs = nil
}

func (a *App) Run() error {
	go func() {
		slog.Info("server starting", "addr", a.server.Addr)
		if serveErr := a.server.ListenAndServe(); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			slog.Error("server failed", "error", serveErr)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	shutdownErr := a.server.Shutdown(ctx)
	a.cleanup()

	if shutdownErr != nil {
		return fmt.Errorf("graceful shutdown failed: %w", shutdownErr)
	}

	slog.Info("server stopped")
	return nil
}
