package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/worksafe-io/be-permits/internal/auth"
	"github.com/worksafe-io/be-permits/internal/client"
	"github.com/worksafe-io/be-permits/internal/config"
	"github.com/worksafe-io/be-permits/internal/database"
	"github.com/worksafe-io/be-permits/internal/handler"
	"github.com/worksafe-io/be-permits/internal/logger"
	"github.com/worksafe-io/be-permits/internal/middleware"
	"github.com/worksafe-io/be-permits/internal/repository"
	"github.com/worksafe-io/be-permits/internal/service"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(logger.Config{
		Level:       cfg.Service.LogLevel,
		Environment: cfg.Service.Environment,
		ServiceName: cfg.Service.Name,
		Version:     cfg.Service.Version,
	})

	log.Info().
		Str("service", cfg.Service.Name).
		Str("version", cfg.Service.Version).
		Str("environment", cfg.Service.Environment).
		Msg("Starting Permits Service (PTW)")

	// Create context
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize database
	dbCfg := database.Config{
		Host:        cfg.Database.Host,
		Port:        cfg.Database.Port,
		User:        cfg.Database.User,
		Password:    cfg.Database.Password,
		Database:    cfg.Database.Database,
		SSLMode:     cfg.Database.SSLMode,
		MaxConns:    cfg.Database.MaxConns,
		MinConns:    cfg.Database.MinConns,
		MaxConnTime: cfg.Database.MaxConnTime,
		MaxIdleTime: cfg.Database.MaxIdleTime,
	}

	if cfg.Database.Migrate {
		if err := database.Migrate(dbCfg); err != nil {
			log.Fatal().Err(err).Msg("Failed to apply database migrations")
		}
		log.Info().Msg("Database migrations applied")
	}

	db, err := database.New(ctx, dbCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()
	log.Info().Msg("Database connection established")

	// Initialize notification publisher
	events, err := client.NewNotificationPublisher(cfg.NATS.URL, log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to NATS")
	}
	defer events.Close()
	if cfg.NATS.URL != "" {
		log.Info().Str("nats_url", cfg.NATS.URL).Msg("Notification publisher initialized")
	}

	// Initialize repositories
	permitRepo := repository.NewPermitRepository(db)
	userRepo := repository.NewUserRepository(db)

	// Initialize services
	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	permitService := service.NewPermitService(permitRepo, userRepo, events, log)
	authService := service.NewAuthService(userRepo, tokens, log)

	// Setup HTTP routes
	permitHandler := handler.NewPermitHandler(permitService, log)
	authHandler := handler.NewAuthHandler(authService, log)

	router := mux.NewRouter()
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"healthy"}`))
	})

	api := router.PathPrefix("/api/v1").Subrouter()
	authHandler.RegisterPublic(api)

	protected := api.NewRoute().Subrouter()
	protected.Use(auth.Middleware(tokens))
	authHandler.RegisterProtected(protected)
	permitHandler.Register(protected)

	// Apply middleware, innermost first. RequestID must end up outermost
	// so Logger and Recovery find the id in the request context.
	var h http.Handler = router
	h = middleware.Timeout(cfg.Server.RequestTimeout)(h)
	h = cors.New(cors.Options{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}).Handler(h)
	h = middleware.Recovery(&log.Logger)(h)
	h = middleware.Logger(&log.Logger)(h)
	h = middleware.RequestID(h)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      h,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("Starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("HTTP server failed")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	log.Info().Msg("Server stopped")
}
