package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/sujalbistaa/whispr/internal/board"
	"github.com/sujalbistaa/whispr/internal/config"
	"github.com/sujalbistaa/whispr/internal/db"
	routes "github.com/sujalbistaa/whispr/internal/http"
	"github.com/sujalbistaa/whispr/internal/identity"
	"github.com/sujalbistaa/whispr/internal/logging"
	"github.com/sujalbistaa/whispr/internal/moderation"
	"github.com/sujalbistaa/whispr/internal/ws"
)

func main() {
	// 1. Load configuration (.env first, then the process environment)
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	logging.Setup(cfg.LogLevel, cfg.LogFormat)

	// 2. Initialize Database
	database, err := db.Init(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}

	// 3. Moderation
	var classifier moderation.Classifier = moderation.Passthrough{}
	if cfg.ModerationAPIKey != "" {
		classifier = moderation.NewLLMClassifier(cfg.ModerationAPIKey, cfg.ModerationAPIURL, cfg.ModerationModel, cfg.ModerationTimeout)
		log.Info().Str("model", cfg.ModerationModel).Msg("Toxicity classifier enabled")
	} else {
		log.Warn().Msg("MODERATION_API_KEY not set, confessions will not be scored for toxicity")
	}
	pipeline := moderation.NewPipeline(classifier, cfg.ModerationTimeout)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 4. Initialize WebSocket Hub
	hub := ws.NewHub()
	go hub.Run(ctx)

	// 5. Board service
	gate := identity.NewGate(database, cfg.ActivationKey, identity.WithCooldown(cfg.PostCooldown))
	svc := board.NewService(database, gate, pipeline, hub)

	// 6. Router
	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	if err := routes.SetupRoutes(ctx, router, cfg, svc, hub); err != nil {
		log.Fatal().Err(err).Msg("Failed to set up routes")
	}

	// 7. Start Server with Graceful Shutdown
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.Port).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("listen")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}
	if sqlDB, err := database.DB(); err == nil {
		_ = sqlDB.Close()
	}

	log.Info().Msg("Server exiting")
}
