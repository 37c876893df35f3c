package main

import (
	"classplay/internal/app"
	"classplay/internal/config"
	"classplay/internal/transport/rest"
	"classplay/internal/transport/ws"
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	config.SetupLogging(cfg.LogLevel, cfg.LogFormat)

	ctx := context.Background()
	a, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to start")
	}
	defer a.Close(ctx)

	// Initialize WebSocket hub
	wsHub := ws.NewHub(a.Sessions, a.Moves)
	defer wsHub.Close()

	// Inject broadcaster (wsHub implements service.Broadcaster)
	a.Sessions.SetBroadcaster(wsHub)
	a.Turns.SetBroadcaster(wsHub)

	router := rest.NewRouter(&rest.Container{
		AuthService:     a.Auth,
		SessionService:  a.Sessions,
		TurnCoordinator: a.Turns,
		MoveLog:         a.Moves,
		WSHub:           wsHub,
		AllowedOrigins:  cfg.CORSAllowedOrigins,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.HTTPPort).Str("store", cfg.StoreBackend).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("ListenAndServe")
		}
	}()

	// Wait for interrupt
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server exited")
}
