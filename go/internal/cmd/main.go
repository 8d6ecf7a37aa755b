package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/andarbahar/go/internal/config"
	"github.com/mcdev12/andarbahar/go/internal/table/store"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	settings, err := config.FromEnv()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	setupLogging(settings)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var services *Services
	if settings.Wallet == "postgres" {
		database, pool, err := setupDatabase(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to set up database")
		}
		defer database.Close()
		defer pool.Close()

		if settings.Migrate {
			if err := store.Migrate(ctx, database); err != nil {
				log.Fatal().Err(err).Msg("failed to migrate database")
			}
		}
		services, err = setupServices(ctx, settings, database, pool)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to set up services")
		}
	} else {
		services, err = setupServices(ctx, settings, nil, nil)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to set up services")
		}
	}
	if services.Redis != nil {
		defer services.Redis.Close()
	}

	go services.Gateway.Start(ctx)
	if err := services.Registry.Start(ctx, services.Checkpoints); err != nil {
		log.Fatal().Err(err).Msg("failed to start tables")
	}
	defer services.Registry.Close()

	server := setupServer(settings.Port, services)
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", server.Addr).Msg("server listening")
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("server failed")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown")
	}
	log.Info().Msg("graceful shutdown complete")
}
