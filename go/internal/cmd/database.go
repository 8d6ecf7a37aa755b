package main

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/andarbahar/go/internal/dbconfig"
)

// setupDatabase opens the database/sql handle used by the outbox and
// checkpoint repositories and the pgx pool used by the wallet.
func setupDatabase(ctx context.Context) (*sql.DB, *pgxpool.Pool, error) {
	cfg := dbconfig.NewConfigFromEnv()
	dsn := cfg.DSN()

	database, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create database connection: %w", err)
	}
	if err := database.PingContext(ctx); err != nil {
		database.Close()
		return nil, nil, fmt.Errorf("failed to ping database: %w", err)
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		database.Close()
		return nil, nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	log.Info().
		Str("user", cfg.User).
		Str("host", cfg.Host).
		Int("port", cfg.Port).
		Str("database", cfg.Database).
		Msg("connected to database")
	return database, pool, nil
}
