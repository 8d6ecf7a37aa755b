package main

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/andarbahar/go/internal/auth"
	"github.com/mcdev12/andarbahar/go/internal/config"
	"github.com/mcdev12/andarbahar/go/internal/table/admin"
	"github.com/mcdev12/andarbahar/go/internal/table/engine"
	"github.com/mcdev12/andarbahar/go/internal/table/gateway"
	"github.com/mcdev12/andarbahar/go/internal/table/outbox"
	"github.com/mcdev12/andarbahar/go/internal/table/payout"
	"github.com/mcdev12/andarbahar/go/internal/table/store"
	"github.com/mcdev12/andarbahar/go/internal/wallet"
)

type Services struct {
	Auth        *auth.Authenticator
	Registry    *engine.Registry
	Gateway     *gateway.Service
	Admin       *admin.Service
	Checkpoints engine.CheckpointStore
	Redis       *redis.Client
}

// setupServices wires storage → tables → gateway and admin API. database and
// pool are nil when the server runs with the in-memory wallet.
func setupServices(ctx context.Context, settings config.Settings, database *sql.DB, pool *pgxpool.Pool) (*Services, error) {
	rules, ids, err := config.LoadTables(settings.TablesConfig)
	if err != nil {
		return nil, err
	}

	authn := auth.NewAuthenticator(settings.JWTSecret, settings.JWTIssuer)
	registry := engine.NewRegistry()

	gwConfig := gateway.DefaultConfig()
	gwConfig.AllowInsecureUserID = settings.AllowInsecureUserID
	gw := gateway.NewService(gwConfig, registry, authn)

	var w wallet.Wallet
	var sink engine.EventSink
	var checkpoints engine.CheckpointStore
	if pool != nil {
		w = wallet.NewPostgresWallet(pool)
		sink = outbox.NewRepository(database)
		checkpoints = store.NewCheckpointRepository(database)
	} else {
		w = wallet.NewMemoryWallet(settings.OpeningBalance)
		log.Warn().Str("opening_balance", settings.OpeningBalance.String()).Msg("using in-memory wallet")
	}

	var marker payout.Marker = payout.NewMemoryMarker()
	var rdb *redis.Client
	if settings.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: settings.RedisAddr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			rdb.Close()
			return nil, fmt.Errorf("failed to ping redis: %w", err)
		}
		marker = payout.NewRedisMarker(rdb, 0)
	}

	for _, id := range ids {
		table, err := engine.NewTable(id, rules[id], engine.Deps{
			Wallet:      w,
			Marker:      marker,
			Publisher:   gw.Publisher(id),
			Sink:        sink,
			Checkpoints: checkpoints,
		})
		if err != nil {
			return nil, err
		}
		if err := registry.Add(table); err != nil {
			return nil, err
		}
	}

	return &Services{
		Auth:        authn,
		Registry:    registry,
		Gateway:     gw,
		Admin:       admin.NewService(registry),
		Checkpoints: checkpoints,
		Redis:       rdb,
	}, nil
}
