package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/mcdev12/andarbahar/go/internal/dbconfig"
)

// Wallet is one entry of the seed file.
type Wallet struct {
	UserID string          `json:"user_id"`
	Main   decimal.Decimal `json:"main_balance"`
	Bonus  decimal.Decimal `json:"bonus_balance"`
}

func main() {
	path := flag.String("file", "go/internal/assets/wallets.json", "JSON list of wallets to seed")
	reset := flag.Bool("reset", false, "overwrite balances of existing wallets")
	flag.Parse()

	_ = godotenv.Load()

	// 1) Load the JSON snapshot
	data, err := os.ReadFile(*path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read JSON: %v\n", err)
		os.Exit(1)
	}
	var wallets []Wallet
	if err := json.Unmarshal(data, &wallets); err != nil {
		fmt.Fprintf(os.Stderr, "unmarshal JSON: %v\n", err)
		os.Exit(1)
	}

	// 2) Connect using shared dbconfig
	ctx := context.Background()
	cfg := dbconfig.NewConfigFromEnv()
	pool, err := pgxpool.New(ctx, cfg.DSN())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	query := `
		INSERT INTO wallets (user_id, main_balance, bonus_balance)
		VALUES ($1, $2::numeric, $3::numeric)
		ON CONFLICT (user_id) DO NOTHING`
	if *reset {
		query = `
		INSERT INTO wallets (user_id, main_balance, bonus_balance)
		VALUES ($1, $2::numeric, $3::numeric)
		ON CONFLICT (user_id) DO UPDATE SET
			main_balance = EXCLUDED.main_balance,
			bonus_balance = EXCLUDED.bonus_balance,
			updated_at = now()`
	}

	// 3) Upsert and count
	var (
		total    = len(wallets)
		inserted int
		skipped  int
		errs     int
	)
	for _, w := range wallets {
		if w.UserID == "" || w.Main.IsNegative() || w.Bonus.IsNegative() {
			fmt.Fprintf(os.Stderr, "invalid wallet entry %+v\n", w)
			errs++
			continue
		}
		tag, err := pool.Exec(ctx, query, w.UserID, w.Main.String(), w.Bonus.String())
		if err != nil {
			fmt.Fprintf(os.Stderr, "error seeding wallet %s: %v\n", w.UserID, err)
			errs++
			continue
		}
		if tag.RowsAffected() == 1 {
			inserted++
		} else {
			skipped++
		}
	}

	// 4) Print summary
	fmt.Printf(
		"Wallets seed complete: %d total, %d written, %d skipped, %d errors\n",
		total, inserted, skipped, errs,
	)
}
