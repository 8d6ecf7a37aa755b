package wallet

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/mcdev12/andarbahar/go/internal/models"
)

// PostgresWallet stores balances in the wallets table and records every
// applied mutation in wallet_transactions, keyed by its idempotency key.
type PostgresWallet struct {
	pool *pgxpool.Pool
}

func NewPostgresWallet(pool *pgxpool.Pool) *PostgresWallet {
	return &PostgresWallet{pool: pool}
}

func (w *PostgresWallet) Debit(ctx context.Context, userID string, amount decimal.Decimal, key string) (models.Balance, error) {
	return w.apply(ctx, userID, amount.Neg(), key, "debit")
}

func (w *PostgresWallet) Credit(ctx context.Context, userID string, amount decimal.Decimal, key string) (models.Balance, error) {
	return w.apply(ctx, userID, amount, key, "credit")
}

func (w *PostgresWallet) Balance(ctx context.Context, userID string) (models.Balance, error) {
	row := w.pool.QueryRow(ctx, `
		SELECT main_balance::text, bonus_balance::text
		FROM wallets WHERE user_id = $1`, userID)
	bal, err := scanBalance(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Balance{Main: decimal.Zero, Bonus: decimal.Zero}, nil
	}
	if err != nil {
		return models.Balance{}, fmt.Errorf("failed to read balance for %s: %w", userID, err)
	}
	return bal, nil
}

// apply runs a signed mutation in one transaction. The wallet row is locked
// before the idempotency insert so concurrent mutations for a user serialize.
func (w *PostgresWallet) apply(ctx context.Context, userID string, delta decimal.Decimal, key, kind string) (models.Balance, error) {
	if delta.IsZero() || (kind == "debit") != delta.IsNegative() {
		return models.Balance{}, ErrInvalidAmount
	}

	tx, err := w.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Balance{}, fmt.Errorf("failed to begin wallet transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		INSERT INTO wallets (user_id, main_balance, bonus_balance)
		VALUES ($1, 0, 0)
		ON CONFLICT (user_id) DO NOTHING`, userID); err != nil {
		return models.Balance{}, fmt.Errorf("failed to ensure wallet for %s: %w", userID, err)
	}

	bal, err := scanBalance(tx.QueryRow(ctx, `
		SELECT main_balance::text, bonus_balance::text
		FROM wallets WHERE user_id = $1 FOR UPDATE`, userID))
	if err != nil {
		return models.Balance{}, fmt.Errorf("failed to lock wallet for %s: %w", userID, err)
	}

	tag, err := tx.Exec(ctx, `
		INSERT INTO wallet_transactions (idempotency_key, user_id, kind, amount)
		VALUES ($1, $2, $3, $4::numeric)
		ON CONFLICT (idempotency_key) DO NOTHING`, key, userID, kind, delta.Abs().String())
	if err != nil {
		return models.Balance{}, fmt.Errorf("failed to record %s: %w", kind, err)
	}
	if tag.RowsAffected() == 0 {
		// Already applied under this key.
		return bal, tx.Commit(ctx)
	}

	if delta.IsNegative() {
		fromMain, fromBonus, err := split(bal, delta.Abs())
		if err != nil {
			return bal, fmt.Errorf("debit %s for %s: %w", delta.Abs(), userID, err)
		}
		bal.Main = bal.Main.Sub(fromMain)
		bal.Bonus = bal.Bonus.Sub(fromBonus)
	} else {
		bal.Main = bal.Main.Add(delta)
	}

	if _, err := tx.Exec(ctx, `
		UPDATE wallets
		SET main_balance = $2::numeric, bonus_balance = $3::numeric, updated_at = now()
		WHERE user_id = $1`, userID, bal.Main.String(), bal.Bonus.String()); err != nil {
		return models.Balance{}, fmt.Errorf("failed to update wallet for %s: %w", userID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return models.Balance{}, fmt.Errorf("failed to commit wallet transaction: %w", err)
	}
	return bal, nil
}

func scanBalance(row pgx.Row) (models.Balance, error) {
	var mainStr, bonusStr string
	if err := row.Scan(&mainStr, &bonusStr); err != nil {
		return models.Balance{}, err
	}
	mainBal, err := decimal.NewFromString(mainStr)
	if err != nil {
		return models.Balance{}, fmt.Errorf("invalid main balance %q: %w", mainStr, err)
	}
	bonus, err := decimal.NewFromString(bonusStr)
	if err != nil {
		return models.Balance{}, fmt.Errorf("invalid bonus balance %q: %w", bonusStr, err)
	}
	return models.Balance{Main: mainBal, Bonus: bonus}, nil
}
