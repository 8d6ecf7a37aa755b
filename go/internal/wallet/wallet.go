package wallet

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/mcdev12/andarbahar/go/internal/models"
)

var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrInvalidAmount     = errors.New("amount must be positive")
)

// Wallet mutates user balances atomically. Every mutation carries an
// idempotency key: repeating a key returns the current balance without
// applying the mutation a second time.
type Wallet interface {
	Debit(ctx context.Context, userID string, amount decimal.Decimal, key string) (models.Balance, error)
	Credit(ctx context.Context, userID string, amount decimal.Decimal, key string) (models.Balance, error)
	Balance(ctx context.Context, userID string) (models.Balance, error)
}

// split takes amount from main first and the remainder from bonus.
func split(bal models.Balance, amount decimal.Decimal) (fromMain, fromBonus decimal.Decimal, err error) {
	if bal.Main.Add(bal.Bonus).LessThan(amount) {
		return decimal.Zero, decimal.Zero, ErrInsufficientFunds
	}
	fromMain = decimal.Min(bal.Main, amount)
	return fromMain, amount.Sub(fromMain), nil
}
