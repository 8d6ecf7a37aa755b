package wallet

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/mcdev12/andarbahar/go/internal/models"
)

// MemoryWallet keeps balances in process. It backs tests and local play.
type MemoryWallet struct {
	mu       sync.Mutex
	balances map[string]models.Balance
	applied  map[string]bool
	opening  decimal.Decimal
}

// NewMemoryWallet creates a wallet that seeds unknown users with opening main balance.
func NewMemoryWallet(opening decimal.Decimal) *MemoryWallet {
	return &MemoryWallet{
		balances: make(map[string]models.Balance),
		applied:  make(map[string]bool),
		opening:  opening,
	}
}

// SetBalance overwrites a user's balance.
func (w *MemoryWallet) SetBalance(userID string, bal models.Balance) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.balances[userID] = bal
}

func (w *MemoryWallet) balanceLocked(userID string) models.Balance {
	bal, ok := w.balances[userID]
	if !ok {
		bal = models.Balance{Main: w.opening, Bonus: decimal.Zero}
		w.balances[userID] = bal
	}
	return bal
}

func (w *MemoryWallet) Debit(_ context.Context, userID string, amount decimal.Decimal, key string) (models.Balance, error) {
	if !amount.IsPositive() {
		return models.Balance{}, ErrInvalidAmount
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	bal := w.balanceLocked(userID)
	if w.applied[key] {
		return bal, nil
	}
	fromMain, fromBonus, err := split(bal, amount)
	if err != nil {
		return bal, fmt.Errorf("debit %s for %s: %w", amount, userID, err)
	}
	bal.Main = bal.Main.Sub(fromMain)
	bal.Bonus = bal.Bonus.Sub(fromBonus)
	w.balances[userID] = bal
	w.applied[key] = true
	return bal, nil
}

func (w *MemoryWallet) Credit(_ context.Context, userID string, amount decimal.Decimal, key string) (models.Balance, error) {
	if !amount.IsPositive() {
		return models.Balance{}, ErrInvalidAmount
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	bal := w.balanceLocked(userID)
	if w.applied[key] {
		return bal, nil
	}
	bal.Main = bal.Main.Add(amount)
	w.balances[userID] = bal
	w.applied[key] = true
	return bal, nil
}

func (w *MemoryWallet) Balance(_ context.Context, userID string) (models.Balance, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.balanceLocked(userID), nil
}
