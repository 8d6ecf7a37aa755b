package wallet

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/andarbahar/go/internal/models"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestMemoryWalletDebitCredit(t *testing.T) {
	ctx := context.Background()
	w := NewMemoryWallet(d("5000"))

	bal, err := w.Debit(ctx, "u1", d("1000"), "bet-1")
	require.NoError(t, err)
	assert.True(t, bal.Main.Equal(d("4000")))

	bal, err = w.Credit(ctx, "u1", d("2000"), "payout-1")
	require.NoError(t, err)
	assert.True(t, bal.Main.Equal(d("6000")))
}

func TestMemoryWalletIdempotentKeys(t *testing.T) {
	ctx := context.Background()
	w := NewMemoryWallet(d("100"))

	_, err := w.Credit(ctx, "u1", d("50"), "k")
	require.NoError(t, err)
	bal, err := w.Credit(ctx, "u1", d("50"), "k")
	require.NoError(t, err)
	assert.True(t, bal.Main.Equal(d("150")))
}

func TestMemoryWalletUsesBonusAfterMain(t *testing.T) {
	ctx := context.Background()
	w := NewMemoryWallet(decimal.Zero)
	w.SetBalance("u1", models.Balance{Main: d("30"), Bonus: d("20")})

	bal, err := w.Debit(ctx, "u1", d("40"), "k1")
	require.NoError(t, err)
	assert.True(t, bal.Main.IsZero())
	assert.True(t, bal.Bonus.Equal(d("10")))

	_, err = w.Debit(ctx, "u1", d("11"), "k2")
	assert.ErrorIs(t, err, ErrInsufficientFunds)

	// A failed debit does not consume its key.
	bal, err = w.Debit(ctx, "u1", d("10"), "k2")
	require.NoError(t, err)
	assert.True(t, bal.Bonus.IsZero())
}

func TestMemoryWalletRejectsNonPositive(t *testing.T) {
	w := NewMemoryWallet(d("10"))
	_, err := w.Debit(context.Background(), "u1", decimal.Zero, "k")
	assert.ErrorIs(t, err, ErrInvalidAmount)
}
