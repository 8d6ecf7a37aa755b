package payout

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/andarbahar/go/internal/models"
	"github.com/mcdev12/andarbahar/go/internal/wallet"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func bet(roundID uuid.UUID, user string, side models.Side, amount string) models.Bet {
	return models.Bet{
		ID:       uuid.New(),
		TempID:   uuid.NewString(),
		UserID:   user,
		RoundID:  roundID,
		SubRound: 1,
		Side:     side,
		Amount:   d(amount),
		Status:   models.BetStatusConfirmed,
	}
}

// flakyWallet fails the first credit for failFor, then behaves.
type flakyWallet struct {
	*wallet.MemoryWallet
	failFor string
	failed  bool
	credits int
}

func (w *flakyWallet) Credit(ctx context.Context, userID string, amount decimal.Decimal, key string) (models.Balance, error) {
	if userID == w.failFor && !w.failed {
		w.failed = true
		return models.Balance{}, errors.New("wallet unavailable")
	}
	w.credits++
	return w.MemoryWallet.Credit(ctx, userID, amount, key)
}

func TestSettle(t *testing.T) {
	ctx := context.Background()
	roundID := uuid.New()
	w := wallet.NewMemoryWallet(decimal.Zero)
	e := NewEngine(w, NewMemoryMarker(), d("2"))

	bets := []models.Bet{
		bet(roundID, "alice", models.SideBahar, "100"),
		bet(roundID, "alice", models.SideAndar, "50"),
		bet(roundID, "bob", models.SideAndar, "200"),
		bet(roundID, "carol", models.SideBahar, "30"),
	}
	failed := bet(roundID, "dave", models.SideBahar, "1000")
	failed.Status = models.BetStatusFailed
	bets = append(bets, failed)

	res, err := e.Settle(ctx, roundID, models.SideBahar, bets)
	require.NoError(t, err)

	assert.Equal(t, 2, res.WinnersCount)
	assert.True(t, res.TotalPayouts.Equal(d("260")))
	require.Len(t, res.Payouts, 3)

	alice := res.Payouts[0]
	assert.Equal(t, "alice", alice.UserID)
	assert.True(t, alice.Winnings.Equal(d("200")))
	assert.True(t, alice.Net.Equal(d("50")))

	bob := res.Payouts[1]
	assert.True(t, bob.Winnings.IsZero())
	assert.True(t, bob.Net.Equal(d("-200")))

	bal, _ := w.Balance(ctx, "alice")
	assert.True(t, bal.Main.Equal(d("200")))
	bal, _ = w.Balance(ctx, "dave")
	assert.True(t, bal.Main.IsZero())
}

func TestSettleIsIdempotentAcrossRetries(t *testing.T) {
	ctx := context.Background()
	roundID := uuid.New()
	w := &flakyWallet{MemoryWallet: wallet.NewMemoryWallet(decimal.Zero), failFor: "bob"}
	e := NewEngine(w, NewMemoryMarker(), d("2"))

	bets := []models.Bet{
		bet(roundID, "alice", models.SideAndar, "100"),
		bet(roundID, "bob", models.SideAndar, "10"),
	}

	_, err := e.Settle(ctx, roundID, models.SideAndar, bets)
	require.Error(t, err)

	res, err := e.Settle(ctx, roundID, models.SideAndar, bets)
	require.NoError(t, err)
	assert.True(t, res.Payouts[0].AlreadyPaid)
	assert.False(t, res.Payouts[1].AlreadyPaid)
	assert.Equal(t, 2, res.WinnersCount)

	_, err = e.Settle(ctx, roundID, models.SideAndar, bets)
	require.NoError(t, err)

	assert.Equal(t, 2, w.credits)
	alice, _ := w.Balance(ctx, "alice")
	bob, _ := w.Balance(ctx, "bob")
	assert.True(t, alice.Main.Equal(d("200")))
	assert.True(t, bob.Main.Equal(d("20")))
}

func TestSettleCrashBetweenCreditAndMark(t *testing.T) {
	ctx := context.Background()
	roundID := uuid.New()
	w := wallet.NewMemoryWallet(decimal.Zero)

	// Credit applied but marker never written.
	_, err := w.Credit(ctx, "alice", d("200"), PayoutKey(roundID, "alice"))
	require.NoError(t, err)

	e := NewEngine(w, NewMemoryMarker(), d("2"))
	_, err = e.Settle(ctx, roundID, models.SideAndar, []models.Bet{bet(roundID, "alice", models.SideAndar, "100")})
	require.NoError(t, err)

	bal, _ := w.Balance(ctx, "alice")
	assert.True(t, bal.Main.Equal(d("200")))
}

func TestVoidSkipsPaidUsers(t *testing.T) {
	ctx := context.Background()
	roundID := uuid.New()
	w := wallet.NewMemoryWallet(decimal.Zero)
	marker := NewMemoryMarker()
	require.NoError(t, marker.MarkApplied(ctx, roundID, "alice"))
	e := NewEngine(w, marker, d("2"))

	refunds, err := e.Void(ctx, roundID, []models.Bet{
		bet(roundID, "alice", models.SideAndar, "100"),
		bet(roundID, "bob", models.SideAndar, "10"),
		bet(roundID, "bob", models.SideBahar, "5"),
	}, nil)
	require.NoError(t, err)
	require.Len(t, refunds, 2)

	bob, _ := w.Balance(ctx, "bob")
	assert.True(t, bob.Main.Equal(d("15")))
	alice, _ := w.Balance(ctx, "alice")
	assert.True(t, alice.Main.IsZero())
}

// brokenMarker never records a payout.
type brokenMarker struct{ *MemoryMarker }

func (m *brokenMarker) MarkApplied(context.Context, uuid.UUID, string) error {
	return errors.New("marker store unavailable")
}

func TestSettleReportsCreditWhenMarkFails(t *testing.T) {
	ctx := context.Background()
	roundID := uuid.New()
	w := wallet.NewMemoryWallet(decimal.Zero)
	e := NewEngine(w, &brokenMarker{MemoryMarker: NewMemoryMarker()}, d("2"))

	bets := []models.Bet{bet(roundID, "alice", models.SideAndar, "100")}
	res, err := e.Settle(ctx, roundID, models.SideAndar, bets)
	require.Error(t, err)
	require.NotNil(t, res)
	require.Len(t, res.Payouts, 1)
	assert.True(t, res.Payouts[0].Credited)
	assert.True(t, res.Payouts[0].Balance.Main.Equal(d("200")))

	refunds, err := e.Void(ctx, roundID, bets, map[string]bool{"alice": true})
	require.NoError(t, err)
	assert.Empty(t, refunds)

	alice, _ := w.Balance(ctx, "alice")
	assert.True(t, alice.Main.Equal(d("200")))
}

func TestRedisMarker(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	ctx := context.Background()
	m := NewRedisMarker(rdb, time.Hour)
	roundID := uuid.New()

	applied, err := m.IsApplied(ctx, roundID, "alice")
	require.NoError(t, err)
	assert.False(t, applied)

	require.NoError(t, m.MarkApplied(ctx, roundID, "alice"))
	require.NoError(t, m.MarkApplied(ctx, roundID, "alice"))

	applied, err = m.IsApplied(ctx, roundID, "alice")
	require.NoError(t, err)
	assert.True(t, applied)
	assert.True(t, mr.Exists("payout:applied:"+roundID.String()+":alice"))

	mr.FastForward(2 * time.Hour)
	applied, err = m.IsApplied(ctx, roundID, "alice")
	require.NoError(t, err)
	assert.False(t, applied)
}
