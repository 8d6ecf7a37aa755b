package payout

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/mcdev12/andarbahar/go/internal/models"
)

// Crediter is the slice of the wallet the payout engine needs.
type Crediter interface {
	Credit(ctx context.Context, userID string, amount decimal.Decimal, key string) (models.Balance, error)
}

// UserPayout is one user's settlement for a round.
type UserPayout struct {
	UserID   string
	Staked   decimal.Decimal
	Winnings decimal.Decimal
	Net      decimal.Decimal
	Balance  models.Balance
	// AlreadyPaid is set when an earlier settlement attempt credited this user.
	AlreadyPaid bool
	// Credited is set when this attempt moved the winnings into the wallet,
	// even if recording the marker afterwards failed.
	Credited bool
}

// Result summarises a settled round.
type Result struct {
	RoundID      uuid.UUID
	WinningSide  models.Side
	TotalPayouts decimal.Decimal
	WinnersCount int
	Payouts      []UserPayout
}

// Refund is one stake returned when a round is voided.
type Refund struct {
	Bet     models.Bet
	Balance models.Balance
}

// Engine settles rounds against a wallet.
type Engine struct {
	wallet     Crediter
	marker     Marker
	multiplier decimal.Decimal
}

// NewEngine creates an engine that pays multiplier times the winning stakes.
func NewEngine(wallet Crediter, marker Marker, multiplier decimal.Decimal) *Engine {
	if marker == nil {
		marker = NewMemoryMarker()
	}
	return &Engine{wallet: wallet, marker: marker, multiplier: multiplier}
}

func (e *Engine) Multiplier() decimal.Decimal {
	return e.multiplier
}

// Settle credits every winner of a round. Each (round, user) pair is credited
// at most once: the marker is consulted first and set after the credit, and
// the credit itself is keyed by the same pair so a crash between the two is
// absorbed by the wallet. Settle may be called again after a failure.
func (e *Engine) Settle(ctx context.Context, roundID uuid.UUID, winningSide models.Side, bets []models.Bet) (*Result, error) {
	staked := make(map[string]decimal.Decimal)
	won := make(map[string]decimal.Decimal)
	for _, b := range bets {
		if b.Status != models.BetStatusConfirmed || b.RoundID != roundID {
			continue
		}
		staked[b.UserID] = staked[b.UserID].Add(b.Amount)
		if b.Side == winningSide {
			won[b.UserID] = won[b.UserID].Add(b.Amount)
		}
	}

	users := make([]string, 0, len(staked))
	for u := range staked {
		users = append(users, u)
	}
	sort.Strings(users)

	res := &Result{RoundID: roundID, WinningSide: winningSide, TotalPayouts: decimal.Zero}
	for _, userID := range users {
		winnings := won[userID].Mul(e.multiplier)
		p := UserPayout{
			UserID:   userID,
			Staked:   staked[userID],
			Winnings: winnings,
			Net:      winnings.Sub(staked[userID]),
		}

		if winnings.IsPositive() {
			applied, err := e.marker.IsApplied(ctx, roundID, userID)
			if err != nil {
				return res, fmt.Errorf("payout marker for %s: %w", userID, err)
			}
			if applied {
				p.AlreadyPaid = true
				log.Debug().
					Str("round_id", roundID.String()).
					Str("user_id", userID).
					Msg("payout already applied, skipping credit")
			} else {
				bal, err := e.wallet.Credit(ctx, userID, winnings, PayoutKey(roundID, userID))
				if err != nil {
					return res, fmt.Errorf("credit payout for %s: %w", userID, err)
				}
				p.Balance = bal
				p.Credited = true
				if err := e.marker.MarkApplied(ctx, roundID, userID); err != nil {
					res.Payouts = append(res.Payouts, p)
					return res, fmt.Errorf("mark payout for %s: %w", userID, err)
				}
			}
			res.TotalPayouts = res.TotalPayouts.Add(winnings)
			res.WinnersCount++
		}
		res.Payouts = append(res.Payouts, p)
	}

	return res, nil
}

// Void refunds the confirmed stakes of a round that cannot be settled.
// Users already paid by an earlier settlement attempt keep that payout and
// are not refunded. credited names users whose winnings reached the wallet
// without a marker being recorded.
func (e *Engine) Void(ctx context.Context, roundID uuid.UUID, bets []models.Bet, credited map[string]bool) ([]Refund, error) {
	var refunds []Refund
	paid := make(map[string]bool, len(credited))
	for u, ok := range credited {
		if ok {
			paid[u] = true
		}
	}
	for _, b := range bets {
		if b.Status != models.BetStatusConfirmed || b.RoundID != roundID {
			continue
		}
		done, seen := paid[b.UserID]
		if !seen {
			applied, err := e.marker.IsApplied(ctx, roundID, b.UserID)
			if err != nil {
				return refunds, fmt.Errorf("payout marker for %s: %w", b.UserID, err)
			}
			paid[b.UserID] = applied
			done = applied
		}
		if done {
			continue
		}

		bal, err := e.wallet.Credit(ctx, b.UserID, b.Amount, RefundKey(roundID, b.ID))
		if err != nil {
			return refunds, fmt.Errorf("refund bet %s: %w", b.ID, err)
		}
		refunds = append(refunds, Refund{Bet: b, Balance: bal})
	}
	return refunds, nil
}

// PayoutKey is the wallet idempotency key for a user's winnings.
func PayoutKey(roundID uuid.UUID, userID string) string {
	return fmt.Sprintf("payout:%s:%s", roundID, userID)
}

// RefundKey is the wallet idempotency key for a voided bet.
func RefundKey(roundID, betID uuid.UUID) string {
	return fmt.Sprintf("refund:%s:%s", roundID, betID)
}
