package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mcdev12/andarbahar/go/internal/models"
	"github.com/mcdev12/andarbahar/go/internal/wallet"
)

// Limits bound the stakes a round accepts. A zero cap means no cap.
type Limits struct {
	MinBet     decimal.Decimal
	MaxBet     decimal.Decimal
	PerUserCap decimal.Decimal
	RoundCap   decimal.Decimal
}

// Debiter moves a bet's stake out of the user's wallet.
type Debiter func(ctx context.Context, bet models.Bet) (models.Balance, error)

// Crediter returns a cancelled bet's stake to the user's wallet.
type Crediter func(ctx context.Context, bet models.Bet) (models.Balance, error)

// Placement is the outcome of one bet placement.
type Placement struct {
	TempID  string
	Bet     *models.Bet
	Balance models.Balance
	Err     error
}

// Totals sums confirmed stakes per side.
type Totals struct {
	Andar decimal.Decimal
	Bahar decimal.Decimal
	Total decimal.Decimal
	Count int
}

// Ledger records the bets of a single round. It is not safe for concurrent
// use; the owning table serializes every call.
type Ledger struct {
	roundID  uuid.UUID
	limits   Limits
	subRound int
	open     bool
	bets     []*models.Bet
	byTemp   map[string]*models.Bet
	now      func() time.Time
}

// New creates an empty, closed ledger for a round.
func New(roundID uuid.UUID, limits Limits, now func() time.Time) *Ledger {
	if now == nil {
		now = time.Now
	}
	return &Ledger{
		roundID: roundID,
		limits:  limits,
		byTemp:  make(map[string]*models.Bet),
		now:     now,
	}
}

// Restore rebuilds a ledger for subRound from persisted bets. Bets left
// pending are failed, since their debit outcome is unknown.
func Restore(roundID uuid.UUID, subRound int, limits Limits, bets []models.Bet, now func() time.Time) *Ledger {
	l := New(roundID, limits, now)
	l.subRound = subRound
	for i := range bets {
		b := bets[i]
		if b.Status == models.BetStatusPending {
			b.Status = models.BetStatusFailed
		}
		l.bets = append(l.bets, &b)
		if b.Status == models.BetStatusConfirmed {
			l.byTemp[b.TempID] = &b
		}
	}
	return l
}

func (l *Ledger) RoundID() uuid.UUID { return l.roundID }

func (l *Ledger) SubRound() int { return l.subRound }

func (l *Ledger) IsOpen() bool { return l.open }

// Open starts accepting bets for subRound.
func (l *Ledger) Open(subRound int) {
	l.subRound = subRound
	l.open = true
}

// Close stops accepting bets.
func (l *Ledger) Close() {
	l.open = false
}

// PlaceBet validates a bet, debits it through debit and records the outcome.
// The bet is confirmed only when the debit succeeds.
func (l *Ledger) PlaceBet(ctx context.Context, userID string, roundID uuid.UUID, subRound int, side models.Side, amount decimal.Decimal, tempID string, debit Debiter) (*models.Bet, models.Balance, error) {
	bet, err := l.reserve(userID, roundID, subRound, side, amount, tempID)
	if err != nil {
		return nil, models.Balance{}, err
	}

	bal, err := debit(ctx, *bet)
	if err != nil {
		l.finalize(bet, models.BetStatusFailed)
		if errors.Is(err, wallet.ErrInsufficientFunds) {
			return nil, bal, fmt.Errorf("%w: %v", ErrInsufficientBalance, err)
		}
		return nil, bal, fmt.Errorf("failed to debit bet: %w", err)
	}

	l.finalize(bet, models.BetStatusConfirmed)
	out := *bet
	return &out, bal, nil
}

// reserve checks every constraint and records the bet as pending.
func (l *Ledger) reserve(userID string, roundID uuid.UUID, subRound int, side models.Side, amount decimal.Decimal, tempID string) (*models.Bet, error) {
	if roundID != l.roundID {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRound, roundID)
	}
	if !l.open || subRound != l.subRound {
		return nil, ErrInvalidPhase
	}
	if !side.Valid() {
		return nil, fmt.Errorf("invalid side %q", side)
	}
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: amount must be positive", ErrLimitExceeded)
	}
	if existing, ok := l.byTemp[tempID]; ok && existing.Status != models.BetStatusFailed {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateTempID, tempID)
	}

	if !l.limits.MinBet.IsZero() && amount.LessThan(l.limits.MinBet) {
		return nil, fmt.Errorf("%w: minimum bet is %s", ErrLimitExceeded, l.limits.MinBet)
	}
	if !l.limits.MaxBet.IsZero() && amount.GreaterThan(l.limits.MaxBet) {
		return nil, fmt.Errorf("%w: maximum bet is %s", ErrLimitExceeded, l.limits.MaxBet)
	}
	if !l.limits.PerUserCap.IsZero() && l.userStake(userID).Add(amount).GreaterThan(l.limits.PerUserCap) {
		return nil, fmt.Errorf("%w: per-user cap is %s", ErrLimitExceeded, l.limits.PerUserCap)
	}
	if !l.limits.RoundCap.IsZero() && l.roundStake().Add(amount).GreaterThan(l.limits.RoundCap) {
		return nil, fmt.Errorf("%w: round cap is %s", ErrLimitExceeded, l.limits.RoundCap)
	}

	bet := &models.Bet{
		ID:        uuid.New(),
		TempID:    tempID,
		UserID:    userID,
		RoundID:   roundID,
		SubRound:  subRound,
		Side:      side,
		Amount:    amount,
		Status:    models.BetStatusPending,
		CreatedAt: l.now(),
	}
	l.bets = append(l.bets, bet)
	l.byTemp[tempID] = bet
	return bet, nil
}

// finalize moves a pending bet to a terminal status. Terminal bets never change.
func (l *Ledger) finalize(bet *models.Bet, status models.BetStatus) {
	if bet.Status == models.BetStatusPending {
		bet.Status = status
	}
}

// CancelLastBet removes the user's most recent confirmed bet in the current
// sub-round and refunds it through credit.
func (l *Ledger) CancelLastBet(ctx context.Context, userID string, roundID uuid.UUID, credit Crediter) (*models.Bet, models.Balance, error) {
	if roundID != l.roundID {
		return nil, models.Balance{}, fmt.Errorf("%w: %s", ErrUnknownRound, roundID)
	}
	if !l.open {
		return nil, models.Balance{}, ErrInvalidPhase
	}

	idx := -1
	for i := len(l.bets) - 1; i >= 0; i-- {
		b := l.bets[i]
		if b.UserID == userID && b.SubRound == l.subRound && b.Status == models.BetStatusConfirmed {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, models.Balance{}, ErrNoBetToCancel
	}

	bet := l.bets[idx]
	bal, err := credit(ctx, *bet)
	if err != nil {
		return nil, models.Balance{}, fmt.Errorf("failed to refund bet %s: %w", bet.ID, err)
	}

	l.bets = append(l.bets[:idx], l.bets[idx+1:]...)
	delete(l.byTemp, bet.TempID)
	out := *bet
	return &out, bal, nil
}

// Rebet replays history, the user's confirmed bets from the previous round,
// onto the current sub-round. Each replayed bet is placed independently and
// its outcome reported.
func (l *Ledger) Rebet(ctx context.Context, userID string, history []models.Bet, tempPrefix string, debit Debiter) []Placement {
	if tempPrefix == "" {
		tempPrefix = "rebet-" + l.roundID.String()[:8]
	}

	var out []Placement
	n := 0
	for _, prev := range history {
		if prev.UserID != userID || prev.Status != models.BetStatusConfirmed {
			continue
		}
		n++
		tempID := fmt.Sprintf("%s-%d", tempPrefix, n)
		bet, bal, err := l.PlaceBet(ctx, userID, l.roundID, l.subRound, prev.Side, prev.Amount, tempID, debit)
		out = append(out, Placement{TempID: tempID, Bet: bet, Balance: bal, Err: err})
	}
	return out
}

// Aggregate totals confirmed stakes for subRound, or for every sub-round when
// subRound is zero.
func (l *Ledger) Aggregate(subRound int) Totals {
	t := Totals{Andar: decimal.Zero, Bahar: decimal.Zero, Total: decimal.Zero}
	for _, b := range l.bets {
		if b.Status != models.BetStatusConfirmed || (subRound != 0 && b.SubRound != subRound) {
			continue
		}
		switch b.Side {
		case models.SideAndar:
			t.Andar = t.Andar.Add(b.Amount)
		case models.SideBahar:
			t.Bahar = t.Bahar.Add(b.Amount)
		}
		t.Total = t.Total.Add(b.Amount)
		t.Count++
	}
	return t
}

// Bets returns copies of every recorded bet in placement order.
func (l *Ledger) Bets() []models.Bet {
	out := make([]models.Bet, len(l.bets))
	for i, b := range l.bets {
		out[i] = *b
	}
	return out
}

// Confirmed returns copies of the confirmed bets.
func (l *Ledger) Confirmed() []models.Bet {
	var out []models.Bet
	for _, b := range l.bets {
		if b.Status == models.BetStatusConfirmed {
			out = append(out, *b)
		}
	}
	return out
}

// UserBets returns copies of one user's bets.
func (l *Ledger) UserBets(userID string) []models.Bet {
	var out []models.Bet
	for _, b := range l.bets {
		if b.UserID == userID {
			out = append(out, *b)
		}
	}
	return out
}

// userStake counts pending and confirmed stakes across the whole round.
func (l *Ledger) userStake(userID string) decimal.Decimal {
	sum := decimal.Zero
	for _, b := range l.bets {
		if b.UserID == userID && b.Status != models.BetStatusFailed {
			sum = sum.Add(b.Amount)
		}
	}
	return sum
}

func (l *Ledger) roundStake() decimal.Decimal {
	sum := decimal.Zero
	for _, b := range l.bets {
		if b.Status != models.BetStatusFailed {
			sum = sum.Add(b.Amount)
		}
	}
	return sum
}
