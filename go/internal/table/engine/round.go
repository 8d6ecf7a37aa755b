package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/andarbahar/go/internal/metrics"
	"github.com/mcdev12/andarbahar/go/internal/models"
	"github.com/mcdev12/andarbahar/go/internal/table/dealing"
	"github.com/mcdev12/andarbahar/go/internal/table/events"
	"github.com/mcdev12/andarbahar/go/internal/table/ledger"
	"github.com/mcdev12/andarbahar/go/internal/table/payout"
)

func (t *Table) startRoundLocked(ctx context.Context, req StartRoundRequest) error {
	if req.JokerCard.IsZero() {
		return ErrInvalidJoker
	}
	cards := req.Cards
	if len(cards) == 0 {
		cards = t.shuffle(req.JokerCard)
	}
	dealer, err := dealing.NewSequencer(req.JokerCard, t.rules.StartingSide, cards)
	if err != nil {
		return fmt.Errorf("failed to prepare card sequence: %w", err)
	}
	if err := validateTransition(t.phase, models.PhaseCreated); err != nil {
		return err
	}

	t.stopTimersLocked()
	t.sequence++
	now := t.clock.Now()
	t.round = &models.Round{
		ID:              uuid.New(),
		TableID:         t.id,
		Sequence:        t.sequence,
		JokerCard:       req.JokerCard,
		SubRound:        1,
		BettingDuration: int(t.rules.BettingDuration / time.Second),
		CreatedAt:       now,
	}
	t.ledger = ledger.New(t.round.ID, t.rules.Limits, t.clock.Now)
	t.dealer = dealer
	t.passDealt = 0
	t.setPhaseLocked(models.PhaseCreated)

	log.Info().
		Str("table_id", t.id).
		Str("round_id", t.round.ID.String()).
		Int("sequence", t.sequence).
		Str("joker", req.JokerCard.String()).
		Msg("round created")

	t.broadcastLocked(ctx, events.RoundCreated{Round: *t.round, JokerCard: req.JokerCard})
	t.openBettingLocked(ctx, 1)
	return nil
}

func (t *Table) openBettingLocked(ctx context.Context, subRound int) {
	if err := t.transitionLocked(models.PhaseBetting); err != nil {
		t.faultLocked(ctx, err)
		return
	}
	t.round.SubRound = subRound
	t.ledger.Open(subRound)
	t.passDealt = 0

	t.broadcastLocked(ctx, events.RoundStarted{
		Round:                  *t.round,
		SubRound:               subRound,
		BettingDurationSeconds: int(t.rules.BettingDuration / time.Second),
	})
	t.startCountdownLocked(t.clock.Now().Add(t.rules.BettingDuration))
	t.publishStatsLocked()
	t.checkpointLocked(ctx)
}

func (t *Table) lockBettingLocked(ctx context.Context) {
	t.stopTimersLocked()
	t.ledger.Close()
	if err := t.transitionLocked(models.PhaseLocked); err != nil {
		t.faultLocked(ctx, err)
		return
	}
	t.broadcastLocked(ctx, events.BettingClosed{RoundID: t.round.ID, SubRound: t.round.SubRound})
	t.checkpointLocked(ctx)
	t.startDealingLocked(ctx)
}

func (t *Table) startDealingLocked(ctx context.Context) {
	if err := t.transitionLocked(models.PhaseDealing); err != nil {
		t.faultLocked(ctx, err)
		return
	}
	t.broadcastLocked(ctx, events.DealingStarted{
		RoundID:   t.round.ID,
		SubRound:  t.round.SubRound,
		JokerCard: t.round.JokerCard,
	})
	t.dealLocked(ctx)
}

// dealLocked deals until a winner, the end of round 1, or the next
// DealInterval pause.
func (t *Table) dealLocked(ctx context.Context) {
	for {
		dc, err := t.dealer.Next()
		if err != nil {
			t.faultLocked(ctx, fmt.Errorf("dealing failed: %w", err))
			return
		}
		t.passDealt++
		t.broadcastLocked(ctx, events.CardDealt{
			RoundID:       t.round.ID,
			Side:          dc.Side,
			Card:          dc.Card,
			SequenceIndex: dc.SequenceIndex,
			IsWinningCard: dc.IsWinningCard,
		})

		if dc.IsWinningCard {
			t.determineWinnerLocked(ctx, dc)
			return
		}
		if t.round.SubRound == 1 && t.rules.Round2Enabled && t.passDealt >= t.rules.Round1Cards {
			t.announceRound2Locked(ctx)
			return
		}
		if t.rules.DealInterval > 0 {
			t.checkpointLocked(ctx)
			t.scheduleLocked(t.rules.DealInterval, t.dealLocked)
			return
		}
	}
}

func (t *Table) announceRound2Locked(ctx context.Context) {
	if err := t.transitionLocked(models.PhaseRound2Announced); err != nil {
		t.faultLocked(ctx, err)
		return
	}
	delay := int(t.rules.Round2Delay / time.Second)
	t.broadcastLocked(ctx, events.Round2Announced{
		RoundID:      t.round.ID,
		Message:      fmt.Sprintf("No match in round 1. Round 2 betting opens in %d seconds", delay),
		DelaySeconds: delay,
	})
	t.checkpointLocked(ctx)
	t.afterLocked(ctx, t.rules.Round2Delay, func(ctx context.Context) {
		t.openBettingLocked(ctx, 2)
	})
}

func (t *Table) determineWinnerLocked(ctx context.Context, winner models.DealtCard) {
	if err := t.transitionLocked(models.PhaseWinnerDetermined); err != nil {
		t.faultLocked(ctx, err)
		return
	}
	t.broadcastLocked(ctx, events.WinnerDetermined{
		RoundID:           t.round.ID,
		WinningSide:       winner.Side,
		WinningCard:       winner.Card,
		WinnerDisplayText: fmt.Sprintf("%s wins with %s", winner.Side.DisplayName(), winner.Card),
		TotalCardsDealt:   winner.SequenceIndex,
	})
	log.Info().
		Str("table_id", t.id).
		Str("round_id", t.round.ID.String()).
		Str("winning_side", string(winner.Side)).
		Str("winning_card", winner.Card.String()).
		Msg("winner determined")

	t.checkpointLocked(ctx)
	t.settleLocked(ctx)
}

// settleLocked pays the round. It is also the resume point for a round
// restored in WINNER_DETERMINED; the payout engine skips users already paid.
func (t *Table) settleLocked(ctx context.Context) {
	winner, ok := t.dealer.Winner()
	if !ok {
		t.faultLocked(ctx, fmt.Errorf("settlement without a winning card"))
		return
	}

	res, err := t.payouts.Settle(ctx, t.round.ID, winner.Side, t.ledger.Confirmed())
	if err != nil {
		if res != nil {
			t.notePartialPayoutsLocked(winner.Side, res.Payouts)
		}
		t.faultLocked(ctx, fmt.Errorf("payout failed: %w", err))
		return
	}
	if err := t.transitionLocked(models.PhasePayoutsProcessed); err != nil {
		t.faultLocked(ctx, err)
		return
	}

	t.broadcastLocked(ctx, events.PayoutsProcessed{
		RoundID:      t.round.ID,
		TotalPayouts: res.TotalPayouts,
		WinnersCount: res.WinnersCount,
	})
	for _, p := range res.Payouts {
		if !p.Winnings.IsPositive() || p.AlreadyPaid {
			continue
		}
		t.sendToUserLocked(p.UserID, events.PayoutReceived{
			RoundID:     t.round.ID,
			Amount:      p.Winnings,
			WinningSide: winner.Side,
			Balance:     p.Balance,
		})
	}

	paid, _ := res.TotalPayouts.Float64()
	metrics.RecordSettlement(t.id, paid, winner.SequenceIndex)
	log.Info().
		Str("table_id", t.id).
		Str("round_id", t.round.ID.String()).
		Str("total_payouts", res.TotalPayouts.String()).
		Int("winners", res.WinnersCount).
		Msg("payouts processed")

	t.checkpointLocked(ctx)
	t.afterLocked(ctx, t.rules.ResetDelay, func(ctx context.Context) {
		t.resetLocked(ctx, events.RoundReset{})
	})
}

// notePartialPayoutsLocked records winners credited before settlement failed
// so a void does not also refund them.
func (t *Table) notePartialPayoutsLocked(side models.Side, payouts []payout.UserPayout) {
	for _, p := range payouts {
		if !p.Credited {
			continue
		}
		if t.credited == nil {
			t.credited = make(map[string]bool)
		}
		t.credited[p.UserID] = true
		t.sendToUserLocked(p.UserID, events.PayoutReceived{
			RoundID:     t.round.ID,
			Amount:      p.Winnings,
			WinningSide: side,
			Balance:     p.Balance,
		})
	}
}

// resetLocked archives the round and, on auto-start tables, opens the next one.
func (t *Table) resetLocked(ctx context.Context, ev events.RoundReset) {
	t.stopTimersLocked()
	if ev.Voided {
		if !canVoid(t.phase) {
			return
		}
		t.setPhaseLocked(models.PhaseReset)
	} else if err := t.transitionLocked(models.PhaseReset); err != nil {
		t.faultLocked(ctx, err)
		return
	}

	if t.round != nil {
		ev.RoundID = t.round.ID
	}
	if t.ledger != nil {
		t.previous = &archivedRound{id: t.ledger.RoundID(), bets: t.ledger.Confirmed()}
	}
	t.ledger = nil
	t.dealer = nil
	t.passDealt = 0
	t.credited = nil

	t.broadcastLocked(ctx, ev)
	t.checkpointLocked(ctx)

	if t.rules.AutoStart && !t.closed {
		if err := t.startRoundLocked(ctx, StartRoundRequest{JokerCard: t.drawJoker()}); err != nil {
			log.Error().Err(err).Str("table_id", t.id).Msg("failed to auto-start round")
		}
	}
}

// faultLocked abandons the round after an internal failure in dealing or payout.
func (t *Table) faultLocked(ctx context.Context, err error) {
	log.Error().Err(err).Str("table_id", t.id).Str("phase", string(t.phase)).Msg("round fault")
	t.alertLocked(fmt.Sprintf("round fault: %v", err))
	t.voidLocked(ctx)
}

// voidLocked refunds every confirmed stake not already settled and resets the
// round with a voided notice.
func (t *Table) voidLocked(ctx context.Context) {
	if !canVoid(t.phase) {
		return
	}
	t.stopTimersLocked()

	if t.ledger != nil {
		t.ledger.Close()
		refunds, err := t.payouts.Void(ctx, t.ledger.RoundID(), t.ledger.Confirmed(), t.credited)
		if err != nil {
			t.alertLocked(fmt.Sprintf("refund incomplete: %v", err))
		}
		for _, r := range refunds {
			t.sendToUserLocked(r.Bet.UserID, events.BetCancelled{
				RoundID:        r.Bet.RoundID,
				BetID:          r.Bet.ID,
				TempID:         r.Bet.TempID,
				RefundedAmount: r.Bet.Amount,
				Balance:        r.Balance,
			})
		}
	}

	metrics.RecordVoid(t.id)
	t.resetLocked(ctx, events.RoundReset{Voided: true, Message: "round voided"})
}
