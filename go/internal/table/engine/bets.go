package engine

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/andarbahar/go/internal/metrics"
	"github.com/mcdev12/andarbahar/go/internal/models"
	"github.com/mcdev12/andarbahar/go/internal/table/events"
)

// PlaceBet validates and commits a bet in one critical section, debiting the
// wallet before the bet is confirmed. The outcome is sent to the user as
// bet_confirmed or bet_error.
func (t *Table) PlaceBet(ctx context.Context, sess Session, req events.PlaceBet) (*models.Bet, error) {
	started := time.Now()
	var placed *models.Bet

	err := t.dispatch(ActionPlaceBet, func() error {
		bet, bal, err := t.ledger.PlaceBet(ctx, sess.UserID, req.RoundID, t.round.SubRound, req.Side, req.Amount, req.TempID, t.debit)
		if err != nil {
			t.rejectBetLocked(sess.UserID, req.TempID, err)
			return err
		}
		placed = bet
		t.confirmBetLocked(ctx, *bet, bal)
		return nil
	}, func(err error) {
		t.rejectBetLocked(sess.UserID, req.TempID, err)
	})

	result := "confirmed"
	if err != nil {
		result = Reason(err)
	}
	metrics.RecordBet(t.id, result, started)
	return placed, err
}

// CancelBet refunds the user's most recent bet of the current sub-round.
func (t *Table) CancelBet(ctx context.Context, sess Session, req events.CancelBet) error {
	return t.dispatch(ActionCancelBet, func() error {
		bet, bal, err := t.ledger.CancelLastBet(ctx, sess.UserID, req.RoundID, t.credit)
		if err != nil {
			t.rejectBetLocked(sess.UserID, "", err)
			return err
		}

		log.Info().
			Str("table_id", t.id).
			Str("round_id", bet.RoundID.String()).
			Str("user_id", sess.UserID).
			Str("bet_id", bet.ID.String()).
			Msg("bet cancelled")

		t.sendToUserLocked(sess.UserID, events.BetCancelled{
			RoundID:        bet.RoundID,
			BetID:          bet.ID,
			TempID:         bet.TempID,
			RefundedAmount: bet.Amount,
			Balance:        bal,
		})
		t.publishStatsLocked()
		t.checkpointLocked(ctx)
		return nil
	}, func(err error) {
		t.rejectBetLocked(sess.UserID, "", err)
	})
}

// Rebet replays the user's confirmed bets from the round that just ended.
func (t *Table) Rebet(ctx context.Context, sess Session, req events.Rebet) error {
	return t.dispatch(ActionRebet, func() error {
		if t.previous == nil || t.previous.id != req.PreviousRoundID {
			t.rejectBetLocked(sess.UserID, req.TempIDPrefix, ErrUnknownRound)
			return ErrUnknownRound
		}

		placements := t.ledger.Rebet(ctx, sess.UserID, t.previous.bets, req.TempIDPrefix, t.debit)
		confirmed := false
		for _, p := range placements {
			if p.Err != nil {
				t.rejectBetLocked(sess.UserID, p.TempID, p.Err)
				continue
			}
			t.sendToUserLocked(sess.UserID, confirmedEvent(*p.Bet, p.Balance))
			confirmed = true
		}
		if confirmed {
			t.publishStatsLocked()
			t.checkpointLocked(ctx)
		}
		return nil
	}, func(err error) {
		t.rejectBetLocked(sess.UserID, req.TempIDPrefix, err)
	})
}

func (t *Table) confirmBetLocked(ctx context.Context, bet models.Bet, bal models.Balance) {
	log.Debug().
		Str("table_id", t.id).
		Str("round_id", bet.RoundID.String()).
		Str("user_id", bet.UserID).
		Str("temp_id", bet.TempID).
		Str("amount", bet.Amount.String()).
		Msg("bet confirmed")

	t.sendToUserLocked(bet.UserID, confirmedEvent(bet, bal))
	t.publishStatsLocked()
	t.checkpointLocked(ctx)
}

func (t *Table) rejectBetLocked(userID, tempID string, err error) {
	log.Debug().
		Err(err).
		Str("table_id", t.id).
		Str("user_id", userID).
		Str("temp_id", tempID).
		Msg("bet rejected")

	t.sendToUserLocked(userID, events.BetError{
		TempID:  tempID,
		Reason:  Reason(err),
		Message: err.Error(),
	})
}

func (t *Table) debit(ctx context.Context, bet models.Bet) (models.Balance, error) {
	return t.wallet.Debit(ctx, bet.UserID, bet.Amount, "bet:"+bet.ID.String())
}

func (t *Table) credit(ctx context.Context, bet models.Bet) (models.Balance, error) {
	return t.wallet.Credit(ctx, bet.UserID, bet.Amount, "cancel:"+bet.ID.String())
}

func confirmedEvent(bet models.Bet, bal models.Balance) events.BetConfirmed {
	return events.BetConfirmed{
		BetID:    bet.ID,
		TempID:   bet.TempID,
		RoundID:  bet.RoundID,
		SubRound: bet.SubRound,
		Side:     bet.Side,
		Amount:   bet.Amount,
		Balance:  bal,
	}
}
