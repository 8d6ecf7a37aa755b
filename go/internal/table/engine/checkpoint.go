package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/andarbahar/go/internal/models"
	"github.com/mcdev12/andarbahar/go/internal/table/dealing"
	"github.com/mcdev12/andarbahar/go/internal/table/events"
	"github.com/mcdev12/andarbahar/go/internal/table/ledger"
)

// Checkpoint is the durable state of a table: the round, its ledger, the
// cards dealt so far and the cards still to come.
type Checkpoint struct {
	TableID         string             `json:"table_id"`
	Phase           models.Phase       `json:"phase"`
	Sequence        int                `json:"sequence"`
	Round           *models.Round      `json:"round,omitempty"`
	Bets            []models.Bet       `json:"bets"`
	Dealt           []models.DealtCard `json:"dealt"`
	Remaining       []models.Card      `json:"remaining"`
	PassDealt       int                `json:"pass_dealt"`
	Deadline        time.Time          `json:"deadline"`
	PreviousRoundID *uuid.UUID         `json:"previous_round_id,omitempty"`
	PreviousBets    []models.Bet       `json:"previous_bets,omitempty"`
	SavedAt         time.Time          `json:"saved_at"`
}

func (t *Table) checkpointLocked(ctx context.Context) {
	if t.checkpoints == nil {
		return
	}
	cp := &Checkpoint{
		TableID:   t.id,
		Phase:     t.phase,
		Sequence:  t.sequence,
		PassDealt: t.passDealt,
		Deadline:  t.deadline,
		SavedAt:   t.clock.Now(),
	}
	if t.round != nil {
		r := *t.round
		cp.Round = &r
	}
	if t.ledger != nil {
		cp.Bets = t.ledger.Bets()
	}
	if t.dealer != nil {
		cp.Dealt = t.dealer.Dealt()
		cp.Remaining = t.dealer.Remaining()
	}
	if t.previous != nil {
		id := t.previous.id
		cp.PreviousRoundID = &id
		cp.PreviousBets = t.previous.bets
	}

	if err := t.checkpoints.Save(ctx, cp); err != nil {
		log.Error().Err(err).
			Str("table_id", t.id).
			Str("phase", string(t.phase)).
			Msg("failed to save checkpoint")
	}
}

// Restore loads the table from cp and resumes the round where it stopped.
// It must be called before the table has run a round.
func (t *Table) Restore(ctx context.Context, cp *Checkpoint) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.round != nil {
		return fmt.Errorf("table %s already has a round", t.id)
	}
	if cp.TableID != t.id {
		return fmt.Errorf("checkpoint belongs to table %s", cp.TableID)
	}

	t.sequence = cp.Sequence
	if cp.PreviousRoundID != nil {
		t.previous = &archivedRound{id: *cp.PreviousRoundID, bets: cp.PreviousBets}
	}
	if cp.Round == nil || cp.Phase == models.PhaseReset {
		if cp.Round != nil {
			r := *cp.Round
			t.round = &r
		}
		t.phase = models.PhaseReset
		return nil
	}

	r := *cp.Round
	dealer, err := dealing.Resume(r.JokerCard, t.rules.StartingSide, cp.Dealt, cp.Remaining)
	if err != nil {
		return fmt.Errorf("failed to restore card sequence: %w", err)
	}
	t.round = &r
	t.ledger = ledger.Restore(r.ID, r.SubRound, t.rules.Limits, cp.Bets, t.clock.Now)
	t.dealer = dealer
	t.passDealt = cp.PassDealt
	t.phase = cp.Phase
	t.round.Phase = cp.Phase

	log.Info().
		Str("table_id", t.id).
		Str("round_id", r.ID.String()).
		Str("phase", string(cp.Phase)).
		Int("cards_dealt", len(cp.Dealt)).
		Int("bets", len(cp.Bets)).
		Msg("restoring round from checkpoint")

	switch cp.Phase {
	case models.PhaseCreated:
		t.openBettingLocked(ctx, 1)
	case models.PhaseBetting:
		t.ledger.Open(r.SubRound)
		if !t.clock.Now().Before(cp.Deadline) {
			t.lockBettingLocked(ctx)
		} else {
			t.startCountdownLocked(cp.Deadline)
		}
	case models.PhaseLocked:
		t.startDealingLocked(ctx)
	case models.PhaseDealing:
		if winner, ok := dealer.Winner(); ok {
			t.determineWinnerLocked(ctx, winner)
		} else {
			t.dealLocked(ctx)
		}
	case models.PhaseRound2Announced:
		t.afterLocked(ctx, t.rules.Round2Delay, func(ctx context.Context) {
			t.openBettingLocked(ctx, 2)
		})
	case models.PhaseWinnerDetermined:
		t.settleLocked(ctx)
	case models.PhasePayoutsProcessed:
		t.afterLocked(ctx, t.rules.ResetDelay, func(ctx context.Context) {
			t.resetLocked(ctx, events.RoundReset{})
		})
	default:
		return fmt.Errorf("cannot resume from phase %q", cp.Phase)
	}
	return nil
}
