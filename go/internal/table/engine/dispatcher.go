package engine

import (
	"fmt"

	"github.com/mcdev12/andarbahar/go/internal/models"
)

// Action is anything a client or operator can ask a table to do.
type Action string

const (
	ActionSubscribe   Action = "subscribe_round"
	ActionPlaceBet    Action = "place_bet"
	ActionCancelBet   Action = "cancel_bet"
	ActionRebet       Action = "rebet"
	ActionStartRound  Action = "start_round"
	ActionLockBetting Action = "lock_betting"
	ActionForceReset  Action = "force_reset"
	ActionRoundStats  Action = "round_stats"
)

// allowedActions is the one place that decides which actions each phase accepts.
var allowedActions = map[models.Phase][]Action{
	models.PhaseReset:            {ActionSubscribe, ActionStartRound, ActionRoundStats},
	models.PhaseCreated:          {ActionSubscribe, ActionForceReset, ActionRoundStats},
	models.PhaseBetting:          {ActionSubscribe, ActionPlaceBet, ActionCancelBet, ActionRebet, ActionLockBetting, ActionForceReset, ActionRoundStats},
	models.PhaseLocked:           {ActionSubscribe, ActionForceReset, ActionRoundStats},
	models.PhaseDealing:          {ActionSubscribe, ActionForceReset, ActionRoundStats},
	models.PhaseRound2Announced:  {ActionSubscribe, ActionForceReset, ActionRoundStats},
	models.PhaseWinnerDetermined: {ActionSubscribe, ActionRoundStats},
	models.PhasePayoutsProcessed: {ActionSubscribe, ActionRoundStats},
}

func allowed(phase models.Phase, action Action) bool {
	for _, a := range allowedActions[phase] {
		if a == action {
			return true
		}
	}
	return false
}

// dispatch runs handler under the table lock when the current phase accepts
// action. Otherwise reject, if set, runs under the same lock with the
// ErrInvalidPhase error so its reply is ordered with the table's broadcasts.
func (t *Table) dispatch(action Action, handler func() error, reject func(error)) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	var err error
	switch {
	case t.closed:
		err = ErrTableClosed
	case !allowed(t.phase, action):
		err = fmt.Errorf("%w: %s not accepted during %s", ErrInvalidPhase, action, t.phase)
	default:
		return handler()
	}

	if reject != nil {
		reject(err)
	}
	return err
}
