package engine

import (
	"fmt"

	"github.com/mcdev12/andarbahar/go/internal/models"
)

// transitions lists the phases reachable from each phase during a normal
// round. The ROUND2_ANNOUNCED -> BETTING edge is the only way back.
var transitions = map[models.Phase][]models.Phase{
	models.PhaseReset:            {models.PhaseCreated},
	models.PhaseCreated:          {models.PhaseBetting},
	models.PhaseBetting:          {models.PhaseLocked},
	models.PhaseLocked:           {models.PhaseDealing},
	models.PhaseDealing:          {models.PhaseRound2Announced, models.PhaseWinnerDetermined},
	models.PhaseRound2Announced:  {models.PhaseBetting},
	models.PhaseWinnerDetermined: {models.PhasePayoutsProcessed},
	models.PhasePayoutsProcessed: {models.PhaseReset},
}

func canTransition(from, to models.Phase) bool {
	for _, p := range transitions[from] {
		if p == to {
			return true
		}
	}
	return false
}

func validateTransition(from, to models.Phase) error {
	if !canTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, from, to)
	}
	return nil
}

// canVoid reports whether a round in phase may be abandoned. Voiding jumps
// straight to RESET.
func canVoid(phase models.Phase) bool {
	return phase != models.PhaseReset
}
