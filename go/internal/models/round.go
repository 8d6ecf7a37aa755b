package models

import (
	"time"

	"github.com/google/uuid"
)

// Phase defines the lifecycle phase of a round.
type Phase string

const (
	PhaseCreated          Phase = "CREATED"
	PhaseBetting          Phase = "BETTING"
	PhaseLocked           Phase = "LOCKED"
	PhaseDealing          Phase = "DEALING"
	PhaseRound2Announced  Phase = "ROUND2_ANNOUNCED"
	PhaseWinnerDetermined Phase = "WINNER_DETERMINED"
	PhasePayoutsProcessed Phase = "PAYOUTS_PROCESSED"
	PhaseReset            Phase = "RESET"
)

// Side is one of the two piles cards are dealt to.
type Side string

const (
	SideAndar Side = "andar"
	SideBahar Side = "bahar"
)

// Valid reports whether s is andar or bahar.
func (s Side) Valid() bool {
	return s == SideAndar || s == SideBahar
}

// Opposite returns the other pile.
func (s Side) Opposite() Side {
	if s == SideAndar {
		return SideBahar
	}
	return SideAndar
}

// DisplayName returns the capitalised side name used in announcements.
func (s Side) DisplayName() string {
	switch s {
	case SideAndar:
		return "Andar"
	case SideBahar:
		return "Bahar"
	default:
		return string(s)
	}
}

// Round represents one betting-to-payout cycle on a table.
type Round struct {
	ID              uuid.UUID `json:"id"`
	TableID         string    `json:"table_id"`
	Sequence        int       `json:"sequence"`
	JokerCard       Card      `json:"joker_card"`
	Phase           Phase     `json:"phase"`
	SubRound        int       `json:"sub_round"`
	BettingDuration int       `json:"betting_duration_sec"`
	CreatedAt       time.Time `json:"created_at"`
}

// DealtCard is one card placed on a pile.
type DealtCard struct {
	Side          Side `json:"side"`
	Card          Card `json:"card"`
	SequenceIndex int  `json:"sequence_index"`
	IsWinningCard bool `json:"is_winning_card"`
}
