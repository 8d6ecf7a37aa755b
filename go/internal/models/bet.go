package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BetStatus defines the settlement state of a bet.
type BetStatus string

const (
	BetStatusPending   BetStatus = "pending"
	BetStatusConfirmed BetStatus = "confirmed"
	BetStatusFailed    BetStatus = "failed"
)

// Bet is a single stake placed on a side during a sub-round.
type Bet struct {
	ID        uuid.UUID       `json:"id"`
	TempID    string          `json:"temp_id"` // client correlation token
	UserID    string          `json:"user_id"`
	RoundID   uuid.UUID       `json:"round_id"`
	SubRound  int             `json:"sub_round"`
	Side      Side            `json:"side"`
	Amount    decimal.Decimal `json:"amount"`
	Status    BetStatus       `json:"status"`
	CreatedAt time.Time       `json:"created_at"`
}

// Balance is a wallet snapshot carried on bet and payout events.
type Balance struct {
	Main  decimal.Decimal `json:"main_balance"`
	Bonus decimal.Decimal `json:"bonus_balance"`
}
