package engine

import (
	"errors"

	"github.com/mcdev12/andarbahar/go/internal/table/ledger"
)

var (
	ErrInvalidPhase        = ledger.ErrInvalidPhase
	ErrLimitExceeded       = ledger.ErrLimitExceeded
	ErrInsufficientBalance = ledger.ErrInsufficientBalance
	ErrDuplicateTempID     = ledger.ErrDuplicateTempID
	ErrUnknownRound        = ledger.ErrUnknownRound
	ErrNoBetToCancel       = ledger.ErrNoBetToCancel

	ErrIllegalTransition = errors.New("illegal phase transition")
	ErrTableNotFound     = errors.New("table not found")
	ErrTableClosed       = errors.New("table closed")
	ErrNoActiveRound     = errors.New("no active round")
	ErrInvalidJoker      = errors.New("joker card is required")
)

// Wire reasons carried by bet_error.
const (
	ReasonInvalidPhase        = "invalid_phase"
	ReasonLimitExceeded       = "limit_exceeded"
	ReasonInsufficientBalance = "insufficient_balance"
	ReasonDuplicateTempID     = "duplicate_temp_id"
	ReasonUnknownRound        = "unknown_round"
	ReasonNoBetToCancel       = "no_bet_to_cancel"
	ReasonInvalidMessage      = "invalid_message"
	ReasonInternal            = "internal"
)

// Reason maps an engine error to the reason string sent to clients.
func Reason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidPhase), errors.Is(err, ErrTableClosed):
		return ReasonInvalidPhase
	case errors.Is(err, ErrLimitExceeded):
		return ReasonLimitExceeded
	case errors.Is(err, ErrInsufficientBalance):
		return ReasonInsufficientBalance
	case errors.Is(err, ErrDuplicateTempID):
		return ReasonDuplicateTempID
	case errors.Is(err, ErrUnknownRound):
		return ReasonUnknownRound
	case errors.Is(err, ErrNoBetToCancel):
		return ReasonNoBetToCancel
	default:
		return ReasonInternal
	}
}
