package client

import (
	"errors"
	"fmt"
)

var (
	ErrReconciliationTimeout = errors.New("no confirmation before the reconciliation timeout")
	ErrChannelDisconnected   = errors.New("channel disconnected")
	ErrInvalidPhase          = errors.New("betting is not open")
	ErrInsufficientBalance   = errors.New("insufficient balance")
	ErrDuplicateTempID       = errors.New("temp id already pending")
	ErrNoPreviousRound       = errors.New("no previous round to rebet")
)

// ServerError is a bet_error returned by the table.
type ServerError struct {
	Reason  string
	Message string
}

func (e *ServerError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("bet rejected: %s", e.Reason)
	}
	return fmt.Sprintf("bet rejected: %s: %s", e.Reason, e.Message)
}
