package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mcdev12/andarbahar/go/internal/models"
)

// EventType names a server to client event on the wire.
type EventType string

const (
	// Broadcast to every connection on a table
	EventTypeRoundCreated     EventType = "round_created"
	EventTypeRoundStarted     EventType = "round_started"
	EventTypeTimerTick        EventType = "timer_tick"
	EventTypeBettingClosed    EventType = "betting_closed"
	EventTypeDealingStarted   EventType = "dealing_started"
	EventTypeCardDealt        EventType = "card_dealt"
	EventTypeWinnerDetermined EventType = "winner_determined"
	EventTypePayoutsProcessed EventType = "payouts_processed"
	EventTypeRound2Announced  EventType = "round2_announced"
	EventTypeRoundReset       EventType = "round_reset"

	// Sent to a single user or connection
	EventTypeBetConfirmed   EventType = "bet_confirmed"
	EventTypeBetError       EventType = "bet_error"
	EventTypeBetCancelled   EventType = "bet_cancelled"
	EventTypePayoutReceived EventType = "payout_received"
	EventTypeRoundSnapshot  EventType = "round_snapshot"

	// Admin connections only
	EventTypeRoundStatsUpdated EventType = "round_stats_updated"
	EventTypeAdminAlert        EventType = "admin_alert"
)

// ServerEvent is the closed set of payloads the server emits.
type ServerEvent interface {
	EventType() EventType
}

// Envelope wraps every server event on the wire.
type Envelope struct {
	ID        string          `json:"id"`
	TableID   string          `json:"table_id"`
	Type      EventType       `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// NewEnvelope marshals ev into an envelope addressed to a table.
func NewEnvelope(tableID string, ev ServerEvent, at time.Time) (*Envelope, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", ev.EventType(), err)
	}
	return &Envelope{
		ID:        uuid.New().String(),
		TableID:   tableID,
		Type:      ev.EventType(),
		Timestamp: at.UTC(),
		Data:      data,
	}, nil
}

type RoundCreated struct {
	Round     models.Round `json:"round"`
	JokerCard models.Card  `json:"joker_card"`
}

type RoundStarted struct {
	Round                  models.Round `json:"round"`
	SubRound               int          `json:"sub_round"`
	BettingDurationSeconds int          `json:"betting_duration_seconds"`
}

type TimerTick struct {
	RoundID          uuid.UUID `json:"round_id"`
	SubRound         int       `json:"sub_round"`
	RemainingSeconds int       `json:"remaining_seconds"`
}

type BettingClosed struct {
	RoundID  uuid.UUID `json:"round_id"`
	SubRound int       `json:"sub_round"`
}

type DealingStarted struct {
	RoundID   uuid.UUID   `json:"round_id"`
	SubRound  int         `json:"sub_round"`
	JokerCard models.Card `json:"joker_card"`
}

type CardDealt struct {
	RoundID       uuid.UUID   `json:"round_id"`
	Side          models.Side `json:"side"`
	Card          models.Card `json:"card"`
	SequenceIndex int         `json:"sequence_index"`
	IsWinningCard bool        `json:"is_winning_card"`
}

// DealtCard converts the event back into the dealt card it announces.
func (e CardDealt) DealtCard() models.DealtCard {
	return models.DealtCard{
		Side:          e.Side,
		Card:          e.Card,
		SequenceIndex: e.SequenceIndex,
		IsWinningCard: e.IsWinningCard,
	}
}

type WinnerDetermined struct {
	RoundID           uuid.UUID   `json:"round_id"`
	WinningSide       models.Side `json:"winning_side"`
	WinningCard       models.Card `json:"winning_card"`
	WinnerDisplayText string      `json:"winner_display_text"`
	TotalCardsDealt   int         `json:"total_cards_dealt"`
}

type PayoutsProcessed struct {
	RoundID      uuid.UUID       `json:"round_id"`
	TotalPayouts decimal.Decimal `json:"total_payouts"`
	WinnersCount int             `json:"winners_count"`
}

type Round2Announced struct {
	RoundID      uuid.UUID `json:"round_id"`
	Message      string    `json:"message"`
	DelaySeconds int       `json:"delay_seconds"`
}

// RoundReset closes a round. Voided is set when the round was abandoned
// and every open stake refunded.
type RoundReset struct {
	RoundID uuid.UUID `json:"round_id"`
	Voided  bool      `json:"voided,omitempty"`
	Message string    `json:"message,omitempty"`
}

type BetConfirmed struct {
	BetID    uuid.UUID       `json:"bet_id"`
	TempID   string          `json:"temp_id"`
	RoundID  uuid.UUID       `json:"round_id"`
	SubRound int             `json:"sub_round"`
	Side     models.Side     `json:"side"`
	Amount   decimal.Decimal `json:"amount"`
	Balance  models.Balance  `json:"balance"`
}

type BetError struct {
	TempID  string `json:"temp_id"`
	Reason  string `json:"reason"`
	Message string `json:"message,omitempty"`
}

type BetCancelled struct {
	RoundID        uuid.UUID       `json:"round_id"`
	BetID          uuid.UUID       `json:"bet_id"`
	TempID         string          `json:"temp_id"`
	RefundedAmount decimal.Decimal `json:"refunded_amount"`
	Balance        models.Balance  `json:"balance"`
}

type PayoutReceived struct {
	RoundID     uuid.UUID       `json:"round_id"`
	Amount      decimal.Decimal `json:"amount"`
	WinningSide models.Side     `json:"winning_side"`
	Balance     models.Balance  `json:"balance"`
}

// RoundSnapshot is the full state a client needs after (re)connecting.
// Round is nil when the table has not run a round yet.
type RoundSnapshot struct {
	Round            *models.Round      `json:"round,omitempty"`
	Phase            models.Phase       `json:"phase"`
	SubRound         int                `json:"sub_round"`
	RemainingSeconds int                `json:"remaining_seconds"`
	DealtCards       []models.DealtCard `json:"dealt_cards"`
	Bets             []models.Bet       `json:"bets"`
	Balance          *models.Balance    `json:"balance,omitempty"`
}

type RoundStatsUpdated struct {
	RoundID        uuid.UUID       `json:"round_id"`
	SubRound       int             `json:"sub_round"`
	TotalAndarBets decimal.Decimal `json:"total_andar_bets"`
	TotalBaharBets decimal.Decimal `json:"total_bahar_bets"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	BetCount       int             `json:"bet_count"`
}

type AdminAlert struct {
	RoundID uuid.UUID `json:"round_id"`
	Phase   string    `json:"phase"`
	Message string    `json:"message"`
}

func (RoundCreated) EventType() EventType      { return EventTypeRoundCreated }
func (RoundStarted) EventType() EventType      { return EventTypeRoundStarted }
func (TimerTick) EventType() EventType         { return EventTypeTimerTick }
func (BettingClosed) EventType() EventType     { return EventTypeBettingClosed }
func (DealingStarted) EventType() EventType    { return EventTypeDealingStarted }
func (CardDealt) EventType() EventType         { return EventTypeCardDealt }
func (WinnerDetermined) EventType() EventType  { return EventTypeWinnerDetermined }
func (PayoutsProcessed) EventType() EventType  { return EventTypePayoutsProcessed }
func (Round2Announced) EventType() EventType   { return EventTypeRound2Announced }
func (RoundReset) EventType() EventType        { return EventTypeRoundReset }
func (BetConfirmed) EventType() EventType      { return EventTypeBetConfirmed }
func (BetError) EventType() EventType          { return EventTypeBetError }
func (BetCancelled) EventType() EventType      { return EventTypeBetCancelled }
func (PayoutReceived) EventType() EventType    { return EventTypePayoutReceived }
func (RoundSnapshot) EventType() EventType     { return EventTypeRoundSnapshot }
func (RoundStatsUpdated) EventType() EventType { return EventTypeRoundStatsUpdated }
func (AdminAlert) EventType() EventType        { return EventTypeAdminAlert }

// DecodeServerEvent parses an envelope into its typed payload.
func DecodeServerEvent(env *Envelope) (ServerEvent, error) {
	var ev ServerEvent
	switch env.Type {
	case EventTypeRoundCreated:
		ev = &RoundCreated{}
	case EventTypeRoundStarted:
		ev = &RoundStarted{}
	case EventTypeTimerTick:
		ev = &TimerTick{}
	case EventTypeBettingClosed:
		ev = &BettingClosed{}
	case EventTypeDealingStarted:
		ev = &DealingStarted{}
	case EventTypeCardDealt:
		ev = &CardDealt{}
	case EventTypeWinnerDetermined:
		ev = &WinnerDetermined{}
	case EventTypePayoutsProcessed:
		ev = &PayoutsProcessed{}
	case EventTypeRound2Announced:
		ev = &Round2Announced{}
	case EventTypeRoundReset:
		ev = &RoundReset{}
	case EventTypeBetConfirmed:
		ev = &BetConfirmed{}
	case EventTypeBetError:
		ev = &BetError{}
	case EventTypeBetCancelled:
		ev = &BetCancelled{}
	case EventTypePayoutReceived:
		ev = &PayoutReceived{}
	case EventTypeRoundSnapshot:
		ev = &RoundSnapshot{}
	case EventTypeRoundStatsUpdated:
		ev = &RoundStatsUpdated{}
	case EventTypeAdminAlert:
		ev = &AdminAlert{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Type)
	}

	if err := json.Unmarshal(env.Data, ev); err != nil {
		return nil, fmt.Errorf("failed to decode %s payload: %w", env.Type, err)
	}
	return deref(ev), nil
}

// deref returns value payloads so consumers can switch on plain struct types.
func deref(ev ServerEvent) ServerEvent {
	switch e := ev.(type) {
	case *RoundCreated:
		return *e
	case *RoundStarted:
		return *e
	case *TimerTick:
		return *e
	case *BettingClosed:
		return *e
	case *DealingStarted:
		return *e
	case *CardDealt:
		return *e
	case *WinnerDetermined:
		return *e
	case *PayoutsProcessed:
		return *e
	case *Round2Announced:
		return *e
	case *RoundReset:
		return *e
	case *BetConfirmed:
		return *e
	case *BetError:
		return *e
	case *BetCancelled:
		return *e
	case *PayoutReceived:
		return *e
	case *RoundSnapshot:
		return *e
	case *RoundStatsUpdated:
		return *e
	case *AdminAlert:
		return *e
	}
	return ev
}

// PhaseOf reports the round phase an event announces, if any.
func PhaseOf(ev ServerEvent) (models.Phase, bool) {
	switch ev.(type) {
	case RoundCreated:
		return models.PhaseCreated, true
	case RoundStarted:
		return models.PhaseBetting, true
	case BettingClosed:
		return models.PhaseLocked, true
	case DealingStarted:
		return models.PhaseDealing, true
	case Round2Announced:
		return models.PhaseRound2Announced, true
	case WinnerDetermined:
		return models.PhaseWinnerDetermined, true
	case PayoutsProcessed:
		return models.PhasePayoutsProcessed, true
	case RoundReset:
		return models.PhaseReset, true
	}
	return "", false
}
