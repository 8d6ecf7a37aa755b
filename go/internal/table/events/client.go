package events

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mcdev12/andarbahar/go/internal/models"
)

var (
	ErrUnknownEvent   = errors.New("unknown event type")
	ErrInvalidMessage = errors.New("invalid client message")
)

// ActionType names a client to server message on the wire.
type ActionType string

const (
	ActionSubscribeRound ActionType = "subscribe_round"
	ActionPlaceBet       ActionType = "place_bet"
	ActionCancelBet      ActionType = "cancel_bet"
	ActionRebet          ActionType = "rebet"
)

// ClientAction is the closed set of messages a client may send.
type ClientAction interface {
	ActionType() ActionType
}

// ClientMessage is the wire frame for client actions.
type ClientMessage struct {
	Type ActionType      `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type SubscribeRound struct{}

type PlaceBet struct {
	RoundID uuid.UUID       `json:"round_id"`
	Side    models.Side     `json:"side"`
	Amount  decimal.Decimal `json:"amount"`
	TempID  string          `json:"temp_id"`
}

type CancelBet struct {
	RoundID uuid.UUID `json:"round_id"`
}

// Rebet replays the previous round's bets. Replayed bets are given temp ids
// prefixed with TempIDPrefix when it is set.
type Rebet struct {
	PreviousRoundID uuid.UUID `json:"previous_round_id"`
	TempIDPrefix    string    `json:"temp_id_prefix,omitempty"`
}

func (SubscribeRound) ActionType() ActionType { return ActionSubscribeRound }
func (PlaceBet) ActionType() ActionType       { return ActionPlaceBet }
func (CancelBet) ActionType() ActionType      { return ActionCancelBet }
func (Rebet) ActionType() ActionType          { return ActionRebet }

// Validate checks the fields a bet must carry before it reaches a table.
func (p PlaceBet) Validate() error {
	if p.TempID == "" {
		return fmt.Errorf("%w: temp_id is required", ErrInvalidMessage)
	}
	if !p.Side.Valid() {
		return fmt.Errorf("%w: invalid side %q", ErrInvalidMessage, p.Side)
	}
	if !p.Amount.IsPositive() {
		return fmt.Errorf("%w: amount must be positive", ErrInvalidMessage)
	}
	return nil
}

// DecodeClientMessage parses a raw frame into a typed client action.
func DecodeClientMessage(raw []byte) (ClientAction, error) {
	var msg ClientMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}

	switch msg.Type {
	case ActionSubscribeRound:
		return SubscribeRound{}, nil
	case ActionPlaceBet:
		var a PlaceBet
		if err := decodeData(msg, &a); err != nil {
			return nil, err
		}
		if err := a.Validate(); err != nil {
			return nil, err
		}
		return a, nil
	case ActionCancelBet:
		var a CancelBet
		if err := decodeData(msg, &a); err != nil {
			return nil, err
		}
		return a, nil
	case ActionRebet:
		var a Rebet
		if err := decodeData(msg, &a); err != nil {
			return nil, err
		}
		return a, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, msg.Type)
	}
}

func decodeData(msg ClientMessage, v any) error {
	if len(msg.Data) == 0 {
		return fmt.Errorf("%w: %s requires data", ErrInvalidMessage, msg.Type)
	}
	if err := json.Unmarshal(msg.Data, v); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidMessage, msg.Type, err)
	}
	return nil
}

// EncodeClientMessage marshals a client action into its wire frame.
func EncodeClientMessage(a ClientAction) ([]byte, error) {
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s: %w", a.ActionType(), err)
	}
	return json.Marshal(ClientMessage{Type: a.ActionType(), Data: data})
}
