package events

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/andarbahar/go/internal/models"
)

func TestDecodeClientMessage(t *testing.T) {
	roundID := uuid.New()

	tests := []struct {
		name string
		raw  string
		want ClientAction
	}{
		{
			name: "subscribe",
			raw:  `{"type":"subscribe_round"}`,
			want: SubscribeRound{},
		},
		{
			name: "place bet",
			raw:  `{"type":"place_bet","data":{"round_id":"` + roundID.String() + `","side":"andar","amount":1000,"temp_id":"t1"}}`,
			want: PlaceBet{RoundID: roundID, Side: models.SideAndar, Amount: decimal.NewFromInt(1000), TempID: "t1"},
		},
		{
			name: "cancel bet",
			raw:  `{"type":"cancel_bet","data":{"round_id":"` + roundID.String() + `"}}`,
			want: CancelBet{RoundID: roundID},
		},
		{
			name: "rebet",
			raw:  `{"type":"rebet","data":{"previous_round_id":"` + roundID.String() + `","temp_id_prefix":"rb"}}`,
			want: Rebet{PreviousRoundID: roundID, TempIDPrefix: "rb"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeClientMessage([]byte(tt.raw))
			require.NoError(t, err)
			if pb, ok := got.(PlaceBet); ok {
				want := tt.want.(PlaceBet)
				assert.True(t, want.Amount.Equal(pb.Amount))
				pb.Amount = want.Amount
				got = pb
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeClientMessageRejects(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		err  error
	}{
		{"not json", `{{`, ErrInvalidMessage},
		{"unknown type", `{"type":"steal_chips"}`, ErrUnknownEvent},
		{"missing data", `{"type":"place_bet"}`, ErrInvalidMessage},
		{"bad side", `{"type":"place_bet","data":{"side":"middle","amount":10,"temp_id":"t"}}`, ErrInvalidMessage},
		{"zero amount", `{"type":"place_bet","data":{"side":"andar","amount":0,"temp_id":"t"}}`, ErrInvalidMessage},
		{"no temp id", `{"type":"place_bet","data":{"side":"andar","amount":5}}`, ErrInvalidMessage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeClientMessage([]byte(tt.raw))
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestClientMessageRoundTrip(t *testing.T) {
	in := PlaceBet{RoundID: uuid.New(), Side: models.SideBahar, Amount: decimal.RequireFromString("12.5"), TempID: "t9"}
	raw, err := EncodeClientMessage(in)
	require.NoError(t, err)

	out, err := DecodeClientMessage(raw)
	require.NoError(t, err)
	got := out.(PlaceBet)
	assert.Equal(t, in.TempID, got.TempID)
	assert.Equal(t, in.Side, got.Side)
	assert.True(t, in.Amount.Equal(got.Amount))
}

func TestEnvelopeDecode(t *testing.T) {
	roundID := uuid.New()
	ev := CardDealt{RoundID: roundID, Side: models.SideBahar, Card: models.MustParseCard("7♠"), SequenceIndex: 2, IsWinningCard: true}

	env, err := NewEnvelope("table-1", ev, time.Now())
	require.NoError(t, err)
	assert.Equal(t, EventTypeCardDealt, env.Type)

	raw, err := json.Marshal(env)
	require.NoError(t, err)
	var back Envelope
	require.NoError(t, json.Unmarshal(raw, &back))

	decoded, err := DecodeServerEvent(&back)
	require.NoError(t, err)
	assert.Equal(t, ev, decoded)
}

func TestDecodeServerEventUnknown(t *testing.T) {
	_, err := DecodeServerEvent(&Envelope{Type: "mystery", Data: json.RawMessage(`{}`)})
	assert.ErrorIs(t, err, ErrUnknownEvent)
}

func TestPhaseOf(t *testing.T) {
	phase, ok := PhaseOf(BettingClosed{})
	assert.True(t, ok)
	assert.Equal(t, models.PhaseLocked, phase)

	_, ok = PhaseOf(TimerTick{})
	assert.False(t, ok)
}
