package store

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/andarbahar/go/internal/models"
	"github.com/mcdev12/andarbahar/go/internal/table/engine"
)

func TestCheckpointRowSplitsRoundFromState(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	round := &models.Round{
		ID:        uuid.New(),
		TableID:   "t1",
		Sequence:  4,
		JokerCard: models.MustParseCard("7♠"),
		SubRound:  1,
		CreatedAt: now,
	}
	cp := &engine.Checkpoint{
		TableID:  "t1",
		Phase:    models.PhaseDealing,
		Sequence: 4,
		Round:    round,
		Bets: []models.Bet{{
			ID: uuid.New(), RoundID: round.ID, UserID: "u1", Side: models.SideAndar,
			Amount: decimal.NewFromInt(250), SubRound: 1, TempID: "x", Status: models.BetStatusConfirmed,
		}},
		Dealt:     []models.DealtCard{{Side: models.SideAndar, Card: models.MustParseCard("2♦"), SequenceIndex: 1}},
		Remaining: []models.Card{models.MustParseCard("7♥")},
		PassDealt: 1,
		SavedAt:   now,
	}

	row, err := toRow(cp)
	require.NoError(t, err)
	assert.True(t, row.Round.Valid)
	assert.Equal(t, round.ID, row.RoundID.UUID)
	assert.NotContains(t, string(row.State), `"joker_card"`)

	got, err := fromRow(row)
	require.NoError(t, err)
	require.NotNil(t, got.Round)
	assert.Equal(t, round.ID, got.Round.ID)
	assert.Equal(t, "7♠", got.Round.JokerCard.String())
	assert.Equal(t, models.PhaseDealing, got.Phase)
	require.Len(t, got.Bets, 1)
	assert.True(t, decimal.NewFromInt(250).Equal(got.Bets[0].Amount))
	assert.Equal(t, cp.Dealt, got.Dealt)
	assert.Equal(t, cp.Remaining, got.Remaining)
}

func TestIdleCheckpointHasNullRound(t *testing.T) {
	prev := uuid.New()
	row, err := toRow(&engine.Checkpoint{TableID: "t1", Phase: models.PhaseReset, Sequence: 9, PreviousRoundID: &prev})
	require.NoError(t, err)
	assert.False(t, row.Round.Valid)
	assert.False(t, row.RoundID.Valid)

	got, err := fromRow(row)
	require.NoError(t, err)
	assert.Nil(t, got.Round)
	assert.Equal(t, &prev, got.PreviousRoundID)
}

func TestSchemaDeclaresOutboxTrigger(t *testing.T) {
	assert.True(t, strings.Contains(Schema, "pg_notify('table_outbox_events'"))
	assert.Contains(t, Schema, "CREATE TABLE IF NOT EXISTS table_checkpoints")
}
