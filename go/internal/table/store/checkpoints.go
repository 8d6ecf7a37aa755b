package store

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sqlc-dev/pqtype"

	"github.com/mcdev12/andarbahar/go/internal/models"
	"github.com/mcdev12/andarbahar/go/internal/table/engine"
)

//go:embed schema.sql
var Schema string

// Migrate creates the tables the server and outbox worker use.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// CheckpointRepository keeps the latest checkpoint of each table in
// table_checkpoints.
type CheckpointRepository struct {
	db *sql.DB
}

func NewCheckpointRepository(db *sql.DB) *CheckpointRepository {
	return &CheckpointRepository{db: db}
}

type checkpointRow struct {
	TableID  string
	Phase    string
	Sequence int
	RoundID  uuid.NullUUID
	Round    pqtype.NullRawMessage
	State    json.RawMessage
	SavedAt  time.Time
}

// roundState is everything in a checkpoint besides the round header.
type roundState struct {
	Bets            []models.Bet       `json:"bets"`
	Dealt           []models.DealtCard `json:"dealt"`
	Remaining       []models.Card      `json:"remaining"`
	PassDealt       int                `json:"pass_dealt"`
	Deadline        time.Time          `json:"deadline"`
	PreviousRoundID *uuid.UUID         `json:"previous_round_id,omitempty"`
	PreviousBets    []models.Bet       `json:"previous_bets,omitempty"`
}

func toRow(cp *engine.Checkpoint) (checkpointRow, error) {
	row := checkpointRow{
		TableID:  cp.TableID,
		Phase:    string(cp.Phase),
		Sequence: cp.Sequence,
		SavedAt:  cp.SavedAt,
	}
	if cp.Round != nil {
		raw, err := json.Marshal(cp.Round)
		if err != nil {
			return row, fmt.Errorf("failed to marshal round: %w", err)
		}
		row.RoundID = uuid.NullUUID{UUID: cp.Round.ID, Valid: true}
		row.Round = pqtype.NullRawMessage{RawMessage: raw, Valid: true}
	}
	state, err := json.Marshal(roundState{
		Bets:            cp.Bets,
		Dealt:           cp.Dealt,
		Remaining:       cp.Remaining,
		PassDealt:       cp.PassDealt,
		Deadline:        cp.Deadline,
		PreviousRoundID: cp.PreviousRoundID,
		PreviousBets:    cp.PreviousBets,
	})
	if err != nil {
		return row, fmt.Errorf("failed to marshal round state: %w", err)
	}
	row.State = state
	return row, nil
}

func fromRow(row checkpointRow) (*engine.Checkpoint, error) {
	var state roundState
	if err := json.Unmarshal(row.State, &state); err != nil {
		return nil, fmt.Errorf("invalid checkpoint state for %s: %w", row.TableID, err)
	}
	cp := &engine.Checkpoint{
		TableID:         row.TableID,
		Phase:           models.Phase(row.Phase),
		Sequence:        row.Sequence,
		Bets:            state.Bets,
		Dealt:           state.Dealt,
		Remaining:       state.Remaining,
		PassDealt:       state.PassDealt,
		Deadline:        state.Deadline,
		PreviousRoundID: state.PreviousRoundID,
		PreviousBets:    state.PreviousBets,
		SavedAt:         row.SavedAt,
	}
	if row.Round.Valid {
		var round models.Round
		if err := json.Unmarshal(row.Round.RawMessage, &round); err != nil {
			return nil, fmt.Errorf("invalid checkpoint round for %s: %w", row.TableID, err)
		}
		cp.Round = &round
	}
	return cp, nil
}

// Save replaces the table's checkpoint.
func (r *CheckpointRepository) Save(ctx context.Context, cp *engine.Checkpoint) error {
	row, err := toRow(cp)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO table_checkpoints (table_id, phase, sequence, round_id, round, state, saved_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (table_id) DO UPDATE SET
			phase = EXCLUDED.phase,
			sequence = EXCLUDED.sequence,
			round_id = EXCLUDED.round_id,
			round = EXCLUDED.round,
			state = EXCLUDED.state,
			saved_at = EXCLUDED.saved_at`,
		row.TableID, row.Phase, row.Sequence, row.RoundID, row.Round, []byte(row.State), row.SavedAt)
	if err != nil {
		return fmt.Errorf("failed to save checkpoint for %s: %w", cp.TableID, err)
	}
	return nil
}

// Load returns the table's last checkpoint, or nil when it has none.
func (r *CheckpointRepository) Load(ctx context.Context, tableID string) (*engine.Checkpoint, error) {
	var row checkpointRow
	err := r.db.QueryRowContext(ctx, `
		SELECT table_id, phase, sequence, round_id, round, state, saved_at
		FROM table_checkpoints WHERE table_id = $1`, tableID).
		Scan(&row.TableID, &row.Phase, &row.Sequence, &row.RoundID, &row.Round, &row.State, &row.SavedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load checkpoint for %s: %w", tableID, err)
	}
	return fromRow(row)
}
