package outbox

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/mcdev12/andarbahar/go/internal/table/events"
)

var ErrEventNotFound = errors.New("outbox event not found or already sent")

// Repository stores round events in table_outbox. An insert trigger
// notifies table_outbox_events with the new row id.
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Record appends env to the outbox. It satisfies engine.EventSink.
func (r *Repository) Record(ctx context.Context, env *events.Envelope) error {
	id, err := uuid.Parse(env.ID)
	if err != nil {
		id = uuid.New()
	}
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal %s envelope: %w", env.Type, err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO table_outbox (id, table_id, event_type, payload, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		id, env.TableID, string(env.Type), payload, env.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to insert %s outbox event: %w", env.Type, err)
	}
	return nil
}

func (r *Repository) FetchUnsent(ctx context.Context, limit int) ([]Event, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, table_id, event_type, payload, created_at
		FROM table_outbox
		WHERE sent_at IS NULL
		ORDER BY created_at, id
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch unsent outbox events: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var ev Event
		if err := rows.Scan(&ev.ID, &ev.TableID, &ev.EventType, &ev.Payload, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan outbox event: %w", err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (r *Repository) FetchByID(ctx context.Context, id uuid.UUID) (*Event, error) {
	var ev Event
	err := r.db.QueryRowContext(ctx, `
		SELECT id, table_id, event_type, payload, created_at
		FROM table_outbox
		WHERE id = $1 AND sent_at IS NULL`, id).
		Scan(&ev.ID, &ev.TableID, &ev.EventType, &ev.Payload, &ev.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrEventNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch outbox event by ID: %w", err)
	}
	return &ev, nil
}

func (r *Repository) MarkSent(ctx context.Context, id uuid.UUID) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE table_outbox SET sent_at = now() WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to mark outbox event as sent: %w", err)
	}
	return nil
}
