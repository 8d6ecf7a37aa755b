package outbox

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Event is one row of table_outbox. Payload is the full wire envelope.
type Event struct {
	ID        uuid.UUID
	TableID   string
	EventType string
	Payload   []byte
	CreatedAt time.Time
	SentAt    *time.Time
}

// Publisher delivers outbox events to the message bus.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Store reads and acknowledges pending outbox rows.
type Store interface {
	FetchUnsent(ctx context.Context, limit int) ([]Event, error)
	FetchByID(ctx context.Context, id uuid.UUID) (*Event, error)
	MarkSent(ctx context.Context, id uuid.UUID) error
}
