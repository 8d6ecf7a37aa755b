package engine

import (
	"context"

	"github.com/mcdev12/andarbahar/go/internal/table/events"
)

// Publisher delivers a table's events to its connections. Implementations
// must deliver envelopes in the order they are handed over.
type Publisher interface {
	Broadcast(env *events.Envelope)
	SendToUser(userID string, env *events.Envelope)
	SendToConnection(connectionID string, env *events.Envelope)
	SendToAdmins(env *events.Envelope)
}

// EventSink durably records the round lifecycle events a table broadcasts.
type EventSink interface {
	Record(ctx context.Context, env *events.Envelope) error
}

// CheckpointStore persists the state needed to resume a table after a crash.
type CheckpointStore interface {
	Save(ctx context.Context, cp *Checkpoint) error
	Load(ctx context.Context, tableID string) (*Checkpoint, error)
}

// Session identifies who sent a client action and over which connection.
type Session struct {
	UserID       string
	ConnectionID string
	Admin        bool
}

type nopPublisher struct{}

func (nopPublisher) Broadcast(*events.Envelope)                {}
func (nopPublisher) SendToUser(string, *events.Envelope)       {}
func (nopPublisher) SendToConnection(string, *events.Envelope) {}
func (nopPublisher) SendToAdmins(*events.Envelope)             {}

type nopSink struct{}

func (nopSink) Record(context.Context, *events.Envelope) error { return nil }
