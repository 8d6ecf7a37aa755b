package outbox

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryStore struct {
	mu     sync.Mutex
	events []Event
	sent   map[uuid.UUID]bool
}

func newMemoryStore(events ...Event) *memoryStore {
	return &memoryStore{events: events, sent: map[uuid.UUID]bool{}}
}

func (s *memoryStore) FetchUnsent(_ context.Context, limit int) ([]Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Event
	for _, ev := range s.events {
		if !s.sent[ev.ID] && len(out) < limit {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (s *memoryStore) FetchByID(_ context.Context, id uuid.UUID) (*Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ev := range s.events {
		if ev.ID == id && !s.sent[id] {
			return &ev, nil
		}
	}
	return nil, ErrEventNotFound
}

func (s *memoryStore) MarkSent(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent[id] = true
	return nil
}

type flakyPublisher struct {
	mu        sync.Mutex
	failures  int
	attempts  int
	published []uuid.UUID
}

func (p *flakyPublisher) Publish(_ context.Context, event Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.attempts++
	if p.failures > 0 {
		p.failures--
		return errors.New("nats: timeout")
	}
	p.published = append(p.published, event.ID)
	return nil
}

func event(tableID, typ string) Event {
	return Event{ID: uuid.New(), TableID: tableID, EventType: typ, Payload: []byte(`{}`)}
}

func TestDrainPublishesInOrder(t *testing.T) {
	events := []Event{event("t1", "round_created"), event("t1", "round_started"), event("t2", "round_created")}
	store := newMemoryStore(events...)
	pub := &flakyPublisher{}
	relay := NewRelay(store, pub, clockwork.NewFakeClock(), DefaultRelayConfig())

	n, err := relay.Drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, []uuid.UUID{events[0].ID, events[1].ID, events[2].ID}, pub.published)

	n, err = relay.Drain(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestDrainRespectsBatchSize(t *testing.T) {
	store := newMemoryStore(event("t1", "a"), event("t1", "b"), event("t1", "c"))
	cfg := DefaultRelayConfig()
	cfg.BatchSize = 2
	relay := NewRelay(store, &flakyPublisher{}, clockwork.NewFakeClock(), cfg)

	n, err := relay.Drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = relay.Drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestPublishRetriesWithBackoff(t *testing.T) {
	ev := event("t1", "card_dealt")
	store := newMemoryStore(ev)
	pub := &flakyPublisher{failures: 2}
	clock := clockwork.NewFakeClock()
	relay := NewRelay(store, pub, clock, DefaultRelayConfig())

	done := make(chan error, 1)
	go func() { done <- relay.RelayByID(context.Background(), ev.ID) }()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(200 * time.Millisecond)
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(400 * time.Millisecond)

	require.NoError(t, <-done)
	assert.Equal(t, 3, pub.attempts)
	assert.True(t, store.sent[ev.ID])
}

func TestDrainStopsAtFailedEvent(t *testing.T) {
	first, second := event("t1", "winner_determined"), event("t1", "payouts_processed")
	store := newMemoryStore(first, second)
	pub := &flakyPublisher{failures: 100}
	cfg := DefaultRelayConfig()
	cfg.MaxRetries = 0
	relay := NewRelay(store, pub, clockwork.NewFakeClock(), cfg)

	n, err := relay.Drain(context.Background())
	require.Error(t, err)
	assert.Zero(t, n)
	assert.Equal(t, 1, pub.attempts)
	assert.False(t, store.sent[second.ID])
}

func TestRelayByIDSkipsSentEvents(t *testing.T) {
	ev := event("t1", "round_reset")
	store := newMemoryStore(ev)
	store.sent[ev.ID] = true
	pub := &flakyPublisher{}
	relay := NewRelay(store, pub, clockwork.NewFakeClock(), DefaultRelayConfig())

	require.NoError(t, relay.RelayByID(context.Background(), ev.ID))
	assert.Zero(t, pub.attempts)
}
