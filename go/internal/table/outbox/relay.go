package outbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

type RelayConfig struct {
	MaxRetries int
	RetryDelay time.Duration
	BatchSize  int
}

func DefaultRelayConfig() RelayConfig {
	return RelayConfig{
		MaxRetries: 5,
		RetryDelay: 200 * time.Millisecond,
		BatchSize:  100,
	}
}

// Relay moves outbox rows to the publisher and marks them sent. A row is
// marked only after the publisher acknowledged it, so delivery is at least
// once; the event id doubles as the JetStream dedup id.
type Relay struct {
	store     Store
	publisher Publisher
	clock     clockwork.Clock
	cfg       RelayConfig
}

func NewRelay(store Store, publisher Publisher, clock clockwork.Clock, cfg RelayConfig) *Relay {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Relay{store: store, publisher: publisher, clock: clock, cfg: cfg}
}

// RelayByID publishes the row a notification pointed at.
func (r *Relay) RelayByID(ctx context.Context, id uuid.UUID) error {
	event, err := r.store.FetchByID(ctx, id)
	if errors.Is(err, ErrEventNotFound) {
		// Already drained by the fallback sweep.
		return nil
	}
	if err != nil {
		return err
	}
	return r.relay(ctx, *event)
}

// Drain publishes every unsent row in creation order and returns how many
// were relayed. It stops at the first row that cannot be published so later
// events of a table never overtake earlier ones.
func (r *Relay) Drain(ctx context.Context) (int, error) {
	start := r.clock.Now()
	unsent, err := r.store.FetchUnsent(ctx, r.cfg.BatchSize)
	if err != nil {
		return 0, err
	}
	recordLag(len(unsent))

	sent := 0
	for _, event := range unsent {
		if err := r.relay(ctx, event); err != nil {
			recordBatch(sent, r.clock.Since(start))
			return sent, err
		}
		sent++
	}
	recordBatch(sent, r.clock.Since(start))
	return sent, nil
}

func (r *Relay) relay(ctx context.Context, event Event) error {
	if err := r.publishWithRetry(ctx, event); err != nil {
		return err
	}
	if err := r.store.MarkSent(ctx, event.ID); err != nil {
		log.Error().Err(err).Str("event_id", event.ID.String()).Msg("failed to mark outbox event as sent")
		return err
	}
	log.Debug().
		Str("event_id", event.ID.String()).
		Str("table_id", event.TableID).
		Str("event_type", event.EventType).
		Msg("relayed outbox event")
	return nil
}

// publishWithRetry retries with a linearly growing delay.
func (r *Relay) publishWithRetry(ctx context.Context, event Event) error {
	var lastErr error

	for attempt := 0; attempt <= r.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-r.clock.After(r.cfg.RetryDelay * time.Duration(attempt)):
			}
		}

		started := r.clock.Now()
		err := r.publisher.Publish(ctx, event)
		recordPublish(event.EventType, attempt+1, err == nil, r.clock.Since(started))
		if err != nil {
			lastErr = err
			log.Error().
				Err(err).
				Int("attempt", attempt+1).
				Str("event_id", event.ID.String()).
				Msg("failed to publish, retrying")
			continue
		}

		if attempt > 0 {
			log.Info().
				Int("attempt", attempt+1).
				Str("event_id", event.ID.String()).
				Msg("publish succeeded after retry")
		}
		return nil
	}

	return fmt.Errorf("publish failed after %d attempts: %w", r.cfg.MaxRetries+1, lastErr)
}
