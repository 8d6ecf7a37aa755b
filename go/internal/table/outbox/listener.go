package outbox

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/rs/zerolog/log"
)

type ListenerConfig struct {
	DatabaseURL      string
	NotifyChannel    string
	FallbackInterval time.Duration
	PingInterval     time.Duration
}

func DefaultListenerConfig() ListenerConfig {
	return ListenerConfig{
		NotifyChannel:    "table_outbox_events",
		FallbackInterval: 30 * time.Second,
		PingInterval:     90 * time.Second,
	}
}

// Listener wakes the relay on Postgres notifications and sweeps for rows
// whose notification was missed.
type Listener struct {
	listener *pq.Listener
	relay    *Relay
	cfg      ListenerConfig
}

func NewListener(relay *Relay, cfg ListenerConfig) (*Listener, error) {
	l := pq.NewListener(
		cfg.DatabaseURL,
		10*time.Second,
		time.Minute,
		func(ev pq.ListenerEventType, err error) {
			if err != nil {
				log.Error().Err(err).Msg("listener event")
			}
		},
	)
	if err := l.Listen(cfg.NotifyChannel); err != nil {
		l.Close()
		return nil, fmt.Errorf("failed to listen to channel: %w", err)
	}

	log.Info().
		Str("channel", cfg.NotifyChannel).
		Msg("listening for notifications")

	return &Listener{listener: l, relay: relay, cfg: cfg}, nil
}

func (l *Listener) Start(ctx context.Context) error {
	log.Info().
		Str("channel", l.cfg.NotifyChannel).
		Dur("ping_interval", l.cfg.PingInterval).
		Dur("fallback_interval", l.cfg.FallbackInterval).
		Msg("listener started")

	// Rows written while the worker was down.
	l.drain(ctx)

	pingTicker := time.NewTicker(l.cfg.PingInterval)
	fallbackTicker := time.NewTicker(l.cfg.FallbackInterval)
	defer pingTicker.Stop()
	defer fallbackTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("listener shutting down")
			return l.Stop()
		case note := <-l.listener.Notify:
			if note == nil {
				// Connection was re-established; notifications may have been lost.
				l.drain(ctx)
				continue
			}
			id, err := uuid.Parse(note.Extra)
			if err != nil {
				log.Error().Err(err).Str("extra", note.Extra).Msg("invalid event ID in notification")
				continue
			}
			if err := l.relay.RelayByID(ctx, id); err != nil {
				log.Error().Err(err).Str("event_id", id.String()).Msg("failed to relay notified event")
			}
		case <-fallbackTicker.C:
			l.drain(ctx)
		case <-pingTicker.C:
			if err := l.listener.Ping(); err != nil {
				log.Error().Err(err).Msg("failed to ping listener")
			}
		}
	}
}

func (l *Listener) drain(ctx context.Context) {
	n, err := l.relay.Drain(ctx)
	if err != nil {
		log.Error().Err(err).Int("relayed", n).Msg("failed to process unsent events")
		return
	}
	if n > 0 {
		log.Info().Int("relayed", n).Msg("relayed unsent events")
	}
}

func (l *Listener) Stop() error {
	return l.listener.Close()
}
