package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/andarbahar/go/internal/table/events"
)

// Handler consumes a connection's lifecycle and frames. Synchronizer
// implements it.
type Handler interface {
	Connected(ctx context.Context) error
	Disconnected()
	HandleEnvelope(env *events.Envelope)
}

type ConnConfig struct {
	// URL is the table websocket endpoint, including table_id.
	URL    string
	Header http.Header
	Dialer *websocket.Dialer
	Clock  clockwork.Clock
	// MinBackoff and MaxBackoff bound the delay between reconnect attempts.
	MinBackoff   time.Duration
	MaxBackoff   time.Duration
	WriteTimeout time.Duration
}

// Conn is a reconnecting websocket channel to one table.
type Conn struct {
	config ConnConfig

	mu      sync.Mutex
	ws      *websocket.Conn
	writeMu sync.Mutex

	cancel context.CancelFunc
	done   chan struct{}
}

func NewConn(config ConnConfig) *Conn {
	if config.Dialer == nil {
		config.Dialer = websocket.DefaultDialer
	}
	if config.Clock == nil {
		config.Clock = clockwork.NewRealClock()
	}
	if config.MinBackoff <= 0 {
		config.MinBackoff = 500 * time.Millisecond
	}
	if config.MaxBackoff < config.MinBackoff {
		config.MaxBackoff = 10 * time.Second
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = 10 * time.Second
	}
	return &Conn{config: config}
}

// Connect dials the table and keeps the channel up, reconnecting with
// backoff, until ctx is cancelled or Close is called. The first dial's
// error is returned; later failures are retried.
func (c *Conn) Connect(ctx context.Context, h Handler) error {
	ws, err := c.dial(ctx)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancel = cancel
	c.done = make(chan struct{})
	done := c.done
	c.mu.Unlock()

	go func() {
		defer close(done)
		c.run(ctx, h, ws)
	}()
	return nil
}

func (c *Conn) run(ctx context.Context, h Handler, ws *websocket.Conn) {
	backoff := c.config.MinBackoff
	for {
		c.serve(ctx, h, ws)
		if ctx.Err() != nil {
			return
		}

		for {
			select {
			case <-ctx.Done():
				return
			case <-c.config.Clock.After(backoff):
			}

			var err error
			ws, err = c.dial(ctx)
			if err == nil {
				backoff = c.config.MinBackoff
				log.Info().Str("url", c.config.URL).Msg("reconnected")
				break
			}
			log.Warn().Err(err).Dur("backoff", backoff).Msg("reconnect failed")
			backoff *= 2
			if backoff > c.config.MaxBackoff {
				backoff = c.config.MaxBackoff
			}
		}
	}
}

// serve reads frames from ws until it fails.
func (c *Conn) serve(ctx context.Context, h Handler, ws *websocket.Conn) {
	c.mu.Lock()
	c.ws = ws
	c.mu.Unlock()

	stop := context.AfterFunc(ctx, func() { ws.Close() })
	defer stop()
	defer func() {
		c.mu.Lock()
		if c.ws == ws {
			c.ws = nil
		}
		c.mu.Unlock()
		ws.Close()
		h.Disconnected()
	}()

	if err := h.Connected(ctx); err != nil {
		log.Warn().Err(err).Msg("failed to request snapshot")
		return
	}

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				log.Warn().Err(err).Msg("connection lost")
			}
			return
		}
		var env events.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			log.Warn().Err(err).Msg("dropping malformed frame")
			continue
		}
		h.HandleEnvelope(&env)
	}
}

func (c *Conn) dial(ctx context.Context) (*websocket.Conn, error) {
	ws, resp, err := c.config.Dialer.DialContext(ctx, c.config.URL, c.config.Header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("failed to dial %s: %s: %w", c.config.URL, resp.Status, err)
		}
		return nil, fmt.Errorf("failed to dial %s: %w", c.config.URL, err)
	}
	return ws, nil
}

// Send writes one client action. It fails with ErrChannelDisconnected while
// the channel is down.
func (c *Conn) Send(ctx context.Context, action events.ClientAction) error {
	c.mu.Lock()
	ws := c.ws
	c.mu.Unlock()
	if ws == nil {
		return ErrChannelDisconnected
	}

	frame, err := events.EncodeClientMessage(action)
	if err != nil {
		return err
	}

	deadline := time.Now().Add(c.config.WriteTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	ws.SetWriteDeadline(deadline)
	if err := ws.WriteMessage(websocket.TextMessage, frame); err != nil {
		return errors.Join(ErrChannelDisconnected, err)
	}
	return nil
}

// Close stops reconnecting and closes the channel.
func (c *Conn) Close() error {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	return nil
}
