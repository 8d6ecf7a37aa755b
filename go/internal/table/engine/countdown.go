package engine

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/andarbahar/go/internal/models"
	"github.com/mcdev12/andarbahar/go/internal/table/events"
)

// countdown ticks once per second for the betting phase. Remaining time is
// always derived from the deadline, so a late or dropped tick cannot make
// the countdown drift.
type countdown struct {
	ticker clockwork.Ticker
	done   chan struct{}
}

func (c *countdown) stop() {
	close(c.done)
}

func (t *Table) startCountdownLocked(deadline time.Time) {
	if t.countdown != nil {
		t.countdown.stop()
	}
	t.deadline = deadline
	cd := &countdown{
		ticker: t.clock.NewTicker(time.Second),
		done:   make(chan struct{}),
	}
	t.countdown = cd
	go t.runCountdown(t.gen, cd)

	log.Debug().
		Str("table_id", t.id).
		Time("deadline", deadline).
		Msg("betting countdown started")
}

func (t *Table) runCountdown(gen uint64, cd *countdown) {
	defer cd.ticker.Stop()
	for {
		select {
		case <-cd.done:
			return
		case <-cd.ticker.Chan():
			if !t.tick(gen) {
				return
			}
		}
	}
}

// tick broadcasts the remaining seconds and locks betting when they reach
// zero. It reports whether the countdown should keep running.
func (t *Table) tick(gen uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	// A tick from a cancelled countdown must never touch the round.
	if t.closed || gen != t.gen || t.phase != models.PhaseBetting {
		return false
	}

	remaining := t.remainingLocked()
	t.broadcastLocked(context.Background(), events.TimerTick{
		RoundID:          t.round.ID,
		SubRound:         t.round.SubRound,
		RemainingSeconds: remaining,
	})
	if remaining > 0 {
		return true
	}

	log.Info().
		Str("table_id", t.id).
		Str("round_id", t.round.ID.String()).
		Int("sub_round", t.round.SubRound).
		Msg("betting timer expired")
	t.lockBettingLocked(context.Background())
	return false
}

// remainingLocked returns whole seconds left until the deadline, rounded up.
func (t *Table) remainingLocked() int {
	left := t.deadline.Sub(t.clock.Now())
	if left <= 0 {
		return 0
	}
	return int((left + time.Second - 1) / time.Second)
}
