package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/andarbahar/go/internal/metrics"
	"github.com/mcdev12/andarbahar/go/internal/models"
	"github.com/mcdev12/andarbahar/go/internal/table/dealing"
	"github.com/mcdev12/andarbahar/go/internal/table/events"
	"github.com/mcdev12/andarbahar/go/internal/table/ledger"
	"github.com/mcdev12/andarbahar/go/internal/table/payout"
	"github.com/mcdev12/andarbahar/go/internal/wallet"
)

// Deps are the collaborators a table needs. Wallet is required; the rest
// default to in-process or no-op implementations.
type Deps struct {
	Clock       clockwork.Clock
	Wallet      wallet.Wallet
	Marker      payout.Marker
	Publisher   Publisher
	Sink        EventSink
	Checkpoints CheckpointStore
	// Shuffle fixes the card order of a round before betting opens.
	Shuffle func(joker models.Card) []models.Card
	// DrawJoker picks the joker for auto-started rounds.
	DrawJoker func() models.Card
}

// StartRoundRequest opens a new round. Cards, when set, replaces the
// shuffled deck with an explicit dealing order.
type StartRoundRequest struct {
	JokerCard models.Card
	Cards     []models.Card
}

type archivedRound struct {
	id   uuid.UUID
	bets []models.Bet
}

// Table is the single owner of one game table's round. Every mutation runs
// under mu, and every event is handed to the publisher before mu is released,
// so connections observe events in the order they were applied.
type Table struct {
	id          string
	rules       Rules
	clock       clockwork.Clock
	wallet      wallet.Wallet
	payouts     *payout.Engine
	publisher   Publisher
	sink        EventSink
	checkpoints CheckpointStore
	shuffle     func(models.Card) []models.Card
	drawJoker   func() models.Card

	mu        sync.Mutex
	phase     models.Phase
	round     *models.Round
	sequence  int
	ledger    *ledger.Ledger
	dealer    *dealing.Sequencer
	passDealt int
	deadline  time.Time
	previous  *archivedRound
	// credited holds users paid by a settlement attempt that did not finish.
	credited  map[string]bool

	// gen invalidates every timer scheduled before it was last bumped.
	gen       uint64
	countdown *countdown
	timer     clockwork.Timer
	closed    bool
}

// NewTable creates an idle table.
func NewTable(id string, rules Rules, deps Deps) (*Table, error) {
	if err := rules.Validate(); err != nil {
		return nil, fmt.Errorf("table %s: %w", id, err)
	}
	if deps.Wallet == nil {
		return nil, fmt.Errorf("table %s: wallet is required", id)
	}
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	if deps.Publisher == nil {
		deps.Publisher = nopPublisher{}
	}
	if deps.Sink == nil {
		deps.Sink = nopSink{}
	}
	clock := deps.Clock
	if deps.Shuffle == nil {
		deps.Shuffle = func(joker models.Card) []models.Card {
			return dealing.NewShuffledDeck(joker, clock.Now().UnixNano())
		}
	}
	if deps.DrawJoker == nil {
		deps.DrawJoker = func() models.Card {
			return dealing.DrawJoker(clock.Now().UnixNano())
		}
	}

	return &Table{
		id:          id,
		rules:       rules,
		clock:       deps.Clock,
		wallet:      deps.Wallet,
		payouts:     payout.NewEngine(deps.Wallet, deps.Marker, rules.PayoutMultiplier),
		publisher:   deps.Publisher,
		sink:        deps.Sink,
		checkpoints: deps.Checkpoints,
		shuffle:     deps.Shuffle,
		drawJoker:   deps.DrawJoker,
		phase:       models.PhaseReset,
	}, nil
}

func (t *Table) ID() string { return t.id }

func (t *Table) Rules() Rules { return t.rules }

// Phase returns the current phase. An idle table reports RESET.
func (t *Table) Phase() models.Phase {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.phase
}

// Round returns a copy of the current or most recent round.
func (t *Table) Round() (models.Round, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.round == nil {
		return models.Round{}, false
	}
	return *t.round, true
}

// Start auto-starts the first round on tables configured for it.
func (t *Table) Start(ctx context.Context) error {
	if !t.rules.AutoStart {
		return nil
	}
	err := t.dispatch(ActionStartRound, func() error {
		return t.startRoundLocked(ctx, StartRoundRequest{JokerCard: t.drawJoker()})
	}, nil)
	if err != nil && errors.Is(err, ErrInvalidPhase) {
		// A restored round is already running.
		return nil
	}
	return err
}

// StartRound opens a new round with the given joker.
func (t *Table) StartRound(ctx context.Context, req StartRoundRequest) (models.Round, error) {
	var round models.Round
	err := t.dispatch(ActionStartRound, func() error {
		if err := t.startRoundLocked(ctx, req); err != nil {
			return err
		}
		round = *t.round
		return nil
	}, nil)
	return round, err
}

// LockBetting closes betting ahead of the countdown.
func (t *Table) LockBetting(ctx context.Context) error {
	return t.dispatch(ActionLockBetting, func() error {
		log.Info().Str("table_id", t.id).Msg("betting locked by operator")
		t.lockBettingLocked(ctx)
		return nil
	}, nil)
}

// ForceReset voids the running round and refunds its stakes.
func (t *Table) ForceReset(ctx context.Context, reason string) error {
	return t.dispatch(ActionForceReset, func() error {
		if reason == "" {
			reason = "reset by operator"
		}
		t.alertLocked(fmt.Sprintf("forced reset: %s", reason))
		t.voidLocked(ctx)
		return nil
	}, nil)
}

// RoundStats returns aggregate stakes for subRound, or the current sub-round when zero.
func (t *Table) RoundStats(subRound int) (events.RoundStatsUpdated, error) {
	var stats events.RoundStatsUpdated
	err := t.dispatch(ActionRoundStats, func() error {
		if t.ledger == nil {
			return ErrNoActiveRound
		}
		if subRound == 0 {
			subRound = t.ledger.SubRound()
		}
		stats = t.statsLocked(subRound)
		return nil
	}, nil)
	return stats, err
}

// Subscribe sends a round snapshot to the session's connection.
func (t *Table) Subscribe(ctx context.Context, sess Session) error {
	return t.dispatch(ActionSubscribe, func() error {
		snap := t.snapshotLocked(ctx, sess.UserID)
		if env := t.envelope(snap); env != nil {
			t.publisher.SendToConnection(sess.ConnectionID, env)
		}
		return nil
	}, nil)
}

// Snapshot returns the state a client needs to render the table. When
// userID is set the snapshot carries that user's bets and balance.
func (t *Table) Snapshot(ctx context.Context, userID string) events.RoundSnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked(ctx, userID)
}

// HandleClientAction routes a decoded client message to its handler.
func (t *Table) HandleClientAction(ctx context.Context, sess Session, action events.ClientAction) error {
	switch a := action.(type) {
	case events.SubscribeRound:
		return t.Subscribe(ctx, sess)
	case events.PlaceBet:
		_, err := t.PlaceBet(ctx, sess, a)
		return err
	case events.CancelBet:
		return t.CancelBet(ctx, sess, a)
	case events.Rebet:
		return t.Rebet(ctx, sess, a)
	default:
		return fmt.Errorf("%w: %T", events.ErrUnknownEvent, action)
	}
}

// Close stops every timer. A closed table rejects all actions.
func (t *Table) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopTimersLocked()
	t.closed = true
}

func (t *Table) snapshotLocked(ctx context.Context, userID string) events.RoundSnapshot {
	snap := events.RoundSnapshot{
		Phase:      t.phase,
		DealtCards: []models.DealtCard{},
		Bets:       []models.Bet{},
	}
	if t.round != nil {
		r := *t.round
		snap.Round = &r
		snap.SubRound = r.SubRound
	}
	if t.phase == models.PhaseBetting {
		snap.RemainingSeconds = t.remainingLocked()
	}
	if t.dealer != nil {
		snap.DealtCards = t.dealer.Dealt()
	}
	if userID != "" {
		if t.ledger != nil {
			if bets := t.ledger.UserBets(userID); bets != nil {
				snap.Bets = bets
			}
		}
		bal, err := t.wallet.Balance(ctx, userID)
		if err != nil {
			log.Warn().Err(err).Str("table_id", t.id).Str("user_id", userID).Msg("failed to read balance for snapshot")
		} else {
			snap.Balance = &bal
		}
	}
	return snap
}

func (t *Table) statsLocked(subRound int) events.RoundStatsUpdated {
	totals := t.ledger.Aggregate(subRound)
	return events.RoundStatsUpdated{
		RoundID:        t.ledger.RoundID(),
		SubRound:       subRound,
		TotalAndarBets: totals.Andar,
		TotalBaharBets: totals.Bahar,
		TotalAmount:    totals.Total,
		BetCount:       totals.Count,
	}
}

func (t *Table) envelope(ev events.ServerEvent) *events.Envelope {
	env, err := events.NewEnvelope(t.id, ev, t.clock.Now())
	if err != nil {
		log.Error().Err(err).Str("table_id", t.id).Msg("failed to build event envelope")
		return nil
	}
	return env
}

// broadcastLocked publishes ev to every connection and records lifecycle
// events in the sink.
func (t *Table) broadcastLocked(ctx context.Context, ev events.ServerEvent) {
	env := t.envelope(ev)
	if env == nil {
		return
	}
	t.publisher.Broadcast(env)
	if ev.EventType() == events.EventTypeTimerTick {
		return
	}
	if err := t.sink.Record(ctx, env); err != nil {
		log.Error().Err(err).
			Str("table_id", t.id).
			Str("event_type", string(env.Type)).
			Msg("failed to record event")
	}
}

func (t *Table) sendToUserLocked(userID string, ev events.ServerEvent) {
	if env := t.envelope(ev); env != nil {
		t.publisher.SendToUser(userID, env)
	}
}

func (t *Table) sendToAdminsLocked(ev events.ServerEvent) {
	if env := t.envelope(ev); env != nil {
		t.publisher.SendToAdmins(env)
	}
}

func (t *Table) publishStatsLocked() {
	if t.ledger == nil {
		return
	}
	t.sendToAdminsLocked(t.statsLocked(t.ledger.SubRound()))
}

func (t *Table) alertLocked(message string) {
	alert := events.AdminAlert{Phase: string(t.phase), Message: message}
	if t.round != nil {
		alert.RoundID = t.round.ID
	}
	log.Warn().Str("table_id", t.id).Str("phase", string(t.phase)).Msg(message)
	t.sendToAdminsLocked(alert)
}

// transitionLocked moves the round to phase to, enforcing the transition table.
func (t *Table) transitionLocked(to models.Phase) error {
	if err := validateTransition(t.phase, to); err != nil {
		return err
	}
	t.setPhaseLocked(to)
	return nil
}

func (t *Table) setPhaseLocked(to models.Phase) {
	from := t.phase
	t.phase = to
	if t.round != nil {
		t.round.Phase = to
	}
	metrics.RecordPhase(t.id, string(to))

	ev := log.Debug().Str("table_id", t.id).Str("from", string(from)).Str("to", string(to))
	if t.round != nil {
		ev = ev.Str("round_id", t.round.ID.String())
	}
	ev.Msg("phase transition")
}

// scheduleLocked runs fn after d unless the table's timers are stopped first.
func (t *Table) scheduleLocked(d time.Duration, fn func(ctx context.Context)) {
	if t.timer != nil {
		t.timer.Stop()
	}
	gen := t.gen
	t.timer = t.clock.AfterFunc(d, func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		if t.closed || gen != t.gen {
			return
		}
		t.timer = nil
		fn(context.Background())
	})
}

// afterLocked runs fn after d, or immediately when d is zero.
func (t *Table) afterLocked(ctx context.Context, d time.Duration, fn func(ctx context.Context)) {
	if d <= 0 {
		fn(ctx)
		return
	}
	t.scheduleLocked(d, fn)
}

// stopTimersLocked cancels the countdown and any pending timer.
func (t *Table) stopTimersLocked() {
	t.gen++
	if t.countdown != nil {
		t.countdown.stop()
		t.countdown = nil
	}
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}
