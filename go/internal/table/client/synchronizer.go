package client

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/mcdev12/andarbahar/go/internal/models"
	"github.com/mcdev12/andarbahar/go/internal/table/events"
)

const DefaultReconciliationTimeout = 5 * time.Second

// Sender delivers client actions to the table.
type Sender interface {
	Send(ctx context.Context, action events.ClientAction) error
}

// NoticeKind classifies what changed in a Notice.
type NoticeKind string

const (
	NoticePhase        NoticeKind = "phase"
	NoticeTick         NoticeKind = "tick"
	NoticeCard         NoticeKind = "card"
	NoticeWinner       NoticeKind = "winner"
	NoticeBetConfirmed NoticeKind = "bet_confirmed"
	NoticeBetFailed    NoticeKind = "bet_failed"
	NoticeBetCancelled NoticeKind = "bet_cancelled"
	NoticePayout       NoticeKind = "payout"
	NoticeMessage      NoticeKind = "message"
	NoticeStats        NoticeKind = "stats"
	NoticeResync       NoticeKind = "resync"
	NoticeConnection   NoticeKind = "connection"
)

// Notice describes one change to the synchronized view.
type Notice struct {
	Kind    NoticeKind
	TempID  string
	Card    *models.DealtCard
	Amount  decimal.Decimal
	Message string
	Err     error
}

// Bet is the client's view of one bet, speculative or confirmed.
type Bet struct {
	TempID   string
	BetID    uuid.UUID
	RoundID  uuid.UUID
	SubRound int
	Side     models.Side
	Amount   decimal.Decimal
	Status   models.BetStatus
	Err      error

	// timer is the reconciliation timeout, armed before the bet is sent.
	timer clockwork.Timer
}

// State is a copy of the synchronized view.
type State struct {
	Connected        bool
	Phase            models.Phase
	Round            *models.Round
	SubRound         int
	RemainingSeconds int
	Balance          models.Balance
	Bets             []Bet
	Dealt            []models.DealtCard
	Winner           *events.WinnerDetermined
	Stats            *events.RoundStatsUpdated
	Message          string
	PreviousRoundID  *uuid.UUID
}

type Options struct {
	Clock   clockwork.Clock
	Timeout time.Duration
	// NewTempID generates correlation ids for placed bets.
	NewTempID func() string
	// OnNotice is called outside the synchronizer's lock after each change.
	OnNotice func(Notice)
}

// Synchronizer mirrors one table for one user, applying bets optimistically
// and reconciling them against the table's replies.
type Synchronizer struct {
	sender    Sender
	clock     clockwork.Clock
	timeout   time.Duration
	newTempID func() string
	onNotice  func(Notice)

	mu            sync.Mutex
	connected     bool
	phase         models.Phase
	round         *models.Round
	subRound      int
	remaining     int
	serverBalance models.Balance
	bets          []*Bet
	cards         *reorderBuffer
	dealt         []models.DealtCard
	winner        *events.WinnerDetermined
	stats         *events.RoundStatsUpdated
	message       string
	previousRound *uuid.UUID
	// countdown decrements remaining between authoritative ticks.
	countdown *countdown
}

type countdown struct {
	ticker clockwork.Ticker
	done   chan struct{}
}

func NewSynchronizer(sender Sender, opts Options) *Synchronizer {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultReconciliationTimeout
	}
	if opts.NewTempID == nil {
		opts.NewTempID = func() string { return uuid.NewString() }
	}
	return &Synchronizer{
		sender:    sender,
		clock:     opts.Clock,
		timeout:   opts.Timeout,
		newTempID: opts.NewTempID,
		onNotice:  opts.OnNotice,
		phase:     models.PhaseReset,
		cards:     newReorderBuffer(),
	}
}

// PlaceBet applies a bet locally and sends it. The returned temp id
// identifies the bet until the table confirms or rejects it.
func (s *Synchronizer) PlaceBet(ctx context.Context, side models.Side, amount decimal.Decimal) (string, error) {
	if !side.Valid() {
		return "", fmt.Errorf("invalid side %q", side)
	}
	if !amount.IsPositive() {
		return "", fmt.Errorf("amount must be positive")
	}

	s.mu.Lock()
	switch {
	case !s.connected:
		s.mu.Unlock()
		return "", ErrChannelDisconnected
	case s.phase != models.PhaseBetting || s.round == nil:
		s.mu.Unlock()
		return "", ErrInvalidPhase
	case s.availableLocked().LessThan(amount):
		s.mu.Unlock()
		return "", ErrInsufficientBalance
	}

	tempID := s.newTempID()
	if s.findLocked(tempID, models.BetStatusPending) != nil {
		s.mu.Unlock()
		return "", ErrDuplicateTempID
	}
	bet := &Bet{
		TempID:   tempID,
		RoundID:  s.round.ID,
		SubRound: s.subRound,
		Side:     side,
		Amount:   amount,
		Status:   models.BetStatusPending,
	}
	// The timer is stored with the bet before the send, so a confirmation
	// that arrives before Send returns still finds and cancels it.
	bet.timer = s.clock.AfterFunc(s.timeout, func() { s.expire(tempID) })
	s.bets = append(s.bets, bet)
	req := events.PlaceBet{RoundID: bet.RoundID, Side: side, Amount: amount, TempID: tempID}
	s.mu.Unlock()

	if err := s.sender.Send(ctx, req); err != nil {
		s.fail(tempID, fmt.Errorf("%w: %v", ErrChannelDisconnected, err))
		return tempID, fmt.Errorf("%w: %v", ErrChannelDisconnected, err)
	}
	return tempID, nil
}

// CancelBet asks the table to refund the latest bet of the current sub-round.
// The local view changes only when bet_cancelled arrives.
func (s *Synchronizer) CancelBet(ctx context.Context) error {
	s.mu.Lock()
	if s.phase != models.PhaseBetting || s.round == nil {
		s.mu.Unlock()
		return ErrInvalidPhase
	}
	req := events.CancelBet{RoundID: s.round.ID}
	s.mu.Unlock()
	return s.send(ctx, req)
}

// Rebet asks the table to replay the previous round's bets.
func (s *Synchronizer) Rebet(ctx context.Context) error {
	s.mu.Lock()
	if s.phase != models.PhaseBetting {
		s.mu.Unlock()
		return ErrInvalidPhase
	}
	if s.previousRound == nil {
		s.mu.Unlock()
		return ErrNoPreviousRound
	}
	req := events.Rebet{PreviousRoundID: *s.previousRound, TempIDPrefix: "rebet-" + s.newTempID()}
	s.mu.Unlock()
	return s.send(ctx, req)
}

// Resync requests a full snapshot. It must follow every reconnect, since
// events sent while disconnected are lost.
func (s *Synchronizer) Resync(ctx context.Context) error {
	return s.send(ctx, events.SubscribeRound{})
}

func (s *Synchronizer) send(ctx context.Context, action events.ClientAction) error {
	if err := s.sender.Send(ctx, action); err != nil {
		return fmt.Errorf("%w: %v", ErrChannelDisconnected, err)
	}
	return nil
}

// Connected marks the channel up and requests a snapshot.
func (s *Synchronizer) Connected(ctx context.Context) error {
	s.mu.Lock()
	s.connected = true
	s.mu.Unlock()
	s.notify(Notice{Kind: NoticeConnection, Message: "connected"})
	return s.Resync(ctx)
}

// Disconnected marks the channel down. Pending bets keep their timers; the
// snapshot after reconnecting settles the ones the table received.
func (s *Synchronizer) Disconnected() {
	s.mu.Lock()
	s.connected = false
	s.mu.Unlock()
	s.notify(Notice{Kind: NoticeConnection, Message: "disconnected"})
}

// HandleEnvelope decodes and applies one server frame.
func (s *Synchronizer) HandleEnvelope(env *events.Envelope) {
	ev, err := events.DecodeServerEvent(env)
	if err != nil {
		log.Debug().Err(err).Str("event_type", string(env.Type)).Msg("ignoring server event")
		return
	}
	s.Apply(ev)
}

// Apply folds one server event into the view.
func (s *Synchronizer) Apply(ev events.ServerEvent) {
	s.mu.Lock()
	notices := s.applyLocked(ev)
	s.mu.Unlock()

	for _, n := range notices {
		s.notify(n)
	}
}

func (s *Synchronizer) applyLocked(ev events.ServerEvent) []Notice {
	switch e := ev.(type) {
	case events.RoundCreated:
		r := e.Round
		s.round = &r
		s.subRound = r.SubRound
		s.phase = models.PhaseCreated
		s.dealt = nil
		s.cards.Reset()
		s.winner = nil
		s.stats = nil
		s.message = ""
		s.dropSettledLocked()
		return []Notice{{Kind: NoticePhase}}

	case events.RoundStarted:
		r := e.Round
		s.round = &r
		s.subRound = e.SubRound
		s.remaining = e.BettingDurationSeconds
		s.phase = models.PhaseBetting
		s.startCountdownLocked()
		return []Notice{{Kind: NoticePhase}}

	case events.TimerTick:
		if s.round == nil || e.RoundID != s.round.ID {
			return nil
		}
		s.remaining = e.RemainingSeconds
		if s.phase == models.PhaseBetting {
			s.startCountdownLocked()
		}
		return []Notice{{Kind: NoticeTick}}

	case events.BettingClosed:
		s.stopCountdownLocked()
		s.phase = models.PhaseLocked
		s.remaining = 0
		return []Notice{{Kind: NoticePhase}}

	case events.DealingStarted:
		s.phase = models.PhaseDealing
		return []Notice{{Kind: NoticePhase}}

	case events.CardDealt:
		var notices []Notice
		for _, dc := range s.cards.Push(e.DealtCard()) {
			dc := dc
			s.dealt = append(s.dealt, dc)
			notices = append(notices, Notice{Kind: NoticeCard, Card: &dc})
		}
		return notices

	case events.Round2Announced:
		s.phase = models.PhaseRound2Announced
		s.message = e.Message
		return []Notice{{Kind: NoticePhase, Message: e.Message}}

	case events.WinnerDetermined:
		w := e
		s.winner = &w
		s.phase = models.PhaseWinnerDetermined
		return []Notice{{Kind: NoticeWinner, Message: e.WinnerDisplayText}}

	case events.PayoutsProcessed:
		s.phase = models.PhasePayoutsProcessed
		return []Notice{{Kind: NoticePhase}}

	case events.RoundReset:
		s.stopCountdownLocked()
		s.phase = models.PhaseReset
		if e.RoundID != uuid.Nil {
			id := e.RoundID
			s.previousRound = &id
		}
		s.message = e.Message
		return []Notice{{Kind: NoticePhase, Message: e.Message}}

	case events.BetConfirmed:
		return s.confirmLocked(e)

	case events.BetError:
		return s.rejectLocked(e)

	case events.BetCancelled:
		s.serverBalance = e.Balance
		for i, b := range s.bets {
			if b.BetID == e.BetID {
				s.bets = append(s.bets[:i], s.bets[i+1:]...)
				break
			}
		}
		return []Notice{{Kind: NoticeBetCancelled, TempID: e.TempID, Amount: e.RefundedAmount}}

	case events.PayoutReceived:
		s.serverBalance = e.Balance
		return []Notice{{Kind: NoticePayout, Amount: e.Amount}}

	case events.RoundSnapshot:
		return s.resyncLocked(e)

	case events.RoundStatsUpdated:
		st := e
		s.stats = &st
		return []Notice{{Kind: NoticeStats}}

	case events.AdminAlert:
		return []Notice{{Kind: NoticeMessage, Message: e.Message}}
	}
	return nil
}

func (s *Synchronizer) confirmLocked(e events.BetConfirmed) []Notice {
	s.serverBalance = e.Balance

	if bet := s.findLocked(e.TempID, models.BetStatusPending); bet != nil {
		bet.timer.Stop()
		bet.Status = models.BetStatusConfirmed
		bet.BetID = e.BetID
		return []Notice{{Kind: NoticeBetConfirmed, TempID: e.TempID, Amount: e.Amount}}
	}

	// Rebet placements, and bets whose local timeout already fired, are
	// recorded from the table's authoritative reply.
	if s.findBetIDLocked(e.BetID) == nil {
		s.bets = append(s.bets, &Bet{
			TempID:   e.TempID,
			BetID:    e.BetID,
			RoundID:  e.RoundID,
			SubRound: e.SubRound,
			Side:     e.Side,
			Amount:   e.Amount,
			Status:   models.BetStatusConfirmed,
		})
	}
	return []Notice{{Kind: NoticeBetConfirmed, TempID: e.TempID, Amount: e.Amount}}
}

func (s *Synchronizer) rejectLocked(e events.BetError) []Notice {
	err := &ServerError{Reason: e.Reason, Message: e.Message}
	if bet := s.findLocked(e.TempID, models.BetStatusPending); bet != nil {
		bet.timer.Stop()
		bet.Status = models.BetStatusFailed
		bet.Err = err
	}
	return []Notice{{Kind: NoticeBetFailed, TempID: e.TempID, Err: err}}
}

// resyncLocked replaces the view with a snapshot. Pending bets the table
// already holds are confirmed; the rest keep waiting for their replies.
func (s *Synchronizer) resyncLocked(e events.RoundSnapshot) []Notice {
	s.phase = e.Phase
	s.round = e.Round
	s.subRound = e.SubRound
	s.remaining = e.RemainingSeconds
	if s.phase == models.PhaseBetting {
		s.startCountdownLocked()
	} else {
		s.stopCountdownLocked()
	}
	s.dealt = s.cards.Load(e.DealtCards)
	s.winner = nil
	if e.Balance != nil {
		s.serverBalance = *e.Balance
	}

	var notices []Notice
	kept := s.bets[:0]
	held := make(map[uuid.UUID]bool, len(e.Bets))
	for _, sb := range e.Bets {
		if sb.Status != models.BetStatusConfirmed {
			continue
		}
		held[sb.ID] = true
		if bet := s.findLocked(sb.TempID, models.BetStatusPending); bet != nil {
			bet.timer.Stop()
			bet.Status = models.BetStatusConfirmed
			bet.BetID = sb.ID
			notices = append(notices, Notice{Kind: NoticeBetConfirmed, TempID: sb.TempID, Amount: sb.Amount})
		}
	}
	for _, b := range s.bets {
		switch {
		case b.Status == models.BetStatusPending:
			kept = append(kept, b)
		case b.Status == models.BetStatusConfirmed && held[b.BetID]:
			kept = append(kept, b)
			delete(held, b.BetID)
		}
	}
	s.bets = kept
	for _, sb := range e.Bets {
		if held[sb.ID] {
			s.bets = append(s.bets, &Bet{
				TempID:   sb.TempID,
				BetID:    sb.ID,
				RoundID:  sb.RoundID,
				SubRound: sb.SubRound,
				Side:     sb.Side,
				Amount:   sb.Amount,
				Status:   models.BetStatusConfirmed,
			})
		}
	}

	return append([]Notice{{Kind: NoticeResync}}, notices...)
}

// startCountdownLocked restarts the local mirror of the betting countdown from
// remaining. The next authoritative tick always replaces the mirrored value.
func (s *Synchronizer) startCountdownLocked() {
	s.stopCountdownLocked()
	if s.remaining <= 0 {
		return
	}
	c := &countdown{ticker: s.clock.NewTicker(time.Second), done: make(chan struct{})}
	s.countdown = c
	go s.runCountdown(c)
}

func (s *Synchronizer) stopCountdownLocked() {
	if s.countdown == nil {
		return
	}
	s.countdown.ticker.Stop()
	close(s.countdown.done)
	s.countdown = nil
}

func (s *Synchronizer) runCountdown(c *countdown) {
	for {
		select {
		case <-c.done:
			return
		case <-c.ticker.Chan():
		}

		s.mu.Lock()
		if s.countdown != c || s.remaining <= 0 {
			s.mu.Unlock()
			continue
		}
		s.remaining--
		s.mu.Unlock()
		s.notify(Notice{Kind: NoticeTick})
	}
}

// Close stops the local countdown.
func (s *Synchronizer) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopCountdownLocked()
}

func (s *Synchronizer) expire(tempID string) {
	s.fail(tempID, ErrReconciliationTimeout)
}

func (s *Synchronizer) fail(tempID string, err error) {
	s.mu.Lock()
	bet := s.findLocked(tempID, models.BetStatusPending)
	if bet == nil {
		s.mu.Unlock()
		return
	}
	bet.timer.Stop()
	bet.Status = models.BetStatusFailed
	bet.Err = err
	s.mu.Unlock()

	log.Debug().Err(err).Str("temp_id", tempID).Msg("bet rolled back")
	s.notify(Notice{Kind: NoticeBetFailed, TempID: tempID, Err: err})
}

// dropSettledLocked forgets the bets of earlier rounds once a new round opens.
func (s *Synchronizer) dropSettledLocked() {
	kept := s.bets[:0]
	for _, b := range s.bets {
		if b.Status == models.BetStatusPending {
			kept = append(kept, b)
		}
	}
	s.bets = kept
}

func (s *Synchronizer) findLocked(tempID string, status models.BetStatus) *Bet {
	if tempID == "" {
		return nil
	}
	for _, b := range s.bets {
		if b.TempID == tempID && b.Status == status {
			return b
		}
	}
	return nil
}

func (s *Synchronizer) findBetIDLocked(id uuid.UUID) *Bet {
	for _, b := range s.bets {
		if b.BetID == id {
			return b
		}
	}
	return nil
}

// balanceLocked is the table's last reported balance less every stake still
// awaiting confirmation, taken from main before bonus.
func (s *Synchronizer) balanceLocked() models.Balance {
	pending := decimal.Zero
	for _, b := range s.bets {
		if b.Status == models.BetStatusPending {
			pending = pending.Add(b.Amount)
		}
	}
	bal := s.serverBalance
	if pending.LessThanOrEqual(bal.Main) {
		bal.Main = bal.Main.Sub(pending)
		return bal
	}
	bal.Bonus = bal.Bonus.Sub(pending.Sub(bal.Main))
	bal.Main = decimal.Zero
	return bal
}

func (s *Synchronizer) availableLocked() decimal.Decimal {
	bal := s.balanceLocked()
	return bal.Main.Add(bal.Bonus)
}

func (s *Synchronizer) notify(n Notice) {
	if s.onNotice != nil {
		s.onNotice(n)
	}
}

// Balance returns the optimistic balance.
func (s *Synchronizer) Balance() models.Balance {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.balanceLocked()
}

// Bet returns the latest bet recorded under tempID.
func (s *Synchronizer) Bet(tempID string) (Bet, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.bets) - 1; i >= 0; i-- {
		if s.bets[i].TempID == tempID {
			return *s.bets[i], true
		}
	}
	return Bet{}, false
}

func (s *Synchronizer) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := State{
		Connected:        s.connected,
		Phase:            s.phase,
		SubRound:         s.subRound,
		RemainingSeconds: s.remaining,
		Balance:          s.balanceLocked(),
		Dealt:            append([]models.DealtCard(nil), s.dealt...),
		Message:          s.message,
	}
	if s.round != nil {
		r := *s.round
		st.Round = &r
	}
	if s.winner != nil {
		w := *s.winner
		st.Winner = &w
	}
	if s.stats != nil {
		stats := *s.stats
		st.Stats = &stats
	}
	if s.previousRound != nil {
		id := *s.previousRound
		st.PreviousRoundID = &id
	}
	for _, b := range s.bets {
		st.Bets = append(st.Bets, *b)
	}
	return st
}
