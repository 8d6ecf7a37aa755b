package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/andarbahar/go/internal/models"
	"github.com/mcdev12/andarbahar/go/internal/table/events"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type fakeSender struct {
	mu     sync.Mutex
	sent   []events.ClientAction
	err    error
	onSend func(events.ClientAction)
}

func (f *fakeSender) Send(_ context.Context, action events.ClientAction) error {
	f.mu.Lock()
	f.sent = append(f.sent, action)
	err, hook := f.err, f.onSend
	f.mu.Unlock()
	if hook != nil {
		hook(action)
	}
	return err
}

func (f *fakeSender) last() events.ClientAction {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		return nil
	}
	return f.sent[len(f.sent)-1]
}

type syncFixture struct {
	sync   *Synchronizer
	sender *fakeSender
	clock  *clockwork.FakeClock
	round  models.Round

	mu      sync.Mutex
	notices []Notice
}

func newSyncFixture(t *testing.T) *syncFixture {
	t.Helper()
	f := &syncFixture{
		sender: &fakeSender{},
		clock:  clockwork.NewFakeClock(),
		round:  models.Round{ID: uuid.New(), TableID: "t1", SubRound: 1, Phase: models.PhaseBetting},
	}
	n := 0
	f.sync = NewSynchronizer(f.sender, Options{
		Clock: f.clock,
		NewTempID: func() string {
			n++
			return fmt.Sprintf("t%d", n)
		},
		OnNotice: func(notice Notice) {
			f.mu.Lock()
			defer f.mu.Unlock()
			f.notices = append(f.notices, notice)
		},
	})
	t.Cleanup(f.sync.Close)
	require.NoError(t, f.sync.Connected(context.Background()))
	assert.Equal(t, events.SubscribeRound{}, f.sender.last())

	bal := models.Balance{Main: d("5000"), Bonus: decimal.Zero}
	round := f.round
	f.sync.Apply(events.RoundSnapshot{
		Round:            &round,
		Phase:            models.PhaseBetting,
		SubRound:         1,
		RemainingSeconds: 20,
		Balance:          &bal,
	})
	return f
}

func (f *syncFixture) failedNotices() []Notice {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Notice
	for _, n := range f.notices {
		if n.Kind == NoticeBetFailed {
			out = append(out, n)
		}
	}
	return out
}

func TestOptimisticBetConfirmed(t *testing.T) {
	f := newSyncFixture(t)

	tempID, err := f.sync.PlaceBet(context.Background(), models.SideAndar, d("1000"))
	require.NoError(t, err)
	assert.Equal(t, "t1", tempID)
	assert.True(t, f.sync.Balance().Main.Equal(d("4000")))

	sent, ok := f.sender.last().(events.PlaceBet)
	require.True(t, ok)
	assert.Equal(t, f.round.ID, sent.RoundID)
	assert.Equal(t, "t1", sent.TempID)

	betID := uuid.New()
	f.sync.Apply(events.BetConfirmed{
		BetID:   betID,
		TempID:  "t1",
		RoundID: f.round.ID,
		Side:    models.SideAndar,
		Amount:  d("1000"),
		Balance: models.Balance{Main: d("4000")},
	})

	bet, ok := f.sync.Bet("t1")
	require.True(t, ok)
	assert.Equal(t, models.BetStatusConfirmed, bet.Status)
	assert.Equal(t, betID, bet.BetID)
	assert.True(t, f.sync.Balance().Main.Equal(d("4000")))

	// The cancelled timeout must not roll the bet back.
	f.clock.Advance(10 * time.Second)
	time.Sleep(10 * time.Millisecond)
	bet, _ = f.sync.Bet("t1")
	assert.Equal(t, models.BetStatusConfirmed, bet.Status)
	assert.Empty(t, f.failedNotices())
}

func TestTimeoutRollsBack(t *testing.T) {
	f := newSyncFixture(t)

	tempID, err := f.sync.PlaceBet(context.Background(), models.SideAndar, d("1000"))
	require.NoError(t, err)
	assert.True(t, f.sync.Balance().Main.Equal(d("4000")))

	f.clock.Advance(4999 * time.Millisecond)
	bet, _ := f.sync.Bet(tempID)
	assert.Equal(t, models.BetStatusPending, bet.Status)

	f.clock.Advance(time.Millisecond)
	require.Eventually(t, func() bool {
		bet, _ := f.sync.Bet(tempID)
		return bet.Status == models.BetStatusFailed
	}, time.Second, 5*time.Millisecond)

	bet, _ = f.sync.Bet(tempID)
	assert.ErrorIs(t, bet.Err, ErrReconciliationTimeout)
	assert.True(t, f.sync.Balance().Main.Equal(d("5000")))

	failed := f.failedNotices()
	require.Len(t, failed, 1)
	assert.Equal(t, tempID, failed[0].TempID)
}

func TestConfirmationBeforeSendReturns(t *testing.T) {
	f := newSyncFixture(t)
	f.sender.onSend = func(action events.ClientAction) {
		bet, ok := action.(events.PlaceBet)
		if !ok {
			return
		}
		f.sync.Apply(events.BetConfirmed{
			BetID:   uuid.New(),
			TempID:  bet.TempID,
			RoundID: bet.RoundID,
			Side:    bet.Side,
			Amount:  bet.Amount,
			Balance: models.Balance{Main: d("4500")},
		})
	}

	tempID, err := f.sync.PlaceBet(context.Background(), models.SideBahar, d("500"))
	require.NoError(t, err)

	bet, _ := f.sync.Bet(tempID)
	assert.Equal(t, models.BetStatusConfirmed, bet.Status)

	f.clock.Advance(time.Minute)
	time.Sleep(10 * time.Millisecond)
	bet, _ = f.sync.Bet(tempID)
	assert.Equal(t, models.BetStatusConfirmed, bet.Status)
	assert.True(t, f.sync.Balance().Main.Equal(d("4500")))
}

func TestServerErrorRollsBack(t *testing.T) {
	f := newSyncFixture(t)

	tempID, err := f.sync.PlaceBet(context.Background(), models.SideAndar, d("300"))
	require.NoError(t, err)
	f.sync.Apply(events.BetError{TempID: tempID, Reason: "limit_exceeded", Message: "over the cap"})

	bet, _ := f.sync.Bet(tempID)
	assert.Equal(t, models.BetStatusFailed, bet.Status)
	var serverErr *ServerError
	require.True(t, errors.As(bet.Err, &serverErr))
	assert.Equal(t, "limit_exceeded", serverErr.Reason)
	assert.True(t, f.sync.Balance().Main.Equal(d("5000")))

	// The stopped timeout must not report a second failure.
	f.clock.Advance(10 * time.Second)
	time.Sleep(10 * time.Millisecond)
	require.Len(t, f.failedNotices(), 1)
}

func TestSendFailureRollsBack(t *testing.T) {
	f := newSyncFixture(t)
	f.sender.err = errors.New("broken pipe")

	tempID, err := f.sync.PlaceBet(context.Background(), models.SideAndar, d("100"))
	require.ErrorIs(t, err, ErrChannelDisconnected)

	bet, _ := f.sync.Bet(tempID)
	assert.Equal(t, models.BetStatusFailed, bet.Status)
	assert.True(t, f.sync.Balance().Main.Equal(d("5000")))
}

func TestPlaceBetLocalChecks(t *testing.T) {
	f := newSyncFixture(t)

	_, err := f.sync.PlaceBet(context.Background(), models.SideAndar, d("6000"))
	assert.ErrorIs(t, err, ErrInsufficientBalance)

	_, err = f.sync.PlaceBet(context.Background(), "middle", d("10"))
	assert.Error(t, err)

	f.sync.Apply(events.BettingClosed{RoundID: f.round.ID, SubRound: 1})
	_, err = f.sync.PlaceBet(context.Background(), models.SideAndar, d("10"))
	assert.ErrorIs(t, err, ErrInvalidPhase)

	f.sync.Disconnected()
	_, err = f.sync.PlaceBet(context.Background(), models.SideAndar, d("10"))
	assert.ErrorIs(t, err, ErrChannelDisconnected)
}

func TestPendingStakesStackOnBalance(t *testing.T) {
	f := newSyncFixture(t)

	_, err := f.sync.PlaceBet(context.Background(), models.SideAndar, d("1000"))
	require.NoError(t, err)
	_, err = f.sync.PlaceBet(context.Background(), models.SideBahar, d("2000"))
	require.NoError(t, err)
	assert.True(t, f.sync.Balance().Main.Equal(d("2000")))

	// The first confirmation reports a balance that does not yet include the second stake.
	f.sync.Apply(events.BetConfirmed{BetID: uuid.New(), TempID: "t1", Amount: d("1000"), Balance: models.Balance{Main: d("4000")}})
	assert.True(t, f.sync.Balance().Main.Equal(d("2000")))

	_, err = f.sync.PlaceBet(context.Background(), models.SideBahar, d("2001"))
	assert.ErrorIs(t, err, ErrInsufficientBalance)
}

func TestCardsAreReordered(t *testing.T) {
	f := newSyncFixture(t)
	joker := models.MustParseCard("7♠")
	f.sync.Apply(events.DealingStarted{RoundID: f.round.ID, JokerCard: joker})

	f.sync.Apply(events.CardDealt{RoundID: f.round.ID, Side: models.SideBahar, Card: models.MustParseCard("2♣"), SequenceIndex: 2})
	assert.Empty(t, f.sync.State().Dealt)

	f.sync.Apply(events.CardDealt{RoundID: f.round.ID, Side: models.SideAndar, Card: models.MustParseCard("5♦"), SequenceIndex: 1})
	dealt := f.sync.State().Dealt
	require.Len(t, dealt, 2)
	assert.Equal(t, 1, dealt[0].SequenceIndex)
	assert.Equal(t, 2, dealt[1].SequenceIndex)

	// Duplicates are dropped.
	f.sync.Apply(events.CardDealt{RoundID: f.round.ID, Side: models.SideAndar, Card: models.MustParseCard("5♦"), SequenceIndex: 1})
	assert.Len(t, f.sync.State().Dealt, 2)
}

func TestSnapshotConfirmsPendingBet(t *testing.T) {
	f := newSyncFixture(t)
	tempID, err := f.sync.PlaceBet(context.Background(), models.SideAndar, d("1000"))
	require.NoError(t, err)

	// The reply was lost with the connection; the snapshot after reconnecting holds the bet.
	f.sync.Disconnected()
	require.NoError(t, f.sync.Connected(context.Background()))

	betID := uuid.New()
	bal := models.Balance{Main: d("4000")}
	round := f.round
	f.sync.Apply(events.RoundSnapshot{
		Round:    &round,
		Phase:    models.PhaseDealing,
		SubRound: 1,
		DealtCards: []models.DealtCard{
			{Side: models.SideBahar, Card: models.MustParseCard("3♥"), SequenceIndex: 2},
			{Side: models.SideAndar, Card: models.MustParseCard("9♣"), SequenceIndex: 1},
		},
		Bets: []models.Bet{
			{ID: betID, TempID: tempID, RoundID: f.round.ID, SubRound: 1, Side: models.SideAndar, Amount: d("1000"), Status: models.BetStatusConfirmed},
			{ID: uuid.New(), TempID: "other-device", RoundID: f.round.ID, SubRound: 1, Side: models.SideBahar, Amount: d("50"), Status: models.BetStatusConfirmed},
		},
		Balance: &bal,
	})

	st := f.sync.State()
	assert.Equal(t, models.PhaseDealing, st.Phase)
	require.Len(t, st.Dealt, 2)
	assert.Equal(t, 1, st.Dealt[0].SequenceIndex)
	require.Len(t, st.Bets, 2)
	assert.Equal(t, models.BetStatusConfirmed, st.Bets[0].Status)
	assert.Equal(t, betID, st.Bets[0].BetID)
	assert.Equal(t, "other-device", st.Bets[1].TempID)
	assert.True(t, st.Balance.Main.Equal(d("4000")))

	f.clock.Advance(time.Minute)
	time.Sleep(10 * time.Millisecond)
	bet, _ := f.sync.Bet(tempID)
	assert.Equal(t, models.BetStatusConfirmed, bet.Status)
}

func TestRoundLifecycle(t *testing.T) {
	f := newSyncFixture(t)
	f.sync.Apply(events.TimerTick{RoundID: f.round.ID, SubRound: 1, RemainingSeconds: 12})
	assert.Equal(t, 12, f.sync.State().RemainingSeconds)

	f.sync.Apply(events.WinnerDetermined{RoundID: f.round.ID, WinningSide: models.SideBahar, WinnerDisplayText: "Bahar wins with 7♠"})
	f.sync.Apply(events.PayoutReceived{RoundID: f.round.ID, Amount: d("200"), Balance: models.Balance{Main: d("5200")}})
	f.sync.Apply(events.RoundReset{RoundID: f.round.ID})

	st := f.sync.State()
	assert.Equal(t, models.PhaseReset, st.Phase)
	require.NotNil(t, st.Winner)
	assert.Equal(t, models.SideBahar, st.Winner.WinningSide)
	assert.True(t, st.Balance.Main.Equal(d("5200")))
	require.NotNil(t, st.PreviousRoundID)
	assert.Equal(t, f.round.ID, *st.PreviousRoundID)

	next := models.Round{ID: uuid.New(), SubRound: 1}
	f.sync.Apply(events.RoundCreated{Round: next})
	f.sync.Apply(events.RoundStarted{Round: next, SubRound: 1, BettingDurationSeconds: 30})
	require.NoError(t, f.sync.Rebet(context.Background()))

	rebet, ok := f.sender.last().(events.Rebet)
	require.True(t, ok)
	assert.Equal(t, f.round.ID, rebet.PreviousRoundID)
	assert.Nil(t, f.sync.State().Winner)
}

func (f *syncFixture) waitRemaining(t *testing.T, want int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return f.sync.State().RemainingSeconds == want
	}, time.Second, 5*time.Millisecond, "remaining never reached %d", want)
}

func TestCountdownMirrorsBetweenTicks(t *testing.T) {
	f := newSyncFixture(t)

	for want := 19; want >= 17; want-- {
		f.clock.Advance(time.Second)
		f.waitRemaining(t, want)
	}

	f.sync.Apply(events.TimerTick{RoundID: f.round.ID, SubRound: 1, RemainingSeconds: 15})
	assert.Equal(t, 15, f.sync.State().RemainingSeconds)
	f.clock.Advance(time.Second)
	f.waitRemaining(t, 14)

	f.sync.Apply(events.TimerTick{RoundID: f.round.ID, SubRound: 1, RemainingSeconds: 1})
	f.clock.Advance(time.Second)
	f.waitRemaining(t, 0)
	f.clock.Advance(3 * time.Second)
	time.Sleep(20 * time.Millisecond)
	st := f.sync.State()
	assert.Zero(t, st.RemainingSeconds)
	assert.Equal(t, models.PhaseBetting, st.Phase)
}

func TestCountdownStopsWhenBettingCloses(t *testing.T) {
	f := newSyncFixture(t)
	f.sync.Apply(events.BettingClosed{RoundID: f.round.ID, SubRound: 1})

	f.clock.Advance(5 * time.Second)
	time.Sleep(20 * time.Millisecond)
	st := f.sync.State()
	assert.Zero(t, st.RemainingSeconds)
	assert.Equal(t, models.PhaseLocked, st.Phase)

	next := models.Round{ID: uuid.New(), SubRound: 2}
	f.sync.Apply(events.RoundStarted{Round: next, SubRound: 2, BettingDurationSeconds: 10})
	f.clock.Advance(time.Second)
	f.waitRemaining(t, 9)

	f.sync.Apply(events.RoundReset{RoundID: next.ID})
	f.clock.Advance(5 * time.Second)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 9, f.sync.State().RemainingSeconds)
}

func TestReorderBuffer(t *testing.T) {
	b := newReorderBuffer()
	card := func(i int) models.DealtCard { return models.DealtCard{SequenceIndex: i} }

	assert.Empty(t, b.Push(card(3)))
	assert.Empty(t, b.Push(card(2)))
	assert.Equal(t, 2, b.Waiting())
	assert.Equal(t, []models.DealtCard{card(1), card(2), card(3)}, b.Push(card(1)))
	assert.Empty(t, b.Push(card(2)))
	assert.Equal(t, []models.DealtCard{card(4)}, b.Push(card(4)))

	assert.Equal(t, []models.DealtCard{card(1), card(2)}, b.Load([]models.DealtCard{card(2), card(1), card(4)}))
	assert.Equal(t, 1, b.Waiting())
}
