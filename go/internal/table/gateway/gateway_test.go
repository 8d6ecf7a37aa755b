package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/andarbahar/go/internal/auth"
	"github.com/mcdev12/andarbahar/go/internal/models"
	"github.com/mcdev12/andarbahar/go/internal/table/engine"
	"github.com/mcdev12/andarbahar/go/internal/table/events"
	"github.com/mcdev12/andarbahar/go/internal/wallet"
)

type fixture struct {
	server *httptest.Server
	table  *engine.Table
	round  models.Round
	authn  *auth.Authenticator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	authn := auth.NewAuthenticator("test-secret", "")
	registry := engine.NewRegistry()
	config := DefaultConfig()
	config.AllowInsecureUserID = true
	svc := NewService(config, registry, authn)
	go svc.Start(ctx)

	rules := engine.DefaultRules()
	rules.DealInterval = 0
	rules.ResetDelay = 0
	table, err := engine.NewTable("t1", rules, engine.Deps{
		Clock:     clockwork.NewFakeClock(),
		Wallet:    wallet.NewMemoryWallet(decimal.NewFromInt(5000)),
		Publisher: svc.Publisher("t1"),
	})
	require.NoError(t, err)
	require.NoError(t, registry.Add(table))
	t.Cleanup(registry.Close)

	round, err := table.StartRound(ctx, engine.StartRoundRequest{
		JokerCard: models.MustParseCard("7♠"),
		Cards:     []models.Card{models.MustParseCard("5♦"), models.MustParseCard("7♠")},
	})
	require.NoError(t, err)

	mux := http.NewServeMux()
	svc.RegisterRoutes(mux)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	return &fixture{server: server, table: table, round: round, authn: authn}
}

func (f *fixture) dial(t *testing.T, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/ws/table?table_id=t1&" + query
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	resp.Body.Close()
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, action events.ClientAction) {
	t.Helper()
	frame, err := events.EncodeClientMessage(action)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, frame))
}

// readUntil reads frames until one of type typ arrives and returns it with
// the types seen before it.
func readUntil(t *testing.T, conn *websocket.Conn, typ events.EventType) (events.ServerEvent, []events.EventType) {
	t.Helper()
	var seen []events.EventType
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)
		var env events.Envelope
		require.NoError(t, json.Unmarshal(data, &env))
		assert.Equal(t, "t1", env.TableID)
		if env.Type == typ {
			ev, err := events.DecodeServerEvent(&env)
			require.NoError(t, err)
			return ev, seen
		}
		seen = append(seen, env.Type)
	}
}

func TestSubscribeReturnsSnapshot(t *testing.T) {
	f := newFixture(t)
	conn := f.dial(t, "user_id=u1")

	send(t, conn, events.SubscribeRound{})
	ev, _ := readUntil(t, conn, events.EventTypeRoundSnapshot)

	snap := ev.(events.RoundSnapshot)
	assert.Equal(t, models.PhaseBetting, snap.Phase)
	require.NotNil(t, snap.Round)
	assert.Equal(t, f.round.ID, snap.Round.ID)
	require.NotNil(t, snap.Balance)
	assert.True(t, snap.Balance.Main.Equal(decimal.NewFromInt(5000)))
}

func TestPlaceBetOverWebsocket(t *testing.T) {
	f := newFixture(t)
	conn := f.dial(t, "user_id=u1")

	send(t, conn, events.PlaceBet{RoundID: f.round.ID, Side: models.SideAndar, Amount: decimal.NewFromInt(1000), TempID: "t1"})
	ev, _ := readUntil(t, conn, events.EventTypeBetConfirmed)

	confirmed := ev.(events.BetConfirmed)
	assert.Equal(t, "t1", confirmed.TempID)
	assert.True(t, confirmed.Balance.Main.Equal(decimal.NewFromInt(4000)))
}

func TestInvalidFrameGetsBetError(t *testing.T) {
	f := newFixture(t)
	conn := f.dial(t, "user_id=u1")

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"place_bet","data":{"temp_id":"t9","side":"middle","amount":"10"}}`)))
	ev, _ := readUntil(t, conn, events.EventTypeBetError)

	betErr := ev.(events.BetError)
	assert.Equal(t, "t9", betErr.TempID)
	assert.Equal(t, engine.ReasonInvalidMessage, betErr.Reason)

	// The connection stays usable.
	send(t, conn, events.SubscribeRound{})
	readUntil(t, conn, events.EventTypeRoundSnapshot)
}

func TestStatsOnlyReachAdminConnections(t *testing.T) {
	f := newFixture(t)
	token, err := f.authn.Issue("ops", auth.RoleAdmin, time.Minute)
	require.NoError(t, err)

	admin := f.dial(t, "token="+token)
	player := f.dial(t, "user_id=u1")

	// Both subscriptions complete before the bet, so each connection is registered.
	send(t, admin, events.SubscribeRound{})
	readUntil(t, admin, events.EventTypeRoundSnapshot)
	send(t, player, events.SubscribeRound{})
	readUntil(t, player, events.EventTypeRoundSnapshot)

	send(t, player, events.PlaceBet{RoundID: f.round.ID, Side: models.SideBahar, Amount: decimal.NewFromInt(300), TempID: "b1"})
	readUntil(t, player, events.EventTypeBetConfirmed)

	ev, _ := readUntil(t, admin, events.EventTypeRoundStatsUpdated)
	stats := ev.(events.RoundStatsUpdated)
	assert.True(t, stats.TotalBaharBets.Equal(decimal.NewFromInt(300)))

	send(t, player, events.SubscribeRound{})
	_, seen := readUntil(t, player, events.EventTypeRoundSnapshot)
	assert.NotContains(t, seen, events.EventTypeRoundStatsUpdated)
}

func TestBroadcastsReachEveryConnectionInOrder(t *testing.T) {
	f := newFixture(t)
	a := f.dial(t, "user_id=a")
	b := f.dial(t, "user_id=b")
	send(t, a, events.SubscribeRound{})
	readUntil(t, a, events.EventTypeRoundSnapshot)
	send(t, b, events.SubscribeRound{})
	readUntil(t, b, events.EventTypeRoundSnapshot)

	require.NoError(t, f.table.LockBetting(context.Background()))

	for _, conn := range []*websocket.Conn{a, b} {
		_, seen := readUntil(t, conn, events.EventTypeRoundReset)
		var lifecycle []events.EventType
		for _, typ := range seen {
			if typ != events.EventTypeTimerTick {
				lifecycle = append(lifecycle, typ)
			}
		}
		assert.Equal(t, []events.EventType{
			events.EventTypeBettingClosed,
			events.EventTypeDealingStarted,
			events.EventTypeCardDealt,
			events.EventTypeCardDealt,
			events.EventTypeWinnerDetermined,
			events.EventTypePayoutsProcessed,
		}, lifecycle)
	}
}

func TestConnectionRejectsUnauthenticated(t *testing.T) {
	f := newFixture(t)
	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/ws/table?table_id=t1&token=bogus"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	url = "ws" + strings.TrimPrefix(f.server.URL, "http") + "/ws/table?table_id=nope&user_id=u1"
	_, resp, err = websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestStateEndpoint(t *testing.T) {
	f := newFixture(t)

	resp, err := http.Get(f.server.URL + "/api/tables/t1/state")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var snap events.RoundSnapshot
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snap))
	assert.Equal(t, models.PhaseBetting, snap.Phase)
	assert.Nil(t, snap.Balance)

	missing, err := http.Get(f.server.URL + "/api/tables/nope/state")
	require.NoError(t, err)
	missing.Body.Close()
	assert.Equal(t, http.StatusNotFound, missing.StatusCode)

	list, err := http.Get(f.server.URL + "/api/tables")
	require.NoError(t, err)
	defer list.Body.Close()
	var summaries []TableSummary
	require.NoError(t, json.NewDecoder(list.Body).Decode(&summaries))
	require.Len(t, summaries, 1)
	assert.Equal(t, models.PhaseBetting, summaries[0].Phase)
	assert.Equal(t, f.round.ID, *summaries[0].RoundID)
}

func TestConnectionStats(t *testing.T) {
	f := newFixture(t)
	conn := f.dial(t, "user_id=u1")
	send(t, conn, events.SubscribeRound{})
	readUntil(t, conn, events.EventTypeRoundSnapshot)

	resp, err := http.Get(f.server.URL + "/ws/stats")
	require.NoError(t, err)
	defer resp.Body.Close()

	var stats Stats
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
	assert.Equal(t, 1, stats.TotalConnections)
	assert.Equal(t, 1, stats.TableConnections["t1"])
	assert.Zero(t, stats.AdminConnections)
}
