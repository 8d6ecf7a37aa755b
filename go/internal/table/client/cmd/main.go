package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/pterm/pterm"
	"github.com/pterm/pterm/putils"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/mcdev12/andarbahar/go/internal/models"
	"github.com/mcdev12/andarbahar/go/internal/table/client"
)

func main() {
	_ = godotenv.Load()

	serverFlag := flag.String("server", envOr("TABLE_SERVER", "ws://localhost:8080"), "server base url")
	tableFlag := flag.String("table", envOr("TABLE_ID", "table-1"), "table id")
	userFlag := flag.String("user", os.Getenv("TABLE_USER_ID"), "user id, for servers that allow insecure ids")
	tokenFlag := flag.String("token", os.Getenv("TABLE_TOKEN"), "JWT access token")
	debugFlag := flag.Bool("debug", false, "log connection details")
	flag.Parse()

	zerolog.SetGlobalLevel(zerolog.WarnLevel)
	if *debugFlag {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	endpoint, header, err := tableURL(*serverFlag, *tableFlag, *userFlag, *tokenFlag)
	if err != nil {
		pterm.Error.Println(err)
		os.Exit(1)
	}

	title, _ := pterm.DefaultBigText.WithLetters(
		putils.LettersFromStringWithStyle("Andar ", pterm.FgRed.ToStyle()),
		putils.LettersFromStringWithStyle("Bahar", pterm.FgDarkGray.ToStyle()),
	).Srender()
	pterm.Print(title)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conn := client.NewConn(client.ConnConfig{URL: endpoint, Header: header})
	var sync *client.Synchronizer
	sync = client.NewSynchronizer(conn, client.Options{
		OnNotice: func(n client.Notice) { render(sync, n) },
	})
	defer sync.Close()

	spinner, _ := pterm.DefaultSpinner.Start("Connecting to " + *tableFlag)
	if err := conn.Connect(ctx, sync); err != nil {
		spinner.Fail(err.Error())
		os.Exit(1)
	}
	spinner.Success("Connected")
	defer conn.Close()

	pterm.Info.Println("Commands: a <amount> (andar), b <amount> (bahar), c (cancel last), r (rebet), s (status), q (quit)")
	for ctx.Err() == nil {
		line, _ := pterm.DefaultInteractiveTextInput.WithDefaultText(">").Show()
		if !command(ctx, sync, strings.TrimSpace(line)) {
			return
		}
	}
}

// command runs one input line and reports whether to keep reading.
func command(ctx context.Context, sync *client.Synchronizer, line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return true
	}

	switch fields[0] {
	case "q", "quit":
		return false
	case "s", "status":
		pterm.Println(statusPanel(sync.State()))
	case "c", "cancel":
		report(sync.CancelBet(ctx))
	case "r", "rebet":
		report(sync.Rebet(ctx))
	case "a", "b":
		side := models.SideAndar
		if fields[0] == "b" {
			side = models.SideBahar
		}
		if len(fields) != 2 {
			pterm.Warning.Println("usage: a|b <amount>")
			return true
		}
		amount, err := decimal.NewFromString(fields[1])
		if err != nil {
			pterm.Warning.Printfln("invalid amount %q", fields[1])
			return true
		}
		tempID, err := sync.PlaceBet(ctx, side, amount)
		if err != nil {
			report(err)
			return true
		}
		pterm.Info.Printfln("%s %s on %s (pending %s)", amount, side.DisplayName(), side, short(tempID))
	default:
		pterm.Warning.Printfln("unknown command %q", fields[0])
	}
	return true
}

func render(sync *client.Synchronizer, n client.Notice) {
	switch n.Kind {
	case client.NoticePhase:
		st := sync.State()
		msg := fmt.Sprintf("phase %s", st.Phase)
		if st.Phase == models.PhaseBetting {
			msg = fmt.Sprintf("betting open for round %d, %ds", st.SubRound, st.RemainingSeconds)
		}
		if n.Message != "" {
			msg += ": " + n.Message
		}
		pterm.Info.Println(msg)
	case client.NoticeCard:
		pterm.Printfln("  %s  %s  #%d", pterm.LightCyan(n.Card.Side.DisplayName()), n.Card.Card, n.Card.SequenceIndex)
	case client.NoticeWinner:
		pterm.Success.Println(n.Message)
	case client.NoticeBetConfirmed:
		pterm.Success.Printfln("bet %s confirmed, balance %s", short(n.TempID), sync.Balance().Main)
	case client.NoticeBetFailed:
		pterm.Error.Printfln("bet %s rolled back: %v", short(n.TempID), n.Err)
	case client.NoticeBetCancelled:
		pterm.Info.Printfln("refunded %s", n.Amount)
	case client.NoticePayout:
		pterm.Success.Printfln("won %s, balance %s", n.Amount, sync.Balance().Main)
	case client.NoticeMessage:
		pterm.Warning.Println(n.Message)
	case client.NoticeConnection:
		if n.Message == "disconnected" {
			pterm.Warning.Println("connection lost, reconnecting")
		}
	}
}

func statusPanel(st client.State) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Phase:   %s\n", st.Phase)
	if st.Round != nil {
		fmt.Fprintf(&b, "Round:   #%d (sub-round %d)\n", st.Round.Sequence, st.SubRound)
		fmt.Fprintf(&b, "Joker:   %s\n", st.Round.JokerCard)
	}
	if st.Phase == models.PhaseBetting {
		fmt.Fprintf(&b, "Closes:  %ds\n", st.RemainingSeconds)
	}
	fmt.Fprintf(&b, "Balance: %s (bonus %s)\n", st.Balance.Main, st.Balance.Bonus)
	for _, bet := range st.Bets {
		fmt.Fprintf(&b, "  %-5s %8s  %s\n", bet.Side, bet.Amount, bet.Status)
	}
	return pterm.DefaultBox.WithTitle(pterm.LightYellow("|TABLE|")).WithTitleTopCenter().Sprint(b.String())
}

func report(err error) {
	switch {
	case err == nil:
	case errors.Is(err, client.ErrInvalidPhase):
		pterm.Warning.Println("betting is closed")
	case errors.Is(err, client.ErrChannelDisconnected):
		pterm.Warning.Println("not connected")
	default:
		pterm.Error.Println(err)
	}
}

func tableURL(server, tableID, userID, token string) (string, http.Header, error) {
	u, err := url.Parse(strings.TrimRight(server, "/") + "/ws/table")
	if err != nil {
		return "", nil, fmt.Errorf("invalid server url: %w", err)
	}
	q := u.Query()
	q.Set("table_id", tableID)
	header := http.Header{}
	switch {
	case token != "":
		header.Set("Authorization", "Bearer "+token)
	case userID != "":
		q.Set("user_id", userID)
	default:
		return "", nil, errors.New("either -token or -user is required")
	}
	u.RawQuery = q.Encode()
	return u.String(), header, nil
}

func short(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
