package admin

import (
	"context"
	"errors"
	"fmt"
	"time"

	"connectrpc.com/connect"
	"github.com/rs/zerolog/log"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/mcdev12/andarbahar/go/internal/models"
	"github.com/mcdev12/andarbahar/go/internal/table/engine"
)

// Tables resolves a table by id.
type Tables interface {
	Table(id string) (*engine.Table, error)
}

// Service is the operator control API for running tables. Messages are
// structpb.Struct values keyed by snake_case field names.
type Service struct {
	tables Tables
}

func NewService(tables Tables) *Service {
	return &Service{tables: tables}
}

// StartRound opens a round. Request fields: table_id, joker_card and an
// optional cards list that fixes the dealing order.
func (s *Service) StartRound(ctx context.Context, req *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error) {
	fields := req.Msg.GetFields()
	table, err := s.table(fields)
	if err != nil {
		return nil, err
	}

	joker, err := models.ParseCard(fields["joker_card"].GetStringValue())
	if err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("joker_card: %w", err))
	}
	var cards []models.Card
	for i, v := range fields["cards"].GetListValue().GetValues() {
		card, err := models.ParseCard(v.GetStringValue())
		if err != nil {
			return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("cards[%d]: %w", i, err))
		}
		cards = append(cards, card)
	}

	round, err := table.StartRound(ctx, engine.StartRoundRequest{JokerCard: joker, Cards: cards})
	if err != nil {
		return nil, toConnectError(err)
	}

	log.Info().
		Str("table_id", table.ID()).
		Str("round_id", round.ID.String()).
		Str("joker", joker.String()).
		Str("operator", operator(ctx)).
		Msg("round started by operator")

	return response(map[string]any{
		"round_id":   round.ID.String(),
		"table_id":   round.TableID,
		"sequence":   round.Sequence,
		"joker_card": round.JokerCard.String(),
		"phase":      string(table.Phase()),
		"created_at": round.CreatedAt.UTC().Format(time.RFC3339Nano),
	})
}

// LockBetting closes betting on table_id before its countdown expires.
func (s *Service) LockBetting(ctx context.Context, req *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error) {
	table, err := s.table(req.Msg.GetFields())
	if err != nil {
		return nil, err
	}
	if err := table.LockBetting(ctx); err != nil {
		return nil, toConnectError(err)
	}
	return response(map[string]any{"phase": string(table.Phase())})
}

// ForceReset voids the round on table_id and refunds its stakes.
func (s *Service) ForceReset(ctx context.Context, req *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error) {
	fields := req.Msg.GetFields()
	table, err := s.table(fields)
	if err != nil {
		return nil, err
	}
	reason := fields["reason"].GetStringValue()
	if err := table.ForceReset(ctx, reason); err != nil {
		return nil, toConnectError(err)
	}
	log.Warn().
		Str("table_id", table.ID()).
		Str("operator", operator(ctx)).
		Str("reason", reason).
		Msg("round reset by operator")
	return response(map[string]any{"phase": string(table.Phase())})
}

// GetRoundStats returns aggregate stakes for sub_round, or the current one.
func (s *Service) GetRoundStats(ctx context.Context, req *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error) {
	fields := req.Msg.GetFields()
	table, err := s.table(fields)
	if err != nil {
		return nil, err
	}
	stats, err := table.RoundStats(int(fields["sub_round"].GetNumberValue()))
	if err != nil {
		return nil, toConnectError(err)
	}
	return response(map[string]any{
		"round_id":         stats.RoundID.String(),
		"sub_round":        stats.SubRound,
		"total_andar_bets": stats.TotalAndarBets.String(),
		"total_bahar_bets": stats.TotalBaharBets.String(),
		"total_amount":     stats.TotalAmount.String(),
		"bet_count":        stats.BetCount,
	})
}

func (s *Service) table(fields map[string]*structpb.Value) (*engine.Table, error) {
	id := fields["table_id"].GetStringValue()
	if id == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("table_id is required"))
	}
	table, err := s.tables.Table(id)
	if err != nil {
		return nil, toConnectError(err)
	}
	return table, nil
}

func operator(ctx context.Context) string {
	if claims, ok := ClaimsFromContext(ctx); ok {
		return claims.UserID
	}
	return ""
}

func response(fields map[string]any) (*connect.Response[structpb.Struct], error) {
	msg, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(msg), nil
}

func toConnectError(err error) error {
	switch {
	case errors.Is(err, engine.ErrTableNotFound):
		return connect.NewError(connect.CodeNotFound, err)
	case errors.Is(err, engine.ErrInvalidJoker):
		return connect.NewError(connect.CodeInvalidArgument, err)
	case errors.Is(err, engine.ErrInvalidPhase),
		errors.Is(err, engine.ErrIllegalTransition),
		errors.Is(err, engine.ErrNoActiveRound),
		errors.Is(err, engine.ErrTableClosed):
		return connect.NewError(connect.CodeFailedPrecondition, err)
	default:
		return connect.NewError(connect.CodeInternal, err)
	}
}
