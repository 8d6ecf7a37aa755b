package gateway

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/andarbahar/go/internal/models"
	"github.com/mcdev12/andarbahar/go/internal/table/engine"
)

// TableSummary is one row of GET /api/tables.
type TableSummary struct {
	TableID  string       `json:"table_id"`
	Phase    models.Phase `json:"phase"`
	RoundID  *uuid.UUID   `json:"round_id,omitempty"`
	SubRound int          `json:"sub_round,omitempty"`
	Sequence int          `json:"sequence,omitempty"`
}

// StateHandler serves table snapshots over REST for clients that are not
// connected yet.
type StateHandler struct {
	tables TableProvider
	ws     *WebSocketHandler
}

func NewStateHandler(tables TableProvider, ws *WebSocketHandler) *StateHandler {
	return &StateHandler{tables: tables, ws: ws}
}

// HandleGetTableState handles GET /api/tables/{id}/state. An authenticated
// caller also gets their own bets and balance.
func (h *StateHandler) HandleGetTableState(w http.ResponseWriter, r *http.Request) {
	tableID := r.PathValue("id")
	table, err := h.tables.Table(tableID)
	if errors.Is(err, engine.ErrTableNotFound) {
		http.Error(w, "table not found", http.StatusNotFound)
		return
	}
	if err != nil {
		log.Error().Err(err).Str("table_id", tableID).Msg("failed to get table")
		http.Error(w, "failed to get table state", http.StatusInternalServerError)
		return
	}

	var userID string
	if ident, err := h.ws.identify(r); err == nil {
		userID = ident.UserID
	}

	writeJSON(w, table.Snapshot(r.Context(), userID))
}

// HandleListTables handles GET /api/tables.
func (h *StateHandler) HandleListTables(w http.ResponseWriter, r *http.Request) {
	tables := h.tables.Tables()
	out := make([]TableSummary, 0, len(tables))
	for _, t := range tables {
		summary := TableSummary{TableID: t.ID(), Phase: t.Phase()}
		if round, ok := t.Round(); ok {
			id := round.ID
			summary.RoundID = &id
			summary.SubRound = round.SubRound
			summary.Sequence = round.Sequence
		}
		out = append(out, summary)
	}
	writeJSON(w, out)
}

func (h *StateHandler) RegisterStateRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/tables", h.HandleListTables)
	mux.HandleFunc("GET /api/tables/{id}/state", h.HandleGetTableState)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

