package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/andarbahar/go/internal/auth"
	"github.com/mcdev12/andarbahar/go/internal/table/engine"
	"github.com/mcdev12/andarbahar/go/internal/table/events"
)

// ActionHandler receives decoded client actions for one table.
type ActionHandler interface {
	HandleClientAction(ctx context.Context, sess engine.Session, action events.ClientAction) error
}

// TableProvider looks tables up by id.
type TableProvider interface {
	Table(id string) (*engine.Table, error)
	Tables() []*engine.Table
}

// Identity is who a connection belongs to.
type Identity struct {
	UserID  string
	TableID string
	Admin   bool
}

// WebSocketHandler authenticates and upgrades table connections.
type WebSocketHandler struct {
	connectionManager *ConnectionManager
	tables            TableProvider
	auth              *auth.Authenticator
	// allowInsecureUserID accepts a bare user_id query parameter in place of
	// a token. Development only.
	allowInsecureUserID bool
}

func NewWebSocketHandler(cm *ConnectionManager, tables TableProvider, authn *auth.Authenticator, allowInsecureUserID bool) *WebSocketHandler {
	return &WebSocketHandler{
		connectionManager:   cm,
		tables:              tables,
		auth:                authn,
		allowInsecureUserID: allowInsecureUserID,
	}
}

// HandleTableConnection handles GET /ws/table?table_id=...
func (h *WebSocketHandler) HandleTableConnection(w http.ResponseWriter, r *http.Request) {
	tableID := r.URL.Query().Get("table_id")
	if tableID == "" {
		http.Error(w, "table_id is required", http.StatusBadRequest)
		return
	}

	table, err := h.tables.Table(tableID)
	if err != nil {
		http.Error(w, "table not found", http.StatusNotFound)
		return
	}

	ident, err := h.identify(r)
	if err != nil {
		log.Debug().Err(err).Str("table_id", tableID).Msg("websocket authentication failed")
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	ident.TableID = tableID

	if _, err := h.connectionManager.UpgradeConnection(w, r, ident, table); err != nil {
		// The upgrader has already written the error response.
		log.Error().
			Err(err).
			Str("table_id", tableID).
			Str("user_id", ident.UserID).
			Msg("failed to upgrade websocket connection")
	}
}

func (h *WebSocketHandler) identify(r *http.Request) (Identity, error) {
	if h.allowInsecureUserID {
		if userID := r.URL.Query().Get("user_id"); userID != "" {
			return Identity{UserID: userID}, nil
		}
	}
	if h.auth == nil {
		return Identity{}, errors.New("authentication is not configured")
	}
	claims, err := h.auth.VerifyRequest(r)
	if err != nil {
		return Identity{}, err
	}
	return Identity{UserID: claims.UserID, Admin: claims.IsAdmin()}, nil
}

// HandleConnectionStats handles GET /ws/stats.
func (h *WebSocketHandler) HandleConnectionStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(h.connectionManager.GetConnectionStats()); err != nil {
		log.Error().Err(err).Msg("failed to encode connection stats")
	}
}

func (h *WebSocketHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /ws/table", h.HandleTableConnection)
	mux.HandleFunc("GET /ws/stats", h.HandleConnectionStats)
}
