package gateway

import (
	"context"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/andarbahar/go/internal/auth"
	"github.com/mcdev12/andarbahar/go/internal/table/engine"
)

// Service is the table gateway: websocket connections, REST snapshots and
// event fan-out.
type Service struct {
	connectionManager *ConnectionManager
	wsHandler         *WebSocketHandler
	stateHandler      *StateHandler
}

type Config struct {
	ConnectionConfig    ConnectionConfig
	AllowInsecureUserID bool
}

func DefaultConfig() Config {
	return Config{ConnectionConfig: DefaultConnectionConfig()}
}

// NewService wires the gateway. Tables must be created with the publishers
// returned by Publisher.
func NewService(config Config, tables TableProvider, authn *auth.Authenticator) *Service {
	cm := NewConnectionManager(config.ConnectionConfig)
	ws := NewWebSocketHandler(cm, tables, authn, config.AllowInsecureUserID)
	return &Service{
		connectionManager: cm,
		wsHandler:         ws,
		stateHandler:      NewStateHandler(tables, ws),
	}
}

// Publisher returns the publisher a table uses to reach its connections.
func (s *Service) Publisher(tableID string) engine.Publisher {
	return s.connectionManager.Publisher(tableID)
}

// Start runs the fan-out loop until ctx is cancelled.
func (s *Service) Start(ctx context.Context) {
	log.Info().Msg("starting table gateway")
	s.connectionManager.Start(ctx)
	log.Info().Msg("table gateway stopped")
}

func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	s.wsHandler.RegisterRoutes(mux)
	s.stateHandler.RegisterStateRoutes(mux)
	log.Info().Msg("table gateway routes registered")
}

func (s *Service) GetStats() Stats {
	return s.connectionManager.GetConnectionStats()
}
