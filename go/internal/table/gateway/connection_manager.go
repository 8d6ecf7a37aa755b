package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/andarbahar/go/internal/metrics"
	"github.com/mcdev12/andarbahar/go/internal/table/engine"
	"github.com/mcdev12/andarbahar/go/internal/table/events"
)

// ConnectionManager owns every websocket connection, pooled by table id, and
// fans out table events through one FIFO queue.
type ConnectionManager struct {
	tableConnections map[string]map[*Connection]bool
	mu               sync.RWMutex

	upgrader websocket.Upgrader
	config   ConnectionConfig

	// queue carries every outbound event in the order tables published them.
	queue   chan outbound
	stopped chan struct{}
	stop    sync.Once
}

// Connection is one client websocket bound to a table.
type Connection struct {
	ID      string
	UserID  string
	TableID string
	Admin   bool
	Conn    *websocket.Conn
	Manager *ConnectionManager

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once

	ConnectedAt time.Time
}

// ConnectionConfig holds websocket tuning.
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	// SendBuffer is how many frames a connection may fall behind before it
	// is dropped as too slow.
	SendBuffer  int
	QueueSize   int
	CheckOrigin func(r *http.Request) bool
}

type outbound struct {
	tableID      string
	env          *events.Envelope
	userID       string
	connectionID string
	adminOnly    bool
}

func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  4096,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		SendBuffer:      256,
		QueueSize:       4096,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
}

func NewConnectionManager(config ConnectionConfig) *ConnectionManager {
	return &ConnectionManager{
		tableConnections: make(map[string]map[*Connection]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:  config,
		queue:   make(chan outbound, config.QueueSize),
		stopped: make(chan struct{}),
	}
}

// Start drains the outbound queue until ctx is cancelled.
func (cm *ConnectionManager) Start(ctx context.Context) {
	log.Info().Msg("connection manager started")
	defer cm.stop.Do(func() { close(cm.stopped) })

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("connection manager shutting down")
			cm.closeAll()
			return
		case msg := <-cm.queue:
			cm.deliver(msg)
		}
	}
}

// Publisher returns the engine.Publisher for one table.
func (cm *ConnectionManager) Publisher(tableID string) engine.Publisher {
	return &tablePublisher{cm: cm, tableID: tableID}
}

// enqueue blocks while the queue is full rather than dropping an event, so
// every connection still sees the table's events in order.
func (cm *ConnectionManager) enqueue(msg outbound) {
	select {
	case cm.queue <- msg:
	case <-cm.stopped:
	}
}

// UpgradeConnection upgrades the request and serves the connection until it closes.
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request, ident Identity, table ActionHandler) (*Connection, error) {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to upgrade connection: %w", err)
	}

	connection := &Connection{
		ID:          uuid.New().String(),
		UserID:      ident.UserID,
		TableID:     ident.TableID,
		Admin:       ident.Admin,
		Conn:        conn,
		Manager:     cm,
		send:        make(chan []byte, cm.config.SendBuffer),
		done:        make(chan struct{}),
		ConnectedAt: time.Now(),
	}
	cm.registerConnection(connection)

	go connection.writePump()
	go connection.readPump(table)

	log.Info().
		Str("connection_id", connection.ID).
		Str("user_id", connection.UserID).
		Str("table_id", connection.TableID).
		Bool("admin", connection.Admin).
		Msg("websocket connection established")

	return connection, nil
}

func (cm *ConnectionManager) registerConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.tableConnections[conn.TableID] == nil {
		cm.tableConnections[conn.TableID] = make(map[*Connection]bool)
	}
	cm.tableConnections[conn.TableID][conn] = true
	metrics.ConnectionOpened(conn.TableID)

	log.Debug().
		Str("connection_id", conn.ID).
		Str("table_id", conn.TableID).
		Int("total_connections", len(cm.tableConnections[conn.TableID])).
		Msg("connection registered")
}

func (cm *ConnectionManager) unregisterConnection(conn *Connection) {
	cm.mu.Lock()
	connections, exists := cm.tableConnections[conn.TableID]
	if exists && connections[conn] {
		delete(connections, conn)
		if len(connections) == 0 {
			delete(cm.tableConnections, conn.TableID)
		}
		metrics.ConnectionClosed(conn.TableID)
		log.Info().
			Str("connection_id", conn.ID).
			Str("user_id", conn.UserID).
			Str("table_id", conn.TableID).
			Msg("connection unregistered")
	}
	cm.mu.Unlock()

	conn.close()
}

func (cm *ConnectionManager) deliver(msg outbound) {
	cm.mu.RLock()
	var targets []*Connection
	for conn := range cm.tableConnections[msg.tableID] {
		switch {
		case msg.connectionID != "" && conn.ID != msg.connectionID:
			continue
		case msg.userID != "" && conn.UserID != msg.userID:
			continue
		case msg.adminOnly && !conn.Admin:
			continue
		}
		targets = append(targets, conn)
	}
	cm.mu.RUnlock()

	if len(targets) == 0 {
		return
	}

	data, err := json.Marshal(msg.env)
	if err != nil {
		log.Error().Err(err).Str("table_id", msg.tableID).Msg("failed to marshal event")
		return
	}

	for _, conn := range targets {
		select {
		case conn.send <- data:
		case <-conn.done:
		default:
			// A connection that cannot keep up is dropped; it resyncs from a
			// snapshot when it reconnects.
			log.Warn().
				Str("connection_id", conn.ID).
				Str("user_id", conn.UserID).
				Str("table_id", conn.TableID).
				Msg("connection send buffer full, closing connection")
			metrics.SlowConnectionClosed()
			cm.unregisterConnection(conn)
		}
	}

	log.Debug().
		Str("event_type", string(msg.env.Type)).
		Str("table_id", msg.tableID).
		Int("connections", len(targets)).
		Msg("event delivered")
}

func (cm *ConnectionManager) closeAll() {
	cm.mu.RLock()
	var all []*Connection
	for _, conns := range cm.tableConnections {
		for conn := range conns {
			all = append(all, conn)
		}
	}
	cm.mu.RUnlock()

	for _, conn := range all {
		cm.unregisterConnection(conn)
	}
}

// Stats counts connections per table.
type Stats struct {
	TotalConnections int            `json:"total_connections"`
	AdminConnections int            `json:"admin_connections"`
	ActiveTables     int            `json:"active_tables"`
	TableConnections map[string]int `json:"table_connections"`
}

func (cm *ConnectionManager) GetConnectionStats() Stats {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	stats := Stats{
		ActiveTables:     len(cm.tableConnections),
		TableConnections: make(map[string]int, len(cm.tableConnections)),
	}
	for tableID, connections := range cm.tableConnections {
		stats.TableConnections[tableID] = len(connections)
		stats.TotalConnections += len(connections)
		for conn := range connections {
			if conn.Admin {
				stats.AdminConnections++
			}
		}
	}
	return stats
}

func (c *Connection) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.Conn.Close()
	})
}

func (c *Connection) session() engine.Session {
	return engine.Session{UserID: c.UserID, ConnectionID: c.ID, Admin: c.Admin}
}

func (c *Connection) writePump() {
	ticker := time.NewTicker(c.Manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Manager.unregisterConnection(c)
	}()

	for {
		select {
		case <-c.done:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case message := <-c.send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Debug().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to write message to websocket")
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Debug().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to send ping")
				return
			}
		}
	}
}

func (c *Connection) readPump(table ActionHandler) {
	defer c.Manager.unregisterConnection(c)

	c.Conn.SetReadLimit(c.Manager.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().
					Err(err).
					Str("connection_id", c.ID).
					Msg("unexpected websocket close")
			}
			return
		}

		c.handleClientMessage(table, message)
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	}
}

// handleClientMessage decodes one frame and hands it to the table. The table
// reports its own outcomes; only undecodable frames are answered here.
func (c *Connection) handleClientMessage(table ActionHandler, message []byte) {
	action, err := events.DecodeClientMessage(message)
	if err != nil {
		log.Debug().
			Err(err).
			Str("connection_id", c.ID).
			Str("user_id", c.UserID).
			Msg("rejected client message")
		c.reject(message, err)
		return
	}

	if err := table.HandleClientAction(context.Background(), c.session(), action); err != nil {
		log.Debug().
			Err(err).
			Str("connection_id", c.ID).
			Str("user_id", c.UserID).
			Str("action", string(action.ActionType())).
			Msg("client action failed")
	}
}

func (c *Connection) reject(message []byte, err error) {
	var frame struct {
		Data struct {
			TempID string `json:"temp_id"`
		} `json:"data"`
	}
	_ = json.Unmarshal(message, &frame)

	env, encErr := events.NewEnvelope(c.TableID, events.BetError{
		TempID:  frame.Data.TempID,
		Reason:  engine.ReasonInvalidMessage,
		Message: err.Error(),
	}, time.Now())
	if encErr != nil {
		return
	}
	c.Manager.enqueue(outbound{tableID: c.TableID, env: env, connectionID: c.ID})
}

type tablePublisher struct {
	cm      *ConnectionManager
	tableID string
}

func (p *tablePublisher) Broadcast(env *events.Envelope) {
	p.cm.enqueue(outbound{tableID: p.tableID, env: env})
}

func (p *tablePublisher) SendToUser(userID string, env *events.Envelope) {
	p.cm.enqueue(outbound{tableID: p.tableID, env: env, userID: userID})
}

func (p *tablePublisher) SendToConnection(connectionID string, env *events.Envelope) {
	p.cm.enqueue(outbound{tableID: p.tableID, env: env, connectionID: connectionID})
}

func (p *tablePublisher) SendToAdmins(env *events.Envelope) {
	p.cm.enqueue(outbound{tableID: p.tableID, env: env, adminOnly: true})
}
