package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"

	"github.com/apk-scanner/client/internal/logging"
	"github.com/apk-scanner/client/internal/models"
)

// WebSocket message types for the session feed
const (
	// Client -> Server messages
	MsgTypePing = "ping"

	// Server -> Client messages
	MsgTypeConnected = "connected"
	MsgTypeSession   = "session"
	MsgTypePong      = "pong"
	MsgTypeError     = "error"
)

// subscriberBuffer bounds how many snapshots queue for a slow client before
// older transitions are dropped
const subscriberBuffer = 16

// WebSocket message structure
type WSMessage struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// WebSocket error response
type WSErrorResponse struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// WebSocketHandler pushes a session snapshot to every connected client on
// each transition
type WebSocketHandler struct {
	sessions SessionManager
	upgrader websocket.Upgrader
	logger   *log.Logger
}

// NewWebSocketHandler creates a new session feed handler
func NewWebSocketHandler(sessions SessionManager, logger *log.Logger) *WebSocketHandler {
	if logger == nil {
		logger = logging.Discard()
	}
	return &WebSocketHandler{
		sessions: sessions,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// Allow connections from dev server
				return true
			},
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 64 * 1024,
		},
		logger: logger,
	}
}

// wsConn serialises writes; gorilla allows one concurrent writer
type wsConn struct {
	ws *websocket.Conn
	mu sync.Mutex
}

func (c *wsConn) send(msg WSMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteJSON(msg)
}

// HandleWebSocket upgrades the connection, sends the current snapshot and
// then every later one until the client goes away
func (wsh *WebSocketHandler) HandleWebSocket(c echo.Context) error {
	ws, err := wsh.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	defer ws.Close()

	conn := &wsConn{ws: ws}
	wsh.logger.Debug("client connected to session feed")

	// Subscribe before the first snapshot so no transition falls in between.
	updates, unsubscribe := wsh.sessions.Subscribe(subscriberBuffer)
	defer unsubscribe()

	if err := conn.send(WSMessage{Type: MsgTypeConnected, Timestamp: time.Now().UnixMilli()}); err != nil {
		return nil
	}
	if err := conn.send(sessionMessage(wsh.sessions.Snapshot())); err != nil {
		return nil
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		wsh.readLoop(conn)
	}()

	for {
		select {
		case snap, ok := <-updates:
			if !ok {
				return nil
			}
			if err := conn.send(sessionMessage(snap)); err != nil {
				wsh.logger.Debugf("session feed write failed: %v", err)
				return nil
			}
		case <-done:
			wsh.logger.Debug("client disconnected from session feed")
			return nil
		}
	}
}

func (wsh *WebSocketHandler) readLoop(conn *wsConn) {
	for {
		var msg WSMessage
		if err := conn.ws.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				wsh.logger.Warnf("session feed connection error: %v", err)
			}
			return
		}

		switch msg.Type {
		case MsgTypePing:
			conn.send(WSMessage{Type: MsgTypePong, Timestamp: time.Now().UnixMilli()})
		default:
			conn.send(WSMessage{
				Type:      MsgTypeError,
				Timestamp: time.Now().UnixMilli(),
				Payload: mustJSON(WSErrorResponse{
					Type:    MsgTypeError,
					Message: "Unknown message type: " + msg.Type,
					Code:    "INVALID_TYPE",
				}),
			})
		}
	}
}

func sessionMessage(s models.ScanSession) WSMessage {
	return WSMessage{
		Type:      MsgTypeSession,
		Payload:   mustJSON(s),
		Timestamp: time.Now().UnixMilli(),
	}
}

func mustJSON(v interface{}) json.RawMessage {
	data, _ := json.Marshal(v)
	return data
}
