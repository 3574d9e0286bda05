// internal/handler/websocket_handler.go
package handler

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"boardtester/internal/model"
)

// logHistorySize is how many log lines a freshly connected panel
// client gets replayed.
const logHistorySize = 200

// PanelMessage is the wire format on the panel socket, both directions
type PanelMessage struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// KeyInput is the payload of a "key" message from the panel. The
// browser page forwards scanner keystrokes one at a time.
type KeyInput struct {
	Text  string `json:"text"`
	Enter bool   `json:"enter"`
}

// KeyReceiver consumes operator key presses
type KeyReceiver interface {
	KeyPressed(text string, terminator bool)
}

type panelClient struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

// PanelSocketHandler is the hub between the workflow and the operator
// panel: it pushes state snapshots and log lines to every connected
// client and feeds key input back into the workflow. It implements
// both service.Notifier and utils.LogSink.
type PanelSocketHandler struct {
	upgrader websocket.Upgrader
	logger   *zap.Logger

	mutex    sync.RWMutex
	clients  map[string]*panelClient
	keys     KeyReceiver
	snapshot *model.Snapshot
	logLines []string
}

// NewPanelSocketHandler creates a new panel socket handler
func NewPanelSocketHandler(logger *zap.Logger) *PanelSocketHandler {
	return &PanelSocketHandler{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				// The panel binds to loopback; the kiosk browser is local
				return true
			},
		},
		logger:  logger.With(zap.String("handler", "panel-socket")),
		clients: make(map[string]*panelClient),
	}
}

// AttachKeyReceiver wires the workflow in after construction. The hub
// is built before the workflow because the workflow's logger mirrors
// into the hub.
func (h *PanelSocketHandler) AttachKeyReceiver(keys KeyReceiver) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.keys = keys
}

// StateChanged implements service.Notifier by broadcasting the
// snapshot to every panel client.
func (h *PanelSocketHandler) StateChanged(snapshot model.Snapshot) {
	h.mutex.Lock()
	h.snapshot = &snapshot
	h.mutex.Unlock()

	h.broadcast("state", snapshot)
}

// AppendLine implements utils.LogSink: it records the line for replay
// and pushes it to connected clients.
func (h *PanelSocketHandler) AppendLine(line string) {
	h.mutex.Lock()
	h.logLines = append(h.logLines, line)
	if len(h.logLines) > logHistorySize {
		h.logLines = h.logLines[len(h.logLines)-logHistorySize:]
	}
	h.mutex.Unlock()

	h.broadcast("log", gin.H{"line": line})
}

// HandlePanelConnection upgrades a panel page connection
func (h *PanelSocketHandler) HandlePanelConnection(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade WebSocket connection", zap.Error(err))
		return
	}

	client := &panelClient{
		id:   uuid.New().String(),
		conn: conn,
		send: make(chan []byte, 256),
	}

	h.mutex.Lock()
	h.clients[client.id] = client
	snapshot := h.snapshot
	history := append([]string(nil), h.logLines...)
	h.mutex.Unlock()

	h.logger.Info("Panel client connected",
		zap.String("client_id", client.id),
		zap.String("remote_addr", c.Request.RemoteAddr),
	)

	// Bring the new client up to date before live traffic
	if snapshot != nil {
		h.sendTo(client, "state", snapshot)
	}
	for _, line := range history {
		h.sendTo(client, "log", gin.H{"line": line})
	}

	go h.readLoop(client)
	go h.writeLoop(client)
}

// readLoop consumes messages from a panel client
func (h *PanelSocketHandler) readLoop(client *panelClient) {
	defer func() {
		h.unregister(client)
		client.conn.Close()
	}()

	client.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	client.conn.SetPongHandler(func(string) error {
		client.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, messageBytes, err := client.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Error("WebSocket read error",
					zap.Error(err),
					zap.String("client_id", client.id),
				)
			}
			return
		}

		var message PanelMessage
		if err := json.Unmarshal(messageBytes, &message); err != nil {
			h.logger.Warn("Failed to parse panel message",
				zap.Error(err),
				zap.String("client_id", client.id),
			)
			continue
		}

		h.handleMessage(client, &message)
	}
}

// writeLoop pushes queued messages and keepalive pings
func (h *PanelSocketHandler) writeLoop(client *panelClient) {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		client.conn.Close()
	}()

	for {
		select {
		case message, ok := <-client.send:
			client.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				client.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := client.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				h.logger.Error("WebSocket write error",
					zap.Error(err),
					zap.String("client_id", client.id),
				)
				return
			}
		case <-ticker.C:
			client.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage dispatches one inbound panel message
func (h *PanelSocketHandler) handleMessage(client *panelClient, message *PanelMessage) {
	switch message.Type {
	case "key":
		var input KeyInput
		if err := json.Unmarshal(message.Data, &input); err != nil {
			h.logger.Warn("Invalid key input payload", zap.Error(err))
			return
		}
		h.mutex.RLock()
		keys := h.keys
		h.mutex.RUnlock()
		if keys != nil {
			keys.KeyPressed(input.Text, input.Enter)
		}
	case "ping":
		h.sendTo(client, "pong", nil)
	default:
		h.logger.Warn("Unknown panel message type",
			zap.String("type", message.Type),
			zap.String("client_id", client.id),
		)
	}
}

func (h *PanelSocketHandler) unregister(client *panelClient) {
	h.mutex.Lock()
	if _, ok := h.clients[client.id]; ok {
		delete(h.clients, client.id)
		close(client.send)
	}
	h.mutex.Unlock()

	h.logger.Info("Panel client disconnected", zap.String("client_id", client.id))
}

// broadcast sends a typed message to every connected client
func (h *PanelSocketHandler) broadcast(messageType string, data interface{}) {
	payload, err := h.marshal(messageType, data)
	if err != nil {
		h.logger.Error("Failed to marshal broadcast message", zap.Error(err))
		return
	}

	h.mutex.RLock()
	defer h.mutex.RUnlock()
	for _, client := range h.clients {
		select {
		case client.send <- payload:
		default:
			h.logger.Warn("Client send channel full, dropping message",
				zap.String("client_id", client.id),
			)
		}
	}
}

// sendTo sends a typed message to one client
func (h *PanelSocketHandler) sendTo(client *panelClient, messageType string, data interface{}) {
	payload, err := h.marshal(messageType, data)
	if err != nil {
		h.logger.Error("Failed to marshal panel message", zap.Error(err))
		return
	}

	select {
	case client.send <- payload:
	default:
		h.logger.Warn("Client send channel full, dropping message",
			zap.String("client_id", client.id),
		)
	}
}

func (h *PanelSocketHandler) marshal(messageType string, data interface{}) ([]byte, error) {
	var raw json.RawMessage
	if data != nil {
		encoded, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}
		raw = encoded
	}

	return json.Marshal(PanelMessage{
		Type:      messageType,
		Data:      raw,
		Timestamp: time.Now(),
	})
}
