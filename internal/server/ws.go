package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/heungbuja/motionjudge/internal/server/api"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // game clients connect from other origins
	},
}

// JudgeSocket judges pose sequences sent over a WebSocket. Each text message
// is an analyze-pose request and is answered, in order, with the analyze
// response or {"error": ...}. The connection survives bad requests.
type JudgeSocket struct {
	analyze *api.AnalyzeHandler
	logger  *slog.Logger
	clients map[*websocket.Conn]bool
	mu      sync.Mutex
}

// NewJudgeSocket creates a JudgeSocket that delegates to analyze.
func NewJudgeSocket(analyze *api.AnalyzeHandler, logger *slog.Logger) *JudgeSocket {
	if logger == nil {
		logger = slog.Default()
	}
	return &JudgeSocket{
		analyze: analyze,
		logger:  logger,
		clients: make(map[*websocket.Conn]bool),
	}
}

type socketError struct {
	Error  string `json:"error"`
	Status int    `json:"status"`
}

// ServeHTTP handles WebSocket upgrade requests.
func (h *JudgeSocket) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()
	conn.SetReadLimit(api.MaxBodyBytes)

	h.mu.Lock()
	h.clients[conn] = true
	h.mu.Unlock()
	defer func() {
		h.mu.Lock()
		delete(h.clients, conn)
		h.mu.Unlock()
	}()

	h.logger.Debug("judge socket connected", "remote", r.RemoteAddr)
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Warn("judge socket read failed", "error", err)
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}

		var reply any
		var req api.AnalyzePoseRequest
		if err := json.Unmarshal(data, &req); err != nil {
			reply = socketError{Error: "invalid JSON: " + err.Error(), Status: http.StatusBadRequest}
		} else if resp, err := h.analyze.JudgePoses(r.Context(), req); err != nil {
			reply = socketError{Error: err.Error(), Status: api.StatusFor(err)}
		} else {
			reply = resp
		}

		if err := conn.WriteJSON(reply); err != nil {
			h.logger.Warn("judge socket write failed", "error", err)
			return
		}
	}
}

// Clients returns the number of open sessions.
func (h *JudgeSocket) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close sends a close frame to every open session and drops it.
func (h *JudgeSocket) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
	for conn := range h.clients {
		conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		conn.Close()
	}
}
