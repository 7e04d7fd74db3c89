// Package webchat serves the embedded chat widget: a JSON POST fallback,
// a WebSocket for live sessions, and history replay.
package webchat

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/net/websocket"

	"github.com/evolvian/assistant-platform/internal/assistant"
	"github.com/evolvian/assistant-platform/internal/history"
	"github.com/evolvian/assistant-platform/pkg/logging"
)

// Composer produces the assistant's reply for one turn.
type Composer interface {
	Answer(ctx context.Context, req assistant.Request) assistant.Response
}

// HistoryReader replays past session turns to a reconnecting widget.
type HistoryReader interface {
	Recent(ctx context.Context, tenantID, sessionID string, limit int) ([]history.Message, error)
}

// Handler manages web chat connections and messages.
type Handler struct {
	composer Composer
	hist     HistoryReader
	logger   *logging.Logger
	widgetJS []byte

	mu       sync.RWMutex
	sessions map[string]*wsConn // tenantID:sessionID -> active connection
}

type wsConn struct {
	conn *websocket.Conn
	done chan struct{}
}

// InboundMessage is what the widget sends.
type InboundMessage struct {
	Type      string `json:"type"` // "message", "ping"
	TenantID  string `json:"tenant_id"`
	SessionID string `json:"session_id"`
	Text      string `json:"text"`
}

// OutboundMessage is what we send to the widget.
type OutboundMessage struct {
	Type         string           `json:"type"` // "message", "typing", "history", "session", "error", "pong"
	Text         string           `json:"text,omitempty"`
	Role         string           `json:"role,omitempty"`
	SessionID    string           `json:"session_id,omitempty"`
	Timestamp    string           `json:"timestamp,omitempty"`
	LimitReached bool             `json:"limit_reached,omitempty"`
	Messages     []HistoryMessage `json:"messages,omitempty"`
}

// HistoryMessage is a simplified message for history responses.
type HistoryMessage struct {
	Role      string `json:"role"`
	Text      string `json:"text"`
	Timestamp string `json:"timestamp"`
}

// NewHandler creates a web chat handler.
func NewHandler(composer Composer, hist HistoryReader, widgetJS []byte, logger *logging.Logger) *Handler {
	if composer == nil {
		panic("webchat: composer required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		composer: composer,
		hist:     hist,
		logger:   logger.WithComponent("webchat"),
		widgetJS: widgetJS,
		sessions: make(map[string]*wsConn),
	}
}

func sessionKey(tenantID, sessionID string) string {
	return tenantID + ":" + sessionID
}

// generateSessionID creates a random session identifier.
func generateSessionID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return uuid.New().String()
	}
	return hex.EncodeToString(b)
}

// HandleWebSocket upgrades to WebSocket and handles real-time messaging.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	websocket.Handler(func(conn *websocket.Conn) {
		h.serveWS(conn, r)
	}).ServeHTTP(w, r)
}

func (h *Handler) serveWS(conn *websocket.Conn, r *http.Request) {
	tenantID := r.URL.Query().Get("tenant")
	if tenantID == "" {
		_ = websocket.JSON.Send(conn, OutboundMessage{Type: "error", Text: "missing tenant parameter"})
		return
	}

	sessionID := r.URL.Query().Get("session")
	if sessionID == "" {
		sessionID = generateSessionID()
	}
	key := sessionKey(tenantID, sessionID)

	_ = websocket.JSON.Send(conn, OutboundMessage{
		Type:      "session",
		SessionID: sessionID,
	})

	if h.hist != nil {
		if msgs, err := h.hist.Recent(r.Context(), tenantID, sessionID, 50); err == nil && len(msgs) > 0 {
			_ = websocket.JSON.Send(conn, OutboundMessage{Type: "history", Messages: toHistory(msgs)})
		}
	}

	wsc := &wsConn{conn: conn, done: make(chan struct{})}
	h.mu.Lock()
	h.sessions[key] = wsc
	h.mu.Unlock()
	defer func() {
		h.mu.Lock()
		if h.sessions[key] == wsc {
			delete(h.sessions, key)
		}
		h.mu.Unlock()
		close(wsc.done)
	}()

	h.logger.Info("connection opened", "tenant_id", tenantID, "session_id", sessionID)

	for {
		var msg InboundMessage
		if err := websocket.JSON.Receive(conn, &msg); err != nil {
			h.logger.Debug("connection closed", "tenant_id", tenantID, "error", err)
			return
		}

		if msg.Type == "ping" {
			_ = websocket.JSON.Send(conn, OutboundMessage{Type: "pong"})
			continue
		}
		if msg.Type != "message" || strings.TrimSpace(msg.Text) == "" {
			continue
		}

		h.sendToSession(key, OutboundMessage{Type: "typing"})
		resp := h.composer.Answer(r.Context(), assistant.Request{
			TenantID:  tenantID,
			SessionID: sessionID,
			Channel:   "webchat",
			Text:      msg.Text,
		})
		h.sendToSession(key, OutboundMessage{
			Type:         "message",
			Role:         history.RoleAssistant,
			Text:         resp.Text,
			SessionID:    resp.SessionID,
			Timestamp:    time.Now().UTC().Format(time.RFC3339),
			LimitReached: resp.LimitReached,
		})
	}
}

func (h *Handler) sendToSession(key string, msg OutboundMessage) {
	h.mu.RLock()
	wsc, ok := h.sessions[key]
	h.mu.RUnlock()
	if !ok {
		return
	}
	_ = websocket.JSON.Send(wsc.conn, msg)
}

// HandleMessage is the HTTP fallback for sending messages.
func (h *Handler) HandleMessage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TenantID  string `json:"tenant_id"`
		SessionID string `json:"session_id"`
		Text      string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.TenantID == "" || strings.TrimSpace(req.Text) == "" {
		http.Error(w, "tenant_id and text are required", http.StatusBadRequest)
		return
	}
	if req.SessionID == "" {
		req.SessionID = generateSessionID()
	}

	resp := h.composer.Answer(r.Context(), assistant.Request{
		TenantID:  req.TenantID,
		SessionID: req.SessionID,
		Channel:   "webchat",
		Text:      req.Text,
	})

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"reply":         resp.Text,
		"session_id":    resp.SessionID,
		"limit_reached": resp.LimitReached,
	})
}

// HandleHistory returns chat history for a session.
func (h *Handler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	tenantID := r.URL.Query().Get("tenant")
	sessionID := r.URL.Query().Get("session")
	if tenantID == "" || sessionID == "" {
		http.Error(w, "tenant and session parameters required", http.StatusBadRequest)
		return
	}

	if h.hist == nil {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"messages": []HistoryMessage{}})
		return
	}

	msgs, err := h.hist.Recent(r.Context(), tenantID, sessionID, 100)
	if err != nil {
		h.logger.Error("failed to load history", "tenant_id", tenantID, "error", err)
		http.Error(w, "failed to load history", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"messages": toHistory(msgs)})
}

// HandleWidgetJS serves the embeddable widget JavaScript.
func (h *Handler) HandleWidgetJS(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/javascript")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	_, _ = w.Write(h.widgetJS)
}

func toHistory(msgs []history.Message) []HistoryMessage {
	out := make([]HistoryMessage, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, HistoryMessage{
			Role:      m.Role,
			Text:      m.Content,
			Timestamp: m.CreatedAt.Format(time.RFC3339),
		})
	}
	return out
}
