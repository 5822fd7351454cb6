// Package webchat serves the chat assistant over a WebSocket. Every frame
// carries the full history so the server keeps no conversation state.
package webchat

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/wolfman30/lab-scheduling-assistant/internal/conversation"
	"github.com/wolfman30/lab-scheduling-assistant/pkg/logging"
	"golang.org/x/net/websocket"
)

const maxFrameBytes = 1 << 20

const (
	FrameChat  = "chat"
	FramePing  = "ping"
	FramePong  = "pong"
	FrameReply = "reply"
	FrameError = "error"
)

// InboundFrame is what the widget sends. Type defaults to "chat".
type InboundFrame struct {
	Type    string                  `json:"type,omitempty"`
	History []conversation.ChatTurn `json:"history"`
}

// OutboundFrame is a reply, an error or a pong.
type OutboundFrame struct {
	Type     string                     `json:"type"`
	Response string                     `json:"response,omitempty"`
	Meta     *conversation.ResponseMeta `json:"meta,omitempty"`
	Error    string                     `json:"error,omitempty"`
}

// Handler answers chat frames with the conversation service.
type Handler struct {
	service conversation.Service
	origins map[string]struct{}
	anyOrig bool
	logger  *logging.Logger

	mu    sync.Mutex
	conns map[string]*websocket.Conn // session id -> open connection
}

// NewHandler builds the WebSocket endpoint. An empty origin list or a "*"
// entry admits every Origin.
func NewHandler(service conversation.Service, allowedOrigins []string, logger *logging.Logger) *Handler {
	if service == nil {
		panic("webchat: conversation service cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	h := &Handler{
		service: service,
		origins: make(map[string]struct{}),
		logger:  logger,
		conns:   make(map[string]*websocket.Conn),
	}
	for _, o := range allowedOrigins {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		if o == "*" {
			h.anyOrig = true
		} else if o != "" {
			h.origins[o] = struct{}{}
		}
	}
	if len(h.origins) == 0 {
		h.anyOrig = true
	}
	return h
}

// generateSessionID tags a connection in logs.
func generateSessionID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return uuid.New().String()
	}
	return hex.EncodeToString(b)
}

// HandleWebSocket upgrades GET /ws/chat.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	server := websocket.Server{
		Handshake: h.handshake,
		Handler: func(conn *websocket.Conn) {
			h.serveWS(r.Context(), conn)
		},
	}
	server.ServeHTTP(w, r)
}

func (h *Handler) handshake(cfg *websocket.Config, r *http.Request) error {
	if h.anyOrig {
		return nil
	}
	origin := strings.TrimRight(r.Header.Get("Origin"), "/")
	if _, ok := h.origins[origin]; !ok {
		return fmt.Errorf("webchat: origin %q not allowed", origin)
	}
	return nil
}

func (h *Handler) serveWS(ctx context.Context, conn *websocket.Conn) {
	conn.MaxPayloadBytes = maxFrameBytes
	sessionID := generateSessionID()

	h.mu.Lock()
	h.conns[sessionID] = conn
	h.mu.Unlock()
	defer func() {
		h.mu.Lock()
		delete(h.conns, sessionID)
		h.mu.Unlock()
		_ = conn.Close()
	}()

	logger := h.logger.With("session_id", sessionID)
	logger.Info("webchat: connection opened")

	for {
		var frame InboundFrame
		if err := websocket.JSON.Receive(conn, &frame); err != nil {
			if isDecodeError(err) {
				_ = websocket.JSON.Send(conn, OutboundFrame{Type: FrameError, Error: "Mensaje inválido."})
				continue
			}
			logger.Debug("webchat: connection closed", "error", err)
			return
		}

		if frame.Type == FramePing {
			_ = websocket.JSON.Send(conn, OutboundFrame{Type: FramePong})
			continue
		}
		if frame.Type != "" && frame.Type != FrameChat {
			continue
		}

		out := h.reply(ctx, logger, frame)
		if err := websocket.JSON.Send(conn, out); err != nil {
			logger.Debug("webchat: send failed", "error", err)
			return
		}
	}
}

func (h *Handler) reply(ctx context.Context, logger *logging.Logger, frame InboundFrame) OutboundFrame {
	resp, err := h.service.Respond(ctx, conversation.ChatRequest{History: frame.History})
	switch {
	case errors.Is(err, conversation.ErrEmptyHistory):
		return OutboundFrame{Type: FrameError, Error: "El historial de la conversación está vacío."}
	case err != nil:
		logger.Error("webchat: respond failed", "error", err)
		return OutboundFrame{Type: FrameError, Error: "Lo siento, ocurrió un error. Intenta de nuevo."}
	}
	return OutboundFrame{Type: FrameReply, Response: resp.Response, Meta: resp.Meta}
}

// ActiveConnections reports how many sockets are open.
func (h *Handler) ActiveConnections() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// CloseAll closes every open socket during shutdown.
func (h *Handler) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, conn := range h.conns {
		_ = conn.Close()
		delete(h.conns, id)
	}
}

func isDecodeError(err error) bool {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	return errors.As(err, &syntaxErr) || errors.As(err, &typeErr)
}
