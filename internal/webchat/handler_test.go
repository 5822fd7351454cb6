package webchat

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wolfman30/lab-scheduling-assistant/internal/conversation"
	"github.com/wolfman30/lab-scheduling-assistant/pkg/logging"
	"golang.org/x/net/websocket"
)

type stubService struct {
	mu   sync.Mutex
	got  []conversation.ChatRequest
	resp *conversation.ChatResponse
	err  error
}

func (s *stubService) Respond(ctx context.Context, req conversation.ChatRequest) (*conversation.ChatResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.got = append(s.got, req)
	if len(req.History) == 0 {
		return nil, conversation.ErrEmptyHistory
	}
	return s.resp, s.err
}

func dialChat(t *testing.T, h *Handler, origin string) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(h.HandleWebSocket))
	t.Cleanup(srv.Close)

	conn, err := websocket.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws/chat", "", origin)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	require.NoError(t, conn.SetDeadline(time.Now().Add(5*time.Second)))
	return conn
}

func userTurn(text string) []conversation.ChatTurn {
	return []conversation.ChatTurn{{Role: "user", Parts: []conversation.ChatPart{{Text: text}}}}
}

func TestGenerateSessionID(t *testing.T) {
	s1 := generateSessionID()
	s2 := generateSessionID()
	assert.NotEmpty(t, s1)
	assert.NotEqual(t, s1, s2)
	assert.Len(t, s1, 32)
}

func TestWebSocket_ChatFrames(t *testing.T) {
	svc := &stubService{resp: &conversation.ChatResponse{
		Response: "¿Qué estudios necesitas?",
		Meta:     &conversation.ResponseMeta{Path: conversation.PathOrchestrator},
	}}
	h := NewHandler(svc, nil, logging.New("error"))
	conn := dialChat(t, h, "http://localhost/")

	require.NoError(t, websocket.JSON.Send(conn, InboundFrame{History: userTurn("quiero una cita")}))
	var out OutboundFrame
	require.NoError(t, websocket.JSON.Receive(conn, &out))
	assert.Equal(t, FrameReply, out.Type)
	assert.Equal(t, "¿Qué estudios necesitas?", out.Response)
	require.NotNil(t, out.Meta)
	assert.Equal(t, conversation.PathOrchestrator, out.Meta.Path)

	// A second frame on the same socket is independent.
	require.NoError(t, websocket.JSON.Send(conn, InboundFrame{Type: FrameChat, History: userTurn("glicemia")}))
	require.NoError(t, websocket.JSON.Receive(conn, &out))
	assert.Equal(t, FrameReply, out.Type)

	svc.mu.Lock()
	require.Len(t, svc.got, 2)
	assert.Equal(t, "glicemia", svc.got[1].History[0].Parts[0].Text)
	svc.mu.Unlock()
	assert.Equal(t, 1, h.ActiveConnections())
}

func TestWebSocket_PingAndErrors(t *testing.T) {
	svc := &stubService{err: errors.New("boom")}
	h := NewHandler(svc, []string{"*"}, logging.New("error"))
	conn := dialChat(t, h, "http://localhost/")

	var out OutboundFrame
	require.NoError(t, websocket.JSON.Send(conn, InboundFrame{Type: FramePing}))
	require.NoError(t, websocket.JSON.Receive(conn, &out))
	assert.Equal(t, FramePong, out.Type)

	require.NoError(t, websocket.Message.Send(conn, "{not json"))
	out = OutboundFrame{}
	require.NoError(t, websocket.JSON.Receive(conn, &out))
	assert.Equal(t, FrameError, out.Type)
	assert.Equal(t, "Mensaje inválido.", out.Error)

	require.NoError(t, websocket.JSON.Send(conn, InboundFrame{}))
	out = OutboundFrame{}
	require.NoError(t, websocket.JSON.Receive(conn, &out))
	assert.Equal(t, FrameError, out.Type)
	assert.Contains(t, out.Error, "vacío")

	require.NoError(t, websocket.JSON.Send(conn, InboundFrame{History: userTurn("hola")}))
	out = OutboundFrame{}
	require.NoError(t, websocket.JSON.Receive(conn, &out))
	assert.Equal(t, FrameError, out.Type)
	assert.Empty(t, out.Response)
}

func TestWebSocket_RejectsUnknownOrigin(t *testing.T) {
	h := NewHandler(&stubService{}, []string{"https://clinic.example"}, logging.New("error"))
	srv := httptest.NewServer(http.HandlerFunc(h.HandleWebSocket))
	defer srv.Close()

	_, err := websocket.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), "", "https://evil.example")
	assert.Error(t, err)

	conn, err := websocket.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), "", "https://clinic.example")
	require.NoError(t, err)
	_ = conn.Close()
}

func TestCloseAll(t *testing.T) {
	h := NewHandler(&stubService{}, nil, logging.New("error"))
	conn := dialChat(t, h, "http://localhost/")

	require.NoError(t, websocket.JSON.Send(conn, InboundFrame{Type: FramePing}))
	var out OutboundFrame
	require.NoError(t, websocket.JSON.Receive(conn, &out))

	h.CloseAll()
	assert.Equal(t, 0, h.ActiveConnections())
	assert.Error(t, websocket.JSON.Receive(conn, &out))
}
