// Package ws serves the interview over a WebSocket connection.
package ws

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	interviewHandler "github.com/zhouzirui/z-interview/backend/internal/handler/interview"
	"github.com/zhouzirui/z-interview/backend/internal/logging"
	model "github.com/zhouzirui/z-interview/backend/internal/model/interview"
	interviewService "github.com/zhouzirui/z-interview/backend/internal/service/interview"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	writeWait  = 10 * time.Second
)

// Handler WebSocket 访谈处理器
type Handler struct {
	svc      *interviewService.Service
	upgrader websocket.Upgrader
	log      zerolog.Logger
}

// New 创建 WebSocket 处理器，allowedOrigins 与 REST 路由的 CORS 配置一致。
func New(svc *interviewService.Service, allowedOrigins []string) *Handler {
	return &Handler{
		svc: svc,
		upgrader: websocket.Upgrader{
			CheckOrigin:     originChecker(allowedOrigins),
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		log: logging.Component("websocket"),
	}
}

// originChecker 放行没有 Origin 的非浏览器客户端、同源页面以及列表中的来源。
func originChecker(allowed []string) func(*http.Request) bool {
	wildcard := false
	origins := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			wildcard = true
		}
		origins[strings.ToLower(strings.TrimSuffix(o, "/"))] = true
	}

	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || wildcard || origins[strings.ToLower(origin)] {
			return true
		}
		u, err := url.Parse(origin)
		return err == nil && strings.EqualFold(u.Host, r.Host)
	}
}

// RegisterRoutes 注册 WebSocket 路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/ws/{sessionID}", h.handleWebSocket)
}

type inboundMessage struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type outgoingMessage struct {
	Type           string      `json:"type"`
	SessionID      string      `json:"sessionId,omitempty"`
	Content        string      `json:"content,omitempty"`
	ClosingCode    string      `json:"closingCode,omitempty"`
	TranscriptLink string      `json:"transcriptLink,omitempty"`
	Session        *model.View `json:"session,omitempty"`
	Error          string      `json:"error,omitempty"`
	Timestamp      int64       `json:"timestamp"`
}

// socket 串行化写操作，gorilla 的连接不支持并发写。
type socket struct {
	conn      *websocket.Conn
	sessionID string
	mu        sync.Mutex
}

func (s *socket) send(msg outgoingMessage) error {
	msg.SessionID = s.sessionID
	msg.Timestamp = time.Now().Unix()

	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteJSON(msg)
}

func (s *socket) ping() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

// handleWebSocket 处理 WebSocket 连接
func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	session, err := h.svc.Get(sessionID)
	if err != nil {
		interviewHandler.RespondServiceError(w, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("upgrade failed")
		return
	}
	defer conn.Close()

	sock := &socket{conn: conn, sessionID: sessionID}
	h.log.Info().Str("session", sessionID).Msg("connection opened")

	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	defer cancel()

	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	go h.pingLoop(ctx, sock)

	view := session.View()
	_ = sock.send(outgoingMessage{Type: "connected", Session: &view})

	var turns sync.WaitGroup
	defer turns.Wait()

	for {
		var msg inboundMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Warn().Err(err).Str("session", sessionID).Msg("read failed")
			}
			cancel()
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))

		switch msg.Type {
		case "start", "message":
			// 回合在独立协程中运行，读循环仍能收到 quit。
			turns.Add(1)
			go func(msg inboundMessage) {
				defer turns.Done()
				h.runTurn(ctx, sock, msg)
			}(msg)
		case "quit":
			h.quit(ctx, sock)
		default:
			_ = sock.send(outgoingMessage{Type: "error", Error: "unknown message type: " + msg.Type})
		}
	}
}

func (h *Handler) runTurn(ctx context.Context, sock *socket, msg inboundMessage) {
	display := func(delta string) {
		_ = sock.send(outgoingMessage{Type: "delta", Content: delta})
	}

	var (
		res interviewService.TurnResult
		err error
	)
	if msg.Type == "start" {
		res, err = h.svc.Greet(ctx, sock.sessionID, display)
	} else {
		res, err = h.svc.Reply(ctx, sock.sessionID, msg.Text, display)
	}
	if err != nil {
		_, message := interviewHandler.ErrorStatus(err)
		_ = sock.send(outgoingMessage{Type: "error", Error: message})
		return
	}

	h.sendResult(sock, res)
}

func (h *Handler) quit(ctx context.Context, sock *socket) {
	res, err := h.svc.Quit(ctx, sock.sessionID)
	if err != nil {
		_, message := interviewHandler.ErrorStatus(err)
		_ = sock.send(outgoingMessage{Type: "error", Error: message})
		return
	}
	h.sendResult(sock, res)
}

func (h *Handler) sendResult(sock *socket, res interviewService.TurnResult) {
	if res.Completed {
		_ = sock.send(outgoingMessage{
			Type:           "completed",
			Content:        res.Reply,
			ClosingCode:    res.ClosingCode,
			TranscriptLink: res.Link,
		})
		return
	}
	_ = sock.send(outgoingMessage{Type: "message", Content: res.Reply})
}

// pingLoop 定期发送ping消息
func (h *Handler) pingLoop(ctx context.Context, sock *socket) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := sock.ping(); err != nil {
				return
			}
		}
	}
}
