package interview

import (
	"crypto/hmac"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/z-interview/backend/internal/config"
	model "github.com/zhouzirui/z-interview/backend/internal/model/interview"
	interviewService "github.com/zhouzirui/z-interview/backend/internal/service/interview"
	"github.com/zhouzirui/z-interview/backend/pkg/utils"
)

// ErrInvalidLogin 表示用户名或密码不正确。
var ErrInvalidLogin = errors.New("invalid username or password")

const missingRespondentMessage = "Missing required respondent information. Please ensure all fields are passed."

// Handler 访谈会话的 REST 处理器
type Handler struct {
	svc *interviewService.Service
	cfg config.InterviewConfig
}

// New 创建访谈处理器
func New(svc *interviewService.Service, cfg config.InterviewConfig) *Handler {
	return &Handler{svc: svc, cfg: cfg}
}

// RegisterRoutes 注册访谈相关的路由，sessionLimit 只作用于创建会话。
func (h *Handler) RegisterRoutes(r chi.Router, sessionLimit func(http.Handler) http.Handler) {
	r.Get("/interview", h.handleMetadata)
	r.With(sessionLimit).Post("/session", h.handleCreateSession)
	r.Get("/session/{sessionID}", h.handleGetSession)
	r.Post("/session/{sessionID}/quit", h.handleQuit)
}

type metadata struct {
	Title   string         `json:"title"`
	Logins  bool           `json:"logins"`
	Avatars config.Avatars `json:"avatars"`
}

// handleMetadata 返回页面渲染所需的访谈信息
func (h *Handler) handleMetadata(w http.ResponseWriter, _ *http.Request) {
	utils.RespondJSON(w, http.StatusOK, metadata{
		Title:   h.cfg.Title,
		Logins:  h.cfg.Logins,
		Avatars: h.cfg.Avatars,
	})
}

type createSessionRequest struct {
	StudentNumber string `json:"studentNumber"`
	Name          string `json:"name"`
	Company       string `json:"company"`
	Username      string `json:"username"`
	Password      string `json:"password"`
}

// handleCreateSession 校验受访者信息并创建会话
func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var payload createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	username, err := h.authenticate(payload.Username, payload.Password)
	if err != nil {
		RespondServiceError(w, err)
		return
	}

	session, err := h.svc.Start(r.Context(), interviewService.StartRequest{
		Respondent: model.Respondent{
			StudentNumber: payload.StudentNumber,
			Name:          payload.Name,
			Company:       payload.Company,
		},
		Username: username,
	})
	if err != nil {
		RespondServiceError(w, err)
		return
	}

	utils.RespondJSON(w, http.StatusCreated, session.View())
}

// handleGetSession 返回会话的可见状态
func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.svc.Get(chi.URLParam(r, "sessionID"))
	if err != nil {
		RespondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, session.View())
}

type quitResponse struct {
	Message        string `json:"message"`
	TranscriptLink string `json:"transcriptLink,omitempty"`
	Saved          bool   `json:"saved"`
}

// handleQuit 用户主动结束访谈
func (h *Handler) handleQuit(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.Quit(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		RespondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, quitResponse{
		Message:        res.Reply,
		TranscriptLink: res.Link,
		Saved:          res.Saved,
	})
}

// authenticate 返回会话使用的用户名。未开启登录时所有人都使用测试账号。
func (h *Handler) authenticate(username, password string) (string, error) {
	if !h.cfg.Logins {
		return h.cfg.TestAccount, nil
	}

	username = strings.TrimSpace(username)
	expected, ok := h.cfg.Passwords[username]
	if username == "" || !ok {
		return "", ErrInvalidLogin
	}
	if !hmac.Equal([]byte(password), []byte(expected)) {
		log.Info().Str("component", "handler").Str("user", username).Msg("rejected login")
		return "", ErrInvalidLogin
	}
	return username, nil
}

// ErrorStatus 把服务层错误映射为 HTTP 状态码与面向用户的提示。
func ErrorStatus(err error) (int, string) {
	var turnErr *interviewService.TurnError
	switch {
	case errors.Is(err, model.ErrMissingRespondent):
		return http.StatusBadRequest, missingRespondentMessage
	case errors.Is(err, ErrInvalidLogin):
		return http.StatusUnauthorized, "Username or password incorrect."
	case errors.Is(err, interviewService.ErrSessionNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, interviewService.ErrEmptyMessage):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, interviewService.ErrSessionCompleted),
		errors.Is(err, interviewService.ErrTurnInProgress),
		errors.Is(err, interviewService.ErrNotStarted),
		errors.Is(err, interviewService.ErrAlreadyStarted):
		return http.StatusConflict, err.Error()
	case errors.As(err, &turnErr):
		return http.StatusBadGateway, "The interviewer is temporarily unavailable. Please send your message again."
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

// RespondServiceError 以 JSON 形式返回服务层错误
func RespondServiceError(w http.ResponseWriter, err error) {
	status, message := ErrorStatus(err)
	if status >= http.StatusInternalServerError {
		log.Error().Str("component", "handler").Err(err).Msg("request failed")
	}
	utils.RespondError(w, status, message)
}
