package stream

import (
	"context"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	interviewHandler "github.com/zhouzirui/z-interview/backend/internal/handler/interview"
	model "github.com/zhouzirui/z-interview/backend/internal/model/interview"
	interviewService "github.com/zhouzirui/z-interview/backend/internal/service/interview"
	"github.com/zhouzirui/z-interview/backend/pkg/utils"
)

// Handler manages streaming interviewer turns via Server-Sent Events
type Handler struct {
	svc *interviewService.Service
}

// New creates a new stream handler
func New(svc *interviewService.Service) *Handler {
	return &Handler{svc: svc}
}

// StreamResponse represents a streaming response chunk
type StreamResponse struct {
	Event          string `json:"event"`
	Content        string `json:"content,omitempty"`
	SessionID      string `json:"sessionId,omitempty"`
	ClosingCode    string `json:"closingCode,omitempty"`
	TranscriptLink string `json:"transcriptLink,omitempty"`
	Finished       bool   `json:"finished,omitempty"`
	Error          string `json:"error,omitempty"`
}

// HandleStreamRequest runs one turn and streams it. An empty userMessage on a
// session that has not started requests the opening turn.
func (h *Handler) HandleStreamRequest(ctx context.Context, w http.ResponseWriter, sessionID string, userMessage string) error {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return errors.New("streaming unsupported")
	}

	// 在写入响应头之前做校验，错误仍以普通 JSON 返回。
	session, err := h.svc.Get(sessionID)
	if err != nil {
		interviewHandler.RespondServiceError(w, err)
		return nil
	}
	greeting := userMessage == "" && session.State == model.StateNotStarted
	if userMessage == "" && !greeting {
		utils.RespondError(w, http.StatusBadRequest, "message query parameter is required")
		return nil
	}

	utils.SetupSSEHeaders(w)
	send := func(resp StreamResponse) {
		resp.SessionID = sessionID
		if err := utils.SendSSEChunk(w, flusher, resp); err != nil {
			log.Debug().Str("component", "stream").Err(err).Str("session", sessionID).Msg("client went away")
		}
	}

	send(StreamResponse{Event: "start"})

	display := func(delta string) {
		send(StreamResponse{Event: "delta", Content: delta})
	}

	var res interviewService.TurnResult
	if greeting {
		res, err = h.svc.Greet(ctx, sessionID, display)
	} else {
		res, err = h.svc.Reply(ctx, sessionID, userMessage, display)
	}
	if err != nil {
		_, message := interviewHandler.ErrorStatus(err)
		send(StreamResponse{Event: "error", Error: message})
		return err
	}

	if res.Completed {
		send(StreamResponse{
			Event:          "completed",
			Content:        res.Reply,
			ClosingCode:    res.ClosingCode,
			TranscriptLink: res.Link,
		})
	} else {
		send(StreamResponse{Event: "message", Content: res.Reply})
	}

	send(StreamResponse{Event: "end", Finished: true})
	log.Debug().Str("component", "stream").Str("session", sessionID).Bool("completed", res.Completed).Msg("turn streamed")
	return nil
}
