package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/z-interview/backend/internal/config"
	interviewHandler "github.com/zhouzirui/z-interview/backend/internal/handler/interview"
	"github.com/zhouzirui/z-interview/backend/internal/handler/page"
	"github.com/zhouzirui/z-interview/backend/internal/handler/stream"
	"github.com/zhouzirui/z-interview/backend/internal/handler/ws"
	middlewarePkg "github.com/zhouzirui/z-interview/backend/internal/middleware"
	interviewService "github.com/zhouzirui/z-interview/backend/internal/service/interview"
	"github.com/zhouzirui/z-interview/backend/pkg/utils"
)

// NewRouter wires HTTP routes to core services.
func NewRouter(cfg *config.Config, svc *interviewService.Service) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS(cfg.Server.AllowedOrigins))

	page.RegisterRoutes(r)

	interviewH := interviewHandler.New(svc, cfg.Interview)
	streamHandler := stream.New(svc)
	wsHandler := ws.New(svc, cfg.Server.AllowedOrigins)

	r.Route("/api", func(api chi.Router) {
		interviewH.RegisterRoutes(api, middlewarePkg.SessionRateLimit(cfg.Server.SessionRateLimit))

		api.Get("/stream/{sessionID}", func(w http.ResponseWriter, r *http.Request) {
			sessionID := chi.URLParam(r, "sessionID")
			userMessage := r.URL.Query().Get("message")

			if err := streamHandler.HandleStreamRequest(r.Context(), w, sessionID, userMessage); err != nil {
				log.Warn().Str("component", "stream").Err(err).Str("session", sessionID).Msg("turn failed")
			}
		})

		wsHandler.RegisterRoutes(api)
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		utils.RespondError(w, http.StatusNotFound, "not found")
	})

	return r
}

// requestLogger 用 zerolog 记录每个请求。
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		begin := time.Now()
		defer func() {
			log.Info().
				Str("component", "http").
				Str("request_id", middleware.GetReqID(r.Context())).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("elapsed", time.Since(begin)).
				Msg("request")
		}()
		next.ServeHTTP(ww, r)
	})
}
