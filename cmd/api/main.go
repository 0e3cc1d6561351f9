package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/z-interview/backend/internal/config"
	"github.com/zhouzirui/z-interview/backend/internal/handler"
	"github.com/zhouzirui/z-interview/backend/internal/logging"
	"github.com/zhouzirui/z-interview/backend/internal/service/ai"
	"github.com/zhouzirui/z-interview/backend/internal/service/completion"
	"github.com/zhouzirui/z-interview/backend/internal/service/interview"
	"github.com/zhouzirui/z-interview/backend/internal/service/persist"
	"github.com/zhouzirui/z-interview/backend/internal/service/storage"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		if errors.Is(err, config.ErrUnknownModel) {
			log.Fatal().Err(err).Msg("set MODEL to a gpt or claude model")
		}
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	logging.Setup(cfg.Log)
	if envErr != nil {
		log.Warn().Err(envErr).Msg("no .env file, continuing with system environment variables only")
	}

	dirs := persist.Dirs{
		Transcripts: cfg.Persist.TranscriptsDir,
		Times:       cfg.Persist.TimesDir,
		Backups:     cfg.Persist.BackupsDir,
	}
	if err := dirs.Ensure(); err != nil {
		log.Fatal().Err(err).Msg("failed to create data directories")
	}

	var uploader storage.Uploader = storage.Nop{}
	if cfg.Storage.Enabled() {
		uploader = storage.NewDrive(cfg.Storage)
		log.Info().Str("folder", cfg.Storage.FolderName).Msg("Google Drive mirroring enabled")
	} else {
		log.Info().Msg("Google Drive 凭证未配置，仅保存到本地")
	}
	writer := persist.NewWriter(dirs, uploader, persist.Options{UploadTimeFile: cfg.Storage.UploadTimeFile})

	aiService, err := ai.NewService(ctx, cfg.AI)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize AI service")
	}
	log.Info().Str("provider", string(cfg.AI.Provider)).Str("model", aiService.Model()).Msg("AI service initialized")

	prompts := ai.NewPromptBuilder(cfg.Interview.SystemPrompt)
	interviewService := interview.NewService(
		aiService,
		completion.NewDetector(cfg.Interview.ClosingMessages),
		writer,
		interview.Options{
			SystemPrompt: prompts.BuildSystemPrompt,
			TestAccount:  cfg.Interview.TestAccount,
			Retry: persist.RetryPolicy{
				Attempts: cfg.Persist.RetryAttempts,
				Delay:    cfg.Persist.RetryDelay,
				MaxDelay: cfg.Persist.RetryMaxDelay,
			},
			CompletedTTL: cfg.Server.SessionCompletedTTL,
			IdleTTL:      cfg.Server.SessionIdleTTL,
		},
	)
	go interviewService.RunJanitor(ctx, time.Minute)

	router := handler.NewRouter(cfg, interviewService)

	startServer(ctx, cfg.Server, router)
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Info().Str("addr", addr).Msg("interview backend listening")
	if err := runServer(ctx, srv); err != nil {
		log.Fatal().Err(err).Msg("server error")
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
