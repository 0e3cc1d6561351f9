// Package interview drives the interview session state machine: it installs
// the persona prompt, streams interviewer turns, watches for closing codes and
// hands finished sessions to the persistence layer.
package interview

import (
	"context"
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog"

	"github.com/zhouzirui/z-interview/backend/internal/config"
	"github.com/zhouzirui/z-interview/backend/internal/logging"
	model "github.com/zhouzirui/z-interview/backend/internal/model/interview"
	"github.com/zhouzirui/z-interview/backend/internal/service/completion"
	"github.com/zhouzirui/z-interview/backend/internal/service/persist"
)

const (
	DefaultQuitMessage             = "You have cancelled the interview."
	DefaultAlreadyCompletedMessage = "Interview already completed."
	DefaultDisplayThreshold        = 5
	DefaultCompletedTTL            = 15 * time.Minute
	DefaultIdleTTL                 = 6 * time.Hour
)

// Streamer produces the next assistant turn for a history.
type Streamer interface {
	StreamTurn(ctx context.Context, messages []model.Message) (*schema.StreamReader[*schema.Message], error)
}

// Persister writes session artifacts.
type Persister interface {
	Save(ctx context.Context, snap persist.Snapshot, target persist.Target) (persist.Artifact, error)
	SaveConfirmed(ctx context.Context, snap persist.Snapshot, policy persist.RetryPolicy) (persist.Artifact, error)
	Completed(username string) bool
}

// DisplayFunc receives visible text increments of an assistant turn.
type DisplayFunc func(delta string)

// Options 控制状态机的可调参数，零值字段使用默认值。
type Options struct {
	// SystemPrompt personalizes the persona prompt for a respondent.
	SystemPrompt            func(model.Respondent) string
	TestAccount             string
	Retry                   persist.RetryPolicy
	QuitMessage             string
	AlreadyCompletedMessage string
	// DisplayThreshold is the number of characters buffered before any text
	// of a turn is displayed.
	DisplayThreshold int
	// CompletedTTL keeps a finished session readable for this long after its
	// last use. IdleTTL evicts sessions nobody has touched for this long.
	CompletedTTL time.Duration
	IdleTTL      time.Duration
	Now          func() time.Time
}

func (o Options) withDefaults() Options {
	if o.SystemPrompt == nil {
		o.SystemPrompt = func(model.Respondent) string { return "" }
	}
	if o.TestAccount == "" {
		o.TestAccount = config.DefaultTestAccount
	}
	if o.Retry.Attempts == 0 {
		o.Retry = persist.DefaultRetryPolicy
	}
	if o.QuitMessage == "" {
		o.QuitMessage = DefaultQuitMessage
	}
	if o.AlreadyCompletedMessage == "" {
		o.AlreadyCompletedMessage = DefaultAlreadyCompletedMessage
	}
	if o.DisplayThreshold <= 0 {
		o.DisplayThreshold = DefaultDisplayThreshold
	}
	if o.CompletedTTL <= 0 {
		o.CompletedTTL = DefaultCompletedTTL
	}
	if o.IdleTTL <= 0 {
		o.IdleTTL = DefaultIdleTTL
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// StartRequest carries the session bootstrap parameters.
type StartRequest struct {
	Respondent model.Respondent
	// Username identifies the respondent's artifacts. Empty means the test account.
	Username string
}

// TurnResult describes the outcome of a turn or a quit.
type TurnResult struct {
	// Reply is the assistant message appended to the history.
	Reply     string
	Completed bool
	// ClosingCode is set when the turn ended on a closing code.
	ClosingCode string
	Link        string
	// Saved reports whether final persistence was confirmed.
	Saved bool
}

// Service coordinates interview sessions.
type Service struct {
	streamer  Streamer
	detector  *completion.Detector
	persister Persister
	store     *Store
	opts      Options
	log       zerolog.Logger
}

// NewService wires the state machine to its collaborators.
func NewService(streamer Streamer, detector *completion.Detector, persister Persister, opts Options) *Service {
	opts = opts.withDefaults()
	return &Service{
		streamer:  streamer,
		detector:  detector,
		persister: persister,
		store:     newStore(opts.Now),
		opts:      opts,
		log:       logging.Component("interview"),
	}
}

// Start validates the respondent and creates a session.
//
// A non-test username that already has a finished interview gets a session in
// the completed state with AlreadyCompleted and Notice set and no history; no
// model call is made for it.
func (s *Service) Start(_ context.Context, req StartRequest) (model.Session, error) {
	if err := req.Respondent.Validate(); err != nil {
		return model.Session{}, err
	}

	username := strings.TrimSpace(req.Username)
	if username == "" {
		username = s.opts.TestAccount
	}

	session := model.Session{
		Username:   username,
		Respondent: req.Respondent,
		StartTime:  s.opts.Now().UTC(),
		State:      model.StateNotStarted,
	}

	if s.CheckCompleted(username) {
		session.State = model.StateCompleted
		session.AlreadyCompleted = true
		session.Notice = s.opts.AlreadyCompletedMessage
	} else {
		session.Append(model.RoleSystem, s.opts.SystemPrompt(req.Respondent))
	}

	e := s.store.create(session)
	s.log.Info().Str("session", e.session.ID).Str("user", username).Str("state", string(session.State)).Msg("session created")
	return e.snapshot(), nil
}

// Greet requests the interviewer's opening turn and moves the session to active.
func (s *Service) Greet(ctx context.Context, sessionID string, display DisplayFunc) (TurnResult, error) {
	e, err := s.store.get(sessionID)
	if err != nil {
		return TurnResult{}, err
	}
	if !e.turn.TryLock() {
		return TurnResult{}, ErrTurnInProgress
	}
	defer e.turn.Unlock()

	e.mu.Lock()
	switch e.session.State {
	case model.StateCompleted:
		e.mu.Unlock()
		return TurnResult{}, ErrSessionCompleted
	case model.StateActive:
		e.mu.Unlock()
		return TurnResult{}, ErrAlreadyStarted
	}
	e.mu.Unlock()

	return s.runTurn(ctx, e, display, false)
}

// Reply appends the respondent's message and streams the next interviewer turn.
func (s *Service) Reply(ctx context.Context, sessionID, text string, display DisplayFunc) (TurnResult, error) {
	if strings.TrimSpace(text) == "" {
		return TurnResult{}, ErrEmptyMessage
	}

	e, err := s.store.get(sessionID)
	if err != nil {
		return TurnResult{}, err
	}
	if !e.turn.TryLock() {
		return TurnResult{}, ErrTurnInProgress
	}
	defer e.turn.Unlock()

	e.mu.Lock()
	switch e.session.State {
	case model.StateCompleted:
		e.mu.Unlock()
		return TurnResult{}, ErrSessionCompleted
	case model.StateNotStarted:
		e.mu.Unlock()
		return TurnResult{}, ErrNotStarted
	}
	e.session.Append(model.RoleUser, text)
	e.mu.Unlock()

	return s.runTurn(ctx, e, display, true)
}

// Quit ends the interview on the respondent's request. An in-flight turn is
// cancelled first.
func (s *Service) Quit(ctx context.Context, sessionID string) (TurnResult, error) {
	e, err := s.store.get(sessionID)
	if err != nil {
		return TurnResult{}, err
	}

	e.mu.Lock()
	if e.session.State == model.StateCompleted {
		e.mu.Unlock()
		return TurnResult{}, ErrSessionCompleted
	}
	e.quitting = true
	cancel := e.cancel
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	e.turn.Lock()
	defer e.turn.Unlock()

	e.mu.Lock()
	// 等待期间回合可能已因结束码完成。
	if e.session.State == model.StateCompleted {
		e.mu.Unlock()
		return TurnResult{}, ErrSessionCompleted
	}
	e.mu.Unlock()

	s.log.Info().Str("session", sessionID).Msg("interview cancelled by respondent")
	return s.complete(ctx, e, s.opts.QuitMessage, "")
}

// Get returns a copy of the session.
func (s *Service) Get(sessionID string) (model.Session, error) {
	e, err := s.store.get(sessionID)
	if err != nil {
		return model.Session{}, err
	}
	return e.snapshot(), nil
}

// CheckCompleted reports whether username already finished an interview.
// The test account never counts as completed.
func (s *Service) CheckCompleted(username string) bool {
	if username == s.opts.TestAccount {
		return false
	}
	return s.persister.Completed(username)
}

// Sweep evicts finished and abandoned sessions and returns how many were dropped.
func (s *Service) Sweep() int {
	n := s.store.sweep(s.opts.CompletedTTL, s.opts.IdleTTL)
	if n > 0 {
		s.log.Debug().Int("evicted", n).Int("remaining", s.store.count()).Msg("sessions swept")
	}
	return n
}

// RunJanitor calls Sweep every interval until ctx is done.
func (s *Service) RunJanitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}

// complete appends the terminal message, marks the session completed and
// runs final persistence.
func (s *Service) complete(ctx context.Context, e *entry, closing, code string) (TurnResult, error) {
	e.mu.Lock()
	e.session.Append(model.RoleAssistant, closing)
	e.session.State = model.StateCompleted
	e.touched = s.opts.Now()
	snap := persist.SnapshotOf(&e.session)
	e.mu.Unlock()

	result := TurnResult{Reply: closing, Completed: true, ClosingCode: code}

	// 最终保存不受请求取消影响。
	art, err := s.persister.SaveConfirmed(context.WithoutCancel(ctx), snap, s.opts.Retry)
	if err != nil {
		s.log.Error().Err(err).Str("session", snap.SessionID).Str("user", snap.Username).Msg("final save failed")
		return result, nil
	}

	e.mu.Lock()
	e.session.TranscriptLink = art.Link
	e.mu.Unlock()

	result.Link = art.Link
	result.Saved = true
	s.log.Info().Str("session", snap.SessionID).Str("user", snap.Username).Str("code", code).Bool("link", art.Link != "").Msg("interview completed")
	return result, nil
}
