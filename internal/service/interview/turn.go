package interview

import (
	"context"
	"errors"
	"io"
	"strings"
	"unicode/utf8"

	model "github.com/zhouzirui/z-interview/backend/internal/model/interview"
	"github.com/zhouzirui/z-interview/backend/internal/service/persist"
)

// displayBuffer holds back a turn's text until threshold characters have
// arrived, then releases everything not yet shown.
type displayBuffer struct {
	display   DisplayFunc
	threshold int
	text      strings.Builder
	shown     int
}

func (b *displayBuffer) add(delta string) {
	b.text.WriteString(delta)
}

func (b *displayBuffer) String() string {
	return b.text.String()
}

// release emits pending text once the threshold is reached, or
// unconditionally when force is set.
func (b *displayBuffer) release(force bool) {
	full := b.text.String()
	if b.shown == len(full) {
		return
	}
	if !force && utf8.RuneCountInString(full) < b.threshold {
		return
	}
	if b.display != nil {
		b.display(full[b.shown:])
	}
	b.shown = len(full)
}

// runTurn streams one assistant turn. The caller holds e.turn.
func (s *Service) runTurn(ctx context.Context, e *entry, display DisplayFunc, userTurn bool) (TurnResult, error) {
	turnCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	e.mu.Lock()
	if e.quitting {
		e.mu.Unlock()
		return TurnResult{}, ErrSessionCompleted
	}
	e.cancel = cancel
	history := append([]model.Message(nil), e.session.Messages...)
	sessionID := e.session.ID
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.cancel = nil
		e.mu.Unlock()
	}()

	stream, err := s.streamer.StreamTurn(turnCtx, history)
	if err != nil {
		return TurnResult{}, s.failTurn(e, err, userTurn)
	}

	buf := &displayBuffer{display: display, threshold: s.opts.DisplayThreshold}
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			stream.Close()
			return TurnResult{}, s.failTurn(e, err, userTurn)
		}
		if chunk == nil || chunk.Content == "" {
			continue
		}

		buf.add(chunk.Content)
		if code, ok := s.detector.Detect(buf.String()); ok {
			// 中止生成，原始输出不展示。
			stream.Close()
			cancel()
			s.log.Info().Str("session", sessionID).Str("code", code.Code).Msg("closing code detected")
			return s.complete(ctx, e, code.Message, code.Code)
		}
		buf.release(false)
	}
	stream.Close()
	buf.release(true)

	reply := buf.String()

	e.mu.Lock()
	e.session.Append(model.RoleAssistant, reply)
	if e.session.State == model.StateNotStarted {
		e.session.State = model.StateActive
	}
	e.touched = s.opts.Now()
	snap := persist.SnapshotOf(&e.session)
	e.mu.Unlock()

	s.backup(ctx, snap)
	return TurnResult{Reply: reply}, nil
}

// failTurn undoes the respondent's message so the turn can be retried. When
// the turn was cancelled by Quit the message is kept for the transcript.
func (s *Service) failTurn(e *entry, cause error, userTurn bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.quitting {
		return ErrSessionCompleted
	}

	if userTurn {
		if n := len(e.session.Messages); n > 0 && e.session.Messages[n-1].Role == model.RoleUser {
			e.session.Messages = e.session.Messages[:n-1]
		}
	}

	s.log.Warn().Err(cause).Str("session", e.session.ID).Msg("turn failed")
	return &TurnError{SessionID: e.session.ID, Err: cause}
}

// backup saves an in-progress copy. Failures are logged and discarded.
func (s *Service) backup(ctx context.Context, snap persist.Snapshot) {
	if _, err := s.persister.Save(ctx, snap, persist.Backup); err != nil {
		s.log.Warn().Err(err).Str("session", snap.SessionID).Msg("backup save failed")
	}
}
