package session

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/vango-go/vai-examiner/pkg/archive"
	"github.com/vango-go/vai-examiner/pkg/core"
	"github.com/vango-go/vai-examiner/pkg/core/stage"
	"github.com/vango-go/vai-examiner/pkg/core/voice/stt"
)

const (
	couldNotHearText     = "I couldn't hear that clearly. Could you repeat?"
	unconfiguredText     = "AI Error: Gemini API Key missing or invalid."
	allModelsBusyText    = "AI Error: all models are currently unavailable. Please try again shortly."
	turnTimeoutText      = "AI Error: the examiner took too long to respond."
	maxDiagnosticRunes   = 200
	diagnosticErrorLabel = "AI Error: "
)

// maybePreview starts a preview transcription when the buffer allows one.
// It never blocks the dispatch loop.
func (s *ExamSession) maybePreview() {
	lease, ok := s.buffer.TrySnapshotForPreview(s.now(), s.cfg.PreviewInterval)
	if !ok {
		return
	}
	ctx, cancel := context.WithCancel(s.ctx)
	s.previewCancel = cancel

	s.previewWG.Add(1)
	go func() {
		defer s.previewWG.Done()
		defer cancel()
		defer lease.Release()

		text, err := s.transcriber.Transcribe(ctx, lease.Audio, stt.PreviewOptions(s.cfg.Language))
		if err != nil {
			if ctx.Err() == nil {
				s.logger.Debug("preview transcription failed", "bytes", len(lease.Audio), "error", err)
			}
			return
		}
		if text == "" || ctx.Err() != nil {
			return
		}
		if err := s.sendPreview(text); err != nil {
			s.logger.Debug("preview dropped", "error", err)
		}
	}()
}

func (s *ExamSession) cancelPreview() {
	if s.previewCancel != nil {
		s.previewCancel()
		s.previewCancel = nil
	}
}

// commit ends the current utterance. Every path emits exactly one event
// unless the session itself is gone.
func (s *ExamSession) commit() {
	s.cancelPreview()

	ctx, cancel := s.newTurnContext()
	defer cancel()

	lease, err := s.buffer.SnapshotAndClear(ctx)
	if err != nil {
		if s.ctx.Err() != nil {
			return
		}
		s.logger.Info("commit without usable audio", "reason", string(core.ClassOf(err)), "error", err)
		_ = s.sendResponse(couldNotHearText)
		return
	}
	defer lease.Release()

	turn := int(s.turns.Add(1))
	s.archiveUtterance(turn, lease.Audio)

	text, err := s.transcriber.Transcribe(ctx, lease.Audio, stt.CommitOptions(s.cfg.Language))
	lease.Release()
	if err != nil {
		if s.ctx.Err() != nil {
			return
		}
		s.logger.Warn("commit transcription failed", "turn", turn, "bytes", len(lease.Audio), "error", err)
		_ = s.sendResponse(couldNotHearText)
		return
	}
	if text == "" {
		s.logger.Info("commit transcript empty", "turn", turn, "bytes", len(lease.Audio))
		_ = s.sendResponse(couldNotHearText)
		return
	}

	s.logger.Info("candidate answered", "turn", turn, "chars", len(text))
	s.generate(ctx, text, nil)
}

// startExam begins a fresh exam on this connection.
func (s *ExamSession) startExam() {
	s.cancelPreview()
	s.buffer.Purge()
	s.history.reset()
	s.machine.Reset()

	ctx, cancel := s.newTurnContext()
	defer cancel()
	target := stage.Introduction
	s.generate(ctx, "", &target)
}

func (s *ExamSession) changeStage(name string) {
	target, err := stage.ParseStage(name)
	if err != nil {
		_ = s.sendError(fmt.Sprintf("Unknown stage %q.", name))
		return
	}
	s.logger.Info("forcing stage", "from", s.machine.Current().String(), "to", target.String())

	ctx, cancel := s.newTurnContext()
	defer cancel()
	s.generate(ctx, s.machine.Profile().TransitionText(target), &target)
}

// generate runs one examiner turn and emits exactly one response or error.
//
// The history gains the user/model pair only on success. A forced stage
// that fails to generate is rolled back.
func (s *ExamSession) generate(ctx context.Context, userText string, override *stage.Stage) {
	if s.generator == nil {
		// Unlike other errors this one moves the stage, so the event reports "Error".
		s.machine.Fail()
		_ = s.sendError(unconfiguredText)
		return
	}

	previous := s.machine.Current()
	content, err := s.machine.Prepare(userText, override)
	if err != nil {
		_ = s.sendError(fmt.Sprintf("Unknown stage %q.", *override))
		return
	}

	req := core.GenerateRequest{
		History:            s.history.withPending(content),
		SystemInstructions: s.machine.Profile().SystemInstructions,
		Temperature:        s.cfg.Temperature,
	}
	reply, model, err := s.rotation.Generate(ctx, s.generator, req)
	if err != nil {
		if s.ctx.Err() != nil {
			return
		}
		if override != nil {
			s.machine.Restore(previous)
		}
		s.reportGenerationError(err)
		return
	}

	s.lastModel.Store(model)
	s.history.appendPair(content, reply)
	current, changed := s.machine.Observe(reply, override != nil)
	if changed {
		s.logger.Info("stage inferred", "stage", current.String(), "model", model)
	}
	_ = s.sendResponse(reply)
}

func (s *ExamSession) reportGenerationError(err error) {
	switch core.ClassOf(err) {
	case core.ErrBackendUnconfigured:
		s.logger.Error("generation backend unconfigured")
		s.machine.Fail()
		_ = s.sendError(unconfiguredText)
	case core.ErrAllModelsExhausted:
		s.logger.Warn("all candidate models failed", "candidates", len(s.rotation.Candidates()), "error", err)
		_ = s.sendError(allModelsBusyText)
	default:
		if errors.Is(err, context.DeadlineExceeded) {
			s.logger.Warn("generation timed out", "timeout", s.cfg.TurnTimeout)
			_ = s.sendError(turnTimeoutText)
			return
		}
		s.logger.Error("generation failed", "model", s.rotation.Current(), "error", err)
		_ = s.sendError(diagnosticErrorLabel + diagnostic(err))
	}
}

var secretPatterns = []*regexp.Regexp{
	regexp.MustCompile(`AIza[0-9A-Za-z_\-]{20,}`),
	regexp.MustCompile(`sk-[0-9A-Za-z_\-]{16,}`),
	regexp.MustCompile(`(?i)((?:api[_-]?)?key=)[^&\s"]+`),
	regexp.MustCompile(`(?i)(bearer\s+)[^\s"]+`),
}

// diagnostic renders err for the caller: secrets masked, length capped.
func diagnostic(err error) string {
	msg := err.Error()
	var ce *core.Error
	if errors.As(err, &ce) && strings.TrimSpace(ce.Message) != "" {
		msg = ce.Message
	}
	for _, re := range secretPatterns {
		if re.NumSubexp() > 0 {
			msg = re.ReplaceAllString(msg, "${1}[redacted]")
		} else {
			msg = re.ReplaceAllString(msg, "[redacted]")
		}
	}
	msg = strings.Join(strings.Fields(msg), " ")
	if utf8.RuneCountInString(msg) > maxDiagnosticRunes {
		runes := []rune(msg)
		msg = string(runes[:maxDiagnosticRunes]) + "..."
	}
	return msg
}

// archiveUtterance uploads the committed audio in the background.
func (s *ExamSession) archiveUtterance(turn int, audio []byte) {
	if s.audio == nil {
		return
	}
	s.archiveWG.Add(1)
	go func() {
		defer s.archiveWG.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ArchiveTimeout)
		defer cancel()
		if err := s.audio.PutUtterance(ctx, s.sessionID, turn, audio); err != nil {
			s.logger.Warn("utterance archive failed", "turn", turn, "error", err)
		}
	}()
}

func (s *ExamSession) archiveExam() {
	if s.transcripts == nil || s.history.len() == 0 {
		return
	}
	rec := archive.ExamRecord{
		SessionID:  s.sessionID,
		StartedAt:  s.startTime,
		EndedAt:    s.now(),
		FinalStage: s.machine.Current().String(),
		Model:      s.lastModel.Load().(string),
		Turns:      s.history.snapshot(),
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ArchiveTimeout)
	defer cancel()
	if err := s.transcripts.SaveExam(ctx, rec); err != nil {
		s.logger.Warn("exam archive failed", "error", err)
		return
	}
	s.logger.Info("exam archived", "turns", len(rec.Turns), "stage", rec.FinalStage)
}
