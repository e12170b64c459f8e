package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vango-go/vai-examiner/pkg/archive"
	"github.com/vango-go/vai-examiner/pkg/core"
	"github.com/vango-go/vai-examiner/pkg/core/stage"
	"github.com/vango-go/vai-examiner/pkg/core/voice"
	"github.com/vango-go/vai-examiner/pkg/core/voice/stt"
	"github.com/vango-go/vai-examiner/pkg/gateway/live/protocol"
)

var errBackpressure = errors.New("outbound queue full")

// TranscriptStore archives a finished exam.
type TranscriptStore interface {
	SaveExam(ctx context.Context, rec archive.ExamRecord) error
}

// AudioStore archives the audio of a committed utterance.
type AudioStore interface {
	PutUtterance(ctx context.Context, sessionID string, turn int, audio []byte) error
}

type Config struct {
	MaxAudioFrameBytes         int
	MaxMessageBytes            int64
	MaxBufferBytes             int
	LiveMaxAudioFPS            int
	LiveMaxAudioBytesPerSecond int64
	LiveInboundBurstSeconds    int
	PreviewInterval            time.Duration
	Language                   string
	Temperature                float32
	PingInterval               time.Duration
	WriteTimeout               time.Duration
	ReadTimeout                time.Duration
	MaxSessionDuration         time.Duration
	TurnTimeout                time.Duration
	ArchiveTimeout             time.Duration
	OutboundQueueSize          int
	AutoStart                  bool
}

type Dependencies struct {
	Conn        *websocket.Conn
	Logger      *slog.Logger
	Transcriber *stt.Transcriber

	// Generator is nil when no backend credential is configured; every
	// generation then answers with the fixed unconfigured error.
	Generator core.Generator
	Models    []string
	Profile   *stage.Profile

	Transcripts TranscriptStore
	Audio       AudioStore

	SessionID string
	RequestID string
	Config    Config
	StartTime time.Time
	Now       func() time.Time
}

// ExamSession runs one spoken exam over one websocket connection.
type ExamSession struct {
	conn        *websocket.Conn
	logger      *slog.Logger
	transcriber *stt.Transcriber
	generator   core.Generator
	rotation    *core.ModelRotation
	machine     *stage.Machine
	transcripts TranscriptStore
	audio       AudioStore
	sessionID   string
	requestID   string
	cfg         Config
	startTime   time.Time
	now         func() time.Time

	ctx    context.Context
	cancel context.CancelFunc

	outboundPriority chan outboundFrame
	outboundNormal   chan outboundFrame

	buffer  *voice.AudioBuffer
	history *historyManager
	limiter *inboundAudioLimiter

	previewWG     sync.WaitGroup
	previewCancel context.CancelFunc
	archiveWG     sync.WaitGroup
	writerDone    chan struct{}

	endOnce  sync.Once
	endError error

	turns     atomic.Int64
	lastModel atomic.Value // string
}

type inboundFrame struct {
	messageType int
	data        []byte
}

func New(deps Dependencies) (*ExamSession, error) {
	if deps.Conn == nil {
		return nil, fmt.Errorf("connection is required")
	}
	if deps.Transcriber == nil {
		return nil, fmt.Errorf("transcriber is required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Profile == nil {
		deps.Profile = stage.DefaultProfile()
	}
	if deps.Config.OutboundQueueSize <= 0 {
		deps.Config.OutboundQueueSize = 128
	}
	if deps.Config.PreviewInterval <= 0 {
		deps.Config.PreviewInterval = 500 * time.Millisecond
	}
	if deps.Config.Temperature <= 0 {
		deps.Config.Temperature = core.DefaultTemperature
	}
	if deps.Config.ArchiveTimeout <= 0 {
		deps.Config.ArchiveTimeout = 10 * time.Second
	}
	if deps.StartTime.IsZero() {
		deps.StartTime = time.Now()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}

	logger := deps.Logger.With("session_id", deps.SessionID)
	ctx, cancel := context.WithCancel(context.Background())
	s := &ExamSession{
		conn:             deps.Conn,
		logger:           logger,
		transcriber:      deps.Transcriber,
		generator:        deps.Generator,
		rotation:         core.NewModelRotation(deps.Models, logger),
		machine:          stage.NewMachine(deps.Profile),
		transcripts:      deps.Transcripts,
		audio:            deps.Audio,
		sessionID:        deps.SessionID,
		requestID:        deps.RequestID,
		cfg:              deps.Config,
		startTime:        deps.StartTime,
		now:              deps.Now,
		ctx:              ctx,
		cancel:           cancel,
		outboundPriority: make(chan outboundFrame, 8),
		outboundNormal:   make(chan outboundFrame, deps.Config.OutboundQueueSize),
		buffer:           voice.NewAudioBuffer(deps.Config.MaxBufferBytes),
		history:          newHistoryManager(),
		limiter:          newInboundAudioLimiter(deps.Now, deps.Config.LiveMaxAudioFPS, deps.Config.LiveMaxAudioBytesPerSecond, deps.Config.LiveInboundBurstSeconds),
	}
	s.lastModel.Store("")
	return s, nil
}

// Run serves the connection until the caller disconnects, the session is
// canceled or the session time limit is reached.
func (s *ExamSession) Run() error {
	defer s.teardown()

	if s.cfg.MaxMessageBytes > 0 {
		s.conn.SetReadLimit(s.cfg.MaxMessageBytes)
	}
	if s.cfg.ReadTimeout > 0 {
		_ = s.conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		s.conn.SetPongHandler(func(string) error {
			return s.conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		})
	}

	readCh := make(chan inboundFrame, 64)
	s.writerDone = make(chan struct{})
	go s.readLoop(readCh)
	go func() {
		defer close(s.writerDone)
		w := outboundWriter{
			ws:       s.conn,
			ctx:      s.ctx,
			cfg:      s.cfg,
			priority: s.outboundPriority,
			normal:   s.outboundNormal,
		}
		if err := w.Run(); err != nil {
			s.endWith(fmt.Errorf("write: %w", err))
		}
	}()

	// The time limit fires even while a turn is in flight on this goroutine.
	if s.cfg.MaxSessionDuration > 0 {
		timer := time.AfterFunc(s.cfg.MaxSessionDuration, func() {
			s.logger.Info("session time limit reached", "limit", s.cfg.MaxSessionDuration)
			_ = s.sendPriority(protocol.NewError("Session time limit reached.", s.machine.Current().String()))
			s.cancel()
		})
		defer timer.Stop()
	}

	s.logger.Info("exam session started", "request_id", s.requestID, "auto_start", s.cfg.AutoStart)
	if s.cfg.AutoStart {
		s.startExam()
	}

	for {
		select {
		case <-s.ctx.Done():
			return s.endErr()
		case frame, ok := <-readCh:
			if !ok {
				return s.endErr()
			}
			s.dispatch(frame)
		}
	}
}

// endWith records why the session ended and cancels it. The first
// recorded error wins.
func (s *ExamSession) endWith(err error) {
	s.endOnce.Do(func() { s.endError = err })
	s.cancel()
}

func (s *ExamSession) endErr() error {
	s.endOnce.Do(func() {})
	return s.endError
}

func (s *ExamSession) dispatch(frame inboundFrame) {
	switch frame.messageType {
	case websocket.BinaryMessage:
		s.handleAudio(frame.data)
	case websocket.TextMessage:
		ctrl, err := protocol.ParseControl(frame.data)
		if err != nil {
			s.logger.Debug("rejected control frame", "error", err)
			_ = s.sendError(fmt.Sprintf("Invalid control signal: %v", err))
			return
		}
		s.logger.Debug("control signal", "kind", ctrl.Kind.String(), "stage", ctrl.Stage)
		switch ctrl.Kind {
		case protocol.ControlCommit:
			s.commit()
		case protocol.ControlStartExam:
			s.startExam()
		case protocol.ControlStageChange:
			s.changeStage(ctrl.Stage)
		}
	}
}

func (s *ExamSession) handleAudio(chunk []byte) {
	if len(chunk) == 0 {
		return
	}
	if s.cfg.MaxAudioFrameBytes > 0 && len(chunk) > s.cfg.MaxAudioFrameBytes {
		_ = s.sendError(fmt.Sprintf("Audio frame too large (%d bytes, limit %d).", len(chunk), s.cfg.MaxAudioFrameBytes))
		return
	}
	if !s.limiter.Allow(len(chunk)) {
		_ = s.sendError("Audio rate limit exceeded; frame dropped.")
		return
	}
	if err := s.buffer.Append(chunk); err != nil {
		s.logger.Warn("audio buffer full", "bytes", s.buffer.Len(), "error", err)
		_ = s.sendError("Audio buffer is full. Send COMMIT to finish the answer.")
		return
	}
	s.maybePreview()
}

// teardown cancels in-flight work, waits for previews and the final flush,
// drops any buffered audio and archives the exam.
func (s *ExamSession) teardown() {
	s.cancel()
	s.previewWG.Wait()
	if s.writerDone != nil {
		<-s.writerDone
	}
	s.buffer.Purge()
	s.archiveExam()
	s.archiveWG.Wait()
	s.logger.Info("exam session ended",
		"stage", s.machine.Current().String(),
		"turns", s.history.len()/2,
		"duration", s.now().Sub(s.startTime).Round(time.Millisecond),
	)
}

// ID returns the session identifier.
func (s *ExamSession) ID() string {
	return s.sessionID
}

// Stage returns the current exam stage.
func (s *ExamSession) Stage() string {
	return s.machine.Current().String()
}

func (s *ExamSession) Cancel() {
	if s == nil || s.cancel == nil {
		return
	}
	s.cancel()
}

// SendWarning delivers a session notice (e.g. shutdown) as an error event.
func (s *ExamSession) SendWarning(code, message string) error {
	if s == nil {
		return nil
	}
	s.logger.Info("session notice", "code", code)
	return s.sendPriority(protocol.NewError(message, s.machine.Current().String()))
}

func (s *ExamSession) sendPreview(text string) error {
	return s.sendJSON(protocol.NewPreview(text), false)
}

func (s *ExamSession) sendResponse(text string) error {
	return s.sendJSON(protocol.NewResponse(text, s.machine.Current().String()), true)
}

func (s *ExamSession) sendError(text string) error {
	return s.sendJSON(protocol.NewError(text, s.machine.Current().String()), true)
}

// sendJSON queues v as a normal frame. Previews are dropped when the queue
// is full; responses and errors wait for room.
func (s *ExamSession) sendJSON(v any, wait bool) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	frame := outboundFrame{payload: payload}
	if !wait {
		select {
		case s.outboundNormal <- frame:
			return nil
		default:
			return errBackpressure
		}
	}
	select {
	case s.outboundNormal <- frame:
		return nil
	case <-s.ctx.Done():
		return s.ctx.Err()
	}
}

func (s *ExamSession) sendPriority(v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	select {
	case s.outboundPriority <- outboundFrame{payload: payload}:
		return nil
	default:
		return errBackpressure
	}
}

// readLoop forwards inbound frames. A read failure ends the session at
// once, so a turn blocked on a backend is canceled when the caller leaves.
func (s *ExamSession) readLoop(out chan<- inboundFrame) {
	defer close(out)
	for {
		messageType, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) || s.ctx.Err() != nil {
				s.cancel()
			} else {
				s.endWith(fmt.Errorf("read: %w", err))
			}
			return
		}
		select {
		case out <- inboundFrame{messageType: messageType, data: data}:
		case <-s.ctx.Done():
			return
		}
	}
}

func (s *ExamSession) newTurnContext() (context.Context, context.CancelFunc) {
	if s.cfg.TurnTimeout > 0 {
		return context.WithTimeout(s.ctx, s.cfg.TurnTimeout)
	}
	return context.WithCancel(s.ctx)
}
