package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/vango-go/vai-examiner/pkg/core"
	"github.com/vango-go/vai-examiner/pkg/core/stage"
	"github.com/vango-go/vai-examiner/pkg/core/voice/stt"
	"github.com/vango-go/vai-examiner/pkg/gateway/config"
	"github.com/vango-go/vai-examiner/pkg/gateway/lifecycle"
	"github.com/vango-go/vai-examiner/pkg/gateway/live/session"
	"github.com/vango-go/vai-examiner/pkg/gateway/live/sessions"
	"github.com/vango-go/vai-examiner/pkg/gateway/mw"
)

// ExamHandler upgrades /listen requests and runs one exam session per connection.
type ExamHandler struct {
	Config    config.Config
	Logger    *slog.Logger
	Lifecycle *lifecycle.Lifecycle
	Sessions  *sessions.Tracker

	Transcriber *stt.Transcriber
	// Generator is nil when no backend credential is configured.
	Generator core.Generator
	Profile   *stage.Profile

	Transcripts session.TranscriptStore
	Audio       session.AudioStore

	NewSessionID func() string
}

func (h ExamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reqID, _ := mw.RequestIDFrom(r.Context())
	if r.Method != http.MethodGet {
		mw.WriteJSONError(w, http.StatusMethodNotAllowed, reqID, "method_not_allowed", "method not allowed")
		return
	}
	if h.Lifecycle.IsDraining() {
		mw.WriteJSONError(w, http.StatusServiceUnavailable, reqID, "draining", "server is shutting down")
		return
	}
	if !h.Config.OriginAllowed(r.Header.Get("Origin")) {
		mw.WriteJSONError(w, http.StatusForbidden, reqID, "origin_not_allowed", "origin is not allowed")
		return
	}

	logger := h.Logger
	if logger == nil {
		logger = slog.Default()
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(*http.Request) bool { return true },
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Debug("websocket upgrade failed", "request_id", reqID, "error", err)
		return
	}
	defer conn.Close()

	sessionID := h.newSessionID()
	startAt := time.Now()
	s, err := session.New(session.Dependencies{
		Conn:        conn,
		Logger:      logger,
		Transcriber: h.Transcriber,
		Generator:   h.Generator,
		Models:      h.Config.GeminiModels,
		Profile:     h.Profile,
		Transcripts: h.Transcripts,
		Audio:       h.Audio,
		SessionID:   sessionID,
		RequestID:   reqID,
		StartTime:   startAt,
		Config: session.Config{
			MaxAudioFrameBytes:         h.Config.MaxAudioFrameBytes,
			MaxMessageBytes:            h.Config.MaxMessageBytes,
			MaxBufferBytes:             h.Config.MaxBufferBytes,
			LiveMaxAudioFPS:            h.Config.MaxAudioFPS,
			LiveMaxAudioBytesPerSecond: h.Config.MaxAudioBytesPerSecond,
			LiveInboundBurstSeconds:    h.Config.InboundBurstSeconds,
			PreviewInterval:            h.Config.PreviewInterval,
			Language:                   h.Config.Language,
			Temperature:                h.Config.Temperature,
			PingInterval:               h.Config.WSPingInterval,
			WriteTimeout:               h.Config.WSWriteTimeout,
			ReadTimeout:                h.Config.WSReadTimeout,
			MaxSessionDuration:         h.Config.MaxSessionDuration,
			TurnTimeout:                h.Config.TurnTimeout,
			ArchiveTimeout:             h.Config.ArchiveTimeout,
			AutoStart:                  h.Config.AutoStart,
		},
	})
	if err != nil {
		logger.Error("exam session init failed", "request_id", reqID, "error", err)
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "session unavailable"), time.Now().Add(2*time.Second))
		return
	}

	unregister := h.Sessions.Register(sessionID, sessions.Handle{
		Cancel:    s.Cancel,
		Warn:      s.SendWarning,
		Stage:     s.Stage,
		StartedAt: startAt,
		Remote:    r.RemoteAddr,
	})
	defer unregister()

	if err := s.Run(); err != nil {
		logger.Warn("exam session ended with error", "session_id", sessionID, "request_id", reqID, "error", err)
	}
}

func (h ExamHandler) newSessionID() string {
	if h.NewSessionID != nil {
		return h.NewSessionID()
	}
	return "s_" + uuid.NewString()
}
