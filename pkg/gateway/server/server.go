package server

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/vango-go/vai-examiner/pkg/core"
	"github.com/vango-go/vai-examiner/pkg/core/stage"
	"github.com/vango-go/vai-examiner/pkg/core/voice/stt"
	"github.com/vango-go/vai-examiner/pkg/gateway/config"
	"github.com/vango-go/vai-examiner/pkg/gateway/handlers"
	"github.com/vango-go/vai-examiner/pkg/gateway/lifecycle"
	"github.com/vango-go/vai-examiner/pkg/gateway/live/session"
	"github.com/vango-go/vai-examiner/pkg/gateway/live/sessions"
	"github.com/vango-go/vai-examiner/pkg/gateway/mw"
)

// Deps are the backends the HTTP surface is wired to. Only Transcriber is
// required; a nil Generator leaves the examiner unconfigured.
type Deps struct {
	Transcriber *stt.Transcriber
	Generator   core.Generator
	Profile     *stage.Profile
	Transcripts session.TranscriptStore
	Audio       session.AudioStore
	Catalog     handlers.ModelCatalog
	Probes      map[string]handlers.Probe
}

type Server struct {
	cfg    config.Config
	logger *slog.Logger
	mux    *http.ServeMux
	deps   Deps

	lifecycle *lifecycle.Lifecycle
	sessions  *sessions.Tracker
}

func New(cfg config.Config, logger *slog.Logger, deps Deps) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:       cfg,
		logger:    logger,
		mux:       http.NewServeMux(),
		deps:      deps,
		lifecycle: &lifecycle.Lifecycle{},
		sessions:  sessions.NewTracker(),
	}
	s.routes()
	return s
}

// NewUpstreamHTTPClient builds the client shared by the transcription and
// generation backends.
func NewUpstreamHTTPClient(cfg config.Config) *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout: cfg.UpstreamConnectTimeout,
			}).DialContext,
			ForceAttemptHTTP2:     true,
			MaxIdleConns:          100,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
			ResponseHeaderTimeout: cfg.UpstreamResponseHeaderTimeout,
		},
	}
}

func (s *Server) routes() {
	s.mux.Handle("/healthz", handlers.HealthHandler{})
	s.mux.Handle("/readyz", handlers.ReadyHandler{Config: s.cfg, Lifecycle: s.lifecycle, Probes: s.deps.Probes})

	exam := handlers.ExamHandler{
		Config:      s.cfg,
		Logger:      s.logger,
		Lifecycle:   s.lifecycle,
		Sessions:    s.sessions,
		Transcriber: s.deps.Transcriber,
		Generator:   s.deps.Generator,
		Profile:     s.deps.Profile,
		Transcripts: s.deps.Transcripts,
		Audio:       s.deps.Audio,
	}
	s.mux.Handle("/listen", exam)
	s.mux.Handle("/v1/listen", exam)
	s.mux.Handle("/v1/sessions", handlers.SessionsHandler{Sessions: s.sessions})
	s.mux.Handle("/v1/models", handlers.ModelsHandler{Config: s.cfg, Catalog: s.deps.Catalog})
	s.mux.Handle("/", handlers.NotFoundHandler{})
}

func (s *Server) Handler() http.Handler {
	var h http.Handler = s.mux
	h = mw.CORS(s.cfg, h)
	h = mw.Recover(s.logger, h)
	h = mw.AccessLog(s.logger, h)
	h = mw.RequestID(h)
	return h
}

// SetDraining makes /readyz fail and new exam connections get rejected.
func (s *Server) SetDraining() {
	s.lifecycle.SetDraining(true)
}

func (s *Server) Draining() bool {
	return s.lifecycle.IsDraining()
}

// WarnSessionsDraining tells every connected candidate the server is going away.
func (s *Server) WarnSessionsDraining() int {
	return s.sessions.WarnAll("draining", "Server is shutting down. Your exam will end shortly.")
}

func (s *Server) WaitSessions(ctx context.Context) bool {
	return s.sessions.Wait(ctx)
}

func (s *Server) CancelSessions() int {
	return s.sessions.CancelAll()
}

func (s *Server) ActiveSessions() int {
	return s.sessions.Count()
}
