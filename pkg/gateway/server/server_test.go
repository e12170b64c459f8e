package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vango-go/vai-examiner/pkg/core/voice/stt"
	"github.com/vango-go/vai-examiner/pkg/gateway/config"
)

type silentEngine struct{}

func (silentEngine) Name() string { return "silent" }

func (silentEngine) Transcribe(context.Context, []byte, stt.DecodeOptions) ([]stt.Segment, error) {
	return nil, nil
}

func testConfig() config.Config {
	return config.Config{
		GeminiModels:       []string{"gemini-flash-latest"},
		CORSAllowedOrigins: map[string]struct{}{"*": {}},
		MaxAudioFrameBytes: 1024,
		MaxMessageBytes:    4096,
		MaxBufferBytes:     1 << 20,
		PreviewInterval:    time.Second,
		WSPingInterval:     time.Minute,
		WSWriteTimeout:     time.Second,
	}
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	return New(testConfig(), logger, Deps{Transcriber: stt.NewTranscriber(silentEngine{})})
}

func TestServer_UnknownRoute_ReturnsJSON404(t *testing.T) {
	s := newTestServer(t)

	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/does-not-exist", nil))

	if rr.Code != http.StatusNotFound {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}
	if ct := rr.Header().Get("Content-Type"); !strings.Contains(ct, "application/json") {
		t.Fatalf("content-type=%q", ct)
	}
	if !strings.Contains(rr.Body.String(), `"code":"not_found"`) {
		t.Fatalf("unexpected body: %q", rr.Body.String())
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Fatalf("expected X-Request-ID from middleware")
	}
}

func TestServer_RoutesReachable(t *testing.T) {
	s := newTestServer(t)
	for _, path := range []string{"/healthz", "/v1/sessions", "/v1/models"} {
		rr := httptest.NewRecorder()
		s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
		if rr.Code != http.StatusOK {
			t.Fatalf("%s status=%d body=%q", path, rr.Code, rr.Body.String())
		}
	}

	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("readyz without backend key status=%d", rr.Code)
	}
}

func TestServer_ListenUpgradesThroughMiddleware(t *testing.T) {
	s := newTestServer(t)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	base := "ws" + strings.TrimPrefix(ts.URL, "http")
	for _, path := range []string{"/listen", "/v1/listen"} {
		conn, _, err := websocket.DefaultDialer.Dial(base+path, http.Header{"Origin": []string{"https://exam.example.com"}})
		if err != nil {
			t.Fatalf("dial %s: %v", path, err)
		}
		if err := conn.WriteMessage(websocket.TextMessage, []byte("START_EXAM")); err != nil {
			t.Fatalf("write: %v", err)
		}
		_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		var ev map[string]string
		if err := json.Unmarshal(data, &ev); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if ev["type"] != "error" || ev["stage"] != "Error" {
			t.Fatalf("event=%v", ev)
		}
		conn.Close()
	}
}

func TestServer_DrainingRejectsNewSessions(t *testing.T) {
	s := newTestServer(t)
	s.SetDraining()
	if !s.Draining() {
		t.Fatalf("Draining() = false")
	}
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	_, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/listen", nil)
	if err == nil {
		t.Fatalf("expected dial to fail while draining")
	}
	if resp == nil || resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("resp=%v err=%v", resp, err)
	}
	if n := s.WarnSessionsDraining(); n != 0 {
		t.Fatalf("warned %d sessions, want 0", n)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	if !s.WaitSessions(ctx) {
		t.Fatalf("WaitSessions should return immediately with no sessions")
	}
}

func TestNewUpstreamHTTPClient(t *testing.T) {
	c := NewUpstreamHTTPClient(config.Config{UpstreamConnectTimeout: time.Second, UpstreamResponseHeaderTimeout: 7 * time.Second})
	tr, ok := c.Transport.(*http.Transport)
	if !ok || tr.ResponseHeaderTimeout != 7*time.Second {
		t.Fatalf("transport=%#v", c.Transport)
	}
}
