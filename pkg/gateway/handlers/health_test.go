package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/vango-go/vai-examiner/pkg/core/providers/gemini"
	"github.com/vango-go/vai-examiner/pkg/gateway/config"
	"github.com/vango-go/vai-examiner/pkg/gateway/lifecycle"
	"github.com/vango-go/vai-examiner/pkg/gateway/live/sessions"
)

func readyConfig() config.Config {
	return config.Config{
		GeminiAPIKey:    "AIza-test",
		GeminiModels:    []string{"gemini-flash-latest", "gemini-2.5-flash"},
		MaxBufferBytes:  1 << 20,
		PreviewInterval: 500 * time.Millisecond,
	}
}

func decodeReady(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var resp map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return resp
}

func TestHealthHandler(t *testing.T) {
	rr := httptest.NewRecorder()
	HealthHandler{}.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != http.StatusOK || rr.Body.String() != "ok\n" {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}
}

func TestReadyHandler_Ready(t *testing.T) {
	h := ReadyHandler{Config: readyConfig(), Probes: map[string]Probe{
		"postgres": func(context.Context) error { return nil },
	}}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}
	resp := decodeReady(t, rr)
	if ok, _ := resp["ok"].(bool); !ok {
		t.Fatalf("expected ok=true, got %v", resp)
	}
}

func TestReadyHandler_NotReady(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*ReadyHandler)
		wantIssue string
	}{
		{name: "no backend key", mutate: func(h *ReadyHandler) { h.Config.GeminiAPIKey = "" }, wantIssue: "api key"},
		{name: "no models", mutate: func(h *ReadyHandler) { h.Config.GeminiModels = nil }, wantIssue: "candidate models"},
		{name: "draining", mutate: func(h *ReadyHandler) {
			h.Lifecycle = &lifecycle.Lifecycle{}
			h.Lifecycle.SetDraining(true)
		}, wantIssue: "draining"},
		{name: "probe failure", mutate: func(h *ReadyHandler) {
			h.Probes = map[string]Probe{"postgres": func(context.Context) error { return errors.New("connection refused") }}
		}, wantIssue: "postgres: connection refused"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := ReadyHandler{Config: readyConfig()}
			tt.mutate(&h)
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))

			if rr.Code != http.StatusServiceUnavailable {
				t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
			}
			if !strings.Contains(rr.Body.String(), tt.wantIssue) {
				t.Fatalf("body %q missing issue %q", rr.Body.String(), tt.wantIssue)
			}
		})
	}
}

func TestSessionsHandler(t *testing.T) {
	tr := sessions.NewTracker()
	rr := httptest.NewRecorder()
	SessionsHandler{Sessions: tr}.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/sessions", nil))
	if !strings.Contains(rr.Body.String(), `"sessions":[]`) || !strings.Contains(rr.Body.String(), `"count":0`) {
		t.Fatalf("empty body=%q", rr.Body.String())
	}

	tr.Register("s_1", sessions.Handle{Stage: func() string { return "CueCard" }, StartedAt: time.Unix(100, 0)})
	rr = httptest.NewRecorder()
	SessionsHandler{Sessions: tr}.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/sessions", nil))
	var resp struct {
		Count    int             `json:"count"`
		Sessions []sessions.Info `json:"sessions"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Count != 1 || resp.Sessions[0].ID != "s_1" || resp.Sessions[0].Stage != "CueCard" {
		t.Fatalf("resp=%+v", resp)
	}

	rr = httptest.NewRecorder()
	SessionsHandler{Sessions: tr}.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/sessions", nil))
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status=%d", rr.Code)
	}
}

func TestModelsHandler(t *testing.T) {
	catalog := func(context.Context) ([]gemini.ModelInfo, error) {
		return []gemini.ModelInfo{
			{Name: "gemini-2.5-flash", DisplayName: "Gemini 2.5 Flash", InputTokenLimit: 1048576, Actions: []string{"generateContent"}},
			{Name: "gemini-flash-latest", Actions: []string{"embedContent"}},
		}, nil
	}

	rr := httptest.NewRecorder()
	ModelsHandler{Config: readyConfig(), Catalog: catalog}.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/models", nil))

	var resp modelsResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !resp.BackendConfigured || len(resp.Models) != 2 {
		t.Fatalf("resp=%+v", resp)
	}
	first, second := resp.Models[0], resp.Models[1]
	if first.ID != "gemini-flash-latest" || first.Position != 0 || first.Available == nil || *first.Available {
		t.Fatalf("first=%+v", first)
	}
	if second.Available == nil || !*second.Available || second.DisplayName != "Gemini 2.5 Flash" {
		t.Fatalf("second=%+v", second)
	}
}

func TestModelsHandler_CatalogErrorKeepsCandidates(t *testing.T) {
	catalog := func(context.Context) ([]gemini.ModelInfo, error) { return nil, errors.New("permission denied") }
	rr := httptest.NewRecorder()
	ModelsHandler{Config: readyConfig(), Catalog: catalog}.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/models", nil))

	var resp modelsResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.CatalogError != "permission denied" || len(resp.Models) != 2 || resp.Models[0].Available != nil {
		t.Fatalf("resp=%+v", resp)
	}
}

func TestNotFoundHandler(t *testing.T) {
	rr := httptest.NewRecorder()
	NotFoundHandler{}.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/nope", nil))
	if rr.Code != http.StatusNotFound || !strings.Contains(rr.Body.String(), `"code":"not_found"`) {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}
}
