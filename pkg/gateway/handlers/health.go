package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"time"

	"github.com/vango-go/vai-examiner/pkg/gateway/config"
	"github.com/vango-go/vai-examiner/pkg/gateway/lifecycle"
)

type HealthHandler struct{}

func (h HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

// Probe checks one dependency, e.g. the archive database.
type Probe func(ctx context.Context) error

type ReadyHandler struct {
	Config    config.Config
	Lifecycle *lifecycle.Lifecycle
	Probes    map[string]Probe
}

func (h ReadyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	type readyResp struct {
		OK                bool     `json:"ok"`
		BackendConfigured bool     `json:"backend_configured"`
		Models            []string `json:"models"`
		Draining          bool     `json:"draining,omitempty"`
		DrainingSince     string   `json:"draining_since,omitempty"`
		Issues            []string `json:"issues,omitempty"`
	}

	issues := make([]string, 0, 4)
	if !h.Config.BackendConfigured() {
		issues = append(issues, "generation backend api key is not configured")
	}
	if len(h.Config.GeminiModels) == 0 {
		issues = append(issues, "no candidate models configured")
	}
	if h.Config.MaxBufferBytes <= 0 {
		issues = append(issues, "max buffer bytes must be > 0")
	}
	if h.Config.PreviewInterval <= 0 {
		issues = append(issues, "preview interval must be > 0")
	}
	draining := h.Lifecycle.IsDraining()
	var drainingSince string
	if draining {
		issues = append(issues, "draining")
		drainingSince = h.Lifecycle.DrainingSince().UTC().Format(time.RFC3339)
	}

	names := make([]string, 0, len(h.Probes))
	for name := range h.Probes {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		err := h.Probes[name](ctx)
		cancel()
		if err != nil {
			issues = append(issues, name+": "+err.Error())
		}
	}

	ok := len(issues) == 0
	status := http.StatusOK
	if !ok {
		status = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(readyResp{
		OK:                ok,
		BackendConfigured: h.Config.BackendConfigured(),
		Models:            h.Config.GeminiModels,
		Draining:          draining,
		DrainingSince:     drainingSince,
		Issues:            issues,
	})
}
