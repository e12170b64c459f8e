package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/vango-go/vai-examiner/pkg/core/providers/gemini"
	"github.com/vango-go/vai-examiner/pkg/gateway/config"
	"github.com/vango-go/vai-examiner/pkg/gateway/mw"
)

// ModelCatalog lists the models the backend credential can reach.
type ModelCatalog func(ctx context.Context) ([]gemini.ModelInfo, error)

// ModelsHandler reports the candidate models in rotation order. With a
// catalog each candidate is checked against what the backend offers.
type ModelsHandler struct {
	Config  config.Config
	Catalog ModelCatalog
}

type modelsResponse struct {
	BackendConfigured bool             `json:"backend_configured"`
	Models            []candidateModel `json:"models"`
	CatalogError      string           `json:"catalog_error,omitempty"`
}

type candidateModel struct {
	ID               string `json:"id"`
	Position         int    `json:"position"`
	Available        *bool  `json:"available,omitempty"`
	DisplayName      string `json:"display_name,omitempty"`
	InputTokenLimit  int32  `json:"input_token_limit,omitempty"`
	OutputTokenLimit int32  `json:"output_token_limit,omitempty"`
}

func (h ModelsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		reqID, _ := mw.RequestIDFrom(r.Context())
		mw.WriteJSONError(w, http.StatusMethodNotAllowed, reqID, "method_not_allowed", "method not allowed")
		return
	}

	resp := modelsResponse{
		BackendConfigured: h.Config.BackendConfigured(),
		Models:            make([]candidateModel, 0, len(h.Config.GeminiModels)),
	}
	for i, id := range h.Config.GeminiModels {
		resp.Models = append(resp.Models, candidateModel{ID: id, Position: i})
	}

	if h.Catalog != nil && resp.BackendConfigured {
		ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
		catalog, err := h.Catalog(ctx)
		cancel()
		if err != nil {
			resp.CatalogError = err.Error()
		} else {
			byName := make(map[string]gemini.ModelInfo, len(catalog))
			for _, m := range catalog {
				byName[m.Name] = m
			}
			for i := range resp.Models {
				info, ok := byName[resp.Models[i].ID]
				available := ok && info.SupportsGenerate()
				resp.Models[i].Available = &available
				resp.Models[i].DisplayName = info.DisplayName
				resp.Models[i].InputTokenLimit = info.InputTokenLimit
				resp.Models[i].OutputTokenLimit = info.OutputTokenLimit
			}
		}
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "private, max-age=60")
	_ = json.NewEncoder(w).Encode(resp)
}
