package gemini

import (
	"context"
	"slices"
	"strings"
)

// ModelInfo describes one model visible to the configured API key.
type ModelInfo struct {
	Name             string   `json:"name"`
	DisplayName      string   `json:"display_name,omitempty"`
	InputTokenLimit  int32    `json:"input_token_limit,omitempty"`
	OutputTokenLimit int32    `json:"output_token_limit,omitempty"`
	Actions          []string `json:"supported_actions,omitempty"`
}

// SupportsGenerate reports whether the model can serve generateContent.
func (m ModelInfo) SupportsGenerate() bool {
	return len(m.Actions) == 0 || slices.Contains(m.Actions, "generateContent")
}

// ListModels returns every model the key can see, with the "models/" prefix removed.
func ListModels(ctx context.Context, cfg Config) ([]ModelInfo, error) {
	client, err := newClient(ctx, cfg)
	if err != nil {
		return nil, err
	}
	var out []ModelInfo
	for m, err := range client.Models.All(ctx) {
		if err != nil {
			return nil, classifyError("", err)
		}
		if m == nil {
			continue
		}
		out = append(out, ModelInfo{
			Name:             stripModelPrefix(m.Name),
			DisplayName:      m.DisplayName,
			InputTokenLimit:  m.InputTokenLimit,
			OutputTokenLimit: m.OutputTokenLimit,
			Actions:          m.SupportedActions,
		})
	}
	slices.SortFunc(out, func(a, b ModelInfo) int {
		return strings.Compare(a.Name, b.Name)
	})
	return out, nil
}
