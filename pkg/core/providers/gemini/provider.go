// Package gemini implements the Google Gemini text-generation backend.
// It translates examiner conversations into genai contents and classifies
// failures so the model rotation can tell a missing model from a real error.
package gemini

import (
	"context"
	"net/http"
	"strings"

	"google.golang.org/genai"

	"github.com/vango-go/vai-examiner/pkg/core"
	"github.com/vango-go/vai-examiner/pkg/core/types"
)

// Config configures the Gemini client.
type Config struct {
	APIKey string

	// BaseURL overrides the Gemini API endpoint. Mostly useful in tests.
	BaseURL string

	HTTPClient *http.Client
}

// Generator implements core.Generator on top of the genai client.
type Generator struct {
	client *genai.Client
}

var _ core.Generator = (*Generator)(nil)

// New creates a Gemini generator. An empty API key yields a
// core.ErrBackendUnconfigured error and no generator.
func New(ctx context.Context, cfg Config) (*Generator, error) {
	client, err := newClient(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &Generator{client: client}, nil
}

func newClient(ctx context.Context, cfg Config) (*genai.Client, error) {
	key := strings.TrimSpace(cfg.APIKey)
	if key == "" {
		return nil, core.NewBackendUnconfiguredError()
	}
	cc := &genai.ClientConfig{
		APIKey:  key,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.HTTPClient != nil {
		cc.HTTPClient = cfg.HTTPClient
	}
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		cc.HTTPOptions.BaseURL = base
	}
	return genai.NewClient(ctx, cc)
}

// Name returns the backend identifier.
func (g *Generator) Name() string {
	return "gemini"
}

// Generate sends the conversation to req.Model and returns the reply text.
func (g *Generator) Generate(ctx context.Context, req core.GenerateRequest) (string, error) {
	model := stripModelPrefix(req.Model)
	resp, err := g.client.Models.GenerateContent(ctx, model, buildContents(req.History), buildConfig(req))
	if err != nil {
		return "", classifyError(model, err)
	}
	text := responseText(resp)
	if strings.TrimSpace(text) == "" {
		return "", core.NewGenerationError(model, "model returned no text", nil)
	}
	return text, nil
}

func buildConfig(req core.GenerateRequest) *genai.GenerateContentConfig {
	temperature := req.Temperature
	if temperature <= 0 {
		temperature = core.DefaultTemperature
	}
	cfg := &genai.GenerateContentConfig{Temperature: &temperature}
	if strings.TrimSpace(req.SystemInstructions) != "" {
		cfg.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{genai.NewPartFromText(req.SystemInstructions)},
		}
	}
	return cfg
}

// buildContents maps turns one-to-one onto genai contents. Empty turns are skipped.
func buildContents(history []types.Turn) []*genai.Content {
	contents := make([]*genai.Content, 0, len(history))
	for _, turn := range history {
		if turn.Text == "" {
			continue
		}
		role := string(types.RoleUser)
		if turn.Role == types.RoleModel {
			role = string(types.RoleModel)
		}
		contents = append(contents, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{genai.NewPartFromText(turn.Text)},
		})
	}
	return contents
}

// responseText concatenates the text parts of the first candidate, skipping thoughts.
func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}
	cand := resp.Candidates[0]
	if cand == nil || cand.Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range cand.Content.Parts {
		if part == nil || part.Thought {
			continue
		}
		sb.WriteString(part.Text)
	}
	return sb.String()
}

// stripModelPrefix accepts both "gemini-2.5-flash" and "models/gemini-2.5-flash".
func stripModelPrefix(model string) string {
	model = strings.TrimSpace(model)
	return strings.TrimPrefix(model, "models/")
}
