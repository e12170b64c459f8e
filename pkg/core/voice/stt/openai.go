package stt

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// DefaultOpenAIModel is the hosted Whisper model.
const DefaultOpenAIModel = "whisper-1"

// OpenAIConfig configures an OpenAIEngine.
type OpenAIConfig struct {
	APIKey string

	// BaseURL points at an OpenAI-compatible server, e.g. a self-hosted
	// faster-whisper deployment. Empty uses the OpenAI API.
	BaseURL string

	Model string

	// ForwardDecodeHints sends beam size and VAD flag as request hints.
	// The hosted OpenAI API ignores them; faster-whisper servers honor them.
	ForwardDecodeHints bool

	MaxRetries int
	HTTPClient *http.Client
}

// OpenAIEngine transcribes through the /audio/transcriptions endpoint.
type OpenAIEngine struct {
	client openai.Client
	model  string
	hints  bool
}

// NewOpenAIEngine creates an engine from cfg.
func NewOpenAIEngine(cfg OpenAIConfig) *OpenAIEngine {
	opts := []option.RequestOption{option.WithMaxRetries(max(cfg.MaxRetries, 0))}
	if key := strings.TrimSpace(cfg.APIKey); key != "" {
		opts = append(opts, option.WithAPIKey(key))
	}
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}
		opts = append(opts, option.WithBaseURL(base))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = DefaultOpenAIModel
	}
	return &OpenAIEngine{
		client: openai.NewClient(opts...),
		model:  model,
		hints:  cfg.ForwardDecodeHints,
	}
}

// Name returns the engine identifier.
func (e *OpenAIEngine) Name() string {
	return "openai"
}

// Transcribe uploads audio as a WebM file and returns the transcript as one segment.
func (e *OpenAIEngine) Transcribe(ctx context.Context, audio []byte, opts DecodeOptions) ([]Segment, error) {
	params := openai.AudioTranscriptionNewParams{
		File:  openai.File(bytes.NewReader(audio), "audio.webm", "audio/webm"),
		Model: openai.AudioModel(e.model),
	}
	if lang := strings.TrimSpace(opts.Language); lang != "" {
		params.Language = openai.String(lang)
	}

	var reqOpts []option.RequestOption
	if e.hints {
		if opts.BeamSize > 0 {
			reqOpts = append(reqOpts, option.WithQuery("beam_size", strconv.Itoa(opts.BeamSize)))
		}
		reqOpts = append(reqOpts, option.WithQuery("vad_filter", strconv.FormatBool(opts.VADFilter)))
	}

	res, err := e.client.Audio.Transcriptions.New(ctx, params, reqOpts...)
	if err != nil {
		return nil, fmt.Errorf("openai transcription: %w", err)
	}
	if res == nil {
		return nil, nil
	}
	return []Segment{{Text: res.Text}}, nil
}
