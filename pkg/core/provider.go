package core

import (
	"context"

	"github.com/vango-go/vai-examiner/pkg/core/types"
)

// DefaultTemperature matches the sampling temperature the examiner was tuned with.
const DefaultTemperature float32 = 0.7

// GenerateRequest is one call to the text-generation backend.
type GenerateRequest struct {
	// Model is the backend model identifier, without any provider prefix.
	Model string

	// History is the full conversation, ending with the pending user turn.
	History []types.Turn

	SystemInstructions string
	Temperature        float32
}

// Generator is the interface text-generation backends implement.
//
// Failures must be returned as *Error classified as ErrModelNotFound,
// ErrQuotaExhausted or ErrGeneration so callers can decide whether a
// different model may succeed.
type Generator interface {
	// Name returns the backend identifier (e.g. "gemini").
	Name() string

	// Generate returns the model's reply text.
	Generate(ctx context.Context, req GenerateRequest) (string, error)
}
