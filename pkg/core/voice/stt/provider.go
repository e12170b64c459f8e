// Package stt provides speech-to-text functionality.
package stt

import (
	"context"
)

// Engine is the interface for speech-to-text backends.
type Engine interface {
	// Name returns the engine identifier.
	Name() string

	// Transcribe decodes one complete audio container into speech segments.
	Transcribe(ctx context.Context, audio []byte, opts DecodeOptions) ([]Segment, error)
}

// DecodeOptions configures a single transcription.
type DecodeOptions struct {
	BeamSize  int    // Beam width for decoding (1 = greedy)
	VADFilter bool   // Drop non-speech regions before decoding
	Language  string // ISO language hint (empty = auto-detect)
}

// PreviewOptions favors latency for partial transcripts.
func PreviewOptions(language string) DecodeOptions {
	return DecodeOptions{BeamSize: 1, VADFilter: true, Language: language}
}

// CommitOptions favors accuracy for the final transcript of an utterance.
func CommitOptions(language string) DecodeOptions {
	return DecodeOptions{BeamSize: 5, VADFilter: true, Language: language}
}

// Segment is one recognized stretch of speech.
type Segment struct {
	Text  string  // Recognized text
	Start float64 // Start time in seconds
	End   float64 // End time in seconds
}
