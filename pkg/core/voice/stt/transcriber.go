package stt

import (
	"context"
	"fmt"
	"strings"

	"github.com/vango-go/vai-examiner/pkg/core"
)

// Transcriber turns audio into plain text through an Engine.
type Transcriber struct {
	engine Engine
}

// NewTranscriber wraps engine. A nil engine makes every call fail.
func NewTranscriber(engine Engine) *Transcriber {
	return &Transcriber{engine: engine}
}

// Transcribe returns the recognized text of audio: every segment trimmed,
// empty segments dropped, the rest joined by single spaces.
// Failures are returned as core.ErrTranscription.
func (t *Transcriber) Transcribe(ctx context.Context, audio []byte, opts DecodeOptions) (string, error) {
	if t == nil || t.engine == nil {
		return "", core.NewTranscriptionError(fmt.Errorf("no transcription engine configured"))
	}
	segments, err := t.engine.Transcribe(ctx, audio, opts)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", core.NewTranscriptionError(err)
	}
	return JoinSegments(segments), nil
}

// JoinSegments concatenates segment texts with single spaces.
func JoinSegments(segments []Segment) string {
	parts := make([]string, 0, len(segments))
	for _, seg := range segments {
		text := strings.Join(strings.Fields(seg.Text), " ")
		if text == "" {
			continue
		}
		parts = append(parts, text)
	}
	return strings.Join(parts, " ")
}
