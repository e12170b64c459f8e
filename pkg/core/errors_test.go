package core

import (
	"errors"
	"fmt"
	"testing"
)

func TestError_Error(t *testing.T) {
	err := &Error{
		Type:    ErrGeneration,
		Message: "invalid argument",
	}

	expected := "generation_error: invalid argument"
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}
}

func TestError_WithCode(t *testing.T) {
	err := &Error{
		Type:    ErrQuotaExhausted,
		Message: "too many requests",
		Code:    "RESOURCE_EXHAUSTED",
	}

	expected := "quota_exhausted: too many requests (code: RESOURCE_EXHAUSTED)"
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}
}

func TestClassOf_ThroughWrapping(t *testing.T) {
	base := NewModelNotFoundError("gemini-x", "not found", nil)
	wrapped := fmt.Errorf("turn 3: %w", base)

	if got := ClassOf(wrapped); got != ErrModelNotFound {
		t.Errorf("ClassOf() = %q, want %q", got, ErrModelNotFound)
	}
	if ClassOf(errors.New("plain")) != "" {
		t.Errorf("expected unclassified error to have empty class")
	}
	if ClassOf(nil) != "" {
		t.Errorf("expected nil to have empty class")
	}
}

func TestIsRotatable(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{NewModelNotFoundError("m", "x", nil), true},
		{NewQuotaExhaustedError("m", "x", nil), true},
		{NewGenerationError("m", "x", nil), false},
		{NewBackendUnconfiguredError(), false},
		{errors.New("boom"), false},
	}
	for _, tt := range tests {
		if got := IsRotatable(tt.err); got != tt.want {
			t.Errorf("IsRotatable(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestTranscriptionError_Unwrap(t *testing.T) {
	root := errors.New("connection reset")
	err := NewTranscriptionError(root)
	if !errors.Is(err, root) {
		t.Errorf("expected errors.Is to reach the underlying error")
	}
	if err.Type != ErrTranscription {
		t.Errorf("Type = %v, want %v", err.Type, ErrTranscription)
	}
}
