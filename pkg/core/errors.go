package core

import (
	"errors"
	"fmt"
)

// Error represents a classified failure in the transcription or generation path.
type Error struct {
	Type    ErrorType `json:"type"`
	Message string    `json:"message"`
	Code    string    `json:"code,omitempty"`
	Model   string    `json:"model,omitempty"`
	Err     error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s (code: %s)", e.Type, e.Message, e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error for error wrapping.
func (e *Error) Unwrap() error {
	return e.Err
}

// ErrorType categorizes errors.
type ErrorType string

const (
	ErrInvalidContainer    ErrorType = "invalid_container"
	ErrEmptyBuffer         ErrorType = "empty_buffer"
	ErrBufferFull          ErrorType = "buffer_full"
	ErrTranscription       ErrorType = "transcription_error"
	ErrModelNotFound       ErrorType = "model_not_found"
	ErrQuotaExhausted      ErrorType = "quota_exhausted"
	ErrGeneration          ErrorType = "generation_error"
	ErrAllModelsExhausted  ErrorType = "all_models_exhausted"
	ErrBackendUnconfigured ErrorType = "backend_unconfigured"
)

// ClassOf returns the classification of err, or "" when err is nil or unclassified.
func ClassOf(err error) ErrorType {
	var e *Error
	if errors.As(err, &e) {
		return e.Type
	}
	return ""
}

// IsRotatable reports whether the failure is scoped to one model and may
// succeed on another candidate.
func IsRotatable(err error) bool {
	switch ClassOf(err) {
	case ErrModelNotFound, ErrQuotaExhausted:
		return true
	default:
		return false
	}
}

func NewInvalidContainerError(size int) *Error {
	return &Error{
		Type:    ErrInvalidContainer,
		Message: fmt.Sprintf("buffer of %d bytes does not start with a container signature", size),
	}
}

func NewEmptyBufferError() *Error {
	return &Error{Type: ErrEmptyBuffer, Message: "audio buffer is empty"}
}

func NewBufferFullError(limit int) *Error {
	return &Error{
		Type:    ErrBufferFull,
		Message: fmt.Sprintf("audio buffer would exceed %d bytes", limit),
	}
}

func NewTranscriptionError(underlying error) *Error {
	return &Error{
		Type:    ErrTranscription,
		Message: fmt.Sprintf("transcription failed: %v", underlying),
		Err:     underlying,
	}
}

func NewModelNotFoundError(model, message string, underlying error) *Error {
	return &Error{Type: ErrModelNotFound, Message: message, Model: model, Err: underlying}
}

func NewQuotaExhaustedError(model, message string, underlying error) *Error {
	return &Error{Type: ErrQuotaExhausted, Message: message, Model: model, Err: underlying}
}

func NewGenerationError(model, message string, underlying error) *Error {
	return &Error{Type: ErrGeneration, Message: message, Model: model, Err: underlying}
}

func NewAllModelsExhaustedError(attempts int, last error) *Error {
	return &Error{
		Type:    ErrAllModelsExhausted,
		Message: fmt.Sprintf("all %d candidate models failed", attempts),
		Err:     last,
	}
}

func NewBackendUnconfiguredError() *Error {
	return &Error{Type: ErrBackendUnconfigured, Message: "generation backend is not configured"}
}
