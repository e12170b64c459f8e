package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

const (
	SignalCommit      = "COMMIT"
	SignalStartExam   = "START_EXAM"
	SignalStageChange = "STAGE_CHANGE"

	EventPreview  = "preview"
	EventResponse = "response"
	EventError    = "error"
)

type DecodeError struct {
	Code    string
	Message string
	Param   string
}

func (e *DecodeError) Error() string {
	if e == nil {
		return ""
	}
	if strings.TrimSpace(e.Param) == "" {
		return e.Message
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Param)
}

func badRequest(message, param string) *DecodeError {
	return &DecodeError{Code: "bad_request", Message: message, Param: param}
}

func unsupported(message, param string) *DecodeError {
	return &DecodeError{Code: "unsupported", Message: message, Param: param}
}

// ControlKind identifies a control signal.
type ControlKind int

const (
	ControlCommit ControlKind = iota + 1
	ControlStageChange
	ControlStartExam
)

func (k ControlKind) String() string {
	switch k {
	case ControlCommit:
		return SignalCommit
	case ControlStageChange:
		return SignalStageChange
	case ControlStartExam:
		return SignalStartExam
	default:
		return "unknown"
	}
}

// Control is a decoded text frame.
type Control struct {
	Kind ControlKind

	// Stage is the requested stage name for ControlStageChange, as sent.
	Stage string
}

type controlEnvelope struct {
	Text *string `json:"text"`
}

// ParseControl decodes a text frame. The signal may be sent raw
// ("COMMIT") or wrapped in a one-field envelope ({"text":"COMMIT"}).
func ParseControl(data []byte) (Control, error) {
	signal := strings.TrimSpace(string(data))
	if signal == "" {
		return Control{}, badRequest("empty control frame", "")
	}

	if trimmed := bytes.TrimSpace(data); len(trimmed) > 0 && trimmed[0] == '{' {
		var env controlEnvelope
		if err := json.Unmarshal(trimmed, &env); err != nil {
			return Control{}, badRequest("invalid json frame", "")
		}
		if env.Text == nil {
			return Control{}, badRequest("missing text", "text")
		}
		signal = strings.TrimSpace(*env.Text)
	}
	return parseSignal(signal)
}

func parseSignal(signal string) (Control, error) {
	switch {
	case strings.EqualFold(signal, SignalCommit):
		return Control{Kind: ControlCommit}, nil
	case strings.EqualFold(signal, SignalStartExam):
		return Control{Kind: ControlStartExam}, nil
	}

	name, rest, found := strings.Cut(signal, ":")
	if found && strings.EqualFold(strings.TrimSpace(name), SignalStageChange) {
		target := strings.TrimSpace(rest)
		if target == "" {
			return Control{}, badRequest("STAGE_CHANGE requires a stage name", "stage")
		}
		return Control{Kind: ControlStageChange, Stage: target}, nil
	}
	if signal == "" {
		return Control{}, badRequest("empty control signal", "text")
	}
	return Control{}, unsupported("unsupported control signal", "text")
}

// Preview is a best-effort partial transcript.
type Preview struct {
	Text string `json:"text"`
	Type string `json:"type"`
}

// Response is the examiner's reply to a committed turn or control signal.
type Response struct {
	Text  string `json:"text"`
	Stage string `json:"stage"`
	Type  string `json:"type"`
}

// Error is a human-readable diagnostic. Stage is the unchanged current stage.
type Error struct {
	Text  string `json:"text"`
	Stage string `json:"stage"`
	Type  string `json:"type"`
}

func NewPreview(text string) Preview {
	return Preview{Text: text, Type: EventPreview}
}

func NewResponse(text, stage string) Response {
	return Response{Text: text, Stage: stage, Type: EventResponse}
}

func NewError(text, stage string) Error {
	return Error{Text: text, Stage: stage, Type: EventError}
}
