package gemini

import (
	"errors"
	"net/http"
	"strings"

	"google.golang.org/genai"

	"github.com/vango-go/vai-examiner/pkg/core"
)

// classifyError maps a genai failure onto the core classification.
//
// NOT_FOUND / 404 means the model does not exist for this key and
// RESOURCE_EXHAUSTED / 429 means its quota is spent; both let the rotation
// move on. Everything else is a generation error.
func classifyError(model string, err error) error {
	if err == nil {
		return nil
	}
	if core.ClassOf(err) != "" {
		return err
	}

	code, status, message, ok := apiErrorFields(err)
	if !ok {
		message = err.Error()
	}

	switch {
	case code == http.StatusNotFound || status == "NOT_FOUND":
		return withCode(core.NewModelNotFoundError(model, message, err), status)
	case code == http.StatusTooManyRequests || status == "RESOURCE_EXHAUSTED":
		return withCode(core.NewQuotaExhaustedError(model, message, err), status)
	}

	// Transport errors that never reached the JSON decoder still carry the
	// status text in their message.
	if !ok {
		lower := strings.ToLower(message)
		switch {
		case strings.Contains(lower, "resource_exhausted") || strings.Contains(lower, "quota"):
			return core.NewQuotaExhaustedError(model, message, err)
		case strings.Contains(lower, "not_found") || strings.Contains(lower, "is not found"):
			return core.NewModelNotFoundError(model, message, err)
		}
	}
	return withCode(core.NewGenerationError(model, message, err), status)
}

func apiErrorFields(err error) (code int, status, message string, ok bool) {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code, apiErr.Status, apiErr.Message, true
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return apiErrPtr.Code, apiErrPtr.Status, apiErrPtr.Message, true
	}
	return 0, "", "", false
}

func withCode(e *core.Error, status string) *core.Error {
	e.Code = status
	return e
}
