package core

import (
	"context"
	"log/slog"
	"strings"
	"sync"
)

// ModelRotation walks an ordered list of candidate models, moving to the
// next candidate when the current one is missing or out of quota.
//
// The candidate list is shared configuration; the cursor belongs to one
// session and survives across calls so a working model stays preferred.
type ModelRotation struct {
	candidates []string
	logger     *slog.Logger

	mu     sync.Mutex
	cursor int
}

// NewModelRotation creates a rotation over candidates. Blank entries are dropped.
func NewModelRotation(candidates []string, logger *slog.Logger) *ModelRotation {
	if logger == nil {
		logger = slog.Default()
	}
	cleaned := make([]string, 0, len(candidates))
	for _, c := range candidates {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		cleaned = append(cleaned, c)
	}
	return &ModelRotation{candidates: cleaned, logger: logger}
}

// Candidates returns a copy of the candidate list.
func (r *ModelRotation) Candidates() []string {
	out := make([]string, len(r.candidates))
	copy(out, r.candidates)
	return out
}

// Cursor returns the index of the preferred candidate.
func (r *ModelRotation) Cursor() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cursor
}

// Current returns the preferred candidate, or "" when the list is empty.
func (r *ModelRotation) Current() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.candidates) == 0 {
		return ""
	}
	return r.candidates[r.cursor]
}

// Generate runs req against the preferred candidate and rotates on
// ErrModelNotFound or ErrQuotaExhausted until one succeeds or every
// candidate has been tried once. Any other failure is returned at once
// and leaves the cursor where it was.
//
// req.Model is overwritten for every attempt. The model that produced the
// text is returned alongside it.
func (r *ModelRotation) Generate(ctx context.Context, gen Generator, req GenerateRequest) (string, string, error) {
	if gen == nil || len(r.candidates) == 0 {
		return "", "", NewBackendUnconfiguredError()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	n := len(r.candidates)
	var lastErr error
	for attempts := 0; attempts < n; attempts++ {
		if err := ctx.Err(); err != nil {
			return "", "", err
		}
		model := r.candidates[r.cursor]
		req.Model = model

		text, err := gen.Generate(ctx, req)
		if err == nil {
			return text, model, nil
		}
		if ctx.Err() != nil {
			return "", "", ctx.Err()
		}
		if !IsRotatable(err) {
			return "", model, err
		}

		lastErr = err
		next := (r.cursor + 1) % n
		r.logger.Warn("model unavailable, rotating",
			"model", model,
			"class", string(ClassOf(err)),
			"next_model", r.candidates[next],
			"attempt", attempts+1,
		)
		r.cursor = next
	}
	return "", "", NewAllModelsExhaustedError(n, lastErr)
}
