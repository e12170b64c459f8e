package core

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/vango-go/vai-examiner/pkg/core/types"
)

type scriptedGenerator struct {
	results map[string]error
	calls   []string
}

func (g *scriptedGenerator) Name() string { return "scripted" }

func (g *scriptedGenerator) Generate(_ context.Context, req GenerateRequest) (string, error) {
	g.calls = append(g.calls, req.Model)
	if err := g.results[req.Model]; err != nil {
		return "", err
	}
	return "reply from " + req.Model, nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestModelRotation_RotatesToLastCandidate(t *testing.T) {
	gen := &scriptedGenerator{results: map[string]error{
		"m0": NewQuotaExhaustedError("m0", "quota", nil),
		"m1": NewModelNotFoundError("m1", "missing", nil),
		"m2": NewQuotaExhaustedError("m2", "quota", nil),
	}}
	r := NewModelRotation([]string{"m0", "m1", "m2", "m3"}, quietLogger())

	text, model, err := r.Generate(context.Background(), gen, GenerateRequest{
		History: []types.Turn{types.UserTurn("hello")},
	})
	if err != nil {
		t.Fatalf("Generate() error: %v", err)
	}
	if text != "reply from m3" || model != "m3" {
		t.Fatalf("text=%q model=%q", text, model)
	}
	if got := r.Cursor(); got != 3 {
		t.Fatalf("cursor=%d, want 3", got)
	}
	if len(gen.calls) != 4 {
		t.Fatalf("calls=%v, want 4 attempts", gen.calls)
	}

	// The working model stays preferred for the next call.
	gen.calls = nil
	if _, model, err := r.Generate(context.Background(), gen, GenerateRequest{}); err != nil || model != "m3" {
		t.Fatalf("second call model=%q err=%v", model, err)
	}
	if len(gen.calls) != 1 {
		t.Fatalf("second call attempts=%v, want 1", gen.calls)
	}
}

func TestModelRotation_AllExhausted(t *testing.T) {
	gen := &scriptedGenerator{results: map[string]error{
		"a": NewQuotaExhaustedError("a", "quota", nil),
		"b": NewQuotaExhaustedError("b", "quota", nil),
		"c": NewQuotaExhaustedError("c", "quota", nil),
	}}
	r := NewModelRotation([]string{"a", "b", "c"}, quietLogger())

	_, _, err := r.Generate(context.Background(), gen, GenerateRequest{})
	if ClassOf(err) != ErrAllModelsExhausted {
		t.Fatalf("class=%q err=%v", ClassOf(err), err)
	}
	if ClassOf(errors.Unwrap(err)) != ErrQuotaExhausted {
		t.Fatalf("expected last quota error to be wrapped, got %v", errors.Unwrap(err))
	}
	if len(gen.calls) != 3 {
		t.Fatalf("calls=%v, want each candidate once", gen.calls)
	}
	if got := r.Cursor(); got != 0 {
		t.Fatalf("cursor=%d, want wrap back to 0", got)
	}
}

func TestModelRotation_OtherErrorStopsImmediately(t *testing.T) {
	gen := &scriptedGenerator{results: map[string]error{
		"b": NewGenerationError("b", "malformed request", nil),
	}}
	r := NewModelRotation([]string{"a", "b", "c"}, quietLogger())
	r.cursor = 1

	_, model, err := r.Generate(context.Background(), gen, GenerateRequest{})
	if ClassOf(err) != ErrGeneration {
		t.Fatalf("class=%q, want %q", ClassOf(err), ErrGeneration)
	}
	if model != "b" {
		t.Fatalf("model=%q, want b", model)
	}
	if len(gen.calls) != 1 {
		t.Fatalf("calls=%v, want exactly one attempt", gen.calls)
	}
	if got := r.Cursor(); got != 1 {
		t.Fatalf("cursor=%d, want unchanged 1", got)
	}
}

func TestModelRotation_Unconfigured(t *testing.T) {
	tests := []struct {
		name       string
		gen        Generator
		candidates []string
	}{
		{name: "nil generator", gen: nil, candidates: []string{"a"}},
		{name: "no candidates", gen: &scriptedGenerator{}, candidates: []string{" ", ""}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewModelRotation(tt.candidates, quietLogger())
			_, _, err := r.Generate(context.Background(), tt.gen, GenerateRequest{})
			if ClassOf(err) != ErrBackendUnconfigured {
				t.Fatalf("class=%q, want %q", ClassOf(err), ErrBackendUnconfigured)
			}
		})
	}
}

func TestModelRotation_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	gen := &scriptedGenerator{}
	r := NewModelRotation([]string{"a", "b"}, quietLogger())
	if _, _, err := r.Generate(ctx, gen, GenerateRequest{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("err=%v, want context.Canceled", err)
	}
	if len(gen.calls) != 0 {
		t.Fatalf("calls=%v, want none", gen.calls)
	}
}
