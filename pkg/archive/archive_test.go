package archive

import (
	"io/fs"
	"strings"
	"testing"
	"time"

	"github.com/vango-go/vai-examiner/pkg/core/types"
)

func TestExamRecordValidate(t *testing.T) {
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	tests := []struct {
		name    string
		rec     ExamRecord
		wantErr bool
	}{
		{name: "ok", rec: ExamRecord{SessionID: "s1", StartedAt: start, EndedAt: start.Add(time.Minute), Turns: []types.Turn{types.UserTurn("hi"), types.ModelTurn("hello")}}},
		{name: "open ended", rec: ExamRecord{SessionID: "s1", StartedAt: start}},
		{name: "missing session", rec: ExamRecord{StartedAt: start}, wantErr: true},
		{name: "missing start", rec: ExamRecord{SessionID: "s1"}, wantErr: true},
		{name: "ends before start", rec: ExamRecord{SessionID: "s1", StartedAt: start, EndedAt: start.Add(-time.Second)}, wantErr: true},
		{name: "bad role", rec: ExamRecord{SessionID: "s1", StartedAt: start, Turns: []types.Turn{{Role: "assistant", Text: "x"}}}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.rec.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() err=%v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestTurnRows(t *testing.T) {
	rec := ExamRecord{
		SessionID: "s9",
		Turns:     []types.Turn{types.UserTurn("I'm a nurse."), types.ModelTurn("Do you enjoy it?")},
	}
	rows := turnRows(rec)
	if len(rows) != 2 {
		t.Fatalf("rows=%d", len(rows))
	}
	if rows[1][0] != "s9" || rows[1][1] != 1 || rows[1][2] != "model" || rows[1][3] != "Do you enjoy it?" {
		t.Fatalf("row=%v", rows[1])
	}
}

func TestUtteranceKey(t *testing.T) {
	if got := UtteranceKey("0b6c", 3); got != "0b6c/3.webm" {
		t.Fatalf("UtteranceKey() = %q", got)
	}
}

func TestMigrationsEmbedded(t *testing.T) {
	entries, err := fs.ReadDir(Migrations(), ".")
	if err != nil {
		t.Fatalf("ReadDir() error: %v", err)
	}
	if len(entries) < 2 {
		t.Fatalf("expected at least 2 migrations, got %d", len(entries))
	}
	for _, e := range entries {
		data, err := fs.ReadFile(Migrations(), e.Name())
		if err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(string(data), "-- +goose Up") || !strings.Contains(string(data), "-- +goose Down") {
			t.Fatalf("%s is missing goose annotations", e.Name())
		}
	}
}

func TestNewObjectStoreRequiresBucket(t *testing.T) {
	if _, err := NewObjectStore(ObjectConfig{Endpoint: "localhost:9000"}, nil); err == nil {
		t.Fatalf("expected error for missing bucket")
	}
	o, err := NewObjectStore(ObjectConfig{Endpoint: "localhost:9000", Bucket: "exam-audio"}, nil)
	if err != nil {
		t.Fatalf("NewObjectStore() error: %v", err)
	}
	if o.Bucket() != "exam-audio" {
		t.Fatalf("bucket=%q", o.Bucket())
	}
}
