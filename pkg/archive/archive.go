// Package archive records finished exams for later review: the transcript
// goes to Postgres and, optionally, each committed utterance's audio goes
// to an S3-compatible bucket. Nothing here is read back by a live session.
package archive

import (
	"fmt"
	"strings"
	"time"

	"github.com/vango-go/vai-examiner/pkg/core/types"
)

// ExamRecord is the archived form of one exam session.
type ExamRecord struct {
	SessionID  string
	StartedAt  time.Time
	EndedAt    time.Time
	FinalStage string
	Model      string
	Turns      []types.Turn
}

// Validate checks the fields the store relies on.
func (r ExamRecord) Validate() error {
	if strings.TrimSpace(r.SessionID) == "" {
		return fmt.Errorf("archive: session id is required")
	}
	if r.StartedAt.IsZero() {
		return fmt.Errorf("archive: started_at is required")
	}
	if !r.EndedAt.IsZero() && r.EndedAt.Before(r.StartedAt) {
		return fmt.Errorf("archive: ended_at before started_at")
	}
	for i, t := range r.Turns {
		if t.Role != types.RoleUser && t.Role != types.RoleModel {
			return fmt.Errorf("archive: turn %d has unknown role %q", i, t.Role)
		}
	}
	return nil
}

// UtteranceKey is the object key for the audio of one committed turn.
func UtteranceKey(sessionID string, turn int) string {
	return fmt.Sprintf("%s/%d.webm", sessionID, turn)
}
