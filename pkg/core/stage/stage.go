// Package stage implements the examiner's conversation stage machine.
//
// A speaking test runs Introduction → CueCard → Discussion → Evaluation.
// Transitions are either explicit (a control signal forces a stage and
// injects that stage's canned context ahead of the candidate's words) or
// inferred from the examiner's own reply by scanning for marker phrases.
package stage

import (
	"fmt"
	"strings"
)

// Stage is one part of the exam. Its string form is the wire form.
type Stage string

const (
	Introduction Stage = "Introduction"
	CueCard      Stage = "CueCard"
	Discussion   Stage = "Discussion"
	Evaluation   Stage = "Evaluation"

	// Error means the generation backend is unusable for this session.
	Error Stage = "Error"
)

// Exam lists the stages a control signal may select, in exam order.
var Exam = []Stage{Introduction, CueCard, Discussion, Evaluation}

// inferenceOrder is the priority in which marker sets are tried.
var inferenceOrder = []Stage{CueCard, Discussion, Evaluation}

func (s Stage) String() string {
	return string(s)
}

// Valid reports whether s is one of the exam stages.
func (s Stage) Valid() bool {
	for _, st := range Exam {
		if s == st {
			return true
		}
	}
	return false
}

// ParseStage resolves name case-insensitively to an exam stage.
// Error is not selectable.
func ParseStage(name string) (Stage, error) {
	name = strings.TrimSpace(name)
	for _, st := range Exam {
		if strings.EqualFold(name, string(st)) {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown stage %q", name)
}
