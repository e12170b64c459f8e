package stage

import (
	"strings"
	"sync"
)

// Machine tracks the current stage of one exam.
type Machine struct {
	profile *Profile

	mu      sync.RWMutex
	current Stage
}

// NewMachine creates a machine in the Introduction stage. A nil profile
// uses DefaultProfile.
func NewMachine(profile *Profile) *Machine {
	if profile == nil {
		profile = DefaultProfile()
	}
	return &Machine{profile: profile, current: Introduction}
}

// Profile returns the profile the machine was built with.
func (m *Machine) Profile() *Profile {
	return m.profile
}

// Current returns the current stage.
func (m *Machine) Current() Stage {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Reset puts the machine back to Introduction.
func (m *Machine) Reset() {
	m.mu.Lock()
	m.current = Introduction
	m.mu.Unlock()
}

// Prepare builds the user turn content for userText.
//
// With an override the stage is switched first and the stage context is
// prepended as "<context>\nUser: <text>". Without one the text is returned
// as is. An override that is not an exam stage is rejected and the stage
// is left alone.
func (m *Machine) Prepare(userText string, override *Stage) (string, error) {
	if override == nil {
		return userText, nil
	}
	target, err := ParseStage(string(*override))
	if err != nil {
		return "", err
	}

	m.mu.Lock()
	m.current = target
	m.mu.Unlock()

	prefix := m.profile.Context(target)
	if prefix == "" {
		return userText, nil
	}
	return prefix + "\nUser: " + userText, nil
}

// Observe applies marker inference to a successful reply. Nothing is
// inferred when the turn was an explicit transition.
func (m *Machine) Observe(generated string, explicit bool) (Stage, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if explicit {
		return m.current, false
	}
	next, ok := m.infer(generated)
	if !ok || next == m.current {
		return m.current, false
	}
	m.current = next
	return next, true
}

func (m *Machine) infer(generated string) (Stage, bool) {
	lower := strings.ToLower(generated)
	for _, st := range inferenceOrder {
		for _, marker := range m.profile.Markers[st] {
			if strings.Contains(lower, marker) {
				return st, true
			}
		}
	}
	return "", false
}

// Restore puts the machine back to a stage returned earlier by Current,
// e.g. when a forced transition could not be completed.
func (m *Machine) Restore(s Stage) {
	m.mu.Lock()
	m.current = s
	m.mu.Unlock()
}

// Fail moves the machine to Error.
func (m *Machine) Fail() {
	m.mu.Lock()
	m.current = Error
	m.mu.Unlock()
}
