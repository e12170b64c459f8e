package stage

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed default_profile.yaml
var defaultProfileYAML []byte

// Profile holds the examiner's instructions and the per-stage strings the
// machine works with. Marker phrases live here so they can be tuned
// without a rebuild.
type Profile struct {
	Name               string             `yaml:"name"`
	SystemInstructions string             `yaml:"system_instructions"`
	TransitionPrompt   string             `yaml:"transition_prompt"`
	Contexts           map[Stage]string   `yaml:"contexts"`
	Markers            map[Stage][]string `yaml:"markers"`
}

// DefaultProfile returns the built-in IELTS speaking profile.
func DefaultProfile() *Profile {
	p, err := ParseProfile(defaultProfileYAML)
	if err != nil {
		panic(fmt.Sprintf("stage: embedded profile: %v", err))
	}
	return p
}

// LoadProfile reads a YAML profile from path. An empty path returns the default.
func LoadProfile(path string) (*Profile, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultProfile(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profile: %w", err)
	}
	p, err := ParseProfile(data)
	if err != nil {
		return nil, fmt.Errorf("profile %s: %w", path, err)
	}
	return p, nil
}

// ParseProfile decodes and validates a YAML profile. Marker phrases are
// lowercased and blank ones dropped.
func ParseProfile(data []byte) (*Profile, error) {
	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode profile: %w", err)
	}
	if err := p.normalize(); err != nil {
		return nil, err
	}
	return &p, nil
}

func (p *Profile) normalize() error {
	if strings.TrimSpace(p.SystemInstructions) == "" {
		return fmt.Errorf("system_instructions must not be empty")
	}
	for st := range p.Contexts {
		if !st.Valid() {
			return fmt.Errorf("contexts: unknown stage %q", st)
		}
	}
	for _, st := range Exam {
		if strings.TrimSpace(p.Contexts[st]) == "" {
			return fmt.Errorf("contexts: missing context for %s", st)
		}
	}

	markers := make(map[Stage][]string, len(p.Markers))
	for st, phrases := range p.Markers {
		if !st.Valid() {
			return fmt.Errorf("markers: unknown stage %q", st)
		}
		for _, phrase := range phrases {
			phrase = strings.ToLower(strings.TrimSpace(phrase))
			if phrase != "" {
				markers[st] = append(markers[st], phrase)
			}
		}
	}
	p.Markers = markers

	if strings.TrimSpace(p.TransitionPrompt) == "" {
		p.TransitionPrompt = "System: Transition to {stage}"
	}
	return nil
}

// Context returns the canned context injected when s is entered explicitly.
func (p *Profile) Context(s Stage) string {
	return p.Contexts[s]
}

// TransitionText is the user text sent along with a forced stage change.
func (p *Profile) TransitionText(s Stage) string {
	return strings.ReplaceAll(p.TransitionPrompt, "{stage}", s.String())
}
